// Package policy defines which users count towards deletion consensus.
//
// The eligible-user set is deliberately configurable: some deployments want
// every registered user to agree before media is trashed, others exclude
// administrative accounts that exist only for maintenance.
package policy

import "fmt"

// Eligibility names a predicate over the user table.
type Eligibility string

const (
	// EligibilityAll counts every registered user.
	EligibilityAll Eligibility = "all"
	// EligibilityNonAdmin counts only non-administrative users.
	EligibilityNonAdmin Eligibility = "non_admin"
)

// Predicate is the consensus eligibility rule handed to the database layer.
type Predicate struct {
	eligibility Eligibility
}

// FromConfig resolves a configured eligibility name into a Predicate.
func FromConfig(name string) (Predicate, error) {
	switch Eligibility(name) {
	case EligibilityAll, "":
		return Predicate{eligibility: EligibilityAll}, nil
	case EligibilityNonAdmin:
		return Predicate{eligibility: EligibilityNonAdmin}, nil
	default:
		return Predicate{}, fmt.Errorf("unknown consensus eligibility %q (want %q or %q)", name, EligibilityAll, EligibilityNonAdmin)
	}
}

// ExcludeAdmins reports whether admin users are excluded from consensus.
func (p Predicate) ExcludeAdmins() bool {
	return p.eligibility == EligibilityNonAdmin
}

func (p Predicate) String() string {
	if p.eligibility == "" {
		return string(EligibilityAll)
	}
	return string(p.eligibility)
}
