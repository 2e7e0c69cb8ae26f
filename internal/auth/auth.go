// Package auth handles password hashing, login sessions and invite-based
// signup.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/jon4hz/sweepcrew/internal/database"
	"github.com/jonboulle/clockwork"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const inviteTokenTTL = 7 * 24 * time.Hour

// ErrInvalidCredentials is returned for unknown users and wrong passwords
// alike.
var ErrInvalidCredentials = errors.New("invalid credentials")

// ErrInvalidInvite is returned for unknown, used or expired invite tokens.
var ErrInvalidInvite = errors.New("invalid or expired invite token")

// Service implements authentication on top of the database.
type Service struct {
	db         *database.Client
	clock      clockwork.Clock
	sessionTTL time.Duration
}

// New creates an auth service. sessionMaxAge is in seconds.
func New(db *database.Client, clock clockwork.Clock, sessionMaxAge int) *Service {
	return &Service{
		db:         db,
		clock:      clock,
		sessionTTL: time.Duration(sessionMaxAge) * time.Second,
	}
}

// HashPassword returns the bcrypt hash of a password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// SeedAdmin ensures the bootstrap admin account exists. Existing accounts
// are left untouched so password changes survive restarts.
func (s *Service) SeedAdmin(ctx context.Context, username, password string) error {
	_, err := s.db.GetUserByUsername(ctx, username)
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	if _, err := s.db.CreateUser(ctx, username, hash, true); err != nil {
		return err
	}
	log.Info("Created bootstrap admin account", "username", username)
	return nil
}

// Login verifies the credentials and issues a new session token.
func (s *Service) Login(ctx context.Context, username, password string) (string, *database.User, error) {
	user, err := s.db.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return "", nil, ErrInvalidCredentials
	}

	token := uuid.NewString()
	expiresAt := s.clock.Now().Add(s.sessionTTL)
	if err := s.db.CreateSession(ctx, token, user.ID, expiresAt); err != nil {
		return "", nil, err
	}
	return token, user, nil
}

// Logout deletes the session.
func (s *Service) Logout(ctx context.Context, token string) error {
	return s.db.DeleteSession(ctx, token)
}

// Validate resolves a session token to its user.
func (s *Service) Validate(ctx context.Context, token string) (*database.User, error) {
	session, err := s.db.GetValidSession(ctx, token, s.clock.Now())
	if err != nil {
		return nil, err
	}
	return s.db.GetUserByID(ctx, session.UserID)
}

// CreateInvite issues a single-use signup token.
func (s *Service) CreateInvite(ctx context.Context) (string, error) {
	token := uuid.NewString()
	if err := s.db.CreateInviteToken(ctx, token, s.clock.Now().Add(inviteTokenTTL)); err != nil {
		return "", err
	}
	return token, nil
}

// Register consumes an invite token and creates a regular user account.
func (s *Service) Register(ctx context.Context, invite, username, password string) (*database.User, error) {
	ok, err := s.db.ConsumeInviteToken(ctx, invite, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidInvite
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	return s.db.CreateUser(ctx, username, hash, false)
}

// CleanupExpired drops expired sessions and invite tokens.
func (s *Service) CleanupExpired(ctx context.Context) error {
	now := s.clock.Now()
	if err := s.db.DeleteExpiredSessions(ctx, now); err != nil {
		return err
	}
	return s.db.DeleteExpiredInviteTokens(ctx, now)
}
