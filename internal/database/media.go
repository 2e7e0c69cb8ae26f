package database

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"gorm.io/gorm"
)

// MediaStatus is the lifecycle state of a media item. Transitions between
// statuses are committed only through the conditional helpers below.
type MediaStatus string

const (
	MediaStatusActive    MediaStatus = "active"
	MediaStatusTrashed   MediaStatus = "trashed"
	MediaStatusPermanent MediaStatus = "permanent"
	MediaStatusGone      MediaStatus = "gone"
)

// Valid reports whether s is one of the known statuses.
func (s MediaStatus) Valid() bool {
	switch s {
	case MediaStatusActive, MediaStatusTrashed, MediaStatusPermanent, MediaStatusGone:
		return true
	}
	return false
}

// MediaKind represents the type of media, either a movie or a TV season.
type MediaKind string

const (
	MediaKindMovie    MediaKind = "movie"
	MediaKindTVSeason MediaKind = "tv_season"
)

// ErrPathCollision indicates a discovery raced another row onto the same
// unique path. The scanner skips and reports the colliding discovery.
var ErrPathCollision = errors.New("media path already exists")

// Media represents a tracked media item: a movie directory or a TV season
// directory. Path is globally unique and always reflects the item's true
// current on-disk location, including after trash or permanent moves.
type Media struct {
	ID        uint `gorm:"primarykey"`
	CreatedAt time.Time
	UpdatedAt time.Time

	Kind      MediaKind `gorm:"not null;index"`
	Title     string    `gorm:"not null"`
	Year      *int      // movies only
	Season    *int      // tv seasons only
	Path      string    `gorm:"uniqueIndex;not null"`
	SizeBytes int64     `gorm:"not null;default:0"`

	Status    MediaStatus `gorm:"not null;default:'active';index;check:status IN ('active','trashed','permanent','gone')"`
	TrashedAt *time.Time  // set iff Status == trashed

	FirstSeen time.Time `gorm:"not null"`
	LastSeen  time.Time `gorm:"not null;index"`

	PosterPath *string

	Marks            []Mark            `gorm:"constraint:OnDelete:CASCADE;"`
	PersistentRecord *PersistentRecord `gorm:"constraint:OnDelete:CASCADE;"`
}

// Discovery is a single parsed scanner finding.
type Discovery struct {
	Kind      MediaKind
	Title     string
	Year      *int
	Season    *int
	Path      string
	SizeBytes int64
}

// UpsertOutcome reports what UpsertDiscovered did with a discovery.
type UpsertOutcome int

const (
	// OutcomeSeen means an existing live row was refreshed.
	OutcomeSeen UpsertOutcome = iota
	// OutcomeAdded means a new active row was created.
	OutcomeAdded
	// OutcomeRevived means a gone row was restored to active.
	OutcomeRevived
)

// UpsertDiscovered records a scanner discovery. Existing rows get their size
// and last-seen refreshed to the scan's start timestamp; unknown paths become
// new active rows; gone rows that reappeared are revived to active with a
// fresh first-seen. Revival goes through the status CAS so it can't clobber a
// concurrent transition.
func (c *Client) UpsertDiscovered(ctx context.Context, d Discovery, seenAt time.Time) (UpsertOutcome, error) {
	var existing Media
	err := c.db.WithContext(ctx).Where("path = ?", d.Path).First(&existing).Error
	switch {
	case err == nil:
		if existing.Status == MediaStatusGone {
			won, err := c.transition(ctx, existing.ID, MediaStatusGone, map[string]any{
				"status":     MediaStatusActive,
				"trashed_at": nil,
				"size_bytes": d.SizeBytes,
				"first_seen": seenAt,
				"last_seen":  seenAt,
			})
			if err != nil {
				return 0, err
			}
			if !won {
				// Another actor revived or retired it first; refresh below.
				return c.UpsertDiscovered(ctx, d, seenAt)
			}
			return OutcomeRevived, nil
		}

		err := c.db.WithContext(ctx).Model(&Media{}).
			Where("id = ?", existing.ID).
			Updates(map[string]any{"size_bytes": d.SizeBytes, "last_seen": seenAt}).Error
		if err != nil {
			return 0, err
		}
		return OutcomeSeen, nil

	case errors.Is(err, gorm.ErrRecordNotFound):
		item := Media{
			Kind:      d.Kind,
			Title:     d.Title,
			Year:      d.Year,
			Season:    d.Season,
			Path:      d.Path,
			SizeBytes: d.SizeBytes,
			Status:    MediaStatusActive,
			FirstSeen: seenAt,
			LastSeen:  seenAt,
		}
		if err := c.db.WithContext(ctx).Create(&item).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return 0, ErrPathCollision
			}
			return 0, err
		}
		return OutcomeAdded, nil

	default:
		return 0, err
	}
}

// MarkVanished retires every active or trashed row under rootPrefix that the
// scan starting at `before` did not touch. Returns the number of rows
// retired.
func (c *Client) MarkVanished(ctx context.Context, rootPrefix string, before time.Time) (int64, error) {
	res := c.db.WithContext(ctx).Model(&Media{}).
		Where(`path LIKE ? ESCAPE '\'`, escapeLike(rootPrefix)+"/%").
		Where("last_seen < ?", before).
		Where("status IN ?", []MediaStatus{MediaStatusActive, MediaStatusTrashed}).
		Updates(map[string]any{"status": MediaStatusGone, "trashed_at": nil})
	if res.Error != nil {
		log.Error("failed to retire vanished media", "root", rootPrefix, "error", res.Error)
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

// escapeLike neutralizes LIKE wildcards in a literal path prefix, so a root
// like "/srv/media_lib" cannot match sibling directories.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	return strings.ReplaceAll(s, "_", `\_`)
}

// GetMediaByID returns the media item with the given id.
func (c *Client) GetMediaByID(ctx context.Context, id uint) (*Media, error) {
	var item Media
	if err := c.db.WithContext(ctx).Preload("PersistentRecord").First(&item, id).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

// GetMediaByPath returns the media item at the given path, if any.
func (c *Client) GetMediaByPath(ctx context.Context, path string) (*Media, error) {
	var item Media
	if err := c.db.WithContext(ctx).Where("path = ?", path).First(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

// MediaFilter narrows ListMedia results.
type MediaFilter struct {
	Kind   MediaKind   // empty = all kinds
	Status MediaStatus // empty = all statuses
}

// ListMedia returns media matching the filter, ordered by title and season.
func (c *Client) ListMedia(ctx context.Context, filter MediaFilter) ([]Media, error) {
	tx := c.db.WithContext(ctx).Model(&Media{})
	if filter.Kind != "" {
		tx = tx.Where("kind = ?", filter.Kind)
	}
	if filter.Status != "" {
		tx = tx.Where("status = ?", filter.Status)
	}

	var items []Media
	if err := tx.Order("title, season").Find(&items).Error; err != nil {
		log.Error("failed to list media", "error", err)
		return nil, err
	}
	return items, nil
}

// ListTrashed returns all trashed items, most recently trashed first.
func (c *Client) ListTrashed(ctx context.Context) ([]Media, error) {
	var items []Media
	err := c.db.WithContext(ctx).
		Where("status = ?", MediaStatusTrashed).
		Order("trashed_at DESC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// ListTrashedBefore returns trashed items whose retention window has elapsed,
// i.e. trashed_at <= cutoff.
func (c *Client) ListTrashedBefore(ctx context.Context, cutoff time.Time) ([]Media, error) {
	var items []Media
	err := c.db.WithContext(ctx).
		Where("status = ? AND trashed_at <= ?", MediaStatusTrashed, cutoff).
		Order("trashed_at").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// CountMediaByStatus returns the number of media rows in the given status.
func (c *Client) CountMediaByStatus(ctx context.Context, status MediaStatus) (int64, error) {
	var count int64
	err := c.db.WithContext(ctx).Model(&Media{}).Where("status = ?", status).Count(&count).Error
	return count, err
}

// TotalSizeByStatus returns the summed size of media rows in the given status.
func (c *Client) TotalSizeByStatus(ctx context.Context, status MediaStatus) (int64, error) {
	var total int64
	err := c.db.WithContext(ctx).Model(&Media{}).
		Where("status = ?", status).
		Select("COALESCE(SUM(size_bytes), 0)").
		Scan(&total).Error
	return total, err
}

// ListMediaNeedingPoster returns live items without a poster path.
func (c *Client) ListMediaNeedingPoster(ctx context.Context, limit int) ([]Media, error) {
	var items []Media
	err := c.db.WithContext(ctx).
		Where("poster_path IS NULL AND status IN ?", []MediaStatus{MediaStatusActive, MediaStatusTrashed, MediaStatusPermanent}).
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// SetPosterPath records the cached poster location for an item.
func (c *Client) SetPosterPath(ctx context.Context, id uint, posterPath string) error {
	return c.db.WithContext(ctx).Model(&Media{}).
		Where("id = ?", id).
		Update("poster_path", posterPath).Error
}

// transition is the compare-and-set primitive: the update commits only if the
// row still has the status the caller observed. Reports whether it won.
func (c *Client) transition(ctx context.Context, id uint, from MediaStatus, updates map[string]any) (bool, error) {
	res := c.db.WithContext(ctx).Model(&Media{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// CommitTrashed finalizes a trash move: active -> trashed, with the new
// trash-tier path and the consensus-completion time.
func (c *Client) CommitTrashed(ctx context.Context, id uint, newPath string, at time.Time) (bool, error) {
	return c.transition(ctx, id, MediaStatusActive, map[string]any{
		"status":     MediaStatusTrashed,
		"path":       newPath,
		"trashed_at": at,
	})
}

// CommitPermanent finalizes a permanent move from the observed status
// (active or trashed) and records the first persister, all in one
// transaction. The persistent record insert is idempotent: only the first
// persister is ever recorded.
func (c *Client) CommitPermanent(ctx context.Context, id uint, from MediaStatus, newPath string, userID uint, at time.Time) (bool, error) {
	won := false
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&Media{}).
			Where("id = ? AND status = ?", id, from).
			Updates(map[string]any{
				"status":     MediaStatusPermanent,
				"path":       newPath,
				"trashed_at": nil,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		won = true
		return createPersistentRecord(tx, id, userID, at)
	})
	return won, err
}

// CommitGone retires an item from the observed status. Used by the reaper
// after deleting the trash-tier file, and for trashed files that vanished
// externally.
func (c *Client) CommitGone(ctx context.Context, id uint, from MediaStatus) (bool, error) {
	return c.transition(ctx, id, from, map[string]any{
		"status":     MediaStatusGone,
		"trashed_at": nil,
	})
}
