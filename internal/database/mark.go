package database

import (
	"context"
	"time"

	"gorm.io/gorm/clause"
)

// Mark is a user's deletion vote for a media item. At most one mark exists
// per (user, media) pair; marks survive the item going gone so history is
// kept across revivals.
type Mark struct {
	UserID    uint `gorm:"primarykey;autoIncrement:false"`
	MediaID   uint `gorm:"primarykey;autoIncrement:false"`
	CreatedAt time.Time
}

// CreateMark records a deletion vote. Re-marking is a no-op: reports whether
// a new mark was actually created.
func (c *Client) CreateMark(ctx context.Context, userID, mediaID uint, at time.Time) (bool, error) {
	res := c.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&Mark{UserID: userID, MediaID: mediaID, CreatedAt: at})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// DeleteMark withdraws a user's vote. Deleting an absent mark is a no-op.
func (c *Client) DeleteMark(ctx context.Context, userID, mediaID uint) error {
	return c.db.WithContext(ctx).
		Where("user_id = ? AND media_id = ?", userID, mediaID).
		Delete(&Mark{}).Error
}

// HasMark reports whether the user has marked the media item.
func (c *Client) HasMark(ctx context.Context, userID, mediaID uint) (bool, error) {
	var count int64
	err := c.db.WithContext(ctx).Model(&Mark{}).
		Where("user_id = ? AND media_id = ?", userID, mediaID).
		Count(&count).Error
	return count > 0, err
}

// CountMarks returns the number of marks on a media item.
func (c *Client) CountMarks(ctx context.Context, mediaID uint) (int64, error) {
	var count int64
	err := c.db.WithContext(ctx).Model(&Mark{}).
		Where("media_id = ?", mediaID).
		Count(&count).Error
	return count, err
}

// UserMarkedMediaIDs returns the ids of all media the user has marked.
func (c *Client) UserMarkedMediaIDs(ctx context.Context, userID uint) ([]uint, error) {
	var ids []uint
	err := c.db.WithContext(ctx).Model(&Mark{}).
		Where("user_id = ?", userID).
		Pluck("media_id", &ids).Error
	return ids, err
}

// MarkCounts returns a media-id to mark-count map for the given items.
func (c *Client) MarkCounts(ctx context.Context, mediaIDs []uint) (map[uint]int64, error) {
	if len(mediaIDs) == 0 {
		return map[uint]int64{}, nil
	}
	var rows []struct {
		MediaID uint
		Count   int64
	}
	err := c.db.WithContext(ctx).Model(&Mark{}).
		Select("media_id, COUNT(*) AS count").
		Where("media_id IN ?", mediaIDs).
		Group("media_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[uint]int64, len(rows))
	for _, r := range rows {
		counts[r.MediaID] = r.Count
	}
	return counts, nil
}

// FullyMarkedActiveMediaIDs returns every active media item that all
// eligible users have marked. adminExcluded selects whether admins count
// toward the threshold. Items with zero eligible users never qualify.
func (c *Client) FullyMarkedActiveMediaIDs(ctx context.Context, adminExcluded bool) ([]uint, error) {
	eligible := c.db.Model(&User{})
	if adminExcluded {
		eligible = eligible.Where("is_admin = ?", false)
	}

	var total int64
	if err := eligible.WithContext(ctx).Count(&total).Error; err != nil {
		return nil, err
	}
	if total == 0 {
		return nil, nil
	}

	markQuery := "SELECT media_id FROM marks GROUP BY media_id HAVING COUNT(*) >= ?"
	if adminExcluded {
		markQuery = `SELECT m.media_id FROM marks m
			JOIN users u ON u.id = m.user_id AND u.is_admin = 0
			GROUP BY m.media_id HAVING COUNT(*) >= ?`
	}

	var ids []uint
	err := c.db.WithContext(ctx).Model(&Media{}).
		Where("status = ?", MediaStatusActive).
		Where("id IN ("+markQuery+")", total).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}
