package database

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PersistentRecord remembers who first persisted a media item. Once written
// it never changes: the permanent status is terminal.
type PersistentRecord struct {
	MediaID   uint `gorm:"primarykey;autoIncrement:false"`
	UserID    uint `gorm:"not null"`
	CreatedAt time.Time
}

// TableName uses the domain name instead of gorm's pluralization.
func (PersistentRecord) TableName() string {
	return "persistent_media"
}

func createPersistentRecord(tx *gorm.DB, mediaID, userID uint, at time.Time) error {
	return tx.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&PersistentRecord{MediaID: mediaID, UserID: userID, CreatedAt: at}).Error
}

// GetPersistentRecord returns the persist record for a media item, if any.
func (c *Client) GetPersistentRecord(ctx context.Context, mediaID uint) (*PersistentRecord, error) {
	var rec PersistentRecord
	if err := c.db.WithContext(ctx).First(&rec, "media_id = ?", mediaID).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

// HasPersistentRecord reports whether the item was ever persisted.
func (c *Client) HasPersistentRecord(ctx context.Context, mediaID uint) (bool, error) {
	var count int64
	err := c.db.WithContext(ctx).Model(&PersistentRecord{}).
		Where("media_id = ?", mediaID).
		Count(&count).Error
	return count > 0, err
}
