package database

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"gorm.io/gorm"
)

// User represents a library member. Every user gets a deletion vote; whether
// admins count toward consensus is a policy decision made by the caller.
type User struct {
	gorm.Model
	Username     string `gorm:"uniqueIndex;not null"`
	PasswordHash string `gorm:"not null"`
	IsAdmin      bool   `gorm:"not null;default:false"`

	Marks    []Mark    `gorm:"constraint:OnDelete:CASCADE;"`
	Sessions []Session `gorm:"constraint:OnDelete:CASCADE;"`
}

// InviteToken is a single-use signup token issued by an admin.
type InviteToken struct {
	Token     string `gorm:"primarykey"`
	CreatedAt time.Time
	ExpiresAt time.Time `gorm:"not null;index"`
}

func (c *Client) CreateUser(ctx context.Context, username, passwordHash string, isAdmin bool) (*User, error) {
	user := User{
		Username:     username,
		PasswordHash: passwordHash,
		IsAdmin:      isAdmin,
	}
	if err := c.db.WithContext(ctx).Create(&user).Error; err != nil {
		log.Error("failed to create user", "error", err)
		return nil, err
	}
	return &user, nil
}

func (c *Client) GetUserByID(ctx context.Context, id uint) (*User, error) {
	var user User
	if err := c.db.WithContext(ctx).First(&user, id).Error; err != nil {
		if err != gorm.ErrRecordNotFound {
			log.Error("failed to get user by ID", "error", err)
		}
		return nil, err
	}
	return &user, nil
}

func (c *Client) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	var user User
	if err := c.db.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		if err != gorm.ErrRecordNotFound {
			log.Error("failed to get user by username", "error", err)
		}
		return nil, err
	}
	return &user, nil
}

func (c *Client) GetAllUsers(ctx context.Context) ([]User, error) {
	var users []User
	if err := c.db.WithContext(ctx).Order("username").Find(&users).Error; err != nil {
		log.Error("failed to get all users", "error", err)
		return nil, err
	}
	return users, nil
}

// CountUsers returns the number of users, optionally excluding admins.
func (c *Client) CountUsers(ctx context.Context, excludeAdmins bool) (int64, error) {
	tx := c.db.WithContext(ctx).Model(&User{})
	if excludeAdmins {
		tx = tx.Where("is_admin = ?", false)
	}
	var count int64
	err := tx.Count(&count).Error
	return count, err
}

// DeleteUser removes a user together with their marks and sessions. The
// caller must re-evaluate consensus afterwards: shrinking the user set can
// complete thresholds that were previously short.
func (c *Client) DeleteUser(ctx context.Context, id uint) error {
	return c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", id).Delete(&Mark{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", id).Delete(&Session{}).Error; err != nil {
			return err
		}
		return tx.Unscoped().Delete(&User{}, id).Error
	})
}

// SetUserPassword replaces a user's password hash.
func (c *Client) SetUserPassword(ctx context.Context, id uint, passwordHash string) error {
	return c.db.WithContext(ctx).Model(&User{}).
		Where("id = ?", id).
		Update("password_hash", passwordHash).Error
}

// CreateInviteToken stores a signup token.
func (c *Client) CreateInviteToken(ctx context.Context, token string, expiresAt time.Time) error {
	return c.db.WithContext(ctx).Create(&InviteToken{Token: token, ExpiresAt: expiresAt}).Error
}

// ConsumeInviteToken deletes the token if it exists and is still valid.
// Reports whether it was consumed.
func (c *Client) ConsumeInviteToken(ctx context.Context, token string, now time.Time) (bool, error) {
	res := c.db.WithContext(ctx).
		Where("token = ? AND expires_at > ?", token, now).
		Delete(&InviteToken{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// DeleteExpiredInviteTokens removes tokens past their expiry.
func (c *Client) DeleteExpiredInviteTokens(ctx context.Context, now time.Time) error {
	return c.db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&InviteToken{}).Error
}
