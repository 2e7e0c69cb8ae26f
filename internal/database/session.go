package database

import (
	"context"
	"time"
)

// Session is a server-side login session keyed by an opaque token.
type Session struct {
	Token     string `gorm:"primarykey"`
	UserID    uint   `gorm:"not null;index"`
	CreatedAt time.Time
	ExpiresAt time.Time `gorm:"not null;index"`
}

// CreateSession stores a new session.
func (c *Client) CreateSession(ctx context.Context, token string, userID uint, expiresAt time.Time) error {
	return c.db.WithContext(ctx).Create(&Session{
		Token:     token,
		UserID:    userID,
		ExpiresAt: expiresAt,
	}).Error
}

// GetValidSession returns the session for token if it hasn't expired.
func (c *Client) GetValidSession(ctx context.Context, token string, now time.Time) (*Session, error) {
	var session Session
	err := c.db.WithContext(ctx).
		Where("token = ? AND expires_at > ?", token, now).
		First(&session).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// DeleteSession removes a session, logging the user out.
func (c *Client) DeleteSession(ctx context.Context, token string) error {
	return c.db.WithContext(ctx).Delete(&Session{}, "token = ?", token).Error
}

// DeleteExpiredSessions removes sessions past their expiry.
func (c *Client) DeleteExpiredSessions(ctx context.Context, now time.Time) error {
	return c.db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&Session{}).Error
}
