// Package database is the gorm-backed store shared by every engine actor.
//
// Mutual exclusion between actors rests on a single primitive: conditional
// status updates on the media table. Every transition helper in this package
// commits only if the caller's previously observed status still holds
// (WHERE id = ? AND status = ?), and reports whether it won. Callers treat a
// lost update as a successful no-op. Any new transition must preserve this
// invariant.
package database

import (
	"fmt"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Client wraps the gorm.DB instance.
type Client struct {
	db *gorm.DB
}

// New creates a new database connection and performs migrations.
func New(dbpath string) (*Client, error) {
	db, err := gorm.Open(sqlite.Open(dbpath+"?_pragma=foreign_keys(1)"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Discard,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	if err := db.AutoMigrate(
		&User{},
		&Session{},
		&InviteToken{},
		&Media{},
		&Mark{},
		&PersistentRecord{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Client{db: db}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
