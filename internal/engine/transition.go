package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/jon4hz/sweepcrew/internal/config"
	"github.com/jon4hz/sweepcrew/internal/database"
	"gorm.io/gorm"
)

// tierPath computes the destination of a move: the same relative path under
// the sibling tier directory of the item's library root.
func (e *Engine) tierPath(itemPath, tierSuffix string) (string, error) {
	root, ok := e.cfg.RootFor(itemPath)
	if !ok {
		return "", fmt.Errorf("no library root matches path %s", itemPath)
	}

	// The item may currently live in any tier of its root.
	var rel string
	for _, base := range []string{root, config.TrashDir(root), config.PermanentDir(root)} {
		if strings.HasPrefix(itemPath, base+string(filepath.Separator)) {
			rel = strings.TrimPrefix(itemPath, base+string(filepath.Separator))
			break
		}
	}
	if rel == "" {
		return "", fmt.Errorf("path %s is not inside a tier of root %s", itemPath, root)
	}
	return filepath.Join(root+tierSuffix, rel), nil
}

// toTrash moves an active item into the trash tier and commits the status
// flip strictly after the file move. The per-item lock plus the pre-move
// status re-check keep concurrent threshold crossings down to a single move;
// losing the final conditional update is treated as success.
func (e *Engine) toTrash(ctx context.Context, mediaID uint) error {
	unlock := e.lockItem(mediaID)
	defer unlock()

	item, err := e.db.GetMediaByID(ctx, mediaID)
	if err != nil {
		return err
	}
	if item.Status != database.MediaStatusActive {
		return nil
	}

	dst, err := e.tierPath(item.Path, config.TrashSuffix)
	if err != nil {
		return err
	}
	if err := e.store.Move(item.Path, dst); err != nil {
		return err
	}

	won, err := e.db.CommitTrashed(ctx, item.ID, dst, e.clock.Now())
	if err != nil {
		return err
	}
	if !won {
		log.Warn("Lost trash commit after move", "media", item.ID, "path", dst)
		return nil
	}
	log.Info("Media trashed by consensus", "media", item.ID, "title", item.Title, "path", dst)
	return nil
}

// toPermanent moves an item into the permanent tier from active or trashed
// status, recording userID as the persister.
func (e *Engine) toPermanent(ctx context.Context, mediaID, userID uint) error {
	unlock := e.lockItem(mediaID)
	defer unlock()

	item, err := e.db.GetMediaByID(ctx, mediaID)
	if err != nil {
		return err
	}
	switch item.Status {
	case database.MediaStatusActive, database.MediaStatusTrashed:
	default:
		return nil
	}

	dst, err := e.tierPath(item.Path, config.PermanentSuffix)
	if err != nil {
		return err
	}
	if err := e.store.Move(item.Path, dst); err != nil {
		return err
	}

	won, err := e.db.CommitPermanent(ctx, item.ID, item.Status, dst, userID, e.clock.Now())
	if err != nil {
		return err
	}
	if !won {
		log.Warn("Lost permanent commit after move", "media", item.ID, "path", dst)
		return nil
	}

	// Leaving the trash tier may strand empty show directories there.
	if item.Status == database.MediaStatusTrashed {
		root, ok := e.cfg.RootFor(item.Path)
		if ok {
			if err := e.store.PruneEmptyDirs(filepath.Dir(item.Path), config.TrashDir(root)); err != nil {
				log.Warn("Failed to prune empty trash directories", "error", err)
			}
		}
	}

	log.Info("Media persisted", "media", item.ID, "title", item.Title, "user", userID, "path", dst)
	return nil
}

// Persist marks an item as permanently kept. Idempotent: if a persistent
// record already exists the call succeeds without touching anything.
func (e *Engine) Persist(ctx context.Context, userID, mediaID uint) error {
	_, err := e.db.GetMediaByID(ctx, mediaID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrMediaNotFound
		}
		return err
	}

	persisted, err := e.db.HasPersistentRecord(ctx, mediaID)
	if err != nil {
		return err
	}
	if persisted {
		return nil
	}

	return e.toPermanent(ctx, mediaID, userID)
}
