package engine

import (
	"context"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/jon4hz/sweepcrew/internal/config"
	"github.com/jon4hz/sweepcrew/internal/database"
)

// ReapReport summarizes a reaper run.
type ReapReport struct {
	Reaped  int `json:"reaped"`
	Missing int `json:"missing"`
}

// Reap deletes trashed media whose grace period has elapsed and retires the
// rows to gone. Each item's status is re-checked under the per-item lock
// right before deleting, so a concurrent persist always wins over the
// reaper. Trashed rows whose file already vanished externally are retired
// without a delete.
func (e *Engine) Reap(ctx context.Context) (*ReapReport, error) {
	report := &ReapReport{}

	cutoff := e.clock.Now().Add(-e.cfg.Retention())
	due, err := e.db.ListTrashedBefore(ctx, cutoff)
	if err != nil {
		return nil, err
	}

	for _, item := range due {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		if err := e.reapItem(ctx, item.ID); err != nil {
			log.Error("Failed to reap item", "media", item.ID, "title", item.Title, "error", err)
			continue
		}
		report.Reaped++
	}

	missing, err := e.sweepMissingTrash(ctx)
	if err != nil {
		return report, err
	}
	report.Missing = missing

	return report, nil
}

func (e *Engine) reapItem(ctx context.Context, mediaID uint) error {
	unlock := e.lockItem(mediaID)
	defer unlock()

	// Re-check under the lock: a persist may have raced us here.
	item, err := e.db.GetMediaByID(ctx, mediaID)
	if err != nil {
		return err
	}
	if item.Status != database.MediaStatusTrashed {
		return nil
	}

	if err := e.store.Remove(item.Path); err != nil {
		return err
	}

	root, ok := e.cfg.RootFor(item.Path)
	if ok {
		if err := e.store.PruneEmptyDirs(filepath.Dir(item.Path), config.TrashDir(root)); err != nil {
			log.Warn("Failed to prune empty trash directories", "path", item.Path, "error", err)
		}
	}

	won, err := e.db.CommitGone(ctx, item.ID, database.MediaStatusTrashed)
	if err != nil {
		return err
	}
	if !won {
		log.Warn("Lost gone commit after delete", "media", item.ID)
		return nil
	}
	log.Info("Media reaped from trash", "media", item.ID, "title", item.Title)
	return nil
}

// sweepMissingTrash retires trashed rows whose file no longer exists in the
// trash tier, regardless of retention.
func (e *Engine) sweepMissingTrash(ctx context.Context) (int, error) {
	trashed, err := e.db.ListTrashed(ctx)
	if err != nil {
		return 0, err
	}

	missing := 0
	for _, item := range trashed {
		if ctx.Err() != nil {
			return missing, ctx.Err()
		}
		exists, err := e.store.Exists(item.Path)
		if err != nil {
			log.Warn("Failed to stat trashed file", "path", item.Path, "error", err)
			continue
		}
		if exists {
			continue
		}
		won, err := e.db.CommitGone(ctx, item.ID, database.MediaStatusTrashed)
		if err != nil {
			return missing, err
		}
		if won {
			log.Info("Trashed file vanished externally, retiring", "media", item.ID, "title", item.Title)
			missing++
		}
	}
	return missing, nil
}
