// Package watcher reacts to filesystem events on the library roots between
// scheduled scans. Events are debounced into a single rescan; removals of
// known media are additionally retired immediately.
package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
	"github.com/jon4hz/sweepcrew/internal/config"
	"github.com/jon4hz/sweepcrew/internal/database"
	"github.com/jon4hz/sweepcrew/internal/medianame"
	"gorm.io/gorm"
)

const debounceDelay = 5 * time.Second

// Scanner triggers a library rescan.
type Scanner interface {
	RunJobNow(id string) error
}

// Watcher listens for filesystem changes under the active library tiers.
type Watcher struct {
	db      *database.Client
	scanner Scanner
	roots   []string
	watcher *fsnotify.Watcher
}

// New creates a watcher for the given library roots.
func New(db *database.Client, scanner Scanner, roots []string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		db:      db,
		scanner: scanner,
		roots:   roots,
		watcher: fsw,
	}, nil
}

// Run watches until the context is canceled.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	for _, root := range w.roots {
		if err := w.addTree(root); err != nil {
			return err
		}
	}
	log.Info("Filesystem watcher started", "roots", len(w.roots))

	var debounce *time.Timer
	trigger := func() {
		if debounce != nil {
			debounce.Stop()
		}
		debounce = time.AfterFunc(debounceDelay, func() {
			if err := w.scanner.RunJobNow("scan"); err != nil {
				log.Error("Failed to trigger rescan from watcher", "error", err)
			}
		})
	}
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ctx, event, trigger)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn("Filesystem watcher error", "error", err)
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, event fsnotify.Event, trigger func()) {
	switch {
	case event.Has(fsnotify.Create):
		// New directories need their own watch so deeper events arrive.
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.watcher.Add(event.Name); err != nil {
				log.Debug("Failed to watch new directory", "path", event.Name, "error", err)
			}
		}
		trigger()
	case event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename):
		w.retireRemoved(ctx, event.Name)
		trigger()
	}
}

// retireRemoved retires a known active media row whose directory was
// removed, without waiting for the next scan.
func (w *Watcher) retireRemoved(ctx context.Context, path string) {
	item, err := w.db.GetMediaByPath(ctx, path)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warn("Failed to look up removed path", "path", path, "error", err)
		}
		return
	}
	if item.Status != database.MediaStatusActive {
		return
	}
	// The engine's own trash/persist moves also remove the active directory.
	// If the directory reappeared under a sibling tier the move owns the
	// item; its status commit must not race against a gone retirement here.
	if w.movedToTier(path) {
		return
	}
	won, err := w.db.CommitGone(ctx, item.ID, database.MediaStatusActive)
	if err != nil {
		log.Warn("Failed to retire removed media", "path", path, "error", err)
		return
	}
	if won {
		log.Info("Media removed externally, retired", "media", item.ID, "title", item.Title)
	}
}

// movedToTier reports whether the removed path exists under the trash or
// permanent sibling of its library root.
func (w *Watcher) movedToTier(path string) bool {
	for _, root := range w.roots {
		prefix := root + string(filepath.Separator)
		if !strings.HasPrefix(path, prefix) {
			continue
		}
		rel := strings.TrimPrefix(path, prefix)
		for _, tier := range []string{config.TrashDir(root), config.PermanentDir(root)} {
			if _, err := os.Stat(filepath.Join(tier, rel)); err == nil {
				return true
			}
		}
	}
	return false
}

// addTree registers watches for a root's active sections and show
// directories.
func (w *Watcher) addTree(root string) error {
	if err := w.watcher.Add(root); err != nil {
		return err
	}
	for _, section := range []string{medianame.MoviesDir, medianame.TVDir} {
		sectionPath := filepath.Join(root, section)
		if err := w.watcher.Add(sectionPath); err != nil {
			log.Debug("Section directory not watchable", "path", sectionPath, "error", err)
			continue
		}
		entries, err := os.ReadDir(sectionPath)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() {
				if err := w.watcher.Add(filepath.Join(sectionPath, entry.Name())); err != nil {
					log.Debug("Failed to watch directory", "path", entry.Name(), "error", err)
				}
			}
		}
	}
	return nil
}
