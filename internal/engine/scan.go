package engine

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/jon4hz/sweepcrew/internal/database"
	"github.com/jon4hz/sweepcrew/internal/medianame"
	"golang.org/x/sync/errgroup"
)

// SkippedPath records a directory the scanner could not ingest.
type SkippedPath struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// ScanReport summarizes a full library scan.
type ScanReport struct {
	Seen     int           `json:"seen"`
	Added    int           `json:"added"`
	Revived  int           `json:"revived"`
	Vanished int64         `json:"vanished"`
	Skipped  []SkippedPath `json:"skipped,omitempty"`
}

// Scan walks every library root, upserts all recognized media directories
// and retires rows whose directories vanished since the previous scan.
// Unrecognized and unreadable paths are skipped and reported, never guessed
// at.
func (e *Engine) Scan(ctx context.Context) (*ScanReport, error) {
	startedAt := e.clock.Now()
	report := &ScanReport{}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, root := range e.cfg.Libraries {
		g.Go(func() error {
			local, err := e.scanRoot(gctx, root, startedAt)
			if err != nil {
				return err
			}
			mu.Lock()
			report.Seen += local.Seen
			report.Added += local.Added
			report.Revived += local.Revived
			report.Skipped = append(report.Skipped, local.Skipped...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Anything under a root the scan didn't touch no longer exists on disk.
	for _, root := range e.cfg.Libraries {
		n, err := e.db.MarkVanished(ctx, root, startedAt)
		if err != nil {
			return nil, err
		}
		report.Vanished += n
	}

	return report, nil
}

// scanRoot ingests one library root sequentially.
func (e *Engine) scanRoot(ctx context.Context, root string, startedAt time.Time) (*ScanReport, error) {
	report := &ScanReport{}

	for _, section := range []string{medianame.MoviesDir, medianame.TVDir} {
		sectionPath := filepath.Join(root, section)
		entries, err := os.ReadDir(sectionPath)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			report.Skipped = append(report.Skipped, SkippedPath{Path: sectionPath, Reason: err.Error()})
			continue
		}

		for _, entry := range entries {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if !entry.IsDir() {
				continue
			}
			dirPath := filepath.Join(sectionPath, entry.Name())

			if section == medianame.MoviesDir {
				e.ingestDir(ctx, root, dirPath, startedAt, report)
				continue
			}

			// TV shows hold their media one level deeper, per season.
			seasons, err := os.ReadDir(dirPath)
			if err != nil {
				report.Skipped = append(report.Skipped, SkippedPath{Path: dirPath, Reason: err.Error()})
				continue
			}
			for _, season := range seasons {
				if !season.IsDir() {
					continue
				}
				e.ingestDir(ctx, root, filepath.Join(dirPath, season.Name()), startedAt, report)
			}
		}
	}

	return report, nil
}

// ingestDir parses and upserts a single candidate media directory.
func (e *Engine) ingestDir(ctx context.Context, root, dirPath string, startedAt time.Time, report *ScanReport) {
	rel, err := filepath.Rel(root, dirPath)
	if err != nil {
		report.Skipped = append(report.Skipped, SkippedPath{Path: dirPath, Reason: err.Error()})
		return
	}

	info, err := medianame.Parse(rel)
	if err != nil {
		log.Debug("Skipping unrecognized directory", "path", dirPath, "error", err)
		report.Skipped = append(report.Skipped, SkippedPath{Path: dirPath, Reason: err.Error()})
		return
	}

	size, err := dirSize(dirPath)
	if err != nil {
		report.Skipped = append(report.Skipped, SkippedPath{Path: dirPath, Reason: err.Error()})
		return
	}

	outcome, err := e.db.UpsertDiscovered(ctx, database.Discovery{
		Kind:      database.MediaKind(info.Kind),
		Title:     info.Title,
		Year:      info.Year,
		Season:    info.Season,
		Path:      dirPath,
		SizeBytes: size,
	}, startedAt)
	if err != nil {
		if errors.Is(err, database.ErrPathCollision) {
			report.Skipped = append(report.Skipped, SkippedPath{Path: dirPath, Reason: "path collision"})
			return
		}
		log.Error("Failed to upsert discovery", "path", dirPath, "error", err)
		report.Skipped = append(report.Skipped, SkippedPath{Path: dirPath, Reason: err.Error()})
		return
	}

	report.Seen++
	switch outcome {
	case database.OutcomeAdded:
		report.Added++
	case database.OutcomeRevived:
		report.Revived++
	}
}

// dirSize sums the regular files in a directory tree. An unreadable subtree
// fails the whole directory so a partial size never reaches the database.
func dirSize(dir string) (int64, error) {
	var total int64
	err := filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}
