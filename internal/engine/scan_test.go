package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jon4hz/sweepcrew/internal/config"
	"github.com/jon4hz/sweepcrew/internal/database"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newScanEngine builds an engine over a real temporary library tree, since
// the scanner reads the filesystem directly.
func newScanEngine(t *testing.T) (*Engine, *database.Client, *clockwork.FakeClock, string) {
	t.Helper()

	root := filepath.Join(t.TempDir(), "media")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "Movies"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "TV Shows"), 0o755))

	db, err := database.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	clock := clockwork.NewFakeClockAt(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	cfg := &config.Config{
		Libraries:     []string{root},
		RetentionDays: 30,
		ScanInterval:  60,
		ReapInterval:  60,
		Eligible:      config.EligibilityAll,
	}
	engine, err := New(cfg, db, WithClock(clock))
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close() })

	return engine, db, clock, root
}

func writeMovie(t *testing.T, root, dir string, size int) string {
	t.Helper()
	path := filepath.Join(root, "Movies", dir)
	require.NoError(t, os.MkdirAll(path, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(path, "movie.mkv"), make([]byte, size), 0o644))
	return path
}

func TestScanDiscoversMoviesAndSeasons(t *testing.T) {
	engine, db, _, root := newScanEngine(t)
	ctx := context.Background()

	moviePath := writeMovie(t, root, "Interstellar (2014)", 100)
	seasonPath := filepath.Join(root, "TV Shows", "Severance", "Season 1")
	require.NoError(t, os.MkdirAll(seasonPath, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(seasonPath, "e01.mkv"), make([]byte, 50), 0o644))

	report, err := engine.Scan(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Seen)
	assert.Equal(t, 2, report.Added)
	assert.Empty(t, report.Skipped)

	movie, err := db.GetMediaByPath(ctx, moviePath)
	require.NoError(t, err)
	assert.Equal(t, database.MediaKindMovie, movie.Kind)
	assert.Equal(t, "Interstellar", movie.Title)
	require.NotNil(t, movie.Year)
	assert.Equal(t, 2014, *movie.Year)
	assert.Equal(t, int64(100), movie.SizeBytes)

	season, err := db.GetMediaByPath(ctx, seasonPath)
	require.NoError(t, err)
	assert.Equal(t, database.MediaKindTVSeason, season.Kind)
	assert.Equal(t, "Severance", season.Title)
	require.NotNil(t, season.Season)
	assert.Equal(t, 1, *season.Season)
}

func TestScanSkipsUnparseableDirs(t *testing.T) {
	engine, _, _, root := newScanEngine(t)

	writeMovie(t, root, "Interstellar (2014)", 10)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "Movies", "Random Downloads"), 0o755))

	report, err := engine.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Seen)
	require.Len(t, report.Skipped, 1)
	assert.Contains(t, report.Skipped[0].Path, "Random Downloads")
}

func TestScanRetiresVanishedAndRevives(t *testing.T) {
	engine, db, clock, root := newScanEngine(t)
	ctx := context.Background()

	moviePath := writeMovie(t, root, "Interstellar (2014)", 10)

	_, err := engine.Scan(ctx)
	require.NoError(t, err)

	// The directory disappears between scans.
	require.NoError(t, os.RemoveAll(moviePath))
	clock.Advance(time.Hour)

	report, err := engine.Scan(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), report.Vanished)

	item, err := db.GetMediaByPath(ctx, moviePath)
	require.NoError(t, err)
	assert.Equal(t, database.MediaStatusGone, item.Status)

	// It comes back; the next scan revives it with a fresh first-seen.
	writeMovie(t, root, "Interstellar (2014)", 10)
	clock.Advance(time.Hour)

	report, err = engine.Scan(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Revived)

	item, err = db.GetMediaByPath(ctx, moviePath)
	require.NoError(t, err)
	assert.Equal(t, database.MediaStatusActive, item.Status)
	assert.Equal(t, clock.Now().Unix(), item.FirstSeen.Unix())
}

func TestScanDoesNotTouchTrashTier(t *testing.T) {
	engine, db, clock, root := newScanEngine(t)
	ctx := context.Background()

	moviePath := writeMovie(t, root, "Interstellar (2014)", 10)
	_, err := engine.Scan(ctx)
	require.NoError(t, err)

	// Simulate a committed trash move: row and file both live in the trash
	// tier now.
	item, err := db.GetMediaByPath(ctx, moviePath)
	require.NoError(t, err)
	trashPath := filepath.Join(config.TrashDir(root), "Movies", "Interstellar (2014)")
	require.NoError(t, os.MkdirAll(filepath.Dir(trashPath), 0o755))
	require.NoError(t, os.Rename(moviePath, trashPath))
	won, err := db.CommitTrashed(ctx, item.ID, trashPath, clock.Now())
	require.NoError(t, err)
	require.True(t, won)

	clock.Advance(time.Hour)
	report, err := engine.Scan(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Vanished)
	assert.Equal(t, database.MediaStatusTrashed, mustStatus(t, db, item.ID))
}

func mustStatus(t *testing.T, db *database.Client, id uint) database.MediaStatus {
	t.Helper()
	item, err := db.GetMediaByID(context.Background(), id)
	require.NoError(t, err)
	return item.Status
}
