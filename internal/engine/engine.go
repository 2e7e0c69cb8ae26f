// Package engine drives the media lifecycle: scanning the library roots,
// collecting deletion marks, executing consensus moves and reaping trashed
// media after the grace period.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-co-op/gocron/v2"
	"github.com/jon4hz/sweepcrew/internal/cache"
	"github.com/jon4hz/sweepcrew/internal/config"
	"github.com/jon4hz/sweepcrew/internal/database"
	"github.com/jon4hz/sweepcrew/internal/policy"
	"github.com/jon4hz/sweepcrew/internal/scheduler"
	"github.com/jon4hz/sweepcrew/internal/storage"
	"github.com/jon4hz/sweepcrew/internal/tmdb"
	"github.com/jonboulle/clockwork"
)

// Engine coordinates every lifecycle actor. All status transitions it
// performs go through the database's conditional updates, so concurrent
// scans, user actions and reaper runs cannot double-apply a move.
type Engine struct {
	cfg       *config.Config
	db        *database.Client
	store     storage.Store
	clock     clockwork.Clock
	policy    policy.Predicate
	scheduler *scheduler.Scheduler
	tmdb      *tmdb.Client

	// itemLocks serializes file moves per media item within this process.
	itemLocks sync.Map // media id -> *sync.Mutex
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the wall clock.
func WithClock(clock clockwork.Clock) Option {
	return func(e *Engine) {
		e.clock = clock
	}
}

// WithStore overrides the filesystem store.
func WithStore(store storage.Store) Option {
	return func(e *Engine) {
		e.store = store
	}
}

// New creates an Engine instance.
func New(cfg *config.Config, db *database.Client, opts ...Option) (*Engine, error) {
	pred, err := policy.FromConfig(string(cfg.Eligible))
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		cfg:    cfg,
		db:     db,
		store:  storage.NewDiskStore(),
		clock:  clockwork.NewRealClock(),
		policy: pred,
	}
	for _, opt := range opts {
		opt(engine)
	}

	sched, err := scheduler.New(engine.clock)
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	engine.scheduler = sched

	if cfg.TMDB != nil && cfg.TMDB.Enabled {
		client, err := tmdb.New(cfg.TMDB.APIKey, cfg.TMDB.PosterDir, cache.NewByType(cfg.Cache))
		if err != nil {
			return nil, fmt.Errorf("failed to create tmdb client: %w", err)
		}
		engine.tmdb = client
	}

	if err := engine.setupJobs(); err != nil {
		return nil, fmt.Errorf("failed to setup jobs: %w", err)
	}

	return engine, nil
}

// GetScheduler returns the scheduler instance for API access.
func (e *Engine) GetScheduler() *scheduler.Scheduler {
	return e.scheduler
}

// Clock returns the engine's wall clock.
func (e *Engine) Clock() clockwork.Clock {
	return e.clock
}

// Run starts the engine and all its background jobs.
func (e *Engine) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	e.scheduler.Start()

	<-ctx.Done()
	return nil
}

// Close stops the engine and cleans up resources.
func (e *Engine) Close() error {
	return e.scheduler.Stop()
}

// setupJobs configures all scheduled jobs.
func (e *Engine) setupJobs() error {
	scanSchedule := fmt.Sprintf("every %dm", e.cfg.ScanInterval)
	if err := e.scheduler.AddJob(
		"scan",
		"Library Scan",
		scanSchedule,
		gocron.DurationJob(minutes(e.cfg.ScanInterval)),
		func(ctx context.Context) error {
			report, err := e.Scan(ctx)
			if err != nil {
				return err
			}
			log.Info("Library scan finished",
				"added", report.Added,
				"revived", report.Revived,
				"vanished", report.Vanished,
				"skipped", len(report.Skipped))
			return nil
		},
	); err != nil {
		return fmt.Errorf("failed to add scan job: %w", err)
	}

	reapSchedule := fmt.Sprintf("every %dm", e.cfg.ReapInterval)
	if err := e.scheduler.AddJob(
		"reap",
		"Trash Reaper",
		reapSchedule,
		gocron.DurationJob(minutes(e.cfg.ReapInterval)),
		func(ctx context.Context) error {
			report, err := e.Reap(ctx)
			if err != nil {
				return err
			}
			log.Info("Reaper run finished", "reaped", report.Reaped, "missing", report.Missing)
			return nil
		},
	); err != nil {
		return fmt.Errorf("failed to add reap job: %w", err)
	}

	if e.tmdb != nil {
		if err := e.scheduler.AddJob(
			"posters",
			"Poster Lookup",
			"every 6h",
			gocron.DurationJob(minutes(6*60)),
			e.fetchPosters,
		); err != nil {
			return fmt.Errorf("failed to add poster job: %w", err)
		}
	}

	log.Info("Scheduled jobs configured successfully")
	return nil
}

func minutes(m int) time.Duration {
	return time.Duration(m) * time.Minute
}

// lockItem acquires the per-item move lock.
func (e *Engine) lockItem(id uint) func() {
	muAny, _ := e.itemLocks.LoadOrStore(id, &sync.Mutex{})
	mu := muAny.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
