package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-co-op/gocron/v2"
	"github.com/jon4hz/sweepcrew/internal/api"
	"github.com/jon4hz/sweepcrew/internal/auth"
	"github.com/jon4hz/sweepcrew/internal/config"
	"github.com/jon4hz/sweepcrew/internal/database"
	"github.com/jon4hz/sweepcrew/internal/engine"
	"github.com/jon4hz/sweepcrew/internal/watcher"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the SweepCrew server",
	Long:  `Start the SweepCrew server: scheduled library scans, consensus handling, the trash reaper and the HTTP API.`,
	Run:   startServer,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func startServer(cmd *cobra.Command, _ []string) {
	cfg, err := config.Load(rootCmdPersistentFlags.ConfigFile)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.EnsureLibraryDirs(); err != nil {
		log.Fatalf("library setup failed: %v", err)
	}

	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("failed to initialize database: %v", err)
	}
	defer db.Close() //nolint:errcheck

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	eng, err := engine.New(cfg, db)
	if err != nil {
		log.Fatalf("failed to create engine: %v", err)
	}

	authSvc := auth.New(db, eng.Clock(), cfg.SessionMaxAge)
	if cfg.Admin != nil {
		if err := authSvc.SeedAdmin(ctx, cfg.Admin.Username, cfg.Admin.Password); err != nil {
			log.Fatalf("failed to seed admin account: %v", err)
		}
	}

	if err := eng.GetScheduler().AddJob(
		"session_cleanup",
		"Session Cleanup",
		"every 1h",
		gocron.DurationJob(time.Hour),
		authSvc.CleanupExpired,
	); err != nil {
		log.Fatalf("failed to add session cleanup job: %v", err)
	}

	server := api.New(cfg, eng, authSvc, db)

	go func() {
		if err := eng.Run(ctx); err != nil {
			log.Error("engine error", "error", err)
		}
	}()

	go func() {
		if err := server.Run(ctx); err != nil {
			log.Error("API server error", "error", err)
		}
	}()

	if cfg.Watch {
		w, err := watcher.New(db, eng.GetScheduler(), cfg.Libraries)
		if err != nil {
			log.Fatalf("failed to create filesystem watcher: %v", err)
		}
		go func() {
			if err := w.Run(ctx); err != nil {
				log.Error("filesystem watcher error", "error", err)
			}
		}()
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	log.Info("sweepcrew started successfully")
	<-c
	log.Info("shutting down gracefully...")

	cancel()
	if err := eng.Close(); err != nil {
		log.Error("failed to stop engine", "error", err)
	}
	time.Sleep(2 * time.Second)
}
