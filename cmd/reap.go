package cmd

import (
	"fmt"

	"github.com/jon4hz/sweepcrew/internal/config"
	"github.com/jon4hz/sweepcrew/internal/database"
	"github.com/jon4hz/sweepcrew/internal/engine"
	"github.com/spf13/cobra"
)

var reapCmd = &cobra.Command{
	Use:   "reap",
	Short: "Run a single reaper pass",
	Long:  `Delete all trashed media whose grace period has expired, then exit.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(rootCmdPersistentFlags.ConfigFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		db, err := database.New(cfg.DatabasePath)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		defer db.Close() //nolint:errcheck

		eng, err := engine.New(cfg, db)
		if err != nil {
			return fmt.Errorf("failed to create engine: %w", err)
		}
		defer eng.Close() //nolint:errcheck

		report, err := eng.Reap(cmd.Context())
		if err != nil {
			return fmt.Errorf("reap failed: %w", err)
		}

		fmt.Println("Reap Report:")
		fmt.Printf("Reaped: %d\n", report.Reaped)
		fmt.Printf("Missing: %d\n", report.Missing)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(reapCmd)
}
