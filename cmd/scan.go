package cmd

import (
	"fmt"

	"github.com/jon4hz/sweepcrew/internal/config"
	"github.com/jon4hz/sweepcrew/internal/database"
	"github.com/jon4hz/sweepcrew/internal/engine"
	"github.com/spf13/cobra"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run a single library scan",
	Long:  `Scan all configured library roots once, record discovered media and retire vanished entries, then exit.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(rootCmdPersistentFlags.ConfigFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if err := cfg.EnsureLibraryDirs(); err != nil {
			return fmt.Errorf("library setup failed: %w", err)
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

		report, err := eng.Scan(cmd.Context())
		if err != nil {
			return fmt.Errorf("scan failed: %w", err)
		}

		fmt.Println("Scan Report:")
		fmt.Printf("Seen: %d\n", report.Seen)
		fmt.Printf("Added: %d\n", report.Added)
		fmt.Printf("Revived: %d\n", report.Revived)
		fmt.Printf("Vanished: %d\n", report.Vanished)
		if len(report.Skipped) > 0 {
			fmt.Println("\nSkipped Paths:")
			for _, skip := range report.Skipped {
				fmt.Printf("  %s: %s\n", skip.Path, skip.Reason)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(scanCmd)
}
