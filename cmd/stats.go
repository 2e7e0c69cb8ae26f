package cmd

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/jon4hz/sweepcrew/internal/config"
	"github.com/jon4hz/sweepcrew/internal/database"
	"github.com/jon4hz/sweepcrew/internal/engine"
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show library statistics",
	Long:  `Display media counts and sizes per lifecycle status plus disk usage per library root.`,
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

		stats, err := eng.GetStats(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to get stats: %w", err)
		}

		fmt.Println("Library Statistics:")
		for _, status := range []string{"active", "trashed", "permanent", "gone"} {
			s := stats.ByStatus[status]
			fmt.Printf("  %-9s %5d items, %s\n", status+":", s.Count, s.Size)
		}

		if len(stats.Disks) > 0 {
			fmt.Println("\nDisk Usage:")
			for _, d := range stats.Disks {
				fmt.Printf("  %s: %s free of %s (%.1f%% used)\n",
					d.Root, humanize.IBytes(d.FreeBytes), humanize.IBytes(d.TotalBytes), d.UsedPercent)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
