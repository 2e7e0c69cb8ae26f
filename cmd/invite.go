package cmd

import (
	"fmt"

	"github.com/jon4hz/sweepcrew/internal/auth"
	"github.com/jon4hz/sweepcrew/internal/config"
	"github.com/jon4hz/sweepcrew/internal/database"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"
)

var inviteCmd = &cobra.Command{
	Use:   "invite",
	Short: "Create a registration invite token",
	Long:  `Generate a single-use invite token that lets a new crew member register an account.`,
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

		authSvc := auth.New(db, clockwork.NewRealClock(), cfg.SessionMaxAge)
		token, err := authSvc.CreateInvite(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to create invite: %w", err)
		}

		fmt.Println(token)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(inviteCmd)
}
