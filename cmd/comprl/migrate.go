package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/comprl/server/internal/config"
	"github.com/comprl/server/internal/store"
)

func newMigrateCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Bring the database schema up to date",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("config error: %w", err)
			}
			if err := store.RunMigrations(cfg.DatabasePath); err != nil {
				return fmt.Errorf("migration error: %w", err)
			}
			fmt.Printf("database at %s is up to date\n", cfg.DatabasePath)
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "comprl.toml", "path to the TOML config file")
	return cmd
}
