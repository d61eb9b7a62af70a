package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/comprl/server/internal/config"
	"github.com/comprl/server/internal/store"
)

// newSeedUserCmd registers a user directly against the database, for
// operators bootstrapping accounts without going through registration.
func newSeedUserCmd() *cobra.Command {
	var (
		configPath      string
		username        string
		password        string
		role            string
		registrationKey string
	)

	cmd := &cobra.Command{
		Use:   "seed-user",
		Short: "Register a user directly against the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			if username == "" || password == "" {
				return fmt.Errorf("--username and --password are required")
			}

			cfg, _, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("config error: %w", err)
			}

			if err := store.RunMigrations(cfg.DatabasePath); err != nil {
				return fmt.Errorf("migration error: %w", err)
			}

			st, err := store.Connect(cfg.DatabasePath)
			if err != nil {
				return fmt.Errorf("database error: %w", err)
			}
			defer st.Close()

			u, err := st.CreateUser(username, password, store.Role(role), registrationKey, cfg.RegistrationKey)
			if err != nil {
				return fmt.Errorf("create user: %w", err)
			}

			fmt.Printf("created user %q (user_id=%d role=%s) token=%s\n", u.Username, u.UserID, u.Role, u.Token)
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "comprl.toml", "path to the TOML config file")
	cmd.Flags().StringVar(&username, "username", "", "username to register")
	cmd.Flags().StringVar(&password, "password", "", "password for the new user")
	cmd.Flags().StringVar(&role, "role", string(store.RoleUser), "role: user, bot, or admin")
	cmd.Flags().StringVar(&registrationKey, "registration-key", "", "registration key, if comprl.toml sets one")
	return cmd
}
