package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/comprl/server/internal/config"
	"github.com/comprl/server/internal/scoredecay"
	"github.com/comprl/server/internal/store"
)

// newScoreDecayCmd runs the sigma-decay job once, for invocation from
// cron, as an alternative to the long-running ticker loop `serve` uses.
func newScoreDecayCmd() *cobra.Command {
	var configPath string
	var delta float64

	cmd := &cobra.Command{
		Use:   "score-decay",
		Short: "Add delta to every user's sigma once",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, cfgLoader, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("config error: %w", err)
			}

			st, err := store.Connect(cfg.DatabasePath)
			if err != nil {
				return fmt.Errorf("database error: %w", err)
			}
			defer st.Close()

			if !cmd.Flags().Changed("delta") {
				delta = cfgLoader.ScoreDecay().Delta
			}
			scoredecay.RunOnce(st, delta)
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "comprl.toml", "path to the TOML config file")
	cmd.Flags().Float64Var(&delta, "delta", 0.5, "amount added to every user's sigma (default: comprl.toml's score_decay.delta)")
	return cmd
}
