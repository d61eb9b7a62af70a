// Command comprl is the competition server binary: `serve` runs the
// server loop, `migrate` brings the database schema up to date,
// `score-decay` runs the sigma-decay job once, and `seed-user`
// registers a user from the command line.
package main

import (
	"log"

	"github.com/spf13/cobra"
)

func main() {
	log.SetFlags(log.LstdFlags)
	cobra.CheckErr(newRootCmd().Execute())
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "comprl",
		Short:         "CompRL competition server",
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newMigrateCmd())
	cmd.AddCommand(newScoreDecayCmd())
	cmd.AddCommand(newSeedUserCmd())

	return cmd
}
