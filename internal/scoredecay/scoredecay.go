// Package scoredecay implements the periodic sigma-increment job:
// every interval_minutes, add delta to every user's sigma so that
// players who stop competing slowly drift down the leaderboard
// (mu - 3*sigma) instead of keeping a stale high score forever.
package scoredecay

import (
	"context"
	"log"
	"time"

	"github.com/comprl/server/internal/config"
	"github.com/comprl/server/internal/store"
)

// Run adjusts every user's sigma by getConfig().Delta once per
// getConfig().IntervalMinutes, until ctx is canceled. IntervalMinutes ==
// 0 disables the job entirely. The config
// is re-read from the Loader on every tick so that score_decay.* stays
// hot-reloadable.
func Run(ctx context.Context, st *store.Store, cfgLoader *config.Loader) {
	for {
		interval := cfgLoader.ScoreDecay().IntervalMinutes
		if interval <= 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Minute):
				continue
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Duration(interval) * time.Minute):
			RunOnce(st, cfgLoader.ScoreDecay().Delta)
		}
	}
}

// RunOnce adds delta to every user's sigma immediately. Used both by
// the Run loop and by the `comprl score-decay` one-shot CLI subcommand.
func RunOnce(st *store.Store, delta float64) {
	n, err := st.DecayAllSigmas(delta)
	if err != nil {
		log.Printf("[scoredecay] decay failed: %v", err)
		return
	}
	log.Printf("[scoredecay] adjusted sigma by %.4f for %d users", delta, n)
}
