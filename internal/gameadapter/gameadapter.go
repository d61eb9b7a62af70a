// Package gameadapter defines the pluggable two-player game surface
// consumed by a game instance. Concrete rules live outside the core
// server; internal/demogame is the repo's one reference implementation.
package gameadapter

import "github.com/comprl/server/internal/ids"

// Adapter is the capability set a concrete game must implement. The
// core never depends on a specific game's rules, only on this
// interface.
type Adapter interface {
	// ValidateAction reports whether action is well-formed for this
	// game (domain-level validity, not outcome).
	ValidateAction(playerID ids.PlayerID, action []float64) bool

	// ObservationFor returns the observation a given player should see
	// this tick (handles symmetry/side-swap).
	ObservationFor(playerID ids.PlayerID) []float64

	// Update advances one tick given both players' actions and reports
	// whether the whole match is now over (not merely one round).
	Update(actions map[ids.PlayerID][]float64) (finished bool)

	// PlayerWon is a post-game query; false while the game is still
	// in progress.
	PlayerWon(playerID ids.PlayerID) bool

	// PlayerStats is a post-game numeric summary sent to the agent via
	// notify_end.
	PlayerStats(playerID ids.PlayerID) []float64

	// Score is the numeric reward fed into the rating update.
	Score(playerID ids.PlayerID) float64

	// Recording returns the accumulated per-tick action/game-info
	// buffer, serialized to a per-game file when the match ends.
	Recording() interface{}
}

// Factory constructs a fresh Adapter for one match between two players.
// A concrete factory is registered at startup by name.
type Factory func(players [2]ids.PlayerID) Adapter

var registry = map[string]Factory{}

// Register adds a named game adapter factory. Call from an init() in
// the adapter's package.
func Register(name string, f Factory) {
	registry[name] = f
}

// Lookup returns the registered factory for name, if any.
func Lookup(name string) (Factory, bool) {
	f, ok := registry[name]
	return f, ok
}
