// Package demogame is the repository's one reference game adapter: a
// minimal, deliberately undesigned two-player scoring game used to
// exercise the orchestration machinery end to end. Best-of-N rounds,
// 4-float actions range-checked to [-1, 1], per-player symmetric
// observations, and a round-data recording buffer — with no dependency
// beyond this repo.
package demogame

import (
	"github.com/comprl/server/internal/gameadapter"
	"github.com/comprl/server/internal/ids"
)

// Name is the registry key this adapter is installed under.
const Name = "demo"

func init() {
	gameadapter.Register(Name, New)
}

// NumRounds is the number of rounds in a match.
const NumRounds = 4

// roundRecord captures one round's actions for the post-game recording
// file.
type roundRecord struct {
	Actions map[ids.PlayerID][]float64 `json:"actions"`
	Score1  float64                    `json:"score1"`
	Score2  float64                    `json:"score2"`
}

// Game is a minimal two-player push-tally contest: each round both
// players submit a 4-float action in [-1, 1]^4; whoever's action sums
// higher wins the round. First to accumulate more round wins over
// NumRounds rounds wins the match.
type Game struct {
	player1 ids.PlayerID
	player2 ids.PlayerID

	remainingRounds int
	finished        bool

	scores map[ids.PlayerID]float64
	rounds []roundRecord
}

// New constructs a fresh demo game for exactly two players
// (gameadapter.Factory).
func New(players [2]ids.PlayerID) gameadapter.Adapter {
	return &Game{
		player1:         players[0],
		player2:         players[1],
		remainingRounds: NumRounds,
		scores: map[ids.PlayerID]float64{
			players[0]: 0,
			players[1]: 0,
		},
	}
}

// ValidateAction checks the action space: a 4-element vector with
// every component in [-1, 1]. Longer vectors are truncated to the
// first four elements before validation.
func (g *Game) ValidateAction(playerID ids.PlayerID, action []float64) bool {
	if len(action) < 4 {
		return false
	}
	for _, v := range action[:4] {
		if v < -1 || v > 1 {
			return false
		}
	}
	return true
}

// ObservationFor returns a small symmetric observation: the player's own
// running score, the opponent's running score, and the rounds remaining.
// The vector is ordered from the requesting player's own point of view,
// so the adapter itself handles the side-swap.
func (g *Game) ObservationFor(playerID ids.PlayerID) []float64 {
	own, other := g.scoresFor(playerID)
	return []float64{own, other, float64(g.remainingRounds)}
}

func (g *Game) scoresFor(playerID ids.PlayerID) (own, other float64) {
	if playerID == g.player1 {
		return g.scores[g.player1], g.scores[g.player2]
	}
	return g.scores[g.player2], g.scores[g.player1]
}

// Update advances one round given both players' actions (only the first
// four elements of each are summed), tallies the round winner, and
// reports whether the match is over.
func (g *Game) Update(actions map[ids.PlayerID][]float64) bool {
	a1 := sumFirstFour(actions[g.player1])
	a2 := sumFirstFour(actions[g.player2])

	switch {
	case a1 > a2:
		g.scores[g.player1]++
	case a2 > a1:
		g.scores[g.player2]++
	}

	g.rounds = append(g.rounds, roundRecord{
		Actions: cloneActions(actions),
		Score1:  g.scores[g.player1],
		Score2:  g.scores[g.player2],
	})

	g.remainingRounds--
	if g.remainingRounds <= 0 {
		g.finished = true
	}
	return g.finished
}

// PlayerWon reports whether playerID has the higher round-win count;
// false while the game is in progress.
func (g *Game) PlayerWon(playerID ids.PlayerID) bool {
	if !g.finished {
		return false
	}
	own, other := g.scoresFor(playerID)
	return own > other
}

// PlayerStats returns [own score, opponent score].
func (g *Game) PlayerStats(playerID ids.PlayerID) []float64 {
	own, other := g.scoresFor(playerID)
	return []float64{own, other}
}

// Score is the numeric reward fed into the rating update: the margin of
// round wins over the opponent.
func (g *Game) Score(playerID ids.PlayerID) float64 {
	own, other := g.scoresFor(playerID)
	return own - other
}

// Recording returns the accumulated per-round action/score buffer.
func (g *Game) Recording() interface{} {
	return g.rounds
}

func sumFirstFour(action []float64) float64 {
	var sum float64
	n := len(action)
	if n > 4 {
		n = 4
	}
	for _, v := range action[:n] {
		sum += v
	}
	return sum
}

func cloneActions(actions map[ids.PlayerID][]float64) map[ids.PlayerID][]float64 {
	clone := make(map[ids.PlayerID][]float64, len(actions))
	for k, v := range actions {
		cp := make([]float64, len(v))
		copy(cp, v)
		clone[k] = cp
	}
	return clone
}
