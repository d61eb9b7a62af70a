// Package gameinstance runs one match: it polls both sessions for
// actions each tick, applies them through a game adapter, detects the
// end of the match, and emits a result.
//
// Each game instance runs in its own goroutine and uses
// golang.org/x/sync/errgroup as the join barrier for the concurrent
// per-tick get_action RPCs: the adapter's update runs exactly once per
// tick, after both actions have resolved.
package gameinstance

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/comprl/server/internal/gameadapter"
	"github.com/comprl/server/internal/ids"
	"github.com/comprl/server/internal/session"
	"github.com/comprl/server/internal/store"
)

// player bundles what the instance needs about one participant: its
// session (a borrowed, non-owning reference — owned by the player
// manager) and the stable user id persisted results key off.
type player struct {
	id     ids.PlayerID
	userID int
	sess   *session.Session
}

// Instance is one running match.
type Instance struct {
	GameID ids.GameID

	players   [2]player
	adapter   gameadapter.Adapter
	startTime time.Time
	dataDir   string

	mu                 sync.Mutex
	disconnectedPlayer *ids.PlayerID
	finished           bool

	finishOnce sync.Once
	onFinish   []func(*Instance)
}

// New constructs a game instance for exactly two sessions. userID1/
// userID2 correspond positionally to sess1/sess2.
func New(gameID ids.GameID, sess1, sess2 *session.Session, userID1, userID2 int, adapter gameadapter.Adapter, dataDir string) *Instance {
	return &Instance{
		GameID: gameID,
		players: [2]player{
			{id: sess1.PlayerID, userID: userID1, sess: sess1},
			{id: sess2.PlayerID, userID: userID2, sess: sess2},
		},
		adapter: adapter,
		dataDir: dataDir,
	}
}

// OnFinish registers a callback invoked exactly once when the game ends,
// whether by normal completion or forced disconnect.
func (inst *Instance) OnFinish(cb func(*Instance)) {
	inst.mu.Lock()
	inst.onFinish = append(inst.onFinish, cb)
	inst.mu.Unlock()
}

// Start announces the game to both players and begins the tick loop in
// a new goroutine. ctx bounds the instance's lifetime; canceling it
// force-ends the game for both players.
func (inst *Instance) Start(ctx context.Context) {
	inst.startTime = time.Now()
	for _, p := range inst.players {
		p.sess.NotifyStart(inst.GameID)
	}
	go inst.run(ctx)
}

func (inst *Instance) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			inst.ForceEnd(inst.players[0].id)
			return
		default:
		}

		if inst.isDisconnected() {
			inst.end("Player disconnected")
			return
		}

		done, err := inst.tick(ctx)
		if err != nil {
			return
		}
		if done {
			inst.end("Player won")
			return
		}
	}
}

// tick performs one round: issue concurrent get_action RPCs to both
// players (the join barrier), validate, apply via the adapter, and
// report whether the match is now over.
func (inst *Instance) tick(ctx context.Context) (finished bool, err error) {
	actions := make(map[ids.PlayerID][]float64, 2)
	var mu sync.Mutex
	var remoteErrored bool

	g, _ := errgroup.WithContext(ctx)
	for _, p := range inst.players {
		p := p
		g.Go(func() error {
			obs := inst.adapter.ObservationFor(p.id)
			action, callErr := p.sess.GetAction(obs)
			if callErr != nil {
				if session.IsRemoteError(callErr) {
					// A remote error from the agent's own handler is
					// logged with no state change: the agent stays
					// connected and the round is retried next tick.
					log.Printf("[gameinstance] remote error from player %s in game %s: %v", p.id, inst.GameID, callErr)
					mu.Lock()
					remoteErrored = true
					mu.Unlock()
					return nil
				}
				inst.flagDisconnected(p.id)
				return callErr
			}
			mu.Lock()
			actions[p.id] = action
			mu.Unlock()
			return nil
		})
	}

	if waitErr := g.Wait(); waitErr != nil {
		// One or both RPCs failed by timeout or transport disconnect;
		// the disconnect path above has already flagged the player.
		inst.end("Player disconnected")
		return false, waitErr
	}

	if inst.isDisconnected() {
		inst.end("Player disconnected")
		return false, fmt.Errorf("gameinstance: player disconnected mid-tick")
	}

	if remoteErrored {
		return false, nil
	}

	for _, p := range inst.players {
		if !inst.adapter.ValidateAction(p.id, actions[p.id]) {
			p.sess.Disconnect("Invalid action")
			inst.flagDisconnected(p.id)
			inst.end("Invalid action")
			return false, fmt.Errorf("gameinstance: invalid action from %s", p.id)
		}
	}

	return inst.adapter.Update(actions), nil
}

func (inst *Instance) flagDisconnected(playerID ids.PlayerID) {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	if inst.disconnectedPlayer == nil {
		id := playerID
		inst.disconnectedPlayer = &id
	}
}

func (inst *Instance) isDisconnected() bool {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	return inst.disconnectedPlayer != nil
}

// ForceEnd marks playerID as disconnected and ends the game.
// Idempotent.
func (inst *Instance) ForceEnd(playerID ids.PlayerID) {
	inst.flagDisconnected(playerID)
	inst.end("Player disconnected")
}

// end is the shared tail of normal completion and forced termination:
// serialize the recording (unless a player disconnected), fire finish
// callbacks, and notify still-connected players.
func (inst *Instance) end(reason string) {
	inst.finishOnce.Do(func() {
		inst.mu.Lock()
		inst.finished = true
		disconnected := inst.disconnectedPlayer != nil
		callbacks := append([]func(*Instance){}, inst.onFinish...)
		inst.mu.Unlock()

		if !disconnected {
			if err := inst.persistRecording(); err != nil {
				log.Printf("[gameinstance] recording write failed for game %s: %v", inst.GameID, err)
			}
		}

		for _, cb := range callbacks {
			cb(inst)
		}

		for _, p := range inst.players {
			if !p.sess.IsConnected() {
				continue
			}
			p.sess.NotifyEnd(inst.adapter.PlayerWon(p.id), inst.adapter.PlayerStats(p.id))
		}

		log.Printf("[gameinstance] game %s ended: %s", inst.GameID, reason)
	})
}

func (inst *Instance) persistRecording() error {
	dir := filepath.Join(inst.dataDir, "game_actions")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create recording dir: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("%s.json", inst.GameID))
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create recording file: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(inst.adapter.Recording())
}

// GetResult builds the persisted outcome of this game. Returns ok=false only if a user id is missing — a
// recoverable bug condition the caller should log and skip persisting.
func (inst *Instance) GetResult() (store.GameResult, bool) {
	inst.mu.Lock()
	disconnected := inst.disconnectedPlayer
	inst.mu.Unlock()

	p1, p2 := inst.players[0], inst.players[1]
	if p1.userID == 0 || p2.userID == 0 {
		return store.GameResult{}, false
	}

	result := store.GameResult{
		GameID:    string(inst.GameID),
		User1ID:   p1.userID,
		User2ID:   p2.userID,
		Score1:    inst.adapter.Score(p1.id),
		Score2:    inst.adapter.Score(p2.id),
		StartTime: inst.startTime,
	}

	switch {
	case disconnected != nil:
		result.EndState = store.EndStateDisconnected
		for _, p := range inst.players {
			if p.id == *disconnected {
				id := p.userID
				result.DisconnectedID = &id
			}
		}
	case inst.adapter.PlayerWon(p1.id):
		result.EndState = store.EndStateWin
		id := p1.userID
		result.WinnerID = &id
	case inst.adapter.PlayerWon(p2.id):
		result.EndState = store.EndStateWin
		id := p2.userID
		result.WinnerID = &id
	default:
		result.EndState = store.EndStateDraw
	}

	return result, true
}

// Players returns the two participating player_ids, so the game and
// matchmaking managers can index by membership without reaching into
// instance internals.
func (inst *Instance) Players() [2]ids.PlayerID {
	return [2]ids.PlayerID{inst.players[0].id, inst.players[1].id}
}

// UserIDs returns the two participating user_ids in the same order as
// Players.
func (inst *Instance) UserIDs() [2]int {
	return [2]int{inst.players[0].userID, inst.players[1].userID}
}
