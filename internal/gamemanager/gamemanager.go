// Package gamemanager owns the active game instances: it holds every
// running game keyed by game id, starts new games, and persists
// finished ones.
package gamemanager

import (
	"context"
	"log"
	"sync"

	"github.com/comprl/server/internal/gameadapter"
	"github.com/comprl/server/internal/gameinstance"
	"github.com/comprl/server/internal/ids"
	"github.com/comprl/server/internal/session"
	"github.com/comprl/server/internal/store"
)

// Manager owns every currently active game instance.
type Manager struct {
	st      *store.Store
	dataDir string

	mu     sync.Mutex
	active map[ids.GameID]*gameinstance.Instance

	onGameStart []func(*gameinstance.Instance)
	onGameEnd   []func(*gameinstance.Instance)
}

func New(st *store.Store, dataDir string) *Manager {
	return &Manager{
		st:      st,
		dataDir: dataDir,
		active:  make(map[ids.GameID]*gameinstance.Instance),
	}
}

// OnGameEnd registers a callback invoked after a game's result has been
// persisted.
func (m *Manager) OnGameEnd(cb func(*gameinstance.Instance)) {
	m.mu.Lock()
	m.onGameEnd = append(m.onGameEnd, cb)
	m.mu.Unlock()
}

// OnGameStart registers a callback invoked right after a new game
// instance has been started.
func (m *Manager) OnGameStart(cb func(*gameinstance.Instance)) {
	m.mu.Lock()
	m.onGameStart = append(m.onGameStart, cb)
	m.mu.Unlock()
}

// StartGame creates a new game instance for two sessions, registers its
// own endGame as a finish callback, and starts it.
func (m *Manager) StartGame(ctx context.Context, factory gameadapter.Factory, sess1, sess2 *session.Session, userID1, userID2 int) *gameinstance.Instance {
	gameID := ids.NewGameID()
	adapter := factory([2]ids.PlayerID{sess1.PlayerID, sess2.PlayerID})

	inst := gameinstance.New(gameID, sess1, sess2, userID1, userID2, adapter, m.dataDir)
	inst.OnFinish(m.endGame)

	m.mu.Lock()
	m.active[gameID] = inst
	startCallbacks := append([]func(*gameinstance.Instance){}, m.onGameStart...)
	m.mu.Unlock()

	inst.Start(ctx)

	for _, cb := range startCallbacks {
		cb(inst)
	}

	return inst
}

// endGame is idempotent: if the game is still present in the active
// map, persist its result and remove it.
func (m *Manager) endGame(inst *gameinstance.Instance) {
	m.mu.Lock()
	_, present := m.active[inst.GameID]
	if present {
		delete(m.active, inst.GameID)
	}
	callbacks := append([]func(*gameinstance.Instance){}, m.onGameEnd...)
	m.mu.Unlock()

	if !present {
		return
	}

	result, ok := inst.GetResult()
	if !ok {
		log.Printf("[gamemanager] game %s ended with a missing user id, skipping persistence", inst.GameID)
		return
	}

	if err := m.st.InsertGameResult(result); err != nil {
		log.Printf("[gamemanager] failed to persist result for game %s: %v", inst.GameID, err)
	}

	for _, cb := range callbacks {
		cb(inst)
	}
}

// ForceGameEnd force-ends every active game that playerID is a member
// of. Linear scan over active games is fine: active is bounded by
// max_parallel_games.
func (m *Manager) ForceGameEnd(playerID ids.PlayerID) {
	m.mu.Lock()
	var matches []*gameinstance.Instance
	for _, inst := range m.active {
		for _, p := range inst.Players() {
			if p == playerID {
				matches = append(matches, inst)
				break
			}
		}
	}
	m.mu.Unlock()

	for _, inst := range matches {
		inst.ForceEnd(playerID)
	}
}

// Count returns the number of currently active games, for the monitor
// snapshot and the parallel-game cap.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

// Games returns a snapshot slice of the currently active game ids.
func (m *Manager) Games() []ids.GameID {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ids.GameID, 0, len(m.active))
	for id := range m.active {
		out = append(out, id)
	}
	return out
}

// ActiveGame is one row of the monitor snapshot's "Games" block.
type ActiveGame struct {
	GameID  ids.GameID
	Player1 ids.PlayerID
	Player2 ids.PlayerID
}

// ActiveSnapshot returns the active games with their player pairs.
func (m *Manager) ActiveSnapshot() []ActiveGame {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ActiveGame, 0, len(m.active))
	for id, inst := range m.active {
		players := inst.Players()
		out = append(out, ActiveGame{GameID: id, Player1: players[0], Player2: players[1]})
	}
	return out
}
