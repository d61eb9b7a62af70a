// Package playermgr is the registry of connected and authenticated
// player sessions, and the authentication path binding a session to a
// stored user by token.
package playermgr

import (
	"log"
	"sync"

	"github.com/comprl/server/internal/ids"
	"github.com/comprl/server/internal/session"
	"github.com/comprl/server/internal/store"
)

// Manager holds every connected session, and separately every session
// that has successfully authenticated against the store.
type Manager struct {
	st *store.Store

	mu            sync.RWMutex
	connected     map[ids.PlayerID]*session.Session
	authenticated map[ids.PlayerID]*session.Session
}

func New(st *store.Store) *Manager {
	return &Manager{
		st:            st,
		connected:     make(map[ids.PlayerID]*session.Session),
		authenticated: make(map[ids.PlayerID]*session.Session),
	}
}

// Add registers a newly connected session.
func (m *Manager) Add(sess *session.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected[sess.PlayerID] = sess
}

// Remove drops a session from both maps.
func (m *Manager) Remove(sess *session.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.connected, sess.PlayerID)
	delete(m.authenticated, sess.PlayerID)
}

// Auth looks the presented token up in the store; on a hit it binds the
// session to that user and moves it into the authenticated set.
func (m *Manager) Auth(sess *session.Session, token string) bool {
	u, err := m.st.GetUserByToken(token)
	if err != nil {
		if err != store.ErrNotFound {
			log.Printf("[playermgr] auth lookup failed for player %s: %v", sess.PlayerID, err)
		}
		return false
	}

	sess.SetAuthenticated(int64(u.UserID), u.Username)

	m.mu.Lock()
	m.authenticated[sess.PlayerID] = sess
	m.mu.Unlock()

	return true
}

// Get returns the connected session for a player_id, if any.
func (m *Manager) Get(playerID ids.PlayerID) (*session.Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.connected[playerID]
	return sess, ok
}

// IsAuthenticated reports whether a player_id has an authenticated
// session right now.
func (m *Manager) IsAuthenticated(playerID ids.PlayerID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.authenticated[playerID]
	return ok
}

// BroadcastError sends notify_error to every connected session — used
// by the server loop during shutdown.
func (m *Manager) BroadcastError(msg string) {
	m.mu.RLock()
	sessions := make([]*session.Session, 0, len(m.connected))
	for _, s := range m.connected {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	for _, s := range sessions {
		s.NotifyError(msg)
	}
}

// DisconnectAll tears down every connected session (graceful shutdown).
func (m *Manager) DisconnectAll(reason string) {
	m.mu.RLock()
	sessions := make([]*session.Session, 0, len(m.connected))
	for _, s := range m.connected {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	for _, s := range sessions {
		s.Disconnect(reason)
	}
}

// GetMatchmakingParameters is a thin adapter over the store: the
// current (mu, sigma) for a user.
func (m *Manager) GetMatchmakingParameters(userID int) (mu, sigma float64, err error) {
	return m.st.GetMatchmakingParameters(userID)
}

// UpdateMatchmakingParameters writes a user's new (mu, sigma) back
// after a rating update.
func (m *Manager) UpdateMatchmakingParameters(userID int, mu, sigma float64) error {
	return m.st.UpdateMatchmakingParameters(userID, mu, sigma)
}

// Count returns (connected, authenticated) counts for the monitor
// snapshot.
func (m *Manager) Count() (connected, authenticated int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connected), len(m.authenticated)
}

// ConnectedPlayer is one row of the monitor snapshot's "Connected
// players" block.
type ConnectedPlayer struct {
	Username string
	PlayerID ids.PlayerID
}

// ConnectedSnapshot returns every connected, authenticated session's
// username and player_id.
func (m *Manager) ConnectedSnapshot() []ConnectedPlayer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ConnectedPlayer, 0, len(m.authenticated))
	for pid, sess := range m.authenticated {
		out = append(out, ConnectedPlayer{Username: sess.Username, PlayerID: pid})
	}
	return out
}
