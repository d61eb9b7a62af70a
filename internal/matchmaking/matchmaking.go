// Package matchmaking implements the matchmaking manager: a FIFO queue
// of waiting players, a per-tick stochastic pairing pass weighted by
// predicted match quality, and rating updates once a game ends.
package matchmaking

import (
	"context"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/comprl/server/internal/gameadapter"
	"github.com/comprl/server/internal/gameinstance"
	"github.com/comprl/server/internal/gamemanager"
	"github.com/comprl/server/internal/ids"
	"github.com/comprl/server/internal/playermgr"
	"github.com/comprl/server/internal/rating"
	"github.com/comprl/server/internal/session"
	"github.com/comprl/server/internal/store"
)

// Config holds the matchmaking tunables.
type Config struct {
	MatchQualityThreshold       float64
	PercentageMinPlayersWaiting float64
	PercentalTimeBonus          float64
	MaxParallelGames            int
}

// DefaultConfig is the tuning the server ships with.
func DefaultConfig() Config {
	return Config{
		MatchQualityThreshold:       0.3,
		PercentageMinPlayersWaiting: 0.1,
		PercentalTimeBonus:          0.1,
		MaxParallelGames:            100,
	}
}

type entry struct {
	playerID   ids.PlayerID
	userID     int
	username   string
	role       store.Role
	mu, sigma  float64
	enqueuedAt time.Time
}

// Manager owns the waiting queue and drives the per-tick matching pass.
type Manager struct {
	cfgMu sync.RWMutex
	cfg   Config

	st      *store.Store
	players *playermgr.Manager
	games   *gamemanager.Manager
	factory gameadapter.Factory

	mu          sync.Mutex
	queue       []entry
	lastQuality []QualityScore

	onRatingUpdate []func(userID int, mu, sigma float64)
}

// OnRatingUpdate registers a callback invoked whenever EndGame writes a
// new (mu, sigma) pair back for a user.
func (m *Manager) OnRatingUpdate(cb func(userID int, mu, sigma float64)) {
	m.mu.Lock()
	m.onRatingUpdate = append(m.onRatingUpdate, cb)
	m.mu.Unlock()
}

// SetConfig replaces the matchmaking tunables in effect for subsequent
// Update() calls. Safe to call concurrently with Update — the
// `matchmaking.*` config subtable is hot-reloadable at runtime without
// restart.
func (m *Manager) SetConfig(cfg Config) {
	m.cfgMu.Lock()
	m.cfg = cfg
	m.cfgMu.Unlock()
}

func (m *Manager) getConfig() Config {
	m.cfgMu.RLock()
	defer m.cfgMu.RUnlock()
	return m.cfg
}

// QueueEntry is one row of the monitor snapshot's "Players in queue"
// block.
type QueueEntry struct {
	Username   string
	PlayerID   ids.PlayerID
	EnqueuedAt time.Time
}

// QualityScore is one row of the monitor snapshot's "Match quality
// scores" block.
type QualityScore struct {
	User1 string
	User2 string
	Score float64
}

func New(cfg Config, st *store.Store, players *playermgr.Manager, games *gamemanager.Manager, factory gameadapter.Factory) *Manager {
	return &Manager{
		cfg:     cfg,
		st:      st,
		players: players,
		games:   games,
		factory: factory,
	}
}

// Config returns the matchmaking tunables currently in effect.
func (m *Manager) Config() Config {
	return m.getConfig()
}

// TryMatch asks the session is_ready; on true, notifies the agent it's
// waiting in queue and appends a queue entry.
func (m *Manager) TryMatch(sess *session.Session) {
	ready, err := sess.IsReady()
	if err != nil || !ready {
		return
	}

	u, err := m.st.GetUser(int(sess.UserID))
	if err != nil {
		log.Printf("[matchmaking] try_match: user lookup failed for player %s: %v", sess.PlayerID, err)
		return
	}

	sess.NotifyInfo("Waiting in queue")

	m.mu.Lock()
	m.queue = append(m.queue, entry{
		playerID:   sess.PlayerID,
		userID:     u.UserID,
		username:   u.Username,
		role:       u.Role,
		mu:         u.Mu,
		sigma:      u.Sigma,
		enqueuedAt: time.Now(),
	})
	m.mu.Unlock()
}

// Remove drops every queue entry for playerID (defensive — at most one
// exists).
func (m *Manager) Remove(playerID ids.PlayerID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.queue[:0]
	for _, e := range m.queue {
		if e.playerID != playerID {
			out = append(out, e)
		}
	}
	m.queue = out
}

// QueueLen returns the current queue length, for the monitor snapshot.
func (m *Manager) QueueLen() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// QueueSnapshot returns the current queue contents, for the monitor
// snapshot's "Players in queue" block.
func (m *Manager) QueueSnapshot() []QueueEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]QueueEntry, 0, len(m.queue))
	for _, e := range m.queue {
		out = append(out, QueueEntry{Username: e.username, PlayerID: e.playerID, EnqueuedAt: e.enqueuedAt})
	}
	return out
}

// LastQualityScores returns the pairwise quality scores computed during
// the most recent Update() call.
func (m *Manager) LastQualityScores() []QualityScore {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]QualityScore{}, m.lastQuality...)
}

func legal(a, b entry) bool {
	if a.userID == b.userID {
		return false
	}
	if a.role == store.RoleBot && b.role == store.RoleBot {
		return false
	}
	return true
}

func quality(cfg Config, a, b entry) float64 {
	combinedWaitingMinutes := (time.Since(a.enqueuedAt).Seconds() + time.Since(b.enqueuedAt).Seconds()) / 60
	waitingBonus := (combinedWaitingMinutes - 1) * cfg.PercentalTimeBonus
	if waitingBonus < 0 {
		waitingBonus = 0
	}

	ra := rating.CreateRating(a.mu, a.sigma)
	rb := rating.CreateRating(b.mu, b.sigma)
	drawProb := rating.PredictDraw(ra, rb)

	return drawProb + waitingBonus
}

// Update performs one matching pass.
// authenticatedCount is the number of currently authenticated sessions,
// used for the minimum-waiting-fraction gate.
func (m *Manager) Update(ctx context.Context, authenticatedCount int) {
	cfg := m.getConfig()

	m.mu.Lock()
	queue := append([]entry{}, m.queue...)
	m.mu.Unlock()

	m.mu.Lock()
	m.lastQuality = nil
	m.mu.Unlock()

	minWaiting := int(float64(authenticatedCount) * cfg.PercentageMinPlayersWaiting)
	if len(queue) < minWaiting {
		return
	}

	var qualityScores []QualityScore
	var toRemove []ids.PlayerID

	i := 0
	for i < len(queue)-1 {
		if m.games.Count() >= cfg.MaxParallelGames {
			break
		}

		p1 := queue[i]
		type candidate struct {
			idx int
			q   float64
		}
		var candidates []candidate
		for j := i + 1; j < len(queue); j++ {
			p2 := queue[j]
			if !legal(p1, p2) {
				continue
			}
			q := quality(cfg, p1, p2)
			qualityScores = append(qualityScores, QualityScore{User1: p1.username, User2: p2.username, Score: q})
			if q <= cfg.MatchQualityThreshold {
				continue
			}
			candidates = append(candidates, candidate{idx: j, q: q})
		}

		if len(candidates) == 0 {
			i++
			continue
		}

		var total float64
		for _, c := range candidates {
			total += c.q
		}
		pick := rand.Float64() * total
		chosen := candidates[len(candidates)-1]
		var acc float64
		for _, c := range candidates {
			acc += c.q
			if pick <= acc {
				chosen = c
				break
			}
		}

		p2 := queue[chosen.idx]

		sess1, ok1 := m.players.Get(p1.playerID)
		sess2, ok2 := m.players.Get(p2.playerID)
		if ok1 && ok2 {
			toRemove = append(toRemove, p1.playerID, p2.playerID)
			m.games.StartGame(ctx, m.factory, sess1, sess2, p1.userID, p2.userID)
		}

		queue = removeIndices(queue, i, chosen.idx)
		// Do not advance i: the entry now at i is the first one after
		// player1 that was not matched, so it still needs a pairing
		// attempt.
	}

	m.mu.Lock()
	m.lastQuality = qualityScores
	if len(toRemove) > 0 {
		out := m.queue[:0]
		removedSet := make(map[ids.PlayerID]bool, len(toRemove))
		for _, pid := range toRemove {
			removedSet[pid] = true
		}
		for _, e := range m.queue {
			if !removedSet[e.playerID] {
				out = append(out, e)
			}
		}
		m.queue = out
	}
	m.mu.Unlock()
}

// removeIndices removes the elements at a and b (a < b) from queue,
// returning a new slice.
func removeIndices(queue []entry, a, b int) []entry {
	if a > b {
		a, b = b, a
	}
	out := make([]entry, 0, len(queue)-2)
	for idx, e := range queue {
		if idx == a || idx == b {
			continue
		}
		out = append(out, e)
	}
	return out
}

// EndGame is registered as a finish callback at game start: if the result wasn't a disconnect, update both
// players' ratings and persist them; then re-enter surviving players
// into the queue.
func (m *Manager) EndGame(inst *gameinstance.Instance) {
	result, ok := inst.GetResult()
	if !ok {
		return
	}

	if result.EndState != store.EndStateDisconnected {
		mu1, sigma1, err1 := m.players.GetMatchmakingParameters(result.User1ID)
		mu2, sigma2, err2 := m.players.GetMatchmakingParameters(result.User2ID)
		if err1 == nil && err2 == nil {
			r1 := rating.CreateRating(mu1, sigma1)
			r2 := rating.CreateRating(mu2, sigma2)
			nr1, nr2 := rating.Rate(r1, r2, result.Score1, result.Score2)
			if err := m.players.UpdateMatchmakingParameters(result.User1ID, nr1.Mu, nr1.Sigma); err != nil {
				log.Printf("[matchmaking] rating update failed for user %d: %v", result.User1ID, err)
			} else {
				m.notifyRatingUpdate(result.User1ID, nr1.Mu, nr1.Sigma)
			}
			if err := m.players.UpdateMatchmakingParameters(result.User2ID, nr2.Mu, nr2.Sigma); err != nil {
				log.Printf("[matchmaking] rating update failed for user %d: %v", result.User2ID, err)
			} else {
				m.notifyRatingUpdate(result.User2ID, nr2.Mu, nr2.Sigma)
			}
		}
	}

	for _, p := range inst.Players() {
		if sess, ok := m.players.Get(p); ok && sess.IsConnected() {
			m.TryMatch(sess)
		}
	}
}

func (m *Manager) notifyRatingUpdate(userID int, mu, sigma float64) {
	m.mu.Lock()
	callbacks := append([]func(int, float64, float64){}, m.onRatingUpdate...)
	m.mu.Unlock()
	for _, cb := range callbacks {
		cb(userID, mu, sigma)
	}
}
