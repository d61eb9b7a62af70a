// Package server is the server loop: it owns the websocket accept
// path, the connect/disconnect/timeout/remote-error callbacks, and the
// fixed-cadence scheduler tick that drives matchmaking and the monitor
// snapshot.
package server

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/comprl/server/internal/gamemanager"
	"github.com/comprl/server/internal/matchmaking"
	"github.com/comprl/server/internal/monitor"
	"github.com/comprl/server/internal/playermgr"
	"github.com/comprl/server/internal/session"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Config holds the server loop's scheduling knobs.
type Config struct {
	UpdateInterval  time.Duration
	RPCTimeout      time.Duration
	MonitorLogPath  string
	MonitorInterval time.Duration
}

// Server glues the player, game and matchmaking managers together
// under a single update clock.
type Server struct {
	cfg Config

	players *playermgr.Manager
	games   *gamemanager.Manager
	match   *matchmaking.Manager
}

func New(cfg Config, players *playermgr.Manager, games *gamemanager.Manager, match *matchmaking.Manager) *Server {
	if cfg.MonitorInterval == 0 {
		cfg.MonitorInterval = 10 * time.Second
	}
	return &Server{cfg: cfg, players: players, games: games, match: match}
}

// Handler returns the websocket accept handler to mount on the HTTP
// mux.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[server] websocket upgrade failed: %v", err)
			return
		}
		sess := session.New(conn, s.cfg.RPCTimeout)
		s.onConnect(sess)
	})
}

// onConnect registers the session, drives authentication, and either
// enters matchmaking or disconnects.
func (s *Server) onConnect(sess *session.Session) {
	s.players.Add(sess)

	go func() {
		token, err := sess.Authenticate()
		if err != nil {
			switch {
			case session.IsTimeout(err):
				log.Printf("[server] player %s timed out during authentication", sess.PlayerID)
			case session.IsRemoteError(err):
				log.Printf("[server] player %s remote error during authentication: %v", sess.PlayerID, err)
			}
			sess.Disconnect("Authentication failed")
			s.onDisconnect(sess)
			return
		}

		if !s.players.Auth(sess, token) {
			sess.Disconnect("Authentication failed")
			s.onDisconnect(sess)
			return
		}

		s.match.TryMatch(sess)
		sess.NotifyInfo("Authentication successful")

		s.watchDisconnect(sess)
	}()
}

// watchDisconnect blocks until the session's transport drops, then runs
// the disconnect cascade. Each session owns its own goroutines, so a
// per-session watcher replaces a central unregister channel.
func (s *Server) watchDisconnect(sess *session.Session) {
	<-sess.Done()
	s.onDisconnect(sess)
}

// onDisconnect cascades: remove from matchmaking queue, remove from the
// player manager, force-end any game the player was in.
func (s *Server) onDisconnect(sess *session.Session) {
	s.match.Remove(sess.PlayerID)
	s.players.Remove(sess)
	s.games.ForceGameEnd(sess.PlayerID)
}

// Run drives the fixed-cadence scheduler tick until ctx is canceled.
func (s *Server) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.UpdateInterval)
	defer ticker.Stop()

	var lastSnapshot time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, authenticated := s.players.Count()
			s.match.Update(ctx, authenticated)

			if s.cfg.MonitorLogPath != "" && time.Since(lastSnapshot) >= s.cfg.MonitorInterval {
				if err := monitor.WriteSnapshot(s.cfg.MonitorLogPath, s.snapshotData()); err != nil {
					log.Printf("[server] monitor snapshot write failed: %v", err)
				}
				lastSnapshot = time.Now()
			}
		}
	}
}

func (s *Server) snapshotData() monitor.Data {
	return monitor.Data{
		ConnectedPlayers: s.players.ConnectedSnapshot(),
		Games:            s.games.ActiveSnapshot(),
		Queue:            s.match.QueueSnapshot(),
		QualityScores:    s.match.LastQualityScores(),
	}
}

// Shutdown tells every connected agent the server is going down and
// disconnects them.
func (s *Server) Shutdown(reason string) {
	s.players.BroadcastError(reason)
	s.players.DisconnectAll(reason)
}
