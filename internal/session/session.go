// Package session implements the per-connection player session: it
// wraps a websocket transport and exposes the agent wire protocol as an
// async request/response RPC surface (authenticate, is_ready,
// notify_start, get_action, notify_end, notify_info, notify_error).
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/comprl/server/internal/ids"
)

// Kind enumerates the ways an in-flight RPC can fail.
type Kind int

const (
	// KindTimeout: no reply within the configured window.
	KindTimeout Kind = iota
	// KindRemoteError: the remote agent raised/returned an error.
	KindRemoteError
	// KindDisconnected: the transport closed mid-call.
	KindDisconnected
)

// RPCError reports why an RPC did not resolve normally.
type RPCError struct {
	Kind    Kind
	Message string
}

func (e *RPCError) Error() string {
	switch e.Kind {
	case KindTimeout:
		return "session: player timeout"
	case KindRemoteError:
		return fmt.Sprintf("session: remote error: %s", e.Message)
	default:
		return "session: player disconnected"
	}
}

// IsTimeout, IsRemoteError and IsDisconnected classify an RPCError for
// the server loop's on_timeout/on_remote_error/on_disconnect dispatch.
func IsTimeout(err error) bool {
	var rpcErr *RPCError
	return errors.As(err, &rpcErr) && rpcErr.Kind == KindTimeout
}

func IsRemoteError(err error) bool {
	var rpcErr *RPCError
	return errors.As(err, &rpcErr) && rpcErr.Kind == KindRemoteError
}

func IsDisconnected(err error) bool {
	var rpcErr *RPCError
	return errors.As(err, &rpcErr) && rpcErr.Kind == KindDisconnected
}

// frame is the wire envelope for both requests (server->client) and
// replies (client->server). method/params are set on requests; result/
// error are set on replies.
type frame struct {
	ID     int64           `json:"id"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

type pendingCall struct {
	replyCh chan frame
}

// Session is one connected remote agent.
// PlayerID is assigned on construction; UserID/Username are populated by
// the player manager once authentication succeeds.
type Session struct {
	PlayerID ids.PlayerID

	UserID   int64
	Username string
	authed   atomic.Bool

	conn *websocket.Conn

	mu        sync.Mutex
	pending   map[int64]*pendingCall
	nextCall  int64
	connected atomic.Bool

	send   chan frame
	closed chan struct{}
	once   sync.Once

	timeout time.Duration
}

// New wraps an accepted websocket connection as a Session. timeout is the
// per-RPC timeout.
func New(conn *websocket.Conn, timeout time.Duration) *Session {
	s := &Session{
		PlayerID: ids.NewPlayerID(),
		conn:     conn,
		pending:  make(map[int64]*pendingCall),
		send:     make(chan frame, 16),
		closed:   make(chan struct{}),
		timeout:  timeout,
	}
	s.connected.Store(true)
	go s.writePump()
	go s.readPump()
	return s
}

// IsConnected reports the session's current transport state.
func (s *Session) IsConnected() bool {
	return s.connected.Load()
}

// IsAuthenticated reports whether the session has been bound to a user
// through SetAuthenticated; a successful auth() call alone does not set it.
func (s *Session) IsAuthenticated() bool {
	return s.authed.Load()
}

// SetAuthenticated binds the session to a user.
func (s *Session) SetAuthenticated(userID int64, username string) {
	s.UserID = userID
	s.Username = username
	s.authed.Store(true)
}

// Done returns a channel closed once the transport has disconnected,
// for callers that want to react to disconnects without polling.
func (s *Session) Done() <-chan struct{} {
	return s.closed
}

func (s *Session) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case f, ok := <-s.send:
			if !ok {
				return
			}
			s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := s.conn.WriteJSON(f); err != nil {
				log.Printf("[session] write error for player %s: %v", s.PlayerID, err)
				s.markDisconnected()
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.markDisconnected()
				return
			}
		case <-s.closed:
			return
		}
	}
}

func (s *Session) readPump() {
	defer s.markDisconnected()
	for {
		var f frame
		if err := s.conn.ReadJSON(&f); err != nil {
			return
		}
		s.mu.Lock()
		call, ok := s.pending[f.ID]
		if ok {
			delete(s.pending, f.ID)
		}
		s.mu.Unlock()
		if ok {
			call.replyCh <- f
		}
	}
}

func (s *Session) markDisconnected() {
	if !s.connected.CompareAndSwap(true, false) {
		return
	}
	// s.send is never closed: a concurrent call/fireAndForget may still be
	// selecting a send on it, and the write pump exits via s.closed anyway.
	s.once.Do(func() {
		close(s.closed)
		s.conn.Close()
	})
	s.mu.Lock()
	pending := s.pending
	s.pending = make(map[int64]*pendingCall)
	s.mu.Unlock()
	for _, call := range pending {
		close(call.replyCh)
	}
}

// Disconnect closes the transport, optionally after sending a
// notify_error with reason.
func (s *Session) Disconnect(reason string) {
	if s.connected.Load() && reason != "" {
		s.NotifyError(reason)
	}
	s.markDisconnected()
}

// call performs one request/response RPC: send method(params), wait for
// the matching reply or timeout/disconnect.
func (s *Session) call(method string, params interface{}) (json.RawMessage, error) {
	if !s.connected.Load() {
		return nil, &RPCError{Kind: KindDisconnected}
	}

	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("session: marshal params: %w", err)
	}

	s.mu.Lock()
	s.nextCall++
	id := s.nextCall
	replyCh := make(chan frame, 1)
	s.pending[id] = &pendingCall{replyCh: replyCh}
	s.mu.Unlock()

	select {
	case s.send <- frame{ID: id, Method: method, Params: raw}:
	case <-s.closed:
		return nil, &RPCError{Kind: KindDisconnected}
	}

	select {
	case reply, ok := <-replyCh:
		if !ok {
			return nil, &RPCError{Kind: KindDisconnected}
		}
		if reply.Error != "" {
			return nil, &RPCError{Kind: KindRemoteError, Message: reply.Error}
		}
		return reply.Result, nil
	case <-time.After(s.timeout):
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
		// A timed-out RPC disconnects the session outright, regardless of
		// which method was pending; the server loop then observes the
		// drop through Done() like any other disconnect.
		log.Printf("[session] player %s timed out after %v on %q", s.PlayerID, s.timeout, method)
		s.markDisconnected()
		return nil, &RPCError{Kind: KindTimeout}
	case <-s.closed:
		return nil, &RPCError{Kind: KindDisconnected}
	}
}

// Authenticate performs the auth() RPC, returning the bearer token the
// agent presents.
func (s *Session) Authenticate() (string, error) {
	result, err := s.call("auth", nil)
	if err != nil {
		return "", err
	}
	var token string
	if err := json.Unmarshal(result, &token); err != nil {
		return "", fmt.Errorf("session: decode auth reply: %w", err)
	}
	return token, nil
}

// IsReady performs the is_ready() RPC.
func (s *Session) IsReady() (bool, error) {
	result, err := s.call("is_ready", nil)
	if err != nil {
		return false, err
	}
	var ready bool
	if err := json.Unmarshal(result, &ready); err != nil {
		return false, fmt.Errorf("session: decode is_ready reply: %w", err)
	}
	return ready, nil
}

// NotifyStart is the one-way notify_start(game_id) announcement.
func (s *Session) NotifyStart(gameID ids.GameID) {
	s.fireAndForget("notify_start", gameID)
}

// GetAction sends one observation and waits for one action vector.
// Failures (timeout, remote error, transport disconnect) are reported
// via RPCError.
func (s *Session) GetAction(observation []float64) ([]float64, error) {
	result, err := s.call("get_action", observation)
	if err != nil {
		return nil, err
	}
	var action []float64
	if err := json.Unmarshal(result, &action); err != nil {
		return nil, fmt.Errorf("session: decode get_action reply: %w", err)
	}
	return action, nil
}

// NotifyEnd is the one-way notify_end(player_won, stats) announcement.
func (s *Session) NotifyEnd(playerWon bool, stats []float64) {
	s.fireAndForget("notify_end", struct {
		Result bool      `json:"result"`
		Stats  []float64 `json:"stats"`
	}{playerWon, stats})
}

// NotifyInfo is a one-way informational message to the agent.
func (s *Session) NotifyInfo(msg string) {
	s.fireAndForget("notify_info", msg)
}

// NotifyError is a one-way error message to the agent.
func (s *Session) NotifyError(msg string) {
	s.fireAndForget("notify_error", msg)
}

func (s *Session) fireAndForget(method string, params interface{}) {
	if !s.connected.Load() {
		return
	}
	raw, err := json.Marshal(params)
	if err != nil {
		log.Printf("[session] marshal %s for player %s: %v", method, s.PlayerID, err)
		return
	}
	s.mu.Lock()
	s.nextCall++
	id := s.nextCall
	s.mu.Unlock()
	select {
	case s.send <- frame{ID: id, Method: method, Params: raw}:
	case <-s.closed:
	}
}
