package gamemanager

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comprl/server/internal/gameadapter"
	"github.com/comprl/server/internal/ids"
	"github.com/comprl/server/internal/session"
	"github.com/comprl/server/internal/store"
)

var testUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type wireFrame struct {
	ID     int64           `json:"id"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

func newTestSessionPair(t *testing.T) (*session.Session, *websocket.Conn) {
	t.Helper()
	var serverConn *websocket.Conn
	ready := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := testUpgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		serverConn = c
		close(ready)
	}))
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	clientConn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { clientConn.Close() })

	<-ready
	return session.New(serverConn, time.Second), clientConn
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	st, err := store.OpenTest(path)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

type oneShotAdapter struct{ winner ids.PlayerID }

func (a *oneShotAdapter) ValidateAction(ids.PlayerID, []float64) bool { return true }
func (a *oneShotAdapter) ObservationFor(ids.PlayerID) []float64       { return []float64{0} }
func (a *oneShotAdapter) Update(map[ids.PlayerID][]float64) bool      { return true }
func (a *oneShotAdapter) PlayerWon(p ids.PlayerID) bool               { return p == a.winner }
func (a *oneShotAdapter) PlayerStats(ids.PlayerID) []float64          { return []float64{1, 0} }
func (a *oneShotAdapter) Score(p ids.PlayerID) float64 {
	if p == a.winner {
		return 1
	}
	return -1
}
func (a *oneShotAdapter) Recording() interface{} { return nil }

func answerGetAction(t *testing.T, client *websocket.Conn, action []float64) {
	t.Helper()
	var req wireFrame
	require.NoError(t, client.ReadJSON(&req))
	require.Equal(t, "get_action", req.Method)
	result, _ := json.Marshal(action)
	require.NoError(t, client.WriteJSON(wireFrame{ID: req.ID, Result: result}))
}

func drainOneWay(t *testing.T, client *websocket.Conn) {
	t.Helper()
	var f wireFrame
	require.NoError(t, client.ReadJSON(&f))
}

func TestStartGamePersistsResultAndRemovesFromActive(t *testing.T) {
	st := newTestStore(t)
	u1, err := st.CreateUser("p1", "pw", store.RoleUser, "", "")
	require.NoError(t, err)
	u2, err := st.CreateUser("p2", "pw", store.RoleUser, "", "")
	require.NoError(t, err)

	mgr := New(st, t.TempDir())

	sess1, client1 := newTestSessionPair(t)
	sess2, client2 := newTestSessionPair(t)

	var factory gameadapter.Factory = func(players [2]ids.PlayerID) gameadapter.Adapter {
		return &oneShotAdapter{winner: sess1.PlayerID}
	}

	mgr.StartGame(context.Background(), factory, sess1, sess2, u1.UserID, u2.UserID)
	assert.Equal(t, 1, mgr.Count())

	drainOneWay(t, client1) // notify_start
	drainOneWay(t, client2) // notify_start

	answerGetAction(t, client1, []float64{1, 1, 1, 1})
	answerGetAction(t, client2, []float64{0, 0, 0, 0})

	drainOneWay(t, client1) // notify_end
	drainOneWay(t, client2) // notify_end

	require.Eventually(t, func() bool { return mgr.Count() == 0 }, 2*time.Second, 10*time.Millisecond)

	games, err := st.RecentGames(u1.UserID, 10)
	require.NoError(t, err)
	require.Len(t, games, 1)
	assert.Equal(t, store.EndStateWin, games[0].EndState)
}

func TestForceGameEndRemovesMatchingGames(t *testing.T) {
	st := newTestStore(t)
	u1, err := st.CreateUser("p1", "pw", store.RoleUser, "", "")
	require.NoError(t, err)
	u2, err := st.CreateUser("p2", "pw", store.RoleUser, "", "")
	require.NoError(t, err)

	mgr := New(st, t.TempDir())

	sess1, client1 := newTestSessionPair(t)
	sess2, _ := newTestSessionPair(t)

	var factory gameadapter.Factory = func(players [2]ids.PlayerID) gameadapter.Adapter {
		return &oneShotAdapter{winner: sess1.PlayerID}
	}

	mgr.StartGame(context.Background(), factory, sess1, sess2, u1.UserID, u2.UserID)
	drainOneWay(t, client1) // notify_start

	mgr.ForceGameEnd(sess2.PlayerID)

	require.Eventually(t, func() bool { return mgr.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
}
