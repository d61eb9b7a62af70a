package gameinstance

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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

func newTestSessionPair(t *testing.T, timeout time.Duration) (*session.Session, *websocket.Conn) {
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
	return session.New(serverConn, timeout), clientConn
}

// scriptedAdapter is a minimal test double implementing gameadapter.Adapter:
// it ends the match as soon as both clients have replied once.
type scriptedAdapter struct {
	winner ids.PlayerID
}

func (a *scriptedAdapter) ValidateAction(ids.PlayerID, []float64) bool { return true }
func (a *scriptedAdapter) ObservationFor(ids.PlayerID) []float64       { return []float64{0} }
func (a *scriptedAdapter) Update(map[ids.PlayerID][]float64) bool      { return true }
func (a *scriptedAdapter) PlayerWon(p ids.PlayerID) bool               { return p == a.winner }
func (a *scriptedAdapter) PlayerStats(ids.PlayerID) []float64          { return []float64{1, 0} }
func (a *scriptedAdapter) Score(p ids.PlayerID) float64 {
	if p == a.winner {
		return 1
	}
	return -1
}
func (a *scriptedAdapter) Recording() interface{} { return []string{"round1"} }

func answerGetAction(t *testing.T, client *websocket.Conn, action []float64) {
	t.Helper()
	var req wireFrame
	require.NoError(t, client.ReadJSON(&req))
	require.Equal(t, "get_action", req.Method)
	result, _ := json.Marshal(action)
	require.NoError(t, client.WriteJSON(wireFrame{ID: req.ID, Result: result}))
}

func drainOneWay(t *testing.T, client *websocket.Conn, method string) {
	t.Helper()
	var f wireFrame
	require.NoError(t, client.ReadJSON(&f))
	assert.Equal(t, method, f.Method)
}

func TestInstanceCompletesNormalGame(t *testing.T) {
	sess1, client1 := newTestSessionPair(t, time.Second)
	sess2, client2 := newTestSessionPair(t, time.Second)

	adapter := &scriptedAdapter{winner: sess1.PlayerID}
	inst := New(ids.NewGameID(), sess1, sess2, 1, 2, adapter, t.TempDir())

	finished := make(chan *Instance, 1)
	inst.OnFinish(func(i *Instance) { finished <- i })

	inst.Start(context.Background())

	drainOneWay(t, client1, "notify_start")
	drainOneWay(t, client2, "notify_start")

	answerGetAction(t, client1, []float64{1, 1, 1, 1})
	answerGetAction(t, client2, []float64{0, 0, 0, 0})

	drainOneWay(t, client1, "notify_end")
	drainOneWay(t, client2, "notify_end")

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("finish callback was never invoked")
	}

	result, ok := inst.GetResult()
	require.True(t, ok)
	assert.Equal(t, store.EndStateWin, result.EndState)
	require.NotNil(t, result.WinnerID)
	assert.Equal(t, 1, *result.WinnerID)
}

func TestInstanceForceEndOnDisconnect(t *testing.T) {
	sess1, client1 := newTestSessionPair(t, time.Second)
	sess2, _ := newTestSessionPair(t, time.Second)

	adapter := &scriptedAdapter{winner: sess1.PlayerID}
	inst := New(ids.NewGameID(), sess1, sess2, 1, 2, adapter, t.TempDir())

	finished := make(chan *Instance, 1)
	inst.OnFinish(func(i *Instance) { finished <- i })
	inst.Start(context.Background())

	drainOneWay(t, client1, "notify_start")
	// sess2's client never replies and we close its connection; force-end
	// the instance as the server loop would upon observing the disconnect.
	sess2.Disconnect("connection closed")
	inst.ForceEnd(sess2.PlayerID)

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("finish callback was never invoked")
	}

	result, ok := inst.GetResult()
	require.True(t, ok)
	assert.Equal(t, store.EndStateDisconnected, result.EndState)
	require.NotNil(t, result.DisconnectedID)
	assert.Equal(t, 2, *result.DisconnectedID)
}

// rejectingAdapter refuses one specific player's actions, standing in
// for a game that considers them malformed.
type rejectingAdapter struct {
	scriptedAdapter
	reject ids.PlayerID
}

func (a *rejectingAdapter) ValidateAction(p ids.PlayerID, _ []float64) bool {
	return p != a.reject
}

func TestInvalidActionDisconnectsOffender(t *testing.T) {
	sess1, client1 := newTestSessionPair(t, time.Second)
	sess2, client2 := newTestSessionPair(t, time.Second)

	adapter := &rejectingAdapter{reject: sess2.PlayerID}
	inst := New(ids.NewGameID(), sess1, sess2, 1, 2, adapter, t.TempDir())

	finished := make(chan *Instance, 1)
	inst.OnFinish(func(i *Instance) { finished <- i })
	inst.Start(context.Background())

	drainOneWay(t, client1, "notify_start")
	drainOneWay(t, client2, "notify_start")

	answerGetAction(t, client1, []float64{1, 1, 1, 1})
	answerGetAction(t, client2, []float64{9, 9, 9, 9})

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("finish callback was never invoked")
	}

	result, ok := inst.GetResult()
	require.True(t, ok)
	assert.Equal(t, store.EndStateDisconnected, result.EndState)
	require.NotNil(t, result.DisconnectedID)
	assert.Equal(t, 2, *result.DisconnectedID, "the offending player, not the opponent, is flagged")
	assert.False(t, sess2.IsConnected(), "an invalid action disconnects the offender")
	assert.True(t, sess1.IsConnected(), "the opponent's session survives")
}
