package playermgr

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comprl/server/internal/session"
	"github.com/comprl/server/internal/store"
)

var testUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func newTestSession(t *testing.T) *session.Session {
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
	return session.New(serverConn, time.Second)
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	st, err := store.OpenTest(path)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestAuthSuccess(t *testing.T) {
	st := newTestStore(t)
	u, err := st.CreateUser("alice", "hunter2", store.RoleUser, "", "")
	require.NoError(t, err)

	mgr := New(st)
	sess := newTestSession(t)
	mgr.Add(sess)

	ok := mgr.Auth(sess, u.Token)
	assert.True(t, ok)
	assert.True(t, sess.IsAuthenticated())
	assert.True(t, mgr.IsAuthenticated(sess.PlayerID))
}

func TestAuthFailureUnknownToken(t *testing.T) {
	st := newTestStore(t)
	mgr := New(st)
	sess := newTestSession(t)
	mgr.Add(sess)

	ok := mgr.Auth(sess, "not-a-real-token")
	assert.False(t, ok)
	assert.False(t, sess.IsAuthenticated())
	assert.False(t, mgr.IsAuthenticated(sess.PlayerID))
}

func TestRemoveClearsBothMaps(t *testing.T) {
	st := newTestStore(t)
	u, err := st.CreateUser("bob", "pw", store.RoleUser, "", "")
	require.NoError(t, err)

	mgr := New(st)
	sess := newTestSession(t)
	mgr.Add(sess)
	require.True(t, mgr.Auth(sess, u.Token))

	mgr.Remove(sess)

	_, ok := mgr.Get(sess.PlayerID)
	assert.False(t, ok)
	assert.False(t, mgr.IsAuthenticated(sess.PlayerID))
}

func TestCount(t *testing.T) {
	st := newTestStore(t)
	u, err := st.CreateUser("carol", "pw", store.RoleUser, "", "")
	require.NoError(t, err)

	mgr := New(st)
	s1 := newTestSession(t)
	s2 := newTestSession(t)
	mgr.Add(s1)
	mgr.Add(s2)
	require.True(t, mgr.Auth(s1, u.Token))

	connected, authenticated := mgr.Count()
	assert.Equal(t, 2, connected)
	assert.Equal(t, 1, authenticated)
}

func TestBroadcastErrorDoesNotBlock(t *testing.T) {
	st := newTestStore(t)
	mgr := New(st)
	sess := newTestSession(t)
	mgr.Add(sess)

	done := make(chan struct{})
	go func() {
		mgr.BroadcastError("shutting down")
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("BroadcastError did not return")
	}
}
