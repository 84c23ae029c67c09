package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	gorillaws "github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"murmur/internal/notifications"
)

func TestEventsWebSocket_RequiresUpgrade(t *testing.T) {
	ts := newTestServer(t, "")

	resp, err := ts.app.Test(httptest.NewRequest(http.MethodGet, "/ws/events", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUpgradeRequired, resp.StatusCode)
}

func TestEventsWebSocket_RelaysChanges(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = rdb.Close() }()

	ts := newTestServerWithRedis(t, "", rdb)
	require.NoError(t, ts.srv.StartEvents(context.Background()))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = ts.app.Listener(ln) }()
	t.Cleanup(func() { _ = ts.srv.Shutdown(context.Background()) })

	conn, _, err := gorillaws.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/ws/events", nil)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	require.Eventually(t, func() bool { return ts.srv.hub.Len() == 1 }, 2*time.Second, 10*time.Millisecond)

	post := ts.createPost("alice", "Live #update")

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var ev notifications.Event
	require.NoError(t, json.Unmarshal(msg, &ev))
	assert.Equal(t, notifications.EventPostCreated, ev.Type)
	assert.Equal(t, post.ID, ev.Payload["post_id"])
	assert.Equal(t, "alice", ev.Payload["author"])
}
