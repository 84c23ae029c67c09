package notifications

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_RegisterBroadcastUnregister(t *testing.T) {
	h := NewHub()

	a, err := h.Register()
	require.NoError(t, err)
	b, err := h.Register()
	require.NoError(t, err)
	assert.Equal(t, 2, h.Len())

	h.Broadcast([]byte("hello"))
	assert.Equal(t, []byte("hello"), <-a.Messages())
	assert.Equal(t, []byte("hello"), <-b.Messages())

	h.Unregister(a)
	h.Unregister(a)
	assert.Equal(t, 1, h.Len())
	_, open := <-a.Messages()
	assert.False(t, open)
}

func TestHub_DropsSlowSubscriber(t *testing.T) {
	h := NewHub()
	slow, err := h.Register()
	require.NoError(t, err)

	for range subscriberBuffer + 1 {
		h.Broadcast([]byte("x"))
	}
	assert.Zero(t, h.Len())

	n := 0
	for range slow.Messages() {
		n++
	}
	assert.Equal(t, subscriberBuffer, n)
}

func TestHub_Shutdown(t *testing.T) {
	h := NewHub()
	sub, err := h.Register()
	require.NoError(t, err)

	h.Shutdown()

	_, open := <-sub.Messages()
	assert.False(t, open)
	_, err = h.Register()
	assert.Error(t, err)
}

func TestHub_StartWiringRelaysEvents(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = rdb.Close() }()
	n := NewNotifier(rdb)

	h := NewHub()
	require.NoError(t, h.StartWiring(context.Background(), n))
	defer h.Shutdown()

	sub, err := h.Register()
	require.NoError(t, err)

	n.PublishEvent(context.Background(), EventPostDeleted, map[string]any{"post_id": "p1"})

	select {
	case msg := <-sub.Messages():
		var ev Event
		require.NoError(t, json.Unmarshal(msg, &ev))
		assert.Equal(t, EventPostDeleted, ev.Type)
		assert.Equal(t, "p1", ev.Payload["post_id"])
	case <-time.After(2 * time.Second):
		t.Fatal("event not relayed")
	}
}

func TestHub_StartWiringWithoutRedis(t *testing.T) {
	h := NewHub()
	assert.NoError(t, h.StartWiring(context.Background(), NewNotifier(nil)))
	h.Shutdown()
}
