package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"murmur/internal/observability"
)

const (
	// Max concurrent event streams
	maxSubscribers = 10000
	// Events buffered per subscriber before it is considered too slow
	subscriberBuffer = 64
)

// ErrHubFull is returned by Register when maxSubscribers streams are open.
var ErrHubFull = errors.New("event stream limit reached")

// Subscriber is one live event stream. Messages is closed when the
// subscriber is unregistered or the hub shuts down.
type Subscriber struct {
	send chan []byte
}

// Messages returns the encoded events for this subscriber.
func (s *Subscriber) Messages() <-chan []byte { return s.send }

// Hub fans every event received from a Notifier out to its subscribers.
type Hub struct {
	mu     sync.RWMutex
	subs   map[*Subscriber]struct{}
	closed bool
	cancel context.CancelFunc
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[*Subscriber]struct{})}
}

// Register adds a subscriber.
func (h *Hub) Register() (*Subscriber, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, errors.New("event hub is shut down")
	}
	if len(h.subs) >= maxSubscribers {
		return nil, ErrHubFull
	}
	sub := &Subscriber{send: make(chan []byte, subscriberBuffer)}
	h.subs[sub] = struct{}{}
	observability.ActiveEventStreams.Inc()
	return sub, nil
}

// Unregister removes sub and closes its Messages channel. It is safe to
// call more than once.
func (h *Hub) Unregister(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.remove(sub)
}

func (h *Hub) remove(sub *Subscriber) {
	if _, ok := h.subs[sub]; !ok {
		return
	}
	delete(h.subs, sub)
	close(sub.send)
	observability.ActiveEventStreams.Dec()
}

// Len returns the number of registered subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Broadcast queues message for every subscriber. A subscriber whose buffer
// is full is dropped.
func (h *Hub) Broadcast(message []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		select {
		case sub.send <- message:
		default:
			observability.GlobalLogger.Warn("dropping slow event subscriber")
			h.remove(sub)
		}
	}
}

// StartWiring subscribes to n and broadcasts every event until ctx is
// cancelled or Shutdown is called. A Notifier without Redis delivers nothing.
func (h *Hub) StartWiring(ctx context.Context, n *Notifier) error {
	ctx, cancel := context.WithCancel(ctx)
	h.mu.Lock()
	h.cancel = cancel
	h.mu.Unlock()

	err := n.Subscribe(ctx, func(ev Event) {
		msg, err := json.Marshal(ev)
		if err != nil {
			observability.GlobalLogger.Warn("failed to encode event",
				slog.String("event_type", ev.Type),
				slog.String("error", err.Error()))
			return
		}
		h.Broadcast(msg)
	})
	if err != nil {
		cancel()
		return err
	}
	return nil
}

// Shutdown stops the Redis subscription and closes every subscriber.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel != nil {
		h.cancel()
	}
	h.closed = true
	for sub := range h.subs {
		h.remove(sub)
	}
}
