// Package notifications publishes post and comment change events over Redis
// pub/sub.
package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"murmur/internal/observability"
)

// EventsChannel is the pub/sub channel every change event is published on.
const EventsChannel = "murmur:events"

// Event type constants prevent typos in event names.
const (
	EventPostCreated    = "post_created"
	EventPostUpdated    = "post_updated"
	EventPostDeleted    = "post_deleted"
	EventCommentCreated = "comment_created"
	EventCommentDeleted = "comment_deleted"
)

// Event is the JSON envelope published for every change.
type Event struct {
	Type      string         `json:"type"`
	Payload   map[string]any `json:"payload"`
	Timestamp time.Time      `json:"timestamp"`
}

// Notifier publishes change events. A Notifier without a Redis client
// drops events silently.
type Notifier struct {
	rdb *redis.Client
	now func() time.Time
}

// NewNotifier creates a Notifier publishing through rdb, which may be nil.
func NewNotifier(rdb *redis.Client) *Notifier {
	return &Notifier{rdb: rdb, now: time.Now}
}

// Publish sends one event to EventsChannel.
func (n *Notifier) Publish(ctx context.Context, eventType string, payload map[string]any) error {
	if n == nil || n.rdb == nil {
		return nil
	}
	msg, err := json.Marshal(Event{Type: eventType, Payload: payload, Timestamp: n.now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", eventType, err)
	}
	if err := n.rdb.Publish(ctx, EventsChannel, msg).Err(); err != nil {
		observability.RedisErrorRate.WithLabelValues("publish").Inc()
		return fmt.Errorf("publish %s event: %w", eventType, err)
	}
	return nil
}

// PublishEvent is Publish for callers that must not fail because of it.
// Errors are logged and counted.
func (n *Notifier) PublishEvent(ctx context.Context, eventType string, payload map[string]any) {
	if n == nil || n.rdb == nil {
		return
	}
	if err := n.Publish(ctx, eventType, payload); err != nil {
		observability.EventsPublished.WithLabelValues(eventType, "error").Inc()
		observability.GlobalLogger.WarnContext(ctx, "failed to publish event",
			slog.String("event_type", eventType),
			slog.String("error", err.Error()))
		return
	}
	observability.EventsPublished.WithLabelValues(eventType, "ok").Inc()
}

// Subscribe delivers every event published on EventsChannel to onEvent
// until ctx is cancelled. Undecodable messages are skipped.
func (n *Notifier) Subscribe(ctx context.Context, onEvent func(Event)) error {
	if n == nil || n.rdb == nil {
		return nil
	}
	sub := n.rdb.Subscribe(ctx, EventsChannel)
	// Wait for the subscription to be confirmed so no event is missed.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("subscribe %s: %w", EventsChannel, err)
	}
	ch := sub.Channel()

	go func() {
		defer func() { _ = sub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var ev Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					observability.GlobalLogger.WarnContext(ctx, "dropping undecodable event",
						slog.String("error", err.Error()))
					continue
				}
				onEvent(ev)
			}
		}
	}()
	return nil
}
