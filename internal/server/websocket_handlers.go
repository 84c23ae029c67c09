package server

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"murmur/internal/middleware"
)

func requireUpgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// EventsWebSocket handles GET /ws/events. Every published change event is
// written to the client as one JSON text message. Client messages are
// ignored.
func (s *Server) EventsWebSocket() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		defer func() { _ = conn.Close() }()

		sub, err := s.hub.Register()
		if err != nil {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"`+err.Error()+`"}`))
			return
		}
		defer s.hub.Unregister(sub)

		// The read loop only detects the client going away.
		gone := make(chan struct{})
		go func() {
			defer close(gone)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case <-gone:
				return
			case msg, ok := <-sub.Messages():
				if !ok {
					_ = conn.WriteMessage(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseGoingAway, "Server shutting down"))
					return
				}
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					middleware.Logger.Debug("event stream write failed", slog.String("error", err.Error()))
					return
				}
			}
		}
	})
}
