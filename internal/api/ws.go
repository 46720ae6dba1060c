package api

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/dattmumas/lnked-realtime/internal/engine"
)

const (
	wsWriteDeadline = 10 * time.Second
	wsPingInterval  = 25 * time.Second
)

// wsFrame is the change-feed payload: every time a snapshot version ticks,
// the consumer gets the pieces it renders from.
type wsFrame struct {
	Type          string `json:"type"`
	Version       uint64 `json:"version"`
	Conversations any    `json:"conversations,omitempty"`
	Presence      any    `json:"presence,omitempty"`
}

// wsUpgrade authenticates with ?token= (browsers cannot set headers on
// websocket dials) and streams snapshot versions to the client.
func (s *Server) wsUpgrade() fiber.Handler {
	handler := websocket.New(func(c *websocket.Conn) {
		token := c.Query("token")
		userID, err := s.validator.Validate(token)
		if err != nil {
			_ = c.WriteJSON(fiber.Map{"error": "invalid token"})
			_ = c.Close()
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		eng, err := s.engines.Get(ctx, userID)
		cancel()
		if err != nil {
			_ = c.WriteJSON(fiber.Map{"error": "sync engine unavailable"})
			_ = c.Close()
			return
		}
		s.stream(c, eng)
	})
	return func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return handler(c)
		}
		return fiber.ErrUpgradeRequired
	}
}

func (s *Server) stream(c *websocket.Conn, eng *engine.Engine) {
	defer func() { _ = c.Close() }()

	changes, stop := eng.Watch()
	defer stop()

	// the read pump only exists to notice the peer going away
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	write := func() bool {
		frame := wsFrame{
			Type:          "snapshot",
			Version:       eng.Version(),
			Conversations: eng.Conversations().All(),
			Presence:      eng.Presence(),
		}
		_ = c.SetWriteDeadline(time.Now().Add(wsWriteDeadline))
		if err := c.WriteJSON(frame); err != nil {
			s.log.Debugw("ws write failed, dropping client", "err", err)
			return false
		}
		return true
	}
	if !write() {
		return
	}
	for {
		select {
		case <-closed:
			return
		case <-changes:
			if !write() {
				return
			}
		case <-ticker.C:
			_ = c.SetWriteDeadline(time.Now().Add(wsWriteDeadline))
			if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
