// Package api exposes the sync core's snapshots over HTTP and a WebSocket
// change feed. Every route is read-your-own: the bearer token selects which
// user's engine serves the request.
package api

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"go.uber.org/zap"

	"github.com/dattmumas/lnked-realtime/internal/auth"
	"github.com/dattmumas/lnked-realtime/internal/engine"
)

const requestTimeout = 5 * time.Second

type Server struct {
	validator *auth.JWTValidator
	engines   *engine.Registry
	log       *zap.SugaredLogger
}

func NewServer(validator *auth.JWTValidator, engines *engine.Registry, log *zap.SugaredLogger) *fiber.App {
	s := &Server{validator: validator, engines: engines, log: log}

	app := fiber.New()
	app.Use(fiberlogger.New())

	v1 := app.Group("/v1")
	v1.Use(s.requireUser)

	v1.Get("/conversations", s.listConversations)
	v1.Post("/conversations/:conv_id/open", s.openConversation)
	v1.Post("/conversations/:conv_id/close", s.closeConversation)
	v1.Post("/conversations/:conv_id/read", s.markRead)
	v1.Get("/conversations/:conv_id/messages", s.listMessages)
	v1.Post("/messages", s.sendMessage)
	v1.Post("/typing", s.setTyping)
	v1.Get("/presence", s.presence)

	// the websocket feed authenticates via ?token= inside the upgrade
	// handler, so it lives outside the bearer middleware
	app.Get("/ws", s.wsUpgrade())

	return app
}

// requireUser validates the bearer token and parks the user's engine on the
// request context.
func (s *Server) requireUser(c *fiber.Ctx) error {
	hdr := c.Get("Authorization")
	const pref = "Bearer "
	if len(hdr) <= len(pref) || hdr[:len(pref)] != pref {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing auth"})
	}
	userID, err := s.validator.Validate(hdr[len(pref):])
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid token"})
	}
	ctx, cancel := context.WithTimeout(c.Context(), requestTimeout)
	defer cancel()
	eng, err := s.engines.Get(ctx, userID)
	if err != nil {
		s.log.Errorw("engine build failed", "user_id", userID, "err", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "sync engine unavailable"})
	}
	c.Locals("engine", eng)
	return c.Next()
}

func engineFrom(c *fiber.Ctx) *engine.Engine {
	return c.Locals("engine").(*engine.Engine)
}

func (s *Server) listConversations(c *fiber.Ctx) error {
	eng := engineFrom(c)
	return c.JSON(fiber.Map{"status": "ok", "data": eng.Conversations().All()})
}

func (s *Server) openConversation(c *fiber.Ctx) error {
	eng := engineFrom(c)
	convID := c.Params("conv_id")
	ctx, cancel := context.WithTimeout(c.Context(), requestTimeout)
	defer cancel()
	if err := eng.OpenConversation(ctx, convID); err != nil {
		s.log.Warnw("open conversation failed", "conversation_id", convID, "err", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "open failed"})
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

func (s *Server) closeConversation(c *fiber.Ctx) error {
	eng := engineFrom(c)
	ctx, cancel := context.WithTimeout(c.Context(), requestTimeout)
	defer cancel()
	if err := eng.CloseConversation(ctx); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "close failed"})
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

func (s *Server) markRead(c *fiber.Ctx) error {
	eng := engineFrom(c)
	ctx, cancel := context.WithTimeout(c.Context(), requestTimeout)
	defer cancel()
	eng.MarkRead(ctx, c.Params("conv_id"))
	return c.JSON(fiber.Map{"status": "ok"})
}

func (s *Server) listMessages(c *fiber.Ctx) error {
	eng := engineFrom(c)
	snap := eng.Messages(c.Params("conv_id"))
	if snap == nil {
		return c.JSON(fiber.Map{"status": "ok", "data": fiber.Map{"pages": []any{}}})
	}
	return c.JSON(fiber.Map{"status": "ok", "data": snap})
}

func (s *Server) sendMessage(c *fiber.Ctx) error {
	eng := engineFrom(c)
	var req struct {
		ConversationID string `json:"conversation_id"`
		Content        string `json:"content"`
		Type           string `json:"type"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	if req.ConversationID == "" || req.Content == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "conversation_id and content required"})
	}
	ctx, cancel := context.WithTimeout(c.Context(), requestTimeout)
	defer cancel()
	msg, err := eng.SendMessage(ctx, req.ConversationID, req.Content, req.Type)
	if err != nil {
		s.log.Warnw("send failed", "conversation_id", req.ConversationID, "err", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "send failed"})
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"status": "ok", "data": msg})
}

func (s *Server) setTyping(c *fiber.Ctx) error {
	eng := engineFrom(c)
	var req struct {
		IsTyping bool `json:"is_typing"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	ctx, cancel := context.WithTimeout(c.Context(), requestTimeout)
	defer cancel()
	eng.SetTyping(ctx, req.IsTyping)
	return c.JSON(fiber.Map{"status": "ok"})
}

func (s *Server) presence(c *fiber.Ctx) error {
	eng := engineFrom(c)
	return c.JSON(fiber.Map{"status": "ok", "data": eng.Presence()})
}
