package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/erms-api/internal/dto"
	"github.com/noah-isme/erms-api/internal/middleware"
	"github.com/noah-isme/erms-api/internal/service"
	"github.com/noah-isme/erms-api/internal/utils"
)

// MessageHandler wires direct messaging including the websocket upgrade.
type MessageHandler struct {
	service service.MessageService
	logger  zerolog.Logger
}

// NewMessageHandler creates a message handler instance.
func NewMessageHandler(service service.MessageService, logger zerolog.Logger) *MessageHandler {
	return &MessageHandler{
		service: service,
		logger:  logger.With().Str("component", "message_handler").Logger(),
	}
}

// Register binds message routes under the provided router group.
func (h *MessageHandler) Register(router fiber.Router) {
	router.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("request_ctx", requestContext(c))
			c.Locals("correlation_id", middleware.GetCorrelationID(c))
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	router.Get("/ws", websocket.New(h.handleConnection))

	router.Get("/conversations", h.conversations)
	router.Get("/unread", h.unread)
	router.Get("/thread/:userId", h.thread)
	router.Post("/thread/:userId/read", h.markThreadRead)
	router.Post("", h.send)
	router.Post("/:id/read", h.markRead)
}

func (h *MessageHandler) handleConnection(conn *websocket.Conn) {
	userID, _ := conn.Locals("user_id").(uint)
	if userID == 0 {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "user id missing"))
		_ = conn.Close()
		return
	}

	role, _ := conn.Locals("user_role").(string)
	correlation, _ := conn.Locals("correlation_id").(string)
	baseCtx, _ := conn.Locals("request_ctx").(context.Context)

	h.logger.Info().Uint("user_id", userID).Msg("message websocket connected")
	h.service.ServeConnection(conn, service.RealtimeOptions{
		UserID:        userID,
		Role:          role,
		CorrelationID: correlation,
		Context:       baseCtx,
	})
	h.logger.Info().Uint("user_id", userID).Msg("message websocket disconnected")
}

func (h *MessageHandler) send(c *fiber.Ctx) error {
	var payload dto.SendMessageRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	message, err := h.service.Send(requestContext(c), actorFromContext(c), payload)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "message sent", message)
}

func (h *MessageHandler) conversations(c *fiber.Ctx) error {
	conversations, err := h.service.Conversations(requestContext(c), actorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "conversations retrieved", conversations)
}

func (h *MessageHandler) thread(c *fiber.Ctx) error {
	counterpartID, err := parseUintParam(c, "userId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var req dto.ThreadRequest
	if before := strings.TrimSpace(c.Query("before")); before != "" {
		parsed, err := time.Parse(time.RFC3339, before)
		if err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, "invalid before timestamp")
		}
		req.Before = parsed
	}
	limit, err := parseQueryInt(c, "limit")
	if err != nil || limit < 0 || limit > 100 {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid limit")
	}
	req.Limit = limit

	messages, err := h.service.Thread(requestContext(c), actorFromContext(c), counterpartID, req)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "thread retrieved", messages)
}

func (h *MessageHandler) markRead(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	message, err := h.service.MarkRead(requestContext(c), actorFromContext(c), id)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "message marked as read", message)
}

func (h *MessageHandler) markThreadRead(c *fiber.Ctx) error {
	counterpartID, err := parseUintParam(c, "userId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	updated, err := h.service.MarkThreadRead(requestContext(c), actorFromContext(c), counterpartID)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccess(c, fmt.Sprintf("%d messages marked as read", updated), fiber.Map{"updated": updated})
}

func (h *MessageHandler) unread(c *fiber.Ctx) error {
	count, err := h.service.UnreadCount(requestContext(c), actorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "unread count retrieved", fiber.Map{"unread": count})
}
