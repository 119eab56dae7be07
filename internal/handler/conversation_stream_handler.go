package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/storefront-api/internal/dto"
	"github.com/noah-isme/storefront-api/internal/middleware"
	"github.com/noah-isme/storefront-api/internal/models"
	"github.com/noah-isme/storefront-api/internal/observability"
	"github.com/noah-isme/storefront-api/internal/service"
)

const streamWriteTimeout = 10 * time.Second

// ConversationFrame is pushed to websocket clients whenever their view changes.
type ConversationFrame struct {
	Event        string                   `json:"event"`
	Conversation dto.ConversationResponse `json:"conversation"`
}

// ConversationStreamHandler pushes freshly rendered conversation views over websockets.
type ConversationStreamHandler struct {
	service   service.ConversationService
	keepAlive time.Duration
	logger    zerolog.Logger
}

// NewConversationStreamHandler constructs the websocket push handler.
func NewConversationStreamHandler(service service.ConversationService, keepAlive time.Duration, logger zerolog.Logger) *ConversationStreamHandler {
	if keepAlive <= 0 {
		keepAlive = 25 * time.Second
	}
	return &ConversationStreamHandler{
		service:   service,
		keepAlive: keepAlive,
		logger:    logger.With().Str("component", "conversation_stream").Logger(),
	}
}

// RegisterUser binds /ws on the user conversation group.
func (h *ConversationStreamHandler) RegisterUser(router fiber.Router) {
	router.Use("/ws", middleware.Authorize(middleware.AuthOptions{Role: middleware.AuthRoleCustomer}), upgradeOnly)
	router.Get("/ws", websocket.New(func(conn *websocket.Conn) {
		actor := service.ChatActor{
			ID:          websocketLocal(conn, middleware.LocalUserID),
			Role:        models.ChatRoleUser,
			DisplayName: websocketLocal(conn, middleware.LocalUserName),
			Email:       websocketLocal(conn, middleware.LocalUserEmail),
		}
		h.serve(conn, actor, "")
	}))
}

// RegisterAdmin binds /ws/:id on the admin conversation group.
func (h *ConversationStreamHandler) RegisterAdmin(router fiber.Router) {
	router.Use("/ws", upgradeOnly)
	router.Get("/ws/:id", websocket.New(func(conn *websocket.Conn) {
		actor := service.ChatActor{
			ID:   websocketLocal(conn, middleware.LocalUserID),
			Role: models.ChatRoleAdmin,
		}
		h.serve(conn, actor, conn.Params("id"))
	}))
}

func upgradeOnly(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	c.Locals("request_ctx", requestContext(c))
	return c.Next()
}

func (h *ConversationStreamHandler) serve(conn *websocket.Conn, actor service.ChatActor, conversationID string) {
	baseCtx, _ := conn.Locals("request_ctx").(context.Context)
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()
	defer func() {
		_ = conn.Close()
	}()

	load := func() (dto.ConversationResponse, error) {
		if actor.Role == models.ChatRoleUser {
			return h.service.GetOrCreate(ctx, actor)
		}
		return h.service.View(ctx, actor, conversationID)
	}

	view, err := load()
	if err != nil {
		h.logger.Warn().Err(err).Str("actor_role", string(actor.Role)).Str("conversation_id", conversationID).Msg("conversation stream rejected")
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "conversation unavailable"))
		return
	}

	events, unsubscribe := h.service.Subscribe(view.ID)
	defer unsubscribe()

	observability.ConversationStreams().Inc()
	defer observability.ConversationStreams().Dec()

	logger := h.logger.With().Str("conversation_id", view.ID).Str("actor_role", string(actor.Role)).Logger()
	logger.Info().Msg("conversation stream connected")
	defer logger.Info().Msg("conversation stream disconnected")

	if err := h.write(conn, ConversationFrame{Event: "snapshot", Conversation: view}); err != nil {
		return
	}

	// Incoming frames are ignored; reading only detects the client going away.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			view, err := load()
			if err != nil {
				logger.Warn().Err(err).Msg("failed to render pushed conversation")
				return
			}
			if err := h.write(conn, ConversationFrame{Event: event.Kind, Conversation: view}); err != nil {
				return
			}
		case <-ticker.C:
			deadline := time.Now().Add(streamWriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}

func (h *ConversationStreamHandler) write(conn *websocket.Conn, frame ConversationFrame) error {
	if err := conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout)); err != nil {
		return err
	}
	if err := conn.WriteJSON(frame); err != nil {
		h.logger.Debug().Err(err).Msg("conversation stream write failed")
		return err
	}
	return nil
}

func websocketLocal(conn *websocket.Conn, key string) string {
	if value, ok := conn.Locals(key).(string); ok {
		return value
	}
	return ""
}
