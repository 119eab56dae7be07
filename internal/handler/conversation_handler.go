package handler

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/storefront-api/internal/dto"
	"github.com/noah-isme/storefront-api/internal/middleware"
	"github.com/noah-isme/storefront-api/internal/models"
	"github.com/noah-isme/storefront-api/internal/service"
	"github.com/noah-isme/storefront-api/internal/utils"
)

// ConversationHandler serves the end-user side of the support conversation.
type ConversationHandler struct {
	service     service.ConversationService
	validator   *validator.Validate
	logger      zerolog.Logger
	authorize   fiber.Handler
	sendLimiter fiber.Handler
}

// NewConversationHandler constructs the user conversation handler. sendLimiter may be nil.
func NewConversationHandler(service service.ConversationService, validator *validator.Validate, sendLimiter fiber.Handler, logger zerolog.Logger) *ConversationHandler {
	if sendLimiter == nil {
		sendLimiter = func(c *fiber.Ctx) error { return c.Next() }
	}

	return &ConversationHandler{
		service:     service,
		validator:   validator,
		logger:      logger.With().Str("component", "conversation_handler").Logger(),
		authorize:   middleware.Authorize(middleware.AuthOptions{Role: middleware.AuthRoleCustomer}),
		sendLimiter: sendLimiter,
	}
}

// Register wires the user conversation routes.
func (h *ConversationHandler) Register(router fiber.Router) {
	router.Get("", h.authorize, h.view)
	router.Post("/message", h.authorize, h.sendLimiter, h.sendText)
	router.Put("/message/:id", h.authorize, h.edit)
	router.Delete("/message/:id", h.authorize, h.delete)
	router.Post("/emoji", h.authorize, h.sendLimiter, h.sendEmoji)
	router.Post("/voice", h.authorize, h.sendLimiter, h.sendVoice)
	router.Put("/read", h.authorize, h.markRead)
	router.Delete("/clear", h.authorize, h.clear)
	router.Post("/typing", h.authorize, h.typing)
}

func (h *ConversationHandler) view(c *fiber.Ctx) error {
	conversation, err := h.service.GetOrCreate(requestContext(c), userActorFromContext(c))
	if err != nil {
		return sendConversationError(c, h.logger, err, "load conversation")
	}
	return utils.SendSuccess(c, "conversation retrieved", conversation)
}

func (h *ConversationHandler) sendText(c *fiber.Ctx) error {
	return h.send(c, models.MessageKindText)
}

func (h *ConversationHandler) sendEmoji(c *fiber.Ctx) error {
	return h.send(c, models.MessageKindEmoji)
}

func (h *ConversationHandler) sendVoice(c *fiber.Ctx) error {
	return h.send(c, models.MessageKindVoice)
}

func (h *ConversationHandler) send(c *fiber.Ctx, kind models.MessageKind) error {
	var payload dto.ConversationMessageRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}
	if err := h.validator.Struct(payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "message body is required")
	}

	conversation, err := h.service.AppendUserMessage(requestContext(c), userActorFromContext(c), kind, payload.Body)
	if err != nil {
		return sendConversationError(c, h.logger, err, "send message")
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "message sent", conversation)
}

func (h *ConversationHandler) edit(c *fiber.Ctx) error {
	var payload dto.ConversationEditRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}
	if err := h.validator.Struct(payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	conversation, err := h.service.EditMessage(requestContext(c), userActorFromContext(c), "", c.Params("id"), payload.Body)
	if err != nil {
		return sendConversationError(c, h.logger, err, "edit message")
	}
	return utils.SendSuccess(c, "message updated", conversation)
}

func (h *ConversationHandler) delete(c *fiber.Ctx) error {
	scope, err := parseDeleteScope(c, h.validator)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	conversation, err := h.service.DeleteMessage(requestContext(c), userActorFromContext(c), "", c.Params("id"), scope)
	if err != nil {
		return sendConversationError(c, h.logger, err, "delete message")
	}
	return utils.SendSuccess(c, "message deleted", conversation)
}

func (h *ConversationHandler) markRead(c *fiber.Ctx) error {
	conversation, err := h.service.MarkRead(requestContext(c), userActorFromContext(c), "")
	if err != nil {
		return sendConversationError(c, h.logger, err, "mark conversation read")
	}
	return utils.SendSuccess(c, "conversation marked as read", conversation)
}

func (h *ConversationHandler) clear(c *fiber.Ctx) error {
	conversation, err := h.service.SetClearPoint(requestContext(c), userActorFromContext(c), "")
	if err != nil {
		return sendConversationError(c, h.logger, err, "clear conversation")
	}
	return utils.SendSuccess(c, "conversation cleared", conversation)
}

func (h *ConversationHandler) typing(c *fiber.Ctx) error {
	isTyping, err := parseTyping(c, h.validator)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	conversation, err := h.service.SetTyping(requestContext(c), userActorFromContext(c), "", isTyping)
	if err != nil {
		return sendConversationError(c, h.logger, err, "update typing state")
	}
	return utils.SendSuccess(c, "typing state updated", conversation)
}

// parseDeleteScope reads the optional scope body; an empty body deletes for the caller only.
func parseDeleteScope(c *fiber.Ctx, validate *validator.Validate) (service.DeleteScope, error) {
	if len(strings.TrimSpace(string(c.Body()))) == 0 {
		return service.DeleteScopeMe, nil
	}

	var payload dto.ConversationDeleteRequest
	if err := c.BodyParser(&payload); err != nil {
		return "", fiber.NewError(fiber.StatusBadRequest, "invalid payload")
	}
	payload.Scope = strings.ToLower(strings.TrimSpace(payload.Scope))
	if err := validate.Struct(payload); err != nil {
		return "", fiber.NewError(fiber.StatusBadRequest, `scope must be "me" or "everyone"`)
	}
	return service.DeleteScope(payload.Scope), nil
}

func parseTyping(c *fiber.Ctx, validate *validator.Validate) (bool, error) {
	var payload dto.ConversationTypingRequest
	if err := c.BodyParser(&payload); err != nil {
		return false, fiber.NewError(fiber.StatusBadRequest, "invalid payload")
	}
	if err := validate.Struct(payload); err != nil {
		return false, fiber.NewError(fiber.StatusBadRequest, "is_typing is required")
	}
	return *payload.IsTyping, nil
}
