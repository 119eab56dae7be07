package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/storefront-api/internal/dto"
	"github.com/noah-isme/storefront-api/internal/service"
	"github.com/noah-isme/storefront-api/internal/utils"
)

// AdminConversationHandler serves the support inbox. Routes expect an admin-only router group.
type AdminConversationHandler struct {
	service   service.ConversationService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewAdminConversationHandler constructs the admin conversation handler.
func NewAdminConversationHandler(service service.ConversationService, validator *validator.Validate, logger zerolog.Logger) *AdminConversationHandler {
	return &AdminConversationHandler{
		service:   service,
		validator: validator,
		logger:    logger.With().Str("component", "admin_conversation_handler").Logger(),
	}
}

// Register wires the admin conversation routes.
func (h *AdminConversationHandler) Register(router fiber.Router) {
	router.Get("/all", h.list)
	router.Post("/reply/:id", h.reply)
	router.Put("/reply/:id/:msgId", h.editReply)
	router.Delete("/reply/:id/:msgId", h.hardDelete)
	router.Delete("/message/:id/:msgId", h.deleteMessage)
	router.Put("/status/:id", h.setStatus)
	router.Put("/read/:id", h.markRead)
	router.Delete("/clear/:id", h.clear)
	router.Post("/typing/:id", h.typing)
	router.Get("/:id", h.view)
}

func (h *AdminConversationHandler) list(c *fiber.Ctx) error {
	limit, err := parseQueryInt(c, "limit")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid limit")
	}
	offset, err := parseQueryInt(c, "offset")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid offset")
	}

	query := dto.ConversationListQuery{
		Status: c.Query("status"),
		Limit:  limit,
		Offset: offset,
	}

	conversations, err := h.service.ListForAdmin(requestContext(c), query)
	if err != nil {
		return sendConversationError(c, h.logger, err, "list conversations")
	}

	meta := fiber.Map{"count": len(conversations), "status": query.Status, "offset": query.Offset}
	return utils.OK(c, conversations, "conversations retrieved", meta)
}

func (h *AdminConversationHandler) view(c *fiber.Ctx) error {
	conversation, err := h.service.View(requestContext(c), adminActorFromContext(c), c.Params("id"))
	if err != nil {
		return sendConversationError(c, h.logger, err, "load conversation")
	}
	return utils.SendSuccess(c, "conversation retrieved", conversation)
}

func (h *AdminConversationHandler) reply(c *fiber.Ctx) error {
	var payload dto.ConversationMessageRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}
	if err := h.validator.Struct(payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "message body is required")
	}

	conversation, err := h.service.AppendAdminReply(requestContext(c), adminActorFromContext(c), c.Params("id"), payload.Body)
	if err != nil {
		return sendConversationError(c, h.logger, err, "send reply")
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "reply sent", conversation)
}

func (h *AdminConversationHandler) editReply(c *fiber.Ctx) error {
	var payload dto.ConversationEditRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}
	if err := h.validator.Struct(payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	conversation, err := h.service.EditMessage(requestContext(c), adminActorFromContext(c), c.Params("id"), c.Params("msgId"), payload.Body)
	if err != nil {
		return sendConversationError(c, h.logger, err, "edit reply")
	}
	return utils.SendSuccess(c, "reply updated", conversation)
}

func (h *AdminConversationHandler) hardDelete(c *fiber.Ctx) error {
	conversation, err := h.service.HardDeleteAdminMessage(requestContext(c), adminActorFromContext(c), c.Params("id"), c.Params("msgId"))
	if err != nil {
		return sendConversationError(c, h.logger, err, "delete reply")
	}
	return utils.SendSuccess(c, "reply deleted", conversation)
}

func (h *AdminConversationHandler) deleteMessage(c *fiber.Ctx) error {
	scope, err := parseDeleteScope(c, h.validator)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	conversation, err := h.service.DeleteMessage(requestContext(c), adminActorFromContext(c), c.Params("id"), c.Params("msgId"), scope)
	if err != nil {
		return sendConversationError(c, h.logger, err, "delete message")
	}
	return utils.SendSuccess(c, "message deleted", conversation)
}

func (h *AdminConversationHandler) setStatus(c *fiber.Ctx) error {
	var payload dto.ConversationStatusRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}
	if err := h.validator.Struct(payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "status must be one of active, pending, resolved")
	}

	conversation, err := h.service.SetStatus(requestContext(c), adminActorFromContext(c), c.Params("id"), payload.Status)
	if err != nil {
		return sendConversationError(c, h.logger, err, "update status")
	}
	return utils.SendSuccess(c, "conversation status updated", conversation)
}

func (h *AdminConversationHandler) markRead(c *fiber.Ctx) error {
	conversation, err := h.service.MarkRead(requestContext(c), adminActorFromContext(c), c.Params("id"))
	if err != nil {
		return sendConversationError(c, h.logger, err, "mark conversation read")
	}
	return utils.SendSuccess(c, "conversation marked as read", conversation)
}

func (h *AdminConversationHandler) clear(c *fiber.Ctx) error {
	conversation, err := h.service.SetClearPoint(requestContext(c), adminActorFromContext(c), c.Params("id"))
	if err != nil {
		return sendConversationError(c, h.logger, err, "clear conversation")
	}
	return utils.SendSuccess(c, "conversation cleared", conversation)
}

func (h *AdminConversationHandler) typing(c *fiber.Ctx) error {
	isTyping, err := parseTyping(c, h.validator)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	conversation, err := h.service.SetTyping(requestContext(c), adminActorFromContext(c), c.Params("id"), isTyping)
	if err != nil {
		return sendConversationError(c, h.logger, err, "update typing state")
	}
	return utils.SendSuccess(c, "typing state updated", conversation)
}
