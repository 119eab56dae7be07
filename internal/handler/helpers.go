package handler

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/storefront-api/internal/middleware"
	"github.com/noah-isme/storefront-api/internal/models"
	"github.com/noah-isme/storefront-api/internal/observability"
	"github.com/noah-isme/storefront-api/internal/service"
	"github.com/noah-isme/storefront-api/internal/utils"
)

func parseQueryInt(c *fiber.Ctx, key string) (int, error) {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return 0, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}
	return parsed, nil
}

func localString(c *fiber.Ctx, key string) string {
	if v, ok := c.Locals(key).(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func userActorFromContext(c *fiber.Ctx) service.ChatActor {
	return service.ChatActor{
		ID:          localString(c, middleware.LocalUserID),
		Role:        models.ChatRoleUser,
		DisplayName: localString(c, middleware.LocalUserName),
		Email:       localString(c, middleware.LocalUserEmail),
	}
}

func adminActorFromContext(c *fiber.Ctx) service.ChatActor {
	return service.ChatActor{
		ID:          localString(c, middleware.LocalUserID),
		Role:        models.ChatRoleAdmin,
		DisplayName: localString(c, middleware.LocalUserName),
		Email:       localString(c, middleware.LocalUserEmail),
	}
}

func requestContext(c *fiber.Ctx) context.Context {
	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}
	return observability.WithCorrelationID(ctx, middleware.GetCorrelationID(c))
}

func requestLogger(base zerolog.Logger, c *fiber.Ctx) *zerolog.Logger {
	logger := base
	if c != nil {
		if correlation := middleware.GetCorrelationID(c); correlation != "" {
			logger = base.With().Str("correlation_id", correlation).Logger()
		}
	}
	return &logger
}

func isValidationError(err error) bool {
	var validationErrors validator.ValidationErrors
	return errors.As(err, &validationErrors)
}

// sendConversationError maps service errors to HTTP responses. Unknown errors are logged and hidden.
func sendConversationError(c *fiber.Ctx, logger zerolog.Logger, err error, action string) error {
	switch {
	case errors.Is(err, service.ErrConversationNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "conversation not found")
	case errors.Is(err, service.ErrMessageNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "message not found")
	case errors.Is(err, service.ErrMessageForbidden):
		return utils.SendError(c, fiber.StatusForbidden, "you can only change your own messages")
	case errors.Is(err, service.ErrEditWindowExpired):
		return utils.SendError(c, fiber.StatusBadRequest, "edit window has expired")
	case errors.Is(err, service.ErrChatValidation):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case isValidationError(err):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	default:
		requestLogger(logger, c).Error().Err(err).Str("action", action).Msg("conversation request failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to "+action)
	}
}
