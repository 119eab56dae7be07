package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/storefront-api/internal/utils"
)

// Auth role constants used by WithAuth helper.
const (
	AuthRoleAny      = "any"
	AuthRoleAdmin    = "admin"
	AuthRoleCustomer = "customer"
)

// AdminRoles lists the token roles that may act on the support side of a conversation.
var AdminRoles = []string{"admin", "support"}

// AuthOptions configures the WithAuth helper.
type AuthOptions struct {
	Role           string
	AllowAnonymous bool
}

// WithAuth wraps a handler with basic authentication/authorization guards.
func WithAuth(handler fiber.Handler, opts AuthOptions) fiber.Handler {
	role := normalizeRoleName(opts.Role)
	if role == "" {
		role = AuthRoleAny
	}
	allowAnonymous := opts.AllowAnonymous && role == AuthRoleAny

	return func(c *fiber.Ctx) error {
		userID := strings.TrimSpace(localString(c, LocalUserID))
		if userID == "" {
			if allowAnonymous {
				return handler(c)
			}
			return utils.Fail(c, fiber.StatusUnauthorized, "authentication required", nil)
		}

		currentRole := normalizeRoleName(localString(c, LocalUserRole))
		switch role {
		case AuthRoleAny:
		case AuthRoleAdmin:
			if !IsAdminRole(currentRole) {
				return utils.Fail(c, fiber.StatusForbidden, "insufficient permissions", nil)
			}
		case AuthRoleCustomer:
			if currentRole != "" && currentRole != "customer" && currentRole != "user" {
				return utils.Fail(c, fiber.StatusForbidden, "insufficient permissions", nil)
			}
		default:
			if currentRole != role {
				return utils.Fail(c, fiber.StatusForbidden, "insufficient permissions", nil)
			}
		}

		return handler(c)
	}
}

// Authorize is WithAuth as a group middleware.
func Authorize(opts AuthOptions) fiber.Handler {
	return WithAuth(func(c *fiber.Ctx) error { return c.Next() }, opts)
}

// IsAdminRole reports whether role belongs to the support side.
func IsAdminRole(role string) bool {
	role = normalizeRoleName(role)
	for _, candidate := range AdminRoles {
		if role == candidate {
			return true
		}
	}
	return false
}

func localString(c *fiber.Ctx, key string) string {
	if value, ok := c.Locals(key).(string); ok {
		return value
	}
	return ""
}

func isWebsocketUpgrade(c *fiber.Ctx) bool {
	return strings.EqualFold(c.Get(fiber.HeaderUpgrade), "websocket")
}
