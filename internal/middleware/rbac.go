package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/storefront-api/internal/utils"
)

// RequireRole guards a route group so only authenticated callers whose token
// role is one of roles get through. Missing identities get 401, other roles 403.
func RequireRole(roles ...string) fiber.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		if normalized := normalizeRoleName(role); normalized != "" {
			allowed[normalized] = struct{}{}
		}
	}

	return func(c *fiber.Ctx) error {
		if strings.TrimSpace(localString(c, LocalUserID)) == "" {
			return utils.SendError(c, fiber.StatusUnauthorized, "authentication required")
		}
		if _, ok := allowed[normalizeRoleName(localString(c, LocalUserRole))]; !ok {
			return utils.SendError(c, fiber.StatusForbidden, "insufficient permissions")
		}
		return c.Next()
	}
}

func normalizeRoleName(role string) string {
	return strings.ToLower(strings.TrimSpace(role))
}
