package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/noah-isme/storefront-api/internal/observability"
)

const (
	// HeaderCorrelationID is echoed on every response.
	HeaderCorrelationID = "X-Correlation-ID"
	// LocalCorrelationID holds the request correlation id in fiber locals.
	LocalCorrelationID  = "correlation_id"

	maxCorrelationIDLength = 64
)

// CorrelationID tags each request with an id taken from X-Correlation-ID or
// X-Request-ID, or from ?correlation_id= on websocket upgrades. Ids that are
// too long or carry unexpected characters are replaced with a fresh uuid.
func CorrelationID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Get(HeaderCorrelationID)
		if id == "" {
			id = c.Get(fiber.HeaderXRequestID)
		}
		if id == "" && isWebsocketUpgrade(c) {
			id = c.Query("correlation_id")
		}
		if !validCorrelationID(id) {
			id = uuid.NewString()
		}

		c.Locals(LocalCorrelationID, id)
		c.Set(HeaderCorrelationID, id)
		c.SetUserContext(observability.WithCorrelationID(c.UserContext(), id))
		return c.Next()
	}
}

// GetCorrelationID returns the correlation id bound to the request.
func GetCorrelationID(c *fiber.Ctx) string {
	if c == nil {
		return ""
	}
	if id := localString(c, LocalCorrelationID); id != "" {
		return id
	}
	return observability.CorrelationID(c.UserContext())
}

func validCorrelationID(id string) bool {
	if id == "" || len(id) > maxCorrelationIDLength {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-', r == '_', r == '.', r == ':':
		default:
			return false
		}
	}
	return true
}
