package middleware

import (
	"math"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/noah-isme/storefront-api/internal/utils"
)

// RateLimit caps how many messages one sender may post per window. Callers
// are keyed by user id, falling back to the client IP, and each name gets its
// own bucket. A sliding window keeps bursts at a window boundary from doubling
// the allowance.
func RateLimit(name string, max int, window time.Duration) fiber.Handler {
	if max <= 0 {
		max = 30
	}
	if window <= 0 {
		window = time.Minute
	}
	retryAfter := int(math.Ceil(window.Seconds()))

	return limiter.New(limiter.Config{
		Max:               max,
		Expiration:        window,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator: func(c *fiber.Ctx) string {
			if userID := localString(c, LocalUserID); userID != "" {
				return name + "|user|" + userID
			}
			return name + "|ip|" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(retryAfter))
			return utils.Fail(c, fiber.StatusTooManyRequests, "too many messages, slow down", fiber.Map{
				"limit":               max,
				"retry_after_seconds": retryAfter,
			})
		},
	})
}
