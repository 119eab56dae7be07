package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
)

func TestRateLimitKeysByUser(t *testing.T) {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		if user := c.Get("X-User"); user != "" {
			c.Locals(LocalUserID, user)
		}
		return c.Next()
	})
	app.Post("/send", RateLimit("conversation-send", 2, time.Minute), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	send := func(user string) *http.Response {
		req := httptest.NewRequest(http.MethodPost, "/send", nil)
		if user != "" {
			req.Header.Set("X-User", user)
		}
		resp, err := app.Test(req)
		require.NoError(t, err)
		return resp
	}

	require.Equal(t, fiber.StatusOK, send("a").StatusCode)
	require.Equal(t, fiber.StatusOK, send("a").StatusCode)

	limited := send("a")
	require.Equal(t, fiber.StatusTooManyRequests, limited.StatusCode)
	require.Equal(t, "60", limited.Header.Get(fiber.HeaderRetryAfter))

	var body struct {
		Success bool                   `json:"success"`
		Details map[string]interface{} `json:"details"`
	}
	require.NoError(t, json.NewDecoder(limited.Body).Decode(&body))
	require.False(t, body.Success)
	require.Equal(t, float64(2), body.Details["limit"])

	require.Equal(t, fiber.StatusOK, send("b").StatusCode)
	require.Equal(t, fiber.StatusOK, send("").StatusCode)
}
