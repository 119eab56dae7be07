package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
)

func TestRequireRole(t *testing.T) {
	cases := []struct {
		name   string
		userID string
		role   string
		status int
	}{
		{name: "admin", userID: "agent-1", role: "admin", status: fiber.StatusOK},
		{name: "support mixed case", userID: "agent-2", role: " Support ", status: fiber.StatusOK},
		{name: "customer", userID: "cus-1", role: "customer", status: fiber.StatusForbidden},
		{name: "roleless", userID: "cus-2", status: fiber.StatusForbidden},
		{name: "anonymous", role: "admin", status: fiber.StatusUnauthorized},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			app := fiber.New()
			app.Use(func(c *fiber.Ctx) error {
				if tc.userID != "" {
					c.Locals(LocalUserID, tc.userID)
				}
				c.Locals(LocalUserRole, tc.role)
				return c.Next()
			})
			app.Use(RequireRole(AdminRoles...))
			app.Get("/admin", func(c *fiber.Ctx) error {
				return c.SendStatus(fiber.StatusOK)
			})

			resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/admin", nil))
			require.NoError(t, err)
			require.Equal(t, tc.status, resp.StatusCode)
		})
	}
}
