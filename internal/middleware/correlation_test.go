package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/storefront-api/internal/observability"
)

func TestCorrelationIDPropagation(t *testing.T) {
	app := fiber.New()
	app.Use(CorrelationID())
	app.Get("/", func(c *fiber.Ctx) error {
		require.Equal(t, GetCorrelationID(c), observability.CorrelationID(c.UserContext()))
		return c.SendString(GetCorrelationID(c))
	})

	cases := []struct {
		name    string
		target  string
		headers map[string]string
		want    string
	}{
		{name: "header", target: "/", headers: map[string]string{HeaderCorrelationID: "req-123"}, want: "req-123"},
		{name: "request id fallback", target: "/", headers: map[string]string{"X-Request-ID": "abc.42"}, want: "abc.42"},
		{name: "query on upgrade", target: "/?correlation_id=ws-1", headers: map[string]string{"Upgrade": "websocket"}, want: "ws-1"},
		{name: "query ignored without upgrade", target: "/?correlation_id=ws-1"},
		{name: "invalid characters", target: "/", headers: map[string]string{HeaderCorrelationID: "bad id<script>"}},
		{name: "too long", target: "/", headers: map[string]string{HeaderCorrelationID: strings.Repeat("a", 65)}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.target, nil)
			for key, value := range tc.headers {
				req.Header.Set(key, value)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)

			got := resp.Header.Get(HeaderCorrelationID)
			if tc.want != "" {
				require.Equal(t, tc.want, got)
				return
			}
			require.Len(t, got, 36)
		})
	}
}
