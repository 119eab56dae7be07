package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/storefront-api/internal/observability"
)

func TestObservabilityCountsConversationRoutes(t *testing.T) {
	app := fiber.New()
	app.Use(Observability(zerolog.New(io.Discard)))
	app.Get("/api/conversation/admin/:id", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNotFound)
	})
	app.Get("/api/v1/health", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	route := "/api/conversation/admin/:id"
	before := testutil.ToFloat64(observability.HTTPRequests().WithLabelValues(http.MethodGet, route, "404"))
	errorsBefore := testutil.ToFloat64(observability.HTTPErrors().WithLabelValues(http.MethodGet, route, "404"))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/conversation/admin/conv-1", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	require.Equal(t, before+1, testutil.ToFloat64(observability.HTTPRequests().WithLabelValues(http.MethodGet, route, "404")))
	require.Equal(t, errorsBefore+1, testutil.ToFloat64(observability.HTTPErrors().WithLabelValues(http.MethodGet, route, "404")))
	require.Zero(t, testutil.ToFloat64(observability.HTTPRequests().WithLabelValues(http.MethodGet, "/api/v1/health", "200")))
}

func TestLevelForStatus(t *testing.T) {
	require.Equal(t, zerolog.InfoLevel, levelForStatus(fiber.StatusCreated))
	require.Equal(t, zerolog.WarnLevel, levelForStatus(fiber.StatusTooManyRequests))
	require.Equal(t, zerolog.ErrorLevel, levelForStatus(fiber.StatusInternalServerError))
}
