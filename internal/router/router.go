package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/noah-isme/storefront-api/internal/config"
	"github.com/noah-isme/storefront-api/internal/handler"
	"github.com/noah-isme/storefront-api/internal/middleware"
	"github.com/noah-isme/storefront-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	ConversationHandler      *handler.ConversationHandler
	AdminConversationHandler *handler.AdminConversationHandler
	StreamHandler            *handler.ConversationStreamHandler
	JWTMiddleware            fiber.Handler
	HealthProbes             []handler.HealthProbe
	MetricsGatherer          prometheus.Gatherer
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.HealthProbes...))

	app.Get("/metrics", observability.MetricsHandler(deps.MetricsGatherer))

	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	conversation := app.Group("/api/conversation", jwtMiddleware)

	admin := conversation.Group("/admin", middleware.RequireRole(middleware.AdminRoles...))
	if deps.StreamHandler != nil {
		deps.StreamHandler.RegisterAdmin(admin)
	}
	if deps.AdminConversationHandler != nil {
		deps.AdminConversationHandler.Register(admin)
	}

	if deps.StreamHandler != nil {
		deps.StreamHandler.RegisterUser(conversation)
	}
	if deps.ConversationHandler != nil {
		deps.ConversationHandler.Register(conversation)
	}
}
