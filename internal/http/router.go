package http

import (
	"github.com/audit-ledger/backend/internal/config"
	"github.com/audit-ledger/backend/internal/http/handlers"
	"github.com/audit-ledger/backend/internal/middleware"
	"github.com/audit-ledger/backend/internal/rbac"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func SetupRouter(
	app *fiber.App,
	cfg *config.Config,
	log *zap.Logger,
	rdb *redis.Client,
	auditHandler *handlers.AuditHandler,
	wsHub *handlers.WSHub,
) {
	// Global middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
	}))
	app.Use(middleware.RequestIDMiddleware())
	app.Use(middleware.LoggerMiddleware(log))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api/v1")
	api.Use(middleware.RateLimitMiddleware(rdb, cfg.RateLimit, cfg.RateLimitWindow))

	// Protected endpoints: every audit read is org-scoped via the token.
	protected := api.Group("", middleware.AuthMiddleware(cfg, log))

	protected.Get("/audit/logs",
		middleware.RequirePermission(rbac.PermViewAuditLog), auditHandler.ListLogs)
	protected.Get("/audit/logs/:id",
		middleware.RequirePermission(rbac.PermViewAuditLog), auditHandler.GetLog)
	protected.Post("/audit/verify",
		middleware.RequirePermission(rbac.PermVerifyChain), auditHandler.VerifyChain)

	// WebSocket live tail
	app.Use("/ws", handlers.WSUpgradeMiddleware())
	app.Get("/ws", websocket.New(wsHub.HandleWS))
}
