package middleware

import (
	"strings"

	"github.com/audit-ledger/backend/internal/auth"
	"github.com/audit-ledger/backend/internal/config"
	"github.com/audit-ledger/backend/internal/rbac"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const (
	CtxOrgID   = "org_id"
	CtxActorID = "actor_id"
	CtxRole    = "role"
)

// AuthMiddleware verifies the bearer token and stashes the organization
// scope. Every audit query downstream is bound to this scope; there is
// no unscoped read path.
func AuthMiddleware(cfg *config.Config, log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing authorization header"})
		}

		tokenStr := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenStr == authHeader {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid authorization format"})
		}

		claims, err := auth.ParseJWT(cfg.JWTSecret, tokenStr)
		if err != nil {
			log.Debug("jwt parse error", zap.Error(err))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid or expired token"})
		}

		c.Locals(CtxOrgID, claims.OrgID)
		c.Locals(CtxActorID, claims.ActorID)
		c.Locals(CtxRole, claims.Role)

		return c.Next()
	}
}

func GetOrgID(c *fiber.Ctx) string {
	org, _ := c.Locals(CtxOrgID).(string)
	return org
}

func GetActorID(c *fiber.Ctx) string {
	actor, _ := c.Locals(CtxActorID).(string)
	return actor
}

func GetRole(c *fiber.Ctx) string {
	role, _ := c.Locals(CtxRole).(string)
	return role
}

// RequirePermission gates an endpoint on the caller's role.
func RequirePermission(permission string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !rbac.HasPermission(GetRole(c), permission) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "insufficient permissions"})
		}
		return c.Next()
	}
}
