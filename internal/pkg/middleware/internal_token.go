package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/CreditFox/internal/pkg/env"
)

// InternalTokenMiddleware guards the internal job endpoints with a static
// bearer token (INTERNAL_JOB_TOKEN). With no token configured the endpoints
// are disabled entirely.
func InternalTokenMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := env.GetEnv("INTERNAL_JOB_TOKEN", "")
		if token == "" {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Internal endpoints disabled"})
		}

		presented := strings.TrimSpace(c.Get("Authorization"))
		if strings.HasPrefix(strings.ToLower(presented), "bearer ") {
			presented = strings.TrimSpace(presented[7:])
		}
		if presented == "" {
			presented = strings.TrimSpace(c.Get("X-Internal-Token"))
		}

		if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Invalid internal token"})
		}
		return c.Next()
	}
}
