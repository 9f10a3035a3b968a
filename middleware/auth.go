// middleware/auth.go
package middleware

import (
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// UserContextMiddleware extracts user identity and roles set by Gateway.
// It is applied only to routes under /s/ — but for safety, we guard.
func UserContextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Get("X-User-ID")
		rolesStr := c.Get("X-User-Roles")

		// 🔐 Enforce user context on *secured* paths (i.e., /s/)
		path := c.Path()
		isSecured := strings.HasPrefix(path, "/s/")
		if isSecured && userID == "" {
			log.Printf("❌ [USER_CTX] X-User-ID required but missing on secured route: %s", path)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing X-User-ID — request must come through gateway with auth context",
			})
		}

		var roles []string
		if rolesStr != "" {
			for _, r := range strings.Split(rolesStr, ",") {
				r = strings.TrimSpace(r)
				if r != "" {
					roles = append(roles, r)
				}
			}
		}

		// Attach to ctx for handlers
		c.Locals("user_id", userID)
		c.Locals("user_roles", roles)

		return c.Next()
	}
}
