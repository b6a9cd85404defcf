package hub

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
)

// newAuthMiddleware requires "Authorization: Bearer <key>" on every route
// except the probes. An empty key disables the check.
func newAuthMiddleware(key string, logger zerolog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if key == "" {
			return c.Next()
		}

		path := c.Path()
		if path == "/healthz" || path == "/readyz" || path == "/metrics" {
			return c.Next()
		}
		if c.Method() == fiber.MethodOptions {
			return c.Next()
		}

		authHeader := c.Get(fiber.HeaderAuthorization)
		if authHeader == "" {
			return problemResponse(c, fiber.StatusUnauthorized,
				"missing_auth", "Unauthorized",
				"Authorization header is required")
		}
		token, ok := strings.CutPrefix(authHeader, "Bearer ")
		if !ok {
			return problemResponse(c, fiber.StatusUnauthorized,
				"invalid_auth_scheme", "Unauthorized",
				"Authorization header must use Bearer scheme")
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(key)) != 1 {
			logger.Warn().
				Str("path", path).
				Str("method", c.Method()).
				Str("request_id", requestIDOf(c)).
				Msg("unauthorized hub request: invalid key")
			return problemResponse(c, fiber.StatusUnauthorized,
				"invalid_key", "Unauthorized",
				"Invalid hub key")
		}
		return c.Next()
	}
}
