package public

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/openasr/parakeetd/internal/httpserver/httputil"
)

const authBearerPrefix = "bearer "

// apiKeyAuth validates the Authorization bearer token against the single
// configured service key.
func apiKeyAuth(apiKey string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
		if raw == "" {
			return httputil.WriteMessage(c, fiber.StatusUnauthorized, "invalid_request_error", "Authorization header required", "", "missing_api_key")
		}
		if !strings.HasPrefix(strings.ToLower(raw), authBearerPrefix) {
			return httputil.WriteMessage(c, fiber.StatusUnauthorized, "invalid_request_error", "Bearer token required", "", "missing_api_key")
		}
		key := strings.TrimSpace(raw[len(authBearerPrefix):])
		if subtle.ConstantTimeCompare([]byte(key), []byte(apiKey)) != 1 {
			return httputil.WriteMessage(c, fiber.StatusUnauthorized, "invalid_request_error", "Invalid API key", "", "invalid_api_key")
		}
		return c.Next()
	}
}
