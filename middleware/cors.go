package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"cdmsuite/config"
)

// CORS allows credentialed requests from the configured frontend origins.
// Auth tokens travel in cookies, so the wildcard origin is never emitted;
// unlisted origins simply get no CORS headers.
func CORS() fiber.Handler {
	allowed := make(map[string]struct{}, len(config.AppConfig.AllowedOrigins))
	for _, origin := range config.AppConfig.AllowedOrigins {
		origin = strings.TrimSpace(origin)
		if origin != "" {
			allowed[origin] = struct{}{}
		}
	}

	return func(c *fiber.Ctx) error {
		origin := c.Get("Origin")
		if _, ok := allowed[origin]; ok {
			c.Set("Access-Control-Allow-Origin", origin)
			c.Set("Access-Control-Allow-Credentials", "true")
			c.Set("Vary", "Origin")
		}

		if c.Method() == fiber.MethodOptions {
			c.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
			c.Set("Access-Control-Allow-Headers", "Origin,Content-Type,Accept,Authorization")
			c.Set("Access-Control-Max-Age", "3600")
			return c.SendStatus(fiber.StatusNoContent)
		}

		return c.Next()
	}
}
