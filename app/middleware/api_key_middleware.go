// Package middleware contains HTTP middleware functions for request processing
package middleware

import (
	"crypto/subtle"

	"github.com/amirphl/freightdesk/app/dto"
	"github.com/amirphl/freightdesk/config"
	"github.com/gofiber/fiber/v3"
)

// APIKeyMiddleware checks the configured API key header on protected routes
type APIKeyMiddleware struct {
	required bool
	header   string
	keys     [][]byte
}

// NewAPIKeyMiddleware creates the middleware from the security settings
func NewAPIKeyMiddleware(cfg config.SecurityConfig) *APIKeyMiddleware {
	header := cfg.APIKeyHeader
	if header == "" {
		header = "X-API-Key"
	}
	keys := make([][]byte, 0, len(cfg.AllowedAPIKeys))
	for _, k := range cfg.AllowedAPIKeys {
		if k != "" {
			keys = append(keys, []byte(k))
		}
	}
	return &APIKeyMiddleware{
		required: cfg.RequireAPIKey,
		header:   header,
		keys:     keys,
	}
}

// Authenticate rejects requests without a known key. It is a pass-through
// when API keys are not required.
func (m *APIKeyMiddleware) Authenticate() fiber.Handler {
	return func(c fiber.Ctx) error {
		if !m.required {
			return c.Next()
		}

		apiKey := c.Get(m.header)
		if apiKey == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.APIResponse{
				Success: false,
				Message: "API key is required",
				Error: dto.ErrorDetail{
					Code: "MISSING_API_KEY",
				},
			})
		}

		if !m.valid([]byte(apiKey)) {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.APIResponse{
				Success: false,
				Message: "Invalid API key",
				Error: dto.ErrorDetail{
					Code: "INVALID_API_KEY",
				},
			})
		}

		return c.Next()
	}
}

func (m *APIKeyMiddleware) valid(key []byte) bool {
	ok := false
	for _, k := range m.keys {
		if subtle.ConstantTimeCompare(k, key) == 1 {
			ok = true
		}
	}
	return ok
}
