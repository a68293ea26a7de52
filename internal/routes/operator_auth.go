package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/cardcore/internal/operatorauth"
)

// RegisterOperatorAuthRoutes wires the public operator login/logout
// endpoints, gated by a login rate limiter.
func RegisterOperatorAuthRoutes(r fiber.Router, h *operatorauth.Handler, rateLimiter fiber.Handler) {
	auth := r.Group("/auth")
	auth.Post("/login", rateLimiter, h.Login)
	auth.Post("/logout", h.Logout)
}
