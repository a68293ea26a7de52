package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/cardcore/internal/authorization"
	"github.com/congo-pay/cardcore/internal/settlement"
)

// RegisterAuthorizationRoutes wires the direct POST /authorizations and
// GET /authorizations/{authorizationId} endpoints.
func RegisterAuthorizationRoutes(r fiber.Router, h *authorization.Handler) {
	group := r.Group("/authorizations")
	group.Post("/", h.Authorize)
	group.Get("/:authorizationId", h.Get)
}

// RegisterSettlementRoutes wires the direct clear/release/reverse
// endpoints addressed by authorizationId.
func RegisterSettlementRoutes(r fiber.Router, h *settlement.Handler) {
	group := r.Group("/settlement")
	group.Post("/clear/:authorizationId", h.Clear)
	group.Post("/release/:authorizationId", h.Release)
	group.Post("/reverse/:authorizationId", h.Reverse)
}
