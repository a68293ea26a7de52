package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/cardcore/internal/card"
)

// RegisterCardRoutes wires card lifecycle endpoints under an
// operator-authenticated group.
func RegisterCardRoutes(r fiber.Router, h *card.Handler) {
	cards := r.Group("/cards")
	cards.Post("/", h.Issue)
	cards.Get("/:id", h.Get)
	cards.Post("/:id/freeze", h.Freeze)
	cards.Post("/:id/unfreeze", h.Unfreeze)
	cards.Post("/:id/close", h.Close)
}
