package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/cardcore/internal/processoradapter"
)

// RegisterProcessorRoutes wires the inbound webhook endpoints a card
// processor calls for authorization, clearing, and reversal events.
func RegisterProcessorRoutes(r fiber.Router, h *processoradapter.Handler) {
	r.Post("/authorizations", h.Authorize)
	r.Post("/clearings", h.Clear)
	r.Post("/reversals", h.Reverse)
}
