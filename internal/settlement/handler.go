package settlement

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/cardcore/internal/authorization"
	"github.com/congo-pay/cardcore/internal/money"
)

// Handler exposes the direct settlement API: clear, release, and reverse
// operations addressed by authorizationId, as opposed to
// internal/processoradapter's translation from a processor's own event
// shape.
type Handler struct {
	Pipeline *Pipeline
}

// NewHandler builds a direct settlement HTTP handler.
func NewHandler(pipeline *Pipeline) *Handler {
	return &Handler{Pipeline: pipeline}
}

type amountRequest struct {
	AmountMinor    int64  `json:"amount_minor"`
	Currency       string `json:"currency"`
	IdempotencyKey string `json:"idempotency_key"`
}

// Clear handles POST /settlement/clear/{authorizationId}.
func (h *Handler) Clear(c *fiber.Ctx) error {
	var req amountRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	amount, err := money.FromMinorUnits(req.AmountMinor, money.Currency(req.Currency))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	if err := h.Pipeline.Clear(c.UserContext(), c.Params("authorizationId"), amount, req.IdempotencyKey); err != nil {
		return settlementError(err)
	}
	return c.SendStatus(http.StatusOK)
}

type releaseRequest struct {
	IdempotencyKey string `json:"idempotency_key"`
}

// Release handles POST /settlement/release/{authorizationId}.
func (h *Handler) Release(c *fiber.Ctx) error {
	var req releaseRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	if err := h.Pipeline.Release(c.UserContext(), c.Params("authorizationId"), req.IdempotencyKey); err != nil {
		return settlementError(err)
	}
	return c.SendStatus(http.StatusOK)
}

// Reverse handles POST /settlement/reverse/{authorizationId}.
func (h *Handler) Reverse(c *fiber.Ctx) error {
	var req amountRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	amount, err := money.FromMinorUnits(req.AmountMinor, money.Currency(req.Currency))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	if err := h.Pipeline.Reverse(c.UserContext(), c.Params("authorizationId"), amount, req.IdempotencyKey); err != nil {
		return settlementError(err)
	}
	return c.SendStatus(http.StatusOK)
}

func settlementError(err error) error {
	if errors.Is(err, authorization.ErrNotFound) {
		return fiber.NewError(http.StatusNotFound, "authorization not found")
	}
	var invalidState *authorization.ErrInvalidState
	if errors.As(err, &invalidState) {
		return fiber.NewError(http.StatusConflict, err.Error())
	}
	var invalidArg *authorization.ErrInvalidArgument
	if errors.As(err, &invalidArg) {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	return fiber.NewError(http.StatusInternalServerError, err.Error())
}
