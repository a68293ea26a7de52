package authorization

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/cardcore/internal/money"
)

// Handler exposes the direct authorization API: a caller that already
// knows the card and amount, as opposed to internal/processoradapter's
// translation from a processor's own event shape.
type Handler struct {
	Pipeline *Pipeline
	Store    Store
}

// NewHandler builds a direct authorization HTTP handler.
func NewHandler(pipeline *Pipeline, store Store) *Handler {
	return &Handler{Pipeline: pipeline, Store: store}
}

type authorizeRequest struct {
	CardID          string `json:"card_id"`
	AmountMinor     int64  `json:"amount_minor"`
	Currency        string `json:"currency"`
	MerchantName    string `json:"merchant_name"`
	MCC             string `json:"mcc"`
	MerchantCity    string `json:"merchant_city"`
	MerchantCountry string `json:"merchant_country"`
	IdempotencyKey  string `json:"idempotency_key"`
}

type authorizeResponse struct {
	AuthorizationID string `json:"authorizationId"`
	Status          string `json:"status"`
	DeclineReason   string `json:"declineReason,omitempty"`
}

// Authorize handles POST /authorizations.
func (h *Handler) Authorize(c *fiber.Ctx) error {
	var req authorizeRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	amount, err := money.FromMinorUnits(req.AmountMinor, money.Currency(req.Currency))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	resp, err := h.Pipeline.Authorize(c.UserContext(), Request{
		CardID: req.CardID,
		Amount: amount,
		Merchant: Merchant{
			Name:    req.MerchantName,
			MCC:     req.MCC,
			City:    req.MerchantCity,
			Country: req.MerchantCountry,
		},
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		var invalidArg *ErrInvalidArgument
		if errors.As(err, &invalidArg) {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}

	return c.Status(http.StatusOK).JSON(authorizeResponse{
		AuthorizationID: resp.AuthorizationID,
		Status:          string(resp.Status),
		DeclineReason:   resp.DeclineReason,
	})
}

type authorizationDetail struct {
	AuthorizationID string `json:"authorizationId"`
	CardID          string `json:"cardId"`
	AccountRef      string `json:"accountRef"`
	AmountMinor     int64  `json:"amountMinor"`
	Currency        string `json:"currency"`
	Status          string `json:"status"`
	DeclineReason   string `json:"declineReason,omitempty"`
	CreatedAt       string `json:"createdAt"`
	UpdatedAt       string `json:"updatedAt"`
}

// Get handles GET /authorizations/{authorizationId}.
func (h *Handler) Get(c *fiber.Ctx) error {
	id := c.Params("authorizationId")
	a, err := h.Store.GetByID(c.UserContext(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fiber.NewError(http.StatusNotFound, "authorization not found")
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}

	return c.Status(http.StatusOK).JSON(authorizationDetail{
		AuthorizationID: a.AuthorizationID,
		CardID:          a.CardID,
		AccountRef:      a.AccountRef,
		AmountMinor:     a.Amount.MinorUnits(),
		Currency:        string(a.Amount.Currency()),
		Status:          string(a.Status),
		DeclineReason:   a.DeclineReason,
		CreatedAt:       a.CreatedAt.Format(time.RFC3339),
		UpdatedAt:       a.UpdatedAt.Format(time.RFC3339),
	})
}
