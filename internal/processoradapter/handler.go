package processoradapter

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes the processor-facing webhook endpoints over HTTP.
type Handler struct {
	adapter *Adapter
}

// NewHandler builds a processor webhook handler.
func NewHandler(adapter *Adapter) *Handler {
	return &Handler{adapter: adapter}
}

type authorizationRequest struct {
	ProcessorTransactionID string `json:"processor_transaction_id"`
	CardToken              string `json:"card_token"`
	AmountMinor            int64  `json:"amount_minor"`
	Currency               string `json:"currency"`
	MerchantName           string `json:"merchant_name"`
	MCC                    string `json:"mcc"`
	MerchantCity           string `json:"merchant_city"`
	MerchantCountry        string `json:"merchant_country"`
	IdempotencyKey         string `json:"idempotency_key"`
}

type authorizationResponse struct {
	AuthorizationID string `json:"authorization_id,omitempty"`
	Approved        bool   `json:"approved"`
	DeclineReason   string `json:"decline_reason,omitempty"`
}

// Authorize handles POST /processor/authorizations.
func (h *Handler) Authorize(c *fiber.Ctx) error {
	var req authorizationRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	resp, err := h.adapter.HandleAuthorization(c.UserContext(), AuthorizationEvent{
		ProcessorTransactionID: req.ProcessorTransactionID,
		CardToken:              req.CardToken,
		AmountMinor:            req.AmountMinor,
		Currency:               req.Currency,
		MerchantName:           req.MerchantName,
		MCC:                    req.MCC,
		MerchantCity:           req.MerchantCity,
		MerchantCountry:        req.MerchantCountry,
		IdempotencyKey:         req.IdempotencyKey,
	})
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}

	return c.Status(http.StatusOK).JSON(authorizationResponse{
		AuthorizationID: resp.AuthorizationID,
		Approved:        resp.Approved,
		DeclineReason:   resp.DeclineReason,
	})
}

type clearingRequest struct {
	ProcessorTransactionID string `json:"processor_transaction_id"`
	ClearingAmountMinor    int64  `json:"clearing_amount_minor"`
	Currency               string `json:"currency"`
	IdempotencyKey         string `json:"idempotency_key"`
}

// Clear handles POST /processor/clearings.
func (h *Handler) Clear(c *fiber.Ctx) error {
	var req clearingRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	err := h.adapter.HandleClearing(c.UserContext(), ClearingEvent{
		ProcessorTransactionID: req.ProcessorTransactionID,
		ClearingAmountMinor:    req.ClearingAmountMinor,
		Currency:               req.Currency,
		IdempotencyKey:         req.IdempotencyKey,
	})
	if err != nil {
		if errors.Is(err, ErrUnknownTransaction) {
			return fiber.NewError(http.StatusInternalServerError, "unknown processor transaction, retry")
		}
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	return c.SendStatus(http.StatusOK)
}

type reversalRequest struct {
	ProcessorTransactionID string `json:"processor_transaction_id"`
	ReversalAmountMinor    int64  `json:"reversal_amount_minor"`
	Currency               string `json:"currency"`
	IdempotencyKey         string `json:"idempotency_key"`
}

// Reverse handles POST /processor/reversals.
func (h *Handler) Reverse(c *fiber.Ctx) error {
	var req reversalRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	err := h.adapter.HandleReversal(c.UserContext(), ReversalEvent{
		ProcessorTransactionID: req.ProcessorTransactionID,
		ReversalAmountMinor:    req.ReversalAmountMinor,
		Currency:               req.Currency,
		IdempotencyKey:         req.IdempotencyKey,
	})
	if err != nil {
		if errors.Is(err, ErrUnknownTransaction) {
			return fiber.NewError(http.StatusInternalServerError, "unknown processor transaction, retry")
		}
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	return c.SendStatus(http.StatusOK)
}
