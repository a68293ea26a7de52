package card

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes card lifecycle HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a card HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type issueRequest struct {
	CardholderName string `json:"cardholder_name"`
	Last4          string `json:"last4"`
	ExpirationDate string `json:"expiration_date"` // RFC3339
	OwnerID        string `json:"owner_id"`
	BankClientRef  string `json:"bank_client_ref"`
	BankAccountRef string `json:"bank_account_ref"`
	BankCoreType   string `json:"bank_core_type"`
}

type cardResponse struct {
	CardID         string `json:"cardId"`
	CardholderName string `json:"cardholderName"`
	Last4          string `json:"last4"`
	ExpirationDate string `json:"expirationDate"`
	State          string `json:"state"`
	OwnerID        string `json:"ownerId"`
}

func toCardResponse(c Card) cardResponse {
	return cardResponse{
		CardID:         c.ID,
		CardholderName: c.CardholderName,
		Last4:          c.Last4,
		ExpirationDate: c.ExpirationDate.Format(time.RFC3339),
		State:          string(c.State),
		OwnerID:        c.OwnerID,
	}
}

// Issue handles POST /cards.
func (h *Handler) Issue(c *fiber.Ctx) error {
	var req issueRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	expiresAt, err := time.Parse(time.RFC3339, req.ExpirationDate)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "expiration_date must be RFC3339")
	}

	uid, _ := c.Locals("operator_id").(string)

	issued, err := h.service.Issue(c.UserContext(), IssueInput{
		CardholderName: req.CardholderName,
		Last4:          req.Last4,
		ExpirationDate: expiresAt,
		OwnerID:        req.OwnerID,
		BankClientRef:  req.BankClientRef,
		BankAccountRef: req.BankAccountRef,
		BankCoreType:   req.BankCoreType,
		CreatedBy:      uid,
	})
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	return c.Status(http.StatusCreated).JSON(toCardResponse(issued))
}

// Get handles GET /cards/{id}.
func (h *Handler) Get(c *fiber.Ctx) error {
	id := c.Params("id")
	got, err := h.service.Get(c.UserContext(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fiber.NewError(http.StatusNotFound, "card not found")
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(toCardResponse(got))
}

// Freeze handles POST /cards/{id}/freeze.
func (h *Handler) Freeze(c *fiber.Ctx) error {
	return h.lifecycleOp(c, h.service.Freeze)
}

// Unfreeze handles POST /cards/{id}/unfreeze.
func (h *Handler) Unfreeze(c *fiber.Ctx) error {
	return h.lifecycleOp(c, h.service.Activate)
}

// Close handles POST /cards/{id}/close.
func (h *Handler) Close(c *fiber.Ctx) error {
	return h.lifecycleOp(c, h.service.Close)
}

func (h *Handler) lifecycleOp(c *fiber.Ctx, op func(context.Context, string) error) error {
	id := c.Params("id")
	if err := op(c.UserContext(), id); err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			return fiber.NewError(http.StatusNotFound, "card not found")
		case errors.Is(err, ErrInvalidTransition):
			return fiber.NewError(http.StatusBadRequest, err.Error())
		default:
			var closed *ErrClosedCard
			if errors.As(err, &closed) {
				return fiber.NewError(http.StatusBadRequest, err.Error())
			}
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
	}
	return c.SendStatus(http.StatusOK)
}
