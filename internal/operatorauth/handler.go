package operatorauth

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes operator login/logout endpoints.
type Handler struct {
	svc *Service
}

// NewHandler builds an operator auth HTTP handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresAt   int64  `json:"expires_at"`
}

// Login validates operator credentials and returns a signed access
// token.
func (h *Handler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	token, exp, err := h.svc.Authenticate(c.UserContext(), Credentials{Username: req.Username, Password: req.Password})
	if err != nil {
		return fiber.NewError(http.StatusUnauthorized, err.Error())
	}
	return c.Status(http.StatusOK).JSON(loginResponse{AccessToken: token, ExpiresAt: exp.Unix()})
}

type logoutRequest struct {
	OperatorID string `json:"operator_id"`
}

// Logout bumps the operator's token version, invalidating every
// outstanding token.
func (h *Handler) Logout(c *fiber.Ctx) error {
	var req logoutRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if req.OperatorID == "" {
		return fiber.NewError(http.StatusBadRequest, "operator_id is required")
	}
	if err := h.svc.Logout(c.UserContext(), req.OperatorID); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"status": "logged_out"})
}
