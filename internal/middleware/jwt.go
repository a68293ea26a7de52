package middleware

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/cardcore/internal/operatorauth"
)

// OperatorAuth returns a middleware that validates operator JWT access
// tokens and checks token version, rejecting any request that is not a
// valid bearer token for a still-current operator session.
func OperatorAuth(svc *operatorauth.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authz := c.Get(fiber.HeaderAuthorization)
		if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			return fiber.NewError(http.StatusUnauthorized, "missing bearer token")
		}
		tokenStr := strings.TrimSpace(authz[len("Bearer "):])

		op, err := svc.Verify(c.UserContext(), tokenStr)
		if err != nil {
			return fiber.NewError(http.StatusUnauthorized, "invalid token")
		}

		c.Locals("operator_id", op.ID)
		c.Locals("operator_role", op.Role)
		return c.Next()
	}
}

// RequireRole builds a middleware that rejects requests from an operator
// whose role does not match one of the allowed roles. Must run after
// OperatorAuth.
func RequireRole(allowed ...string) fiber.Handler {
	set := make(map[string]struct{}, len(allowed))
	for _, r := range allowed {
		set[r] = struct{}{}
	}
	return func(c *fiber.Ctx) error {
		role, _ := c.Locals("operator_role").(string)
		if _, ok := set[role]; !ok {
			return fiber.NewError(http.StatusForbidden, "operator role not permitted for this operation")
		}
		return c.Next()
	}
}
