// Package operatorauth gates the card-lifecycle, authorization and
// settlement operator surface behind bcrypt-hashed credentials and signed
// JWT access tokens. Rule configuration is read from the environment at
// startup and has no HTTP surface.
package operatorauth

import "time"

// Operator is a human or service account permitted to manage cards,
// authorizations and settlements through the HTTP API. It carries no relation to a
// Card or BankAccountMapping; operators administer the system, they do
// not hold funds.
type Operator struct {
	ID           string
	Username     string
	PasswordHash []byte
	Role         string
	TokenVersion int
	CreatedAt    time.Time
}

// Role values recognized by the operator API.
const (
	RoleAdmin   = "admin"
	RoleAnalyst = "analyst" // carried on the token; no registered route restricts by role, so an analyst can reach every operator endpoint an admin can
)

// Credentials is a login attempt.
type Credentials struct {
	Username string
	Password string
}
