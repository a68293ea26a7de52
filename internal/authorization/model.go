// Package authorization implements the durable Authorization record and
// the authorization pipeline: card validation -> policy rules -> CBS hold
// placement -> durable record.
package authorization

import (
	"time"

	"github.com/congo-pay/cardcore/internal/money"
)

// Status is the phase of an Authorization's lifecycle.
type Status string

const (
	StatusApproved Status = "APPROVED"
	StatusDeclined Status = "DECLINED"
	StatusCleared  Status = "CLEARED"
	StatusReleased Status = "RELEASED"
	StatusReversed Status = "REVERSED"
)

// Merchant carries the merchant metadata attached to an authorization
// request.
type Merchant struct {
	Name    string
	MCC     string
	City    string
	Country string
}

// Authorization is the durable per-authorization record. Once in a
// terminal status for its phase (CLEARED, RELEASED, REVERSED, DECLINED)
// the record is not mutated except to advance to a later phase per the
// state machine
type Authorization struct {
	AuthorizationID string
	CardID          string
	AccountRef      string
	Amount          money.Money
	ClearedAmount   *money.Money
	// ReversedTotal tracks cumulative reversed amount for audit only;
	// REVERSED stays a single terminal status regardless of how many
	// partial reversals contributed to it.
	ReversedTotal  *money.Money
	Status         Status
	Merchant       Merchant
	DeclineReason  string
	IdempotencyKey string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
