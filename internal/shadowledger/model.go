// Package shadowledger implements the reference CBS adapter workaround
// a CBS that only supports posted transactions
// (no native holds) is made to emulate a hold by posting a double-entry
// journal against a dedicated liability account ("auth-holds") at hold
// time, and a reversing entry at commit or release time. The CBS ledger
// stays balanced at every step and every movement is an ordinary, auditable
// CBS transaction.
package shadowledger

import "time"

// HoldStatus is the lifecycle state of a HoldRecord. Transitions are
// monotonic: ACTIVE -> {COMMITTED, RELEASED}.
type HoldStatus string

const (
	HoldActive    HoldStatus = "ACTIVE"
	HoldCommitted HoldStatus = "COMMITTED"
	HoldReleased  HoldStatus = "RELEASED"
)

// HoldRecord tracks a single authorization hold emulated over the shadow
// journal. AuthorizationID doubles as the adapter's referenceID and is
// unique: it is the idempotency key for every adapter call on this hold.
type HoldRecord struct {
	AuthorizationID string
	AccountRef      string
	JournalEntryID  string
	AmountMinor     int64
	Currency        string
	Status          HoldStatus
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
