package card

import "time"

// State is the lifecycle state of a Card.
type State string

const (
	StateActive State = "ACTIVE"
	StateFrozen State = "FROZEN"
	StateClosed State = "CLOSED"
)

// Card is a payment instrument mapped to a pre-existing CBS account. A
// card created by the issuance pipeline starts FROZEN and must be
// explicitly activated.
type Card struct {
	ID             string
	CardholderName string
	Last4          string
	ExpirationDate time.Time // end-of-day semantics in UTC
	State          State
	OwnerID        string
}

// IsExpired reports whether the card's expiration date has passed, using
// the provided reference time (normally time.Now().UTC()).
func (c Card) IsExpired(now time.Time) bool {
	return now.UTC().After(endOfDayUTC(c.ExpirationDate))
}

func endOfDayUTC(d time.Time) time.Time {
	y, m, day := d.UTC().Date()
	return time.Date(y, m, day, 23, 59, 59, 999999999, time.UTC)
}

// ErrClosedCard is returned by any transition attempted against a CLOSED
// card; CLOSED is terminal.
type ErrClosedCard struct{ CardID string }

func (e *ErrClosedCard) Error() string { return "card " + e.CardID + " is closed" }

// Freeze transitions the card to FROZEN. Valid from any non-CLOSED state.
func (c *Card) Freeze() error {
	if c.State == StateClosed {
		return &ErrClosedCard{CardID: c.ID}
	}
	c.State = StateFrozen
	return nil
}

// Activate transitions the card from FROZEN to ACTIVE. Any other
// starting state, including an already-ACTIVE card, is rejected.
func (c *Card) Activate() error {
	if c.State == StateClosed {
		return &ErrClosedCard{CardID: c.ID}
	}
	if c.State != StateFrozen {
		return ErrInvalidTransition
	}
	c.State = StateActive
	return nil
}

// Close transitions the card to CLOSED. Terminal; idempotent if already
// closed.
func (c *Card) Close() error {
	c.State = StateClosed
	return nil
}

// BankAccountMapping is the immutable, one-time binding of a card to a
// CBS client/account reference. Many cards may map to the same account;
// one card maps to exactly one account.
type BankAccountMapping struct {
	ID             string
	CardID         string
	BankClientRef  string
	BankAccountRef string
	BankCoreType   string
	CreatedAt      time.Time
	CreatedBy      string
}
