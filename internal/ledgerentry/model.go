// Package ledgerentry implements the append-only audit trail of
// coordination events. It is not a source of
// truth for money movement — the CBS is — only a record of what the core
// asked the CBS to do and when, keyed for idempotent replay.
package ledgerentry

import (
	"context"
	"time"

	"github.com/congo-pay/cardcore/internal/money"
)

// EntryType is the DEBIT/CREDIT direction of a LedgerEntry.
type EntryType string

const (
	Debit  EntryType = "DEBIT"
	Credit EntryType = "CREDIT"
)

// TransactionType classifies the coordination event a LedgerEntry
// records.
type TransactionType string

const (
	AuthHold       TransactionType = "AUTH_HOLD"
	AuthRelease    TransactionType = "AUTH_RELEASE"
	ClearingCommit TransactionType = "CLEARING_COMMIT"
	Reversal       TransactionType = "REVERSAL"
	Deposit        TransactionType = "DEPOSIT"
	Withdrawal     TransactionType = "WITHDRAWAL"
)

// Entry is a single append-only audit record.
type Entry struct {
	ID              string
	TransactionID   string
	AccountRef      string
	EntryType       EntryType
	Amount          money.Money
	TransactionType TransactionType
	AuthorizationID string // optional
	CardID          string // optional
	IdempotencyKey  string
	CreatedAt       time.Time
}

// ErrDuplicateKey reports an entry that already exists for the given
// idempotency key. The Append implementations in this package do not
// return it: they treat a duplicate key as "already recorded" and return
// nil.
var ErrDuplicateKey = errAlreadyExists{}

type errAlreadyExists struct{}

func (errAlreadyExists) Error() string {
	return "ledger entry with this idempotency key already exists"
}

// Store persists LedgerEntry records. No updates or deletes are ever
// issued against it.
type Store interface {
	Append(ctx context.Context, e Entry) error
	ExistsByIdempotencyKey(ctx context.Context, key string) (bool, error)
}

// AppendIfAbsent is the decision-cache-respecting helper every pipeline
// step uses before appending: if an entry already exists for key, it is a
// no-op, matching the idempotency discipline every pipeline step relies on.
func AppendIfAbsent(ctx context.Context, store Store, e Entry) error {
	exists, err := store.ExistsByIdempotencyKey(ctx, e.IdempotencyKey)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return store.Append(ctx, e)
}
