// Package bankadapter defines the vendor-neutral contract the core uses to
// talk to an external core banking system (CBS). The CBS is always the
// balance owner; nothing in this package or its callers mirrors a balance
// locally.
package bankadapter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/congo-pay/cardcore/internal/money"
)

// InsufficientFunds is returned by PlaceHold when the account's available
// balance cannot cover the requested amount at the time of check.
type InsufficientFunds struct {
	AccountRef string
	Required   money.Money
	Available  money.Money
}

func (e *InsufficientFunds) Error() string {
	return fmt.Sprintf("insufficient funds on %s: required %s, available %s", e.AccountRef, e.Required, e.Available)
}

// BankCoreError wraps any CBS-side or transport failure encountered while
// performing an adapter operation.
type BankCoreError struct {
	AccountRef string
	Op         string
	Cause      error
}

func (e *BankCoreError) Error() string {
	return fmt.Sprintf("bank core error: account=%s op=%s: %v", e.AccountRef, e.Op, e.Cause)
}

func (e *BankCoreError) Unwrap() error { return e.Cause }

// BankAccountAdapter is the contract every CBS integration implements.
// All calls are synchronous; callers are expected to apply their own
// timeouts.
type BankAccountAdapter interface {
	// GetAvailableBalance returns the real-time available balance (total
	// minus any live holds).
	GetAvailableBalance(ctx context.Context, accountRef string) (money.Money, error)

	// PlaceHold reserves amount against accountRef. Idempotent on
	// referenceId: a second call with the same referenceId returns
	// success without placing a second hold.
	PlaceHold(ctx context.Context, accountRef string, amount money.Money, referenceID string) error

	// CommitDebit finalizes the debit tied to a previously placed hold.
	// amount must be <= the original hold amount (partial clear
	// permitted). Idempotent on referenceId once COMMITTED.
	CommitDebit(ctx context.Context, accountRef string, amount money.Money, referenceID string) error

	// ReleaseHold cancels the hold without debiting. Safe to call even
	// if no hold exists; idempotent.
	ReleaseHold(ctx context.Context, accountRef string, amount money.Money, referenceID string) error

	// GetAdapterName identifies the adapter implementation, for
	// observability only; never consulted on the authorization path.
	GetAdapterName() string

	// IsHealthy reports liveness, for observability only.
	IsHealthy(ctx context.Context) bool
}

// Timeouts bounds how long the core waits for each CBS adapter call.
// A zero field means the corresponding call is bounded only by the
// caller's own context.
type Timeouts struct {
	Balance time.Duration
	Hold    time.Duration
	Commit  time.Duration
	Release time.Duration
}

// WithTimeout derives a child context bounded by d, or returns ctx
// unchanged (with a no-op cancel) when d is zero.
func WithTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}

// IsTimeout reports whether err is (or wraps) a context deadline, i.e.
// the CBS call's outcome is unknown rather than known-failed.
func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}

// WrapTimeout converts a timed-out call into a BankCoreError so callers
// can treat it the same way as any other CBS-side failure; a non-timeout
// error is returned unchanged.
func WrapTimeout(err error, accountRef, op string) error {
	if !IsTimeout(err) {
		return err
	}
	return &BankCoreError{AccountRef: accountRef, Op: op, Cause: err}
}
