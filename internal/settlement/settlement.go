// Package settlement implements the Clear/Release/Reverse operations
// that advance an Authorization past its initial hold.
package settlement

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/congo-pay/cardcore/internal/authorization"
	"github.com/congo-pay/cardcore/internal/bankadapter"
	"github.com/congo-pay/cardcore/internal/ledgerentry"
	"github.com/congo-pay/cardcore/internal/metrics"
	"github.com/congo-pay/cardcore/internal/money"
)

// Pipeline implements Clear, Release, and Reverse. All three are gated
// by the same decision-cache discipline as authorization: a ledger entry
// already present for the given idempotency key means the work has
// already happened.
type Pipeline struct {
	Store   authorization.Store
	Bank    bankadapter.BankAccountAdapter
	Ledger  ledgerentry.Store
	Metrics *metrics.Collector
	Now     func() time.Time

	// Timeouts bounds each CBS adapter call placed by Clear and Release.
	Timeouts bankadapter.Timeouts
}

func (p *Pipeline) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

// Clear commits a previously placed hold for clearingAmount <=
// authorization.amount.
func (p *Pipeline) Clear(ctx context.Context, authorizationID string, clearingAmount money.Money, idempotencyKey string) error {
	if already, err := p.Ledger.ExistsByIdempotencyKey(ctx, idempotencyKey); err != nil {
		return err
	} else if already {
		return nil
	}

	err := p.Store.Clear(ctx, authorizationID, func(a authorization.Authorization) (authorization.Authorization, ledgerentry.Entry, error) {
		if a.Status != authorization.StatusApproved {
			return authorization.Authorization{}, ledgerentry.Entry{}, &authorization.ErrInvalidState{AuthorizationID: authorizationID, Status: a.Status, Wanted: string(authorization.StatusApproved)}
		}
		exceeds, err := clearingAmount.GreaterThan(a.Amount)
		if err != nil {
			return authorization.Authorization{}, ledgerentry.Entry{}, &authorization.ErrInvalidArgument{Reason: err.Error()}
		}
		if exceeds {
			return authorization.Authorization{}, ledgerentry.Entry{}, &authorization.ErrInvalidArgument{Reason: fmt.Sprintf("clearing amount %s exceeds authorized amount %s", clearingAmount, a.Amount)}
		}

		commitCtx, cancel := bankadapter.WithTimeout(ctx, p.Timeouts.Commit)
		commitErr := p.Bank.CommitDebit(commitCtx, a.AccountRef, clearingAmount, authorizationID)
		cancel()
		if commitErr != nil {
			commitErr = bankadapter.WrapTimeout(commitErr, a.AccountRef, "commitDebit")
			return authorization.Authorization{}, ledgerentry.Entry{}, &authorization.ErrSettlementFailed{AuthorizationID: authorizationID, Cause: commitErr}
		}

		now := p.now().UTC()
		a.Status = authorization.StatusCleared
		a.ClearedAmount = &clearingAmount
		a.UpdatedAt = now

		entry := ledgerentry.Entry{
			ID:              uuid.NewString(),
			TransactionID:   authorizationID,
			AccountRef:      a.AccountRef,
			EntryType:       ledgerentry.Debit,
			Amount:          clearingAmount,
			TransactionType: ledgerentry.ClearingCommit,
			AuthorizationID: authorizationID,
			CardID:          a.CardID,
			IdempotencyKey:  idempotencyKey,
			CreatedAt:       now,
		}
		return a, entry, nil
	})
	if p.Metrics != nil {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		p.Metrics.ObserveSettlement("clear", outcome)
	}
	return err
}

// Release cancels a hold without debiting. A non-APPROVED authorization
// is treated as already settled and the call is a no-op.
func (p *Pipeline) Release(ctx context.Context, authorizationID string, idempotencyKey string) error {
	if already, err := p.Ledger.ExistsByIdempotencyKey(ctx, idempotencyKey); err != nil {
		return err
	} else if already {
		return nil
	}

	a, err := p.Store.GetByID(ctx, authorizationID)
	if err != nil {
		return err
	}
	if a.Status != authorization.StatusApproved {
		return nil
	}

	err = p.Store.Release(ctx, authorizationID, func(a authorization.Authorization) (authorization.Authorization, ledgerentry.Entry, error) {
		if a.Status != authorization.StatusApproved {
			return a, ledgerentry.Entry{}, errAlreadySettled
		}

		// Adapter errors, including a timed-out call whose outcome at the
		// CBS is unknown, are discarded here (not logged, not returned) and
		// never block local state advancement: the hold is either already gone or will be
		// reconciled, and the decision to mark RELEASED is local. The
		// release runs on its own detached deadline so it isn't cut short
		// by the caller's context.
		releaseCtx, cancel := bankadapter.WithTimeout(context.Background(), p.Timeouts.Release)
		_ = p.Bank.ReleaseHold(releaseCtx, a.AccountRef, a.Amount, authorizationID)
		cancel()

		now := p.now().UTC()
		a.Status = authorization.StatusReleased
		a.UpdatedAt = now

		entry := ledgerentry.Entry{
			ID:              uuid.NewString(),
			TransactionID:   authorizationID,
			AccountRef:      a.AccountRef,
			EntryType:       ledgerentry.Credit,
			Amount:          a.Amount,
			TransactionType: ledgerentry.AuthRelease,
			AuthorizationID: authorizationID,
			CardID:          a.CardID,
			IdempotencyKey:  idempotencyKey,
			CreatedAt:       now,
		}
		return a, entry, nil
	})
	if err == errAlreadySettled {
		return nil
	}
	if p.Metrics != nil {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		p.Metrics.ObserveSettlement("release", outcome)
	}
	return err
}

// errAlreadySettled signals a race losing against a concurrent Release:
// the mutate callback bails out without error to the caller since
// Release has already made it idempotent above the lock.
var errAlreadySettled = alreadySettled{}

type alreadySettled struct{}

func (alreadySettled) Error() string { return "authorization already settled" }

// Reverse records a (partial or full) reversal of a CLEARED
// authorization. The terminal status is REVERSED regardless of whether
// the reversal was partial; reversedTotal is carried for audit only.
func (p *Pipeline) Reverse(ctx context.Context, authorizationID string, reversalAmount money.Money, idempotencyKey string) error {
	if already, err := p.Ledger.ExistsByIdempotencyKey(ctx, idempotencyKey); err != nil {
		return err
	} else if already {
		return nil
	}

	err := p.Store.Reverse(ctx, authorizationID, func(a authorization.Authorization) (authorization.Authorization, ledgerentry.Entry, error) {
		if a.Status != authorization.StatusCleared {
			return authorization.Authorization{}, ledgerentry.Entry{}, &authorization.ErrInvalidState{AuthorizationID: authorizationID, Status: a.Status, Wanted: string(authorization.StatusCleared)}
		}
		if a.ClearedAmount == nil {
			return authorization.Authorization{}, ledgerentry.Entry{}, &authorization.ErrInvalidArgument{Reason: "cleared amount missing on a cleared authorization"}
		}
		exceeds, err := reversalAmount.GreaterThan(*a.ClearedAmount)
		if err != nil {
			return authorization.Authorization{}, ledgerentry.Entry{}, &authorization.ErrInvalidArgument{Reason: err.Error()}
		}
		if exceeds {
			return authorization.Authorization{}, ledgerentry.Entry{}, &authorization.ErrInvalidArgument{Reason: fmt.Sprintf("reversal amount %s exceeds cleared amount %s", reversalAmount, *a.ClearedAmount)}
		}

		runningTotal := reversalAmount
		if a.ReversedTotal != nil {
			sum, err := a.ReversedTotal.Add(reversalAmount)
			if err != nil {
				return authorization.Authorization{}, ledgerentry.Entry{}, err
			}
			runningTotal = sum
		}

		now := p.now().UTC()
		a.Status = authorization.StatusReversed
		a.ReversedTotal = &runningTotal
		a.UpdatedAt = now

		entry := ledgerentry.Entry{
			ID:              uuid.NewString(),
			TransactionID:   authorizationID,
			AccountRef:      a.AccountRef,
			EntryType:       ledgerentry.Credit,
			Amount:          reversalAmount,
			TransactionType: ledgerentry.Reversal,
			AuthorizationID: authorizationID,
			CardID:          a.CardID,
			IdempotencyKey:  idempotencyKey,
			CreatedAt:       now,
		}
		return a, entry, nil
	})
	if p.Metrics != nil {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		p.Metrics.ObserveSettlement("reverse", outcome)
	}
	return err
}
