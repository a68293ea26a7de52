package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/congo-pay/cardcore/internal/authorization"
	"github.com/congo-pay/cardcore/internal/ledgerentry"
	"github.com/congo-pay/cardcore/internal/money"
	"github.com/congo-pay/cardcore/internal/shadowledger"
)

func TestRunOnceReleasesOrphanedHold(t *testing.T) {
	ctx := context.Background()
	ledger := shadowledger.NewInMemory("gl-holds", "gl-settlement")
	entries := ledgerentry.NewMemoryStore()
	store := authorization.NewMemoryStore(entries)

	const accountRef = "acc-1"
	amount := money.MustNewFromMinor(5000, money.USD)
	if err := ledger.EnsureAccount(ctx, accountRef, money.USD); err != nil {
		t.Fatalf("ensure account: %v", err)
	}
	ledger.SeedBalance(accountRef, amount)

	const authID = "auth-orphan-1"
	if err := ledger.PlaceHold(ctx, accountRef, amount, authID); err != nil {
		t.Fatalf("place hold: %v", err)
	}

	// Simulate settlement.Release advancing local state to RELEASED
	// while the CBS-side release itself never happened.
	now := time.Now().UTC()
	if err := store.CreateApproved(ctx, authorization.Authorization{
		AuthorizationID: authID,
		CardID:          "card-1",
		AccountRef:      accountRef,
		Amount:          amount,
		Status:          authorization.StatusApproved,
		IdempotencyKey:  "idem-orphan-1",
		CreatedAt:       now,
		UpdatedAt:       now,
	}, ledgerentry.Entry{
		ID:              "entry-1",
		TransactionID:   authID,
		AccountRef:      accountRef,
		EntryType:       ledgerentry.Debit,
		Amount:          amount,
		TransactionType: ledgerentry.AuthHold,
		AuthorizationID: authID,
		IdempotencyKey:  "idem-orphan-1",
		CreatedAt:       now,
	}); err != nil {
		t.Fatalf("create approved: %v", err)
	}

	if err := store.Release(ctx, authID, func(a authorization.Authorization) (authorization.Authorization, ledgerentry.Entry, error) {
		a.Status = authorization.StatusReleased
		a.UpdatedAt = time.Now().UTC()
		return a, ledgerentry.Entry{
			ID:              "entry-release-1",
			TransactionID:   authID,
			AccountRef:      accountRef,
			EntryType:       ledgerentry.Credit,
			Amount:          amount,
			TransactionType: ledgerentry.AuthRelease,
			AuthorizationID: authID,
			IdempotencyKey:  "idem-release-1",
			CreatedAt:       time.Now().UTC(),
		}, nil
	}); err != nil {
		t.Fatalf("release: %v", err)
	}

	hold, err := ledger.HoldByAuthorizationID(ctx, authID)
	if err != nil {
		t.Fatalf("hold lookup: %v", err)
	}
	if hold.Status != shadowledger.HoldActive {
		t.Fatalf("expected hold still ACTIVE before reconciliation, got %s", hold.Status)
	}

	scheduler := NewScheduler(store, ledger, ledger, nil)
	if err := scheduler.RunOnce(ctx); err != nil {
		t.Fatalf("run once: %v", err)
	}

	hold, err = ledger.HoldByAuthorizationID(ctx, authID)
	if err != nil {
		t.Fatalf("hold lookup after reconcile: %v", err)
	}
	if hold.Status != shadowledger.HoldReleased {
		t.Fatalf("expected hold RELEASED after reconciliation, got %s", hold.Status)
	}

	balance, err := ledger.GetAvailableBalance(ctx, accountRef)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if !balance.Equal(amount) {
		t.Fatalf("expected balance restored to %s, got %s", amount, balance)
	}
}

func TestRunOnceSkipsAuthorizationWithoutHold(t *testing.T) {
	ctx := context.Background()
	ledger := shadowledger.NewInMemory("gl-holds", "gl-settlement")
	entries := ledgerentry.NewMemoryStore()
	store := authorization.NewMemoryStore(entries)

	const accountRef = "acc-2"
	amount := money.MustNewFromMinor(1000, money.USD)
	if err := ledger.EnsureAccount(ctx, accountRef, money.USD); err != nil {
		t.Fatalf("ensure account: %v", err)
	}
	ledger.SeedBalance(accountRef, amount)

	// No hold ever placed for this authorization id; the scheduler must
	// not error, only skip it.
	now := time.Now().UTC()
	if err := store.CreateApproved(ctx, authorization.Authorization{
		AuthorizationID: "auth-no-hold",
		CardID:          "card-2",
		AccountRef:      accountRef,
		Amount:          amount,
		Status:          authorization.StatusApproved,
		IdempotencyKey:  "idem-no-hold",
		CreatedAt:       now,
		UpdatedAt:       now,
	}, ledgerentry.Entry{
		ID:              "entry-2",
		TransactionID:   "auth-no-hold",
		AccountRef:      accountRef,
		EntryType:       ledgerentry.Debit,
		Amount:          amount,
		TransactionType: ledgerentry.AuthHold,
		AuthorizationID: "auth-no-hold",
		IdempotencyKey:  "idem-no-hold",
		CreatedAt:       now,
	}); err != nil {
		t.Fatalf("create approved: %v", err)
	}
	if err := store.Release(ctx, "auth-no-hold", func(a authorization.Authorization) (authorization.Authorization, ledgerentry.Entry, error) {
		a.Status = authorization.StatusReleased
		return a, ledgerentry.Entry{
			ID: "entry-release-2", TransactionID: "auth-no-hold", AccountRef: accountRef,
			EntryType: ledgerentry.Credit, Amount: amount, TransactionType: ledgerentry.AuthRelease,
			AuthorizationID: "auth-no-hold", IdempotencyKey: "idem-release-2", CreatedAt: time.Now().UTC(),
		}, nil
	}); err != nil {
		t.Fatalf("release: %v", err)
	}

	scheduler := NewScheduler(store, ledger, ledger, nil)
	if err := scheduler.RunOnce(ctx); err != nil {
		t.Fatalf("run once: %v", err)
	}
}
