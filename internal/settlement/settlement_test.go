package settlement

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/congo-pay/cardcore/internal/authorization"
	"github.com/congo-pay/cardcore/internal/bankadapter"
	"github.com/congo-pay/cardcore/internal/card"
	"github.com/congo-pay/cardcore/internal/ledgerentry"
	"github.com/congo-pay/cardcore/internal/money"
	"github.com/congo-pay/cardcore/internal/rules"
	"github.com/congo-pay/cardcore/internal/shadowledger"
)

// slowCommitBank wraps a BankAccountAdapter, delaying CommitDebit past
// whatever deadline the caller imposes.
type slowCommitBank struct {
	bankadapter.BankAccountAdapter
	delay time.Duration
}

func (s *slowCommitBank) CommitDebit(ctx context.Context, accountRef string, amount money.Money, referenceID string) error {
	select {
	case <-time.After(s.delay):
		return s.BankAccountAdapter.CommitDebit(ctx, accountRef, amount, referenceID)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func newHarness(t *testing.T) (*authorization.Pipeline, *Pipeline, *card.Service, *shadowledger.InMemory) {
	t.Helper()
	cardRepo := card.NewMemoryRepository()
	cardSvc := card.NewService(cardRepo)
	ledger := shadowledger.NewInMemory("gl-holds", "gl-settlement")
	ledgerEntries := ledgerentry.NewMemoryStore()
	authStore := authorization.NewMemoryStore(ledgerEntries)

	authPipeline := &authorization.Pipeline{
		Cards: cardSvc,
		Rules: rules.NewEngine(),
		Bank:  ledger,
		Store: authStore,
		Now:   func() time.Time { return time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC) },
	}
	settlePipeline := &Pipeline{
		Store:  authStore,
		Bank:   ledger,
		Ledger: ledgerEntries,
		Now:    func() time.Time { return time.Date(2026, 1, 1, 12, 5, 0, 0, time.UTC) },
	}
	return authPipeline, settlePipeline, cardSvc, ledger
}

func issueAndAuthorize(t *testing.T, authPipeline *authorization.Pipeline, cardSvc *card.Service, ledger *shadowledger.InMemory, accountRef string, balance, amount money.Money) string {
	t.Helper()
	ctx := context.Background()
	c, err := cardSvc.Issue(ctx, card.IssueInput{
		OwnerID:        uuid.NewString(),
		BankAccountRef: accountRef,
		ExpirationDate: time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if err := cardSvc.Activate(ctx, c.ID); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if err := ledger.EnsureAccount(ctx, accountRef, balance.Currency()); err != nil {
		t.Fatalf("ensure account: %v", err)
	}
	ledger.SeedBalance(accountRef, balance)

	resp, err := authPipeline.Authorize(ctx, authorization.Request{
		CardID:         c.ID,
		Amount:         amount,
		IdempotencyKey: "auth-key-0001",
	})
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if resp.Status != authorization.StatusApproved {
		t.Fatalf("expected approved, got %s (%s)", resp.Status, resp.DeclineReason)
	}
	return resp.AuthorizationID
}

func TestClearMovesExactClearingAmount(t *testing.T) {
	authPipeline, settlePipeline, cardSvc, ledger := newHarness(t)
	authID := issueAndAuthorize(t, authPipeline, cardSvc, ledger, "acc-1",
		money.MustNewFromMinor(100_000, money.USD), money.MustNewFromMinor(5_000, money.USD))

	if err := settlePipeline.Clear(context.Background(), authID, money.MustNewFromMinor(3_000, money.USD), "clear-key-0001"); err != nil {
		t.Fatalf("clear: %v", err)
	}

	a, err := settlePipeline.Store.GetByID(context.Background(), authID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if a.Status != authorization.StatusCleared {
		t.Fatalf("expected CLEARED, got %s", a.Status)
	}

	balance, _ := ledger.GetAvailableBalance(context.Background(), "acc-1")
	want := money.MustNewFromMinor(97_000, money.USD)
	if !balance.Equal(want) {
		t.Fatalf("expected balance %s after partial clear, got %s", want, balance)
	}
}

func TestClearAboveAuthorizedAmountRejected(t *testing.T) {
	authPipeline, settlePipeline, cardSvc, ledger := newHarness(t)
	authID := issueAndAuthorize(t, authPipeline, cardSvc, ledger, "acc-1",
		money.MustNewFromMinor(100_000, money.USD), money.MustNewFromMinor(5_000, money.USD))

	err := settlePipeline.Clear(context.Background(), authID, money.MustNewFromMinor(5_001, money.USD), "clear-key-0001")
	if err == nil {
		t.Fatalf("expected rejection for clearing amount above authorized amount")
	}
}

func TestClearIsIdempotentOnKey(t *testing.T) {
	authPipeline, settlePipeline, cardSvc, ledger := newHarness(t)
	authID := issueAndAuthorize(t, authPipeline, cardSvc, ledger, "acc-1",
		money.MustNewFromMinor(100_000, money.USD), money.MustNewFromMinor(5_000, money.USD))

	if err := settlePipeline.Clear(context.Background(), authID, money.MustNewFromMinor(3_000, money.USD), "clear-key-0001"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if err := settlePipeline.Clear(context.Background(), authID, money.MustNewFromMinor(3_000, money.USD), "clear-key-0001"); err != nil {
		t.Fatalf("replayed clear: %v", err)
	}

	balance, _ := ledger.GetAvailableBalance(context.Background(), "acc-1")
	want := money.MustNewFromMinor(97_000, money.USD)
	if !balance.Equal(want) {
		t.Fatalf("expected exactly one clear applied, balance %s, want %s", balance, want)
	}
}

func TestReleaseRestoresHoldAndIsIdempotent(t *testing.T) {
	authPipeline, settlePipeline, cardSvc, ledger := newHarness(t)
	authID := issueAndAuthorize(t, authPipeline, cardSvc, ledger, "acc-1",
		money.MustNewFromMinor(100_000, money.USD), money.MustNewFromMinor(5_000, money.USD))

	if err := settlePipeline.Release(context.Background(), authID, "release-key-0001"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := settlePipeline.Release(context.Background(), authID, "release-key-0001"); err != nil {
		t.Fatalf("replayed release: %v", err)
	}

	a, err := settlePipeline.Store.GetByID(context.Background(), authID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if a.Status != authorization.StatusReleased {
		t.Fatalf("expected RELEASED, got %s", a.Status)
	}

	balance, _ := ledger.GetAvailableBalance(context.Background(), "acc-1")
	want := money.MustNewFromMinor(100_000, money.USD)
	if !balance.Equal(want) {
		t.Fatalf("expected full balance restored, got %s, want %s", balance, want)
	}
}

func TestClearCommitTimeoutSurfacesAsBankCoreError(t *testing.T) {
	authPipeline, settlePipeline, cardSvc, ledger := newHarness(t)
	authID := issueAndAuthorize(t, authPipeline, cardSvc, ledger, "acc-1",
		money.MustNewFromMinor(100_000, money.USD), money.MustNewFromMinor(5_000, money.USD))

	settlePipeline.Bank = &slowCommitBank{BankAccountAdapter: ledger, delay: 50 * time.Millisecond}
	settlePipeline.Timeouts = bankadapter.Timeouts{Commit: 5 * time.Millisecond}

	err := settlePipeline.Clear(context.Background(), authID, money.MustNewFromMinor(3_000, money.USD), "clear-key-0001")
	if err == nil {
		t.Fatalf("expected clear to fail when the CBS commit call times out")
	}
	var settlementErr *authorization.ErrSettlementFailed
	if !errors.As(err, &settlementErr) {
		t.Fatalf("expected ErrSettlementFailed, got %T: %v", err, err)
	}
	var coreErr *bankadapter.BankCoreError
	if !errors.As(settlementErr.Cause, &coreErr) {
		t.Fatalf("expected a timed-out commit to be wrapped as BankCoreError, got %T: %v", settlementErr.Cause, settlementErr.Cause)
	}
}

func TestReverseRequiresClearedAuthorization(t *testing.T) {
	authPipeline, settlePipeline, cardSvc, ledger := newHarness(t)
	authID := issueAndAuthorize(t, authPipeline, cardSvc, ledger, "acc-1",
		money.MustNewFromMinor(100_000, money.USD), money.MustNewFromMinor(5_000, money.USD))

	err := settlePipeline.Reverse(context.Background(), authID, money.MustNewFromMinor(1_000, money.USD), "reverse-key-0001")
	if err == nil {
		t.Fatalf("expected rejection reversing a non-CLEARED authorization")
	}
}

func TestReverseAfterClearTransitionsToReversed(t *testing.T) {
	authPipeline, settlePipeline, cardSvc, ledger := newHarness(t)
	authID := issueAndAuthorize(t, authPipeline, cardSvc, ledger, "acc-1",
		money.MustNewFromMinor(100_000, money.USD), money.MustNewFromMinor(5_000, money.USD))

	if err := settlePipeline.Clear(context.Background(), authID, money.MustNewFromMinor(5_000, money.USD), "clear-key-0001"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if err := settlePipeline.Reverse(context.Background(), authID, money.MustNewFromMinor(2_000, money.USD), "reverse-key-0001"); err != nil {
		t.Fatalf("reverse: %v", err)
	}

	a, err := settlePipeline.Store.GetByID(context.Background(), authID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if a.Status != authorization.StatusReversed {
		t.Fatalf("expected REVERSED, got %s", a.Status)
	}
	if a.ReversedTotal == nil || !a.ReversedTotal.Equal(money.MustNewFromMinor(2_000, money.USD)) {
		t.Fatalf("expected reversedTotal 2000, got %+v", a.ReversedTotal)
	}
}
