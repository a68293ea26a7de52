package processoradapter

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/congo-pay/cardcore/internal/authorization"
	"github.com/congo-pay/cardcore/internal/card"
	"github.com/congo-pay/cardcore/internal/ledgerentry"
	"github.com/congo-pay/cardcore/internal/money"
	"github.com/congo-pay/cardcore/internal/rules"
	"github.com/congo-pay/cardcore/internal/settlement"
	"github.com/congo-pay/cardcore/internal/shadowledger"
)

func newHarness(t *testing.T) (*Adapter, *card.Service, *shadowledger.InMemory) {
	t.Helper()
	cardRepo := card.NewMemoryRepository()
	cardSvc := card.NewService(cardRepo)
	ledger := shadowledger.NewInMemory("gl-holds", "gl-settlement")
	ledgerEntries := ledgerentry.NewMemoryStore()
	authStore := authorization.NewMemoryStore(ledgerEntries)

	now := func() time.Time { return time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC) }
	authPipeline := &authorization.Pipeline{
		Cards: cardSvc,
		Rules: rules.NewEngine(),
		Bank:  ledger,
		Store: authStore,
		Now:   now,
	}
	settlePipeline := &settlement.Pipeline{
		Store:  authStore,
		Bank:   ledger,
		Ledger: ledgerEntries,
		Now:    now,
	}
	adapter := &Adapter{
		Authorize: authPipeline,
		Settle:    settlePipeline,
		Mappings:  NewMemoryStore(),
		Processor: "visa-net",
		Now:       now,
	}
	return adapter, cardSvc, ledger
}

func issueActiveCard(t *testing.T, cardSvc *card.Service, ledger *shadowledger.InMemory, accountRef string, balance money.Money) card.Card {
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
	return c
}

func TestHandleAuthorizationApprovedCreatesMapping(t *testing.T) {
	adapter, cardSvc, ledger := newHarness(t)
	c := issueActiveCard(t, cardSvc, ledger, "acc-1", money.MustNewFromMinor(100_000, money.USD))

	resp, err := adapter.HandleAuthorization(context.Background(), AuthorizationEvent{
		ProcessorTransactionID: "ptx-1",
		CardToken:              c.ID,
		AmountMinor:            5_000,
		Currency:               "USD",
		MerchantName:           "Coffee Shop",
		MCC:                    "5814",
		IdempotencyKey:         "idem-key-proc-0001",
	})
	if err != nil {
		t.Fatalf("handle authorization: %v", err)
	}
	if !resp.Approved {
		t.Fatalf("expected approved, got %+v", resp)
	}

	mapping, err := adapter.Mappings.ByProcessorTransactionID(context.Background(), "ptx-1")
	if err != nil {
		t.Fatalf("mapping lookup: %v", err)
	}
	if mapping.AuthorizationID != resp.AuthorizationID {
		t.Fatalf("expected mapping to reference authorization %s, got %s", resp.AuthorizationID, mapping.AuthorizationID)
	}
}

func TestHandleAuthorizationUnknownCardDoesNotCreateMapping(t *testing.T) {
	adapter, _, _ := newHarness(t)

	resp, err := adapter.HandleAuthorization(context.Background(), AuthorizationEvent{
		ProcessorTransactionID: "ptx-2",
		CardToken:              uuid.NewString(),
		AmountMinor:            5_000,
		Currency:               "USD",
		IdempotencyKey:         "idem-key-proc-0002",
	})
	if err != nil {
		t.Fatalf("handle authorization: %v", err)
	}
	if resp.Approved {
		t.Fatalf("expected decline for unknown card, got %+v", resp)
	}
	if _, err := adapter.Mappings.ByProcessorTransactionID(context.Background(), "ptx-2"); err != ErrUnknownTransaction {
		t.Fatalf("expected no mapping created for a declined authorization, got err=%v", err)
	}
}

func TestHandleClearingUnknownTransactionIsUnknownTransaction(t *testing.T) {
	adapter, _, _ := newHarness(t)

	err := adapter.HandleClearing(context.Background(), ClearingEvent{
		ProcessorTransactionID: "does-not-exist",
		ClearingAmountMinor:    1_000,
		Currency:               "USD",
		IdempotencyKey:         "idem-key-proc-0003",
	})
	if err != ErrUnknownTransaction {
		t.Fatalf("expected ErrUnknownTransaction, got %v", err)
	}
}

func TestHandleClearingAfterAuthorizationClearsAuthorization(t *testing.T) {
	adapter, cardSvc, ledger := newHarness(t)
	c := issueActiveCard(t, cardSvc, ledger, "acc-1", money.MustNewFromMinor(100_000, money.USD))

	resp, err := adapter.HandleAuthorization(context.Background(), AuthorizationEvent{
		ProcessorTransactionID: "ptx-3",
		CardToken:              c.ID,
		AmountMinor:            5_000,
		Currency:               "USD",
		IdempotencyKey:         "idem-key-proc-0004",
	})
	if err != nil || !resp.Approved {
		t.Fatalf("authorize: resp=%+v err=%v", resp, err)
	}

	if err := adapter.HandleClearing(context.Background(), ClearingEvent{
		ProcessorTransactionID: "ptx-3",
		ClearingAmountMinor:    5_000,
		Currency:               "USD",
		IdempotencyKey:         "idem-key-proc-0005",
	}); err != nil {
		t.Fatalf("handle clearing: %v", err)
	}

	auth, err := adapter.Authorize.Store.GetByID(context.Background(), resp.AuthorizationID)
	if err != nil {
		t.Fatalf("get authorization: %v", err)
	}
	if auth.Status != authorization.StatusCleared {
		t.Fatalf("expected CLEARED, got %s", auth.Status)
	}
}
