package shadowledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/congo-pay/cardcore/internal/bankadapter"
	"github.com/congo-pay/cardcore/internal/money"
)

// InMemory is a concurrency-safe in-memory BankAccountAdapter implementing
// the same shadow-journal semantics as PostgresShadowLedger. Useful for
// unit tests and for running the core without a database.
type InMemory struct {
	mu        sync.Mutex
	balances  map[string]int64
	currency  map[string]money.Currency
	holds     map[string]HoldRecord // keyed by authorizationID (referenceID)
	holdsGL   string
	settleGL  string
	available bool
}

// NewInMemory builds an empty in-memory shadow ledger.
func NewInMemory(holdsGLAccount, settlementGL string) *InMemory {
	return &InMemory{
		balances:  make(map[string]int64),
		currency:  make(map[string]money.Currency),
		holds:     make(map[string]HoldRecord),
		holdsGL:   holdsGLAccount,
		settleGL:  settlementGL,
		available: true,
	}
}

// EnsureAccount seeds an account with zero balance if absent.
func (l *InMemory) EnsureAccount(_ context.Context, accountRef string, currency money.Currency) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.balances[accountRef]; !ok {
		l.balances[accountRef] = 0
		l.currency[accountRef] = currency
	}
	return nil
}

// SeedBalance is a test helper to set an account's starting balance.
func (l *InMemory) SeedBalance(accountRef string, amount money.Money) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[accountRef] = amount.MinorUnits()
	l.currency[accountRef] = amount.Currency()
}

// SetHealthy lets tests simulate a CBS outage.
func (l *InMemory) SetHealthy(v bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.available = v
}

func (l *InMemory) GetAvailableBalance(_ context.Context, accountRef string) (money.Money, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.available {
		return money.Money{}, &bankadapter.BankCoreError{AccountRef: accountRef, Op: "getAvailableBalance", Cause: fmt.Errorf("cbs unavailable")}
	}
	balance, ok := l.balances[accountRef]
	if !ok {
		return money.Money{}, &bankadapter.BankCoreError{AccountRef: accountRef, Op: "getAvailableBalance", Cause: fmt.Errorf("unknown account")}
	}
	return money.FromMinorUnits(balance, l.currency[accountRef])
}

func (l *InMemory) PlaceHold(_ context.Context, accountRef string, amount money.Money, referenceID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.available {
		return &bankadapter.BankCoreError{AccountRef: accountRef, Op: "placeHold", Cause: fmt.Errorf("cbs unavailable")}
	}
	if _, exists := l.holds[referenceID]; exists {
		return nil // idempotent
	}

	balance, ok := l.balances[accountRef]
	if !ok {
		return &bankadapter.BankCoreError{AccountRef: accountRef, Op: "placeHold", Cause: fmt.Errorf("unknown account")}
	}
	if balance < amount.MinorUnits() {
		availableMoney, _ := money.FromMinorUnits(balance, amount.Currency())
		return &bankadapter.InsufficientFunds{AccountRef: accountRef, Required: amount, Available: availableMoney}
	}

	l.balances[accountRef] = balance - amount.MinorUnits()
	l.balances[l.holdsGL] += amount.MinorUnits()

	now := time.Now().UTC()
	l.holds[referenceID] = HoldRecord{
		AuthorizationID: referenceID,
		AccountRef:      accountRef,
		JournalEntryID:  uuid.NewString(),
		AmountMinor:     amount.MinorUnits(),
		Currency:        string(amount.Currency()),
		Status:          HoldActive,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	return nil
}

func (l *InMemory) CommitDebit(_ context.Context, accountRef string, amount money.Money, referenceID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.available {
		return &bankadapter.BankCoreError{AccountRef: accountRef, Op: "commitDebit", Cause: fmt.Errorf("cbs unavailable")}
	}
	hold, ok := l.holds[referenceID]
	if !ok {
		return &bankadapter.BankCoreError{AccountRef: accountRef, Op: "commitDebit", Cause: fmt.Errorf("no hold exists for reference %s", referenceID)}
	}
	if hold.Status == HoldCommitted {
		return nil
	}
	if hold.Status == HoldReleased {
		return &bankadapter.BankCoreError{AccountRef: accountRef, Op: "commitDebit", Cause: fmt.Errorf("hold %s already released", referenceID)}
	}
	if amount.MinorUnits() > hold.AmountMinor {
		return &bankadapter.BankCoreError{AccountRef: accountRef, Op: "commitDebit", Cause: fmt.Errorf("commit amount exceeds hold amount")}
	}

	// Reverse the full hold, then withdraw the clearing amount.
	l.balances[l.holdsGL] -= hold.AmountMinor
	l.balances[accountRef] += hold.AmountMinor
	l.balances[accountRef] -= amount.MinorUnits()
	l.balances[l.settleGL] += amount.MinorUnits()

	hold.Status = HoldCommitted
	hold.UpdatedAt = time.Now().UTC()
	l.holds[referenceID] = hold
	return nil
}

func (l *InMemory) ReleaseHold(_ context.Context, accountRef string, _ money.Money, referenceID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	hold, ok := l.holds[referenceID]
	if !ok {
		return nil // nothing to release
	}
	if hold.Status != HoldActive {
		return nil // idempotent
	}

	l.balances[l.holdsGL] -= hold.AmountMinor
	l.balances[accountRef] += hold.AmountMinor

	hold.Status = HoldReleased
	hold.UpdatedAt = time.Now().UTC()
	l.holds[referenceID] = hold
	return nil
}

func (l *InMemory) GetAdapterName() string { return "shadow-journal-inmemory" }

func (l *InMemory) IsHealthy(_ context.Context) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.available
}

// HoldByAuthorizationID exposes the hold record for reconciliation and
// tests.
func (l *InMemory) HoldByAuthorizationID(_ context.Context, authorizationID string) (HoldRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	hold, ok := l.holds[authorizationID]
	if !ok {
		return HoldRecord{}, fmt.Errorf("no hold for authorization %s", authorizationID)
	}
	return hold, nil
}
