package shadowledger

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/congo-pay/cardcore/internal/bankadapter"
	"github.com/congo-pay/cardcore/internal/money"
)

func TestPlaceHoldThenCommitDebitMovesExactAmount(t *testing.T) {
	l := NewInMemory("holds:auth", "settlement:gl")
	ctx := context.Background()
	l.EnsureAccount(ctx, "acc-1", money.USD)
	l.EnsureAccount(ctx, "holds:auth", money.USD)
	l.EnsureAccount(ctx, "settlement:gl", money.USD)
	l.SeedBalance("acc-1", money.MustNewFromMinor(100_000, money.USD))

	amount := money.MustNewFromMinor(5_000, money.USD)
	if err := l.PlaceHold(ctx, "acc-1", amount, "auth-1"); err != nil {
		t.Fatalf("place hold: %v", err)
	}

	afterHold, err := l.GetAvailableBalance(ctx, "acc-1")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if afterHold.MinorUnits() != 95_000 {
		t.Fatalf("expected 95000 after hold, got %d", afterHold.MinorUnits())
	}

	clearing := money.MustNewFromMinor(3_000, money.USD)
	if err := l.CommitDebit(ctx, "acc-1", clearing, "auth-1"); err != nil {
		t.Fatalf("commit debit: %v", err)
	}

	final, err := l.GetAvailableBalance(ctx, "acc-1")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if final.MinorUnits() != 97_000 {
		t.Fatalf("expected 97000 (100000-3000), got %d", final.MinorUnits())
	}
}

func TestPlaceHoldThenReleaseRestoresBalance(t *testing.T) {
	l := NewInMemory("holds:auth", "settlement:gl")
	ctx := context.Background()
	l.EnsureAccount(ctx, "acc-1", money.USD)
	l.EnsureAccount(ctx, "holds:auth", money.USD)
	l.SeedBalance("acc-1", money.MustNewFromMinor(10_000, money.USD))

	amount := money.MustNewFromMinor(4_000, money.USD)
	if err := l.PlaceHold(ctx, "acc-1", amount, "auth-2"); err != nil {
		t.Fatalf("place hold: %v", err)
	}
	if err := l.ReleaseHold(ctx, "acc-1", amount, "auth-2"); err != nil {
		t.Fatalf("release hold: %v", err)
	}

	balance, err := l.GetAvailableBalance(ctx, "acc-1")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.MinorUnits() != 10_000 {
		t.Fatalf("expected balance restored to 10000, got %d", balance.MinorUnits())
	}
}

func TestPlaceHoldInsufficientFunds(t *testing.T) {
	l := NewInMemory("holds:auth", "settlement:gl")
	ctx := context.Background()
	l.EnsureAccount(ctx, "acc-1", money.USD)
	l.SeedBalance("acc-1", money.MustNewFromMinor(1_000, money.USD))

	amount := money.MustNewFromMinor(2_000, money.USD)
	err := l.PlaceHold(ctx, "acc-1", amount, "auth-3")
	var insufficient *bankadapter.InsufficientFunds
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientFunds, got %v", err)
	}
}

func TestPlaceHoldIsIdempotentOnReferenceID(t *testing.T) {
	l := NewInMemory("holds:auth", "settlement:gl")
	ctx := context.Background()
	l.EnsureAccount(ctx, "acc-1", money.USD)
	l.EnsureAccount(ctx, "holds:auth", money.USD)
	l.SeedBalance("acc-1", money.MustNewFromMinor(10_000, money.USD))

	amount := money.MustNewFromMinor(3_000, money.USD)
	if err := l.PlaceHold(ctx, "acc-1", amount, "auth-4"); err != nil {
		t.Fatalf("first hold: %v", err)
	}
	if err := l.PlaceHold(ctx, "acc-1", amount, "auth-4"); err != nil {
		t.Fatalf("second hold (idempotent): %v", err)
	}

	balance, _ := l.GetAvailableBalance(ctx, "acc-1")
	if balance.MinorUnits() != 7_000 {
		t.Fatalf("expected exactly one hold placed (7000 remaining), got %d", balance.MinorUnits())
	}
}

func TestCommitDebitWithoutHoldFails(t *testing.T) {
	l := NewInMemory("holds:auth", "settlement:gl")
	ctx := context.Background()
	l.EnsureAccount(ctx, "acc-1", money.USD)

	amount := money.MustNewFromMinor(1_000, money.USD)
	err := l.CommitDebit(ctx, "acc-1", amount, "no-such-auth")
	var coreErr *bankadapter.BankCoreError
	if !errors.As(err, &coreErr) {
		t.Fatalf("expected BankCoreError, got %v", err)
	}
}

func TestReleaseHoldWithoutHoldIsSafeNoOp(t *testing.T) {
	l := NewInMemory("holds:auth", "settlement:gl")
	ctx := context.Background()
	l.EnsureAccount(ctx, "acc-1", money.USD)

	if err := l.ReleaseHold(ctx, "acc-1", money.MustNewFromMinor(1_000, money.USD), "never-placed"); err != nil {
		t.Fatalf("expected nil error releasing a hold that never existed, got %v", err)
	}
}

func TestConcurrentHoldsSerializeOnAvailability(t *testing.T) {
	l := NewInMemory("holds:auth", "settlement:gl")
	ctx := context.Background()
	l.EnsureAccount(ctx, "acc-1", money.USD)
	l.EnsureAccount(ctx, "holds:auth", money.USD)
	l.SeedBalance("acc-1", money.MustNewFromMinor(10_000, money.USD))

	const workers = 20
	amount := money.MustNewFromMinor(1_000, money.USD)

	var wg sync.WaitGroup
	successes := make([]bool, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := l.PlaceHold(ctx, "acc-1", amount, "conc-"+string(rune('a'+i)))
			successes[i] = err == nil
		}(i)
	}
	wg.Wait()

	count := 0
	for _, ok := range successes {
		if ok {
			count++
		}
	}
	if count != 10 {
		t.Fatalf("expected exactly 10 successful holds against 10000 available, got %d", count)
	}
}
