package rules

import (
	"context"
	"testing"
	"time"

	"github.com/congo-pay/cardcore/internal/money"
)

type stubQuerier struct {
	approvedTotal money.Money
	count         int
}

func (s stubQuerier) ApprovedTotalSince(_ context.Context, _ string, _ time.Time, _ money.Currency) (money.Money, error) {
	return s.approvedTotal, nil
}

func (s stubQuerier) CountSince(_ context.Context, _ string, _ time.Time) (int, error) {
	return s.count, nil
}

func TestTransactionLimitBoundary(t *testing.T) {
	limit := TransactionLimit{Cap: money.MustNewFromMinor(100_000, money.USD)}

	exact := Request{Amount: money.MustNewFromMinor(100_000, money.USD)}
	res, err := limit.Evaluate(context.Background(), exact)
	if err != nil || res.Declined {
		t.Fatalf("expected amount equal to cap to approve, got %+v err=%v", res, err)
	}

	over := Request{Amount: money.MustNewFromMinor(100_001, money.USD)}
	res, err = limit.Evaluate(context.Background(), over)
	if err != nil || !res.Declined {
		t.Fatalf("expected amount over cap to decline, got %+v err=%v", res, err)
	}
}

func TestTransactionLimitCurrencyMismatchDeclines(t *testing.T) {
	limit := TransactionLimit{Cap: money.MustNewFromMinor(100_000, money.USD)}
	req := Request{Amount: money.MustNewFromMinor(100, money.EUR)}

	res, err := limit.Evaluate(context.Background(), req)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !res.Declined || res.Reason != "currency not supported" {
		t.Fatalf("expected currency not supported decline, got %+v", res)
	}
}

func TestMCCBlocking(t *testing.T) {
	rule := NewMCCBlocking("7995", "6211")

	blocked := Request{MCC: "7995", Amount: money.MustNewFromMinor(100, money.USD)}
	res, err := rule.Evaluate(context.Background(), blocked)
	if err != nil || !res.Declined {
		t.Fatalf("expected blocked MCC to decline, got %+v err=%v", res, err)
	}

	allowed := Request{MCC: "5814", Amount: money.MustNewFromMinor(100, money.USD)}
	res, err = rule.Evaluate(context.Background(), allowed)
	if err != nil || res.Declined {
		t.Fatalf("expected unlisted MCC to approve, got %+v err=%v", res, err)
	}
}

func TestVelocityBoundary(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	nowFn := func() time.Time { return now }

	atThreshold := Velocity{MaxPerWindow: 5, Store: stubQuerier{count: 5}, Now: nowFn}
	res, err := atThreshold.Evaluate(context.Background(), Request{CardID: "c1"})
	if err != nil || !res.Declined {
		t.Fatalf("expected decline at exactly threshold, got %+v err=%v", res, err)
	}

	belowThreshold := Velocity{MaxPerWindow: 5, Store: stubQuerier{count: 4}, Now: nowFn}
	res, err = belowThreshold.Evaluate(context.Background(), Request{CardID: "c1"})
	if err != nil || res.Declined {
		t.Fatalf("expected approve one below threshold, got %+v err=%v", res, err)
	}
}

func TestDailySpendLimit(t *testing.T) {
	cap := money.MustNewFromMinor(500_000, money.USD)
	store := stubQuerier{approvedTotal: money.MustNewFromMinor(480_000, money.USD)}
	rule := DailySpendLimit{Cap: cap, Store: store, Currency: money.USD}

	within := Request{Amount: money.MustNewFromMinor(10_000, money.USD)}
	res, err := rule.Evaluate(context.Background(), within)
	if err != nil || res.Declined {
		t.Fatalf("expected 490000 total to approve, got %+v err=%v", res, err)
	}

	over := Request{Amount: money.MustNewFromMinor(30_000, money.USD)}
	res, err = rule.Evaluate(context.Background(), over)
	if err != nil || !res.Declined {
		t.Fatalf("expected 510000 total to decline, got %+v err=%v", res, err)
	}
}

func TestEngineFirstDeclineWins(t *testing.T) {
	engine := NewEngine(
		TransactionLimit{Cap: money.MustNewFromMinor(100_000, money.USD)},
		NewMCCBlocking("7995"),
	)

	res, err := engine.Evaluate(context.Background(), Request{
		Amount: money.MustNewFromMinor(200_000, money.USD),
		MCC:    "7995",
	})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !res.Declined {
		t.Fatalf("expected decline")
	}
	if res.Reason == "" {
		t.Fatalf("expected a reason")
	}
	// TransactionLimit is registered first, so its reason should win even
	// though both rules would decline.
	if res.Reason[:6] != "amount" {
		t.Fatalf("expected the first registered rule's reason to win, got %q", res.Reason)
	}
}

func TestEngineApprovesWhenNoRuleDeclines(t *testing.T) {
	engine := NewEngine(
		TransactionLimit{Cap: money.MustNewFromMinor(100_000, money.USD)},
		NewMCCBlocking("7995"),
	)

	res, err := engine.Evaluate(context.Background(), Request{
		Amount: money.MustNewFromMinor(5_000, money.USD),
		MCC:    "5814",
	})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if res.Declined {
		t.Fatalf("expected approve, got decline: %s", res.Reason)
	}
}
