package money

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestNewRoundsHalfUpToMinorUnit(t *testing.T) {
	m, err := New(decimal.RequireFromString("10.005"), USD)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := m.Decimal().StringFixed(2); got != "10.01" {
		t.Fatalf("expected half-up rounding to 10.01, got %s", got)
	}
}

func TestAddRequiresSameCurrency(t *testing.T) {
	usd := MustNew(decimal.NewFromInt(10), USD)
	eur := MustNew(decimal.NewFromInt(5), EUR)

	_, err := usd.Add(eur)
	var mismatch *CurrencyMismatch
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected CurrencyMismatch, got %v", err)
	}
}

func TestAddSameCurrency(t *testing.T) {
	a := MustNew(decimal.NewFromInt(10), USD)
	b := MustNew(decimal.NewFromInt(5), USD)

	sum, err := a.Add(b)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if sum.MinorUnits() != 1500 {
		t.Fatalf("expected 1500 minor units, got %d", sum.MinorUnits())
	}
}

func TestFromMinorUnitsRoundTrip(t *testing.T) {
	m, err := FromMinorUnits(5000, USD)
	if err != nil {
		t.Fatalf("FromMinorUnits: %v", err)
	}
	if m.MinorUnits() != 5000 {
		t.Fatalf("expected 5000, got %d", m.MinorUnits())
	}
	if m.String() != "50.00 USD" {
		t.Fatalf("expected 50.00 USD, got %s", m.String())
	}
}

func TestUnsupportedCurrency(t *testing.T) {
	_, err := FromMinorUnits(100, Currency("XYZ"))
	var unsupported *UnsupportedCurrency
	if !errors.As(err, &unsupported) {
		t.Fatalf("expected UnsupportedCurrency, got %v", err)
	}
}

func TestGreaterThanAndLessThanOrEqual(t *testing.T) {
	ten := MustNew(decimal.NewFromInt(10), USD)
	five := MustNew(decimal.NewFromInt(5), USD)

	gt, err := ten.GreaterThan(five)
	if err != nil || !gt {
		t.Fatalf("expected 10 > 5, got %v err=%v", gt, err)
	}
	lte, err := five.LessThanOrEqual(ten)
	if err != nil || !lte {
		t.Fatalf("expected 5 <= 10, got %v err=%v", lte, err)
	}
}
