// Package money implements the fixed-scale decimal Money value type shared
// by every pipeline in the core. The CBS is the only source of truth for
// balances; Money never represents a stored balance, only an amount moving
// through an authorization, clearing, or reversal.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Currency is a closed enum of the codes this core accepts. Stablecoin
// tokens are treated as ordinary currency codes at this layer; no FX
// conversion happens here.
type Currency string

const (
	USD Currency = "USD"
	EUR Currency = "EUR"
	GBP Currency = "GBP"
	// USDC is a stablecoin token represented as a currency code, scale 2
	// like the fiat codes above. The core does not distinguish token
	// transfer semantics from fiat at this layer.
	USDC Currency = "USDC"
)

// minorUnitScale maps each supported currency to its minor-unit decimal
// places. Every enumerated currency here uses 2.
var minorUnitScale = map[Currency]int32{
	USD:  2,
	EUR:  2,
	GBP:  2,
	USDC: 2,
}

// CurrencyMismatch is returned by arithmetic between Money values of
// different currencies.
type CurrencyMismatch struct {
	Left  Currency
	Right Currency
}

func (e *CurrencyMismatch) Error() string {
	return fmt.Sprintf("currency mismatch: %s vs %s", e.Left, e.Right)
}

// UnsupportedCurrency is returned when constructing Money with a currency
// code outside the closed enum.
type UnsupportedCurrency struct {
	Code Currency
}

func (e *UnsupportedCurrency) Error() string {
	return fmt.Sprintf("unsupported currency %q", e.Code)
}

// Money is an immutable decimal amount paired with its currency. Amounts
// are normalized (half-up rounding to the currency's minor unit) at
// construction so every Money value in the system is already in canonical
// form.
type Money struct {
	amount   decimal.Decimal
	currency Currency
}

// New constructs Money from a decimal amount, rounding half-up to the
// currency's minor unit scale.
func New(amount decimal.Decimal, currency Currency) (Money, error) {
	scale, ok := minorUnitScale[currency]
	if !ok {
		return Money{}, &UnsupportedCurrency{Code: currency}
	}
	return Money{amount: amount.Round(scale), currency: currency}, nil
}

// FromMinorUnits builds Money from an integer count of minor units (e.g.
// cents), as CBS adapters and wire formats commonly represent amounts.
func FromMinorUnits(units int64, currency Currency) (Money, error) {
	scale, ok := minorUnitScale[currency]
	if !ok {
		return Money{}, &UnsupportedCurrency{Code: currency}
	}
	return Money{amount: decimal.New(units, -scale), currency: currency}, nil
}

// MustNew is New but panics on error. Reserved for compile-time-constant
// test fixtures; never call on external input.
func MustNew(amount decimal.Decimal, currency Currency) Money {
	m, err := New(amount, currency)
	if err != nil {
		panic(err)
	}
	return m
}

// MustNewFromMinor is FromMinorUnits but panics on error. Reserved for
// test fixtures; never call on external input.
func MustNewFromMinor(units int64, currency Currency) Money {
	m, err := FromMinorUnits(units, currency)
	if err != nil {
		panic(err)
	}
	return m
}

// Zero returns the zero amount in the given currency.
func Zero(currency Currency) Money {
	return MustNew(decimal.Zero, currency)
}

// Currency returns the Money's currency code.
func (m Money) Currency() Currency { return m.currency }

// IsZero reports whether the amount is exactly zero.
func (m Money) IsZero() bool { return m.amount.IsZero() }

// Decimal exposes the underlying decimal amount, e.g. for persistence.
func (m Money) Decimal() decimal.Decimal { return m.amount }

// MinorUnits returns the amount as an integer count of minor units.
func (m Money) MinorUnits() int64 {
	scale := minorUnitScale[m.currency]
	return m.amount.Shift(scale).Round(0).IntPart()
}

func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.amount.StringFixed(minorUnitScale[m.currency]), m.currency)
}

func (m Money) sameCurrency(other Money) error {
	if m.currency != other.currency {
		return &CurrencyMismatch{Left: m.currency, Right: other.currency}
	}
	return nil
}

// Add returns m + other. Fails with CurrencyMismatch unless currencies
// match.
func (m Money) Add(other Money) (Money, error) {
	if err := m.sameCurrency(other); err != nil {
		return Money{}, err
	}
	return Money{amount: m.amount.Add(other.amount), currency: m.currency}, nil
}

// Sub returns m - other. Fails with CurrencyMismatch unless currencies
// match. The result may be negative; callers compare against zero
// explicitly where a non-negative invariant applies.
func (m Money) Sub(other Money) (Money, error) {
	if err := m.sameCurrency(other); err != nil {
		return Money{}, err
	}
	return Money{amount: m.amount.Sub(other.amount), currency: m.currency}, nil
}

// GreaterThan reports whether m > other. Fails with CurrencyMismatch
// unless currencies match.
func (m Money) GreaterThan(other Money) (bool, error) {
	if err := m.sameCurrency(other); err != nil {
		return false, err
	}
	return m.amount.GreaterThan(other.amount), nil
}

// LessThanOrEqual reports whether m <= other. Fails with CurrencyMismatch
// unless currencies match.
func (m Money) LessThanOrEqual(other Money) (bool, error) {
	if err := m.sameCurrency(other); err != nil {
		return false, err
	}
	return m.amount.LessThanOrEqual(other.amount), nil
}

// Equal reports whether m == other, currency and amount both.
func (m Money) Equal(other Money) bool {
	return m.currency == other.currency && m.amount.Equal(other.amount)
}
