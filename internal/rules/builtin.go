package rules

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/congo-pay/cardcore/internal/money"
)

// AuthorizationQuerier is the narrow read surface the velocity and
// daily-spend rules need against the authorization store. Defined here
// rather than depending on the authorization package directly, so rules
// stays a leaf package with no cycle back to the pipeline that uses it.
type AuthorizationQuerier interface {
	// ApprovedTotalSince sums the amount of APPROVED authorizations for
	// cardID created at or after since, in the given currency.
	ApprovedTotalSince(ctx context.Context, cardID string, since time.Time, currency money.Currency) (money.Money, error)
	// CountSince counts authorizations for cardID created at or after
	// since, regardless of status.
	CountSince(ctx context.Context, cardID string, since time.Time) (int, error)
}

// TransactionLimit declines if the request amount exceeds a configured
// per-transaction cap in the presented currency. A currency mismatch
// between the request and the configured cap declines rather than
// raising an error.
type TransactionLimit struct {
	Cap money.Money
}

func (r TransactionLimit) Evaluate(_ context.Context, req Request) (Result, error) {
	exceeds, err := req.Amount.GreaterThan(r.Cap)
	if err != nil {
		var mismatch *money.CurrencyMismatch
		if errors.As(err, &mismatch) {
			return Decline("currency not supported"), nil
		}
		return Result{}, err
	}
	if exceeds {
		return Decline(fmt.Sprintf("amount %s exceeds per-transaction limit %s", req.Amount, r.Cap)), nil
	}
	return Approve, nil
}

// DailySpendLimit sums APPROVED authorizations for the same card since
// the start of the current UTC day, adds the request amount, and
// declines if the total exceeds the configured cap.
type DailySpendLimit struct {
	Cap      money.Money
	Store    AuthorizationQuerier
	Currency money.Currency
	// Now is overridable for tests; defaults to time.Now when nil.
	Now func() time.Time
}

func (r DailySpendLimit) Evaluate(ctx context.Context, req Request) (Result, error) {
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	startOfDay := startOfUTCDay(now())

	spentToday, err := r.Store.ApprovedTotalSince(ctx, req.CardID, startOfDay, r.Currency)
	if err != nil {
		return Result{}, err
	}

	projected, err := spentToday.Add(req.Amount)
	if err != nil {
		var mismatch *money.CurrencyMismatch
		if errors.As(err, &mismatch) {
			return Decline("currency not supported"), nil
		}
		return Result{}, err
	}

	exceeds, err := projected.GreaterThan(r.Cap)
	if err != nil {
		return Result{}, err
	}
	if exceeds {
		return Decline(fmt.Sprintf("projected daily total %s exceeds daily limit %s", projected, r.Cap)), nil
	}
	return Approve, nil
}

func startOfUTCDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// MCCBlocking declines if the request's merchant category code is a
// member of a configured blocklist.
type MCCBlocking struct {
	Blocklist map[string]struct{}
}

// NewMCCBlocking builds a blocklist rule from a slice of MCC codes.
func NewMCCBlocking(codes ...string) MCCBlocking {
	set := make(map[string]struct{}, len(codes))
	for _, c := range codes {
		set[c] = struct{}{}
	}
	return MCCBlocking{Blocklist: set}
}

func (r MCCBlocking) Evaluate(_ context.Context, req Request) (Result, error) {
	if _, blocked := r.Blocklist[req.MCC]; blocked {
		return Decline(fmt.Sprintf("merchant category code %s is blocked", req.MCC)), nil
	}
	return Approve, nil
}

// Velocity declines if the number of authorizations for the same card in
// the trailing 60 seconds is at or above a configured threshold.
type Velocity struct {
	MaxPerWindow int
	Window       time.Duration // defaults to 60s when zero
	Store        AuthorizationQuerier
	Now          func() time.Time
}

func (r Velocity) Evaluate(ctx context.Context, req Request) (Result, error) {
	window := r.Window
	if window <= 0 {
		window = 60 * time.Second
	}
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}

	since := now().Add(-window)
	count, err := r.Store.CountSince(ctx, req.CardID, since)
	if err != nil {
		return Result{}, err
	}
	if count >= r.MaxPerWindow {
		return Decline(fmt.Sprintf("velocity threshold reached: %d authorizations in the trailing %s", count, window)), nil
	}
	return Approve, nil
}
