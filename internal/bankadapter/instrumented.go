package bankadapter

import (
	"context"
	"errors"
	"time"

	"github.com/congo-pay/cardcore/internal/metrics"
	"github.com/congo-pay/cardcore/internal/money"
)

// Instrumented wraps a BankAccountAdapter and records call latency and
// failure counts to metrics.Collector, without altering the underlying
// adapter's contract. The authorization and settlement pipelines depend
// only on BankAccountAdapter, so wrapping is transparent to them.
type Instrumented struct {
	Adapter   BankAccountAdapter
	Collector *metrics.Collector
}

// NewInstrumented wraps adapter with metrics collection. collector may be
// nil, in which case Instrumented is a pure passthrough.
func NewInstrumented(adapter BankAccountAdapter, collector *metrics.Collector) *Instrumented {
	return &Instrumented{Adapter: adapter, Collector: collector}
}

func (i *Instrumented) observe(op string, start time.Time, err error) {
	if i.Collector == nil {
		return
	}
	i.Collector.ObserveBankCall(op, time.Since(start).Seconds())
	if err == nil {
		return
	}
	var insufficient *InsufficientFunds
	switch {
	case errors.As(err, &insufficient):
		i.Collector.ObserveBankFailure(op, "insufficient_funds")
	case IsTimeout(err):
		i.Collector.ObserveBankFailure(op, "timeout")
	default:
		i.Collector.ObserveBankFailure(op, "bank_core_error")
	}
}

func (i *Instrumented) GetAvailableBalance(ctx context.Context, accountRef string) (money.Money, error) {
	start := time.Now()
	m, err := i.Adapter.GetAvailableBalance(ctx, accountRef)
	i.observe("getAvailableBalance", start, err)
	return m, err
}

func (i *Instrumented) PlaceHold(ctx context.Context, accountRef string, amount money.Money, referenceID string) error {
	start := time.Now()
	err := i.Adapter.PlaceHold(ctx, accountRef, amount, referenceID)
	i.observe("placeHold", start, err)
	return err
}

func (i *Instrumented) CommitDebit(ctx context.Context, accountRef string, amount money.Money, referenceID string) error {
	start := time.Now()
	err := i.Adapter.CommitDebit(ctx, accountRef, amount, referenceID)
	i.observe("commitDebit", start, err)
	return err
}

func (i *Instrumented) ReleaseHold(ctx context.Context, accountRef string, amount money.Money, referenceID string) error {
	start := time.Now()
	err := i.Adapter.ReleaseHold(ctx, accountRef, amount, referenceID)
	i.observe("releaseHold", start, err)
	return err
}

func (i *Instrumented) GetAdapterName() string { return i.Adapter.GetAdapterName() }

func (i *Instrumented) IsHealthy(ctx context.Context) bool { return i.Adapter.IsHealthy(ctx) }
