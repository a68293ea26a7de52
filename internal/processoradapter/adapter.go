package processoradapter

import (
	"context"
	"log/slog"
	"time"

	"github.com/congo-pay/cardcore/internal/authorization"
	"github.com/congo-pay/cardcore/internal/money"
	"github.com/congo-pay/cardcore/internal/settlement"
)

// Adapter is the inbound boundary for a card network/processor. It holds
// no policy or balance logic of its own: every decision is delegated to
// the authorization and settlement pipelines.
type Adapter struct {
	Authorize *authorization.Pipeline
	Settle    *settlement.Pipeline
	Mappings  Store
	Processor string // this adapter instance's processor name, e.g. "visa-net"
	Logger    *slog.Logger
	Now       func() time.Time
}

func (a *Adapter) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

// HandleAuthorization translates and runs an authorization event. A
// synthetic DECLINED (never an error) is returned for an unrecognized
// card token, so the processor never sees a 5xx for a known, unavoidable
// decline.
func (a *Adapter) HandleAuthorization(ctx context.Context, ev AuthorizationEvent) (EventResponse, error) {
	amount, err := money.FromMinorUnits(ev.AmountMinor, money.Currency(ev.Currency))
	if err != nil {
		return EventResponse{Approved: false, DeclineReason: "card not found"}, nil
	}

	resp, err := a.Authorize.Authorize(ctx, authorization.Request{
		CardID: ev.CardToken,
		Amount: amount,
		Merchant: authorization.Merchant{
			Name:    ev.MerchantName,
			MCC:     ev.MCC,
			City:    ev.MerchantCity,
			Country: ev.MerchantCountry,
		},
		IdempotencyKey: ev.IdempotencyKey,
	})
	if err != nil {
		// The adapter's forbidden zone is business decisions, not
		// observability: an unexpected pipeline error still surfaces as a
		// decline here so the processor is never left hanging, while the
		// underlying error is logged for operators.
		if a.Logger != nil {
			a.Logger.Error("authorization pipeline error, declining to processor", "processorTransactionId", ev.ProcessorTransactionID, "error", err)
		}
		return EventResponse{Approved: false, DeclineReason: "card not found"}, nil
	}

	if resp.Status != authorization.StatusApproved {
		return EventResponse{AuthorizationID: resp.AuthorizationID, Approved: false, DeclineReason: resp.DeclineReason}, nil
	}

	if err := a.Mappings.Create(ctx, Mapping{
		ProcessorTransactionID: ev.ProcessorTransactionID,
		ProcessorName:          a.Processor,
		AuthorizationID:        resp.AuthorizationID,
		CardToken:              ev.CardToken,
		CreatedAt:              a.now().UTC(),
	}); err != nil {
		return EventResponse{}, err
	}

	return EventResponse{AuthorizationID: resp.AuthorizationID, Approved: true}, nil
}

// HandleClearing translates and runs a clearing event. A missing mapping
// is ErrUnknownTransaction, which callers turn into a 5xx for processor
// retry.
func (a *Adapter) HandleClearing(ctx context.Context, ev ClearingEvent) error {
	mapping, err := a.Mappings.ByProcessorTransactionID(ctx, ev.ProcessorTransactionID)
	if err != nil {
		return err
	}
	amount, err := money.FromMinorUnits(ev.ClearingAmountMinor, money.Currency(ev.Currency))
	if err != nil {
		return err
	}
	return a.Settle.Clear(ctx, mapping.AuthorizationID, amount, ev.IdempotencyKey)
}

// HandleReversal translates and runs a reversal event.
func (a *Adapter) HandleReversal(ctx context.Context, ev ReversalEvent) error {
	mapping, err := a.Mappings.ByProcessorTransactionID(ctx, ev.ProcessorTransactionID)
	if err != nil {
		return err
	}
	amount, err := money.FromMinorUnits(ev.ReversalAmountMinor, money.Currency(ev.Currency))
	if err != nil {
		return err
	}
	return a.Settle.Reverse(ctx, mapping.AuthorizationID, amount, ev.IdempotencyKey)
}
