package authorization

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/congo-pay/cardcore/internal/bankadapter"
	"github.com/congo-pay/cardcore/internal/card"
	"github.com/congo-pay/cardcore/internal/ledgerentry"
	"github.com/congo-pay/cardcore/internal/metrics"
	"github.com/congo-pay/cardcore/internal/money"
	"github.com/congo-pay/cardcore/internal/notification"
	"github.com/congo-pay/cardcore/internal/rules"
)

// KindHeldFundsLeak flags an authorization for which the hold could not
// be released after a failed persist, and that therefore needs manual or
// scheduled reconciliation against the CBS.
const KindHeldFundsLeak = "held_funds_leak"

// Request is the inbound authorization ask, already translated from
// whatever wire format the caller used.
type Request struct {
	CardID         string
	Amount         money.Money
	Merchant       Merchant
	IdempotencyKey string
}

// Response is returned to the caller for both fresh decisions and
// replayed decision-cache hits.
type Response struct {
	AuthorizationID string
	Status          Status
	DeclineReason   string
}

// Pipeline implements the authorization algorithm: decision-cache lookup,
type Pipeline struct {
	Cards    *card.Service
	Rules    *rules.Engine
	Bank     bankadapter.BankAccountAdapter
	Store    Store
	Notifier notification.Notifier
	Logger   *slog.Logger
	Metrics  *metrics.Collector
	Now      func() time.Time

	// Timeouts bounds each CBS adapter call placed by Authorize.
	Timeouts bankadapter.Timeouts
	// AuthorizationBudget bounds the whole Authorize call end to end,
	// including rules evaluation and persistence, not just the CBS call.
	AuthorizationBudget time.Duration
}

func (p *Pipeline) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

// Authorize runs the full pipeline: decision-cache lookup, card and
// mapping resolution, rules evaluation, hold placement, and durable
// persistence, in that order.
func (p *Pipeline) Authorize(ctx context.Context, req Request) (Response, error) {
	if p.AuthorizationBudget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.AuthorizationBudget)
		defer cancel()
	}

	if !ValidIdempotencyKey(req.IdempotencyKey) {
		return Response{}, &ErrInvalidArgument{Reason: "idempotency key is empty or malformed"}
	}

	if cached, err := p.Store.GetByIdempotencyKey(ctx, req.IdempotencyKey); err == nil {
		return Response{AuthorizationID: cached.AuthorizationID, Status: cached.Status, DeclineReason: cached.DeclineReason}, nil
	} else if !errors.Is(err, ErrNotFound) {
		return Response{}, err
	}

	authorizationID := uuid.NewString()

	c, err := p.Cards.Get(ctx, req.CardID)
	if err != nil {
		if errors.Is(err, card.ErrNotFound) {
			return p.decline(ctx, authorizationID, req, "", "Card not found")
		}
		return Response{}, err
	}

	switch {
	case c.State == card.StateClosed:
		return p.decline(ctx, authorizationID, req, "", "card is closed")
	case c.State == card.StateFrozen:
		return p.decline(ctx, authorizationID, req, "", "card is frozen")
	case c.IsExpired(p.now()):
		return p.decline(ctx, authorizationID, req, "", "card is expired")
	}

	mapping, err := p.Cards.Mapping(ctx, req.CardID)
	if err != nil {
		if errors.Is(err, card.ErrNotFound) {
			return p.decline(ctx, authorizationID, req, "", "no bank account linked")
		}
		return Response{}, err
	}

	ruleReq := rules.Request{
		CardID:      req.CardID,
		Amount:      req.Amount,
		MCC:         req.Merchant.MCC,
		Merchant:    req.Merchant.Name,
		RequestedAt: p.now(),
	}
	result, err := p.Rules.Evaluate(ctx, ruleReq)
	if err != nil {
		return Response{}, err
	}
	if result.Declined {
		return p.decline(ctx, authorizationID, req, mapping.BankAccountRef, result.Reason)
	}

	holdCtx, holdCancel := bankadapter.WithTimeout(ctx, p.Timeouts.Hold)
	holdErr := p.Bank.PlaceHold(holdCtx, mapping.BankAccountRef, req.Amount, authorizationID)
	holdCancel()
	if holdErr != nil {
		var insufficient *bankadapter.InsufficientFunds
		if errors.As(holdErr, &insufficient) {
			return p.decline(ctx, authorizationID, req, mapping.BankAccountRef, "Insufficient funds")
		}
		if bankadapter.IsTimeout(holdErr) {
			// The CBS may have placed the hold despite the client-side
			// timeout; its outcome is unknown, so attempt a compensating
			// release before declining.
			p.compensateLeakedHold(authorizationID, mapping.BankAccountRef, req.Amount, holdErr)
			return p.decline(ctx, authorizationID, req, mapping.BankAccountRef, "Bank declined: CBS call timed out")
		}
		var coreErr *bankadapter.BankCoreError
		if errors.As(holdErr, &coreErr) {
			return p.decline(ctx, authorizationID, req, mapping.BankAccountRef, fmt.Sprintf("Bank declined: %v", coreErr.Cause))
		}
		return Response{}, holdErr
	}

	now := p.now().UTC()
	approved := Authorization{
		AuthorizationID: authorizationID,
		CardID:          req.CardID,
		AccountRef:      mapping.BankAccountRef,
		Amount:          req.Amount,
		Status:          StatusApproved,
		Merchant:        req.Merchant,
		IdempotencyKey:  req.IdempotencyKey,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	holdEntry := ledgerentry.Entry{
		ID:              uuid.NewString(),
		TransactionID:   authorizationID,
		AccountRef:      mapping.BankAccountRef,
		EntryType:       ledgerentry.Debit,
		Amount:          req.Amount,
		TransactionType: ledgerentry.AuthHold,
		AuthorizationID: authorizationID,
		CardID:          req.CardID,
		IdempotencyKey:  req.IdempotencyKey,
		CreatedAt:       now,
	}

	if err := p.Store.CreateApproved(ctx, approved, holdEntry); err != nil {
		p.compensateLeakedHold(authorizationID, mapping.BankAccountRef, req.Amount, err)
		return Response{}, err
	}

	if p.Metrics != nil {
		p.Metrics.ObserveAuthorization(string(StatusApproved))
	}
	return Response{AuthorizationID: authorizationID, Status: StatusApproved}, nil
}

func (p *Pipeline) decline(ctx context.Context, authorizationID string, req Request, accountRef, reason string) (Response, error) {
	if ctx.Err() != nil {
		// The authorization budget expired before a decision was reached
		// (e.g. a CBS timeout); persist the decline on a fresh context so
		// the same deadline doesn't also lose the decline record.
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
	}

	now := p.now().UTC()
	declined := Authorization{
		AuthorizationID: authorizationID,
		CardID:          req.CardID,
		AccountRef:      accountRef,
		Amount:          req.Amount,
		Status:          StatusDeclined,
		Merchant:        req.Merchant,
		DeclineReason:   reason,
		IdempotencyKey:  req.IdempotencyKey,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := p.Store.CreateDeclined(ctx, declined); err != nil {
		return Response{}, err
	}
	if p.Metrics != nil {
		p.Metrics.ObserveAuthorization(string(StatusDeclined))
		p.Metrics.ObserveDecline(declineCategory(reason))
	}
	return Response{AuthorizationID: authorizationID, Status: StatusDeclined, DeclineReason: reason}, nil
}

// declineCategory buckets a free-form decline reason into the coarse
// label metrics uses, so cardinality stays bounded regardless of how
// many distinct reason strings the rules engine or CBS adapter produce.
func declineCategory(reason string) string {
	switch {
	case strings.Contains(reason, "Insufficient funds"):
		return "insufficient_funds"
	case strings.Contains(reason, "Bank declined"):
		return "bank_error"
	case strings.Contains(reason, "Card not found"), strings.Contains(reason, "card is"):
		return "card_invalid"
	case strings.Contains(reason, "no bank account linked"):
		return "no_mapping"
	default:
		return "policy"
	}
}

// compensateLeakedHold attempts to release a hold that may exist at the
// CBS without a durable APPROVED record locally: either PlaceHold timed
// out with an unknown outcome, or the hold was placed and the local
// persistence then failed. persistErr is the error that triggered the
// compensation. If the release itself fails, the incident is logged and
// notified for reconciliation.
func (p *Pipeline) compensateLeakedHold(authorizationID, accountRef string, amount money.Money, persistErr error) {
	releaseCtx, cancel := bankadapter.WithTimeout(context.Background(), p.Timeouts.Release)
	defer cancel()
	if err := p.Bank.ReleaseHold(releaseCtx, accountRef, amount, authorizationID); err != nil {
		if p.Logger != nil {
			p.Logger.Error("compensating release failed, hold may be leaked",
				"authorizationId", authorizationID, "accountRef", accountRef, "persistError", persistErr, "releaseError", err)
		}
		if p.Notifier != nil {
			_ = p.Notifier.Send(context.Background(), notification.Message{
				Kind:        KindHeldFundsLeak,
				Destination: "ops-incident",
				Body:        fmt.Sprintf("authorization %s on account %s: compensating release failed, reconcile manually: %v", authorizationID, accountRef, err),
			})
		}
		if p.Metrics != nil {
			p.Metrics.ObserveHeldFundsLeak()
		}
	}
}
