// Package rules implements the policy pipeline evaluated before any
// external resource is committed. Rules are stateless
// except for queries against the authorization store they were
// constructed with, and are evaluated in registration order; the first
// decline wins.
package rules

import (
	"context"
	"time"

	"github.com/congo-pay/cardcore/internal/money"
)

// Request is the input every Rule evaluates against.
type Request struct {
	CardID      string
	Amount      money.Money
	MCC         string
	Merchant    string
	RequestedAt time.Time
}

// Result is the outcome of evaluating a single Rule or the whole Engine:
// either approve, or decline with a reason.
type Result struct {
	Declined bool
	Reason   string
}

// Approve is the zero-value passing Result.
var Approve = Result{}

// Decline builds a declining Result carrying reason.
func Decline(reason string) Result {
	return Result{Declined: true, Reason: reason}
}

// Rule is a single independent policy check.
type Rule interface {
	Evaluate(ctx context.Context, req Request) (Result, error)
}

// Engine composes an ordered sequence of Rules. The first Decline
// short-circuits evaluation and wins; equal-priority rules run in their
// declared order since ties never occur (evaluation stops at the first
// decline).
type Engine struct {
	rules []Rule
}

// NewEngine builds an Engine from an ordered list of rules. Adding a rule
// to the pipeline is adding an entry here; no change to Engine itself is
// required.
func NewEngine(rules ...Rule) *Engine {
	return &Engine{rules: rules}
}

// Evaluate runs every rule in order, returning the first decline or
// Approve if none decline.
func (e *Engine) Evaluate(ctx context.Context, req Request) (Result, error) {
	for _, r := range e.rules {
		res, err := r.Evaluate(ctx, req)
		if err != nil {
			return Result{}, err
		}
		if res.Declined {
			return res, nil
		}
	}
	return Approve, nil
}
