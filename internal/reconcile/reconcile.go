// Package reconcile implements a scheduled loop that closes a gap the
// core's hold/release protocol otherwise leaves open: it may mark an
// Authorization RELEASED locally while the CBS-side hold is still
// ACTIVE, if releaseHold itself failed (settlement.Pipeline.Release
// treats that as best-effort and advances local state regardless). This
// package scans recently-RELEASED authorizations and retries
// releaseHold for any whose hold record is still ACTIVE at the CBS.
package reconcile

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/congo-pay/cardcore/internal/authorization"
	"github.com/congo-pay/cardcore/internal/bankadapter"
	"github.com/congo-pay/cardcore/internal/shadowledger"
)

// HoldInspector is the narrow read surface the scheduler needs from the
// CBS adapter beyond the BankAccountAdapter contract: a way to check
// whether a given authorization's hold is still ACTIVE. Only the
// shadow-journal adapter exposes this.
type HoldInspector interface {
	HoldByAuthorizationID(ctx context.Context, authorizationID string) (shadowledger.HoldRecord, error)
}

// Scheduler periodically retries releaseHold for authorizations that
// went RELEASED locally without a confirmed CBS-side release.
type Scheduler struct {
	Store    authorization.Store
	Bank     bankadapter.BankAccountAdapter
	Inspect  HoldInspector
	Logger   *slog.Logger
	LookBack time.Duration // how far back to scan for RELEASED authorizations; defaults to 24h

	cron *cron.Cron
}

// NewScheduler builds a reconciliation Scheduler. The schedule, a
// standard cron expression (e.g. "@every 5m"), is passed to Start and
// validated there.
func NewScheduler(store authorization.Store, bank bankadapter.BankAccountAdapter, inspect HoldInspector, logger *slog.Logger) *Scheduler {
	return &Scheduler{Store: store, Bank: bank, Inspect: inspect, Logger: logger, LookBack: 24 * time.Hour}
}

// Start schedules RunOnce on the given cron expression and begins
// running it in the background. Returns an error if the expression is
// malformed.
func (s *Scheduler) Start(schedule string) error {
	s.cron = cron.New()
	_, err := s.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.RunOnce(ctx); err != nil && s.Logger != nil {
			s.Logger.Error("reconciliation run failed", "error", err)
		}
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop halts the scheduler and waits for any in-flight run to finish.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.cron == nil {
		return nil
	}
	stopped := s.cron.Stop()
	select {
	case <-stopped.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce scans authorizations RELEASED within LookBack and retries
// releaseHold for any whose CBS hold is still ACTIVE. Each retry is
// naturally idempotent since releaseHold itself must be idempotent.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	lookBack := s.LookBack
	if lookBack <= 0 {
		lookBack = 24 * time.Hour
	}
	since := time.Now().Add(-lookBack)

	candidates, err := s.Store.ReleasedSince(ctx, since)
	if err != nil {
		return err
	}

	for _, a := range candidates {
		hold, err := s.Inspect.HoldByAuthorizationID(ctx, a.AuthorizationID)
		if err != nil {
			// No hold record at all: either already cleaned up or never
			// reached the CBS; nothing to reconcile.
			continue
		}
		if hold.Status != shadowledger.HoldActive {
			continue
		}

		if err := s.Bank.ReleaseHold(ctx, a.AccountRef, a.Amount, a.AuthorizationID); err != nil {
			if s.Logger != nil {
				s.Logger.Error("reconciliation release retry failed",
					"authorizationId", a.AuthorizationID, "accountRef", a.AccountRef, "error", err)
			}
			continue
		}
		if s.Logger != nil {
			s.Logger.Info("reconciliation released orphaned hold", "authorizationId", a.AuthorizationID)
		}
	}
	return nil
}
