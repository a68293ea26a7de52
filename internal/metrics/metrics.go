// Package metrics exposes Prometheus collectors for authorization
// outcomes and CBS adapter call latency. Built on a per-instance
// registry rather than the default global one, so tests can build a
// fresh collector per case.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector aggregates every counter/histogram the core emits.
type Collector struct {
	registry *prometheus.Registry

	authorizationsTotal *prometheus.CounterVec
	declinesTotal       *prometheus.CounterVec
	settlementsTotal    *prometheus.CounterVec
	bankCallDuration    *prometheus.HistogramVec
	bankCallFailures    *prometheus.CounterVec
	heldFundsLeaks      prometheus.Counter
}

// New builds a Collector registered against its own registry (never the
// global default, so multiple Collectors can coexist in tests).
func New() *Collector {
	registry := prometheus.NewRegistry()

	return &Collector{
		registry: registry,
		authorizationsTotal: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "cardcore_authorizations_total",
			Help: "Authorization decisions by status (APPROVED, DECLINED).",
		}, []string{"status"}),
		declinesTotal: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "cardcore_declines_total",
			Help: "Declined authorizations by reason category.",
		}, []string{"reason"}),
		settlementsTotal: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "cardcore_settlements_total",
			Help: "Settlement operations by kind (clear, release, reverse) and outcome.",
		}, []string{"operation", "outcome"}),
		bankCallDuration: promauto.With(registry).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cardcore_bank_call_duration_seconds",
			Help:    "CBS adapter call latency by operation.",
			Buckets: []float64{.005, .01, .025, .05, .1, .2, .3, .5, 1},
		}, []string{"operation"}),
		bankCallFailures: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "cardcore_bank_call_failures_total",
			Help: "CBS adapter call failures by operation and error kind.",
		}, []string{"operation", "kind"}),
		heldFundsLeaks: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "cardcore_held_funds_leaks_total",
			Help: "Compensating releases that failed after a hold timeout or a persist failure.",
		}),
	}
}

// ObserveAuthorization records a terminal authorization decision.
func (c *Collector) ObserveAuthorization(status string) {
	c.authorizationsTotal.WithLabelValues(status).Inc()
}

// ObserveDecline records a decline, bucketed by a coarse reason category
// (e.g. "policy", "insufficient_funds", "bank_error", "card_invalid").
func (c *Collector) ObserveDecline(reasonCategory string) {
	c.declinesTotal.WithLabelValues(reasonCategory).Inc()
}

// ObserveSettlement records a clear/release/reverse outcome.
func (c *Collector) ObserveSettlement(operation, outcome string) {
	c.settlementsTotal.WithLabelValues(operation, outcome).Inc()
}

// ObserveBankCall records the latency of one CBS adapter call.
func (c *Collector) ObserveBankCall(operation string, seconds float64) {
	c.bankCallDuration.WithLabelValues(operation).Observe(seconds)
}

// ObserveBankFailure records a CBS adapter call failure.
func (c *Collector) ObserveBankFailure(operation, kind string) {
	c.bankCallFailures.WithLabelValues(operation, kind).Inc()
}

// ObserveHeldFundsLeak records a compensating release that itself failed.
func (c *Collector) ObserveHeldFundsLeak() {
	c.heldFundsLeaks.Inc()
}

// Handler serves the registry's collected metrics for GET /metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
