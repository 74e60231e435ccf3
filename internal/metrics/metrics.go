// Package metrics exposes the operator-facing counters spec.md §9 calls
// for: the best-effort replication tradeoff is only safe to run in
// production if staleness and redirect/forward behavior are visible.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	RequestsRouted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mom_requests_routed_total",
		Help: "Topic create requests handled on this node, by outcome (local, fallback_local).",
	}, []string{"outcome"})

	RequestsRedirected = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mom_requests_redirected_total",
		Help: "Requests forwarded to the owning primary node.",
	})

	RedirectFallbacks = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mom_redirect_fallbacks_total",
		Help: "Forwards to a primary that failed (handled locally instead, except queue consume, which fails).",
	})

	ReplicationAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mom_replication_attempts_total",
		Help: "Replication RPC attempts, by operation and result.",
	}, []string{"op", "result"})

	QueuePops = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mom_queue_pops_total",
		Help: "Queue consume attempts, by whether a message was returned.",
	}, []string{"result"})
)

// Register adds every collector to reg. Call once at startup.
func Register(reg *prometheus.Registry) {
	reg.MustRegister(RequestsRouted, RequestsRedirected, RedirectFallbacks, ReplicationAttempts, QueuePops)
}
