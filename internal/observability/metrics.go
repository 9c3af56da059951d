package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Domain metrics registered at package init via promauto.

var (
	// RoutingDecisions counts routing outcomes: matched, default, auto_approved.
	RoutingDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "opsdesk_routing_decisions_total",
		Help: "Total routing decisions by outcome",
	}, []string{"outcome"})

	// TransitionsTotal counts attempted state transitions.
	TransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "opsdesk_transitions_total",
		Help: "Total state transition attempts by from/to status and result",
	}, []string{"from", "to", "result"})

	// LedgerAdjustments counts inventory ledger writes.
	LedgerAdjustments = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "opsdesk_ledger_adjustments_total",
		Help: "Total inventory ledger adjustments by transaction type and result",
	}, []string{"type", "result"})

	// EscalationsFired counts requests marked as escalated by the sweeper.
	EscalationsFired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "opsdesk_escalations_fired_total",
		Help: "Total requests escalated past their deadline",
	})

	// SweepDuration observes escalation sweep latency.
	SweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "opsdesk_escalation_sweep_duration_seconds",
		Help:    "Duration of escalation sweep passes",
		Buckets: prometheus.DefBuckets,
	})
)
