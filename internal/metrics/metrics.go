package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "sweeper"

var (
	// Fee estimator
	FeeQuotesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "fee",
		Name:      "quotes_total",
		Help:      "Fee quotes produced, by mode and source (live or fallback)",
	}, []string{"mode", "source"})

	// Engine
	SubmissionAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "attempts_total",
		Help:      "Submission attempts, by outcome and error class",
	}, []string{"outcome", "class"})

	TransfersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "transfers_total",
		Help:      "Logical transfers, by asset and terminal result",
	}, []string{"asset", "result"})

	TransferDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "transfer_duration_seconds",
		Help:      "Time from the first build to the terminal state",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 300},
	}, []string{"asset"})

	// Monitor
	MonitorTicksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "monitor",
		Name:      "ticks_total",
		Help:      "Balance polling ticks, by result",
	}, []string{"result"})

	ObservedBalance = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "monitor",
		Name:      "observed_balance",
		Help:      "Last observed balance in base units (precision is lost above 2^53)",
	}, []string{"asset"})

	// RPC
	RPCCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "rpc",
		Name:      "calls_total",
		Help:      "JSON-RPC calls, by method and error class",
	}, []string{"method", "class"})

	RPCRateLimitWaits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "rpc",
		Name:      "rate_limit_waits_total",
		Help:      "Calls delayed by the client-side rate limiter",
	})
)
