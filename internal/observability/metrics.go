// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Source metrics
	RawTxDelivered  prometheus.Counter
	SourceOverflow  prometheus.Counter
	SourceDegraded  prometheus.Gauge
	SourceConnected prometheus.Gauge
	SourceBufferLen prometheus.Gauge

	// Parser metrics
	SwapsParsed      *prometheus.CounterVec
	NonSwapsRejected prometheus.Counter

	// Filter metrics
	SignalsAllowed prometheus.Counter
	SignalsDenied  *prometheus.CounterVec

	// Execution metrics
	AttemptsSubmitted  prometheus.Counter
	AttemptsDuplicate  prometheus.Counter
	QueueDepth         prometheus.Gauge
	ExecutingAttempts  prometheus.Gauge
	TradesCompleted    *prometheus.CounterVec
	TradeExecutionTime prometheus.Histogram

	// Collaborator latency metrics
	RPCCallLatency        *prometheus.HistogramVec
	AggregatorCallLatency *prometheus.HistogramVec

	// Health metrics
	TrackedWallets prometheus.Gauge
	UptimeSeconds  prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "solana_copy_trader"
	}

	return &Metrics{
		// Source metrics
		RawTxDelivered: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "source",
			Name:      "raw_tx_delivered_total",
			Help:      "Total number of raw transactions delivered downstream",
		}),
		SourceOverflow: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "source",
			Name:      "overflow_total",
			Help:      "Total number of raw transactions dropped due to a full buffer",
		}),
		SourceDegraded: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "source",
			Name:      "degraded",
			Help:      "1 when the chain source has exceeded its failure threshold",
		}),
		SourceConnected: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "source",
			Name:      "connected",
			Help:      "1 when the chain source is connected",
		}),
		SourceBufferLen: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "source",
			Name:      "buffer_len",
			Help:      "Current number of raw transactions buffered",
		}),

		// Parser metrics
		SwapsParsed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "parser",
			Name:      "swaps_parsed_total",
			Help:      "Total number of swap events parsed by protocol",
		}, []string{"protocol"}),
		NonSwapsRejected: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "parser",
			Name:      "non_swaps_rejected_total",
			Help:      "Total number of raw transactions rejected as non-swaps",
		}),

		// Filter metrics
		SignalsAllowed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "filter",
			Name:      "signals_allowed_total",
			Help:      "Total number of eligibility evaluations that allowed a copy",
		}),
		SignalsDenied: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "filter",
			Name:      "signals_denied_total",
			Help:      "Total number of eligibility denials by reason",
		}, []string{"reason"}),

		// Execution metrics
		AttemptsSubmitted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "attempts_submitted_total",
			Help:      "Total number of attempts accepted into the queue",
		}),
		AttemptsDuplicate: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "attempts_duplicate_total",
			Help:      "Total number of submissions dropped as duplicates",
		}),
		QueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "queue_depth",
			Help:      "Current number of queued attempts",
		}),
		ExecutingAttempts: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "executing_attempts",
			Help:      "Current number of attempts in the executing state",
		}),
		TradesCompleted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "trades_completed_total",
			Help:      "Total number of terminal attempts by status",
		}, []string{"status"}),
		TradeExecutionTime: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "trade_execution_seconds",
			Help:      "Wall time from dequeue to terminal state",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60},
		}),

		// Collaborator latency metrics
		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_latency_seconds",
			Help:      "Solana RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		AggregatorCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "aggregator",
			Name:      "call_latency_seconds",
			Help:      "Aggregator API call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),

		// Health metrics
		TrackedWallets: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "tracked_wallets",
			Help:      "Current number of active tracked wallets",
		}),
		UptimeSeconds: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "uptime_seconds_total",
			Help:      "Total uptime in seconds",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordRawTxDelivered increments the raw transaction delivery counter.
func RecordRawTxDelivered() {
	DefaultMetrics.RawTxDelivered.Inc()
}

// RecordSourceOverflow increments the drop-oldest overflow counter.
func RecordSourceOverflow() {
	DefaultMetrics.SourceOverflow.Inc()
}

// SetSourceDegraded updates the source degradation gauge.
func SetSourceDegraded(degraded bool) {
	if degraded {
		DefaultMetrics.SourceDegraded.Set(1)
	} else {
		DefaultMetrics.SourceDegraded.Set(0)
	}
}

// SetSourceConnected updates the source connection gauge.
func SetSourceConnected(connected bool) {
	if connected {
		DefaultMetrics.SourceConnected.Set(1)
	} else {
		DefaultMetrics.SourceConnected.Set(0)
	}
}

// RecordSwapParsed increments the parsed swap counter for a protocol.
func RecordSwapParsed(protocol string) {
	DefaultMetrics.SwapsParsed.WithLabelValues(protocol).Inc()
}

// RecordNonSwapRejected increments the non-swap rejection counter.
func RecordNonSwapRejected() {
	DefaultMetrics.NonSwapsRejected.Inc()
}

// RecordSignalAllowed increments the allowed evaluation counter.
func RecordSignalAllowed() {
	DefaultMetrics.SignalsAllowed.Inc()
}

// RecordSignalDenied increments the denial counter for a reason.
func RecordSignalDenied(reason string) {
	DefaultMetrics.SignalsDenied.WithLabelValues(reason).Inc()
}

// RecordTradeCompleted increments the terminal attempt counter and observes
// execution time.
func RecordTradeCompleted(status string, seconds float64) {
	DefaultMetrics.TradesCompleted.WithLabelValues(status).Inc()
	DefaultMetrics.TradeExecutionTime.Observe(seconds)
}

// RecordRPCLatency records RPC call latency.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}

// RecordAggregatorLatency records aggregator API call latency.
func RecordAggregatorLatency(operation string, seconds float64) {
	DefaultMetrics.AggregatorCallLatency.WithLabelValues(operation).Observe(seconds)
}
