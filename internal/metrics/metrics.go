package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the ledger's Prometheus collectors.
	Registry = prometheus.NewRegistry()

	mutations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "account_ledger",
			Subsystem: "ledger",
			Name:      "mutations_total",
			Help:      "Mutations applied to the ledger by result.",
		},
		[]string{"result"},
	)

	malformedRecords = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "account_ledger",
			Subsystem: "taillog",
			Name:      "malformed_records_total",
			Help:      "Tail log records skipped because they failed to parse.",
		},
	)

	rpcCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "account_ledger",
			Subsystem: "rpc",
			Name:      "calls_total",
			Help:      "Outbound RPC calls by command and outcome.",
		},
		[]string{"command", "outcome"},
	)

	rpcPending = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "account_ledger",
			Subsystem: "rpc",
			Name:      "pending_requests",
			Help:      "Requests awaiting a response.",
		},
	)

	rpcDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "account_ledger",
			Subsystem: "rpc",
			Name:      "dropped_responses_total",
			Help:      "Responses with no matching pending request.",
		},
	)

	flushSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "account_ledger",
			Subsystem: "batch",
			Name:      "flush_size",
			Help:      "Transactions written per flush.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		},
	)

	flushFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "account_ledger",
			Subsystem: "batch",
			Name:      "flush_failures_total",
			Help:      "Flushes that failed to reach durable storage.",
		},
	)

	batchedMode = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "account_ledger",
			Subsystem: "batch",
			Name:      "batched_mode",
			Help:      "1 when durable writes are batched, 0 when immediate.",
		},
	)

	cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "account_ledger",
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Statement cache lookups by result.",
		},
		[]string{"result"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "account_ledger",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route and status.",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "account_ledger",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

func init() {
	Registry.MustRegister(
		mutations,
		malformedRecords,
		rpcCalls,
		rpcPending,
		rpcDropped,
		flushSize,
		flushFailures,
		batchedMode,
		cacheLookups,
		httpRequests,
		httpDuration,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// RecordMutation counts an apply by result ("accepted", "rejected", "error").
func RecordMutation(result string) {
	mutations.WithLabelValues(result).Inc()
}

func RecordMalformedRecord() {
	malformedRecords.Inc()
}

// RecordRPCCall counts an outbound call by command and outcome.
func RecordRPCCall(command, outcome string) {
	rpcCalls.WithLabelValues(command, outcome).Inc()
}

func SetRPCPending(n int) {
	rpcPending.Set(float64(n))
}

func RecordDroppedResponse() {
	rpcDropped.Inc()
}

// RecordFlush observes a flush of n transactions.
func RecordFlush(n int, err error) {
	if err != nil {
		flushFailures.Inc()
		return
	}
	flushSize.Observe(float64(n))
}

func SetBatchedMode(batched bool) {
	if batched {
		batchedMode.Set(1)
		return
	}
	batchedMode.Set(0)
}

// RecordCacheLookup counts a statement cache lookup ("hit" or "miss").
func RecordCacheLookup(result string) {
	cacheLookups.WithLabelValues(result).Inc()
}

func RecordHTTPRequest(method, route string, status int, d time.Duration) {
	httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
