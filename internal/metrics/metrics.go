package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	rpcRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "swapscope",
		Subsystem: "rpc",
		Name:      "requests_total",
		Help:      "Count of upstream RPC requests by method and status.",
	}, []string{"method", "status"})

	rpcDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "swapscope",
		Subsystem: "rpc",
		Name:      "request_duration_seconds",
		Help:      "Duration of upstream RPC requests.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method"})

	logsFetched = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "swapscope",
		Subsystem: "scanner",
		Name:      "logs_fetched_total",
		Help:      "Swap logs returned by log queries.",
	})

	recordsWritten = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "swapscope",
		Subsystem: "scanner",
		Name:      "records_written_total",
		Help:      "Enriched swap records written to the sink.",
	})

	skipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "swapscope",
		Subsystem: "scanner",
		Name:      "skipped_total",
		Help:      "Transactions or block ranges given up on, by kind.",
	}, []string{"kind"})

	rangeRetries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "swapscope",
		Subsystem: "scanner",
		Name:      "range_retries_total",
		Help:      "Log queries retried on a narrowed range.",
	})

	lastProcessedBlock = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "swapscope",
		Subsystem: "scanner",
		Name:      "last_processed_block",
		Help:      "Last block fully processed by the orchestrator.",
	})
)

// ObserveRPC records a single upstream call outcome and duration.
func ObserveRPC(method string, err error, started time.Time) {
	status := "success"
	switch {
	case err == nil:
	case isRateLimited(err):
		status = "rate_limited"
	default:
		status = "error"
	}

	rpcRequests.WithLabelValues(method, status).Inc()
	rpcDuration.WithLabelValues(method).Observe(time.Since(started).Seconds())
}

func LogsFetched(n int) {
	logsFetched.Add(float64(n))
}

func RecordsWritten(n int) {
	recordsWritten.Add(float64(n))
}

func Skipped(kind string, n int) {
	skipped.WithLabelValues(kind).Add(float64(n))
}

func RangeRetry() {
	rangeRetries.Inc()
}

func LastProcessedBlock(block uint64) {
	lastProcessedBlock.Set(float64(block))
}

// rateLimitedError is satisfied by errors that know whether they were throttled.
type rateLimitedError interface {
	RateLimitHit() bool
}

func isRateLimited(err error) bool {
	var rl rateLimitedError
	return errors.As(err, &rl) && rl.RateLimitHit()
}
