package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/roach88/mcg/internal/ir"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "mcg"

// Collector holds the store's metrics.
type Collector struct {
	registry *prometheus.Registry

	// Asset store
	assetsPut *prometheus.CounterVec

	// Ledger
	edgesAppended prometheus.Counter
	appendWait    prometheus.Histogram

	// Runs
	runTransitions *prometheus.CounterVec

	// Failures by operation and error code
	rejected *prometheus.CounterVec

	// Journal
	journalPending  prometheus.Gauge
	journalFailures prometheus.Counter

	// Queries
	queryDuration *prometheus.HistogramVec

	// HTTP
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	logger *zap.Logger
}

// NewCollector registers the store metrics on reg. A nil reg gets a fresh
// private registry.
func NewCollector(namespace string, reg *prometheus.Registry, logger *zap.Logger) *Collector {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	f := promauto.With(reg)

	c := &Collector{
		registry: reg,
		logger:   logger.With(zap.String("component", "metrics")),
	}

	c.assetsPut = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assets_put_total",
			Help:      "Assets submitted, by outcome",
		},
		[]string{"result"}, // inserted, deduplicated
	)

	c.edgesAppended = f.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "edges_appended_total",
			Help:      "Edges committed to the ledger",
		},
	)

	c.appendWait = f.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "append_lock_wait_seconds",
			Help:      "Time spent waiting for the ledger append slot",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
	)

	c.runTransitions = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "run_status_total",
			Help:      "Run registrations and status changes, by resulting status",
		},
		[]string{"status"},
	)

	c.rejected = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejected_operations_total",
			Help:      "Failed operations, by operation and error code",
		},
		[]string{"op", "code"},
	)

	c.journalPending = f.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "journal_pending_records",
			Help:      "Records committed in memory and not yet written to disk",
		},
	)

	c.journalFailures = f.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "journal_write_failures_total",
			Help:      "Journal batches that failed after retries",
		},
	)

	c.queryDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "Lineage and ledger query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"query"},
	)

	c.httpRequestsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	return c
}

// Registry returns the registry the collector is registered on.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// RecordAssetsPut counts a PutAssets call by outcome.
func (c *Collector) RecordAssetsPut(inserted, deduplicated int) {
	if c == nil {
		return
	}
	c.assetsPut.WithLabelValues("inserted").Add(float64(inserted))
	c.assetsPut.WithLabelValues("deduplicated").Add(float64(deduplicated))
}

// RecordEdgesAppended counts committed edges.
func (c *Collector) RecordEdgesAppended(n int) {
	if c == nil {
		return
	}
	c.edgesAppended.Add(float64(n))
}

// ObserveAppendWait records how long an append waited for the slot.
func (c *Collector) ObserveAppendWait(d time.Duration) {
	if c == nil {
		return
	}
	c.appendWait.Observe(d.Seconds())
}

// RecordRunStatus counts a run reaching status.
func (c *Collector) RecordRunStatus(status ir.RunStatus) {
	if c == nil {
		return
	}
	c.runTransitions.WithLabelValues(string(status)).Inc()
}

// RecordRejected counts a failed operation under its error code.
func (c *Collector) RecordRejected(op string, err error) {
	if c == nil || err == nil {
		return
	}
	code := string(ir.CodeOf(err))
	if code == "" {
		code = "INTERNAL"
	}
	c.rejected.WithLabelValues(op, code).Inc()
	c.logger.Debug("operation rejected", zap.String("op", op), zap.String("code", code))
}

// SetJournalPending reports the journal queue depth.
func (c *Collector) SetJournalPending(n int) {
	if c == nil {
		return
	}
	c.journalPending.Set(float64(n))
}

// RecordJournalFailure counts a batch the journal gave up on.
func (c *Collector) RecordJournalFailure() {
	if c == nil {
		return
	}
	c.journalFailures.Inc()
}

// ObserveQuery records a query duration.
func (c *Collector) ObserveQuery(query string, d time.Duration) {
	if c == nil {
		return
	}
	c.queryDuration.WithLabelValues(query).Observe(d.Seconds())
}

// RecordHTTPRequest records one HTTP request.
func (c *Collector) RecordHTTPRequest(method, path string, status int, d time.Duration) {
	if c == nil {
		return
	}
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(d.Seconds())
}

// statusCode groups HTTP status codes into classes.
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return strconv.Itoa(code)
	}
}
