// Package metrics provides Prometheus metrics for token issuance, backfill runs and the HTTP API.
package metrics

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "preview"

// Collision sources.
const (
	CollisionMemory  = "memory"  // candidate found in the in-memory issued set
	CollisionStorage = "storage" // candidate rejected by the database unique constraint
)

// Backfill row outcomes.
const (
	OutcomeUpdated = "updated"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

var (
	// atomic.Pointer lets the record helpers be called before Init (they no-op).
	requestsTotal     atomic.Pointer[prometheus.CounterVec]
	requestDuration   atomic.Pointer[prometheus.HistogramVec]
	authFailuresTotal atomic.Pointer[prometheus.CounterVec]
	tokensIssued      atomic.Pointer[prometheus.CounterVec]
	tokenCollisions   atomic.Pointer[prometheus.CounterVec]
	issueFailures     atomic.Pointer[prometheus.CounterVec]
	backfillRows      atomic.Pointer[prometheus.CounterVec]
)

// Init registers all collectors with reg. Call it once at startup.
func Init(reg prometheus.Registerer) error {
	requestsTotalVec := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled by the API",
		},
		[]string{"method", "path", "status"},
	)
	if err := reg.Register(requestsTotalVec); err != nil {
		return fmt.Errorf("failed to register requestsTotal: %w", err)
	}

	requestDurationVec := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	if err := reg.Register(requestDurationVec); err != nil {
		return fmt.Errorf("failed to register requestDuration: %w", err)
	}

	authFailuresTotalVec := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "auth_failures_total",
			Help:      "Total number of authentication failures",
		},
		[]string{"reason"},
	)
	if err := reg.Register(authFailuresTotalVec); err != nil {
		return fmt.Errorf("failed to register authFailuresTotal: %w", err)
	}

	tokensIssuedVec := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tokens",
			Name:      "issued_total",
			Help:      "Total number of tokens issued and persisted",
		},
		[]string{"prefix"},
	)
	if err := reg.Register(tokensIssuedVec); err != nil {
		return fmt.Errorf("failed to register tokensIssued: %w", err)
	}

	tokenCollisionsVec := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tokens",
			Name:      "collisions_total",
			Help:      "Total number of candidate tokens rejected as already issued",
		},
		[]string{"source"},
	)
	if err := reg.Register(tokenCollisionsVec); err != nil {
		return fmt.Errorf("failed to register tokenCollisions: %w", err)
	}

	issueFailuresVec := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tokens",
			Name:      "issue_failures_total",
			Help:      "Total number of issuance attempts that produced no token",
		},
		[]string{"prefix"},
	)
	if err := reg.Register(issueFailuresVec); err != nil {
		return fmt.Errorf("failed to register issueFailures: %w", err)
	}

	backfillRowsVec := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backfill",
			Name:      "rows_total",
			Help:      "Rows visited by backfill passes, by field and outcome",
		},
		[]string{"field", "outcome"},
	)
	if err := reg.Register(backfillRowsVec); err != nil {
		return fmt.Errorf("failed to register backfillRows: %w", err)
	}

	infoGaugeVec := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "info",
			Help:      "Preview token service version information",
		},
		[]string{"version"},
	)
	infoGaugeInstance := infoGaugeVec.WithLabelValues(Version)
	if err := reg.Register(infoGaugeVec); err != nil {
		return fmt.Errorf("failed to register infoGauge: %w", err)
	}
	infoGaugeInstance.Set(1)

	requestsTotal.Store(requestsTotalVec)
	requestDuration.Store(requestDurationVec)
	authFailuresTotal.Store(authFailuresTotalVec)
	tokensIssued.Store(tokensIssuedVec)
	tokenCollisions.Store(tokenCollisionsVec)
	issueFailures.Store(issueFailuresVec)
	backfillRows.Store(backfillRowsVec)

	return nil
}

// Version is reported by the info gauge. Overridden at build time via -ldflags.
var Version = "dev"

// RecordRequest increments the requests counter. path must already be normalized.
func RecordRequest(method, path, statusCode string) {
	if counter := requestsTotal.Load(); counter != nil {
		counter.WithLabelValues(method, path, statusCode).Inc()
	}
}

// RecordRequestDuration records the latency for a request in seconds.
func RecordRequestDuration(method, path, statusCode string, durationSeconds float64) {
	if histogram := requestDuration.Load(); histogram != nil {
		histogram.WithLabelValues(method, path, statusCode).Observe(durationSeconds)
	}
}

// RecordAuthFailure increments the auth failures counter.
// Reasons: "missing_token", "invalid_token".
func RecordAuthFailure(reason string) {
	if counter := authFailuresTotal.Load(); counter != nil {
		counter.WithLabelValues(reason).Inc()
	}
}

// RecordTokenIssued counts a token that was issued and persisted.
func RecordTokenIssued(prefix string) {
	if counter := tokensIssued.Load(); counter != nil {
		counter.WithLabelValues(prefix).Inc()
	}
}

// RecordTokenCollision counts a rejected candidate token.
func RecordTokenCollision(source string) {
	if counter := tokenCollisions.Load(); counter != nil {
		counter.WithLabelValues(source).Inc()
	}
}

// RecordIssueFailure counts an issuance that gave up without a token.
func RecordIssueFailure(prefix string) {
	if counter := issueFailures.Load(); counter != nil {
		counter.WithLabelValues(prefix).Inc()
	}
}

// RecordBackfillRow counts one row visited by a backfill pass.
func RecordBackfillRow(field, outcome string) {
	if counter := backfillRows.Load(); counter != nil {
		counter.WithLabelValues(field, outcome).Inc()
	}
}

// Handler returns an HTTP handler serving the default registry in text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// HandlerFor returns an HTTP handler serving the given gatherer.
func HandlerFor(reg prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// GetMetricsText returns the Prometheus text-format output from a registry.
func GetMetricsText(reg prometheus.Gatherer) (string, error) {
	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()

	HandlerFor(reg).ServeHTTP(w, req)

	body, err := io.ReadAll(w.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read metrics output: %w", err)
	}

	return string(body), nil
}
