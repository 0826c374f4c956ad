// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	EventsProduced     *prometheus.CounterVec
	EventsDispatched   *prometheus.CounterVec
	PollErrors         prometheus.Counter
	WebhookSends       prometheus.Counter
	WebhookFailures    prometheus.Counter
	WebhookThrottled   prometheus.Counter
	LinkOutcomes       *prometheus.CounterVec
	ReportsAdmitted    prometheus.Counter
	ReportsRateLimited prometheus.Counter

	// Histograms (seconds)
	PollDuration    prometheus.Observer
	GatewayDuration prometheus.Observer
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		EventsProduced = promauto.NewCounterVec(prometheus.CounterOpts{Name: "bridge_events_produced_total", Help: "Bridge events appended to the event log, by type"}, []string{"type"})
		EventsDispatched = promauto.NewCounterVec(prometheus.CounterOpts{Name: "bridge_events_dispatched_total", Help: "Bridge events dispatched by the poller, by type"}, []string{"type"})
		PollErrors = promauto.NewCounter(prometheus.CounterOpts{Name: "bridge_poll_errors_total", Help: "Poll ticks that failed to fetch events"})
		WebhookSends = promauto.NewCounter(prometheus.CounterOpts{Name: "webhook_sends_total", Help: "Webhook notifications delivered"})
		WebhookFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "webhook_failures_total", Help: "Webhook notifications that failed with a non-2xx response"})
		WebhookThrottled = promauto.NewCounter(prometheus.CounterOpts{Name: "webhook_throttled_total", Help: "Webhook sends skipped during a 429 cool-down"})
		LinkOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{Name: "link_redemptions_total", Help: "Link-code redemption attempts, by outcome"}, []string{"outcome"})
		ReportsAdmitted = promauto.NewCounter(prometheus.CounterOpts{Name: "reports_admitted_total", Help: "Report commands admitted past the rate limiter"})
		ReportsRateLimited = promauto.NewCounter(prometheus.CounterOpts{Name: "reports_rate_limited_total", Help: "Report commands rejected by the rate limiter"})
		PollDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "bridge_poll_duration_seconds", Help: "Duration of one poll tick including dispatch", Buckets: prometheus.DefBuckets})
		GatewayDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "datastore_request_duration_seconds", Help: "Duration of datastore gateway round trips", Buckets: prometheus.DefBuckets})
	})
}

// ObserveSince records the elapsed time since start in obs if metrics are initialized.
func ObserveSince(obs prometheus.Observer, start time.Time) {
	if obs != nil {
		obs.Observe(time.Since(start).Seconds())
	}
}

// CountEvent increments a per-type counter vector if metrics are initialized.
func CountEvent(vec *prometheus.CounterVec, typ string) {
	if vec != nil {
		vec.WithLabelValues(typ).Inc()
	}
}

// Inc increments a plain counter if metrics are initialized.
func Inc(c prometheus.Counter) {
	if c != nil {
		c.Inc()
	}
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns the correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	if s, ok := ctx.Value(corrKey).(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with a corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
