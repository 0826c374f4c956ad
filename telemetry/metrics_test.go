package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestInitRegistersMetrics(t *testing.T) {
	Init()
	// Calling Init again must not re-register (promauto panics on duplicates).
	Init()

	if EventsProduced == nil || EventsDispatched == nil || LinkOutcomes == nil {
		t.Error("counter vectors not initialized")
	}
	if PollDuration == nil || GatewayDuration == nil {
		t.Error("histograms not initialized")
	}
}

func TestHelpersAreNilSafe(t *testing.T) {
	// Helpers must tolerate running before Init (e.g. in unit tests of other
	// packages).
	ObserveSince(nil, time.Now())
	CountEvent(nil, "chat")
	Inc(nil)
}

func TestObserveSinceRecords(t *testing.T) {
	h := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "test_duration_seconds",
		Help:    "Test duration",
		Buckets: prometheus.DefBuckets,
	})

	ObserveSince(h, time.Now().Add(-50*time.Millisecond))

	metric := &dto.Metric{}
	if err := h.Write(metric); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	if metric.Histogram == nil || *metric.Histogram.SampleCount != 1 {
		t.Error("ObserveSince did not record an observation")
	}
	if *metric.Histogram.SampleSum < 0.05 {
		t.Errorf("observed sum = %v, want >= 0.05s", *metric.Histogram.SampleSum)
	}
}

func TestCountEvent(t *testing.T) {
	vec := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "test_events_total",
		Help: "Test events",
	}, []string{"type"})

	CountEvent(vec, "chat")
	CountEvent(vec, "chat")
	CountEvent(vec, "online")

	metric := &dto.Metric{}
	if err := vec.WithLabelValues("chat").Write(metric); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	if *metric.Counter.Value != 2 {
		t.Errorf("chat count = %v, want 2", *metric.Counter.Value)
	}
}

func TestCorrelation(t *testing.T) {
	ctx := context.Background()
	if GetCorrelation(ctx) != "" {
		t.Error("empty context should carry no correlation id")
	}
	ctx = WithCorrelation(ctx, "corr-1")
	if got := GetCorrelation(ctx); got != "corr-1" {
		t.Errorf("correlation = %q", got)
	}
	if LoggerWithCorr(ctx) == nil {
		t.Error("LoggerWithCorr returned nil")
	}
}
