package observability

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"

	otelprometheus "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Collector records dispatch-core and memory-facade activity: provider call
// latency/errors, retries, fallbacks, memory operation counts, persona turn
// counts, and session lifecycle (spec §4.10). Counters are plain
// Prometheus vectors; the two latency distributions are recorded through an
// otel SDK MeterProvider whose reader is the otel Prometheus exporter, so
// both land on the same scrape endpoint. Collector satisfies
// internal/dispatch.Metrics structurally, without that package importing
// this one, keeping the dependency direction one-way.
type Collector struct {
	providerCalls  *prometheus.CounterVec
	providerErrors *prometheus.CounterVec
	retries        *prometheus.CounterVec
	fallbacks      *prometheus.CounterVec
	memoryOps      *prometheus.CounterVec
	memoryOpErrors *prometheus.CounterVec
	turns          *prometheus.CounterVec
	sessionsStarted prometheus.Counter

	meterProvider    *sdkmetric.MeterProvider
	providerLatency  otelmetric.Float64Histogram
	sessionDurations otelmetric.Float64Histogram
}

// NewCollector registers every metric against reg and returns a Collector.
// Pass prometheus.NewRegistry() in tests to avoid collisions with the
// default global registry.
func NewCollector(reg *prometheus.Registry) (*Collector, error) {
	c := &Collector{
		providerCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alex_provider_calls_total",
			Help: "Total persona backend invocations, by persona.",
		}, []string{"persona"}),
		providerErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alex_provider_errors_total",
			Help: "Total persona backend invocation failures, by persona.",
		}, []string{"persona"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alex_dispatch_retries_total",
			Help: "Total dispatch-core retry attempts, by persona.",
		}, []string{"persona"}),
		fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alex_dispatch_fallbacks_total",
			Help: "Total times the fallback utterance was returned, by persona.",
		}, []string{"persona"}),
		memoryOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alex_memory_ops_total",
			Help: "Total memory facade operations, by kind.",
		}, []string{"kind"}),
		memoryOpErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alex_memory_op_errors_total",
			Help: "Total failed memory facade operations, by kind.",
		}, []string{"kind"}),
		turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alex_conversation_turns_total",
			Help: "Total conversation turns produced, by persona.",
		}, []string{"persona"}),
		sessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "alex_sessions_started_total",
			Help: "Total sessions started.",
		}),
	}

	reg.MustRegister(
		c.providerCalls, c.providerErrors,
		c.retries, c.fallbacks,
		c.memoryOps, c.memoryOpErrors,
		c.turns, c.sessionsStarted,
	)

	exporter, err := otelprometheus.New(otelprometheus.WithRegisterer(reg))
	if err != nil {
		return nil, fmt.Errorf("build otel prometheus exporter: %w", err)
	}
	c.meterProvider = sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := c.meterProvider.Meter("alex/dispatch")

	c.providerLatency, err = meter.Float64Histogram(
		"alex_provider_call_duration_seconds",
		otelmetric.WithDescription("Persona backend invocation latency, by persona."),
	)
	if err != nil {
		return nil, fmt.Errorf("build provider latency histogram: %w", err)
	}
	c.sessionDurations, err = meter.Float64Histogram(
		"alex_session_duration_seconds",
		otelmetric.WithDescription("Session duration from start to end, in seconds."),
	)
	if err != nil {
		return nil, fmt.Errorf("build session duration histogram: %w", err)
	}

	return c, nil
}

// Shutdown flushes and releases the otel MeterProvider backing the latency
// histograms. Callers should invoke it during graceful shutdown.
func (c *Collector) Shutdown(ctx context.Context) error {
	return c.meterProvider.Shutdown(ctx)
}

// RecordProviderCall implements dispatch.Metrics.
func (c *Collector) RecordProviderCall(persona string, latency time.Duration, err error) {
	c.providerCalls.WithLabelValues(persona).Inc()
	c.providerLatency.Record(context.Background(), latency.Seconds(), otelmetric.WithAttributes(attribute.String("persona", persona)))
	if err != nil {
		c.providerErrors.WithLabelValues(persona).Inc()
	}
}

// RecordRetry implements dispatch.Metrics.
func (c *Collector) RecordRetry(persona string) {
	c.retries.WithLabelValues(persona).Inc()
}

// RecordFallback implements dispatch.Metrics.
func (c *Collector) RecordFallback(persona string) {
	c.fallbacks.WithLabelValues(persona).Inc()
}

// RecordMemoryOp implements dispatch.Metrics.
func (c *Collector) RecordMemoryOp(kind string, err error) {
	c.memoryOps.WithLabelValues(kind).Inc()
	if err != nil {
		c.memoryOpErrors.WithLabelValues(kind).Inc()
	}
}

// RecordTurn implements dispatch.Metrics.
func (c *Collector) RecordTurn(persona string) {
	c.turns.WithLabelValues(persona).Inc()
}

// RecordSessionStart implements dispatch.Metrics.
func (c *Collector) RecordSessionStart(string) {
	c.sessionsStarted.Inc()
}

// RecordSessionEnd implements dispatch.Metrics.
func (c *Collector) RecordSessionEnd(_ string, duration time.Duration) {
	c.sessionDurations.Record(context.Background(), duration.Seconds())
}
