// Package observe provides observability for the assistant: OpenTelemetry
// metrics with a Prometheus exporter bridge, plus health and metrics HTTP
// endpoints served on an optional listen address.
//
// A package-level default [Metrics] instance ([DefaultMetrics]) is provided
// for convenience; tests should use [NewMetrics] with a custom
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all metrics.
const meterName = "github.com/voxhaus/voxhaus"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// WakewordDetections counts wakeword triggers. Use with attribute:
	//   attribute.String("keyword", ...)
	WakewordDetections metric.Int64Counter

	// Conversations counts completed conversations. Use with attribute:
	//   attribute.String("reason", ...) — "tool", "timeout", "error"
	Conversations metric.Int64Counter

	// ToolCalls counts tool invocations. Use with attributes:
	//   attribute.String("tool", ...), attribute.String("status", ...)
	ToolCalls metric.Int64Counter

	// DroppedChunks counts audio chunks discarded because the capture
	// consumer fell behind.
	DroppedChunks metric.Int64Counter

	// ConversationDuration tracks full conversation length in seconds.
	ConversationDuration metric.Float64Histogram

	// ToolDuration tracks tool execution latency.
	ToolDuration metric.Float64Histogram

	// ActiveConversations tracks whether a conversation is currently running
	// (0 or 1 for a single assistant instance).
	ActiveConversations metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for
// per-call latencies like tool execution.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// conversationBuckets covers whole spoken exchanges, seconds to minutes.
var conversationBuckets = []float64{
	1, 2.5, 5, 10, 30, 60, 120, 300, 600,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.WakewordDetections, err = m.Int64Counter("voxhaus.wakeword.detections",
		metric.WithDescription("Total wakeword detections by keyword."),
	); err != nil {
		return nil, err
	}
	if met.Conversations, err = m.Int64Counter("voxhaus.conversations",
		metric.WithDescription("Total completed conversations by end reason."),
	); err != nil {
		return nil, err
	}
	if met.ToolCalls, err = m.Int64Counter("voxhaus.tool.calls",
		metric.WithDescription("Total tool invocations by tool name and status."),
	); err != nil {
		return nil, err
	}
	if met.DroppedChunks, err = m.Int64Counter("voxhaus.audio.dropped_chunks",
		metric.WithDescription("Audio chunks dropped because the consumer fell behind."),
	); err != nil {
		return nil, err
	}

	if met.ConversationDuration, err = m.Float64Histogram("voxhaus.conversation.duration",
		metric.WithDescription("Duration of one conversation from wakeword to teardown."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(conversationBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ToolDuration, err = m.Float64Histogram("voxhaus.tool.duration",
		metric.WithDescription("Latency of tool execution."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.ActiveConversations, err = m.Int64UpDownCounter("voxhaus.active_conversations",
		metric.WithDescription("Number of conversations currently in progress."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordWakeword records one wakeword detection.
func (m *Metrics) RecordWakeword(ctx context.Context, keyword string) {
	m.WakewordDetections.Add(ctx, 1,
		metric.WithAttributes(attribute.String("keyword", keyword)),
	)
}

// RecordConversation records a finished conversation with its end reason and
// duration in seconds.
func (m *Metrics) RecordConversation(ctx context.Context, reason string, seconds float64) {
	m.Conversations.Add(ctx, 1,
		metric.WithAttributes(attribute.String("reason", reason)),
	)
	m.ConversationDuration.Record(ctx, seconds)
}

// RecordToolCall records one tool invocation with its latency in seconds.
func (m *Metrics) RecordToolCall(ctx context.Context, tool, status string, seconds float64) {
	attrs := metric.WithAttributes(
		attribute.String("tool", tool),
		attribute.String("status", status),
	)
	m.ToolCalls.Add(ctx, 1, attrs)
	m.ToolDuration.Record(ctx, seconds, attrs)
}
