// Package telemetry defines the logging, metrics, and tracing seams used
// throughout the scheduling core. Core packages depend only on these
// interfaces; concrete Clue/OTEL-backed implementations and no-op fakes
// live alongside them so that unit tests never need a live collector.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type (
	// Logger emits structured, leveled log lines. Keyvals follow the
	// alternating key/value convention (k1, v1, k2, v2, ...).
	Logger interface {
		Debug(ctx context.Context, msg string, keyvals ...any)
		Info(ctx context.Context, msg string, keyvals ...any)
		Warn(ctx context.Context, msg string, keyvals ...any)
		Error(ctx context.Context, msg string, keyvals ...any)
	}

	// Metrics records counters, timers, and gauges, tagged with
	// alternating key/value dimension pairs.
	Metrics interface {
		IncCounter(name string, value float64, tags ...string)
		RecordTimer(name string, duration time.Duration, tags ...string)
		RecordGauge(name string, value float64, tags ...string)
	}

	// Tracer starts spans for long-running operations (the scheduler's
	// claim and the executor's handling of a message).
	Tracer interface {
		Start(ctx context.Context, name string) (context.Context, Span)
	}

	// Span is the subset of an OTEL span the core needs.
	Span interface {
		End()
		SetStatus(code codes.Code, description string)
		RecordError(err error)
		AddEvent(name string, keyvals ...any)
	}
)

// otelTracer adapts a trace.Tracer to the Tracer interface.
type otelTracer struct {
	tracer trace.Tracer
}

// NewOTelTracer wraps an OpenTelemetry tracer.
func NewOTelTracer(tracer trace.Tracer) Tracer {
	return otelTracer{tracer: tracer}
}

func (t otelTracer) Start(ctx context.Context, name string) (context.Context, Span) {
	newCtx, span := t.tracer.Start(ctx, name)
	return newCtx, otelSpan{span: span}
}

type otelSpan struct {
	span trace.Span
}

func (s otelSpan) End() { s.span.End() }

func (s otelSpan) SetStatus(code codes.Code, description string) {
	s.span.SetStatus(code, description)
}

func (s otelSpan) RecordError(err error) {
	s.span.RecordError(err)
}

func (s otelSpan) AddEvent(name string, keyvals ...any) {
	s.span.AddEvent(name, trace.WithAttributes(kvToAttrs(keyvals)...))
}
