package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/codes"
)

// Noop is a Logger, Metrics, and Tracer that discards everything. Tests and
// local tooling use it when no observability backend is configured.
type Noop struct{}

func (Noop) Debug(context.Context, string, ...any) {}
func (Noop) Info(context.Context, string, ...any)  {}
func (Noop) Warn(context.Context, string, ...any)  {}
func (Noop) Error(context.Context, string, ...any) {}

func (Noop) IncCounter(string, float64, ...string)          {}
func (Noop) RecordTimer(string, time.Duration, ...string)   {}
func (Noop) RecordGauge(string, float64, ...string)         {}

func (Noop) Start(ctx context.Context, _ string) (context.Context, Span) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End()                                    {}
func (noopSpan) SetStatus(codes.Code, string)             {}
func (noopSpan) RecordError(error)                        {}
func (noopSpan) AddEvent(string, ...any)                  {}
