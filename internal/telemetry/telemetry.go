// Package telemetry wraps tracked operations and their steps in OpenTelemetry spans.
package telemetry

import (
	"context"
	"fmt"
	"io"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// TracerName is the instrumentation scope of every pbctl span.
const TracerName = "github.com/imamik/pbctl"

// Span attribute keys.
const (
	LabelKey     = "pbctl.label"
	OperationKey = "pbctl.operation"
)

// Noop returns a tracer that records nothing.
func Noop() trace.Tracer {
	return noop.NewTracerProvider().Tracer(TracerName)
}

// Setup builds a tracer that writes finished spans to w as JSON. The returned
// shutdown function flushes pending spans.
func Setup(w io.Writer) (trace.Tracer, func(context.Context) error, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, nil, fmt.Errorf("create trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	return tp.Tracer(TracerName), tp.Shutdown, nil
}

// Operation is the root span of one tracked operation.
type Operation struct {
	ctx    context.Context
	tracer trace.Tracer
	span   trace.Span
}

// Start opens the root span for operation on label. A nil tracer yields an
// Operation whose steps run untraced.
func Start(ctx context.Context, tracer trace.Tracer, operation, label string) *Operation {
	if tracer == nil {
		return &Operation{ctx: ctx}
	}
	spanCtx, span := tracer.Start(ctx, operation, trace.WithAttributes(
		attribute.String(OperationKey, operation),
		attribute.String(LabelKey, label),
	))
	return &Operation{ctx: spanCtx, tracer: tracer, span: span}
}

// Context returns the context carrying the root span.
func (o *Operation) Context() context.Context {
	if o == nil || o.ctx == nil {
		return context.Background()
	}
	return o.ctx
}

// RunStep runs fn inside a child span named id.
func (o *Operation) RunStep(ctx context.Context, id string, fn func(context.Context) error) error {
	if fn == nil {
		return nil
	}
	if ctx == nil {
		ctx = o.Context()
	}
	if o == nil || o.tracer == nil {
		return fn(ctx)
	}

	stepCtx, span := o.tracer.Start(ctx, id)
	defer span.End()

	if err := fn(stepCtx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, strings.TrimSpace(err.Error()))
		return err
	}
	return nil
}

// Annotate adds attributes to the root span.
func (o *Operation) Annotate(attrs ...attribute.KeyValue) {
	if o == nil || o.span == nil {
		return
	}
	o.span.SetAttributes(attrs...)
}

// End closes the root span, recording err if non-nil.
func (o *Operation) End(err error) {
	if o == nil || o.span == nil {
		return
	}
	if err != nil {
		o.span.RecordError(err)
		o.span.SetStatus(codes.Error, strings.TrimSpace(err.Error()))
	}
	o.span.End()
}
