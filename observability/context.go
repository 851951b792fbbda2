package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// CallContext holds observability context for one guarded call.
type CallContext struct {
	Resource    string
	CallID      string
	Description string
	StartTime   time.Time
	Metrics     *Metrics
}

// NewCallContext creates a call context. If metrics is nil, metric
// recording is silently skipped.
func NewCallContext(resource, callID, description string, metrics *Metrics) *CallContext {
	return &CallContext{
		Resource:    resource,
		CallID:      callID,
		Description: description,
		StartTime:   time.Now(),
		Metrics:     metrics,
	}
}

type callContextKey struct{}

// WithCallContext stores a CallContext in the context.
func WithCallContext(ctx context.Context, cc *CallContext) context.Context {
	return context.WithValue(ctx, callContextKey{}, cc)
}

// CallContextFromContext retrieves the CallContext from context, or nil.
func CallContextFromContext(ctx context.Context) *CallContext {
	if cc, ok := ctx.Value(callContextKey{}).(*CallContext); ok {
		return cc
	}
	return nil
}

// CallIDFromContext returns the id of the guarded call running in ctx, or "".
func CallIDFromContext(ctx context.Context) string {
	if cc := CallContextFromContext(ctx); cc != nil {
		return cc.CallID
	}
	return ""
}

// Start opens the call span, records the in-flight metric and returns a
// context carrying both the span and the call context.
func (cc *CallContext) Start(ctx context.Context) (context.Context, trace.Span) {
	ctx, span := Tracer(tracerName).Start(ctx, SpanGuardCall,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String(AttrResource, cc.Resource),
			attribute.String(AttrCallID, cc.CallID),
		),
	)
	if cc.Description != "" {
		span.SetAttributes(attribute.String(AttrDescription, cc.Description))
	}

	if cc.Metrics != nil {
		cc.Metrics.RecordCallStart(ctx, cc.Resource)
	}
	return WithCallContext(ctx, cc), span
}

// End closes the span and records the finished call.
func (cc *CallContext) End(ctx context.Context, span trace.Span, outcome string, attempts int, err error) {
	duration := time.Since(cc.StartTime)

	if err != nil {
		markFailed(span, err)
		span.SetAttributes(attribute.String(AttrErrorMessage, err.Error()))
	}

	span.SetAttributes(
		attribute.String(AttrOutcome, outcome),
		attribute.Int(AttrAttempts, attempts),
		attribute.Int64(AttrDurationMs, duration.Milliseconds()),
	)
	span.End()

	if cc.Metrics != nil {
		cc.Metrics.RecordCallEnd(ctx, cc.Resource, outcome, duration)
	}
}

// Retry records a retry of the call: the retry counter and a span event.
func (cc *CallContext) Retry(ctx context.Context, attempt int, delay time.Duration, err error) {
	if cc.Metrics != nil {
		cc.Metrics.RecordRetry(ctx, cc.Resource)
	}
	RecordRetry(ctx, attempt, delay, err)
}

// Duration returns the elapsed time since the call started.
func (cc *CallContext) Duration() time.Duration {
	return time.Since(cc.StartTime)
}
