// Package otel records tool invocations as OpenTelemetry metrics and spans.
package otel

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/Aquaveo/xmstool-runner/tool"
)

// InvocationObserver implements tool.Observer. Every invocation gets one
// span that opens when it leaves the pending state and closes when the
// dispatcher reports the finished invocation.
type InvocationObserver struct {
	tracer trace.Tracer

	invocations metric.Int64Counter
	failures    metric.Int64Counter
	transitions metric.Int64Counter
	latency     metric.Float64Histogram

	mu    sync.Mutex
	spans map[string]trace.Span // invocationID -> span
}

// NewInvocationObserver creates an observer bound to the provided meter and tracer.
// tracer may be nil, in which case only metrics are recorded.
func NewInvocationObserver(meter metric.Meter, tracer trace.Tracer) (*InvocationObserver, error) {
	invocations, err := meter.Int64Counter(
		"xmstool.tool.invocations",
		metric.WithDescription("Number of tool invocations"),
	)
	if err != nil {
		return nil, err
	}
	failures, err := meter.Int64Counter(
		"xmstool.tool.failures",
		metric.WithDescription("Number of failed tool invocations by reason"),
	)
	if err != nil {
		return nil, err
	}
	transitions, err := meter.Int64Counter(
		"xmstool.tool.transitions",
		metric.WithDescription("Number of invocation state transitions"),
	)
	if err != nil {
		return nil, err
	}
	latency, err := meter.Float64Histogram(
		"xmstool.tool.latency",
		metric.WithDescription("Tool latency in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &InvocationObserver{
		tracer:      tracer,
		invocations: invocations,
		failures:    failures,
		transitions: transitions,
		latency:     latency,
		spans:       make(map[string]trace.Span),
	}, nil
}

// ObserveTransition counts the step and opens or annotates the invocation span.
func (o *InvocationObserver) ObserveTransition(observation tool.TransitionObservation) {
	if o == nil {
		return
	}
	ctx := context.Background()
	o.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tool_id", observation.ToolID),
		attribute.String("to", string(observation.To)),
	))

	if o.tracer == nil {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	span, ok := o.spans[observation.InvocationID]
	if !ok {
		_, span = o.tracer.Start(ctx, "tool:"+observation.ToolID,
			trace.WithAttributes(
				attribute.String("xmstool.tool_id", observation.ToolID),
				attribute.String("xmstool.invocation_id", observation.InvocationID),
			),
		)
		o.spans[observation.InvocationID] = span
	}
	span.AddEvent(string(observation.To), trace.WithAttributes(
		attribute.String("from", string(observation.From)),
	))
}

// ObserveInvoke records one finished invocation and closes its span.
func (o *InvocationObserver) ObserveInvoke(observation tool.InvokeObservation) {
	if o == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("tool_id", observation.ToolID),
		attribute.String("origin", string(observation.Origin)),
		attribute.Bool("success", observation.Success),
	}
	if observation.Reason != "" {
		attrs = append(attrs, attribute.String("reason", string(observation.Reason)))
	}

	ctx := context.Background()
	options := metric.WithAttributes(attrs...)
	o.invocations.Add(ctx, 1, options)
	o.latency.Record(ctx, float64(time.Duration(observation.DurationMS)*time.Millisecond)/float64(time.Second), options)
	if !observation.Success {
		o.failures.Add(ctx, 1, options)
	}

	if o.tracer == nil {
		return
	}
	o.mu.Lock()
	span, ok := o.spans[observation.InvocationID]
	delete(o.spans, observation.InvocationID)
	o.mu.Unlock()
	if !ok {
		_, span = o.tracer.Start(ctx, "tool:"+observation.ToolID)
	}
	span.SetAttributes(attrs...)
	if observation.Success {
		span.SetStatus(codes.Ok, "")
	} else {
		span.SetStatus(codes.Error, string(observation.Reason))
	}
	span.End()
}

// Open reports how many invocation spans have not been closed yet.
func (o *InvocationObserver) Open() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.spans)
}

var _ tool.Observer = (*InvocationObserver)(nil)
