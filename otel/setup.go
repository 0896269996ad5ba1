package otel

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/Aquaveo/xmstool-runner/tool"
)

const instrumentationName = "github.com/Aquaveo/xmstool-runner"

// Providers bundles the providers Setup installed.
type Providers struct {
	Tracer trace.TracerProvider
	Meter  metric.MeterProvider

	shutdown []func(context.Context) error
}

// Shutdown flushes and stops every provider in reverse setup order. It is safe to call on a nil receiver.
func (p *Providers) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	var errs []error
	for _, fn := range slices.Backward(p.shutdown) {
		errs = append(errs, fn(ctx))
	}
	return errors.Join(errs...)
}

// MetricInterval is how often metrics are pushed to the OTLP endpoint.
const MetricInterval = 30 * time.Second

// Setup builds the providers and registers an InvocationObserver with the
// tool package. When endpoint is set, the base URL of an OTLP/HTTP collector,
// spans go to <endpoint>/v1/traces and metrics to <endpoint>/v1/metrics;
// otherwise a no-op tracer is used. reader, when non-nil, receives metrics
// in place of the exporter.
func Setup(ctx context.Context, endpoint string, reader sdkmetric.Reader) (*Providers, error) {
	p := &Providers{}
	endpoint = strings.TrimRight(strings.TrimSpace(endpoint), "/")

	if reader == nil && endpoint != "" {
		exporter, err := otlpmetrichttp.New(ctx, otlpmetrichttp.WithEndpointURL(endpoint+"/v1/metrics"))
		if err != nil {
			return nil, fmt.Errorf("otlp metric exporter: %w", err)
		}
		reader = sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(MetricInterval))
	}
	var meterOpts []sdkmetric.Option
	if reader != nil {
		meterOpts = append(meterOpts, sdkmetric.WithReader(reader))
	}
	mp := sdkmetric.NewMeterProvider(meterOpts...)
	p.Meter = mp
	p.shutdown = append(p.shutdown, mp.Shutdown)

	if endpoint == "" {
		p.Tracer = noop.NewTracerProvider()
	} else {
		exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(endpoint+"/v1/traces"))
		if err != nil {
			_ = p.Shutdown(ctx)
			return nil, fmt.Errorf("otlp trace exporter: %w", err)
		}
		tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
		p.Tracer = tp
		p.shutdown = append(p.shutdown, tp.Shutdown)
	}

	observer, err := NewInvocationObserver(p.Meter.Meter(instrumentationName), p.Tracer.Tracer(instrumentationName))
	if err != nil {
		_ = p.Shutdown(ctx)
		return nil, err
	}
	tool.SetObserver(observer)
	p.shutdown = append(p.shutdown, func(context.Context) error {
		tool.SetObserver(nil)
		return nil
	})
	return p, nil
}
