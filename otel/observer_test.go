package otel_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	otelcodes "go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	xotel "github.com/Aquaveo/xmstool-runner/otel"
	"github.com/Aquaveo/xmstool-runner/tool"
)

func newTestMeter() (*sdkmetric.ManualReader, *sdkmetric.MeterProvider) {
	reader := sdkmetric.NewManualReader()
	return reader, sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
}

func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) *metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	return &rm
}

func findMetric(rm *metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, scope := range rm.ScopeMetrics {
		for i := range scope.Metrics {
			if scope.Metrics[i].Name == name {
				return &scope.Metrics[i]
			}
		}
	}
	return nil
}

func sumOf(t *testing.T, m *metricdata.Metrics) int64 {
	t.Helper()
	require.NotNil(t, m)
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "type = %T", m.Data)
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func echoTool(t *testing.T) tool.Descriptor {
	t.Helper()
	return tool.MustDescriptor(tool.Definition{
		ID:     "echo",
		Params: []tool.ParamSpec{{Name: "text", Kind: tool.ParamText, Required: true}},
		Strategy: tool.InProcess{Run: func(_ context.Context, call tool.Call) (tool.Result, error) {
			if call.Params.String("text") == "boom" {
				return tool.Result{}, errors.New("boom")
			}
			return tool.Result{Artifacts: []tool.Artifact{{Kind: tool.ArtifactValue, Name: "text", Value: call.Params.String("text")}}}, nil
		}},
	})
}

func quietDispatcher() *tool.Dispatcher {
	return tool.NewDispatcher(tool.DispatcherConfig{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
}

func TestInvocationObserverRecordsSpansAndMetrics(t *testing.T) {
	reader, mp := newTestMeter()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))

	observer, err := xotel.NewInvocationObserver(mp.Meter("test"), tp.Tracer("test"))
	require.NoError(t, err)
	tool.SetObserver(observer)
	t.Cleanup(func() { tool.SetObserver(nil) })

	d := quietDispatcher()
	desc := echoTool(t)
	require.True(t, d.Execute(context.Background(), desc, map[string]string{"text": "hi"}, nil).Succeeded())
	assert.Equal(t, tool.KindToolRuntime, d.Execute(context.Background(), desc, map[string]string{"text": "boom"}, nil).Reason)
	assert.Equal(t, tool.KindMissingParameter, d.Execute(context.Background(), desc, nil, nil).Reason)

	spans := exporter.GetSpans()
	require.Len(t, spans, 3)
	assert.Equal(t, "tool:echo", spans[0].Name)
	assert.Equal(t, otelcodes.Ok, spans[0].Status.Code)
	var events []string
	for _, e := range spans[0].Events {
		events = append(events, e.Name)
	}
	assert.Equal(t, []string{"validating", "executing", "succeeded"}, events)

	assert.Equal(t, otelcodes.Error, spans[1].Status.Code)
	assert.Equal(t, string(tool.KindToolRuntime), spans[1].Status.Description)
	assert.Len(t, spans[2].Events, 2)
	assert.Zero(t, observer.Open())

	rm := collectMetrics(t, reader)
	assert.Equal(t, int64(3), sumOf(t, findMetric(rm, "xmstool.tool.invocations")))
	assert.Equal(t, int64(2), sumOf(t, findMetric(rm, "xmstool.tool.failures")))
	assert.Equal(t, int64(8), sumOf(t, findMetric(rm, "xmstool.tool.transitions")))
	latency := findMetric(rm, "xmstool.tool.latency")
	require.NotNil(t, latency)
	_, ok := latency.Data.(metricdata.Histogram[float64])
	assert.True(t, ok)
}

func TestInvocationObserverWithoutTracer(t *testing.T) {
	reader, mp := newTestMeter()
	observer, err := xotel.NewInvocationObserver(mp.Meter("test"), nil)
	require.NoError(t, err)

	observer.ObserveTransition(tool.TransitionObservation{ToolID: "a", InvocationID: "1", From: tool.StatePending, To: tool.StateValidating})
	observer.ObserveInvoke(tool.InvokeObservation{ToolID: "a", InvocationID: "1", Origin: tool.OriginExternalProcess, DurationMS: 250, Reason: tool.KindExternalProcess})

	rm := collectMetrics(t, reader)
	assert.Equal(t, int64(1), sumOf(t, findMetric(rm, "xmstool.tool.failures")))
	assert.Zero(t, observer.Open())

	var nilObserver *xotel.InvocationObserver
	nilObserver.ObserveInvoke(tool.InvokeObservation{})
	nilObserver.ObserveTransition(tool.TransitionObservation{})
}

func TestSetupInstallsObserver(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	providers, err := xotel.Setup(context.Background(), "", reader)
	require.NoError(t, err)

	outcome := quietDispatcher().Execute(context.Background(), echoTool(t), map[string]string{"text": "hi"}, nil)
	require.True(t, outcome.Succeeded())

	rm := collectMetrics(t, reader)
	assert.Equal(t, int64(1), sumOf(t, findMetric(rm, "xmstool.tool.invocations")))

	require.NoError(t, providers.Shutdown(context.Background()))
	var nilProviders *xotel.Providers
	assert.NoError(t, nilProviders.Shutdown(context.Background()))
}

func TestSetupExportsToEndpoint(t *testing.T) {
	var mu sync.Mutex
	paths := map[string]int{}
	collector := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths[r.URL.Path]++
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer collector.Close()

	providers, err := xotel.Setup(context.Background(), collector.URL+"/", nil)
	require.NoError(t, err)
	t.Cleanup(func() { tool.SetObserver(nil) })
	_, ok := providers.Tracer.(*sdktrace.TracerProvider)
	assert.True(t, ok)

	outcome := quietDispatcher().Execute(context.Background(), echoTool(t), map[string]string{"text": "hi"}, nil)
	require.True(t, outcome.Succeeded())

	// shutdown flushes both the span batch and the pending metrics
	require.NoError(t, providers.Shutdown(context.Background()))
	mu.Lock()
	defer mu.Unlock()
	assert.Positive(t, paths["/v1/traces"])
	assert.Positive(t, paths["/v1/metrics"])
}
