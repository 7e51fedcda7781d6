package otelhelper

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

func TestStartSpanAndRecordError(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()

	provider, err := NewTracerProvider(Config{ServiceName: "flowstate-test"}, sdktrace.WithSpanProcessor(recorder))
	require.NoError(t, err)
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	tracer := provider.Tracer("flowstate-test")

	_, ok := StartSpan(context.Background(), tracer, "workflow.ok", attribute.String(InstanceIDKey, "i1"))
	RecordError(ok, nil)
	ok.End()

	_, failed := StartSpan(context.Background(), tracer, "workflow.failed")
	RecordError(failed, errors.New("boom"), attribute.String(NodeIDKey, "n1"))
	failed.End()

	spans := recorder.Ended()
	require.Len(t, spans, 2)

	assert.Equal(t, "workflow.ok", spans[0].Name())
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
	assert.Contains(t, spans[0].Attributes(), attribute.String(InstanceIDKey, "i1"))
	assert.Contains(t, spans[0].Resource().Attributes(), semconv.ServiceName("flowstate-test"))

	assert.Equal(t, codes.Error, spans[1].Status().Code)
	assert.Equal(t, "boom", spans[1].Status().Description)
	require.Len(t, spans[1].Events(), 1)
	assert.Contains(t, spans[1].Events()[0].Attributes, attribute.String(NodeIDKey, "n1"))
}

func TestNewTracerProvider_Sampling(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()

	provider, err := NewTracerProvider(Config{ServiceName: "flowstate-test", SampleRatio: 0.000001}, sdktrace.WithSpanProcessor(recorder))
	require.NoError(t, err)
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	kept := 0

	for range 50 {
		_, span := provider.Tracer("t").Start(context.Background(), "sampled")
		if span.SpanContext().IsSampled() {
			kept++
		}

		span.End()
	}

	assert.Less(t, kept, 50)
}
