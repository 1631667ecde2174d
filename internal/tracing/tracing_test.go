package tracing

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestStartAndEndStreamSpan(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	defer otel.SetTracerProvider(prev)

	_, span := StartStreamSpan(context.Background(), 7, "GET", "/widgets", "example.com")
	EndStreamSpan(span, 502, errors.New("origin timed out"))

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	got := spans[0]
	if got.Name != "h2gate.stream" {
		t.Errorf("span name = %q, want h2gate.stream", got.Name)
	}
	if got.Status.Code.String() != "Error" {
		t.Errorf("span status = %v, want Error", got.Status.Code)
	}
	foundStreamID := false
	for _, attr := range got.Attributes {
		if string(attr.Key) == "http2.stream_id" && attr.Value.AsInt64() == 7 {
			foundStreamID = true
		}
	}
	if !foundStreamID {
		t.Error("expected http2.stream_id attribute to be set")
	}
}
