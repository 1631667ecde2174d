// Package tracing wraps the OpenTelemetry tracer this core uses for
// per-stream spans, mirroring the teacher's request-scoped span
// attributes but keyed by HTTP/2 stream instead of an HTTP/1 request.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "h2gate/upstream"

// Tracer returns the shared tracer for this package.
func Tracer() trace.Tracer { return otel.Tracer(tracerName) }

// StartStreamSpan starts a span for one HTTP/2 stream's lifetime, from
// HEADERS-complete to stream-close.
func StartStreamSpan(ctx context.Context, streamID uint32, method, path, authority string) (context.Context, trace.Span) {
	spanCtx, span := Tracer().Start(ctx, "h2gate.stream", trace.WithSpanKind(trace.SpanKindServer))
	span.SetAttributes(
		attribute.Int64("http2.stream_id", int64(streamID)),
		attribute.String("http.method", method),
		attribute.String("http.target", path),
		attribute.String("http.host", authority),
	)
	return spanCtx, span
}

// EndStreamSpan records the final status and outcome on span and ends it.
func EndStreamSpan(span trace.Span, status int, err error) {
	span.SetAttributes(attribute.Int("http.status_code", status))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
