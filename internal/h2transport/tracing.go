package h2transport

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracingConfig configures where spans for each connection's and stream's
// lifetime are reported.
type TracingConfig struct {
	TracerName string
}

// DefaultTracingConfig returns sensible defaults.
func DefaultTracingConfig() TracingConfig {
	return TracingConfig{TracerName: "celeris/h2"}
}

type tracer struct {
	t trace.Tracer
}

func newTracer(cfg TracingConfig) *tracer {
	if cfg.TracerName == "" {
		cfg.TracerName = "celeris/h2"
	}
	return &tracer{t: otel.Tracer(cfg.TracerName)}
}

// startConnection opens a span covering the whole connection's lifetime.
func (tr *tracer) startConnection(ctx context.Context, remoteAddr string) (context.Context, trace.Span) {
	spanCtx, span := tr.t.Start(ctx, "h2.connection", trace.WithSpanKind(trace.SpanKindServer))
	span.SetAttributes(attribute.String("net.peer.addr", remoteAddr))
	return spanCtx, span
}

// startStream opens a child span covering one stream's lifetime.
func (tr *tracer) startStream(ctx context.Context, streamID uint32) (context.Context, trace.Span) {
	spanCtx, span := tr.t.Start(ctx, "h2.stream", trace.WithSpanKind(trace.SpanKindServer))
	span.SetAttributes(attribute.Int64("h2.stream_id", int64(streamID)))
	return spanCtx, span
}

// endStream closes a stream's span, recording its final state and any error.
func endStream(span trace.Span, finalState string, err error) {
	span.SetAttributes(attribute.String("h2.final_state", finalState))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
