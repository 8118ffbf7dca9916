package tracing

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	"go.opentelemetry.io/otel/trace"
)

var (
	UserIDKey     = attribute.Key("user.id")
	RoomKey       = attribute.Key("realtime.room")
	EventKindKey  = attribute.Key("event.kind")
	RecipientsKey = attribute.Key("realtime.recipients")
	DurationKey   = attribute.Key("duration_ms")
)

func start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name, trace.WithAttributes(attrs...))
}

// TraceHTTPRequest starts the server span of a REST request.
func TraceHTTPRequest(ctx context.Context, method, route string) (context.Context, trace.Span) {
	return start(ctx, "http."+method,
		semconv.HTTPMethodKey.String(method),
		semconv.HTTPRouteKey.String(route),
	)
}

// TraceHandshake covers a websocket handshake up to room join.
func TraceHandshake(ctx context.Context, remoteAddr string) (context.Context, trace.Span) {
	return start(ctx, "realtime.handshake", attribute.String("net.peer.addr", remoteAddr))
}

// TraceFanOut covers delivery of one event to its rooms.
func TraceFanOut(ctx context.Context, kind string, rooms []string) (context.Context, trace.Span) {
	return start(ctx, "realtime.fanout",
		EventKindKey.String(kind),
		RoomKey.StringSlice(rooms),
	)
}

func TraceMail(ctx context.Context, template string) (context.Context, trace.Span) {
	return start(ctx, "mail.send", attribute.String("mail.template", template))
}

func TraceDatabaseOperation(ctx context.Context, operation, table string) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{attribute.String("db.operation", operation)}
	if table != "" {
		attrs = append(attrs, attribute.String("db.table", table))
	}
	return start(ctx, "db."+operation, attrs...)
}

// AddSpanAttributes is a no-op when the span in ctx is not recording.
func AddSpanAttributes(ctx context.Context, attrs ...attribute.KeyValue) {
	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		span.SetAttributes(attrs...)
	}
}

func RecordError(ctx context.Context, err error) {
	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// MeasureDuration tags the span in ctx with the time elapsed since start.
func MeasureDuration(ctx context.Context, start time.Time, operation string) {
	AddSpanAttributes(ctx,
		attribute.String("operation", operation),
		DurationKey.Int64(time.Since(start).Milliseconds()),
	)
}
