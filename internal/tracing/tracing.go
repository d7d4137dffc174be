// Package tracing carries W3C trace context across broker hops so a span
// started by a publisher can be continued by the subscriber that decodes
// its message, the same way AMQP headers carry it between teacher
// services.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// HeaderCarrier adapts a plain string-keyed map to otel's TextMapCarrier so
// trace context can ride along inside a broker message's headers/metadata.
type HeaderCarrier map[string]string

func (c HeaderCarrier) Get(key string) string { return c[key] }
func (c HeaderCarrier) Set(key, value string) { c[key] = value }
func (c HeaderCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}

// Inject writes the trace context carried by ctx into a fresh header map.
func Inject(ctx context.Context) HeaderCarrier {
	carrier := make(HeaderCarrier)
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	return carrier
}

// Extract recovers a trace context from headers produced by Inject.
func Extract(ctx context.Context, headers map[string]string) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, HeaderCarrier(headers))
}

// Tracer returns the engine's named tracer.
func Tracer(name string) oteltrace.Tracer {
	return otel.Tracer(name)
}
