package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// HeaderCarrier adapts broker message headers to propagation.TextMapCarrier.
// Values that are not strings are ignored on Get.
type HeaderCarrier map[string]any

func (c HeaderCarrier) Get(key string) string {
	switch v := c[key].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	}
	return ""
}

func (c HeaderCarrier) Set(key, value string) {
	c[key] = value
}

func (c HeaderCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}

// Inject writes the span context of ctx into headers. headers must be non-nil.
func Inject(ctx context.Context, headers map[string]any) {
	otel.GetTextMapPropagator().Inject(ctx, HeaderCarrier(headers))
}

// Extract returns ctx enriched with the remote span context found in headers.
func Extract(ctx context.Context, headers map[string]any) context.Context {
	if len(headers) == 0 {
		return ctx
	}
	return otel.GetTextMapPropagator().Extract(ctx, HeaderCarrier(headers))
}

// StartConsumerSpan continues the trace carried by headers.
func StartConsumerSpan(ctx context.Context, name string, headers map[string]any) (context.Context, trace.Span) {
	ctx = Extract(ctx, headers)
	return Tracer().Start(ctx, name, trace.WithSpanKind(trace.SpanKindConsumer))
}

// StartProducerSpan starts a span around a publish.
func StartProducerSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, trace.WithSpanKind(trace.SpanKindProducer))
}
