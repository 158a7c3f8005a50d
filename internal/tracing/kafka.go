package tracing

import (
	"context"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
)

// kafkaCarrier adapts message headers to propagation.TextMapCarrier.
type kafkaCarrier struct {
	headers *[]kafka.Header
}

func (c kafkaCarrier) Get(key string) string {
	for _, h := range *c.headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c kafkaCarrier) Set(key, value string) {
	for i, h := range *c.headers {
		if h.Key == key {
			(*c.headers)[i].Value = []byte(value)
			return
		}
	}
	*c.headers = append(*c.headers, kafka.Header{Key: key, Value: []byte(value)})
}

func (c kafkaCarrier) Keys() []string {
	keys := make([]string, 0, len(*c.headers))
	for _, h := range *c.headers {
		keys = append(keys, h.Key)
	}
	return keys
}

// KafkaHeaders returns message headers carrying the trace context and correlation id of ctx.
func KafkaHeaders(ctx context.Context) []kafka.Header {
	var headers []kafka.Header
	carrier := kafkaCarrier{headers: &headers}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	if id := CorrelationID(ctx); id != "" {
		carrier.Set(CorrelationHeader, id)
	}
	return headers
}

// FromKafkaHeaders restores the trace context and correlation id written by KafkaHeaders.
func FromKafkaHeaders(ctx context.Context, headers []kafka.Header) context.Context {
	carrier := kafkaCarrier{headers: &headers}
	ctx = otel.GetTextMapPropagator().Extract(ctx, carrier)
	if id := carrier.Get(CorrelationHeader); id != "" {
		ctx = WithCorrelationID(ctx, id)
	}
	return ctx
}
