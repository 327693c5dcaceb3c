package interceptors

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/jcmexdev/orchestrated-sagas/internal/pkg/interceptors/constants"
	"github.com/jcmexdev/orchestrated-sagas/internal/pkg/messaging"
	"github.com/jcmexdev/orchestrated-sagas/internal/pkg/metrics"
)

// Interceptor decorates a message handler.
type Interceptor func(next messaging.Handler) messaging.Handler

// Chain applies interceptors so that the first one is the outermost.
func Chain(h messaging.Handler, interceptors ...Interceptor) messaging.Handler {
	for i := len(interceptors) - 1; i >= 0; i-- {
		h = interceptors[i](h)
	}
	return h
}

// TraceConsumerInterceptor restores the producer's trace context and request
// ids from the message headers, opens a consumer span and records the outcome.
func TraceConsumerInterceptor(service string) Interceptor {
	tracer := otel.Tracer(service)
	return func(next messaging.Handler) messaging.Handler {
		return func(ctx context.Context, msg *messaging.Message) error {
			ctx = otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier(msg.Headers))

			requestID := msg.Header(constants.HeaderXRequestId)
			ctx = context.WithValue(ctx, constants.ContextKeyRequestID, requestID)
			ctx = context.WithValue(ctx, constants.ContextKeyTransactionID, msg.Key)
			if key := msg.Header(constants.HeaderXIdempotencyKey); key != "" {
				ctx = context.WithValue(ctx, constants.ContextKeyIdempotencyKey, key)
			}

			ctx, span := tracer.Start(ctx, "consume "+msg.Topic,
				trace.WithSpanKind(trace.SpanKindConsumer),
				trace.WithAttributes(
					attribute.String("messaging.destination.name", msg.Topic),
					attribute.String("saga.transaction_id", msg.Key),
					attribute.Int("messaging.delivery.attempt", msg.Attempt),
				),
			)
			defer span.End()

			slog.DebugContext(ctx, "message received",
				"topic", msg.Topic,
				"transaction_id", msg.Key,
				"request_id", requestID,
				"attempt", msg.Attempt,
			)

			err := next(ctx, msg)
			switch {
			case err == nil:
				metrics.MessagesConsumed.WithLabelValues(msg.Topic, "ack").Inc()
			case messaging.IsPermanent(err):
				metrics.MessagesConsumed.WithLabelValues(msg.Topic, "dropped").Inc()
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			default:
				metrics.MessagesConsumed.WithLabelValues(msg.Topic, "retry").Inc()
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}
			return err
		}
	}
}

// InjectOutgoing copies the request id and the active trace context from ctx
// into the message headers so the next consumer can continue the trace.
func InjectOutgoing(ctx context.Context, msg *messaging.Message) {
	if msg.Headers == nil {
		msg.Headers = make(map[string]string)
	}
	if id := GetMetadataValue(ctx, constants.ContextKeyRequestID); id != "" {
		msg.Headers[constants.HeaderXRequestId] = id
	}
	if msg.Key != "" {
		msg.Headers[constants.HeaderXTransactionId] = msg.Key
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.MapCarrier(msg.Headers))
}

// GetMetadataValue returns a string stored in ctx under key, or "".
func GetMetadataValue(ctx context.Context, key any) string {
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}
