package coordinator

import (
	"context"
	"log/slog"
	"time"

	"github.com/jcmexdev/orchestrated-sagas/internal/pkg/interceptors"
	"github.com/jcmexdev/orchestrated-sagas/internal/pkg/messaging"
	"github.com/jcmexdev/orchestrated-sagas/internal/pkg/metrics"
	"github.com/jcmexdev/orchestrated-sagas/internal/saga"
)

// Orchestrator owns the saga lifecycle entry points. It is stateless
// between calls: everything it needs travels in the envelope, and every
// call publishes exactly one message without waiting for a reply.
type Orchestrator struct {
	controller *Controller
	publisher  messaging.Publisher
	logger     *slog.Logger
	now        func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithClock overrides the history timestamp source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

func NewOrchestrator(controller *Controller, publisher messaging.Publisher, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		controller: controller,
		publisher:  publisher,
		logger:     slog.Default(),
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// StartSaga stamps the envelope as started by the orchestrator and sends it
// to the first stage.
func (o *Orchestrator) StartSaga(ctx context.Context, e saga.Event) error {
	e = e.Transition(saga.SourceOrchestrator, saga.StatusSuccess, "Saga started!", o.now())
	metrics.SagasStarted.Inc()
	o.logger.InfoContext(ctx, "saga started",
		"order_id", e.OrderID,
		"transaction_id", e.TransactionID,
	)
	return o.route(ctx, e)
}

// ContinueSaga routes an envelope reported back by a participant. The
// participant already recorded its own history entry.
func (o *Orchestrator) ContinueSaga(ctx context.Context, e saga.Event) error {
	o.logger.InfoContext(ctx, "saga continue",
		"transaction_id", e.TransactionID,
		"source", e.Source,
		"status", e.Status,
	)
	return o.route(ctx, e)
}

// FinishSagaSuccess closes a saga whose last stage succeeded.
func (o *Orchestrator) FinishSagaSuccess(ctx context.Context, e saga.Event) error {
	e = e.Transition(saga.SourceOrchestrator, saga.StatusSuccess, "Saga finished successfully!", o.now())
	o.logger.InfoContext(ctx, "saga finished successfully", "transaction_id", e.TransactionID, "order_id", e.OrderID)
	return o.notifyFinished(ctx, e)
}

// FinishSagaFail closes a saga whose compensation has fully unwound.
func (o *Orchestrator) FinishSagaFail(ctx context.Context, e saga.Event) error {
	e = e.Transition(saga.SourceOrchestrator, saga.StatusFail, "Saga finished with errors!", o.now())
	o.logger.InfoContext(ctx, "saga finished with errors", "transaction_id", e.TransactionID, "order_id", e.OrderID)
	return o.notifyFinished(ctx, e)
}

func (o *Orchestrator) notifyFinished(ctx context.Context, e saga.Event) error {
	metrics.SagasFinished.WithLabelValues(string(e.Status)).Inc()
	return o.publish(ctx, e, saga.TopicNotifyEnding)
}

func (o *Orchestrator) route(ctx context.Context, e saga.Event) error {
	topic, err := o.controller.NextTopic(e)
	if err != nil {
		metrics.ConfigurationErrors.WithLabelValues(string(e.Source), string(e.Status)).Inc()
		o.logger.ErrorContext(ctx, "CRITICAL: envelope outside the saga pipeline, check service versions",
			"transaction_id", e.TransactionID,
			"source", e.Source,
			"status", e.Status,
			"error", err,
		)
		return messaging.Permanent(err)
	}

	metrics.SagaTransitions.WithLabelValues(string(e.Source), string(e.Status), string(topic)).Inc()
	return o.publish(ctx, e, topic)
}

func (o *Orchestrator) publish(ctx context.Context, e saga.Event, topic saga.Topic) error {
	msg, err := saga.NewMessage(e, topic)
	if err != nil {
		return messaging.Permanent(err)
	}
	interceptors.InjectOutgoing(ctx, msg)

	if err := o.publisher.Publish(ctx, msg); err != nil {
		return saga.Infrastructure("coordinator: publish "+string(topic), err)
	}
	metrics.MessagesPublished.WithLabelValues(string(topic)).Inc()
	return nil
}
