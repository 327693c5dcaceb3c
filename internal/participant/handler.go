package participant

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jcmexdev/orchestrated-sagas/internal/pkg/interceptors"
	"github.com/jcmexdev/orchestrated-sagas/internal/pkg/messaging"
	"github.com/jcmexdev/orchestrated-sagas/internal/pkg/metrics"
	"github.com/jcmexdev/orchestrated-sagas/internal/saga"
)

// Outcome classifies a Result.
type Outcome string

const (
	OutcomeSuccess          Outcome = "success"
	OutcomeRollbackPending  Outcome = "rollback_pending"
	OutcomeCompensated      Outcome = "compensated"
	OutcomeNothingToReverse Outcome = "nothing_to_reverse"
	OutcomeRollbackFailed   Outcome = "rollback_failed"
)

// Result is the envelope a stage reports plus how it got there. Business
// failures are results, not errors.
type Result struct {
	Event   saga.Event
	Outcome Outcome
	// Reason is the failure text for OutcomeRollbackPending and OutcomeRollbackFailed.
	Reason string
}

// Handler drives a Step from bus deliveries.
type Handler struct {
	step        Step
	publisher   messaging.Publisher
	logger      *slog.Logger
	now         func() time.Time
	maxAttempts int
}

// Option configures a Handler.
type Option func(*Handler)

func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(h *Handler) {
		if now != nil {
			h.now = now
		}
	}
}

// WithMaxAttempts must match the bus redelivery limit. On the last attempt
// an infrastructure failure is reported as ROLLBACK_PENDING instead of
// being handed back to the bus.
func WithMaxAttempts(n int) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxAttempts = n
		}
	}
}

func New(step Step, publisher messaging.Publisher, opts ...Option) *Handler {
	h := &Handler{
		step:        step,
		publisher:   publisher,
		logger:      slog.Default(),
		now:         func() time.Time { return time.Now().UTC() },
		maxAttempts: 3,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With("stage", string(step.Source()))
	return h
}

// Forward runs the forward step and decides the envelope to report. The
// only error it returns is a retryable infrastructure failure.
func (h *Handler) Forward(ctx context.Context, e saga.Event, attempt int) (Result, error) {
	source, msgs := h.step.Source(), h.step.Messages()

	out, err := h.step.Execute(ctx, e)
	if err == nil {
		return Result{
			Event:   out.Transition(source, saga.StatusSuccess, msgs.Success, h.now()),
			Outcome: OutcomeSuccess,
		}, nil
	}

	if saga.IsInfrastructure(err) && attempt < h.maxAttempts {
		return Result{}, err
	}

	h.logger.ErrorContext(ctx, "forward step failed",
		"transaction_id", e.TransactionID,
		"order_id", e.OrderID,
		"attempt", attempt,
		"error", err,
	)
	return Result{
		Event:   e.Transition(source, saga.StatusRollbackPending, msgs.FailurePrefix+err.Error(), h.now()),
		Outcome: OutcomeRollbackPending,
		Reason:  err.Error(),
	}, nil
}

// Rollback runs the compensation. It never fails: a compensation that
// cannot run is recorded in history and the saga keeps unwinding.
func (h *Handler) Rollback(ctx context.Context, e saga.Event) Result {
	source, msgs := h.step.Source(), h.step.Messages()

	out, comp, err := h.step.Compensate(ctx, e)
	if err != nil {
		h.logger.ErrorContext(ctx, "rollback not executed",
			"transaction_id", e.TransactionID,
			"order_id", e.OrderID,
			"error", err,
		)
		return Result{
			Event:   e.Transition(source, saga.StatusFail, msgs.RollbackFailedPrefix+err.Error(), h.now()),
			Outcome: OutcomeRollbackFailed,
			Reason:  err.Error(),
		}
	}

	if comp == NothingToReverse {
		return Result{
			Event:   out.Transition(source, saga.StatusFail, msgs.NothingToReverse, h.now()),
			Outcome: OutcomeNothingToReverse,
		}
	}
	return Result{
		Event:   out.Transition(source, saga.StatusFail, msgs.Rollback, h.now()),
		Outcome: OutcomeCompensated,
	}
}

// HandleStep runs the forward step and publishes its result.
func (h *Handler) HandleStep(ctx context.Context, e saga.Event, attempt int) error {
	res, err := h.Forward(ctx, e, attempt)
	if err != nil {
		h.logger.WarnContext(ctx, "forward step will be retried",
			"transaction_id", e.TransactionID,
			"attempt", attempt,
			"error", err,
		)
		return err
	}
	if err := h.report(ctx, res); err != nil {
		if res.Outcome == OutcomeSuccess {
			h.undo(ctx, e)
		}
		return err
	}
	return nil
}

// undo reverses a committed forward step whose result never reached the
// orchestrator. The redelivery then hits the duplicate guard and reports
// ROLLBACK_PENDING, so the saga unwinds from the previous stage.
func (h *Handler) undo(ctx context.Context, e saga.Event) {
	_, comp, err := h.step.Compensate(ctx, e)
	if err != nil {
		h.logger.ErrorContext(ctx, "unreported step could not be reversed",
			"transaction_id", e.TransactionID,
			"source", h.step.Source(),
			"error", err,
		)
		return
	}
	h.logger.WarnContext(ctx, "unreported step reversed",
		"transaction_id", e.TransactionID,
		"source", h.step.Source(),
		"compensation", comp,
	)
}

// RollbackStep runs the compensation and publishes its result.
func (h *Handler) RollbackStep(ctx context.Context, e saga.Event) error {
	return h.report(ctx, h.Rollback(ctx, e))
}

func (h *Handler) report(ctx context.Context, res Result) error {
	msg, err := saga.NewMessage(res.Event, saga.TopicBaseOrchestrator)
	if err != nil {
		return messaging.Permanent(err)
	}
	interceptors.InjectOutgoing(ctx, msg)

	if err := h.publisher.Publish(ctx, msg); err != nil {
		return saga.Infrastructure("participant: publish result", err)
	}

	metrics.StepOutcomes.WithLabelValues(string(h.step.Source()), string(res.Outcome)).Inc()
	metrics.MessagesPublished.WithLabelValues(msg.Topic).Inc()
	h.logger.InfoContext(ctx, "step reported",
		"transaction_id", res.Event.TransactionID,
		"status", res.Event.Status,
		"outcome", res.Outcome,
	)
	return nil
}

// Subscribe binds the forward and rollback topics of the stage on sub.
func (h *Handler) Subscribe(
	ctx context.Context,
	sub messaging.Subscriber,
	group string,
	forward, rollback saga.Topic,
	chain ...interceptors.Interceptor,
) (func(), error) {
	forwardHandler := interceptors.Chain(saga.EventHandler(func(ctx context.Context, e saga.Event, msg *messaging.Message) error {
		return h.HandleStep(ctx, e, msg.Attempt)
	}), chain...)
	rollbackHandler := interceptors.Chain(saga.EventHandler(func(ctx context.Context, e saga.Event, _ *messaging.Message) error {
		return h.RollbackStep(ctx, e)
	}), chain...)

	stopForward, err := sub.Subscribe(ctx, string(forward), group, forwardHandler)
	if err != nil {
		return nil, fmt.Errorf("participant: subscribe %s: %w", forward, err)
	}
	stopRollback, err := sub.Subscribe(ctx, string(rollback), group, rollbackHandler)
	if err != nil {
		stopForward()
		return nil, fmt.Errorf("participant: subscribe %s: %w", rollback, err)
	}

	return func() {
		stopForward()
		stopRollback()
	}, nil
}
