package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jcmexdev/orchestrated-sagas/internal/order-service/domain"
	"github.com/jcmexdev/orchestrated-sagas/internal/order-service/ports"
	"github.com/jcmexdev/orchestrated-sagas/internal/saga"
)

type eventService struct {
	events ports.EventRepository
	orders ports.OrderRepository
	logger *slog.Logger
	now    func() time.Time
}

func NewEventService(events ports.EventRepository, orders ports.OrderRepository, logger *slog.Logger) ports.EventService {
	if logger == nil {
		logger = slog.Default()
	}
	return &eventService{
		events: events,
		orders: orders,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// NotifyEnding stores the final envelope of a saga and settles its order.
func (s *eventService) NotifyEnding(ctx context.Context, e saga.Event) error {
	if err := s.events.Save(ctx, &e); err != nil {
		return saga.Infrastructure("order: save final event", err)
	}

	status := domain.StatusFromSaga(e.Status)
	err := s.orders.UpdateStatus(ctx, e.OrderID, status, s.now())
	switch {
	case errors.Is(err, domain.ErrNotFound):
		s.logger.WarnContext(ctx, "saga ended for unknown order", "order_id", e.OrderID, "transaction_id", e.TransactionID)
	case err != nil:
		return saga.Infrastructure("order: update order status", err)
	}

	s.logger.InfoContext(ctx, "saga notified",
		"order_id", e.OrderID,
		"transaction_id", e.TransactionID,
		"status", e.Status,
		"order_status", status,
		"history", len(e.History),
	)
	return nil
}

func (s *eventService) FindAll(ctx context.Context) ([]saga.Event, error) {
	events, err := s.events.FindAllOrderByCreatedAtDesc(ctx)
	if err != nil {
		return nil, saga.Infrastructure("order: list events", err)
	}
	return events, nil
}

// FindByFilters returns the latest event of the order, or of the
// transaction when no order id is given.
func (s *eventService) FindByFilters(ctx context.Context, filters domain.EventFilters) (*saga.Event, error) {
	if filters.Empty() {
		return nil, saga.NewValidationError("OrderID or TransactionID must be informed")
	}

	var (
		e        *saga.Event
		err      error
		notFound string
	)
	if filters.OrderID != "" {
		e, err = s.events.FindTop1ByOrderIDOrderByCreatedAtDesc(ctx, filters.OrderID)
		notFound = "Event not found by orderID"
	} else {
		e, err = s.events.FindTop1ByTransactionIDOrderByCreatedAtDesc(ctx, filters.TransactionID)
		notFound = "Event not found by transactionId"
	}
	if errors.Is(err, domain.ErrNotFound) {
		return nil, saga.NewValidationError("%s", notFound)
	}
	if err != nil {
		return nil, saga.Infrastructure("order: find event", err)
	}
	return e, nil
}
