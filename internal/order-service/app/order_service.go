// Package app holds the order service use cases: starting checkout sagas,
// recording their outcome and querying saga history.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jcmexdev/orchestrated-sagas/internal/order-service/domain"
	"github.com/jcmexdev/orchestrated-sagas/internal/order-service/ports"
	"github.com/jcmexdev/orchestrated-sagas/internal/pkg/interceptors"
	"github.com/jcmexdev/orchestrated-sagas/internal/pkg/interceptors/constants"
	"github.com/jcmexdev/orchestrated-sagas/internal/pkg/messaging"
	"github.com/jcmexdev/orchestrated-sagas/internal/saga"
)

type orderService struct {
	orders    ports.OrderRepository
	events    ports.EventRepository
	publisher messaging.Publisher
	logger    *slog.Logger
	now       func() time.Time
}

func NewOrderService(orders ports.OrderRepository, events ports.EventRepository, publisher messaging.Publisher, logger *slog.Logger) ports.OrderService {
	if logger == nil {
		logger = slog.Default()
	}
	return &orderService{
		orders:    orders,
		events:    events,
		publisher: publisher,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// CreateOrder persists the order and its initial saga event, then asks the
// orchestrator to start the saga. A repeated idempotency key returns the
// order created the first time; its saga is started again only if the first
// start_saga publish never went through.
func (s *orderService) CreateOrder(ctx context.Context, items []domain.OrderItem) (*domain.Order, error) {
	if len(items) == 0 {
		return nil, saga.NewValidationError("Products List is empty!")
	}
	for _, it := range items {
		if it.ProductCode == "" || it.Quantity <= 0 {
			return nil, saga.NewValidationError("Product code and a positive quantity must be informed!")
		}
	}

	idempotencyKey := interceptors.GetMetadataValue(ctx, constants.ContextKeyIdempotencyKey)
	if idempotencyKey != "" {
		existing, err := s.orders.FindByIdempotencyKey(ctx, idempotencyKey)
		switch {
		case err == nil:
			return s.replay(ctx, existing)
		case !errors.Is(err, domain.ErrNotFound):
			return nil, saga.Infrastructure("order: find by idempotency key", err)
		}
	}

	now := s.now()
	order := &domain.Order{
		ID:             uuid.NewString(),
		TransactionID:  fmt.Sprintf("%d_%s", now.UnixMilli(), uuid.NewString()),
		Items:          items,
		Status:         domain.StatusPending,
		IdempotencyKey: idempotencyKey,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.orders.Save(ctx, order); err != nil {
		return nil, saga.Infrastructure("order: save order", err)
	}

	event := initialEvent(order)
	if err := s.events.Save(ctx, &event); err != nil {
		return nil, saga.Infrastructure("order: save event", err)
	}
	if err := s.startSaga(ctx, order, event); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "order created",
		"order_id", order.ID,
		"transaction_id", order.TransactionID,
		"items", len(items),
		"total", order.Total(),
	)
	return order, nil
}

// replay answers a repeated idempotency key. A pending order whose saga was
// never started gets its stored initial event published again; the message
// id stays <tx>:start_saga:0, so the broker drops it if the first publish did
// land after all.
func (s *orderService) replay(ctx context.Context, order *domain.Order) (*domain.Order, error) {
	if order.SagaStarted || order.Status != domain.StatusPending {
		s.logger.InfoContext(ctx, "order replayed", "order_id", order.ID, "idempotency_key", order.IdempotencyKey)
		return order, nil
	}

	stored, err := s.events.FindTop1ByTransactionIDOrderByCreatedAtDesc(ctx, order.TransactionID)
	var event saga.Event
	switch {
	case err == nil:
		event = *stored
	case errors.Is(err, domain.ErrNotFound):
		event = initialEvent(order)
		if err := s.events.Save(ctx, &event); err != nil {
			return nil, saga.Infrastructure("order: save event", err)
		}
	default:
		return nil, saga.Infrastructure("order: find event", err)
	}
	if len(event.History) > 0 {
		return order, nil
	}

	if err := s.startSaga(ctx, order, event); err != nil {
		return nil, err
	}
	s.logger.WarnContext(ctx, "order replayed, saga start re-sent",
		"order_id", order.ID,
		"transaction_id", order.TransactionID,
		"idempotency_key", order.IdempotencyKey,
	)
	return order, nil
}

// startSaga publishes the initial event to start_saga and marks the order.
// A failed mark only costs a deduplicated re-publish on the next replay.
func (s *orderService) startSaga(ctx context.Context, order *domain.Order, event saga.Event) error {
	msg, err := saga.NewMessage(event, saga.TopicStartSaga)
	if err != nil {
		return err
	}
	interceptors.InjectOutgoing(ctx, msg)
	if err := s.publisher.Publish(ctx, msg); err != nil {
		return saga.Infrastructure("order: publish start_saga", err)
	}

	if err := s.orders.MarkSagaStarted(ctx, order.ID); err != nil {
		s.logger.WarnContext(ctx, "saga started but order not marked",
			"order_id", order.ID,
			"error", err,
		)
		return nil
	}
	order.SagaStarted = true
	return nil
}

func initialEvent(order *domain.Order) saga.Event {
	return saga.Event{
		TransactionID: order.TransactionID,
		OrderID:       order.ID,
		Payload: saga.Payload{
			ID:            order.ID,
			TransactionID: order.TransactionID,
			Products:      order.Products(),
			CreatedAt:     order.CreatedAt,
		},
		CreatedAt: order.CreatedAt,
	}
}

func (s *orderService) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	order, err := s.orders.FindByID(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, saga.NewValidationError("Order %s not found", id)
	}
	if err != nil {
		return nil, saga.Infrastructure("order: find order", err)
	}
	return order, nil
}
