package ports

import (
	"context"
	"time"

	"github.com/jcmexdev/orchestrated-sagas/internal/order-service/domain"
	"github.com/jcmexdev/orchestrated-sagas/internal/saga"
)

type OrderRepository interface {
	Save(ctx context.Context, o *domain.Order) error
	FindByID(ctx context.Context, id string) (*domain.Order, error)
	FindByIdempotencyKey(ctx context.Context, key string) (*domain.Order, error)
	UpdateStatus(ctx context.Context, id string, status domain.OrderStatus, at time.Time) error
	MarkSagaStarted(ctx context.Context, id string) error
}

// EventRepository stores one saga event per saga, replaced as it advances.
type EventRepository interface {
	// Save assigns e.ID on first save and overwrites the stored event after.
	Save(ctx context.Context, e *saga.Event) error
	FindAllOrderByCreatedAtDesc(ctx context.Context) ([]saga.Event, error)
	FindTop1ByOrderIDOrderByCreatedAtDesc(ctx context.Context, orderID string) (*saga.Event, error)
	FindTop1ByTransactionIDOrderByCreatedAtDesc(ctx context.Context, transactionID string) (*saga.Event, error)
}

type OrderService interface {
	CreateOrder(ctx context.Context, items []domain.OrderItem) (*domain.Order, error)
	GetOrder(ctx context.Context, id string) (*domain.Order, error)
}

type EventService interface {
	NotifyEnding(ctx context.Context, e saga.Event) error
	FindAll(ctx context.Context) ([]saga.Event, error)
	FindByFilters(ctx context.Context, filters domain.EventFilters) (*saga.Event, error)
}
