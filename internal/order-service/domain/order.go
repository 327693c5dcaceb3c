package domain

import (
	"errors"
	"time"

	"github.com/jcmexdev/orchestrated-sagas/internal/saga"
)

var ErrNotFound = errors.New("not found")

// Order is the checkout request that starts a saga.
type Order struct {
	ID            string
	TransactionID string
	Items         []OrderItem
	Status        OrderStatus
	// IdempotencyKey is the client key the order was created with, if any.
	IdempotencyKey string
	// SagaStarted is set once the broker accepted the start_saga message.
	SagaStarted bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type OrderItem struct {
	ProductCode string
	Quantity    int
	UnitValue   float64
}

func (i OrderItem) Subtotal() float64 {
	return float64(i.Quantity) * i.UnitValue
}

// Total is the sum of the item subtotals.
func (o Order) Total() float64 {
	var total float64
	for _, it := range o.Items {
		total += it.Subtotal()
	}
	return total
}

// Products converts the items to saga order lines.
func (o Order) Products() []saga.OrderProduct {
	out := make([]saga.OrderProduct, len(o.Items))
	for i, it := range o.Items {
		out[i] = saga.OrderProduct{
			Product:  saga.Product{Code: it.ProductCode, UnitValue: it.UnitValue},
			Quantity: it.Quantity,
		}
	}
	return out
}

type OrderStatus string

const (
	StatusPending   OrderStatus = "PENDING"
	StatusCompleted OrderStatus = "COMPLETED"
	StatusCancelled OrderStatus = "CANCELLED"
)

// StatusFromSaga maps the final saga status to the order status.
func StatusFromSaga(s saga.Status) OrderStatus {
	if s == saga.StatusSuccess {
		return StatusCompleted
	}
	return StatusCancelled
}

// EventFilters selects a stored saga event. OrderID wins when both are set.
type EventFilters struct {
	OrderID       string
	TransactionID string
}

func (f EventFilters) Empty() bool {
	return f.OrderID == "" && f.TransactionID == ""
}
