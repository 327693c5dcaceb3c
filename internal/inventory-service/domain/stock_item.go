package domain

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound          = errors.New("reservation not found")
	ErrDuplicate         = errors.New("reservation already exists")
	ErrUnknownProduct    = errors.New("product not found in inventory")
	ErrInsufficientStock = errors.New("insufficient stock")
)

// StockItem is a requested quantity of one product.
type StockItem struct {
	ProductCode string
	Quantity    int
}

// ReservationLine records the stock movement of one product.
type ReservationLine struct {
	ProductCode   string `json:"productCode"`
	OldQuantity   int    `json:"oldQuantity"`
	OrderQuantity int    `json:"orderQuantity"`
	NewQuantity   int    `json:"newQuantity"`
}

// Reservation holds the stock taken by one saga. Released is set once the
// stock went back, so compensation restores it at most once.
type Reservation struct {
	OrderID       string            `json:"orderId"`
	TransactionID string            `json:"transactionId"`
	Lines         []ReservationLine `json:"lines"`
	Released      bool              `json:"released"`
	CreatedAt     time.Time         `json:"createdAt"`
	UpdatedAt     time.Time         `json:"updatedAt"`
}

// Repository keeps stock levels and reservations.
type Repository interface {
	ExistsByOrderIDAndTransactionID(ctx context.Context, orderID, transactionID string) (bool, error)
	FindByOrderIDAndTransactionID(ctx context.Context, orderID, transactionID string) (*Reservation, error)

	// Reserve atomically checks and decrements stock for every item and
	// stores the reservation. It fails with ErrDuplicate, ErrUnknownProduct
	// or ErrInsufficientStock without touching any stock.
	Reserve(ctx context.Context, orderID, transactionID string, items []StockItem, at time.Time) (*Reservation, error)

	// Release restores the stock of a reservation that was not released yet
	// and marks it released. Without a reservation it stores a released
	// marker and reports found=false.
	Release(ctx context.Context, orderID, transactionID string, at time.Time) (found bool, err error)

	Stock(ctx context.Context, productCode string) (int, error)
}
