package domain

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound  = errors.New("payment not found")
	ErrDuplicate = errors.New("payment already exists")
)

// Status of a payment.
type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusRefund  Status = "REFUND"
)

// Payment is the ledger entry of one saga. There is at most one per
// (OrderID, TransactionID).
type Payment struct {
	ID            int64
	OrderID       string
	TransactionID string
	TotalItems    int
	TotalAmount   float64
	Status        Status
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Repository stores payments.
type Repository interface {
	ExistsByOrderIDAndTransactionID(ctx context.Context, orderID, transactionID string) (bool, error)
	FindByOrderIDAndTransactionID(ctx context.Context, orderID, transactionID string) (*Payment, error)
	// Insert fails with ErrDuplicate when the pair is already stored.
	Insert(ctx context.Context, p *Payment) error
	Update(ctx context.Context, p *Payment) error
}
