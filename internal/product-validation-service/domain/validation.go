package domain

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no validation exists for the pair.
	ErrNotFound = errors.New("validation not found")
	// ErrDuplicate is returned when the pair already has a validation.
	ErrDuplicate = errors.New("validation already exists")
)

// Validation records the outcome of validating one saga's products. There
// is at most one per (OrderID, TransactionID).
type Validation struct {
	ID            int64
	OrderID       string
	TransactionID string
	Success       bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ValidationRepository stores validations.
type ValidationRepository interface {
	ExistsByOrderIDAndTransactionID(ctx context.Context, orderID, transactionID string) (bool, error)
	FindByOrderIDAndTransactionID(ctx context.Context, orderID, transactionID string) (*Validation, error)
	// Insert fails with ErrDuplicate when the pair is already stored.
	Insert(ctx context.Context, v *Validation) error
	Update(ctx context.Context, v *Validation) error
}

// ProductRepository is the product catalog.
type ProductRepository interface {
	ExistsByCode(ctx context.Context, code string) (bool, error)
}
