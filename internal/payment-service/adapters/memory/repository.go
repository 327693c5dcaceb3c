// Package memory is an in-process payment store for local runs and tests.
package memory

import (
	"context"
	"sync"

	"github.com/jcmexdev/orchestrated-sagas/internal/payment-service/domain"
)

type key struct {
	orderID, transactionID string
}

type Repository struct {
	mu       sync.Mutex
	nextID   int64
	payments map[key]domain.Payment
}

func New() *Repository {
	return &Repository{payments: make(map[key]domain.Payment)}
}

func (r *Repository) ExistsByOrderIDAndTransactionID(_ context.Context, orderID, transactionID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.payments[key{orderID, transactionID}]
	return ok, nil
}

func (r *Repository) FindByOrderIDAndTransactionID(_ context.Context, orderID, transactionID string) (*domain.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[key{orderID, transactionID}]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &p, nil
}

func (r *Repository) Insert(_ context.Context, p *domain.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := key{p.OrderID, p.TransactionID}
	if _, ok := r.payments[k]; ok {
		return domain.ErrDuplicate
	}
	r.nextID++
	p.ID = r.nextID
	r.payments[k] = *p
	return nil
}

func (r *Repository) Update(_ context.Context, p *domain.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := key{p.OrderID, p.TransactionID}
	if _, ok := r.payments[k]; !ok {
		return domain.ErrNotFound
	}
	r.payments[k] = *p
	return nil
}

var _ domain.Repository = (*Repository)(nil)
