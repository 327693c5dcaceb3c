// Package app is the inventory stage of the checkout saga.
package app

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/jcmexdev/orchestrated-sagas/internal/inventory-service/domain"
	"github.com/jcmexdev/orchestrated-sagas/internal/participant"
	"github.com/jcmexdev/orchestrated-sagas/internal/saga"
)

var messages = participant.Messages{
	Success:              "Inventory updated successfully!",
	FailurePrefix:        "Fail to update inventory: ",
	Rollback:             "Rollback executed for inventory!",
	NothingToReverse:     "Rollback executed for inventory: nothing to release!",
	RollbackFailedPrefix: "Rollback not executed for inventory: ",
}

// Service reserves stock for the order and releases it on compensation.
type Service struct {
	repo   domain.Repository
	logger *slog.Logger
	now    func() time.Time
}

func NewService(repo domain.Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:   repo,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) Source() saga.Source { return saga.SourceInventory }

func (s *Service) Messages() participant.Messages { return messages }

func (s *Service) Execute(ctx context.Context, e saga.Event) (saga.Event, error) {
	exists, err := s.repo.ExistsByOrderIDAndTransactionID(ctx, e.OrderID, e.TransactionID)
	if err != nil {
		return e, saga.Infrastructure("inventory: check duplicate", err)
	}
	if exists {
		return e, errDuplicate()
	}
	if len(e.Payload.Products) == 0 {
		return e, saga.NewValidationError("Products List is empty!")
	}

	items := make([]domain.StockItem, 0, len(e.Payload.Products))
	for _, line := range e.Payload.Products {
		if line.Quantity <= 0 {
			return e, saga.NewValidationError("Quantity of product %s must be positive", line.Product.Code)
		}
		items = append(items, domain.StockItem{ProductCode: line.Product.Code, Quantity: line.Quantity})
	}

	res, err := s.repo.Reserve(ctx, e.OrderID, e.TransactionID, items, s.now())
	switch {
	case errors.Is(err, domain.ErrDuplicate):
		return e, errDuplicate()
	case errors.Is(err, domain.ErrUnknownProduct):
		return e, saga.NewValidationError("Inventory not found by informed product: %s", unwrapDetail(err, domain.ErrUnknownProduct))
	case errors.Is(err, domain.ErrInsufficientStock):
		return e, saga.NewValidationError("Product is out of stock! %s", unwrapDetail(err, domain.ErrInsufficientStock))
	case err != nil:
		return e, saga.Infrastructure("inventory: reserve", err)
	}

	s.logger.InfoContext(ctx, "stock reserved",
		"order_id", e.OrderID,
		"transaction_id", e.TransactionID,
		"lines", len(res.Lines),
	)
	return e, nil
}

// Compensate gives the reserved stock back once.
func (s *Service) Compensate(ctx context.Context, e saga.Event) (saga.Event, participant.Compensation, error) {
	found, err := s.repo.Release(ctx, e.OrderID, e.TransactionID, s.now())
	if err != nil {
		return e, 0, saga.Infrastructure("inventory: release", err)
	}
	if !found {
		return e, participant.NothingToReverse, nil
	}
	s.logger.InfoContext(ctx, "stock released", "order_id", e.OrderID, "transaction_id", e.TransactionID)
	return e, participant.Reversed, nil
}

func errDuplicate() error {
	return saga.NewValidationError("There's another transactionId for this validation!")
}

// unwrapDetail drops the sentinel prefix of a wrapped domain error.
func unwrapDetail(err error, sentinel error) string {
	return strings.TrimPrefix(err.Error(), sentinel.Error()+": ")
}

var _ participant.Step = (*Service)(nil)
