// Package app is the payment stage of the checkout saga.
package app

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/jcmexdev/orchestrated-sagas/internal/participant"
	"github.com/jcmexdev/orchestrated-sagas/internal/payment-service/domain"
	"github.com/jcmexdev/orchestrated-sagas/internal/saga"
)

// DefaultMinAmount is the smallest order total that can be charged.
const DefaultMinAmount = 0.1

var messages = participant.Messages{
	Success:              "Payment realized successfully!",
	FailurePrefix:        "Fail to realize payment: ",
	Rollback:             "Rollback executed for payment!",
	NothingToReverse:     "Rollback executed for payment: nothing to refund!",
	RollbackFailedPrefix: "Rollback not executed for payment: ",
}

// Service charges the order total and refunds it on compensation.
type Service struct {
	repo      domain.Repository
	minAmount float64
	logger    *slog.Logger
	now       func() time.Time
}

func NewService(repo domain.Repository, minAmount float64, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if minAmount <= 0 {
		minAmount = DefaultMinAmount
	}
	return &Service{
		repo:      repo,
		minAmount: minAmount,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) Source() saga.Source { return saga.SourcePayment }

func (s *Service) Messages() participant.Messages { return messages }

// Execute charges the order. The payload comes back annotated with the
// computed totals.
func (s *Service) Execute(ctx context.Context, e saga.Event) (saga.Event, error) {
	exists, err := s.repo.ExistsByOrderIDAndTransactionID(ctx, e.OrderID, e.TransactionID)
	if err != nil {
		return e, saga.Infrastructure("payment: check duplicate", err)
	}
	if exists {
		return e, errDuplicate()
	}

	amount, items := e.Payload.Amount(), e.Payload.Items()
	if amount < s.minAmount {
		return e, saga.NewValidationError("The minimum amount available is %s", strconv.FormatFloat(s.minAmount, 'f', -1, 64))
	}

	if err := s.insert(ctx, e, amount, items, domain.StatusSuccess); err != nil {
		return e, err
	}
	s.logger.InfoContext(ctx, "payment realized",
		"order_id", e.OrderID,
		"transaction_id", e.TransactionID,
		"amount", amount,
		"items", items,
	)
	return e.WithTotals(amount, items), nil
}

// Compensate refunds the payment, or stores a refund marker with zero
// totals when nothing was charged.
func (s *Service) Compensate(ctx context.Context, e saga.Event) (saga.Event, participant.Compensation, error) {
	p, err := s.repo.FindByOrderIDAndTransactionID(ctx, e.OrderID, e.TransactionID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		if err := s.insert(ctx, e, 0, 0, domain.StatusRefund); err != nil {
			return e, 0, err
		}
		return e, participant.NothingToReverse, nil
	case err != nil:
		return e, 0, saga.Infrastructure("payment: find payment", err)
	}

	p.Status = domain.StatusRefund
	p.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, p); err != nil {
		return e, 0, saga.Infrastructure("payment: refund", err)
	}
	s.logger.InfoContext(ctx, "payment refunded", "order_id", e.OrderID, "transaction_id", e.TransactionID)
	return e.WithTotals(p.TotalAmount, p.TotalItems), participant.Reversed, nil
}

func (s *Service) insert(ctx context.Context, e saga.Event, amount float64, items int, status domain.Status) error {
	now := s.now()
	err := s.repo.Insert(ctx, &domain.Payment{
		OrderID:       e.OrderID,
		TransactionID: e.TransactionID,
		TotalAmount:   amount,
		TotalItems:    items,
		Status:        status,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	switch {
	case errors.Is(err, domain.ErrDuplicate):
		return errDuplicate()
	case err != nil:
		return saga.Infrastructure("payment: save payment", err)
	}
	return nil
}

func errDuplicate() error {
	return saga.NewValidationError("There's another transactionId for this validation!")
}

var _ participant.Step = (*Service)(nil)
