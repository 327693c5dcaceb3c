// Package app is the product validation stage of the checkout saga.
package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jcmexdev/orchestrated-sagas/internal/participant"
	"github.com/jcmexdev/orchestrated-sagas/internal/product-validation-service/domain"
	"github.com/jcmexdev/orchestrated-sagas/internal/saga"
)

var messages = participant.Messages{
	Success:              "Products are validated successfully!",
	FailurePrefix:        "Fail to validate products: ",
	Rollback:             "Rollback executed on product validation!",
	NothingToReverse:     "Rollback executed on product validation: nothing to reverse!",
	RollbackFailedPrefix: "Rollback not executed on product validation: ",
}

// Service checks that every product of the order exists in the catalog.
type Service struct {
	validations domain.ValidationRepository
	products    domain.ProductRepository
	logger      *slog.Logger
	now         func() time.Time
}

func NewService(validations domain.ValidationRepository, products domain.ProductRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		validations: validations,
		products:    products,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) Source() saga.Source { return saga.SourceProductValidation }

func (s *Service) Messages() participant.Messages { return messages }

// Execute validates the order products and records a successful validation.
func (s *Service) Execute(ctx context.Context, e saga.Event) (saga.Event, error) {
	exists, err := s.validations.ExistsByOrderIDAndTransactionID(ctx, e.OrderID, e.TransactionID)
	if err != nil {
		return e, saga.Infrastructure("product validation: check duplicate", err)
	}
	if exists {
		return e, saga.NewValidationError("There's another transactionId for this validation.")
	}
	if err := validateProductsInformed(e); err != nil {
		return e, err
	}

	for _, line := range e.Payload.Products {
		if line.Product.Code == "" {
			return e, saga.NewValidationError("Product must be informed")
		}
		ok, err := s.products.ExistsByCode(ctx, line.Product.Code)
		if err != nil {
			return e, saga.Infrastructure("product validation: lookup product", err)
		}
		if !ok {
			return e, saga.NewValidationError("Product does not exist in database")
		}
	}

	if err := s.insert(ctx, e, true); err != nil {
		return e, err
	}
	s.logger.InfoContext(ctx, "products validated", "order_id", e.OrderID, "transaction_id", e.TransactionID)
	return e, nil
}

// Compensate marks the validation as failed, or stores a failed marker
// when the forward step never ran.
func (s *Service) Compensate(ctx context.Context, e saga.Event) (saga.Event, participant.Compensation, error) {
	v, err := s.validations.FindByOrderIDAndTransactionID(ctx, e.OrderID, e.TransactionID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		if err := s.insert(ctx, e, false); err != nil {
			return e, 0, err
		}
		return e, participant.NothingToReverse, nil
	case err != nil:
		return e, 0, saga.Infrastructure("product validation: find validation", err)
	}

	v.Success = false
	v.UpdatedAt = s.now()
	if err := s.validations.Update(ctx, v); err != nil {
		return e, 0, saga.Infrastructure("product validation: update validation", err)
	}
	return e, participant.Reversed, nil
}

func (s *Service) insert(ctx context.Context, e saga.Event, success bool) error {
	now := s.now()
	err := s.validations.Insert(ctx, &domain.Validation{
		OrderID:       e.OrderID,
		TransactionID: e.TransactionID,
		Success:       success,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	switch {
	case errors.Is(err, domain.ErrDuplicate):
		return saga.NewValidationError("There's another transactionId for this validation.")
	case err != nil:
		return saga.Infrastructure("product validation: save validation", err)
	}
	return nil
}

func validateProductsInformed(e saga.Event) error {
	if len(e.Payload.Products) == 0 {
		return saga.NewValidationError("Products List is empty!")
	}
	if e.Payload.ID == "" || e.Payload.TransactionID == "" {
		return saga.NewValidationError("OrderID and TransactionID must be informed!")
	}
	return nil
}

var _ participant.Step = (*Service)(nil)
