package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"expensetracker/internal/core"
	"expensetracker/internal/ledger"
	applog "expensetracker/internal/log"
)

type expenseStore interface {
	ledger.ExpenseStore
	ledger.CategoryCatalog
}

// ExpenseService records and removes expenses, keeps the category
// taxonomy in step, and announces each write.
type ExpenseService struct {
	store       expenseStore
	publisher   EventPublisher
	invalidator OwnerInvalidator
	now         func() time.Time
}

// NewExpenseService creates the service. publisher and invalidator may be nil.
func NewExpenseService(store expenseStore, publisher EventPublisher, invalidator OwnerInvalidator) *ExpenseService {
	return &ExpenseService{
		store:       store,
		publisher:   publisher,
		invalidator: invalidator,
		now:         time.Now,
	}
}

// CreateExpense validates and saves e, then publishes an event. Currency
// defaults to INR and the timestamp to now.
func (s *ExpenseService) CreateExpense(ctx context.Context, e core.ExpenseRecord) (core.ExpenseRecord, error) {
	e.Category = strings.TrimSpace(e.Category)
	e.Currency = strings.TrimSpace(e.Currency)
	if e.Currency == "" {
		e.Currency = core.DefaultCurrency
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = s.now().UTC()
	}
	if err := e.Validate(); err != nil {
		return core.ExpenseRecord{}, err
	}

	if err := s.store.AddCategory(ctx, e.Category); err != nil {
		return core.ExpenseRecord{}, fmt.Errorf("add category: %w", err)
	}

	id, err := s.store.InsertExpense(ctx, e)
	if err != nil {
		return core.ExpenseRecord{}, fmt.Errorf("save expense: %w", err)
	}
	e.ID = id

	s.invalidate(e.Owner)
	applog.NewStructuredLogger(applog.FromContext(ctx)).
		LogExpenseCreated(ctx, e.Owner, e.ID, e.Category, e.Amount.Cents)

	if s.publisher != nil {
		if err := s.publisher.PublishExpenseCreated(ctx, e.Owner, e.ID); err != nil {
			slog.ErrorContext(ctx, "Failed to publish expense event",
				applog.FieldOwner, e.Owner, applog.FieldExpenseID, e.ID, applog.FieldError, err)
		}
	}
	return e, nil
}

func (s *ExpenseService) GetExpense(ctx context.Context, owner string, id int64) (core.ExpenseRecord, error) {
	return s.store.GetExpense(ctx, owner, id)
}

// DeleteExpense removes owner's record id; another owner's id is NotFound.
func (s *ExpenseService) DeleteExpense(ctx context.Context, owner string, id int64) error {
	if err := s.store.DeleteExpense(ctx, owner, id); err != nil {
		return err
	}
	s.invalidate(owner)

	if s.publisher != nil {
		if err := s.publisher.PublishExpenseDeleted(ctx, owner, id); err != nil {
			slog.ErrorContext(ctx, "Failed to publish delete event",
				applog.FieldOwner, owner, applog.FieldExpenseID, id, applog.FieldError, err)
		}
	}
	return nil
}

func (s *ExpenseService) invalidate(owner string) {
	if s.invalidator != nil {
		s.invalidator.InvalidateOwner(owner)
	}
}
