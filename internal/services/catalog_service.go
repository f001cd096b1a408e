package services

import (
	"context"
	"fmt"
	"strings"

	"expensetracker/internal/core"
	"expensetracker/internal/ledger"
)

type catalogStore interface {
	ledger.RecurrenceCatalog
	ledger.CategoryCatalog
	ledger.ReminderStore
}

// CatalogService manages the definitions around the ledger: recurring
// expenses, the category taxonomy and reminders.
type CatalogService struct {
	store catalogStore
}

func NewCatalogService(store catalogStore) *CatalogService {
	return &CatalogService{store: store}
}

func (s *CatalogService) ListRecurring(ctx context.Context, owner string) ([]core.RecurrenceDefinition, error) {
	return s.store.ListRecurrences(ctx, owner)
}

// CreateRecurring stores a new definition. It starts unapplied; the next
// ApplyDue for the owner materializes it.
func (s *CatalogService) CreateRecurring(ctx context.Context, def core.RecurrenceDefinition) (core.RecurrenceDefinition, error) {
	def.Description = strings.TrimSpace(def.Description)
	def.Category = strings.TrimSpace(def.Category)
	def.Interval = core.Interval(strings.ToLower(strings.TrimSpace(string(def.Interval))))
	def.LastApplied = nil
	if err := def.Validate(); err != nil {
		return core.RecurrenceDefinition{}, err
	}
	if err := s.store.AddCategory(ctx, def.Category); err != nil {
		return core.RecurrenceDefinition{}, fmt.Errorf("add category: %w", err)
	}
	id, err := s.store.CreateRecurrence(ctx, def)
	if err != nil {
		return core.RecurrenceDefinition{}, fmt.Errorf("create recurrence: %w", err)
	}
	def.ID = id
	return def, nil
}

func (s *CatalogService) DeleteRecurring(ctx context.Context, owner string, id int64) error {
	return s.store.DeleteRecurrence(ctx, owner, id)
}

func (s *CatalogService) ListCategories(ctx context.Context) ([]string, error) {
	return s.store.ListCategories(ctx)
}

// AddCategory is idempotent.
func (s *CatalogService) AddCategory(ctx context.Context, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", &core.ValidationError{Field: "name", Err: core.ErrEmptyCategory}
	}
	if err := s.store.AddCategory(ctx, name); err != nil {
		return "", fmt.Errorf("add category: %w", err)
	}
	return name, nil
}

func (s *CatalogService) DeleteCategory(ctx context.Context, name string) error {
	return s.store.DeleteCategory(ctx, strings.TrimSpace(name))
}

func (s *CatalogService) ListReminders(ctx context.Context, owner string) ([]core.Reminder, error) {
	return s.store.ListReminders(ctx, owner)
}

func (s *CatalogService) CreateReminder(ctx context.Context, r core.Reminder) (core.Reminder, error) {
	r.Title = strings.TrimSpace(r.Title)
	if err := r.Validate(); err != nil {
		return core.Reminder{}, err
	}
	id, err := s.store.CreateReminder(ctx, r)
	if err != nil {
		return core.Reminder{}, fmt.Errorf("create reminder: %w", err)
	}
	r.ID = id
	return r, nil
}

func (s *CatalogService) DeleteReminder(ctx context.Context, owner string, id int64) error {
	return s.store.DeleteReminder(ctx, owner, id)
}
