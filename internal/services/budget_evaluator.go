package services

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"expensetracker/internal/core"
	"expensetracker/internal/ledger"
)

type breakdownSource interface {
	CategoryBreakdown(ctx context.Context, owner string, year, month int) ([]core.CategoryAmount, error)
}

// BudgetEvaluator pairs an owner's budget limits with this month's spend.
type BudgetEvaluator struct {
	budgets   ledger.BudgetCatalog
	breakdown breakdownSource
}

func NewBudgetEvaluator(budgets ledger.BudgetCatalog, breakdown breakdownSource) *BudgetEvaluator {
	return &BudgetEvaluator{budgets: budgets, breakdown: breakdown}
}

// BudgetStatus returns one entry per budget of owner, ordered by category.
// Spent is zero for categories without spend in today's month.
func (b *BudgetEvaluator) BudgetStatus(ctx context.Context, owner string, today core.Date) ([]core.BudgetStatus, error) {
	defs, err := b.budgets.ListBudgets(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}
	if len(defs) == 0 {
		return []core.BudgetStatus{}, nil
	}

	breakdown, err := b.breakdown.CategoryBreakdown(ctx, owner, today.Year(), today.Month())
	if err != nil {
		return nil, err
	}
	spent := make(map[string]core.Money, len(breakdown))
	for _, c := range breakdown {
		spent[c.Name] = c.Amount
	}

	out := make([]core.BudgetStatus, 0, len(defs))
	for _, d := range defs {
		out = append(out, core.BudgetStatus{
			Category: d.Category,
			Spent:    spent[d.Category],
			Limit:    d.MonthlyLimit,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out, nil
}

// SetBudget creates or replaces owner's limit for a category.
func (b *BudgetEvaluator) SetBudget(ctx context.Context, def core.BudgetDefinition) error {
	def.Category = strings.TrimSpace(def.Category)
	if err := def.Validate(); err != nil {
		return err
	}
	if err := b.budgets.UpsertBudget(ctx, def); err != nil {
		return fmt.Errorf("upsert budget: %w", err)
	}
	return nil
}

func (b *BudgetEvaluator) DeleteBudget(ctx context.Context, owner, category string) error {
	return b.budgets.DeleteBudget(ctx, owner, strings.TrimSpace(category))
}

func (b *BudgetEvaluator) ListBudgets(ctx context.Context, owner string) ([]core.BudgetDefinition, error) {
	return b.budgets.ListBudgets(ctx, owner)
}

// Alerts keeps the statuses at or above thresholdPercent of their limit.
func Alerts(statuses []core.BudgetStatus, thresholdPercent int64) []core.BudgetStatus {
	out := make([]core.BudgetStatus, 0)
	for _, s := range statuses {
		if s.Limit.Cents > 0 && s.PercentUsed() >= thresholdPercent {
			out = append(out, s)
		}
	}
	return out
}
