// Package analytics holds the pure aggregation functions behind the
// dashboard, report and prediction reads. Callers fetch the owner's
// records for the right window; nothing here touches a store or a clock.
package analytics

import (
	"sort"

	"github.com/shopspring/decimal"

	"expensetracker/internal/core"
)

// Total sums the amounts of records. Empty input yields zero.
func Total(records []core.ExpenseRecord) core.Money {
	var total core.Money
	for _, r := range records {
		total = total.Add(r.Amount)
	}
	return total
}

// Breakdown sums records per category, largest first. Equal totals are
// ordered by category name; categories with no spend never appear.
func Breakdown(records []core.ExpenseRecord) []core.CategoryAmount {
	sums := make(map[string]int64)
	for _, r := range records {
		sums[r.Category] += r.Amount.Cents
	}

	out := make([]core.CategoryAmount, 0, len(sums))
	for name, cents := range sums {
		if cents == 0 {
			continue
		}
		out = append(out, core.CategoryAmount{Name: name, Amount: core.Money{Cents: cents}})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Amount.Cents != out[j].Amount.Cents {
			return out[i].Amount.Cents > out[j].Amount.Cents
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// TopCategory returns the category with the largest sum, breaking ties by
// the lexicographically smallest name, or core.NoCategory when empty.
func TopCategory(records []core.ExpenseRecord) string {
	breakdown := Breakdown(records)
	if len(breakdown) == 0 {
		return core.NoCategory
	}
	return breakdown[0].Name
}

// Overview bundles the month total and breakdown.
func Overview(year, month int, records []core.ExpenseRecord) core.MonthOverview {
	return core.MonthOverview{
		Year:       year,
		Month:      month,
		Total:      Total(records),
		ByCategory: Breakdown(records),
	}
}

// TrendWindow returns the first day of the oldest month and the last day
// of the current month for a numMonths trailing trend ending at now.
func TrendWindow(now core.Date, numMonths int) (from, to core.Date) {
	current := now.MonthStart()
	from = current.AddMonthsAnchored(-(numMonths - 1), 1)
	to = current.AddMonthsAnchored(1, 1).AddDays(-1)
	return from, to
}

// MonthlyTrend totals records per calendar month, oldest first. Months
// without records are omitted, so the series may have gaps.
func MonthlyTrend(records []core.ExpenseRecord) []core.MonthlyTrendPoint {
	type ym struct{ year, month int }
	sums := make(map[ym]int64)
	for _, r := range records {
		d := r.Date()
		sums[ym{d.Year(), d.Month()}] += r.Amount.Cents
	}

	out := make([]core.MonthlyTrendPoint, 0, len(sums))
	for k, cents := range sums {
		out = append(out, core.MonthlyTrendPoint{Year: k.year, Month: k.month, Total: core.Money{Cents: cents}})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Year != out[j].Year {
			return out[i].Year < out[j].Year
		}
		return out[i].Month < out[j].Month
	})
	return out
}

// DailySpending totals records per day of month, ascending, only for days
// with spend.
func DailySpending(records []core.ExpenseRecord) []core.DailySpendingPoint {
	sums := make(map[int]int64)
	for _, r := range records {
		sums[r.Date().Day()] += r.Amount.Cents
	}

	out := make([]core.DailySpendingPoint, 0, len(sums))
	for day, cents := range sums {
		out = append(out, core.DailySpendingPoint{Day: day, Total: core.Money{Cents: cents}})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day < out[j].Day })
	return out
}

// PredictionWindow returns the lookbackMonths full calendar months before
// the month containing now. The current, partial month is excluded.
func PredictionWindow(now core.Date, lookbackMonths int) (from, to core.Date) {
	current := now.MonthStart()
	from = current.AddMonthsAnchored(-lookbackMonths, 1)
	to = current.AddDays(-1)
	return from, to
}

// Predictions averages each category's spend over the distinct months in
// which it had at least one record. The average is rounded half-up to the
// cent. Records must already be restricted to the lookback window.
//
// This is a straight historical average: no weighting, no seasonality.
func Predictions(records []core.ExpenseRecord) []core.Prediction {
	type acc struct {
		cents  int64
		months map[[2]int]struct{}
	}
	byCategory := make(map[string]*acc)
	for _, r := range records {
		a, ok := byCategory[r.Category]
		if !ok {
			a = &acc{months: make(map[[2]int]struct{})}
			byCategory[r.Category] = a
		}
		d := r.Date()
		a.cents += r.Amount.Cents
		a.months[[2]int{d.Year(), d.Month()}] = struct{}{}
	}

	out := make([]core.Prediction, 0, len(byCategory))
	for name, a := range byCategory {
		if a.cents == 0 {
			continue
		}
		n := len(a.months)
		avg := decimal.NewFromInt(a.cents).DivRound(decimal.NewFromInt(int64(n)), 0)
		out = append(out, core.Prediction{
			Category:     name,
			Average:      core.Money{Cents: avg.IntPart()},
			Total:        core.Money{Cents: a.cents},
			ActiveMonths: n,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Total.Cents != out[j].Total.Cents {
			return out[i].Total.Cents > out[j].Total.Cents
		}
		return out[i].Category < out[j].Category
	})
	return out
}
