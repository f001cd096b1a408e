package core

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	Name   string `json:"category"`
	Amount Money  `json:"amount"`
}

// MonthOverview is a compact summary for a specific year+month.
type MonthOverview struct {
	Year       int              `json:"year"`
	Month      int              `json:"month"` // 1-12
	Total      Money            `json:"total"`
	ByCategory []CategoryAmount `json:"by_category"`
}

type MonthlyTrendPoint struct {
	Year  int   `json:"year"`
	Month int   `json:"month"`
	Total Money `json:"total"`
}

type DailySpendingPoint struct {
	Day   int   `json:"day"`
	Total Money `json:"total"`
}

// Prediction is a straight historical average over the months a category
// was active in the lookback window.
type Prediction struct {
	Category     string `json:"category"`
	Average      Money  `json:"average"`
	Total        Money  `json:"total"`
	ActiveMonths int    `json:"active_months"`
}

type BudgetStatus struct {
	Category string `json:"category"`
	Spent    Money  `json:"spent"`
	Limit    Money  `json:"limit"`
}

// PercentUsed returns spent/limit as a whole percentage, rounded down.
func (b BudgetStatus) PercentUsed() int64 {
	if b.Limit.Cents <= 0 {
		return 0
	}
	return b.Spent.Cents * 100 / b.Limit.Cents
}
