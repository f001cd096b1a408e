package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"expensetracker/internal/analytics"
	"expensetracker/internal/cache"
	"expensetracker/internal/core"
	"expensetracker/internal/ledger"
	applog "expensetracker/internal/log"
)

// AnalyticsConfig tunes the read cache and store timeout.
// CacheWindows is only safe when this process is the store's sole writer.
type AnalyticsConfig struct {
	CacheWindows bool
	CacheSize    int
	CacheTTL     time.Duration
	StoreTimeout time.Duration
}

func DefaultAnalyticsConfig() AnalyticsConfig {
	return AnalyticsConfig{
		CacheSize:    256,
		CacheTTL:     5 * time.Minute,
		StoreTimeout: 10 * time.Second,
	}
}

// AnalyticsService answers the aggregation reads for one owner at a time.
// With CacheWindows set, records for a date window are cached per owner and
// dropped on every write for that owner.
type AnalyticsService struct {
	store  ledger.ExpenseStore
	cache  cache.Cache[[]core.ExpenseRecord]
	config AnalyticsConfig

	// generations counts invalidations per owner. A window read is cached
	// only if no invalidation happened while it was in flight.
	mu          sync.Mutex
	generations map[string]uint64
}

func NewAnalyticsService(store ledger.ExpenseStore, config AnalyticsConfig) *AnalyticsService {
	defaults := DefaultAnalyticsConfig()
	if config.CacheSize <= 0 {
		config.CacheSize = defaults.CacheSize
	}
	if config.CacheTTL <= 0 {
		config.CacheTTL = defaults.CacheTTL
	}
	if config.StoreTimeout <= 0 {
		config.StoreTimeout = defaults.StoreTimeout
	}
	return &AnalyticsService{
		store:  store,
		cache:       cache.NewLRUCache[[]core.ExpenseRecord](config.CacheSize, config.CacheTTL),
		config:      config,
		generations: make(map[string]uint64),
	}
}

// Cache exposes the window cache so the caller can register it for sweeping.
func (s *AnalyticsService) Cache() cache.Cache[[]core.ExpenseRecord] {
	return s.cache
}

// CachesWindows reports whether window reads are cached.
func (s *AnalyticsService) CachesWindows() bool {
	return s.config.CacheWindows
}

// InvalidateOwner drops every cached window of owner.
func (s *AnalyticsService) InvalidateOwner(owner string) {
	s.mu.Lock()
	s.generations[owner]++
	n := s.cache.DeletePrefix(ownerKeyPrefix(owner))
	s.mu.Unlock()
	if n > 0 {
		slog.Debug("Invalidated analytics cache",
			applog.FieldComponent, applog.ComponentAnalytics,
			applog.FieldOwner, owner,
			"entries", n)
	}
}

func ownerKeyPrefix(owner string) string {
	return owner + "\x00"
}

func (s *AnalyticsService) generation(owner string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generations[owner]
}

// storeIfCurrent caches recs unless owner was invalidated after gen was read.
func (s *AnalyticsService) storeIfCurrent(owner, key string, gen uint64, recs []core.ExpenseRecord) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generations[owner] != gen {
		return false
	}
	s.cache.Set(key, recs)
	return true
}

// window returns owner's records dated within [from, to], newest first.
func (s *AnalyticsService) window(ctx context.Context, owner string, from, to core.Date) ([]core.ExpenseRecord, error) {
	if !s.config.CacheWindows {
		return s.queryWindow(ctx, owner, from, to)
	}

	key := fmt.Sprintf("%s%s..%s", ownerKeyPrefix(owner), from, to)
	if recs, ok := s.cache.Get(key); ok {
		return recs, nil
	}
	gen := s.generation(owner)
	recs, err := s.queryWindow(ctx, owner, from, to)
	if err != nil {
		return nil, err
	}
	s.storeIfCurrent(owner, key, gen, recs)
	return recs, nil
}

func (s *AnalyticsService) queryWindow(ctx context.Context, owner string, from, to core.Date) ([]core.ExpenseRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.StoreTimeout)
	defer cancel()
	recs, err := s.store.QueryExpenses(ctx, owner, core.ExpenseFilter{From: &from, To: &to})
	if err != nil {
		return nil, fmt.Errorf("query expenses %s..%s: %w", from, to, err)
	}
	return recs, nil
}

func (s *AnalyticsService) month(ctx context.Context, owner string, year, month int) ([]core.ExpenseRecord, error) {
	if err := validateMonth(year, month); err != nil {
		return nil, err
	}
	from, to := core.MonthRange(year, month)
	return s.window(ctx, owner, from, to)
}

func validateMonth(year, month int) error {
	if month < 1 || month > 12 {
		return &core.ValidationError{Field: "month", Err: fmt.Errorf("month %d out of range", month)}
	}
	if year < 1 || year > 9999 {
		return &core.ValidationError{Field: "year", Err: fmt.Errorf("year %d out of range", year)}
	}
	return nil
}

func (s *AnalyticsService) TotalForMonth(ctx context.Context, owner string, year, month int) (core.Money, error) {
	recs, err := s.month(ctx, owner, year, month)
	if err != nil {
		return core.Money{}, err
	}
	return analytics.Total(recs), nil
}

// TopCategoryForMonth returns core.NoCategory for a month without spend.
func (s *AnalyticsService) TopCategoryForMonth(ctx context.Context, owner string, year, month int) (string, error) {
	recs, err := s.month(ctx, owner, year, month)
	if err != nil {
		return "", err
	}
	return analytics.TopCategory(recs), nil
}

func (s *AnalyticsService) CategoryBreakdown(ctx context.Context, owner string, year, month int) ([]core.CategoryAmount, error) {
	recs, err := s.month(ctx, owner, year, month)
	if err != nil {
		return nil, err
	}
	return analytics.Breakdown(recs), nil
}

// MonthOverview returns the month total and breakdown from one store read.
func (s *AnalyticsService) MonthOverview(ctx context.Context, owner string, year, month int) (core.MonthOverview, error) {
	recs, err := s.month(ctx, owner, year, month)
	if err != nil {
		return core.MonthOverview{}, err
	}
	return analytics.Overview(year, month, recs), nil
}

func (s *AnalyticsService) ExpenseCountForMonth(ctx context.Context, owner string, year, month int) (int, error) {
	recs, err := s.month(ctx, owner, year, month)
	if err != nil {
		return 0, err
	}
	return len(recs), nil
}

func (s *AnalyticsService) DailySpending(ctx context.Context, owner string, year, month int) ([]core.DailySpendingPoint, error) {
	recs, err := s.month(ctx, owner, year, month)
	if err != nil {
		return nil, err
	}
	return analytics.DailySpending(recs), nil
}

// MonthlyTrend totals the numMonths calendar months ending with today's
// month, oldest first. Months without spend are left out.
func (s *AnalyticsService) MonthlyTrend(ctx context.Context, owner string, numMonths int, today core.Date) ([]core.MonthlyTrendPoint, error) {
	if numMonths <= 0 {
		return []core.MonthlyTrendPoint{}, nil
	}
	from, to := analytics.TrendWindow(today, numMonths)
	recs, err := s.window(ctx, owner, from, to)
	if err != nil {
		return nil, err
	}
	return analytics.MonthlyTrend(recs), nil
}

// Predictions averages each category over the lookbackMonths full months
// before today's month.
func (s *AnalyticsService) Predictions(ctx context.Context, owner string, lookbackMonths int, today core.Date) ([]core.Prediction, error) {
	if lookbackMonths <= 0 {
		return []core.Prediction{}, nil
	}
	from, to := analytics.PredictionWindow(today, lookbackMonths)
	recs, err := s.window(ctx, owner, from, to)
	if err != nil {
		return nil, err
	}
	return analytics.Predictions(recs), nil
}

// SearchExpenses bypasses the cache; filters are too varied to key on.
func (s *AnalyticsService) SearchExpenses(ctx context.Context, owner string, f core.ExpenseFilter) ([]core.ExpenseRecord, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.config.StoreTimeout)
	defer cancel()
	recs, err := s.store.QueryExpenses(ctx, owner, f)
	if err != nil {
		return nil, fmt.Errorf("search expenses: %w", err)
	}
	return recs, nil
}

func (s *AnalyticsService) RecentExpenses(ctx context.Context, owner string, limit int) ([]core.ExpenseRecord, error) {
	if limit <= 0 {
		return []core.ExpenseRecord{}, nil
	}
	return s.SearchExpenses(ctx, owner, core.ExpenseFilter{Limit: limit})
}
