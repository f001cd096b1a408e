package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"expensetracker/internal/core"
	applog "expensetracker/internal/log"
)

// RecurringSchedulerConfig holds configuration for the recurring scheduler
type RecurringSchedulerConfig struct {
	// PollInterval is how often every owner is caught up (default: 1h)
	PollInterval time.Duration
}

func DefaultRecurringSchedulerConfig() RecurringSchedulerConfig {
	return RecurringSchedulerConfig{PollInterval: time.Hour}
}

type recurrenceApplier interface {
	ApplyAll(ctx context.Context, today core.Date) (int, error)
}

// RecurringScheduler runs the recurrence catch-up for all owners once on
// start and then on every poll tick until stopped.
type RecurringScheduler struct {
	engine recurrenceApplier
	config RecurringSchedulerConfig
	now    func() time.Time

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewRecurringScheduler(engine recurrenceApplier, config RecurringSchedulerConfig) *RecurringScheduler {
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultRecurringSchedulerConfig().PollInterval
	}
	return &RecurringScheduler{
		engine: engine,
		config: config,
		now:    time.Now,
	}
}

// Start begins the processing loop. Returns an error if already running.
func (s *RecurringScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("recurring scheduler is already running")
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	go s.runLoop(ctx)

	slog.InfoContext(ctx, "Recurring scheduler started",
		applog.FieldComponent, applog.ComponentRecurrence,
		"poll_interval", s.config.PollInterval)
	return nil
}

// Stop signals the loop and waits for the in-flight pass to finish.
func (s *RecurringScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	stopCh, doneCh := s.stopCh, s.doneCh
	s.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		slog.InfoContext(ctx, "Recurring scheduler stopped gracefully")
	case <-ctx.Done():
		slog.WarnContext(ctx, "Recurring scheduler stop timed out")
		return ctx.Err()
	}

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	return nil
}

func (s *RecurringScheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *RecurringScheduler) runLoop(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	s.RunOnce(ctx)

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce applies every due recurrence as of the current date.
func (s *RecurringScheduler) RunOnce(ctx context.Context) int {
	today := core.DateOf(s.now())
	n, err := s.engine.ApplyAll(ctx, today)
	if err != nil {
		slog.ErrorContext(ctx, "Recurring pass finished with errors",
			applog.FieldToday, today.String(),
			applog.FieldInserted, n,
			applog.FieldError, err)
		return n
	}
	slog.DebugContext(ctx, "Recurring pass finished",
		applog.FieldToday, today.String(),
		applog.FieldInserted, n)
	return n
}
