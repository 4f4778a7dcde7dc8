package usage

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler prunes old usage records on a cron schedule.
type Scheduler struct {
	store    *Store
	days     int
	schedule string
	logger   *slog.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

// NewScheduler creates a retention scheduler. Records older than days
// are deleted each time the schedule fires. days <= 0 disables pruning.
func NewScheduler(store *Store, days int, schedule string, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		store:    store,
		days:     days,
		schedule: schedule,
		logger:   logger,
		cron:     cron.New(),
	}
}

// Start begins scheduled pruning. It returns immediately; jobs run on
// the cron's own goroutine until Stop or context cancellation.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.days <= 0 {
		s.logger.Info("usage retention disabled")
		return nil
	}

	if _, err := cron.ParseStandard(s.schedule); err != nil {
		return fmt.Errorf("invalid retention schedule %q: %w", s.schedule, err)
	}

	if _, err := s.cron.AddFunc(s.schedule, func() { s.prune(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule usage pruning: %w", err)
	}

	s.cron.Start()
	s.running = true

	s.logger.Info("usage retention scheduler started",
		"schedule", s.schedule,
		"retention_days", s.days,
	)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

// prune runs one pruning cycle.
func (s *Scheduler) prune(ctx context.Context) {
	cutoff := time.Now().UTC().AddDate(0, 0, -s.days)
	deleted, err := s.store.Prune(ctx, cutoff)
	if err != nil {
		s.logger.Error("scheduled usage pruning failed", "error", err)
		return
	}
	if deleted > 0 {
		s.logger.Info("usage records pruned", "deleted", deleted, "cutoff", cutoff)
	}
}

// Stop stops the scheduler and waits for a running job to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		<-s.cron.Stop().Done()
		s.running = false
		s.logger.Info("usage retention scheduler stopped")
	}
}
