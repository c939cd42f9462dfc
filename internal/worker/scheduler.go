// Package worker runs unattended batches on a cron schedule.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/iconidentify/wadh/internal/domain"
)

// ErrShutdownTimeout is returned when running jobs don't stop within timeout.
var ErrShutdownTimeout = errors.New("scheduler shutdown timed out")

// BatchRunner runs a batch to completion.
type BatchRunner interface {
	Run(ctx context.Context, urls []string, folder string) (*domain.BatchRecord, error)
}

// EventCleaner prunes the persisted activity log.
type EventCleaner interface {
	CleanupOldEvents(ctx context.Context) (int64, error)
}

// Config holds scheduler configuration.
type Config struct {
	// Spec is a standard cron expression for batch runs. Empty disables them.
	Spec string
	// CleanupSpec schedules event retention cleanup. Default: @daily
	CleanupSpec string
	URLs        []string
	Folder      string
}

// Scheduler triggers batches and event cleanup.
type Scheduler struct {
	cron    *cron.Cron
	runner  BatchRunner
	cleaner EventCleaner
	cfg     Config
	logger  *slog.Logger

	mu      sync.Mutex
	lastRun *domain.BatchRecord

	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler creates a scheduler. cleaner may be nil.
func NewScheduler(cfg Config, runner BatchRunner, cleaner EventCleaner, logger *slog.Logger) (*Scheduler, error) {
	if cfg.CleanupSpec == "" {
		cfg.CleanupSpec = "@daily"
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		runner:  runner,
		cleaner: cleaner,
		cfg:     cfg,
		logger:  logger.With("component", "scheduler"),
		ctx:     ctx,
		cancel:  cancel,
	}

	if cfg.Spec != "" {
		if len(cfg.URLs) == 0 {
			cancel()
			return nil, fmt.Errorf("%w: schedule has no urls", domain.ErrInvalidArgument)
		}
		if _, err := s.cron.AddFunc(cfg.Spec, s.runBatch); err != nil {
			cancel()
			return nil, fmt.Errorf("%w: schedule %q: %v", domain.ErrInvalidArgument, cfg.Spec, err)
		}
	}
	if cleaner != nil {
		if _, err := s.cron.AddFunc(cfg.CleanupSpec, s.cleanup); err != nil {
			cancel()
			return nil, fmt.Errorf("%w: cleanup schedule %q: %v", domain.ErrInvalidArgument, cfg.CleanupSpec, err)
		}
	}

	return s, nil
}

// Start begins running scheduled jobs.
func (s *Scheduler) Start() {
	s.logger.Info("starting scheduler", "spec", s.cfg.Spec, "cleanup_spec", s.cfg.CleanupSpec, "jobs", len(s.cron.Entries()))
	s.cron.Start()
}

// Next returns the next time a batch is scheduled, zero if none.
func (s *Scheduler) Next() time.Time {
	var next time.Time
	for _, entry := range s.cron.Entries() {
		if next.IsZero() || (!entry.Next.IsZero() && entry.Next.Before(next)) {
			next = entry.Next
		}
	}
	return next
}

// LastRun returns the record of the last scheduled batch.
func (s *Scheduler) LastRun() *domain.BatchRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun
}

// Stop stops the scheduler and waits for running jobs.
func (s *Scheduler) Stop(timeout time.Duration) error {
	s.logger.Info("stopping scheduler")
	s.cancel()
	stopped := s.cron.Stop()

	select {
	case <-stopped.Done():
		s.logger.Info("scheduler stopped gracefully")
		return nil
	case <-time.After(timeout):
		return ErrShutdownTimeout
	}
}

func (s *Scheduler) runBatch() {
	if s.ctx.Err() != nil {
		return
	}

	s.logger.Info("scheduled batch starting", "addons", len(s.cfg.URLs))
	record, err := s.runner.Run(s.ctx, s.cfg.URLs, s.cfg.Folder)
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyRunning) {
			s.logger.Info("batch already running, skipping scheduled run")
			return
		}
		s.logger.Error("scheduled batch failed to start", "error", err)
		return
	}

	s.mu.Lock()
	s.lastRun = record
	s.mu.Unlock()

	s.logger.Info("scheduled batch finished",
		"batch_id", record.ID,
		"status", record.Status,
		"finished", record.Finished,
		"total", record.Total,
	)
}

func (s *Scheduler) cleanup() {
	if _, err := s.cleaner.CleanupOldEvents(s.ctx); err != nil {
		s.logger.Error("event cleanup failed", "error", err)
	}
}
