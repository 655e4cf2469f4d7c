package pipeline

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"metrika-etl/internal/domain"
)

// Scheduler triggers full pipeline runs on a cron schedule in serve mode.
// Each scheduled run exports a trailing window of complete days ending
// yesterday, so today's still-growing data is never loaded. Runs never
// overlap: a firing that arrives while the previous run is still polling
// or loading is skipped, since two concurrent runs would race on the same
// destination tables.
type Scheduler struct {
	cron       *cron.Cron
	orch       *Orchestrator
	store      *RunStore
	logger     *slog.Logger
	windowDays int
	running    atomic.Bool
	now        func() time.Time // injected for tests
}

// NewScheduler creates a Scheduler. windowDays is the number of complete
// days each scheduled run covers.
func NewScheduler(orch *Orchestrator, store *RunStore, windowDays int, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cron:       cron.New(),
		orch:       orch,
		store:      store,
		logger:     logger.With("component", "scheduler"),
		windowDays: windowDays,
		now:        time.Now,
	}
}

// Start registers the cron expression and starts the scheduler. ctx bounds
// every triggered run.
func (s *Scheduler) Start(ctx context.Context, schedule string) error {
	_, err := s.cron.AddFunc(schedule, func() { s.runOnce(ctx) })
	if err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("export scheduler started", "schedule", schedule, "window_days", s.windowDays)
	return nil
}

// runOnce executes one scheduled run, unless the previous one is still in
// flight. Cron fires each job in its own goroutine, and a run can outlast
// any realistic interval while polling the remote job.
func (s *Scheduler) runOnce(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Warn("previous scheduled export still running, skipping this firing")
		return
	}
	defer s.running.Store(false)

	dateFrom, dateTo := s.window()
	s.logger.Info("scheduled export starting", "date_from", dateFrom, "date_to", dateTo)
	report := s.orch.Run(ctx, dateFrom, dateTo, domain.TriggerTypeScheduled)
	s.store.Add(report)
	if !report.Succeeded {
		s.logger.Warn("scheduled export finished with failures", "run_id", report.RunID)
	}
}

// Stop stops the scheduler and waits for a running job to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("export scheduler stopped")
}

// window computes the [from, to] date range of complete days ending
// yesterday.
func (s *Scheduler) window() (string, string) {
	to := s.now().AddDate(0, 0, -1)
	from := to.AddDate(0, 0, -(s.windowDays - 1))
	return from.Format("2006-01-02"), to.Format("2006-01-02")
}
