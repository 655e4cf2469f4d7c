// Package export drives the remote export job lifecycle: submission, status
// polling to a terminal state under a timeout ceiling, and multi-part result
// download.
package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"metrika-etl/internal/domain"
	"metrika-etl/internal/metrika"
)

// Clock abstracts time so the poll loop is testable without real delays.
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until the context is canceled.
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// RealClock returns the wall clock.
func RealClock() Clock { return realClock{} }

// TransitionFunc observes one job status change during polling.
type TransitionFunc func(job domain.ExportJob, from, to domain.JobStatus)

// Manager submits export jobs and polls them to completion.
type Manager struct {
	api          domain.LogsAPI
	clock        Clock
	logger       *slog.Logger
	onTransition TransitionFunc // optional
}

// NewManager creates a Manager. clock may be nil, in which case the wall
// clock is used.
func NewManager(api domain.LogsAPI, clock Clock, logger *slog.Logger) *Manager {
	if clock == nil {
		clock = RealClock()
	}
	return &Manager{api: api, clock: clock, logger: logger.With("component", "export")}
}

// OnTransition registers a status-change observer. Must be called before
// Await; not safe to call concurrently with it.
func (m *Manager) OnTransition(fn TransitionFunc) { m.onTransition = fn }

// Submit creates a remote export job for the available fields. An immediate
// client-side rejection means the request is impossible for the given
// parameters and maps to UnavailableDataError.
func (m *Manager) Submit(ctx context.Context, counterID int64, kind domain.SourceKind, dateFrom, dateTo string, fields []string) (domain.ExportJob, error) {
	job, err := m.api.CreateExport(ctx, counterID, kind, dateFrom, dateTo, fields)
	if err != nil {
		var apiErr *metrika.APIError
		if errors.As(err, &apiErr) && apiErr.ClientError() {
			return domain.ExportJob{}, domain.ErrUnavailableData(
				"export of %s for %s..%s declined: %s", kind, dateFrom, dateTo, apiErr.Message)
		}
		return domain.ExportJob{}, fmt.Errorf("submit %s export: %w", kind, err)
	}
	return job, nil
}

// pollOutcome is the decision after observing one job status.
type pollOutcome int

const (
	pollContinue pollOutcome = iota
	pollSucceed
	pollFail
	pollTimeout
)

// decide is the pure poll transition function: given the observed status and
// the elapsed wait time, it chooses whether to keep polling, finish, fail or
// time out. Canceled is a remote-side refusal and counts as failure.
func decide(status domain.JobStatus, elapsed, ceiling time.Duration) pollOutcome {
	switch status {
	case domain.StatusProcessed:
		return pollSucceed
	case domain.StatusProcessingFailed, domain.StatusCanceled:
		return pollFail
	}
	if elapsed >= ceiling {
		return pollTimeout
	}
	return pollContinue
}

// Await polls the job on a fixed interval until it reaches a terminal state
// or the elapsed wait exceeds the ceiling. On timeout the remote job is left
// running; no cancellation is issued. The returned job carries the final
// status and part list.
func (m *Manager) Await(ctx context.Context, job domain.ExportJob, pollInterval, ceiling time.Duration) (domain.ExportJob, error) {
	logger := m.logger.With("source", job.Kind, "request_id", job.RequestID)
	start := m.clock.Now()

	for {
		status, parts, err := m.api.ExportStatus(ctx, job.CounterID, job.RequestID)
		if err != nil {
			return job, fmt.Errorf("poll export status: %w", err)
		}
		if status != job.Status {
			logger.Info("export job status changed", "from", job.Status, "to", status)
			if m.onTransition != nil {
				m.onTransition(job, job.Status, status)
			}
			job.Status = status
		}
		job.Parts = parts

		elapsed := m.clock.Now().Sub(start)
		switch decide(status, elapsed, ceiling) {
		case pollSucceed:
			logger.Info("export job processed", "parts", len(parts), "waited", elapsed.Round(time.Second).String())
			return job, nil
		case pollFail:
			return job, domain.ErrJobFailed("export job %d for %s ended as %s", job.RequestID, job.Kind, status)
		case pollTimeout:
			return job, domain.ErrTimeout(
				"export job %d for %s still %s after %s (ceiling %s); remote job left running",
				job.RequestID, job.Kind, status, elapsed.Round(time.Second), ceiling)
		}

		logger.Debug("export job pending", "status", status, "elapsed", elapsed.Round(time.Second).String())
		if err := m.clock.Sleep(ctx, pollInterval); err != nil {
			return job, fmt.Errorf("await export job: %w", err)
		}
	}
}
