// Package pipeline composes probing, export, mapping and loading into full
// runs, keeps recent run reports, and schedules recurring exports.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"metrika-etl/internal/catalog"
	"metrika-etl/internal/domain"
	"metrika-etl/internal/service/export"
	"metrika-etl/internal/service/load"
	"metrika-etl/internal/service/mapping"
	"metrika-etl/internal/service/probe"
)

// Params wires an Orchestrator.
type Params struct {
	Catalog     *catalog.Catalog
	Prober      *probe.Prober
	Manager     *export.Manager
	Downloader  *export.Downloader
	Provisioner *load.Provisioner
	Loader      *load.BulkLoader
	Logger      *slog.Logger

	CounterID    int64
	Sources      []domain.SourceKind
	Database     string
	TablePrefix  string
	PollInterval time.Duration
	PollTimeout  time.Duration
}

// Orchestrator runs one sub-pipeline per configured source kind. Sub-
// pipelines are independent: one source's failure is recorded in the run
// report and does not stop its siblings.
type Orchestrator struct {
	p      Params
	logger *slog.Logger
}

// New creates an Orchestrator.
func New(p Params) *Orchestrator {
	return &Orchestrator{p: p, logger: p.Logger.With("component", "pipeline")}
}

// Run executes a full export for the date range across all configured
// sources, sequentially, and returns the aggregated report. The report is
// always returned, also when every source fails; the error reflects run
// abortion through context cancellation only.
func (o *Orchestrator) Run(ctx context.Context, dateFrom, dateTo string, trigger domain.TriggerType) domain.RunReport {
	report := domain.RunReport{
		RunID:     uuid.New().String(),
		Trigger:   trigger,
		DateFrom:  dateFrom,
		DateTo:    dateTo,
		StartedAt: time.Now(),
		Succeeded: true,
	}
	logger := o.logger.With("run_id", report.RunID)
	logger.Info("run started", "date_from", dateFrom, "date_to", dateTo, "sources", len(o.p.Sources), "trigger", trigger)

	for _, kind := range o.p.Sources {
		src := o.runSource(ctx, report.RunID, kind, dateFrom, dateTo)
		report.Sources = append(report.Sources, src)
		if src.Status != domain.SourceSucceeded {
			report.Succeeded = false
		}
		if ctx.Err() != nil {
			// The whole run was canceled; do not start the next source.
			report.Succeeded = false
			break
		}
	}

	report.FinishedAt = time.Now()
	logger.Info("run finished",
		"succeeded", report.Succeeded,
		"elapsed", report.FinishedAt.Sub(report.StartedAt).Round(time.Second).String(),
	)
	return report
}

// runSource executes the probe → submit → await → download → map →
// provision → load sequence for one source kind. The table is provisioned
// only after mapping succeeds, immediately before loading, so the window
// with a visible-but-empty table is as small as possible.
func (o *Orchestrator) runSource(ctx context.Context, runID string, kind domain.SourceKind, dateFrom, dateTo string) domain.SourceReport {
	started := time.Now()
	logger := o.logger.With("run_id", runID, "source", kind)
	src := domain.SourceReport{Kind: kind}

	fail := func(err error) domain.SourceReport {
		src.Status = domain.SourceFailed
		src.ErrorKind = domain.KindOf(err)
		src.Error = err.Error()
		src.ElapsedSeconds = time.Since(started).Seconds()
		logger.Error("source pipeline failed", "error_kind", src.ErrorKind, "error", err)
		return src
	}

	avail, err := o.p.Prober.Probe(ctx, o.p.CounterID, kind, dateFrom, dateTo)
	if err != nil {
		return fail(err)
	}
	src.AvailableFields = len(avail.Available)
	src.UnavailableFields = avail.Unavailable
	src.Degraded = avail.Degraded
	if len(avail.Available) == 0 {
		return fail(domain.ErrNoFieldsAvailable(
			"none of the %d catalog fields for %s are exportable by counter %d",
			len(avail.Unavailable), kind, o.p.CounterID))
	}

	job, err := o.p.Manager.Submit(ctx, o.p.CounterID, kind, dateFrom, dateTo, avail.Available)
	if err != nil {
		return fail(err)
	}
	job.ExpectedSize = avail.ExpectedSize

	job, err = o.p.Manager.Await(ctx, job, o.p.PollInterval, o.p.PollTimeout)
	if err != nil {
		return fail(err)
	}
	src.Parts = len(job.Parts)

	raw, err := o.p.Downloader.DownloadAll(ctx, runID, job)
	if err != nil {
		return fail(err)
	}

	schema, err := mapping.Resolve(o.p.Catalog, avail, o.p.Database, o.p.TablePrefix)
	if err != nil {
		return fail(err)
	}
	mapped, err := mapping.MapTable(schema, raw)
	if err != nil {
		return fail(err)
	}

	if err := o.p.Provisioner.EnsureTable(ctx, schema); err != nil {
		return fail(err)
	}
	stats, err := o.p.Loader.Load(ctx, schema, mapped)
	if err != nil {
		return fail(err)
	}

	src.Status = domain.SourceSucceeded
	src.Table = schema.QualifiedName()
	src.RowsLoaded = stats.Rows
	src.ElapsedSeconds = time.Since(started).Seconds()
	logger.Info("source pipeline succeeded",
		"table", src.Table,
		"rows", src.RowsLoaded,
		"unavailable_fields", len(src.UnavailableFields),
	)
	return src
}

// FirstError returns the first source failure of a report mapped back to an
// error, or nil when the run succeeded.
func FirstError(report domain.RunReport) error {
	for _, src := range report.Sources {
		if src.Status == domain.SourceFailed {
			return errors.New(string(src.Kind) + ": " + src.Error)
		}
	}
	return nil
}
