package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"metrika-etl/internal/domain"
	"metrika-etl/internal/metrika"
	"metrika-etl/internal/tsv"
)

// DownloaderConfig tunes part retrieval.
type DownloaderConfig struct {
	Workers     int           // concurrent part downloads, min 1
	Retries     int           // retry attempts per part after the first try
	BackoffBase time.Duration // first retry delay, doubled per attempt
}

// Downloader retrieves and decodes all parts of a processed export job.
// Parts share no mutable state and are fetched concurrently with a bounded
// pool; transient failures are retried per part with exponential backoff.
type Downloader struct {
	api     domain.LogsAPI
	archive domain.PartArchiver // nil disables archiving
	cfg     DownloaderConfig
	logger  *slog.Logger
}

// NewDownloader creates a Downloader. archive may be nil.
func NewDownloader(api domain.LogsAPI, archive domain.PartArchiver, cfg DownloaderConfig, logger *slog.Logger) *Downloader {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = time.Second
	}
	return &Downloader{api: api, archive: archive, cfg: cfg, logger: logger.With("component", "download")}
}

// DownloadAll fetches every part of a processed job and returns the combined
// result set, columns in the job's requested-field order. Each part's header
// must match the requested fields exactly; a mismatch is a contract
// violation by the remote and aborts the download.
func (d *Downloader) DownloadAll(ctx context.Context, runID string, job domain.ExportJob) (domain.Table, error) {
	if job.Status != domain.StatusProcessed {
		return domain.Table{}, fmt.Errorf("job %d is %s, not processed", job.RequestID, job.Status)
	}
	if err := checkContiguous(job.Parts); err != nil {
		return domain.Table{}, err
	}
	if len(job.Parts) == 0 {
		d.logger.Info("export produced no parts", "source", job.Kind, "request_id", job.RequestID)
		return domain.Table{Columns: job.RequestedFields}, nil
	}

	logger := d.logger.With("source", job.Kind, "request_id", job.RequestID)
	partTables := make([]domain.Table, len(job.Parts))
	var tally atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.cfg.Workers)
	for i, part := range job.Parts {
		g.Go(func() error {
			table, err := d.downloadPart(gctx, runID, job, part.Number)
			if err != nil {
				return err
			}
			partTables[i] = table
			logger.Info("part downloaded",
				"part", part.Number,
				"rows", len(table.Rows),
				"rows_total", tally.Add(int64(len(table.Rows))),
			)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return domain.Table{}, err
	}

	combined := domain.Table{Columns: job.RequestedFields}
	for _, pt := range partTables {
		combined.Rows = append(combined.Rows, pt.Rows...)
	}
	return combined, nil
}

// downloadPart fetches one part with retries, archives the raw payload and
// decodes it.
func (d *Downloader) downloadPart(ctx context.Context, runID string, job domain.ExportJob, part int) (domain.Table, error) {
	payload, err := d.fetchWithRetry(ctx, job, part)
	if err != nil {
		return domain.Table{}, err
	}

	if d.archive != nil {
		if err := d.archive.StorePart(ctx, runID, job.Kind, part, payload); err != nil {
			// Best effort: the archive is a side copy, never load-bearing.
			d.logger.Warn("archive part failed", "source", job.Kind, "part", part, "error", err)
		}
	}

	columns, rows, err := tsv.Decode(payload)
	if err != nil {
		return domain.Table{}, domain.ErrPartFormat(part, "part %d of job %d: %s", part, job.RequestID, err)
	}
	if err := matchHeader(columns, job.RequestedFields); err != nil {
		return domain.Table{}, domain.ErrPartFormat(part, "part %d of job %d: %s", part, job.RequestID, err)
	}
	return domain.Table{Columns: columns, Rows: rows}, nil
}

func (d *Downloader) fetchWithRetry(ctx context.Context, job domain.ExportJob, part int) ([]byte, error) {
	maxAttempts := d.cfg.Retries + 1
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			// Exponential backoff: base, 2x, 4x...
			backoff := d.cfg.BackoffBase * time.Duration(1<<uint(attempt-1))
			d.logger.Info("retrying part download", "part", part, "attempt", attempt+1, "backoff", backoff.String())
			t := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				t.Stop()
				return nil, domain.ErrPartDownload(part, "download part %d: %s", part, ctx.Err())
			case <-t.C:
			}
		}

		payload, err := d.api.DownloadPart(ctx, job.CounterID, job.RequestID, part)
		if err == nil {
			return payload, nil
		}
		lastErr = err
		if !retryable(err) {
			break
		}
	}
	return nil, domain.ErrPartDownload(part, "download part %d of job %d after %d attempt(s): %s",
		part, job.RequestID, maxAttempts, lastErr)
}

// retryable reports whether a download failure is worth another attempt:
// network errors and 5xx responses are, 4xx rejections are not.
func retryable(err error) bool {
	var apiErr *metrika.APIError
	if errors.As(err, &apiErr) {
		return !apiErr.ClientError()
	}
	// Taxonomy errors (auth etc.) are final; anything else is transport.
	return domain.KindOf(err) == domain.ErrorKindUnknown
}

// checkContiguous verifies part numbers cover [0, N) with no gaps.
func checkContiguous(parts []domain.PartRef) error {
	numbers := make([]int, len(parts))
	for i, p := range parts {
		numbers[i] = p.Number
	}
	sort.Ints(numbers)
	for i, n := range numbers {
		if n != i {
			return domain.ErrPartFormat(n, "part numbers are not contiguous from 0: %v", numbers)
		}
	}
	return nil
}

// matchHeader verifies the part header names exactly the requested fields in
// submission order. Any deviation signals remote drift that positional
// loading could silently misalign on, so it is fatal.
func matchHeader(header, requested []string) error {
	if len(header) != len(requested) {
		return fmt.Errorf("header has %d fields, requested %d", len(header), len(requested))
	}
	for i, want := range requested {
		if header[i] != want {
			return fmt.Errorf("header field %d is %q, requested %q", i, header[i], want)
		}
	}
	return nil
}
