package domain

import "context"

// LogsAPI is the remote log-export service consumed by the pipeline. The
// concrete implementation lives in internal/metrika; services depend on this
// interface so tests can substitute fakes.
type LogsAPI interface {
	// CounterName returns the display name of a counter, or an error if the
	// counter does not exist or the credential is rejected.
	CounterName(ctx context.Context, counterID int64) (string, error)
	// Evaluate asks whether an export with the given parameters is possible
	// and how large the result is expected to be.
	Evaluate(ctx context.Context, counterID int64, kind SourceKind, dateFrom, dateTo string, fields []string) (Evaluation, error)
	// CreateExport submits an export job. The returned job carries the
	// request ID and the field list in the order it was submitted.
	CreateExport(ctx context.Context, counterID int64, kind SourceKind, dateFrom, dateTo string, fields []string) (ExportJob, error)
	// ExportStatus fetches the current status and part list of a job.
	ExportStatus(ctx context.Context, counterID, requestID int64) (JobStatus, []PartRef, error)
	// DownloadPart fetches one part's raw delimited payload.
	DownloadPart(ctx context.Context, counterID, requestID int64, part int) ([]byte, error)
}

// Destination is the columnar store the pipeline loads into. The concrete
// implementation lives in internal/clickhouse.
type Destination interface {
	// Ping probes the store and returns its version string.
	Ping(ctx context.Context) (string, error)
	// Exec runs a statement that returns no result set (DDL).
	Exec(ctx context.Context, query string) error
	// Insert bulk-loads a delimited payload with a header row into the named
	// table. The header must match the table's column order.
	Insert(ctx context.Context, table string, payload []byte) error
	// Query runs a SELECT and returns the decoded result.
	Query(ctx context.Context, query string) (Table, error)
}

// PartArchiver stores a side copy of each downloaded raw part. Archiving is
// best-effort: callers log failures and continue.
type PartArchiver interface {
	StorePart(ctx context.Context, runID string, kind SourceKind, part int, payload []byte) error
}
