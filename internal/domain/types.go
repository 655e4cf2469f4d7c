// Package domain defines the core types and errors of the export pipeline.
package domain

import "time"

// SourceKind identifies the category of exported records.
type SourceKind string

const (
	// SourceHits is event-level data (one row per page view).
	SourceHits SourceKind = "hits"
	// SourceVisits is session-level data (one row per visit).
	SourceVisits SourceKind = "visits"
)

// ParseSourceKind validates a source kind name.
func ParseSourceKind(s string) (SourceKind, bool) {
	switch SourceKind(s) {
	case SourceHits:
		return SourceHits, true
	case SourceVisits:
		return SourceVisits, true
	}
	return "", false
}

// ColumnType is a destination column type.
type ColumnType string

const (
	TypeUInt64   ColumnType = "UInt64"
	TypeUInt32   ColumnType = "UInt32"
	TypeUInt8    ColumnType = "UInt8"
	TypeString   ColumnType = "String"
	TypeDate     ColumnType = "Date"
	TypeDateTime ColumnType = "DateTime"
	TypeFloat64  ColumnType = "Float64"
)

// Valid reports whether the column type is one of the recognized types.
func (t ColumnType) Valid() bool {
	switch t {
	case TypeUInt64, TypeUInt32, TypeUInt8, TypeString, TypeDate, TypeDateTime, TypeFloat64:
		return true
	}
	return false
}

// Field maps one source field identifier to its destination column.
// The mapping is explicit: destination names are declared, never derived
// from the source identifier.
type Field struct {
	SourceID string     // API field identifier, e.g. "ym:pv:URL"
	Column   string     // destination column name, e.g. "URL"
	Type     ColumnType // destination column type
}

// Evaluation is the remote's answer to an export feasibility check.
type Evaluation struct {
	Possible     bool
	ExpectedSize int64 // estimated result size in bytes, 0 when unknown
}

// AvailabilityResult records which requested fields the counter actually
// exposes for a date range. Available and Unavailable are disjoint and
// together cover the requested set; both preserve catalog declaration order.
type AvailabilityResult struct {
	Kind         SourceKind
	Available    []string // exportable source field IDs
	Unavailable  []string // rejected source field IDs
	ExpectedSize int64    // size estimate from evaluation, 0 when unknown
	Degraded     bool     // true when per-field fallback probing was required
}

// JobStatus is the lifecycle status of a remote export job.
type JobStatus string

const (
	StatusCreated          JobStatus = "created"
	StatusProcessing       JobStatus = "processing"
	StatusProcessed        JobStatus = "processed"
	StatusProcessingFailed JobStatus = "processing_failed"
	StatusCanceled         JobStatus = "canceled"
)

// Terminal reports whether the status is a terminal state.
func (s JobStatus) Terminal() bool {
	switch s {
	case StatusProcessed, StatusProcessingFailed, StatusCanceled:
		return true
	}
	return false
}

// ExportJob tracks one remote export request from submission to completion.
// Status and Parts are driven exclusively by polling the remote descriptor;
// the job is immutable once Status is terminal.
type ExportJob struct {
	RequestID       int64
	CounterID       int64
	Kind            SourceKind
	DateFrom        string // YYYY-MM-DD, inclusive
	DateTo          string // YYYY-MM-DD, inclusive
	RequestedFields []string // source field IDs in submitted order
	Status          JobStatus
	Parts           []PartRef
	ExpectedSize    int64 // size estimate carried over from probing, 0 when unknown
}

// PartRef identifies one downloadable part of a processed export job.
// Part numbers are contiguous starting at 0.
type PartRef struct {
	Number int
	Size   int64 // payload size hint in bytes, 0 when unknown
}

// Table is a column-ordered block of rows. Every row has exactly one value
// per column, aligned positionally with Columns.
type Table struct {
	Columns []string
	Rows    [][]string
}

// TableSchema is the resolved destination schema for one source kind.
// Column order follows catalog declaration order, never arrival order.
type TableSchema struct {
	Database string
	Table    string
	Columns  []Column
	OrderBy  []string // sort key expressions, empty degrades to tuple()
	SampleBy string   // sampling expression, "" when unavailable
}

// Column is one destination column together with the source field it is
// filled from.
type Column struct {
	SourceID string
	Name     string
	Type     ColumnType
}

// ColumnNames returns the destination column names in schema order.
func (s TableSchema) ColumnNames() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

// QualifiedName returns the database-qualified table name.
func (s TableSchema) QualifiedName() string {
	return s.Database + "." + s.Table
}

// LoadStats summarizes one completed bulk load.
type LoadStats struct {
	Rows   int64
	Bytes  int64
	Chunks int
}

// TriggerType records what initiated a pipeline run.
type TriggerType string

const (
	TriggerTypeManual    TriggerType = "manual"
	TriggerTypeScheduled TriggerType = "scheduled"
)

// SourceStatus is the outcome of one source sub-pipeline.
type SourceStatus string

const (
	SourceSucceeded SourceStatus = "success"
	SourceFailed    SourceStatus = "failed"
)

// SourceReport summarizes one source sub-pipeline within a run.
type SourceReport struct {
	Kind              SourceKind   `json:"source"`
	Status            SourceStatus `json:"status"`
	Table             string       `json:"table,omitempty"`
	RowsLoaded        int64        `json:"rows_loaded"`
	Parts             int          `json:"parts"`
	AvailableFields   int          `json:"available_fields"`
	UnavailableFields []string     `json:"unavailable_fields,omitempty"`
	Degraded          bool         `json:"degraded,omitempty"`
	ElapsedSeconds    float64      `json:"elapsed_seconds"`
	ErrorKind         ErrorKind    `json:"error_kind,omitempty"`
	Error             string       `json:"error,omitempty"`
}

// RunReport aggregates the outcome of a full pipeline run across all
// configured source kinds.
type RunReport struct {
	RunID      string         `json:"run_id"`
	Trigger    TriggerType    `json:"trigger"`
	DateFrom   string         `json:"date_from"`
	DateTo     string         `json:"date_to"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Sources    []SourceReport `json:"sources"`
	Succeeded  bool           `json:"succeeded"`
}
