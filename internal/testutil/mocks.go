// Package testutil provides shared mock implementations of domain interfaces
// for use in tests across the codebase.
package testutil

import (
	"context"
	"fmt"
	"sync"

	"metrika-etl/internal/domain"
)

// === Logs API mock ===

// MockLogsAPI implements domain.LogsAPI for testing. Unset methods panic so
// unexpected calls surface immediately.
type MockLogsAPI struct {
	CounterNameFn  func(ctx context.Context, counterID int64) (string, error)
	EvaluateFn     func(ctx context.Context, counterID int64, kind domain.SourceKind, dateFrom, dateTo string, fields []string) (domain.Evaluation, error)
	CreateExportFn func(ctx context.Context, counterID int64, kind domain.SourceKind, dateFrom, dateTo string, fields []string) (domain.ExportJob, error)
	ExportStatusFn func(ctx context.Context, counterID, requestID int64) (domain.JobStatus, []domain.PartRef, error)
	DownloadPartFn func(ctx context.Context, counterID, requestID int64, part int) ([]byte, error)

	mu            sync.Mutex
	EvaluateCalls [][]string // field lists passed to Evaluate, for assertions
	StatusCalls   int
}

func (m *MockLogsAPI) CounterName(ctx context.Context, counterID int64) (string, error) {
	if m.CounterNameFn != nil {
		return m.CounterNameFn(ctx, counterID)
	}
	panic("unexpected call to MockLogsAPI.CounterName")
}

func (m *MockLogsAPI) Evaluate(ctx context.Context, counterID int64, kind domain.SourceKind, dateFrom, dateTo string, fields []string) (domain.Evaluation, error) {
	if m.EvaluateFn == nil {
		panic("unexpected call to MockLogsAPI.Evaluate")
	}
	m.mu.Lock()
	m.EvaluateCalls = append(m.EvaluateCalls, append([]string(nil), fields...))
	m.mu.Unlock()
	return m.EvaluateFn(ctx, counterID, kind, dateFrom, dateTo, fields)
}

func (m *MockLogsAPI) CreateExport(ctx context.Context, counterID int64, kind domain.SourceKind, dateFrom, dateTo string, fields []string) (domain.ExportJob, error) {
	if m.CreateExportFn != nil {
		return m.CreateExportFn(ctx, counterID, kind, dateFrom, dateTo, fields)
	}
	panic("unexpected call to MockLogsAPI.CreateExport")
}

func (m *MockLogsAPI) ExportStatus(ctx context.Context, counterID, requestID int64) (domain.JobStatus, []domain.PartRef, error) {
	if m.ExportStatusFn == nil {
		panic("unexpected call to MockLogsAPI.ExportStatus")
	}
	m.mu.Lock()
	m.StatusCalls++
	m.mu.Unlock()
	return m.ExportStatusFn(ctx, counterID, requestID)
}

func (m *MockLogsAPI) DownloadPart(ctx context.Context, counterID, requestID int64, part int) ([]byte, error) {
	if m.DownloadPartFn != nil {
		return m.DownloadPartFn(ctx, counterID, requestID, part)
	}
	panic("unexpected call to MockLogsAPI.DownloadPart")
}

var _ domain.LogsAPI = (*MockLogsAPI)(nil)

// === Destination mock ===

// MockDestination implements domain.Destination for testing. Executed
// statements and inserted payloads are collected for assertions.
type MockDestination struct {
	PingFn   func(ctx context.Context) (string, error)
	ExecFn   func(ctx context.Context, query string) error
	InsertFn func(ctx context.Context, table string, payload []byte) error
	QueryFn  func(ctx context.Context, query string) (domain.Table, error)

	mu       sync.Mutex
	Executed []string
	Inserts  []Insert
}

// Insert is one collected bulk-insert call.
type Insert struct {
	Table   string
	Payload []byte
}

func (m *MockDestination) Ping(ctx context.Context) (string, error) {
	if m.PingFn != nil {
		return m.PingFn(ctx)
	}
	return "1.0-test", nil
}

func (m *MockDestination) Exec(ctx context.Context, query string) error {
	m.mu.Lock()
	m.Executed = append(m.Executed, query)
	m.mu.Unlock()
	if m.ExecFn != nil {
		return m.ExecFn(ctx, query)
	}
	return nil
}

func (m *MockDestination) Insert(ctx context.Context, table string, payload []byte) error {
	m.mu.Lock()
	m.Inserts = append(m.Inserts, Insert{Table: table, Payload: append([]byte(nil), payload...)})
	m.mu.Unlock()
	if m.InsertFn != nil {
		return m.InsertFn(ctx, table, payload)
	}
	return nil
}

func (m *MockDestination) Query(ctx context.Context, query string) (domain.Table, error) {
	if m.QueryFn != nil {
		return m.QueryFn(ctx, query)
	}
	panic("unexpected call to MockDestination.Query")
}

var _ domain.Destination = (*MockDestination)(nil)

// === Part archiver mock ===

// MockArchiver implements domain.PartArchiver for testing.
type MockArchiver struct {
	StorePartFn func(ctx context.Context, runID string, kind domain.SourceKind, part int, payload []byte) error

	mu     sync.Mutex
	Stored []string // "<runID>/<kind>/<part>" keys in store order
}

func (m *MockArchiver) StorePart(ctx context.Context, runID string, kind domain.SourceKind, part int, payload []byte) error {
	m.mu.Lock()
	m.Stored = append(m.Stored, fmt.Sprintf("%s/%s/%d", runID, kind, part))
	m.mu.Unlock()
	if m.StorePartFn != nil {
		return m.StorePartFn(ctx, runID, kind, part, payload)
	}
	return nil
}

// StoredKeys returns the collected keys, safe for concurrent stores.
func (m *MockArchiver) StoredKeys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.Stored...)
}

var _ domain.PartArchiver = (*MockArchiver)(nil)
