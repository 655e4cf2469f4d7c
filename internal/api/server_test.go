package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"metrika-etl/internal/domain"
	"metrika-etl/internal/service/pipeline"
	"metrika-etl/internal/testutil"
)

func newServer(t *testing.T, store *pipeline.RunStore, dest domain.Destination) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(NewRouter(store, dest, slog.New(slog.DiscardHandler)))
	t.Cleanup(srv.Close)
	return srv
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url) //nolint:gosec // test server URL
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	return resp.StatusCode
}

func TestHealthOK(t *testing.T) {
	t.Parallel()

	dest := &testutil.MockDestination{
		PingFn: func(context.Context) (string, error) { return "24.3.1.100", nil },
	}
	srv := newServer(t, pipeline.NewRunStore(5), dest)

	var body map[string]string
	status := getJSON(t, srv.URL+"/healthz", &body)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "24.3.1.100", body["clickhouse_version"])
}

func TestHealthDegraded(t *testing.T) {
	t.Parallel()

	dest := &testutil.MockDestination{
		PingFn: func(context.Context) (string, error) { return "", errors.New("connection refused") },
	}
	srv := newServer(t, pipeline.NewRunStore(5), dest)

	var body map[string]string
	status := getJSON(t, srv.URL+"/healthz", &body)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "degraded", body["status"])
}

func TestListRuns(t *testing.T) {
	t.Parallel()

	store := pipeline.NewRunStore(5)
	store.Add(domain.RunReport{RunID: "run-a", Succeeded: true})
	store.Add(domain.RunReport{RunID: "run-b", Succeeded: false})
	srv := newServer(t, store, &testutil.MockDestination{})

	var body struct {
		Runs []domain.RunReport `json:"runs"`
	}
	status := getJSON(t, srv.URL+"/v1/runs", &body)
	assert.Equal(t, http.StatusOK, status)
	require.Len(t, body.Runs, 2)
	assert.Equal(t, "run-b", body.Runs[0].RunID)
}

func TestLatestRun(t *testing.T) {
	t.Parallel()

	store := pipeline.NewRunStore(5)
	srv := newServer(t, store, &testutil.MockDestination{})

	var missing map[string]string
	assert.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+"/v1/runs/latest", &missing))

	store.Add(domain.RunReport{RunID: "run-a"})
	var report domain.RunReport
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/v1/runs/latest", &report))
	assert.Equal(t, "run-a", report.RunID)
}
