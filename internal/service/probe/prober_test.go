package probe

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"metrika-etl/internal/catalog"
	"metrika-etl/internal/domain"
	"metrika-etl/internal/metrika"
	"metrika-etl/internal/testutil"
)

func newProber(api domain.LogsAPI) *Prober {
	return New(api, catalog.Default(), slog.New(slog.DiscardHandler))
}

func rejection() error {
	return &metrika.APIError{StatusCode: http.StatusBadRequest, Message: "wrong field set"}
}

func TestProbeAllAvailableSingleRoundTrip(t *testing.T) {
	t.Parallel()

	api := &testutil.MockLogsAPI{
		EvaluateFn: func(_ context.Context, _ int64, _ domain.SourceKind, _, _ string, _ []string) (domain.Evaluation, error) {
			return domain.Evaluation{Possible: true, ExpectedSize: 9000}, nil
		},
	}

	result, err := newProber(api).Probe(context.Background(), 42, domain.SourceHits, "2024-01-01", "2024-01-31")
	require.NoError(t, err)

	assert.Equal(t, catalog.Default().SourceIDs(domain.SourceHits), result.Available)
	assert.Empty(t, result.Unavailable)
	assert.Equal(t, int64(9000), result.ExpectedSize)
	assert.False(t, result.Degraded)
	assert.Len(t, api.EvaluateCalls, 1, "all-available case must cost one round trip")
}

func TestProbeFallsBackPerField(t *testing.T) {
	t.Parallel()

	api := &testutil.MockLogsAPI{
		EvaluateFn: func(_ context.Context, _ int64, _ domain.SourceKind, _, _ string, fields []string) (domain.Evaluation, error) {
			if len(fields) > 1 {
				return domain.Evaluation{}, rejection()
			}
			if strings.Contains(fields[0], "purchase") || strings.Contains(fields[0], "products") {
				return domain.Evaluation{Possible: false}, nil
			}
			return domain.Evaluation{Possible: true, ExpectedSize: 100}, nil
		},
	}

	result, err := newProber(api).Probe(context.Background(), 42, domain.SourceVisits, "2024-01-01", "2024-01-31")
	require.NoError(t, err)

	assert.True(t, result.Degraded)
	assert.NotEmpty(t, result.Available)
	assert.NotEmpty(t, result.Unavailable)
	// disjoint, and the union covers the candidate set in declaration order
	candidates := catalog.Default().SourceIDs(domain.SourceVisits)
	assert.Len(t, result.Available, len(candidates)-len(result.Unavailable))
	seen := make(map[string]int)
	for _, f := range result.Available {
		seen[f]++
	}
	for _, f := range result.Unavailable {
		seen[f]++
	}
	for _, f := range candidates {
		assert.Equal(t, 1, seen[f], "field %s must appear exactly once", f)
	}
	// 1 full-set attempt + one per candidate
	assert.Len(t, api.EvaluateCalls, 1+len(candidates))
}

func TestProbeAllFieldsRejectedIsNotAnError(t *testing.T) {
	t.Parallel()

	api := &testutil.MockLogsAPI{
		EvaluateFn: func(_ context.Context, _ int64, _ domain.SourceKind, _, _ string, _ []string) (domain.Evaluation, error) {
			return domain.Evaluation{}, rejection()
		},
	}

	result, err := newProber(api).Probe(context.Background(), 42, domain.SourceHits, "2024-01-01", "2024-01-31")
	require.NoError(t, err)
	assert.Empty(t, result.Available)
	assert.Equal(t, catalog.Default().SourceIDs(domain.SourceHits), result.Unavailable)
}

func TestProbeFullSetNotPossibleFallsBack(t *testing.T) {
	t.Parallel()

	// A 200 with possible=false for the whole set is a refusal of the
	// combination, not of every field; the prober must degrade per field.
	api := &testutil.MockLogsAPI{
		EvaluateFn: func(_ context.Context, _ int64, _ domain.SourceKind, _, _ string, fields []string) (domain.Evaluation, error) {
			if len(fields) > 1 {
				return domain.Evaluation{Possible: false}, nil
			}
			if fields[0] == "ym:pv:URL" {
				return domain.Evaluation{Possible: false}, nil
			}
			return domain.Evaluation{Possible: true, ExpectedSize: 200}, nil
		},
	}

	result, err := newProber(api).Probe(context.Background(), 42, domain.SourceHits, "2024-01-01", "2024-01-31")
	require.NoError(t, err)

	assert.True(t, result.Degraded)
	assert.Equal(t, []string{"ym:pv:URL"}, result.Unavailable)
	candidates := catalog.Default().SourceIDs(domain.SourceHits)
	assert.Len(t, result.Available, len(candidates)-1)
	assert.Len(t, api.EvaluateCalls, 1+len(candidates))
}

func TestProbePropagatesAuthError(t *testing.T) {
	t.Parallel()

	api := &testutil.MockLogsAPI{
		EvaluateFn: func(_ context.Context, _ int64, _ domain.SourceKind, _, _ string, _ []string) (domain.Evaluation, error) {
			return domain.Evaluation{}, domain.ErrAuth("token rejected")
		},
	}

	_, err := newProber(api).Probe(context.Background(), 42, domain.SourceVisits, "2024-01-01", "2024-01-31")
	require.Error(t, err)
	assert.Equal(t, domain.ErrorKindAuth, domain.KindOf(err))
	assert.Len(t, api.EvaluateCalls, 1, "auth failure must not trigger per-field probing")
}

func TestProbeFallbackStopsOnAuthError(t *testing.T) {
	t.Parallel()

	calls := 0
	api := &testutil.MockLogsAPI{
		EvaluateFn: func(_ context.Context, _ int64, _ domain.SourceKind, _, _ string, fields []string) (domain.Evaluation, error) {
			if len(fields) > 1 {
				return domain.Evaluation{}, rejection()
			}
			calls++
			if calls >= 2 {
				return domain.Evaluation{}, domain.ErrAuth("token expired mid-probe")
			}
			return domain.Evaluation{Possible: true}, nil
		},
	}

	_, err := newProber(api).Probe(context.Background(), 42, domain.SourceHits, "2024-01-01", "2024-01-31")
	require.Error(t, err)
	assert.Equal(t, domain.ErrorKindAuth, domain.KindOf(err))
	assert.Equal(t, 2, calls)
}
