package load

import (
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"metrika-etl/internal/domain"
	"metrika-etl/internal/testutil"
)

func discard() *slog.Logger { return slog.New(slog.DiscardHandler) }

func visitsSchema() domain.TableSchema {
	return domain.TableSchema{
		Database: "analytics",
		Table:    "ym_visits",
		Columns: []domain.Column{
			{SourceID: "ym:s:visitID", Name: "VisitID", Type: domain.TypeUInt64},
			{SourceID: "ym:s:date", Name: "StartDate", Type: domain.TypeDate},
			{SourceID: "ym:s:clientID", Name: "ClientID", Type: domain.TypeUInt64},
		},
		OrderBy:  []string{"intHash32(ClientID)", "StartDate"},
		SampleBy: "intHash32(ClientID)",
	}
}

func TestCreateStatement(t *testing.T) {
	t.Parallel()

	ddl, err := CreateStatement(visitsSchema())
	require.NoError(t, err)
	assert.Equal(t,
		"CREATE TABLE analytics.ym_visits (VisitID UInt64, StartDate Date, ClientID UInt64) "+
			"ENGINE = MergeTree() ORDER BY (intHash32(ClientID), StartDate) "+
			"SAMPLE BY intHash32(ClientID) SETTINGS index_granularity = 8192",
		ddl)
}

func TestCreateStatementDegradesToTupleOrder(t *testing.T) {
	t.Parallel()

	schema := visitsSchema()
	schema.OrderBy = nil
	schema.SampleBy = ""

	ddl, err := CreateStatement(schema)
	require.NoError(t, err)
	assert.Contains(t, ddl, "ORDER BY tuple()")
	assert.NotContains(t, ddl, "SAMPLE BY")
}

func TestCreateStatementRejectsUnknownType(t *testing.T) {
	t.Parallel()

	schema := visitsSchema()
	schema.Columns[1].Type = "Decimal128"

	_, err := CreateStatement(schema)
	require.Error(t, err)
	assert.Equal(t, domain.ErrorKindSchema, domain.KindOf(err))
}

func TestEnsureTableDropsThenCreates(t *testing.T) {
	t.Parallel()

	dest := &testutil.MockDestination{}
	p := NewProvisioner(dest, discard())

	require.NoError(t, p.EnsureTable(context.Background(), visitsSchema()))
	require.Len(t, dest.Executed, 2)
	assert.Equal(t, "DROP TABLE IF EXISTS analytics.ym_visits", dest.Executed[0])
	assert.True(t, strings.HasPrefix(dest.Executed[1], "CREATE TABLE analytics.ym_visits ("))
}

func TestEnsureTableSurfacesDDLRejection(t *testing.T) {
	t.Parallel()

	dest := &testutil.MockDestination{
		ExecFn: func(_ context.Context, query string) error {
			if strings.HasPrefix(query, "CREATE") {
				return domain.ErrLoad("DB::Exception: Not enough privileges", "clickhouse rejected statement (status 403)")
			}
			return nil
		},
	}
	p := NewProvisioner(dest, discard())

	err := p.EnsureTable(context.Background(), visitsSchema())
	require.Error(t, err)
	assert.Equal(t, domain.ErrorKindLoad, domain.KindOf(err))
	assert.Contains(t, err.Error(), "Not enough privileges")
}

func mappedTable(rows int) domain.Table {
	table := domain.Table{Columns: []string{"VisitID", "StartDate", "ClientID"}}
	for i := 0; i < rows; i++ {
		table.Rows = append(table.Rows, []string{"900", "2024-01-01", "111"})
	}
	return table
}

func TestLoadSingleBatch(t *testing.T) {
	t.Parallel()

	dest := &testutil.MockDestination{}
	l := NewBulkLoader(dest, 0, discard())

	stats, err := l.Load(context.Background(), visitsSchema(), mappedTable(3))
	require.NoError(t, err)

	assert.Equal(t, int64(3), stats.Rows)
	assert.Equal(t, 1, stats.Chunks)
	require.Len(t, dest.Inserts, 1)
	assert.Equal(t, "analytics.ym_visits", dest.Inserts[0].Table)
	assert.True(t, strings.HasPrefix(string(dest.Inserts[0].Payload), "VisitID\tStartDate\tClientID\n"))
}

func TestLoadChunks(t *testing.T) {
	t.Parallel()

	dest := &testutil.MockDestination{}
	l := NewBulkLoader(dest, 2, discard())

	stats, err := l.Load(context.Background(), visitsSchema(), mappedTable(5))
	require.NoError(t, err)

	assert.Equal(t, int64(5), stats.Rows)
	assert.Equal(t, 3, stats.Chunks)
	require.Len(t, dest.Inserts, 3)
	// every chunk repeats the header so each insert is self-describing
	for _, ins := range dest.Inserts {
		assert.True(t, strings.HasPrefix(string(ins.Payload), "VisitID\tStartDate\tClientID\n"))
	}
}

func TestLoadEmptyTable(t *testing.T) {
	t.Parallel()

	dest := &testutil.MockDestination{}
	l := NewBulkLoader(dest, 0, discard())

	stats, err := l.Load(context.Background(), visitsSchema(), mappedTable(0))
	require.NoError(t, err)
	assert.Zero(t, stats.Rows)
	assert.Empty(t, dest.Inserts)
}

func TestLoadRejectsMisalignedColumns(t *testing.T) {
	t.Parallel()

	l := NewBulkLoader(&testutil.MockDestination{}, 0, discard())
	table := domain.Table{Columns: []string{"StartDate", "VisitID", "ClientID"}, Rows: [][]string{{"a", "b", "c"}}}

	_, err := l.Load(context.Background(), visitsSchema(), table)
	require.Error(t, err)
	assert.Equal(t, domain.ErrorKindSchema, domain.KindOf(err))
}

func TestLoadSurfacesInsertRejection(t *testing.T) {
	t.Parallel()

	dest := &testutil.MockDestination{
		InsertFn: func(_ context.Context, _ string, _ []byte) error {
			return domain.ErrLoad("DB::Exception: Cannot parse input", "clickhouse rejected statement (status 400)")
		},
	}
	l := NewBulkLoader(dest, 0, discard())

	_, err := l.Load(context.Background(), visitsSchema(), mappedTable(2))
	require.Error(t, err)
	assert.Equal(t, domain.ErrorKindLoad, domain.KindOf(err))
}
