package mapping

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"metrika-etl/internal/catalog"
	"metrika-etl/internal/domain"
)

func availability(kind domain.SourceKind, available ...string) domain.AvailabilityResult {
	return domain.AvailabilityResult{Kind: kind, Available: available}
}

func TestResolveBothFieldsAvailable(t *testing.T) {
	t.Parallel()

	schema, err := Resolve(catalog.Default(),
		availability(domain.SourceVisits, "ym:s:visitID", "ym:s:clientID"),
		"analytics", "ym_")
	require.NoError(t, err)

	assert.Equal(t, "analytics.ym_visits", schema.QualifiedName())
	require.Len(t, schema.Columns, 2)
	// catalog declaration order: visitID before clientID
	assert.Equal(t, domain.Column{SourceID: "ym:s:visitID", Name: "VisitID", Type: domain.TypeUInt64}, schema.Columns[0])
	assert.Equal(t, domain.Column{SourceID: "ym:s:clientID", Name: "ClientID", Type: domain.TypeUInt64}, schema.Columns[1])
	// ClientID survives, so its sort and sample expressions stay; StartDate is gone
	assert.Equal(t, []string{"intHash32(ClientID)"}, schema.OrderBy)
	assert.Equal(t, "intHash32(ClientID)", schema.SampleBy)
}

func TestResolveOrderIsIndependentOfRequestOrder(t *testing.T) {
	t.Parallel()

	forward, err := Resolve(catalog.Default(),
		availability(domain.SourceVisits, "ym:s:visitID", "ym:s:clientID", "ym:s:date"),
		"analytics", "ym_")
	require.NoError(t, err)

	reversed, err := Resolve(catalog.Default(),
		availability(domain.SourceVisits, "ym:s:date", "ym:s:clientID", "ym:s:visitID"),
		"analytics", "ym_")
	require.NoError(t, err)

	assert.Equal(t, forward, reversed, "schema must be a function of catalog order, not input order")
	assert.Equal(t, []string{"VisitID", "StartDate", "ClientID"}, forward.ColumnNames())
}

func TestResolveSingleColumn(t *testing.T) {
	t.Parallel()

	schema, err := Resolve(catalog.Default(),
		availability(domain.SourceVisits, "ym:s:visitID"),
		"analytics", "ym_")
	require.NoError(t, err)

	assert.Equal(t, []string{"VisitID"}, schema.ColumnNames())
	assert.Empty(t, schema.OrderBy, "sort key columns are unavailable and must be dropped")
	assert.Empty(t, schema.SampleBy)
}

func TestResolveRejectsUndeclaredField(t *testing.T) {
	t.Parallel()

	_, err := Resolve(catalog.Default(),
		availability(domain.SourceVisits, "ym:s:notAField"),
		"analytics", "ym_")
	require.Error(t, err)
	assert.Equal(t, domain.ErrorKindSchema, domain.KindOf(err))
}

func TestResolveRejectsEmptyAvailability(t *testing.T) {
	t.Parallel()

	_, err := Resolve(catalog.Default(), availability(domain.SourceHits), "analytics", "ym_")
	require.Error(t, err)
	assert.Equal(t, domain.ErrorKindSchema, domain.KindOf(err))
}

func TestMapTableReordersAndRenames(t *testing.T) {
	t.Parallel()

	schema, err := Resolve(catalog.Default(),
		availability(domain.SourceVisits, "ym:s:visitID", "ym:s:date", "ym:s:clientID"),
		"analytics", "ym_")
	require.NoError(t, err)

	// wire order differs from schema order
	in := domain.Table{
		Columns: []string{"ym:s:clientID", "ym:s:date", "ym:s:visitID"},
		Rows: [][]string{
			{"111", "2024-01-01", "900"},
			{"222", "2024-01-02", "901"},
		},
	}

	out, err := MapTable(schema, in)
	require.NoError(t, err)

	assert.Equal(t, []string{"VisitID", "StartDate", "ClientID"}, out.Columns)
	assert.Equal(t, []string{"900", "2024-01-01", "111"}, out.Rows[0])
	assert.Equal(t, []string{"901", "2024-01-02", "222"}, out.Rows[1])
}

func TestMapTableDropsColumnsOutsideSchema(t *testing.T) {
	t.Parallel()

	schema, err := Resolve(catalog.Default(),
		availability(domain.SourceVisits, "ym:s:visitID"),
		"analytics", "ym_")
	require.NoError(t, err)

	in := domain.Table{
		Columns: []string{"ym:s:visitID", "ym:s:bounce"},
		Rows:    [][]string{{"900", "1"}},
	}

	out, err := MapTable(schema, in)
	require.NoError(t, err)
	assert.Equal(t, []string{"VisitID"}, out.Columns)
	assert.Equal(t, [][]string{{"900"}}, out.Rows)
}

func TestMapTableMissingSourceColumnFails(t *testing.T) {
	t.Parallel()

	schema, err := Resolve(catalog.Default(),
		availability(domain.SourceVisits, "ym:s:visitID", "ym:s:clientID"),
		"analytics", "ym_")
	require.NoError(t, err)

	in := domain.Table{Columns: []string{"ym:s:visitID"}, Rows: [][]string{{"900"}}}

	_, err = MapTable(schema, in)
	require.Error(t, err)
	assert.Equal(t, domain.ErrorKindSchema, domain.KindOf(err))
	assert.Contains(t, err.Error(), "ym:s:clientID")
}
