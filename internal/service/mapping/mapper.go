// Package mapping resolves the destination table schema from the catalog and
// an availability result, and rewrites downloaded rows from source field IDs
// to destination columns.
//
// Every destination column name is looked up in the catalog's explicit
// mapping table, never computed from the source identifier. Output column
// order is the catalog's declaration order filtered by availability, so it
// cannot depend on request order or arrival order.
package mapping

import (
	"metrika-etl/internal/catalog"
	"metrika-etl/internal/domain"
)

// Resolve derives the destination table schema for an availability result.
// Sort-key and sampling expressions whose columns did not survive the
// availability filter are dropped; an empty sort key degrades to tuple() at
// DDL time.
func Resolve(cat *catalog.Catalog, avail domain.AvailabilityResult, database, tablePrefix string) (domain.TableSchema, error) {
	if !cat.Has(avail.Kind) {
		return domain.TableSchema{}, domain.ErrSchema("no catalog declaration for source %q", avail.Kind)
	}
	if len(avail.Available) == 0 {
		return domain.TableSchema{}, domain.ErrSchema("no available fields for source %q", avail.Kind)
	}

	availableSet := make(map[string]bool, len(avail.Available))
	for _, id := range avail.Available {
		if _, ok := cat.Field(avail.Kind, id); !ok {
			return domain.TableSchema{}, domain.ErrSchema("available field %q is not declared for source %q", id, avail.Kind)
		}
		availableSet[id] = true
	}

	schema := domain.TableSchema{
		Database: database,
		Table:    tablePrefix + string(avail.Kind),
	}
	columnSet := make(map[string]bool)
	for _, f := range cat.Fields(avail.Kind) {
		if !availableSet[f.SourceID] {
			continue
		}
		schema.Columns = append(schema.Columns, domain.Column{SourceID: f.SourceID, Name: f.Column, Type: f.Type})
		columnSet[f.Column] = true
	}

	for _, expr := range cat.SortKey(avail.Kind) {
		if columnSet[expr.Column] {
			schema.OrderBy = append(schema.OrderBy, expr.Expr)
		}
	}
	if sample, ok := cat.SampleKey(avail.Kind); ok && columnSet[sample.Column] {
		schema.SampleBy = sample.Expr
	}
	return schema, nil
}

// MapTable rewrites a downloaded table keyed by source field IDs into one
// keyed by destination columns, values reordered into schema order. The
// mapping is total: every schema column must be fed by a source column, and
// source columns outside the schema are dropped.
func MapTable(schema domain.TableSchema, in domain.Table) (domain.Table, error) {
	position := make(map[string]int, len(in.Columns))
	for i, id := range in.Columns {
		position[id] = i
	}

	indices := make([]int, len(schema.Columns))
	for i, col := range schema.Columns {
		pos, ok := position[col.SourceID]
		if !ok {
			return domain.Table{}, domain.ErrSchema("downloaded data is missing source field %q for column %s", col.SourceID, col.Name)
		}
		indices[i] = pos
	}

	out := domain.Table{
		Columns: schema.ColumnNames(),
		Rows:    make([][]string, len(in.Rows)),
	}
	for r, row := range in.Rows {
		mapped := make([]string, len(indices))
		for i, pos := range indices {
			mapped[i] = row[pos]
		}
		out.Rows[r] = mapped
	}
	return out, nil
}
