// Package load owns the destination side of the pipeline: idempotent table
// provisioning and chunked bulk inserts.
package load

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"metrika-etl/internal/domain"
)

// Provisioner creates destination tables with full replace semantics. There
// is no additive schema evolution: each run drops and recreates the table so
// its columns always match the resolved schema exactly.
type Provisioner struct {
	dest   domain.Destination
	logger *slog.Logger
}

// NewProvisioner creates a Provisioner.
func NewProvisioner(dest domain.Destination, logger *slog.Logger) *Provisioner {
	return &Provisioner{dest: dest, logger: logger.With("component", "provision")}
}

// EnsureTable drops the table if it exists and recreates it from the schema.
// Column order in the CREATE statement matches schema order, which keeps the
// positional bulk-load format aligned with the mapper's output.
func (p *Provisioner) EnsureTable(ctx context.Context, schema domain.TableSchema) error {
	ddl, err := CreateStatement(schema)
	if err != nil {
		return err
	}

	name := schema.QualifiedName()
	if err := p.dest.Exec(ctx, "DROP TABLE IF EXISTS "+name); err != nil {
		return fmt.Errorf("drop table %s: %w", name, err)
	}
	if err := p.dest.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create table %s: %w", name, err)
	}

	p.logger.Info("table provisioned", "table", name, "columns", len(schema.Columns))
	return nil
}

// CreateStatement renders the CREATE TABLE DDL for a schema.
func CreateStatement(schema domain.TableSchema) (string, error) {
	if len(schema.Columns) == 0 {
		return "", domain.ErrSchema("table %s has no columns", schema.QualifiedName())
	}

	defs := make([]string, len(schema.Columns))
	for i, col := range schema.Columns {
		if !col.Type.Valid() {
			return "", domain.ErrSchema("column %s has unrecognized type %q", col.Name, col.Type)
		}
		defs[i] = col.Name + " " + string(col.Type)
	}

	orderBy := "tuple()"
	if len(schema.OrderBy) > 0 {
		orderBy = "(" + strings.Join(schema.OrderBy, ", ") + ")"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE %s (%s) ENGINE = MergeTree() ORDER BY %s",
		schema.QualifiedName(), strings.Join(defs, ", "), orderBy)
	if schema.SampleBy != "" {
		fmt.Fprintf(&b, " SAMPLE BY %s", schema.SampleBy)
	}
	b.WriteString(" SETTINGS index_granularity = 8192")
	return b.String(), nil
}
