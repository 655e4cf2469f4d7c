package load

import (
	"context"
	"fmt"
	"log/slog"

	"metrika-etl/internal/domain"
	"metrika-etl/internal/tsv"
)

// BulkLoader uploads mapped rows into a provisioned table in bounded chunks.
// Uploads are not transactional across chunks: a mid-load failure leaves a
// partial table, which the next run's drop-and-recreate repairs.
type BulkLoader struct {
	dest      domain.Destination
	chunkRows int // rows per insert, 0 sends the whole set in one batch
	logger    *slog.Logger
}

// NewBulkLoader creates a BulkLoader.
func NewBulkLoader(dest domain.Destination, chunkRows int, logger *slog.Logger) *BulkLoader {
	return &BulkLoader{dest: dest, chunkRows: chunkRows, logger: logger.With("component", "load")}
}

// Load serializes the table into the TSV wire format, column order matching
// the schema, and uploads it chunk by chunk.
func (l *BulkLoader) Load(ctx context.Context, schema domain.TableSchema, table domain.Table) (domain.LoadStats, error) {
	columns := schema.ColumnNames()
	if len(table.Columns) != len(columns) {
		return domain.LoadStats{}, domain.ErrSchema(
			"mapped data has %d columns, schema %s has %d", len(table.Columns), schema.QualifiedName(), len(columns))
	}
	for i, name := range columns {
		if table.Columns[i] != name {
			return domain.LoadStats{}, domain.ErrSchema(
				"mapped column %d is %q, schema expects %q", i, table.Columns[i], name)
		}
	}

	name := schema.QualifiedName()
	if len(table.Rows) == 0 {
		l.logger.Info("nothing to load", "table", name)
		return domain.LoadStats{}, nil
	}

	chunk := l.chunkRows
	if chunk <= 0 {
		chunk = len(table.Rows)
	}

	var stats domain.LoadStats
	for start := 0; start < len(table.Rows); start += chunk {
		end := min(start+chunk, len(table.Rows))
		payload := tsv.Encode(columns, table.Rows[start:end])
		if err := l.dest.Insert(ctx, name, payload); err != nil {
			return stats, fmt.Errorf("insert rows %d..%d into %s: %w", start, end-1, name, err)
		}
		stats.Rows += int64(end - start)
		stats.Bytes += int64(len(payload))
		stats.Chunks++
		l.logger.Debug("chunk loaded", "table", name, "rows", end-start, "rows_total", stats.Rows)
	}

	l.logger.Info("bulk load complete", "table", name, "rows", stats.Rows, "chunks", stats.Chunks)
	return stats, nil
}
