// Package query is the read-side viewer: ad-hoc SELECTs against the loaded
// tables, terminal-width-aware rendering and per-column statistics. It never
// writes to the destination and is not part of the load pipeline.
package query

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/pterm/pterm"
	"golang.org/x/term"

	"metrika-etl/internal/domain"
)

// DefaultLimit is appended to SELECTs that carry no LIMIT clause, so an
// accidental `SELECT *` on a million-row table stays cheap.
const DefaultLimit = 100

// Viewer runs read-only queries and renders results.
type Viewer struct {
	dest domain.Destination
	out  io.Writer
}

// New creates a Viewer writing to out (usually os.Stdout).
func New(dest domain.Destination, out io.Writer) *Viewer {
	return &Viewer{dest: dest, out: out}
}

var limitRe = regexp.MustCompile(`(?i)\blimit\s+\d+`)

// EnsureLimit appends LIMIT n to a query that has none.
func EnsureLimit(query string, n int) string {
	q := strings.TrimRight(strings.TrimSpace(query), ";")
	if limitRe.MatchString(q) {
		return q
	}
	return fmt.Sprintf("%s LIMIT %d", q, n)
}

// RunSQL executes one query and renders the result as a table.
func (v *Viewer) RunSQL(ctx context.Context, query string, limit int) error {
	if limit <= 0 {
		limit = DefaultLimit
	}
	result, err := v.dest.Query(ctx, EnsureLimit(query, limit))
	if err != nil {
		return err
	}
	v.renderTable(result)
	return nil
}

// ShowTable renders the first rows of a table.
func (v *Viewer) ShowTable(ctx context.Context, table string, limit int) error {
	return v.RunSQL(ctx, "SELECT * FROM "+table, limit)
}

func (v *Viewer) renderTable(result domain.Table) {
	if len(result.Columns) == 0 {
		fmt.Fprintln(v.out, pterm.Gray("(empty result)"))
		return
	}

	width := terminalWidth()
	maxCell := cellWidth(width, len(result.Columns))

	data := pterm.TableData{truncateRow(result.Columns, maxCell)}
	for _, row := range result.Rows {
		data = append(data, truncateRow(row, maxCell))
	}

	render := pterm.DefaultTable.WithHasHeader().WithData(data)
	text, err := render.Srender()
	if err != nil {
		// Fall back to plain tab-separated output.
		for _, row := range data {
			fmt.Fprintln(v.out, strings.Join(row, "\t"))
		}
		return
	}
	fmt.Fprintln(v.out, text)
	fmt.Fprintln(v.out, pterm.Gray(fmt.Sprintf("%d row(s)", len(result.Rows))))
}

// ColumnStats summarizes one column of a loaded table.
type ColumnStats struct {
	Name     string
	Type     string
	NonNull  int64
	EmptyPct float64
	Min      string // numeric columns only
	Mean     string
	Max      string
}

var numericTypes = map[string]bool{
	"UInt8": true, "UInt32": true, "UInt64": true,
	"Int8": true, "Int32": true, "Int64": true,
	"Float32": true, "Float64": true,
}

// Stats computes per-column summaries for a table: type, non-empty count,
// and min/mean/max for numeric columns.
func (v *Viewer) Stats(ctx context.Context, table string) ([]ColumnStats, error) {
	desc, err := v.dest.Query(ctx, "DESCRIBE TABLE "+table)
	if err != nil {
		return nil, err
	}
	total, err := v.rowCount(ctx, table)
	if err != nil {
		return nil, err
	}

	var stats []ColumnStats
	for _, row := range desc.Rows {
		if len(row) < 2 {
			continue
		}
		cs := ColumnStats{Name: row[0], Type: row[1]}

		nonEmpty, err := v.scalar(ctx, fmt.Sprintf("SELECT countIf(toString(%s) != '') FROM %s", cs.Name, table))
		if err != nil {
			return nil, err
		}
		cs.NonNull, _ = strconv.ParseInt(nonEmpty, 10, 64)
		if total > 0 {
			cs.EmptyPct = float64(total-cs.NonNull) / float64(total) * 100
		}

		if numericTypes[cs.Type] {
			agg, err := v.dest.Query(ctx, fmt.Sprintf(
				"SELECT min(%s), round(avg(%s), 2), max(%s) FROM %s", cs.Name, cs.Name, cs.Name, table))
			if err != nil {
				return nil, err
			}
			if len(agg.Rows) == 1 && len(agg.Rows[0]) == 3 {
				cs.Min, cs.Mean, cs.Max = agg.Rows[0][0], agg.Rows[0][1], agg.Rows[0][2]
			}
		}
		stats = append(stats, cs)
	}
	return stats, nil
}

func (v *Viewer) rowCount(ctx context.Context, table string) (int64, error) {
	s, err := v.scalar(ctx, "SELECT count() FROM "+table)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse row count %q: %w", s, err)
	}
	return n, nil
}

// scalar runs a query expected to return a single value.
func (v *Viewer) scalar(ctx context.Context, query string) (string, error) {
	result, err := v.dest.Query(ctx, query)
	if err != nil {
		return "", err
	}
	if len(result.Rows) != 1 || len(result.Rows[0]) < 1 {
		return "", fmt.Errorf("query %q returned no scalar", query)
	}
	return result.Rows[0][0], nil
}

// RenderStats prints a stats summary table.
func (v *Viewer) RenderStats(ctx context.Context, table string) error {
	stats, err := v.Stats(ctx, table)
	if err != nil {
		return err
	}

	data := pterm.TableData{{"column", "type", "non-empty", "empty %", "min", "mean", "max"}}
	for _, cs := range stats {
		data = append(data, []string{
			cs.Name, cs.Type,
			strconv.FormatInt(cs.NonNull, 10),
			fmt.Sprintf("%.1f", cs.EmptyPct),
			cs.Min, cs.Mean, cs.Max,
		})
	}
	text, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return err
	}
	fmt.Fprintln(v.out, text)
	return nil
}

// Interactive runs a minimal read-eval-print loop over in. Commands: a SQL
// statement per line, `help`, and `exit`/`quit`.
func (v *Viewer) Interactive(ctx context.Context, in io.Reader) error {
	fmt.Fprintln(v.out, pterm.Cyan("Type a SELECT statement, 'help', or 'exit'."))
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Fprint(v.out, pterm.Green("sql> "))
		if !scanner.Scan() {
			fmt.Fprintln(v.out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(line) {
		case "":
			continue
		case "exit", "quit", `\q`:
			return nil
		case "help":
			fmt.Fprintln(v.out, "Enter a SELECT statement to run it (a LIMIT is added when missing).")
			fmt.Fprintln(v.out, "Commands: help, exit, quit")
			continue
		}
		if err := v.RunSQL(ctx, line, DefaultLimit); err != nil {
			fmt.Fprintln(v.out, pterm.Red("error: ")+err.Error())
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// terminalWidth returns the current terminal width, or a conservative
// default when stdout is not a terminal.
func terminalWidth() int {
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		return 120
	}
	width, _, err := term.GetSize(fd)
	if err != nil || width <= 0 {
		return 120
	}
	return width
}

// cellWidth divides the terminal width across columns, floored to keep at
// least a readable stub per cell.
func cellWidth(total, columns int) int {
	if columns == 0 {
		return total
	}
	w := total/columns - 3 // separator allowance
	if w < 8 {
		w = 8
	}
	return w
}

func truncateRow(row []string, maxCell int) []string {
	out := make([]string, len(row))
	for i, v := range row {
		out[i] = truncate(v, maxCell)
	}
	return out
}

func truncate(s string, max int) string {
	if len(s) <= max || max < 4 {
		return s
	}
	return s[:max-1] + "…"
}
