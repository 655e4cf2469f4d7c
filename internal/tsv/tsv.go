// Package tsv encodes and decodes the tab-separated wire format used by the
// Logs API downloads and ClickHouse bulk inserts. Values use backslash
// escaping (\t, \n, \r, \\, \0), not CSV-style quoting, so encoding/csv
// cannot be used here.
package tsv

import (
	"fmt"
	"strings"
)

// Decode parses a payload with a header line into column names and rows.
// Embedded tabs and newlines inside values are backslash-escaped on the
// wire, so splitting on raw delimiters is safe.
func Decode(data []byte) (columns []string, rows [][]string, err error) {
	text := string(data)
	if strings.TrimSpace(text) == "" {
		return nil, nil, fmt.Errorf("empty payload")
	}

	lines := strings.Split(text, "\n")
	// A trailing newline leaves one empty final element.
	if last := len(lines) - 1; lines[last] == "" {
		lines = lines[:last]
	}

	columns = splitLine(lines[0])
	rows = make([][]string, 0, len(lines)-1)
	for i, line := range lines[1:] {
		row := splitLine(line)
		if len(row) != len(columns) {
			return nil, nil, fmt.Errorf("line %d: %d values for %d columns", i+2, len(row), len(columns))
		}
		rows = append(rows, row)
	}
	return columns, rows, nil
}

func splitLine(line string) []string {
	line = strings.TrimSuffix(line, "\r")
	parts := strings.Split(line, "\t")
	for i, p := range parts {
		parts[i] = Unescape(p)
	}
	return parts
}

// Encode serializes a header row and data rows into the wire format,
// escaping each value.
func Encode(columns []string, rows [][]string) []byte {
	var b strings.Builder
	writeLine(&b, columns)
	for _, row := range rows {
		writeLine(&b, row)
	}
	return []byte(b.String())
}

func writeLine(b *strings.Builder, values []string) {
	for i, v := range values {
		if i > 0 {
			b.WriteByte('\t')
		}
		b.WriteString(Escape(v))
	}
	b.WriteByte('\n')
}

// Escape replaces delimiter and control characters with backslash sequences.
func Escape(s string) string {
	if !strings.ContainsAny(s, "\\\t\n\r\x00") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 4)
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\':
			b.WriteString(`\\`)
		case '\t':
			b.WriteString(`\t`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case 0:
			b.WriteString(`\0`)
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

// Unescape reverses Escape. Unrecognized escape sequences keep the escaped
// character as-is.
func Unescape(s string) string {
	if !strings.ContainsRune(s, '\\') {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i == len(s)-1 {
			b.WriteByte(s[i])
			continue
		}
		i++
		switch s[i] {
		case 't':
			b.WriteByte('\t')
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case '0':
			b.WriteByte(0)
		case 'b':
			b.WriteByte('\b')
		case 'f':
			b.WriteByte('\f')
		case '\\':
			b.WriteByte('\\')
		case '\'':
			b.WriteByte('\'')
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}
