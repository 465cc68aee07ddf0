// Package export turns records into the ordered headers and row mappings
// handed to the CSV download, and serializes them.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/Sternrassler/indexer-dashboard/pkg/record"
)

// Column maps one record selector to one output column.
type Column struct {
	Header   string
	Selector record.Selector

	// Format renders the raw value (optional). Without it the value is
	// written as plain text and missing values as an empty cell.
	Format func(any) string
}

// Table is the export payload: column headers in output order and one
// header -> cell mapping per record.
type Table struct {
	Headers []string            `json:"headers"`
	Rows    []map[string]string `json:"rows"`
}

// Build renders records through columns.
func Build(records []record.Record, columns []Column) (*Table, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("at least one column is required")
	}

	headers := make([]string, 0, len(columns))
	seen := make(map[string]bool, len(columns))
	for _, col := range columns {
		if col.Header == "" {
			return nil, fmt.Errorf("column header is required (selector %q)", col.Selector)
		}
		if col.Selector.IsZero() {
			return nil, fmt.Errorf("column %q has no field", col.Header)
		}
		if seen[col.Header] {
			return nil, fmt.Errorf("duplicate column header %q", col.Header)
		}
		seen[col.Header] = true
		headers = append(headers, col.Header)
	}

	rows := make([]map[string]string, 0, len(records))
	for _, r := range records {
		row := make(map[string]string, len(columns))
		for _, col := range columns {
			row[col.Header] = cell(r, col)
		}
		rows = append(rows, row)
	}

	return &Table{Headers: headers, Rows: rows}, nil
}

func cell(r record.Record, col Column) string {
	v, ok := col.Selector.Value(r)
	if col.Format != nil {
		if !ok {
			v = nil
		}
		return col.Format(v)
	}
	s, _ := record.Text(v)
	return s
}

// WriteCSV writes the header line followed by every row.
func (t *Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Headers); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	line := make([]string, len(t.Headers))
	for i, row := range t.Rows {
		for j, h := range t.Headers {
			line[j] = row[h]
		}
		if err := cw.Write(line); err != nil {
			return fmt.Errorf("write csv row %d: %w", i, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// FileName returns the download name for a source export.
func FileName(source string, now time.Time) string {
	return fmt.Sprintf("%s-%s.csv", source, now.UTC().Format("20060102-150405"))
}

// DefaultColumns derives columns from the first record's top-level keys in
// sorted order, for sources without a declared column set.
func DefaultColumns(records []record.Record) []Column {
	if len(records) == 0 {
		return nil
	}
	keys := make([]string, 0, len(records[0]))
	for k := range records[0] {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	cols := make([]Column, 0, len(keys))
	for _, k := range keys {
		cols = append(cols, Column{Header: k, Selector: record.Field(k)})
	}
	return cols
}
