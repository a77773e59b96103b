package main

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Row is one CSV record keyed by header column
type Row map[string]string

// Table is a CSV file loaded into memory
type Table struct {
	Header []string
	Rows   []Row
	// Unreadable counts records the CSV reader rejected
	Unreadable int
}

// readTable loads a CSV file. A missing file reads as an empty table.
// Records whose field count does not match the header are dropped.
// Records the CSV reader cannot parse are skipped and counted in
// Unreadable so the table is never written back without them.
func readTable(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &Table{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return &Table{}, nil
	}
	if err != nil {
		return &Table{Unreadable: 1}, nil
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}

	table := &Table{Header: header}
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			table.Unreadable++
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		if len(record) != len(header) {
			continue
		}
		row := make(Row, len(header))
		for i, col := range header {
			row[col] = record[i]
		}
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}

// writeTable replaces path with the table contents. Tables read with
// unreadable records are refused, since rewriting them would drop those lines.
func writeTable(path string, table *Table) error {
	if table.Unreadable > 0 {
		return fmt.Errorf("%s has %d unreadable records; repair it with `migrate drop-partial`", path, table.Unreadable)
	}
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(table.Header); err != nil {
		return fmt.Errorf("encoding header: %w", err)
	}
	for _, row := range table.Rows {
		record := make([]string, len(table.Header))
		for i, col := range table.Header {
			record[i] = row[col]
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("encoding row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	return writeFileAtomic(path, buf.Bytes())
}

// upsert replaces the last row whose key column equals row[key], drops
// earlier duplicates, or appends when no row matches
func (t *Table) upsert(key string, row Row) {
	last := -1
	for i, existing := range t.Rows {
		if existing[key] == row[key] {
			last = i
		}
	}
	if last < 0 {
		t.Rows = append(t.Rows, row)
		return
	}
	kept := t.Rows[:0]
	for i, existing := range t.Rows {
		switch {
		case i == last:
			kept = append(kept, row)
		case existing[key] == row[key]:
		default:
			kept = append(kept, existing)
		}
	}
	t.Rows = kept
}

// remove drops every row whose key column satisfies match
func (t *Table) remove(key string, match func(string) bool) int {
	kept := t.Rows[:0]
	removed := 0
	for _, row := range t.Rows {
		if match(row[key]) {
			removed++
			continue
		}
		kept = append(kept, row)
	}
	t.Rows = kept
	return removed
}

// ensureHeader makes sure every column in cols is present, appending unknown ones
func (t *Table) ensureHeader(cols []string) {
	have := make(map[string]bool, len(t.Header))
	for _, c := range t.Header {
		have[c] = true
	}
	for _, c := range cols {
		if !have[c] {
			t.Header = append(t.Header, c)
		}
	}
}

// writeFileAtomic writes data to a temporary file beside path and renames it
// into place, so readers never observe a partial file.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temporary file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temporary file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temporary file: %w", err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		return fmt.Errorf("setting permissions: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("renaming into %s: %w", path, err)
	}
	return nil
}

// readLines returns the non-empty lines of a text file, or nil when it is missing
func readLines(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var lines []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines, nil
}

func writeLines(path string, lines []string) error {
	return writeFileAtomic(path, []byte(strings.Join(lines, "\n")+"\n"))
}
