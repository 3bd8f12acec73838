// Package table reads and writes the text-delimited metadata tables that make
// up an export. Every mutation goes through a write-temp-then-rename so a
// crash mid-write never corrupts the previous good state.
package table

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Row is one record of a table, keyed by column name.
type Row map[string]string

// Clone returns a copy of the row.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Table is an in-memory metadata table with a stable column order.
type Table struct {
	Header []string
	Rows   []Row
}

// New returns an empty table with the given header.
func New(header ...string) *Table {
	return &Table{Header: header}
}

// HasColumn reports whether the header contains name.
func (t *Table) HasColumn(name string) bool {
	for _, h := range t.Header {
		if h == name {
			return true
		}
	}
	return false
}

// EnsureColumn appends name to the header if not already present.
func (t *Table) EnsureColumn(name string) {
	if !t.HasColumn(name) {
		t.Header = append(t.Header, name)
	}
}

// Append adds a row, extending the header with any new keys in sorted order.
func (t *Table) Append(r Row) {
	extra := make([]string, 0)
	for k := range r {
		if !t.HasColumn(k) {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	t.Header = append(t.Header, extra...)
	t.Rows = append(t.Rows, r)
}

// Read loads a CSV table. A missing file is an error; use ReadOrEmpty when
// absence should be treated as an empty table.
func Read(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening table %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err == io.EOF {
		return &Table{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading header of %s: %w", path, err)
	}

	t := &Table{Header: header}
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading row of %s: %w", path, err)
		}
		row := make(Row, len(header))
		for i, col := range header {
			if i < len(rec) {
				row[col] = rec[i]
			} else {
				row[col] = ""
			}
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// ReadOrEmpty loads a CSV table, treating a missing file as an empty table.
func ReadOrEmpty(path string) (*Table, error) {
	t, err := Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Table{}, nil
		}
		return nil, err
	}
	return t, nil
}

// Write writes the table to path atomically (temp file + rename).
func Write(path string, t *Table) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", path, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp table for %s: %w", path, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	w := csv.NewWriter(tmp)
	if err := w.Write(t.Header); err != nil {
		tmp.Close()
		return fmt.Errorf("writing header of %s: %w", path, err)
	}
	rec := make([]string, len(t.Header))
	for _, row := range t.Rows {
		for i, col := range t.Header {
			rec[i] = row[col]
		}
		if err := w.Write(rec); err != nil {
			tmp.Close()
			return fmt.Errorf("writing row of %s: %w", path, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("flushing %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp table for %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("renaming temp table over %s: %w", path, err)
	}
	return nil
}

// CountRows counts data rows in a CSV, excluding the header. A missing file
// counts as zero rows.
func CountRows(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	count := -1 // discount the header
	for {
		_, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("counting rows of %s: %w", path, err)
		}
		count++
	}
	if count < 0 {
		count = 0
	}
	return count, nil
}

// pathColumnPriority is the fixed candidate list for locating the column that
// carries a local file path. Free-form "looks like a path" matching is
// deliberately avoided so detection stays deterministic.
var pathColumnPriority = []string{"path", "local_path", "file_path"}

// PathColumn returns the header column that carries the local file path. The
// fixed priority list is consulted first; failing that, the first header (in
// header order) containing "path" wins.
func PathColumn(header []string) (string, bool) {
	for _, want := range pathColumnPriority {
		for _, h := range header {
			if strings.EqualFold(h, want) {
				return h, true
			}
		}
	}
	for _, h := range header {
		if strings.Contains(strings.ToLower(h), "path") {
			return h, true
		}
	}
	return "", false
}
