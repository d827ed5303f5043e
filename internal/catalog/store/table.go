package store

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Table is the in-memory form of one CSV file.
// Columns is the header row; every row has exactly len(Columns) values and
// the first value of a row is its IPN.
type Table struct {
	Name    string
	Columns []string
	Rows    [][]string
}

// Len returns the number of records in the table.
func (t *Table) Len() int {
	return len(t.Rows)
}

// ColumnIndex returns the position of a column, or -1 if the table has no
// such column.
func (t *Table) ColumnIndex(name string) int {
	for i, col := range t.Columns {
		if col == name {
			return i
		}
	}
	return -1
}

// Record returns the i-th row as a Record.
func (t *Table) Record(i int) *Record {
	values := make([]string, len(t.Rows[i]))
	copy(values, t.Rows[i])
	return &Record{Columns: t.Columns, Values: values}
}

// IPNs returns the IPN of every row in file order.
func (t *Table) IPNs() []string {
	ipns := make([]string, 0, len(t.Rows))
	for _, row := range t.Rows {
		ipns = append(ipns, row[0])
	}
	return ipns
}

// indexOf returns the row index holding ipn, or -1.
func (t *Table) indexOf(ipn string) int {
	for i, row := range t.Rows {
		if row[0] == ipn {
			return i
		}
	}
	return -1
}

// Record is one row of a table together with the table's column names.
type Record struct {
	Columns []string
	Values  []string
}

// IPN returns the record's internal part number.
func (r *Record) IPN() string {
	if len(r.Values) == 0 {
		return ""
	}
	return r.Values[0]
}

// Get returns the value of a column and whether the column exists.
func (r *Record) Get(field string) (string, bool) {
	for i, col := range r.Columns {
		if col == field {
			return r.Values[i], true
		}
	}
	return "", false
}

// Map returns the record as a column -> value map.
func (r *Record) Map() map[string]string {
	m := make(map[string]string, len(r.Columns))
	for i, col := range r.Columns {
		m[col] = r.Values[i]
	}
	return m
}

// MarshalJSON encodes the record as a JSON object with keys in column order.
func (r *Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, col := range r.Columns {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(col)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(r.Values[i])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// ReadTableFile reads and parses a CSV table from the given path.
// The table name is the file name without its .csv extension.
func ReadTableFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrTableNotFound, tableName(path))
		}
		return nil, fmt.Errorf("failed to open table file %s: %w", path, err)
	}
	defer f.Close()

	return parseTable(tableName(path), f)
}

func parseTable(name string, r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: %s has no header row", ErrMalformedTable, name)
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedTable, name, err)
	}
	header[0] = strings.TrimPrefix(header[0], "\ufeff")
	if header[0] != KeyColumn {
		return nil, fmt.Errorf("%w: %s: first column is %q, want %q", ErrMalformedTable, name, header[0], KeyColumn)
	}

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedTable, name, err)
	}
	if rows == nil {
		rows = [][]string{}
	}

	return &Table{Name: name, Columns: header, Rows: rows}, nil
}

// WriteTableFile writes a table to path atomically: the CSV is written to a
// hidden temporary file in the same directory, synced, then renamed over path.
// Readers observe either the old or the new file, never a partial one.
func WriteTableFile(path string, t *Table) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", path, err)
	}
	tmpPath := tmp.Name()

	// Remove the temp file on any failure below
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	w := csv.NewWriter(tmp)
	if err := w.Write(t.Columns); err != nil {
		return fmt.Errorf("failed to write header of %s: %w", path, err)
	}
	if err := w.WriteAll(t.Rows); err != nil {
		return fmt.Errorf("failed to write rows of %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", tmpPath, err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		return fmt.Errorf("failed to chmod %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}

	committed = true
	return nil
}

// tableName returns the table name for a CSV path: its base name without .csv.
func tableName(path string) string {
	base := filepath.Base(path)
	return base[:len(base)-len(filepath.Ext(base))]
}
