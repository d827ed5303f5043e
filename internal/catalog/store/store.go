// Package store provides the flat-file record store of the parts catalog.
//
// Each part category is one CSV file <dir>/<CODE>.csv whose header row is the
// table schema and whose first column is always IPN. The store is the single
// source of truth: the SQLite mirror and the KiCad descriptor are derived
// from it and rebuilt whenever a file changes.
//
// Mutations rewrite the whole file atomically (temp file + rename), so every
// successful Create or Update produces exactly one replace of the CSV file.
// That replace is the event the change watcher reacts to.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Ext is the file extension of table files.
const Ext = ".csv"

// Store reads and writes the CSV tables in a directory.
//
// Store is safe for concurrent use. Create and Update hold an exclusive lock
// across the read-check-rewrite cycle so uniqueness checks cannot race within
// the process. Only one process may write to a directory.
type Store struct {
	dir string
	mu  sync.RWMutex
}

// New creates a Store over dir. The directory is not required to exist yet;
// operations on a missing directory fail when they touch the filesystem.
func New(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the directory holding the table files.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the CSV path of a table.
func (s *Store) Path(table string) string {
	return filepath.Join(s.dir, table+Ext)
}

// IsTableFile reports whether a file name is a table file: a non-hidden
// regular name ending in .csv.
func IsTableFile(name string) bool {
	base := filepath.Base(name)
	return strings.HasSuffix(base, Ext) && !strings.HasPrefix(base, ".") && len(base) > len(Ext)
}

// TableFromPath returns the table name for a table file path.
func TableFromPath(path string) string {
	return tableName(path)
}

// ListTables returns the names of all tables, sorted.
func (s *Store) ListTables() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog directory %s: %w", s.dir, err)
	}

	var tables []string
	for _, entry := range entries {
		if entry.IsDir() || !IsTableFile(entry.Name()) {
			continue
		}
		tables = append(tables, tableName(entry.Name()))
	}
	sort.Strings(tables)

	return tables, nil
}

// Read returns the current contents of a table.
// Returns ErrTableNotFound if the table has no CSV file.
func (s *Store) Read(table string) (*Table, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return ReadTableFile(s.Path(table))
}

// ReadAll reads every table. Tables that fail to read are reported in the
// returned error map instead of aborting the listing.
//
// SQLite table names are case-insensitive, so a table whose name differs only
// in case from an earlier one in sorted order (res.csv after RES.csv) is
// reported as ErrMalformedTable rather than read.
func (s *Store) ReadAll() ([]*Table, map[string]error, error) {
	names, err := s.ListTables()
	if err != nil {
		return nil, nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	tables := make([]*Table, 0, len(names))
	failed := make(map[string]error)
	seen := make(map[string]string, len(names))
	for _, name := range names {
		folded := strings.ToUpper(name)
		if first, ok := seen[folded]; ok {
			failed[name] = fmt.Errorf("%w: %s: name differs only in case from %s", ErrMalformedTable, name, first)
			continue
		}
		seen[folded] = name

		t, err := ReadTableFile(s.Path(name))
		if err != nil {
			failed[name] = err
			continue
		}
		tables = append(tables, t)
	}

	return tables, failed, nil
}

// FindByIPN returns the record with the given IPN.
// Returns ErrNotFound if the table has no such record.
func (s *Store) FindByIPN(table, ipn string) (*Record, error) {
	t, err := s.Read(table)
	if err != nil {
		return nil, err
	}

	i := t.indexOf(ipn)
	if i < 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, ipn)
	}
	return t.Record(i), nil
}

// FindByField returns the first record of table whose field equals value.
// This is a linear scan. Returns ErrNotFound if the table has no such column
// or no row matches.
func (s *Store) FindByField(table, field, value string) (*Record, error) {
	t, err := s.Read(table)
	if err != nil {
		return nil, err
	}

	return findInTable(t, field, value)
}

// FindByFieldAll searches every table, in sorted order, for the first record
// whose field equals value. Tables without the column are skipped.
func (s *Store) FindByFieldAll(field, value string) (*Record, error) {
	tables, _, err := s.ReadAll()
	if err != nil {
		return nil, err
	}

	for _, t := range tables {
		if rec, err := findInTable(t, field, value); err == nil {
			return rec, nil
		}
	}
	return nil, fmt.Errorf("%w: no part with %s %s", ErrNotFound, field, value)
}

func findInTable(t *Table, field, value string) (*Record, error) {
	col := t.ColumnIndex(field)
	if col < 0 {
		return nil, fmt.Errorf("%w: table %s has no column %s", ErrNotFound, t.Name, field)
	}
	for i, row := range t.Rows {
		if row[col] == value {
			return t.Record(i), nil
		}
	}
	return nil, fmt.Errorf("%w: no part with %s %s in %s", ErrNotFound, field, value, t.Name)
}

// Create appends a new record to a table and rewrites the file atomically.
//
// Fields missing from fields default to the empty string; keys that are not
// columns of the table, and the IPN key itself, are ignored.
//
// Returns ErrInvalidIdentifier if ipn is malformed or belongs to another
// table, ErrTableNotFound if the table does not exist, and
// ErrDuplicateIdentifier if ipn is already present.
func (s *Store) Create(table, ipn string, fields map[string]string) (*Record, error) {
	if err := ValidateIPN(table, ipn); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.Path(table)
	t, err := ReadTableFile(path)
	if err != nil {
		return nil, err
	}

	if t.indexOf(ipn) >= 0 {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateIdentifier, ipn)
	}

	row := make([]string, len(t.Columns))
	for i, col := range t.Columns {
		row[i] = fields[col]
	}
	row[0] = ipn
	t.Rows = append(t.Rows, row)

	if err := WriteTableFile(path, t); err != nil {
		return nil, err
	}

	return t.Record(len(t.Rows) - 1), nil
}

// Update changes some fields of an existing record and rewrites the file
// atomically.
//
// Only keys of partial that are columns of the table are applied; unknown
// keys are ignored. The IPN column cannot be changed.
//
// Returns ErrNotFound if the record does not exist. If the table itself does
// not exist the error wraps both ErrNotFound and ErrTableNotFound.
func (s *Store) Update(table, ipn string, partial map[string]string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.Path(table)
	t, err := ReadTableFile(path)
	if err != nil {
		if IsTableNotFound(err) {
			return nil, fmt.Errorf("%w: %s: %w", ErrNotFound, ipn, err)
		}
		return nil, err
	}

	i := t.indexOf(ipn)
	if i < 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, ipn)
	}

	row := t.Rows[i]
	for col, value := range partial {
		j := t.ColumnIndex(col)
		if j <= 0 {
			// Unknown column, or the immutable IPN column
			continue
		}
		row[j] = value
	}

	if err := WriteTableFile(path, t); err != nil {
		return nil, err
	}

	return t.Record(i), nil
}
