// Package mirror provides the SQLite mirror of the parts catalog.
//
// The mirror is a pure derived cache of the CSV record store: one SQLite table
// per CSV table, every column TEXT, rows copied verbatim in file order. It is
// never written by API clients; KiCad reads it through ODBC as described by
// the .kicad_dbl descriptor.
//
// The database runs in embedded mode (ncruces/go-sqlite3) with WAL so KiCad can
// keep reading while a table is being replaced. Each table replacement is a
// single transaction: readers see the old table or the new one, never a mix.
package mirror

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// DB wraps the SQLite connection holding the mirror tables.
type DB struct {
	conn *sql.DB
	path string
}

// Open opens (creating if needed) the mirror database at path.
//
// The caller MUST call Close() when done.
//
// Example:
//
//	m, err := mirror.Open("kicad_libs/parts.sqlite")
//	if err != nil {
//	    return err
//	}
//	defer m.Close()
func Open(path string) (*DB, error) {
	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create mirror directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open mirror: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping mirror: %w", err)
	}

	// The builder is the only writer; one connection keeps DDL and DML ordered
	conn.SetMaxOpenConns(1)

	db := &DB{
		conn: conn,
		path: path,
	}

	if _, err := db.conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return db, nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// Close checkpoints the WAL into the main file and closes the connection.
// The checkpoint matters: ODBC readers may not understand WAL files.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}

	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close mirror: %w", err)
	}

	db.conn = nil
	return nil
}

// Checkpoint flushes the WAL into the main database file.
func (db *DB) Checkpoint(ctx context.Context) error {
	if _, err := db.conn.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("failed to checkpoint WAL: %w", err)
	}
	return nil
}

// ListTables returns the names of all user tables, sorted.
func (db *DB) ListTables(ctx context.Context) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list mirror tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tables: %w", err)
	}

	return tables, nil
}

// DropTable removes a table. Returns nil if the table does not exist.
func (db *DB) DropTable(ctx context.Context, table string) error {
	if _, err := db.conn.ExecContext(ctx, "DROP TABLE IF EXISTS "+quoteIdent(table)); err != nil {
		return fmt.Errorf("failed to drop table %s: %w", table, err)
	}
	return nil
}

// ReplaceTable drops table if it exists, recreates it with the given columns
// and inserts all rows, in one transaction. Running it twice with the same
// input leaves the same table contents.
func (db *DB) ReplaceTable(ctx context.Context, table string, columns []string, rows [][]string) error {
	if len(columns) == 0 {
		return fmt.Errorf("table %s has no columns", table)
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+quoteIdent(table)); err != nil {
		return fmt.Errorf("failed to drop table %s: %w", table, err)
	}

	defs := make([]string, len(columns))
	for i, col := range columns {
		defs[i] = quoteIdent(col) + " TEXT"
	}
	create := fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(table), strings.Join(defs, ", "))
	if _, err := tx.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("failed to create table %s: %w", table, err)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s VALUES (%s)", quoteIdent(table), placeholders))
	if err != nil {
		return fmt.Errorf("failed to prepare insert into %s: %w", table, err)
	}
	defer stmt.Close()

	args := make([]any, len(columns))
	for i, row := range rows {
		if len(row) != len(columns) {
			return fmt.Errorf("row %d of %s has %d values, want %d", i+1, table, len(row), len(columns))
		}
		for j, v := range row {
			args[j] = v
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("failed to insert row %d into %s: %w", i+1, table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit table %s: %w", table, err)
	}

	return nil
}

// Columns returns the column names of a table in declaration order.
func (db *DB) Columns(ctx context.Context, table string) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx, "SELECT * FROM "+quoteIdent(table)+" LIMIT 0")
	if err != nil {
		return nil, fmt.Errorf("failed to query columns of %s: %w", table, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns of %s: %w", table, err)
	}
	return cols, nil
}

// Rows returns all rows of a table in insertion order.
func (db *DB) Rows(ctx context.Context, table string) ([][]string, error) {
	rows, err := db.conn.QueryContext(ctx, "SELECT * FROM "+quoteIdent(table)+" ORDER BY rowid")
	if err != nil {
		return nil, fmt.Errorf("failed to query rows of %s: %w", table, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns of %s: %w", table, err)
	}

	var result [][]string
	for rows.Next() {
		values := make([]sql.NullString, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row of %s: %w", table, err)
		}
		row := make([]string, len(cols))
		for i, v := range values {
			row[i] = v.String
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows of %s: %w", table, err)
	}

	return result, nil
}

// RowCount returns the number of rows in a table.
func (db *DB) RowCount(ctx context.Context, table string) (int, error) {
	var count int
	err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+quoteIdent(table)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count rows of %s: %w", table, err)
	}
	return count, nil
}

// Digest returns a hex SHA-256 over every table's name, columns and rows in
// a canonical order. Two mirrors with equal digests hold the same data.
func (db *DB) Digest(ctx context.Context) (string, error) {
	tables, err := db.ListTables(ctx)
	if err != nil {
		return "", err
	}

	h := sha256.New()
	for _, table := range tables {
		cols, err := db.Columns(ctx, table)
		if err != nil {
			return "", err
		}
		rows, err := db.Rows(ctx, table)
		if err != nil {
			return "", err
		}

		fmt.Fprintf(h, "table %q\n", table)
		fmt.Fprintf(h, "columns %q\n", cols)
		for _, row := range rows {
			fmt.Fprintf(h, "row %q\n", row)
		}
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// quoteIdent quotes an SQL identifier, doubling embedded quotes.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
