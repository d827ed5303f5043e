// Package descriptor generates the KiCad database library descriptor
// (.kicad_dbl) for the SQLite mirror.
//
// The descriptor tells KiCad how to reach the mirror over ODBC and how each
// table's columns map to symbol fields. It always reflects the full set of
// tables, so it is regenerated in full on every build.
package descriptor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const (
	// KeyColumn is the column KiCad uses to identify a part.
	KeyColumn = "IPN"
	// SymbolsColumn holds the KiCad symbol reference of a part.
	SymbolsColumn = "Symbol"
	// FootprintsColumn holds the KiCad footprint reference of a part.
	FootprintsColumn = "Footprint"

	defaultName    = "KiPLM components database"
	timeoutSeconds = 2
)

// Meta is the descriptor format header.
type Meta struct {
	Version int `json:"version"`
}

// Source describes how KiCad connects to the mirror.
type Source struct {
	Type             string `json:"type"`
	DSN              string `json:"dsn"`
	Username         string `json:"username"`
	Password         string `json:"password"`
	TimeoutSeconds   int    `json:"timeout_seconds"`
	ConnectionString string `json:"connection_string"`
}

// Field maps one table column to a KiCad symbol field.
type Field struct {
	Column           string `json:"column"`
	Name             string `json:"name"`
	VisibleOnAdd     bool   `json:"visible_on_add"`
	VisibleInChooser bool   `json:"visible_in_chooser"`
	ShowName         bool   `json:"show_name"`
}

// Library is one KiCad library backed by one mirror table.
type Library struct {
	Name       string  `json:"name"`
	Table      string  `json:"table"`
	Key        string  `json:"key"`
	Symbols    string  `json:"symbols"`
	Footprints string  `json:"footprints"`
	Fields     []Field `json:"fields"`
}

// Document is the full .kicad_dbl content.
type Document struct {
	Meta        Meta      `json:"meta"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Source      Source    `json:"source"`
	Libraries   []Library `json:"libraries"`
}

// TableSchema is the column set of one table.
type TableSchema struct {
	Name    string
	Columns []string
}

// Options configures descriptor generation.
type Options struct {
	// Name and Description label the library in KiCad (default: "KiPLM components database")
	Name        string
	Description string

	// MirrorPath is the SQLite file path
	MirrorPath string

	// DescriptorPath is where the .kicad_dbl is written; the connection
	// string refers to the mirror relative to this file's directory
	DescriptorPath string
}

// Generate builds the descriptor document for the given tables. Libraries
// appear in the order of tables.
func Generate(opts Options, tables []TableSchema) (*Document, error) {
	rel, err := relativeMirrorPath(opts.DescriptorPath, opts.MirrorPath)
	if err != nil {
		return nil, err
	}

	name := opts.Name
	if name == "" {
		name = defaultName
	}
	description := opts.Description
	if description == "" {
		description = name
	}

	libraries := make([]Library, 0, len(tables))
	for _, t := range tables {
		fields := make([]Field, 0, len(t.Columns))
		for _, col := range t.Columns {
			fields = append(fields, Field{
				Column:           col,
				Name:             col,
				VisibleOnAdd:     false,
				VisibleInChooser: true,
				ShowName:         false,
			})
		}
		libraries = append(libraries, Library{
			Name:       t.Name,
			Table:      t.Name,
			Key:        KeyColumn,
			Symbols:    SymbolsColumn,
			Footprints: FootprintsColumn,
			Fields:     fields,
		})
	}

	return &Document{
		Meta:        Meta{Version: 0},
		Name:        name,
		Description: description,
		Source: Source{
			Type:             "odbc",
			TimeoutSeconds:   timeoutSeconds,
			ConnectionString: "DRIVER={SQLite3};DATABASE=${CWD}/" + rel,
		},
		Libraries: libraries,
	}, nil
}

// Marshal encodes the document as indented JSON with a trailing newline.
func (d *Document) Marshal() ([]byte, error) {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal descriptor: %w", err)
	}
	return append(data, '\n'), nil
}

// Library returns the library for a table, or nil.
func (d *Document) Library(table string) *Library {
	for i := range d.Libraries {
		if d.Libraries[i].Table == table {
			return &d.Libraries[i]
		}
	}
	return nil
}

// Write encodes the document and atomically replaces path with it.
func Write(path string, doc *Document) error {
	data, err := doc.Marshal()
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create descriptor directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", path, err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to close %s: %w", tmpPath, err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to chmod %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}

	return nil
}

// Read parses a descriptor file.
func Read(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read descriptor %s: %w", path, err)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse descriptor %s: %w", path, err)
	}
	return &doc, nil
}

// relativeMirrorPath returns the mirror path relative to the descriptor's
// directory, slash separated, walking up with ".." when needed.
func relativeMirrorPath(descriptorPath, mirrorPath string) (string, error) {
	base, err := filepath.Abs(filepath.Dir(descriptorPath))
	if err != nil {
		return "", fmt.Errorf("failed to resolve descriptor directory: %w", err)
	}
	target, err := filepath.Abs(mirrorPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve mirror path: %w", err)
	}
	rel, err := filepath.Rel(base, target)
	if err != nil {
		return "", fmt.Errorf("mirror %s is not reachable from %s: %w", mirrorPath, base, err)
	}
	return filepath.ToSlash(rel), nil
}
