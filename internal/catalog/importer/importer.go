// Package importer bulk-creates catalog records from JSONL or YAML files.
//
// Every record goes through the same validation as a POST to the API: the
// IPN must be well formed, its category table must exist and the IPN must not
// be taken. Records that fail are collected in the result; they never stop
// the rest of the import.
package importer

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/kiplm/kiplm/internal/catalog/store"
)

// ErrUnsupportedFormat is returned for files that are neither JSONL nor YAML.
var ErrUnsupportedFormat = errors.New("unsupported import format")

// Entry is one record to import.
type Entry struct {
	// Line is the 1-based line (JSONL) or document index (YAML) of the entry
	Line   int
	IPN    string
	Fields map[string]string
}

// Options contains configuration for an import
type Options struct {
	Path   string // Input file path (.jsonl, .ndjson, .yaml, .yml)
	DryRun bool   // Validate without writing
	Logger *zap.Logger
}

// Failure describes a record that was not imported.
type Failure struct {
	Line int
	IPN  string
	Err  error
}

// Result contains statistics about the import
type Result struct {
	Total    int
	Created  int
	Failures []Failure
}

// ReadFile parses path according to its extension.
func ReadFile(path string) ([]Entry, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jsonl", ".ndjson":
		return ReadJSONL(path)
	case ".yaml", ".yml":
		return ReadYAML(path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}

// ReadJSONL reads one JSON object per line. Blank lines are skipped.
func ReadJSONL(path string) ([]Entry, error) {
	// #nosec G304 - controlled path from CLI
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open JSONL file: %w", err)
	}
	defer file.Close()

	var entries []Entry
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !gjson.Valid(line) {
			return nil, fmt.Errorf("invalid JSON at line %d", lineNum)
		}
		obj := gjson.Parse(line)
		if !obj.IsObject() {
			return nil, fmt.Errorf("line %d is not a JSON object", lineNum)
		}

		fields := make(map[string]string)
		obj.ForEach(func(key, value gjson.Result) bool {
			fields[key.String()] = jsonValue(value)
			return true
		})
		entries = append(entries, newEntry(lineNum, fields))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read JSONL file: %w", err)
	}

	return entries, nil
}

// ReadYAML reads a YAML sequence of mappings. Values keep their source text:
// 0603 stays 0603 and 1.50 stays 1.50. Null values become empty strings.
func ReadYAML(path string) ([]Entry, error) {
	// #nosec G304 - controlled path from CLI
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read YAML file: %w", err)
	}

	var docs []map[string]yaml.Node
	if err := yaml.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("invalid YAML in %s: %w", path, err)
	}

	entries := make([]Entry, 0, len(docs))
	for i, doc := range docs {
		fields := make(map[string]string, len(doc))
		for k, node := range doc {
			v, err := yamlValue(&node)
			if err != nil {
				return nil, fmt.Errorf("entry %d, field %s: %w", i+1, k, err)
			}
			fields[k] = v
		}
		entries = append(entries, newEntry(i+1, fields))
	}
	return entries, nil
}

func newEntry(line int, fields map[string]string) Entry {
	return Entry{Line: line, IPN: fields[store.KeyColumn], Fields: fields}
}

func jsonValue(v gjson.Result) string {
	switch v.Type {
	case gjson.Null:
		return ""
	case gjson.String:
		return v.Str
	default:
		return v.Raw
	}
}

func yamlValue(n *yaml.Node) (string, error) {
	if n.Kind == yaml.AliasNode && n.Alias != nil {
		n = n.Alias
	}
	if n.Kind != yaml.ScalarNode {
		return "", fmt.Errorf("line %d: value must be a scalar", n.Line)
	}
	if n.ShortTag() == "!!null" {
		return "", nil
	}
	return n.Value, nil
}

// Import reads opts.Path and creates every record in st.
//
// Returns an error only if the file cannot be read or parsed, or ctx is
// cancelled; per-record problems are reported in Result.Failures.
func Import(ctx context.Context, st *store.Store, opts Options) (*Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	entries, err := ReadFile(opts.Path)
	if err != nil {
		return nil, err
	}

	result := &Result{Total: len(entries)}
	seen := make(map[string]bool)

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		var err error
		if opts.DryRun {
			err = check(st, e, seen)
		} else {
			_, err = st.Create(store.TableForIPN(e.IPN), e.IPN, e.Fields)
		}
		if err != nil {
			logger.Warn("record not imported", zap.Int("line", e.Line), zap.String("ipn", e.IPN), zap.Error(err))
			result.Failures = append(result.Failures, Failure{Line: e.Line, IPN: e.IPN, Err: err})
			continue
		}

		seen[e.IPN] = true
		result.Created++
	}

	logger.Info("import finished",
		zap.String("path", opts.Path),
		zap.Bool("dry_run", opts.DryRun),
		zap.Int("created", result.Created),
		zap.Int("failed", len(result.Failures)))

	return result, nil
}

// check validates an entry as Create would, without writing.
func check(st *store.Store, e Entry, seen map[string]bool) error {
	table := store.TableForIPN(e.IPN)
	if err := store.ValidateIPN(table, e.IPN); err != nil {
		return err
	}
	if seen[e.IPN] {
		return fmt.Errorf("%w: %s", store.ErrDuplicateIdentifier, e.IPN)
	}

	_, err := st.FindByIPN(table, e.IPN)
	switch {
	case err == nil:
		return fmt.Errorf("%w: %s", store.ErrDuplicateIdentifier, e.IPN)
	case errors.Is(err, store.ErrNotFound):
		return nil
	default:
		return err
	}
}
