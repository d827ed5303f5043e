package builder

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kiplm/kiplm/internal/catalog/descriptor"
	"github.com/kiplm/kiplm/internal/catalog/mirror"
	"github.com/kiplm/kiplm/internal/catalog/store"
)

// Config configures a Builder.
type Config struct {
	// DescriptorPath is where the .kicad_dbl file is written (required)
	DescriptorPath string

	// Name and Description label the KiCad library (default: "KiPLM components database")
	Name        string
	Description string

	// Logger for build progress (default: no-op)
	Logger *zap.Logger

	// Notify, if set, receives every completed report, failed or not
	Notify func(*Report)
}

// Builder rebuilds the mirror and descriptor from the record store.
type Builder struct {
	store  *store.Store
	mirror *mirror.DB
	config Config
	logger *zap.Logger

	mu sync.Mutex
}

// New creates a Builder. The mirror must already be open.
func New(st *store.Store, m *mirror.DB, cfg Config) (*Builder, error) {
	if st == nil {
		return nil, errors.New("store is required")
	}
	if m == nil {
		return nil, errors.New("mirror is required")
	}
	if cfg.DescriptorPath == "" {
		return nil, errors.New("descriptor path is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Builder{
		store:  st,
		mirror: m,
		config: cfg,
		logger: logger.Named("builder"),
	}, nil
}

// Build brings the mirror and descriptor in line with the store. A nil
// changed set rebuilds every table; otherwise only the named tables are
// replaced, while dropped tables and the descriptor are always handled.
//
// The returned report is non-nil whenever the store could be listed. If any
// step failed the error is a *PartialFailureError. Other errors mean the build
// did not run at all.
//
// In-flight table replacements are not interrupted by ctx cancellation.
func (b *Builder) Build(ctx context.Context, changed TableSet) (*Report, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	report := &Report{
		Full:    changed == nil,
		Started: time.Now(),
	}
	// A table is written as a whole or not at all
	ctx = context.WithoutCancel(ctx)

	tables, unreadable, err := b.store.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}

	present := NewTableSet()
	for _, t := range tables {
		present.Add(t.Name)
		report.Tables = append(report.Tables, t.Name)
	}
	for _, name := range NewTableSet(keys(unreadable)...).Names() {
		present.Add(name)
		b.logger.Warn("table unreadable, mirror left as is",
			zap.String("table", name), zap.Error(unreadable[name]))
		report.Steps = append(report.Steps, Step{Kind: StepRead, Target: name, Err: unreadable[name]})
	}

	mirrored, err := b.mirror.ListTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list mirror tables: %w", err)
	}
	for _, name := range mirrored {
		if present.Has(name) {
			continue
		}
		step := Step{Kind: StepDropped, Target: name}
		if err := b.mirror.DropTable(ctx, name); err != nil {
			step.Err = err
			b.logger.Error("failed to drop table", zap.String("table", name), zap.Error(err))
		} else {
			b.logger.Info("dropped table", zap.String("table", name))
		}
		report.Steps = append(report.Steps, step)
	}

	for _, t := range tables {
		if changed != nil && !changed.Has(t.Name) {
			continue
		}
		step := Step{Kind: StepUpdated, Target: t.Name, Rows: t.Len()}
		if err := b.mirror.ReplaceTable(ctx, t.Name, t.Columns, t.Rows); err != nil {
			step.Err = err
			b.logger.Error("failed to update table", zap.String("table", t.Name), zap.Error(err))
		} else {
			b.logger.Info("updated table", zap.String("table", t.Name), zap.Int("rows", t.Len()))
		}
		report.Steps = append(report.Steps, step)
	}

	report.Steps = append(report.Steps, b.writeDescriptor(tables))

	if err := b.mirror.Checkpoint(ctx); err != nil {
		b.logger.Warn("checkpoint failed", zap.Error(err))
	}

	report.Duration = time.Since(report.Started)
	b.logger.Debug("build finished",
		zap.Bool("full", report.Full),
		zap.Int("steps", len(report.Steps)),
		zap.Duration("duration", report.Duration))

	if b.config.Notify != nil {
		b.config.Notify(report)
	}

	if failed := report.Failed(); len(failed) > 0 {
		return report, &PartialFailureError{Failed: failed}
	}
	return report, nil
}

// writeDescriptor regenerates the descriptor from the readable tables.
func (b *Builder) writeDescriptor(tables []*store.Table) Step {
	step := Step{Kind: StepDescriptor, Target: filepath.Base(b.config.DescriptorPath)}

	schemas := make([]descriptor.TableSchema, len(tables))
	for i, t := range tables {
		schemas[i] = descriptor.TableSchema{Name: t.Name, Columns: t.Columns}
	}

	doc, err := descriptor.Generate(descriptor.Options{
		Name:           b.config.Name,
		Description:    b.config.Description,
		MirrorPath:     b.mirror.Path(),
		DescriptorPath: b.config.DescriptorPath,
	}, schemas)
	if err == nil {
		err = descriptor.Write(b.config.DescriptorPath, doc)
	}
	if err != nil {
		step.Err = err
		b.logger.Error("failed to write descriptor", zap.String("path", b.config.DescriptorPath), zap.Error(err))
		return step
	}

	b.logger.Info("wrote descriptor", zap.String("path", b.config.DescriptorPath), zap.Int("libraries", len(schemas)))
	return step
}

func keys(m map[string]error) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
