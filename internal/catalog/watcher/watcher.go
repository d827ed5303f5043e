// Package watcher keeps the mirror up to date by rebuilding tables whose CSV
// files change.
//
// The watcher observes the store directory and triggers one partial build per
// file event. There is no debouncing: an atomic rewrite by the store produces
// a single event on the table file, and the build it triggers reads the
// completed file.
//
// Editors that save in place are different: fsnotify reports a Write for
// every write call, not only when the file is closed, so a build can read a
// half-written CSV. That build records a failed read step and keeps the
// table's previous mirror copy; the event for the final write rebuilds it.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/kiplm/kiplm/internal/catalog/builder"
)

// ErrWatchSetup is returned by Run when the directory watch cannot be
// registered. It is fatal to the watcher only.
var ErrWatchSetup = errors.New("failed to set up directory watch")

// State is the lifecycle state of a Watcher.
type State int32

const (
	// StateIdle is the state before Run.
	StateIdle State = iota
	// StateWatching means the watcher is waiting for events.
	StateWatching
	// StateBuilding means a build triggered by an event is running.
	StateBuilding
	// StateStopped is terminal.
	StateStopped
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWatching:
		return "watching"
	case StateBuilding:
		return "building"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Builder is the build operation the watcher triggers.
type Builder interface {
	Build(ctx context.Context, changed builder.TableSet) (*builder.Report, error)
}

// Config holds configuration for the watcher.
type Config struct {
	// Logger for watch activity (default: no-op)
	Logger *zap.Logger

	// OnBuild, if set, is called after every triggered build
	OnBuild func(ev TableEvent, report *builder.Report, err error)
}

// Watcher rebuilds tables as their files change.
type Watcher struct {
	dir     string
	builder Builder
	config  Config
	logger  *zap.Logger
	state   atomic.Int32
	started atomic.Bool
}

// New creates a Watcher over the store directory dir.
func New(dir string, b Builder, cfg Config) (*Watcher, error) {
	if dir == "" {
		return nil, fmt.Errorf("dir cannot be empty")
	}
	if b == nil {
		return nil, fmt.Errorf("builder cannot be nil")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Watcher{
		dir:     dir,
		builder: b,
		config:  cfg,
		logger:  logger.Named("watcher"),
	}, nil
}

// State returns the current state.
func (w *Watcher) State() State {
	return State(w.state.Load())
}

// Run watches the directory until ctx is cancelled, building the affected
// table once per event. Build failures are logged and the loop continues.
//
// Returns an error wrapping ErrWatchSetup if the watch cannot be registered,
// and nil once ctx is cancelled. A Watcher runs at most once.
func (w *Watcher) Run(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return fmt.Errorf("watcher is %s", w.State())
	}
	defer w.state.Store(int32(StateStopped))

	fw, err := NewFileWatcher()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrWatchSetup, err)
	}
	defer fw.Stop()

	if err := fw.Start(w.dir); err != nil {
		return fmt.Errorf("%w: %w", ErrWatchSetup, err)
	}

	w.state.Store(int32(StateWatching))
	w.logger.Info("watching", zap.String("dir", w.dir))

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("stopping")
			return nil

		case ev, ok := <-fw.Events():
			if !ok {
				return nil
			}
			w.handle(ctx, ev)

		case err, ok := <-fw.Errors():
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", zap.Error(err))
		}
	}
}

// handle runs the build for a single event.
func (w *Watcher) handle(ctx context.Context, ev TableEvent) {
	w.state.Store(int32(StateBuilding))
	defer w.state.Store(int32(StateWatching))

	w.logger.Info("table changed", zap.String("table", ev.Table), zap.Stringer("op", ev.Op))

	report, err := w.builder.Build(ctx, builder.NewTableSet(ev.Table))
	if err != nil {
		w.logger.Error("build failed", zap.String("table", ev.Table), zap.Error(err))
	}

	if w.config.OnBuild != nil {
		w.config.OnBuild(ev, report, err)
	}
}
