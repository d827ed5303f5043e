package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/goleak"

	"github.com/kiplm/kiplm/internal/catalog/builder"
	"github.com/kiplm/kiplm/internal/catalog/store"
)

// fakeBuilder records the table sets it is asked to build.
type fakeBuilder struct {
	mu     sync.Mutex
	calls  []builder.TableSet
	err    error
	builds chan builder.TableSet
}

func newFakeBuilder() *fakeBuilder {
	return &fakeBuilder{builds: make(chan builder.TableSet, 100)}
}

func (f *fakeBuilder) Build(ctx context.Context, changed builder.TableSet) (*builder.Report, error) {
	f.mu.Lock()
	f.calls = append(f.calls, changed)
	err := f.err
	f.mu.Unlock()

	f.builds <- changed
	return &builder.Report{}, err
}

// waitForBuild waits for the next build of table.
func waitForBuild(t *testing.T, f *fakeBuilder, table string) {
	t.Helper()

	timeout := time.After(5 * time.Second)
	for {
		select {
		case changed := <-f.builds:
			if changed.Has(table) {
				if len(changed) != 1 {
					t.Errorf("expected a single-table build, got %v", changed.Names())
				}
				return
			}
		case <-timeout:
			t.Fatalf("timed out waiting for build of %s", table)
		}
	}
}

// startWatcher runs w in the background and returns a stop function that
// cancels it and waits for Run to return.
func startWatcher(t *testing.T, w *Watcher) func() error {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for w.State() != StateWatching {
		if time.Now().After(deadline) {
			cancel()
			t.Fatalf("watcher did not start, state %s", w.State())
		}
		time.Sleep(5 * time.Millisecond)
	}

	return func() error {
		cancel()
		select {
		case err := <-done:
			return err
		case <-time.After(5 * time.Second):
			t.Fatal("watcher did not stop")
			return nil
		}
	}
}

// TestRun_BuildsOnStoreWrite verifies an atomic rewrite by the store
// triggers a build of exactly that table.
func TestRun_BuildsOnStoreWrite(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "RES.csv"), []byte("IPN,MPN\n"), 0644); err != nil {
		t.Fatalf("failed to write RES.csv: %v", err)
	}

	fb := newFakeBuilder()
	w, err := New(dir, fb, Config{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	stop := startWatcher(t, w)

	st := store.New(dir)
	if _, err := st.Create("RES", "RES-0001-AAAA", map[string]string{"MPN": "X"}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	waitForBuild(t, fb, "RES")

	if err := stop(); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if got := w.State(); got != StateStopped {
		t.Errorf("state after stop = %s, want stopped", got)
	}
}

// TestRun_BuildsOnDelete verifies removing a table file triggers a build of
// that table so the mirror can drop it.
func TestRun_BuildsOnDelete(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "CAP.csv")
	if err := os.WriteFile(path, []byte("IPN\n"), 0644); err != nil {
		t.Fatalf("failed to write CAP.csv: %v", err)
	}

	fb := newFakeBuilder()
	w, err := New(dir, fb, Config{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	stop := startWatcher(t, w)

	if err := os.Remove(path); err != nil {
		t.Fatalf("failed to remove CAP.csv: %v", err)
	}

	waitForBuild(t, fb, "CAP")

	if err := stop(); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
}

// TestRun_ContinuesAfterBuildError verifies a failing build does not stop
// the loop.
func TestRun_ContinuesAfterBuildError(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	fb := newFakeBuilder()
	fb.err = errors.New("mirror locked")

	var mu sync.Mutex
	var seen []error
	w, err := New(dir, fb, Config{
		OnBuild: func(ev TableEvent, report *builder.Report, err error) {
			mu.Lock()
			seen = append(seen, err)
			mu.Unlock()
		},
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	stop := startWatcher(t, w)

	if err := os.WriteFile(filepath.Join(dir, "RES.csv"), []byte("IPN\n"), 0644); err != nil {
		t.Fatalf("failed to write RES.csv: %v", err)
	}
	waitForBuild(t, fb, "RES")

	if err := os.WriteFile(filepath.Join(dir, "IND.csv"), []byte("IPN\n"), 0644); err != nil {
		t.Fatalf("failed to write IND.csv: %v", err)
	}
	waitForBuild(t, fb, "IND")

	if err := stop(); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) < 2 {
		t.Fatalf("expected at least 2 OnBuild calls, got %d", len(seen))
	}
	for _, err := range seen {
		if err == nil {
			t.Error("expected OnBuild to receive the build error")
		}
	}
}

// TestRun_IgnoresNonTableFiles verifies hidden and non-CSV files never
// trigger builds.
func TestRun_IgnoresNonTableFiles(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	fb := newFakeBuilder()
	w, err := New(dir, fb, Config{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	stop := startWatcher(t, w)

	for _, name := range []string{".RES.csv.1234.tmp", "notes.txt", ".hidden.csv"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644); err != nil {
			t.Fatalf("failed to write %s: %v", name, err)
		}
	}
	// A real table write afterwards acts as a barrier
	if err := os.WriteFile(filepath.Join(dir, "LED.csv"), []byte("IPN\n"), 0644); err != nil {
		t.Fatalf("failed to write LED.csv: %v", err)
	}
	waitForBuild(t, fb, "LED")

	if err := stop(); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	fb.mu.Lock()
	defer fb.mu.Unlock()
	for _, changed := range fb.calls {
		for _, name := range changed.Names() {
			if name != "LED" {
				t.Errorf("unexpected build of %q", name)
			}
		}
	}
}

// TestRun_SetupFailure verifies a missing directory fails with ErrWatchSetup.
func TestRun_SetupFailure(t *testing.T) {
	defer goleak.VerifyNone(t)

	w, err := New(filepath.Join(t.TempDir(), "missing"), newFakeBuilder(), Config{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	err = w.Run(context.Background())
	if !errors.Is(err, ErrWatchSetup) {
		t.Fatalf("expected ErrWatchSetup, got %v", err)
	}
	if got := w.State(); got != StateStopped {
		t.Errorf("state = %s, want stopped", got)
	}
}

// TestRun_OnlyOnce verifies a stopped watcher cannot be restarted.
func TestRun_OnlyOnce(t *testing.T) {
	defer goleak.VerifyNone(t)

	w, err := New(t.TempDir(), newFakeBuilder(), Config{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if got := w.State(); got != StateIdle {
		t.Errorf("initial state = %s, want idle", got)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := w.Run(ctx); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if err := w.Run(context.Background()); err == nil {
		t.Error("second Run should fail")
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New("", newFakeBuilder(), Config{}); err == nil {
		t.Error("expected error for empty dir")
	}
	if _, err := New(t.TempDir(), nil, Config{}); err == nil {
		t.Error("expected error for nil builder")
	}
}

// TestFileWatcher_StartStop verifies the watcher can start and stop cleanly.
func TestFileWatcher_StartStop(t *testing.T) {
	defer goleak.VerifyNone(t)

	fw, err := NewFileWatcher()
	if err != nil {
		t.Fatalf("NewFileWatcher() failed: %v", err)
	}
	if fw.IsRunning() {
		t.Error("newly created watcher should not be running")
	}

	if err := fw.Start(t.TempDir()); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	if !fw.IsRunning() {
		t.Error("watcher should be running after Start()")
	}
	if err := fw.Start(t.TempDir()); err == nil {
		t.Error("second Start() should fail")
	}

	if err := fw.Stop(); err != nil {
		t.Fatalf("Stop() failed: %v", err)
	}
	if err := fw.Stop(); err != nil {
		t.Fatalf("second Stop() failed: %v", err)
	}
	if fw.IsRunning() {
		t.Error("watcher should not be running after Stop()")
	}
	if _, ok := <-fw.Events(); ok {
		t.Error("events channel should be closed")
	}
}

// TestFileWatcher_StopWithoutStart verifies resources are released even if
// the watcher never started.
func TestFileWatcher_StopWithoutStart(t *testing.T) {
	defer goleak.VerifyNone(t)

	fw, err := NewFileWatcher()
	if err != nil {
		t.Fatalf("NewFileWatcher() failed: %v", err)
	}
	if err := fw.Stop(); err != nil {
		t.Fatalf("Stop() failed: %v", err)
	}
}

func TestConvertEvent(t *testing.T) {
	tests := []struct {
		name   string
		event  fsnotify.Event
		want   TableEvent
		wantOK bool
	}{
		{
			name:   "create",
			event:  fsnotify.Event{Name: "/db/RES.csv", Op: fsnotify.Create},
			want:   TableEvent{Table: "RES", Path: "/db/RES.csv", Op: OpCreate},
			wantOK: true,
		},
		{
			name:   "write",
			event:  fsnotify.Event{Name: "/db/RES.csv", Op: fsnotify.Write},
			want:   TableEvent{Table: "RES", Path: "/db/RES.csv", Op: OpModify},
			wantOK: true,
		},
		{
			name:   "remove",
			event:  fsnotify.Event{Name: "/db/CAP.csv", Op: fsnotify.Remove},
			want:   TableEvent{Table: "CAP", Path: "/db/CAP.csv", Op: OpDelete},
			wantOK: true,
		},
		{
			name:   "rename away",
			event:  fsnotify.Event{Name: "/db/CAP.csv", Op: fsnotify.Rename},
			want:   TableEvent{Table: "CAP", Path: "/db/CAP.csv", Op: OpDelete},
			wantOK: true,
		},
		{
			name:  "chmod",
			event: fsnotify.Event{Name: "/db/RES.csv", Op: fsnotify.Chmod},
		},
		{
			name:  "temp file",
			event: fsnotify.Event{Name: "/db/.RES.csv.123.tmp", Op: fsnotify.Create},
		},
		{
			name:  "not csv",
			event: fsnotify.Event{Name: "/db/README.md", Op: fsnotify.Write},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := convertEvent(tt.event)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestStateString(t *testing.T) {
	tests := map[State]string{
		StateIdle:     "idle",
		StateWatching: "watching",
		StateBuilding: "building",
		StateStopped:  "stopped",
		State(42):     "unknown",
	}
	for state, want := range tests {
		if got := state.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", state, got, want)
		}
	}
}
