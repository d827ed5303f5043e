package builder

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ErrPartialFailure is matched by the error Build returns when at least one
// step failed.
//
//	if errors.Is(err, builder.ErrPartialFailure) {
//	    // report.Failed() lists what went wrong
//	}
var ErrPartialFailure = errors.New("build partially failed")

// PartialFailureError lists the failed steps of a build.
type PartialFailureError struct {
	Failed []Step
}

// Error implements error.
func (e *PartialFailureError) Error() string {
	parts := make([]string, len(e.Failed))
	for i, s := range e.Failed {
		parts[i] = fmt.Sprintf("%s %s: %v", s.Kind, s.Target, s.Err)
	}
	return fmt.Sprintf("%s: %d step(s) failed: %s", ErrPartialFailure, len(e.Failed), strings.Join(parts, "; "))
}

// Is makes errors.Is(err, ErrPartialFailure) succeed.
func (e *PartialFailureError) Is(target error) bool {
	return target == ErrPartialFailure
}

// TableSet is a set of table names. A nil TableSet passed to Build means
// every table.
type TableSet map[string]struct{}

// NewTableSet returns a set holding names.
func NewTableSet(names ...string) TableSet {
	s := make(TableSet, len(names))
	for _, n := range names {
		s[n] = struct{}{}
	}
	return s
}

// Add inserts a table name.
func (s TableSet) Add(name string) {
	s[name] = struct{}{}
}

// Has reports whether name is in the set.
func (s TableSet) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Names returns the set's members, sorted.
func (s TableSet) Names() []string {
	names := make([]string, 0, len(s))
	for n := range s {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// StepKind identifies what a build step did.
type StepKind string

const (
	StepRead       StepKind = "read"
	StepDropped    StepKind = "dropped"
	StepUpdated    StepKind = "updated"
	StepDescriptor StepKind = "descriptor"
)

// Step is the outcome of one unit of build work.
type Step struct {
	Kind   StepKind
	Target string
	// Rows is the number of rows written by an updated step
	Rows int
	Err  error
}

// OK reports whether the step succeeded.
func (s Step) OK() bool {
	return s.Err == nil
}

// Description is a human readable label for the step, e.g. "Updating table RES".
func (s Step) Description() string {
	switch s.Kind {
	case StepRead:
		return "Reading table " + s.Target
	case StepDropped:
		return "Dropping table " + s.Target
	case StepUpdated:
		return "Updating table " + s.Target
	case StepDescriptor:
		return "Writing " + s.Target
	default:
		return string(s.Kind) + " " + s.Target
	}
}

// Report describes a completed build.
type Report struct {
	// Full is true when every table was rebuilt
	Full bool

	// Tables lists the store tables that were readable, sorted
	Tables []string

	Steps    []Step
	Started  time.Time
	Duration time.Duration
}

// Failed returns the failed steps in execution order.
func (r *Report) Failed() []Step {
	var failed []Step
	for _, s := range r.Steps {
		if !s.OK() {
			failed = append(failed, s)
		}
	}
	return failed
}

// OK reports whether every step succeeded.
func (r *Report) OK() bool {
	return len(r.Failed()) == 0
}

// StepsOf returns the steps of one kind.
func (r *Report) StepsOf(kind StepKind) []Step {
	var steps []Step
	for _, s := range r.Steps {
		if s.Kind == kind {
			steps = append(steps, s)
		}
	}
	return steps
}
