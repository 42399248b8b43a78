// Package traverse runs every rule instance over a file in one depth-first
// pass.
//
// A Dispatcher is built once per run from the instantiated rules and indexes
// them by node kind. Walk then visits each node exactly once, invoking only
// the rules that registered that kind, while it maintains the suppression
// stack and the enclosing-declaration scope.
package traverse

import (
	"fmt"
	"sort"

	"github.com/jward/understory/internal/rules"
)

// Dispatcher maps node kinds to the rule instances that visit them. It is
// immutable and shared by all workers.
type Dispatcher struct {
	instances []*rules.Instance
	byKind    map[string][]int
	finishers []int
}

// NewDispatcher indexes insts. Instances are ordered by rule ID so
// dispatch order is stable across runs.
func NewDispatcher(insts []*rules.Instance) *Dispatcher {
	sorted := append([]*rules.Instance(nil), insts...)
	sort.Slice(sorted, func(a, b int) bool { return sorted[a].ID() < sorted[b].ID() })

	d := &Dispatcher{instances: sorted, byKind: make(map[string][]int)}
	for i, inst := range sorted {
		for _, kind := range inst.Kinds() {
			d.byKind[kind] = append(d.byKind[kind], i)
		}
		if inst.Finish() != nil {
			d.finishers = append(d.finishers, i)
		}
	}
	return d
}

// Instances returns the dispatched rules in rule ID order.
func (d *Dispatcher) Instances() []*rules.Instance {
	return d.instances
}

// Kinds returns the number of distinct node kinds with at least one
// visitor.
func (d *Dispatcher) Kinds() int {
	return len(d.byKind)
}

// ExecutionError records a rule that failed while visiting a file. After
// its first failure the rule is skipped for the rest of that file.
type ExecutionError struct {
	Rule  string
	Path  string
	Kind  string // node kind being visited, or "finish"
	Start uint32
	Panic bool
	Err   error
}

func (e *ExecutionError) Error() string {
	what := "failed"
	if e.Panic {
		what = "panicked"
	}
	return fmt.Sprintf("rule %s %s on %s at byte %d (%s): %v", e.Rule, what, e.Path, e.Start, e.Kind, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }
