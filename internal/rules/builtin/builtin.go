// Package builtin provides the rules that ship with understory.
//
// Each rule registers only the node kinds it cares about, across the
// grammars the frontend supports. Kinds a grammar does not produce are
// simply never dispatched.
package builtin

import "github.com/jward/understory/internal/rules"

// Rule sets of the built-in rules.
const (
	RuleSetStyle         = "style"
	RuleSetComplexity    = "complexity"
	RuleSetPotentialBugs = "potential-bugs"
)

// All returns the descriptors of every built-in rule, sorted by ID.
func All() []*rules.Descriptor {
	return []*rules.Descriptor{
		DuplicateString(),
		EmptyBlock(),
		LongFunction(),
		MagicNumber(),
		TodoComment(),
	}
}

// each maps every kind in kinds to fn.
func each(fn rules.VisitFunc, kinds ...string) map[string]rules.VisitFunc {
	m := make(map[string]rules.VisitFunc, len(kinds))
	for _, k := range kinds {
		m[k] = fn
	}
	return m
}
