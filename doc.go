// Package understory runs configurable static-analysis rules over
// tree-sitter syntax trees in one coordinated pass per file and produces a
// deterministic, ordered set of findings.
//
// # Pipeline
//
// An [Engine] is built once per run configuration:
//
//  1. Configuration layers (built-in defaults, user files, command-line
//     overrides) are merged and validated against the rule descriptors.
//  2. One immutable rule instance is built per active rule. A rule that
//     fails to build is reported and skipped.
//  3. [Engine.Run] fans source units across a bounded worker pool. Each
//     worker walks a file once, dispatching every node to the rules that
//     registered its kind, then applies inline suppression and the
//     baseline.
//  4. Per-file results are merged in path order. Within a file findings are
//     ordered by start offset, then rule ID, independent of scheduling.
//
// # Usage
//
//	e, err := understory.New(
//		understory.WithRoot("path/to/project"),
//		understory.WithConfigFiles("understory.yaml"),
//		understory.WithBaselinePath(".understory-baseline.yaml"),
//	)
//	if err != nil { ... }
//	defer e.Close()
//
//	res, err := e.Check(ctx, nil)
//	for _, f := range res.New() { ... }
//
// # Failures
//
// Rule failures and unreadable files never abort a run. A failing rule
// visitor yields a tooling finding (rule ID "understory/tooling-error") for
// that rule and file, and a file without a syntax tree yields a single
// "understory/source-unavailable" finding. Only strict configuration
// validation and broken ordering invariants return an error.
//
// # Rules
//
// Built-in rules live in internal/rules/builtin. Additional rules are
// supplied as descriptors with [WithRules] or as Risor scripts declared in
// the configuration's scripts section.
package understory
