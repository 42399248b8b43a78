// Package finding defines the Finding record produced by rule execution,
// its stable signature, and the deterministic ordering used by every view
// of an analysis result.
package finding

import (
	"crypto/sha256"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// Severity is the reported severity of a finding.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// ParseSeverity validates s as a Severity.
func ParseSeverity(s string) (Severity, error) {
	switch Severity(strings.ToLower(s)) {
	case SeverityInfo:
		return SeverityInfo, nil
	case SeverityWarning:
		return SeverityWarning, nil
	case SeverityError:
		return SeverityError, nil
	default:
		return "", fmt.Errorf("unknown severity %q (want info|warning|error)", s)
	}
}

// Rank orders severities for threshold comparisons.
func (s Severity) Rank() int {
	switch s {
	case SeverityInfo:
		return 1
	case SeverityWarning:
		return 2
	case SeverityError:
		return 3
	default:
		return 0
	}
}

// Kind separates rule findings from tooling diagnostics.
type Kind string

const (
	KindIssue   Kind = "issue"
	KindTooling Kind = "tooling"
)

// Reserved rule IDs for findings the engine itself produces.
const (
	RuleToolingError      = "understory/tooling-error"
	RuleSourceUnavailable = "understory/source-unavailable"
)

// Finding is a single reported violation or tooling diagnostic.
type Finding struct {
	RuleID     string   `json:"rule_id"`
	Severity   Severity `json:"severity"`
	Kind       Kind     `json:"kind"`
	Path       string   `json:"path"`
	Start      int      `json:"start"`
	End        int      `json:"end"`
	Line       int      `json:"line"`
	Col        int      `json:"col"`
	Message    string   `json:"message"`
	Signature  string   `json:"signature"`
	Suppressed bool     `json:"suppressed,omitempty"`
	Baselined  bool     `json:"baselined,omitempty"`
}

// IsNew reports whether f belongs in the "new findings" view.
func (f *Finding) IsNew() bool {
	return !f.Suppressed && !f.Baselined
}

// Signature fingerprints a finding from its rule, normalized location and
// the code fragment it is anchored to. Byte offsets and line numbers do not
// contribute.
//
// scope is the chain of enclosing declaration names (e.g. "Server.Start").
func Signature(ruleID, path, scope, fragment string) string {
	h := sha256.New()
	fmt.Fprintf(h, "rule:%s\n", ruleID)
	fmt.Fprintf(h, "path:%s\n", NormalizePath(path))
	fmt.Fprintf(h, "scope:%s\n", scope)
	fmt.Fprintf(h, "code:%s\n", normalizeFragment(fragment))
	return fmt.Sprintf("%x", h.Sum(nil))
}

// NormalizePath returns a slash-separated path without a leading "./".
func NormalizePath(p string) string {
	p = filepath.ToSlash(filepath.Clean(p))
	return strings.TrimPrefix(p, "./")
}

// normalizeFragment collapses runs of whitespace so formatting-only
// changes do not alter a signature.
func normalizeFragment(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Less is the total order over findings: path, start offset, rule ID, then
// end offset, message and signature as tie-breakers.
func Less(a, b *Finding) bool {
	if a.Path != b.Path {
		return a.Path < b.Path
	}
	if a.Start != b.Start {
		return a.Start < b.Start
	}
	if a.RuleID != b.RuleID {
		return a.RuleID < b.RuleID
	}
	if a.End != b.End {
		return a.End < b.End
	}
	if a.Message != b.Message {
		return a.Message < b.Message
	}
	return a.Signature < b.Signature
}

// Sort orders findings in place.
func Sort(fs []Finding) {
	sort.SliceStable(fs, func(i, j int) bool { return Less(&fs[i], &fs[j]) })
}

// InvariantError reports a broken ordering or signature invariant in
// aggregated output. It indicates an engine bug, never bad input.
type InvariantError struct {
	Path   string
	Index  int
	Reason string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("aggregation invariant violated in %s at index %d: %s", e.Path, e.Index, e.Reason)
}

// CheckOrdered verifies that fs is sorted, belongs to path and carries
// signatures.
func CheckOrdered(path string, fs []Finding) error {
	for i := range fs {
		if fs[i].Path != path {
			return &InvariantError{Path: path, Index: i, Reason: fmt.Sprintf("finding belongs to %q", fs[i].Path)}
		}
		if fs[i].Signature == "" {
			return &InvariantError{Path: path, Index: i, Reason: "empty signature"}
		}
		if i > 0 && Less(&fs[i], &fs[i-1]) {
			return &InvariantError{Path: path, Index: i, Reason: "findings out of order"}
		}
	}
	return nil
}
