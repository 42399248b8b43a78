package suppress

import (
	"github.com/jward/understory/internal/finding"
)

// Mode controls what happens to inline-suppressed findings.
type Mode int

const (
	// Keep retains suppressed findings, flagged.
	Keep Mode = iota
	// Drop removes them.
	Drop
)

// Filter applies the baseline and mode to one file's findings. Inline
// suppression has already been resolved by the traversal (the Suppressed
// flag). Permanently suppressed signatures are dropped from every view;
// acknowledged ones are flagged Baselined, which hides them from the new
// view only. Tooling diagnostics pass through untouched.
//
// The input order is preserved.
func Filter(fs []finding.Finding, b *Baseline, mode Mode) []finding.Finding {
	out := fs[:0:0]
	for _, f := range fs {
		if f.Kind == finding.KindTooling {
			out = append(out, f)
			continue
		}
		if b.IsSuppressed(f.Signature) {
			continue
		}
		if b.IsAcknowledged(f.Signature) {
			f.Baselined = true
		}
		if f.Suppressed && mode == Drop {
			continue
		}
		out = append(out, f)
	}
	return out
}

// NewOnly returns the findings not hidden by inline suppression or the
// baseline.
func NewOnly(fs []finding.Finding) []finding.Finding {
	var out []finding.Finding
	for _, f := range fs {
		if f.IsNew() {
			out = append(out, f)
		}
	}
	return out
}
