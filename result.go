package understory

import (
	"fmt"
	"time"

	"github.com/jward/understory/internal/finding"
	"github.com/jward/understory/internal/suppress"
)

// View selects which findings a report shows.
type View string

const (
	// ViewAll shows every retained finding, flagged as suppressed or
	// baselined where applicable.
	ViewAll View = "all"
	// ViewNew hides inline-suppressed and baselined findings. Tooling
	// findings (rule failures, unreadable sources) are never baselined, so
	// they always appear here until their cause is fixed.
	ViewNew View = "new"
)

// ParseView validates s as a View.
func ParseView(s string) (View, error) {
	switch View(s) {
	case ViewAll, ViewNew:
		return View(s), nil
	default:
		return "", fmt.Errorf("unknown view %q (want all|new)", s)
	}
}

// Stats are run-level counts over the all-findings view.
type Stats struct {
	Files        int `json:"files"`
	Findings     int `json:"findings"`
	New          int `json:"new"`
	Suppressed   int `json:"suppressed"`
	Baselined    int `json:"baselined"`
	Tooling      int `json:"tooling"`
	RuleFailures int `json:"rule_failures"`
	Nodes        int `json:"nodes"`
}

// AnalysisResult maps each analyzed path to its ordered findings.
type AnalysisResult struct {
	// Paths lists every analyzed path in lexical order, including files
	// without findings.
	Paths      []string
	Files      map[string][]Finding
	Stats      Stats
	ConfigHash string
	StartedAt  time.Time
	Duration   time.Duration
	// Errors holds the contained per-file and per-rule failures, in path
	// order.
	Errors []error
}

// All returns every finding ordered by path, start offset and rule ID.
func (r *AnalysisResult) All() []Finding {
	var out []Finding
	for _, p := range r.Paths {
		out = append(out, r.Files[p]...)
	}
	return out
}

// New returns the findings not hidden by inline suppression or the
// baseline, in the same order as All. Tooling findings are always new.
func (r *AnalysisResult) New() []Finding {
	return suppress.NewOnly(r.All())
}

// View returns the findings of view v.
func (r *AnalysisResult) View(v View) []Finding {
	if v == ViewNew {
		return r.New()
	}
	return r.All()
}

func (r *AnalysisResult) count() {
	r.Stats.Files = len(r.Paths)
	for _, p := range r.Paths {
		for _, f := range r.Files[p] {
			r.Stats.Findings++
			switch {
			case f.Kind == finding.KindTooling:
				r.Stats.Tooling++
			case f.Suppressed:
				r.Stats.Suppressed++
			case f.Baselined:
				r.Stats.Baselined++
			}
			if f.IsNew() {
				r.Stats.New++
			}
		}
	}
}

// SourceUnavailableError reports a file that reached the engine without a
// syntax tree.
type SourceUnavailableError struct {
	Path string
	Err  error
}

func (e *SourceUnavailableError) Error() string {
	return fmt.Sprintf("source unavailable: %s: %v", e.Path, e.Err)
}

func (e *SourceUnavailableError) Unwrap() error { return e.Err }
