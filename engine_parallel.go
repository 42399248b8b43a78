package understory

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jward/understory/internal/config"
	"github.com/jward/understory/internal/finding"
	"github.com/jward/understory/internal/frontend"
	"github.com/jward/understory/internal/rules"
	"github.com/jward/understory/internal/suppress"
	"github.com/jward/understory/internal/traverse"
)

// workItem is one file for a worker. Exactly one of unit and load is set;
// a loaded unit is closed by the worker once analyzed.
type workItem struct {
	index int
	path  string
	unit  *SourceUnit
	load  func(ctx context.Context) *SourceUnit
}

// fileResult is what a worker hands back to the collector.
type fileResult struct {
	index    int
	path     string
	findings []finding.Finding
	errs     []error
	nodes    int
	failures int
	// abandoned is set when the run was cancelled before or during the file.
	abandoned bool
}

// Run analyzes units and aggregates their findings. Units are borrowed:
// their trees are read but not closed.
//
// A nil entry is reported as an unavailable source named "<unit N>".
//
// Cancelling ctx abandons files not yet finished. The partial result for the
// files that completed is returned together with ctx's error.
func (e *Engine) Run(ctx context.Context, units []*SourceUnit) (*AnalysisResult, error) {
	items := make([]workItem, len(units))
	for i, u := range units {
		if u == nil {
			path := fmt.Sprintf("<unit %d>", i)
			u = &SourceUnit{Path: path, Err: errors.New("nil source unit")}
		}
		items[i] = workItem{index: i, path: finding.NormalizePath(u.Path), unit: u}
	}
	return e.run(ctx, items)
}

// Check parses and analyzes files under the engine's root. paths are
// relative to the root or absolute; when empty, every supported file found
// by discovery is analyzed.
func (e *Engine) Check(ctx context.Context, paths []string) (*AnalysisResult, error) {
	if len(paths) == 0 {
		found, err := frontend.Discover(e.root)
		if err != nil {
			return nil, fmt.Errorf("understory: discover: %w", err)
		}
		paths = found
	}

	items := make([]workItem, 0, len(paths))
	for i, p := range paths {
		rel := e.relative(p)
		items = append(items, workItem{
			index: i,
			path:  rel,
			load: func(ctx context.Context) *SourceUnit {
				return frontend.ParseFile(ctx, e.root, rel)
			},
		})
	}
	return e.run(ctx, items)
}

// relative converts p to a slash path relative to the engine root.
func (e *Engine) relative(p string) string {
	if filepath.IsAbs(p) {
		if absRoot, err := filepath.Abs(e.root); err == nil {
			if rel, err := filepath.Rel(absRoot, p); err == nil && !strings.HasPrefix(rel, "..") {
				p = rel
			}
		}
	}
	return finding.NormalizePath(p)
}

// run distributes items over the worker pool and merges results:
//
//	Workers (parallel): traverse, then apply suppression and baseline.
//	Collector (serial): the single aggregation point, keyed by path.
func (e *Engine) run(ctx context.Context, items []workItem) (*AnalysisResult, error) {
	start := time.Now()
	res := &AnalysisResult{
		Files:      make(map[string][]Finding),
		ConfigHash: e.effective.Hash(),
		StartedAt:  start,
	}
	if len(items) == 0 {
		e.record(res)
		return res, nil
	}

	numWorkers := min(e.poolSize(), len(items))

	workCh := make(chan workItem, len(items))
	for _, item := range items {
		workCh <- item
	}
	close(workCh)

	resultCh := make(chan fileResult, len(items))

	var wg sync.WaitGroup
	for range numWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range workCh {
				if ctx.Err() != nil {
					resultCh <- fileResult{index: item.index, path: item.path, abandoned: true}
					continue
				}
				resultCh <- e.analyze(ctx, item)
			}
		}()
	}

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	results := make([]fileResult, 0, len(items))
	abandoned := 0
	for r := range resultCh {
		if r.abandoned {
			abandoned++
			continue
		}
		results = append(results, r)
	}

	// Completion order is arbitrary; input order breaks ties between
	// duplicate paths so merging is reproducible.
	sort.Slice(results, func(i, j int) bool {
		if results[i].path != results[j].path {
			return results[i].path < results[j].path
		}
		return results[i].index < results[j].index
	})
	for _, r := range results {
		existing, seen := res.Files[r.path]
		if !seen {
			res.Paths = append(res.Paths, r.path)
		}
		merged := append(existing, r.findings...)
		if seen {
			finding.Sort(merged)
		}
		if err := finding.CheckOrdered(r.path, merged); err != nil {
			return nil, fmt.Errorf("understory: %w", err)
		}
		res.Files[r.path] = merged
		res.Errors = append(res.Errors, r.errs...)
		res.Stats.Nodes += r.nodes
		res.Stats.RuleFailures += r.failures
	}
	res.count()
	res.Duration = elapsed(start)

	if err := ctx.Err(); err != nil {
		e.logger.Warn("run cancelled", "completed", len(results), "abandoned", abandoned)
		return res, err
	}
	e.logger.Info("run complete",
		"files", res.Stats.Files, "findings", res.Stats.Findings, "new", res.Stats.New,
		"tooling", res.Stats.Tooling, "duration", res.Duration)
	e.record(res)
	return res, nil
}

func (e *Engine) poolSize() int {
	n := e.workers
	if n <= 0 {
		n = e.effective.Engine.Workers
	}
	if n <= 0 {
		n = runtime.NumCPU()
	}
	return max(n, 1)
}

// analyze runs traversal and filtering for one file. Nothing here touches
// state shared with other workers except the read-only engine.
func (e *Engine) analyze(ctx context.Context, item workItem) fileResult {
	out := fileResult{index: item.index, path: item.path}

	u := item.unit
	if u == nil {
		u = item.load(ctx)
		defer u.Close()
	}
	if u.Tree == nil {
		cause := u.Err
		if cause == nil {
			cause = errors.New("no syntax tree")
		}
		err := &SourceUnavailableError{Path: item.path, Err: cause}
		e.logger.Warn("source unavailable", "path", item.path, "error", cause)
		out.errs = append(out.errs, err)
		out.findings = []finding.Finding{unavailableFinding(item.path, err)}
		return out
	}

	file := &rules.FileInfo{
		Path:     item.path,
		Language: u.Language,
		Source:   u.Source,
		Semantic: u.Semantic,
	}
	walked, err := traverse.Walk(ctx, file, u.Tree.RootNode(), e.dispatch, func(ruleID string) bool {
		return e.effective.IsActive(ruleID, item.path)
	})
	if err != nil {
		out.abandoned = true
		return out
	}
	out.nodes = walked.Nodes
	out.failures = len(walked.Failures)

	findings := walked.Findings
	for _, f := range walked.Failures {
		e.logger.Warn("rule execution failed",
			"rule", f.Rule, "path", f.Path, "kind", f.Kind, "panic", f.Panic, "error", f.Err)
		out.errs = append(out.errs, f)
	}
	if len(walked.Diagnostics) > 0 && e.effective.Engine.ToolingErrors == config.ToolingReport {
		findings = append(findings, walked.Diagnostics...)
		finding.Sort(findings)
	}

	mode := suppress.Keep
	if e.effective.Engine.Suppressed == config.SuppressedDrop {
		mode = suppress.Drop
	}
	out.findings = suppress.Filter(findings, e.baseline, mode)
	return out
}

func unavailableFinding(path string, err error) finding.Finding {
	return finding.Finding{
		RuleID:    finding.RuleSourceUnavailable,
		Severity:  finding.SeverityError,
		Kind:      finding.KindTooling,
		Path:      path,
		Line:      1,
		Col:       1,
		Message:   err.Error(),
		Signature: finding.Signature(finding.RuleSourceUnavailable, path, "", ""),
	}
}
