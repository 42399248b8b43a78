package traverse

import (
	"context"
	"fmt"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/understory/internal/finding"
	"github.com/jward/understory/internal/rules"
	"github.com/jward/understory/internal/suppress"
)

// cancelCheckInterval is how many nodes are visited between context checks.
const cancelCheckInterval = 1024

// Result is the outcome of walking one file.
type Result struct {
	// Findings are sorted and carry signatures, line/col and the inline
	// suppression flag. Baseline filtering has not been applied.
	Findings    []finding.Finding
	Failures    []*ExecutionError
	// Diagnostics holds one tooling finding per entry in Failures.
	Diagnostics []finding.Finding
	Nodes       int
}

// Walk performs the single pre-order pass over root. enabled filters the
// dispatcher's rules for this file (path scoping); nil enables all.
//
// Rule failures are contained and reported in the Result. The only error
// returned is the context's, when the walk is cancelled.
func Walk(ctx context.Context, file *rules.FileInfo, root *sitter.Node, d *Dispatcher, enabled func(ruleID string) bool) (*Result, error) {
	w := newWalker(ctx, file, d, enabled)
	if err := w.walk(root); err != nil {
		return nil, err
	}
	w.finish()

	finding.Sort(w.findings)
	return &Result{
		Findings:    w.findings,
		Failures:    w.failures,
		Diagnostics: w.diagnostics(),
		Nodes:       w.nodes,
	}, nil
}

type frame struct {
	annotated bool
	scoped    bool
}

type walker struct {
	ctx  context.Context
	file *rules.FileInfo
	d    *Dispatcher

	active   []bool // by instance index
	contexts []*rules.Context

	stack       *suppress.Stack
	annotations []*suppress.Annotation
	frames      []frame
	scope       []string
	unwound     bool

	lines    []int
	seen     map[string]int
	findings []finding.Finding
	failures []*ExecutionError
	nodes    int
}

func newWalker(ctx context.Context, file *rules.FileInfo, d *Dispatcher, enabled func(string) bool) *walker {
	w := &walker{
		ctx:      ctx,
		file:     file,
		d:        d,
		active:   make([]bool, len(d.instances)),
		contexts: make([]*rules.Context, len(d.instances)),
		stack:    suppress.NewStack(),
		lines:    lineStarts(file.Source),
		seen:     make(map[string]int),
	}
	for i, inst := range d.instances {
		w.active[i] = enabled == nil || enabled(inst.ID())
		if w.active[i] {
			w.contexts[i] = rules.NewContext(ctx, file, inst, w)
		}
	}
	return w
}

func (w *walker) walk(root *sitter.Node) error {
	if a, ok := suppress.ExtractFile(root, w.file.Source); ok {
		w.annotations = append(w.annotations, a)
		w.stack.Push(a)
	}

	cur := sitter.NewTreeCursor(root)
	defer cur.Close()
	for {
		w.nodes++
		if w.nodes%cancelCheckInterval == 0 {
			if err := w.ctx.Err(); err != nil {
				return err
			}
		}
		w.enter(cur.CurrentNode())
		if cur.GoToFirstChild() {
			continue
		}
		w.exit()
		for !cur.GoToNextSibling() {
			if !cur.GoToParent() {
				return w.ctx.Err()
			}
			w.exit()
		}
	}
}

func (w *walker) enter(n *sitter.Node) {
	var f frame
	if a, ok := suppress.Extract(n, w.file.Source); ok {
		w.annotations = append(w.annotations, a)
		w.stack.Push(a)
		f.annotated = true
	}
	if name := w.scopeName(n); name != "" {
		w.scope = append(w.scope, name)
		f.scoped = true
	}
	w.frames = append(w.frames, f)

	for _, i := range w.d.byKind[n.Type()] {
		if !w.active[i] {
			continue
		}
		inst := w.d.instances[i]
		fn, _ := inst.Visitor(n.Type())
		if err := w.invoke(i, func(c *rules.Context) error { return fn(c, n) }); err != nil {
			w.fail(i, n.Type(), n.StartByte(), err)
		}
	}
}

func (w *walker) exit() {
	f := w.frames[len(w.frames)-1]
	w.frames = w.frames[:len(w.frames)-1]
	if f.annotated {
		w.stack.Pop()
	}
	if f.scoped {
		w.scope = w.scope[:len(w.scope)-1]
	}
}

// finish runs per-file finish hooks once the tree has been fully visited.
func (w *walker) finish() {
	w.unwound = true
	w.scope = nil
	for _, i := range w.d.finishers {
		if !w.active[i] {
			continue
		}
		if err := w.invoke(i, w.d.instances[i].Finish()); err != nil {
			w.fail(i, "finish", 0, err)
		}
	}
}

type panicError struct{ v any }

func (p panicError) Error() string { return fmt.Sprint(p.v) }

func (w *walker) invoke(i int, fn func(*rules.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError{v: r}
		}
	}()
	return fn(w.contexts[i])
}

func (w *walker) fail(i int, kind string, start uint32, err error) {
	_, isPanic := err.(panicError)
	w.active[i] = false
	w.failures = append(w.failures, &ExecutionError{
		Rule:  w.d.instances[i].ID(),
		Path:  w.file.Path,
		Kind:  kind,
		Start: start,
		Panic: isPanic,
		Err:   err,
	})
}

func (w *walker) scopeName(n *sitter.Node) string {
	kind := n.Type()
	if !suppress.Suppressible(kind) && kind != "type_spec" {
		return ""
	}
	name := n.ChildByFieldName("name")
	if name == nil {
		return ""
	}
	return name.Content(w.file.Source)
}

// Emit implements rules.Sink.
func (w *walker) Emit(inst *rules.Instance, start, end uint32, message string) {
	var suppressed bool
	if w.unwound {
		suppressed = suppress.CoveredAt(w.annotations, inst.ID(), inst.RuleSet(), start)
	} else {
		suppressed = w.stack.Covers(inst.ID(), inst.RuleSet())
	}
	line, col := w.position(start)
	w.findings = append(w.findings, finding.Finding{
		RuleID:     inst.ID(),
		Severity:   inst.Severity(),
		Kind:       finding.KindIssue,
		Path:       w.file.Path,
		Start:      int(start),
		End:        int(end),
		Line:       line,
		Col:        col,
		Message:    message,
		Signature:  w.signature(inst.ID(), start, end),
		Suppressed: suppressed,
	})
}

// Scope implements rules.Sink.
func (w *walker) Scope() []string {
	return append([]string(nil), w.scope...)
}

// signature hashes the rule, path, enclosing scope and the first line of
// the reported code. Repeats of the same key within a file are numbered in
// emission order.
func (w *walker) signature(ruleID string, start, end uint32) string {
	fragment := string(w.file.Source[start:end])
	if i := strings.IndexByte(fragment, '\n'); i >= 0 {
		fragment = fragment[:i]
	}
	scope := strings.Join(w.scope, ".")
	sig := finding.Signature(ruleID, w.file.Path, scope, fragment)
	n := w.seen[sig]
	w.seen[sig] = n + 1
	if n == 0 {
		return sig
	}
	return finding.Signature(ruleID, w.file.Path, scope, fmt.Sprintf("%s\x00%d", fragment, n))
}

func (w *walker) diagnostics() []finding.Finding {
	out := make([]finding.Finding, 0, len(w.failures))
	for _, f := range w.failures {
		line, col := w.position(f.Start)
		msg := f.Error()
		out = append(out, finding.Finding{
			RuleID:    finding.RuleToolingError,
			Severity:  finding.SeverityError,
			Kind:      finding.KindTooling,
			Path:      w.file.Path,
			Start:     int(f.Start),
			End:       int(f.Start),
			Line:      line,
			Col:       col,
			Message:   msg,
			Signature: finding.Signature(finding.RuleToolingError, w.file.Path, f.Rule, f.Kind),
		})
	}
	return out
}

// lineStarts returns the byte offset at which each line begins.
func lineStarts(src []byte) []int {
	starts := []int{0}
	for i, b := range src {
		if b == '\n' {
			starts = append(starts, i+1)
		}
	}
	return starts
}

// position converts a byte offset to a 1-based line and column.
func (w *walker) position(offset uint32) (int, int) {
	off := int(offset)
	line := sort.Search(len(w.lines), func(i int) bool { return w.lines[i] > off }) - 1
	if line < 0 {
		line = 0
	}
	return line + 1, off - w.lines[line] + 1
}
