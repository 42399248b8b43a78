package rules

import (
	"context"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
)

// FileInfo describes the file being traversed. Source and Semantic are
// borrowed from the frontend and must not be modified.
type FileInfo struct {
	Path     string
	Language string
	Source   []byte
	Semantic any
}

// Sink receives findings emitted by visitors. The traversal engine
// implements it and attaches location, scope and suppression data.
type Sink interface {
	Emit(inst *Instance, start, end uint32, message string)
	Scope() []string
}

// Context is handed to every visitor invocation. One Context exists per
// (rule, file) pair; it is discarded when the file's traversal ends.
type Context struct {
	ctx   context.Context
	file  *FileInfo
	inst  *Instance
	sink  Sink
	state map[string]any
}

// NewContext binds a rule instance to a file for one traversal.
func NewContext(ctx context.Context, file *FileInfo, inst *Instance, sink Sink) *Context {
	return &Context{ctx: ctx, file: file, inst: inst, sink: sink}
}

// Context returns the run's context.Context.
func (c *Context) Context() context.Context { return c.ctx }

func (c *Context) Path() string     { return c.file.Path }
func (c *Context) Language() string { return c.file.Language }
func (c *Context) Source() []byte   { return c.file.Source }

// Semantic returns the frontend's optional semantic handle, or nil.
func (c *Context) Semantic() any { return c.file.Semantic }

// Rule returns the rule instance this context is bound to.
func (c *Context) Rule() *Instance { return c.inst }

// Params returns the rule's resolved parameters.
func (c *Context) Params() Params { return c.inst.params }

// State is rule-local scratch space for the current file.
func (c *Context) State() map[string]any {
	if c.state == nil {
		c.state = make(map[string]any)
	}
	return c.state
}

// Scope returns the names of the enclosing declarations, outermost first.
func (c *Context) Scope() []string { return c.sink.Scope() }

// Text returns the source text spanned by n.
func (c *Context) Text(n *sitter.Node) string {
	return n.Content(c.file.Source)
}

// Report emits a finding anchored to n.
func (c *Context) Report(n *sitter.Node, message string) {
	c.sink.Emit(c.inst, n.StartByte(), n.EndByte(), message)
}

// Reportf is Report with formatting.
func (c *Context) Reportf(n *sitter.Node, format string, args ...any) {
	c.Report(n, fmt.Sprintf(format, args...))
}

// ReportRange emits a finding over an explicit byte range.
func (c *Context) ReportRange(start, end uint32, message string) {
	size := uint32(len(c.file.Source))
	start, end = min(start, size), min(end, size)
	if end < start {
		end = start
	}
	c.sink.Emit(c.inst, start, end, message)
}
