// Package rules defines rule descriptors, their declared parameter schema,
// and the immutable per-run RuleInstance built from a descriptor and its
// resolved parameters.
//
// A rule never walks a tree itself. It registers a sparse table mapping
// tree-sitter node kinds to visitor callbacks; the traversal engine performs
// one walk per file and dispatches each node to every interested rule.
package rules

import (
	"encoding"
	"fmt"
	"sort"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/understory/internal/finding"
)

// ParamType is the declared type of a rule parameter.
type ParamType int

const (
	paramInvalid ParamType = iota
	ParamInt
	ParamFloat
	ParamBool
	ParamString
	ParamStringList
)

func (t ParamType) String() string {
	v, err := t.MarshalText()
	if err != nil {
		return fmt.Sprintf("param-type-invalid(%d)", int(t))
	}
	return string(v)
}

var _ encoding.TextUnmarshaler = (*ParamType)(nil)

func (t *ParamType) UnmarshalText(b []byte) error {
	switch string(b) {
	case "int":
		*t = ParamInt
	case "float":
		*t = ParamFloat
	case "bool":
		*t = ParamBool
	case "string":
		*t = ParamString
	case "strings":
		*t = ParamStringList
	default:
		return fmt.Errorf("unknown parameter type %q", b)
	}
	return nil
}

func (t ParamType) MarshalText() ([]byte, error) {
	switch t {
	case ParamInt:
		return []byte("int"), nil
	case ParamFloat:
		return []byte("float"), nil
	case ParamBool:
		return []byte("bool"), nil
	case ParamString:
		return []byte("string"), nil
	case ParamStringList:
		return []byte("strings"), nil
	default:
		return nil, fmt.Errorf("cannot marshal invalid ParamType(%d)", int(t))
	}
}

// Coerce converts v to the canonical Go representation of t
// (int, float64, bool, string, []string). It reports false on a type
// mismatch. Integers are accepted for float parameters.
func (t ParamType) Coerce(v any) (any, bool) {
	switch t {
	case ParamInt:
		switch n := v.(type) {
		case int:
			return n, true
		case int64:
			return int(n), true
		case uint64:
			return int(n), true
		}
	case ParamFloat:
		switch n := v.(type) {
		case float64:
			return n, true
		case int:
			return float64(n), true
		case int64:
			return float64(n), true
		}
	case ParamBool:
		b, ok := v.(bool)
		return b, ok
	case ParamString:
		s, ok := v.(string)
		return s, ok
	case ParamStringList:
		switch l := v.(type) {
		case []string:
			return append([]string(nil), l...), true
		case []any:
			out := make([]string, 0, len(l))
			for _, e := range l {
				s, ok := e.(string)
				if !ok {
					return nil, false
				}
				out = append(out, s)
			}
			return out, true
		}
	}
	return nil, false
}

// ParamSpec declares one configurable parameter.
type ParamSpec struct {
	Name    string
	Type    ParamType
	Default any
	Doc     string
}

// VisitFunc is invoked for every node of a kind the rule registered.
type VisitFunc func(ctx *Context, n *sitter.Node) error

// FinishFunc runs once per file after the walk, for rules that accumulate
// pending violations in their per-file state.
type FinishFunc func(ctx *Context) error

// Visitors is what a rule's Build function returns: the node-kind table and
// an optional finish hook.
type Visitors struct {
	Kinds  map[string]VisitFunc
	Finish FinishFunc
}

// BuildFunc constructs a rule's visitors from resolved parameters. It may
// reject parameter combinations that are individually well typed.
type BuildFunc func(p Params) (Visitors, error)

// Descriptor is the static definition of a rule.
type Descriptor struct {
	ID          string
	RuleSet     string
	Description string
	Severity    finding.Severity
	Active      bool
	Params      []ParamSpec
	Build       BuildFunc
}

// Param returns the declared parameter named name.
func (d *Descriptor) Param(name string) (ParamSpec, bool) {
	for _, p := range d.Params {
		if p.Name == name {
			return p, true
		}
	}
	return ParamSpec{}, false
}

// Defaults returns the declared default of every parameter.
func (d *Descriptor) Defaults() Params {
	p := make(Params, len(d.Params))
	for _, spec := range d.Params {
		if v, ok := spec.Type.Coerce(spec.Default); ok {
			p[spec.Name] = v
		}
	}
	return p
}

// Params holds resolved parameter values keyed by name.
type Params map[string]any

func (p Params) Int(name string) int {
	v, _ := p[name].(int)
	return v
}

func (p Params) Float(name string) float64 {
	v, _ := p[name].(float64)
	return v
}

func (p Params) Bool(name string) bool {
	v, _ := p[name].(bool)
	return v
}

func (p Params) String(name string) string {
	v, _ := p[name].(string)
	return v
}

func (p Params) Strings(name string) []string {
	v, _ := p[name].([]string)
	return v
}

// Names returns parameter names in sorted order.
func (p Params) Names() []string {
	names := make([]string, 0, len(p))
	for k := range p {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
