package rules

import (
	"fmt"
	"sort"

	"github.com/jward/understory/internal/finding"
)

// Instance is a runnable rule for one analysis run. It is immutable after
// Instantiate returns and is shared read-only by all workers. Any per-file
// bookkeeping belongs in Context.State, never here.
type Instance struct {
	desc     *Descriptor
	params   Params
	severity finding.Severity
	visitors map[string]VisitFunc
	finish   FinishFunc
}

func (i *Instance) ID() string                 { return i.desc.ID }
func (i *Instance) RuleSet() string            { return i.desc.RuleSet }
func (i *Instance) Descriptor() *Descriptor    { return i.desc }
func (i *Instance) Severity() finding.Severity { return i.severity }
func (i *Instance) Finish() FinishFunc         { return i.finish }

// Params returns a copy of the resolved parameters.
func (i *Instance) Params() Params {
	out := make(Params, len(i.params))
	for k, v := range i.params {
		out[k] = v
	}
	return out
}

// Visitor returns the callback registered for kind.
func (i *Instance) Visitor(kind string) (VisitFunc, bool) {
	fn, ok := i.visitors[kind]
	return fn, ok
}

// Kinds returns the registered node kinds in sorted order.
func (i *Instance) Kinds() []string {
	kinds := make([]string, 0, len(i.visitors))
	for k := range i.visitors {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Settings is the resolved configuration view instantiation reads.
type Settings interface {
	Enabled(ruleID string) bool
	ParamsFor(ruleID string) map[string]any
	SeverityFor(ruleID string) finding.Severity
}

// InstantiationError disables a single rule for the run.
type InstantiationError struct {
	Rule string
	Err  error
}

func (e *InstantiationError) Error() string {
	return fmt.Sprintf("rule %s: instantiation failed: %v", e.Rule, e.Err)
}

func (e *InstantiationError) Unwrap() error { return e.Err }

// Instantiate builds one Instance per enabled descriptor, in rule ID order.
// A descriptor whose Build fails or panics is skipped and reported; the
// remaining rules are unaffected.
func Instantiate(s Settings, descs []*Descriptor) ([]*Instance, []error) {
	sorted := append([]*Descriptor(nil), descs...)
	sort.Slice(sorted, func(a, b int) bool { return sorted[a].ID < sorted[b].ID })

	var (
		out  []*Instance
		errs []error
	)
	for _, d := range sorted {
		if !s.Enabled(d.ID) {
			continue
		}
		inst, err := build(d, s)
		if err != nil {
			errs = append(errs, &InstantiationError{Rule: d.ID, Err: err})
			continue
		}
		out = append(out, inst)
	}
	return out, errs
}

func build(d *Descriptor, s Settings) (inst *Instance, err error) {
	if d.Build == nil {
		return nil, fmt.Errorf("descriptor has no Build function")
	}
	params := d.Defaults()
	for k, v := range s.ParamsFor(d.ID) {
		params[k] = v
	}
	sev := s.SeverityFor(d.ID)
	if sev == "" {
		sev = d.Severity
	}

	defer func() {
		if r := recover(); r != nil {
			inst, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()
	v, err := d.Build(params)
	if err != nil {
		return nil, err
	}
	if len(v.Kinds) == 0 && v.Finish == nil {
		return nil, fmt.Errorf("rule registers no visitors")
	}
	visitors := make(map[string]VisitFunc, len(v.Kinds))
	for kind, fn := range v.Kinds {
		if fn != nil {
			visitors[kind] = fn
		}
	}
	return &Instance{
		desc:     d,
		params:   params,
		severity: sev,
		visitors: visitors,
		finish:   v.Finish,
	}, nil
}
