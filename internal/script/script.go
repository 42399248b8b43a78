// Package script turns Risor scripts declared in configuration into rule
// descriptors.
//
// A script rule names the node kinds it visits. For every matching node the
// script is evaluated with these globals:
//
//	node        the current *sitter.Node (proxied)
//	kind        node kind
//	path        file path
//	language    canonical language name
//	params      resolved parameters (map)
//	node_text   node_text(n) -> string
//	node_child  node_child(n, field) -> node or nil
//	query       query(pattern, n) -> list of capture maps
//	report      report(message) or report(message, n)
//	log         log.Info / log.Warn / log.Error
package script

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/risor-io/risor"
	"github.com/risor-io/risor/object"
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/understory/internal/config"
	"github.com/jward/understory/internal/finding"
	"github.com/jward/understory/internal/rules"
)

// DefaultRuleSet is the rule set of scripts that do not name one.
const DefaultRuleSet = "scripts"

// Descriptors compiles specs into rule descriptors. File-backed scripts are
// read relative to baseDir. A spec that cannot be loaded is skipped and
// reported as a configuration error; the rest are returned.
func Descriptors(specs []config.ScriptSpec, baseDir string, logger hclog.Logger) ([]*rules.Descriptor, []*config.Error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	var (
		out  []*rules.Descriptor
		errs []*config.Error
	)
	for _, spec := range specs {
		d, err := descriptor(spec, baseDir, logger)
		if err != nil {
			errs = append(errs, spec.Error(err.Error()))
			continue
		}
		out = append(out, d)
	}
	return out, errs
}

func descriptor(spec config.ScriptSpec, baseDir string, logger hclog.Logger) (*rules.Descriptor, error) {
	if len(spec.Kinds) == 0 {
		return nil, fmt.Errorf("script %s: no node kinds", spec.ID)
	}
	body, err := spec.Body(baseDir)
	if err != nil {
		return nil, err
	}
	sev := finding.SeverityWarning
	if spec.Severity != "" {
		if sev, err = finding.ParseSeverity(spec.Severity); err != nil {
			return nil, fmt.Errorf("script %s: %w", spec.ID, err)
		}
	}
	set := spec.RuleSet
	if set == "" {
		set = DefaultRuleSet
	}
	active := true
	if spec.Active != nil {
		active = *spec.Active
	}
	desc := spec.Description
	if desc == "" {
		desc = "Risor script rule"
	}

	r := &scriptRule{
		id:        spec.ID,
		source:    body,
		languages: toSet(spec.Languages),
		log:       logger.Named(spec.ID),
	}
	kinds := append([]string(nil), spec.Kinds...)
	sort.Strings(kinds)

	return &rules.Descriptor{
		ID:          spec.ID,
		RuleSet:     set,
		Description: desc,
		Severity:    sev,
		Active:      active,
		Params:      spec.ParamSpecs(),
		Build: func(p rules.Params) (rules.Visitors, error) {
			v := rules.Visitors{Kinds: make(map[string]rules.VisitFunc, len(kinds))}
			for _, k := range kinds {
				v.Kinds[k] = r.visit
			}
			return v, nil
		},
	}, nil
}

func toSet(xs []string) map[string]bool {
	if len(xs) == 0 {
		return nil
	}
	m := make(map[string]bool, len(xs))
	for _, x := range xs {
		m[strings.ToLower(x)] = true
	}
	return m
}

// scriptRule holds the immutable compiled form of one script.
type scriptRule struct {
	id        string
	source    string
	languages map[string]bool
	log       hclog.Logger
}

func (r *scriptRule) visit(c *rules.Context, n *sitter.Node) error {
	if r.languages != nil && !r.languages[c.Language()] {
		return nil
	}
	nodeObj, err := object.NewProxy(n)
	if err != nil {
		return fmt.Errorf("script %s: proxy node: %w", r.id, err)
	}
	globals := map[string]any{
		"node":       nodeObj,
		"kind":       n.Type(),
		"path":       c.Path(),
		"language":   c.Language(),
		"params":     paramsGlobal(c.Params()),
		"node_text":  makeNodeTextFn(c),
		"node_child": makeNodeChildFn(),
		"query":      makeQueryFn(c),
		"report":     makeReportFn(c, n),
		"log":        mustProxy(&logObject{log: r.log}),
	}

	names := make([]string, 0, len(globals))
	for name := range globals {
		names = append(names, name)
	}
	sort.Strings(names)
	opts := make([]risor.Option, 0, len(names))
	for _, name := range names {
		opts = append(opts, risor.WithGlobal(name, globals[name]))
	}

	ctx := c.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if _, err := risor.Eval(ctx, r.source, opts...); err != nil {
		return fmt.Errorf("script %s: %w", r.id, err)
	}
	return nil
}

// paramsGlobal converts parameter values to types the Risor VM accepts.
func paramsGlobal(p rules.Params) map[string]any {
	out := make(map[string]any, len(p))
	for k, v := range p {
		if list, ok := v.([]string); ok {
			items := make([]any, len(list))
			for i, s := range list {
				items[i] = s
			}
			out[k] = items
			continue
		}
		out[k] = v
	}
	return out
}

func mustProxy(v any) object.Object {
	p, err := object.NewProxy(v)
	if err != nil {
		panic(fmt.Sprintf("script: proxy error: %v", err))
	}
	return p
}
