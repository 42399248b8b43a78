package config

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jward/understory/internal/finding"
	"github.com/jward/understory/internal/rules"
)

// Top-level sections.
const (
	sectionEngine   = "engine"
	sectionRuleSets = "rulesets"
	sectionRules    = "rules"
	sectionScripts  = "scripts"
)

// Keys every rule and rule set accepts besides declared parameters.
const (
	keyActive   = "active"
	keySeverity = "severity"
	keyIncludes = "includes"
	keyExcludes = "excludes"
)

// ToolingPolicy selects how rule execution failures surface.
type ToolingPolicy string

const (
	ToolingReport ToolingPolicy = "report" // diagnostic finding
	ToolingLog    ToolingPolicy = "log"    // logged, no finding
)

// SuppressedMode selects whether inline-suppressed findings stay in the
// result (flagged) or are removed.
type SuppressedMode string

const (
	SuppressedKeep SuppressedMode = "keep"
	SuppressedDrop SuppressedMode = "drop"
)

// EngineSettings are the run-level controls from the engine section.
type EngineSettings struct {
	Strict           bool
	AllRulesInactive bool
	Workers          int
	Baseline         string
	ToolingErrors    ToolingPolicy
	Suppressed       SuppressedMode
}

// DefaultEngineSettings returns the settings used when nothing is configured.
func DefaultEngineSettings() EngineSettings {
	return EngineSettings{
		ToolingErrors: ToolingReport,
		Suppressed:    SuppressedKeep,
	}
}

type ruleConfig struct {
	active   bool
	severity finding.Severity
	params   map[string]any
	scope    pathScope
}

// Effective is the merged, validated configuration for one run. It is
// read-only after Resolve returns and safe for concurrent use.
type Effective struct {
	Engine EngineSettings
	tree   *Tree
	rules  map[string]*ruleConfig
}

var _ rules.Settings = (*Effective)(nil)

// Resolve validates the merged tree against descs and computes per-rule
// activation, severity, parameters and path scope.
//
// Problems are returned as the errs list, after any found earlier by the
// caller (such as bad scripts entries) and passed as prior. When
// engine.strict is set and errs is non-empty, the returned error is non-nil
// (wrapping ErrStrict) and the Effective is nil.
func Resolve(t *Tree, descs []*rules.Descriptor, prior ...*Error) (eff *Effective, errs []*Error, err error) {
	v := &validator{tree: t, errs: append([]*Error(nil), prior...)}
	settings := v.engine()

	byID := make(map[string]*rules.Descriptor, len(descs))
	sets := make(map[string]bool)
	for _, d := range descs {
		byID[d.ID] = d
		if d.RuleSet != "" {
			sets[d.RuleSet] = true
		}
	}

	v.topLevel()
	setCfg := v.ruleSets(sets)
	ruleVals := v.rules(byID)

	eff = &Effective{Engine: settings, tree: t, rules: make(map[string]*ruleConfig, len(descs))}
	for _, d := range descs {
		eff.rules[d.ID] = v.resolveRule(d, settings, ruleVals[d.ID], setCfg[d.RuleSet])
	}

	if settings.Strict && len(v.errs) > 0 {
		joined := []error{ErrStrict}
		for _, e := range v.errs {
			joined = append(joined, e)
		}
		return nil, v.errs, errors.Join(joined...)
	}
	return eff, v.errs, nil
}

type validator struct {
	tree *Tree
	errs []*Error
}

func (v *validator) fail(key, rule, format string, args ...any) {
	v.errs = append(v.errs, &Error{
		Key:   key,
		Rule:  rule,
		Layer: v.source(key),
		Msg:   fmt.Sprintf(format, args...),
	})
}

// source finds the layer responsible for key or, for a mapping, its first
// leaf.
func (v *validator) source(key string) string {
	if l := v.tree.Provenance(key); l != "" {
		return l
	}
	prefix := key + "."
	var leaves []string
	for k := range v.tree.prov {
		if strings.HasPrefix(k, prefix) {
			leaves = append(leaves, k)
		}
	}
	if len(leaves) == 0 {
		return ""
	}
	sort.Strings(leaves)
	return v.tree.Provenance(leaves[0])
}

func (v *validator) section(name string) map[string]any {
	raw, ok := v.tree.Get(name)
	if !ok {
		return nil
	}
	m, ok := raw.(map[string]any)
	if !ok {
		v.fail(name, "", "expected a mapping, got %s", typeName(raw))
		return nil
	}
	return m
}

func (v *validator) topLevel() {
	for _, k := range sortedKeys(v.tree.values) {
		switch k {
		case sectionEngine, sectionRuleSets, sectionRules, sectionScripts:
		default:
			v.fail(k, "", "unknown top-level key")
		}
	}
}

func (v *validator) engine() EngineSettings {
	s := DefaultEngineSettings()
	sec := v.section(sectionEngine)
	for _, k := range sortedKeys(sec) {
		key := joinKey(sectionEngine, k)
		val := sec[k]
		switch k {
		case "strict":
			s.Strict = v.boolValue(key, "", val, s.Strict)
		case "all_rules_inactive":
			s.AllRulesInactive = v.boolValue(key, "", val, s.AllRulesInactive)
		case "workers":
			n, ok := rules.ParamInt.Coerce(val)
			if !ok || n.(int) < 0 {
				v.fail(key, "", "expected a non-negative int, got %s", typeName(val))
				continue
			}
			s.Workers = n.(int)
		case "baseline":
			str, ok := val.(string)
			if !ok {
				v.fail(key, "", "expected string, got %s", typeName(val))
				continue
			}
			s.Baseline = str
		case "tooling_errors":
			switch p := ToolingPolicy(fmt.Sprint(val)); p {
			case ToolingReport, ToolingLog:
				s.ToolingErrors = p
			default:
				v.fail(key, "", "expected report|log, got %v", val)
			}
		case "suppressed":
			switch m := SuppressedMode(fmt.Sprint(val)); m {
			case SuppressedKeep, SuppressedDrop:
				s.Suppressed = m
			default:
				v.fail(key, "", "expected keep|drop, got %v", val)
			}
		default:
			v.fail(key, "", "unknown engine setting")
		}
	}
	return s
}

func (v *validator) boolValue(key, rule string, val any, def bool) bool {
	b, ok := val.(bool)
	if !ok {
		v.fail(key, rule, "expected bool, got %s", typeName(val))
		return def
	}
	return b
}

func (v *validator) stringList(key, rule string, val any) ([]string, bool) {
	l, ok := rules.ParamStringList.Coerce(val)
	if !ok {
		v.fail(key, rule, "expected a list of strings, got %s", typeName(val))
		return nil, false
	}
	return l.([]string), true
}

// setConfig is the validated content of rulesets.<id>.
type setConfig struct {
	active         *bool
	activeExplicit bool
	includes       []string
	excludes       []string
	hasScope       bool
}

func (v *validator) ruleSets(known map[string]bool) map[string]*setConfig {
	out := map[string]*setConfig{}
	sec := v.section(sectionRuleSets)
	for _, id := range sortedKeys(sec) {
		key := joinKey(sectionRuleSets, id)
		if !known[id] {
			v.fail(key, "", "unknown rule set %q", id)
			continue
		}
		m, ok := sec[id].(map[string]any)
		if !ok {
			v.fail(key, "", "expected a mapping, got %s", typeName(sec[id]))
			continue
		}
		sc := &setConfig{}
		for _, k := range sortedKeys(m) {
			sub := joinKey(key, k)
			switch k {
			case keyActive:
				b, ok := m[k].(bool)
				if !ok {
					v.fail(sub, "", "expected bool, got %s", typeName(m[k]))
					continue
				}
				sc.active = &b
				sc.activeExplicit = v.tree.explicit(sub)
			case keyIncludes:
				sc.includes, _ = v.stringList(sub, "", m[k])
				sc.hasScope = true
			case keyExcludes:
				sc.excludes, _ = v.stringList(sub, "", m[k])
				sc.hasScope = true
			default:
				v.fail(sub, "", "unknown rule set key")
			}
		}
		out[id] = sc
	}
	return out
}

func (v *validator) rules(byID map[string]*rules.Descriptor) map[string]map[string]any {
	out := map[string]map[string]any{}
	sec := v.section(sectionRules)
	for _, id := range sortedKeys(sec) {
		key := joinKey(sectionRules, id)
		if _, ok := byID[id]; !ok {
			v.fail(key, id, "unknown rule %q", id)
			continue
		}
		m, ok := sec[id].(map[string]any)
		if !ok {
			v.fail(key, id, "expected a mapping, got %s", typeName(sec[id]))
			continue
		}
		out[id] = m
	}
	return out
}

func (v *validator) resolveRule(d *rules.Descriptor, s EngineSettings, vals map[string]any, set *setConfig) *ruleConfig {
	rc := &ruleConfig{
		active:   d.Active,
		severity: d.Severity,
		params:   map[string]any{},
	}
	prefix := joinKey(sectionRules, d.ID)

	var (
		ruleActive   *bool
		ruleExplicit bool
		includes     []string
		excludes     []string
		hasScope     bool
	)
	for _, k := range sortedKeys(vals) {
		key := joinKey(prefix, k)
		val := vals[k]
		switch k {
		case keyActive:
			b, ok := val.(bool)
			if !ok {
				v.fail(key, d.ID, "expected bool, got %s", typeName(val))
				continue
			}
			ruleActive = &b
			ruleExplicit = v.tree.explicit(key)
		case keySeverity:
			str, _ := val.(string)
			sev, err := finding.ParseSeverity(str)
			if err != nil {
				v.fail(key, d.ID, "%v", err)
				continue
			}
			rc.severity = sev
		case keyIncludes:
			includes, _ = v.stringList(key, d.ID, val)
			hasScope = true
		case keyExcludes:
			excludes, _ = v.stringList(key, d.ID, val)
			hasScope = true
		default:
			spec, ok := d.Param(k)
			if !ok {
				v.fail(key, d.ID, "unknown parameter %q", k)
				continue
			}
			cv, ok := spec.Type.Coerce(val)
			if !ok {
				v.fail(key, d.ID, "expected %s, got %s", spec.Type, typeName(val))
				continue
			}
			rc.params[k] = cv
		}
	}

	// Most specific explicit flag wins: rule, then rule set. Without one,
	// the all-inactive switch beats defaults.
	switch {
	case ruleActive != nil && ruleExplicit:
		rc.active = *ruleActive
	case set != nil && set.active != nil && set.activeExplicit:
		rc.active = *set.active
	case s.AllRulesInactive:
		rc.active = false
	case ruleActive != nil:
		rc.active = *ruleActive
	case set != nil && set.active != nil:
		rc.active = *set.active
	}

	if !hasScope && set != nil && set.hasScope {
		includes, excludes = set.includes, set.excludes
	}
	rc.scope = newPathScope(includes, excludes)
	return rc
}

// IsActive reports whether ruleID runs on path.
func (e *Effective) IsActive(ruleID, path string) bool {
	rc, ok := e.rules[ruleID]
	return ok && rc.active && rc.scope.allows(path)
}

// Enabled reports whether ruleID is active for the run, ignoring path scope.
func (e *Effective) Enabled(ruleID string) bool {
	rc, ok := e.rules[ruleID]
	return ok && rc.active
}

// ParamsFor returns the configured parameter values for ruleID. Declared
// defaults are not included; rules.Instantiate layers them underneath.
func (e *Effective) ParamsFor(ruleID string) map[string]any {
	rc, ok := e.rules[ruleID]
	if !ok {
		return nil
	}
	out := make(map[string]any, len(rc.params))
	for k, v := range rc.params {
		out[k] = v
	}
	return out
}

// SeverityFor returns the effective severity of ruleID.
func (e *Effective) SeverityFor(ruleID string) finding.Severity {
	if rc, ok := e.rules[ruleID]; ok {
		return rc.severity
	}
	return ""
}

// Scoped reports whether ruleID carries includes or excludes.
func (e *Effective) Scoped(ruleID string) bool {
	rc, ok := e.rules[ruleID]
	return ok && !rc.scope.empty()
}

// Provenance returns the layer that set the dotted key.
func (e *Effective) Provenance(key string) string {
	return e.tree.Provenance(key)
}

// Hash fingerprints the merged configuration.
func (e *Effective) Hash() string {
	data, err := e.tree.YAML()
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%x", sha256.Sum256(data))
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "bool"
	case int, int64, uint64:
		return "int"
	case float64:
		return "float"
	case string:
		return "string"
	case []any, []string:
		return "list"
	case map[string]any:
		return "mapping"
	default:
		return fmt.Sprintf("%T", v)
	}
}
