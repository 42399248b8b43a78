package config

import (
	"github.com/jward/understory/internal/rules"
)

// DefaultsLayerName names the built-in layer in provenance output.
const DefaultsLayerName = "defaults"

// DefaultLayer renders the engine defaults and every descriptor's declared
// activation and parameter defaults as the lowest-precedence layer.
func DefaultLayer(descs []*rules.Descriptor) Layer {
	s := DefaultEngineSettings()
	ruleVals := map[string]any{}
	for _, d := range descs {
		m := map[string]any{keyActive: d.Active}
		for k, v := range d.Defaults() {
			m[k] = v
		}
		ruleVals[d.ID] = m
	}
	return Layer{
		Name:     DefaultsLayerName,
		Defaults: true,
		Values: map[string]any{
			sectionEngine: map[string]any{
				"strict":             s.Strict,
				"all_rules_inactive": s.AllRulesInactive,
				"tooling_errors":     string(s.ToolingErrors),
				"suppressed":         string(s.Suppressed),
			},
			sectionRules: ruleVals,
		},
	}
}
