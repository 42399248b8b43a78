package main

import (
	"io"

	"github.com/owenrumney/go-sarif/v2/sarif"

	"github.com/jward/understory"
	"github.com/jward/understory/internal/finding"
)

const (
	toolName = "understory"
	toolURI  = "https://github.com/jward/understory"
)

// sarifLevel maps a finding severity to a SARIF result level.
func sarifLevel(s finding.Severity) string {
	switch s {
	case finding.SeverityError:
		return "error"
	case finding.SeverityInfo:
		return "note"
	default:
		return "warning"
	}
}

// writeSARIF writes findings as a SARIF 2.1.0 log. Rule metadata comes from
// rules; engine-produced rule IDs get a generic description.
func writeSARIF(w io.Writer, findings []understory.Finding, rules []understory.RuleInfo, repo *repository) error {
	report, err := sarif.New(sarif.Version210)
	if err != nil {
		return err
	}
	run := sarif.NewRunWithInformationURI(toolName, toolURI)

	byID := make(map[string]understory.RuleInfo, len(rules))
	for _, ri := range rules {
		byID[ri.Descriptor.ID] = ri
	}

	for _, f := range findings {
		desc := "Engine diagnostic"
		level := sarifLevel(f.Severity)
		if ri, ok := byID[f.RuleID]; ok {
			desc = ri.Descriptor.Description
			level = sarifLevel(ri.Severity)
		}
		run.AddRule(f.RuleID).
			WithDescription(desc).
			WithDefaultConfiguration(&sarif.ReportingConfiguration{Level: level})

		region := sarif.NewRegion().WithStartLine(f.Line)
		col := f.Col
		region.StartColumn = &col
		location := sarif.NewLocation().
			WithPhysicalLocation(sarif.NewPhysicalLocation().
				WithArtifactLocation(sarif.NewArtifactLocation().WithUri(f.Path)).
				WithRegion(region))

		result := sarif.NewRuleResult(f.RuleID).
			WithMessage(sarif.NewTextMessage(f.Message)).
			WithLevel(sarifLevel(f.Severity)).
			WithLocations([]*sarif.Location{location})
		result.Properties = map[string]interface{}{
			"signature":  f.Signature,
			"kind":       string(f.Kind),
			"suppressed": f.Suppressed,
			"baselined":  f.Baselined,
		}
		if link := repo.Permalink(f.Path, f.Line); link != "" {
			result.Properties["permalink"] = link
		}
		run.AddResult(result)
	}

	report.AddRun(run)
	return report.PrettyWrite(w)
}
