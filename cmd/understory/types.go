package main

import (
	"time"

	"github.com/jward/understory"
	"github.com/jward/understory/internal/store"
)

// CLIResult is the top-level JSON envelope for every command.
type CLIResult struct {
	Command string `json:"command"`
	Results any    `json:"results"`
	Error   string `json:"error,omitempty"`
}

// CLICheck is the JSON form of an analysis run.
type CLICheck struct {
	Root       string               `json:"root"`
	View       string               `json:"view"`
	ConfigHash string               `json:"config_hash"`
	Duration   string               `json:"duration"`
	Stats      understory.Stats     `json:"stats"`
	Findings   []understory.Finding `json:"findings"`
	Errors     []string             `json:"errors,omitempty"`
	Warnings   []string             `json:"warnings,omitempty"`
}

// CLIRule is a JSON-friendly rule listing entry.
type CLIRule struct {
	ID          string   `json:"id"`
	RuleSet     string   `json:"rule_set"`
	Description string   `json:"description"`
	Severity    string   `json:"severity"`
	Active      bool     `json:"active"`
	ActiveFrom  string   `json:"active_from,omitempty"`
	Scoped      bool     `json:"scoped,omitempty"`
	Params      []string `json:"params,omitempty"`
}

// CLIRun is a JSON-friendly run-history entry.
type CLIRun struct {
	ID         int64     `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	DurationMS int64     `json:"duration_ms"`
	ConfigHash string    `json:"config_hash"`
	Root       string    `json:"root"`
	Files      int       `json:"files"`
	Findings   int       `json:"findings"`
	New        int       `json:"new"`
	Suppressed int       `json:"suppressed"`
	Baselined  int       `json:"baselined"`
	Tooling    int       `json:"tooling"`
}

// CLIBaseline summarizes a written baseline.
type CLIBaseline struct {
	Path         string `json:"path"`
	Acknowledged int    `json:"acknowledged"`
	Suppressed   int    `json:"suppressed"`
}

func toCLIRun(r *store.Run) CLIRun {
	return CLIRun{
		ID:         r.ID,
		StartedAt:  r.StartedAt,
		DurationMS: r.Duration.Milliseconds(),
		ConfigHash: r.ConfigHash,
		Root:       r.Root,
		Files:      r.Files,
		Findings:   r.Findings,
		New:        r.New,
		Suppressed: r.Suppressed,
		Baselined:  r.Baselined,
		Tooling:    r.Tooling,
	}
}

func toCLIRule(ri understory.RuleInfo) CLIRule {
	d := ri.Descriptor
	r := CLIRule{
		ID:          d.ID,
		RuleSet:     d.RuleSet,
		Description: d.Description,
		Severity:    string(ri.Severity),
		Active:      ri.Active,
		ActiveFrom:  ri.ActiveFrom,
		Scoped:      ri.Scoped,
	}
	for _, p := range d.Params {
		r.Params = append(r.Params, p.Name)
	}
	return r
}
