package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/jward/understory"
)

// outputResult writes result to w in the selected format. SARIF is only
// produced by commands that report findings; others fall back to JSON.
func outputResult(w io.Writer, result CLIResult) error {
	if flagFormat == "text" {
		return outputResultText(w, result)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// outputError writes an error in the selected format and returns it so RunE
// can propagate it to Cobra. In JSON and SARIF mode the error is written to
// stdout as a CLIResult envelope. In text mode it goes to stderr.
func outputError(command string, err error) error {
	errorHandled = true
	if flagFormat == "text" {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(CLIResult{Command: command, Error: err.Error()})
	return err
}

func outputResultText(w io.Writer, result CLIResult) error {
	switch r := result.Results.(type) {
	case CLICheck:
		formatCheckText(w, r)
	case []CLIRule:
		formatRulesText(w, r)
	case []CLIRun:
		formatRunsText(w, r)
	case []understory.Finding:
		formatFindingsText(w, r)
	case CLIBaseline:
		fmt.Fprintf(w, "Baseline written to %s (%d acknowledged, %d suppressed)\n",
			r.Path, r.Acknowledged, r.Suppressed)
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	return nil
}

// formatFindingsText formats findings as "file:line:col: severity: message [rule]"
// lines, tagging suppressed and baselined ones.
func formatFindingsText(w io.Writer, findings []understory.Finding) {
	for _, f := range findings {
		var tags []string
		if f.Suppressed {
			tags = append(tags, "suppressed")
		}
		if f.Baselined {
			tags = append(tags, "baselined")
		}
		suffix := ""
		if len(tags) > 0 {
			suffix = " (" + strings.Join(tags, ", ") + ")"
		}
		fmt.Fprintf(w, "%s:%d:%d: %s: %s [%s]%s\n",
			f.Path, f.Line, f.Col, f.Severity, f.Message, f.RuleID, suffix)
	}
}

// formatCheckText formats a check result: findings, then errors, then a
// one-line summary.
func formatCheckText(w io.Writer, c CLICheck) {
	formatFindingsText(w, c.Findings)
	for _, e := range c.Errors {
		fmt.Fprintf(w, "error: %s\n", e)
	}
	s := c.Stats
	fmt.Fprintf(w, "%d files, %d findings (%d new, %d suppressed, %d baselined, %d tooling) in %s\n",
		s.Files, s.Findings, s.New, s.Suppressed, s.Baselined, s.Tooling, c.Duration)
}

// formatRulesText formats the rule listing as aligned columns.
func formatRulesText(w io.Writer, rules []CLIRule) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tRULE SET\tSEVERITY\tACTIVE\tFROM\tDESCRIPTION")
	for _, r := range rules {
		active := "no"
		if r.Active {
			active = "yes"
		}
		if r.Scoped {
			active += " (scoped)"
		}
		from := r.ActiveFrom
		if from == "" {
			from = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.RuleSet, r.Severity, active, from, r.Description)
	}
	tw.Flush()
}

// formatRunsText formats run history as aligned columns.
func formatRunsText(w io.Writer, runs []CLIRun) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTARTED\tDURATION\tFILES\tFINDINGS\tNEW\tSUPPRESSED\tBASELINED\tTOOLING\tCONFIG")
	for _, r := range runs {
		hash := r.ConfigHash
		if len(hash) > 12 {
			hash = hash[:12]
		}
		fmt.Fprintf(tw, "%d\t%s\t%dms\t%d\t%d\t%d\t%d\t%d\t%d\t%s\n",
			r.ID, r.StartedAt.Local().Format("2006-01-02 15:04:05"), r.DurationMS,
			r.Files, r.Findings, r.New, r.Suppressed, r.Baselined, r.Tooling, hash)
	}
	tw.Flush()
}
