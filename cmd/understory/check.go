package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/jward/understory"
	"github.com/jward/understory/internal/finding"
)

var (
	flagWorkers  int
	flagBaseline string
	flagStrict   bool
	flagView     string
	flagFailOn   string
	flagWatch    bool
	flagRecord   bool
	flagFiles    []string
)

var checkCmd = &cobra.Command{
	Use:   "check [path]",
	Short: "Analyze a directory and report findings",
	Long: `Analyze every supported source file under path (default: current directory)
in one pass per file and report the findings.

Exits 1 when new findings at or above --fail-on are reported, 2 on errors.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCheck,
}

func init() {
	addEngineFlags(checkCmd.Flags())
	checkCmd.Flags().StringVar(&flagView, "view", "all", "findings to report: all|new")
	checkCmd.Flags().StringVar(&flagFailOn, "fail-on", "warning", "exit non-zero for new findings at or above: info|warning|error|none")
	checkCmd.Flags().BoolVar(&flagWatch, "watch", false, "re-run whenever a source or configuration file changes")
	checkCmd.Flags().BoolVar(&flagRecord, "record", false, "record the run in the history database")
	checkCmd.Flags().StringArrayVar(&flagFiles, "file", nil, "analyze only this file, relative to path (repeatable)")
}

// addEngineFlags registers the flags shared by commands that run analysis.
func addEngineFlags(fs *pflag.FlagSet) {
	fs.IntVar(&flagWorkers, "workers", 0, "parallel workers (0: one per CPU)")
	fs.StringVar(&flagBaseline, "baseline", "", "baseline file (overrides engine.baseline)")
	fs.BoolVar(&flagStrict, "strict", false, "fail on any configuration error")
}

// parseFailOn returns the severity threshold for --fail-on, or "" for none.
func parseFailOn(s string) (finding.Severity, error) {
	if s == "none" {
		return "", nil
	}
	sev, err := finding.ParseSeverity(s)
	if err != nil {
		return "", fmt.Errorf("invalid --fail-on: %w", err)
	}
	return sev, nil
}

// failing reports whether any new finding reaches threshold.
func failing(findings []understory.Finding, threshold finding.Severity) bool {
	if threshold == "" {
		return false
	}
	for _, f := range findings {
		if f.IsNew() && f.Severity.Rank() >= threshold.Rank() {
			return true
		}
	}
	return false
}

func runCheck(cmd *cobra.Command, args []string) error {
	view, err := understory.ParseView(flagView)
	if err != nil {
		return outputError("check", err)
	}
	threshold, err := parseFailOn(flagFailOn)
	if err != nil {
		return outputError("check", err)
	}
	root, err := resolveTargetDir(args)
	if err != nil {
		return outputError("check", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if flagWatch {
		return watch(ctx, root, func(ctx context.Context) {
			if _, err := checkOnce(ctx, cmd.Flags(), root, view, cmd.OutOrStdout()); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			}
		})
	}

	res, err := checkOnce(ctx, cmd.Flags(), root, view, cmd.OutOrStdout())
	if err != nil {
		return outputError("check", err)
	}
	if failing(res.All(), threshold) {
		return errFindings
	}
	return nil
}

// checkOnce builds an engine, analyzes root and writes the report.
func checkOnce(ctx context.Context, flags *pflag.FlagSet, root string, view understory.View, w io.Writer) (*understory.AnalysisResult, error) {
	engine, logger, err := newEngine(flags, root)
	if err != nil {
		return nil, err
	}
	defer engine.Close()

	res, err := engine.Check(ctx, flagFiles)
	if err != nil && !errors.Is(err, context.Canceled) {
		return nil, err
	}
	if res == nil {
		return nil, err
	}
	logger.Info("check finished", "root", root, "files", res.Stats.Files,
		"findings", res.Stats.Findings, "new", res.Stats.New, "duration", res.Duration)

	findings := res.View(view)
	if flagFormat == "sarif" {
		if werr := writeSARIF(w, findings, engine.Rules(), openRepository(root)); werr != nil {
			return nil, werr
		}
		return res, err
	}

	report := CLICheck{
		Root:       root,
		View:       string(view),
		ConfigHash: res.ConfigHash,
		Duration:   res.Duration.String(),
		Stats:      res.Stats,
		Findings:   findings,
		Errors:     errorStrings(res.Errors),
		Warnings:   errorStrings(engine.Warnings()),
	}
	if report.Findings == nil {
		report.Findings = []understory.Finding{}
	}
	if werr := outputResult(w, CLIResult{Command: "check", Results: report}); werr != nil {
		return nil, werr
	}
	return res, err
}
