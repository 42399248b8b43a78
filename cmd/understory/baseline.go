package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var flagOutput string

var baselineCmd = &cobra.Command{
	Use:   "baseline",
	Short: "Manage the baseline of acknowledged findings",
}

var baselineCreateCmd = &cobra.Command{
	Use:   "create [path]",
	Short: "Analyze path and record every current finding as acknowledged",
	Long: `Analyze path (default: current directory) and write the signatures of the
current findings to the baseline file. Later runs report only findings whose
signatures are not in the baseline as new. Permanently suppressed entries of
an existing baseline are kept.

The file is --output, else --baseline, else engine.baseline from the
configuration (relative to path), else .understory/baseline.yaml under path.
check reads the same file.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runBaselineCreate,
}

func init() {
	addEngineFlags(baselineCreateCmd.Flags())
	baselineCreateCmd.Flags().StringVarP(&flagOutput, "output", "o", "", "baseline file to write")
	baselineCmd.AddCommand(baselineCreateCmd)
}

func runBaselineCreate(cmd *cobra.Command, args []string) error {
	root, err := resolveTargetDir(args)
	if err != nil {
		return outputError("baseline create", err)
	}
	engine, _, err := newEngine(cmd.Flags(), root)
	if err != nil {
		return outputError("baseline create", err)
	}
	defer engine.Close()

	path := flagOutput
	if path == "" {
		path = engine.BaselinePath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return outputError("baseline create", fmt.Errorf("creating %s: %w", filepath.Dir(path), err))
	}

	res, err := engine.Check(context.Background(), nil)
	if err != nil {
		return outputError("baseline create", err)
	}
	b, err := engine.WriteBaseline(res, path)
	if err != nil {
		return outputError("baseline create", err)
	}
	return outputResult(cmd.OutOrStdout(), CLIResult{
		Command: "baseline create",
		Results: CLIBaseline{
			Path:         path,
			Acknowledged: len(b.Acknowledged),
			Suppressed:   len(b.Suppressed),
		},
	})
}
