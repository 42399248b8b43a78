package main

import (
	"github.com/spf13/cobra"
)

var flagActiveOnly bool

var rulesCmd = &cobra.Command{
	Use:   "rules [path]",
	Short: "List registered rules and their effective activation",
	Long: `List every registered rule (built-in and script rules) with its rule set,
effective severity and activation under the configuration for path.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRules,
}

func init() {
	rulesCmd.Flags().BoolVar(&flagActiveOnly, "active", false, "list only active rules")
}

func runRules(cmd *cobra.Command, args []string) error {
	root, err := resolveTargetDir(args)
	if err != nil {
		return outputError("rules", err)
	}
	engine, _, err := newEngine(cmd.Flags(), root)
	if err != nil {
		return outputError("rules", err)
	}
	defer engine.Close()

	out := []CLIRule{}
	for _, ri := range engine.Rules() {
		if flagActiveOnly && !ri.Active {
			continue
		}
		out = append(out, toCLIRule(ri))
	}
	return outputResult(cmd.OutOrStdout(), CLIResult{Command: "rules", Results: out})
}
