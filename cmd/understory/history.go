package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jward/understory"
	"github.com/jward/understory/internal/store"
)

var (
	flagLimit int
	flagPrune int
	flagRunID int64
)

var historyCmd = &cobra.Command{
	Use:   "history [path]",
	Short: "List recorded runs",
	Long: `List the runs recorded by "check --record", most recent first.

With --run, print the findings of one recorded run instead. With --prune N,
delete all but the N most recent runs first.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntVar(&flagLimit, "limit", 20, "maximum number of runs to list (0: all)")
	historyCmd.Flags().IntVar(&flagPrune, "prune", 0, "keep only the N most recent runs")
	historyCmd.Flags().Int64Var(&flagRunID, "run", 0, "show the findings of this run")
}

func openHistory(args []string) (*store.Store, error) {
	dir, err := resolveTargetDir(args)
	if err != nil {
		return nil, err
	}
	dbPath := resolveDBPath(findRepoRoot(dir))
	if _, err := os.Stat(dbPath); err != nil {
		return nil, fmt.Errorf("no run history at %s (run check --record first)", dbPath)
	}
	s, err := store.NewStore(dbPath)
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	s, err := openHistory(args)
	if err != nil {
		return outputError("history", err)
	}
	defer s.Close()

	if flagPrune > 0 {
		n, err := s.PruneRuns(flagPrune)
		if err != nil {
			return outputError("history", err)
		}
		fmt.Fprintf(os.Stderr, "Pruned %d runs\n", n)
	}

	if flagRunID > 0 {
		run, err := s.RunByID(flagRunID)
		if err != nil {
			return outputError("history", err)
		}
		if run == nil {
			return outputError("history", fmt.Errorf("run %d not found", flagRunID))
		}
		findings, err := s.FindingsForRun(run.ID)
		if err != nil {
			return outputError("history", err)
		}
		if findings == nil {
			findings = []understory.Finding{}
		}
		return outputResult(cmd.OutOrStdout(), CLIResult{Command: "history", Results: findings})
	}

	runs, err := s.Runs(flagLimit)
	if err != nil {
		return outputError("history", err)
	}
	out := make([]CLIRun, 0, len(runs))
	for _, r := range runs {
		out = append(out, toCLIRun(r))
	}
	return outputResult(cmd.OutOrStdout(), CLIResult{Command: "history", Results: out})
}
