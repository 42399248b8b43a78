package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var (
	flagConfigs  []string
	flagSet      []string
	flagFormat   string
	flagLogLevel string
	flagDB       string
)

// errorHandled is set by outputError so main() doesn't double-print.
var errorHandled bool

// errFindings signals that the run succeeded but reported findings at or
// above the --fail-on threshold.
var errFindings = errors.New("findings reported")

func main() {
	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, errFindings) {
			os.Exit(1)
		}
		if !errorHandled {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}
		os.Exit(2)
	}
}

var rootCmd = &cobra.Command{
	Use:           "understory",
	Short:         "Single-pass, multi-rule static analysis over tree-sitter syntax trees",
	Long:          "Understory runs configurable rules over every supported source file in one coordinated pass per file and reports deterministic, ordered findings.",
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return validateFormat(flagFormat)
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringArrayVarP(&flagConfigs, "config", "c", nil, "configuration file (repeatable, later files take precedence)")
	pf.StringArrayVar(&flagSet, "set", nil, "override a configuration key, e.g. rules.magic-number.active=false (repeatable)")
	pf.StringVar(&flagFormat, "format", "text", "output format: text|json|sarif")
	pf.StringVar(&flagLogLevel, "log-level", "warn", "log level: trace|debug|info|warn|error|off")
	pf.StringVar(&flagDB, "db", "", "run-history database (default: .understory/history.db relative to repo root)")

	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(baselineCmd)
	rootCmd.AddCommand(rulesCmd)
	rootCmd.AddCommand(historyCmd)
}

// resolveTargetDir returns the absolute path of the directory to analyze.
func resolveTargetDir(args []string) (string, error) {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving path %q: %w", dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("directory not found: %s", abs)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("not a directory: %s", abs)
	}
	return abs, nil
}

// findRepoRoot walks up from startDir looking for a .git directory.
// Returns the directory containing .git, or startDir if not found.
func findRepoRoot(startDir string) string {
	dir := startDir
	for {
		if info, err := os.Stat(filepath.Join(dir, ".git")); err == nil && info.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return startDir
		}
		dir = parent
	}
}

// resolveDBPath returns the database path from --db, relative to repoRoot
// when not absolute.
func resolveDBPath(repoRoot string) string {
	if flagDB == "" {
		return filepath.Join(repoRoot, ".understory", "history.db")
	}
	if filepath.IsAbs(flagDB) {
		return flagDB
	}
	return filepath.Join(repoRoot, flagDB)
}
