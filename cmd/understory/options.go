package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/pflag"

	"github.com/jward/understory"
	"github.com/jward/understory/internal/config"
)

// defaultConfigName is picked up from the analysis root when no --config is
// given.
const defaultConfigName = ".understory.yaml"

// newLogger builds the stderr logger for --log-level.
func newLogger(level string, w io.Writer) (hclog.Logger, error) {
	lvl := hclog.LevelFromString(level)
	if lvl == hclog.NoLevel {
		return nil, fmt.Errorf("invalid --log-level %q: must be trace, debug, info, warn, error or off", level)
	}
	return hclog.New(&hclog.LoggerOptions{
		Name:   "understory",
		Output: w,
		Level:  lvl,
	}), nil
}

// validateFormat checks that the --format flag value is supported.
func validateFormat(format string) error {
	switch format {
	case "text", "json", "sarif":
		return nil
	default:
		return fmt.Errorf("invalid --format %q: must be text, json or sarif", format)
	}
}

// configFiles returns the --config files, or the default config file under
// root when none were given and it exists.
func configFiles(root string) []string {
	if len(flagConfigs) > 0 {
		return flagConfigs
	}
	def := filepath.Join(root, defaultConfigName)
	if _, err := os.Stat(def); err == nil {
		return []string{def}
	}
	return nil
}

// engineOptions translates the command's flags into engine options. Flags
// a command does not define are skipped.
func engineOptions(flags *pflag.FlagSet, root string, logger hclog.Logger) ([]understory.Option, error) {
	opts := []understory.Option{
		understory.WithLogger(logger),
		understory.WithRoot(root),
		understory.WithConfigFiles(configFiles(root)...),
		understory.WithDefaultBaselinePath(defaultBaselinePath(root)),
	}

	overrides := append([]string(nil), flagSet...)
	if strict, err := flags.GetBool("strict"); err == nil && strict {
		overrides = append(overrides, "engine.strict=true")
	}
	if len(overrides) > 0 {
		layer, err := config.OverrideLayer("--set", overrides)
		if err != nil {
			return nil, err
		}
		opts = append(opts, understory.WithConfigLayers(layer))
	}

	if flags.Changed("workers") {
		n, err := flags.GetInt("workers")
		if err != nil {
			return nil, err
		}
		if n < 0 {
			return nil, fmt.Errorf("invalid --workers %d: must not be negative", n)
		}
		opts = append(opts, understory.WithWorkers(n))
	}
	if path, err := flags.GetString("baseline"); err == nil && path != "" {
		opts = append(opts, understory.WithBaselinePath(path))
	}
	if record, err := flags.GetBool("record"); err == nil && record {
		dbPath := resolveDBPath(findRepoRoot(root))
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("creating %s: %w", filepath.Dir(dbPath), err)
		}
		opts = append(opts, understory.WithStore(dbPath))
	}
	return opts, nil
}

// defaultBaselinePath is where baseline create writes, and check reads, when
// no baseline file is configured.
func defaultBaselinePath(root string) string {
	return filepath.Join(root, ".understory", "baseline.yaml")
}

// newEngine builds an engine for root from the command's flags.
func newEngine(flags *pflag.FlagSet, root string) (*understory.Engine, hclog.Logger, error) {
	logger, err := newLogger(flagLogLevel, os.Stderr)
	if err != nil {
		return nil, nil, err
	}
	opts, err := engineOptions(flags, root, logger)
	if err != nil {
		return nil, nil, err
	}
	engine, err := understory.New(opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("creating engine: %w", err)
	}
	return engine, logger, nil
}

func errorStrings(errs []error) []string {
	if len(errs) == 0 {
		return nil
	}
	out := make([]string, len(errs))
	for i, err := range errs {
		out[i] = strings.TrimPrefix(err.Error(), "understory: ")
	}
	return out
}
