package main

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/understory/internal/finding"
)

func TestFindRepoRoot_DirectGitDir(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, ".git"), 0o755))

	got := findRepoRoot(root)
	assert.Equal(t, root, got)
}

func TestFindRepoRoot_NestedSubdirectory(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, ".git"), 0o755))
	deep := filepath.Join(root, "sub", "deep")
	require.NoError(t, os.MkdirAll(deep, 0o755))

	got := findRepoRoot(deep)
	assert.Equal(t, root, got)
}

func TestFindRepoRoot_NoGitAncestor(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	got := findRepoRoot(dir)
	assert.Equal(t, dir, got)
}

func TestResolveTargetDir(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	file := filepath.Join(dir, "a.go")
	require.NoError(t, os.WriteFile(file, []byte("package a\n"), 0o644))

	got, err := resolveTargetDir([]string{dir})
	require.NoError(t, err)
	assert.Equal(t, dir, got)

	_, err = resolveTargetDir([]string{file})
	assert.ErrorContains(t, err, "not a directory")

	_, err = resolveTargetDir([]string{filepath.Join(dir, "missing")})
	assert.ErrorContains(t, err, "directory not found")
}

func TestValidateFormat(t *testing.T) {
	t.Parallel()
	for _, f := range []string{"text", "json", "sarif"} {
		assert.NoError(t, validateFormat(f), f)
	}
	assert.Error(t, validateFormat("xml"))
}

func TestNewLogger(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	logger, err := newLogger("info", &buf)
	require.NoError(t, err)
	logger.Info("hello", "path", "a.go")
	assert.Contains(t, buf.String(), "hello")
	assert.Contains(t, buf.String(), "path=a.go")

	_, err = newLogger("chatty", &buf)
	assert.Error(t, err)
}

func TestFailOn(t *testing.T) {
	t.Parallel()
	findings := []finding.Finding{
		{RuleID: "a", Severity: finding.SeverityInfo},
		{RuleID: "b", Severity: finding.SeverityError, Baselined: true},
	}

	none, err := parseFailOn("none")
	require.NoError(t, err)
	assert.False(t, failing(findings, none))

	info, err := parseFailOn("info")
	require.NoError(t, err)
	assert.True(t, failing(findings, info))

	warning, err := parseFailOn("warning")
	require.NoError(t, err)
	assert.False(t, failing(findings, warning), "baselined findings never fail a run")

	_, err = parseFailOn("fatal")
	assert.Error(t, err)
}

func TestRelevant(t *testing.T) {
	t.Parallel()
	root := filepath.Join(string(filepath.Separator), "repo")
	assert.True(t, relevant(root, filepath.Join(root, "pkg", "a.go")))
	assert.True(t, relevant(root, filepath.Join(root, defaultConfigName)))
	assert.True(t, relevant(root, filepath.Join(root, "rules.yaml")))
	assert.False(t, relevant(root, filepath.Join(root, "README.md")))
	assert.False(t, relevant(root, filepath.Join(root, ".understory", "history.db")))
	assert.False(t, relevant(root, filepath.Join(root, ".git", "index")))
	assert.False(t, relevant(root, filepath.Join(string(filepath.Separator), "elsewhere", "a.go")))
}

const sampleSource = `package sample

// TODO: tidy
func Answer() int {
	return 42
}

// understory:suppress magic-number
func Suppressed() int {
	return 7
}
`

// resetFlags restores every command-line global so commands can be
// executed repeatedly in one process.
func resetFlags() {
	flagConfigs, flagSet = nil, nil
	flagFormat, flagLogLevel, flagDB = "text", "off", ""
	flagWorkers, flagBaseline, flagStrict = 0, "", false
	flagView, flagFailOn, flagWatch, flagRecord, flagFiles = "all", "warning", false, false, nil
	flagOutput, flagActiveOnly = "", false
	flagLimit, flagPrune, flagRunID = 20, 0, 0
	errorHandled = false

	var walk func(c *cobra.Command)
	walk = func(c *cobra.Command) {
		reset := func(f *pflag.Flag) { f.Changed = false }
		c.Flags().VisitAll(reset)
		c.PersistentFlags().VisitAll(reset)
		for _, sub := range c.Commands() {
			walk(sub)
		}
	}
	walk(rootCmd)
}

// execute runs the CLI with args and returns what it wrote to stdout.
// Tests using it must not run in parallel.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(append(args, "--log-level", "off"))
	err := rootCmd.Execute()
	return out.String(), err
}

func sampleProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sample.go"), []byte(sampleSource), 0o644))
	return dir
}

type checkEnvelope struct {
	Command string   `json:"command"`
	Results CLICheck `json:"results"`
}

func decodeCheck(t *testing.T, out string) CLICheck {
	t.Helper()
	var env checkEnvelope
	require.NoError(t, json.Unmarshal([]byte(out), &env))
	assert.Equal(t, "check", env.Command)
	return env.Results
}

func TestCheckCommand_Text(t *testing.T) {
	dir := sampleProject(t)

	out, err := execute(t, "check", dir)
	require.ErrorIs(t, err, errFindings)
	assert.Contains(t, out, "sample.go:3:1: info: TODO comment: tidy [todo-comment]\n")
	assert.Contains(t, out, "sample.go:5:9: warning: magic number 42 [magic-number]\n")
	assert.Contains(t, out, "sample.go:10:9: warning: magic number 7 [magic-number] (suppressed)\n")
	assert.Contains(t, out, "1 files, 3 findings (2 new, 1 suppressed, 0 baselined, 0 tooling)")
}

func TestCheckCommand_JSONNewView(t *testing.T) {
	dir := sampleProject(t)

	out, err := execute(t, "check", dir, "--format", "json", "--view", "new", "--fail-on", "error")
	require.NoError(t, err)
	c := decodeCheck(t, out)
	assert.Equal(t, "new", c.View)
	assert.Equal(t, 3, c.Stats.Findings)
	assert.Equal(t, 1, c.Stats.Suppressed)
	require.Len(t, c.Findings, 2)
	assert.Equal(t, "todo-comment", c.Findings[0].RuleID)
	assert.Equal(t, "magic-number", c.Findings[1].RuleID)
	assert.NotEmpty(t, c.ConfigHash)
}

func TestCheckCommand_Files(t *testing.T) {
	dir := sampleProject(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.go"), []byte("package sample\n\nvar x = 99\n"), 0o644))

	out, err := execute(t, "check", dir, "--format", "json", "--file", "other.go", "--workers", "1")
	require.ErrorIs(t, err, errFindings)
	c := decodeCheck(t, out)
	assert.Equal(t, 1, c.Stats.Files)
	require.Len(t, c.Findings, 1)
	assert.Equal(t, "other.go", c.Findings[0].Path)
	assert.Equal(t, "magic number 99", c.Findings[0].Message)
}

func TestCheckCommand_SetOverride(t *testing.T) {
	dir := sampleProject(t)

	out, err := execute(t, "check", dir, "--format", "json",
		"--set", "rules.magic-number.active=false")
	require.NoError(t, err, "only info findings remain")
	c := decodeCheck(t, out)
	require.Len(t, c.Findings, 1)
	assert.Equal(t, "todo-comment", c.Findings[0].RuleID)
}

func TestCheckCommand_ConfigFile(t *testing.T) {
	dir := sampleProject(t)
	cfg := "rules:\n  todo-comment:\n    severity: error\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, defaultConfigName), []byte(cfg), 0o644))

	out, err := execute(t, "check", dir, "--format", "json", "--set", "rules.magic-number.active=false")
	require.ErrorIs(t, err, errFindings)
	c := decodeCheck(t, out)
	require.Len(t, c.Findings, 1)
	assert.Equal(t, finding.SeverityError, c.Findings[0].Severity)
}

func TestCheckCommand_StrictRejectsBadConfig(t *testing.T) {
	dir := sampleProject(t)

	_, err := execute(t, "check", dir, "--set", "rules.magic-number.severity=loud", "--fail-on", "none")
	require.NoError(t, err, "configuration errors are warnings by default")

	_, err = execute(t, "check", dir, "--strict", "--set", "rules.magic-number.severity=loud")
	require.Error(t, err)
	assert.NotErrorIs(t, err, errFindings)
}

func TestCheckCommand_SARIF(t *testing.T) {
	dir := sampleProject(t)

	out, err := execute(t, "check", dir, "--format", "sarif", "--fail-on", "none")
	require.NoError(t, err)

	var log struct {
		Version string `json:"version"`
		Runs    []struct {
			Tool struct {
				Driver struct {
					Name  string `json:"name"`
					Rules []struct {
						ID string `json:"id"`
					} `json:"rules"`
				} `json:"driver"`
			} `json:"tool"`
			Results []struct {
				RuleID     string         `json:"ruleId"`
				Level      string         `json:"level"`
				Properties map[string]any `json:"properties"`
				Locations  []struct {
					PhysicalLocation struct {
						ArtifactLocation struct {
							URI string `json:"uri"`
						} `json:"artifactLocation"`
						Region struct {
							StartLine   int `json:"startLine"`
							StartColumn int `json:"startColumn"`
						} `json:"region"`
					} `json:"physicalLocation"`
				} `json:"locations"`
			} `json:"results"`
		} `json:"runs"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &log))
	assert.Equal(t, "2.1.0", log.Version)
	require.Len(t, log.Runs, 1)
	run := log.Runs[0]
	assert.Equal(t, toolName, run.Tool.Driver.Name)
	assert.Len(t, run.Tool.Driver.Rules, 2)
	require.Len(t, run.Results, 3)

	todo := run.Results[0]
	assert.Equal(t, "todo-comment", todo.RuleID)
	assert.Equal(t, "note", todo.Level)
	require.Len(t, todo.Locations, 1)
	assert.Equal(t, "sample.go", todo.Locations[0].PhysicalLocation.ArtifactLocation.URI)
	assert.Equal(t, 3, todo.Locations[0].PhysicalLocation.Region.StartLine)
	assert.Equal(t, 1, todo.Locations[0].PhysicalLocation.Region.StartColumn)
	assert.NotEmpty(t, todo.Properties["signature"])
	assert.Equal(t, true, run.Results[2].Properties["suppressed"])
}

func TestBaselineCreate_ThenCheck(t *testing.T) {
	dir := sampleProject(t)

	out, err := execute(t, "baseline", "create", dir, "--format", "json")
	require.NoError(t, err)
	var env struct {
		Results CLIBaseline `json:"results"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &env))
	path := filepath.Join(dir, ".understory", "baseline.yaml")
	assert.Equal(t, path, env.Results.Path)
	assert.Equal(t, 2, env.Results.Acknowledged)
	assert.FileExists(t, path)

	out, err = execute(t, "check", dir, "--format", "json", "--baseline", path, "--view", "new")
	require.NoError(t, err, "baselined findings do not fail the run")
	c := decodeCheck(t, out)
	assert.Empty(t, c.Findings)
	assert.Equal(t, 2, c.Stats.Baselined)
	assert.Equal(t, 0, c.Stats.New)
}

func TestBaselineCreate_ThenCheckDefaultPath(t *testing.T) {
	dir := sampleProject(t)

	_, err := execute(t, "baseline", "create", dir, "--format", "json")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, ".understory", "baseline.yaml"))

	out, err := execute(t, "check", dir, "--format", "json", "--view", "new")
	require.NoError(t, err)
	c := decodeCheck(t, out)
	assert.Empty(t, c.Findings)
	assert.Equal(t, 2, c.Stats.Baselined)
	assert.Equal(t, 0, c.Stats.New)
}

func TestBaselineCreate_ConfiguredPathIsRootRelative(t *testing.T) {
	dir := sampleProject(t)
	cfg := "engine:\n  baseline: acked.yaml\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, defaultConfigName), []byte(cfg), 0o644))

	out, err := execute(t, "baseline", "create", dir, "--format", "json")
	require.NoError(t, err)
	var env struct {
		Results CLIBaseline `json:"results"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &env))
	path := filepath.Join(dir, "acked.yaml")
	assert.Equal(t, path, env.Results.Path)
	assert.FileExists(t, path)
	assert.NoFileExists(t, "acked.yaml")

	out, err = execute(t, "check", dir, "--format", "json", "--view", "new")
	require.NoError(t, err)
	c := decodeCheck(t, out)
	assert.Equal(t, 2, c.Stats.Baselined)
	assert.Equal(t, 0, c.Stats.New)
}

func TestRulesCommand(t *testing.T) {
	dir := t.TempDir()

	out, err := execute(t, "rules", dir, "--format", "json", "--set", "rules.magic-number.active=false")
	require.NoError(t, err)
	var env struct {
		Results []CLIRule `json:"results"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &env))
	byID := map[string]CLIRule{}
	for _, r := range env.Results {
		byID[r.ID] = r
	}
	require.Contains(t, byID, "magic-number")
	assert.False(t, byID["magic-number"].Active)
	assert.Equal(t, "--set", byID["magic-number"].ActiveFrom)
	assert.Contains(t, byID["magic-number"].Params, "ignore")
	assert.False(t, byID["duplicate-string"].Active)
	assert.True(t, byID["todo-comment"].Active)

	out, err = execute(t, "rules", dir, "--active")
	require.NoError(t, err)
	assert.Contains(t, out, "todo-comment")
	assert.Contains(t, out, "magic-number")
	assert.NotContains(t, out, "duplicate-string")
	assert.Contains(t, out, "RULE SET")
}

func TestHistoryCommand(t *testing.T) {
	dir := sampleProject(t)

	_, err := execute(t, "history", dir)
	require.Error(t, err, "no history before the first recorded run")

	for i := 0; i < 3; i++ {
		_, err := execute(t, "check", dir, "--record", "--fail-on", "none")
		require.NoError(t, err)
	}

	out, err := execute(t, "history", dir, "--format", "json", "--prune", "2")
	require.NoError(t, err)
	var runs struct {
		Results []CLIRun `json:"results"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &runs))
	require.Len(t, runs.Results, 2)
	assert.Greater(t, runs.Results[0].ID, runs.Results[1].ID)
	assert.Equal(t, 3, runs.Results[0].Findings)
	assert.Equal(t, 2, runs.Results[0].New)

	out, err = execute(t, "history", dir, "--run", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "sample.go:5:9: warning: magic number 42 [magic-number]")
}

func TestPermalink(t *testing.T) {
	t.Parallel()
	repo := &repository{Subfolder: "svc", Commit: "abc123", Link: "https://github.com/acme/app"}
	assert.Equal(t, "https://github.com/acme/app/blob/abc123/svc/pkg/a.go#L7", repo.Permalink("pkg/a.go", 7))

	var none *repository
	assert.Empty(t, none.Permalink("a.go", 1))
	assert.Empty(t, (&repository{Commit: "abc123"}).Permalink("a.go", 1))
}

func TestWebLink(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "https://github.com/acme/app", webLink("https://github.com/acme/app.git"))
	assert.Equal(t, "https://github.com/acme/app", webLink("git@github.com:acme/app.git"))
}

func TestOpenRepository_NotARepository(t *testing.T) {
	t.Parallel()
	assert.Nil(t, openRepository(t.TempDir()))
}
