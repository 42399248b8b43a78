package script

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/understory/internal/config"
	"github.com/jward/understory/internal/finding"
	"github.com/jward/understory/internal/frontend"
	"github.com/jward/understory/internal/rules"
	"github.com/jward/understory/internal/traverse"
)

type defaults struct{}

func (defaults) Enabled(string) bool                  { return true }
func (defaults) ParamsFor(string) map[string]any      { return nil }
func (defaults) SeverityFor(string) finding.Severity { return "" }

const scriptSource = `package p

var a = 42
var b = 7

func Answer() int { return 42 }
`

func run(t *testing.T, specs ...config.ScriptSpec) *traverse.Result {
	t.Helper()
	descs, errs := Descriptors(specs, t.TempDir(), nil)
	require.Empty(t, errs)
	insts, ierrs := rules.Instantiate(defaults{}, descs)
	require.Empty(t, ierrs)

	u := frontend.Parse(context.Background(), "p/answer.go", "", []byte(scriptSource))
	require.NoError(t, u.Err)
	defer u.Close()

	file := &rules.FileInfo{Path: u.Path, Language: u.Language, Source: u.Source}
	res, err := traverse.Walk(context.Background(), file, u.Tree.RootNode(), traverse.NewDispatcher(insts), nil)
	require.NoError(t, err)
	return res
}

func TestScriptRule_Reports(t *testing.T) {
	t.Parallel()
	res := run(t, config.ScriptSpec{
		ID:     "no-answer",
		Kinds:  []string{"int_literal"},
		Source: `if node_text(node) == params["value"] { report("magic " + node_text(node)) }`,
		Params: map[string]config.ScriptParamSpec{
			"value": {Type: rules.ParamString, Default: "42"},
		},
	})
	require.Empty(t, res.Failures)
	require.Len(t, res.Findings, 2)
	for _, f := range res.Findings {
		assert.Equal(t, "no-answer", f.RuleID)
		assert.Equal(t, "magic 42", f.Message)
		assert.Equal(t, finding.SeverityWarning, f.Severity)
	}
	assert.Equal(t, 3, res.Findings[0].Line)
	assert.Equal(t, 6, res.Findings[1].Line)
}

func TestScriptRule_NodeChildAndExplicitTarget(t *testing.T) {
	t.Parallel()
	res := run(t, config.ScriptSpec{
		ID:       "func-names",
		Severity: "info",
		Kinds:    []string{"function_declaration"},
		Source: `
name := node_child(node, "name")
if name != nil {
    report('function {node_text(name)}', name)
}
assert(node_child(node, "no_such_field") == nil, "expected nil")
`,
	})
	require.Empty(t, res.Failures)
	require.Len(t, res.Findings, 1)
	assert.Equal(t, "function Answer", res.Findings[0].Message)
	assert.Equal(t, finding.SeverityInfo, res.Findings[0].Severity)
	assert.Equal(t, 6, res.Findings[0].Line)
	assert.Equal(t, 6, res.Findings[0].Col)
}

func TestScriptRule_Query(t *testing.T) {
	t.Parallel()
	res := run(t, config.ScriptSpec{
		ID:    "returns-literal",
		Kinds: []string{"function_declaration"},
		Source: `
matches := query("(return_statement (expression_list (int_literal) @lit))", node)
for _, m := range matches {
    report("literal return", m["lit"])
}
`,
	})
	require.Empty(t, res.Failures)
	require.Len(t, res.Findings, 1)
	assert.Equal(t, "literal return", res.Findings[0].Message)
}

func TestScriptRule_FailureIsContained(t *testing.T) {
	t.Parallel()
	res := run(t,
		config.ScriptSpec{ID: "broken", Kinds: []string{"int_literal"}, Source: `this_is_not_defined()`},
		config.ScriptSpec{ID: "fine", Kinds: []string{"int_literal"}, Source: `report("int")`},
	)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "broken", res.Failures[0].Rule)
	assert.Len(t, res.Findings, 3)
	require.Len(t, res.Diagnostics, 1)
	assert.Equal(t, finding.KindTooling, res.Diagnostics[0].Kind)
}

func TestScriptRule_LanguageFilter(t *testing.T) {
	t.Parallel()
	res := run(t, config.ScriptSpec{
		ID:        "python-only",
		Languages: []string{"Python"},
		Kinds:     []string{"int_literal"},
		Source:    `report("int")`,
	})
	assert.Empty(t, res.Findings)
}

func TestDescriptors_Invalid(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "rule.risor"), []byte(`report("x")`), 0o644))
	off := false

	descs, errs := Descriptors([]config.ScriptSpec{
		{ID: "no-kinds", Source: `report("x")`},
		{ID: "bad-severity", Kinds: []string{"comment"}, Severity: "loud", Source: `report("x")`},
		{ID: "missing-file", Kinds: []string{"comment"}, File: "nope.risor"},
		{ID: "from-file", RuleSet: "team", Kinds: []string{"comment"}, File: "rule.risor", Active: &off},
	}, dir, nil)
	require.Len(t, errs, 3)
	assert.Equal(t, "no-kinds", errs[0].Rule)
	assert.Equal(t, "bad-severity", errs[1].Rule)
	assert.Contains(t, errs[1].Error(), `unknown severity "loud"`)
	require.Len(t, descs, 1)

	d := descs[0]
	assert.Equal(t, "from-file", d.ID)
	assert.Equal(t, "team", d.RuleSet)
	assert.False(t, d.Active)
	assert.Equal(t, finding.SeverityWarning, d.Severity)

	descs, errs = Descriptors([]config.ScriptSpec{{ID: "x", Kinds: []string{"comment"}, Source: "1"}}, dir, nil)
	require.Empty(t, errs)
	assert.Equal(t, DefaultRuleSet, descs[0].RuleSet)
}
