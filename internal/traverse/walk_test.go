package traverse

import (
	"context"
	"errors"
	"testing"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/understory/internal/finding"
	"github.com/jward/understory/internal/rules"
)

type allEnabled struct{}

func (allEnabled) Enabled(string) bool                 { return true }
func (allEnabled) ParamsFor(string) map[string]any     { return nil }
func (allEnabled) SeverityFor(string) finding.Severity { return "" }

func literalRule(id, kind string, visit rules.VisitFunc) *rules.Descriptor {
	if visit == nil {
		visit = func(c *rules.Context, n *sitter.Node) error {
			c.Reportf(n, "%s literal %s", kind, c.Text(n))
			return nil
		}
	}
	return &rules.Descriptor{
		ID:       id,
		RuleSet:  "literals",
		Severity: finding.SeverityWarning,
		Active:   true,
		Build: func(rules.Params) (rules.Visitors, error) {
			return rules.Visitors{Kinds: map[string]rules.VisitFunc{kind: visit}}, nil
		},
	}
}

func intRule(visit rules.VisitFunc) *rules.Descriptor {
	return literalRule("int-lit", "int_literal", visit)
}

func strRule() *rules.Descriptor {
	return literalRule("str-lit", "interpreted_string_literal", nil)
}

func dispatcher(t *testing.T, descs ...*rules.Descriptor) *Dispatcher {
	t.Helper()
	insts, errs := rules.Instantiate(allEnabled{}, descs)
	require.Empty(t, errs)
	return NewDispatcher(insts)
}

func walkGo(t *testing.T, ctx context.Context, src string, d *Dispatcher, enabled func(string) bool) (*Result, error) {
	t.Helper()
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(golang.GetLanguage())
	tree, err := parser.ParseCtx(context.Background(), nil, []byte(src))
	require.NoError(t, err)
	defer tree.Close()

	file := &rules.FileInfo{Path: "p/a.go", Language: "go", Source: []byte(src)}
	return Walk(ctx, file, tree.RootNode(), d, enabled)
}

const literalSource = "package p\n\nvar a = 1\nvar b = \"s\"\n"

func TestWalk_OneFindingPerRule(t *testing.T) {
	t.Parallel()
	res, err := walkGo(t, context.Background(), literalSource, dispatcher(t, strRule(), intRule(nil)), nil)
	require.NoError(t, err)
	require.Len(t, res.Findings, 2)

	assert.Equal(t, "int-lit", res.Findings[0].RuleID)
	assert.Equal(t, "str-lit", res.Findings[1].RuleID)
	assert.Less(t, res.Findings[0].Start, res.Findings[1].Start)
	assert.Equal(t, 3, res.Findings[0].Line)
	assert.Equal(t, 9, res.Findings[0].Col)
	assert.Equal(t, "int_literal literal 1", res.Findings[0].Message)
	assert.Equal(t, finding.SeverityWarning, res.Findings[0].Severity)
	assert.Empty(t, res.Failures)
	assert.Empty(t, res.Diagnostics)
	assert.Greater(t, res.Nodes, 5)
}

func TestWalk_FailingRuleIsIsolated(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		visit rules.VisitFunc
		panic bool
	}{
		{
			name: "error",
			visit: func(*rules.Context, *sitter.Node) error {
				return errors.New("boom")
			},
		},
		{
			name: "panic",
			visit: func(*rules.Context, *sitter.Node) error {
				panic("boom")
			},
			panic: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			src := "package p\n\nvar a = 1\nvar b = \"s\"\nvar c = 2\n"
			res, err := walkGo(t, context.Background(), src, dispatcher(t, intRule(tt.visit), strRule()), nil)
			require.NoError(t, err)

			require.Len(t, res.Findings, 1)
			assert.Equal(t, "str-lit", res.Findings[0].RuleID)

			require.Len(t, res.Failures, 1)
			fail := res.Failures[0]
			assert.Equal(t, "int-lit", fail.Rule)
			assert.Equal(t, "int_literal", fail.Kind)
			assert.Equal(t, tt.panic, fail.Panic)
			assert.Contains(t, fail.Error(), "boom")

			require.Len(t, res.Diagnostics, 1)
			diag := res.Diagnostics[0]
			assert.Equal(t, finding.RuleToolingError, diag.RuleID)
			assert.Equal(t, finding.KindTooling, diag.Kind)
			assert.Equal(t, 3, diag.Line)
			assert.NotEmpty(t, diag.Signature)
		})
	}
}

const nestedSource = `package p

// understory:suppress str-lit
func A() {
	_ = 1
	// understory:suppress int-lit
	var x = 2
	_ = x
}

// understory:suppress int-lit
func B() {
	_ = 3
	// understory:suppress str-lit
	var y = 4
	_ = y
}

func C() { _ = 5 }
`

func TestWalk_NestedSuppression(t *testing.T) {
	t.Parallel()
	res, err := walkGo(t, context.Background(), nestedSource, dispatcher(t, intRule(nil)), nil)
	require.NoError(t, err)
	require.Len(t, res.Findings, 5)

	byText := map[string]bool{}
	for _, f := range res.Findings {
		byText[f.Message] = f.Suppressed
	}
	// A does not suppress int-lit; its inner var does.
	assert.False(t, byText["int_literal literal 1"])
	assert.True(t, byText["int_literal literal 2"])
	// B suppresses int-lit; the inner var inherits it.
	assert.True(t, byText["int_literal literal 3"])
	assert.True(t, byText["int_literal literal 4"])
	assert.False(t, byText["int_literal literal 5"])
}

func TestWalk_FileSuppression(t *testing.T) {
	t.Parallel()
	src := "// understory:suppress-file literals\npackage p\n\nvar a = 1\nvar b = \"s\"\n"
	res, err := walkGo(t, context.Background(), src, dispatcher(t, intRule(nil), strRule()), nil)
	require.NoError(t, err)
	require.Len(t, res.Findings, 2)
	for _, f := range res.Findings {
		assert.True(t, f.Suppressed, f.RuleID)
	}
}

func TestWalk_FinishHook(t *testing.T) {
	t.Parallel()
	desc := &rules.Descriptor{
		ID:       "last-int",
		Severity: finding.SeverityInfo,
		Build: func(rules.Params) (rules.Visitors, error) {
			return rules.Visitors{
				Kinds: map[string]rules.VisitFunc{
					"int_literal": func(c *rules.Context, n *sitter.Node) error {
						c.State()["last"] = [2]uint32{n.StartByte(), n.EndByte()}
						return nil
					},
				},
				Finish: func(c *rules.Context) error {
					if r, ok := c.State()["last"].([2]uint32); ok {
						c.ReportRange(r[0], r[1], "last int literal")
					}
					return nil
				},
			}, nil
		},
	}
	d := dispatcher(t, desc)

	res, err := walkGo(t, context.Background(), nestedSource, d, nil)
	require.NoError(t, err)
	require.Len(t, res.Findings, 1)
	assert.Equal(t, 19, res.Findings[0].Line)
	assert.False(t, res.Findings[0].Suppressed)

	// State does not leak between files.
	res, err = walkGo(t, context.Background(), "package p\n", d, nil)
	require.NoError(t, err)
	assert.Empty(t, res.Findings)

	res, err = walkGo(t, context.Background(), "package p\n\n// understory:suppress all\nfunc F() { _ = 1 }\n", d, nil)
	require.NoError(t, err)
	require.Len(t, res.Findings, 1)
	assert.True(t, res.Findings[0].Suppressed)
}

func TestWalk_EnabledFilter(t *testing.T) {
	t.Parallel()
	d := dispatcher(t, intRule(nil), strRule())
	res, err := walkGo(t, context.Background(), literalSource, d, func(id string) bool { return id == "str-lit" })
	require.NoError(t, err)
	require.Len(t, res.Findings, 1)
	assert.Equal(t, "str-lit", res.Findings[0].RuleID)
}

func TestWalk_Scope(t *testing.T) {
	t.Parallel()
	var scopes [][]string
	d := dispatcher(t, intRule(func(c *rules.Context, n *sitter.Node) error {
		scopes = append(scopes, c.Scope())
		c.Report(n, "int")
		return nil
	}))
	src := "package p\n\ntype T struct{}\n\nfunc (T) M() { _ = 1 }\n\nvar v = 2\n"
	_, err := walkGo(t, context.Background(), src, d, nil)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"M"}, nil}, scopes)
}

func TestWalk_SignaturesStableAndDistinct(t *testing.T) {
	t.Parallel()
	d := dispatcher(t, intRule(nil))
	src := "package p\n\nfunc F() {\n\t_ = 7\n\t_ = 7\n}\n"
	a, err := walkGo(t, context.Background(), src, d, nil)
	require.NoError(t, err)
	b, err := walkGo(t, context.Background(), src, d, nil)
	require.NoError(t, err)
	require.Len(t, a.Findings, 2)
	assert.Equal(t, a.Findings, b.Findings)
	assert.NotEqual(t, a.Findings[0].Signature, a.Findings[1].Signature)

	// Moving code within the function does not change signatures.
	shifted, err := walkGo(t, context.Background(), "package p\n\n\n\nfunc F() {\n\n\t_ = 7\n\t_ = 7\n}\n", d, nil)
	require.NoError(t, err)
	require.Len(t, shifted.Findings, 2)
	assert.Equal(t, a.Findings[0].Signature, shifted.Findings[0].Signature)
	assert.NotEqual(t, a.Findings[0].Start, shifted.Findings[0].Start)
}

func TestWalk_Cancelled(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := walkGo(t, ctx, literalSource, dispatcher(t, intRule(nil)), nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDispatcher(t *testing.T) {
	t.Parallel()
	d := dispatcher(t, strRule(), intRule(nil))
	require.Len(t, d.Instances(), 2)
	assert.Equal(t, "int-lit", d.Instances()[0].ID())
	assert.Equal(t, 2, d.Kinds())
}
