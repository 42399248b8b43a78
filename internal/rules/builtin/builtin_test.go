package builtin

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/understory/internal/finding"
	"github.com/jward/understory/internal/frontend"
	"github.com/jward/understory/internal/rules"
	"github.com/jward/understory/internal/traverse"
)

type settings map[string]map[string]any

func (s settings) Enabled(string) bool                  { return true }
func (s settings) ParamsFor(id string) map[string]any   { return s[id] }
func (s settings) SeverityFor(string) finding.Severity { return "" }

const goSource = `package p

const limit = 10

// TODO: remove this
func Compute(x int) int {
	if x > 0 {
	}
	y := x * 42
	z := -1
	return y + z + 1
}

func Empty() {}

var a = "hello world"
var b = "hello world"
var c = "hello world"
`

// check runs one rule over a Go snippet.
func check(t *testing.T, desc *rules.Descriptor, params map[string]any, src string) []finding.Finding {
	t.Helper()
	insts, errs := rules.Instantiate(settings{desc.ID: params}, []*rules.Descriptor{desc})
	require.Empty(t, errs)

	u := frontend.Parse(context.Background(), "p/p.go", "", []byte(src))
	require.NoError(t, u.Err)
	defer u.Close()

	file := &rules.FileInfo{Path: u.Path, Language: u.Language, Source: u.Source}
	res, err := traverse.Walk(context.Background(), file, u.Tree.RootNode(), traverse.NewDispatcher(insts), nil)
	require.NoError(t, err)
	require.Empty(t, res.Failures)
	return res.Findings
}

func messages(fs []finding.Finding) []string {
	out := make([]string, len(fs))
	for i, f := range fs {
		out[i] = f.Message
	}
	return out
}

func TestAll_SortedAndUnique(t *testing.T) {
	t.Parallel()
	r, err := rules.NewRegistry(All()...)
	require.NoError(t, err)
	descs := r.Descriptors()
	require.Len(t, descs, 5)
	for i := 1; i < len(descs); i++ {
		assert.Less(t, descs[i-1].ID, descs[i].ID)
	}
	for _, d := range descs {
		assert.NotEmpty(t, d.Description, d.ID)
		assert.NotNil(t, d.Build, d.ID)
	}
}

func TestMagicNumber(t *testing.T) {
	t.Parallel()
	fs := check(t, MagicNumber(), nil, goSource)
	assert.Equal(t, []string{"magic number 42"}, messages(fs))
	assert.Equal(t, 9, fs[0].Line)

	fs = check(t, MagicNumber(), map[string]any{"ignore": []string{"42"}}, goSource)
	assert.Equal(t, []string{"magic number 0", "magic number -1", "magic number 1"}, messages(fs))
}

func TestMagicNumber_Hex(t *testing.T) {
	t.Parallel()
	src := "package p\n\nvar mask = 0xFF\n"
	assert.Len(t, check(t, MagicNumber(), nil, src), 1)
	assert.Empty(t, check(t, MagicNumber(), map[string]any{"ignore_hex": true}, src))
}

func TestTodoComment(t *testing.T) {
	t.Parallel()
	fs := check(t, TodoComment(), nil, goSource)
	assert.Equal(t, []string{"TODO comment: remove this"}, messages(fs))
	assert.Equal(t, finding.SeverityInfo, fs[0].Severity)

	src := "package p\n\n// TODOS are not tags\n// FIXME\n/* XXX: later */\n"
	fs = check(t, TodoComment(), nil, src)
	assert.Equal(t, []string{"FIXME comment", "XXX comment: later"}, messages(fs))

	fs = check(t, TodoComment(), map[string]any{"tags": []string{"HACK"}}, goSource)
	assert.Empty(t, fs)
}

func TestFindTag(t *testing.T) {
	t.Parallel()
	tests := []struct {
		text, tag, rest string
		ok              bool
	}{
		{"// TODO: fix", "TODO", "fix", true},
		{"// TODO", "TODO", "", true},
		{"// MYTODO fix", "TODO", "", false},
		{"// TODO_LIST fix", "TODO", "", false},
		{"/* FIXME - later */", "FIXME", "later", true},
		{"// nothing", "TODO", "", false},
		{"// x", "", "", false},
	}
	for _, tt := range tests {
		rest, ok := findTag(tt.text, tt.tag)
		assert.Equal(t, tt.ok, ok, tt.text)
		assert.Equal(t, tt.rest, rest, tt.text)
	}
}

func TestLongFunction(t *testing.T) {
	t.Parallel()
	assert.Empty(t, check(t, LongFunction(), nil, goSource))

	fs := check(t, LongFunction(), map[string]any{"max_lines": 3}, goSource)
	require.Len(t, fs, 1)
	assert.Equal(t, "Compute is 7 lines long (max 3)", fs[0].Message)
	assert.Equal(t, 6, fs[0].Line)
	assert.Equal(t, 6, fs[0].Col)
}

func TestLongFunction_RejectsNonPositiveLimit(t *testing.T) {
	t.Parallel()
	_, errs := rules.Instantiate(settings{"long-function": {"max_lines": 0}}, []*rules.Descriptor{LongFunction()})
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "max_lines must be positive")
}

func TestEmptyBlock(t *testing.T) {
	t.Parallel()
	fs := check(t, EmptyBlock(), nil, goSource)
	assert.Equal(t, []string{"empty block"}, messages(fs))
	assert.Equal(t, 7, fs[0].Line)

	fs = check(t, EmptyBlock(), map[string]any{"allow_functions": false}, goSource)
	assert.Equal(t, []string{"empty block", "empty function body"}, messages(fs))
}

func TestDuplicateString(t *testing.T) {
	t.Parallel()
	fs := check(t, DuplicateString(), nil, goSource)
	require.Len(t, fs, 1)
	assert.Equal(t, `string "hello world" appears 3 times`, fs[0].Message)
	assert.Equal(t, 16, fs[0].Line)

	assert.Empty(t, check(t, DuplicateString(), map[string]any{"min_occurrences": 4}, goSource))
	assert.Empty(t, check(t, DuplicateString(), map[string]any{"min_length": 20}, goSource))
}

func TestDuplicateString_SuppressedAtFirstOccurrence(t *testing.T) {
	t.Parallel()
	src := `package p

// understory:suppress duplicate-string
var a = "hello world"
var b = "hello world"
var c = "hello world"
`
	fs := check(t, DuplicateString(), nil, src)
	require.Len(t, fs, 1)
	assert.True(t, fs[0].Suppressed)
}
