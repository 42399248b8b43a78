package frontend

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLanguageForFile(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path string
		want string
		ok   bool
	}{
		{"main.go", "go", true},
		{"app.ts", "typescript", true},
		{"app.tsx", "typescript", true},
		{"app.jsx", "javascript", true},
		{"script.py", "python", true},
		{"lib.rs", "rust", true},
		{"Main.java", "java", true},
		{"src/Generated.kt", "kotlin", true},
		{"build.gradle.kts", "kotlin", true},
		{"MAIN.GO", "go", true},
		{"readme.md", "", false},
		{"Makefile", "", false},
	}
	for _, tt := range tests {
		got, ok := LanguageForFile(tt.path)
		assert.Equal(t, tt.ok, ok, tt.path)
		assert.Equal(t, tt.want, got, tt.path)
	}
}

func TestGrammarForEveryLanguage(t *testing.T) {
	t.Parallel()
	for _, lang := range extToLanguage {
		g, ok := Grammar(lang)
		assert.True(t, ok, lang)
		assert.NotNil(t, g, lang)
	}
	assert.Contains(t, Languages(), "kotlin")
	_, ok := Grammar("cobol")
	assert.False(t, ok)
}

func TestParse(t *testing.T) {
	t.Parallel()
	u := Parse(context.Background(), "a.go", "", []byte("package a\n\nfunc F() {}\n"))
	require.NoError(t, u.Err)
	defer u.Close()
	assert.Equal(t, "go", u.Language)
	require.NotNil(t, u.Tree)
	assert.Equal(t, "source_file", u.Tree.RootNode().Type())

	bad := Parse(context.Background(), "notes.txt", "", []byte("hello"))
	assert.Nil(t, bad.Tree)
	assert.True(t, errors.Is(bad.Err, ErrUnsupported))
}

func TestParseFile_Missing(t *testing.T) {
	t.Parallel()
	u := ParseFile(context.Background(), t.TempDir(), "gone.go")
	assert.Equal(t, "gone.go", u.Path)
	assert.Nil(t, u.Tree)
	assert.Error(t, u.Err)
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestDiscover_Walk(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeFile(t, root, "b.go", "package b\n")
	writeFile(t, root, "pkg/a.py", "x = 1\n")
	writeFile(t, root, "pkg/notes.md", "# notes\n")
	writeFile(t, root, ".hidden/c.go", "package c\n")
	writeFile(t, root, "node_modules/lib/index.js", "var x = 1;\n")
	writeFile(t, root, "vendor/dep/d.go", "package d\n")

	paths, err := Discover(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"b.go", "pkg/a.py"}, paths)

	u := ParseFile(context.Background(), root, paths[1])
	require.NoError(t, u.Err)
	defer u.Close()
	assert.Equal(t, "python", u.Language)
	assert.Equal(t, "pkg/a.py", u.Path)
}
