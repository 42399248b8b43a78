// Package frontend turns files on disk into parsed source units: language
// detection by extension, tree-sitter parsing, and git-aware discovery.
package frontend

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	sitter "github.com/smacker/go-tree-sitter"
)

// ErrUnsupported is returned for files whose extension maps to no grammar.
var ErrUnsupported = errors.New("unsupported language")

// SourceUnit is one file ready for analysis. Tree and Semantic are owned
// by the frontend; the engine only reads them. A unit whose Tree is nil
// carries the reason in Err.
type SourceUnit struct {
	Path     string
	Language string
	Source   []byte
	Tree     *sitter.Tree
	Semantic any
	Err      error
}

// Close releases the tree-sitter tree.
func (u *SourceUnit) Close() {
	if u.Tree != nil {
		u.Tree.Close()
		u.Tree = nil
	}
}

// Parse builds a unit from in-memory source. lang may be empty, in which
// case it is detected from path.
func Parse(ctx context.Context, path, lang string, src []byte) *SourceUnit {
	u := &SourceUnit{Path: path, Language: lang, Source: src}
	if u.Language == "" {
		detected, ok := LanguageForFile(path)
		if !ok {
			u.Err = fmt.Errorf("%s: %w", path, ErrUnsupported)
			return u
		}
		u.Language = detected
	}
	grammar, ok := Grammar(u.Language)
	if !ok {
		u.Err = fmt.Errorf("%s: %w %q", path, ErrUnsupported, u.Language)
		return u
	}

	// Parsers are not safe for concurrent use; each call gets its own.
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(grammar)

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		u.Err = fmt.Errorf("parse %s: %w", path, err)
		return u
	}
	u.Tree = tree
	return u
}

// ParseFile reads root/rel and parses it. The unit's Path is rel in slash
// form so findings are reported relative to root.
func ParseFile(ctx context.Context, root, rel string) *SourceUnit {
	path := filepath.ToSlash(rel)
	src, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	if err != nil {
		return &SourceUnit{Path: path, Err: fmt.Errorf("read file: %w", err)}
	}
	return Parse(ctx, path, "", src)
}
