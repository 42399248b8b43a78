// Package suppress implements inline suppression scopes and the persisted
// baseline, and filters raw findings into their reported form.
//
// Inline suppression is declaration-bound. A declaration is suppressed by a
// directive comment directly above it:
//
//	// understory:suppress magic-number todo-comment
//	func tableOfConstants() { ... }
//
// or, in languages with annotations, by @Suppress / @SuppressWarnings
// naming rule IDs (optionally prefixed "understory:"). "all" and "*" cover
// every rule. A comment "understory:suppress-file <ids>" anywhere at the top
// level of a file scopes the directive to the whole file.
package suppress

import (
	"regexp"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

const (
	directive     = "understory:suppress"
	fileDirective = "understory:suppress-file"
	idPrefix      = "understory:"
)

// Annotation is one suppression scope: a byte range and the rules it
// silences.
type Annotation struct {
	Start uint32
	End   uint32
	Rules map[string]bool
	All   bool
}

// Covers reports whether a finding from ruleID (member of ruleSet) is
// silenced by a.
func (a *Annotation) Covers(ruleID, ruleSet string) bool {
	if a.All || a.Rules[ruleID] {
		return true
	}
	return ruleSet != "" && a.Rules[ruleSet]
}

// Contains reports whether offset lies within a.
func (a *Annotation) Contains(offset uint32) bool {
	return offset >= a.Start && offset < a.End
}

func (a *Annotation) add(ids []string) {
	for _, id := range ids {
		id = strings.TrimPrefix(strings.TrimSpace(id), idPrefix)
		switch id {
		case "":
		case "all", "*":
			a.All = true
		default:
			if a.Rules == nil {
				a.Rules = make(map[string]bool)
			}
			a.Rules[id] = true
		}
	}
}

func (a *Annotation) empty() bool {
	return !a.All && len(a.Rules) == 0
}

// suppressible lists declaration kinds, across the bundled grammars, that
// open a suppression scope.
var suppressible = map[string]bool{
	// Go
	"function_declaration": true,
	"method_declaration":   true,
	"type_declaration":     true,
	"var_declaration":      true,
	"const_declaration":    true,
	"func_literal":         true,

	// Kotlin, Java
	"class_declaration":       true,
	"object_declaration":      true,
	"interface_declaration":   true,
	"enum_declaration":        true,
	"property_declaration":    true,
	"constructor_declaration": true,
	"field_declaration":       true,
	"secondary_constructor":   true,
	"companion_object":        true,

	// Python, C, C++, PHP
	"function_definition":  true,
	"class_definition":     true,
	"decorated_definition": true,
	"class_specifier":      true,
	"struct_specifier":     true,

	// JavaScript, TypeScript
	"method_definition":          true,
	"lexical_declaration":        true,
	"variable_declaration":       true,
	"class":                      true,
	"type_alias_declaration":     true,
	"abstract_class_declaration": true,

	// Rust
	"function_item": true,
	"impl_item":     true,
	"struct_item":   true,
	"enum_item":     true,
	"trait_item":    true,
	"mod_item":      true,

	// Ruby
	"method": true,
	"module": true,
}

// Suppressible reports whether nodes of kind open a suppression scope.
func Suppressible(kind string) bool {
	return suppressible[kind]
}

var suppressAnnotation = regexp.MustCompile(`@Suppress(?:Warnings)?\s*\(([^)]*)\)`)
var quoted = regexp.MustCompile(`"([^"]*)"`)

// Extract returns the annotation attached to the declaration n, if any.
func Extract(n *sitter.Node, src []byte) (*Annotation, bool) {
	if !Suppressible(n.Type()) {
		return nil, false
	}
	a := &Annotation{Start: n.StartByte(), End: n.EndByte()}

	// Directive comments directly above the declaration, stopping at the
	// first blank line or non-comment.
	row := n.StartPoint().Row
	for prev := n.PrevSibling(); prev != nil && isComment(prev.Type()); prev = prev.PrevSibling() {
		if row-prev.EndPoint().Row > 1 {
			break
		}
		if ids, ok := parseDirective(prev.Content(src), directive); ok {
			a.add(ids)
		}
		row = prev.StartPoint().Row
	}

	// Annotations and modifiers that belong to the declaration node itself.
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		if !isModifier(c.Type()) {
			continue
		}
		a.add(suppressArgs(c.Content(src)))
	}
	if a.empty() {
		return nil, false
	}
	return a, true
}

// ExtractFile returns the file-wide annotation from top-level
// suppress-file directives under root.
func ExtractFile(root *sitter.Node, src []byte) (*Annotation, bool) {
	a := &Annotation{Start: 0, End: uint32(len(src)) + 1}
	for i := 0; i < int(root.NamedChildCount()); i++ {
		c := root.NamedChild(i)
		if !isComment(c.Type()) {
			continue
		}
		if ids, ok := parseDirective(c.Content(src), fileDirective); ok {
			a.add(ids)
		}
	}
	if a.empty() {
		return nil, false
	}
	return a, true
}

func isComment(kind string) bool {
	return strings.Contains(kind, "comment")
}

func isModifier(kind string) bool {
	switch kind {
	case "modifiers", "annotation", "marker_annotation", "decorator", "attribute_item":
		return true
	}
	return false
}

// parseDirective finds name in a comment and returns the IDs that follow
// it on the same line.
func parseDirective(comment, name string) ([]string, bool) {
	for _, line := range strings.Split(comment, "\n") {
		idx := strings.Index(line, name)
		if idx < 0 {
			continue
		}
		rest := line[idx+len(name):]
		// "understory:suppress" is a prefix of "understory:suppress-file".
		if rest != "" && rest[0] != ' ' && rest[0] != '\t' && rest[0] != ':' {
			continue
		}
		rest = strings.TrimPrefix(rest, ":")
		rest = strings.TrimSuffix(strings.TrimSpace(rest), "*/")
		fields := strings.FieldsFunc(rest, func(r rune) bool {
			return r == ' ' || r == '\t' || r == ','
		})
		if len(fields) == 0 {
			fields = []string{"all"}
		}
		return fields, true
	}
	return nil, false
}

func suppressArgs(text string) []string {
	var ids []string
	for _, m := range suppressAnnotation.FindAllStringSubmatch(text, -1) {
		for _, q := range quoted.FindAllStringSubmatch(m[1], -1) {
			ids = append(ids, q[1])
		}
	}
	return ids
}
