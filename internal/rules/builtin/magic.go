package builtin

import (
	"slices"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/understory/internal/finding"
	"github.com/jward/understory/internal/rules"
)

// integerKinds are the integer literal node kinds across grammars.
var integerKinds = []string{
	"int_literal",             // go
	"integer_literal",         // kotlin, rust
	"decimal_integer_literal", // java
	"integer",                 // python, ruby
	"number",                  // javascript, typescript
	"number_literal",          // c, cpp
}

// constContexts are ancestor kinds under which a literal names itself.
var constContexts = map[string]bool{
	"const_spec":        true,
	"const_declaration": true,
	"enum_entry":        true,
	"enumerator":        true,
	"const_item":        true,
	"static_item":       true,
	"annotation":        true,
	"marker_annotation": true,
	"enum_constant":     true,
	"preproc_def":       true,
	"attribute_item":    true,
}

// MagicNumber flags integer literals outside constant declarations.
func MagicNumber() *rules.Descriptor {
	return &rules.Descriptor{
		ID:          "magic-number",
		RuleSet:     RuleSetStyle,
		Description: "Integer literal used outside a constant declaration",
		Severity:    finding.SeverityWarning,
		Active:      true,
		Params: []rules.ParamSpec{
			{Name: "ignore", Type: rules.ParamStringList, Default: []string{"-1", "0", "1", "2"}, Doc: "literal values that are never reported"},
			{Name: "ignore_hex", Type: rules.ParamBool, Default: false, Doc: "skip hexadecimal literals"},
		},
		Build: func(p rules.Params) (rules.Visitors, error) {
			ignore := p.Strings("ignore")
			ignoreHex := p.Bool("ignore_hex")
			visit := func(c *rules.Context, n *sitter.Node) error {
				text := strings.ReplaceAll(c.Text(n), "_", "")
				if ignoreHex && (strings.HasPrefix(text, "0x") || strings.HasPrefix(text, "0X")) {
					return nil
				}
				value := text
				if parent := n.Parent(); parent != nil && parent.Type() == "unary_expression" && strings.HasPrefix(c.Text(parent), "-") {
					value = "-" + text
				}
				if slices.Contains(ignore, value) || inConstContext(n) {
					return nil
				}
				c.Reportf(n, "magic number %s", value)
				return nil
			}
			return rules.Visitors{Kinds: each(visit, integerKinds...)}, nil
		},
	}
}

func inConstContext(n *sitter.Node) bool {
	for p := n.Parent(); p != nil; p = p.Parent() {
		if constContexts[p.Type()] {
			return true
		}
	}
	return false
}
