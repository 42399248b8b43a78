package builtin

import (
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/understory/internal/finding"
	"github.com/jward/understory/internal/rules"
)

var functionKinds = []string{
	"function_declaration",    // go, kotlin, javascript, typescript
	"method_declaration",      // go, java
	"constructor_declaration", // java
	"function_definition",     // python, c, cpp, php
	"function_item",           // rust
	"method_definition",       // javascript, typescript
	"method",                  // ruby
}

// LongFunction flags functions spanning more than max_lines lines.
func LongFunction() *rules.Descriptor {
	return &rules.Descriptor{
		ID:          "long-function",
		RuleSet:     RuleSetComplexity,
		Description: "Function body is longer than the configured limit",
		Severity:    finding.SeverityWarning,
		Active:      true,
		Params: []rules.ParamSpec{
			{Name: "max_lines", Type: rules.ParamInt, Default: 60, Doc: "maximum lines per function, inclusive"},
		},
		Build: func(p rules.Params) (rules.Visitors, error) {
			limit := p.Int("max_lines")
			if limit < 1 {
				return rules.Visitors{}, fmt.Errorf("max_lines must be positive, got %d", limit)
			}
			visit := func(c *rules.Context, n *sitter.Node) error {
				lines := int(n.EndPoint().Row-n.StartPoint().Row) + 1
				if lines <= limit {
					return nil
				}
				target := n
				name := "function"
				if nameNode := n.ChildByFieldName("name"); nameNode != nil {
					target = nameNode
					name = c.Text(nameNode)
				}
				c.Reportf(target, "%s is %d lines long (max %d)", name, lines, limit)
				return nil
			}
			return rules.Visitors{Kinds: each(visit, functionKinds...)}, nil
		},
	}
}
