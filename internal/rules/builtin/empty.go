package builtin

import (
	"slices"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/understory/internal/finding"
	"github.com/jward/understory/internal/rules"
)

var blockKinds = []string{"block", "statement_block", "compound_statement"}

// EmptyBlock flags blocks with no statements and no comments.
func EmptyBlock() *rules.Descriptor {
	return &rules.Descriptor{
		ID:          "empty-block",
		RuleSet:     RuleSetPotentialBugs,
		Description: "Block contains no statements",
		Severity:    finding.SeverityWarning,
		Active:      true,
		Params: []rules.ParamSpec{
			{Name: "allow_functions", Type: rules.ParamBool, Default: true, Doc: "do not report empty function bodies"},
		},
		Build: func(p rules.Params) (rules.Visitors, error) {
			allowFunctions := p.Bool("allow_functions")
			visit := func(c *rules.Context, n *sitter.Node) error {
				if n.NamedChildCount() > 0 {
					return nil
				}
				parent := n.Parent()
				if parent != nil && slices.Contains(functionKinds, parent.Type()) {
					if allowFunctions {
						return nil
					}
					c.Report(n, "empty function body")
					return nil
				}
				c.Report(n, "empty block")
				return nil
			}
			return rules.Visitors{Kinds: each(visit, blockKinds...)}, nil
		},
	}
}
