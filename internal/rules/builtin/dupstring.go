package builtin

import (
	"fmt"
	"sort"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/understory/internal/finding"
	"github.com/jward/understory/internal/rules"
)

var stringKinds = []string{
	"interpreted_string_literal", // go
	"raw_string_literal",         // go
	"string_literal",             // java, rust, c, cpp, kotlin
	"string",                     // python, javascript, typescript, ruby
}

type occurrence struct {
	start, end uint32
	count      int
}

// DuplicateString flags string literals repeated within one file. Findings
// are emitted from the finish hook, anchored at the first occurrence.
func DuplicateString() *rules.Descriptor {
	return &rules.Descriptor{
		ID:          "duplicate-string",
		RuleSet:     RuleSetStyle,
		Description: "String literal is repeated within a file",
		Severity:    finding.SeverityInfo,
		Active:      false,
		Params: []rules.ParamSpec{
			{Name: "min_occurrences", Type: rules.ParamInt, Default: 3, Doc: "occurrences at which a literal is reported"},
			{Name: "min_length", Type: rules.ParamInt, Default: 4, Doc: "shorter literals (excluding quotes) are ignored"},
		},
		Build: func(p rules.Params) (rules.Visitors, error) {
			minCount := p.Int("min_occurrences")
			minLen := p.Int("min_length")
			if minCount < 2 {
				return rules.Visitors{}, fmt.Errorf("min_occurrences must be at least 2, got %d", minCount)
			}
			visit := func(c *rules.Context, n *sitter.Node) error {
				text := c.Text(n)
				if len(text)-2 < minLen {
					return nil
				}
				seen := occurrences(c)
				if o, ok := seen[text]; ok {
					o.count++
					return nil
				}
				seen[text] = &occurrence{start: n.StartByte(), end: n.EndByte(), count: 1}
				return nil
			}
			finish := func(c *rules.Context) error {
				seen := occurrences(c)
				texts := make([]string, 0, len(seen))
				for text, o := range seen {
					if o.count >= minCount {
						texts = append(texts, text)
					}
				}
				sort.Slice(texts, func(i, j int) bool { return seen[texts[i]].start < seen[texts[j]].start })
				for _, text := range texts {
					o := seen[text]
					c.ReportRange(o.start, o.end, fmt.Sprintf("string %s appears %d times", text, o.count))
				}
				return nil
			}
			return rules.Visitors{Kinds: each(visit, stringKinds...), Finish: finish}, nil
		},
	}
}

func occurrences(c *rules.Context) map[string]*occurrence {
	st := c.State()
	m, ok := st["strings"].(map[string]*occurrence)
	if !ok {
		m = make(map[string]*occurrence)
		st["strings"] = m
	}
	return m
}
