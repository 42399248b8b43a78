package builtin

import (
	"strings"
	"unicode"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/understory/internal/finding"
	"github.com/jward/understory/internal/rules"
)

var commentKinds = []string{"comment", "line_comment", "block_comment", "multiline_comment"}

// TodoComment flags comments carrying a work-marker tag such as TODO.
func TodoComment() *rules.Descriptor {
	return &rules.Descriptor{
		ID:          "todo-comment",
		RuleSet:     RuleSetStyle,
		Description: "Comment contains a TODO-style marker",
		Severity:    finding.SeverityInfo,
		Active:      true,
		Params: []rules.ParamSpec{
			{Name: "tags", Type: rules.ParamStringList, Default: []string{"TODO", "FIXME", "XXX"}, Doc: "markers to report"},
		},
		Build: func(p rules.Params) (rules.Visitors, error) {
			tags := p.Strings("tags")
			visit := func(c *rules.Context, n *sitter.Node) error {
				text := c.Text(n)
				if strings.Contains(text, "understory:") {
					return nil
				}
				for _, tag := range tags {
					if rest, ok := findTag(text, tag); ok {
						if rest == "" {
							c.Reportf(n, "%s comment", tag)
						} else {
							c.Reportf(n, "%s comment: %s", tag, rest)
						}
						return nil
					}
				}
				return nil
			}
			return rules.Visitors{Kinds: each(visit, commentKinds...)}, nil
		},
	}
}

// findTag locates tag as a whole word in text and returns the remainder
// of its line, trimmed of punctuation.
func findTag(text, tag string) (string, bool) {
	if tag == "" {
		return "", false
	}
	for from := 0; ; {
		i := strings.Index(text[from:], tag)
		if i < 0 {
			return "", false
		}
		i += from
		end := i + len(tag)
		if isWordBoundary(text, i-1) && isWordBoundary(text, end) {
			rest := text[end:]
			if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
				rest = rest[:nl]
			}
			rest = strings.TrimSuffix(strings.TrimSpace(rest), "*/")
			return strings.TrimSpace(strings.TrimLeft(rest, ":(-) ")), true
		}
		from = end
	}
}

func isWordBoundary(s string, i int) bool {
	if i < 0 || i >= len(s) {
		return true
	}
	r := rune(s[i])
	return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
}
