package suppress

// Stack tracks the suppression annotations enclosing the traversal's
// current node. Push on entering an annotated declaration, Pop on leaving
// it. Covers answers in O(1) by keeping per-rule reference counts of the
// open annotations, so an inner declaration inherits everything its
// ancestors suppress.
type Stack struct {
	open   []*Annotation
	byRule map[string]int
	all    int
}

// NewStack returns an empty Stack.
func NewStack() *Stack {
	return &Stack{byRule: make(map[string]int)}
}

// Push opens a.
func (s *Stack) Push(a *Annotation) {
	s.open = append(s.open, a)
	if a.All {
		s.all++
	}
	for id := range a.Rules {
		s.byRule[id]++
	}
}

// Pop closes the innermost annotation.
func (s *Stack) Pop() {
	n := len(s.open)
	if n == 0 {
		return
	}
	a := s.open[n-1]
	s.open = s.open[:n-1]
	if a.All {
		s.all--
	}
	for id := range a.Rules {
		if s.byRule[id]--; s.byRule[id] == 0 {
			delete(s.byRule, id)
		}
	}
}


// Covers reports whether any open annotation silences ruleID.
func (s *Stack) Covers(ruleID, ruleSet string) bool {
	if s.all > 0 || s.byRule[ruleID] > 0 {
		return true
	}
	return ruleSet != "" && s.byRule[ruleSet] > 0
}

// CoveredAt reports whether any annotation in anns that contains offset
// silences ruleID. It serves findings emitted after the walk, when the
// stack has already unwound.
func CoveredAt(anns []*Annotation, ruleID, ruleSet string, offset uint32) bool {
	for _, a := range anns {
		if a.Contains(offset) && a.Covers(ruleID, ruleSet) {
			return true
		}
	}
	return false
}
