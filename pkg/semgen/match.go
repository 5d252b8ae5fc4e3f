package semgen

// MatchPattern is a small tree-shaped pattern used by a quantifier to
// bind multiple sub-trees in one match (glossary: "match expression").
// A pattern node is either a variable hole (Var != nil, matches
// anything at that position and binds Var to it) or a concrete shape
// node that requires an exact Sym and, for nonterminals, recursively
// matching Children.
//
// Grounded on gokando's pattern.go (PatternClause/Matche unify a term
// against a clause pattern) and dcg.go's tree-shaped grammar patterns;
// here the "term" being unified against is a derivation sub-tree
// instead of a logic term or difference list.
type MatchPattern struct {
	Var      *Variable
	Sym      Symbol
	Children []*MatchPattern
}

// Hole returns a pattern position that binds v to whatever sub-tree
// occupies it.
func Hole(v *Variable) *MatchPattern { return &MatchPattern{Var: v} }

// Shape returns a pattern position requiring exactly sym, with the
// given sub-patterns for sym's children (empty for a terminal).
func Shape(sym Symbol, children ...*MatchPattern) *MatchPattern {
	return &MatchPattern{Sym: sym, Children: children}
}

// Binding is one match result: an assignment from every hole variable
// in a pattern to the sub-tree it bound to, plus the root of the
// matched occurrence (used for already_matched bookkeeping and as the
// quantified variable's own binding when MatchExpr is nil).
type Binding struct {
	Root NodeID
	Env  map[*Variable]*Node
}

// FindBindings enumerates every binding of pattern (or, if pattern is
// nil, of the plain variable v) against sub-trees of host, skipping
// any binding whose root id is in alreadyMatched.
//
// For a plain bound variable of type <N> (pattern == nil), a binding
// is any sub-tree of host whose value is <N>. For a match expression,
// a binding additionally assigns each hole variable in the pattern to
// the sub-tree at the corresponding position of the match site.
func FindBindings(v *Variable, pattern *MatchPattern, host *Node, alreadyMatched map[NodeID]bool) []Binding {
	var out []Binding
	for _, node := range host.Paths() {
		if alreadyMatched[node.ID()] {
			continue
		}
		if pattern == nil {
			if node.Value().IsNonterminal() && node.Value().Equal(v.Sort.Nonterminal) {
				out = append(out, Binding{Root: node.ID(), Env: map[*Variable]*Node{v: node}})
			}
			continue
		}
		if env, ok := matchAt(pattern, node); ok {
			// The quantifier's own bound variable always denotes the
			// whole matched occurrence, in addition to whatever hole
			// variables the match expression itself binds.
			env[v] = node
			out = append(out, Binding{Root: node.ID(), Env: env})
		}
	}
	return out
}

// matchAt attempts to match pattern against site, returning the
// variable environment on success.
func matchAt(pattern *MatchPattern, site *Node) (map[*Variable]*Node, bool) {
	env := map[*Variable]*Node{}
	if !matchInto(pattern, site, env) {
		return nil, false
	}
	return env, true
}

func matchInto(pattern *MatchPattern, site *Node, env map[*Variable]*Node) bool {
	if pattern.Var != nil {
		if existing, ok := env[pattern.Var]; ok {
			return existing.StructuralHash() == site.StructuralHash()
		}
		env[pattern.Var] = site
		return true
	}
	if !pattern.Sym.Equal(site.Value()) {
		return false
	}
	if len(pattern.Children) == 0 {
		return true
	}
	if site.IsOpen() || len(site.Children()) != len(pattern.Children) {
		return false
	}
	for i, childPat := range pattern.Children {
		if !matchInto(childPat, site.Children()[i], env) {
			return false
		}
	}
	return true
}

// patternVariables returns every hole variable mentioned in pattern.
func patternVariables(pattern *MatchPattern) []*Variable {
	if pattern == nil {
		return nil
	}
	if pattern.Var != nil {
		return []*Variable{pattern.Var}
	}
	var out []*Variable
	for _, c := range pattern.Children {
		out = append(out, patternVariables(c)...)
	}
	return out
}
