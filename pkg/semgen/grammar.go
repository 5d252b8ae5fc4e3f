package semgen

import (
	"fmt"
	"strings"
	"sync"

	"github.com/gitrdm/semgen/internal/regexdfa"
	"github.com/katalvlaran/lvlath/core"
)

// Alternative is one canonicalized right-hand side: an ordered sequence
// of terminal and nonterminal symbols.
type Alternative []Symbol

// Grammar is a context-free grammar: a distinguished start nonterminal
// and, for every nonterminal, an ordered list of alternatives.
// Grammar values are immutable after NewGrammar returns.
type Grammar struct {
	Start       Symbol
	productions map[string][]Alternative
	nullable    map[string]bool

	graphOnce sync.Once
	g         *core.Graph
}

// NewGrammar canonicalizes raw (a mapping from nonterminal name,
// angle-bracketed or not, to its ordered list of alternative strings)
// into a Grammar. Each alternative string is tokenized into a sequence
// of terminal literals and nonterminal references: substrings of the
// form "<name>" are nonterminal references, everything else is
// terminal text. An empty alternative string denotes an epsilon
// production.
func NewGrammar(start string, raw map[string][]string) (*Grammar, error) {
	g := &Grammar{
		Start:       NewNonterminal(start),
		productions: make(map[string][]Alternative, len(raw)),
	}
	for name, alts := range raw {
		nt := NewNonterminal(name)
		canon := make([]Alternative, len(alts))
		for i, alt := range alts {
			canon[i] = tokenize(alt)
		}
		g.productions[nt.Name()] = canon
	}
	if _, ok := g.productions[g.Start.Name()]; !ok {
		return nil, fmt.Errorf("semgen: grammar has no productions for start symbol %s", g.Start)
	}
	for name, alts := range g.productions {
		for _, alt := range alts {
			for _, sym := range alt {
				if sym.IsNonterminal() {
					if _, ok := g.productions[sym.Name()]; !ok {
						return nil, fmt.Errorf("semgen: nonterminal <%s> referenced in <%s> has no productions", sym.Name(), name)
					}
				}
			}
		}
	}
	g.nullable = computeNullable(g.productions)
	return g, nil
}

// tokenize splits a raw alternative string into Symbols: "<...>" runs
// are nonterminal references, everything else is terminal text.
func tokenize(alt string) Alternative {
	if alt == "" {
		return Alternative{emptyTerminal}
	}
	var out Alternative
	var lit strings.Builder
	flushLit := func() {
		if lit.Len() > 0 {
			out = append(out, NewTerminal(lit.String()))
			lit.Reset()
		}
	}
	i := 0
	for i < len(alt) {
		if alt[i] == '<' {
			if end := strings.IndexByte(alt[i:], '>'); end >= 0 {
				flushLit()
				out = append(out, NewNonterminal(alt[i+1:i+end]))
				i += end + 1
				continue
			}
		}
		lit.WriteByte(alt[i])
		i++
	}
	flushLit()
	if len(out) == 0 {
		return Alternative{emptyTerminal}
	}
	return out
}

// Alternatives returns the canonical alternatives for nonterminal nt.
func (g *Grammar) Alternatives(nt Symbol) []Alternative {
	return g.productions[nt.Name()]
}

// Nonterminals returns every nonterminal name defined by g, in no
// particular order.
func (g *Grammar) Nonterminals() []string {
	out := make([]string, 0, len(g.productions))
	for name := range g.productions {
		out = append(out, name)
	}
	return out
}

// Nullable reports whether nt can derive the empty string.
func (g *Grammar) Nullable(nt Symbol) bool {
	if nt.IsTerminal() {
		return nt.IsEmpty()
	}
	return g.nullable[nt.Name()]
}

// computeNullable runs the standard fixpoint: a nonterminal is nullable
// iff some alternative consists entirely of nullable symbols (including
// the explicit epsilon alternative).
func computeNullable(prods map[string][]Alternative) map[string]bool {
	nullable := make(map[string]bool, len(prods))
	changed := true
	for changed {
		changed = false
		for name, alts := range prods {
			if nullable[name] {
				continue
			}
			for _, alt := range alts {
				if alternativeNullable(alt, nullable) {
					nullable[name] = true
					changed = true
					break
				}
			}
		}
	}
	return nullable
}

func alternativeNullable(alt Alternative, nullable map[string]bool) bool {
	for _, sym := range alt {
		if sym.IsTerminal() {
			if !sym.IsEmpty() {
				return false
			}
			continue
		}
		if !nullable[sym.Name()] {
			return false
		}
	}
	return true
}

// Expand returns the child nodes for expanding an open node of symbol
// nt by alternative index alt. Each terminal symbol becomes a leaf,
// each nonterminal becomes a fresh open node.
func (g *Grammar) Expand(nt Symbol, altIdx int) []*Node {
	alt := g.productions[nt.Name()][altIdx]
	children := make([]*Node, len(alt))
	for i, sym := range alt {
		if sym.IsTerminal() {
			children[i] = NewLeaf(sym)
		} else {
			children[i] = NewOpen(sym)
		}
	}
	return children
}

// Root returns a fresh open tree for g's start symbol.
func (g *Grammar) Root() *Node { return NewOpen(g.Start) }

// extractRegexPattern computes extract_regex(nt)'s over-approximation
// (§4.F step 2) as a pattern tree ready for internal/regexdfa.Compile,
// inlining nested nonterminal references up to maxDepth levels deep.
func (g *Grammar) extractRegexPattern(nt Symbol, maxDepth int) regexdfa.Node {
	resolveAlts := func(name string) []regexdfa.AlternativeFrags {
		return g.fragsFor(NewNonterminal(name))
	}
	pattern := regexdfa.BuildPattern(g.fragsFor(nt), resolveAlts, maxDepth)
	if pattern == nil {
		return regexdfa.Lit{Text: ""}
	}
	return pattern
}

func (g *Grammar) fragsFor(nt Symbol) []regexdfa.AlternativeFrags {
	alts := g.Alternatives(nt)
	out := make([]regexdfa.AlternativeFrags, len(alts))
	for i, alt := range alts {
		frags := make(regexdfa.AlternativeFrags, 0, len(alt))
		for _, sym := range alt {
			if sym.IsEmpty() {
				continue
			}
			if sym.IsTerminal() {
				frags = append(frags, regexdfa.Frag{Literal: sym.Name()})
			} else {
				frags = append(frags, regexdfa.Frag{Ref: sym.Name()})
			}
		}
		out[i] = frags
	}
	return out
}

// firstAlternativeTo returns the index of an alternative of nt that
// references successor (directly), or -1 if none does. Used to rebuild
// a chain of minimal single-step expansions along a shortestPath.
func (g *Grammar) firstAlternativeTo(nt, successor Symbol) int {
	for i, alt := range g.Alternatives(nt) {
		for _, sym := range alt {
			if sym.IsNonterminal() && sym.Equal(successor) {
				return i
			}
		}
	}
	return -1
}

// expandChain expands leaf (an open node for chain[0]) one step at a
// time along chain[1:], each step picking the first alternative that
// references the next symbol in the chain and leaving every sibling
// open. It returns the resulting root of the expansion (same identity
// as leaf is not preserved, since expansion always replaces an open
// node) and the open node standing for chain's final symbol, ready for
// the caller to attach a pattern or further expansion to.
func (g *Grammar) expandChain(leaf *Node, chain []string) (root *Node, tail *Node) {
	if len(chain) <= 1 {
		return leaf, leaf
	}
	root, open := leaf, leaf
	for i := 0; i+1 < len(chain); i++ {
		from := open.Value()
		to := NewNonterminal(chain[i+1])
		altIdx := g.firstAlternativeTo(from, to)
		if altIdx < 0 {
			return root, open
		}
		expanded := NewExpanded(from, g.Expand(from, altIdx))
		var next *Node
		for _, c := range expanded.Children() {
			if c.IsOpen() && c.Value().Equal(to) && next == nil {
				next = c
			}
		}
		root = replaceDescendant(root, open, expanded)
		if next == nil {
			return root, nil
		}
		open = next
	}
	return root, open
}

// replaceDescendant rebuilds root with every occurrence of old (by
// identity) replaced by replacement. old is always a direct or
// transitive child produced by the same expandChain call, so a single
// FindNode-based path lookup suffices.
func replaceDescendant(root, old, replacement *Node) *Node {
	if root == old {
		return replacement
	}
	_, path, ok := root.FindNode(old.id)
	if !ok {
		return root
	}
	return root.ReplacePath(path, replacement)
}
