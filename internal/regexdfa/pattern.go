// Package regexdfa compiles a small pattern-tree AST describing a
// nonterminal's right-hand sides into a DFA, then serializes the
// reachable-to-accepting portion of that DFA back out as an SMT
// regex-literal string. This is the two-stage shape nihei9/vartan uses
// in grammar/lexical/parser (fragment AST) and grammar/lexical/dfa
// (byte-range tree compiled to a transition table): a pattern tree is
// built first, then compiled to a DFA, and only the DFA's verdict
// (which branches are live) feeds back into what gets emitted.
//
// semgen uses this to produce extract_regex(N)'s over-approximation:
// Frag sequences for each alternative of N are turned into a Pattern,
// nonterminal references are inlined by the caller's resolve callback
// (the referenced nonterminal's own pattern tree, or a wildcard once a
// caller-chosen recursion bound is hit, breaking cycles), and the result
// is compiled to a DFA purely to prune alternatives that can provably
// never reach an accepting state (e.g. one that inlines a nonterminal
// with no alternatives, an empty Alt) before the surviving alternatives
// are serialized.
package regexdfa

import "strings"

// Node is one pattern-tree element.
type Node interface{ patternNode() }

// Lit matches exactly Text, byte for byte.
type Lit struct{ Text string }

func (Lit) patternNode() {}

// Concat matches each Items element in sequence.
type Concat struct{ Items []Node }

func (Concat) patternNode() {}

// Alt matches any one of Items.
type Alt struct{ Items []Node }

func (Alt) patternNode() {}

// Wild matches zero or more arbitrary bytes, the cycle-breaker emitted
// once a recursion bound is reached while inlining a nonterminal.
type Wild struct{}

func (Wild) patternNode() {}

// Frag is one token of a grammar alternative: either literal text or a
// reference to another nonterminal (resolved by the caller before
// Compile is called, via BuildAlternative's resolve callback).
type Frag struct {
	Literal string
	Ref     string
}

// BuildAlternative turns one alternative's fragments into a Concat
// pattern, inlining nonterminal references via resolve. resolve returns
// the pattern tree for a nonterminal name (the caller is
// responsible for memoizing and for emitting Wild{} once its own
// recursion bound is reached).
func BuildAlternative(frags []Frag, resolve func(name string) Node) Node {
	items := make([]Node, 0, len(frags))
	for _, f := range frags {
		if f.Ref != "" {
			items = append(items, resolve(f.Ref))
			continue
		}
		if f.Literal != "" {
			items = append(items, Lit{Text: f.Literal})
		}
	}
	if len(items) == 0 {
		return Lit{Text: ""}
	}
	if len(items) == 1 {
		return items[0]
	}
	return Concat{Items: items}
}

// BuildNonterminal unions every alternative's pattern.
func BuildNonterminal(alts []Node) Node {
	if len(alts) == 1 {
		return alts[0]
	}
	return Alt{Items: alts}
}

// Serialize renders a pattern tree as an SMT regex-literal string,
// using the common str.to_re surface: literal bytes for Lit, "|" for
// Alt, concatenation by juxtaposition for Concat, ".*" for Wild.
// Every alternation is parenthesized; concatenation is not, since it
// binds tighter than "|".
func Serialize(n Node) string {
	switch v := n.(type) {
	case Lit:
		return escapeLiteral(v.Text)
	case Wild:
		return ".*"
	case Concat:
		var b strings.Builder
		for _, it := range v.Items {
			b.WriteString(Serialize(it))
		}
		return b.String()
	case Alt:
		parts := make([]string, len(v.Items))
		for i, it := range v.Items {
			parts[i] = Serialize(it)
		}
		return "(" + strings.Join(parts, "|") + ")"
	default:
		return ""
	}
}

func escapeLiteral(s string) string {
	r := strings.NewReplacer(
		`\`, `\\`, `.`, `\.`, `*`, `\*`, `+`, `\+`, `?`, `\?`,
		`(`, `\(`, `)`, `\)`, `[`, `\[`, `]`, `\]`, `|`, `\|`, `^`, `\^`, `$`, `\$`,
	)
	return r.Replace(s)
}
