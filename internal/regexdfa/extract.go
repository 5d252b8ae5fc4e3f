package regexdfa

// AlternativeFrags is one grammar alternative expressed as a fragment
// sequence, the shape grammar.go's tokenize result is converted to by
// the caller before calling ExtractRegex.
type AlternativeFrags []Frag

// ExtractRegex computes extract_regex(nt)'s over-approximation: an SMT
// regex literal describing a superset of the strings nt can derive.
// resolveAlts returns the alternatives of a referenced nonterminal,
// recursively inlined up to maxDepth levels of nonterminal expansion;
// beyond that a Wild{} is substituted, matching the §4.F note that
// extract_regex may over-approximate via "any string" once expansion
// would otherwise not terminate.
//
// Each alternative is compiled to a DFA and alternatives whose DFA has
// no live path to acceptance (Live() == false) are dropped before the
// survivors are unioned and serialized; this never happens for
// Lit/Concat-only alternatives but can for recursive references that
// resolve, after inlining, to an empty Alt{}.
func ExtractRegex(alts []AlternativeFrags, resolveAlts func(name string) []AlternativeFrags, maxDepth int) string {
	live := BuildPattern(alts, resolveAlts, maxDepth)
	if live == nil {
		return "(re.none)"
	}
	return Serialize(live)
}

// BuildPattern is ExtractRegex without the final serialization step: it
// returns the pruned pattern tree itself (or nil if every alternative
// was pruned as dead), for callers that compile the pattern straight
// into a DFA rather than needing the regex-literal text.
func BuildPattern(alts []AlternativeFrags, resolveAlts func(name string) []AlternativeFrags, maxDepth int) Node {
	memo := map[string]Node{}
	var resolve func(name string, depth int) Node
	resolve = func(name string, depth int) Node {
		if n, ok := memo[name]; ok {
			return n
		}
		if depth <= 0 {
			return Wild{}
		}
		memo[name] = Wild{} // cycle guard: self-reference while building resolves to Wild
		sub := resolveAlts(name)
		items := make([]Node, 0, len(sub))
		for _, frags := range sub {
			items = append(items, BuildAlternative(frags, func(ref string) Node {
				return resolve(ref, depth-1)
			}))
		}
		built := BuildNonterminal(items)
		memo[name] = built
		return built
	}

	var live []Node
	for _, frags := range alts {
		n := BuildAlternative(frags, func(ref string) Node { return resolve(ref, maxDepth) })
		if Compile(n).Live() {
			live = append(live, n)
		}
	}
	if len(live) == 0 {
		return nil
	}
	return BuildNonterminal(live)
}
