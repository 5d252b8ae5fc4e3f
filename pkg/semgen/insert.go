package semgen

import "sort"

// TreeInsertionMethod is a bitmask selecting which of the three tree
// insertion strategies (§4.E) InsertPattern is allowed to try. Modeled
// as a small enum-of-flags the way gokando's search options compose
// (optimize.go), so a caller can disable e.g. context addition without
// losing the other two.
type TreeInsertionMethod uint8

const (
	DirectEmbedding TreeInsertionMethod = 1 << iota
	SelfEmbedding
	ContextAddition

	AllInsertionMethods = DirectEmbedding | SelfEmbedding | ContextAddition
)

// InsertResult is one candidate host tree produced by tree insertion,
// paired with the closing cost used to rank it.
type InsertResult struct {
	Tree   *Node
	Cost   int
	Method TreeInsertionMethod
}

// InsertPattern enumerates host trees that contain host isomorphically
// and additionally contain an occurrence of pattern, per the three
// strategies of §4.E. isRoot must be true when host is the solver's
// entire current tree (a precondition of context addition). Results
// are sorted by treeClosingCost and truncated to maxResults.
func InsertPattern(g *Grammar, host, pattern *Node, isRoot bool, methods TreeInsertionMethod, maxResults int) []InsertResult {
	var out []InsertResult

	if methods&DirectEmbedding != 0 {
		for _, t := range directEmbedding(g, host, pattern) {
			out = append(out, InsertResult{Tree: t, Cost: int(treeClosingCost(g, t)), Method: DirectEmbedding})
		}
	}
	if methods&SelfEmbedding != 0 {
		for _, t := range selfEmbedding(g, host, pattern) {
			out = append(out, InsertResult{Tree: t, Cost: int(treeClosingCost(g, t)), Method: SelfEmbedding})
		}
	}
	if isRoot && methods&ContextAddition != 0 {
		for _, t := range contextAddition(g, host, pattern) {
			out = append(out, InsertResult{Tree: t, Cost: int(treeClosingCost(g, t)), Method: ContextAddition})
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Cost < out[j].Cost })
	if maxResults > 0 && len(out) > maxResults {
		out = out[:maxResults]
	}
	return out
}

// directEmbedding replaces an open leaf L in host whose symbol reaches
// pattern's root symbol with a minimal expansion chain ending in an
// occurrence of pattern.
func directEmbedding(g *Grammar, host, pattern *Node) []*Node {
	var out []*Node
	for path, leaf := range host.OpenLeaves() {
		closed, ok := closeViaChain(g, leaf.Value(), pattern)
		if !ok {
			continue
		}
		out = append(out, host.ReplacePath(path, closed))
	}
	return out
}

// selfEmbedding locates a sub-tree S in host whose symbol equals
// pattern's root symbol and is self-reachable, wraps S in a minimal
// recursive context, and attaches pattern as a sibling within that new
// context.
func selfEmbedding(g *Grammar, host, pattern *Node) []*Node {
	n := pattern.Value()
	if n.IsTerminal() || !g.selfReachable(n) {
		return nil
	}
	chain, ok := g.minimalCycle(n)
	if !ok {
		return nil
	}
	var out []*Node
	for path, node := range host.Paths() {
		if !node.Value().Equal(n) {
			continue
		}
		exRoot, exTail := g.expandChain(NewOpen(n), chain)
		if exTail == nil {
			continue
		}
		withS := replaceDescendant(exRoot, exTail, node)
		if attached, ok := attachSibling(g, withS, pattern); ok {
			out = append(out, host.ReplacePath(path, attached))
		}
	}
	return out
}

// contextAddition grows a new parent context around host's root,
// attaching pattern on a new branch. Only meaningful when host is the
// solver's entire current tree.
func contextAddition(g *Grammar, host, pattern *Node) []*Node {
	hostSym := host.Value()
	var out []*Node
	for _, name := range g.Nonterminals() {
		m := NewNonterminal(name)
		for altIdx, alt := range g.Alternatives(m) {
			hostPos := -1
			for i, sym := range alt {
				if sym.Equal(hostSym) {
					hostPos = i
					break
				}
			}
			if hostPos < 0 {
				continue
			}
			expanded := NewExpanded(m, g.Expand(m, altIdx))
			withHost := replaceDescendant(expanded, expanded.Children()[hostPos], host)
			if attached, ok := attachSibling(g, withHost, pattern); ok {
				out = append(out, attached)
			}
		}
	}
	return out
}

// closeViaChain expands a fresh open node for from along the shortest
// grammar path to pattern's symbol and substitutes pattern at the end,
// or reports failure if from cannot reach pattern's symbol.
func closeViaChain(g *Grammar, from Symbol, pattern *Node) (*Node, bool) {
	if from.IsTerminal() {
		return nil, false
	}
	if from.Equal(pattern.Value()) {
		return pattern, true
	}
	chain, ok := g.shortestPath(from, pattern.Value())
	if !ok {
		return nil, false
	}
	exRoot, exTail := g.expandChain(NewOpen(from), chain)
	if exTail == nil || !exTail.Value().Equal(pattern.Value()) {
		return nil, false
	}
	return replaceDescendant(exRoot, exTail, pattern), true
}

// attachSibling finds the first open leaf of host that can host an
// occurrence of pattern (directly, or via a minimal expansion chain)
// and returns the resulting tree.
func attachSibling(g *Grammar, host, pattern *Node) (*Node, bool) {
	for path, leaf := range host.OpenLeaves() {
		closed, ok := closeViaChain(g, leaf.Value(), pattern)
		if !ok {
			continue
		}
		return host.ReplacePath(path, closed), true
	}
	return nil, false
}

// countNodes returns the total number of nodes (open, leaf, or
// expanded) in n's tree.
func countNodes(n *Node) int {
	count := 0
	for range n.Paths() {
		count++
	}
	return count
}
