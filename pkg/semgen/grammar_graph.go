package semgen

import (
	"sort"
	"strings"

	"github.com/katalvlaran/lvlath/bfs"
	"github.com/katalvlaran/lvlath/core"
)

// graph returns a lvlath projection of gr: one vertex per nonterminal,
// one directed edge per nonterminal reference appearing in any
// alternative. It backs reachable, shortestDistance and k_paths, and is
// built lazily the first time any of those is needed since many
// grammars never call them (e.g. a solve with no quantifiers or counts
// over grammar structure).
func (gr *Grammar) graph() *core.Graph {
	gr.graphOnce.Do(func() {
		g := core.NewGraph(core.WithDirected(true), core.WithLoops())
		for _, name := range gr.Nonterminals() {
			_ = g.AddVertex(name)
		}
		for _, name := range gr.Nonterminals() {
			for _, alt := range gr.Alternatives(NewNonterminal(name)) {
				for _, sym := range alt {
					if sym.IsNonterminal() {
						_, _ = g.AddEdge(name, sym.Name(), 0)
					}
				}
			}
		}
		gr.g = g
	})
	return gr.g
}

// reachable reports whether some derivation of from can contain a node
// labeled to (including from == to, since a symbol trivially "reaches"
// itself with zero expansions).
func (gr *Grammar) reachable(from, to Symbol) bool {
	if from.Equal(to) {
		return true
	}
	if from.IsTerminal() || to.IsTerminal() {
		return false
	}
	res, err := bfs.BFS(gr.graph(), from.Name())
	if err != nil {
		return false
	}
	_, ok := res.Depth[to.Name()]
	return ok
}

// shortestDistance returns the minimum number of expansion steps
// needed to derive a to-labeled node starting from a from-labeled open
// node, or (0, false) if to is unreachable from from.
func (gr *Grammar) shortestDistance(from, to Symbol) (int, bool) {
	if from.Equal(to) {
		return 0, true
	}
	if from.IsTerminal() || to.IsTerminal() {
		return 0, false
	}
	res, err := bfs.BFS(gr.graph(), from.Name())
	if err != nil {
		return 0, false
	}
	d, ok := res.Depth[to.Name()]
	return d, ok
}

// shortestPath returns the chain of nonterminal names from -> ... -> to
// along a shortest grammar derivation, inclusive of both endpoints, or
// (nil, false) if to is unreachable from from. Used by tree insertion
// (§4.E) to build the minimal expansion context a direct- or
// self-embedding strategy attaches.
func (gr *Grammar) shortestPath(from, to Symbol) ([]string, bool) {
	if from.IsTerminal() || to.IsTerminal() {
		return nil, false
	}
	if from.Equal(to) {
		return []string{from.Name()}, true
	}
	res, err := bfs.BFS(gr.graph(), from.Name())
	if err != nil {
		return nil, false
	}
	path, err := res.PathTo(to.Name())
	if err != nil {
		return nil, false
	}
	return path, true
}

// selfReachable reports whether nt can reach itself through one or more
// expansions, i.e. it sits on a grammar cycle: some direct successor of
// nt can, in turn, reach nt again.
func (gr *Grammar) selfReachable(nt Symbol) bool {
	if nt.IsTerminal() {
		return false
	}
	neighbors, err := gr.graph().Neighbors(nt.Name())
	if err != nil {
		return false
	}
	for _, e := range neighbors {
		if e.To == nt.Name() {
			return true
		}
		res, err := bfs.BFS(gr.graph(), e.To)
		if err != nil {
			continue
		}
		if _, ok := res.Depth[nt.Name()]; ok {
			return true
		}
	}
	return false
}

// minimalCycle returns the shortest chain n -> ... -> n through the
// grammar graph (inclusive of both endpoints), used by self embedding
// (§4.E strategy 2) to build the smallest recursive wrapper around an
// occurrence of n. Requires selfReachable(n).
func (gr *Grammar) minimalCycle(n Symbol) ([]string, bool) {
	if n.IsTerminal() {
		return nil, false
	}
	neighbors, err := gr.graph().Neighbors(n.Name())
	if err != nil {
		return nil, false
	}
	var best []string
	for _, e := range neighbors {
		var cand []string
		if e.To == n.Name() {
			cand = []string{n.Name(), n.Name()}
		} else {
			res, err := bfs.BFS(gr.graph(), e.To)
			if err != nil {
				continue
			}
			path, err := res.PathTo(n.Name())
			if err != nil {
				continue
			}
			cand = append([]string{n.Name()}, path...)
		}
		if best == nil || len(cand) < len(best) {
			best = cand
		}
	}
	if best == nil {
		return nil, false
	}
	return best, true
}

// symbolCost implements the classic fuzzing-book cost formula:
//
//	expansion_cost(alt) = 1 + sum(symbol_cost(c) for c in alt if c nonterminal)
//	symbol_cost(N)      = min over N's alternatives of expansion_cost(alt)
//
// computed by fixpoint relaxation over the AND-OR structure (an
// alternative is an AND of its nonterminal children's costs, a
// nonterminal is an OR/min over its alternatives), since the grammar
// may be cyclic and a single topological pass is not available.
// Terminal-only or epsilon alternatives cost 1 or 0 respectively.
//
// After the fixpoint settles, a bounded monotonicity-repair pass bumps
// any symbol whose cost does not exceed a strictly-reachable
// descendant's cost by at least 1 along some path, since the raw
// fixpoint can under-count when a cycle's true minimal unrolling is
// larger than the fixpoint's first fixed point (component design note
// in §4.C).
func (gr *Grammar) symbolCost() map[string]int {
	const unreached = -1
	names := gr.Nonterminals()
	cost := make(map[string]int, len(names))
	for _, n := range names {
		cost[n] = unreached
	}

	altCost := func(alt Alternative) (int, bool) {
		total := 1
		for _, sym := range alt {
			if sym.IsTerminal() {
				continue
			}
			c, ok := cost[sym.Name()]
			if !ok || c == unreached {
				return 0, false
			}
			total += c
		}
		return total, true
	}

	changed := true
	for changed {
		changed = false
		for _, name := range names {
			best := unreached
			for _, alt := range gr.Alternatives(NewNonterminal(name)) {
				if alternativeNullable(alt, gr.nullable) && isEpsilonOnly(alt) {
					if best == unreached || 0 < best {
						best = 0
					}
					continue
				}
				c, ok := altCost(alt)
				if !ok {
					continue
				}
				if best == unreached || c < best {
					best = c
				}
			}
			if best != unreached && (cost[name] == unreached || best < cost[name]) {
				cost[name] = best
				changed = true
			}
		}
	}

	gr.repairMonotonicity(cost)
	return cost
}

func isEpsilonOnly(alt Alternative) bool {
	return len(alt) == 1 && alt[0].IsTerminal() && alt[0].IsEmpty()
}

// repairMonotonicity enforces that, along every grammar edge N -> M
// (M a nonterminal referenced directly by one of N's alternatives),
// cost[N] >= cost[M] + 1, bumping cost[N] upward as needed. Runs to a
// bounded number of passes (the number of nonterminals) since a single
// violating edge can only ever need to propagate its bump at most that
// many times before the whole graph is consistent or a genuine
// unresolvable cycle is detected and left as-is (a grammar where a
// nonterminal's only productions recurse through itself with no
// terminating alternative has no finite symbol_cost, and callers must
// treat an ever-growing value as "uncomputable" rather than loop
// forever here).
func (gr *Grammar) repairMonotonicity(cost map[string]int) {
	names := gr.Nonterminals()
	for pass := 0; pass < len(names)+1; pass++ {
		changed := false
		for _, name := range names {
			if cost[name] < 0 {
				continue
			}
			for _, alt := range gr.Alternatives(NewNonterminal(name)) {
				for _, sym := range alt {
					if !sym.IsNonterminal() {
						continue
					}
					childCost, ok := cost[sym.Name()]
					if !ok || childCost < 0 {
						continue
					}
					if cost[name] < childCost+1 {
						cost[name] = childCost + 1
						changed = true
					}
				}
			}
		}
		if !changed {
			break
		}
	}
}

// kPaths returns every distinct length-k walk through the grammar
// graph, each rendered as a "<A>-><B>-><C>" chain of bracketed
// nonterminal names, the same form Node.KPaths uses. This is the
// grammar-level counterpart to Node.KPaths: it considers every walk the
// grammar's production rules permit, not just the ones realized in one
// concrete derivation tree, and is what the cost model's global
// k-path-coverage term (§4.H) measures progress against.
func (gr *Grammar) kPaths(k int) map[string]bool {
	out := map[string]bool{}
	if k <= 0 {
		return out
	}
	g := gr.graph()
	var walk func(name string, acc []string)
	walk = func(name string, acc []string) {
		acc = append(acc, NewNonterminal(name).String())
		if len(acc) == k {
			out[strings.Join(acc, "->")] = true
			return
		}
		edges, err := g.Neighbors(name)
		if err != nil {
			return
		}
		sort.Slice(edges, func(i, j int) bool { return edges[i].To < edges[j].To })
		for _, e := range edges {
			walk(e.To, acc)
		}
	}
	for _, name := range gr.Nonterminals() {
		walk(name, nil)
	}
	return out
}
