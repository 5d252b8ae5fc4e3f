package semgen

import (
	"context"
	"strconv"
	"sync"

	"github.com/gitrdm/semgen/internal/parallel"
)

// ruleResult is what one §4.G rule-priority step reports: whether it
// applied at all (even with zero successors — a state can be
// discarded outright, e.g. an SMT atom that is trivially unsat), the
// successor states it produced, and any complete trees it yielded
// directly (only rule h, free fuzzing, ever does the latter).
type ruleResult struct {
	applicable bool
	successors []SolutionState
	yielded    []*Node
}

type ruleFunc func(ctx context.Context, sv *Solver, state SolutionState) (ruleResult, error)

// ruleOrder is the fixed priority §4.G mandates: the first rule that
// applies determines this iteration's successors and ends the scan.
var ruleOrder = []ruleFunc{
	ruleStructural,
	ruleNumConst,
	ruleForallMatch,
	ruleExpand,
	ruleSMT,
	ruleSemantic,
	ruleExists,
	ruleFreeFuzz,
}

// rewriteFirstMatch walks f pre-order and applies try to the first node
// where it reports a match, rebuilding only the spine down to that
// node (everything else keeps its original Formula value). try returns
// (replacement, matched, err); when matched is false the walk
// continues into that node's own children.
func rewriteFirstMatch(f Formula, try func(Formula) (Formula, bool, error)) (Formula, bool, error) {
	if nf, ok, err := try(f); err != nil {
		return f, false, err
	} else if ok {
		return nf, true, nil
	}
	switch v := f.(type) {
	case Forall:
		nb, done, err := rewriteFirstMatch(v.Body, try)
		if err != nil || !done {
			return f, false, err
		}
		v.Body = nb
		return v, true, nil
	case Exists:
		nb, done, err := rewriteFirstMatch(v.Body, try)
		if err != nil || !done {
			return f, false, err
		}
		v.Body = nb
		return v, true, nil
	case NumConst:
		nb, done, err := rewriteFirstMatch(v.Body, try)
		if err != nil || !done {
			return f, false, err
		}
		v.Body = nb
		return v, true, nil
	case And:
		if nl, done, err := rewriteFirstMatch(v.Left, try); err != nil {
			return f, false, err
		} else if done {
			v.Left = nl
			return v, true, nil
		}
		if nr, done, err := rewriteFirstMatch(v.Right, try); err != nil {
			return f, false, err
		} else if done {
			v.Right = nr
			return v, true, nil
		}
		return f, false, nil
	case Or:
		if nl, done, err := rewriteFirstMatch(v.Left, try); err != nil {
			return f, false, err
		} else if done {
			v.Left = nl
			return v, true, nil
		}
		if nr, done, err := rewriteFirstMatch(v.Right, try); err != nil {
			return f, false, err
		} else if done {
			v.Right = nr
			return v, true, nil
		}
		return f, false, nil
	case Not:
		no, done, err := rewriteFirstMatch(v.Operand, try)
		if err != nil || !done {
			return f, false, err
		}
		v.Operand = no
		return v, true, nil
	default:
		return f, false, nil
	}
}

// ruleStructural is §4.G rule (a): the first structural-predicate atom
// whose arguments are all concrete trees is replaced by its boolean
// value.
func ruleStructural(ctx context.Context, sv *Solver, state SolutionState) (ruleResult, error) {
	nf, found, err := rewriteFirstMatch(state.Constraint, func(f Formula) (Formula, bool, error) {
		sa, ok := f.(StructuralAtom)
		if !ok || !sa.AllConcrete() {
			return f, false, nil
		}
		val, err := sv.registry.EvalStructural(state.Tree, sa)
		if err != nil {
			return f, false, err
		}
		return BoolConst{Value: val}, true, nil
	})
	if err != nil {
		return ruleResult{}, err
	}
	if !found {
		return ruleResult{}, nil
	}
	return ruleResult{applicable: true, successors: sv.finish(state, nf, state.Tree)}, nil
}

// ruleNumConst is §4.G rule (b): the first NumConst whose Source.In is
// already a concrete tree is replaced by its body, with Var bound to a
// fresh terminal literal carrying the decimal count.
func ruleNumConst(ctx context.Context, sv *Solver, state SolutionState) (ruleResult, error) {
	nf, found, err := rewriteFirstMatch(state.Constraint, func(f Formula) (Formula, bool, error) {
		nc, ok := f.(NumConst)
		if !ok || nc.Source.In.Tree == nil {
			return f, false, nil
		}
		count := countOccurrences(nc.Source.In.Tree, nc.Source.Target)
		body := SubstituteVariables(nc.Body, map[*Variable]*Node{
			nc.Var: NewLeaf(NewTerminal(strconv.Itoa(count))),
		})
		return body, true, nil
	})
	if err != nil {
		return ruleResult{}, err
	}
	if !found {
		return ruleResult{}, nil
	}
	return ruleResult{applicable: true, successors: sv.finish(state, nf, state.Tree)}, nil
}

func countOccurrences(tree *Node, target Symbol) int {
	n := 0
	for _, node := range tree.Paths() {
		if node.Value().Equal(target) {
			n++
		}
	}
	return n
}

// ruleForallMatch is §4.G rule (c): every ∀ formula has its unmatched
// bindings instantiated and folded in as extra conjuncts in one pass,
// updating each ∀'s AlreadyMatched.
func ruleForallMatch(ctx context.Context, sv *Solver, state SolutionState) (ruleResult, error) {
	changed := false
	var walk func(Formula) Formula
	walk = func(f Formula) Formula {
		switch v := f.(type) {
		case Forall:
			v.Body = walk(v.Body)
			if v.In.Tree == nil {
				// The domain this ∀ ranges over isn't bound to a
				// concrete tree yet (its enclosing scope hasn't been
				// resolved) — nothing to match against yet.
				return v
			}
			bindings := FindBindings(v.Var, v.MatchExpr, v.In.Tree, v.AlreadyMatched)
			if len(bindings) == 0 {
				return v
			}
			changed = true
			nv := v
			var extra Formula
			for _, b := range bindings {
				inst := SubstituteVariables(v.Body, b.Env)
				if extra == nil {
					extra = inst
				} else {
					extra = And{Left: extra, Right: inst}
				}
				nv = nv.WithMatched(b.Root)
			}
			return And{Left: nv, Right: extra}
		case Exists:
			v.Body = walk(v.Body)
			return v
		case NumConst:
			v.Body = walk(v.Body)
			return v
		case And:
			return And{Left: walk(v.Left), Right: walk(v.Right)}
		case Or:
			return Or{Left: walk(v.Left), Right: walk(v.Right)}
		case Not:
			return Not{Operand: walk(v.Operand)}
		default:
			return f
		}
	}
	nf := walk(state.Constraint)
	if !changed {
		return ruleResult{}, nil
	}
	return ruleResult{applicable: true, successors: sv.finish(state, nf, state.Tree)}, nil
}

// patternTargets returns every nonterminal a match pattern can bind
// against: the concrete Shape symbols plus every hole variable's sort.
func patternTargets(p *MatchPattern) []Symbol {
	if p == nil {
		return nil
	}
	if p.Var != nil {
		return []Symbol{p.Var.Sort.Nonterminal}
	}
	out := []Symbol{p.Sym}
	for _, c := range p.Children {
		out = append(out, patternTargets(c)...)
	}
	return out
}

func quantifierTargets(v *Variable, pattern *MatchPattern) []Symbol {
	if pattern == nil {
		return []Symbol{v.Sort.Nonterminal}
	}
	return append([]Symbol{v.Sort.Nonterminal}, patternTargets(pattern)...)
}

// collectForallTargets gathers quantifierTargets over every ∀ anywhere
// in f, used by rule (d) to decide which open leaves are worth
// expanding.
func collectForallTargets(f Formula) []Symbol {
	var out []Symbol
	switch v := f.(type) {
	case Forall:
		out = append(out, quantifierTargets(v.Var, v.MatchExpr)...)
		out = append(out, collectForallTargets(v.Body)...)
	case Exists:
		out = append(out, collectForallTargets(v.Body)...)
	case NumConst:
		out = append(out, collectForallTargets(v.Body)...)
	case And:
		out = append(out, collectForallTargets(v.Left)...)
		out = append(out, collectForallTargets(v.Right)...)
	case Or:
		out = append(out, collectForallTargets(v.Left)...)
		out = append(out, collectForallTargets(v.Right)...)
	case Not:
		out = append(out, collectForallTargets(v.Operand)...)
	}
	return out
}

// ruleExpand is §4.G rule (d): with at least one ∀ remaining, expand
// one step at every open leaf that could potentially reach one of its
// targets, Cartesian-producted across eligible leaves when there is
// more than one.
func ruleExpand(ctx context.Context, sv *Solver, state SolutionState) (ruleResult, error) {
	targets := collectForallTargets(state.Constraint)
	if len(targets) == 0 {
		return ruleResult{}, nil
	}
	trees := expandReachableLeaves(sv.grammar, state.Tree, targets)
	if len(trees) == 0 {
		return ruleResult{}, nil
	}
	successors := make([]SolutionState, 0, len(trees))
	for _, t := range trees {
		successors = append(successors, sv.finish(state, state.Constraint, t)...)
	}
	return ruleResult{applicable: true, successors: successors}, nil
}

const maxExpandCombos = 64

func expandReachableLeaves(g *Grammar, tree *Node, targets []Symbol) []*Node {
	type leafSite struct {
		path Path
		sym  Symbol
	}
	var eligible []leafSite
	for path, leaf := range tree.OpenLeaves() {
		for _, t := range targets {
			if g.reachable(leaf.Value(), t) {
				eligible = append(eligible, leafSite{path: append(Path(nil), path...), sym: leaf.Value()})
				break
			}
		}
	}
	if len(eligible) == 0 {
		return nil
	}
	results := []*Node{tree}
	for _, site := range eligible {
		alts := g.Alternatives(site.sym)
		var next []*Node
		for _, base := range results {
			for altIdx := range alts {
				expanded := NewExpanded(site.sym, g.Expand(site.sym, altIdx))
				next = append(next, base.ReplacePath(site.path, expanded))
				if len(next) >= maxExpandCombos {
					break
				}
			}
			if len(next) >= maxExpandCombos {
				break
			}
		}
		results = next
		if len(results) >= maxExpandCombos {
			break
		}
	}
	return results
}

// collectSMTAtoms gathers every SMTAtom anywhere in f.
func collectSMTAtoms(f Formula) []SMTAtom {
	var out []SMTAtom
	switch v := f.(type) {
	case SMTAtom:
		out = append(out, v)
	case Forall:
		out = append(out, collectSMTAtoms(v.Body)...)
	case Exists:
		out = append(out, collectSMTAtoms(v.Body)...)
	case NumConst:
		out = append(out, collectSMTAtoms(v.Body)...)
	case And:
		out = append(out, collectSMTAtoms(v.Left)...)
		out = append(out, collectSMTAtoms(v.Right)...)
	case Or:
		out = append(out, collectSMTAtoms(v.Left)...)
		out = append(out, collectSMTAtoms(v.Right)...)
	case Not:
		out = append(out, collectSMTAtoms(v.Operand)...)
	}
	return out
}

func replaceAllSMTAtoms(f Formula) Formula {
	switch v := f.(type) {
	case SMTAtom:
		return True
	case Forall:
		v.Body = replaceAllSMTAtoms(v.Body)
		return v
	case Exists:
		v.Body = replaceAllSMTAtoms(v.Body)
		return v
	case NumConst:
		v.Body = replaceAllSMTAtoms(v.Body)
		return v
	case And:
		return And{Left: replaceAllSMTAtoms(v.Left), Right: replaceAllSMTAtoms(v.Right)}
	case Or:
		return Or{Left: replaceAllSMTAtoms(v.Left), Right: replaceAllSMTAtoms(v.Right)}
	case Not:
		return Not{Operand: replaceAllSMTAtoms(v.Operand)}
	default:
		return f
	}
}

// ruleSMT is §4.G rule (e): gather every SMT atom, cluster them (§4.F
// step 1 / §9), solve each cluster, and substitute the joint solutions
// (Cartesian product across independent clusters, capped by
// Config.MaxSMTInstantiations).
func ruleSMT(ctx context.Context, sv *Solver, state SolutionState) (ruleResult, error) {
	atoms := collectSMTAtoms(state.Constraint)
	if len(atoms) == 0 {
		return ruleResult{}, nil
	}
	clusters := clusterAtoms(atoms)

	// Clusters never share a variable (clusterAtoms' union-find rule
	// guarantees this), so resolving them is embarrassingly parallel;
	// fan them out across a bounded worker pool rather than walking
	// them one at a time.
	type clusterResult struct {
		sols []Solution
		err  error
	}
	results := make([]clusterResult, len(clusters))
	pool := parallel.NewStaticWorkerPool(max(1, len(clusters)))
	defer pool.Shutdown()
	var wg sync.WaitGroup
	for i, cluster := range clusters {
		i, cluster := i, cluster
		wg.Add(1)
		submitErr := pool.Submit(ctx, func() {
			defer wg.Done()
			sols, err := ResolveSMT(ctx, sv.cfg.Backend, sv.grammar, cluster, sv.cfg.MaxSMTInstantiations, sv.cfg.RegexDepth)
			results[i] = clusterResult{sols: sols, err: err}
		})
		if submitErr != nil {
			wg.Done()
			results[i] = clusterResult{err: submitErr}
		}
	}
	wg.Wait()

	type combo struct {
		tree map[NodeID]*Node
		vars map[*Variable]*Node
	}
	combos := []combo{{tree: map[NodeID]*Node{}, vars: map[*Variable]*Node{}}}
	for _, res := range results {
		if res.err != nil && len(res.sols) == 0 {
			// Real backend failure on the first attempt for this
			// cluster: treat as local, this disjunct dies (§7).
			return ruleResult{applicable: true}, nil
		}
		if len(res.sols) == 0 {
			return ruleResult{applicable: true}, nil
		}
		var next []combo
		for _, base := range combos {
			for _, s := range res.sols {
				nt := mergeNodeSubst(base.tree, s.TreeSubst)
				nv := mergeVarSubst(base.vars, s.VarSubst)
				next = append(next, combo{tree: nt, vars: nv})
				if len(next) >= sv.cfg.MaxSMTInstantiations {
					break
				}
			}
			if len(next) >= sv.cfg.MaxSMTInstantiations {
				break
			}
		}
		combos = next
	}

	base := replaceAllSMTAtoms(state.Constraint)
	successors := make([]SolutionState, 0, len(combos))
	for _, c := range combos {
		nf := SubstituteTrees(SubstituteVariables(base, c.vars), c.tree)
		tree := state.Tree.Substitute(c.tree)
		successors = append(successors, sv.finish(state, nf, tree)...)
	}
	return ruleResult{applicable: true, successors: successors}, nil
}

func mergeNodeSubst(a, b map[NodeID]*Node) map[NodeID]*Node {
	out := make(map[NodeID]*Node, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		out[k] = v
	}
	return out
}

func mergeVarSubst(a, b map[*Variable]*Node) map[*Variable]*Node {
	out := make(map[*Variable]*Node, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		out[k] = v
	}
	return out
}

// ruleSemantic is §4.G rule (f): the first semantic-predicate atom
// whose arguments are concrete and whose evaluator is actually ready
// (as opposed to merely argument-concrete) is replaced by its boolean
// verdict, or its returned substitution is applied to the tree.
func ruleSemantic(ctx context.Context, sv *Solver, state SolutionState) (ruleResult, error) {
	var pending map[NodeID]*Node
	nf, found, err := rewriteFirstMatch(state.Constraint, func(f Formula) (Formula, bool, error) {
		sa, ok := f.(SemanticAtom)
		if !ok || !IsSemanticReady(sa) {
			return f, false, nil
		}
		res, err := sv.registry.EvalSemantic(state.Tree, sa)
		if err != nil {
			return f, false, err
		}
		if !res.Ready {
			return f, false, nil
		}
		if len(res.Substituted) > 0 {
			pending = res.Substituted
		}
		return BoolConst{Value: res.Value}, true, nil
	})
	if err != nil {
		return ruleResult{}, err
	}
	if !found {
		return ruleResult{}, nil
	}
	tree := state.Tree
	if len(pending) > 0 {
		tree = tree.Substitute(pending)
		nf = SubstituteTrees(nf, pending)
	}
	return ruleResult{applicable: true, successors: sv.finish(state, nf, tree)}, nil
}

// firstExistsZipper locates the first ∃ formula in f (pre-order) and
// returns it along with a rebuild closure that reconstructs the whole
// formula given a replacement for that exact slot.
func firstExistsZipper(f Formula) (Exists, bool, func(Formula) Formula) {
	switch v := f.(type) {
	case Exists:
		return v, true, func(nf Formula) Formula { return nf }
	case Forall:
		if e, ok, rb := firstExistsZipper(v.Body); ok {
			return e, true, func(nf Formula) Formula { v2 := v; v2.Body = rb(nf); return v2 }
		}
	case NumConst:
		if e, ok, rb := firstExistsZipper(v.Body); ok {
			return e, true, func(nf Formula) Formula { v2 := v; v2.Body = rb(nf); return v2 }
		}
	case And:
		if e, ok, rb := firstExistsZipper(v.Left); ok {
			return e, true, func(nf Formula) Formula { v2 := v; v2.Left = rb(nf); return v2 }
		}
		if e, ok, rb := firstExistsZipper(v.Right); ok {
			return e, true, func(nf Formula) Formula { v2 := v; v2.Right = rb(nf); return v2 }
		}
	case Or:
		if e, ok, rb := firstExistsZipper(v.Left); ok {
			return e, true, func(nf Formula) Formula { v2 := v; v2.Left = rb(nf); return v2 }
		}
		if e, ok, rb := firstExistsZipper(v.Right); ok {
			return e, true, func(nf Formula) Formula { v2 := v; v2.Right = rb(nf); return v2 }
		}
	case Not:
		if e, ok, rb := firstExistsZipper(v.Operand); ok {
			return e, true, func(nf Formula) Formula { v2 := v; v2.Operand = rb(nf); return v2 }
		}
	}
	return Exists{}, false, nil
}

// patternToNodeWithHoles turns a MatchPattern into the *Node tree-shaped
// pattern InsertPattern expects, recording which fresh open node stands
// for which hole variable so the caller can bind it back after
// insertion finds (or fails to find) a home for it.
func patternToNodeWithHoles(p *MatchPattern, holes map[NodeID]*Variable) *Node {
	if p.Var != nil {
		n := NewOpen(p.Var.Sort.Nonterminal)
		holes[n.ID()] = p.Var
		return n
	}
	if len(p.Children) == 0 {
		if p.Sym.IsTerminal() {
			return NewLeaf(p.Sym)
		}
		return NewOpen(p.Sym)
	}
	children := make([]*Node, len(p.Children))
	for i, c := range p.Children {
		children[i] = patternToNodeWithHoles(c, holes)
	}
	return NewExpanded(p.Sym, children)
}

// ruleExists is §4.G rule (g): the first ∃ formula is eliminated by
// matching (§4.D) when a binding already exists; failing that, by tree
// insertion (§4.E).
func ruleExists(ctx context.Context, sv *Solver, state SolutionState) (ruleResult, error) {
	ex, found, rebuild := firstExistsZipper(state.Constraint)
	if !found {
		return ruleResult{}, nil
	}
	host := ex.In.Tree
	if host == nil {
		// Domain not bound to a concrete tree yet; this ∃ cannot be
		// eliminated until an enclosing scope resolves it.
		return ruleResult{}, nil
	}

	bindings := FindBindings(ex.Var, ex.MatchExpr, host, nil)
	if len(bindings) > 0 {
		successors := make([]SolutionState, 0, len(bindings))
		for _, b := range bindings {
			body := SubstituteVariables(ex.Body, b.Env)
			successors = append(successors, sv.finish(state, rebuild(body), state.Tree)...)
		}
		return ruleResult{applicable: true, successors: successors}, nil
	}

	var pattern *Node
	holes := map[NodeID]*Variable{}
	if ex.MatchExpr != nil {
		pattern = patternToNodeWithHoles(ex.MatchExpr, holes)
	} else {
		pattern = NewOpen(ex.Var.Sort.Nonterminal)
	}

	isRoot := host.ID() == state.Tree.ID()
	results := InsertPattern(sv.grammar, host, pattern, isRoot, sv.cfg.TreeInsertionMethods, sv.cfg.MaxTreeInsertionResults)
	if len(results) == 0 {
		sv.stats.InsertionMisses.Add(1)
		return ruleResult{applicable: true}, nil
	}

	_, hostPath, hostFound := state.Tree.FindNode(host.ID())
	if !isRoot && !hostFound {
		return ruleResult{applicable: true}, nil
	}

	successors := make([]SolutionState, 0, len(results))
	for _, r := range results {
		occurrence, _, ok := r.Tree.FindNode(pattern.ID())
		if !ok {
			continue
		}
		env := map[*Variable]*Node{ex.Var: occurrence}
		for holeID, v := range holes {
			if node, _, ok := occurrence.FindNode(holeID); ok {
				env[v] = node
			}
		}
		body := SubstituteVariables(ex.Body, env)
		updatedHost := r.Tree
		if !sv.cfg.DisableExpandAfterInsertion {
			updatedHost = expandAfterInsertion(sv.grammar, updatedHost)
		}
		tree := updatedHost
		if !isRoot {
			tree = state.Tree.ReplacePath(hostPath, updatedHost)
		}
		successors = append(successors, sv.finish(state, rebuild(body), tree)...)
	}
	return ruleResult{applicable: true, successors: successors}, nil
}

// expandAfterInsertion resolves SPEC_FULL's Open Question (i): one
// bounded, cheapest-alternative expansion pass over every open leaf
// still present right after a tree insertion, so a newly attached
// pattern's own open leaves aren't left stalling the next rule scan.
func expandAfterInsertion(g *Grammar, tree *Node) *Node {
	cost := g.symbolCost()
	for path, leaf := range tree.OpenLeaves() {
		alts := g.Alternatives(leaf.Value())
		if len(alts) == 0 {
			continue
		}
		bestIdx, bestCost := 0, -1
		for i, alt := range alts {
			c := 1
			for _, sym := range alt {
				if sym.IsNonterminal() {
					c += cost[sym.Name()]
				}
			}
			if bestCost == -1 || c < bestCost {
				bestCost, bestIdx = c, i
			}
		}
		tree = tree.ReplacePath(path, NewExpanded(leaf.Value(), g.Expand(leaf.Value(), bestIdx)))
	}
	return tree
}

// ruleFreeFuzz is §4.G rule (h): once the constraint is true, complete
// every remaining open leaf with the configured Fuzzer, up to
// Config.MaxFreeInstantiations distinct completions, yielding each
// complete result directly.
func ruleFreeFuzz(ctx context.Context, sv *Solver, state SolutionState) (ruleResult, error) {
	bc, ok := state.Constraint.(BoolConst)
	if !ok || !bc.Value {
		return ruleResult{}, nil
	}
	if state.Tree.IsComplete() {
		return ruleResult{applicable: true, yielded: []*Node{state.Tree}}, nil
	}
	var yielded []*Node
	seen := map[uint64]bool{}
	for i := 0; i < sv.cfg.MaxFreeInstantiations; i++ {
		tree, err := sv.cfg.Fuzzer.Complete(sv.grammar, state.Tree, i)
		if err != nil {
			continue
		}
		h := tree.StructuralHash()
		if seen[h] {
			continue
		}
		seen[h] = true
		yielded = append(yielded, tree)
	}
	return ruleResult{applicable: true, yielded: yielded}, nil
}
