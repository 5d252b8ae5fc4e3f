package semgen

import (
	"container/heap"
	"context"
	"fmt"
	"iter"
	"sync/atomic"
	"time"

	"github.com/gitrdm/semgen/internal/regexdfa"
)

// Fuzzer is the out-of-scope external collaborator §4.G rule (h) hands
// a fully-matched, constraint-satisfied-but-incomplete tree to: it
// must complete every remaining open leaf and return a complete tree.
// variant distinguishes successive calls for the same tree, letting an
// implementation return distinct completions without relying on a
// shared random source.
type Fuzzer interface {
	Complete(g *Grammar, tree *Node, variant int) (*Node, error)
}

// DefaultFuzzer is the reference Fuzzer used when a caller doesn't wire
// a real one: a deterministic, cheapest-alternative-first completion,
// varying which alternative it picks at each open leaf by variant so
// repeated calls on the same tree still diverge.
type DefaultFuzzer struct{}

func (DefaultFuzzer) Complete(g *Grammar, tree *Node, variant int) (*Node, error) {
	return completeOpen(g, tree, variant, 0)
}

const maxFuzzDepth = 500

func completeOpen(g *Grammar, n *Node, variant, depth int) (*Node, error) {
	if n.IsLeaf() {
		return n, nil
	}
	if depth > maxFuzzDepth {
		return nil, fmt.Errorf("semgen: fuzzer exceeded recursion bound expanding %s", n.Value())
	}
	if n.IsOpen() {
		alts := g.Alternatives(n.Value())
		if len(alts) == 0 {
			return nil, fmt.Errorf("semgen: %s has no alternatives to fuzz", n.Value())
		}
		cost := g.symbolCost()
		idx := pickAlt(alts, cost, variant)
		expanded := NewExpanded(n.Value(), g.Expand(n.Value(), idx))
		return completeOpen(g, expanded, variant, depth+1)
	}
	children := make([]*Node, len(n.Children()))
	for i, c := range n.Children() {
		cc, err := completeOpen(g, c, variant, depth+1)
		if err != nil {
			return nil, err
		}
		children[i] = cc
	}
	return NewExpanded(n.Value(), children), nil
}

// pickAlt chooses an alternative biased toward low symbol_cost (so
// fuzzing terminates quickly) while still varying with variant: it
// ranks alternatives by cost and rotates through the cheapest few.
func pickAlt(alts []Alternative, cost map[string]int, variant int) int {
	type ranked struct {
		idx int
		c   int
	}
	rs := make([]ranked, len(alts))
	for i, alt := range alts {
		c := 1
		for _, sym := range alt {
			if sym.IsNonterminal() {
				c += cost[sym.Name()]
			}
		}
		rs[i] = ranked{idx: i, c: c}
	}
	for i := 1; i < len(rs); i++ {
		for j := i; j > 0 && rs[j].c < rs[j-1].c; j-- {
			rs[j], rs[j-1] = rs[j-1], rs[j]
		}
	}
	window := len(rs)
	if window > 3 {
		window = 3
	}
	return rs[variant%window].idx
}

// SolutionState is one node of the solver's search: a partial
// derivation tree and the constraint still to be discharged against
// it, at a given search depth (used by the cost model's depth term).
type SolutionState struct {
	Tree       *Node
	Constraint Formula
	Level      int
}

// Config is the solver's full set of tunables, assembled by functional
// options the way gokando's optimize.go builds a SearchConfig.
type Config struct {
	Registry                    *Registry
	Backend                     SMTBackend
	Fuzzer                      Fuzzer
	CostSettings                CostSettings
	TreeInsertionMethods        TreeInsertionMethod
	MaxTreeInsertionResults     int
	MaxSMTInstantiations        int
	MaxFreeInstantiations       int
	RegexDepth                  int
	TimeoutSeconds              float64
	ActivateUnsatSupport        bool
	EnforceUniqueTreesInQueue   bool
	DisableExpandAfterInsertion bool
	InitialTree                 *Node
}

// Option configures a Solver at construction time.
type Option func(*Config)

// WithRegistry overrides the structural/semantic predicate registry
// (default NewRegistry()).
func WithRegistry(r *Registry) Option { return func(c *Config) { c.Registry = r } }

// WithSMTBackend wires an external satisfiability solver in place of
// DefaultSMTBackend.
func WithSMTBackend(b SMTBackend) Option { return func(c *Config) { c.Backend = b } }

// WithFuzzer overrides the free-fuzzing completer used by rule (h).
func WithFuzzer(f Fuzzer) Option { return func(c *Config) { c.Fuzzer = f } }

// WithCostSettings overrides the phase-rotation cost model settings.
func WithCostSettings(s CostSettings) Option { return func(c *Config) { c.CostSettings = s } }

// WithTreeInsertionMethods restricts which of the three §4.E strategies
// tree insertion is allowed to try (default AllInsertionMethods).
func WithTreeInsertionMethods(m TreeInsertionMethod) Option {
	return func(c *Config) { c.TreeInsertionMethods = m }
}

// WithMaxTreeInsertionResults caps how many insertion candidates rule
// (g) fans out into per existential elimination (default 4).
func WithMaxTreeInsertionResults(n int) Option {
	return func(c *Config) { c.MaxTreeInsertionResults = n }
}

// WithMaxSMTInstantiations caps how many distinct joint solutions
// solve_quantifier_free enumerates per cluster (default 8).
func WithMaxSMTInstantiations(n int) Option {
	return func(c *Config) { c.MaxSMTInstantiations = n }
}

// WithMaxFreeInstantiations caps how many distinct complete trees rule
// (h) yields per true-constraint state (default 1).
func WithMaxFreeInstantiations(n int) Option {
	return func(c *Config) { c.MaxFreeInstantiations = n }
}

// WithRegexDepth caps how many levels deep extract_regex inlines nested
// nonterminal references (default 3).
func WithRegexDepth(n int) Option { return func(c *Config) { c.RegexDepth = n } }

// WithTimeout bounds Generate's total wall-clock budget; zero (the
// default) means no timeout.
func WithTimeout(seconds float64) Option { return func(c *Config) { c.TimeoutSeconds = seconds } }

// WithUnsatSupport enables §7's unsat-vs-exhausted distinction: when
// set, Generate returns ErrUnsat instead of ErrExhausted if every
// initial disjunct was discarded by a local rule failure rather than
// merely running out of queue budget.
func WithUnsatSupport() Option { return func(c *Config) { c.ActivateUnsatSupport = true } }

// WithUniqueTreesInQueue enables de-duplication of queued states by
// tree StructuralHash (§8 property 3), discarding a successor whose
// tree shape already has a live queue entry.
func WithUniqueTreesInQueue() Option { return func(c *Config) { c.EnforceUniqueTreesInQueue = true } }

// WithoutExpandAfterInsertion disables the one bounded expansion pass
// rule (g) otherwise runs immediately after a tree insertion succeeds.
func WithoutExpandAfterInsertion() Option {
	return func(c *Config) { c.DisableExpandAfterInsertion = true }
}

// WithInitialTree seeds the search from tree instead of a fresh open
// root, used by Repair to anchor the search at an existing derivation.
func WithInitialTree(tree *Node) Option { return func(c *Config) { c.InitialTree = tree } }

func defaultConfig() Config {
	return Config{
		Registry:                NewRegistry(),
		Backend:                 DefaultSMTBackend{},
		Fuzzer:                  DefaultFuzzer{},
		CostSettings:            DefaultCostSettings(),
		TreeInsertionMethods:    AllInsertionMethods,
		MaxTreeInsertionResults: 4,
		MaxSMTInstantiations:    8,
		MaxFreeInstantiations:   1,
		RegexDepth:              3,
	}
}

// SolverStats is a set of lock-free running counters a Solver updates
// as it searches, exposed for callers that want visibility into search
// progress without instrumenting every call site themselves (§9:
// Open Question iii resolved by counting rather than silently
// dropping discarded states).
type SolverStats struct {
	StatesExplored  atomic.Int64
	StatesDiscarded atomic.Int64
	TreesYielded    atomic.Int64
	InsertionMisses atomic.Int64
	DuplicatesDropped atomic.Int64
}

// queueItem is one entry of the solver's priority queue: a state, its
// cost-model score (lower is better), and a monotonic sequence number
// breaking ties in FIFO order for determinism.
type queueItem struct {
	state SolutionState
	score float64
	seq   int64
	index int
}

type priorityQueue []*queueItem

func (pq priorityQueue) Len() int { return len(pq) }
func (pq priorityQueue) Less(i, j int) bool {
	if pq[i].score != pq[j].score {
		return pq[i].score < pq[j].score
	}
	return pq[i].seq < pq[j].seq
}
func (pq priorityQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index, pq[j].index = i, j
}
func (pq *priorityQueue) Push(x any) {
	it := x.(*queueItem)
	it.index = len(*pq)
	*pq = append(*pq, it)
}
func (pq *priorityQueue) Pop() any {
	old := *pq
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	*pq = old[:n-1]
	return it
}

// Solver is the §4.G search engine: a grammar, a constraint, and the
// configuration tying together the cost model, predicate registry and
// SMT backend. A Solver instance owns all of its mutable state (queue,
// cost model, stats); none of it is global, matching §9's "no global
// mutable state" design note.
type Solver struct {
	grammar  *Grammar
	top      *Variable
	cfg      Config
	registry *Registry
	cost     *CostModel
	stats    SolverStats

	queue    priorityQueue
	seen     map[uint64]bool
	nextSeq  int64
	err      error
}

// NewSolver builds a Solver over g, ready to enumerate trees
// satisfying constraint. top is the free constant (normally
// TopConstant(g.Start)) that constraint uses to refer to the whole
// derivation tree; it is bound to the initial root (or
// Config.InitialTree, if set) before the first rule scan.
func NewSolver(g *Grammar, top *Variable, constraint Formula, opts ...Option) (*Solver, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Registry == nil {
		cfg.Registry = NewRegistry()
	}

	root := cfg.InitialTree
	if root == nil {
		root = g.Root()
	}

	bound := EnsureUniqueBoundVariables(constraint)
	bound = SubstituteVariables(bound, map[*Variable]*Node{top: root})

	sv := &Solver{
		grammar:  g,
		top:      top,
		cfg:      cfg,
		registry: cfg.Registry,
		cost:     NewCostModel(g, cfg.CostSettings),
		seen:     map[uint64]bool{},
	}

	initial := SolutionState{Tree: root, Constraint: bound, Level: 0}
	for _, s := range sv.postProcess(initial) {
		sv.push(s)
	}
	return sv, nil
}

// Stats returns a snapshot of sv's running counters.
func (sv *Solver) Stats() SolverStats { return sv.stats }

// Err returns the error that ended the most recent Generate loop
// (ErrTimeout, ErrExhausted, ErrUnsat, or nil if the caller stopped the
// iteration early itself).
func (sv *Solver) Err() error { return sv.err }

func (sv *Solver) push(s SolutionState) {
	h := s.Tree.StructuralHash()
	if sv.cfg.EnforceUniqueTreesInQueue {
		if sv.seen[h] {
			sv.stats.DuplicatesDropped.Add(1)
			return
		}
		sv.seen[h] = true
	}
	score := sv.cost.Score(s)
	heap.Push(&sv.queue, &queueItem{state: s, score: score, seq: sv.nextSeq})
	sv.nextSeq++
	sv.cost.RecordEnqueue(s)
}

// finish refreshes newFormula's tree references against newTree (every
// concrete reference that moved but kept its identity is relocated by
// id; a reference whose id was replaced outright, e.g. an SMT
// elimination's bound sub-tree, must already have been rewritten by
// the caller before reaching here), then runs DNF re-establishment,
// vacuous-∀ pruning, false-discard and de-duplication (§4.G, end of
// "Each successor passes through").
func (sv *Solver) finish(prev SolutionState, newFormula Formula, newTree *Node) []SolutionState {
	formula := newFormula
	if newTree != prev.Tree {
		formula = SubstituteTrees(newFormula, refreshDelta(prev.Tree, newTree))
	}
	tentative := SolutionState{Tree: newTree, Constraint: formula, Level: prev.Level + 1}
	if err := assertNoDanglingTrees(tentative); err != nil {
		// Surfaced only under debug assertions; in production this
		// state is simply dropped rather than crashing the search.
		sv.stats.StatesDiscarded.Add(1)
		return nil
	}
	return sv.postProcess(tentative)
}

// refreshDelta maps every node id of oldTree to wherever that same id
// now lives in newTree, letting SubstituteTrees relocate formula
// references across an edit without the caller needing to know which
// strategy (ReplacePath, Substitute, tree insertion) produced newTree.
func refreshDelta(oldTree, newTree *Node) map[NodeID]*Node {
	delta := map[NodeID]*Node{}
	for _, old := range oldTree.Paths() {
		if nn, _, ok := newTree.FindNode(old.ID()); ok && nn != old {
			delta[old.ID()] = nn
		}
	}
	return delta
}

// postProcess re-establishes DNF, prunes exhausted ∀s, discards false
// disjuncts, and de-duplicates, producing zero or more live states from
// one tentative successor.
func (sv *Solver) postProcess(tentative SolutionState) []SolutionState {
	dnf := ToDNF(tentative.Constraint)
	disjuncts := SplitDisjunction(dnf)
	out := make([]SolutionState, 0, len(disjuncts))
	for _, d := range disjuncts {
		pruned := pruneForalls(sv.grammar, tentative.Tree, d)
		if bc, ok := pruned.(BoolConst); ok && !bc.Value {
			sv.stats.StatesDiscarded.Add(1)
			continue
		}
		out = append(out, SolutionState{Tree: tentative.Tree, Constraint: pruned, Level: tentative.Level})
	}
	return out
}

// pruneForalls replaces every ∀ whose domain is exhausted (no live
// bindings remain and no open leaf can ever reach one of its targets)
// with True: it will never bind again and was, in effect, vacuously
// satisfied by what it already matched.
func pruneForalls(g *Grammar, tree *Node, f Formula) Formula {
	switch v := f.(type) {
	case Forall:
		v.Body = pruneForalls(g, tree, v.Body)
		if forallExhausted(g, tree, v) {
			return True
		}
		return v
	case Exists:
		v.Body = pruneForalls(g, tree, v.Body)
		return v
	case NumConst:
		v.Body = pruneForalls(g, tree, v.Body)
		return v
	case And:
		return And{Left: pruneForalls(g, tree, v.Left), Right: pruneForalls(g, tree, v.Right)}
	case Or:
		return Or{Left: pruneForalls(g, tree, v.Left), Right: pruneForalls(g, tree, v.Right)}
	case Not:
		return Not{Operand: pruneForalls(g, tree, v.Operand)}
	default:
		return f
	}
}

func forallExhausted(g *Grammar, tree *Node, f Forall) bool {
	if f.In.Tree == nil {
		return false
	}
	if len(FindBindings(f.Var, f.MatchExpr, f.In.Tree, f.AlreadyMatched)) > 0 {
		return false
	}
	targets := quantifierTargets(f.Var, f.MatchExpr)
	for _, leaf := range tree.OpenLeaves() {
		for _, t := range targets {
			if g.reachable(leaf.Value(), t) {
				return false
			}
		}
	}
	return true
}

// Generate returns an iterator over complete, constraint-satisfying
// derivation trees, driven by the fixed §4.G rule priority. Range-break
// early to stop the search; after the loop ends (by exhaustion,
// timeout, or early break), call sv.Err() to distinguish a deliberate
// stop (nil) from ErrTimeout/ErrExhausted/ErrUnsat.
func (sv *Solver) Generate(ctx context.Context) iter.Seq[*Node] {
	return func(yield func(*Node) bool) {
		sv.err = nil
		var deadline time.Time
		if sv.cfg.TimeoutSeconds > 0 {
			deadline = time.Now().Add(time.Duration(sv.cfg.TimeoutSeconds * float64(time.Second)))
		}
		anyLive := sv.queue.Len() > 0

		for sv.queue.Len() > 0 {
			if !deadline.IsZero() && time.Now().After(deadline) {
				sv.err = ErrTimeout
				return
			}
			select {
			case <-ctx.Done():
				sv.err = ctx.Err()
				return
			default:
			}

			item := heap.Pop(&sv.queue).(*queueItem)
			state := item.state
			if sv.cfg.EnforceUniqueTreesInQueue {
				delete(sv.seen, state.Tree.StructuralHash())
			}
			sv.stats.StatesExplored.Add(1)

			result, err := sv.dispatch(ctx, state)
			if err != nil {
				sv.stats.StatesDiscarded.Add(1)
				continue
			}
			if !result.applicable {
				sv.stats.StatesDiscarded.Add(1)
				continue
			}
			for _, tree := range result.yielded {
				sv.stats.TreesYielded.Add(1)
				anyLive = true
				if !yield(tree) {
					return
				}
			}
			for _, succ := range result.successors {
				anyLive = true
				sv.push(succ)
			}
		}

		if sv.cfg.ActivateUnsatSupport && !anyLive {
			sv.err = ErrUnsat
			return
		}
		sv.err = ErrExhausted
	}
}

// dispatch runs the fixed rule-priority scan of §4.G over state,
// returning the first applicable rule's result.
func (sv *Solver) dispatch(ctx context.Context, state SolutionState) (ruleResult, error) {
	for _, rule := range ruleOrder {
		res, err := rule(ctx, sv, state)
		if err != nil {
			return ruleResult{}, err
		}
		if res.applicable {
			return res, nil
		}
	}
	return ruleResult{}, nil
}

// Check reports whether input parses against g.Start and satisfies
// constraint (bound to top), without running any search (§6).
func Check(ctx context.Context, g *Grammar, registry *Registry, top *Variable, constraint Formula, input string) (bool, error) {
	if registry == nil {
		registry = NewRegistry()
	}
	tree, err := Parse(g, input, g.Start)
	if err != nil {
		return false, err
	}
	bound := SubstituteVariables(EnsureUniqueBoundVariables(constraint), map[*Variable]*Node{top: tree})
	ok, err := evalClosed(g, registry, tree, bound)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrSemantic, err)
	}
	return ok, nil
}

// evalClosed evaluates a fully-bound formula against a complete tree
// directly, without any search: every quantifier can be fully expanded
// in place since the tree it ranges over never changes underneath it.
func evalClosed(g *Grammar, registry *Registry, tree *Node, f Formula) (bool, error) {
	switch v := f.(type) {
	case BoolConst:
		return v.Value, nil
	case And:
		l, err := evalClosed(g, registry, tree, v.Left)
		if err != nil || !l {
			return false, err
		}
		return evalClosed(g, registry, tree, v.Right)
	case Or:
		l, err := evalClosed(g, registry, tree, v.Left)
		if err != nil {
			return false, err
		}
		if l {
			return true, nil
		}
		return evalClosed(g, registry, tree, v.Right)
	case Not:
		r, err := evalClosed(g, registry, tree, v.Operand)
		if err != nil {
			return false, err
		}
		return !r, nil
	case StructuralAtom:
		if !v.AllConcrete() {
			return false, fmt.Errorf("semgen: structural atom %q has an unbound argument", v.Name)
		}
		return registry.EvalStructural(tree, v)
	case SemanticAtom:
		if !IsSemanticReady(v) {
			return false, fmt.Errorf("%w: semantic atom %q has an unbound argument", ErrUnknownResult, v.Name)
		}
		res, err := registry.EvalSemantic(tree, v)
		if err != nil {
			return false, err
		}
		if !res.Ready {
			return false, fmt.Errorf("%w: semantic atom %q", ErrUnknownResult, v.Name)
		}
		return res.Value, nil
	case SMTAtom:
		env := make(map[string]string, len(v.Vars))
		for _, vv := range v.Vars {
			bound, ok := v.Substitutions[vv]
			if !ok {
				return false, fmt.Errorf("semgen: SMT atom has an unbound variable %s", vv)
			}
			env[vv.Name] = bound.Render()
		}
		return evalSMTClosed(v.Expr, env)
	case Forall:
		if v.In.Tree == nil {
			return false, fmt.Errorf("semgen: forall has an unbound domain")
		}
		for _, b := range FindBindings(v.Var, v.MatchExpr, v.In.Tree, nil) {
			ok, err := evalClosed(g, registry, tree, SubstituteVariables(v.Body, b.Env))
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil
	case Exists:
		if v.In.Tree == nil {
			return false, fmt.Errorf("semgen: exists has an unbound domain")
		}
		for _, b := range FindBindings(v.Var, v.MatchExpr, v.In.Tree, nil) {
			ok, err := evalClosed(g, registry, tree, SubstituteVariables(v.Body, b.Env))
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case NumConst:
		if v.Source.In.Tree == nil {
			return false, fmt.Errorf("semgen: count() has an unbound domain")
		}
		count := countOccurrences(v.Source.In.Tree, v.Source.Target)
		return evalClosed(g, registry, tree, SubstituteVariables(v.Body, map[*Variable]*Node{
			v.Var: NewLeaf(NewTerminal(fmt.Sprintf("%d", count))),
		}))
	default:
		return false, fmt.Errorf("semgen: unhandled formula kind %T", f)
	}
}

// Repair parses input and attempts to find a nearby tree satisfying
// constraint by re-running the search seeded from a coarsened version
// of input's own derivation (§6): every child of the root is re-opened
// so the search reuses input's root production but is otherwise free
// to rebuild everything beneath it. This is a best-effort minimality:
// it is not guaranteed to find the closest repair in edit distance,
// only a repair that shares input's top-level shape when one exists.
func Repair(ctx context.Context, g *Grammar, top *Variable, constraint Formula, opts []Option, input string) (*Node, error) {
	tree, err := Parse(g, input, g.Start)
	if err != nil {
		return nil, err
	}
	seed := reopenChildren(tree)
	sv, err := NewSolver(g, top, constraint, append(append([]Option(nil), opts...), WithInitialTree(seed))...)
	if err != nil {
		return nil, err
	}
	for result := range sv.Generate(ctx) {
		return result, nil
	}
	if sv.Err() != nil {
		return nil, sv.Err()
	}
	return nil, ErrExhausted
}

func reopenChildren(n *Node) *Node {
	if n.IsLeaf() || n.IsOpen() {
		return n
	}
	children := make([]*Node, len(n.Children()))
	for i, c := range n.Children() {
		if c.IsLeaf() {
			children[i] = c
			continue
		}
		children[i] = NewOpen(c.Value())
	}
	return NewExpanded(n.Value(), children)
}

// evalSMTClosed decides one atom's expression against a fully concrete
// variable assignment by delegating to the same enumerator backend
// used during search, asking whether a solution exists with each
// variable pinned to exactly its given string via a literal pattern.
func evalSMTClosed(expr string, env map[string]string) (bool, error) {
	vars := make([]SMTVarConstraint, 0, len(env))
	for name, val := range env {
		vars = append(vars, SMTVarConstraint{
			Name:    name,
			Kind:    SMTString,
			Regex:   val,
			MaxLen:  len(val),
			pattern: regexdfa.Lit{Text: val},
		})
	}
	res, err := DefaultSMTBackend{}.Solve(context.Background(), SMTQuery{
		Exprs:        []string{expr},
		Vars:         vars,
		MaxSolutions: 1,
	})
	if err != nil {
		return false, err
	}
	return len(res) > 0, nil
}
