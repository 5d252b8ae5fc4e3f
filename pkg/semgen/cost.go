package semgen

import "math"

// CostWeights is one phase's weight vector over the six cost
// components of §4.H, in order: tree closing cost, vacuous penalty,
// constraint cost, derivation depth, local k-coverage deficit, global
// k-coverage deficit. A zero weight switches the corresponding
// component off entirely (it is never computed, matching §4.H's "zero
// if weight is zero" note for the vacuous penalty, generalized to every
// component since several are expensive to compute exactly).
type CostWeights struct {
	TreeClosing float64
	Vacuous     float64
	Constraint  float64
	Depth       float64
	LocalK      float64
	GlobalK     float64
}

// CostPhase is one entry of Config.CostSettings: a weight vector, how
// many states enqueued under it before rotating to the next phase, and
// the k used for that phase's k-path coverage terms.
type CostPhase struct {
	Weights        CostWeights
	EnqueueBudget  int
	K              int
}

// CostSettings is the full, cyclically-rotating phase sequence (§4.H:
// "allowing the search to alternate between coverage-biased and
// constraint-biased regimes").
type CostSettings struct {
	Phases []CostPhase
}

// DefaultCostSettings alternates a coverage-biased phase (heavy on the
// two k-path deficit terms, driving structural diversity) with a
// constraint-biased phase (heavy on tree-closing and constraint cost,
// driving the search toward completion), the two-regime split §4.H
// calls out by name.
func DefaultCostSettings() CostSettings {
	return CostSettings{Phases: []CostPhase{
		{
			Weights: CostWeights{TreeClosing: 1, Vacuous: 1, Constraint: 1, Depth: 0.5, LocalK: 2, GlobalK: 2},
			EnqueueBudget: 200,
			K:             2,
		},
		{
			Weights: CostWeights{TreeClosing: 2, Vacuous: 1, Constraint: 2, Depth: 1, LocalK: 0.5, GlobalK: 0.5},
			EnqueueBudget: 200,
			K:             2,
		},
	}}
}

// CostModel is the solver's mutable cost-phase and coverage state,
// owned by a single Solver instance (§9: "no global mutable state").
// It memoizes the grammar's total k-path set per k, since recomputing
// it on every enqueue would be quadratic in the number of states.
type CostModel struct {
	g        *Grammar
	settings CostSettings
	phaseIdx int
	inPhase  int
	covered  map[string]bool
	totalK   map[int]map[string]bool
}

// NewCostModel returns a CostModel over g starting at phase 0.
func NewCostModel(g *Grammar, settings CostSettings) *CostModel {
	if len(settings.Phases) == 0 {
		settings = DefaultCostSettings()
	}
	return &CostModel{
		g:        g,
		settings: settings,
		covered:  map[string]bool{},
		totalK:   map[int]map[string]bool{},
	}
}

// CurrentPhase returns the active phase's weights and k.
func (m *CostModel) CurrentPhase() CostPhase { return m.settings.Phases[m.phaseIdx] }

func (m *CostModel) totalKPaths(k int) map[string]bool {
	if t, ok := m.totalK[k]; ok {
		return t
	}
	t := m.g.kPaths(k)
	m.totalK[k] = t
	return t
}

// Score computes state's scalar priority: the weighted geometric mean
// of the six components under the current phase's weights. Min-heap
// ordering means lower is better, consistent with every component
// being a "deficit" or "cost" that should shrink toward 0 as a state
// approaches a solution.
func (m *CostModel) Score(state SolutionState) float64 {
	phase := m.CurrentPhase()
	w := phase.Weights

	type term struct {
		weight float64
		value  func() float64
	}
	terms := []term{
		{w.TreeClosing, func() float64 { return treeClosingCost(m.g, state.Tree) }},
		{w.Vacuous, func() float64 { return vacuousPenalty(state) }},
		{w.Constraint, func() float64 { return constraintCost(state.Constraint) }},
		{w.Depth, func() float64 { return float64(state.Level) }},
		{w.LocalK, func() float64 { return localKDeficit(m.g, state.Tree, phase.K) }},
		{w.GlobalK, func() float64 { return m.globalKDeficit(state.Tree, phase.K) }},
	}

	totalWeight := 0.0
	product := 1.0
	for _, t := range terms {
		if t.weight <= 0 {
			continue
		}
		totalWeight += t.weight
		product *= math.Pow(math.Max(t.value(), 0), t.weight)
	}
	if totalWeight == 0 {
		return 0
	}
	return math.Pow(product, 1/totalWeight)
}

// RecordEnqueue updates the phase/coverage bookkeeping for a state that
// was actually pushed onto the solver's queue: it folds the state's
// newly realized k-paths into the covered set (resetting it once every
// k-path is covered, §4.H's "when all k-paths are covered, the covered
// set is reset") and rotates to the next phase once the current one's
// enqueue budget is spent.
func (m *CostModel) RecordEnqueue(state SolutionState) {
	phase := m.CurrentPhase()
	total := m.totalKPaths(phase.K)
	for p := range state.Tree.KPaths(phase.K) {
		if total[p] {
			m.covered[p] = true
		}
	}
	if len(total) > 0 && len(m.covered) >= len(total) {
		m.covered = map[string]bool{}
	}
	m.inPhase++
	if phase.EnqueueBudget > 0 && m.inPhase >= phase.EnqueueBudget {
		m.inPhase = 0
		m.phaseIdx = (m.phaseIdx + 1) % len(m.settings.Phases)
	}
}

// treeClosingCost sums symbol_cost over every open leaf (§4.H
// component 1).
func treeClosingCost(g *Grammar, tree *Node) float64 {
	cost := g.symbolCost()
	total := 0.0
	for _, leaf := range tree.OpenLeaves() {
		total += float64(cost[leaf.Value().Name()])
	}
	return total
}

// vacuousPenalty estimates the fraction of top-level quantifier
// conjuncts that are vacuously satisfied in tree right now: a Forall
// with zero currently-live bindings is vacuously true until the tree
// grows further (§4.H component 2).
func vacuousPenalty(state SolutionState) float64 {
	conjuncts := SplitConjunction(state.Constraint)
	quantifiers := 0
	vacuous := 0
	for _, c := range conjuncts {
		switch f := c.(type) {
		case Forall:
			quantifiers++
			bindings := FindBindings(f.Var, f.MatchExpr, state.Tree, f.AlreadyMatched)
			if len(bindings) == 0 {
				vacuous++
			}
		case Exists:
			quantifiers++
		}
	}
	if quantifiers == 0 {
		return 0
	}
	return float64(vacuous) / float64(quantifiers)
}

// constraintCost sums, over every quantifier anywhere in f, its nesting
// depth times a per-kind weight (existentials weighted double per
// §4.H component 3).
func constraintCost(f Formula) float64 {
	return constraintCostAt(f, 1)
}

func constraintCostAt(f Formula, depth int) float64 {
	switch v := f.(type) {
	case Forall:
		return float64(depth) + constraintCostAt(v.Body, depth+1)
	case Exists:
		return 2*float64(depth) + constraintCostAt(v.Body, depth+1)
	case NumConst:
		return constraintCostAt(v.Body, depth)
	case And:
		return constraintCostAt(v.Left, depth) + constraintCostAt(v.Right, depth)
	case Or:
		return constraintCostAt(v.Left, depth) + constraintCostAt(v.Right, depth)
	case Not:
		return constraintCostAt(v.Operand, depth)
	default:
		return 0
	}
}

// localKDeficit is the geometric mean, over path lengths 1..k, of
// (1 - coverage_i) where coverage_i is the fraction of the grammar's
// length-i k-paths realized anywhere in tree (§4.H component 5).
func localKDeficit(g *Grammar, tree *Node, k int) float64 {
	if k <= 0 {
		return 0
	}
	product := 1.0
	for i := 1; i <= k; i++ {
		total := g.kPaths(i)
		if len(total) == 0 {
			continue
		}
		have := tree.KPaths(i)
		covered := 0
		for p := range have {
			if total[p] {
				covered++
			}
		}
		coverage := float64(covered) / float64(len(total))
		product *= (1 - coverage)
	}
	return math.Pow(product, 1.0/float64(k))
}

// globalKDeficit is 1 minus the fraction of currently-uncovered k-paths
// that tree would newly contribute if it were enqueued now (§4.H
// component 6), read against the model's running covered set without
// mutating it (mutation happens in RecordEnqueue once a state is
// actually chosen).
func (m *CostModel) globalKDeficit(tree *Node, k int) float64 {
	total := m.totalKPaths(k)
	if len(total) == 0 {
		return 0
	}
	remaining := 0
	for p := range total {
		if !m.covered[p] {
			remaining++
		}
	}
	if remaining == 0 {
		return 0
	}
	newly := 0
	for p := range tree.KPaths(k) {
		if total[p] && !m.covered[p] {
			newly++
		}
	}
	return 1 - float64(newly)/float64(remaining)
}
