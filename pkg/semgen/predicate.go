package semgen

import "fmt"

// StructuralEvaluator decides a structural-predicate atom once every
// argument is a concrete tree (§4.G rule a). Structural predicates are
// pure functions of tree positions: they never consult SMT or the
// semantic registry.
type StructuralEvaluator func(host *Node, args []*Node) (bool, error)

// SemanticResult is the three-or-four-way outcome a semantic predicate
// evaluator returns: a plain boolean verdict, "not ready" (arguments
// are not yet sufficiently closed), or a tree substitution the solver
// should apply in place of a boolean (component design §4.B).
type SemanticResult struct {
	Ready       bool
	Value       bool
	Substituted map[NodeID]*Node
}

// NotReady is the SemanticResult an evaluator returns when its
// arguments are not yet closed enough to decide.
var NotReady = SemanticResult{Ready: false}

// SemanticEvaluator decides or rewrites a semantic-predicate atom once
// its arguments are sufficiently closed (the evaluator itself judges
// "sufficiently"; the solver calls it whenever no argument is still an
// unbound free variable, per §4.G rule f, and trusts NotReady as the
// signal to retry later).
type SemanticEvaluator func(host *Node, args []*Node) (SemanticResult, error)

// PredicateDescriptor names one registered predicate and its arity, as
// handed to the solver alongside the grammar and constraint (§6:
// "Optional sets of recognized structural and semantic predicate
// descriptors (name, arity, evaluator callback)").
type PredicateDescriptor struct {
	Name  string
	Arity int
}

// Registry is the solver's dispatch table from predicate name to
// evaluator, the "dynamic predicate dispatch" design note of §9:
// tagged-variant atoms carry just a name, and a registry on the solver
// instance (not global state, per §9's "no global mutable state")
// resolves it to behavior.
type Registry struct {
	structural map[string]structuralEntry
	semantic   map[string]semanticEntry
}

type structuralEntry struct {
	arity int
	eval  StructuralEvaluator
}

type semanticEntry struct {
	arity int
	eval  SemanticEvaluator
}

// NewRegistry returns a registry pre-populated with the built-in
// structural predicates before/after/level (§3's examples), plus
// whatever caller-supplied predicates are registered afterward.
func NewRegistry() *Registry {
	r := &Registry{
		structural: map[string]structuralEntry{},
		semantic:   map[string]semanticEntry{},
	}
	r.RegisterStructural("before", 2, evalBefore)
	r.RegisterStructural("after", 2, evalAfter)
	r.RegisterStructural("level", 2, evalLevel)
	return r
}

// RegisterStructural adds or replaces a structural predicate.
func (r *Registry) RegisterStructural(name string, arity int, eval StructuralEvaluator) {
	r.structural[name] = structuralEntry{arity: arity, eval: eval}
}

// RegisterSemantic adds or replaces a semantic predicate.
func (r *Registry) RegisterSemantic(name string, arity int, eval SemanticEvaluator) {
	r.semantic[name] = semanticEntry{arity: arity, eval: eval}
}

// EvalStructural dispatches a.Name against host, requiring every
// argument already be concrete (callers check AllConcrete first).
func (r *Registry) EvalStructural(host *Node, a StructuralAtom) (bool, error) {
	entry, ok := r.structural[a.Name]
	if !ok {
		return false, fmt.Errorf("%w: structural predicate %q", ErrUnknownPredicate, a.Name)
	}
	if entry.arity != len(a.Args) {
		return false, fmt.Errorf("semgen: structural predicate %q expects %d args, got %d", a.Name, entry.arity, len(a.Args))
	}
	trees := make([]*Node, len(a.Args))
	for i, arg := range a.Args {
		trees[i] = arg.Tree
	}
	return entry.eval(host, trees)
}

// EvalSemantic dispatches a.Name against host. args with a nil tree are
// still-unbound free variables; the evaluator decides whether that
// makes it "not ready".
func (r *Registry) EvalSemantic(host *Node, a SemanticAtom) (SemanticResult, error) {
	entry, ok := r.semantic[a.Name]
	if !ok {
		return SemanticResult{}, fmt.Errorf("%w: semantic predicate %q", ErrUnknownPredicate, a.Name)
	}
	if entry.arity != len(a.Args) {
		return SemanticResult{}, fmt.Errorf("semgen: semantic predicate %q expects %d args, got %d", a.Name, entry.arity, len(a.Args))
	}
	trees := make([]*Node, len(a.Args))
	for i, arg := range a.Args {
		trees[i] = arg.Tree
	}
	return entry.eval(host, trees)
}

// IsSemanticReady reports whether every argument of a is already a
// concrete tree, the condition §4.G rule f uses before even calling the
// registered evaluator (an evaluator may still itself return NotReady
// for a finer-grained reason, e.g. a partially-expanded sub-tree).
func IsSemanticReady(a SemanticAtom) bool {
	for _, arg := range a.Args {
		if arg.Tree == nil {
			return false
		}
	}
	return true
}

// evalBefore/evalAfter answer whether the first leaf terminal of args[0]
// renders strictly before (respectively after) the first leaf terminal
// of args[1] within host's left-to-right leaf order. Both trees must be
// nodes of host.
func evalBefore(host *Node, args []*Node) (bool, error) {
	ia, ok := leafIndex(host, args[0])
	if !ok {
		return false, fmt.Errorf("semgen: before: first argument not found in host")
	}
	ib, ok := leafIndex(host, args[1])
	if !ok {
		return false, fmt.Errorf("semgen: before: second argument not found in host")
	}
	return ia < ib, nil
}

func evalAfter(host *Node, args []*Node) (bool, error) {
	ia, ok := leafIndex(host, args[0])
	if !ok {
		return false, fmt.Errorf("semgen: after: first argument not found in host")
	}
	ib, ok := leafIndex(host, args[1])
	if !ok {
		return false, fmt.Errorf("semgen: after: second argument not found in host")
	}
	return ia > ib, nil
}

// evalLevel answers whether args[0] sits at the tree depth given by
// args[1], a terminal node whose rendered text is a decimal integer
// (level's second argument is conventionally a numeric constant
// substituted in as a decimal-integer terminal tree by the solver).
func evalLevel(host *Node, args []*Node) (bool, error) {
	depth, ok := nodeDepth(host, args[0])
	if !ok {
		return false, fmt.Errorf("semgen: level: node not found in host")
	}
	want, err := parseLevelArg(args[1])
	if err != nil {
		return false, err
	}
	return depth == want, nil
}

func parseLevelArg(n *Node) (int, error) {
	if !n.IsComplete() {
		return 0, fmt.Errorf("semgen: level: second argument is not a closed integer literal")
	}
	text := n.Render()
	val := 0
	for _, c := range text {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("semgen: level: %q is not a decimal integer", text)
		}
		val = val*10 + int(c-'0')
	}
	return val, nil
}

// leafIndex returns the position of target's first terminal leaf among
// host's leaves in left-to-right order.
func leafIndex(host, target *Node) (int, bool) {
	_, targetPath, ok := host.FindNode(target.ID())
	if !ok {
		return 0, false
	}
	idx := -1
	found := false
	i := 0
	for path, node := range host.Paths() {
		if !node.IsLeaf() {
			continue
		}
		if !found && pathHasPrefix(path, targetPath) {
			idx = i
			found = true
		}
		i++
	}
	if !found {
		return 0, false
	}
	return idx, true
}

func pathHasPrefix(path, prefix Path) bool {
	if len(path) < len(prefix) {
		return false
	}
	for i, v := range prefix {
		if path[i] != v {
			return false
		}
	}
	return true
}

// nodeDepth returns target's depth within host (root is depth 0).
func nodeDepth(host, target *Node) (int, bool) {
	_, path, ok := host.FindNode(target.ID())
	if !ok {
		return 0, false
	}
	return len(path), true
}
