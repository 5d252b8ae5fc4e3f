package semgen

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the solver and its external-facing
// interfaces (§7). Callers distinguish kinds with errors.Is, the same
// convention gokando's optimize.go uses for ErrSearchLimitReached.
var (
	// ErrTimeout is returned (wrapped) when Config.TimeoutSeconds
	// elapses before the generator produces another tree.
	ErrTimeout = errors.New("semgen: timeout exceeded")

	// ErrExhausted is returned when the priority queue empties without
	// a timeout. Generate distinguishes "exhausted heuristically" from
	// "proved unsat" via ErrUnsat when Config.ActivateUnsatSupport is
	// set and no disjunct of the original constraint ever reached a
	// live state.
	ErrExhausted = errors.New("semgen: search space exhausted")

	// ErrUnsat is returned instead of ErrExhausted when
	// Config.ActivateUnsatSupport is true and the solver can prove no
	// solution exists (every initial disjunct was discarded by a local
	// rule failure rather than merely running out of queue budget).
	ErrUnsat = errors.New("semgen: constraint is unsatisfiable over this grammar")

	// ErrUnknownResult marks a state discarded because a semantic
	// predicate or SMT query returned "unknown" rather than a verdict.
	ErrUnknownResult = errors.New("semgen: predicate or SMT query returned unknown")

	// ErrSyntax is returned by Check/Parse when input does not parse
	// against the grammar.
	ErrSyntax = errors.New("semgen: input does not parse against the grammar")

	// ErrSemantic wraps an error raised while Check evaluates the
	// constraint against a parsed input. An input that parses and
	// violates the constraint is reported by Check as (false, nil);
	// Parse checks syntax only.
	ErrSemantic = errors.New("semgen: input violates the constraint")

	// ErrDanglingReference marks an internal consistency violation: a
	// tree argument inside a formula that is not a node of the state's
	// tree. Checked only under debugAssertions.
	ErrDanglingReference = errors.New("semgen: dangling tree reference in constraint")

	// ErrNullableCountTarget names the case of a count() whose target
	// nonterminal is nullable, where occurrence counts are ambiguous
	// (does an epsilon derivation count as zero or one occurrences?).
	// No function in this package returns it: NumConst targets are not
	// checked against Grammar.Nullable, and a nullable target is
	// counted like any other nonterminal.
	ErrNullableCountTarget = errors.New("semgen: count() target nonterminal is nullable")

	// ErrUnknownPredicate is returned when a formula references a
	// structural or semantic predicate name that was never registered.
	ErrUnknownPredicate = errors.New("semgen: unknown predicate")
)

// debugAssertions gates internal consistency checks that are too
// expensive to run unconditionally (§7: "Internal consistency
// violations ... are defects, asserted under debug"), mirroring
// gokando's store_debug.go inspection helpers which are opt-in rather
// than always-on.
var debugAssertions = false

// SetDebugAssertions enables or disables assertNoDanglingTrees checks
// performed after every rule application. Off by default; tests that
// want the stronger invariant call this in TestMain or per-test.
func SetDebugAssertions(on bool) { debugAssertions = on }

func assertNoDanglingTrees(s SolutionState) error {
	if !debugAssertions {
		return nil
	}
	live := map[NodeID]bool{}
	for _, n := range s.Tree.allNodes() {
		live[n.ID()] = true
	}
	var bad error
	walkFormulaTrees(s.Constraint, func(n *Node) {
		if bad == nil && !live[n.ID()] {
			bad = fmt.Errorf("%w: node #%d not reachable in state tree", ErrDanglingReference, n.ID())
		}
	})
	return bad
}

// walkFormulaTrees calls visit for every concrete tree reference
// mentioned anywhere in f (StructuralArg.Tree and SMTAtom.Substitutions
// values).
func walkFormulaTrees(f Formula, visit func(*Node)) {
	visitArg := func(a StructuralArg) {
		if a.Tree != nil {
			visit(a.Tree)
		}
	}
	switch v := f.(type) {
	case SMTAtom:
		for _, t := range v.Substitutions {
			visit(t)
		}
	case StructuralAtom:
		for _, a := range v.Args {
			visitArg(a)
		}
	case SemanticAtom:
		for _, a := range v.Args {
			visitArg(a)
		}
	case Forall:
		visitArg(v.In)
		walkFormulaTrees(v.Body, visit)
	case Exists:
		visitArg(v.In)
		walkFormulaTrees(v.Body, visit)
	case NumConst:
		visitArg(v.Source.In)
		walkFormulaTrees(v.Body, visit)
	case And:
		walkFormulaTrees(v.Left, visit)
		walkFormulaTrees(v.Right, visit)
	case Or:
		walkFormulaTrees(v.Left, visit)
		walkFormulaTrees(v.Right, visit)
	case Not:
		walkFormulaTrees(v.Operand, visit)
	}
}
