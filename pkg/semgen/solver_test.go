package semgen

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

// atomicVarGrammar mirrors spec.md scenario S1: <start> ::= <var>;
// <var> ::= "a" | "b" | ... | "z".
func atomicVarGrammar(t *testing.T) *Grammar {
	t.Helper()
	g, err := NewGrammar("start", map[string][]string{
		"start": {"<var>"},
		"var":   {"a", "b", "c", "x", "y", "z"},
	})
	require.NoError(t, err)
	return g
}

func TestSolverSolvesAtomicSMTConstraint(t *testing.T) {
	g := atomicVarGrammar(t)
	top := TopConstant(g.Start)
	v := NewBoundVariable("v", NonterminalSort(NewNonterminal("var")))

	constraint := Exists{
		Var: v,
		In:  StructuralArg{Var: top},
		Body: SMTAtom{
			Expr: `(= v "x")`,
			Vars: []*Variable{v},
		},
	}

	sv, err := NewSolver(g, top, constraint)
	require.NoError(t, err)

	var first *Node
	for n := range sv.Generate(context.Background()) {
		first = n
		break
	}
	require.NotNil(t, first)
	require.Equal(t, "x", first.Render())
}

func TestSolverYieldedTreesAreSoundAgainstCheck(t *testing.T) {
	g := atomicVarGrammar(t)
	top := TopConstant(g.Start)
	v := NewBoundVariable("v", NonterminalSort(NewNonterminal("var")))
	constraint := Exists{
		Var:  v,
		In:   StructuralArg{Var: top},
		Body: SMTAtom{Expr: `(= v "x")`, Vars: []*Variable{v}},
	}

	sv, err := NewSolver(g, top, constraint)
	require.NoError(t, err)

	count := 0
	for n := range sv.Generate(context.Background()) {
		count++
		top2 := TopConstant(g.Start)
		v2 := NewBoundVariable("v", NonterminalSort(NewNonterminal("var")))
		checkConstraint := Exists{
			Var:  v2,
			In:   StructuralArg{Var: top2},
			Body: SMTAtom{Expr: `(= v "x")`, Vars: []*Variable{v2}},
		}
		ok, err := Check(context.Background(), g, NewRegistry(), top2, checkConstraint, n.Render())
		require.NoError(t, err)
		require.True(t, ok, "every yielded tree must satisfy the constraint it was generated for")
		if count >= 3 {
			break
		}
	}
	require.Greater(t, count, 0)
}

func TestSolverDeduplicatesWithUniqueTreesInQueue(t *testing.T) {
	g, err := NewGrammar("start", map[string][]string{
		"start": {"<a><b>"},
		"a":     {"x"},
		"b":     {"y"},
	})
	require.NoError(t, err)
	top := TopConstant(g.Start)

	sv, err := NewSolver(g, top, True, WithUniqueTreesInQueue())
	require.NoError(t, err)

	seen := map[string]bool{}
	for n := range sv.Generate(context.Background()) {
		r := n.Render()
		require.False(t, seen[r], "de-duplication must not yield the same rendered tree twice: %s", r)
		seen[r] = true
	}
}

func TestSolverEndsWithTimeoutOrExhaustionUnderBudget(t *testing.T) {
	g, err := NewGrammar("start", map[string][]string{
		"start": {"<start>x", "y"},
	})
	require.NoError(t, err)
	top := TopConstant(g.Start)

	sv, err := NewSolver(g, top, True, WithTimeout(0.001))
	require.NoError(t, err)

	for range sv.Generate(context.Background()) {
	}
	require.True(t, errors.Is(sv.Err(), ErrTimeout) || errors.Is(sv.Err(), ErrExhausted))
}

func TestSolverNoDanglingReferencesUnderDebugAssertions(t *testing.T) {
	SetDebugAssertions(true)
	defer SetDebugAssertions(false)

	g := atomicVarGrammar(t)
	top := TopConstant(g.Start)
	v := NewBoundVariable("v", NonterminalSort(NewNonterminal("var")))
	constraint := Exists{
		Var:  v,
		In:   StructuralArg{Var: top},
		Body: SMTAtom{Expr: `(= v "x")`, Vars: []*Variable{v}},
	}

	sv, err := NewSolver(g, top, constraint)
	require.NoError(t, err)

	for n := range sv.Generate(context.Background()) {
		require.NotNil(t, n)
		break
	}
}

func TestCheckRejectsSyntacticallyInvalidInput(t *testing.T) {
	g := abGrammar(t)
	top := TopConstant(g.Start)
	_, err := Check(context.Background(), g, nil, top, True, "not-in-language")
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrSyntax))
}
