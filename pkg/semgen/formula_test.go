package semgen

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func assertNoOrUnderAnd(t *testing.T, f Formula) {
	t.Helper()
	and, ok := f.(And)
	if !ok {
		return
	}
	_, leftOr := and.Left.(Or)
	_, rightOr := and.Right.(Or)
	require.False(t, leftOr, "DNF: no Or nested under And")
	require.False(t, rightOr, "DNF: no Or nested under And")
	assertNoOrUnderAnd(t, and.Left)
	assertNoOrUnderAnd(t, and.Right)
}

func TestToDNFFlattensOrOfAnds(t *testing.T) {
	sort := NonterminalSort(NewNonterminal("assgn"))
	v := NewBoundVariable("v", sort)
	a := StructuralAtom{Name: "before", Args: []StructuralArg{{Var: v}, {Var: v}}}
	b := StructuralAtom{Name: "after", Args: []StructuralArg{{Var: v}, {Var: v}}}
	c := StructuralAtom{Name: "level", Args: []StructuralArg{{Var: v}, {Var: v}}}

	f := And{Left: Or{Left: a, Right: b}, Right: c}

	dnf := ToDNF(f)
	disjuncts := SplitDisjunction(dnf)
	require.Len(t, disjuncts, 2)
	for _, d := range disjuncts {
		assertNoOrUnderAnd(t, d)
	}
}

func TestSplitConjunctionFlattensNestedAnd(t *testing.T) {
	sort := NonterminalSort(NewNonterminal("assgn"))
	v := NewBoundVariable("v", sort)
	a := StructuralAtom{Name: "before", Args: []StructuralArg{{Var: v}, {Var: v}}}
	b := StructuralAtom{Name: "after", Args: []StructuralArg{{Var: v}, {Var: v}}}
	c := StructuralAtom{Name: "level", Args: []StructuralArg{{Var: v}, {Var: v}}}

	f := And{Left: a, Right: And{Left: b, Right: c}}
	parts := SplitConjunction(f)
	require.Len(t, parts, 3)
}

func TestEnsureUniqueBoundVariablesRenamesDuplicates(t *testing.T) {
	sort := NonterminalSort(NewNonterminal("assgn"))
	v := NewBoundVariable("v", sort)
	inner := StructuralAtom{Name: "before", Args: []StructuralArg{{Var: v}, {Var: v}}}
	f := And{
		Left:  Forall{Var: v, In: StructuralArg{Var: v}, Body: inner},
		Right: Forall{Var: v, In: StructuralArg{Var: v}, Body: inner},
	}

	renamed := EnsureUniqueBoundVariables(f)
	and := renamed.(And)
	first := and.Left.(Forall)
	second := and.Right.(Forall)
	require.NotEqual(t, first.Var.ID(), second.Var.ID())
}

func TestSubstituteVariablesReplacesBoundOccurrence(t *testing.T) {
	sort := NonterminalSort(NewNonterminal("assgn"))
	v := NewBoundVariable("v", sort)
	repl := NewLeaf(NewTerminal("x"))
	f := StructuralAtom{Name: "before", Args: []StructuralArg{{Var: v}, {Var: v}}}

	out := SubstituteVariables(f, map[*Variable]*Node{v: repl})
	atom := out.(StructuralAtom)
	require.True(t, atom.Args[0].isConcrete())
	require.Equal(t, repl.ID(), atom.Args[0].Tree.ID())
}
