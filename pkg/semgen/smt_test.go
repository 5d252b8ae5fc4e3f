package semgen

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func letterGrammar(t *testing.T) *Grammar {
	t.Helper()
	g, err := NewGrammar("var", map[string][]string{
		"var": {"a", "b", "x", "y", "z"},
	})
	require.NoError(t, err)
	return g
}

func TestClusterAtomsGroupsBySharedVariable(t *testing.T) {
	sort := NonterminalSort(NewNonterminal("var"))
	shared := NewBoundVariable("v", sort)
	other := NewBoundVariable("w", sort)

	a1 := SMTAtom{Expr: "(= v \"x\")", Vars: []*Variable{shared}}
	a2 := SMTAtom{Expr: "(!= v \"y\")", Vars: []*Variable{shared}}
	a3 := SMTAtom{Expr: "(= w \"a\")", Vars: []*Variable{other}}

	groups := clusterAtoms([]SMTAtom{a1, a2, a3})
	require.Len(t, groups, 2)

	sizes := map[int]int{}
	for _, g := range groups {
		sizes[len(g)]++
	}
	require.Equal(t, 1, sizes[2], "the two atoms over v form one cluster")
	require.Equal(t, 1, sizes[1], "the lone atom over w forms its own cluster")
}

func TestClusterAtomsGroupsByOverlappingSubstitutionTree(t *testing.T) {
	sort := NonterminalSort(NewNonterminal("var"))
	v1 := NewBoundVariable("v1", sort)
	v2 := NewBoundVariable("v2", sort)
	shared := NewLeaf(NewTerminal("x"))

	a1 := SMTAtom{Expr: "(= v1 \"x\")", Vars: []*Variable{v1}, Substitutions: map[*Variable]*Node{v1: shared}}
	a2 := SMTAtom{Expr: "(= v2 \"x\")", Vars: []*Variable{v2}, Substitutions: map[*Variable]*Node{v2: shared}}

	groups := clusterAtoms([]SMTAtom{a1, a2})
	require.Len(t, groups, 1)
	require.Len(t, groups[0], 2)
}

func TestResolveSMTSolvesSimpleEquality(t *testing.T) {
	g := letterGrammar(t)
	sort := NonterminalSort(NewNonterminal("var"))
	v := NewBoundVariable("v", sort)
	atom := SMTAtom{Expr: `(= v "x")`, Vars: []*Variable{v}}

	sols, err := ResolveSMT(context.Background(), nil, g, []SMTAtom{atom}, 4, 4)
	require.NoError(t, err)
	require.NotEmpty(t, sols)
	require.Equal(t, "x", sols[0].VarSubst[v].Render())
}
