package semgen

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func twoLeafHost(t *testing.T) (host, first, second *Node) {
	t.Helper()
	first = NewLeaf(NewTerminal("x"))
	second = NewLeaf(NewTerminal("y"))
	host = NewExpanded(NewNonterminal("S"), []*Node{first, second})
	return host, first, second
}

func TestBeforeAfterStructuralPredicates(t *testing.T) {
	r := NewRegistry()
	host, first, second := twoLeafHost(t)

	ok, err := r.EvalStructural(host, StructuralAtom{
		Name: "before",
		Args: []StructuralArg{{Tree: first}, {Tree: second}},
	})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = r.EvalStructural(host, StructuralAtom{
		Name: "after",
		Args: []StructuralArg{{Tree: first}, {Tree: second}},
	})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestLevelStructuralPredicate(t *testing.T) {
	r := NewRegistry()
	leaf := NewLeaf(NewTerminal("x"))
	mid := NewExpanded(NewNonterminal("T"), []*Node{leaf})
	host := NewExpanded(NewNonterminal("S"), []*Node{mid})

	depth := NewLeaf(NewTerminal("2"))
	ok, err := r.EvalStructural(host, StructuralAtom{
		Name: "level",
		Args: []StructuralArg{{Tree: leaf}, {Tree: depth}},
	})
	require.NoError(t, err)
	require.True(t, ok)
}

func TestEvalStructuralRejectsUnknownPredicate(t *testing.T) {
	r := NewRegistry()
	host, first, second := twoLeafHost(t)
	_, err := r.EvalStructural(host, StructuralAtom{
		Name: "nonsense",
		Args: []StructuralArg{{Tree: first}, {Tree: second}},
	})
	require.ErrorIs(t, err, ErrUnknownPredicate)
}

func TestIsSemanticReadyRequiresAllArgsConcrete(t *testing.T) {
	v := NewBoundVariable("v", NonterminalSort(NewNonterminal("S")))
	a := SemanticAtom{Name: "foo", Args: []StructuralArg{{Var: v}}}
	require.False(t, IsSemanticReady(a))

	closed := SemanticAtom{Name: "foo", Args: []StructuralArg{{Tree: NewLeaf(NewTerminal("x"))}}}
	require.True(t, IsSemanticReady(closed))
}
