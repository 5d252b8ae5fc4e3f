package semgen

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReplacePathPreservesSiblingIdentity(t *testing.T) {
	left := NewLeaf(NewTerminal("a"))
	right := NewOpen(NewNonterminal("T"))
	root := NewExpanded(NewNonterminal("S"), []*Node{left, right})

	closed := NewLeaf(NewTerminal("t"))
	updated := root.ReplacePath(Path{1}, closed)

	require.Equal(t, root.ID(), updated.ID(), "root identity survives a sub-tree replacement")
	require.Equal(t, left.ID(), updated.Children()[0].ID(), "untouched sibling keeps its identity")
	require.Equal(t, closed.ID(), updated.Children()[1].ID())
	require.True(t, root.Children()[1].IsOpen(), "original tree is untouched")
}

func TestSubstituteReplacesByIdentityOnly(t *testing.T) {
	a := NewLeaf(NewTerminal("a"))
	b := NewOpen(NewNonterminal("T"))
	root := NewExpanded(NewNonterminal("S"), []*Node{a, b})

	repl := NewLeaf(NewTerminal("t"))
	updated := root.Substitute(map[NodeID]*Node{b.ID(): repl})

	require.Equal(t, root.ID(), updated.ID())
	require.Same(t, a, updated.Children()[0], "node not in subst map keeps its identity, unrebuilt")
	require.Equal(t, repl.ID(), updated.Children()[1].ID())
}

func TestStructuralHashIgnoresIdentity(t *testing.T) {
	t1 := NewExpanded(NewNonterminal("S"), []*Node{NewLeaf(NewTerminal("a"))})
	t2 := NewExpanded(NewNonterminal("S"), []*Node{NewLeaf(NewTerminal("a"))})
	require.NotEqual(t, t1.ID(), t2.ID())
	require.Equal(t, t1.StructuralHash(), t2.StructuralHash())

	t3 := NewExpanded(NewNonterminal("S"), []*Node{NewLeaf(NewTerminal("b"))})
	require.NotEqual(t, t1.StructuralHash(), t3.StructuralHash())
}

func TestOpenLeavesAndIsComplete(t *testing.T) {
	open := NewOpen(NewNonterminal("T"))
	root := NewExpanded(NewNonterminal("S"), []*Node{NewLeaf(NewTerminal("a")), open})
	require.False(t, root.IsComplete())

	var leaves []*Node
	for _, n := range root.OpenLeaves() {
		leaves = append(leaves, n)
	}
	require.Len(t, leaves, 1)
	require.Equal(t, open.ID(), leaves[0].ID())

	closed := root.ReplacePath(Path{1}, NewLeaf(NewTerminal("t")))
	require.True(t, closed.IsComplete())
	require.Equal(t, "at", closed.Render())
}

func TestKPathsCountsChainsOfLengthK(t *testing.T) {
	root := NewExpanded(NewNonterminal("S"), []*Node{
		NewExpanded(NewNonterminal("T"), []*Node{NewLeaf(NewTerminal("x"))}),
	})
	paths := root.KPaths(2)
	require.True(t, paths["<S>-><T>"])
	require.False(t, paths["<S>"])
}
