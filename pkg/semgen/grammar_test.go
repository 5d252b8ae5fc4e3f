package semgen

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewGrammarRejectsMissingStart(t *testing.T) {
	_, err := NewGrammar("start", map[string][]string{"other": {"a"}})
	require.Error(t, err)
}

func TestNewGrammarRejectsUndefinedNonterminal(t *testing.T) {
	_, err := NewGrammar("start", map[string][]string{"start": {"<missing>"}})
	require.Error(t, err)
}

func TestNewGrammarTokenizesTerminalsAndNonterminals(t *testing.T) {
	g, err := NewGrammar("start", map[string][]string{
		"start": {"a<mid>b"},
		"mid":   {"x"},
	})
	require.NoError(t, err)
	alts := g.Alternatives(NewNonterminal("start"))
	require.Len(t, alts, 1)
	require.Equal(t, Alternative{NewTerminal("a"), NewNonterminal("mid"), NewTerminal("b")}, alts[0])
}

func TestNullableFixpoint(t *testing.T) {
	g, err := NewGrammar("start", map[string][]string{
		"start": {"<a><b>"},
		"a":     {""},
		"b":     {"<a>", "x"},
	})
	require.NoError(t, err)
	require.True(t, g.Nullable(NewNonterminal("a")))
	require.True(t, g.Nullable(NewNonterminal("b")))
	require.True(t, g.Nullable(NewNonterminal("start")))
}

func TestExpandProducesOpenNonterminalsAndLeafTerminals(t *testing.T) {
	g, err := NewGrammar("start", map[string][]string{
		"start": {"a<mid>"},
		"mid":   {"x"},
	})
	require.NoError(t, err)
	children := g.Expand(NewNonterminal("start"), 0)
	require.Len(t, children, 2)
	require.True(t, children[0].IsLeaf())
	require.True(t, children[1].IsOpen())
}

func TestReachableAndSelfReachable(t *testing.T) {
	g, err := NewGrammar("S", map[string][]string{
		"S": {"a<T>"},
		"T": {"t", "<S>b"},
	})
	require.NoError(t, err)
	require.True(t, g.reachable(NewNonterminal("S"), NewNonterminal("T")))
	require.True(t, g.selfReachable(NewNonterminal("T")))
	require.True(t, g.selfReachable(NewNonterminal("S")))
}
