package semgen

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func abGrammar(t *testing.T) *Grammar {
	t.Helper()
	g, err := NewGrammar("start", map[string][]string{
		"start": {"<pair>"},
		"pair":  {"a<pair>b", "x"},
	})
	require.NoError(t, err)
	return g
}

func TestParseAcceptsWellFormedInput(t *testing.T) {
	g := abGrammar(t)
	n, err := Parse(g, "axb", NewNonterminal("start"))
	require.NoError(t, err)
	require.Equal(t, "axb", n.Render())
}

func TestParseRejectsMalformedInput(t *testing.T) {
	g := abGrammar(t)
	_, err := Parse(g, "ax", NewNonterminal("start"))
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrSyntax))
}

func TestParseRenderRoundTripIsIdempotent(t *testing.T) {
	g := abGrammar(t)
	rendered := "aaxbb"
	n, err := Parse(g, rendered, NewNonterminal("start"))
	require.NoError(t, err)
	require.Equal(t, rendered, n.Render())

	reparsed, err := Parse(g, n.Render(), NewNonterminal("start"))
	require.NoError(t, err)
	require.Equal(t, n.StructuralHash(), reparsed.StructuralHash())
}
