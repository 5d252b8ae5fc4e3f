package semgen

import (
	"fmt"
	"strings"
)

// earleyItem is one dotted production in one Earley chart column:
// nonterminal nt, its altIdx-th alternative, a dot position (how many
// symbols of alt have been recognized), the origin column the item
// started at, and the completed children recognized so far (terminal
// leaves or completed sub-derivations), used to rebuild a Node once
// the item completes.
type earleyItem struct {
	nt       Symbol
	alt      Alternative
	altIdx   int
	dot      int
	origin   int
	children []*Node
}

func (it *earleyItem) key() string {
	return fmt.Sprintf("%s|%d|%d|%d", it.nt.Name(), it.altIdx, it.dot, it.origin)
}

func (it *earleyItem) complete() bool { return it.dot == len(it.alt) }

func (it *earleyItem) nextSymbol() Symbol { return it.alt[it.dot] }

// earleyColumn holds the items recognized at one input position,
// deduplicated by (nt, altIdx, dot, origin) so ambiguous grammars don't
// grow the chart unboundedly; only the first derivation found per key
// is kept, which is sufficient for Parse's "a witness tree" contract.
type earleyColumn struct {
	items []*earleyItem
	seen  map[string]bool
}

func newColumn() *earleyColumn {
	return &earleyColumn{seen: map[string]bool{}}
}

func (c *earleyColumn) add(it *earleyItem) {
	k := it.key()
	if c.seen[k] {
		return
	}
	c.seen[k] = true
	c.items = append(c.items, it)
}

// Parse runs an Earley chart parse of input against g starting from
// start (normally, but not necessarily, g.Start — §4.F.5 reuses Parse
// with the start set to a bound variable's own nonterminal), returning
// a fresh tree on success. It wraps ErrSyntax when input does not
// parse.
func Parse(g *Grammar, input string, start Symbol) (*Node, error) {
	n := len(input)
	columns := make([]*earleyColumn, n+1)
	for i := range columns {
		columns[i] = newColumn()
	}

	for altIdx, alt := range g.Alternatives(start) {
		columns[0].add(&earleyItem{nt: start, alt: alt, altIdx: altIdx, origin: 0})
	}

	for col := 0; col <= n; col++ {
		column := columns[col]
		for i := 0; i < len(column.items); i++ {
			it := column.items[i]
			if it.complete() {
				completeItem(g, columns, col, it)
				continue
			}
			sym := it.nextSymbol()
			if sym.IsNonterminal() {
				predict(g, column, col, sym)
				continue
			}
			scan(g, columns, col, it, input)
		}
	}

	final := columns[n]
	for _, it := range final.items {
		if it.origin == 0 && it.complete() && it.nt.Equal(start) {
			return NewExpanded(start, it.children), nil
		}
	}
	return nil, fmt.Errorf("%w: %q does not derive from %s", ErrSyntax, input, start)
}

// predict adds, to column, a dot-zero item for every alternative of
// sym, unless already present.
func predict(g *Grammar, column *earleyColumn, col int, sym Symbol) {
	for altIdx, alt := range g.Alternatives(sym) {
		column.add(&earleyItem{nt: sym, alt: alt, altIdx: altIdx, origin: col})
	}
}

// scan advances it past its next terminal symbol if input at col has
// that terminal as a prefix (the empty terminal always matches,
// consuming zero bytes, so epsilon productions complete in place).
func scan(g *Grammar, columns []*earleyColumn, col int, it *earleyItem, input string) {
	sym := it.nextSymbol()
	text := sym.Name()
	if !strings.HasPrefix(input[col:], text) {
		return
	}
	leaf := NewLeaf(sym)
	next := &earleyItem{
		nt: it.nt, alt: it.alt, altIdx: it.altIdx, origin: it.origin,
		dot:      it.dot + 1,
		children: appendChild(it.children, leaf),
	}
	columns[col+len(text)].add(next)
}

// completeItem advances every item in columns[it.origin] that was
// waiting on it.nt, attaching it's freshly-built subtree as their next
// child.
func completeItem(g *Grammar, columns []*earleyColumn, col int, it *earleyItem) {
	sub := NewExpanded(it.nt, it.children)
	origin := columns[it.origin]
	for _, waiting := range origin.items {
		if waiting.complete() || waiting.nextSymbol().IsTerminal() {
			continue
		}
		if !waiting.nextSymbol().Equal(it.nt) {
			continue
		}
		next := &earleyItem{
			nt: waiting.nt, alt: waiting.alt, altIdx: waiting.altIdx, origin: waiting.origin,
			dot:      waiting.dot + 1,
			children: appendChild(waiting.children, sub),
		}
		columns[col].add(next)
	}
}

func appendChild(children []*Node, n *Node) []*Node {
	out := make([]*Node, len(children)+1)
	copy(out, children)
	out[len(children)] = n
	return out
}

// Render round-trips: Parse(g, n.Render(), g.Start) reproduces a tree
// structurally equal (§8 property 7, "idempotence of parsing") to n,
// though node identities are fresh.
