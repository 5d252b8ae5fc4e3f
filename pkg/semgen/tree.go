package semgen

import (
	"fmt"
	"hash/fnv"
	"io"
	"iter"
	"strings"
	"sync/atomic"
)

// NodeID is a stable identifier for a tree node, unique within one tree
// lineage (a tree and every tree derived from it by ReplacePath or
// Substitute). Identity is preserved across those operations for every
// node outside the edited region.
type NodeID int64

var nodeIDCounter int64

func nextNodeID() NodeID {
	return NodeID(atomic.AddInt64(&nodeIDCounter, 1))
}

// Path addresses a node by the sequence of child indices from some root.
// The empty path addresses the root itself.
type Path []int

// Equal reports whether p and other address the same node.
func (p Path) Equal(other Path) bool {
	if len(p) != len(other) {
		return false
	}
	for i := range p {
		if p[i] != other[i] {
			return false
		}
	}
	return true
}

// Child returns the path to the i-th child of the node p addresses.
func (p Path) Child(i int) Path {
	np := make(Path, len(p)+1)
	copy(np, p)
	np[len(p)] = i
	return np
}

func (p Path) String() string {
	parts := make([]string, len(p))
	for i, c := range p {
		parts[i] = fmt.Sprintf("%d", c)
	}
	return "/" + strings.Join(parts, "/")
}

// Node is one node of a derivation tree. Nodes are immutable once
// constructed; every mutating operation (ReplacePath, Substitute)
// returns a new root, rebuilding only the spine from the root to the
// affected node(s). Node identity (ID) is preserved for every node
// outside that spine, which is what lets formulas hold stable
// references into a tree across successive refinements.
//
// A node is open iff its Value is a nonterminal and children is nil.
// Terminal nodes always have an empty (non-nil, zero-length) children
// slice. A nonterminal node that has been expanded has a non-nil
// children slice matching one of the grammar's alternatives for its
// symbol (possibly a single emptyTerminal child for an epsilon
// production).
type Node struct {
	id       NodeID
	value    Symbol
	children []*Node
}

// NewOpen returns a fresh open node for the given nonterminal symbol.
func NewOpen(sym Symbol) *Node {
	if sym.IsTerminal() {
		panic("semgen: NewOpen requires a nonterminal symbol")
	}
	return &Node{id: nextNodeID(), value: sym, children: nil}
}

// NewLeaf returns a fresh terminal leaf node.
func NewLeaf(sym Symbol) *Node {
	if sym.IsNonterminal() {
		panic("semgen: NewLeaf requires a terminal symbol")
	}
	return &Node{id: nextNodeID(), value: sym, children: []*Node{}}
}

// NewExpanded returns a fresh nonterminal node with the given children,
// representing one step of grammar expansion.
func NewExpanded(sym Symbol, children []*Node) *Node {
	if sym.IsTerminal() {
		panic("semgen: NewExpanded requires a nonterminal symbol")
	}
	cs := make([]*Node, len(children))
	copy(cs, children)
	return &Node{id: nextNodeID(), value: sym, children: cs}
}

// ID returns n's stable identifier.
func (n *Node) ID() NodeID { return n.id }

// Value returns n's symbol.
func (n *Node) Value() Symbol { return n.value }

// Children returns n's children, or nil if n is open. The returned
// slice must not be mutated.
func (n *Node) Children() []*Node { return n.children }

// IsOpen reports whether n is an unexpanded nonterminal.
func (n *Node) IsOpen() bool { return n.value.IsNonterminal() && n.children == nil }

// IsLeaf reports whether n is a terminal.
func (n *Node) IsLeaf() bool { return n.value.IsTerminal() }

// IsComplete reports whether n and every descendant is fully expanded:
// no open nodes anywhere in the subtree.
func (n *Node) IsComplete() bool {
	if n.IsOpen() {
		return false
	}
	for _, c := range n.children {
		if !c.IsComplete() {
			return false
		}
	}
	return true
}

// Render concatenates n's terminal leaves in order, producing the input
// string n derives. Panics if n is not complete.
func (n *Node) Render() string {
	var b strings.Builder
	n.render(&b)
	return b.String()
}

func (n *Node) render(b *strings.Builder) {
	if n.IsOpen() {
		panic("semgen: Render called on an incomplete tree")
	}
	if n.value.IsTerminal() {
		b.WriteString(n.value.Name())
		return
	}
	for _, c := range n.children {
		c.render(b)
	}
}

// GetSubtree returns the node addressed by path within n, and whether
// the path was valid.
func (n *Node) GetSubtree(path Path) (*Node, bool) {
	cur := n
	for _, idx := range path {
		if cur.children == nil || idx < 0 || idx >= len(cur.children) {
			return nil, false
		}
		cur = cur.children[idx]
	}
	return cur, true
}

// FindNode searches n's subtree (including n) for the node with the
// given id, returning the node and the path to it.
func (n *Node) FindNode(id NodeID) (*Node, Path, bool) {
	if n.id == id {
		return n, Path{}, true
	}
	for i, c := range n.children {
		if found, p, ok := c.FindNode(id); ok {
			return found, append(Path{i}, p...), true
		}
	}
	return nil, nil, false
}

// ReplacePath returns a new tree equal to n outside path, with the
// subtree at path replaced by replacement. Only the spine from the
// root to path is rebuilt; every node outside that spine keeps its
// original identity. Panics if path is invalid.
func (n *Node) ReplacePath(path Path, replacement *Node) *Node {
	if len(path) == 0 {
		return replacement
	}
	idx := path[0]
	if n.children == nil || idx < 0 || idx >= len(n.children) {
		panic("semgen: ReplacePath: invalid path")
	}
	newChildren := make([]*Node, len(n.children))
	copy(newChildren, n.children)
	newChildren[idx] = n.children[idx].ReplacePath(path[1:], replacement)
	return &Node{id: n.id, value: n.value, children: newChildren}
}

// Substitute returns a new tree in which every node whose id is a key
// of subst is replaced, whole-subtree, by the corresponding value.
// Nodes not reachable from any replaced subtree keep their original
// identity and are not rebuilt.
func (n *Node) Substitute(subst map[NodeID]*Node) *Node {
	if repl, ok := subst[n.id]; ok {
		return repl
	}
	if n.children == nil {
		return n
	}
	changed := false
	newChildren := make([]*Node, len(n.children))
	for i, c := range n.children {
		nc := c.Substitute(subst)
		newChildren[i] = nc
		if nc != c {
			changed = true
		}
	}
	if !changed {
		return n
	}
	return &Node{id: n.id, value: n.value, children: newChildren}
}

// OpenLeaves lazily yields every (path, node) pair in n's subtree whose
// node is open.
func (n *Node) OpenLeaves() iter.Seq2[Path, *Node] {
	return func(yield func(Path, *Node) bool) {
		n.walkOpen(Path{}, yield)
	}
}

func (n *Node) walkOpen(prefix Path, yield func(Path, *Node) bool) bool {
	if n.IsOpen() {
		if !yield(prefix, n) {
			return false
		}
	}
	for i, c := range n.children {
		if !c.walkOpen(prefix.Child(i), yield) {
			return false
		}
	}
	return true
}

// Paths lazily yields every (path, node) pair in n's subtree, including
// n itself at the empty path, in pre-order.
func (n *Node) Paths() iter.Seq2[Path, *Node] {
	return func(yield func(Path, *Node) bool) {
		n.walkAll(Path{}, yield)
	}
}

func (n *Node) walkAll(prefix Path, yield func(Path, *Node) bool) bool {
	if !yield(prefix, n) {
		return false
	}
	for i, c := range n.children {
		if !c.walkAll(prefix.Child(i), yield) {
			return false
		}
	}
	return true
}

// StructuralHash returns a hash that depends only on n's shape and
// symbols, not on node identities. Two structurally equal trees (even
// built independently, with unrelated ids) hash equal.
func (n *Node) StructuralHash() uint64 {
	h := fnv.New64a()
	n.hashInto(h)
	return h.Sum64()
}

func (n *Node) hashInto(h io.Writer) {
	if n.value.IsTerminal() {
		h.Write([]byte{'T'})
	} else {
		h.Write([]byte{'N'})
	}
	h.Write([]byte(n.value.Name()))
	if n.IsOpen() {
		h.Write([]byte{'?'})
		return
	}
	h.Write([]byte{'('})
	for _, c := range n.children {
		c.hashInto(h)
	}
	h.Write([]byte{')'})
}

// KPaths returns the set of length-k grammar paths (sequences of k
// symbol names joined by "->") realized anywhere in n's subtree: every
// contiguous parent-to-descendant chain of k node values, for every
// starting node and every descent through its children.
func (n *Node) KPaths(k int) map[string]bool {
	out := map[string]bool{}
	if k <= 0 {
		return out
	}
	for _, node := range n.allNodes() {
		node.collectChainsFrom(k, nil, out)
	}
	return out
}

// allNodes returns every node in n's subtree, n included.
func (n *Node) allNodes() []*Node {
	var out []*Node
	for _, node := range n.Paths() {
		out = append(out, node)
	}
	return out
}

// collectChainsFrom extends acc with n's own symbol and, once the chain
// reaches length k, records it; otherwise recurses into every child to
// explore longer branching chains.
func (n *Node) collectChainsFrom(k int, acc []string, out map[string]bool) {
	acc = append(acc, n.value.String())
	if len(acc) == k {
		out[strings.Join(acc, "->")] = true
		return
	}
	for _, c := range n.children {
		c.collectChainsFrom(k, acc, out)
	}
}
