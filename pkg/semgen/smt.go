package semgen

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/gitrdm/semgen/internal/regexdfa"
	"github.com/gitrdm/semgen/internal/smtenumerate"
)

// SMTVarKind distinguishes the two sorts solve_quantifier_free (§4.F)
// assigns: string-valued variables bound to a grammar nonterminal, and
// the numeric sort used by count/numeric constants.
type SMTVarKind int

const (
	SMTString SMTVarKind = iota
	SMTInt
)

// SMTVarConstraint is one variable's domain as handed to an SMTBackend:
// a decimal-integer range for numeric variables, or an over-approximate
// regular language (in the common str.to_re surface) for string
// variables, per §4.F step 2.
type SMTVarConstraint struct {
	Name         string
	Kind         SMTVarKind
	IntLo, IntHi int
	Regex        string
	MaxLen       int

	// pattern carries the compiled DFA pattern the Regex text was
	// serialized from, read only by the built-in backend so it never
	// has to re-parse Regex back into a pattern tree (there is no
	// regex-literal parser in this module, only a serializer). External
	// SMTBackend implementations rely on Regex/MaxLen instead.
	pattern regexdfa.Node
}

// SMTQuery is one satisfiability request: the atom bodies to satisfy
// verbatim (§4.F step 3) plus the variable domains they range over.
type SMTQuery struct {
	Exprs        []string
	Vars         []SMTVarConstraint
	MaxSolutions int
}

// SMTBackend is the out-of-scope external collaborator (§1, §6): a
// black-box satisfiability checker for quantifier-free string/int/regex
// theories. A caller wires a real SMT solver by implementing this; when
// none is wired, the solver falls back to internal/smtenumerate's
// bounded enumerator (DefaultSMTBackend).
type SMTBackend interface {
	Solve(ctx context.Context, q SMTQuery) ([]map[string]string, error)
}

// DefaultSMTBackend is the reference SMTBackend used when a caller
// doesn't wire a real SMT solver: bounded backtracking enumeration over
// per-variable string/int domains (internal/smtenumerate), grounded on
// gokando's finite-domain solver shape (see DESIGN.md).
type DefaultSMTBackend struct{}

func (DefaultSMTBackend) Solve(ctx context.Context, q SMTQuery) ([]map[string]string, error) {
	specs := make([]smtenumerate.VarSpec, len(q.Vars))
	for i, v := range q.Vars {
		if v.Kind == SMTInt {
			specs[i] = smtenumerate.VarSpec{Name: v.Name, Numeric: true, IntLo: v.IntLo, IntHi: v.IntHi}
			continue
		}
		specs[i] = smtenumerate.VarSpec{Name: v.Name, Pattern: v.pattern, MaxLen: v.MaxLen}
	}
	res, err := smtenumerate.Enumerate(ctx, q.Exprs, specs, q.MaxSolutions)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]string, len(res))
	for i, a := range res {
		out[i] = map[string]string(a)
	}
	return out, nil
}

// Solution is one joint SMT elimination outcome (§4.F steps 5-6): a
// tree substitution covering every node of every solved variable's
// bound tree ("lift the solution to all sub-trees of the bound tree"),
// plus a direct Variable substitution for solved variables that had no
// bound tree of their own (pure numeric constants).
type Solution struct {
	TreeSubst map[NodeID]*Node
	VarSubst  map[*Variable]*Node
}

// clusterAtoms groups atoms per §9's union-find rule: two atoms share a
// cluster iff they mention a common variable, or their Substitutions
// trees overlap (one is a sub-tree of the other, including equality) —
// detected here by comparing the full set of node ids each atom's
// bound trees cover, since an ancestor/descendant relationship between
// two substitution trees always shows up as a non-empty id-set
// intersection.
func clusterAtoms(atoms []SMTAtom) [][]SMTAtom {
	n := len(atoms)
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}
	union := func(a, b int) {
		ra, rb := find(a), find(b)
		if ra != rb {
			parent[ra] = rb
		}
	}

	touch := make([]map[string]bool, n)
	for i, a := range atoms {
		set := map[string]bool{}
		for _, v := range a.Vars {
			set[fmt.Sprintf("var:%d", v.ID())] = true
		}
		for v, t := range a.Substitutions {
			set[fmt.Sprintf("var:%d", v.ID())] = true
			for _, node := range t.allNodes() {
				set[fmt.Sprintf("node:%d", node.ID())] = true
			}
		}
		touch[i] = set
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if intersects(touch[i], touch[j]) {
				union(i, j)
			}
		}
	}

	groups := map[int][]SMTAtom{}
	var order []int
	for i, a := range atoms {
		r := find(i)
		if _, ok := groups[r]; !ok {
			order = append(order, r)
		}
		groups[r] = append(groups[r], a)
	}
	out := make([][]SMTAtom, len(order))
	for i, r := range order {
		out[i] = groups[r]
	}
	return out
}

func intersects(a, b map[string]bool) bool {
	small, big := a, b
	if len(b) < len(a) {
		small, big = b, a
	}
	for k := range small {
		if big[k] {
			return true
		}
	}
	return false
}

// ResolveSMT eliminates every SMT atom in one cluster (callers normally
// pass clusterAtoms' output one group at a time) against g's
// grammar-derived domains, using backend (DefaultSMTBackend{} if the
// caller has none to wire), up to maxInstantiations distinct joint
// solutions. An unsat first attempt returns (nil, nil); a later-query
// failure returns the solutions found so far (§4.F "Failure").
func ResolveSMT(ctx context.Context, backend SMTBackend, g *Grammar, atoms []SMTAtom, maxInstantiations, regexDepth int) ([]Solution, error) {
	if backend == nil {
		backend = DefaultSMTBackend{}
	}
	boundTree := map[*Variable]*Node{}
	var order []*Variable
	seen := map[*Variable]bool{}
	for _, a := range atoms {
		for _, v := range a.Vars {
			if seen[v] {
				continue
			}
			seen[v] = true
			order = append(order, v)
			boundTree[v] = a.Substitutions[v]
		}
	}
	sort.Slice(order, func(i, j int) bool { return order[i].ID() < order[j].ID() })

	names := make(map[*Variable]string, len(order))
	vars := make([]SMTVarConstraint, len(order))
	for i, v := range order {
		c := buildVarConstraint(g, v, boundTree[v], regexDepth)
		names[v] = c.Name
		vars[i] = c
	}

	exprs := make([]string, len(atoms))
	for i, a := range atoms {
		exprs[i] = rewriteExpr(a.Expr, a.Vars, names)
	}

	assignments, err := solveWithNegation(ctx, backend, exprs, vars, maxInstantiations)
	if err != nil && len(assignments) == 0 {
		return nil, err
	}

	solutions := make([]Solution, 0, len(assignments))
	for _, assign := range assignments {
		sol := Solution{TreeSubst: map[NodeID]*Node{}, VarSubst: map[*Variable]*Node{}}
		for _, v := range order {
			text, ok := assign[names[v]]
			if !ok {
				continue
			}
			if v.Sort.Numeric {
				sol.VarSubst[v] = NewLeaf(NewTerminal(text))
				continue
			}
			parsed, perr := Parse(g, text, v.Sort.Nonterminal)
			if perr != nil {
				continue
			}
			sol.VarSubst[v] = parsed
			bt := boundTree[v]
			if bt == nil {
				continue
			}
			for path, oldNode := range bt.Paths() {
				if newNode, ok := parsed.GetSubtree(path); ok {
					sol.TreeSubst[oldNode.ID()] = newNode
				}
			}
		}
		solutions = append(solutions, sol)
	}
	return solutions, err
}

func buildVarConstraint(g *Grammar, v *Variable, bound *Node, maxDepth int) SMTVarConstraint {
	name := fmt.Sprintf("v%d", v.ID())
	if v.Sort.Numeric {
		return SMTVarConstraint{Name: name, Kind: SMTInt, IntLo: 0, IntHi: 1 << 30}
	}
	pattern := buildTreePattern(g, v, bound, maxDepth)
	return SMTVarConstraint{
		Name:    name,
		Kind:    SMTString,
		Regex:   regexdfa.Serialize(pattern),
		MaxLen:  64,
		pattern: pattern,
	}
}

// buildTreePattern implements §4.F step 2's three cases: a partially
// known tree contributes the concatenation of its children's patterns
// (literal for closed terminals, extract_regex for still-open
// nonterminals); an unbound variable falls back to extract_regex of its
// own sort.
func buildTreePattern(g *Grammar, v *Variable, bound *Node, maxDepth int) regexdfa.Node {
	if bound == nil {
		return g.extractRegexPattern(v.Sort.Nonterminal, maxDepth)
	}
	return nodePattern(g, bound, maxDepth)
}

func nodePattern(g *Grammar, n *Node, maxDepth int) regexdfa.Node {
	if n.IsOpen() {
		return g.extractRegexPattern(n.Value(), maxDepth)
	}
	if n.IsLeaf() {
		return regexdfa.Lit{Text: n.Value().Name()}
	}
	items := make([]regexdfa.Node, len(n.Children()))
	for i, c := range n.Children() {
		items[i] = nodePattern(g, c, maxDepth)
	}
	if len(items) == 1 {
		return items[0]
	}
	return regexdfa.Concat{Items: items}
}

// solveWithNegation drives one cluster's enumeration: repeatedly ask
// backend for a single fresh solution, then block the exact joint
// assignment just found with a disjunction of inequalities before
// asking again, per §4.F step 4.
func solveWithNegation(ctx context.Context, backend SMTBackend, exprs []string, vars []SMTVarConstraint, maxInstantiations int) ([]map[string]string, error) {
	var solutions []map[string]string
	cur := append([]string(nil), exprs...)
	for len(solutions) < maxInstantiations {
		res, err := backend.Solve(ctx, SMTQuery{Exprs: cur, Vars: vars, MaxSolutions: 1})
		if err != nil {
			return solutions, err
		}
		if len(res) == 0 {
			break
		}
		sol := res[0]
		solutions = append(solutions, sol)
		cur = append(cur, negateJointAssignment(sol, vars))
	}
	return solutions, nil
}

func negateJointAssignment(sol map[string]string, vars []SMTVarConstraint) string {
	parts := make([]string, 0, len(vars))
	for _, v := range vars {
		val, ok := sol[v.Name]
		if !ok {
			continue
		}
		if v.Kind == SMTInt {
			parts = append(parts, fmt.Sprintf("(!= %s %s)", v.Name, val))
		} else {
			parts = append(parts, fmt.Sprintf("(!= %s %q)", v.Name, val))
		}
	}
	return "(or " + strings.Join(parts, " ") + ")"
}

// rewriteExpr rewrites an atom's raw Expr text so each of its Vars
// refers to that variable's unique per-cluster enumerator name
// (v.Name alone is not guaranteed unique across alpha-renamed
// variables; the unique name is derived from the Variable's identity).
func rewriteExpr(expr string, atomVars []*Variable, names map[*Variable]string) string {
	rename := map[string]string{}
	for _, v := range atomVars {
		if n, ok := names[v]; ok {
			rename[v.Name] = n
		}
	}
	if len(rename) == 0 {
		return expr
	}
	var out strings.Builder
	i := 0
	for i < len(expr) {
		c := expr[i]
		if c == '"' {
			j := i + 1
			for j < len(expr) && expr[j] != '"' {
				j++
			}
			out.WriteString(expr[i : j+1])
			i = j + 1
			continue
		}
		if isIdentByte(c) {
			j := i
			for j < len(expr) && isIdentByte(expr[j]) {
				j++
			}
			tok := expr[i:j]
			if rn, ok := rename[tok]; ok {
				out.WriteString(rn)
			} else {
				out.WriteString(tok)
			}
			i = j
			continue
		}
		out.WriteByte(c)
		i++
	}
	return out.String()
}

func isIdentByte(c byte) bool {
	return c == '_' || c == '.' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}
