package semgen

import "sync/atomic"

var varIDCounter int64

func nextVarID() int64 { return atomic.AddInt64(&varIDCounter, 1) }

// Sort is the type of a Variable: either a grammar nonterminal (a
// string-valued logic variable standing for a sub-tree of that
// nonterminal) or the numeric sort used by count/numeric constants.
type Sort struct {
	Nonterminal Symbol
	Numeric     bool
}

// NonterminalSort returns the sort of variables bound to sub-trees of nt.
func NonterminalSort(nt Symbol) Sort { return Sort{Nonterminal: nt} }

// NumericSort returns the sort of integer-valued variables.
func NumericSort() Sort { return Sort{Numeric: true} }

func (s Sort) String() string {
	if s.Numeric {
		return "int"
	}
	return s.Nonterminal.String()
}

// Variable is either a free constant (scoped to a whole formula; the
// sole reserved constant, TopConstant, has type <start> and denotes the
// entire derivation tree) or a variable bound by a quantifier. Each
// carries a Sort.
type Variable struct {
	id    int64
	Name  string
	Sort  Sort
	Bound bool
	top   bool
}

// NewConstant returns a fresh free constant of the given sort.
func NewConstant(name string, sort Sort) *Variable {
	return &Variable{id: nextVarID(), Name: name, Sort: sort}
}

// NewBoundVariable returns a fresh variable scoped by a quantifier.
func NewBoundVariable(name string, sort Sort) *Variable {
	return &Variable{id: nextVarID(), Name: name, Sort: sort, Bound: true}
}

// TopConstant returns the reserved constant of type start, standing for
// the whole derivation tree. Each call returns a distinct Variable
// value with a fresh id; callers that need the canonical top constant
// for a single formula/solve should call this once and reuse the
// result, the way gokando callers create fresh *Var values inside a
// single Run closure (see control_flow.go's variable-scoping doc).
func TopConstant(start Symbol) *Variable {
	v := NewConstant("top", NonterminalSort(start))
	v.top = true
	return v
}

// IsTop reports whether v is a reserved top-level constant.
func (v *Variable) IsTop() bool { return v.top }

// ID returns v's identity, used for set membership and alpha-renaming
// comparisons (two Variables are the same variable iff same id).
func (v *Variable) ID() int64 { return v.id }

func (v *Variable) String() string { return v.Name }

// rename returns a fresh variable of the same sort/boundness but with a
// new identity, used by EnsureUniqueBoundVariables for alpha-renaming.
func (v *Variable) rename() *Variable {
	nv := &Variable{id: nextVarID(), Name: v.Name, Sort: v.Sort, Bound: v.Bound, top: false}
	return nv
}
