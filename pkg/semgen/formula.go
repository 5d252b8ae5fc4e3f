package semgen

import "fmt"

// Formula is the sealed tagged-variant algebra over constraints:
// connectives (And, Or, Not), quantifiers (Forall, Exists), a numeric
// constant binder (NumConst), and three atom kinds (SMTAtom,
// StructuralAtom, SemanticAtom), plus the two boolean constants
// produced once an atom or quantifier chain has been resolved.
//
// Formula values are immutable; every transformation (substitution,
// NNF/DNF conversion, alpha-renaming) returns a new value. This mirrors
// gokando's Goal/Term algebra (core.go, control_flow.go): formulas are
// combinators over a small closed set of variants, dispatched by type
// switch rather than by a virtual "evaluate" method, since evaluation
// here is driven externally by the solver's rule priority (§4.G), not
// by the formula itself.
type Formula interface {
	formulaNode()
	// FreeVariables returns the free variables (constants and
	// variables bound by an enclosing, not this, scope) mentioned
	// anywhere in the formula.
	FreeVariables() []*Variable
	String() string
}

// BoolConst is the formula `true` or `false`, the fixed point every
// atom and quantifier chain eventually resolves to.
type BoolConst struct{ Value bool }

func (BoolConst) formulaNode() {}
func (b BoolConst) FreeVariables() []*Variable { return nil }
func (b BoolConst) String() string {
	if b.Value {
		return "true"
	}
	return "false"
}

// True and False are the two BoolConst instances, exported as values
// for convenient construction.
var (
	True  = BoolConst{Value: true}
	False = BoolConst{Value: false}
)

// SMTAtom is a quantifier-free predicate over string/int SMT variables,
// together with Substitutions recording which sub-tree each mentioned
// Variable currently stands for (absent entries mean the variable is
// still free of any tree binding). Expr is opaque SMT-theory text in
// terms of the Vars' names; semgen does not parse or interpret Expr
// itself (the SMT backend, an external collaborator, does).
// SubstituteVariables leaves Expr unchanged and records a variable's
// tree in Substitutions instead.
type SMTAtom struct {
	Expr          string
	Vars          []*Variable
	Substitutions map[*Variable]*Node
}

func (SMTAtom) formulaNode() {}
func (a SMTAtom) FreeVariables() []*Variable { return append([]*Variable(nil), a.Vars...) }
func (a SMTAtom) String() string             { return a.Expr }

// StructuralArg is one argument of a StructuralAtom or SemanticAtom:
// either a Variable reference or a concrete sub-tree.
type StructuralArg struct {
	Var  *Variable
	Tree *Node
}

func varArg(v *Variable) StructuralArg  { return StructuralArg{Var: v} }
func treeArg(n *Node) StructuralArg     { return StructuralArg{Tree: n} }
func (a StructuralArg) isConcrete() bool { return a.Tree != nil }

func (a StructuralArg) String() string {
	if a.Tree != nil {
		return fmt.Sprintf("#%d", a.Tree.ID())
	}
	return a.Var.String()
}

// StructuralAtom is a named positional-relation predicate over tree
// positions (e.g. "before", "after", "level"), interpreted purely
// structurally: it never needs SMT or the semantic-predicate registry.
type StructuralAtom struct {
	Name string
	Args []StructuralArg
}

func (StructuralAtom) formulaNode() {}
func (a StructuralAtom) FreeVariables() []*Variable {
	var out []*Variable
	for _, arg := range a.Args {
		if arg.Var != nil {
			out = append(out, arg.Var)
		}
	}
	return out
}
func (a StructuralAtom) String() string { return fmt.Sprintf("%s(%v)", a.Name, a.Args) }

// AllConcrete reports whether every argument of a is a concrete tree
// (the condition rule (a) in §4.G checks before evaluating).
func (a StructuralAtom) AllConcrete() bool {
	for _, arg := range a.Args {
		if !arg.isConcrete() {
			return false
		}
	}
	return true
}

// SemanticAtom is a named, possibly effectful predicate: it may not be
// decidable until its arguments are "sufficiently closed" (component
// design 4.B), at which point its registered evaluator yields one of
// true, false, not-ready, or a tree substitution.
type SemanticAtom struct {
	Name string
	Args []StructuralArg
}

func (SemanticAtom) formulaNode() {}
func (a SemanticAtom) FreeVariables() []*Variable {
	var out []*Variable
	for _, arg := range a.Args {
		if arg.Var != nil {
			out = append(out, arg.Var)
		}
	}
	return out
}
func (a SemanticAtom) String() string { return fmt.Sprintf("%s(%v)", a.Name, a.Args) }

// Forall is `∀ v[:matchexpr] ∈ in: φ`. AlreadyMatched records the ids
// of binding roots previously matched by this quantifier instance, so
// rule (c) in §4.G only instantiates unmatched bindings.
type Forall struct {
	Var            *Variable
	MatchExpr      *MatchPattern // nil for a plain bound variable
	In             StructuralArg
	Body           Formula
	AlreadyMatched map[NodeID]bool
}

func (Forall) formulaNode() {}
func (f Forall) FreeVariables() []*Variable {
	vars := f.Body.FreeVariables()
	if f.In.Var != nil {
		vars = append(vars, f.In.Var)
	}
	return exceptVar(vars, f.Var)
}
func (f Forall) String() string {
	return fmt.Sprintf("forall %s in %s: %s", f.Var, f.In, f.Body)
}

// WithMatched returns a copy of f with id added to AlreadyMatched.
func (f Forall) WithMatched(id NodeID) Forall {
	nm := make(map[NodeID]bool, len(f.AlreadyMatched)+1)
	for k := range f.AlreadyMatched {
		nm[k] = true
	}
	nm[id] = true
	f.AlreadyMatched = nm
	return f
}

// Exists is `∃ v[:matchexpr] ∈ in: φ`, analogous to Forall but without
// already-matched bookkeeping: an existential is eliminated (not
// repeatedly matched) the first time it is resolved (§4.G rule (g)).
type Exists struct {
	Var       *Variable
	MatchExpr *MatchPattern
	In        StructuralArg
	Body      Formula
}

func (Exists) formulaNode() {}
func (e Exists) FreeVariables() []*Variable {
	vars := e.Body.FreeVariables()
	if e.In.Var != nil {
		vars = append(vars, e.In.Var)
	}
	return exceptVar(vars, e.Var)
}
func (e Exists) String() string {
	return fmt.Sprintf("exists %s in %s: %s", e.Var, e.In, e.Body)
}

// CountSource describes what a NumConst counts: the number of
// occurrences of Target within the tree bound to In.
type CountSource struct {
	Target Symbol
	In     StructuralArg
}

// NumConst is a numeric constant introduction: `let v = count(...) in φ`.
type NumConst struct {
	Var    *Variable
	Source CountSource
	Body   Formula
}

func (NumConst) formulaNode() {}
func (n NumConst) FreeVariables() []*Variable {
	vars := n.Body.FreeVariables()
	if n.Source.In.Var != nil {
		vars = append(vars, n.Source.In.Var)
	}
	return exceptVar(vars, n.Var)
}
func (n NumConst) String() string {
	return fmt.Sprintf("let %s = count(%s in %s) in %s", n.Var, n.Source.Target, n.Source.In, n.Body)
}

// And, Or, Not are the propositional connectives.
type And struct{ Left, Right Formula }

func (And) formulaNode() {}
func (a And) FreeVariables() []*Variable {
	return append(a.Left.FreeVariables(), a.Right.FreeVariables()...)
}
func (a And) String() string { return fmt.Sprintf("(%s /\\ %s)", a.Left, a.Right) }

type Or struct{ Left, Right Formula }

func (Or) formulaNode() {}
func (o Or) FreeVariables() []*Variable {
	return append(o.Left.FreeVariables(), o.Right.FreeVariables()...)
}
func (o Or) String() string { return fmt.Sprintf("(%s \\/ %s)", o.Left, o.Right) }

type Not struct{ Operand Formula }

func (Not) formulaNode() {}
func (n Not) FreeVariables() []*Variable { return n.Operand.FreeVariables() }
func (n Not) String() string             { return fmt.Sprintf("~%s", n.Operand) }

func exceptVar(vars []*Variable, exclude *Variable) []*Variable {
	out := vars[:0:0]
	for _, v := range vars {
		if v != exclude {
			out = append(out, v)
		}
	}
	return out
}
