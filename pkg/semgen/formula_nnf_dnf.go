package semgen

// SubstituteVariables returns a copy of f with every occurrence of a
// variable that is a key of sigma replaced by the tree it maps to.
// Used when a quantifier is instantiated: the matcher's binding
// environment becomes a sigma applied to the quantifier's body.
func SubstituteVariables(f Formula, sigma map[*Variable]*Node) Formula {
	substArg := func(a StructuralArg) StructuralArg {
		if a.Var != nil {
			if t, ok := sigma[a.Var]; ok {
				return treeArg(t)
			}
		}
		return a
	}
	substArgs := func(args []StructuralArg) []StructuralArg {
		out := make([]StructuralArg, len(args))
		for i, a := range args {
			out[i] = substArg(a)
		}
		return out
	}

	switch v := f.(type) {
	case BoolConst:
		return v
	case SMTAtom:
		newSub := make(map[*Variable]*Node, len(v.Substitutions))
		for k, val := range v.Substitutions {
			newSub[k] = val
		}
		for _, vv := range v.Vars {
			if t, ok := sigma[vv]; ok {
				newSub[vv] = t
			}
		}
		return SMTAtom{Expr: v.Expr, Vars: v.Vars, Substitutions: newSub}
	case StructuralAtom:
		return StructuralAtom{Name: v.Name, Args: substArgs(v.Args)}
	case SemanticAtom:
		return SemanticAtom{Name: v.Name, Args: substArgs(v.Args)}
	case Forall:
		v.In = substArg(v.In)
		v.Body = SubstituteVariables(v.Body, sigma)
		return v
	case Exists:
		v.In = substArg(v.In)
		v.Body = SubstituteVariables(v.Body, sigma)
		return v
	case NumConst:
		v.Source.In = substArg(v.Source.In)
		v.Body = SubstituteVariables(v.Body, sigma)
		return v
	case And:
		return And{SubstituteVariables(v.Left, sigma), SubstituteVariables(v.Right, sigma)}
	case Or:
		return Or{SubstituteVariables(v.Left, sigma), SubstituteVariables(v.Right, sigma)}
	case Not:
		return Not{SubstituteVariables(v.Operand, sigma)}
	default:
		return f
	}
}

// SubstituteTrees returns a copy of f in which every concrete tree
// reference (a StructuralArg.Tree or an SMTAtom.Substitutions value)
// whose node id is a key of sigma is replaced by the mapped node. This
// is the formula-side counterpart of Node.Substitute: it keeps a
// formula's tree references current after the tree they point into
// has a sub-tree replaced elsewhere (identity-based, per the "no
// dangling references" invariant, §3).
func SubstituteTrees(f Formula, sigma map[NodeID]*Node) Formula {
	fixArg := func(a StructuralArg) StructuralArg {
		if a.Tree != nil {
			if nn, ok := sigma[a.Tree.ID()]; ok {
				return treeArg(nn)
			}
		}
		return a
	}
	fixArgs := func(args []StructuralArg) []StructuralArg {
		out := make([]StructuralArg, len(args))
		for i, a := range args {
			out[i] = fixArg(a)
		}
		return out
	}

	switch v := f.(type) {
	case BoolConst:
		return v
	case SMTAtom:
		newSub := make(map[*Variable]*Node, len(v.Substitutions))
		for k, val := range v.Substitutions {
			if nn, ok := sigma[val.ID()]; ok {
				newSub[k] = nn
			} else {
				newSub[k] = val
			}
		}
		return SMTAtom{Expr: v.Expr, Vars: v.Vars, Substitutions: newSub}
	case StructuralAtom:
		return StructuralAtom{Name: v.Name, Args: fixArgs(v.Args)}
	case SemanticAtom:
		return SemanticAtom{Name: v.Name, Args: fixArgs(v.Args)}
	case Forall:
		v.In = fixArg(v.In)
		v.Body = SubstituteTrees(v.Body, sigma)
		return v
	case Exists:
		v.In = fixArg(v.In)
		v.Body = SubstituteTrees(v.Body, sigma)
		return v
	case NumConst:
		v.Source.In = fixArg(v.Source.In)
		v.Body = SubstituteTrees(v.Body, sigma)
		return v
	case And:
		return And{SubstituteTrees(v.Left, sigma), SubstituteTrees(v.Right, sigma)}
	case Or:
		return Or{SubstituteTrees(v.Left, sigma), SubstituteTrees(v.Right, sigma)}
	case Not:
		return Not{SubstituteTrees(v.Operand, sigma)}
	default:
		return f
	}
}

// ReplaceSubformula returns a copy of f with every syntactic occurrence
// of old replaced by replacement, compared structurally via String().
func ReplaceSubformula(f, old, replacement Formula) Formula {
	if f.String() == old.String() {
		return replacement
	}
	switch v := f.(type) {
	case Forall:
		v.Body = ReplaceSubformula(v.Body, old, replacement)
		return v
	case Exists:
		v.Body = ReplaceSubformula(v.Body, old, replacement)
		return v
	case NumConst:
		v.Body = ReplaceSubformula(v.Body, old, replacement)
		return v
	case And:
		return And{ReplaceSubformula(v.Left, old, replacement), ReplaceSubformula(v.Right, old, replacement)}
	case Or:
		return Or{ReplaceSubformula(v.Left, old, replacement), ReplaceSubformula(v.Right, old, replacement)}
	case Not:
		return Not{ReplaceSubformula(v.Operand, old, replacement)}
	default:
		return f
	}
}

// ToNNF pushes negation to the leaves (atoms and quantifiers), turning
// ~(A/\B) into ~A\/~B, ~(A\/B) into ~A/\~B, ~~A into A, and ~(forall ...)
// into exists (~body), ~(exists ...) into forall (~body). Atom-level
// negations are left as Not-wrapped atoms: negating an opaque SMT/
// structural/semantic atom is not further simplified here, the way the
// original formula's Expr text is opaque to this package.
func ToNNF(f Formula) Formula {
	switch v := f.(type) {
	case Not:
		switch inner := v.Operand.(type) {
		case Not:
			return ToNNF(inner.Operand)
		case And:
			return Or{ToNNF(Not{inner.Left}), ToNNF(Not{inner.Right})}
		case Or:
			return And{ToNNF(Not{inner.Left}), ToNNF(Not{inner.Right})}
		case Forall:
			return Exists{Var: inner.Var, MatchExpr: inner.MatchExpr, In: inner.In, Body: ToNNF(Not{inner.Body})}
		case Exists:
			return Forall{Var: inner.Var, MatchExpr: inner.MatchExpr, In: inner.In, Body: ToNNF(Not{inner.Body})}
		case BoolConst:
			return BoolConst{Value: !inner.Value}
		default:
			return Not{inner}
		}
	case And:
		return And{ToNNF(v.Left), ToNNF(v.Right)}
	case Or:
		return Or{ToNNF(v.Left), ToNNF(v.Right)}
	case Forall:
		v.Body = ToNNF(v.Body)
		return v
	case Exists:
		v.Body = ToNNF(v.Body)
		return v
	case NumConst:
		v.Body = ToNNF(v.Body)
		return v
	default:
		return f
	}
}

// ToDNF converts f to disjunctive normal form: a disjunction of
// conjunctions, with every top-level disjunction lifted above every
// connective. Quantifiers distribute over an inner disjunction only
// where doing so cannot cross a binder into a scope that changes its
// meaning: an Exists whose Body is an Or is split into an Or of two
// copies of the quantifier, one per disjunct, which is sound because
// some binding satisfies A or B exactly when some binding satisfies A
// or some binding satisfies B. A Forall whose Body is an Or is not
// split, since a disjunction that holds for every binding need not
// have one disjunct that holds for every binding; its Body stays a
// disjunction under the Forall. NumConst bodies are split like Exists:
// splitting the let-body's disjunction preserves the single
// deterministic count value either branch sees.
func ToDNF(f Formula) Formula {
	return distributeOr(pushQuantifiersOut(ToNNF(f)))
}

// pushQuantifiersOut recursively rewrites Exists/NumConst nodes whose
// Body is itself a disjunction into a disjunction of the binder applied
// to each disjunct, bottom-up. Forall bodies are rewritten in place but
// never split.
func pushQuantifiersOut(f Formula) Formula {
	switch v := f.(type) {
	case And:
		return And{pushQuantifiersOut(v.Left), pushQuantifiersOut(v.Right)}
	case Or:
		return Or{pushQuantifiersOut(v.Left), pushQuantifiersOut(v.Right)}
	case Forall:
		v.Body = pushQuantifiersOut(v.Body)
		return v
	case Exists:
		body := pushQuantifiersOut(v.Body)
		if or, ok := body.(Or); ok {
			left := v
			left.Body = or.Left
			right := v
			right.Body = or.Right
			return Or{pushQuantifiersOut(left), pushQuantifiersOut(right)}
		}
		v.Body = body
		return v
	case NumConst:
		body := pushQuantifiersOut(v.Body)
		if or, ok := body.(Or); ok {
			left := v
			left.Body = or.Left
			right := v
			right.Body = or.Right
			return Or{pushQuantifiersOut(left), pushQuantifiersOut(right)}
		}
		v.Body = body
		return v
	default:
		return f
	}
}

// distributeOr applies the distributive law A/\(B\/C) = (A/\B)\/(A/\C)
// until every And's children are disjunction-free, lifting all
// disjunction to the top.
func distributeOr(f Formula) Formula {
	switch v := f.(type) {
	case And:
		left := distributeOr(v.Left)
		right := distributeOr(v.Right)
		if or, ok := left.(Or); ok {
			return distributeOr(Or{And{or.Left, right}, And{or.Right, right}})
		}
		if or, ok := right.(Or); ok {
			return distributeOr(Or{And{left, or.Left}, And{left, or.Right}})
		}
		return And{left, right}
	case Or:
		return Or{distributeOr(v.Left), distributeOr(v.Right)}
	default:
		return f
	}
}

// SplitDisjunction returns the top-level disjuncts of f (f itself, as a
// singleton, if f is not an Or).
func SplitDisjunction(f Formula) []Formula {
	if or, ok := f.(Or); ok {
		return append(SplitDisjunction(or.Left), SplitDisjunction(or.Right)...)
	}
	return []Formula{f}
}

// SplitConjunction returns the top-level conjuncts of f (f itself, as a
// singleton, if f is not an And).
func SplitConjunction(f Formula) []Formula {
	if and, ok := f.(And); ok {
		return append(SplitConjunction(and.Left), SplitConjunction(and.Right)...)
	}
	return []Formula{f}
}

// EnsureUniqueBoundVariables alpha-renames every quantifier/NumConst
// binder in f to a fresh Variable identity, so that no two binders in
// the resulting formula share an id. This must run before ToDNF
// duplicates quantifiers across disjuncts, exactly as gokando's
// control_flow.go requires fresh *Var values per Run closure instance
// rather than reused, shared variables.
func EnsureUniqueBoundVariables(f Formula) Formula {
	switch v := f.(type) {
	case Forall:
		fresh := v.Var.rename()
		body := renameVar(v.Body, v.Var, fresh)
		v.Var = fresh
		v.Body = EnsureUniqueBoundVariables(body)
		return v
	case Exists:
		fresh := v.Var.rename()
		body := renameVar(v.Body, v.Var, fresh)
		v.Var = fresh
		v.Body = EnsureUniqueBoundVariables(body)
		return v
	case NumConst:
		fresh := v.Var.rename()
		body := renameVar(v.Body, v.Var, fresh)
		v.Var = fresh
		v.Body = EnsureUniqueBoundVariables(body)
		return v
	case And:
		return And{EnsureUniqueBoundVariables(v.Left), EnsureUniqueBoundVariables(v.Right)}
	case Or:
		return Or{EnsureUniqueBoundVariables(v.Left), EnsureUniqueBoundVariables(v.Right)}
	case Not:
		return Not{EnsureUniqueBoundVariables(v.Operand)}
	default:
		return f
	}
}

// renameVar replaces every occurrence of old used as a StructuralArg or
// SMTAtom variable with fresh, without descending into a nested binder
// that shadows old with a different variable of the same name (binder
// identities are unique ids, not names, so shadowing cannot occur here
// by construction; the recursion is unconditional).
func renameVar(f Formula, old, fresh *Variable) Formula {
	renameArg := func(a StructuralArg) StructuralArg {
		if a.Var == old {
			return varArg(fresh)
		}
		return a
	}
	switch v := f.(type) {
	case BoolConst:
		return v
	case SMTAtom:
		newVars := make([]*Variable, len(v.Vars))
		for i, vv := range v.Vars {
			if vv == old {
				newVars[i] = fresh
			} else {
				newVars[i] = vv
			}
		}
		newSub := make(map[*Variable]*Node, len(v.Substitutions))
		for k, val := range v.Substitutions {
			if k == old {
				newSub[fresh] = val
			} else {
				newSub[k] = val
			}
		}
		return SMTAtom{Expr: v.Expr, Vars: newVars, Substitutions: newSub}
	case StructuralAtom:
		args := make([]StructuralArg, len(v.Args))
		for i, a := range v.Args {
			args[i] = renameArg(a)
		}
		return StructuralAtom{Name: v.Name, Args: args}
	case SemanticAtom:
		args := make([]StructuralArg, len(v.Args))
		for i, a := range v.Args {
			args[i] = renameArg(a)
		}
		return SemanticAtom{Name: v.Name, Args: args}
	case Forall:
		v.In = renameArg(v.In)
		v.Body = renameVar(v.Body, old, fresh)
		return v
	case Exists:
		v.In = renameArg(v.In)
		v.Body = renameVar(v.Body, old, fresh)
		return v
	case NumConst:
		v.Source.In = renameArg(v.Source.In)
		v.Body = renameVar(v.Body, old, fresh)
		return v
	case And:
		return And{renameVar(v.Left, old, fresh), renameVar(v.Right, old, fresh)}
	case Or:
		return Or{renameVar(v.Left, old, fresh), renameVar(v.Right, old, fresh)}
	case Not:
		return Not{renameVar(v.Operand, old, fresh)}
	default:
		return f
	}
}
