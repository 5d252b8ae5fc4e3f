// Package semgen implements a semantic input generator: given a
// context-free grammar and a logical constraint over derivation trees of
// that grammar, it produces a lazy stream of syntactically valid inputs
// that additionally satisfy the constraint.
//
// The package is organized around the components of the constraint
// solver: derivation trees with stable node identity (tree.go), a
// formula algebra with quantifiers, structural and semantic predicates,
// and SMT atoms (formula.go), grammar services built on a projected
// reachability graph (grammar.go, grammar_graph.go), a quantifier
// matcher (match.go), tree insertion for existential elimination
// (insert.go), an SMT bridge to an external string/int solver (smt.go),
// and the solver core itself, a priority-queue best-first search driven
// by a weighted cost model (solver.go, rules.go, cost.go).
//
// The surface syntax parser for the constraint language, the SMT
// backend proper, and a base grammar fuzzer for unconstrained expansion
// are treated as external collaborators: callers construct Formula
// values directly (or plug in their own parser), wire an SMTBackend,
// and may supply a Fuzzer. Bounded reference implementations of the
// SMT backend (DefaultSMTBackend) and the fuzzer (DefaultFuzzer) are
// provided so the package is useful out of the box; no parser for the
// constraint language is included.
package semgen
