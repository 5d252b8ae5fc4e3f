package smtenumerate

import (
	"context"
	"strconv"

	"github.com/gitrdm/semgen/internal/regexdfa"
)

// VarSpec describes one SMT variable's domain for enumeration: a
// numeric range or a string pattern, mirroring how gokando's FDStore
// hands each FDVar a BitSet domain before labeling.
type VarSpec struct {
	Name    string
	Numeric bool
	IntLo   int
	IntHi   int
	Pattern regexdfa.Node
	MaxLen  int
}

// Assignment maps a variable name to its solved literal text: a
// decimal string for numeric variables, the literal string itself for
// string variables.
type Assignment map[string]string

// Enumerate runs bounded backtracking search over vars, the same
// try-a-value-then-recurse shape as gokando's FDStore labeling loop but
// without propagation: each complete assignment is checked against
// every expression in exprs via EvalPredicate, and up to maxSolutions
// satisfying assignments are returned.
func Enumerate(ctx context.Context, exprs []string, vars []VarSpec, maxSolutions int) ([]Assignment, error) {
	var out []Assignment
	env := map[string]string{}

	var rec func(i int) (bool, error)
	rec = func(i int) (bool, error) {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		default:
		}
		if len(out) >= maxSolutions {
			return false, nil
		}
		if i == len(vars) {
			ok, err := satisfies(exprs, env)
			if err != nil {
				return false, err
			}
			if ok {
				snap := make(Assignment, len(env))
				for k, v := range env {
					snap[k] = v
				}
				out = append(out, snap)
			}
			return len(out) < maxSolutions, nil
		}

		v := vars[i]
		cont := true
		var err error
		if v.Numeric {
			dom := NewIntDomain(v.IntLo, v.IntHi)
			dom.IterateValues(func(n int) {
				if !cont || err != nil {
					return
				}
				env[v.Name] = strconv.Itoa(n)
				c, e := rec(i + 1)
				if e != nil {
					err, cont = e, false
					return
				}
				cont = c
			})
		} else {
			sd := NewStringDomain(v.Pattern, v.MaxLen)
			sd.IterateStrings(func(s string) bool {
				env[v.Name] = s
				c, e := rec(i + 1)
				if e != nil {
					err = e
					return false
				}
				return c
			})
		}
		delete(env, v.Name)
		return cont, err
	}

	_, err := rec(0)
	return out, err
}

func satisfies(exprs []string, env map[string]string) (bool, error) {
	for _, e := range exprs {
		ok, err := EvalPredicate(e, env)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}
