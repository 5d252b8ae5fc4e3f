package smtenumerate

import (
	"math/bits"

	"github.com/gitrdm/semgen/internal/regexdfa"
)

// IntDomain is a bounded bitset over the integer range [lo, lo+n), the
// same fixed-width bitset shape as gokando's fd.go BitSet, shifted to
// support an arbitrary lower bound instead of always starting at 1.
type IntDomain struct {
	lo    int
	n     int
	words []uint64
}

// NewIntDomain returns the full domain [lo, hi].
func NewIntDomain(lo, hi int) IntDomain {
	n := hi - lo + 1
	if n < 0 {
		n = 0
	}
	w := (n + 63) / 64
	d := IntDomain{lo: lo, n: n, words: make([]uint64, w)}
	for i := 0; i < n; i++ {
		d.words[i/64] |= 1 << uint(i%64)
	}
	return d
}

func (d IntDomain) clone() IntDomain {
	words := make([]uint64, len(d.words))
	copy(words, d.words)
	return IntDomain{lo: d.lo, n: d.n, words: words}
}

// Count returns the number of values still in the domain.
func (d IntDomain) Count() int {
	c := 0
	for _, w := range d.words {
		c += bits.OnesCount64(w)
	}
	return c
}

// Has reports whether v is in the domain.
func (d IntDomain) Has(v int) bool {
	off := v - d.lo
	if off < 0 || off >= d.n {
		return false
	}
	return (d.words[off/64]>>uint(off%64))&1 == 1
}

// Remove returns a new domain with v removed.
func (d IntDomain) Remove(v int) IntDomain {
	off := v - d.lo
	if off < 0 || off >= d.n {
		return d
	}
	nd := d.clone()
	nd.words[off/64] &^= 1 << uint(off%64)
	return nd
}

// IsSingleton reports whether exactly one value remains.
func (d IntDomain) IsSingleton() bool { return d.Count() == 1 }

// SingletonValue returns the sole remaining value. Undefined if
// !IsSingleton().
func (d IntDomain) SingletonValue() int {
	for i, w := range d.words {
		if w == 0 {
			continue
		}
		return d.lo + i*64 + bits.TrailingZeros64(w)
	}
	return d.lo - 1
}

// IterateValues calls f for every remaining value in ascending order.
func (d IntDomain) IterateValues(f func(int)) {
	for i, w := range d.words {
		for w != 0 {
			t := w & -w
			f(d.lo + i*64 + bits.TrailingZeros64(w))
			w &^= t
		}
	}
}

// StringDomain is a bounded enumeration of the strings a compiled
// pattern DFA accepts, up to maxLen bytes. Unlike IntDomain it is not a
// bitset: the underlying alphabet (arbitrary byte strings) has no
// compact fixed-width representation, so the domain is realized lazily
// by walking the DFA rather than precomputed.
type StringDomain struct {
	DFA    *regexdfa.DFA
	MaxLen int
}

// NewStringDomain builds a StringDomain directly from a pattern tree,
// the same Node shape internal/regexdfa's extract_regex machinery
// builds per grammar alternative, so the solver never needs to
// round-trip through a serialized regex string.
func NewStringDomain(pattern regexdfa.Node, maxLen int) StringDomain {
	return StringDomain{DFA: regexdfa.Compile(pattern), MaxLen: maxLen}
}

// IterateStrings calls f for every string of length <= MaxLen that d's
// DFA accepts, shortest first, stopping early if f returns false.
func (d StringDomain) IterateStrings(f func(string) bool) {
	if d.DFA == nil {
		return
	}
	var walk func(state, prefix string, remaining int) bool
	walk = func(state, prefix string, remaining int) bool {
		if remaining == 0 {
			if d.DFA.AcceptingStates[state] {
				return f(prefix)
			}
			return true
		}
		trans := d.DFA.TransitionTable[state]
		for b := 0; b < 256; b++ {
			next, ok := trans[b]
			if !ok {
				continue
			}
			if !walk(next, prefix+string([]byte{byte(b)}), remaining-1) {
				return false
			}
		}
		return true
	}
	for length := 0; length <= d.MaxLen; length++ {
		if !walk(d.DFA.InitialState, "", length) {
			return
		}
	}
}
