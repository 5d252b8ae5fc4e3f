package semgen

import "strings"

// Symbol is either a nonterminal (angle-bracketed name) or a terminal
// (literal string). The zero value is not a valid Symbol; use
// NewNonterminal or NewTerminal.
type Symbol struct {
	name       string
	terminal   bool
	isSentinel bool // true only for the reserved "empty" terminal
}

// NewNonterminal returns the nonterminal symbol named name. name is
// stored without its angle brackets; String() re-adds them.
func NewNonterminal(name string) Symbol {
	name = strings.TrimPrefix(strings.TrimSuffix(name, ">"), "<")
	return Symbol{name: name, terminal: false}
}

// NewTerminal returns the terminal symbol whose literal text is lit.
func NewTerminal(lit string) Symbol {
	return Symbol{name: lit, terminal: true}
}

// emptyTerminal is the literal empty-string terminal, used as the
// right-hand side of epsilon productions.
var emptyTerminal = Symbol{name: "", terminal: true, isSentinel: true}

// IsNonterminal reports whether s names a nonterminal.
func (s Symbol) IsNonterminal() bool { return !s.terminal }

// IsTerminal reports whether s is a literal terminal.
func (s Symbol) IsTerminal() bool { return s.terminal }

// IsEmpty reports whether s is the reserved epsilon terminal.
func (s Symbol) IsEmpty() bool { return s.isSentinel }

// Name returns the nonterminal's bare name (no angle brackets), or the
// terminal's literal text.
func (s Symbol) Name() string { return s.name }

// String renders s the way it would appear in a grammar: "<name>" for
// nonterminals, the literal text (quoted) for terminals.
func (s Symbol) String() string {
	if s.terminal {
		return `"` + s.name + `"`
	}
	return "<" + s.name + ">"
}

// Equal reports structural equality: same kind, same name/text.
func (s Symbol) Equal(other Symbol) bool {
	return s.terminal == other.terminal && s.name == other.name
}
