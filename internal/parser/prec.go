package parser

// PrecTable maps a binary-operator character to its precedence. It is
// shared mutable state between the parser and the emitter: `binary`
// definitions install into it before their own body is parsed, and the
// emitter retracts the installation when a definition fails to emit.
type PrecTable map[byte]int

// DefaultPrecedence returns the standard operator table. 1 is the lowest
// precedence. Assignment sits below the comparisons so `y = a < b` groups
// as `y = (a < b)`.
func DefaultPrecedence() PrecTable {
	return PrecTable{
		'=': 2,
		'<': 10,
		'>': 10,
		'+': 20,
		'-': 20,
		'*': 40,
		'/': 50,
	}
}

// Install registers op at prec. Install and Retract exist so the emitter
// can undo a user-operator registration without reaching into the map.
func (t PrecTable) Install(op byte, prec int) { t[op] = prec }

func (t PrecTable) Retract(op byte) { delete(t, op) }
