package subscription

// Mode selects how a pool's key is matched against a lookup key.
type Mode int

const (
	// Literal compares the key byte-for-byte.
	Literal Mode = iota
	// Pattern compiles the key as a regular expression and matches against it.
	Pattern
)

func (m Mode) String() string {
	if m == Pattern {
		return "pattern"
	}
	return "literal"
}
