package subscription

import "errors"

// MaxLen is the maximum length, in bytes, of a key or a node name.
// Mirrors uWSGI's subscription slot's 8-bit length fields.
const MaxLen = 255

var (
	// ErrKeyTooLong is returned by Announce when len(key) > MaxLen.
	ErrKeyTooLong = errors.New("subscription: key too long")
	// ErrNameTooLong is returned by Announce when len(name) > MaxLen.
	ErrNameTooLong = errors.New("subscription: name too long")
	// ErrPatternCompile is returned by Announce when a pattern-mode key
	// fails to compile as a regular expression.
	ErrPatternCompile = errors.New("subscription: regexp compile failed")
)
