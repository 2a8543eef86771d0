// Package grammar stores execution traces as small grammars whose expansion is
// the recorded symbol sequence, and answers positional queries without
// expanding repeated rules.
package grammar

import "errors"

var (
	// ErrMalformedTrace indicates that a byte encoding is truncated, has the
	// wrong symbol type, or references rules that do not exist yet.
	ErrMalformedTrace = errors.New("malformed trace")

	// ErrIndexOutOfRange indicates that a position lies outside [0, Len()).
	ErrIndexOutOfRange = errors.New("index out of range")
)
