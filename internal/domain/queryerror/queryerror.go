// Package queryerror defines the typed error every C1/C2/C3 operation can
// produce, so callers can branch on Kind with errors.As rather than
// string-matching.
package queryerror

import "fmt"

// Kind classifies why a query-layer operation failed.
type Kind string

const (
	// Transport means the primary source is unreachable; triggers fallback.
	Transport Kind = "transport"
	// Semantic means the source replied with a structured error; triggers fallback.
	Semantic Kind = "semantic"
	// Decode means a record could not be parsed; the offending record is skipped.
	Decode Kind = "decode"
	// InvalidInput means the caller supplied a malformed value; surfaced synchronously.
	InvalidInput Kind = "invalid_input"
	// Cancelled means the context was cancelled; propagated unchanged.
	Cancelled Kind = "cancelled"
)

// Error is the typed error carried across C1/C2/C3 boundaries.
type Error struct {
	Kind    Kind
	Op      string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an Error of the given kind.
func New(op string, kind Kind, err error) *Error {
	return &Error{Op: op, Kind: kind, Err: err}
}

// TriggersFallback reports whether a router should fall back to the
// secondary source upon seeing this kind.
func (k Kind) TriggersFallback() bool {
	return k == Transport || k == Semantic
}
