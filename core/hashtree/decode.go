package hashtree

import "fmt"

// MaxDepth is the maximum nesting of nodes accepted by the decoders.
const MaxDepth = 128

// DecodeError is returned when the bytes of a tree or a certificate are
// malformed.
type DecodeError struct {
	Reason string
	Err    error
}

// NewDecodeError returns a decoding error for the reason.
func NewDecodeError(format string, args ...interface{}) *DecodeError {
	return &DecodeError{Reason: fmt.Sprintf(format, args...)}
}

// Error implements error.
func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed tree: %s: %v", e.Reason, e.Err)
	}

	return "malformed tree: " + e.Reason
}

// Unwrap returns the underlying error, if any.
func (e *DecodeError) Unwrap() error {
	return e.Err
}
