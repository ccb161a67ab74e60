package dice

import "errors"

var (
	// ErrInvalidGeometry reports a face-normal table that cannot produce a
	// definite up face. It indicates a configuration bug, not a runtime
	// condition, and must not be swallowed.
	ErrInvalidGeometry = errors.New("invalid die geometry")

	ErrUnknownShape = errors.New("unknown die shape")
)
