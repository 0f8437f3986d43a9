package factor

import (
	"errors"
	"fmt"
)

// ErrMalformedFactor is the sentinel wrapped by every MalformedFactorError.
var ErrMalformedFactor = errors.New("malformed factor")

// MalformedFactorError reports factors whose scopes cannot be aligned the way
// an operator requires, or tables that are not valid factors.
type MalformedFactorError struct {
	// Op is the operator that rejected its input.
	Op string
	// Variable is the variable involved, if any.
	Variable string
	// Reason describes the violation.
	Reason string
}

func (e *MalformedFactorError) Error() string {
	if e.Variable == "" {
		return fmt.Sprintf("%s: %s: %s", ErrMalformedFactor, e.Op, e.Reason)
	}
	return fmt.Sprintf("%s: %s %q: %s", ErrMalformedFactor, e.Op, e.Variable, e.Reason)
}

func (e *MalformedFactorError) Unwrap() error {
	return ErrMalformedFactor
}

func malformed(op, variable, reason string) error {
	return &MalformedFactorError{Op: op, Variable: variable, Reason: reason}
}
