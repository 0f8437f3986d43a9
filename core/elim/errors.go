package elim

import (
	"errors"
	"fmt"
)

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrInvalidQuery indicates the query variable is not in the network.
	ErrInvalidQuery = errors.New("invalid query")

	// ErrInvalidEvidence indicates evidence names an unknown variable or an
	// undeclared state.
	ErrInvalidEvidence = errors.New("invalid evidence")

	// ErrDegenerateDistribution indicates the evidence has probability zero
	// under the model, so the posterior cannot be normalized.
	ErrDegenerateDistribution = errors.New("degenerate distribution")
)

// InvalidQueryError reports a query variable absent from the network.
type InvalidQueryError struct {
	Query string
}

func (e *InvalidQueryError) Error() string {
	return fmt.Sprintf("%s: variable %q is not in the network", ErrInvalidQuery, e.Query)
}

func (e *InvalidQueryError) Unwrap() error { return ErrInvalidQuery }

// InvalidEvidenceError reports an observation the network cannot represent.
type InvalidEvidenceError struct {
	Variable string
	State    string
	// UnknownVariable is true when Variable itself is not in the network;
	// otherwise State is not one of its declared states.
	UnknownVariable bool
}

func (e *InvalidEvidenceError) Error() string {
	if e.UnknownVariable {
		return fmt.Sprintf("%s: variable %q is not in the network", ErrInvalidEvidence, e.Variable)
	}
	return fmt.Sprintf("%s: %q is not a state of %q", ErrInvalidEvidence, e.State, e.Variable)
}

func (e *InvalidEvidenceError) Unwrap() error { return ErrInvalidEvidence }

// DegenerateDistributionError reports a zero normalization constant.
type DegenerateDistributionError struct {
	Query    string
	Evidence map[string]string
}

func (e *DegenerateDistributionError) Error() string {
	return fmt.Sprintf("%s: evidence %v has zero probability for query %q", ErrDegenerateDistribution, e.Evidence, e.Query)
}

func (e *DegenerateDistributionError) Unwrap() error { return ErrDegenerateDistribution }
