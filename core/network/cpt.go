package network

import (
	"fmt"

	"github.com/adalundhe/varelim/core/factor"
)

// CPTEntry is one column of a conditional probability table: the parent
// assignment it is conditioned on and a probability per node state, aligned
// with the node's declared states.
type CPTEntry struct {
	Given factor.Assignment
	Probs []float64
}

// NewCPT builds the factor for node from per-parent-assignment entries. A
// root node has a single entry with an empty Given.
func NewCPT(node string, states []string, parents []string, entries []CPTEntry) (*factor.Factor, error) {
	scope := append([]string{node}, parents...)
	rows := make([]factor.Row, 0, len(entries)*len(states))

	for i, e := range entries {
		if len(e.Probs) != len(states) {
			return nil, fmt.Errorf("%w: CPT of %q entry %d has %d probabilities for %d states", ErrInvalidNetwork, node, i, len(e.Probs), len(states))
		}
		if len(e.Given) != len(parents) {
			return nil, fmt.Errorf("%w: CPT of %q entry %d conditions on %d variables, node has %d parents", ErrInvalidNetwork, node, i, len(e.Given), len(parents))
		}
		for j, s := range states {
			a := e.Given.Clone()
			a[node] = s
			rows = append(rows, factor.Row{Assignment: a, Weight: e.Probs[j]})
		}
	}

	f, err := factor.New(scope, rows)
	if err != nil {
		return nil, fmt.Errorf("CPT of %q: %w", node, err)
	}
	return f, nil
}
