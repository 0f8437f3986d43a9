// Package network holds the read-only Bayesian network consumed by the
// elimination engine: variables, their states, parent sets and conditional
// probability tables.
package network

import (
	"errors"
	"fmt"
	"sort"

	"github.com/adalundhe/varelim/core/factor"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// ErrInvalidNetwork is wrapped by every validation failure in New.
var ErrInvalidNetwork = errors.New("invalid network")

// Node describes one variable of a network.
type Node struct {
	// Name uniquely identifies the variable.
	Name string
	// States are the variable's state labels.
	States []string
	// Parents are the variables this one is conditioned on.
	Parents []string
	// CPT is the conditional probability table over Name and Parents.
	CPT *factor.Factor
}

// Network is an immutable Bayesian network. It is safe to share across
// goroutines; nothing in this module mutates a Network after New returns.
type Network struct {
	name          string
	nodes         []string
	values        map[string][]string
	parents       map[string][]string
	probabilities map[string]*factor.Factor
	topological   []string
}

// New validates nodes and builds a network. Node order is preserved and is
// the order ordering heuristics use to break ties.
//
// Each CPT must be defined over exactly the node and its parents, must only
// use declared states, and the parent relation must be acyclic. Whether each
// CPT column sums to one is not checked.
func New(name string, nodes []Node) (*Network, error) {
	n := &Network{
		name:          name,
		nodes:         make([]string, 0, len(nodes)),
		values:        make(map[string][]string, len(nodes)),
		parents:       make(map[string][]string, len(nodes)),
		probabilities: make(map[string]*factor.Factor, len(nodes)),
	}

	for _, node := range nodes {
		if err := n.addNode(node); err != nil {
			return nil, err
		}
	}
	for _, node := range nodes {
		if err := n.checkNode(node); err != nil {
			return nil, err
		}
	}

	order, err := n.sortTopologically()
	if err != nil {
		return nil, err
	}
	n.topological = order
	return n, nil
}

func (n *Network) addNode(node Node) error {
	if node.Name == "" {
		return fmt.Errorf("%w: node with empty name", ErrInvalidNetwork)
	}
	if _, exists := n.values[node.Name]; exists {
		return fmt.Errorf("%w: duplicate node %q", ErrInvalidNetwork, node.Name)
	}
	if len(node.States) == 0 {
		return fmt.Errorf("%w: node %q has no states", ErrInvalidNetwork, node.Name)
	}
	if dup := firstDuplicate(node.States); dup != "" {
		return fmt.Errorf("%w: node %q repeats state %q", ErrInvalidNetwork, node.Name, dup)
	}
	if dup := firstDuplicate(node.Parents); dup != "" {
		return fmt.Errorf("%w: node %q repeats parent %q", ErrInvalidNetwork, node.Name, dup)
	}

	n.nodes = append(n.nodes, node.Name)
	n.values[node.Name] = append([]string(nil), node.States...)
	n.parents[node.Name] = append([]string(nil), node.Parents...)
	n.probabilities[node.Name] = node.CPT
	return nil
}

func (n *Network) checkNode(node Node) error {
	for _, p := range node.Parents {
		if p == node.Name {
			return fmt.Errorf("%w: node %q is its own parent", ErrInvalidNetwork, node.Name)
		}
		if _, ok := n.values[p]; !ok {
			return fmt.Errorf("%w: node %q has undeclared parent %q", ErrInvalidNetwork, node.Name, p)
		}
	}

	cpt := node.CPT
	if cpt == nil {
		return fmt.Errorf("%w: node %q has no CPT", ErrInvalidNetwork, node.Name)
	}

	want := append([]string{node.Name}, node.Parents...)
	sort.Strings(want)
	if got := cpt.Scope(); !equalStrings(got, want) {
		return fmt.Errorf("%w: CPT of %q is over %v, want %v", ErrInvalidNetwork, node.Name, got, want)
	}

	for _, v := range want {
		for _, s := range cpt.States(v) {
			if !n.HasState(v, s) {
				return fmt.Errorf("%w: CPT of %q uses undeclared state %q of %q", ErrInvalidNetwork, node.Name, s, v)
			}
		}
	}
	return nil
}

// sortTopologically rejects cycles and returns parents-before-children order,
// breaking ties by declaration order.
func (n *Network) sortTopologically() ([]string, error) {
	ids := make(map[string]int64, len(n.nodes))
	g := simple.NewDirectedGraph()
	for i, name := range n.nodes {
		ids[name] = int64(i)
		g.AddNode(simple.Node(int64(i)))
	}
	for _, child := range n.nodes {
		for _, p := range n.parents[child] {
			g.SetEdge(g.NewEdge(simple.Node(ids[p]), simple.Node(ids[child])))
		}
	}

	sorted, err := topo.SortStabilized(g, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: parent relation has a cycle: %v", ErrInvalidNetwork, err)
	}

	out := make([]string, len(sorted))
	for i, node := range sorted {
		out[i] = n.nodes[node.ID()]
	}
	return out, nil
}

// =============================================================================
// Accessors
// =============================================================================

// Name returns the network's name.
func (n *Network) Name() string { return n.name }

// Nodes returns the variable names in declaration order.
func (n *Network) Nodes() []string {
	return append([]string(nil), n.nodes...)
}

// Len returns the number of variables.
func (n *Network) Len() int { return len(n.nodes) }

// HasNode reports whether v is a variable of the network.
func (n *Network) HasNode(v string) bool {
	_, ok := n.values[v]
	return ok
}

// Values returns the declared states of v.
func (n *Network) Values(v string) []string {
	return append([]string(nil), n.values[v]...)
}

// HasState reports whether state is a declared state of v.
func (n *Network) HasState(v, state string) bool {
	for _, s := range n.values[v] {
		if s == state {
			return true
		}
	}
	return false
}

// Parents returns the parents of v.
func (n *Network) Parents(v string) []string {
	return append([]string(nil), n.parents[v]...)
}

// CPT returns the conditional probability table of v. Factors are immutable,
// so the returned value may be shared.
func (n *Network) CPT(v string) *factor.Factor {
	return n.probabilities[v]
}

// Probabilities returns the CPTs in declaration order.
func (n *Network) Probabilities() []*factor.Factor {
	out := make([]*factor.Factor, len(n.nodes))
	for i, v := range n.nodes {
		out[i] = n.probabilities[v]
	}
	return out
}

// Topological returns the variables with every parent before its children.
func (n *Network) Topological() []string {
	return append([]string(nil), n.topological...)
}

func firstDuplicate(values []string) string {
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			return v
		}
		seen[v] = struct{}{}
	}
	return ""
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
