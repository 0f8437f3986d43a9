// Package ordering chooses the order in which variable elimination processes
// variables. An Order is either an explicit sequence or a heuristic computed
// once from the network's static structure.
package ordering

import (
	"errors"
	"fmt"
	"sort"

	"github.com/adalundhe/varelim/core/network"
)

// Func computes a total order of a network's variables.
type Func func(n *network.Network) []string

// =============================================================================
// Order
// =============================================================================

// Order is an elimination order: either an explicit list of variables or a
// heuristic. The zero value is an empty explicit order.
type Order struct {
	name      string
	explicit  []string
	heuristic Func
}

// ExplicitName is the name reported by explicit orders.
const ExplicitName = "explicit"

// Explicit returns an order that processes vars as given.
func Explicit(vars ...string) Order {
	return Order{name: ExplicitName, explicit: append([]string(nil), vars...)}
}

// Heuristic returns an order computed by fn when resolved.
func Heuristic(name string, fn Func) Order {
	return Order{name: name, heuristic: fn}
}

// Name returns the heuristic name, or "explicit".
func (o Order) Name() string {
	if o.name == "" {
		return ExplicitName
	}
	return o.name
}

// IsHeuristic reports whether the order is computed from the network.
func (o Order) IsHeuristic() bool {
	return o.heuristic != nil
}

// Resolve returns the concrete sequence for n.
func (o Order) Resolve(n *network.Network) []string {
	if o.heuristic != nil {
		return o.heuristic(n)
	}
	return append([]string(nil), o.explicit...)
}

func (o Order) String() string {
	if o.heuristic != nil {
		return o.Name()
	}
	return fmt.Sprintf("%s%v", ExplicitName, o.explicit)
}

// =============================================================================
// Heuristics
// =============================================================================

// NetworkOrder eliminates variables in declaration order.
func NetworkOrder(n *network.Network) []string {
	return n.Nodes()
}

// LeastIncomingArcsFirst orders variables by ascending parent count, keeping
// declaration order among ties.
func LeastIncomingArcsFirst(n *network.Network) []string {
	return stableBy(n.Nodes(), func(v string) int {
		return len(n.Parents(v))
	})
}

// FewestContainingFactorsFirst orders variables by the number of CPTs whose
// scope contains them, keeping declaration order among ties.
func FewestContainingFactorsFirst(n *network.Network) []string {
	counts := make(map[string]int, n.Len())
	for _, cpt := range n.Probabilities() {
		for _, v := range cpt.Scope() {
			counts[v]++
		}
	}
	return stableBy(n.Nodes(), func(v string) int {
		return counts[v]
	})
}

func stableBy(nodes []string, key func(string) int) []string {
	keys := make(map[string]int, len(nodes))
	for _, v := range nodes {
		keys[v] = key(v)
	}
	sort.SliceStable(nodes, func(i, j int) bool {
		return keys[nodes[i]] < keys[nodes[j]]
	})
	return nodes
}

// =============================================================================
// Registry
// =============================================================================

const (
	// NameNetwork selects NetworkOrder.
	NameNetwork = "network"
	// NameLeastIncomingArcs selects LeastIncomingArcsFirst.
	NameLeastIncomingArcs = "least-incoming-arcs"
	// NameFewestFactors selects FewestContainingFactorsFirst.
	NameFewestFactors = "fewest-factors"
)

// ErrUnknownHeuristic is returned by ByName for unregistered names.
var ErrUnknownHeuristic = errors.New("unknown ordering heuristic")

var registry = map[string]Func{
	NameNetwork:           NetworkOrder,
	NameLeastIncomingArcs: LeastIncomingArcsFirst,
	NameFewestFactors:     FewestContainingFactorsFirst,
}

var aliases = map[string]string{
	"least-incoming": NameLeastIncomingArcs,
	"fewest":         NameFewestFactors,
}

// ByName returns the registered heuristic called name.
func ByName(name string) (Order, error) {
	if canonical, ok := aliases[name]; ok {
		name = canonical
	}
	fn, ok := registry[name]
	if !ok {
		return Order{}, fmt.Errorf("%w: %q (known: %v)", ErrUnknownHeuristic, name, Names())
	}
	return Heuristic(name, fn), nil
}

// Names returns the registered heuristic names, sorted.
func Names() []string {
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
