// Package networktest provides small networks shared by tests across packages.
package networktest

import (
	"testing"

	"github.com/adalundhe/varelim/core/factor"
	"github.com/adalundhe/varelim/core/network"
)

// Bool are the state labels used by every fixture here.
var Bool = []string{"true", "false"}

// Spec is a node definition whose CPT is given as entries.
type Spec struct {
	Name    string
	Parents []string
	Entries []network.CPTEntry
}

// Build constructs a network of boolean variables from specs.
func Build(t testing.TB, name string, specs ...Spec) *network.Network {
	t.Helper()
	nodes := make([]network.Node, 0, len(specs))
	for _, s := range specs {
		cpt, err := network.NewCPT(s.Name, Bool, s.Parents, s.Entries)
		if err != nil {
			t.Fatalf("cpt %s: %v", s.Name, err)
		}
		nodes = append(nodes, network.Node{Name: s.Name, States: Bool, Parents: s.Parents, CPT: cpt})
	}
	n, err := network.New(name, nodes)
	if err != nil {
		t.Fatalf("network %s: %v", name, err)
	}
	return n
}

// Root is a CPT entry for a parentless boolean node with P(true) = p.
func Root(p float64) []network.CPTEntry {
	return []network.CPTEntry{{Probs: []float64{p, 1 - p}}}
}

// Given is a CPT entry conditioned on the parent assignment pairs.
func Given(p float64, pairs ...string) network.CPTEntry {
	a := make(factor.Assignment, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		a[pairs[i]] = pairs[i+1]
	}
	return network.CPTEntry{Given: a, Probs: []float64{p, 1 - p}}
}

// TwoNode is A -> B with P(A)=0.3, P(B|A)=0.8 and P(B|!A)=0.1.
func TwoNode(t testing.TB) *network.Network {
	return Build(t, "two-node",
		Spec{Name: "A", Entries: Root(0.3)},
		Spec{Name: "B", Parents: []string{"A"}, Entries: []network.CPTEntry{
			Given(0.8, "A", "true"),
			Given(0.1, "A", "false"),
		}},
	)
}

// Sprinkler is the Cloudy/Sprinkler/Rain/WetGrass network. Its moral graph
// has a loop, so eliminating a variable can join factors sharing more than
// one variable.
func Sprinkler(t testing.TB) *network.Network {
	return Build(t, "sprinkler",
		Spec{Name: "Cloudy", Entries: Root(0.5)},
		Spec{Name: "Sprinkler", Parents: []string{"Cloudy"}, Entries: []network.CPTEntry{
			Given(0.1, "Cloudy", "true"),
			Given(0.5, "Cloudy", "false"),
		}},
		Spec{Name: "Rain", Parents: []string{"Cloudy"}, Entries: []network.CPTEntry{
			Given(0.8, "Cloudy", "true"),
			Given(0.2, "Cloudy", "false"),
		}},
		Spec{Name: "WetGrass", Parents: []string{"Sprinkler", "Rain"}, Entries: []network.CPTEntry{
			Given(0.99, "Sprinkler", "true", "Rain", "true"),
			Given(0.9, "Sprinkler", "true", "Rain", "false"),
			Given(0.9, "Sprinkler", "false", "Rain", "true"),
			Given(0.0, "Sprinkler", "false", "Rain", "false"),
		}},
	)
}

// Joint computes P(query | evidence) by enumerating the full joint
// distribution. It is exponential in the number of variables and only meant
// as ground truth for small networks.
func Joint(n *network.Network, query string, evidence map[string]string) map[string]float64 {
	nodes := n.Topological()
	out := make(map[string]float64)
	assignment := make(factor.Assignment, len(nodes))

	var walk func(i int, p float64)
	walk = func(i int, p float64) {
		if p == 0 {
			return
		}
		if i == len(nodes) {
			out[assignment[query]] += p
			return
		}
		v := nodes[i]
		for _, s := range n.Values(v) {
			if obs, ok := evidence[v]; ok && obs != s {
				continue
			}
			assignment[v] = s
			w, _ := n.CPT(v).Weight(assignment)
			walk(i+1, p*w)
		}
		delete(assignment, v)
	}
	walk(0, 1)

	total := 0.0
	for _, p := range out {
		total += p
	}
	for s := range out {
		out[s] /= total
	}
	return out
}
