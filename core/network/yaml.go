package network

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// The fixture format is a compact YAML description of a network:
//
//	name: alarm
//	nodes:
//	  - name: Burglary
//	    states: [True, False]
//	    cpt:
//	      - probs: [0.01, 0.99]
//	  - name: Alarm
//	    states: [True, False]
//	    parents: [Burglary]
//	    cpt:
//	      - given: {Burglary: "True"}
//	        probs: [0.94, 0.06]
//	      - given: {Burglary: "False"}
//	        probs: [0.001, 0.999]

type document struct {
	Name  string    `yaml:"name"`
	Nodes []nodeDoc `yaml:"nodes"`
}

type nodeDoc struct {
	Name    string     `yaml:"name"`
	States  []string   `yaml:"states"`
	Parents []string   `yaml:"parents"`
	CPT     []entryDoc `yaml:"cpt"`
}

type entryDoc struct {
	Given map[string]string `yaml:"given"`
	Probs []float64         `yaml:"probs"`
}

// Decode reads a network in the YAML fixture format.
func Decode(r io.Reader) (*Network, error) {
	var doc document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode network: %w", err)
	}

	nodes := make([]Node, 0, len(doc.Nodes))
	for _, nd := range doc.Nodes {
		entries := make([]CPTEntry, len(nd.CPT))
		for i, e := range nd.CPT {
			entries[i] = CPTEntry{Given: e.Given, Probs: e.Probs}
		}
		cpt, err := NewCPT(nd.Name, nd.States, nd.Parents, entries)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, Node{
			Name:    nd.Name,
			States:  nd.States,
			Parents: nd.Parents,
			CPT:     cpt,
		})
	}
	return New(doc.Name, nodes)
}

// Load reads a network fixture from path.
func Load(path string) (*Network, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	n, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return n, nil
}
