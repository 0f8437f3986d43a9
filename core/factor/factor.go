// Package factor implements tabular factors over discrete variables and the
// algebra used by variable elimination: product, reduction and marginalization.
package factor

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"
)

// =============================================================================
// Assignment
// =============================================================================

// Assignment maps variable names to state labels.
type Assignment map[string]string

// Clone returns a copy of the assignment.
func (a Assignment) Clone() Assignment {
	out := make(Assignment, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// Row is a single table entry: a full assignment of the factor's scope and
// its weight.
type Row struct {
	Assignment Assignment
	Weight     float64
}

// =============================================================================
// Factor
// =============================================================================

// Factor is a table from joint assignments of its scope to non-negative
// weights. The scope is kept sorted by variable name, which is the canonical
// column order of the table. Rows keep the order in which they were produced.
//
// Factors are never mutated after construction; every operator returns a new
// Factor.
type Factor struct {
	scope []string
	rows  []tableRow
	index map[string]int
}

type tableRow struct {
	states []string
	weight float64
}

// New builds a factor over scope from the given rows. Every row must assign
// exactly the scope's variables, weights must be finite and non-negative, and
// no assignment may appear twice.
func New(scope []string, rows []Row) (*Factor, error) {
	canonical, err := canonicalScope(scope)
	if err != nil {
		return nil, err
	}

	f := newEmpty(canonical, len(rows))
	for i, r := range rows {
		if len(r.Assignment) != len(canonical) {
			return nil, malformed("new", "", fmt.Sprintf("row %d assigns %d variables, scope has %d", i, len(r.Assignment), len(canonical)))
		}
		states := make([]string, len(canonical))
		for j, v := range canonical {
			s, ok := r.Assignment[v]
			if !ok {
				return nil, malformed("new", v, fmt.Sprintf("row %d does not assign variable", i))
			}
			states[j] = s
		}
		if math.IsNaN(r.Weight) || math.IsInf(r.Weight, 0) || r.Weight < 0 {
			return nil, malformed("new", "", fmt.Sprintf("row %d has invalid weight %v", i, r.Weight))
		}
		if !f.add(states, r.Weight) {
			return nil, malformed("new", "", fmt.Sprintf("row %d duplicates assignment %v", i, r.Assignment))
		}
	}
	return f, nil
}

func canonicalScope(scope []string) ([]string, error) {
	out := append([]string(nil), scope...)
	sort.Strings(out)
	for i := 1; i < len(out); i++ {
		if out[i] == out[i-1] {
			return nil, malformed("new", out[i], "variable repeated in scope")
		}
	}
	return out, nil
}

func newEmpty(scope []string, capacity int) *Factor {
	return &Factor{
		scope: scope,
		rows:  make([]tableRow, 0, capacity),
		index: make(map[string]int, capacity),
	}
}

// add appends a row; it reports false if the assignment is already present.
func (f *Factor) add(states []string, weight float64) bool {
	key := encodeKey(states)
	if _, exists := f.index[key]; exists {
		return false
	}
	f.index[key] = len(f.rows)
	f.rows = append(f.rows, tableRow{states: states, weight: weight})
	return true
}

// Scope returns the factor's variables in canonical (sorted) order.
func (f *Factor) Scope() []string {
	return append([]string(nil), f.scope...)
}

// Has reports whether v is in the factor's scope.
func (f *Factor) Has(v string) bool {
	return f.position(v) >= 0
}

func (f *Factor) position(v string) int {
	i := sort.SearchStrings(f.scope, v)
	if i < len(f.scope) && f.scope[i] == v {
		return i
	}
	return -1
}

// Len returns the number of rows in the table.
func (f *Factor) Len() int {
	return len(f.rows)
}

// Rows returns copies of the table rows in table order.
func (f *Factor) Rows() []Row {
	out := make([]Row, len(f.rows))
	for i, r := range f.rows {
		out[i] = Row{Assignment: f.assignment(r.states), Weight: r.weight}
	}
	return out
}

func (f *Factor) assignment(states []string) Assignment {
	a := make(Assignment, len(f.scope))
	for i, v := range f.scope {
		a[v] = states[i]
	}
	return a
}

// Weight returns the weight of the row matching the projection of a onto the
// factor's scope. Variables of a outside the scope are ignored.
func (f *Factor) Weight(a Assignment) (float64, bool) {
	states := make([]string, len(f.scope))
	for i, v := range f.scope {
		s, ok := a[v]
		if !ok {
			return 0, false
		}
		states[i] = s
	}
	idx, ok := f.index[encodeKey(states)]
	if !ok {
		return 0, false
	}
	return f.rows[idx].weight, true
}

// States returns the distinct states of v present in the table, in order of
// first appearance.
func (f *Factor) States(v string) []string {
	pos := f.position(v)
	if pos < 0 {
		return nil
	}
	return f.distinct(pos)
}

func (f *Factor) distinct(pos int) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, r := range f.rows {
		s := r.states[pos]
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// Total returns the sum of all weights.
func (f *Factor) Total() float64 {
	if len(f.rows) == 0 {
		return 0
	}
	return floats.Sum(f.weights())
}

func (f *Factor) weights() []float64 {
	w := make([]float64, len(f.rows))
	for i, r := range f.rows {
		w[i] = r.weight
	}
	return w
}

// Copy returns an independent copy of the factor.
func (f *Factor) Copy() *Factor {
	out := newEmpty(f.Scope(), len(f.rows))
	for _, r := range f.rows {
		out.add(append([]string(nil), r.states...), r.weight)
	}
	return out
}

// String returns a short description such as f(Alarm,Burglary)[4].
func (f *Factor) String() string {
	return "f(" + strings.Join(f.scope, ",") + ")[" + strconv.Itoa(len(f.rows)) + "]"
}

// encodeKey length-prefixes each state so labels containing separators
// cannot collide.
func encodeKey(states []string) string {
	var b strings.Builder
	for _, s := range states {
		b.WriteString(strconv.Itoa(len(s)))
		b.WriteByte(':')
		b.WriteString(s)
	}
	return b.String()
}
