package factor

import (
	"fmt"
)

// =============================================================================
// Product
// =============================================================================

// Product multiplies two factors. The result is defined over the union of
// both scopes and rows are joined on every variable the factors share. Rows
// are emitted in a's table order, then b's table order within each match.
//
// Factors that share no variable cannot be joined and yield a
// MalformedFactorError.
func Product(a, b *Factor) (*Factor, error) {
	shared := intersect(a.scope, b.scope)
	if len(shared) == 0 {
		return nil, malformed("product", "", fmt.Sprintf("%s and %s share no variable", a, b))
	}

	scope := union(a.scope, b.scope)
	sources := make([]column, len(scope))
	for i, v := range scope {
		if p := a.position(v); p >= 0 {
			sources[i] = column{left: true, pos: p}
		} else {
			sources[i] = column{left: false, pos: b.position(v)}
		}
	}

	aKey := positionsOf(a, shared)
	bKey := positionsOf(b, shared)

	buckets := make(map[string][]int, len(b.rows))
	for i, r := range b.rows {
		k := encodeKey(project(r.states, bKey))
		buckets[k] = append(buckets[k], i)
	}

	out := newEmpty(scope, len(a.rows))
	for _, ra := range a.rows {
		for _, j := range buckets[encodeKey(project(ra.states, aKey))] {
			rb := b.rows[j]
			states := make([]string, len(scope))
			for i, src := range sources {
				if src.left {
					states[i] = ra.states[src.pos]
				} else {
					states[i] = rb.states[src.pos]
				}
			}
			out.add(states, ra.weight*rb.weight)
		}
	}
	return out, nil
}

// ProductAll folds Product over factors from left to right. A single factor
// is returned as a copy.
func ProductAll(factors []*Factor) (*Factor, error) {
	if len(factors) == 0 {
		return nil, malformed("product", "", "no factors to combine")
	}
	acc := factors[0].Copy()
	for _, f := range factors[1:] {
		next, err := Product(acc, f)
		if err != nil {
			return nil, err
		}
		acc = next
	}
	return acc, nil
}

type column struct {
	left bool
	pos  int
}

// =============================================================================
// Reduction
// =============================================================================

// Reduce keeps only the rows where v is in state. The scope is unchanged: v
// stays as a column with a single value. Reducing an already reduced factor on
// the same variable and state returns an equal factor.
func Reduce(f *Factor, v, state string) (*Factor, error) {
	pos := f.position(v)
	if pos < 0 {
		return nil, malformed("reduce", v, fmt.Sprintf("not in scope of %s", f))
	}

	out := newEmpty(f.Scope(), len(f.rows))
	for _, r := range f.rows {
		if r.states[pos] != state {
			continue
		}
		out.add(append([]string(nil), r.states...), r.weight)
	}
	return out, nil
}

// =============================================================================
// Marginalization
// =============================================================================

// Marginalize sums v out of f. The result covers the Cartesian product of the
// distinct states observed for each remaining variable, enumerated by
// variable name and then by first appearance of each state; combinations
// absent from f get weight zero. Marginalizing the last variable of a factor
// yields a scalar factor with an empty scope and a single row.
func Marginalize(f *Factor, v string) (*Factor, error) {
	pos := f.position(v)
	if pos < 0 {
		return nil, malformed("marginalize", v, fmt.Sprintf("not in scope of %s", f))
	}

	keep := make([]int, 0, len(f.scope)-1)
	scope := make([]string, 0, len(f.scope)-1)
	for i, name := range f.scope {
		if i == pos {
			continue
		}
		keep = append(keep, i)
		scope = append(scope, name)
	}

	sums := make(map[string]float64, len(f.rows))
	for _, r := range f.rows {
		sums[encodeKey(project(r.states, keep))] += r.weight
	}

	domains := make([][]string, len(keep))
	for i, p := range keep {
		domains[i] = f.distinct(p)
	}

	out := newEmpty(scope, len(sums))
	forEachCombination(domains, func(states []string) {
		out.add(states, sums[encodeKey(states)])
	})
	return out, nil
}

// forEachCombination calls fn once per element of the Cartesian product of
// domains, varying the last domain fastest. fn receives a fresh slice. An
// empty domains list yields exactly one empty combination; an empty domain
// yields none.
func forEachCombination(domains [][]string, fn func([]string)) {
	for _, d := range domains {
		if len(d) == 0 {
			return
		}
	}

	idx := make([]int, len(domains))
	for {
		states := make([]string, len(domains))
		for i, d := range domains {
			states[i] = d[idx[i]]
		}
		fn(states)

		i := len(domains) - 1
		for ; i >= 0; i-- {
			idx[i]++
			if idx[i] < len(domains[i]) {
				break
			}
			idx[i] = 0
		}
		if i < 0 {
			return
		}
	}
}

// =============================================================================
// Scope helpers
// =============================================================================

// intersect and union operate on sorted scopes and return sorted results.
func intersect(a, b []string) []string {
	var out []string
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			out = append(out, a[i])
			i++
			j++
		case a[i] < b[j]:
			i++
		default:
			j++
		}
	}
	return out
}

func union(a, b []string) []string {
	out := make([]string, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) || j < len(b) {
		switch {
		case j >= len(b) || (i < len(a) && a[i] < b[j]):
			out = append(out, a[i])
			i++
		case i >= len(a) || b[j] < a[i]:
			out = append(out, b[j])
			j++
		default:
			out = append(out, a[i])
			i++
			j++
		}
	}
	return out
}

func positionsOf(f *Factor, vars []string) []int {
	out := make([]int, len(vars))
	for i, v := range vars {
		out[i] = f.position(v)
	}
	return out
}

func project(states []string, positions []int) []string {
	out := make([]string, len(positions))
	for i, p := range positions {
		out[i] = states[p]
	}
	return out
}
