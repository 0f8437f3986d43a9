// Package elim computes posterior distributions on a discrete Bayesian
// network by variable elimination.
//
// A run moves through INIT -> ELIMINATING(i) -> FINALIZE -> DONE. INIT
// validates the query and evidence, resolves the elimination order and copies
// the network's CPTs into a working set. Each elimination step gathers the
// working factors that mention the variable, multiplies them, then reduces
// the product if the variable is observed, sums it out if it is neither
// observed nor the query, or keeps it if it is the query. Variables the
// order never reached are then eliminated by name, so partial orders still
// give exact answers. FINALIZE multiplies whatever mentions the query and
// normalizes.
//
// Runs are single-threaded and own their working set. An Engine holds no
// per-run state, so one Engine may serve concurrent Run calls against the
// same network.
package elim

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/floats"

	"github.com/adalundhe/varelim/core/diagnostics"
	"github.com/adalundhe/varelim/core/factor"
	"github.com/adalundhe/varelim/core/network"
	"github.com/adalundhe/varelim/core/ordering"
)

// =============================================================================
// Results
// =============================================================================

// Distribution maps each query state to its posterior probability.
type Distribution map[string]float64

// States returns the distribution's states sorted by label.
func (d Distribution) States() []string {
	out := make([]string, 0, len(d))
	for s := range d {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Stats describes the cost of a run.
type Stats struct {
	// Steps counts elimination steps, including skipped variables and
	// leftovers the order never reached.
	Steps int
	// Skipped counts variables that no working factor mentioned.
	Skipped int
	// MaxScope is the largest scope of any factor produced.
	MaxScope int
	// MaxRows is the largest table of any factor produced.
	MaxRows  int
	Duration time.Duration
}

// Result is a completed run.
type Result struct {
	RunID        string
	Query        string
	Order        []string
	OrderName    string
	Distribution Distribution
	Stats        Stats
}

// =============================================================================
// Engine
// =============================================================================

// Engine runs variable elimination queries against one network.
type Engine struct {
	network *network.Network
	logger  *slog.Logger
	sink    diagnostics.Sink
	cache   *ordering.Cache
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger; nil keeps slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithSink sets the diagnostics sink.
func WithSink(sink diagnostics.Sink) Option {
	return func(e *Engine) {
		if sink != nil {
			e.sink = sink
		}
	}
}

// WithOrderCache memoises heuristic orders in cache.
func WithOrderCache(cache *ordering.Cache) Option {
	return func(e *Engine) {
		e.cache = cache
	}
}

// New creates an engine for n.
func New(n *network.Network, opts ...Option) *Engine {
	e := &Engine{
		network: n,
		logger:  slog.Default(),
		sink:    diagnostics.Nop{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Network returns the engine's network.
func (e *Engine) Network() *network.Network {
	return e.network
}

// Run returns P(query | evidence) computed by eliminating variables in order.
func (e *Engine) Run(query string, evidence map[string]string, order ordering.Order) (Distribution, error) {
	res, err := e.Solve(query, evidence, order)
	if err != nil {
		return nil, err
	}
	return res.Distribution, nil
}

// Solve is Run with the run's id, resolved order and cost statistics.
func (e *Engine) Solve(query string, evidence map[string]string, order ordering.Order) (*Result, error) {
	start := time.Now()
	r := &run{
		engine:    e,
		id:        uuid.NewString(),
		query:     query,
		evidence:  evidence,
		processed: make(map[string]struct{}),
		state:     StateInit,
	}

	dist, err := r.execute(order)
	r.stats.Duration = time.Since(start)
	observeRun(order.Name(), r.stats, err)

	if err != nil {
		e.sink.Record(diagnostics.Event{RunID: r.id, Kind: diagnostics.KindFailed, Query: query, Err: err})
		e.logger.Debug("elimination run failed", "run_id", r.id, "query", query, "error", err)
		return nil, err
	}

	e.logger.Debug("elimination run finished",
		"run_id", r.id,
		"query", query,
		"order", order.Name(),
		"steps", r.stats.Steps,
		"max_scope", r.stats.MaxScope,
		"duration", r.stats.Duration,
	)
	return &Result{
		RunID:        r.id,
		Query:        query,
		Order:        r.order,
		OrderName:    order.Name(),
		Distribution: dist,
		Stats:        r.stats,
	}, nil
}

// =============================================================================
// Run state machine
// =============================================================================

// State is the phase of a run.
type State int

const (
	// StateInit validates input, resolves the order and copies the CPTs.
	StateInit State = iota
	// StateEliminating processes the order one variable at a time.
	StateEliminating
	// StateFinalize multiplies and normalizes what remains.
	StateFinalize
	// StateDone means the distribution is ready.
	StateDone
)

var stateNames = map[State]string{
	StateInit:        "init",
	StateEliminating: "eliminating",
	StateFinalize:    "finalize",
	StateDone:        "done",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

type run struct {
	engine    *Engine
	id        string
	query     string
	evidence  map[string]string
	order     []string
	factors   []*factor.Factor
	processed map[string]struct{}
	state     State
	stats     Stats
}

func (r *run) execute(order ordering.Order) (Distribution, error) {
	if err := r.init(order); err != nil {
		return nil, err
	}

	r.transition(StateEliminating)
	for _, v := range r.order {
		if err := r.eliminate(v); err != nil {
			return nil, fmt.Errorf("eliminate %q: %w", v, err)
		}
	}
	for _, v := range r.leftovers() {
		if err := r.eliminate(v); err != nil {
			return nil, fmt.Errorf("eliminate leftover %q: %w", v, err)
		}
	}

	r.transition(StateFinalize)
	dist, err := r.finalize()
	if err != nil {
		return nil, err
	}
	r.transition(StateDone)
	return dist, nil
}

func (r *run) transition(next State) {
	r.engine.logger.Debug("elimination run state", "run_id", r.id, "from", r.state.String(), "to", next.String())
	r.state = next
}

func (r *run) init(order ordering.Order) error {
	n := r.engine.network
	if !n.HasNode(r.query) {
		return &InvalidQueryError{Query: r.query}
	}
	for _, v := range sortedKeys(r.evidence) {
		if !n.HasNode(v) {
			return &InvalidEvidenceError{Variable: v, State: r.evidence[v], UnknownVariable: true}
		}
		if !n.HasState(v, r.evidence[v]) {
			return &InvalidEvidenceError{Variable: v, State: r.evidence[v]}
		}
	}

	if r.engine.cache != nil {
		r.order = r.engine.cache.Resolve(n, order)
	} else {
		r.order = order.Resolve(n)
	}

	cpts := n.Probabilities()
	r.factors = make([]*factor.Factor, len(cpts))
	for i, cpt := range cpts {
		r.factors[i] = cpt.Copy()
		r.observe(r.factors[i])
	}

	r.engine.sink.Record(diagnostics.Event{
		RunID:     r.id,
		Kind:      diagnostics.KindStarted,
		Query:     r.query,
		OrderName: order.Name(),
		Order:     append([]string(nil), r.order...),
		Evidence:  maps.Clone(r.evidence),
	})
	r.engine.logger.Debug("elimination run started",
		"run_id", r.id,
		"query", r.query,
		"order", order.Name(),
		"order_len", len(r.order),
		"evidence", len(r.evidence),
	)
	return nil
}

// leftovers returns, sorted, the non-query variables still in the working
// set that the order never processed.
func (r *run) leftovers() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, f := range r.factors {
		for _, v := range f.Scope() {
			if v == r.query {
				continue
			}
			if _, done := r.processed[v]; done {
				continue
			}
			if _, dup := seen[v]; dup {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}

func (r *run) eliminate(v string) error {
	r.stats.Steps++
	r.processed[v] = struct{}{}

	var (
		containing []*factor.Factor
		indices    []int
		rest       []*factor.Factor
	)
	for i, f := range r.factors {
		if f.Has(v) {
			containing = append(containing, f)
			indices = append(indices, i)
		} else {
			rest = append(rest, f)
		}
	}

	step := diagnostics.Event{
		RunID:    r.id,
		Kind:     diagnostics.KindStep,
		Query:    r.query,
		Variable: v,
		Indices:  indices,
		Factors:  describe(containing),
	}

	if len(containing) == 0 {
		r.stats.Skipped++
		step.Action = diagnostics.ActionSkip
		r.engine.sink.Record(step)
		return nil
	}

	combined := containing[0]
	if len(containing) >= 2 {
		var err error
		if combined, err = factor.ProductAll(containing); err != nil {
			return err
		}
		r.observe(combined)
	}

	state, observed := r.evidence[v]
	switch {
	case observed:
		reduced, err := factor.Reduce(combined, v, state)
		if err != nil {
			return err
		}
		combined = reduced
		step.Action = diagnostics.ActionReduce
		step.State = state
	case v != r.query:
		summed, err := factor.Marginalize(combined, v)
		if err != nil {
			return err
		}
		combined = summed
		step.Action = diagnostics.ActionMarginalize
	default:
		step.Action = diagnostics.ActionKeep
	}
	r.observe(combined)

	r.factors = append(rest, combined)
	step.Result = combined.String()
	r.engine.sink.Record(step)
	r.engine.logger.Debug("elimination step",
		"run_id", r.id,
		"variable", v,
		"action", step.Action.String(),
		"factors", len(containing),
		"result", step.Result,
	)
	return nil
}

// finalize multiplies the surviving factors that mention the query, applies
// any evidence still in scope and normalizes. Every other variable has been
// eliminated by now, so factors that do not mention the query are constants
// that scale every state equally and are dropped.
func (r *run) finalize() (Distribution, error) {
	var touching []*factor.Factor
	for _, f := range r.factors {
		if f.Has(r.query) {
			touching = append(touching, f)
		}
	}
	if len(touching) == 0 {
		return nil, &factor.MalformedFactorError{Op: "finalize", Variable: r.query, Reason: "no remaining factor mentions the query"}
	}

	joint, err := factor.ProductAll(touching)
	if err != nil {
		return nil, err
	}
	r.observe(joint)

	for _, v := range joint.Scope() {
		if state, ok := r.evidence[v]; ok {
			if joint, err = factor.Reduce(joint, v, state); err != nil {
				return nil, err
			}
		}
	}
	for _, v := range joint.Scope() {
		if v == r.query {
			continue
		}
		if joint, err = factor.Marginalize(joint, v); err != nil {
			return nil, err
		}
	}

	states := joint.States(r.query)
	weights := make([]float64, len(states))
	for i, s := range states {
		weights[i], _ = joint.Weight(factor.Assignment{r.query: s})
	}

	total := 0.0
	if len(weights) > 0 {
		total = floats.Sum(weights)
	}
	if total == 0 || math.IsNaN(total) {
		return nil, &DegenerateDistributionError{Query: r.query, Evidence: r.evidence}
	}
	floats.Scale(1/total, weights)

	dist := make(Distribution, len(states))
	outcomes := make([]diagnostics.Outcome, len(states))
	for i, s := range states {
		dist[s] = weights[i]
		outcomes[i] = diagnostics.Outcome{State: s, Probability: weights[i]}
	}
	r.engine.sink.Record(diagnostics.Event{
		RunID:    r.id,
		Kind:     diagnostics.KindFinished,
		Query:    r.query,
		Outcomes: outcomes,
	})
	return dist, nil
}

func (r *run) observe(f *factor.Factor) {
	if w := len(f.Scope()); w > r.stats.MaxScope {
		r.stats.MaxScope = w
	}
	if n := f.Len(); n > r.stats.MaxRows {
		r.stats.MaxRows = n
	}
}

func describe(factors []*factor.Factor) []string {
	out := make([]string, len(factors))
	for i, f := range factors {
		out[i] = f.String()
	}
	return out
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func outcomeFor(err error) string {
	switch {
	case errors.Is(err, ErrInvalidQuery):
		return "invalid_query"
	case errors.Is(err, ErrInvalidEvidence):
		return "invalid_evidence"
	case errors.Is(err, ErrDegenerateDistribution):
		return "degenerate"
	case errors.Is(err, factor.ErrMalformedFactor):
		return "malformed_factor"
	default:
		return "error"
	}
}
