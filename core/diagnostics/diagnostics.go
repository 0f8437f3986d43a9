// Package diagnostics records what an elimination run did: the resolved
// order, the factors combined for each variable, whether the result was
// reduced or marginalized, and the final distribution. Sinks are purely
// observational and never influence a run's result.
package diagnostics

import (
	"sync"
)

// =============================================================================
// Events
// =============================================================================

// Kind identifies the type of an Event.
type Kind int

const (
	// KindStarted is recorded once the elimination order is resolved.
	KindStarted Kind = iota
	// KindStep is recorded for every variable in the order.
	KindStep
	// KindFinished is recorded with the normalized result.
	KindFinished
	// KindFailed is recorded when a run returns an error.
	KindFailed
)

var kindNames = map[Kind]string{
	KindStarted:  "started",
	KindStep:     "step",
	KindFinished: "finished",
	KindFailed:   "failed",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Action is what a step did with the combined factor.
type Action int

const (
	// ActionSkip means no working factor mentioned the variable.
	ActionSkip Action = iota
	// ActionReduce means the variable was observed and the factor reduced.
	ActionReduce
	// ActionMarginalize means the variable was summed out.
	ActionMarginalize
	// ActionKeep means the variable is the query and was left in scope.
	ActionKeep
)

var actionNames = map[Action]string{
	ActionSkip:        "skip",
	ActionReduce:      "reduce",
	ActionMarginalize: "marginalize",
	ActionKeep:        "keep",
}

func (a Action) String() string {
	if name, ok := actionNames[a]; ok {
		return name
	}
	return "unknown"
}

// Outcome is one state of the final distribution.
type Outcome struct {
	State       string
	Probability float64
}

// Event is a single diagnostic record. Fields not relevant to Kind are zero.
type Event struct {
	RunID string
	Kind  Kind
	Query string

	// Started
	OrderName string
	Order     []string
	Evidence  map[string]string

	// Step
	Variable string
	Action   Action
	State    string
	Indices  []int
	Factors  []string
	Result   string

	// Finished
	Outcomes []Outcome

	// Failed
	Err error
}

// =============================================================================
// Sinks
// =============================================================================

// Sink receives diagnostic events. Record must not retain or modify slices of
// the event beyond the call unless it copies them.
type Sink interface {
	Record(e Event)
}

// Nop discards every event.
type Nop struct{}

// Record implements Sink.
func (Nop) Record(Event) {}

// Multi fans an event out to several sinks in order.
type Multi []Sink

// Record implements Sink.
func (m Multi) Record(e Event) {
	for _, s := range m {
		s.Record(e)
	}
}

// Recorder keeps events in memory. It is safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Record implements Sink.
func (r *Recorder) Record(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

// Events returns the recorded events in order.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Steps returns the recorded step events in order.
func (r *Recorder) Steps() []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Kind == KindStep {
			out = append(out, e)
		}
	}
	return out
}

// Reset drops every recorded event.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}
