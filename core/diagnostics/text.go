package diagnostics

import (
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// TextSink writes a human-readable trace to w. The caller owns w and is
// responsible for closing it. Write errors are kept and reported by Err;
// they never reach the engine.
type TextSink struct {
	mu  sync.Mutex
	w   io.Writer
	err error
}

// NewTextSink creates a sink writing to w.
func NewTextSink(w io.Writer) *TextSink {
	return &TextSink{w: w}
}

// Err returns the first write error, if any.
func (s *TextSink) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Record implements Sink.
func (s *TextSink) Record(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return
	}
	_, s.err = io.WriteString(s.w, formatEvent(e))
}

func formatEvent(e Event) string {
	var b strings.Builder
	switch e.Kind {
	case KindStarted:
		fmt.Fprintf(&b, "\nRun %s: query %s given %s\n", e.RunID, e.Query, formatEvidence(e.Evidence))
		fmt.Fprintf(&b, "Elimination order (%s): %v\n", e.OrderName, e.Order)
	case KindStep:
		fmt.Fprintf(&b, "\nProcessing %s\n", e.Variable)
		if e.Action == ActionSkip {
			fmt.Fprintf(&b, "No factors contain %s\n", e.Variable)
			break
		}
		fmt.Fprintf(&b, "Factors containing %s: %v %v\n", e.Variable, e.Indices, e.Factors)
		switch e.Action {
		case ActionReduce:
			fmt.Fprintf(&b, "Reduced observed %s to %s\n", e.Variable, e.State)
		case ActionMarginalize:
			fmt.Fprintf(&b, "Marginalized %s\n", e.Variable)
		case ActionKeep:
			fmt.Fprintf(&b, "Kept query %s\n", e.Variable)
		}
		fmt.Fprintf(&b, "Result: %s\n", e.Result)
	case KindFinished:
		fmt.Fprintf(&b, "\nFinal result for %s:\n", e.Query)
		for _, o := range e.Outcomes {
			fmt.Fprintf(&b, "  %-12s %.6f\n", o.State, o.Probability)
		}
	case KindFailed:
		fmt.Fprintf(&b, "\nRun %s failed: %v\n", e.RunID, e.Err)
	}
	return b.String()
}

func formatEvidence(evidence map[string]string) string {
	if len(evidence) == 0 {
		return "{}"
	}
	keys := make([]string, 0, len(evidence))
	for k := range evidence {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + evidence[k]
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// SlogSink forwards events to a structured logger at Debug level, failures
// at Warn.
type SlogSink struct {
	logger *slog.Logger
}

// NewSlogSink creates a sink logging to logger, or slog.Default() if nil.
func NewSlogSink(logger *slog.Logger) *SlogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogSink{logger: logger}
}

// Record implements Sink.
func (s *SlogSink) Record(e Event) {
	attrs := []any{"run_id", e.RunID, "query", e.Query}
	switch e.Kind {
	case KindStarted:
		s.logger.Debug("elimination order resolved", append(attrs, "heuristic", e.OrderName, "order", e.Order, "evidence", formatEvidence(e.Evidence))...)
	case KindStep:
		s.logger.Debug("elimination step", append(attrs, "variable", e.Variable, "action", e.Action.String(), "factors", e.Indices, "result", e.Result)...)
	case KindFinished:
		s.logger.Debug("elimination finished", append(attrs, "outcomes", e.Outcomes)...)
	case KindFailed:
		s.logger.Warn("elimination failed", append(attrs, "error", e.Err)...)
	}
}
