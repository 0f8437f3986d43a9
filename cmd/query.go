package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/adalundhe/varelim/core/diagnostics"
	"github.com/adalundhe/varelim/core/elim"
	"github.com/adalundhe/varelim/core/network"
	"github.com/adalundhe/varelim/core/ordering"
	"github.com/adalundhe/varelim/core/storage"
	"github.com/spf13/cobra"
)

// =============================================================================
// Query Command Flags
// =============================================================================

var (
	queryNetwork  string
	queryVariable string
	queryEvidence []string
	queryOrder    string
	queryTrace    string
	queryCompare  bool
	queryRepeat   int
	queryJSON     bool
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Compute the posterior of one variable",
	Long: `Compute P(query | evidence) by variable elimination.

--order takes a heuristic name (see "varelim order") or a comma separated
list of variables. Variables the list leaves out are eliminated afterwards.

Examples:
  varelim query -n earthquake.yaml -q Burglary -e JohnCalls=True -e MaryCalls=True
  varelim query -n earthquake.yaml -q Alarm -o fewest-factors --trace alarm.log
  varelim query -n earthquake.yaml -q Alarm --compare --repeat 100
  varelim query -n earthquake.yaml -q Alarm -o MaryCalls,JohnCalls,Burglary --json`,
	Args: cobra.NoArgs,
	RunE: runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)

	queryCmd.Flags().StringVarP(&queryNetwork, "network", "n", "", "Network YAML file")
	queryCmd.Flags().StringVarP(&queryVariable, "query", "q", "", "Query variable")
	queryCmd.Flags().StringArrayVarP(&queryEvidence, "evidence", "e", nil, "Observation as VAR=STATE (repeatable)")
	queryCmd.Flags().StringVarP(&queryOrder, "order", "o", "", "Heuristic name or comma separated variables (default from config)")
	queryCmd.Flags().StringVar(&queryTrace, "trace", "", "Write an elimination trace to this file")
	queryCmd.Flags().BoolVar(&queryCompare, "compare", false, "Run every heuristic and report timings")
	queryCmd.Flags().IntVar(&queryRepeat, "repeat", 1, "Solve each order this many times and report the mean time")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "Output results as JSON")

	_ = queryCmd.MarkFlagRequired("network")
	_ = queryCmd.MarkFlagRequired("query")
}

// =============================================================================
// Query Execution
// =============================================================================

func runQuery(cmd *cobra.Command, _ []string) error {
	n, err := network.Load(queryNetwork)
	if err != nil {
		return err
	}
	evidence, err := parseEvidence(queryEvidence)
	if err != nil {
		return err
	}
	if queryRepeat < 1 {
		return fmt.Errorf("--repeat must be at least 1, got %d", queryRepeat)
	}

	cfg := settings.Get()
	spec := queryOrder
	if spec == "" {
		spec = cfg.Engine.DefaultOrder
	}

	var orders []ordering.Order
	if queryCompare {
		orders = compareOrders(n, queryOrder)
	} else {
		o, err := parseOrder(n, spec)
		if err != nil {
			return err
		}
		orders = []ordering.Order{o}
	}

	sink, closeSink, err := openTrace(queryTrace)
	if err != nil {
		return err
	}
	defer closeSink()

	opts := []elim.Option{elim.WithLogger(logger), elim.WithSink(sink)}
	if size := cfg.Engine.OrderCacheSize; size > 0 {
		cache, err := ordering.NewCache(size)
		if err != nil {
			return err
		}
		opts = append(opts, elim.WithOrderCache(cache))
	}
	engine := elim.New(n, opts...)

	results, err := solveAll(engine, queryVariable, evidence, orders, queryRepeat)
	if err != nil {
		return err
	}
	if ts, ok := sink.(*diagnostics.TextSink); ok && ts.Err() != nil {
		logger.Warn("trace incomplete", "error", ts.Err())
	}

	out := cmd.OutOrStdout()
	if queryJSON {
		return writeQueryJSON(out, evidence, results)
	}
	writeQueryText(out, evidence, results, queryCompare)
	return nil
}

// solveAll solves every order repeat times on one engine and keeps the last
// result of each, with Duration replaced by the mean over the repeats.
// Heuristic orders are resolved once when the engine has an order cache.
func solveAll(engine *elim.Engine, query string, evidence map[string]string, orders []ordering.Order, repeat int) ([]*elim.Result, error) {
	results := make([]*elim.Result, 0, len(orders))
	for _, o := range orders {
		var (
			res   *elim.Result
			total time.Duration
		)
		for i := 0; i < repeat; i++ {
			var err error
			if res, err = engine.Solve(query, evidence, o); err != nil {
				return nil, err
			}
			total += res.Stats.Duration
		}
		res.Stats.Duration = total / time.Duration(repeat)
		results = append(results, res)
	}
	return results, nil
}

// parseEvidence turns VAR=STATE pairs into an evidence map. Repeating a
// variable with a different state is rejected.
func parseEvidence(pairs []string) (map[string]string, error) {
	evidence := make(map[string]string, len(pairs))
	for _, p := range pairs {
		v, state, ok := strings.Cut(p, "=")
		v, state = strings.TrimSpace(v), strings.TrimSpace(state)
		if !ok || v == "" || state == "" {
			return nil, fmt.Errorf("evidence %q: want VAR=STATE", p)
		}
		if prev, dup := evidence[v]; dup && prev != state {
			return nil, fmt.Errorf("evidence %q: %s already observed as %s", p, v, prev)
		}
		evidence[v] = state
	}
	return evidence, nil
}

// parseOrder resolves spec as a heuristic name, falling back to an explicit
// comma separated list. A single unknown word that is not a variable of n
// is reported as an unknown heuristic.
func parseOrder(n *network.Network, spec string) (ordering.Order, error) {
	o, err := ordering.ByName(spec)
	if err == nil {
		return o, nil
	}
	if !strings.Contains(spec, ",") && !n.HasNode(strings.TrimSpace(spec)) {
		return ordering.Order{}, err
	}
	var vars []string
	for _, v := range strings.Split(spec, ",") {
		if v = strings.TrimSpace(v); v != "" {
			vars = append(vars, v)
		}
	}
	return ordering.Explicit(vars...), nil
}

// compareOrders lists every registered heuristic, plus explicit when it
// names variables rather than a heuristic.
func compareOrders(n *network.Network, explicit string) []ordering.Order {
	var orders []ordering.Order
	for _, name := range ordering.Names() {
		o, _ := ordering.ByName(name)
		orders = append(orders, o)
	}
	if explicit != "" {
		if o, err := parseOrder(n, explicit); err == nil && !o.IsHeuristic() {
			orders = append(orders, o)
		}
	}
	return orders
}

// openTrace picks the trace destination: the flag, then
// diagnostics.trace_path, then a timestamped file under the state
// directory when diagnostics are enabled. Debug logging also receives the
// events.
func openTrace(path string) (diagnostics.Sink, func(), error) {
	cfg := settings.Get()
	var sinks diagnostics.Multi
	closer := func() {}

	if path == "" && cfg.Diagnostics.Enabled {
		path = cfg.Diagnostics.TracePath
		if path == "" {
			path = dirs.TraceFile(queryVariable, time.Now())
		}
	}
	if path != "" {
		if err := storage.EnsureParent(path); err != nil {
			return nil, nil, err
		}
		f, err := os.Create(path)
		if err != nil {
			return nil, nil, fmt.Errorf("opening trace: %w", err)
		}
		closer = func() {
			if err := f.Close(); err != nil {
				logger.Warn("closing trace", "path", path, "error", err)
			}
		}
		sinks = append(sinks, diagnostics.NewTextSink(f))
		logger.Info("writing trace", "path", path)
	}
	if cfg.Logging.Level == "debug" {
		sinks = append(sinks, diagnostics.NewSlogSink(logger))
	}

	switch len(sinks) {
	case 0:
		return diagnostics.Nop{}, closer, nil
	case 1:
		return sinks[0], closer, nil
	default:
		return sinks, closer, nil
	}
}

// =============================================================================
// Output
// =============================================================================

type queryOutput struct {
	RunID        string             `json:"run_id"`
	Query        string             `json:"query"`
	Evidence     map[string]string  `json:"evidence"`
	Order        string             `json:"order"`
	Elimination  []string           `json:"elimination"`
	Distribution map[string]float64 `json:"distribution"`
	Steps        int                `json:"steps"`
	MaxScope     int                `json:"max_scope"`
	MaxRows      int                `json:"max_rows"`
	DurationMS   float64            `json:"duration_ms"`
}

func writeQueryJSON(w io.Writer, evidence map[string]string, results []*elim.Result) error {
	outputs := make([]queryOutput, len(results))
	for i, r := range results {
		outputs[i] = queryOutput{
			RunID:        r.RunID,
			Query:        r.Query,
			Evidence:     evidence,
			Order:        r.OrderName,
			Elimination:  r.Order,
			Distribution: r.Distribution,
			Steps:        r.Stats.Steps,
			MaxScope:     r.Stats.MaxScope,
			MaxRows:      r.Stats.MaxRows,
			DurationMS:   float64(r.Stats.Duration.Microseconds()) / 1000,
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if len(outputs) == 1 {
		return enc.Encode(outputs[0])
	}
	return enc.Encode(outputs)
}

func writeQueryText(w io.Writer, evidence map[string]string, results []*elim.Result, compare bool) {
	if len(results) == 0 {
		return
	}
	first := results[0]
	fmt.Fprintf(w, "P(%s%s)\n", first.Query, givenClause(evidence))
	for _, state := range first.Distribution.States() {
		fmt.Fprintf(w, "  %-12s %.6f\n", state, first.Distribution[state])
	}

	if !compare {
		fmt.Fprintf(w, "order %s %v, %d steps, max scope %d, %s\n",
			first.OrderName, first.Order, first.Stats.Steps, first.Stats.MaxScope, first.Stats.Duration)
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "%-22s %6s %9s %9s %12s\n", "ORDER", "STEPS", "MAXSCOPE", "MAXROWS", "TIME")
	for _, r := range results {
		fmt.Fprintf(w, "%-22s %6d %9d %9d %12s\n",
			r.OrderName, r.Stats.Steps, r.Stats.MaxScope, r.Stats.MaxRows, r.Stats.Duration)
	}
}

func givenClause(evidence map[string]string) string {
	if len(evidence) == 0 {
		return ""
	}
	vars := make([]string, 0, len(evidence))
	for v := range evidence {
		vars = append(vars, v)
	}
	sort.Strings(vars)
	parts := make([]string, len(vars))
	for i, v := range vars {
		parts[i] = v + "=" + evidence[v]
	}
	return " | " + strings.Join(parts, ", ")
}

// ExitCode maps an Execute error to a process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, elim.ErrInvalidQuery), errors.Is(err, elim.ErrInvalidEvidence):
		return 2
	case errors.Is(err, elim.ErrDegenerateDistribution):
		return 3
	default:
		return 1
	}
}
