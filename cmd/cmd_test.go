package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/adalundhe/varelim/core/config"
	"github.com/adalundhe/varelim/core/elim"
	"github.com/adalundhe/varelim/core/network"
	"github.com/adalundhe/varelim/core/network/networktest"
	"github.com/adalundhe/varelim/core/ordering"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const earthquakeFile = "../core/network/testdata/earthquake.yaml"

// execute runs the root command against a fresh project directory with
// every flag variable reset.
func execute(t *testing.T, project string, args ...string) (string, error) {
	t.Helper()
	queryNetwork, queryVariable, queryEvidence, queryOrder, queryTrace = "", "", nil, "", ""
	queryCompare, queryJSON, queryRepeat = false, false, 1
	orderNetwork, orderHeuristic = "", ""
	rootProjectDir, rootLogLevel, rootLogFormat = ".", "", ""

	if project == "" {
		project = t.TempDir()
	}
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(append([]string{"--project", project}, args...))
	err := Execute()
	return out.String(), err
}

func TestQueryText(t *testing.T) {
	out, err := execute(t, "", "query", "-n", earthquakeFile, "-q", "Burglary",
		"-e", "JohnCalls=True", "-e", "MaryCalls=True")
	require.NoError(t, err)

	assert.Contains(t, out, "P(Burglary | JohnCalls=True, MaryCalls=True)")
	assert.Contains(t, out, "0.556522")
	assert.Contains(t, out, "0.443478")
	assert.Contains(t, out, "order least-incoming-arcs")
}

func TestQueryJSON(t *testing.T) {
	out, err := execute(t, "", "query", "-n", earthquakeFile, "-q", "Alarm",
		"-e", "Burglary=True", "-o", "fewest", "--json")
	require.NoError(t, err)

	var got queryOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "Alarm", got.Query)
	assert.Equal(t, "fewest-factors", got.Order)
	assert.Equal(t, map[string]string{"Burglary": "True"}, got.Evidence)
	assert.Equal(t, []string{"JohnCalls", "MaryCalls", "Burglary", "Earthquake", "Alarm"}, got.Elimination)
	assert.InDelta(t, 0.9402, got.Distribution["True"], 1e-9)
	assert.NotEmpty(t, got.RunID)
	assert.Equal(t, 5, got.Steps)
}

func TestQueryCompare(t *testing.T) {
	out, err := execute(t, "", "query", "-n", earthquakeFile, "-q", "Burglary",
		"-e", "JohnCalls=True", "-o", "MaryCalls,Alarm", "--compare", "--json")
	require.NoError(t, err)

	var got []queryOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got, len(ordering.Names())+1)
	assert.Equal(t, ordering.ExplicitName, got[len(got)-1].Order)
	for _, r := range got[1:] {
		for state, p := range got[0].Distribution {
			assert.InDelta(t, p, r.Distribution[state], 1e-12, "%s/%s", r.Order, state)
		}
	}

	out, err = execute(t, "", "query", "-n", earthquakeFile, "-q", "Burglary", "--compare")
	require.NoError(t, err)
	assert.Contains(t, out, "MAXSCOPE")
	for _, name := range ordering.Names() {
		assert.Contains(t, out, name)
	}
}

func TestQueryTrace(t *testing.T) {
	trace := filepath.Join(t.TempDir(), "traces", "alarm.log")
	_, err := execute(t, "", "query", "-n", earthquakeFile, "-q", "Alarm",
		"-e", "Burglary=True", "--trace", trace)
	require.NoError(t, err)

	data, err := os.ReadFile(trace)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, "Elimination order (least-incoming-arcs)")
	assert.Contains(t, text, "Reduced observed Burglary to True")
	assert.Contains(t, text, "Final result for Alarm:")
}

func TestQueryUsesProjectConfig(t *testing.T) {
	project := t.TempDir()
	metrics := filepath.Join(t.TempDir(), "varelim.prom")
	trace := filepath.Join(t.TempDir(), "configured.log")
	cfg := fmt.Sprintf(`
engine:
  default_order: network
  order_cache_size: 0
diagnostics:
  enabled: true
  trace_path: %s
metrics:
  enabled: true
  textfile: %s
`, trace, metrics)
	require.NoError(t, os.MkdirAll(filepath.Join(project, ".varelim"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(project, ".varelim", "config.yaml"), []byte(cfg), 0o644))

	out, err := execute(t, project, "query", "-n", earthquakeFile, "-q", "Earthquake")
	require.NoError(t, err)
	assert.Contains(t, out, "order network")

	data, err := os.ReadFile(metrics)
	require.NoError(t, err)
	assert.Contains(t, string(data), `varelim_runs_total{order="network",outcome="ok"}`)

	_, err = os.Stat(trace)
	assert.NoError(t, err)
}

func TestQueryErrors(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		sentinel error
		contains string
		code     int
	}{
		{
			name:     "unknown query",
			args:     []string{"-q", "Tsunami"},
			sentinel: elim.ErrInvalidQuery,
			code:     2,
		},
		{
			name:     "unknown state",
			args:     []string{"-q", "Alarm", "-e", "Burglary=Maybe"},
			sentinel: elim.ErrInvalidEvidence,
			code:     2,
		},
		{
			name:     "malformed evidence",
			args:     []string{"-q", "Alarm", "-e", "Burglary"},
			contains: "want VAR=STATE",
			code:     1,
		},
		{
			name:     "unknown heuristic",
			args:     []string{"-q", "Alarm", "-o", "smallest-first"},
			sentinel: ordering.ErrUnknownHeuristic,
			code:     1,
		},
		{
			name:     "bad log level",
			args:     []string{"-q", "Alarm", "--log-level", "loud"},
			sentinel: config.ErrInvalidConfig,
			code:     1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"query", "-n", earthquakeFile}, tt.args...)
			_, err := execute(t, "", args...)
			require.Error(t, err)
			if tt.sentinel != nil {
				assert.ErrorIs(t, err, tt.sentinel)
			}
			if tt.contains != "" {
				assert.Contains(t, err.Error(), tt.contains)
			}
			assert.Equal(t, tt.code, ExitCode(err))
		})
	}

	_, err := execute(t, "", "query", "-n", filepath.Join(t.TempDir(), "missing.yaml"), "-q", "Alarm")
	require.Error(t, err)
}

func TestOrderCommand(t *testing.T) {
	out, err := execute(t, "", "order", "-n", earthquakeFile)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, len(ordering.Names()))
	assert.Contains(t, out, "Burglary Earthquake JohnCalls MaryCalls Alarm")
	assert.Contains(t, out, "JohnCalls MaryCalls Burglary Earthquake Alarm")

	out, err = execute(t, "", "order", "-n", earthquakeFile, "--heuristic", "fewest")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "fewest-factors"), out)

	_, err = execute(t, "", "order", "-n", earthquakeFile, "--heuristic", "random")
	assert.ErrorIs(t, err, ordering.ErrUnknownHeuristic)
}

func TestParseEvidence(t *testing.T) {
	got, err := parseEvidence([]string{"A=true", " B = false ", "A=true"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"A": "true", "B": "false"}, got)

	for _, bad := range []string{"A", "=x", "A=", "A=true,A=false"} {
		pairs := strings.Split(bad, ",")
		_, err := parseEvidence(pairs)
		assert.Error(t, err, bad)
	}
}

func TestParseOrder(t *testing.T) {
	n := networktest.Sprinkler(t)

	tests := []struct {
		spec      string
		want      string
		heuristic bool
	}{
		{"network", "network", true},
		{"least-incoming", "least-incoming-arcs", true},
		{"Rain", "explicit[Rain]", false},
		{"Rain, Cloudy,", "explicit[Rain Cloudy]", false},
		{"Nope,Rain", "explicit[Nope Rain]", false},
	}
	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			o, err := parseOrder(n, tt.spec)
			require.NoError(t, err)
			assert.Equal(t, tt.want, o.String())
			assert.Equal(t, tt.heuristic, o.IsHeuristic())
		})
	}

	_, err := parseOrder(n, "Nope")
	assert.ErrorIs(t, err, ordering.ErrUnknownHeuristic)
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, 3, ExitCode(fmt.Errorf("wrapped: %w", &elim.DegenerateDistributionError{Query: "A"})))
	assert.Equal(t, 1, ExitCode(errors.New("other")))
}

func TestGivenClause(t *testing.T) {
	assert.Equal(t, "", givenClause(nil))
	assert.Equal(t, " | A=1, B=2", givenClause(map[string]string{"B": "2", "A": "1"}))
}

func TestQueryMetricsOnFailure(t *testing.T) {
	metrics := filepath.Join(t.TempDir(), "metrics", "varelim.prom")
	t.Setenv("VARELIM_METRICS_TEXTFILE", metrics)

	_, err := execute(t, "", "query", "-n", earthquakeFile, "-q", "Nope")
	require.ErrorIs(t, err, elim.ErrInvalidQuery)

	data, err := os.ReadFile(metrics)
	require.NoError(t, err)
	assert.Contains(t, string(data), `varelim_runs_total{order="least-incoming-arcs",outcome="invalid_query"}`)
}

func TestQueryLogFlagsIgnoreCase(t *testing.T) {
	_, err := execute(t, "", "--log-level", "DEBUG", "--log-format", "JSON",
		"query", "-n", earthquakeFile, "-q", "Alarm")
	require.NoError(t, err)
	assert.Equal(t, "debug", settings.Get().Logging.Level)
	assert.Equal(t, "json", settings.Get().Logging.Format)
}

func TestQueryRepeat(t *testing.T) {
	out, err := execute(t, "", "query", "-n", earthquakeFile, "-q", "Burglary",
		"-e", "JohnCalls=True", "--compare", "--repeat", "3", "--json")
	require.NoError(t, err)
	var got []queryOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Len(t, got, len(ordering.Names()))

	_, err = execute(t, "", "query", "-n", earthquakeFile, "-q", "Burglary", "--repeat", "0")
	assert.ErrorContains(t, err, "--repeat")
}

func TestSolveAllReusesCachedOrders(t *testing.T) {
	n := networktest.Sprinkler(t)
	cache, err := ordering.NewCache(8)
	require.NoError(t, err)
	engine := elim.New(n, elim.WithOrderCache(cache))

	calls := 0
	counting := ordering.Heuristic("counting", func(n *network.Network) []string {
		calls++
		return ordering.NetworkOrder(n)
	})
	least, err := ordering.ByName("least-incoming")
	require.NoError(t, err)

	results, err := solveAll(engine, "Rain", map[string]string{"WetGrass": "true"},
		[]ordering.Order{counting, least, ordering.Explicit("Cloudy")}, 4)
	require.NoError(t, err)

	require.Len(t, results, 3)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 2, cache.Len())
	want := networktest.Joint(n, "Rain", map[string]string{"WetGrass": "true"})
	for _, r := range results {
		for state, p := range want {
			assert.InDelta(t, p, r.Distribution[state], 1e-9, "%s/%s", r.OrderName, state)
		}
	}

	_, err = solveAll(engine, "Nope", nil, []ordering.Order{least}, 2)
	assert.ErrorIs(t, err, elim.ErrInvalidQuery)
}
