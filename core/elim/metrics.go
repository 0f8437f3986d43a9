package elim

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	runTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "varelim_runs_total",
		Help: "Total number of variable elimination runs",
	}, []string{"order", "outcome"})

	runDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "varelim_run_duration_seconds",
		Help:    "Duration of variable elimination runs",
		Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
	}, []string{"order"})

	// Largest scope of any intermediate factor; the induced width of the
	// order plus one.
	runMaxScope = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "varelim_max_factor_scope",
		Help:    "Largest number of variables in an intermediate factor per run",
		Buckets: prometheus.LinearBuckets(1, 2, 12),
	}, []string{"order"})

	runMaxRows = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "varelim_max_factor_rows",
		Help:    "Largest intermediate factor table per run",
		Buckets: prometheus.ExponentialBuckets(2, 4, 12),
	}, []string{"order"})
)

func observeRun(order string, stats Stats, err error) {
	outcome := "ok"
	if err != nil {
		outcome = outcomeFor(err)
	}
	runTotal.WithLabelValues(order, outcome).Inc()
	runDuration.WithLabelValues(order).Observe(stats.Duration.Seconds())
	if err == nil {
		runMaxScope.WithLabelValues(order).Observe(float64(stats.MaxScope))
		runMaxRows.WithLabelValues(order).Observe(float64(stats.MaxRows))
	}
}
