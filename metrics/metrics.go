package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry はこのプロセスのメトリクスです。デフォルトレジストリは使いません。
var Registry = prometheus.NewRegistry()

var (
	importRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nomade",
		Name:      "import_runs_total",
		Help:      "Snapshot import runs by result (ok, failed, cancelled).",
	}, []string{"result"})

	importRows = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nomade",
		Name:      "import_rows_total",
		Help:      "Rows written by each import step.",
	}, []string{"step"})

	importDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "nomade",
		Name:      "import_duration_seconds",
		Help:      "Duration of successful snapshot imports.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
	})

	picks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nomade",
		Name:      "picks_total",
		Help:      "Committed picks by order family.",
	}, []string{"family"})

	pickedQuantity = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nomade",
		Name:      "picked_quantity_total",
		Help:      "Picked quantity by order family.",
	}, []string{"family"})

	drops = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "nomade",
		Name:      "movements_dropped_total",
		Help:      "Movements dropped at a location.",
	})
)

func init() {
	Registry.MustRegister(
		importRuns, importRows, importDuration,
		picks, pickedQuantity, drops,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

func ImportFinished(result string, elapsed time.Duration) {
	importRuns.WithLabelValues(result).Inc()
	if result == "ok" {
		importDuration.Observe(elapsed.Seconds())
	}
}

func ImportStep(step string, rows int) {
	importRows.WithLabelValues(step).Add(float64(rows))
}

func Picked(family string, quantity int) {
	picks.WithLabelValues(family).Inc()
	pickedQuantity.WithLabelValues(family).Add(float64(quantity))
}

func Dropped(n int) {
	drops.Add(float64(n))
}

// Handler は GET /metrics 用です。
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
