package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics groups the delivery engine's collectors. Labels stay low-cardinality:
// target is "individual" or "group".
type Metrics struct {
	Registry *prometheus.Registry

	Passes         prometheus.Counter
	PassSkipped    prometheus.Counter
	PassDuration   prometheus.Histogram
	EntriesDone    *prometheus.CounterVec
	Sends          *prometheus.CounterVec
	StalledEntries prometheus.Gauge
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		Passes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scheduler_passes_total",
			Help: "Reconciliation passes run",
		}),
		PassSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scheduler_passes_skipped_total",
			Help: "Pass triggers dropped because a pass was already running",
		}),
		PassDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "scheduler_pass_duration_seconds",
			Help:    "Wall-clock duration of reconciliation passes",
			Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 15, 60, 300, 900},
		}),
		EntriesDone: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "queue_entries_finished_total",
			Help: "Queue entries that reached a terminal status",
		}, []string{"target", "status"}),
		Sends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "outbound_sends_total",
			Help: "Individual send attempts through the outbound channel",
		}, []string{"target", "result"}),
		StalledEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "queue_entries_stalled",
			Help: "Pending entries skipped in the last pass because their time does not parse",
		}),
	}

	reg.MustRegister(
		m.Passes,
		m.PassSkipped,
		m.PassDuration,
		m.EntriesDone,
		m.Sends,
		m.StalledEntries,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}
