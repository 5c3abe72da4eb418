package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics — набор метрик одного процесса scops-qsub.
//
// Используется собственный Registry, а не глобальный DefaultRegisterer:
// в textfile попадают только метрики движка, без go_* и process_*.
type Metrics struct {
	Registry *prometheus.Registry

	UnitsDispatched    *prometheus.CounterVec
	SubmissionFailures *prometheus.CounterVec
	Runs               *prometheus.CounterVec
	DEMGeneration      prometheus.Histogram
}

// NewMetrics создаёт и регистрирует метрики.
func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		UnitsDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scops_units_dispatched_total",
			Help: "Units handed to an execution backend",
		}, []string{"backend", "kind"}),
		SubmissionFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scops_submission_failures_total",
			Help: "Units the execution backend refused or failed to accept",
		}, []string{"backend"}),
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scops_runs_total",
			Help: "Driver invocations by outcome",
		}, []string{"outcome"}),
		DEMGeneration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "scops_dem_generation_seconds",
			Help:    "Time spent generating elevation datasets",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
	}

	m.Registry.MustRegister(m.UnitsDispatched, m.SubmissionFailures, m.Runs, m.DEMGeneration)
	return m
}

// ObserveDEM записывает длительность генерации DEM.
func (m *Metrics) ObserveDEM(d time.Duration) {
	if m == nil {
		return
	}
	m.DEMGeneration.Observe(d.Seconds())
}

// WriteTextfile записывает текущее состояние метрик в файл.
// Пустой path — ничего не делает.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.Registry)
}
