// Package metrics exposes analysis run metrics for the Prometheus textfile
// collector.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/pankaj-dahiya-devops/dp-leastpriv/internal/coverage"
	"github.com/pankaj-dahiya-devops/dp-leastpriv/internal/models"
)

const namespace = "dp_leastpriv"

// Metrics holds the collectors of one process. Each instance owns its
// registry so tests and repeated runs never collide.
type Metrics struct {
	registry *prometheus.Registry

	RunsTotal      *prometheus.CounterVec
	RunDuration    prometheus.Histogram
	RecordsTotal   *prometheus.CounterVec
	FindingsTotal  *prometheus.CounterVec
	PrincipalScore *prometheus.GaugeVec
	OverallScore   prometheus.Gauge
	Principals     prometheus.Gauge
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		RunsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Total number of analysis runs",
			},
			[]string{"status"},
		),
		RunDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Analysis run latencies in seconds",
				Buckets:   prometheus.DefBuckets,
			},
		),
		RecordsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "records_total",
				Help:      "Activity records processed, by disposition",
			},
			[]string{"disposition"},
		),
		FindingsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "findings_total",
				Help:      "Findings reported, by kind and severity",
			},
			[]string{"kind", "severity"},
		),
		PrincipalScore: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "principal_risk_score",
				Help:      "Risk score of each principal in the last run",
			},
			[]string{"principal"},
		),
		OverallScore: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "overall_risk_score",
				Help:      "Mean risk score across principals in the last run",
			},
		),
		Principals: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "principals",
				Help:      "Number of principals analysed in the last run",
			},
		),
	}
}

// Registry returns the gatherer backing m.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ObserveRun records one finished run.
func (m *Metrics) ObserveRun(status string, d time.Duration) {
	m.RunsTotal.WithLabelValues(status).Inc()
	m.RunDuration.Observe(d.Seconds())
}

// ObserveCoverage records how the run's activity records were treated.
func (m *Metrics) ObserveCoverage(s coverage.Stats) {
	m.RecordsTotal.WithLabelValues("ingested").Add(float64(s.Ingested))
	m.RecordsTotal.WithLabelValues("denied").Add(float64(s.Denied))
	m.RecordsTotal.WithLabelValues("out_of_window").Add(float64(s.OutOfWindow))
	m.RecordsTotal.WithLabelValues("malformed").Add(float64(s.Malformed))
}

// ObserveReport records findings and scores of rep.
func (m *Metrics) ObserveReport(rep *models.Report) {
	m.PrincipalScore.Reset()
	for id, pr := range rep.Principals {
		m.PrincipalScore.WithLabelValues(id).Set(pr.Score)
		for _, f := range pr.Findings {
			m.FindingsTotal.WithLabelValues(string(f.Kind), string(f.Severity)).Inc()
		}
	}
	m.OverallScore.Set(rep.OverallScore)
	m.Principals.Set(float64(len(rep.Principals)))
}

// WriteTextfile writes the registry in the text exposition format to path,
// atomically.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
