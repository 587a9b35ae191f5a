// Package metrics exposes run results as Prometheus gauges written to a
// node-exporter textfile.
package metrics

import (
	"fmt"
	"time"

	"Nifty50Snapshot/internal/model"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "nifty50"

// RunMetrics holds the metrics of the snapshot job. It owns its registry so
// repeated runs in one process update the same series.
type RunMetrics struct {
	Registry *prometheus.Registry

	Symbols       *prometheus.GaugeVec
	Stocks        prometheus.Gauge
	Duration      prometheus.Gauge
	LastRun       prometheus.Gauge
	LastSuccess   prometheus.Gauge
	RunsTotal     *prometheus.CounterVec
	FetchDateUnix prometheus.Gauge
}

// New creates and registers the job's metrics.
func New() *RunMetrics {
	m := &RunMetrics{
		Registry: prometheus.NewRegistry(),

		Symbols: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "symbols",
			Help:      "Symbols per outcome in the last run",
		}, []string{"outcome"}),
		Stocks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "snapshot_stocks",
			Help:      "Accepted records in the last snapshot",
		}),
		Duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall-clock duration of the last run",
		}),
		LastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished",
		}),
		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time the last snapshot was saved",
		}),
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Runs by final status",
		}, []string{"status"}),
		FetchDateUnix: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "snapshot_fetch_date_seconds",
			Help:      "fetch_date of the last saved snapshot as Unix midnight UTC",
		}),
	}
	m.Registry.MustRegister(m.Symbols, m.Stocks, m.Duration, m.LastRun, m.LastSuccess, m.RunsTotal, m.FetchDateUnix)
	return m
}

// Observe records one finished run. saved reports whether the snapshot was persisted.
func (m *RunMetrics) Observe(status string, saved bool, stats model.RunStatistics, snap *model.Snapshot, at time.Time) {
	m.Symbols.WithLabelValues(string(model.OutcomeAccepted)).Set(float64(stats.Success))
	m.Symbols.WithLabelValues(string(model.OutcomeFailed)).Set(float64(stats.Failed))
	m.Symbols.WithLabelValues(string(model.OutcomeInvalid)).Set(float64(stats.Invalid))
	m.Duration.Set(stats.Elapsed.Seconds())
	m.LastRun.Set(float64(at.Unix()))
	m.RunsTotal.WithLabelValues(status).Inc()

	if snap != nil {
		m.Stocks.Set(float64(snap.TotalStocks))
	}
	if saved && snap != nil {
		m.LastSuccess.Set(float64(at.Unix()))
		if d, err := time.Parse(model.DateLayout, snap.FetchDate); err == nil {
			m.FetchDateUnix.Set(float64(d.Unix()))
		}
	}
}

// WriteTextfile writes all metrics to path in the text exposition format.
// The file is replaced atomically.
func (m *RunMetrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.Registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
