package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder collects the metrics of one labeling run in its own registry.
type Recorder struct {
	registry *prometheus.Registry

	stageDuration *prometheus.HistogramVec
	stageFailures *prometheus.CounterVec
	relationRows  *prometheus.GaugeVec
	labels        *prometheus.GaugeVec
	lastSuccess   prometheus.Gauge
}

// New creates a Recorder with a fresh registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		stageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sepsis_stage_duration_seconds",
				Help:    "Duration of pipeline stages in seconds",
				Buckets: []float64{.01, .05, .1, .5, 1, 5, 15, 60, 300, 900},
			},
			[]string{"stage"},
		),
		stageFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sepsis_stage_failures_total",
				Help: "Total number of failed pipeline stages",
			},
			[]string{"stage"},
		),
		relationRows: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sepsis_relation_rows",
				Help: "Rows in each relation produced by the last run",
			},
			[]string{"relation"},
		),
		labels: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sepsis_admissions_labeled",
				Help: "Labeled admissions of the last run by label",
			},
			[]string{"label"},
		),
		lastSuccess: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "sepsis_last_success_timestamp_seconds",
				Help: "Unix time of the last successful run",
			},
		),
	}
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// ObserveStage records a finished stage.
func (r *Recorder) ObserveStage(stage string, d time.Duration, err error) {
	r.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
	if err != nil {
		r.stageFailures.WithLabelValues(stage).Inc()
	}
}

// SetRows records the size of a produced relation.
func (r *Recorder) SetRows(relation string, n int) {
	r.relationRows.WithLabelValues(relation).Set(float64(n))
}

// SetLabels records the label distribution.
func (r *Recorder) SetLabels(positive, negative, unlabeled int) {
	r.labels.WithLabelValues("positive").Set(float64(positive))
	r.labels.WithLabelValues("negative").Set(float64(negative))
	r.labels.WithLabelValues("null").Set(float64(unlabeled))
}

// MarkSuccess stamps the run as successful at t.
func (r *Recorder) MarkSuccess(t time.Time) {
	r.lastSuccess.Set(float64(t.Unix()))
}

// WriteFile writes the registry in text exposition format, for the node
// exporter textfile collector.
func (r *Recorder) WriteFile(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}
