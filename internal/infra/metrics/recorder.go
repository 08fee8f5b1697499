// Package metrics records pipeline observability signals: Prometheus counters
// and histograms per stage, and OpenTelemetry spans per job run.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pedalmetry/pedalmetry/internal/pipeline"
	"github.com/pedalmetry/pedalmetry/internal/support/logger"
)

// Recorder records job and stage level metrics.
type Recorder interface {
	// RecordJobStart marks the start of one job run.
	RecordJobStart(ctx context.Context, jobName string)
	// RecordJobEnd marks the end of one job run with its final status.
	RecordJobEnd(ctx context.Context, jobName, status string, duration time.Duration)
	// RecordStage records one stage's row accounting and duration.
	RecordStage(ctx context.Context, jobName string, report pipeline.Report, duration time.Duration)
	// RecordSkippedFile counts an input file skipped as malformed.
	RecordSkippedFile(ctx context.Context, jobName string)
}

// PrometheusRecorder is the Prometheus implementation of Recorder.
type PrometheusRecorder struct {
	registry *prometheus.Registry

	jobDurationSeconds   *prometheus.HistogramVec
	jobStatusCounter     *prometheus.CounterVec
	stageDurationSeconds *prometheus.HistogramVec
	stageRowsIn          *prometheus.CounterVec
	stageRowsOut         *prometheus.CounterVec
	stageRowsDropped     *prometheus.CounterVec
	skippedFilesCounter  *prometheus.CounterVec
}

// NewPrometheusRecorder creates a PrometheusRecorder with its own registry,
// including the standard Go runtime collectors.
func NewPrometheusRecorder() *PrometheusRecorder {
	r := &PrometheusRecorder{
		registry: prometheus.NewRegistry(),
		jobDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pedalmetry_job_duration_seconds",
			Help:    "Wall-clock duration of one feature job run.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 14),
		}, []string{"job", "status"}),
		jobStatusCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pedalmetry_job_runs_total",
			Help: "Job runs by final status.",
		}, []string{"job", "status"}),
		stageDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pedalmetry_stage_duration_seconds",
			Help:    "Duration of one pipeline stage.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
		}, []string{"job", "stage"}),
		stageRowsIn: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pedalmetry_stage_rows_in_total",
			Help: "Rows entering each pipeline stage.",
		}, []string{"job", "stage"}),
		stageRowsOut: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pedalmetry_stage_rows_out_total",
			Help: "Rows leaving each pipeline stage.",
		}, []string{"job", "stage"}),
		stageRowsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pedalmetry_stage_rows_dropped_total",
			Help: "Rows dropped by each pipeline stage.",
		}, []string{"job", "stage"}),
		skippedFilesCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pedalmetry_skipped_files_total",
			Help: "Input trip files skipped as malformed.",
		}, []string{"job"}),
	}

	r.registry.MustRegister(collectors.NewGoCollector())
	r.registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	r.registry.MustRegister(r.jobDurationSeconds)
	r.registry.MustRegister(r.jobStatusCounter)
	r.registry.MustRegister(r.stageDurationSeconds)
	r.registry.MustRegister(r.stageRowsIn)
	r.registry.MustRegister(r.stageRowsOut)
	r.registry.MustRegister(r.stageRowsDropped)
	r.registry.MustRegister(r.skippedFilesCounter)

	return r
}

// GetRegistry returns the Prometheus registry.
func (r *PrometheusRecorder) GetRegistry() *prometheus.Registry {
	return r.registry
}

// Handler returns the exposition endpoint handler for the recorder's registry.
func (r *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

func (r *PrometheusRecorder) RecordJobStart(ctx context.Context, jobName string) {
	r.jobStatusCounter.WithLabelValues(jobName, "started").Inc()
	logger.Debugf("Metrics: job '%s' started.", jobName)
}

func (r *PrometheusRecorder) RecordJobEnd(ctx context.Context, jobName, status string, duration time.Duration) {
	r.jobStatusCounter.WithLabelValues(jobName, status).Inc()
	r.jobDurationSeconds.WithLabelValues(jobName, status).Observe(duration.Seconds())
	logger.Debugf("Metrics: job '%s' ended with status '%s' after %.3fs.", jobName, status, duration.Seconds())
}

func (r *PrometheusRecorder) RecordStage(ctx context.Context, jobName string, report pipeline.Report, duration time.Duration) {
	r.stageDurationSeconds.WithLabelValues(jobName, report.Stage).Observe(duration.Seconds())
	r.stageRowsIn.WithLabelValues(jobName, report.Stage).Add(float64(report.RowsIn))
	r.stageRowsOut.WithLabelValues(jobName, report.Stage).Add(float64(report.RowsOut))
	if dropped := report.Dropped(); dropped > 0 {
		r.stageRowsDropped.WithLabelValues(jobName, report.Stage).Add(float64(dropped))
	}
}

func (r *PrometheusRecorder) RecordSkippedFile(ctx context.Context, jobName string) {
	r.skippedFilesCounter.WithLabelValues(jobName).Inc()
}

var _ Recorder = (*PrometheusRecorder)(nil)

// NoopRecorder discards every metric. Used when metrics are disabled.
type NoopRecorder struct{}

func (NoopRecorder) RecordJobStart(context.Context, string)                              {}
func (NoopRecorder) RecordJobEnd(context.Context, string, string, time.Duration)         {}
func (NoopRecorder) RecordStage(context.Context, string, pipeline.Report, time.Duration) {}
func (NoopRecorder) RecordSkippedFile(context.Context, string)                           {}

var _ Recorder = NoopRecorder{}
