package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	JobOutcomeSuccess = "success"
	JobOutcomeError   = "error"
	JobOutcomePanic   = "panic"
)

const (
	JobErrorReasonDeadlineExceeded = "deadline_exceeded"
	JobErrorReasonCanceled         = "canceled"
	JobErrorReasonUnknown          = "unknown"
)

// JobMetrics captures background job health for the provisioning and webhook queues.
type JobMetrics struct {
	submitted   *prometheus.CounterVec
	runs        *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	errors      *prometheus.CounterVec
	queueDepth  prometheus.Gauge
	redelivered prometheus.Counter
}

var (
	jobMetricsOnce sync.Once
	jobMetrics     *JobMetrics
)

// Jobs returns the singleton job metrics registry.
func Jobs() *JobMetrics {
	return JobsWithConfig(Config{})
}

// JobsWithConfig returns the singleton job metrics registry using config labels.
func JobsWithConfig(cfg Config) *JobMetrics {
	jobMetricsOnce.Do(func() {
		jobMetrics = newJobMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return jobMetrics
}

func newJobMetrics(registerer prometheus.Registerer, cfg Config) *JobMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "streamgate"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	submitted := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "streamgate_jobs_submitted_total",
		Help:        "Jobs handed to the queue by name.",
		ConstLabels: constLabels,
	}, []string{"job"})
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "streamgate_job_runs_total",
		Help:        "Job executions by name and outcome.",
		ConstLabels: constLabels,
	}, []string{"job", "outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "streamgate_job_duration_seconds",
		Help:        "Job latency. Provisioning waits on instance boot so buckets reach into minutes.",
		Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		ConstLabels: constLabels,
	}, []string{"job"})
	jobErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "streamgate_job_errors_total",
		Help:        "Job errors by low-cardinality reason.",
		ConstLabels: constLabels,
	}, []string{"job", "reason"})
	queueDepth := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "streamgate_job_queue_depth",
		Help:        "Pending jobs observed by the last worker poll.",
		ConstLabels: constLabels,
	})
	redelivered := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "streamgate_jobs_redelivered_total",
		Help:        "In-flight jobs requeued after a worker restart.",
		ConstLabels: constLabels,
	})

	registerer.MustRegister(submitted, runs, duration, jobErrors, queueDepth, redelivered)

	return &JobMetrics{
		submitted:   submitted,
		runs:        runs,
		duration:    duration,
		errors:      jobErrors,
		queueDepth:  queueDepth,
		redelivered: redelivered,
	}
}

// IncSubmitted increments the submit counter for a job.
func (m *JobMetrics) IncSubmitted(job string) {
	if m == nil {
		return
	}
	m.submitted.WithLabelValues(job).Inc()
}

// ObserveRun records one job execution.
func (m *JobMetrics) ObserveRun(job, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(job, outcome).Inc()
	m.duration.WithLabelValues(job).Observe(elapsed.Seconds())
}

// IncError increments the job error counter with classification.
func (m *JobMetrics) IncError(job string, err error) {
	if m == nil || err == nil {
		return
	}
	m.errors.WithLabelValues(job, ClassifyJobError(err)).Inc()
}

// SetQueueDepth records the pending queue length.
func (m *JobMetrics) SetQueueDepth(depth int64) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(depth))
}

// AddRedelivered counts jobs moved back to the pending queue.
func (m *JobMetrics) AddRedelivered(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.redelivered.Add(float64(n))
}

// ClassifyJobError maps job errors to a small label set.
func ClassifyJobError(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded):
		return JobErrorReasonDeadlineExceeded
	case errors.Is(err, context.Canceled):
		return JobErrorReasonCanceled
	}
	var classified interface{ Reason() string }
	if errors.As(err, &classified) {
		if reason := strings.TrimSpace(classified.Reason()); reason != "" {
			return reason
		}
	}
	return JobErrorReasonUnknown
}
