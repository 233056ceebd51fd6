/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Rejection reason label values.
const (
	ReasonTooLarge    = "too_large"
	ReasonUnsupported = "unsupported_format"
	ReasonBackend     = "backend"
)

// JobRecorder is the subset of JobMetrics the job tracker and intake use.
type JobRecorder interface {
	RecordTransition(state string)
	JobQueued()
	JobFinished(state string, elapsedSeconds float64)
	RecordRejected(reason string)
	ObserveUpload(fileType string, size int64)
}

// JobMetrics holds Prometheus metrics for the document job lifecycle.
type JobMetrics struct {
	// TransitionsTotal counts status writes by the state they moved the job to.
	TransitionsTotal *prometheus.CounterVec
	// ActiveJobs is the number of queued or processing jobs seen by this
	// process. Jobs that expire from the cache without finishing stay counted.
	ActiveJobs prometheus.Gauge
	// ProcessingDuration observes time from queueing to a terminal state.
	ProcessingDuration *prometheus.HistogramVec
	// RejectedTotal counts submissions that did not produce a job.
	RejectedTotal *prometheus.CounterVec
	// UploadSize observes accepted upload sizes by file type.
	UploadSize *prometheus.HistogramVec
}

// NewJobMetrics creates and registers job metrics with the default registry.
func NewJobMetrics() *JobMetrics {
	return newJobMetrics(promauto.With(prometheus.DefaultRegisterer))
}

// NewJobMetricsWithRegistry creates job metrics registered on reg.
func NewJobMetricsWithRegistry(reg prometheus.Registerer) *JobMetrics {
	return newJobMetrics(promauto.With(reg))
}

func newJobMetrics(f promauto.Factory) *JobMetrics {
	return &JobMetrics{
		TransitionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "docproc_job_transitions_total",
			Help: "Total number of job status transitions by target state",
		}, []string{"state"}),

		ActiveJobs: f.NewGauge(prometheus.GaugeOpts{
			Name: "docproc_jobs_active",
			Help: "Number of jobs queued or processing",
		}),

		ProcessingDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "docproc_job_processing_duration_seconds",
			Help:    "Time from queueing to completion, failure or cancellation",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600, 1800},
		}, []string{"state"}),

		RejectedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "docproc_job_rejected_total",
			Help: "Total number of rejected document submissions by reason",
		}, []string{"reason"}),

		UploadSize: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "docproc_job_upload_size_bytes",
			Help:    "Size of accepted document uploads in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 10),
		}, []string{"type"}),
	}
}

// Initialize pre-registers the gauge and rejection series so they appear in /metrics
// output at startup.
func (m *JobMetrics) Initialize() {
	m.ActiveJobs.Set(0)
	for _, reason := range []string{ReasonTooLarge, ReasonUnsupported, ReasonBackend} {
		m.RejectedTotal.WithLabelValues(reason)
	}
}

// RecordTransition increments the transition counter for state.
func (m *JobMetrics) RecordTransition(state string) {
	m.TransitionsTotal.WithLabelValues(state).Inc()
}

// JobQueued counts a new active job.
func (m *JobMetrics) JobQueued() {
	m.ActiveJobs.Inc()
}

// JobFinished releases an active job and observes its lifetime.
func (m *JobMetrics) JobFinished(state string, elapsedSeconds float64) {
	m.ActiveJobs.Dec()
	m.ProcessingDuration.WithLabelValues(state).Observe(elapsedSeconds)
}

// RecordRejected increments the rejection counter for reason.
func (m *JobMetrics) RecordRejected(reason string) {
	m.RejectedTotal.WithLabelValues(reason).Inc()
}

// ObserveUpload records the size of an accepted upload.
func (m *JobMetrics) ObserveUpload(fileType string, size int64) {
	m.UploadSize.WithLabelValues(fileType).Observe(float64(size))
}

// NoopJobRecorder discards all job measurements.
type NoopJobRecorder struct{}

func (NoopJobRecorder) RecordTransition(string)     {}
func (NoopJobRecorder) JobQueued()                  {}
func (NoopJobRecorder) JobFinished(string, float64) {}
func (NoopJobRecorder) RecordRejected(string)       {}
func (NoopJobRecorder) ObserveUpload(string, int64) {}

var (
	_ JobRecorder = (*JobMetrics)(nil)
	_ JobRecorder = NoopJobRecorder{}
)
