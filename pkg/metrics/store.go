/*
Copyright 2026 Altaira Labs.

SPDX-License-Identifier: Apache-2.0

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

// Package metrics holds the Prometheus collectors exported by docproc.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome label values.
const (
	OutcomeOK    = "ok"
	OutcomeMiss  = "miss"
	OutcomeError = "error"
)

// Component label values.
const (
	ComponentBlobStore  = "blobstore"
	ComponentStateCache = "statecache"
)

// Recorder is the subset of StoreMetrics the store components depend on.
// A nil Recorder is never passed around; use NoopRecorder instead.
type Recorder interface {
	RecordOperation(component, operation, outcome string, durationSeconds float64)
	SetBackendUp(component string, up bool)
	RecordBytes(component, direction string, n int)
}

// StoreMetrics holds Prometheus metrics for the artifact and state stores.
type StoreMetrics struct {
	// OperationsTotal counts operations by component, operation and outcome.
	// A best-effort operation that returned its sentinel because of a backend
	// failure is recorded as "error", never as "miss".
	OperationsTotal *prometheus.CounterVec
	// OperationDuration observes operation latency in seconds.
	OperationDuration *prometheus.HistogramVec
	// BackendUp is 1 while the last liveness probe of the backend succeeded.
	BackendUp *prometheus.GaugeVec
	// BytesTotal counts payload bytes by component and direction (in/out).
	BytesTotal *prometheus.CounterVec
}

// NewStoreMetrics creates and registers store metrics with the default registry.
func NewStoreMetrics() *StoreMetrics {
	return newStoreMetrics(promauto.With(prometheus.DefaultRegisterer))
}

// NewStoreMetricsWithRegistry creates store metrics registered on reg.
func NewStoreMetricsWithRegistry(reg prometheus.Registerer) *StoreMetrics {
	return newStoreMetrics(promauto.With(reg))
}

func newStoreMetrics(f promauto.Factory) *StoreMetrics {
	return &StoreMetrics{
		OperationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "docproc_store_operations_total",
			Help: "Total number of store operations by component, operation and outcome",
		}, []string{"component", "operation", "outcome"}),

		OperationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "docproc_store_operation_duration_seconds",
			Help:    "Duration of store operations in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"component", "operation"}),

		BackendUp: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "docproc_store_backend_up",
			Help: "Whether the storage backend answered its last liveness probe (1) or not (0)",
		}, []string{"component"}),

		BytesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "docproc_store_bytes_total",
			Help: "Total artifact payload bytes transferred by direction",
		}, []string{"component", "direction"}),
	}
}

// Initialize pre-registers gauges so they appear in /metrics output at startup.
func (m *StoreMetrics) Initialize() {
	m.BackendUp.WithLabelValues(ComponentBlobStore).Set(0)
	m.BackendUp.WithLabelValues(ComponentStateCache).Set(0)
}

// RecordOperation records one operation outcome and its latency.
func (m *StoreMetrics) RecordOperation(component, operation, outcome string, durationSeconds float64) {
	m.OperationsTotal.WithLabelValues(component, operation, outcome).Inc()
	m.OperationDuration.WithLabelValues(component, operation).Observe(durationSeconds)
}

// SetBackendUp records the result of a liveness probe.
func (m *StoreMetrics) SetBackendUp(component string, up bool) {
	v := 0.0
	if up {
		v = 1
	}
	m.BackendUp.WithLabelValues(component).Set(v)
}

// RecordBytes adds n payload bytes for the given direction ("in" or "out").
func (m *StoreMetrics) RecordBytes(component, direction string, n int) {
	if n <= 0 {
		return
	}
	m.BytesTotal.WithLabelValues(component, direction).Add(float64(n))
}

// NoopRecorder discards all measurements.
type NoopRecorder struct{}

func (NoopRecorder) RecordOperation(string, string, string, float64) {}
func (NoopRecorder) SetBackendUp(string, bool)                       {}
func (NoopRecorder) RecordBytes(string, string, int)                 {}

var (
	_ Recorder = (*StoreMetrics)(nil)
	_ Recorder = NoopRecorder{}
)
