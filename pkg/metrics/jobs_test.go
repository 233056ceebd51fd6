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
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewJobMetricsWithRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewJobMetricsWithRegistry(reg)
	if m.TransitionsTotal == nil {
		t.Error("TransitionsTotal is nil")
	}
	if m.RejectedTotal == nil {
		t.Error("RejectedTotal is nil")
	}
	if m.UploadSize == nil {
		t.Error("UploadSize is nil")
	}
	if m.ActiveJobs == nil {
		t.Error("ActiveJobs is nil")
	}
	if m.ProcessingDuration == nil {
		t.Error("ProcessingDuration is nil")
	}
}

func TestJobMetrics_Initialize(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewJobMetricsWithRegistry(reg)
	m.Initialize()

	if got := testutil.CollectAndCount(m.RejectedTotal); got != 3 {
		t.Errorf("rejected series = %d, want 3", got)
	}
	if got := testutil.ToFloat64(m.RejectedTotal.WithLabelValues(ReasonTooLarge)); got != 0 {
		t.Errorf("too_large = %v, want 0", got)
	}
}

func TestJobMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewJobMetricsWithRegistry(reg)

	m.RecordTransition("queued")
	m.RecordTransition("queued")
	m.RecordTransition("completed")
	m.RecordRejected(ReasonUnsupported)
	m.ObserveUpload("pdf", 4096)

	if got := testutil.ToFloat64(m.TransitionsTotal.WithLabelValues("queued")); got != 2 {
		t.Errorf("queued = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.TransitionsTotal.WithLabelValues("completed")); got != 1 {
		t.Errorf("completed = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.RejectedTotal.WithLabelValues(ReasonUnsupported)); got != 1 {
		t.Errorf("unsupported = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(m.UploadSize); got != 1 {
		t.Errorf("upload size series = %d, want 1", got)
	}
}

func TestNoopJobRecorder(t *testing.T) {
	var r JobRecorder = NoopJobRecorder{}
	r.RecordTransition("queued")
	r.JobQueued()
	r.JobFinished("completed", 1)
	r.RecordRejected(ReasonBackend)
	r.ObserveUpload("txt", 1)
}

func TestJobMetrics_ActiveJobs(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewJobMetricsWithRegistry(reg)
	m.Initialize()

	m.JobQueued()
	m.JobQueued()
	m.JobQueued()
	m.JobFinished("completed", 12)
	m.JobFinished("cancelled", 0.4)

	if got := testutil.ToFloat64(m.ActiveJobs); got != 1 {
		t.Errorf("active = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(m.ProcessingDuration); got != 2 {
		t.Errorf("duration series = %d, want 2", got)
	}
}
