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

package jobs

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-logr/logr/testr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/altairalabs/docproc/internal/statecache"
	"github.com/altairalabs/docproc/pkg/metrics"
)

var fixedNow = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

func setupTracker(t *testing.T) (*Tracker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := statecache.DefaultConfig()
	cfg.HealthCheckInterval = 0
	cfg.BreakerFailures = 0
	cache := statecache.NewFromClient(client, cfg, testr.New(t), nil)
	require.NoError(t, cache.Connect(context.Background()))
	t.Cleanup(func() { _ = cache.Close() })

	tr := NewTracker(cache, testr.New(t), 0)
	tr.now = func() time.Time { return fixedNow }
	return tr, mr
}

func TestState_Terminal(t *testing.T) {
	tests := []struct {
		state State
		want  bool
	}{
		{StateQueued, false},
		{StateProcessing, false},
		{StateCompleted, true},
		{StateFailed, true},
		{StateCancelled, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.state.Terminal())
		})
	}
}

func TestKeysAndIDs(t *testing.T) {
	assert.Equal(t, "uploads/abc/report.pdf", UploadKey("abc", "report.pdf"))
	assert.Equal(t, "pdf", FileType("Report.PDF"))
	assert.Equal(t, "gz", FileType("archive.tar.gz"))
	assert.Equal(t, "", FileType("README"))

	id1, id2 := NewJobID(), NewJobID()
	assert.Len(t, id1, 36)
	assert.NotEqual(t, id1, id2)
}

func TestEnqueue(t *testing.T) {
	tr, mr := setupTracker(t)
	ctx := context.Background()

	status, err := tr.Enqueue(ctx, "job-1", "scan.PNG", 2048)
	require.NoError(t, err)
	assert.Equal(t, StateQueued, status.State)
	assert.Equal(t, "png", status.Type)
	assert.Equal(t, 0, status.Progress)
	assert.Equal(t, fixedNow, status.CreatedAt)

	raw, err := mr.Get("job:status:job-1")
	require.NoError(t, err)
	var stored map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &stored))
	assert.Equal(t, "queued", stored["status"])
	assert.Equal(t, "job-1", stored["job_id"])
	assert.Equal(t, 24*time.Hour, mr.TTL("job:status:job-1"))
}

func TestGet_Unknown(t *testing.T) {
	tr, _ := setupTracker(t)

	_, err := tr.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrJobNotFound)
	assert.NotErrorIs(t, err, ErrStatusUnavailable)
}

func TestGet_Expired(t *testing.T) {
	tr, mr := setupTracker(t)
	tr.ttl = time.Minute
	ctx := context.Background()

	_, err := tr.Enqueue(ctx, "job-1", "a.txt", 1)
	require.NoError(t, err)
	mr.FastForward(2 * time.Minute)

	_, err = tr.Get(ctx, "job-1")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestGet_BackendDown(t *testing.T) {
	tr, mr := setupTracker(t)
	ctx := context.Background()
	_, err := tr.Enqueue(ctx, "job-1", "a.txt", 1)
	require.NoError(t, err)

	mr.SetError("ERR down")
	_, err = tr.Get(ctx, "job-1")
	assert.ErrorIs(t, err, ErrStatusUnavailable)
	assert.NotErrorIs(t, err, ErrJobNotFound)

	_, err = tr.Enqueue(ctx, "job-2", "b.txt", 1)
	assert.ErrorIs(t, err, ErrStatusUnavailable)
}

func TestGet_CorruptRecord(t *testing.T) {
	tr, mr := setupTracker(t)
	require.NoError(t, mr.Set("job:status:bad", "{not json"))

	_, err := tr.Get(context.Background(), "bad")
	assert.ErrorIs(t, err, ErrStatusUnavailable)
}

func TestProgress(t *testing.T) {
	tr, _ := setupTracker(t)
	ctx := context.Background()
	_, err := tr.Enqueue(ctx, "job-1", "a.pdf", 10)
	require.NoError(t, err)

	tests := []struct {
		in, want int
	}{
		{40, 40},
		{150, 100},
		{-5, 0},
	}
	for _, tt := range tests {
		status, err := tr.Progress(ctx, "job-1", tt.in)
		require.NoError(t, err)
		assert.Equal(t, StateProcessing, status.State)
		assert.Equal(t, tt.want, status.Progress)
	}

	got, err := tr.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, 0, got.Progress)
	assert.Equal(t, fixedNow, got.UpdatedAt)
}

func TestProgress_Unknown(t *testing.T) {
	tr, _ := setupTracker(t)

	_, err := tr.Progress(context.Background(), "nope", 10)
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestComplete(t *testing.T) {
	tr, mr := setupTracker(t)
	ctx := context.Background()
	_, err := tr.Enqueue(ctx, "job-1", "a.pdf", 10)
	require.NoError(t, err)
	_, err = tr.Progress(ctx, "job-1", 60)
	require.NoError(t, err)

	status, err := tr.Complete(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, status.State)
	assert.Equal(t, 100, status.Progress)

	n, err := mr.Get(CounterCompleted)
	require.NoError(t, err)
	assert.Equal(t, "1", n)

	_, err = tr.Progress(ctx, "job-1", 10)
	assert.ErrorIs(t, err, ErrJobFinished)
	_, err = tr.Complete(ctx, "job-1")
	assert.ErrorIs(t, err, ErrJobFinished)

	n, err = mr.Get(CounterCompleted)
	require.NoError(t, err)
	assert.Equal(t, "1", n, "a finished job is counted once")
}

func TestFail(t *testing.T) {
	tr, mr := setupTracker(t)
	ctx := context.Background()
	_, err := tr.Enqueue(ctx, "job-1", "a.pdf", 10)
	require.NoError(t, err)

	status, err := tr.Fail(ctx, "job-1", "ocr timeout")
	require.NoError(t, err)
	assert.Equal(t, StateFailed, status.State)
	assert.Equal(t, "ocr timeout", status.Error)

	n, err := mr.Get(CounterFailed)
	require.NoError(t, err)
	assert.Equal(t, "1", n)
	assert.False(t, mr.Exists(CounterCompleted))
}

func TestCancel(t *testing.T) {
	tr, mr := setupTracker(t)
	ctx := context.Background()
	_, err := tr.Enqueue(ctx, "job-1", "a.pdf", 10)
	require.NoError(t, err)

	status, err := tr.Cancel(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, StateCancelled, status.State)
	require.NotNil(t, status.CancelledAt)
	assert.Equal(t, fixedNow, *status.CancelledAt)

	_, err = tr.Progress(ctx, "job-1", 50)
	assert.ErrorIs(t, err, ErrJobFinished)
	_, err = tr.Cancel(ctx, "job-1")
	assert.ErrorIs(t, err, ErrJobFinished)
	assert.False(t, mr.Exists(CounterCompleted))
	assert.False(t, mr.Exists(CounterFailed))
}

func TestTransition_SaveFails(t *testing.T) {
	tr, mr := setupTracker(t)
	ctx := context.Background()
	_, err := tr.Enqueue(ctx, "job-1", "a.pdf", 10)
	require.NoError(t, err)

	mr.SetError("ERR read only")
	_, err = tr.Complete(ctx, "job-1")
	assert.ErrorIs(t, err, ErrStatusUnavailable)

	mr.SetError("")
	assert.False(t, mr.Exists(CounterCompleted))
}

func TestTracker_ActiveJobsAndDuration(t *testing.T) {
	tr, _ := setupTracker(t)
	m := metrics.NewJobMetricsWithRegistry(prometheus.NewRegistry())
	tr.WithMetrics(m)
	ctx := context.Background()

	_, err := tr.Enqueue(ctx, "job-1", "a.pdf", 10)
	require.NoError(t, err)
	_, err = tr.Enqueue(ctx, "job-2", "b.pdf", 10)
	require.NoError(t, err)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ActiveJobs))

	tr.now = func() time.Time { return fixedNow.Add(90 * time.Second) }
	_, err = tr.Progress(ctx, "job-1", 50)
	require.NoError(t, err)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ActiveJobs), "progress keeps the job active")

	_, err = tr.Complete(ctx, "job-1")
	require.NoError(t, err)
	_, err = tr.Cancel(ctx, "job-1")
	require.ErrorIs(t, err, ErrJobFinished)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActiveJobs), "a finished job is released once")

	var pb dto.Metric
	observer := m.ProcessingDuration.WithLabelValues(string(StateCompleted))
	require.NoError(t, observer.(prometheus.Metric).Write(&pb))
	assert.Equal(t, uint64(1), pb.GetHistogram().GetSampleCount())
	assert.Equal(t, 90.0, pb.GetHistogram().GetSampleSum())

	_, err = tr.Cancel(ctx, "job-2")
	require.NoError(t, err)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ActiveJobs))
}
