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
	"errors"
	"fmt"
	"time"

	"github.com/go-logr/logr"

	"github.com/altairalabs/docproc/internal/backend"
	"github.com/altairalabs/docproc/pkg/logctx"
	"github.com/altairalabs/docproc/pkg/metrics"
)

var (
	// ErrJobNotFound means no status record exists for the job, either
	// because it was never created or because it expired.
	ErrJobNotFound = errors.New("job not found")
	// ErrJobFinished is returned when a transition targets a job that is
	// already completed, failed or cancelled.
	ErrJobFinished = errors.New("job already finished")
	// ErrStatusUnavailable wraps state cache failures.
	ErrStatusUnavailable = errors.New("job status unavailable")
)

// StatusStore is the subset of the state cache the tracker needs.
type StatusStore interface {
	LookupJobStatus(ctx context.Context, jobID string) backend.Result[json.RawMessage]
	StoreJobStatus(ctx context.Context, jobID string, status any, ttl time.Duration) backend.Result[struct{}]
	Increment(ctx context.Context, key string) backend.Result[int64]
}

// Tracker records job lifecycle transitions. Transitions read the current
// record, modify it and write it back; concurrent writers race and the last
// write wins.
type Tracker struct {
	store StatusStore
	log   logr.Logger
	ttl   time.Duration
	now   func() time.Time
	rec   metrics.JobRecorder
}

// NewTracker creates a Tracker. A ttl of zero keeps the store's job status
// TTL.
func NewTracker(store StatusStore, log logr.Logger, ttl time.Duration) *Tracker {
	return &Tracker{
		store: store,
		log:   log.WithName("jobs"),
		ttl:   ttl,
		now:   time.Now,
		rec:   metrics.NoopJobRecorder{},
	}
}

// WithMetrics records every successful status write on rec.
func (t *Tracker) WithMetrics(rec metrics.JobRecorder) *Tracker {
	t.rec = rec
	return t
}

// Enqueue writes the initial queued record for a new job.
func (t *Tracker) Enqueue(ctx context.Context, jobID, filename string, size int64) (*JobStatus, error) {
	now := t.now().UTC()
	status := &JobStatus{
		JobID:     jobID,
		Filename:  filename,
		Size:      size,
		Type:      FileType(filename),
		State:     StateQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := t.save(ctx, status); err != nil {
		return nil, err
	}
	t.rec.JobQueued()
	logctx.LoggerWithContext(t.log, logctx.WithJobID(ctx, jobID)).Info("job queued",
		"filename", filename, "size", size, "type", status.Type)
	return status, nil
}

// Get returns the current record of jobID.
func (t *Tracker) Get(ctx context.Context, jobID string) (*JobStatus, error) {
	res := t.store.LookupJobStatus(ctx, jobID)
	switch res.Outcome {
	case backend.OutcomeMiss:
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	case backend.OutcomeError:
		return nil, fmt.Errorf("%w: %w", ErrStatusUnavailable, res.Err)
	}

	var status JobStatus
	if err := json.Unmarshal(res.Value, &status); err != nil {
		return nil, fmt.Errorf("%w: decode status of %s: %w", ErrStatusUnavailable, jobID, err)
	}
	return &status, nil
}

// Progress marks the job processing with the given percentage, clamped to
// [0, 100].
func (t *Tracker) Progress(ctx context.Context, jobID string, percent int) (*JobStatus, error) {
	return t.transition(ctx, jobID, func(s *JobStatus) {
		s.State = StateProcessing
		s.Progress = min(max(percent, 0), 100)
	})
}

// Complete marks the job completed and counts it in jobs:completed.
func (t *Tracker) Complete(ctx context.Context, jobID string) (*JobStatus, error) {
	status, err := t.transition(ctx, jobID, func(s *JobStatus) {
		s.State = StateCompleted
		s.Progress = 100
	})
	if err != nil {
		return nil, err
	}
	t.count(ctx, CounterCompleted)
	return status, nil
}

// Fail marks the job failed with reason and counts it in jobs:failed.
func (t *Tracker) Fail(ctx context.Context, jobID, reason string) (*JobStatus, error) {
	status, err := t.transition(ctx, jobID, func(s *JobStatus) {
		s.State = StateFailed
		s.Error = reason
	})
	if err != nil {
		return nil, err
	}
	t.count(ctx, CounterFailed)
	return status, nil
}

// Cancel marks the job cancelled. Workers observe the state on their next
// Progress call, which fails with ErrJobFinished.
func (t *Tracker) Cancel(ctx context.Context, jobID string) (*JobStatus, error) {
	return t.transition(ctx, jobID, func(s *JobStatus) {
		at := t.now().UTC()
		s.State = StateCancelled
		s.CancelledAt = &at
	})
}

func (t *Tracker) transition(ctx context.Context, jobID string, apply func(*JobStatus)) (*JobStatus, error) {
	status, err := t.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if status.State.Terminal() {
		return nil, fmt.Errorf("%w: %s is %s", ErrJobFinished, jobID, status.State)
	}

	from := status.State
	apply(status)
	status.UpdatedAt = t.now().UTC()
	if err := t.save(ctx, status); err != nil {
		return nil, err
	}
	if status.State.Terminal() {
		t.rec.JobFinished(string(status.State), status.UpdatedAt.Sub(status.CreatedAt).Seconds())
	}
	logctx.LoggerWithContext(t.log, logctx.WithJobID(ctx, jobID)).V(1).Info("job state changed",
		"from", string(from), "to", string(status.State), "progress", status.Progress)
	return status, nil
}

func (t *Tracker) save(ctx context.Context, status *JobStatus) error {
	res := t.store.StoreJobStatus(ctx, status.JobID, status, t.ttl)
	if !res.Ok() {
		return fmt.Errorf("%w: save %s: %w", ErrStatusUnavailable, status.JobID, res.Err)
	}
	t.rec.RecordTransition(string(status.State))
	return nil
}

func (t *Tracker) count(ctx context.Context, key string) {
	if res := t.store.Increment(ctx, key); !res.Ok() {
		t.log.Error(res.Err, "job counter not updated", "key", key)
	}
}
