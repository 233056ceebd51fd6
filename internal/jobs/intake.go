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
	"errors"
	"fmt"
	"slices"

	"github.com/go-logr/logr"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/altairalabs/docproc/internal/tracing"
	"github.com/altairalabs/docproc/pkg/logctx"
	"github.com/altairalabs/docproc/pkg/metrics"
)

var (
	// ErrFileTooLarge is returned by Limits.Check for oversized uploads.
	ErrFileTooLarge = errors.New("file too large")
	// ErrUnsupportedFormat is returned by Limits.Check for unknown extensions.
	ErrUnsupportedFormat = errors.New("unsupported format")
)

// Limits restricts which uploads are accepted.
type Limits struct {
	// MaxFileSize is the largest accepted upload in bytes. Zero disables the
	// check.
	MaxFileSize int64
	// SupportedFormats lists accepted lower-case file extensions. Empty
	// accepts every extension.
	SupportedFormats []string
}

// DefaultLimits accepts documents and images up to 50 MiB.
func DefaultLimits() Limits {
	return Limits{
		MaxFileSize:      50 * 1024 * 1024,
		SupportedFormats: []string{"pdf", "png", "jpg", "jpeg", "txt"},
	}
}

// Check validates an upload and returns its file type.
func (l Limits) Check(filename string, size int64) (string, error) {
	if l.MaxFileSize > 0 && size > l.MaxFileSize {
		return "", fmt.Errorf("%w: %d bytes exceeds %d", ErrFileTooLarge, size, l.MaxFileSize)
	}
	fileType := FileType(filename)
	if len(l.SupportedFormats) > 0 && !slices.Contains(l.SupportedFormats, fileType) {
		return "", fmt.Errorf("%w: %q (supported: %v)", ErrUnsupportedFormat, fileType, l.SupportedFormats)
	}
	return fileType, nil
}

// ArtifactStore is the subset of the blob store Intake needs.
type ArtifactStore interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Delete(ctx context.Context, key string) bool
}

// Intake accepts new documents: it stores the upload and queues the job.
type Intake struct {
	artifacts ArtifactStore
	tracker   *Tracker
	limits    Limits
	log       logr.Logger
	tracer    trace.Tracer
	rec       metrics.JobRecorder
}

// NewIntake creates an Intake.
func NewIntake(artifacts ArtifactStore, tracker *Tracker, limits Limits, log logr.Logger) *Intake {
	return &Intake{
		artifacts: artifacts,
		tracker:   tracker,
		limits:    limits,
		log:       log.WithName("intake"),
		tracer:    otel.Tracer(tracing.TracerName),
		rec:       metrics.NoopJobRecorder{},
	}
}

// WithMetrics records rejections and accepted upload sizes on rec.
func (i *Intake) WithMetrics(rec metrics.JobRecorder) *Intake {
	i.rec = rec
	return i
}

// WithTracer replaces the tracer taken from the global provider.
func (i *Intake) WithTracer(tracer trace.Tracer) *Intake {
	i.tracer = tracer
	return i
}

// Submit validates and stores a document under UploadKey and writes its
// queued status. If the status cannot be written the upload is removed so no
// orphaned artifact is left behind.
func (i *Intake) Submit(ctx context.Context, filename, contentType string, data []byte) (_ *JobStatus, err error) {
	ctx, span := tracing.StartJobSpan(ctx, i.tracer, "job.submit", "")
	defer func() {
		if err != nil {
			tracing.RecordError(span, err)
		} else {
			tracing.SetSuccess(span)
		}
		span.End()
	}()

	fileType, err := i.limits.Check(filename, int64(len(data)))
	if err != nil {
		i.rec.RecordRejected(rejectReason(err))
		return nil, err
	}

	jobID := NewJobID()
	ctx = logctx.WithJobID(ctx, jobID)
	key := UploadKey(jobID, filename)
	tracing.AddUploadAttributes(span, jobID, key, fileType, int64(len(data)))

	if _, err := i.artifacts.Upload(ctx, key, data, contentType); err != nil {
		i.rec.RecordRejected(metrics.ReasonBackend)
		return nil, fmt.Errorf("store upload: %w", err)
	}

	status, err := i.tracker.Enqueue(ctx, jobID, filename, int64(len(data)))
	if err != nil {
		if !i.artifacts.Delete(ctx, key) {
			logctx.LoggerWithContext(i.log, ctx).Info("orphaned upload left in blob store", "key", key)
		}
		i.rec.RecordRejected(metrics.ReasonBackend)
		return nil, err
	}
	i.rec.ObserveUpload(fileType, int64(len(data)))
	return status, nil
}

func rejectReason(err error) string {
	if errors.Is(err, ErrFileTooLarge) {
		return metrics.ReasonTooLarge
	}
	return metrics.ReasonUnsupported
}
