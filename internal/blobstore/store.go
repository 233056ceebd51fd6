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

// Package blobstore stores document artifacts in a single bucket of an
// S3-compatible object store.
//
// Connect, Upload, UploadStream, Download and PresignedURL fail fast: errors
// are logged and returned as *ConnectError, *WriteError or *ReadError.
// Delete, Exists and List are best effort: errors are logged and collapsed to
// false or an empty listing. The *Result variants of the best-effort
// operations keep "absent" and "backend failed" apart.
package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/go-logr/logr"

	"github.com/altairalabs/docproc/internal/backend"
	"github.com/altairalabs/docproc/pkg/logctx"
	"github.com/altairalabs/docproc/pkg/metrics"
)

// ObjectInfo describes one artifact returned by List.
type ObjectInfo struct {
	Name         string    `json:"name"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModified"`
	ETag         string    `json:"etag"`
}

// Store owns one bucket for the lifetime of the process. It is safe for
// concurrent use once Connect has returned; Connect itself must not race
// with other calls.
type Store struct {
	cfg     Config
	log     logr.Logger
	metrics metrics.Recorder
	dial    dialFunc

	mu      sync.RWMutex
	state   backend.State
	client  s3API
	presign presignAPI
}

// New creates an unconnected Store. Call Connect before any data operation.
func New(cfg Config, log logr.Logger, rec metrics.Recorder) *Store {
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	return &Store{
		cfg:     cfg.withDefaults(),
		log:     log.WithName("blobstore"),
		metrics: rec,
		dial:    dialS3,
	}
}

// Bucket returns the configured bucket name.
func (s *Store) Bucket() string {
	return s.cfg.Bucket
}

// State returns the current connection state.
func (s *Store) State() backend.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Connect builds the backend client and ensures the bucket exists, creating
// it when absent. It is not retried; a failure means the process should not
// start accepting work.
func (s *Store) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case backend.StateConnected:
		return nil
	case backend.StateDisconnected:
		return &ConnectError{Bucket: s.cfg.Bucket, Err: backend.ErrClosed}
	}

	if err := s.cfg.Validate(); err != nil {
		return s.connectFailed(err)
	}

	client, presign, err := s.dial(ctx, s.cfg)
	if err != nil {
		return s.connectFailed(err)
	}

	if err := ensureBucket(ctx, client, s.cfg); err != nil {
		return s.connectFailed(err)
	}

	s.client = client
	s.presign = presign
	s.state = backend.StateConnected
	s.metrics.SetBackendUp(metrics.ComponentBlobStore, true)
	s.log.Info("blob store connected", "bucket", s.cfg.Bucket, "endpoint", s.cfg.endpointURL())
	return nil
}

func (s *Store) connectFailed(err error) error {
	s.metrics.SetBackendUp(metrics.ComponentBlobStore, false)
	s.log.Error(err, "blob store connection failed", "bucket", s.cfg.Bucket, "endpoint", s.cfg.endpointURL())
	return &ConnectError{Bucket: s.cfg.Bucket, Err: err}
}

// ensureBucket creates cfg.Bucket unless HeadBucket confirms it exists.
func ensureBucket(ctx context.Context, client s3API, cfg Config) error {
	_, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(cfg.Bucket)})
	if err == nil {
		return nil
	}
	if !isNotFound(err) {
		return fmt.Errorf("head bucket: %w", err)
	}

	input := &s3.CreateBucketInput{Bucket: aws.String(cfg.Bucket)}
	// us-east-1 rejects an explicit location constraint.
	if cfg.Region != "" && cfg.Region != defaultRegion {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(cfg.Region),
		}
	}
	if _, err := client.CreateBucket(ctx, input); err != nil && !isBucketOwned(err) {
		return fmt.Errorf("create bucket: %w", err)
	}
	return nil
}

// Close marks the store disconnected. The AWS client holds no resources that
// need releasing; data operations fail afterwards.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = backend.StateDisconnected
	s.client = nil
	s.presign = nil
	return nil
}

// Ping checks that the bucket is still reachable.
func (s *Store) Ping(ctx context.Context) error {
	client, _, err := s.conn()
	if err != nil {
		return err
	}
	_, err = client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.cfg.Bucket)})
	s.metrics.SetBackendUp(metrics.ComponentBlobStore, err == nil)
	if err != nil {
		return fmt.Errorf("blobstore: ping: %w", err)
	}
	return nil
}

func (s *Store) conn() (s3API, presignAPI, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.state.Err(); err != nil {
		return nil, nil, err
	}
	return s.client, s.presign, nil
}

// Upload writes data under key, replacing any existing object, and returns
// the backend-issued ETag. An empty contentType selects
// application/octet-stream.
func (s *Store) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	return s.put(ctx, "upload", key, bytes.NewReader(data), int64(len(data)), contentType)
}

// UploadStream writes exactly size bytes read from r under key. The caller
// declares the length; r does not need to be seekable.
func (s *Store) UploadStream(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error) {
	if size < 0 {
		return "", s.writeFailed(ctx, "upload", key, ErrInvalidSize, time.Now())
	}
	return s.put(ctx, "upload", key, r, size, contentType)
}

func (s *Store) put(ctx context.Context, op, key string, body io.Reader, size int64, contentType string) (string, error) {
	start := time.Now()
	if key == "" {
		return "", s.writeFailed(ctx, op, key, ErrInvalidKey, start)
	}
	client, _, err := s.conn()
	if err != nil {
		return "", s.writeFailed(ctx, op, key, err, start)
	}
	if contentType == "" {
		contentType = DefaultContentType
	}

	var optFns []func(*s3.Options)
	if _, seekable := body.(io.ReadSeeker); !seekable {
		// SigV4 cannot hash a one-shot stream up front.
		optFns = append(optFns, s3.WithAPIOptions(v4.SwapComputePayloadSHA256ForUnsignedPayloadMiddleware))
	}

	out, err := client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.cfg.Bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType),
	}, optFns...)
	if err != nil {
		return "", s.writeFailed(ctx, op, key, err, start)
	}

	etag := normalizeETag(aws.ToString(out.ETag))
	s.observe(op, backend.OutcomeHit, start)
	s.metrics.RecordBytes(metrics.ComponentBlobStore, "in", int(size))
	logctx.LoggerWithContext(s.log, ctx).V(1).Info("artifact uploaded",
		"key", key, "size", size, "contentType", contentType, "etag", etag)
	return etag, nil
}

func (s *Store) writeFailed(ctx context.Context, op, key string, err error, start time.Time) error {
	s.observe(op, backend.OutcomeError, start)
	logctx.LoggerWithContext(s.log, ctx).Error(err, "artifact upload failed", "op", op, "key", key)
	return &WriteError{Op: op, Key: key, Err: err}
}

// Download reads the whole object stored under key. The response body is
// released on every path.
func (s *Store) Download(ctx context.Context, key string) ([]byte, error) {
	const op = "download"
	start := time.Now()
	if key == "" {
		return nil, s.readFailed(ctx, op, key, ErrInvalidKey, start)
	}
	client, _, err := s.conn()
	if err != nil {
		return nil, s.readFailed(ctx, op, key, err, start)
	}

	output, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			err = fmt.Errorf("%w: %w", ErrObjectNotFound, err)
		}
		return nil, s.readFailed(ctx, op, key, err, start)
	}
	defer func() { _ = output.Body.Close() }()

	data, err := io.ReadAll(output.Body)
	if err != nil {
		return nil, s.readFailed(ctx, op, key, fmt.Errorf("read body: %w", err), start)
	}

	s.observe(op, backend.OutcomeHit, start)
	s.metrics.RecordBytes(metrics.ComponentBlobStore, "out", len(data))
	logctx.LoggerWithContext(s.log, ctx).V(1).Info("artifact downloaded", "key", key, "size", len(data))
	return data, nil
}

func (s *Store) readFailed(ctx context.Context, op, key string, err error, start time.Time) error {
	s.observe(op, backend.OutcomeError, start)
	logctx.LoggerWithContext(s.log, ctx).Error(err, "artifact read failed", "op", op, "key", key)
	return &ReadError{Op: op, Key: key, Err: err}
}

// PresignedURL returns a credential-free GET URL for key valid for expires.
// Zero selects the configured default. The object is not probed; a URL for a
// missing key signs fine and fails when fetched.
func (s *Store) PresignedURL(ctx context.Context, key string, expires time.Duration) (string, error) {
	const op = "presign"
	start := time.Now()
	if key == "" {
		return "", s.readFailed(ctx, op, key, ErrInvalidKey, start)
	}
	if expires <= 0 {
		expires = s.cfg.PresignExpiry
	}
	if expires > MaxPresignExpiry {
		return "", s.readFailed(ctx, op, key, ErrInvalidExpiry, start)
	}
	_, presign, err := s.conn()
	if err != nil {
		return "", s.readFailed(ctx, op, key, err, start)
	}

	req, err := presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(expires))
	if err != nil {
		return "", s.readFailed(ctx, op, key, fmt.Errorf("failed to generate presigned URL: %w", err), start)
	}

	s.observe(op, backend.OutcomeHit, start)
	return req.URL, nil
}

// Delete removes the object under key. It returns false when the object was
// already absent or when the backend failed; use DeleteResult to tell the
// two apart.
func (s *Store) Delete(ctx context.Context, key string) bool {
	return s.DeleteResult(ctx, key).Ok()
}

// DeleteResult removes the object under key. Outcome is Miss when the object
// did not exist.
func (s *Store) DeleteResult(ctx context.Context, key string) backend.Result[struct{}] {
	const op = "delete"
	start := time.Now()
	log := logctx.LoggerWithContext(s.log, ctx)

	res := s.deleteObject(ctx, key)
	s.observe(op, res.Outcome, start)
	switch res.Outcome {
	case backend.OutcomeHit:
		log.V(1).Info("artifact deleted", "key", key)
	case backend.OutcomeMiss:
		log.V(1).Info("artifact already absent", "key", key)
	default:
		log.Error(res.Err, "artifact delete failed", "op", op, "key", key)
	}
	return res
}

func (s *Store) deleteObject(ctx context.Context, key string) backend.Result[struct{}] {
	if key == "" {
		return backend.Fail[struct{}](ErrInvalidKey)
	}
	client, _, err := s.conn()
	if err != nil {
		return backend.Fail[struct{}](err)
	}

	// DeleteObject succeeds on missing keys, so probe first.
	_, err = client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return backend.Miss[struct{}]()
		}
		return backend.Fail[struct{}](fmt.Errorf("head object: %w", err))
	}

	if _, err := client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	}); err != nil {
		return backend.Fail[struct{}](fmt.Errorf("delete object: %w", err))
	}
	return backend.Hit(struct{}{})
}

// Exists reports whether key exists, using a metadata probe. Backend errors
// report false.
func (s *Store) Exists(ctx context.Context, key string) bool {
	return s.ExistsResult(ctx, key).Ok()
}

// ExistsResult probes key. Outcome is Miss when the object does not exist.
func (s *Store) ExistsResult(ctx context.Context, key string) backend.Result[bool] {
	const op = "exists"
	start := time.Now()

	res := s.headObject(ctx, key)
	s.observe(op, res.Outcome, start)
	if res.Outcome == backend.OutcomeError {
		logctx.LoggerWithContext(s.log, ctx).Error(res.Err, "artifact probe failed", "op", op, "key", key)
	}
	return res
}

func (s *Store) headObject(ctx context.Context, key string) backend.Result[bool] {
	if key == "" {
		return backend.Fail[bool](ErrInvalidKey)
	}
	client, _, err := s.conn()
	if err != nil {
		return backend.Fail[bool](err)
	}
	_, err = client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return backend.Miss[bool]()
		}
		return backend.Fail[bool](fmt.Errorf("head object: %w", err))
	}
	return backend.Hit(true)
}

// List returns up to limit objects whose key starts with prefix, descending
// into nested "directories". A negative limit selects DefaultListLimit.
// Order is the backend's (lexicographic for S3). Backend errors return an
// empty listing.
func (s *Store) List(ctx context.Context, prefix string, limit int) []ObjectInfo {
	res := s.ListResult(ctx, prefix, limit)
	if res.Outcome == backend.OutcomeError {
		return []ObjectInfo{}
	}
	if res.Value == nil {
		return []ObjectInfo{}
	}
	return res.Value
}

// ListResult is List with the backend error preserved. Partial pages read
// before a failure are discarded.
func (s *Store) ListResult(ctx context.Context, prefix string, limit int) backend.Result[[]ObjectInfo] {
	const op = "list"
	start := time.Now()

	objects, err := s.listObjects(ctx, prefix, limit)
	if err != nil {
		s.observe(op, backend.OutcomeError, start)
		logctx.LoggerWithContext(s.log, ctx).Error(err, "artifact listing failed", "op", op, "prefix", prefix)
		return backend.Fail[[]ObjectInfo](err)
	}
	s.observe(op, backend.OutcomeHit, start)
	return backend.Hit(objects)
}

func (s *Store) listObjects(ctx context.Context, prefix string, limit int) ([]ObjectInfo, error) {
	client, _, err := s.conn()
	if err != nil {
		return nil, err
	}
	if limit < 0 {
		limit = DefaultListLimit
	}
	objects := make([]ObjectInfo, 0, min(limit, maxListPageSize))

	var continuationToken *string
	for len(objects) < limit {
		pageSize := min(limit-len(objects), maxListPageSize)
		output, err := client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.cfg.Bucket),
			Prefix:            aws.String(prefix),
			MaxKeys:           aws.Int32(int32(pageSize)),
			ContinuationToken: continuationToken,
		})
		if err != nil {
			return nil, fmt.Errorf("list objects: %w", err)
		}

		for _, obj := range output.Contents {
			if obj.Key == nil || !strings.HasPrefix(*obj.Key, prefix) {
				continue
			}
			objects = append(objects, ObjectInfo{
				Name:         *obj.Key,
				Size:         aws.ToInt64(obj.Size),
				LastModified: aws.ToTime(obj.LastModified),
				ETag:         normalizeETag(aws.ToString(obj.ETag)),
			})
			if len(objects) >= limit {
				break
			}
		}

		if !aws.ToBool(output.IsTruncated) || output.NextContinuationToken == nil {
			break
		}
		continuationToken = output.NextContinuationToken
	}
	return objects, nil
}

func (s *Store) observe(op string, outcome backend.Outcome, start time.Time) {
	s.metrics.RecordOperation(metrics.ComponentBlobStore, op, outcome.MetricLabel(), time.Since(start).Seconds())
}

// normalizeETag strips the quotes S3 puts around ETag values.
func normalizeETag(etag string) string {
	return strings.Trim(etag, `"`)
}

// IsNotFound reports whether err means the requested object does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrObjectNotFound)
}
