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

package blobstore

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"io"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type mockObject struct {
	data        []byte
	contentType string
	etag        string
	modified    time.Time
}

// mockS3Client is an in-memory S3 bucket. Each *Func field can be replaced
// to inject failures; the defaults behave like a real backend.
type mockS3Client struct {
	mu           sync.Mutex
	bucketExists bool
	objects      map[string]mockObject
	createCalls  int
	listCalls    int
	lastPutOpts  int

	headBucketFunc   func(ctx context.Context, params *s3.HeadBucketInput) (*s3.HeadBucketOutput, error)
	createBucketFunc func(ctx context.Context, params *s3.CreateBucketInput) (*s3.CreateBucketOutput, error)
	putObjectFunc    func(ctx context.Context, params *s3.PutObjectInput) (*s3.PutObjectOutput, error)
	getObjectFunc    func(ctx context.Context, params *s3.GetObjectInput) (*s3.GetObjectOutput, error)
	headObjectFunc   func(ctx context.Context, params *s3.HeadObjectInput) (*s3.HeadObjectOutput, error)
	deleteObjectFunc func(ctx context.Context, params *s3.DeleteObjectInput) (*s3.DeleteObjectOutput, error)
	listObjectsFunc  func(ctx context.Context, params *s3.ListObjectsV2Input) (*s3.ListObjectsV2Output, error)
}

func newMockS3Client() *mockS3Client {
	m := &mockS3Client{objects: make(map[string]mockObject)}

	m.headBucketFunc = func(_ context.Context, _ *s3.HeadBucketInput) (*s3.HeadBucketOutput, error) {
		m.mu.Lock()
		defer m.mu.Unlock()
		if !m.bucketExists {
			return nil, &types.NotFound{}
		}
		return &s3.HeadBucketOutput{}, nil
	}

	m.createBucketFunc = func(_ context.Context, _ *s3.CreateBucketInput) (*s3.CreateBucketOutput, error) {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.createCalls++
		if m.bucketExists {
			return nil, &types.BucketAlreadyOwnedByYou{}
		}
		m.bucketExists = true
		return &s3.CreateBucketOutput{}, nil
	}

	m.putObjectFunc = func(_ context.Context, params *s3.PutObjectInput) (*s3.PutObjectOutput, error) {
		data, err := io.ReadAll(params.Body)
		if err != nil {
			return nil, err
		}
		sum := md5.Sum(data)
		etag := `"` + hex.EncodeToString(sum[:]) + `"`
		m.mu.Lock()
		m.objects[*params.Key] = mockObject{
			data:        data,
			contentType: aws.ToString(params.ContentType),
			etag:        etag,
			modified:    time.Now(),
		}
		m.mu.Unlock()
		return &s3.PutObjectOutput{ETag: aws.String(etag)}, nil
	}

	m.getObjectFunc = func(_ context.Context, params *s3.GetObjectInput) (*s3.GetObjectOutput, error) {
		m.mu.Lock()
		obj, ok := m.objects[*params.Key]
		m.mu.Unlock()
		if !ok {
			return nil, &types.NoSuchKey{}
		}
		return &s3.GetObjectOutput{
			Body:        io.NopCloser(bytes.NewReader(obj.data)),
			ContentType: aws.String(obj.contentType),
			ETag:        aws.String(obj.etag),
		}, nil
	}

	m.headObjectFunc = func(_ context.Context, params *s3.HeadObjectInput) (*s3.HeadObjectOutput, error) {
		m.mu.Lock()
		obj, ok := m.objects[*params.Key]
		m.mu.Unlock()
		if !ok {
			return nil, &types.NotFound{}
		}
		return &s3.HeadObjectOutput{
			ContentLength: aws.Int64(int64(len(obj.data))),
			ETag:          aws.String(obj.etag),
		}, nil
	}

	m.deleteObjectFunc = func(_ context.Context, params *s3.DeleteObjectInput) (*s3.DeleteObjectOutput, error) {
		m.mu.Lock()
		delete(m.objects, *params.Key)
		m.mu.Unlock()
		return &s3.DeleteObjectOutput{}, nil
	}

	// Paginates lexicographically, honouring MaxKeys and ContinuationToken
	// (the token is the last key of the previous page).
	m.listObjectsFunc = func(_ context.Context, params *s3.ListObjectsV2Input) (*s3.ListObjectsV2Output, error) {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.listCalls++

		prefix := aws.ToString(params.Prefix)
		after := aws.ToString(params.ContinuationToken)
		maxKeys := int(aws.ToInt32(params.MaxKeys))
		if maxKeys <= 0 {
			maxKeys = 1000
		}

		keys := make([]string, 0, len(m.objects))
		for k := range m.objects {
			if strings.HasPrefix(k, prefix) && k > after {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)

		truncated := len(keys) > maxKeys
		if truncated {
			keys = keys[:maxKeys]
		}
		out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(truncated)}
		for _, k := range keys {
			obj := m.objects[k]
			out.Contents = append(out.Contents, types.Object{
				Key:          aws.String(k),
				Size:         aws.Int64(int64(len(obj.data))),
				LastModified: aws.Time(obj.modified),
				ETag:         aws.String(obj.etag),
			})
		}
		if truncated {
			out.NextContinuationToken = aws.String(keys[len(keys)-1])
		}
		return out, nil
	}

	return m
}

func (m *mockS3Client) HeadBucket(
	ctx context.Context, params *s3.HeadBucketInput, _ ...func(*s3.Options),
) (*s3.HeadBucketOutput, error) {
	return m.headBucketFunc(ctx, params)
}

func (m *mockS3Client) CreateBucket(
	ctx context.Context, params *s3.CreateBucketInput, _ ...func(*s3.Options),
) (*s3.CreateBucketOutput, error) {
	return m.createBucketFunc(ctx, params)
}

func (m *mockS3Client) PutObject(
	ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options),
) (*s3.PutObjectOutput, error) {
	m.mu.Lock()
	m.lastPutOpts = len(optFns)
	m.mu.Unlock()
	return m.putObjectFunc(ctx, params)
}

func (m *mockS3Client) GetObject(
	ctx context.Context, params *s3.GetObjectInput, _ ...func(*s3.Options),
) (*s3.GetObjectOutput, error) {
	return m.getObjectFunc(ctx, params)
}

func (m *mockS3Client) HeadObject(
	ctx context.Context, params *s3.HeadObjectInput, _ ...func(*s3.Options),
) (*s3.HeadObjectOutput, error) {
	return m.headObjectFunc(ctx, params)
}

func (m *mockS3Client) DeleteObject(
	ctx context.Context, params *s3.DeleteObjectInput, _ ...func(*s3.Options),
) (*s3.DeleteObjectOutput, error) {
	return m.deleteObjectFunc(ctx, params)
}

func (m *mockS3Client) ListObjectsV2(
	ctx context.Context, params *s3.ListObjectsV2Input, _ ...func(*s3.Options),
) (*s3.ListObjectsV2Output, error) {
	return m.listObjectsFunc(ctx, params)
}

var _ s3API = (*mockS3Client)(nil)

// mockPresigner returns a fake signed URL that encodes the requested expiry.
type mockPresigner struct {
	err error
}

func (p *mockPresigner) PresignGetObject(
	_ context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions),
) (*v4.PresignedHTTPRequest, error) {
	if p.err != nil {
		return nil, p.err
	}
	var opts s3.PresignOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	q := url.Values{}
	q.Set("X-Amz-Expires", opts.Expires.String())
	q.Set("X-Amz-Signature", "deadbeef")
	return &v4.PresignedHTTPRequest{
		URL:    "http://minio:9000/" + aws.ToString(params.Bucket) + "/" + aws.ToString(params.Key) + "?" + q.Encode(),
		Method: "GET",
	}, nil
}

var _ presignAPI = (*mockPresigner)(nil)

// failingReader fails after returning part of its payload.
type failingReader struct {
	err error
}

func (r *failingReader) Read(_ []byte) (int, error) {
	return 0, r.err
}

// trackingBody records whether Close was called.
type trackingBody struct {
	io.Reader
	closed bool
}

func (b *trackingBody) Close() error {
	b.closed = true
	return nil
}
