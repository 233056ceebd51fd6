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
	"errors"
	"strings"
	"time"
)

const (
	// DefaultContentType is used when Upload is called without a content type.
	DefaultContentType = "application/octet-stream"

	// DefaultListLimit caps List when the caller passes a negative limit.
	DefaultListLimit = 1000

	// DefaultPresignExpiry is used when PresignedURL is called with zero expiry.
	DefaultPresignExpiry = time.Hour

	// MaxPresignExpiry is the longest validity SigV4 presigned URLs support.
	MaxPresignExpiry = 7 * 24 * time.Hour

	defaultBucket         = "documents"
	defaultRegion         = "us-east-1"
	defaultRequestTimeout = 30 * time.Second
	maxListPageSize       = 1000
)

// Config contains connection settings for the S3-compatible backend.
type Config struct {
	// Endpoint is the backend host[:port], e.g. "minio:9000". A value with an
	// explicit http:// or https:// scheme is used as is. Empty selects AWS S3.
	Endpoint string
	// Region is the signing region. Default: "us-east-1".
	Region string
	// AccessKeyID is the access key (optional, uses the default AWS
	// credential chain if not set).
	AccessKeyID string
	// SecretAccessKey is the secret key paired with AccessKeyID.
	SecretAccessKey string
	// Bucket is the single bucket holding all artifacts. Default: "documents".
	Bucket string
	// UseTLS selects https for an Endpoint given without scheme.
	UseTLS bool
	// UsePathStyle forces path-style bucket addressing (required for MinIO).
	UsePathStyle bool
	// RequestTimeout bounds every HTTP round trip to the backend.
	RequestTimeout time.Duration
	// PresignExpiry is the default validity of presigned URLs.
	PresignExpiry time.Duration
}

// DefaultConfig returns a Config with sensible defaults for a local MinIO.
func DefaultConfig() Config {
	return Config{
		Region:         defaultRegion,
		Bucket:         defaultBucket,
		UsePathStyle:   true,
		RequestTimeout: defaultRequestTimeout,
		PresignExpiry:  DefaultPresignExpiry,
	}
}

// Validate checks that the configuration can be used to connect.
func (c Config) Validate() error {
	if c.Bucket == "" {
		return errors.New("bucket is required")
	}
	if (c.AccessKeyID == "") != (c.SecretAccessKey == "") {
		return errors.New("access key and secret key must be set together")
	}
	if c.PresignExpiry > MaxPresignExpiry {
		return errors.New("presign expiry exceeds 7 days")
	}
	return nil
}

// endpointURL returns the base endpoint with scheme, or "" for AWS S3.
func (c Config) endpointURL() string {
	if c.Endpoint == "" {
		return ""
	}
	if strings.HasPrefix(c.Endpoint, "http://") || strings.HasPrefix(c.Endpoint, "https://") {
		return c.Endpoint
	}
	if c.UseTLS {
		return "https://" + c.Endpoint
	}
	return "http://" + c.Endpoint
}

func (c Config) withDefaults() Config {
	if c.Region == "" {
		c.Region = defaultRegion
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = defaultRequestTimeout
	}
	if c.PresignExpiry <= 0 {
		c.PresignExpiry = DefaultPresignExpiry
	}
	return c
}
