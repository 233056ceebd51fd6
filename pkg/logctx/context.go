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

// Package logctx provides structured logging context management.
// Workers and handlers attach job-scoped fields to a context.Context once and
// every store operation downstream logs them automatically.
package logctx

import (
	"context"

	"github.com/go-logr/logr"
)

// contextKey is a private type for context keys to avoid collisions.
type contextKey string

// Context keys for common logging fields.
const (
	// ContextKeyJobID identifies the processing job.
	ContextKeyJobID contextKey = "job_id"

	// ContextKeyRequestID identifies the inbound request that created the work.
	ContextKeyRequestID contextKey = "request_id"

	// ContextKeyWorker identifies the worker handling the job.
	ContextKeyWorker contextKey = "worker"

	// ContextKeyStage identifies the processing stage (upload, extract, ...).
	ContextKeyStage contextKey = "stage"
)

// allContextKeys lists all context keys that should be extracted for logging.
var allContextKeys = []contextKey{
	ContextKeyJobID,
	ContextKeyRequestID,
	ContextKeyWorker,
	ContextKeyStage,
}

// WithJobID returns a new context with the job ID set.
func WithJobID(ctx context.Context, jobID string) context.Context {
	return context.WithValue(ctx, ContextKeyJobID, jobID)
}

// WithRequestID returns a new context with the request ID set.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// WithWorker returns a new context with the worker name set.
func WithWorker(ctx context.Context, worker string) context.Context {
	return context.WithValue(ctx, ContextKeyWorker, worker)
}

// WithStage returns a new context with the processing stage set.
func WithStage(ctx context.Context, stage string) context.Context {
	return context.WithValue(ctx, ContextKeyStage, stage)
}

// LoggingFields holds all standard logging context fields.
type LoggingFields struct {
	JobID     string
	RequestID string
	Worker    string
	Stage     string
}

// WithLoggingContext returns a new context with multiple logging fields set at once.
// Only non-empty values are set.
func WithLoggingContext(ctx context.Context, fields *LoggingFields) context.Context {
	if fields == nil {
		return ctx
	}
	if fields.JobID != "" {
		ctx = WithJobID(ctx, fields.JobID)
	}
	if fields.RequestID != "" {
		ctx = WithRequestID(ctx, fields.RequestID)
	}
	if fields.Worker != "" {
		ctx = WithWorker(ctx, fields.Worker)
	}
	if fields.Stage != "" {
		ctx = WithStage(ctx, fields.Stage)
	}
	return ctx
}

// ExtractLoggingFields extracts all logging fields from a context.
func ExtractLoggingFields(ctx context.Context) LoggingFields {
	return LoggingFields{
		JobID:     stringValue(ctx, ContextKeyJobID),
		RequestID: stringValue(ctx, ContextKeyRequestID),
		Worker:    stringValue(ctx, ContextKeyWorker),
		Stage:     stringValue(ctx, ContextKeyStage),
	}
}

// LogrValues extracts context values and returns them as key-value pairs
// suitable for use with logr.Logger.WithValues().
// Only non-empty values are included.
func LogrValues(ctx context.Context) []interface{} {
	var values []interface{}
	for _, key := range allContextKeys {
		if s := stringValue(ctx, key); s != "" {
			values = append(values, string(key), s)
		}
	}
	return values
}

// LoggerWithContext returns a logger enriched with all context values.
func LoggerWithContext(log logr.Logger, ctx context.Context) logr.Logger {
	values := LogrValues(ctx)
	if len(values) == 0 {
		return log
	}
	return log.WithValues(values...)
}

// JobID extracts the job ID from the context.
func JobID(ctx context.Context) string {
	return stringValue(ctx, ContextKeyJobID)
}

// RequestID extracts the request ID from the context.
func RequestID(ctx context.Context) string {
	return stringValue(ctx, ContextKeyRequestID)
}

// Worker extracts the worker name from the context.
func Worker(ctx context.Context) string {
	return stringValue(ctx, ContextKeyWorker)
}

// Stage extracts the processing stage from the context.
func Stage(ctx context.Context) string {
	return stringValue(ctx, ContextKeyStage)
}

func stringValue(ctx context.Context, key contextKey) string {
	if v := ctx.Value(key); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
