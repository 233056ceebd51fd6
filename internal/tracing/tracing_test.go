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

package tracing

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

// newTestProvider creates a Provider backed by an in-memory span exporter so
// that tests can inspect the attributes that are actually recorded on spans.
func newTestProvider(t *testing.T) (*Provider, *tracetest.InMemoryExporter) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
	)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	return NewTestProvider(tp), exporter
}

// findAttr looks up an attribute by key in a span's attribute set.
func findAttr(span tracetest.SpanStub, key string) (attribute.Value, bool) {
	for _, a := range span.Attributes {
		if string(a.Key) == key {
			return a.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestNewProvider_Disabled(t *testing.T) {
	provider, err := NewProvider(context.Background(), Config{Enabled: false})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if provider.Tracer() == nil {
		t.Fatal("expected non-nil tracer")
	}
	if err := provider.Shutdown(context.Background()); err != nil {
		t.Fatalf("unexpected error on shutdown: %v", err)
	}
}

func TestSampler(t *testing.T) {
	tests := []struct {
		rate float64
		want string
	}{
		{1.0, sdktrace.AlwaysSample().Description()},
		{2.0, sdktrace.AlwaysSample().Description()},
		{0, sdktrace.NeverSample().Description()},
		{-1, sdktrace.NeverSample().Description()},
		{0.25, sdktrace.TraceIDRatioBased(0.25).Description()},
	}
	for _, tt := range tests {
		if got := sampler(tt.rate).Description(); got != tt.want {
			t.Errorf("sampler(%v) = %q, want %q", tt.rate, got, tt.want)
		}
	}
}

func TestStartJobSpan(t *testing.T) {
	provider, exporter := newTestProvider(t)

	_, span := StartJobSpan(context.Background(), provider.Tracer(), "job.progress", "job-1")
	span.End()

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	s := spans[0]
	if s.Name != "job.progress" {
		t.Errorf("expected span name 'job.progress', got %q", s.Name)
	}
	if s.SpanKind != trace.SpanKindInternal {
		t.Errorf("expected SpanKindInternal, got %v", s.SpanKind)
	}
	val, ok := findAttr(s, AttrJobID)
	if !ok || val.AsString() != "job-1" {
		t.Errorf("expected %s='job-1', got %q (present=%v)", AttrJobID, val.AsString(), ok)
	}
}

func TestStartJobSpan_NoJobID(t *testing.T) {
	provider, exporter := newTestProvider(t)

	_, span := StartJobSpan(context.Background(), provider.Tracer(), "job.submit", "")
	span.End()

	if _, ok := findAttr(exporter.GetSpans()[0], AttrJobID); ok {
		t.Error("expected no job id attribute")
	}
}

func TestAddUploadAttributes(t *testing.T) {
	provider, exporter := newTestProvider(t)

	_, span := StartJobSpan(context.Background(), provider.Tracer(), "job.submit", "")
	AddUploadAttributes(span, "job-2", "uploads/job-2/a.pdf", "pdf", 1024)
	span.End()

	s := exporter.GetSpans()[0]
	checks := map[string]attribute.Value{
		AttrJobID:     attribute.StringValue("job-2"),
		AttrObjectKey: attribute.StringValue("uploads/job-2/a.pdf"),
		AttrFileType:  attribute.StringValue("pdf"),
		AttrFileSize:  attribute.Int64Value(1024),
	}
	for key, want := range checks {
		got, ok := findAttr(s, key)
		if !ok {
			t.Errorf("missing attribute %q", key)
			continue
		}
		if got != want {
			t.Errorf("%s = %v, want %v", key, got.Emit(), want.Emit())
		}
	}
}

func TestRecordError(t *testing.T) {
	provider, exporter := newTestProvider(t)

	_, span := provider.Tracer().Start(context.Background(), "op")
	RecordError(span, errors.New("boom"))
	span.End()

	s := exporter.GetSpans()[0]
	if s.Status.Code != codes.Error {
		t.Errorf("expected error status, got %v", s.Status.Code)
	}
	if s.Status.Description != "boom" {
		t.Errorf("expected description 'boom', got %q", s.Status.Description)
	}
	if len(s.Events) != 1 {
		t.Errorf("expected 1 exception event, got %d", len(s.Events))
	}
}

func TestRecordError_Nil(t *testing.T) {
	provider, exporter := newTestProvider(t)

	_, span := provider.Tracer().Start(context.Background(), "op")
	RecordError(span, nil)
	span.End()

	if got := exporter.GetSpans()[0].Status.Code; got != codes.Unset {
		t.Errorf("expected unset status, got %v", got)
	}
}

func TestSetSuccess(t *testing.T) {
	provider, exporter := newTestProvider(t)

	_, span := provider.Tracer().Start(context.Background(), "op")
	SetSuccess(span)
	span.End()

	if got := exporter.GetSpans()[0].Status.Code; got != codes.Ok {
		t.Errorf("expected ok status, got %v", got)
	}
}
