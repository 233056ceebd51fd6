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

// Package httputil provides the probe handlers served next to the stores.
package httputil

import (
	"context"
	"encoding/json"
	"net/http"
)

const (
	HeaderContentType = "Content-Type"
	ContentTypeJSON   = "application/json"
)

// Probe status values.
const (
	StatusOK          = "ok"
	StatusUnavailable = "unavailable"
)

// Check is one backend probed for readiness.
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

// Report is the body of a readiness response.
type Report struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// WriteJSON serialises v as JSON and writes it to w with the given status code.
func WriteJSON(w http.ResponseWriter, statusCode int, v any) error {
	w.Header().Set(HeaderContentType, ContentTypeJSON)
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(v)
}

// Probe runs every check and reports each backend's state. The overall status
// is unavailable if any check failed.
func Probe(ctx context.Context, checks ...Check) Report {
	report := Report{Status: StatusOK, Checks: make(map[string]string, len(checks))}
	for _, c := range checks {
		if err := c.Ping(ctx); err != nil {
			report.Checks[c.Name] = err.Error()
			report.Status = StatusUnavailable
			continue
		}
		report.Checks[c.Name] = StatusOK
	}
	return report
}

// LivenessHandler always answers 200; it does not touch any backend.
func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		_ = WriteJSON(w, http.StatusOK, Report{Status: StatusOK})
	}
}

// ReadinessHandler answers 200 when every check passes and 503 otherwise.
func ReadinessHandler(checks ...Check) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := Probe(r.Context(), checks...)
		code := http.StatusOK
		if report.Status != StatusOK {
			code = http.StatusServiceUnavailable
		}
		_ = WriteJSON(w, code, report)
	}
}
