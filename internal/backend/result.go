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

package backend

import "github.com/altairalabs/docproc/pkg/metrics"

// Outcome classifies the result of a best-effort operation.
type Outcome int

const (
	// OutcomeHit means the backend answered and the value is meaningful.
	OutcomeHit Outcome = iota
	// OutcomeMiss means the backend answered that nothing is there.
	OutcomeMiss
	// OutcomeError means the backend could not be asked or did not answer.
	OutcomeError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeHit:
		return "hit"
	case OutcomeMiss:
		return "miss"
	default:
		return "error"
	}
}

// MetricLabel maps the outcome to the metrics outcome label.
func (o Outcome) MetricLabel() string {
	switch o {
	case OutcomeHit:
		return metrics.OutcomeOK
	case OutcomeMiss:
		return metrics.OutcomeMiss
	default:
		return metrics.OutcomeError
	}
}

// Result carries the outcome of a best-effort operation. Callers that need to
// tell "absent" from "backend failed" inspect Outcome and Err; callers that
// only want the documented sentinel use Or.
type Result[T any] struct {
	Value   T
	Outcome Outcome
	Err     error
}

// Hit returns a successful result holding v.
func Hit[T any](v T) Result[T] {
	return Result[T]{Value: v, Outcome: OutcomeHit}
}

// Miss returns a result for an answered lookup that found nothing.
func Miss[T any]() Result[T] {
	return Result[T]{Outcome: OutcomeMiss}
}

// Fail returns a result for a backend failure.
func Fail[T any](err error) Result[T] {
	return Result[T]{Outcome: OutcomeError, Err: err}
}

// Ok reports whether the result is a hit.
func (r Result[T]) Ok() bool {
	return r.Outcome == OutcomeHit
}

// Or returns the value on a hit and sentinel otherwise. Miss and error
// collapse to the same sentinel.
func (r Result[T]) Or(sentinel T) T {
	if r.Outcome == OutcomeHit {
		return r.Value
	}
	return sentinel
}
