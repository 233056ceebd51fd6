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

// Package jobs tracks document-processing jobs in the state cache and stages
// their uploads in the blob store.
package jobs

import (
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// State is the lifecycle state of a processing job.
type State string

const (
	StateQueued     State = "queued"
	StateProcessing State = "processing"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
	StateCancelled  State = "cancelled"
)

// Terminal reports whether no further transitions are allowed from s.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCancelled:
		return true
	}
	return false
}

// Counter keys incremented when a job reaches a terminal state.
const (
	CounterCompleted = "jobs:completed"
	CounterFailed    = "jobs:failed"
)

// JobStatus is the record polled by status consumers.
type JobStatus struct {
	JobID       string     `json:"job_id"`
	Filename    string     `json:"filename"`
	Size        int64      `json:"size"`
	Type        string     `json:"type"`
	State       State      `json:"status"`
	Progress    int        `json:"progress"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
}

// NewJobID returns a random job identifier.
func NewJobID() string {
	return uuid.NewString()
}

// UploadKey returns the blob store key of a job's original upload.
func UploadKey(jobID, filename string) string {
	return "uploads/" + jobID + "/" + filename
}

// FileType returns the lower-cased extension of filename without the dot.
func FileType(filename string) string {
	return strings.ToLower(strings.TrimPrefix(path.Ext(filename), "."))
}
