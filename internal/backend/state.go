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

// Package backend holds the connection lifecycle and operation outcome types
// shared by the blob store and the state cache.
package backend

import "errors"

var (
	// ErrNotConnected is returned by data operations invoked before Connect
	// succeeded.
	ErrNotConnected = errors.New("backend not connected")

	// ErrClosed is returned by data operations invoked after Close.
	ErrClosed = errors.New("backend closed")
)

// State is the connection state of a store client.
// Transitions are Uninitialized -> Connected -> Disconnected; Disconnected is
// terminal.
type State int32

const (
	StateUninitialized State = iota
	StateConnected
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Err returns nil when data operations may run in state s, and the
// distinguishable lifecycle error otherwise.
func (s State) Err() error {
	switch s {
	case StateConnected:
		return nil
	case StateDisconnected:
		return ErrClosed
	default:
		return ErrNotConnected
	}
}
