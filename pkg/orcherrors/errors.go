// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package orcherrors defines the typed error kinds the orchestrator
// distinguishes when a run cannot proceed normally.
package orcherrors

import (
	"fmt"
	"time"
)

// TransportTimeoutError represents a sendMessage or ping that exceeded its deadline.
type TransportTimeoutError struct {
	// Operation names the transport call that timed out ("sendMessage", "ping").
	Operation string

	// TabID is the worker tab the call targeted.
	TabID string

	// Timeout is the deadline that was exceeded.
	Timeout time.Duration
}

// Error implements the error interface.
func (e *TransportTimeoutError) Error() string {
	return fmt.Sprintf("%s to tab %s timed out after %v", e.Operation, e.TabID, e.Timeout)
}

// TransportFailureError represents the host reporting the tab does not exist,
// the agent not answering, or the channel erroring.
type TransportFailureError struct {
	// TabID is the worker tab the call targeted.
	TabID string

	// Reason is a human-readable description of the failure.
	Reason string

	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (e *TransportFailureError) Error() string {
	return fmt.Sprintf("transport failure for tab %s: %s", e.TabID, e.Reason)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *TransportFailureError) Unwrap() error {
	return e.Cause
}

// StepFailureError represents a normal run-time failure reported by the
// content agent (element not found, assertion failed).
type StepFailureError struct {
	// StepID is the recorded step's stable identifier.
	StepID string

	// RowIndex is the row the step belongs to.
	RowIndex int

	// Message is the agent-reported failure message.
	Message string
}

// Error implements the error interface.
func (e *StepFailureError) Error() string {
	return fmt.Sprintf("step %s (row %d) failed: %s", e.StepID, e.RowIndex, e.Message)
}

// InjectionExhaustionError represents the content agent failing to install
// after all configured retries.
type InjectionExhaustionError struct {
	// TabID is the worker tab injection was attempted against.
	TabID string

	// Attempts is the number of injection attempts made.
	Attempts int

	// Cause is the last underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (e *InjectionExhaustionError) Error() string {
	return fmt.Sprintf("content agent injection failed for tab %s after %d attempts", e.TabID, e.Attempts)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *InjectionExhaustionError) Unwrap() error {
	return e.Cause
}

// PreconditionError represents a missing target URL, empty step sequence, or
// invalid row data discovered before a worker tab is constructed.
type PreconditionError struct {
	// Field identifies which precondition failed (e.g. "target_url", "steps").
	Field string

	// Message is the human-readable description.
	Message string
}

// Error implements the error interface.
func (e *PreconditionError) Error() string {
	return fmt.Sprintf("precondition failed on %s: %s", e.Field, e.Message)
}

// PersistenceError represents the store rejecting a create or update.
type PersistenceError struct {
	// Operation names the persistence call that failed ("testRuns.add", "testRuns.update").
	Operation string

	// RunID is the TestRun id involved, if known.
	RunID string

	// Cause is the underlying error.
	Cause error
}

// Error implements the error interface.
func (e *PersistenceError) Error() string {
	if e.RunID != "" {
		return fmt.Sprintf("persistence operation %s failed for run %s: %v", e.Operation, e.RunID, e.Cause)
	}
	return fmt.Sprintf("persistence operation %s failed: %v", e.Operation, e.Cause)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *PersistenceError) Unwrap() error {
	return e.Cause
}
