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

package orcherrors_test

import (
	"errors"
	"testing"
	"time"

	"github.com/webrun-dev/webrun/pkg/orcherrors"
)

func TestTransportTimeoutError_Error(t *testing.T) {
	err := &orcherrors.TransportTimeoutError{
		Operation: "sendMessage",
		TabID:     "tab-1",
		Timeout:   30 * time.Second,
	}

	want := "sendMessage to tab tab-1 timed out after 30s"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestTransportFailureError_Unwrap(t *testing.T) {
	cause := errors.New("socket closed")
	err := &orcherrors.TransportFailureError{TabID: "tab-1", Reason: "channel errored", Cause: cause}

	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to find wrapped cause")
	}
}

func TestStepFailureError_Error(t *testing.T) {
	err := &orcherrors.StepFailureError{StepID: "step-2", RowIndex: 1, Message: "Element not found"}

	want := "step step-2 (row 1) failed: Element not found"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestInjectionExhaustionError_Error(t *testing.T) {
	err := &orcherrors.InjectionExhaustionError{TabID: "tab-9", Attempts: 3}

	want := "content agent injection failed for tab tab-9 after 3 attempts"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestPreconditionError_Error(t *testing.T) {
	err := &orcherrors.PreconditionError{Field: "target_url", Message: "must not be empty"}

	want := "precondition failed on target_url: must not be empty"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestPersistenceError_Error(t *testing.T) {
	cause := errors.New("disk full")

	withRun := &orcherrors.PersistenceError{Operation: "testRuns.update", RunID: "run-1", Cause: cause}
	if got, want := withRun.Error(), "persistence operation testRuns.update failed for run run-1: disk full"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	withoutRun := &orcherrors.PersistenceError{Operation: "testRuns.add", Cause: cause}
	if got, want := withoutRun.Error(), "persistence operation testRuns.add failed: disk full"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	if !errors.Is(withRun, cause) {
		t.Error("expected errors.Is to find wrapped cause")
	}
}

func TestIsTransport(t *testing.T) {
	timeoutErr := &orcherrors.TransportTimeoutError{Operation: "ping", TabID: "t", Timeout: 5 * time.Second}
	failureErr := &orcherrors.TransportFailureError{TabID: "t", Reason: "gone"}
	stepErr := &orcherrors.StepFailureError{StepID: "s", Message: "boom"}

	if !orcherrors.IsTransport(timeoutErr) {
		t.Error("expected timeout error to be classified as transport")
	}
	if !orcherrors.IsTransport(failureErr) {
		t.Error("expected failure error to be classified as transport")
	}
	if orcherrors.IsTransport(stepErr) {
		t.Error("step failure error should not be classified as transport")
	}
}
