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

// Package store provides storage backends for projects and test runs.
//
// # Interface hierarchy
//
// The package uses interface segregation so minimal implementations are
// possible:
//
//   - TestRunStore (core, required): AddTestRun, UpdateTestRun, GetTestRun
//   - TestRunLister (optional): GetTestRunsByProject
//   - ProjectStore (optional): project CRUD
//
// Components that only need to commit run state should accept TestRunStore;
// type-assert for the optional capabilities at runtime.
package store

import (
	"context"
	"io"
	"time"
)

// TestRunStore is the core interface for test-run persistence.
type TestRunStore interface {
	// AddTestRun creates a new test run record and returns its assigned id.
	AddTestRun(ctx context.Context, run *TestRun) (string, error)

	// UpdateTestRun applies patch to the stored run, merging non-zero
	// fields; the backends always overwrite the passed, failed, skipped and
	// completed-row counters. Used both for partial progress commits and the
	// final commit.
	UpdateTestRun(ctx context.Context, id string, patch *TestRun) error

	// GetTestRun retrieves a test run by id.
	GetTestRun(ctx context.Context, id string) (*TestRun, error)
}

// TestRunLister is an optional interface for listing test runs by project.
type TestRunLister interface {
	// GetTestRunsByProject lists a project's test runs, most recent
	// start_time first.
	GetTestRunsByProject(ctx context.Context, projectID string) ([]*TestRun, error)
}

// ProjectStore is the persistence collaborator for Project records. The
// orchestrator does not use it; it serves the surrounding CLI/service layer.
type ProjectStore interface {
	GetProject(ctx context.Context, id string) (*ProjectRecord, error)
	ListProjects(ctx context.Context) ([]*ProjectRecord, error)
	UpdateProject(ctx context.Context, id string, patch *ProjectRecord) error
	DeleteProject(ctx context.Context, id string) error
}

// Store composes TestRunStore, TestRunLister, ProjectStore, and io.Closer
// for full-featured backends.
type Store interface {
	TestRunStore
	TestRunLister
	ProjectStore
	io.Closer
}

// TestRun is the persistence projection of an orchestrator run (spec §3).
// Logs is a single string, never a sequence: this is the hard contract the
// rest of the system is built around.
type TestRun struct {
	ID            string       `json:"id"`
	ProjectID     string       `json:"project_id"`
	Status        string       `json:"status"`
	StartTime     *time.Time   `json:"start_time,omitempty"`
	EndTime       *time.Time   `json:"end_time,omitempty"`
	TotalSteps    int          `json:"total_steps"`
	PassedSteps   int          `json:"passed_steps"`
	FailedSteps   int          `json:"failed_steps"`
	SkippedSteps  int          `json:"skipped_steps"`
	TotalRows     int          `json:"total_rows"`
	CompletedRows int          `json:"completed_rows"`
	TestResults   []StepResult `json:"test_results,omitempty"`
	Logs          string       `json:"logs"`
	ErrorMessage  string       `json:"error_message,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// StepResult is the persisted projection of one orchestrator step outcome.
type StepResult struct {
	RowIndex     int    `json:"row_index"`
	StepIndex    int    `json:"step_index"`
	StepID       string `json:"step_id"`
	Name         string `json:"name"`
	Status       string `json:"status"`
	DurationMs   int64  `json:"duration_ms"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// ProjectRecord is the persisted projection of a project definition.
type ProjectRecord struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	TargetURL   string    `json:"target_url"`
	Definition  []byte    `json:"definition"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
