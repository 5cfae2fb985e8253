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

package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/webrun-dev/webrun/internal/store"
)

func createTestStore(t *testing.T) *Store {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := New(Config{Path: dbPath, WAL: true})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_AddAndGetTestRun(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	start := time.Now()
	run := &store.TestRun{
		ID:         "run-1",
		ProjectID:  "proj-1",
		Status:     "pending",
		StartTime:  &start,
		TotalSteps: 6,
		TotalRows:  2,
	}

	id, err := s.AddTestRun(ctx, run)
	if err != nil {
		t.Fatalf("AddTestRun: %v", err)
	}
	if id != "run-1" {
		t.Errorf("expected id 'run-1', got %q", id)
	}

	got, err := s.GetTestRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetTestRun: %v", err)
	}
	if got.ProjectID != "proj-1" || got.Status != "pending" || got.TotalSteps != 6 {
		t.Errorf("unexpected test run: %+v", got)
	}
}

func TestStore_AddTestRun_RequiresID(t *testing.T) {
	s := createTestStore(t)
	if _, err := s.AddTestRun(context.Background(), &store.TestRun{}); err == nil {
		t.Error("expected an error when ID is empty")
	}
}

func TestStore_UpdateTestRun_MergesFields(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	start := time.Now()
	if _, err := s.AddTestRun(ctx, &store.TestRun{ID: "run-1", ProjectID: "proj-1", Status: "pending", StartTime: &start}); err != nil {
		t.Fatalf("AddTestRun: %v", err)
	}

	end := time.Now()
	err := s.UpdateTestRun(ctx, "run-1", &store.TestRun{
		Status:       "completed",
		EndTime:      &end,
		PassedSteps:  4,
		FailedSteps:  1,
		SkippedSteps: 1,
		Logs:         "step one\nstep two\n",
	})
	if err != nil {
		t.Fatalf("UpdateTestRun: %v", err)
	}

	got, err := s.GetTestRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetTestRun: %v", err)
	}
	if got.Status != "completed" || got.PassedSteps != 4 || got.FailedSteps != 1 {
		t.Errorf("unexpected merged test run: %+v", got)
	}
	if got.ProjectID != "proj-1" {
		t.Error("expected unpatched field to survive the merge")
	}
}

func TestStore_UpdateTestRun_NotFound(t *testing.T) {
	s := createTestStore(t)
	if err := s.UpdateTestRun(context.Background(), "does-not-exist", &store.TestRun{Status: "failed"}); err == nil {
		t.Error("expected an error for an unknown run id")
	}
}

func TestStore_GetTestRunsByProject_OrdersByStartTime(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	older := time.Now().Add(-time.Hour)
	newer := time.Now()
	if _, err := s.AddTestRun(ctx, &store.TestRun{ID: "run-old", ProjectID: "proj-1", Status: "completed", StartTime: &older}); err != nil {
		t.Fatalf("AddTestRun: %v", err)
	}
	if _, err := s.AddTestRun(ctx, &store.TestRun{ID: "run-new", ProjectID: "proj-1", Status: "completed", StartTime: &newer}); err != nil {
		t.Fatalf("AddTestRun: %v", err)
	}

	runs, err := s.GetTestRunsByProject(ctx, "proj-1")
	if err != nil {
		t.Fatalf("GetTestRunsByProject: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].ID != "run-new" {
		t.Errorf("expected most recent run first, got %q", runs[0].ID)
	}
}

func TestStore_ProjectCRUD(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	rec := &store.ProjectRecord{ID: "proj-1", Name: "Checkout flow", TargetURL: "https://example.com"}
	if err := s.UpdateProject(ctx, "proj-1", rec); err != nil {
		t.Fatalf("UpdateProject (insert): %v", err)
	}

	got, err := s.GetProject(ctx, "proj-1")
	if err != nil {
		t.Fatalf("GetProject: %v", err)
	}
	if got.Name != "Checkout flow" {
		t.Errorf("unexpected project: %+v", got)
	}

	rec.Name = "Checkout flow v2"
	if err := s.UpdateProject(ctx, "proj-1", rec); err != nil {
		t.Fatalf("UpdateProject (update): %v", err)
	}
	got, err = s.GetProject(ctx, "proj-1")
	if err != nil {
		t.Fatalf("GetProject: %v", err)
	}
	if got.Name != "Checkout flow v2" {
		t.Errorf("expected updated name, got %q", got.Name)
	}

	list, err := s.ListProjects(ctx)
	if err != nil {
		t.Fatalf("ListProjects: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 project, got %d", len(list))
	}

	if err := s.DeleteProject(ctx, "proj-1"); err != nil {
		t.Fatalf("DeleteProject: %v", err)
	}
	if _, err := s.GetProject(ctx, "proj-1"); err == nil {
		t.Error("expected an error after deleting the project")
	}
}

func TestStore_GetProject_NotFound(t *testing.T) {
	s := createTestStore(t)
	if _, err := s.GetProject(context.Background(), "does-not-exist"); err == nil {
		t.Error("expected an error for an unknown project id")
	}
}
