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

// Package memory provides an in-memory store implementation.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/webrun-dev/webrun/internal/store"
)

// Compile-time interface assertions.
var (
	_ store.TestRunStore  = (*Store)(nil)
	_ store.TestRunLister = (*Store)(nil)
	_ store.ProjectStore  = (*Store)(nil)
	_ store.Store         = (*Store)(nil)
)

// Store is an in-memory store.
type Store struct {
	mu       sync.RWMutex
	runs     map[string]*store.TestRun
	projects map[string]*store.ProjectRecord
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		runs:     make(map[string]*store.TestRun),
		projects: make(map[string]*store.ProjectRecord),
	}
}

// AddTestRun creates a new test run record.
func (s *Store) AddTestRun(ctx context.Context, run *store.TestRun) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := run.ID
	if id == "" {
		id = uuid.New().String()
	}
	now := time.Now()
	stored := *run
	stored.ID = id
	stored.CreatedAt = now
	stored.UpdatedAt = now
	s.runs[id] = &stored
	return id, nil
}

// UpdateTestRun merges patch onto the stored run as mergeTestRun describes.
func (s *Store) UpdateTestRun(ctx context.Context, id string, patch *store.TestRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, exists := s.runs[id]
	if !exists {
		return fmt.Errorf("test run not found: %s", id)
	}
	mergeTestRun(run, patch)
	run.UpdatedAt = time.Now()
	return nil
}

// GetTestRun retrieves a test run by id.
func (s *Store) GetTestRun(ctx context.Context, id string) (*store.TestRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, exists := s.runs[id]
	if !exists {
		return nil, fmt.Errorf("test run not found: %s", id)
	}
	out := *run
	return &out, nil
}

// GetTestRunsByProject lists a project's test runs, most recent first.
func (s *Store) GetTestRunsByProject(ctx context.Context, projectID string) ([]*store.TestRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*store.TestRun
	for _, run := range s.runs {
		if run.ProjectID != projectID {
			continue
		}
		copyRun := *run
		out = append(out, &copyRun)
	}
	sort.Slice(out, func(i, j int) bool {
		ti, tj := out[i].StartTime, out[j].StartTime
		if ti == nil || tj == nil {
			return ti != nil
		}
		return ti.After(*tj)
	})
	return out, nil
}

// GetProject retrieves a project by id.
func (s *Store) GetProject(ctx context.Context, id string) (*store.ProjectRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, exists := s.projects[id]
	if !exists {
		return nil, fmt.Errorf("project not found: %s", id)
	}
	out := *p
	return &out, nil
}

// ListProjects lists every stored project.
func (s *Store) ListProjects(ctx context.Context) ([]*store.ProjectRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*store.ProjectRecord, 0, len(s.projects))
	for _, p := range s.projects {
		copyP := *p
		out = append(out, &copyP)
	}
	return out, nil
}

// UpdateProject creates or merges a project record.
func (s *Store) UpdateProject(ctx context.Context, id string, patch *store.ProjectRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	existing, exists := s.projects[id]
	if !exists {
		stored := *patch
		stored.ID = id
		stored.CreatedAt = now
		stored.UpdatedAt = now
		s.projects[id] = &stored
		return nil
	}
	if patch.Name != "" {
		existing.Name = patch.Name
	}
	if patch.Description != "" {
		existing.Description = patch.Description
	}
	if patch.TargetURL != "" {
		existing.TargetURL = patch.TargetURL
	}
	if patch.Definition != nil {
		existing.Definition = patch.Definition
	}
	existing.UpdatedAt = now
	return nil
}

// DeleteProject deletes a project by id.
func (s *Store) DeleteProject(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.projects, id)
	return nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}

// mergeTestRun applies patch's non-zero-value fields onto run in place; the
// passed, failed, skipped and completed-row counters are always overwritten.
func mergeTestRun(run, patch *store.TestRun) {
	if patch.Status != "" {
		run.Status = patch.Status
	}
	if patch.StartTime != nil {
		run.StartTime = patch.StartTime
	}
	if patch.EndTime != nil {
		run.EndTime = patch.EndTime
	}
	if patch.TotalSteps != 0 {
		run.TotalSteps = patch.TotalSteps
	}
	run.PassedSteps = patch.PassedSteps
	run.FailedSteps = patch.FailedSteps
	run.SkippedSteps = patch.SkippedSteps
	if patch.TotalRows != 0 {
		run.TotalRows = patch.TotalRows
	}
	run.CompletedRows = patch.CompletedRows
	if patch.TestResults != nil {
		run.TestResults = patch.TestResults
	}
	if patch.Logs != "" {
		run.Logs = patch.Logs
	}
	if patch.ErrorMessage != "" {
		run.ErrorMessage = patch.ErrorMessage
	}
}
