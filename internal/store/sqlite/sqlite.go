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

// Package sqlite provides a SQLite store implementation for single-node
// deployments.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/webrun-dev/webrun/internal/store"
)

// Compile-time interface assertions.
var (
	_ store.TestRunStore  = (*Store)(nil)
	_ store.TestRunLister = (*Store)(nil)
	_ store.ProjectStore  = (*Store)(nil)
	_ store.Store         = (*Store)(nil)
)

// Store is a SQLite-backed store.
type Store struct {
	db *sql.DB
}

// Config contains SQLite connection configuration.
type Config struct {
	// Path is the database file path.
	Path string

	// WAL enables Write-Ahead Logging mode for concurrent reads.
	WAL bool
}

// New opens (creating if necessary) the SQLite database at cfg.Path and
// runs migrations.
func New(cfg Config) (*Store, error) {
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite serializes writes; limit the pool accordingly.
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &Store{db: db}

	if err := s.configurePragmas(ctx, cfg.WAL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure pragmas: %w", err)
	}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return s, nil
}

func (s *Store) configurePragmas(ctx context.Context, enableWAL bool) error {
	pragmas := []string{
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	if enableWAL {
		pragmas = append(pragmas, "PRAGMA journal_mode=WAL")
	}
	for _, pragma := range pragmas {
		if _, err := s.db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}
	return nil
}

func (s *Store) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS projects (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT,
			target_url TEXT NOT NULL,
			definition BLOB,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS test_runs (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL,
			status TEXT NOT NULL,
			start_time DATETIME,
			end_time DATETIME,
			total_steps INTEGER NOT NULL DEFAULT 0,
			passed_steps INTEGER NOT NULL DEFAULT 0,
			failed_steps INTEGER NOT NULL DEFAULT 0,
			skipped_steps INTEGER NOT NULL DEFAULT 0,
			total_rows INTEGER NOT NULL DEFAULT 0,
			completed_rows INTEGER NOT NULL DEFAULT 0,
			test_results TEXT,
			logs TEXT NOT NULL DEFAULT '',
			error_message TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_test_runs_project_id ON test_runs(project_id)`,
	}
	for _, m := range migrations {
		if _, err := s.db.ExecContext(ctx, m); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// AddTestRun inserts a new test run record and returns its id.
func (s *Store) AddTestRun(ctx context.Context, run *store.TestRun) (string, error) {
	id := run.ID
	if id == "" {
		return "", fmt.Errorf("test run id must be set by caller")
	}

	results, err := json.Marshal(run.TestResults)
	if err != nil {
		return "", fmt.Errorf("marshaling test results: %w", err)
	}

	now := time.Now()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO test_runs (
			id, project_id, status, start_time, end_time,
			total_steps, passed_steps, failed_steps, skipped_steps,
			total_rows, completed_rows, test_results, logs, error_message,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, run.ProjectID, run.Status, run.StartTime, run.EndTime,
		run.TotalSteps, run.PassedSteps, run.FailedSteps, run.SkippedSteps,
		run.TotalRows, run.CompletedRows, string(results), run.Logs, run.ErrorMessage,
		now, now,
	)
	if err != nil {
		return "", fmt.Errorf("inserting test run: %w", err)
	}
	return id, nil
}

// UpdateTestRun merges patch's set fields onto the stored run.
func (s *Store) UpdateTestRun(ctx context.Context, id string, patch *store.TestRun) error {
	existing, err := s.GetTestRun(ctx, id)
	if err != nil {
		return err
	}

	merged := *existing
	if patch.Status != "" {
		merged.Status = patch.Status
	}
	if patch.StartTime != nil {
		merged.StartTime = patch.StartTime
	}
	if patch.EndTime != nil {
		merged.EndTime = patch.EndTime
	}
	if patch.TotalSteps != 0 {
		merged.TotalSteps = patch.TotalSteps
	}
	merged.PassedSteps = patch.PassedSteps
	merged.FailedSteps = patch.FailedSteps
	merged.SkippedSteps = patch.SkippedSteps
	if patch.TotalRows != 0 {
		merged.TotalRows = patch.TotalRows
	}
	merged.CompletedRows = patch.CompletedRows
	if patch.TestResults != nil {
		merged.TestResults = patch.TestResults
	}
	if patch.Logs != "" {
		merged.Logs = patch.Logs
	}
	if patch.ErrorMessage != "" {
		merged.ErrorMessage = patch.ErrorMessage
	}

	results, err := json.Marshal(merged.TestResults)
	if err != nil {
		return fmt.Errorf("marshaling test results: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE test_runs SET
			status = ?, start_time = ?, end_time = ?,
			total_steps = ?, passed_steps = ?, failed_steps = ?, skipped_steps = ?,
			total_rows = ?, completed_rows = ?, test_results = ?, logs = ?, error_message = ?,
			updated_at = ?
		WHERE id = ?`,
		merged.Status, merged.StartTime, merged.EndTime,
		merged.TotalSteps, merged.PassedSteps, merged.FailedSteps, merged.SkippedSteps,
		merged.TotalRows, merged.CompletedRows, string(results), merged.Logs, merged.ErrorMessage,
		time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("updating test run: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("test run not found: %s", id)
	}
	return nil
}

// GetTestRun retrieves a test run by id.
func (s *Store) GetTestRun(ctx context.Context, id string) (*store.TestRun, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, status, start_time, end_time,
			total_steps, passed_steps, failed_steps, skipped_steps,
			total_rows, completed_rows, test_results, logs, error_message,
			created_at, updated_at
		FROM test_runs WHERE id = ?`, id)

	return scanTestRun(row)
}

// GetTestRunsByProject lists a project's test runs, most recent start_time
// first.
func (s *Store) GetTestRunsByProject(ctx context.Context, projectID string) ([]*store.TestRun, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, status, start_time, end_time,
			total_steps, passed_steps, failed_steps, skipped_steps,
			total_rows, completed_rows, test_results, logs, error_message,
			created_at, updated_at
		FROM test_runs WHERE project_id = ? ORDER BY start_time DESC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("querying test runs: %w", err)
	}
	defer rows.Close()

	var out []*store.TestRun
	for rows.Next() {
		run, err := scanTestRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTestRun(row rowScanner) (*store.TestRun, error) {
	var run store.TestRun
	var resultsJSON string
	if err := row.Scan(
		&run.ID, &run.ProjectID, &run.Status, &run.StartTime, &run.EndTime,
		&run.TotalSteps, &run.PassedSteps, &run.FailedSteps, &run.SkippedSteps,
		&run.TotalRows, &run.CompletedRows, &resultsJSON, &run.Logs, &run.ErrorMessage,
		&run.CreatedAt, &run.UpdatedAt,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("test run not found")
		}
		return nil, fmt.Errorf("scanning test run: %w", err)
	}
	if resultsJSON != "" {
		if err := json.Unmarshal([]byte(resultsJSON), &run.TestResults); err != nil {
			return nil, fmt.Errorf("unmarshaling test results: %w", err)
		}
	}
	return &run, nil
}

// GetProject retrieves a project by id.
func (s *Store) GetProject(ctx context.Context, id string) (*store.ProjectRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, target_url, definition, created_at, updated_at
		FROM projects WHERE id = ?`, id)

	var p store.ProjectRecord
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &p.TargetURL, &p.Definition, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("project not found: %s", id)
		}
		return nil, fmt.Errorf("scanning project: %w", err)
	}
	return &p, nil
}

// ListProjects lists every stored project.
func (s *Store) ListProjects(ctx context.Context) ([]*store.ProjectRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description, target_url, definition, created_at, updated_at FROM projects`)
	if err != nil {
		return nil, fmt.Errorf("querying projects: %w", err)
	}
	defer rows.Close()

	var out []*store.ProjectRecord
	for rows.Next() {
		var p store.ProjectRecord
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.TargetURL, &p.Definition, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning project: %w", err)
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

// UpdateProject upserts a project record.
func (s *Store) UpdateProject(ctx context.Context, id string, patch *store.ProjectRecord) error {
	now := time.Now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO projects (id, name, description, target_url, definition, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			target_url = excluded.target_url,
			definition = excluded.definition,
			updated_at = excluded.updated_at`,
		id, patch.Name, patch.Description, patch.TargetURL, patch.Definition, now, now,
	)
	if err != nil {
		return fmt.Errorf("upserting project: %w", err)
	}
	return nil
}

// DeleteProject deletes a project by id.
func (s *Store) DeleteProject(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting project: %w", err)
	}
	return nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
