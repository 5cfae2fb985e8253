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

package orchestrator

import (
	"math"
	"time"

	"github.com/webrun-dev/webrun/internal/orchconfig"
)

// ResultAggregator consumes a tracker's terminal state and a log
// collector's rendered output to produce one normalized ExecutionResult.
type ResultAggregator struct {
	cfg orchconfig.ResultConfig
}

// NewResultAggregator constructs an aggregator bound to a ResultConfig.
func NewResultAggregator(cfg orchconfig.ResultConfig) *ResultAggregator {
	return &ResultAggregator{cfg: cfg}
}

// Aggregate produces the terminal ExecutionResult for a run.
// wasStopped reflects whether the tracker ended via StopExecution rather
// than reaching completion naturally.
func (a *ResultAggregator) Aggregate(tracker *ProgressTracker, logs *LogCollector, wasStopped bool, startedAt time.Time, errorMessage string) ExecutionResult {
	snapshot := tracker.Snapshot()
	rows := tracker.Rows()

	status := deriveStatus(wasStopped, snapshot.CompletedSteps, snapshot.Failed)

	stepResults := a.flattenSteps(rows)
	rowResults := a.rowResults(rows)

	var passRate float64
	if snapshot.TotalSteps > 0 {
		passRate = math.Round(float64(snapshot.Passed)*100/float64(snapshot.TotalSteps)*100) / 100
	}

	endedAt := time.Now()
	durationMs := endedAt.Sub(startedAt).Milliseconds()

	return ExecutionResult{
		Status:       status,
		TotalSteps:   snapshot.TotalSteps,
		Passed:       snapshot.Passed,
		Failed:       snapshot.Failed,
		Skipped:      snapshot.Skipped,
		PassRate:     passRate,
		StartedAt:    startedAt,
		EndedAt:      endedAt,
		DurationMs:   durationMs,
		StepResults:  stepResults,
		RowResults:   rowResults,
		Logs:         logs.ToString(),
		WasStopped:   wasStopped,
		ErrorMessage: errorMessage,
	}
}

// deriveStatus implements the §4.4 status derivation table.
func deriveStatus(wasStopped bool, completedSteps, failed int) ExecutionStatus {
	switch {
	case wasStopped:
		return ExecStopped
	case completedSteps == 0:
		return ExecPending
	case failed > 0:
		return ExecFailed
	default:
		return ExecCompleted
	}
}

// PersistedStatus maps an ExecutionStatus to the value written to the
// persistence projection: stopped is a user choice, not a status the store
// distinguishes, so it maps to failed.
func PersistedStatus(status ExecutionStatus) ExecutionStatus {
	if status == ExecStopped {
		return ExecFailed
	}
	return status
}

// flattenSteps is the row-major concatenation of per-row step results, each
// annotated with its row index. Pending steps are excluded unless
// cfg.IncludePending is set.
func (a *ResultAggregator) flattenSteps(rows []TrackedRow) []StepResult {
	var out []StepResult
	for _, row := range rows {
		for _, step := range row.Steps {
			if step.Status == StepPending && !a.cfg.IncludePending {
				continue
			}
			out = append(out, StepResult{
				RowIndex:     row.Index,
				StepIndex:    step.Index,
				StepID:       step.ID,
				Name:         step.Name,
				Status:       step.Status,
				DurationMs:   step.DurationMs,
				ErrorMessage: step.Error,
				StartedAt:    step.StartedAt,
				CompletedAt:  step.CompletedAt,
			})
		}
	}
	return out
}

// rowResults computes the optional per-row breakdown, honoring
// cfg.IncludeRowDetails.
func (a *ResultAggregator) rowResults(rows []TrackedRow) []RowResult {
	if !a.cfg.IncludeRowDetails {
		return nil
	}
	out := make([]RowResult, len(rows))
	for i, row := range rows {
		out[i] = RowResult{
			Index:      row.Index,
			Identifier: row.Identifier,
			Status:     rowStatus(row),
			Passed:     row.Passed,
			Failed:     row.Failed,
			Skipped:    row.Skipped,
			DurationMs: row.DurationMs,
		}
	}
	return out
}

// rowStatus implements the §4.4 per-row status derivation: failed if the
// row has any failed step, else skipped if it has no passed and at least
// one skipped step, else completed.
func rowStatus(row TrackedRow) RowStatus {
	switch {
	case row.Failed > 0:
		return RowFailed
	case row.Passed == 0 && row.Skipped > 0:
		return RowSkipped
	default:
		return RowCompleted
	}
}

// Partial yields a PartialResult snapshot for live UI while the run is in
// progress.
func (a *ResultAggregator) Partial(tracker *ProgressTracker, status RunStatus) PartialResult {
	snapshot := tracker.Snapshot()
	return PartialResult{
		Status:               status,
		Percentage:           snapshot.Percentage,
		CurrentRow:           snapshot.CurrentRow,
		CurrentStep:          snapshot.CurrentStep,
		CompletedSteps:       snapshot.CompletedSteps,
		Passed:               snapshot.Passed,
		Failed:               snapshot.Failed,
		ElapsedMs:            snapshot.ElapsedMs,
		EstimatedRemainingMs: snapshot.EstimatedRemainingMs,
	}
}
