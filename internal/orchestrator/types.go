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

// Package orchestrator drives a recorded project step by step against a
// worker tab, tracking progress and logs as it goes and producing a single
// normalized result at the end.
package orchestrator

import "time"

// StepStatus is the terminal or in-flight state of a single TrackedStep.
type StepStatus string

const (
	StepPending StepStatus = "pending"
	StepRunning StepStatus = "running"
	StepPassed  StepStatus = "passed"
	StepFailed  StepStatus = "failed"
	StepSkipped StepStatus = "skipped"
)

// RowStatus is the state of one row iteration.
type RowStatus string

const (
	RowPending   RowStatus = "pending"
	RowRunning   RowStatus = "running"
	RowCompleted RowStatus = "completed"
	RowFailed    RowStatus = "failed"
	// RowSkipped is a result-projection-only status (ResultAggregator's
	// per-row derivation): a TrackedRow itself never transitions here.
	RowSkipped RowStatus = "skipped"
)

// RunStatus is the lifecycle state of the tracker / orchestrator as a whole.
type RunStatus string

const (
	RunIdle      RunStatus = "idle"
	RunRunning   RunStatus = "running"
	RunPaused    RunStatus = "paused"
	RunCompleted RunStatus = "completed"
	RunStopped   RunStatus = "stopped"
)

// ExecutionStatus is the terminal status recorded on an ExecutionResult.
type ExecutionStatus string

const (
	ExecCompleted ExecutionStatus = "completed"
	ExecFailed    ExecutionStatus = "failed"
	ExecStopped   ExecutionStatus = "stopped"
	ExecPending   ExecutionStatus = "pending"
)

// LogLevel is the severity tag on a LogEntry.
type LogLevel string

const (
	LevelInfo    LogLevel = "info"
	LevelSuccess LogLevel = "success"
	LevelWarning LogLevel = "warning"
	LevelError   LogLevel = "error"
	LevelDebug   LogLevel = "debug"
)

// EventType identifies the kind of lifecycle event emitted on the tracker's
// event bus. Wildcard is not a member of this set: it is the subscription
// key "*" handled by (*ProgressTracker).On.
type EventType string

const (
	EventExecutionStarted   EventType = "execution_started"
	EventExecutionPaused    EventType = "execution_paused"
	EventExecutionResumed   EventType = "execution_resumed"
	EventExecutionStopped   EventType = "execution_stopped"
	EventExecutionCompleted EventType = "execution_completed"
	EventRowStarted         EventType = "row_started"
	EventRowCompleted       EventType = "row_completed"
	EventStepStarted        EventType = "step_started"
	EventStepCompleted      EventType = "step_completed"
	EventProgressUpdate     EventType = "progress_update"
	// EventPartialResultUpdate is emitted by the Orchestrator, not the
	// tracker, after each partial commit: every UpdateInterval but no more
	// often than every 500ms.
	EventPartialResultUpdate EventType = "partial_result_update"

	// wildcard is the subscription key that receives every event type.
	wildcard EventType = "*"
)

// TrackedStep is the tracker's live view of one step within one row.
type TrackedStep struct {
	Index       int
	ID          string
	Name        string
	Status      StepStatus
	DurationMs  int64
	Error       string
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// TrackedRow is the tracker's live view of one row iteration.
type TrackedRow struct {
	Index       int
	Identifier  string
	Status      RowStatus
	Steps       []TrackedStep
	Passed      int
	Failed      int
	Skipped     int
	DurationMs  int64
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// LogEntry is one append-only, timestamped log line.
type LogEntry struct {
	Timestamp     time.Time
	FormattedTime string
	Level         LogLevel
	Message       string
	StepIndex     *int
	RowIndex      *int
	Context       map[string]any
}

// ProgressSnapshot is a read-only, side-effect-free view of tracker state,
// computed on demand and attached to every emitted Event.
type ProgressSnapshot struct {
	Percentage         float64
	CurrentRow         int
	CurrentStep        int
	TotalRows          int
	StepsPerRow        int
	TotalSteps         int
	CompletedSteps     int
	Passed             int
	Failed             int
	Skipped            int
	ElapsedMs          int64
	AverageStepMs       float64
	EstimatedRemainingMs int64
	Running            bool
	Paused             bool
	StartedAt          *time.Time
}

// Event is one lifecycle event delivered to subscribers of the tracker's
// event bus.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Snapshot  ProgressSnapshot
	Row       *TrackedRow
	Step      *TrackedStep
}

// StepResult is one flattened, row-annotated step outcome as recorded in an
// ExecutionResult or TestRun.
type StepResult struct {
	RowIndex    int
	StepIndex   int
	StepID      string
	Name        string
	Status      StepStatus
	DurationMs  int64
	ErrorMessage string
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// RowResult is the optional per-row breakdown attached to an ExecutionResult
// when ResultConfig.IncludeRowDetails is set.
type RowResult struct {
	Index      int
	Identifier string
	Status     RowStatus
	Passed     int
	Failed     int
	Skipped    int
	DurationMs int64
}

// ExecutionResult is the terminal, normalized outcome of one orchestrator
// run, produced once by the ResultAggregator.
type ExecutionResult struct {
	Status      ExecutionStatus
	TotalSteps  int
	Passed      int
	Failed      int
	Skipped     int
	PassRate    float64
	StartedAt   time.Time
	EndedAt     time.Time
	DurationMs  int64
	StepResults []StepResult
	RowResults  []RowResult
	Logs        string
	WasStopped  bool
	ErrorMessage string
}

// PartialResult is the live-UI projection the ResultAggregator can yield
// while a run is still in progress.
type PartialResult struct {
	Status               RunStatus
	Percentage           float64
	CurrentRow           int
	CurrentStep          int
	CompletedSteps       int
	Passed               int
	Failed               int
	ElapsedMs            int64
	EstimatedRemainingMs int64
}

// StepCommand is the request shape sent to the content agent over the
// worker-tab transport: {action: 'runStep', step, row?}.
type StepCommand struct {
	Action string
	Step   CommandStep
	Row    map[string]string
}

// CommandStep is the wire projection of a project.RecordedStep carried in a
// StepCommand: opaque fields only, no project-package dependency.
type CommandStep struct {
	ID      string
	Name    string
	Event   string
	Locator string
	Params  map[string]any
}

// StepResponse is the content agent's reply to a StepCommand:
// {ok: true} or {ok: false, error: string}.
type StepResponse struct {
	OK    bool
	Error string
}
