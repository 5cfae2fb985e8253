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
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	noop "go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/time/rate"

	"github.com/webrun-dev/webrun/internal/log"
	"github.com/webrun-dev/webrun/internal/orchcheckpoint"
	"github.com/webrun-dev/webrun/internal/orchconfig"
	"github.com/webrun-dev/webrun/internal/orchmetrics"
	"github.com/webrun-dev/webrun/internal/project"
	"github.com/webrun-dev/webrun/internal/store"
	"github.com/webrun-dev/webrun/pkg/orcherrors"
)

// partialCommitInterval is the minimum spacing between partial TestRun
// commits, per the ≥500ms throttle the persistence projection requires.
const partialCommitInterval = 500 * time.Millisecond

// Orchestrator runs one project to completion or to an explicit stop,
// emitting progress and persisting a TestRun. It owns exactly one
// ProgressTracker, LogCollector, ResultAggregator, and TabController per
// run; their lifetime is the run.
type Orchestrator struct {
	transport Transport
	cfg       orchconfig.Config
	store     store.TestRunStore
	checkpoints *orchcheckpoint.Manager
	metrics   *orchmetrics.Metrics
	tracer    trace.Tracer
	logger    *slog.Logger

	mu      sync.Mutex
	running bool

	tab        *TabController
	tracker    *ProgressTracker
	logs       *LogCollector
	aggregator *ResultAggregator

	runID     string
	tabID     string
	startedAt time.Time

	cancelMu      sync.Mutex
	cancelCurrent context.CancelFunc

	partialListenersMu sync.RWMutex
	nextListenerID     int
	partialListeners   map[int]EventListener
	stopPartial        chan struct{}
	partialWG          sync.WaitGroup
}

// New constructs an Orchestrator bound to transport, applying opts over
// default configuration.
func New(transport Transport, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		transport: transport,
		cfg:       orchconfig.Default(),
		tracer:    noop.NewTracerProvider().Tracer("webrun/orchestrator"),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Start validates proj, constructs the four core objects, opens the
// worker tab, creates a pending TestRun, and runs the step loop to
// completion, pause-aware stop, or fatal abort.
func (o *Orchestrator) Start(ctx context.Context, proj *project.Project) (*ExecutionResult, error) {
	if err := proj.Validate(); err != nil {
		return nil, err
	}

	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return nil, fmt.Errorf("orchestrator: a run is already in progress")
	}
	o.running = true
	o.mu.Unlock()
	if o.metrics != nil {
		o.metrics.ActiveRuns.Inc()
	}
	defer func() {
		o.mu.Lock()
		o.running = false
		o.mu.Unlock()
		if o.metrics != nil {
			o.metrics.ActiveRuns.Dec()
		}
	}()

	totalRows := proj.TotalRows()
	stepsPerRow := len(proj.Steps)

	o.tracker = NewProgressTracker(totalRows, stepsPerRow, o.cfg.Progress)
	o.tracker.On(wildcard, o.dispatch)
	o.logs = NewLogCollector(o.cfg.Logs)
	o.aggregator = NewResultAggregator(o.cfg.Results)
	o.runID = uuid.New().String()
	o.logger = log.WithRunContext(o.logger, o.runID, proj.ID)
	o.tab = NewTabController(o.transport, o.cfg.Tab).WithMetrics(o.metrics).WithLogger(o.logger, o.runID)
	o.startedAt = time.Now()

	ctx, span := o.tracer.Start(ctx, "orchestrator.run",
		trace.WithAttributes(attribute.String("webrun.run_id", o.runID), attribute.String("webrun.project_id", proj.ID)))
	defer span.End()

	if o.store != nil {
		start := o.startedAt
		if _, err := o.store.AddTestRun(ctx, &store.TestRun{
			ID:         o.runID,
			ProjectID:  proj.ID,
			Status:     string(ExecPending),
			StartTime:  &start,
			TotalSteps: totalRows * stepsPerRow,
			TotalRows:  totalRows,
		}); err != nil {
			return nil, &orcherrors.PersistenceError{Operation: "testRuns.add", RunID: o.runID, Cause: err}
		}
	}

	tabInfo, err := o.tab.OpenTab(ctx, proj.TargetURL)
	if err != nil {
		return o.finalizeFatal(ctx, fmt.Sprintf("opening worker tab: %v", err))
	}
	o.tabID = tabInfo.TabID
	log.WithTabContext(o.logger, o.runID, o.tabID).Debug("worker tab opened",
		log.String("url", tabInfo.URL), log.Bool("script_injected", tabInfo.ScriptInjected))

	if !tabInfo.ScriptInjected {
		if _, err := o.tab.InjectScript(ctx, o.tabID); err != nil {
			return o.finalizeFatal(ctx, fmt.Sprintf("injecting content agent: %v", err))
		}
	}

	o.tracker.StartExecution()
	o.startPartialCommitLoop(ctx)
	defer o.stopPartialCommitLoop()

	o.runLoop(ctx, proj)

	closeCtx, cancel := context.WithTimeout(context.Background(), o.cfg.Tab.Timeout)
	o.tab.CloseTab(closeCtx, o.tabID)
	cancel()

	wasStopped := o.tracker.IsStopped()
	if !wasStopped {
		o.tracker.CompleteExecution()
	}

	result := o.aggregator.Aggregate(o.tracker, o.logs, wasStopped, o.startedAt, "")
	if o.metrics != nil {
		o.metrics.ObserveRun(string(result.Status))
	}
	o.commitFinal(ctx, result)
	if o.checkpoints != nil {
		_ = o.checkpoints.Delete(o.runID)
	}

	return &result, nil
}

// runLoop is the step-by-step execution exactly as documented: for each
// row, for each step, await one outcome before dispatching the next.
func (o *Orchestrator) runLoop(ctx context.Context, proj *project.Project) {
	totalRows := proj.TotalRows()
	stepsPerRow := len(proj.Steps)

rows:
	for r := 0; r < totalRows; r++ {
		o.waitIfPaused(ctx)
		if o.tracker.IsStopped() {
			break rows
		}

		row := proj.RowAt(r)
		o.tracker.StartRow(r, rowIdentifier(row))
		o.logs.rowStarted(r, totalRows)

		rowCtx, rowSpan := o.tracer.Start(ctx, "orchestrator.row", trace.WithAttributes(attribute.Int("webrun.row_index", r)))

		for s := 0; s < stepsPerRow; s++ {
			o.waitIfPaused(rowCtx)
			if o.tracker.IsStopped() {
				rowSpan.End()
				break rows
			}

			step := proj.Steps[s]
			o.tracker.StartStep(s, step.ID, step.Name)
			o.logs.stepStarted(r, s, step.Name)

			if o.checkpoints != nil {
				snap := o.tracker.Snapshot()
				_ = o.checkpoints.Save(orchcheckpoint.Snapshot{
					RunID: o.runID, ProjectID: proj.ID,
					RowIndex: r, StepIndex: s,
					Passed: snap.Passed, Failed: snap.Failed, Skipped: snap.Skipped,
				})
			}

			resolved, err := project.ResolveStep(step, proj.Fields, row)
			if err != nil {
				o.failStep(r, s, 0, err.Error())
				break
			}

			stepLogger := log.WithStepContext(o.logger, o.runID, r, s)
			if resolved.Event == project.EventInput {
				log.Trace(stepLogger, "dispatching step", log.String("step_id", step.ID),
					log.String("event", string(resolved.Event)),
					log.String("value", log.SanitizeSecret(fmt.Sprint(resolved.Params[project.ValueKey]))))
			} else {
				log.Trace(stepLogger, "dispatching step", log.String("step_id", step.ID), log.Attr("event", resolved.Event))
			}

			stepCtx, stepSpan := o.tracer.Start(rowCtx, "orchestrator.step", trace.WithAttributes(attribute.Int("webrun.step_index", s)))
			t0 := time.Now()
			resp, sendErr := o.sendMessage(stepCtx, o.tabID, buildCommand(resolved, row))
			durationMs := time.Since(t0).Milliseconds()
			stepSpan.End()
			log.Trace(stepLogger, "step result", log.Bool("ok", sendErr == nil && resp.OK), log.Duration("step", durationMs))

			if sendErr != nil {
				o.failStep(r, s, durationMs, sendErr.Error())
				break
			}
			if !resp.OK {
				o.failStep(r, s, durationMs, resp.Error)
				break
			}

			o.tracker.CompleteStep(s, StepPassed, durationMs, "")
			o.logs.stepPassed(r, s, durationMs)
			if o.metrics != nil {
				o.metrics.ObserveStep(string(StepPassed), durationMs)
			}
		}

		rowSpan.End()
		o.tracker.CompleteRow(r)
		rowSnap := o.tracker.Row(r)
		o.logs.rowCompleted(r, rowSnap.Passed, rowSnap.Failed, rowSnap.Skipped)
	}
}

// failStep records a step failure (agent-reported or transport) and logs
// it; the row is abandoned fail-fast by the caller's break.
func (o *Orchestrator) failStep(row, step int, durationMs int64, message string) {
	o.tracker.CompleteStep(step, StepFailed, durationMs, message)
	o.logs.stepFailed(row, step, message)
	if o.metrics != nil {
		o.metrics.ObserveStep(string(StepFailed), durationMs)
	}
}

// sendMessage delivers cmd through the TabController, tracking a
// cancelable context so Stop can best-effort cancel an in-flight call.
func (o *Orchestrator) sendMessage(ctx context.Context, tabID string, cmd StepCommand) (StepResponse, error) {
	callCtx, cancel := context.WithCancel(ctx)
	o.cancelMu.Lock()
	o.cancelCurrent = cancel
	o.cancelMu.Unlock()
	defer func() {
		o.cancelMu.Lock()
		o.cancelCurrent = nil
		o.cancelMu.Unlock()
		cancel()
	}()

	return o.tab.SendMessage(callCtx, tabID, cmd)
}

// waitIfPaused blocks the run loop while the tracker is paused, polling at
// a short fixed interval until resumed, stopped, or ctx is done.
func (o *Orchestrator) waitIfPaused(ctx context.Context) {
	for o.tracker.IsPaused() {
		select {
		case <-ctx.Done():
			return
		case <-time.After(25 * time.Millisecond):
		}
	}
}

// Pause suspends the run after the in-flight step completes.
func (o *Orchestrator) Pause() {
	if o.tracker != nil {
		o.tracker.PauseExecution()
	}
}

// Resume continues a paused run.
func (o *Orchestrator) Resume() {
	if o.tracker != nil {
		o.tracker.ResumeExecution()
	}
}

// Stop idempotently ends the run: flips the tracker to the stopped path,
// best-effort cancels the in-flight transport call, and closes the worker
// tab.
func (o *Orchestrator) Stop() {
	if o.tracker != nil {
		o.tracker.StopExecution()
	}

	o.cancelMu.Lock()
	cancel := o.cancelCurrent
	o.cancelMu.Unlock()
	if cancel != nil {
		cancel()
	}

	if o.tab != nil && o.tabID != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		o.tab.CloseTab(ctx, o.tabID)
	}
}

// Subscribe forwards every tracker event plus partial_result_update at the
// configured update interval, returning an unsubscribe function. It may be
// called before Start; the subscription carries over to each run's tracker.
func (o *Orchestrator) Subscribe(listener EventListener) (unsubscribe func()) {
	o.partialListenersMu.Lock()
	id := o.nextListenerID
	o.nextListenerID++
	if o.partialListeners == nil {
		o.partialListeners = make(map[int]EventListener)
	}
	o.partialListeners[id] = listener
	o.partialListenersMu.Unlock()

	return func() {
		o.partialListenersMu.Lock()
		delete(o.partialListeners, id)
		o.partialListenersMu.Unlock()
	}
}

// finalizeFatal ends a run that failed before entering the step loop
// (precondition already checked by Start; this covers openTab and
// injection exhaustion), committing a failed TestRun with no row results.
func (o *Orchestrator) finalizeFatal(ctx context.Context, message string) (*ExecutionResult, error) {
	o.logs.Error(message, nil)
	endedAt := time.Now()
	result := ExecutionResult{
		Status:       ExecFailed,
		StartedAt:    o.startedAt,
		EndedAt:      endedAt,
		DurationMs:   endedAt.Sub(o.startedAt).Milliseconds(),
		Logs:         o.logs.ToString(),
		ErrorMessage: message,
	}
	if o.metrics != nil {
		o.metrics.ObserveRun(string(ExecFailed))
	}
	o.commitFinal(ctx, result)
	return &result, nil
}

// commitFinal writes the terminal result to the store, if configured,
// mapping stopped to failed per the persistence projection.
func (o *Orchestrator) commitFinal(ctx context.Context, result ExecutionResult) {
	if o.store == nil {
		return
	}
	patch := resultToTestRun(result)
	patch.Status = string(PersistedStatus(result.Status))
	if err := o.store.UpdateTestRun(ctx, o.runID, patch); err != nil {
		o.logger.Error("committing final test run", log.Error(err))
	}
}

// commitPartial is invoked by the periodic commit loop; it writes the
// current counters, test_results, and logs string to the store.
func (o *Orchestrator) commitPartial(ctx context.Context) {
	if o.store == nil || o.tracker == nil {
		return
	}
	snapshot := o.tracker.Snapshot()
	rows := o.tracker.Rows()

	patch := &store.TestRun{
		Status:        string(ExecPending),
		PassedSteps:   snapshot.Passed,
		FailedSteps:   snapshot.Failed,
		SkippedSteps:  snapshot.Skipped,
		CompletedRows: completedRowCount(rows),
		TestResults:   o.aggregator.flattenSteps(rows),
		Logs:          o.logs.ToString(),
	}
	if err := o.store.UpdateTestRun(ctx, o.runID, patch); err != nil {
		o.logger.Error("committing partial test run", log.Error(err))
	}
}

// startPartialCommitLoop launches the background goroutine that commits
// partial progress and emits partial_result_update at a throttled,
// ≥500ms interval.
func (o *Orchestrator) startPartialCommitLoop(ctx context.Context) {
	interval := o.cfg.Progress.UpdateInterval
	if interval < partialCommitInterval {
		interval = partialCommitInterval
	}

	stop := make(chan struct{})
	o.stopPartial = stop
	limiter := rate.NewLimiter(rate.Every(partialCommitInterval), 1)

	o.partialWG.Add(1)
	go func() {
		defer o.partialWG.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !limiter.Allow() {
					continue
				}
				o.commitPartial(ctx)
				o.emitPartialResultUpdate()
			}
		}
	}()
}

func (o *Orchestrator) stopPartialCommitLoop() {
	if o.stopPartial != nil {
		close(o.stopPartial)
		o.stopPartial = nil
	}
	o.partialWG.Wait()
}

func (o *Orchestrator) emitPartialResultUpdate() {
	o.dispatch(Event{
		Type:      EventPartialResultUpdate,
		Timestamp: time.Now(),
		Snapshot:  o.tracker.Snapshot(),
	})
}

// dispatch delivers ev to every listener registered through Subscribe. A
// panicking listener is recovered and does not stop delivery to the rest.
func (o *Orchestrator) dispatch(ev Event) {
	o.partialListenersMu.RLock()
	listeners := make([]EventListener, 0, len(o.partialListeners))
	for _, l := range o.partialListeners {
		listeners = append(listeners, l)
	}
	o.partialListenersMu.RUnlock()

	for _, l := range listeners {
		func() {
			defer func() { _ = recover() }()
			l(ev)
		}()
	}
}

// rowIdentifier derives a display identifier for a row, if the project
// supplies an "id" or "identifier" column.
func rowIdentifier(row project.Row) string {
	if row == nil {
		return ""
	}
	if id, ok := row["id"]; ok {
		return id
	}
	if id, ok := row["identifier"]; ok {
		return id
	}
	return ""
}

// completedRowCount counts rows whose status is terminal (completed or
// failed), per invariant I4.
func completedRowCount(rows []TrackedRow) int {
	count := 0
	for _, r := range rows {
		if r.Status == RowCompleted || r.Status == RowFailed {
			count++
		}
	}
	return count
}

// buildCommand projects a resolved RecordedStep and its row into the wire
// shape sent to the content agent: {action: 'runStep', step, row?}.
func buildCommand(step project.RecordedStep, row project.Row) StepCommand {
	var rowMap map[string]string
	if row != nil {
		rowMap = map[string]string(row)
	}
	return StepCommand{
		Action: "runStep",
		Step: CommandStep{
			ID:      step.ID,
			Name:    step.Name,
			Event:   string(step.Event),
			Locator: step.Locator,
			Params:  step.Params,
		},
		Row: rowMap,
	}
}

// resultToTestRun projects an ExecutionResult onto the persistence schema.
func resultToTestRun(result ExecutionResult) *store.TestRun {
	endedAt := result.EndedAt
	results := make([]store.StepResult, len(result.StepResults))
	for i, r := range result.StepResults {
		results[i] = store.StepResult{
			RowIndex:     r.RowIndex,
			StepIndex:    r.StepIndex,
			StepID:       r.StepID,
			Name:         r.Name,
			Status:       string(r.Status),
			DurationMs:   r.DurationMs,
			ErrorMessage: r.ErrorMessage,
		}
	}
	return &store.TestRun{
		Status:       string(result.Status),
		EndTime:      &endedAt,
		TotalSteps:   result.TotalSteps,
		PassedSteps:  result.Passed,
		FailedSteps:  result.Failed,
		SkippedSteps: result.Skipped,
		TestResults:  results,
		Logs:         result.Logs,
		ErrorMessage: result.ErrorMessage,
	}
}
