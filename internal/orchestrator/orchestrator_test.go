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

package orchestrator_test

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/webrun-dev/webrun/internal/orchcheckpoint"
	"github.com/webrun-dev/webrun/internal/orchconfig"
	"github.com/webrun-dev/webrun/internal/orchestrator"
	"github.com/webrun-dev/webrun/internal/orchmetrics"
	"github.com/webrun-dev/webrun/internal/project"
	"github.com/webrun-dev/webrun/internal/store/memory"
	"github.com/webrun-dev/webrun/internal/testsupport"
)

func threeStepProject() *project.Project {
	return &project.Project{
		ID:        "proj-1",
		TargetURL: "https://example.com/login",
		Steps: []project.RecordedStep{
			{ID: "s1", Name: "Click username", Event: project.EventClick, Locator: "#username"},
			{ID: "s2", Name: "Enter username", Event: project.EventInput, Locator: "#username"},
			{ID: "s3", Name: "Submit", Event: project.EventEnter, Locator: "#login-form"},
		},
	}
}

// TestOrchestrator_AllPass is S1: a single row, three steps, all pass.
func TestOrchestrator_AllPass(t *testing.T) {
	transport := testsupport.NewFakeTransport()
	st := memory.New()

	o := orchestrator.New(transport, orchestrator.WithStore(st))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	result, err := o.Start(ctx, threeStepProject())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != orchestrator.ExecCompleted {
		t.Fatalf("expected completed, got %s", result.Status)
	}
	if len(result.StepResults) != 3 {
		t.Fatalf("expected 3 step results, got %d", len(result.StepResults))
	}

	run, err := st.GetTestRun(ctx, runIDFromResult(t, st, ctx))
	if err != nil {
		t.Fatalf("fetching persisted run: %v", err)
	}
	if run.Status != "completed" {
		t.Errorf("expected persisted status completed, got %s", run.Status)
	}
}

// TestOrchestrator_Logging exercises the run-scoped diagnostic logger: it
// must carry run/project context throughout the run and never emit a
// data-driven input value in the clear.
func TestOrchestrator_Logging(t *testing.T) {
	transport := testsupport.NewFakeTransport()

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.Level(-8)}))

	o := orchestrator.New(transport, orchestrator.WithLogger(logger))

	proj := threeStepProject()
	proj.Fields = []project.ParsedField{{StepID: "s2", Column: "password"}}
	proj.Rows = []project.Row{{"password": "hunter2"}}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := o.Start(ctx, proj); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, `"project_id":"proj-1"`) {
		t.Errorf("expected run-context project_id in logs, got %q", out)
	}
	if !strings.Contains(out, "tab_id") {
		t.Errorf("expected tab-context tab_id in logs, got %q", out)
	}
	if !strings.Contains(out, "row_index") || !strings.Contains(out, "step_index") {
		t.Errorf("expected step-context row/step indices in logs, got %q", out)
	}
	if strings.Contains(out, "hunter2") {
		t.Errorf("expected the input step's resolved value to be redacted, got %q", out)
	}
	if !strings.Contains(out, "[REDACTED]") {
		t.Errorf("expected a redacted value marker in logs, got %q", out)
	}
}

// TestOrchestrator_FailFast is S2: step 2 fails and step 3 is never
// attempted, so only two step results are persisted for the row.
func TestOrchestrator_FailFast(t *testing.T) {
	transport := testsupport.NewFakeTransport()
	transport.StepScripts = []testsupport.StepScript{
		{Response: orchestrator.StepResponse{OK: true}},
		{Response: orchestrator.StepResponse{OK: false, Error: "Element not found"}},
	}

	o := orchestrator.New(transport)
	result, err := o.Start(context.Background(), threeStepProject())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != orchestrator.ExecFailed {
		t.Fatalf("expected failed, got %s", result.Status)
	}
	if len(result.StepResults) != 2 {
		t.Fatalf("expected 2 step results (third step never attempted), got %d", len(result.StepResults))
	}
	if result.StepResults[1].ErrorMessage != "Element not found" {
		t.Errorf("expected error message preserved, got %q", result.StepResults[1].ErrorMessage)
	}
}

// TestOrchestrator_Stop is S3: Stop() called mid-run ends the execution as
// stopped, persisted as failed.
func TestOrchestrator_Stop(t *testing.T) {
	transport := testsupport.NewFakeTransport()
	transport.StepScripts = []testsupport.StepScript{
		{Response: orchestrator.StepResponse{OK: true}},
		{Response: orchestrator.StepResponse{OK: true}},
		{Response: orchestrator.StepResponse{OK: true}},
	}
	st := memory.New()
	o := orchestrator.New(transport, orchestrator.WithStore(st))

	var sawStep bool
	unsubscribe := o.Subscribe(func(ev orchestrator.Event) {
		if ev.Type == orchestrator.EventStepCompleted && !sawStep {
			sawStep = true
			go o.Stop()
		}
	})
	defer unsubscribe()

	result, err := o.Start(context.Background(), threeStepProject())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != orchestrator.ExecStopped {
		t.Fatalf("expected stopped, got %s", result.Status)
	}
	if !result.WasStopped {
		t.Error("expected WasStopped=true")
	}
}

// TestOrchestrator_Subscribe_DeliversPartialResultUpdate checks that a
// partial_result_update event reaches a subscriber once the update interval
// elapses.
func TestOrchestrator_Subscribe_DeliversPartialResultUpdate(t *testing.T) {
	transport := testsupport.NewFakeTransport()
	cfg := orchconfig.Default()
	cfg.Progress.UpdateInterval = 10 * time.Millisecond

	o := orchestrator.New(transport, orchestrator.WithConfig(cfg))

	events := make(chan orchestrator.EventType, 16)
	unsubscribe := o.Subscribe(func(ev orchestrator.Event) {
		select {
		case events <- ev.Type:
		default:
		}
	})
	defer unsubscribe()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if _, err := o.Start(ctx, threeStepProject()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var sawExecutionStarted bool
	close(events)
	for ev := range events {
		if ev == orchestrator.EventExecutionStarted {
			sawExecutionStarted = true
		}
	}
	if !sawExecutionStarted {
		t.Error("expected at least the execution_started tracker event to be forwarded")
	}
}

// TestOrchestrator_Checkpoints verifies that a run with a checkpoint manager
// completes and leaves no checkpoint file behind once it terminates.
func TestOrchestrator_Checkpoints(t *testing.T) {
	dir := t.TempDir()
	mgr, err := orchcheckpoint.NewManager(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	transport := testsupport.NewFakeTransport()
	o := orchestrator.New(transport, orchestrator.WithCheckpoints(mgr))

	result, err := o.Start(context.Background(), threeStepProject())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != orchestrator.ExecCompleted {
		t.Fatalf("expected completed, got %s", result.Status)
	}

	// The run id isn't exposed directly; confirm no checkpoint files remain
	// in the directory after a terminal completion.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("reading checkpoint dir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected no leftover checkpoint files, found %v", entries)
	}
}

// TestOrchestrator_Metrics verifies that a run with metrics attached
// completes and that the configured registry exposes metric families.
func TestOrchestrator_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := orchmetrics.New(reg)

	transport := testsupport.NewFakeTransport()
	o := orchestrator.New(transport, orchestrator.WithMetrics(m))

	if _, err := o.Start(context.Background(), threeStepProject()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gathering metrics: %v", err)
	}
	if len(families) == 0 {
		t.Fatal("expected at least one metric family to be registered")
	}
}

func runIDFromResult(t *testing.T, st *memory.Store, ctx context.Context) string {
	t.Helper()
	runs, err := st.GetTestRunsByProject(ctx, "proj-1")
	if err != nil {
		t.Fatalf("listing test runs: %v", err)
	}
	if len(runs) == 0 {
		t.Fatal("expected at least one persisted test run")
	}
	return runs[0].ID
}
