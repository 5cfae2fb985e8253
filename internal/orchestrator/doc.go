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

/*
Package orchestrator drives a recorded project against a worker tab, one
step at a time, tracking progress and logs and producing a single
normalized result.

# Key types

  - Orchestrator: the run-loop façade; owns one of each component below
  - ProgressTracker: a two-level (row × step) state machine with an event bus
  - LogCollector: append-only, leveled log buffer with single-string rendering
  - TabController: worker-tab lifecycle, retried injection, request/response transport
  - ResultAggregator: terminal-state snapshot → normalized ExecutionResult

# Usage

Construct an Orchestrator over a Transport implementation and run a project:

	o := orchestrator.New(transport,
	    orchestrator.WithStore(testRunStore),
	    orchestrator.WithMetrics(metrics),
	)

	result, err := o.Start(ctx, proj)

Subscribe to lifecycle and progress events:

	unsubscribe := o.Subscribe(func(ev orchestrator.Event) {
	    log.Printf("%s: %.1f%%", ev.Type, ev.Snapshot.Percentage)
	})
	defer unsubscribe()

Pause, resume, or stop a run in progress from another goroutine:

	o.Pause()
	o.Resume()
	o.Stop()

# Checkpointing

Before each step command is dispatched, a Snapshot of {run id, row index,
step index, counters} is written via orchcheckpoint.Manager when one is
configured, and removed on terminal completion.

# Concurrency model

The run loop is single-threaded cooperative: at most one outstanding
sendMessage call per tab at any time. Concurrency arises only from awaited
transport calls and the periodic partial-commit timer, which runs on its
own goroutine alongside the run loop; a partial commit can therefore take
place while a step command is in flight.
*/
package orchestrator
