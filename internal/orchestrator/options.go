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
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"github.com/webrun-dev/webrun/internal/orchcheckpoint"
	"github.com/webrun-dev/webrun/internal/orchconfig"
	"github.com/webrun-dev/webrun/internal/orchmetrics"
	"github.com/webrun-dev/webrun/internal/store"
)

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithConfig sets the tab/progress/log/result configuration.
func WithConfig(cfg orchconfig.Config) Option {
	return func(o *Orchestrator) {
		o.cfg = cfg
	}
}

// WithStore sets the persistence collaborator. Without one, a run still
// executes but nothing is committed.
func WithStore(s store.TestRunStore) Option {
	return func(o *Orchestrator) {
		o.store = s
	}
}

// WithCheckpoints enables per-step checkpoint snapshots.
func WithCheckpoints(m *orchcheckpoint.Manager) Option {
	return func(o *Orchestrator) {
		o.checkpoints = m
	}
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *orchmetrics.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithTracer sets the OpenTelemetry tracer used for per-row/per-step spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *Orchestrator) {
		o.tracer = tracer
	}
}

// WithLogger sets the structured diagnostic logger (distinct from the
// per-run LogCollector).
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}
