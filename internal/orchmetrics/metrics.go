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

// Package orchmetrics exposes Prometheus instrumentation for the run loop:
// how many runs are active, how steps resolve, and how long they take.
package orchmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles the counters and gauges the orchestrator updates over the
// lifetime of a run.
type Metrics struct {
	ActiveRuns       prometheus.Gauge
	StepsTotal       *prometheus.CounterVec
	StepDuration     *prometheus.HistogramVec
	RunsTotal        *prometheus.CounterVec
	InjectionRetries prometheus.Counter
}

// New registers and returns a fresh Metrics bundle against reg. Pass
// prometheus.DefaultRegisterer for process-wide metrics.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ActiveRuns: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "webrun",
			Subsystem: "orchestrator",
			Name:      "active_runs",
			Help:      "Number of test runs currently executing.",
		}),
		StepsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "webrun",
			Subsystem: "orchestrator",
			Name:      "steps_total",
			Help:      "Total steps executed, labeled by outcome status.",
		}, []string{"status"}),
		StepDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "webrun",
			Subsystem: "orchestrator",
			Name:      "step_duration_seconds",
			Help:      "Duration of individual step executions.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"status"}),
		RunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "webrun",
			Subsystem: "orchestrator",
			Name:      "runs_total",
			Help:      "Total test runs, labeled by terminal status.",
		}, []string{"status"}),
		InjectionRetries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "webrun",
			Subsystem: "orchestrator",
			Name:      "injection_retries_total",
			Help:      "Total content-agent injection retry attempts.",
		}),
	}
}

// ObserveStep records one completed step's outcome and duration.
func (m *Metrics) ObserveStep(status string, durationMs int64) {
	if m == nil {
		return
	}
	m.StepsTotal.WithLabelValues(status).Inc()
	m.StepDuration.WithLabelValues(status).Observe(float64(durationMs) / 1000)
}

// ObserveRun records one run's terminal status.
func (m *Metrics) ObserveRun(status string) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(status).Inc()
}
