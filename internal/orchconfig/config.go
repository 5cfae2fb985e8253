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

// Package orchconfig holds the orchestrator's four configuration option
// groups (tab, progress, logs, results) and their defaults.
package orchconfig

import "time"

// TabConfig configures the TabController's lifecycle behavior.
type TabConfig struct {
	// Timeout is the overall deadline for a sendMessage call.
	Timeout time.Duration

	// LoadDelay is how long to sleep after opening a tab before it is
	// considered ready, when WaitForLoad is set.
	LoadDelay time.Duration

	// MaxInjectionRetries bounds the total number of injectScript attempts,
	// the first one included.
	MaxInjectionRetries int

	// InjectionRetryDelay is the fixed backoff between injection attempts.
	InjectionRetryDelay time.Duration

	// WaitForLoad, when true, sleeps LoadDelay after opening a tab.
	WaitForLoad bool

	// PingTimeout bounds an isTabReady probe.
	PingTimeout time.Duration
}

// DefaultTabConfig returns the spec's documented tab defaults.
func DefaultTabConfig() TabConfig {
	return TabConfig{
		Timeout:             30 * time.Second,
		LoadDelay:           500 * time.Millisecond,
		MaxInjectionRetries: 3,
		InjectionRetryDelay: 500 * time.Millisecond,
		WaitForLoad:         true,
		PingTimeout:         5 * time.Second,
	}
}

// ProgressConfig configures the ProgressTracker.
type ProgressConfig struct {
	// UpdateInterval is the periodic progress_update timer period; 0 disables it.
	UpdateInterval time.Duration

	// IncludeSkippedInProgress includes skipped steps in the percentage numerator.
	IncludeSkippedInProgress bool

	// TrackStepHistory is carried in the configuration but not read by the
	// ProgressTracker; completed TrackedStep entries are always retained.
	TrackStepHistory bool
}

// DefaultProgressConfig returns the spec's documented progress defaults.
func DefaultProgressConfig() ProgressConfig {
	return ProgressConfig{
		UpdateInterval:           500 * time.Millisecond,
		IncludeSkippedInProgress: false,
		TrackStepHistory:         true,
	}
}

// LogConfig configures the LogCollector.
type LogConfig struct {
	// MaxLogs bounds buffer size; 0 means unbounded.
	MaxLogs int

	// IncludeDebug controls whether debug() calls are appended at all.
	IncludeDebug bool

	// IncludeTimestamp controls whether toString() renders [HH:MM:SS].
	IncludeTimestamp bool

	// IncludeLevel controls whether toString() renders [LEVEL].
	IncludeLevel bool

	// LineSeparator joins rendered entries in toString().
	LineSeparator string
}

// DefaultLogConfig returns the spec's documented log defaults.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		MaxLogs:          10000,
		IncludeDebug:     false,
		IncludeTimestamp: true,
		IncludeLevel:     true,
		LineSeparator:    "\n",
	}
}

// TimestampFormat names a timestamp rendering. ResultAggregator does not
// read it; start and end times are carried as time.Time values.
type TimestampFormat string

const (
	TimestampFormatISO    TimestampFormat = "iso"
	TimestampFormatUnix   TimestampFormat = "unix"
	TimestampFormatLocale TimestampFormat = "locale"
)

// ResultConfig configures the ResultAggregator.
type ResultConfig struct {
	// IncludePending includes pending steps in test_results.
	IncludePending bool

	// IncludeRowDetails includes the per-row breakdown in ExecutionResult.
	IncludeRowDetails bool

	// TimestampFormat is carried in the configuration but not read by the
	// ResultAggregator.
	TimestampFormat TimestampFormat
}

// DefaultResultConfig returns the spec's documented result defaults.
func DefaultResultConfig() ResultConfig {
	return ResultConfig{
		IncludePending:    false,
		IncludeRowDetails: true,
		TimestampFormat:   TimestampFormatISO,
	}
}

// Config bundles all four option groups, as accepted by the orchestrator
// façade's constructor.
type Config struct {
	Tab      TabConfig
	Progress ProgressConfig
	Logs     LogConfig
	Results  ResultConfig
}

// Default returns a Config populated entirely from the spec's documented defaults.
func Default() Config {
	return Config{
		Tab:      DefaultTabConfig(),
		Progress: DefaultProgressConfig(),
		Logs:     DefaultLogConfig(),
		Results:  DefaultResultConfig(),
	}
}
