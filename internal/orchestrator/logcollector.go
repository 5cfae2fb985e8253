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
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/cases"

	"github.com/webrun-dev/webrun/internal/orchconfig"
)

// fold performs Unicode case folding for GetFilteredEntries's
// case-insensitive search, correct for non-ASCII log messages where a
// naive strings.ToLower would miss a match.
var fold = cases.Fold()

// LogListener receives log entries in arrival order, after append.
type LogListener func(entry LogEntry)

// LogFilter selects a subset of a LogCollector's entries; a nil field is
// not applied. Search is a case-insensitive substring match on Message.
type LogFilter struct {
	Levels    []LogLevel
	StepIndex *int
	RowIndex  *int
	After     *time.Time
	Before    *time.Time
	Search    string
}

// LogStats summarizes a LogCollector's contents.
type LogStats struct {
	Total       int
	PerLevel    map[LogLevel]int
	FirstLogAt  *time.Time
	LastLogAt   *time.Time
	DurationMs  int64
}

// LogCollector is an append-only, bounded, filterable buffer of LogEntries
// that renders to a single newline-separated string for persistence. A
// listener that panics does not remove other listeners and does not fail
// the log call that triggered it.
type LogCollector struct {
	mu      sync.RWMutex
	cfg     orchconfig.LogConfig
	entries []LogEntry

	listenersMu sync.RWMutex
	nextID      int
	listeners   map[int]LogListener
}

// NewLogCollector constructs an empty LogCollector with the given config.
func NewLogCollector(cfg orchconfig.LogConfig) *LogCollector {
	return &LogCollector{
		cfg:       cfg,
		listeners: make(map[int]LogListener),
	}
}

// Log appends a leveled entry. debug entries are suppressed unless
// cfg.IncludeDebug is set.
func (c *LogCollector) Log(level LogLevel, message string, ctx map[string]any) {
	c.LogStep(level, message, nil, nil, ctx)
}

// LogStep appends a leveled entry annotated with an optional step/row index.
func (c *LogCollector) LogStep(level LogLevel, message string, rowIndex, stepIndex *int, ctx map[string]any) {
	if level == LevelDebug && !c.cfg.IncludeDebug {
		return
	}

	now := time.Now()
	entry := LogEntry{
		Timestamp:     now,
		FormattedTime: now.Format("15:04:05"),
		Level:         level,
		Message:       message,
		StepIndex:     stepIndex,
		RowIndex:      rowIndex,
		Context:       ctx,
	}

	c.mu.Lock()
	c.entries = append(c.entries, entry)
	if c.cfg.MaxLogs > 0 && len(c.entries) > c.cfg.MaxLogs {
		drop := len(c.entries) - c.cfg.MaxLogs
		c.entries = append([]LogEntry(nil), c.entries[drop:]...)
	}
	c.mu.Unlock()

	c.notify(entry)
}

func (c *LogCollector) Info(message string, ctx map[string]any)    { c.Log(LevelInfo, message, ctx) }
func (c *LogCollector) Success(message string, ctx map[string]any) { c.Log(LevelSuccess, message, ctx) }
func (c *LogCollector) Warning(message string, ctx map[string]any) { c.Log(LevelWarning, message, ctx) }
func (c *LogCollector) Error(message string, ctx map[string]any)   { c.Log(LevelError, message, ctx) }
func (c *LogCollector) Debug(message string, ctx map[string]any)   { c.Log(LevelDebug, message, ctx) }

// notify fans an entry out to every registered listener. Each listener runs
// isolated behind a recover so a panicking listener cannot take down the
// append path or block its siblings.
func (c *LogCollector) notify(entry LogEntry) {
	c.listenersMu.RLock()
	listeners := make([]LogListener, 0, len(c.listeners))
	for _, l := range c.listeners {
		listeners = append(listeners, l)
	}
	c.listenersMu.RUnlock()

	for _, l := range listeners {
		func() {
			defer func() { _ = recover() }()
			l(entry)
		}()
	}
}

// OnLog subscribes listener to every future append, returning an unsubscribe
// function.
func (c *LogCollector) OnLog(listener LogListener) (unsubscribe func()) {
	c.listenersMu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = listener
	c.listenersMu.Unlock()

	return func() {
		c.listenersMu.Lock()
		delete(c.listeners, id)
		c.listenersMu.Unlock()
	}
}

// Entries returns a snapshot copy of every retained entry, oldest first.
func (c *LogCollector) Entries() []LogEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]LogEntry, len(c.entries))
	copy(out, c.entries)
	return out
}

// GetFilteredEntries returns the subset of retained entries matching every
// predicate set on filter.
func (c *LogCollector) GetFilteredEntries(filter LogFilter) []LogEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var levelSet map[LogLevel]struct{}
	if len(filter.Levels) > 0 {
		levelSet = make(map[LogLevel]struct{}, len(filter.Levels))
		for _, lv := range filter.Levels {
			levelSet[lv] = struct{}{}
		}
	}

	search := fold.String(filter.Search)

	var out []LogEntry
	for _, e := range c.entries {
		if levelSet != nil {
			if _, ok := levelSet[e.Level]; !ok {
				continue
			}
		}
		if filter.StepIndex != nil && (e.StepIndex == nil || *e.StepIndex != *filter.StepIndex) {
			continue
		}
		if filter.RowIndex != nil && (e.RowIndex == nil || *e.RowIndex != *filter.RowIndex) {
			continue
		}
		if filter.After != nil && e.Timestamp.Before(*filter.After) {
			continue
		}
		if filter.Before != nil && e.Timestamp.After(*filter.Before) {
			continue
		}
		if search != "" && !strings.Contains(fold.String(e.Message), search) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Stats summarizes the collector's retained entries.
func (c *LogCollector) Stats() LogStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := LogStats{PerLevel: make(map[LogLevel]int)}
	for i := range c.entries {
		e := &c.entries[i]
		stats.Total++
		stats.PerLevel[e.Level]++
		if stats.FirstLogAt == nil {
			t := e.Timestamp
			stats.FirstLogAt = &t
		}
		t := e.Timestamp
		stats.LastLogAt = &t
	}
	if stats.FirstLogAt != nil && stats.LastLogAt != nil {
		stats.DurationMs = stats.LastLogAt.Sub(*stats.FirstLogAt).Milliseconds()
	}
	return stats
}

// ToString renders every retained entry as "[HH:MM:SS] [LEVEL] message",
// joined by cfg.LineSeparator, in arrival order. Timestamp and level
// segments are each omitted when disabled in config.
func (c *LogCollector) ToString() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	lines := make([]string, len(c.entries))
	for i, e := range c.entries {
		var b strings.Builder
		if c.cfg.IncludeTimestamp {
			b.WriteByte('[')
			b.WriteString(e.FormattedTime)
			b.WriteString("] ")
		}
		if c.cfg.IncludeLevel {
			b.WriteByte('[')
			b.WriteString(strings.ToUpper(string(e.Level)))
			b.WriteString("] ")
		}
		b.WriteString(e.Message)
		lines[i] = b.String()
	}
	return strings.Join(lines, c.cfg.LineSeparator)
}

// rowStarted logs the standard "row N/total started" line used by the
// Orchestrator's run loop.
func (c *LogCollector) rowStarted(row, total int) {
	r := row
	c.LogStep(LevelInfo, "Row "+strconv.Itoa(row+1)+"/"+strconv.Itoa(total)+" started", &r, nil, nil)
}

// rowCompleted logs the standard row-summary line.
func (c *LogCollector) rowCompleted(row, passed, failed, skipped int) {
	r := row
	msg := "Row " + strconv.Itoa(row+1) + " completed: " +
		strconv.Itoa(passed) + " passed, " + strconv.Itoa(failed) + " failed, " + strconv.Itoa(skipped) + " skipped"
	c.LogStep(LevelInfo, msg, &r, nil, nil)
}

// stepStarted logs a step-start line.
func (c *LogCollector) stepStarted(row, step int, name string) {
	r, s := row, step
	c.LogStep(LevelInfo, "Step "+strconv.Itoa(step+1)+" started: "+name, &r, &s, nil)
}

// stepPassed logs a step-success line with its duration.
func (c *LogCollector) stepPassed(row, step int, durationMs int64) {
	r, s := row, step
	c.LogStep(LevelSuccess, "✓ Step "+strconv.Itoa(step+1)+" completed ("+strconv.FormatInt(durationMs, 10)+"ms)", &r, &s, nil)
}

// stepFailed logs a step-failure line with its error message.
func (c *LogCollector) stepFailed(row, step int, errMsg string) {
	r, s := row, step
	c.LogStep(LevelError, "✗ Step "+strconv.Itoa(step+1)+" failed: "+errMsg, &r, &s, nil)
}
