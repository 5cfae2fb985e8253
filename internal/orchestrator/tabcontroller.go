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
	"log/slog"
	"sync"
	"time"

	"github.com/webrun-dev/webrun/internal/log"
	"github.com/webrun-dev/webrun/internal/orchconfig"
	"github.com/webrun-dev/webrun/internal/orchmetrics"
	"github.com/webrun-dev/webrun/pkg/orcherrors"
)

// TabController owns the lifecycle of one worker tab: open, inject, send
// command, close. It does not watch for navigation, so a content agent lost
// to an in-tab navigation is not re-injected. It is a thin retry/timeout
// wrapper around a Transport; the transport itself never retries.
type TabController struct {
	transport Transport
	cfg       orchconfig.TabConfig
	metrics   *orchmetrics.Metrics
	mw        *log.TransportMiddleware
	runID     string

	mu   sync.RWMutex
	tabs map[string]TabInfo
}

// NewTabController constructs a controller bound to one Transport.
func NewTabController(transport Transport, cfg orchconfig.TabConfig) *TabController {
	return &TabController{
		transport: transport,
		cfg:       cfg,
		tabs:      make(map[string]TabInfo),
	}
}

// WithMetrics attaches a metrics bundle the controller reports injection
// retries to. Returns c for chaining at construction time.
func (c *TabController) WithMetrics(m *orchmetrics.Metrics) *TabController {
	c.metrics = m
	return c
}

// WithLogger attaches the diagnostic logger and owning run ID used to log
// each transport call at debug level, via an internal/log.TransportMiddleware.
// Returns c for chaining at construction time.
func (c *TabController) WithLogger(logger *slog.Logger, runID string) *TabController {
	c.mw = log.NewTransportMiddleware(logger)
	c.runID = runID
	return c
}

// wrap runs call through the attached logging middleware, if any, recording
// it under action/tabID/runID.
func (c *TabController) wrap(action, tabID string, call func() error) error {
	if c.mw == nil {
		return call()
	}
	return c.mw.Wrap(&log.TransportRequest{Action: action, TabID: tabID, RunID: c.runID}, call)
}

// OpenTab requests a new tab at url. If cfg.WaitForLoad, it sleeps
// cfg.LoadDelay after a successful open before returning.
func (c *TabController) OpenTab(ctx context.Context, url string) (TabInfo, error) {
	var info TabInfo
	err := c.wrap("openTab", "", func() error {
		var err error
		info, err = c.transport.OpenTab(ctx, url)
		return err
	})
	if err != nil {
		return TabInfo{}, &orcherrors.TransportFailureError{Reason: "open tab failed", Cause: err}
	}

	c.mu.Lock()
	c.tabs[info.TabID] = info
	c.mu.Unlock()

	if c.cfg.WaitForLoad && c.cfg.LoadDelay > 0 {
		select {
		case <-time.After(c.cfg.LoadDelay):
		case <-ctx.Done():
			return info, ctx.Err()
		}
	}
	return info, nil
}

// CloseTab closes tabID. If the primary transport call fails, a
// best-effort direct retry is attempted before giving up.
func (c *TabController) CloseTab(ctx context.Context, tabID string) bool {
	var ok bool
	c.wrap("close_opened_tab", tabID, func() error {
		var err error
		ok, err = c.transport.CloseTab(ctx, tabID)
		if err != nil {
			ok, err = c.transport.CloseTab(ctx, tabID)
			if err != nil {
				ok = false
			}
		}
		return err
	})

	c.mu.Lock()
	delete(c.tabs, tabID)
	c.mu.Unlock()

	return ok
}

// InjectScript installs the content agent into tabID, making up to
// cfg.MaxInjectionRetries attempts in total with a fixed
// cfg.InjectionRetryDelay between attempts. On success the cached tab record's ScriptInjected flag
// is set.
func (c *TabController) InjectScript(ctx context.Context, tabID string) (bool, error) {
	var lastErr error
	attempts := c.cfg.MaxInjectionRetries
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 && c.metrics != nil {
			c.metrics.InjectionRetries.Inc()
		}
		ok, err := c.transport.InjectScript(ctx, tabID)
		if err == nil && ok {
			c.mu.Lock()
			if info, found := c.tabs[tabID]; found {
				info.ScriptInjected = true
				c.tabs[tabID] = info
			}
			c.mu.Unlock()
			return true, nil
		}
		lastErr = err

		if attempt < attempts-1 && c.cfg.InjectionRetryDelay > 0 {
			select {
			case <-time.After(c.cfg.InjectionRetryDelay):
			case <-ctx.Done():
				return false, ctx.Err()
			}
		}
	}

	return false, &orcherrors.InjectionExhaustionError{TabID: tabID, Attempts: attempts, Cause: lastErr}
}

// IsTabReady pings tabID with cfg.PingTimeout (capped at 5s per the health
// probe contract) and reports whether the agent answered ready.
func (c *TabController) IsTabReady(ctx context.Context, tabID string) bool {
	timeout := c.cfg.PingTimeout
	if timeout <= 0 || timeout > 5*time.Second {
		timeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ready, err := c.transport.Ping(pingCtx, tabID)
	if err != nil {
		return false
	}
	return ready
}

// GetTabInfo returns the cached tab record for tabID, or a fresh probe if
// none is cached.
func (c *TabController) GetTabInfo(ctx context.Context, tabID string) (TabInfo, bool) {
	c.mu.RLock()
	info, ok := c.tabs[tabID]
	c.mu.RUnlock()
	if ok {
		return info, true
	}

	ready := c.IsTabReady(ctx, tabID)
	if !ready {
		return TabInfo{}, false
	}
	info = TabInfo{TabID: tabID}
	c.mu.Lock()
	c.tabs[tabID] = info
	c.mu.Unlock()
	return info, true
}

// SendMessage delivers cmd to tabID under an overall timeout (cfg.Timeout,
// default 30s), returning the agent's response. A transport error or
// deadline exceeded is reported as a TransportFailureError /
// TransportTimeoutError respectively.
func (c *TabController) SendMessage(ctx context.Context, tabID string, cmd StepCommand) (StepResponse, error) {
	timeout := c.cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	sendCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var resp StepResponse
	err := c.wrap("runStep", tabID, func() error {
		var err error
		resp, err = c.transport.SendMessage(sendCtx, tabID, cmd)
		return err
	})
	if err != nil {
		if sendCtx.Err() == context.DeadlineExceeded {
			return StepResponse{}, &orcherrors.TransportTimeoutError{Operation: "sendMessage", TabID: tabID, Timeout: timeout}
		}
		return StepResponse{}, &orcherrors.TransportFailureError{TabID: tabID, Reason: "sendMessage failed", Cause: err}
	}
	return resp, nil
}
