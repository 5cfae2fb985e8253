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

package log

import (
	"log/slog"
	"time"
)

// TransportRequest describes an outbound call to the worker-tab transport
// for diagnostic logging purposes.
type TransportRequest struct {
	// Action is the transport message action (TabController uses "openTab", "runStep", "close_opened_tab").
	Action string

	// TabID is the tab the request targets, if any.
	TabID string

	// RunID is the owning orchestrator run.
	RunID string

	// Metadata contains additional request context.
	Metadata map[string]interface{}
}

// TransportResponse describes the outcome of a transport call for diagnostic logging.
type TransportResponse struct {
	// Success indicates whether the transport call succeeded.
	Success bool

	// Error is the error message if the call failed.
	Error string

	// DurationMs is how long the call took.
	DurationMs int64
}

// LogTransportRequest logs an outbound transport call.
func LogTransportRequest(logger *slog.Logger, req *TransportRequest) {
	attrs := []any{
		"event", "transport_request",
		"action", req.Action,
		"run_id", req.RunID,
	}
	if req.TabID != "" {
		attrs = append(attrs, "tab_id", req.TabID)
	}
	for k, v := range req.Metadata {
		attrs = append(attrs, k, v)
	}
	logger.Debug("transport request sent", attrs...)
}

// LogTransportResponse logs the outcome of a transport call.
func LogTransportResponse(logger *slog.Logger, req *TransportRequest, resp *TransportResponse) {
	attrs := []any{
		"event", "transport_response",
		"action", req.Action,
		"run_id", req.RunID,
		"success", resp.Success,
		"duration_ms", resp.DurationMs,
	}
	if req.TabID != "" {
		attrs = append(attrs, "tab_id", req.TabID)
	}
	if resp.Error != "" {
		attrs = append(attrs, "error", resp.Error)
	}

	level := slog.LevelDebug
	message := "transport request completed"
	if !resp.Success {
		level = slog.LevelWarn
		message = "transport request failed"
	}

	logger.Log(nil, level, message, attrs...)
}

// TransportMiddleware wraps a transport call with request/response logging.
type TransportMiddleware struct {
	logger *slog.Logger
}

// NewTransportMiddleware creates a new transport logging middleware.
func NewTransportMiddleware(logger *slog.Logger) *TransportMiddleware {
	return &TransportMiddleware{logger: logger}
}

// Wrap instruments a transport call, logging the request and its outcome.
func (m *TransportMiddleware) Wrap(req *TransportRequest, call func() error) error {
	start := time.Now()

	LogTransportRequest(m.logger, req)

	err := call()

	resp := &TransportResponse{
		Success:    err == nil,
		DurationMs: time.Since(start).Milliseconds(),
	}
	if err != nil {
		resp.Error = err.Error()
	}

	LogTransportResponse(m.logger, req, resp)

	return err
}
