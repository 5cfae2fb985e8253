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

// Package tabtransport implements orchestrator.Transport over a persistent
// WebSocket connection to the host's worker-tab bridge, following the
// ChromeTabManager wire contract: action-dispatched requests
// ({action: 'openTab'}, {action: 'close_opened_tab'}, {action:
// 'injectScript'}, {action: 'runStep'}) and a type-dispatched health probe
// ({type: 'ping'}).
package tabtransport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/google/uuid"

	"github.com/webrun-dev/webrun/internal/log"
	"github.com/webrun-dev/webrun/internal/orchestrator"
	"github.com/webrun-dev/webrun/pkg/orcherrors"
)

const (
	// pingInterval is how often the client sends a transport-level
	// keepalive ping frame, independent of the agent-level {type: 'ping'}
	// health probe the orchestrator issues.
	pingInterval = 30 * time.Second
	pongWait     = 60 * time.Second
)

// Config configures a Client.
type Config struct {
	// URL is the WebSocket endpoint of the host's worker-tab bridge, e.g.
	// "ws://127.0.0.1:9876/ws".
	URL string

	// HandshakeTimeout bounds the initial WebSocket upgrade. Defaults to
	// 10s.
	HandshakeTimeout time.Duration

	// Logger, if set, receives trace-level logging of every wire frame,
	// keyed by the per-call correlation ID. Optional; nil disables it.
	Logger *slog.Logger
}

// envelope is the single wire message shape exchanged over the connection.
// It is deliberately a superset of every request/response this transport
// sends, mirroring the teacher's own Message envelope but widened to cover
// the ChromeTabManager action set rather than a single generic method call.
type envelope struct {
	Action        string            `json:"action,omitempty"`
	Type          string            `json:"type,omitempty"`
	CorrelationID string            `json:"correlationId"`
	TabID         string            `json:"tab_id,omitempty"`
	URL           string            `json:"url,omitempty"`
	Step          *wireStep         `json:"step,omitempty"`
	Row           map[string]string `json:"row,omitempty"`

	Success bool         `json:"success,omitempty"`
	OK      bool         `json:"ok,omitempty"`
	Ready   bool         `json:"ready,omitempty"`
	Error   string       `json:"error,omitempty"`
	Tab     *wireTabInfo `json:"tab,omitempty"`
}

type wireStep struct {
	ID      string         `json:"id"`
	Name    string         `json:"name,omitempty"`
	Event   string         `json:"event,omitempty"`
	Locator string         `json:"locator,omitempty"`
	Params  map[string]any `json:"params,omitempty"`
}

type wireTabInfo struct {
	TabID          string `json:"tab_id"`
	URL            string `json:"url"`
	ScriptInjected bool   `json:"scriptInjected"`
	CreatedAt      int64  `json:"createdAt"`
}

// Client is a WebSocket-backed orchestrator.Transport. One Client serves one
// worker tab's content agent for the lifetime of a run.
type Client struct {
	conn   *websocket.Conn
	logger *slog.Logger

	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[string]chan envelope

	closeOnce sync.Once
	closed    chan struct{}
}

// Dial opens the WebSocket connection and starts the read pump.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: cfg.HandshakeTimeout,
	}
	if dialer.HandshakeTimeout == 0 {
		dialer.HandshakeTimeout = 10 * time.Second
	}

	conn, _, err := dialer.DialContext(ctx, cfg.URL, nil)
	if err != nil {
		return nil, &orcherrors.TransportFailureError{Reason: "dialing worker-tab bridge", Cause: err}
	}

	c := &Client{
		conn:    conn,
		logger:  cfg.Logger,
		pending: make(map[string]chan envelope),
		closed:  make(chan struct{}),
	}

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go c.readPump()
	go c.keepalive()

	return c, nil
}

// Close terminates the connection and wakes any in-flight callers with an
// error.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.conn.Close()
	})
	return err
}

func (c *Client) keepalive() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.closed:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second))
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump() {
	defer c.Close()
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.failAllPending()
			return
		}

		var msg envelope
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}

		c.pendingMu.Lock()
		ch, ok := c.pending[msg.CorrelationID]
		if ok {
			delete(c.pending, msg.CorrelationID)
		}
		c.pendingMu.Unlock()

		if ok {
			ch <- msg
		}
	}
}

func (c *Client) failAllPending() {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	if c.logger != nil && len(c.pending) > 0 {
		c.logger.LogAttrs(context.Background(), log.LevelTrace, "failing pending transport calls",
			log.LogAttrs{log.Int("pending_count", len(c.pending))}...)
	}
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
}

// roundTrip sends req and awaits the correlated response, honoring ctx.
func (c *Client) roundTrip(ctx context.Context, req envelope) (envelope, error) {
	start := time.Now()
	req.CorrelationID = uuid.New().String()
	ch := make(chan envelope, 1)

	c.pendingMu.Lock()
	c.pending[req.CorrelationID] = ch
	c.pendingMu.Unlock()

	data, err := json.Marshal(req)
	if err != nil {
		c.pendingMu.Lock()
		delete(c.pending, req.CorrelationID)
		c.pendingMu.Unlock()
		return envelope{}, fmt.Errorf("tabtransport: marshaling request: %w", err)
	}

	if c.logger != nil {
		log.Trace(log.WithCorrelationID(c.logger, req.CorrelationID), "sending transport frame",
			log.String("action", req.Action), log.Int("payload_bytes", len(data)))
	}

	c.writeMu.Lock()
	err = c.conn.WriteMessage(websocket.TextMessage, data)
	c.writeMu.Unlock()
	if err != nil {
		c.pendingMu.Lock()
		delete(c.pending, req.CorrelationID)
		c.pendingMu.Unlock()
		return envelope{}, &orcherrors.TransportFailureError{TabID: req.TabID, Reason: "writing to worker-tab bridge", Cause: err}
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return envelope{}, &orcherrors.TransportFailureError{TabID: req.TabID, Reason: "worker-tab bridge connection closed"}
		}
		if c.logger != nil {
			log.Trace(log.WithCorrelationID(c.logger, req.CorrelationID), "received transport frame",
				log.Bool("success", resp.Success || resp.OK), log.Duration("round_trip", time.Since(start).Milliseconds()))
		}
		return resp, nil
	case <-ctx.Done():
		c.pendingMu.Lock()
		delete(c.pending, req.CorrelationID)
		c.pendingMu.Unlock()
		return envelope{}, ctx.Err()
	}
}

func (c *Client) OpenTab(ctx context.Context, url string) (orchestrator.TabInfo, error) {
	resp, err := c.roundTrip(ctx, envelope{Action: "openTab", URL: url})
	if err != nil {
		return orchestrator.TabInfo{}, &orcherrors.TransportFailureError{Reason: "opening tab", Cause: err}
	}
	if !resp.Success {
		return orchestrator.TabInfo{}, &orcherrors.TransportFailureError{Reason: "openTab", Cause: fmt.Errorf("%s", resp.Error)}
	}
	if resp.Tab == nil {
		return orchestrator.TabInfo{}, &orcherrors.TransportFailureError{Reason: "openTab returned no tab info"}
	}
	if c.logger != nil {
		log.Trace(c.logger, "tab opened", log.String("tab_id", resp.Tab.TabID), log.Int64("created_at", resp.Tab.CreatedAt))
	}
	return orchestrator.TabInfo{
		TabID:          resp.Tab.TabID,
		URL:            resp.Tab.URL,
		ScriptInjected: resp.Tab.ScriptInjected,
		CreatedAt:      resp.Tab.CreatedAt,
	}, nil
}

func (c *Client) CloseTab(ctx context.Context, tabID string) (bool, error) {
	resp, err := c.roundTrip(ctx, envelope{Action: "close_opened_tab", TabID: tabID})
	if err != nil {
		return false, err
	}
	return resp.Success, nil
}

func (c *Client) InjectScript(ctx context.Context, tabID string) (bool, error) {
	resp, err := c.roundTrip(ctx, envelope{Action: "injectScript", TabID: tabID})
	if err != nil {
		return false, err
	}
	if !resp.Success && resp.Error != "" {
		return false, fmt.Errorf("injectScript: %s", resp.Error)
	}
	return resp.Success, nil
}

func (c *Client) Ping(ctx context.Context, tabID string) (bool, error) {
	resp, err := c.roundTrip(ctx, envelope{Type: "ping", TabID: tabID})
	if err != nil {
		return false, err
	}
	return resp.Ready, nil
}

func (c *Client) SendMessage(ctx context.Context, tabID string, cmd orchestrator.StepCommand) (orchestrator.StepResponse, error) {
	resp, err := c.roundTrip(ctx, envelope{
		Action: "runStep",
		TabID:  tabID,
		Step: &wireStep{
			ID:      cmd.Step.ID,
			Name:    cmd.Step.Name,
			Event:   cmd.Step.Event,
			Locator: cmd.Step.Locator,
			Params:  cmd.Step.Params,
		},
		Row: cmd.Row,
	})
	if err != nil {
		return orchestrator.StepResponse{}, err
	}
	return orchestrator.StepResponse{OK: resp.OK, Error: resp.Error}, nil
}

var _ orchestrator.Transport = (*Client)(nil)
