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
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/webrun-dev/webrun/internal/orchconfig"
	"github.com/webrun-dev/webrun/internal/orchestrator"
	"github.com/webrun-dev/webrun/internal/orchmetrics"
	"github.com/webrun-dev/webrun/internal/testsupport"
	"github.com/webrun-dev/webrun/pkg/orcherrors"
)

func TestTabController_OpenTab(t *testing.T) {
	transport := testsupport.NewFakeTransport()
	cfg := orchconfig.DefaultTabConfig()
	cfg.LoadDelay = 0
	tc := orchestrator.NewTabController(transport, cfg)

	info, err := tc.OpenTab(context.Background(), "https://example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.TabID == "" {
		t.Fatal("expected a tab id")
	}
}

func TestTabController_OpenTab_TransportFailure(t *testing.T) {
	transport := testsupport.NewFakeTransport()
	transport.OpenTabErr = errors.New("host unreachable")
	tc := orchestrator.NewTabController(transport, orchconfig.DefaultTabConfig())

	_, err := tc.OpenTab(context.Background(), "https://example.com")
	var failure *orcherrors.TransportFailureError
	if !errors.As(err, &failure) {
		t.Fatalf("expected TransportFailureError, got %v", err)
	}
}

// TestTabController_InjectRetrySucceeds is the S5 scenario: two failed
// injection attempts followed by success, with maxInjectionRetries=3.
func TestTabController_InjectRetrySucceeds(t *testing.T) {
	transport := testsupport.NewFakeTransport()
	transport.InjectShouldFail = []bool{true, true, false}
	cfg := orchconfig.DefaultTabConfig()
	cfg.InjectionRetryDelay = time.Millisecond
	tc := orchestrator.NewTabController(transport, cfg)

	ok, err := tc.InjectScript(context.Background(), "tab-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected injection to eventually succeed")
	}
}

func TestTabController_InjectExhaustion(t *testing.T) {
	transport := testsupport.NewFakeTransport()
	transport.InjectShouldFail = []bool{true, true, true}
	cfg := orchconfig.DefaultTabConfig()
	cfg.MaxInjectionRetries = 3
	cfg.InjectionRetryDelay = time.Millisecond
	tc := orchestrator.NewTabController(transport, cfg)

	_, err := tc.InjectScript(context.Background(), "tab-1")
	var exhaustion *orcherrors.InjectionExhaustionError
	if !errors.As(err, &exhaustion) {
		t.Fatalf("expected InjectionExhaustionError, got %v", err)
	}
	if exhaustion.Attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", exhaustion.Attempts)
	}
}

func TestTabController_IsTabReady(t *testing.T) {
	transport := testsupport.NewFakeTransport()
	tc := orchestrator.NewTabController(transport, orchconfig.DefaultTabConfig())

	if !tc.IsTabReady(context.Background(), "tab-1") {
		t.Fatal("expected tab to report ready")
	}

	transport.PingReady = false
	if tc.IsTabReady(context.Background(), "tab-1") {
		t.Fatal("expected tab to report not ready")
	}
}

func TestTabController_SendMessage_Timeout(t *testing.T) {
	transport := testsupport.NewFakeTransport()
	transport.StepScripts = []testsupport.StepScript{{Err: context.DeadlineExceeded}}
	cfg := orchconfig.DefaultTabConfig()
	cfg.Timeout = time.Millisecond
	tc := orchestrator.NewTabController(transport, cfg)

	_, err := tc.SendMessage(context.Background(), "tab-1", orchestrator.StepCommand{Action: "runStep"})
	if err == nil {
		t.Fatal("expected an error")
	}
}

func TestTabController_CloseTab(t *testing.T) {
	transport := testsupport.NewFakeTransport()
	tc := orchestrator.NewTabController(transport, orchconfig.DefaultTabConfig())

	if !tc.CloseTab(context.Background(), "tab-1") {
		t.Fatal("expected close to succeed")
	}
}

// TestTabController_WithLoggerAndMetrics exercises the optional
// diagnostic-logging and injection-retry-metrics wiring: every call still
// succeeds, just under observation.
func TestTabController_WithLoggerAndMetrics(t *testing.T) {
	transport := testsupport.NewFakeTransport()
	transport.InjectShouldFail = []bool{true, false}
	cfg := orchconfig.DefaultTabConfig()
	cfg.InjectionRetryDelay = time.Millisecond

	reg := prometheus.NewRegistry()
	tc := orchestrator.NewTabController(transport, cfg).
		WithMetrics(orchmetrics.New(reg)).
		WithLogger(slog.Default(), "run-1")

	if _, err := tc.OpenTab(context.Background(), "https://example.com"); err != nil {
		t.Fatalf("OpenTab: %v", err)
	}
	if ok, err := tc.InjectScript(context.Background(), "tab-1"); err != nil || !ok {
		t.Fatalf("InjectScript: ok=%v err=%v", ok, err)
	}
	if _, err := tc.SendMessage(context.Background(), "tab-1", orchestrator.StepCommand{Action: "runStep"}); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if !tc.CloseTab(context.Background(), "tab-1") {
		t.Fatal("expected close to succeed")
	}
}
