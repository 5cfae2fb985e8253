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

// Package testsupport provides fixtures shared by orchestrator tests: a
// scriptable fake Transport.
package testsupport

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/webrun-dev/webrun/internal/orchestrator"
)

// StepScript is one scripted reply to a sendMessage call.
type StepScript struct {
	Response orchestrator.StepResponse
	Err      error
}

// FakeTransport is a scriptable, in-memory orchestrator.Transport double.
// Every method's behavior is driven by the fields below so tests can stage
// exact failure sequences without a real browser or websocket.
type FakeTransport struct {
	mu sync.Mutex

	OpenTabErr  error
	OpenTabInfo orchestrator.TabInfo

	CloseTabOK  bool
	CloseTabErr error

	// InjectShouldFail, when non-empty, is consumed attempt by attempt:
	// a true entry fails that attempt, false succeeds. Once exhausted,
	// InjectScript succeeds.
	InjectShouldFail []bool
	injectAttempt    int

	PingReady bool
	PingErr   error

	// StepScripts is consumed call by call in SendMessage; the last entry
	// repeats once exhausted.
	StepScripts []StepScript
	sendCalls   int32

	tabCounter int
}

// NewFakeTransport constructs a FakeTransport that succeeds by default.
func NewFakeTransport() *FakeTransport {
	return &FakeTransport{
		CloseTabOK: true,
		PingReady:  true,
	}
}

func (f *FakeTransport) OpenTab(ctx context.Context, url string) (orchestrator.TabInfo, error) {
	if f.OpenTabErr != nil {
		return orchestrator.TabInfo{}, f.OpenTabErr
	}
	f.mu.Lock()
	f.tabCounter++
	id := fmt.Sprintf("tab-%d", f.tabCounter)
	f.mu.Unlock()

	info := f.OpenTabInfo
	if info.TabID == "" {
		info.TabID = id
	}
	info.URL = url
	return info, nil
}

func (f *FakeTransport) CloseTab(ctx context.Context, tabID string) (bool, error) {
	if f.CloseTabErr != nil {
		return false, f.CloseTabErr
	}
	return f.CloseTabOK, nil
}

func (f *FakeTransport) InjectScript(ctx context.Context, tabID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.injectAttempt < len(f.InjectShouldFail) {
		shouldFail := f.InjectShouldFail[f.injectAttempt]
		f.injectAttempt++
		if shouldFail {
			return false, fmt.Errorf("injection attempt failed")
		}
	}
	return true, nil
}

func (f *FakeTransport) Ping(ctx context.Context, tabID string) (bool, error) {
	if f.PingErr != nil {
		return false, f.PingErr
	}
	return f.PingReady, nil
}

func (f *FakeTransport) SendMessage(ctx context.Context, tabID string, cmd orchestrator.StepCommand) (orchestrator.StepResponse, error) {
	idx := int(atomic.AddInt32(&f.sendCalls, 1)) - 1

	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.StepScripts) == 0 {
		return orchestrator.StepResponse{OK: true}, nil
	}
	if idx >= len(f.StepScripts) {
		idx = len(f.StepScripts) - 1
	}
	script := f.StepScripts[idx]
	return script.Response, script.Err
}

var _ orchestrator.Transport = (*FakeTransport)(nil)
