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

import "context"

// TabInfo is the host's record of one opened worker tab, following the
// ChromeTabManager wire contract (action: 'openTab', action:
// 'close_opened_tab').
type TabInfo struct {
	TabID          string
	URL            string
	ScriptInjected bool
	CreatedAt      int64
}

// Transport abstracts the worker-tab channel so TabController can be driven
// against the real host environment or a test double. Every method is a
// suspension point: implementations perform I/O and must respect ctx.
type Transport interface {
	// OpenTab asks the host to create a tab at url. The host implementation
	// injects the content script as part of the open.
	OpenTab(ctx context.Context, url string) (TabInfo, error)

	// CloseTab asks the host to close tabID. A false success with a nil
	// error means the host reported failure without an exceptional error.
	CloseTab(ctx context.Context, tabID string) (bool, error)

	// InjectScript installs the content agent into tabID. A single attempt;
	// retry-with-backoff is TabController's responsibility.
	InjectScript(ctx context.Context, tabID string) (bool, error)

	// Ping sends {type: 'ping'} to tabID and reports whether the agent
	// answered {ready: true} before ctx's deadline.
	Ping(ctx context.Context, tabID string) (bool, error)

	// SendMessage delivers cmd to tabID's content agent and returns its
	// response. Transport errors and deadline exceeded are both reported
	// as a non-nil error.
	SendMessage(ctx context.Context, tabID string, cmd StepCommand) (StepResponse, error)
}
