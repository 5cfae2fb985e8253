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

package main

import (
	"bytes"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewRunCommand(t *testing.T) {
	cmd := newRunCommand()

	if cmd.Use != "run <project.yaml>" {
		t.Errorf("expected use 'run <project.yaml>', got %q", cmd.Use)
	}

	expectedFlags := []string{"tab-ws", "db", "checkpoint-dir", "timeout"}
	for _, flag := range expectedFlags {
		if cmd.Flags().Lookup(flag) == nil {
			t.Errorf("--%s flag not defined", flag)
		}
	}
}

func TestRunCommand_MissingProjectArg(t *testing.T) {
	cmd := newRunCommand()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs([]string{})

	if err := cmd.Execute(); err == nil {
		t.Error("expected error when project argument is missing")
	}
}

func TestRunCommand_MissingTabWS(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "project.yaml")
	if err := os.WriteFile(path, []byte("id: p1\ntarget_url: https://example.com\nsteps:\n  - id: s1\n    event: click\n"), 0644); err != nil {
		t.Fatalf("writing fixture project: %v", err)
	}

	cmd := newRunCommand()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs([]string{path})

	err := cmd.Execute()
	if err == nil {
		t.Fatal("expected error when --tab-ws is missing")
	}
	if !strings.Contains(err.Error(), "tab-ws") {
		t.Errorf("expected error to mention --tab-ws, got: %v", err)
	}
}

func TestRunCommand_NonexistentProjectFile(t *testing.T) {
	cmd := newRunCommand()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs([]string{"--tab-ws", "ws://127.0.0.1:9/ws", "/nonexistent/project.yaml"})

	if err := cmd.Execute(); err == nil {
		t.Error("expected error for nonexistent project file")
	}
}

func TestNewServeCommand(t *testing.T) {
	cmd := newServeCommand()

	if cmd.Use != "serve" {
		t.Errorf("expected use 'serve', got %q", cmd.Use)
	}

	expectedFlags := []string{"listen", "db", "shutdown-grace"}
	for _, flag := range expectedFlags {
		if cmd.Flags().Lookup(flag) == nil {
			t.Errorf("--%s flag not defined", flag)
		}
	}

	if f := cmd.Flags().Lookup("listen"); f == nil || f.DefValue != "127.0.0.1:8090" {
		t.Errorf("expected --listen default 127.0.0.1:8090, got %+v", f)
	}
}

func TestNewVersionCommand(t *testing.T) {
	cmd := newVersionCommand()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(buf.String(), "webrund") {
		t.Errorf("expected version output to mention webrund, got: %q", buf.String())
	}
}

func TestNewRootCommand(t *testing.T) {
	root := newRootCommand()
	root.AddCommand(newRunCommand())
	root.AddCommand(newServeCommand())
	root.AddCommand(newVersionCommand())

	for _, name := range []string{"run", "serve", "version"} {
		found := false
		for _, c := range root.Commands() {
			if c.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("expected subcommand %q to be registered", name)
		}
	}

	if !root.SilenceUsage || !root.SilenceErrors {
		t.Error("expected root command to silence usage and errors")
	}
}

func TestHandleHealth(t *testing.T) {
	svc := &service{}
	rr := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/healthz", nil)
	svc.handleHealth(rr, req)

	if rr.Code != 200 {
		t.Errorf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"status":"ok"`) {
		t.Errorf("unexpected body: %q", rr.Body.String())
	}
}

func TestHandleRun_MethodNotAllowed(t *testing.T) {
	svc := &service{}
	rr := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/runs", nil)
	svc.handleRun(rr, req)

	if rr.Code != 405 {
		t.Errorf("expected 405, got %d", rr.Code)
	}
}

func TestHandleRun_MissingFields(t *testing.T) {
	svc := &service{}
	rr := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/runs", strings.NewReader(`{}`))
	svc.handleRun(rr, req)

	if rr.Code != 400 {
		t.Errorf("expected 400, got %d", rr.Code)
	}
}
