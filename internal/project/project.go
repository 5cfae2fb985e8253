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

// Package project defines the recorded project the orchestrator replays: an
// ordered sequence of RecordedSteps against a target URL, optionally
// parameterized by CSV rows via ParsedField mappings.
package project

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/webrun-dev/webrun/pkg/orcherrors"
)

// EventKind is the kind of UI interaction a RecordedStep replays.
type EventKind string

const (
	EventClick    EventKind = "click"
	EventInput    EventKind = "input"
	EventEnter    EventKind = "enter"
	EventOpen     EventKind = "open"
	EventNavigate EventKind = "navigate"
	EventWait     EventKind = "wait"
)

// RecordedStep is one recorded UI interaction. Locator is opaque to the
// orchestrator: it is forwarded verbatim to the content agent.
type RecordedStep struct {
	ID      string         `yaml:"id"`
	Name    string         `yaml:"name"`
	Event   EventKind      `yaml:"event"`
	Locator string         `yaml:"locator,omitempty"`
	Params  map[string]any `yaml:"params,omitempty"`
}

// ParsedField maps a CSV column onto a step's input value. Expression, when
// set, is an expr-lang expression evaluated against the row (as `row`) and a
// named column value; when empty, the field is the raw column value.
type ParsedField struct {
	StepID     string `yaml:"step_id"`
	Column     string `yaml:"column"`
	Expression string `yaml:"expression,omitempty"`
}

// Project is the recorded test project the orchestrator replays. It is
// consumed, not owned: the orchestrator never mutates a Project in place.
type Project struct {
	ID          string         `yaml:"id"`
	Name        string         `yaml:"name"`
	Description string         `yaml:"description,omitempty"`
	TargetURL   string         `yaml:"target_url"`
	Steps       []RecordedStep `yaml:"steps"`
	Fields      []ParsedField  `yaml:"fields,omitempty"`
	Rows        []Row          `yaml:"rows,omitempty"`
}

// Row is one record of tabular data driving a data-driven run.
type Row map[string]string

// Load parses a Project from YAML.
func Load(r io.Reader) (*Project, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading project: %w", err)
	}

	var p Project
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing project yaml: %w", err)
	}

	return &p, nil
}

// LoadFile parses a Project from a YAML file on disk.
func LoadFile(path string) (*Project, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening project file: %w", err)
	}
	defer f.Close()

	return Load(f)
}

// TotalRows returns the number of row iterations the orchestrator must run:
// the project's row count, or 1 for a non-data-driven run.
func (p *Project) TotalRows() int {
	if len(p.Rows) == 0 {
		return 1
	}
	return len(p.Rows)
}

// RowAt returns the row for a given iteration index, or nil for
// non-data-driven runs.
func (p *Project) RowAt(index int) Row {
	if len(p.Rows) == 0 {
		return nil
	}
	if index < 0 || index >= len(p.Rows) {
		return nil
	}
	return p.Rows[index]
}

// Validate checks the preconditions the orchestrator requires before opening
// a worker tab: a non-empty target URL and a non-empty step sequence.
func (p *Project) Validate() error {
	if p.TargetURL == "" {
		return &orcherrors.PreconditionError{Field: "target_url", Message: "must not be empty"}
	}
	if len(p.Steps) == 0 {
		return &orcherrors.PreconditionError{Field: "steps", Message: "project must have at least one step"}
	}
	for i, row := range p.Rows {
		if len(row) == 0 {
			return &orcherrors.PreconditionError{Field: "rows", Message: fmt.Sprintf("row %d is empty", i)}
		}
	}
	return nil
}
