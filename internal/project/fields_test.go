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

package project_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webrun-dev/webrun/internal/project"
)

func TestResolveStep_PlainColumn(t *testing.T) {
	step := project.RecordedStep{ID: "step-2", Event: project.EventInput, Locator: "#username"}
	fields := []project.ParsedField{{StepID: "step-2", Column: "username"}}
	row := project.Row{"username": "alice"}

	resolved, err := project.ResolveStep(step, fields, row)
	require.NoError(t, err)
	assert.Equal(t, "alice", resolved.Params[project.ValueKey])
}

func TestResolveStep_Expression(t *testing.T) {
	step := project.RecordedStep{ID: "step-2", Event: project.EventInput}
	fields := []project.ParsedField{
		{StepID: "step-2", Column: "username", Expression: `"user:" + value`},
	}
	row := project.Row{"username": "alice"}

	resolved, err := project.ResolveStep(step, fields, row)
	require.NoError(t, err)
	assert.Equal(t, "user:alice", resolved.Params[project.ValueKey])
}

func TestResolveStep_NoMatchingField(t *testing.T) {
	step := project.RecordedStep{ID: "step-1", Event: project.EventClick}
	fields := []project.ParsedField{{StepID: "step-2", Column: "username"}}
	row := project.Row{"username": "alice"}

	resolved, err := project.ResolveStep(step, fields, row)
	require.NoError(t, err)
	assert.Nil(t, resolved.Params)
}

func TestResolveStep_EmptyRow(t *testing.T) {
	step := project.RecordedStep{ID: "step-1", Event: project.EventClick, Params: map[string]any{"existing": "keep"}}

	resolved, err := project.ResolveStep(step, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "keep", resolved.Params["existing"])
}

func TestResolveStep_DoesNotMutateOriginalParams(t *testing.T) {
	original := map[string]any{"existing": "keep"}
	step := project.RecordedStep{ID: "step-2", Params: original}
	fields := []project.ParsedField{{StepID: "step-2", Column: "username"}}
	row := project.Row{"username": "alice"}

	resolved, err := project.ResolveStep(step, fields, row)
	require.NoError(t, err)
	assert.Equal(t, "alice", resolved.Params[project.ValueKey])
	_, present := original[project.ValueKey]
	assert.False(t, present, "original step's Params map must not be mutated")
}
