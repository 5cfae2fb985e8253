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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webrun-dev/webrun/internal/project"
	"github.com/webrun-dev/webrun/pkg/orcherrors"
)

const sampleYAML = `
id: proj-1
name: Login flow
target_url: https://example.com/login
steps:
  - id: step-1
    name: Click username field
    event: click
    locator: "#username"
  - id: step-2
    name: Enter username
    event: input
    locator: "#username"
  - id: step-3
    name: Submit
    event: enter
    locator: "#login-form"
fields:
  - step_id: step-2
    column: username
rows:
  - username: alice
  - username: bob
`

func TestLoad(t *testing.T) {
	p, err := project.Load(strings.NewReader(sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "proj-1", p.ID)
	assert.Equal(t, "https://example.com/login", p.TargetURL)
	assert.Len(t, p.Steps, 3)
	assert.Equal(t, project.EventInput, p.Steps[1].Event)
	assert.Equal(t, 2, p.TotalRows())
}

func TestTotalRows_NonDataDriven(t *testing.T) {
	p := &project.Project{TargetURL: "https://example.com", Steps: []project.RecordedStep{{ID: "s1"}}}
	assert.Equal(t, 1, p.TotalRows())
	assert.Nil(t, p.RowAt(0))
}

func TestValidate(t *testing.T) {
	t.Run("missing target url", func(t *testing.T) {
		p := &project.Project{Steps: []project.RecordedStep{{ID: "s1"}}}
		var preconditionErr *orcherrors.PreconditionError
		require.ErrorAs(t, p.Validate(), &preconditionErr)
		assert.Equal(t, "target_url", preconditionErr.Field)
	})

	t.Run("empty steps", func(t *testing.T) {
		p := &project.Project{TargetURL: "https://example.com"}
		var preconditionErr *orcherrors.PreconditionError
		require.ErrorAs(t, p.Validate(), &preconditionErr)
		assert.Equal(t, "steps", preconditionErr.Field)
	})

	t.Run("valid project", func(t *testing.T) {
		p, err := project.Load(strings.NewReader(sampleYAML))
		require.NoError(t, err)
		assert.NoError(t, p.Validate())
	})
}
