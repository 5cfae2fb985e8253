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

package project

import (
	"fmt"

	"github.com/expr-lang/expr"
)

// ValueKey is the Params key a resolved field mapping writes its value to.
const ValueKey = "value"

// ResolveStep returns a copy of step with any ParsedField mappings that
// target step.ID applied against row, substituting the mapped value into
// step.Params[ValueKey]. Only input steps are substituted in practice, but
// resolution itself is unconditional: a mapping targeting a non-input step
// is a project-authoring mistake, not something this layer polices.
func ResolveStep(step RecordedStep, fields []ParsedField, row Row) (RecordedStep, error) {
	if len(row) == 0 {
		return step, nil
	}

	resolved := step
	for _, field := range fields {
		if field.StepID != step.ID {
			continue
		}

		value, err := resolveField(field, row)
		if err != nil {
			return step, fmt.Errorf("resolving field for step %s: %w", step.ID, err)
		}

		if resolved.Params == nil {
			resolved.Params = make(map[string]any, 1)
		} else {
			params := make(map[string]any, len(resolved.Params)+1)
			for k, v := range resolved.Params {
				params[k] = v
			}
			resolved.Params = params
		}
		resolved.Params[ValueKey] = value
	}

	return resolved, nil
}

// resolveField computes a single field's substitution value: the raw column
// value, or the result of evaluating Expression against the row when set.
func resolveField(field ParsedField, row Row) (string, error) {
	if field.Expression == "" {
		return row[field.Column], nil
	}

	env := map[string]any{
		"row":   rowToAny(row),
		"value": row[field.Column],
	}

	program, err := expr.Compile(field.Expression, expr.Env(env))
	if err != nil {
		return "", fmt.Errorf("compiling expression %q: %w", field.Expression, err)
	}

	result, err := expr.Run(program, env)
	if err != nil {
		return "", fmt.Errorf("evaluating expression %q: %w", field.Expression, err)
	}

	return fmt.Sprintf("%v", result), nil
}

// rowToAny widens a Row to map[string]any so expr-lang's environment
// reflection sees plain string values without a custom VM type.
func rowToAny(row Row) map[string]any {
	out := make(map[string]any, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}
