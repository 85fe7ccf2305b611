// Copyright 2024 AI SA Assistant Project
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

// Package autofix repairs playbook defects reported by the validator with
// pure text transforms.
package autofix

import (
	"fmt"
	"regexp"

	"go.uber.org/zap"

	"github.com/your-org/playbook-assistant/internal/playbook"
)

// DefaultMaxPasses bounds Converge when the caller passes a non-positive limit
const DefaultMaxPasses = 5

// Fix is a named text transform. Transform must return its input unchanged
// when the defect it repairs is absent.
type Fix struct {
	ID          string
	Title       string
	Description string
	Transform   func(string) string
}

// Result reports which selected fixes changed the text
type Result struct {
	Text    string   `json:"text"`
	Applied []string `json:"applied"`
	NoOps   []string `json:"no_ops"`
}

// Changed reports whether any fix modified the text
func (r Result) Changed() bool {
	return len(r.Applied) > 0
}

// ConvergeResult is the outcome of repeated validate-and-fix passes
type ConvergeResult struct {
	Text       string          `json:"text"`
	Validation playbook.Result `json:"validation"`
	Passes     int             `json:"passes"`
	Applied    []string        `json:"applied"`
}

// messagePattern maps diagnostic text to a fix for diagnostics without a FixID
type messagePattern struct {
	pattern *regexp.Regexp
	fixID   string
}

var messagePatterns = []messagePattern{
	{regexp.MustCompile(`(?i)should start with '---'|document start`), playbook.FixAddDocumentStart},
	{regexp.MustCompile(`(?i)tab character`), playbook.FixReplaceTabs},
	{regexp.MustCompile(`(?i)bad indentation|cannot read block mapping|mapping values are not allowed|did not find expected|could not find expected`), playbook.FixIndentation},
	{regexp.MustCompile(`(?i)duplicate key|already defined`), playbook.FixRemoveDuplicateKeys},
	{regexp.MustCompile(`(?i)should be a list of plays`), playbook.FixWrapInList},
	{regexp.MustCompile(`(?i)missing a name|name is required`), playbook.FixAddMissingName},
	{regexp.MustCompile(`(?i)hosts is required|missing hosts`), playbook.FixAddMissingHosts},
	{regexp.MustCompile(`(?i)no module specified`), playbook.FixAddDebugModule},
	{regexp.MustCompile(`(?i)unbalanced template markers`), playbook.FixBalanceTemplateMarkers},
}

// Engine applies fixes in canonical order
type Engine struct {
	fixes  []Fix
	byID   map[string]Fix
	logger *zap.Logger
}

// NewEngine creates an engine with the built-in fix table
func NewEngine(logger *zap.Logger) *Engine {
	return NewEngineWithFixes(DefaultFixes(), logger)
}

// NewEngineWithFixes creates an engine applying fixes in the given order
func NewEngineWithFixes(fixes []Fix, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	byID := make(map[string]Fix, len(fixes))
	for _, f := range fixes {
		byID[f.ID] = f
	}
	return &Engine{fixes: fixes, byID: byID, logger: logger}
}

// Fixes returns the fix table in canonical order
func (e *Engine) Fixes() []Fix {
	out := make([]Fix, len(e.fixes))
	copy(out, e.fixes)
	return out
}

// Lookup returns the fix registered under id
func (e *Engine) Lookup(id string) (Fix, bool) {
	f, ok := e.byID[id]
	return f, ok
}

// FixAll runs every fix in sequence, each over the previous output
func (e *Engine) FixAll(text string) string {
	return e.ApplyAll(text).Text
}

// ApplyAll is FixAll reporting which fixes changed the text
func (e *Engine) ApplyAll(text string) Result {
	result := Result{Text: text, Applied: []string{}, NoOps: []string{}}
	for _, f := range e.fixes {
		next, changed := e.apply(f, result.Text)
		if changed {
			result.Applied = append(result.Applied, f.ID)
			result.Text = next
		} else {
			result.NoOps = append(result.NoOps, f.ID)
		}
	}
	return result
}

// SmartAutoFix applies, once and in canonical order, only the fixes selected
// by diags. Repeated calls converge because every fix is a no-op once its
// defect is gone.
func (e *Engine) SmartAutoFix(text string, diags []playbook.Diagnostic) Result {
	selected := e.Select(diags)
	result := Result{Text: text, Applied: []string{}, NoOps: []string{}}

	for _, f := range e.fixes {
		if !selected[f.ID] {
			continue
		}
		next, changed := e.apply(f, result.Text)
		if changed {
			result.Applied = append(result.Applied, f.ID)
			result.Text = next
		} else {
			result.NoOps = append(result.NoOps, f.ID)
		}
	}
	return result
}

// Select returns the set of fix IDs addressing diags
func (e *Engine) Select(diags []playbook.Diagnostic) map[string]bool {
	selected := make(map[string]bool)
	for _, d := range diags {
		if d.FixID != "" {
			if _, ok := e.byID[d.FixID]; ok {
				selected[d.FixID] = true
			}
			continue
		}
		for _, mp := range messagePatterns {
			if mp.pattern.MatchString(d.Message) {
				if _, ok := e.byID[mp.fixID]; ok {
					selected[mp.fixID] = true
				}
			}
		}
	}
	return selected
}

// Converge validates and fixes text until no fixable diagnostic remains, a
// pass changes nothing, or maxPasses is reached.
func (e *Engine) Converge(text string, maxPasses int) ConvergeResult {
	if maxPasses <= 0 {
		maxPasses = DefaultMaxPasses
	}

	out := ConvergeResult{Text: text, Applied: []string{}}
	out.Validation = playbook.Validate(text)

	for out.Passes < maxPasses {
		fixable := out.Validation.Fixable()
		if len(fixable) == 0 {
			break
		}
		out.Passes++

		r := e.SmartAutoFix(out.Text, fixable)
		if !r.Changed() {
			break
		}
		out.Text = r.Text
		out.Applied = append(out.Applied, r.Applied...)
		out.Validation = playbook.Validate(out.Text)
	}

	e.logger.Debug("Auto-fix converged",
		zap.Int("passes", out.Passes),
		zap.Strings("applied", out.Applied),
		zap.Int("remaining_diagnostics", len(out.Validation.Diagnostics)))

	return out
}

// apply runs one fix, treating a panic as a no-op
func (e *Engine) apply(f Fix, text string) (result string, changed bool) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("Fix transform failed",
				zap.String("fix_id", f.ID),
				zap.String("panic", fmt.Sprint(r)))
			result, changed = text, false
		}
	}()
	result = f.Transform(text)
	return result, result != text
}

var defaultEngine = NewEngine(nil)

// AutoFix applies the minimal set of fixes for diags and returns the new text
func AutoFix(text string, diags []playbook.Diagnostic) string {
	return defaultEngine.SmartAutoFix(text, diags).Text
}
