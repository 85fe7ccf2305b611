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

package playbook

// Rule identifies the check that produced a diagnostic
type Rule string

// Validation rules
const (
	RuleEmptyDocument   Rule = "empty-document"
	RuleDocumentStart   Rule = "document-start"
	RuleNoTabs          Rule = "no-tabs"
	RuleTemplateMarkers Rule = "template-markers"
	RuleSyntax          Rule = "syntax"
	RulePlayList        Rule = "play-list"
	RuleWrapInList      Rule = "single-play"
	RuleDuplicateKey    Rule = "duplicate-key"
	RulePlayName        Rule = "play-name"
	RuleHostsRequired   Rule = "hosts-required"
	RuleVarsMapping     Rule = "vars-mapping"
	RuleTaskList        Rule = "task-list"
	RuleTaskName        Rule = "task-name"
	RuleTaskModule      Rule = "task-module"
	RuleInternal        Rule = "internal"
)

// Fix identifiers understood by the auto-fix engine
const (
	FixAddDocumentStart       = "add-document-start"
	FixReplaceTabs            = "replace-tabs"
	FixIndentation            = "fix-indentation"
	FixRemoveDuplicateKeys    = "remove-duplicate-keys"
	FixWrapInList             = "wrap-in-list"
	FixAddMissingName         = "add-missing-name"
	FixAddMissingHosts        = "add-missing-hosts"
	FixAddDebugModule         = "add-debug-module"
	FixBalanceTemplateMarkers = "balance-template-markers"
)

// Diagnostic is one defect found in a playbook. Line and Column are 1-based;
// 0 means unknown. Syntax errors carry the parser's line and the column of
// that line's first non-space character.
type Diagnostic struct {
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
	Fixable bool   `json:"fixable"`
	FixID   string `json:"fix_id,omitempty"`
	Rule    Rule   `json:"rule"`
}

// Result is the outcome of Validate
type Result struct {
	Valid       bool         `json:"valid"`
	Diagnostics []Diagnostic `json:"diagnostics"`
}

// HasRule reports whether any diagnostic was produced by rule
func (r Result) HasRule(rule Rule) bool {
	return len(r.ByRule(rule)) > 0
}

// ByRule returns the diagnostics produced by rule
func (r Result) ByRule(rule Rule) []Diagnostic {
	var out []Diagnostic
	for _, d := range r.Diagnostics {
		if d.Rule == rule {
			out = append(out, d)
		}
	}
	return out
}

// Fixable returns the diagnostics the auto-fix engine can address
func (r Result) Fixable() []Diagnostic {
	var out []Diagnostic
	for _, d := range r.Diagnostics {
		if d.Fixable {
			out = append(out, d)
		}
	}
	return out
}
