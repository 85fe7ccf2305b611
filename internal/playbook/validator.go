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

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// TabWidth is the number of spaces a tab is expanded to
const TabWidth = 2

var (
	errorLinePattern   = regexp.MustCompile(`line (\d+)`)
	errorPrefixPattern = regexp.MustCompile(`^(parse playbook: )?yaml: (line \d+: )?`)
	indentationFamily  = regexp.MustCompile(`(?i)mapping values are not allowed|did not find expected|could not find expected|block (mapping|sequence|collection|entries)|indentation|cannot start any token`)
)

// Validate checks text against the playbook schema. It never panics; every
// defect, including unparseable input, is reported as a diagnostic.
func Validate(text string) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			result = Result{Diagnostics: []Diagnostic{{
				Message: fmt.Sprintf("Validator failed: %v", r),
				Rule:    RuleInternal,
			}}}
		}
	}()

	if strings.TrimSpace(text) == "" {
		return Result{Diagnostics: []Diagnostic{{
			Message: "Playbook is empty",
			Rule:    RuleEmptyDocument,
		}}}
	}

	diags := rawChecks(text)
	diags = append(diags, structuralChecks(ExpandTabs(text))...)

	return Result{Valid: len(diags) == 0, Diagnostics: diags}
}

// ExpandTabs replaces every tab with TabWidth spaces
func ExpandTabs(text string) string {
	return strings.ReplaceAll(text, "\t", strings.Repeat(" ", TabWidth))
}

func rawChecks(text string) []Diagnostic {
	var diags []Diagnostic

	if !strings.HasPrefix(strings.TrimLeft(text, " \t\r\n"), DocumentStart) {
		diags = append(diags, Diagnostic{
			Message: "Playbook should start with '---'",
			Line:    1,
			Fixable: true,
			FixID:   FixAddDocumentStart,
			Rule:    RuleDocumentStart,
		})
	}

	for i, line := range strings.Split(text, "\n") {
		if col := strings.IndexByte(line, '\t'); col >= 0 {
			diags = append(diags, Diagnostic{
				Message: fmt.Sprintf("Tab character found on line %d; use spaces for indentation", i+1),
				Line:    i + 1,
				Column:  col + 1,
				Fixable: true,
				FixID:   FixReplaceTabs,
				Rule:    RuleNoTabs,
			})
			break
		}
	}

	opens, closes := strings.Count(text, "{{"), strings.Count(text, "}}")
	if opens != closes {
		d := Diagnostic{
			Message: fmt.Sprintf("Unbalanced template markers: %d '{{' and %d '}}'", opens, closes),
			Rule:    RuleTemplateMarkers,
		}
		if opens > closes {
			d.Fixable = true
			d.FixID = FixBalanceTemplateMarkers
		}
		diags = append(diags, d)
	}

	return diags
}

func structuralChecks(text string) []Diagnostic {
	docs, err := DecodeNodes(text)
	if err != nil {
		return []Diagnostic{syntaxDiagnostic(err, text)}
	}
	if len(docs) == 0 {
		return []Diagnostic{{Message: "Playbook contains no documents", Rule: RuleEmptyDocument}}
	}

	w := &walker{multi: len(docs) > 1}
	for i, doc := range docs {
		w.document(documentRoot(doc), i)
	}
	return w.diags
}

func syntaxDiagnostic(err error, text string) Diagnostic {
	msg := err.Error()
	d := Diagnostic{
		Message: "YAML syntax error: " + errorPrefixPattern.ReplaceAllString(msg, ""),
		Rule:    RuleSyntax,
	}
	if m := errorLinePattern.FindStringSubmatch(msg); m != nil {
		d.Line, _ = strconv.Atoi(m[1])
		d.Column = firstColumn(text, d.Line)
	}
	if indentationFamily.MatchString(msg) {
		d.Fixable = true
		d.FixID = FixIndentation
	}
	return d
}

// firstColumn is the 1-based column of the first non-space rune on line, or
// 0 when the line is out of range or blank
func firstColumn(text string, line int) int {
	lines := strings.Split(text, "\n")
	if line < 1 || line > len(lines) {
		return 0
	}
	trimmed := strings.TrimLeft(lines[line-1], " ")
	if strings.TrimSpace(trimmed) == "" {
		return 0
	}
	return len(lines[line-1]) - len(trimmed) + 1
}
