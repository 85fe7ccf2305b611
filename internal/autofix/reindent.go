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

package autofix

import (
	"strings"

	"github.com/your-org/playbook-assistant/internal/playbook"
)

// Indentation levels used by the re-indenter
const (
	indentPlay     = 0
	indentPlayKey  = 2
	indentPlayBody = 4
	indentTask     = 4
	indentTaskKey  = 6
	indentTaskArg  = 8
)

type region int

const (
	regionTop region = iota
	regionPlay
	regionPlayBlock
	regionSection
	regionTask
	regionArgs
)

var playKeywords = map[string]bool{
	"name": true, "hosts": true, "become": true, "become_user": true, "become_method": true,
	"gather_facts": true, "vars": true, "vars_files": true, "vars_prompt": true, "roles": true,
	"remote_user": true, "serial": true, "strategy": true, "environment": true, "tags": true,
	"connection": true, "any_errors_fatal": true, "max_fail_percentage": true, "collections": true,
	"module_defaults": true, "port": true, "order": true, "force_handlers": true,
	"pre_tasks": true, "tasks": true, "post_tasks": true, "handlers": true,
}

// reindenter rebuilds indentation line by line from the play / task list /
// task body structure, ignoring the original indentation
type reindenter struct {
	lines  []string
	region region
	last   int

	inScalar     bool
	scalarOrig   int
	scalarIndent int
	scalarFirst  int
}

// reindent returns text with indentation re-derived. Nested blocks cannot be
// told apart from sibling tasks, so playbooks using them are returned as-is.
func reindent(text string) string {
	lines := strings.Split(text, "\n")
	for _, line := range lines {
		key, _, _ := splitLine(strings.TrimSpace(line))
		if key == "block" || key == "rescue" || key == "always" {
			return text
		}
	}

	r := &reindenter{lines: lines}
	out := make([]string, len(lines))
	for i := range lines {
		out[i] = r.line(i)
	}
	return strings.Join(out, "\n")
}

func (r *reindenter) emit(indent int, trimmed string) string {
	r.last = indent
	return strings.Repeat(" ", indent) + trimmed
}

func (r *reindenter) line(i int) string {
	raw := r.lines[i]
	trimmed := strings.TrimSpace(raw)
	orig := leadingWidth(raw)

	if r.inScalar {
		if trimmed == "" {
			return ""
		}
		if orig > r.scalarOrig {
			if r.scalarFirst < 0 {
				r.scalarFirst = orig
			}
			extra := orig - r.scalarFirst
			if extra < 0 {
				extra = 0
			}
			return strings.Repeat(" ", r.scalarIndent+2+extra) + trimmed
		}
		r.inScalar = false
	}

	switch {
	case trimmed == "":
		return ""
	case strings.HasPrefix(trimmed, "#"):
		return strings.Repeat(" ", r.last) + trimmed
	case trimmed == playbook.DocumentStart || strings.HasPrefix(trimmed, playbook.DocumentStart+" ") || trimmed == "...":
		r.region = regionTop
		r.last = 0
		return trimmed
	}

	key, value, isItem := splitLine(trimmed)
	indent := r.place(i, key, value, isItem)
	if isBlockScalar(value) {
		r.inScalar = true
		r.scalarOrig = orig
		r.scalarIndent = indent
		r.scalarFirst = -1
	}
	return r.emit(indent, trimmed)
}

// place returns the indentation for a line and advances the region
func (r *reindenter) place(i int, key, value string, isItem bool) int {
	open := value == ""

	switch {
	case isItem && (r.region == regionTop || r.isPlayItem(i)):
		r.region = regionPlay
		return indentPlay
	case r.region == regionTop:
		return indentPlay
	case !isItem && isSectionKey(key) && open:
		r.region = regionSection
		return indentPlayKey
	case !isItem && (r.region == regionPlay || (r.region == regionPlayBlock && playKeywords[key])):
		r.region = regionPlay
		if open {
			r.region = regionPlayBlock
		}
		return indentPlayKey
	case r.region == regionPlayBlock:
		return indentPlayBody
	case isItem && r.region == regionArgs && key == "":
		return indentTaskArg
	case isItem && (r.region == regionSection || r.region == regionTask || r.region == regionArgs):
		r.region = regionTask
		if key != "" && open && !playbook.IsControlKeyword(key) {
			r.region = regionArgs
		}
		return indentTask
	case isItem:
		r.region = regionPlay
		return indentPlay
	case r.region == regionTask || r.region == regionSection:
		r.region = regionTask
		if open {
			r.region = regionArgs
		}
		return indentTaskKey
	case r.region == regionArgs:
		if key != "name" && playbook.IsControlKeyword(key) {
			r.region = regionTask
			if open {
				r.region = regionArgs
			}
			return indentTaskKey
		}
		return indentTaskArg
	default:
		return r.last
	}
}

// isPlayItem looks ahead over the list item starting at line i for keys that
// only plays carry
func (r *reindenter) isPlayItem(i int) bool {
	for j := i; j < len(r.lines); j++ {
		trimmed := strings.TrimSpace(r.lines[j])
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		key, _, isItem := splitLine(trimmed)
		if j > i && (isItem || trimmed == playbook.DocumentStart) {
			return false
		}
		if playbook.IsPlayOnlyKey(key) {
			return true
		}
	}
	return false
}

// splitLine returns the mapping key and value of a trimmed line. For list
// items the key is taken from the item body; key is "" for scalars.
func splitLine(trimmed string) (key, value string, isItem bool) {
	body := trimmed
	if trimmed == "-" || strings.HasPrefix(trimmed, "- ") {
		isItem = true
		body = strings.TrimSpace(strings.TrimPrefix(trimmed, "-"))
	}
	if strings.HasPrefix(body, "\"") || strings.HasPrefix(body, "'") || strings.HasPrefix(body, "{") {
		return "", body, isItem
	}
	idx := strings.Index(body, ":")
	if idx <= 0 || (idx+1 < len(body) && body[idx+1] != ' ') {
		return "", body, isItem
	}
	return strings.TrimSpace(body[:idx]), strings.TrimSpace(body[idx+1:]), isItem
}

func isSectionKey(key string) bool {
	switch key {
	case "pre_tasks", "tasks", "post_tasks", "handlers":
		return true
	}
	return false
}

func isBlockScalar(value string) bool {
	return strings.HasPrefix(value, "|") || strings.HasPrefix(value, ">")
}

func leadingWidth(line string) int {
	width := 0
	for _, r := range line {
		switch r {
		case ' ':
			width++
		case '\t':
			width += playbook.TabWidth
		default:
			return width
		}
	}
	return width
}
