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
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/your-org/playbook-assistant/internal/playbook"
)

// Placeholder values inserted by fixes
const (
	PlaceholderPlayName = "Unnamed play"
	PlaceholderTaskName = "Unnamed task"
	PlaceholderHosts    = "all"
	DebugMessage        = "No module specified for this task"
)

// DefaultFixes returns the built-in fixes in canonical order
func DefaultFixes() []Fix {
	return []Fix{
		{
			ID:          playbook.FixAddDocumentStart,
			Title:       "Add document start",
			Description: "Prepend the '---' document separator",
			Transform:   addDocumentStart,
		},
		{
			ID:          playbook.FixReplaceTabs,
			Title:       "Replace tabs",
			Description: "Replace every tab character with two spaces",
			Transform:   playbook.ExpandTabs,
		},
		{
			ID:          playbook.FixIndentation,
			Title:       "Fix indentation",
			Description: "Re-derive indentation for plays, task lists and task bodies",
			Transform:   fixIndentation,
		},
		{
			ID:          playbook.FixRemoveDuplicateKeys,
			Title:       "Remove duplicate keys",
			Description: "Keep the first occurrence of each key in a mapping",
			Transform:   removeDuplicateKeys,
		},
		{
			ID:          playbook.FixWrapInList,
			Title:       "Wrap play in a list",
			Description: "Turn a single top-level play into a one-element list of plays",
			Transform:   wrapInList,
		},
		{
			ID:          playbook.FixAddMissingName,
			Title:       "Add missing names",
			Description: "Insert a placeholder name on plays and tasks without one",
			Transform:   addMissingName,
		},
		{
			ID:          playbook.FixAddMissingHosts,
			Title:       "Add missing hosts",
			Description: "Insert 'hosts: all' before the first task list of plays without hosts",
			Transform:   addMissingHosts,
		},
		{
			ID:          playbook.FixAddDebugModule,
			Title:       "Add debug module",
			Description: "Give tasks without a module a debug message",
			Transform:   addDebugModule,
		},
		{
			ID:          playbook.FixBalanceTemplateMarkers,
			Title:       "Balance template markers",
			Description: "Close unterminated '{{' markers",
			Transform:   balanceTemplateMarkers,
		},
	}
}

func addDocumentStart(text string) string {
	if strings.HasPrefix(strings.TrimLeft(text, " \t\r\n"), playbook.DocumentStart) {
		return text
	}
	return playbook.DocumentStart + "\n" + text
}

func fixIndentation(text string) string {
	if playbook.Parses(text) {
		return text
	}
	fixed := reindent(text)
	if !playbook.Parses(fixed) {
		return text
	}
	return fixed
}

func removeDuplicateKeys(text string) string {
	docs, err := playbook.DecodeNodes(text)
	if err != nil {
		return text
	}

	removed := false
	for _, doc := range docs {
		playbook.VisitMappings(doc, func(m *yaml.Node) {
			seen := make(map[string]bool)
			kept := m.Content[:0]
			for i := 0; i+1 < len(m.Content); i += 2 {
				key := m.Content[i]
				if key.Kind == yaml.ScalarNode {
					if seen[key.Value] {
						removed = true
						continue
					}
					seen[key.Value] = true
				}
				kept = append(kept, key, m.Content[i+1])
			}
			m.Content = kept
		})
	}
	if !removed {
		return text
	}
	return encodeOrKeep(docs, text)
}

func wrapInList(text string) string {
	docs, err := playbook.DecodeNodes(text)
	if err != nil {
		return text
	}

	wrapped := false
	for _, doc := range docs {
		if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
			continue
		}
		root := doc.Content[0]
		if root.Kind != yaml.MappingNode || !playbook.LooksLikePlay(root) {
			continue
		}
		doc.Content[0] = &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq", Content: []*yaml.Node{root}}
		wrapped = true
	}
	if !wrapped {
		return text
	}
	return encodeOrKeep(docs, text)
}

func encodeOrKeep(docs []*yaml.Node, text string) string {
	out, err := playbook.EncodeNodes(docs)
	if err != nil {
		return text
	}
	return out
}

// edit replaces one source line with zero or more lines
type edit struct {
	line  int
	lines []string
}

// siteEdits outlines text and collects one edit per site returned by fn.
// Text with tabs is left to replace-tabs so columns stay meaningful.
func siteEdits(text string, fn func(lines []string, s playbook.Site) *edit) string {
	if strings.Contains(text, "\t") {
		return text
	}
	sites, err := playbook.Outline(text)
	if err != nil {
		return text
	}

	lines := strings.Split(text, "\n")
	var edits []edit
	for _, s := range sites {
		if s.Flow {
			continue
		}
		if e := fn(lines, s); e != nil {
			edits = append(edits, *e)
		}
	}
	if len(edits) == 0 {
		return text
	}
	return applyEdits(lines, edits)
}

// applyEdits applies edits bottom-up so earlier line numbers stay valid
func applyEdits(lines []string, edits []edit) string {
	sort.SliceStable(edits, func(i, j int) bool { return edits[i].line > edits[j].line })
	done := make(map[int]bool)
	for _, e := range edits {
		if done[e.line] || e.line < 1 || e.line > len(lines) {
			continue
		}
		done[e.line] = true
		idx := e.line - 1
		tail := append([]string{}, lines[idx+1:]...)
		lines = append(append(lines[:idx], e.lines...), tail...)
	}
	return strings.Join(lines, "\n")
}

// insertBefore splits the line at pos so that keyLines come first at the
// key's column, keeping any "- " item marker on the first line
func insertBefore(lines []string, pos playbook.Position, keyLines ...string) *edit {
	idx, col := pos.Line-1, pos.Column-1
	if idx < 0 || idx >= len(lines) || col < 0 || col > len(lines[idx]) {
		return nil
	}
	line := lines[idx]
	prefix := line[:col]
	if strings.Trim(prefix, " -") != "" {
		return nil
	}
	indent := strings.Repeat(" ", col)

	out := []string{prefix + keyLines[0]}
	for _, l := range keyLines[1:] {
		out = append(out, indent+l)
	}
	out = append(out, indent+line[col:])
	return &edit{line: pos.Line, lines: out}
}

// insertAfter adds keyLines below the line at pos, aligned to its column
func insertAfter(lines []string, pos playbook.Position, keyLines ...string) *edit {
	idx, col := pos.Line-1, pos.Column-1
	if idx < 0 || idx >= len(lines) || col < 0 {
		return nil
	}
	indent := strings.Repeat(" ", col)
	out := []string{lines[idx]}
	for _, l := range keyLines {
		out = append(out, indent+l)
	}
	return &edit{line: pos.Line, lines: out}
}

// replaceKey rewrites the key at pos and its empty value as key: value
func replaceKey(lines []string, pos playbook.Position, keyValue string) *edit {
	idx, col := pos.Line-1, pos.Column-1
	if idx < 0 || idx >= len(lines) || col < 0 || col > len(lines[idx]) {
		return nil
	}
	return &edit{line: pos.Line, lines: []string{lines[idx][:col] + keyValue}}
}

func addMissingName(text string) string {
	return siteEdits(text, func(lines []string, s playbook.Site) *edit {
		if s.Name != "" {
			return nil
		}
		placeholder := PlaceholderTaskName
		if s.Kind == playbook.SitePlay {
			placeholder = PlaceholderPlayName
		}
		if !s.NameKey.IsZero() {
			return replaceKey(lines, s.NameKey, "name: "+placeholder)
		}
		return insertBefore(lines, s.Start, "name: "+placeholder)
	})
}

func addMissingHosts(text string) string {
	return siteEdits(text, func(lines []string, s playbook.Site) *edit {
		if s.Kind != playbook.SitePlay || s.HasHosts {
			return nil
		}
		hosts := "hosts: " + PlaceholderHosts
		switch {
		case !s.HostsKey.IsZero():
			return replaceKey(lines, s.HostsKey, hosts)
		case !s.Anchor.IsZero():
			return insertBefore(lines, s.Anchor, hosts)
		default:
			return insertBefore(lines, s.Start, hosts)
		}
	})
}

func addDebugModule(text string) string {
	return siteEdits(text, func(lines []string, s playbook.Site) *edit {
		if s.Kind != playbook.SiteTask || s.HasModule || s.Block {
			return nil
		}
		debug := []string{"debug:", `  msg: "` + DebugMessage + `"`}
		if !s.NameKey.IsZero() && s.NameInline {
			return insertAfter(lines, s.NameKey, debug...)
		}
		return insertBefore(lines, s.Start, debug...)
	})
}

func balanceTemplateMarkers(text string) string {
	missing := strings.Count(text, "{{") - strings.Count(text, "}}")
	if missing <= 0 {
		return text
	}

	open := unterminatedMarkers(text)
	if len(open) > missing {
		open = open[len(open)-missing:]
	}
	perLine := make(map[int]int)
	for _, offset := range open {
		perLine[strings.Count(text[:offset], "\n")]++
	}

	lines := strings.Split(text, "\n")
	for i, count := range perLine {
		closing := strings.Repeat(" }}", count)
		trimmed := strings.TrimRight(lines[i], " ")
		if n := len(trimmed); n > 0 && (trimmed[n-1] == '"' || trimmed[n-1] == '\'') &&
			strings.LastIndex(trimmed, "{{") < n-1 {
			lines[i] = trimmed[:n-1] + closing + trimmed[n-1:]
			continue
		}
		lines[i] = trimmed + closing
	}
	return strings.Join(lines, "\n")
}

// unterminatedMarkers returns the byte offsets of the '{{' markers that no
// later '}}' closes, in text order. Markers may span lines.
func unterminatedMarkers(text string) []int {
	var stack []int
	for i := 0; i+1 < len(text); i++ {
		switch text[i : i+2] {
		case "{{":
			stack = append(stack, i)
			i++
		case "}}":
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
			i++
		}
	}
	return stack
}
