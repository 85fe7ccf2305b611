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
	"strings"

	"gopkg.in/yaml.v3"
)

// SiteKind distinguishes plays from tasks
type SiteKind string

// Site kinds
const (
	SitePlay SiteKind = "play"
	SiteTask SiteKind = "task"
)

// Position is a 1-based line and column in the source text
type Position struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// IsZero reports whether the position is unset
func (p Position) IsZero() bool {
	return p.Line == 0
}

// Site describes where a play or task mapping sits in the source and which
// required parts it lacks. The auto-fix engine edits text at these positions.
type Site struct {
	Kind  SiteKind
	Label string
	// Start is the position of the mapping's first key
	Start Position
	Flow  bool

	Name       string
	NameKey    Position
	NameInline bool

	HasHosts bool
	HostsKey Position
	// Anchor is the first task-bearing key of a play
	Anchor Position

	HasModule bool
	Block     bool
}

// Outline walks every play and task of text. Text containing tabs is
// outlined as-is, so callers that edit by column should replace tabs first.
func Outline(text string) ([]Site, error) {
	docs, err := DecodeNodes(text)
	if err != nil {
		return nil, err
	}
	w := &walker{multi: len(docs) > 1}
	for i, doc := range docs {
		w.document(documentRoot(doc), i)
	}
	return w.sites, nil
}

// walker collects sites and structural diagnostics from decoded documents
type walker struct {
	multi bool
	sites []Site
	diags []Diagnostic
}

func (w *walker) report(msg string, n *yaml.Node, rule Rule, fixID string) {
	d := Diagnostic{Message: msg, Rule: rule, FixID: fixID, Fixable: fixID != ""}
	if n != nil {
		d.Line = n.Line
		d.Column = n.Column
	}
	w.diags = append(w.diags, d)
}

func (w *walker) document(root *yaml.Node, docIndex int) {
	if root == nil || isNull(root) {
		w.report(w.docPrefix(docIndex)+"Playbook document is empty", root, RuleEmptyDocument, "")
		return
	}

	w.duplicates(root)

	switch root.Kind {
	case yaml.SequenceNode:
		for i, item := range root.Content {
			w.play(resolve(item), docIndex, i)
		}
	case yaml.MappingNode:
		if !LooksLikePlay(root) {
			w.report(w.docPrefix(docIndex)+"Playbook must be a list of plays", root, RulePlayList, "")
			return
		}
		w.report(w.docPrefix(docIndex)+"Playbook should be a list of plays", root, RuleWrapInList, FixWrapInList)
		w.play(root, docIndex, 0)
	default:
		w.report(w.docPrefix(docIndex)+"Playbook must be a list of plays", root, RulePlayList, "")
	}
}

func (w *walker) docPrefix(docIndex int) string {
	if !w.multi {
		return ""
	}
	return fmt.Sprintf("Document %d: ", docIndex+1)
}

func (w *walker) play(n *yaml.Node, docIndex, index int) {
	label := fmt.Sprintf("%sPlay %d", w.docPrefix(docIndex), index+1)
	if n.Kind != yaml.MappingNode {
		w.report(label+" must be a mapping", n, RulePlayList, "")
		return
	}

	site := Site{
		Kind:  SitePlay,
		Label: label,
		Start: Position{n.Line, n.Column},
		Flow:  n.Style&yaml.FlowStyle != 0,
	}
	w.fillName(&site, n)
	if site.Name != "" {
		label = fmt.Sprintf("%s %q", label, site.Name)
		site.Label = label
	}

	hostsKey, hosts := lookup(n, "hosts")
	if hostsKey != nil {
		site.HostsKey = Position{hostsKey.Line, hostsKey.Column}
	}
	site.HasHosts = !isBlank(hosts)

	for i := 0; i+1 < len(n.Content); i += 2 {
		if key := n.Content[i]; containsString(taskSections, key.Value) {
			site.Anchor = Position{key.Line, key.Column}
			break
		}
	}

	if site.Name == "" {
		w.report(label+" is missing a name", n, RulePlayName, FixAddMissingName)
	}
	if !site.HasHosts {
		w.report(label+": hosts is required", n, RuleHostsRequired, FixAddMissingHosts)
	}
	if vars := lookupValue(n, "vars"); vars != nil && !isNull(vars) && vars.Kind != yaml.MappingNode {
		w.report(label+": vars must be a mapping", vars, RuleVarsMapping, "")
	}
	w.sites = append(w.sites, site)

	for _, section := range taskSections {
		w.tasks(lookupValue(n, section), label, section)
	}
}

func (w *walker) tasks(n *yaml.Node, parent, section string) {
	if n == nil || isNull(n) {
		return
	}
	if n.Kind != yaml.SequenceNode {
		w.report(fmt.Sprintf("%s: %s must be a list of tasks", parent, section), n, RuleTaskList, "")
		return
	}
	for i, item := range n.Content {
		w.task(resolve(item), fmt.Sprintf("Task %d in %s of %s", i+1, section, strings.ToLower(parent[:1])+parent[1:]))
	}
}

func (w *walker) task(n *yaml.Node, label string) {
	if n.Kind != yaml.MappingNode {
		w.report(label+" must be a mapping", n, RuleTaskList, "")
		return
	}

	site := Site{
		Kind:  SiteTask,
		Label: label,
		Start: Position{n.Line, n.Column},
		Flow:  n.Style&yaml.FlowStyle != 0,
	}
	w.fillName(&site, n)

	for i := 0; i+1 < len(n.Content); i += 2 {
		key := n.Content[i].Value
		switch {
		case isBlockKey(key):
			site.Block = true
		case !IsControlKeyword(key):
			site.HasModule = true
		}
	}

	if site.Name == "" {
		w.report(label+" is missing a name", n, RuleTaskName, FixAddMissingName)
	}
	if !site.HasModule && !site.Block {
		w.report(label+" has no module specified", n, RuleTaskModule, FixAddDebugModule)
	}
	w.sites = append(w.sites, site)

	for _, key := range blockKeys {
		w.tasks(lookupValue(n, key), label, key)
	}
}

func (w *walker) fillName(site *Site, n *yaml.Node) {
	key, value := lookup(n, "name")
	if key == nil {
		return
	}
	site.NameKey = Position{key.Line, key.Column}
	if value != nil && value.Kind != yaml.ScalarNode {
		site.Name = "<" + kindName(value.Kind) + ">"
		return
	}
	site.Name = scalarValue(value)
	site.NameInline = value == nil || (value.Line == key.Line &&
		value.Style&(yaml.LiteralStyle|yaml.FoldedStyle) == 0)
}

// duplicates reports keys defined twice in any mapping under n
func (w *walker) duplicates(n *yaml.Node) {
	visitMappings(n, func(m *yaml.Node) {
		seen := make(map[string]*yaml.Node)
		for i := 0; i+1 < len(m.Content); i += 2 {
			key := m.Content[i]
			if key.Kind != yaml.ScalarNode {
				continue
			}
			if first, ok := seen[key.Value]; ok {
				w.report(fmt.Sprintf("Duplicate key %q (first defined on line %d)", key.Value, first.Line),
					key, RuleDuplicateKey, FixRemoveDuplicateKeys)
				continue
			}
			seen[key.Value] = key
		}
	})
}

// visitMappings calls fn for every mapping node reachable from n
func visitMappings(n *yaml.Node, fn func(*yaml.Node)) {
	if n == nil || n.Kind == yaml.AliasNode {
		return
	}
	if n.Kind == yaml.MappingNode {
		fn(n)
	}
	for _, child := range n.Content {
		visitMappings(child, fn)
	}
}

// VisitMappings calls fn for every mapping node reachable from n
func VisitMappings(n *yaml.Node, fn func(*yaml.Node)) {
	visitMappings(n, fn)
}

func kindName(k yaml.Kind) string {
	switch k {
	case yaml.MappingNode:
		return "mapping"
	case yaml.SequenceNode:
		return "sequence"
	case yaml.AliasNode:
		return "alias"
	default:
		return "value"
	}
}
