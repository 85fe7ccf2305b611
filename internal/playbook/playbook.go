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

// Package playbook parses, validates and re-serializes Ansible-style
// playbooks: a YAML list of plays, each with hosts and ordered tasks.
package playbook

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	// ErrEmptyDocument is returned when a playbook contains no documents
	ErrEmptyDocument = errors.New("playbook is empty")
	// ErrNotPlayList is returned when a document is neither a list of plays nor a single play
	ErrNotPlayList = errors.New("playbook must be a list of plays")
)

// Document is one YAML document of a playbook
type Document struct {
	Plays []Play `json:"plays"`
}

// Play targets a host pattern with an ordered list of tasks
type Play struct {
	Name      string         `json:"name"`
	Hosts     string         `json:"hosts"`
	Vars      map[string]any `json:"vars,omitempty"`
	PreTasks  []Task         `json:"pre_tasks,omitempty"`
	Tasks     []Task         `json:"tasks,omitempty"`
	PostTasks []Task         `json:"post_tasks,omitempty"`
	Handlers  []Task         `json:"handlers,omitempty"`
}

// Task invokes one module. Modules lists every non-control key in source order.
type Task struct {
	Name    string         `json:"name"`
	Modules []string       `json:"modules"`
	Params  map[string]any `json:"params,omitempty"`
	Block   []Task         `json:"block,omitempty"`
}

// Module returns the first module key, or "" when the task has none
func (t Task) Module() string {
	if len(t.Modules) == 0 {
		return ""
	}
	return t.Modules[0]
}

var controlKeywords = map[string]bool{
	"name":          true,
	"become":        true,
	"become_user":   true,
	"when":          true,
	"register":      true,
	"tags":          true,
	"notify":        true,
	"loop":          true,
	"ignore_errors": true,
	"changed_when":  true,
	"failed_when":   true,
	"vars":          true,
	"with_items":    true,
	"until":         true,
	"retries":       true,
	"delay":         true,
	"delegate_to":   true,
	"environment":   true,
	"no_log":        true,
	"run_once":      true,
}

// blockKeys hold nested task lists inside a task
var blockKeys = []string{"block", "rescue", "always"}

// taskSections are the play keys holding task lists, in execution order
var taskSections = []string{"pre_tasks", "tasks", "post_tasks", "handlers"}

// playOnlyKeys only ever appear on plays
var playOnlyKeys = []string{"hosts", "pre_tasks", "tasks", "post_tasks", "handlers", "roles", "gather_facts", "vars_files", "serial", "strategy"}

// IsControlKeyword reports whether key is a task keyword rather than a module
func IsControlKeyword(key string) bool {
	return controlKeywords[key]
}

// IsPlayOnlyKey reports whether key can only appear on a play
func IsPlayOnlyKey(key string) bool {
	for _, k := range playOnlyKeys {
		if k == key {
			return true
		}
	}
	return false
}

// Parse decodes text into typed documents
func Parse(text string) ([]Document, error) {
	nodes, err := DecodeNodes(text)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, ErrEmptyDocument
	}

	docs := make([]Document, 0, len(nodes))
	for i, doc := range nodes {
		root := documentRoot(doc)
		var plays []*yaml.Node
		switch {
		case root != nil && root.Kind == yaml.SequenceNode:
			plays = root.Content
		case root != nil && root.Kind == yaml.MappingNode:
			plays = []*yaml.Node{root}
		default:
			return nil, fmt.Errorf("document %d: %w", i+1, ErrNotPlayList)
		}

		parsed := Document{}
		for j, p := range plays {
			play, err := decodePlay(resolve(p))
			if err != nil {
				return nil, fmt.Errorf("document %d play %d: %w", i+1, j+1, err)
			}
			parsed.Plays = append(parsed.Plays, play)
		}
		docs = append(docs, parsed)
	}
	return docs, nil
}

func decodePlay(n *yaml.Node) (Play, error) {
	if n == nil || n.Kind != yaml.MappingNode {
		return Play{}, ErrNotPlayList
	}

	play := Play{Name: scalarValue(lookupValue(n, "name"))}

	if hosts := lookupValue(n, "hosts"); hosts != nil {
		if hosts.Kind == yaml.SequenceNode {
			parts := make([]string, 0, len(hosts.Content))
			for _, h := range hosts.Content {
				parts = append(parts, scalarValue(h))
			}
			play.Hosts = strings.Join(parts, ",")
		} else {
			play.Hosts = scalarValue(hosts)
		}
	}

	if vars := lookupValue(n, "vars"); vars != nil && vars.Kind == yaml.MappingNode {
		if err := vars.Decode(&play.Vars); err != nil {
			return Play{}, fmt.Errorf("decode vars: %w", err)
		}
	}

	sections := map[string]*[]Task{
		"pre_tasks":  &play.PreTasks,
		"tasks":      &play.Tasks,
		"post_tasks": &play.PostTasks,
		"handlers":   &play.Handlers,
	}
	for _, section := range taskSections {
		tasks, err := decodeTasks(lookupValue(n, section))
		if err != nil {
			return Play{}, fmt.Errorf("decode %s: %w", section, err)
		}
		*sections[section] = tasks
	}
	return play, nil
}

func decodeTasks(n *yaml.Node) ([]Task, error) {
	if n == nil || n.Kind != yaml.SequenceNode {
		return nil, nil
	}
	tasks := make([]Task, 0, len(n.Content))
	for _, item := range n.Content {
		item = resolve(item)
		if item.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("task at line %d is not a mapping", item.Line)
		}
		task := Task{Name: scalarValue(lookupValue(item, "name"))}
		if err := item.Decode(&task.Params); err != nil {
			return nil, err
		}
		for i := 0; i+1 < len(item.Content); i += 2 {
			key := item.Content[i].Value
			if isBlockKey(key) {
				nested, err := decodeTasks(resolve(item.Content[i+1]))
				if err != nil {
					return nil, err
				}
				task.Block = append(task.Block, nested...)
				continue
			}
			if !IsControlKeyword(key) && !containsString(task.Modules, key) {
				task.Modules = append(task.Modules, key)
			}
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

func isBlockKey(key string) bool {
	for _, k := range blockKeys {
		if k == key {
			return true
		}
	}
	return false
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
