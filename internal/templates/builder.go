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

package templates

import (
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/your-org/playbook-assistant/internal/playbook"
)

// field is one ordered mapping entry
type field struct {
	key   string
	value any
}

// fields is an ordered mapping
type fields []field

// task is a single module invocation
type task struct {
	name    string
	module  string
	args    any
	control fields
}

// play is one play of a rendered playbook
type play struct {
	name        string
	hosts       string
	become      bool
	gatherFacts *bool
	connection  string
	extra       fields
	vars        fields
	preTasks    []task
	tasks       []task
	postTasks   []task
	handlers    []task
}

func (t task) node() *yaml.Node {
	m := fields{{"name", t.name}}
	args := t.args
	if args == nil {
		args = fields{}
	}
	m = append(m, field{t.module, args})
	m = append(m, t.control...)
	return toNode(m)
}

func (p play) node() *yaml.Node {
	m := fields{{"name", p.name}, {"hosts", p.hosts}}
	if p.connection != "" {
		m = append(m, field{"connection", p.connection})
	}
	if p.gatherFacts != nil {
		m = append(m, field{"gather_facts", *p.gatherFacts})
	}
	if p.become {
		m = append(m, field{"become", true})
	}
	m = append(m, p.extra...)
	if len(p.vars) > 0 {
		m = append(m, field{"vars", p.vars})
	}
	sections := []struct {
		key   string
		tasks []task
	}{
		{"pre_tasks", p.preTasks},
		{"tasks", p.tasks},
		{"post_tasks", p.postTasks},
		{"handlers", p.handlers},
	}
	for _, s := range sections {
		if len(s.tasks) == 0 {
			continue
		}
		seq := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, t := range s.tasks {
			seq.Content = append(seq.Content, t.node())
		}
		m = append(m, field{s.key, seq})
	}
	return toNode(m)
}

// render serializes plays into canonical playbook text
func render(plays ...play) string {
	seq := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
	for _, p := range plays {
		seq.Content = append(seq.Content, p.node())
	}
	doc := &yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{seq}}
	text, err := playbook.EncodeNodes([]*yaml.Node{doc})
	if err != nil {
		return ""
	}
	return text
}

func toNode(v any) *yaml.Node {
	switch t := v.(type) {
	case *yaml.Node:
		return t
	case string:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: t}
	case int:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: strconv.Itoa(t)}
	case bool:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: strconv.FormatBool(t)}
	case []string:
		seq := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, s := range t {
			seq.Content = append(seq.Content, toNode(s))
		}
		return seq
	case []fields:
		seq := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, f := range t {
			seq.Content = append(seq.Content, toNode(f))
		}
		return seq
	case fields:
		m := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		if len(t) == 0 {
			m.Style = yaml.FlowStyle
		}
		for _, f := range t {
			m.Content = append(m.Content, toNode(f.key), toNode(f.value))
		}
		return m
	default:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}
	}
}

func boolPtr(b bool) *bool {
	return &b
}
