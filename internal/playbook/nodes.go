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
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// DocumentStart is the YAML document separator every playbook starts with
const DocumentStart = "---"

// DecodeNodes decodes every YAML document in text. A document holding only
// comments or whitespace yields no node.
func DecodeNodes(text string) ([]*yaml.Node, error) {
	dec := yaml.NewDecoder(strings.NewReader(text))
	var docs []*yaml.Node
	for {
		var doc yaml.Node
		err := dec.Decode(&doc)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse playbook: %w", err)
		}
		docs = append(docs, &doc)
	}
	return docs, nil
}

// EncodeNodes serializes documents with a leading separator and 2-space indent
func EncodeNodes(docs []*yaml.Node) (string, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	for _, doc := range docs {
		if err := enc.Encode(doc); err != nil {
			return "", fmt.Errorf("encode playbook: %w", err)
		}
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("encode playbook: %w", err)
	}
	return DocumentStart + "\n" + buf.String(), nil
}

// Print re-serializes text in canonical form
func Print(text string) (string, error) {
	docs, err := DecodeNodes(text)
	if err != nil {
		return "", err
	}
	if len(docs) == 0 {
		return "", ErrEmptyDocument
	}
	return EncodeNodes(docs)
}

// Parses reports whether text is syntactically valid YAML
func Parses(text string) bool {
	_, err := DecodeNodes(text)
	return err == nil
}

func documentRoot(doc *yaml.Node) *yaml.Node {
	if doc == nil {
		return nil
	}
	if doc.Kind == yaml.DocumentNode {
		if len(doc.Content) == 0 {
			return nil
		}
		return resolve(doc.Content[0])
	}
	return resolve(doc)
}

func resolve(n *yaml.Node) *yaml.Node {
	for n != nil && n.Kind == yaml.AliasNode {
		n = n.Alias
	}
	return n
}

func lookup(m *yaml.Node, key string) (*yaml.Node, *yaml.Node) {
	if m == nil || m.Kind != yaml.MappingNode {
		return nil, nil
	}
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i], resolve(m.Content[i+1])
		}
	}
	return nil, nil
}

func lookupValue(m *yaml.Node, key string) *yaml.Node {
	_, v := lookup(m, key)
	return v
}

func scalarValue(n *yaml.Node) string {
	if n == nil || n.Kind != yaml.ScalarNode || n.Tag == "!!null" {
		return ""
	}
	return strings.TrimSpace(n.Value)
}

// isBlank reports whether n is absent, null or an empty string
func isBlank(n *yaml.Node) bool {
	if n == nil {
		return true
	}
	switch n.Kind {
	case yaml.ScalarNode:
		return scalarValue(n) == ""
	case yaml.SequenceNode, yaml.MappingNode:
		return len(n.Content) == 0
	default:
		return false
	}
}

func isNull(n *yaml.Node) bool {
	return n == nil || (n.Kind == yaml.ScalarNode && n.Tag == "!!null")
}

// LooksLikePlay reports whether a mapping carries play-only keys
func LooksLikePlay(m *yaml.Node) bool {
	if m == nil || m.Kind != yaml.MappingNode {
		return false
	}
	for i := 0; i+1 < len(m.Content); i += 2 {
		if IsPlayOnlyKey(m.Content[i].Value) {
			return true
		}
	}
	return false
}
