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

// Package templates holds the playbook templates and the router that picks
// one from the classification of a prompt.
package templates

import (
	"errors"
	"fmt"

	"github.com/your-org/playbook-assistant/internal/deployment"
	"github.com/your-org/playbook-assistant/internal/entities"
	"github.com/your-org/playbook-assistant/internal/intent"
	"github.com/your-org/playbook-assistant/internal/textnorm"
)

// RequiredEntityBonus is added to a template's keyword score per required
// entity, so a template built for a named service beats generic ones.
const RequiredEntityBonus = 10.0

var (
	// ErrDuplicateTemplate is returned when registering a name twice
	ErrDuplicateTemplate = errors.New("template already registered")
	// ErrNoTemplate is returned when no template serves the request
	ErrNoTemplate = errors.New("no template matches request")
)

// DefaultEnvironment is used when the prompt names no environment
const DefaultEnvironment = "production"

// Params is everything a template needs to render a playbook
type Params struct {
	Prompt      string                       `json:"prompt"`
	Intent      intent.Intent                `json:"intent"`
	Entities    []entities.Entity            `json:"entities"`
	Context     deployment.ContextVerdict    `json:"context"`
	Complexity  deployment.ComplexityVerdict `json:"complexity"`
	Environment string                       `json:"environment,omitempty"`
}

// Tier returns the complexity tier, basic when unset
func (p Params) Tier() deployment.Tier {
	if p.Complexity.Tier == "" {
		return deployment.TierBasic
	}
	return p.Complexity.Tier
}

// Include reports whether feature is enabled for the request's tier
func (p Params) Include(feature deployment.Feature) bool {
	return deployment.ShouldIncludeFeature(p.Tier(), feature)
}

// Env returns the target environment name
func (p Params) Env() string {
	if p.Environment != "" {
		return p.Environment
	}
	if envs := entities.Values(p.Entities, entities.TypeEnvironment); len(envs) > 0 {
		return envs[0]
	}
	return DefaultEnvironment
}

// Services returns the canonical service names of the request
func (p Params) Services() []string {
	return entities.Values(p.Entities, entities.TypeService)
}

// Has reports whether the request mentions entity value of any type
func (p Params) Has(value string) bool {
	for _, e := range p.Entities {
		if e.Value == value {
			return true
		}
	}
	return false
}

// Template renders a playbook for one family of requests
type Template struct {
	Name             string             `json:"name"`
	Description      string             `json:"description"`
	Context          deployment.Context `json:"context"`
	RequiredEntities []string           `json:"required_entities,omitempty"`
	Keywords         []string           `json:"keywords,omitempty"`
	Weight           float64            `json:"weight"`
	// Fallback templates serve their context when nothing more specific scores
	Fallback bool                `json:"fallback"`
	Render   func(Params) string `json:"-"`
}

// Selection is the outcome of routing
type Selection struct {
	Template Template `json:"template"`
	Score    float64  `json:"score"`
}

// Registry is an ordered set of templates
type Registry struct {
	templates []Template
	index     map[string]int
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{index: make(map[string]int)}
}

// DefaultRegistry creates a registry holding the built-in templates
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, t := range builtinTemplates() {
		if err := r.Register(t); err != nil {
			panic(err)
		}
	}
	return r
}

// Register adds t to the registry
func (r *Registry) Register(t Template) error {
	if t.Name == "" || t.Render == nil {
		return fmt.Errorf("register template %q: name and render function are required", t.Name)
	}
	if _, ok := r.index[t.Name]; ok {
		return fmt.Errorf("register template %q: %w", t.Name, ErrDuplicateTemplate)
	}
	if t.Weight <= 0 {
		t.Weight = 1
	}
	r.index[t.Name] = len(r.templates)
	r.templates = append(r.templates, t)
	return nil
}

// Get returns the template registered under name
func (r *Registry) Get(name string) (Template, bool) {
	i, ok := r.index[name]
	if !ok {
		return Template{}, false
	}
	return r.templates[i], true
}

// List returns every template in registration order
func (r *Registry) List() []Template {
	out := make([]Template, len(r.templates))
	copy(out, r.templates)
	return out
}

// Select picks the template for p among those serving its deployment context
// whose required entities are all present. Candidates are scored with the
// intent keyword scorer plus RequiredEntityBonus per required entity; a zero
// best score falls back to the context's fallback template.
func (r *Registry) Select(p Params) (Selection, bool) {
	var candidates []Template
	for _, t := range r.templates {
		if t.Context != p.Context.Context || !p.hasAll(t.RequiredEntities) {
			continue
		}
		candidates = append(candidates, t)
	}
	if len(candidates) == 0 {
		return Selection{}, false
	}

	defs := make([]intent.Definition, len(candidates))
	for i, t := range candidates {
		defs[i] = intent.Definition{Name: t.Name, Keywords: t.Keywords, Weight: t.Weight, Category: string(t.Context)}
	}
	keywordScores := make(map[string]float64)
	for _, s := range intent.Rank(textnorm.NormalizeStrict(p.Prompt), defs) {
		keywordScores[s.Name] = s.Score
	}

	var best Selection
	found := false
	for _, t := range candidates {
		score := keywordScores[t.Name] + RequiredEntityBonus*float64(len(t.RequiredEntities))
		if score > best.Score {
			best = Selection{Template: t, Score: score}
			found = true
		}
	}
	if found {
		return best, true
	}

	for _, t := range candidates {
		if t.Fallback {
			return Selection{Template: t}, true
		}
	}
	return Selection{}, false
}

// Generate selects a template for p and renders it
func (r *Registry) Generate(p Params) (string, Template, error) {
	sel, ok := r.Select(p)
	if !ok {
		return "", Template{}, fmt.Errorf("context %s: %w", p.Context.Context, ErrNoTemplate)
	}
	return sel.Template.Render(p), sel.Template, nil
}

func (p Params) hasAll(values []string) bool {
	for _, v := range values {
		if !p.Has(v) {
			return false
		}
	}
	return true
}
