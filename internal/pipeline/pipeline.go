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

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/your-org/playbook-assistant/internal/autofix"
	"github.com/your-org/playbook-assistant/internal/classifier"
	"github.com/your-org/playbook-assistant/internal/deployment"
	"github.com/your-org/playbook-assistant/internal/entities"
	"github.com/your-org/playbook-assistant/internal/generator"
	"github.com/your-org/playbook-assistant/internal/history"
	"github.com/your-org/playbook-assistant/internal/metrics"
	"github.com/your-org/playbook-assistant/internal/playbook"
	"github.com/your-org/playbook-assistant/internal/templates"
)

// Generation modes
const (
	ModeTemplate = "template"
	ModeLLM      = "llm"
)

// Playbook sources
const (
	SourceTemplate = "template"
	SourceLLM      = "llm"
)

// ErrEmptyPlaybook is returned by Fix and Lint for blank input
var ErrEmptyPlaybook = errors.New("playbook text is empty")

// Options configures a Pipeline
type Options struct {
	Mode               string
	LLMFallback        bool
	MaxFixPasses       int
	DefaultEnvironment string
}

// HistoryStore persists generation records
type HistoryStore interface {
	Append(ctx context.Context, r history.Record) (history.Record, error)
}

// Request is one playbook generation request
type Request struct {
	Prompt      string `json:"prompt"`
	Environment string `json:"environment,omitempty"`
	Tier        string `json:"tier,omitempty"`
}

// Result is the outcome of Generate. A prompt rejected by the guard rail
// yields Rejected with no playbook.
type Result struct {
	ID             string                   `json:"id,omitempty"`
	Prompt         string                   `json:"prompt"`
	Verdict        classifier.Verdict       `json:"verdict"`
	Rejected       bool                     `json:"rejected"`
	Message        string                   `json:"message,omitempty"`
	Classification PromptClassification     `json:"classification"`
	Deployment     DeploymentClassification `json:"deployment"`
	Template       string                   `json:"template,omitempty"`
	Source         string                   `json:"source,omitempty"`
	Playbook       string                   `json:"playbook,omitempty"`
	Validation     playbook.Result          `json:"validation"`
	Applied        []string                 `json:"applied"`
	Passes         int                      `json:"passes"`
}

// Pipeline generates validated playbooks from prompts
type Pipeline struct {
	options   Options
	registry  *templates.Registry
	generator generator.Generator
	engine    *autofix.Engine
	history   HistoryStore
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// New creates a pipeline. gen, store and m may be nil.
func New(opts Options, registry *templates.Registry, gen generator.Generator, store HistoryStore, m *metrics.Metrics, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	if registry == nil {
		registry = templates.DefaultRegistry()
	}
	if opts.Mode == "" {
		opts.Mode = ModeTemplate
	}
	if opts.MaxFixPasses <= 0 {
		opts.MaxFixPasses = autofix.DefaultMaxPasses
	}
	return &Pipeline{
		options:   opts,
		registry:  registry,
		generator: gen,
		engine:    autofix.NewEngine(logger),
		history:   store,
		metrics:   m,
		logger:    logger,
	}
}

// Registry returns the template registry in use
func (p *Pipeline) Registry() *templates.Registry {
	return p.registry
}

// Engine returns the auto-fix engine in use
func (p *Pipeline) Engine() *autofix.Engine {
	return p.engine
}

// Generate turns a prompt into a validated, auto-fixed playbook
func (p *Pipeline) Generate(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()

	verdict := ValidatePrompt(req.Prompt)
	p.metrics.ObservePrompt(string(verdict.Category), !verdict.IsValid)

	result := &Result{
		Prompt:  req.Prompt,
		Verdict: verdict,
		Applied: []string{},
	}

	if !verdict.IsValid {
		result.Rejected = true
		result.Message = RejectionMessage(verdict)
		p.logger.Info("Prompt rejected by guard rail",
			zap.String("category", string(verdict.Category)),
			zap.Int("confidence", verdict.Confidence))
		p.record(ctx, result)
		return result, nil
	}

	ents := entities.Extract(req.Prompt)
	result.Classification = PromptClassification{
		Intent:   intentClassifier.Classify(req.Prompt),
		Entities: ents,
	}
	result.Deployment = classifyDeployment(req.Prompt, ents)
	if req.Tier != "" {
		result.Deployment.Complexity.Tier = deployment.ParseTier(req.Tier)
	}

	params := templates.Params{
		Prompt:      req.Prompt,
		Intent:      result.Classification.Intent,
		Entities:    ents,
		Context:     result.Deployment.Context,
		Complexity:  result.Deployment.Complexity,
		Environment: p.environment(req, ents),
	}

	text, err := p.draft(ctx, params, result)
	if err != nil {
		return nil, err
	}

	converged := p.engine.Converge(text, p.options.MaxFixPasses)
	result.Playbook = converged.Text
	result.Validation = converged.Validation
	result.Applied = converged.Applied
	result.Passes = converged.Passes

	p.metrics.ObserveFixes(converged.Applied)
	p.metrics.ObserveDiagnostics(ruleNames(converged.Validation.Diagnostics))
	p.metrics.ObserveGeneration(string(params.Context.Context), string(params.Tier()), result.Source,
		converged.Validation.Valid, time.Since(start))

	p.logger.Info("Playbook generated",
		zap.String("context", string(params.Context.Context)),
		zap.String("tier", string(params.Tier())),
		zap.String("template", result.Template),
		zap.String("source", result.Source),
		zap.Bool("valid", converged.Validation.Valid),
		zap.Strings("applied", converged.Applied),
		zap.Duration("processing_time", time.Since(start)))

	p.record(ctx, result)
	return result, nil
}

// draft produces the unvalidated playbook text and sets the result's source
func (p *Pipeline) draft(ctx context.Context, params templates.Params, result *Result) (string, error) {
	if p.options.Mode == ModeLLM && p.generator != nil {
		text, err := p.generator.Generate(ctx, generatorRequest(params))
		if err == nil {
			result.Source = SourceLLM
			return text, nil
		}
		p.logger.Warn("LLM generation failed, using templates", zap.Error(err))
	}

	text, tmpl, err := p.registry.Generate(params)
	if err == nil {
		result.Source = SourceTemplate
		result.Template = tmpl.Name
		return text, nil
	}
	if !errors.Is(err, templates.ErrNoTemplate) {
		return "", fmt.Errorf("render template: %w", err)
	}

	// llm mode already tried the generator above
	if p.generator == nil || p.options.Mode == ModeLLM || !p.options.LLMFallback {
		return "", err
	}

	text, genErr := p.generator.Generate(ctx, generatorRequest(params))
	if genErr != nil {
		return "", fmt.Errorf("no template and generator failed: %w", genErr)
	}
	result.Source = SourceLLM
	return text, nil
}

func (p *Pipeline) environment(req Request, ents []entities.Entity) string {
	if req.Environment != "" {
		return req.Environment
	}
	if len(entities.Values(ents, entities.TypeEnvironment)) > 0 {
		return ""
	}
	return p.options.DefaultEnvironment
}

func (p *Pipeline) record(ctx context.Context, result *Result) {
	if p.history == nil {
		return
	}

	r := history.Record{
		Prompt:      result.Prompt,
		Category:    string(result.Verdict.Category),
		Context:     string(result.Deployment.Context.Context),
		Tier:        string(result.Deployment.Complexity.Tier),
		Template:    result.Template,
		Source:      result.Source,
		Rejected:    result.Rejected,
		Valid:       result.Validation.Valid,
		Diagnostics: len(result.Validation.Diagnostics),
		Applied:     result.Applied,
		Playbook:    result.Playbook,
	}
	stored, err := p.history.Append(ctx, r)
	if err != nil {
		p.logger.Warn("Failed to record generation", zap.Error(err))
		return
	}
	result.ID = stored.ID
}

// Lint validates playbook text
func (p *Pipeline) Lint(text string) (playbook.Result, error) {
	if text == "" {
		return playbook.Result{}, ErrEmptyPlaybook
	}
	result := playbook.Validate(text)
	p.metrics.ObserveDiagnostics(ruleNames(result.Diagnostics))
	return result, nil
}

// Fix repairs playbook text. With all set every fix runs once in canonical
// order; otherwise fixes are driven by diagnostics until convergence.
func (p *Pipeline) Fix(text string, all bool) (autofix.ConvergeResult, error) {
	if text == "" {
		return autofix.ConvergeResult{}, ErrEmptyPlaybook
	}

	var out autofix.ConvergeResult
	if all {
		r := p.engine.ApplyAll(text)
		out = autofix.ConvergeResult{
			Text:       r.Text,
			Validation: playbook.Validate(r.Text),
			Passes:     1,
			Applied:    r.Applied,
		}
	} else {
		out = p.engine.Converge(text, p.options.MaxFixPasses)
	}

	p.metrics.ObserveFixes(out.Applied)
	return out, nil
}

func generatorRequest(params templates.Params) generator.Request {
	return generator.Request{
		Prompt:      params.Prompt,
		Context:     string(params.Context.Context),
		Tier:        string(params.Tier()),
		Environment: params.Env(),
		Services:    params.Services(),
	}
}

func ruleNames(diags []playbook.Diagnostic) []string {
	out := make([]string, len(diags))
	for i, d := range diags {
		out[i] = string(d.Rule)
	}
	return out
}
