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

// Package generator drafts playbooks with an OpenAI chat model for requests
// no built-in template covers.
package generator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/your-org/playbook-assistant/internal/resilience"
)

const (
	// DefaultModel is used when the configuration names none
	DefaultModel = openai.GPT4o
	// DefaultMaxTokens bounds the size of a generated playbook
	DefaultMaxTokens = 2000
	// DefaultTemperature keeps output close to deterministic
	DefaultTemperature = 0.2
	// BaseRetryDelay defines the base delay for exponential backoff
	BaseRetryDelay = time.Second
	// MaxRetries defines the number of retries after the first attempt
	MaxRetries = 2
)

var (
	// ErrMissingAPIKey is returned when no API key is configured
	ErrMissingAPIKey = errors.New("openai API key is required")
	// ErrEmptyCompletion is returned when the model answers with no playbook
	ErrEmptyCompletion = errors.New("model returned no playbook")
)

// Request describes the playbook to draft
type Request struct {
	Prompt      string
	Context     string
	Tier        string
	Environment string
	Services    []string
}

// Generator drafts playbook text for a request
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Config holds the OpenAI generator settings
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float32
	Backoff     resilience.BackoffConfig
}

// OpenAIGenerator drafts playbooks through the chat completions API
type OpenAIGenerator struct {
	client  *openai.Client
	config  Config
	breaker *resilience.CircuitBreaker
	logger  *zap.Logger
}

// RetryableError represents an API error worth retrying
type RetryableError struct {
	StatusCode int
	Message    string
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("retryable error (status %d): %s", e.StatusCode, e.Message)
}

// NewOpenAIGenerator creates a generator from cfg
func NewOpenAIGenerator(cfg Config, logger *zap.Logger) (*OpenAIGenerator, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = DefaultTemperature
	}
	if cfg.Backoff.BaseDelay <= 0 {
		cfg.Backoff = resilience.DefaultBackoffConfig()
		cfg.Backoff.BaseDelay = BaseRetryDelay
		cfg.Backoff.MaxRetries = MaxRetries
	}
	cfg.Backoff.RetryOnFunc = isRetryable

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	logger.Info("OpenAI generator initialized",
		zap.String("model", cfg.Model),
		zap.Int("max_tokens", cfg.MaxTokens),
		zap.Int("max_retries", cfg.Backoff.MaxRetries),
	)

	return &OpenAIGenerator{
		client:  openai.NewClientWithConfig(clientConfig),
		config:  cfg,
		breaker: resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig("openai"), logger),
		logger:  logger,
	}, nil
}

// BreakerState reports the state of the generator's circuit breaker
func (g *OpenAIGenerator) BreakerState() resilience.CircuitState {
	return g.breaker.State()
}

// Generate asks the model for a playbook and returns the YAML it contains
func (g *OpenAIGenerator) Generate(ctx context.Context, req Request) (string, error) {
	chatReq := openai.ChatCompletionRequest{
		Model: g.config.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: BuildSystemPrompt()},
			{Role: openai.ChatMessageRoleUser, Content: BuildUserPrompt(req)},
		},
		MaxTokens:   g.config.MaxTokens,
		Temperature: g.config.Temperature,
	}

	g.logger.Debug("Requesting playbook draft",
		zap.String("model", chatReq.Model),
		zap.String("context", req.Context),
		zap.String("tier", req.Tier),
		zap.String("prompt_preview", truncateText(req.Prompt, 100)),
	)

	start := time.Now()
	var resp openai.ChatCompletionResponse
	err := g.breaker.Execute(ctx, func(ctx context.Context) error {
		return resilience.WithExponentialBackoff(ctx, g.logger, g.config.Backoff, func(ctx context.Context) error {
			var callErr error
			resp, callErr = g.client.CreateChatCompletion(ctx, chatReq)
			if callErr != nil {
				return handleAPIError(callErr)
			}
			return nil
		})
	})
	if err != nil {
		g.logger.Error("Playbook draft failed", zap.Error(err))
		return "", fmt.Errorf("generate playbook: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	text := ExtractYAML(resp.Choices[0].Message.Content)
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyCompletion
	}

	g.logger.Info("Playbook draft generated",
		zap.String("finish_reason", string(resp.Choices[0].FinishReason)),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
		zap.Duration("processing_time", time.Since(start)),
	)

	return text, nil
}

func handleAPIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return classifyStatus(apiErr.HTTPStatusCode, apiErr.Message, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return classifyStatus(reqErr.HTTPStatusCode, reqErr.Error(), err)
	}
	return fmt.Errorf("openai client error: %w", err)
}

func classifyStatus(status int, message string, err error) error {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return resilience.Permanent(fmt.Errorf("invalid API key or unauthorized access: %w", err))
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return &RetryableError{StatusCode: status, Message: message}
	default:
		return resilience.Permanent(fmt.Errorf("openai API error (status %d): %s", status, message))
	}
}

func isRetryable(err error) bool {
	var retryErr *RetryableError
	if errors.As(err, &retryErr) {
		return true
	}
	return resilience.DefaultRetryOnFunc(err)
}

var fencePattern = regexp.MustCompile("(?s)```(?:ya?ml)?[ \t]*\n(.*?)```")

// ExtractYAML returns the first fenced code block of content, or content
// itself when it has none
func ExtractYAML(content string) string {
	if m := fencePattern.FindStringSubmatch(content); m != nil {
		return m[1]
	}
	return strings.TrimSpace(content) + "\n"
}

// BuildSystemPrompt creates the system prompt for playbook drafting
func BuildSystemPrompt() string {
	return `You are an Ansible automation engineer. Write one playbook that performs the user's request.

Rules:
- Answer with a single YAML document in a yaml code block and nothing else.
- Start the document with "---" and make it a list of plays.
- Every play has a name and hosts; every task has a name and exactly one module.
- Use fully qualified module names (ansible.builtin.package, ansible.builtin.service, ...).
- Indent with two spaces, never tabs.
- Prefer idempotent modules over shell commands.`
}

// BuildUserPrompt describes req to the model
func BuildUserPrompt(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Request: %s\n\n", req.Prompt)
	if req.Context != "" {
		fmt.Fprintf(&b, "Deployment context: %s\n", req.Context)
	}
	if req.Tier != "" {
		fmt.Fprintf(&b, "Complexity tier: %s\n", req.Tier)
	}
	if req.Environment != "" {
		fmt.Fprintf(&b, "Environment: %s\n", req.Environment)
	}
	if len(req.Services) > 0 {
		fmt.Fprintf(&b, "Services: %s\n", strings.Join(req.Services, ", "))
	}
	return b.String()
}

func truncateText(text string, maxLength int) string {
	if len(text) <= maxLength {
		return text
	}
	return text[:maxLength] + "..."
}
