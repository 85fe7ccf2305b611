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

package generator

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/your-org/playbook-assistant/internal/resilience"
)

const draft = "Here you go:\n```yaml\n---\n- name: Install nginx\n  hosts: all\n  tasks:\n    - name: Install nginx\n      ansible.builtin.package:\n        name: nginx\n```\n"

func chatResponse(content string) string {
	body, _ := json.Marshal(map[string]any{
		"id":      "chatcmpl-test",
		"object":  "chat.completion",
		"created": 1234567890,
		"model":   "gpt-4o",
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]string{"role": "assistant", "content": content},
			"finish_reason": "stop",
		}},
		"usage": map[string]int{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
	})
	return string(body)
}

// mockOpenAIServer answers chat completions with the given statuses in order,
// then with content
func mockOpenAIServer(t *testing.T, content string, statuses ...int) (*httptest.Server, *int32) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		n := atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		if int(n) <= len(statuses) {
			w.WriteHeader(statuses[n-1])
			_, _ = w.Write([]byte(`{"error": {"message": "upstream failure", "type": "server_error"}}`))
			return
		}
		_, _ = w.Write([]byte(chatResponse(content)))
	}))
	t.Cleanup(server.Close)
	return server, &calls
}

func newTestGenerator(t *testing.T, url string) *OpenAIGenerator {
	backoff := resilience.DefaultBackoffConfig()
	backoff.BaseDelay = time.Millisecond
	backoff.MaxRetries = 2
	backoff.Jitter = false

	g, err := NewOpenAIGenerator(Config{
		APIKey:  "sk-test1234567890abcdef", // pragma: allowlist secret
		BaseURL: url + "/v1",
		Backoff: backoff,
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	return g
}

func TestNewOpenAIGenerator(t *testing.T) {
	_, err := NewOpenAIGenerator(Config{}, nil)
	assert.ErrorIs(t, err, ErrMissingAPIKey)

	g, err := NewOpenAIGenerator(Config{APIKey: "sk-test"}, nil) // pragma: allowlist secret
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, g.config.Model)
	assert.Equal(t, DefaultMaxTokens, g.config.MaxTokens)
	assert.Equal(t, MaxRetries, g.config.Backoff.MaxRetries)
}

func TestGenerate(t *testing.T) {
	server, calls := mockOpenAIServer(t, draft)
	g := newTestGenerator(t, server.URL)

	text, err := g.Generate(context.Background(), Request{Prompt: "install nginx", Context: "classic-linux"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(text, "---\n- name: Install nginx"))
	assert.NotContains(t, text, "```")
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
}

func TestGenerate_RetriesServerErrors(t *testing.T) {
	server, calls := mockOpenAIServer(t, draft, http.StatusServiceUnavailable, http.StatusTooManyRequests)
	g := newTestGenerator(t, server.URL)

	_, err := g.Generate(context.Background(), Request{Prompt: "install nginx"})
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(calls))
}

func TestGenerate_DoesNotRetryUnauthorized(t *testing.T) {
	server, calls := mockOpenAIServer(t, draft, http.StatusUnauthorized)
	g := newTestGenerator(t, server.URL)

	_, err := g.Generate(context.Background(), Request{Prompt: "install nginx"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unauthorized")
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
}

func TestGenerate_EmptyCompletion(t *testing.T) {
	server, _ := mockOpenAIServer(t, "   ")
	g := newTestGenerator(t, server.URL)

	_, err := g.Generate(context.Background(), Request{Prompt: "install nginx"})
	assert.True(t, errors.Is(err, ErrEmptyCompletion))
}

func TestExtractYAML(t *testing.T) {
	testCases := []struct {
		name     string
		content  string
		expected string
	}{
		{"yaml fence", "text\n```yaml\n---\n- hosts: all\n```", "---\n- hosts: all\n"},
		{"yml fence", "```yml\nkey: v\n```", "key: v\n"},
		{"bare fence", "```\nkey: v\n```", "key: v\n"},
		{"no fence", "  ---\n- hosts: all  ", "---\n- hosts: all\n"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, ExtractYAML(tc.content))
		})
	}
}

func TestBuildUserPrompt(t *testing.T) {
	prompt := BuildUserPrompt(Request{
		Prompt:      "deploy redis",
		Context:     "kubernetes",
		Tier:        "pro",
		Environment: "staging",
		Services:    []string{"redis", "nginx"},
	})

	assert.Contains(t, prompt, "Request: deploy redis")
	assert.Contains(t, prompt, "Deployment context: kubernetes")
	assert.Contains(t, prompt, "Complexity tier: pro")
	assert.Contains(t, prompt, "Environment: staging")
	assert.Contains(t, prompt, "Services: redis, nginx")
	assert.Contains(t, BuildSystemPrompt(), "two spaces")
}

func TestHandleAPIError(t *testing.T) {
	retry := handleAPIError(&openai.APIError{HTTPStatusCode: http.StatusBadGateway, Message: "bad gateway"})
	var retryErr *RetryableError
	assert.True(t, errors.As(retry, &retryErr))
	assert.True(t, isRetryable(retry))

	permanent := handleAPIError(&openai.APIError{HTTPStatusCode: http.StatusBadRequest, Message: "bad"})
	assert.False(t, isRetryable(permanent))
}
