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

package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to create test config file: %v", err)
	}
	return configPath
}

func validConfig() Config {
	return Config{
		Server:  ServerConfig{Port: 8080, Mode: "release", RequestTimeout: 30},
		Logging: LoggingConfig{Level: "info", Format: "json", Output: "stdout"},
		History: HistoryConfig{Enabled: true, StorageType: "file", FilePath: "./history.jsonl"},
		Generation: GenerationConfig{
			Mode:         GenerationModeTemplate,
			MaxFixPasses: 5,
		},
		OpenAI: OpenAIConfig{MaxTokens: 2000, Temperature: 0.2},
		Cache:  CacheConfig{Enabled: true, Size: 128},
	}
}

func TestLoadConfig(t *testing.T) {
	configPath := writeConfig(t, `
server:
  port: 9000
  mode: "debug"
logging:
  level: "debug"
  format: "text"
  output: "stdout"
history:
  enabled: true
  storage_type: "sqlite"
  db_path: "./history.db"
generation:
  mode: "llm"
  max_fix_passes: 3
  default_environment: "staging"
openai:
  apikey: "sk-test-key"  # pragma: allowlist secret
  model: "gpt-4o"
  max_tokens: 1500
  temperature: 0.4
github:
  owner: "acme"
  repo: "infra"
  directory: "ansible"
cache:
  enabled: true
  size: 64
`)

	config, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if config.Server.Port != 9000 {
		t.Errorf("Expected port 9000, got %d", config.Server.Port)
	}
	if config.Logging.Format != "text" {
		t.Errorf("Expected log format 'text', got '%s'", config.Logging.Format)
	}
	if config.History.StorageType != "sqlite" {
		t.Errorf("Expected storage type 'sqlite', got '%s'", config.History.StorageType)
	}
	if config.Generation.Mode != GenerationModeLLM {
		t.Errorf("Expected generation mode 'llm', got '%s'", config.Generation.Mode)
	}
	if config.Generation.MaxFixPasses != 3 {
		t.Errorf("Expected 3 fix passes, got %d", config.Generation.MaxFixPasses)
	}
	if config.Generation.DefaultEnvironment != "staging" {
		t.Errorf("Expected default environment 'staging', got '%s'", config.Generation.DefaultEnvironment)
	}
	if config.OpenAI.APIKey != "sk-test-key" {
		t.Errorf("Expected OpenAI API key 'sk-test-key', got '%s'", config.OpenAI.APIKey)
	}
	if config.OpenAI.Temperature != 0.4 {
		t.Errorf("Expected temperature 0.4, got %f", config.OpenAI.Temperature)
	}
	if !config.GitHub.Enabled() {
		t.Error("Expected GitHub target to be enabled")
	}
	if config.GitHub.Branch != "main" {
		t.Errorf("Expected default branch 'main', got '%s'", config.GitHub.Branch)
	}
	if config.GitHub.Directory != "ansible" {
		t.Errorf("Expected directory 'ansible', got '%s'", config.GitHub.Directory)
	}
	if config.Cache.Size != 64 {
		t.Errorf("Expected cache size 64, got %d", config.Cache.Size)
	}
}

func TestEnvironmentVariableOverrides(t *testing.T) {
	configPath := writeConfig(t, `
openai:
  apikey: "sk-default-key"
logging:
  level: "info"
  format: "json"
`)

	t.Setenv("OPENAI_API_KEY", "sk-env-key")
	t.Setenv("GITHUB_TOKEN", "ghp-env-token")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("PORT", "9090")
	t.Setenv("PLAYBOOK_ASSISTANT_GENERATION_MAX_FIX_PASSES", "7")

	config, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if config.OpenAI.APIKey != "sk-env-key" {
		t.Errorf("Expected OpenAI API key from env 'sk-env-key', got '%s'", config.OpenAI.APIKey)
	}
	if config.GitHub.Token != "ghp-env-token" {
		t.Errorf("Expected GitHub token from env, got '%s'", config.GitHub.Token)
	}
	if config.Logging.Level != "debug" {
		t.Errorf("Expected log level from env 'debug', got '%s'", config.Logging.Level)
	}
	if config.Logging.Format != "text" {
		t.Errorf("Expected log format from env 'text', got '%s'", config.Logging.Format)
	}
	if config.Server.Port != 9090 {
		t.Errorf("Expected port from env 9090, got %d", config.Server.Port)
	}
	if config.Generation.MaxFixPasses != 7 {
		t.Errorf("Expected prefixed env override 7, got %d", config.Generation.MaxFixPasses)
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name          string
		mutate        func(*Config)
		expectedError bool
		missingField  bool
		errorContains string
	}{
		{
			name:   "Valid configuration",
			mutate: func(*Config) {},
		},
		{
			name:          "Invalid port",
			mutate:        func(c *Config) { c.Server.Port = 70000 },
			expectedError: true,
			errorContains: "server.port",
		},
		{
			name:          "Invalid server mode",
			mutate:        func(c *Config) { c.Server.Mode = "turbo" },
			expectedError: true,
			errorContains: "server.mode",
		},
		{
			name:          "Invalid log level",
			mutate:        func(c *Config) { c.Logging.Level = "verbose" },
			expectedError: true,
			errorContains: "logging.level",
		},
		{
			name:          "Invalid log format",
			mutate:        func(c *Config) { c.Logging.Format = "xml" },
			expectedError: true,
			errorContains: "logging.format",
		},
		{
			name:          "File output without path",
			mutate:        func(c *Config) { c.Logging.Output = "file"; c.Logging.FilePath = "" },
			expectedError: true,
			missingField:  true,
			errorContains: "logging.file_path",
		},
		{
			name:          "Invalid storage type",
			mutate:        func(c *Config) { c.History.StorageType = "redis" },
			expectedError: true,
			errorContains: "history.storage_type",
		},
		{
			name:   "Storage type ignored when history disabled",
			mutate: func(c *Config) { c.History.Enabled = false; c.History.StorageType = "redis" },
		},
		{
			name:          "LLM mode without API key",
			mutate:        func(c *Config) { c.Generation.Mode = GenerationModeLLM },
			expectedError: true,
			missingField:  true,
			errorContains: "openai.apikey",
		},
		{
			name: "LLM mode with API key",
			mutate: func(c *Config) {
				c.Generation.Mode = GenerationModeLLM
				c.OpenAI.APIKey = "sk-test" // pragma: allowlist secret
			},
		},
		{
			name:          "Unknown generation mode",
			mutate:        func(c *Config) { c.Generation.Mode = "magic" },
			expectedError: true,
			errorContains: "generation.mode",
		},
		{
			name:          "Zero fix passes",
			mutate:        func(c *Config) { c.Generation.MaxFixPasses = 0 },
			expectedError: true,
			errorContains: "generation.max_fix_passes",
		},
		{
			name:          "Temperature out of range",
			mutate:        func(c *Config) { c.OpenAI.Temperature = 2.5 },
			expectedError: true,
			errorContains: "openai.temperature",
		},
		{
			name:          "Enabled cache without size",
			mutate:        func(c *Config) { c.Cache.Size = 0 },
			expectedError: true,
			errorContains: "cache.size",
		},
		{
			name:          "GitHub owner without repo",
			mutate:        func(c *Config) { c.GitHub.Owner = "acme" },
			expectedError: true,
			missingField:  true,
			errorContains: "github.repo",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := validConfig()
			tt.mutate(&config)

			err := validateConfig(&config)
			if !tt.expectedError {
				if err != nil {
					t.Errorf("Expected no error, got: %v", err)
				}
				return
			}

			if err == nil {
				t.Fatal("Expected validation error, got nil")
			}
			if !strings.Contains(err.Error(), tt.errorContains) {
				t.Errorf("Expected error to contain '%s', got: %v", tt.errorContains, err)
			}
			if tt.missingField && !errors.Is(err, ErrMissingRequiredField) {
				t.Errorf("Expected ErrMissingRequiredField, got: %v", err)
			}
			if !tt.missingField && !errors.Is(err, ErrInvalidConfigValue) {
				t.Errorf("Expected ErrInvalidConfigValue, got: %v", err)
			}
		})
	}
}

func TestValidationAggregatesErrors(t *testing.T) {
	config := validConfig()
	config.Server.Port = 0
	config.Logging.Level = "loud"

	err := validateConfig(&config)
	if err == nil {
		t.Fatal("Expected validation error, got nil")
	}
	if !strings.Contains(err.Error(), "server.port") || !strings.Contains(err.Error(), "logging.level") {
		t.Errorf("Expected both fields in error, got: %v", err)
	}
}

func TestMaskSensitiveValues(t *testing.T) {
	config := &Config{
		OpenAI: OpenAIConfig{APIKey: "sk-1234567890abcdef"}, // pragma: allowlist secret
		GitHub: GitHubConfig{Token: "ghp_abcdefghijkl"},    // pragma: allowlist secret
	}

	masked := config.MaskSensitiveValues()

	if masked.OpenAI.APIKey != "sk-12345***********" {
		t.Errorf("Expected masked API key 'sk-12345***********', got '%s'", masked.OpenAI.APIKey)
	}
	if masked.GitHub.Token != "ghp_abcd********" {
		t.Errorf("Expected masked token 'ghp_abcd********', got '%s'", masked.GitHub.Token)
	}
	if config.OpenAI.APIKey != "sk-1234567890abcdef" {
		t.Error("Original config was modified")
	}
}

func TestConfigPathEnvironmentVariable(t *testing.T) {
	configPath := writeConfig(t, `
server:
  port: 7070
`)
	t.Setenv("CONFIG_PATH", configPath)

	config, err := Load("")
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if config.Server.Port != 7070 {
		t.Errorf("Expected port 7070 from CONFIG_PATH file, got %d", config.Server.Port)
	}

	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := Load(""); err == nil {
		t.Error("Expected error for missing CONFIG_PATH file")
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("Expected error for missing config file")
	}
	if !strings.Contains(err.Error(), "does not exist") {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestLoadWithOptions(t *testing.T) {
	configPath := writeConfig(t, `
generation:
  mode: "llm"
`)

	if _, err := LoadWithOptions(LoadOptions{ConfigPath: configPath, ValidateRequired: true}); err == nil {
		t.Error("Expected validation error for llm mode without API key")
	}

	config, err := LoadWithOptions(LoadOptions{ConfigPath: configPath, ValidateRequired: false})
	if err != nil {
		t.Fatalf("Expected no error when validation is skipped, got: %v", err)
	}
	if config.Generation.Mode != GenerationModeLLM {
		t.Errorf("Expected generation mode 'llm', got '%s'", config.Generation.Mode)
	}
}

func TestDefaultValues(t *testing.T) {
	configPath := writeConfig(t, "{}\n")

	config, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if config.Server.Port != 8080 {
		t.Errorf("Expected default port 8080, got %d", config.Server.Port)
	}
	if config.Logging.Level != "info" || config.Logging.Format != "json" || config.Logging.Output != "stdout" {
		t.Errorf("Unexpected logging defaults: %+v", config.Logging)
	}
	if config.History.StorageType != "file" {
		t.Errorf("Expected default storage type 'file', got '%s'", config.History.StorageType)
	}
	if config.Generation.Mode != GenerationModeTemplate {
		t.Errorf("Expected default mode 'template', got '%s'", config.Generation.Mode)
	}
	if config.Generation.MaxFixPasses != 5 {
		t.Errorf("Expected default max fix passes 5, got %d", config.Generation.MaxFixPasses)
	}
	if config.OpenAI.Model != "gpt-4o" {
		t.Errorf("Expected default model 'gpt-4o', got '%s'", config.OpenAI.Model)
	}
	if config.GitHub.Enabled() {
		t.Error("Expected GitHub target to be disabled by default")
	}
	if !config.Cache.Enabled || config.Cache.Size != 512 {
		t.Errorf("Unexpected cache defaults: %+v", config.Cache)
	}
}

func TestGetEnvironment(t *testing.T) {
	t.Setenv("ENVIRONMENT", "")
	t.Setenv("ENV", "")
	if env := getEnvironment(); env != "development" {
		t.Errorf("Expected 'development', got '%s'", env)
	}

	t.Setenv("ENV", "staging")
	if env := getEnvironment(); env != "staging" {
		t.Errorf("Expected 'staging', got '%s'", env)
	}

	t.Setenv("ENVIRONMENT", "production")
	if env := getEnvironment(); env != "production" {
		t.Errorf("Expected 'production', got '%s'", env)
	}
}

func TestValidationError(t *testing.T) {
	err := ValidationError{Field: "test.field", Message: "test message"}
	expected := "configuration validation failed for field 'test.field': test message"
	if err.Error() != expected {
		t.Errorf("Expected error message '%s', got '%s'", expected, err.Error())
	}
}

func TestMaskValue(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"", ""},
		{"short", "*****"},
		{"exactly8", "********"},
		{"longer-secret", "longer-s*****"},
	}

	for _, tt := range tests {
		if result := maskValue(tt.input); result != tt.expected {
			t.Errorf("maskValue(%q) = %q, expected %q", tt.input, result, tt.expected)
		}
	}
}

func TestContains(t *testing.T) {
	slice := []string{"a", "b", "c"}
	if !contains(slice, "b") {
		t.Error("Expected slice to contain 'b'")
	}
	if contains(slice, "d") {
		t.Error("Expected slice not to contain 'd'")
	}
}

func TestWatchConfig(t *testing.T) {
	configPath := writeConfig(t, `
server:
  port: 8081
`)

	reloaded := make(chan *Config, 4)
	notify := func(c *Config) {
		select {
		case reloaded <- c:
		default:
		}
	}
	if err := WatchConfig(configPath, zap.NewNop(), notify); err != nil {
		t.Fatalf("Failed to watch config: %v", err)
	}

	if err := os.WriteFile(configPath, []byte("server:\n  port: 8082\n"), 0644); err != nil {
		t.Fatalf("Failed to rewrite config: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case c := <-reloaded:
			if c.Server.Port == 8082 {
				return
			}
		case <-deadline:
			t.Fatal("Timed out waiting for config reload")
		}
	}
}

func TestWatchConfigMissingFile(t *testing.T) {
	err := WatchConfig(filepath.Join(t.TempDir(), "missing.yaml"), nil, func(*Config) {})
	if err == nil {
		t.Error("Expected error when watching a missing file")
	}
}
