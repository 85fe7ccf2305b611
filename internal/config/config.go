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

// Package config loads the playbook assistant configuration from a YAML file
// and environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	// ErrMissingRequiredField is returned when a required configuration field is missing
	ErrMissingRequiredField = errors.New("missing required configuration field")
	// ErrInvalidConfigValue is returned when a configuration value is invalid
	ErrInvalidConfigValue = errors.New("invalid configuration value")
)

// EnvPrefix prefixes the automatic environment overrides (PLAYBOOK_ASSISTANT_SERVER_PORT, ...)
const EnvPrefix = "PLAYBOOK_ASSISTANT"

// Generation modes
const (
	GenerationModeTemplate = "template"
	GenerationModeLLM      = "llm"
)

// Config represents the complete application configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	History    HistoryConfig    `mapstructure:"history"`
	Generation GenerationConfig `mapstructure:"generation"`
	OpenAI     OpenAIConfig     `mapstructure:"openai"`
	GitHub     GitHubConfig     `mapstructure:"github"`
	Cache      CacheConfig      `mapstructure:"cache"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port           int    `mapstructure:"port"`
	Mode           string `mapstructure:"mode"`
	RequestTimeout int    `mapstructure:"request_timeout_seconds"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	FilePath   string `mapstructure:"file_path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// HistoryConfig contains history storage configuration
type HistoryConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	StorageType string `mapstructure:"storage_type"`
	FilePath    string `mapstructure:"file_path"`
	DBPath      string `mapstructure:"db_path"`
}

// GenerationConfig controls how playbooks are produced
type GenerationConfig struct {
	Mode               string `mapstructure:"mode"`
	LLMFallback        bool   `mapstructure:"llm_fallback"`
	MaxFixPasses       int    `mapstructure:"max_fix_passes"`
	DefaultEnvironment string `mapstructure:"default_environment"`
}

// OpenAIConfig contains OpenAI API configuration
type OpenAIConfig struct {
	APIKey      string  `mapstructure:"apikey"`
	Endpoint    string  `mapstructure:"endpoint"`
	Model       string  `mapstructure:"model"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float64 `mapstructure:"temperature"`
}

// GitHubConfig contains the repository generated playbooks are committed to
type GitHubConfig struct {
	Token     string `mapstructure:"token"`
	Owner     string `mapstructure:"owner"`
	Repo      string `mapstructure:"repo"`
	Branch    string `mapstructure:"branch"`
	Directory string `mapstructure:"directory"`
	BaseURL   string `mapstructure:"base_url"`
}

// Enabled reports whether a target repository is configured
func (g GitHubConfig) Enabled() bool {
	return g.Owner != "" && g.Repo != ""
}

// CacheConfig contains the response cache settings
type CacheConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Size    int  `mapstructure:"size"`
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("configuration validation failed for field '%s': %s", e.Field, e.Message)
}

// LoadOptions contains options for configuration loading
type LoadOptions struct {
	ConfigPath       string
	Environment      string
	ValidateRequired bool
}

// Load loads configuration from file and environment variables.
// Environment variables take precedence over config file values.
func Load(configPath string) (*Config, error) {
	return LoadWithOptions(LoadOptions{
		ConfigPath:       configPath,
		Environment:      getEnvironment(),
		ValidateRequired: true,
	})
}

// LoadWithOptions loads configuration with additional options
func LoadWithOptions(opts LoadOptions) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if err := setConfigFile(v, opts.ConfigPath); err != nil {
		return nil, fmt.Errorf("failed to set config file: %w", err)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	setEnvironmentMappings(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if opts.ValidateRequired {
		if err := validateConfig(&config); err != nil {
			return nil, err
		}
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.request_timeout_seconds", 30)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.file_path", "./logs/playbook-assistant.log")
	v.SetDefault("logging.max_size_mb", 100)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age_days", 30)
	v.SetDefault("logging.compress", true)

	v.SetDefault("history.enabled", true)
	v.SetDefault("history.storage_type", "file")
	v.SetDefault("history.file_path", "./data/history.jsonl")
	v.SetDefault("history.db_path", "./data/history.db")

	v.SetDefault("generation.mode", GenerationModeTemplate)
	v.SetDefault("generation.llm_fallback", true)
	v.SetDefault("generation.max_fix_passes", 5)
	v.SetDefault("generation.default_environment", "production")

	v.SetDefault("openai.endpoint", "https://api.openai.com/v1")
	v.SetDefault("openai.model", "gpt-4o")
	v.SetDefault("openai.max_tokens", 2000)
	v.SetDefault("openai.temperature", 0.2)

	v.SetDefault("github.branch", "main")
	v.SetDefault("github.directory", "playbooks")

	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.size", 512)
}

// setConfigFile picks CONFIG_PATH, then configPath, then the default locations.
// An explicit path must exist; the default locations are optional.
func setConfigFile(v *viper.Viper, configPath string) error {
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		if _, err := os.Stat(envPath); err != nil {
			return fmt.Errorf("config file specified by CONFIG_PATH does not exist: %s", envPath)
		}
		v.SetConfigFile(envPath)
		return nil
	}

	if configPath != "" {
		if _, err := os.Stat(configPath); err != nil {
			return fmt.Errorf("config file does not exist: %s", configPath)
		}
		v.SetConfigFile(configPath)
		return nil
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")
	return nil
}

func setEnvironmentMappings(v *viper.Viper) {
	envMappings := map[string]string{
		"OPENAI_API_KEY":  "openai.apikey",
		"OPENAI_ENDPOINT": "openai.endpoint",
		"GITHUB_TOKEN":    "github.token",
		"GITHUB_OWNER":    "github.owner",
		"GITHUB_REPO":     "github.repo",
		"LOG_LEVEL":       "logging.level",
		"LOG_FORMAT":      "logging.format",
		"LOG_OUTPUT":      "logging.output",
		"PORT":            "server.port",
	}

	for envVar, configKey := range envMappings {
		if value := os.Getenv(envVar); value != "" {
			v.Set(configKey, value)
		}
	}
}

func validateConfig(config *Config) error {
	var errs []ValidationError
	var missing bool

	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		errs = append(errs, ValidationError{
			Field:   "server.port",
			Message: "port must be between 1 and 65535",
		})
	}

	validModes := []string{"debug", "release", "test"}
	if !contains(validModes, config.Server.Mode) {
		errs = append(errs, ValidationError{
			Field:   "server.mode",
			Message: fmt.Sprintf("server mode must be one of: %s", strings.Join(validModes, ", ")),
		})
	}

	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLogLevels, config.Logging.Level) {
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("log level must be one of: %s", strings.Join(validLogLevels, ", ")),
		})
	}

	validLogFormats := []string{"json", "text"}
	if !contains(validLogFormats, config.Logging.Format) {
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("log format must be one of: %s", strings.Join(validLogFormats, ", ")),
		})
	}

	validLogOutputs := []string{"stdout", "stderr", "file"}
	if !contains(validLogOutputs, config.Logging.Output) {
		errs = append(errs, ValidationError{
			Field:   "logging.output",
			Message: fmt.Sprintf("log output must be one of: %s", strings.Join(validLogOutputs, ", ")),
		})
	}
	if config.Logging.Output == "file" && config.Logging.FilePath == "" {
		missing = true
		errs = append(errs, ValidationError{
			Field:   "logging.file_path",
			Message: "file path is required when logging to a file",
		})
	}

	validStorageTypes := []string{"file", "sqlite"}
	if config.History.Enabled && !contains(validStorageTypes, config.History.StorageType) {
		errs = append(errs, ValidationError{
			Field:   "history.storage_type",
			Message: fmt.Sprintf("storage type must be one of: %s", strings.Join(validStorageTypes, ", ")),
		})
	}

	validGenerationModes := []string{GenerationModeTemplate, GenerationModeLLM}
	if !contains(validGenerationModes, config.Generation.Mode) {
		errs = append(errs, ValidationError{
			Field:   "generation.mode",
			Message: fmt.Sprintf("generation mode must be one of: %s", strings.Join(validGenerationModes, ", ")),
		})
	}

	if config.Generation.Mode == GenerationModeLLM && config.OpenAI.APIKey == "" {
		missing = true
		errs = append(errs, ValidationError{
			Field:   "openai.apikey",
			Message: "OpenAI API key is required in llm mode. Set via config file or OPENAI_API_KEY environment variable",
		})
	}

	if config.Generation.MaxFixPasses <= 0 {
		errs = append(errs, ValidationError{
			Field:   "generation.max_fix_passes",
			Message: "max_fix_passes must be greater than 0",
		})
	}

	if config.OpenAI.MaxTokens <= 0 {
		errs = append(errs, ValidationError{
			Field:   "openai.max_tokens",
			Message: "max_tokens must be greater than 0",
		})
	}

	if config.OpenAI.Temperature < 0 || config.OpenAI.Temperature > 2 {
		errs = append(errs, ValidationError{
			Field:   "openai.temperature",
			Message: "temperature must be between 0 and 2",
		})
	}

	if config.Cache.Enabled && config.Cache.Size <= 0 {
		errs = append(errs, ValidationError{
			Field:   "cache.size",
			Message: "cache size must be greater than 0 when the cache is enabled",
		})
	}

	if (config.GitHub.Owner == "") != (config.GitHub.Repo == "") {
		missing = true
		errs = append(errs, ValidationError{
			Field:   "github.repo",
			Message: "github owner and repo must be set together",
		})
	}

	if config.History.Enabled && config.History.StorageType == "sqlite" {
		if err := validateDirectoryExists(filepath.Dir(config.History.DBPath)); err != nil && !os.IsNotExist(err) {
			errs = append(errs, ValidationError{
				Field:   "history.db_path",
				Message: fmt.Sprintf("history database directory is not usable: %v", err),
			})
		}
	}

	if len(errs) == 0 {
		return nil
	}

	sentinel := ErrInvalidConfigValue
	if missing {
		sentinel = ErrMissingRequiredField
	}
	messages := make([]string, 0, len(errs))
	for _, err := range errs {
		messages = append(messages, err.Error())
	}
	return fmt.Errorf("%w:\n%s", sentinel, strings.Join(messages, "\n"))
}

// MaskSensitiveValues returns a copy of the config with sensitive values masked
func (c *Config) MaskSensitiveValues() *Config {
	masked := *c

	if masked.OpenAI.APIKey != "" {
		masked.OpenAI.APIKey = maskValue(masked.OpenAI.APIKey)
	}
	if masked.GitHub.Token != "" {
		masked.GitHub.Token = maskValue(masked.GitHub.Token)
	}

	return &masked
}

// maskValue masks sensitive values, showing only the first 8 characters
func maskValue(value string) string {
	if len(value) <= 8 {
		return strings.Repeat("*", len(value))
	}
	return value[:8] + strings.Repeat("*", len(value)-8)
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

func validateDirectoryExists(path string) error {
	if path == "" || path == "." {
		return nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", path)
	}

	return nil
}

// getEnvironment returns the current environment (development, production, etc.)
func getEnvironment() string {
	if env := os.Getenv("ENVIRONMENT"); env != "" {
		return env
	}
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "development"
}

// WatchConfig reloads the configuration whenever its file changes and passes
// every valid reload to callback
func WatchConfig(configPath string, logger *zap.Logger, callback func(*Config)) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	v := viper.New()
	if err := setConfigFile(v, configPath); err != nil {
		return err
	}
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		logger.Info("Config file changed", zap.String("file", e.Name), zap.String("op", e.Op.String()))

		config, err := LoadWithOptions(LoadOptions{
			ConfigPath:       v.ConfigFileUsed(),
			Environment:      getEnvironment(),
			ValidateRequired: true,
		})
		if err != nil {
			logger.Warn("Failed to reload config", zap.Error(err))
			return
		}

		callback(config)
	})
	v.WatchConfig()

	return nil
}
