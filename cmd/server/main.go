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

// Package main provides the playbook assistant HTTP API. It classifies
// prompts, generates and validates Ansible playbooks, repairs them and
// commits them to a remote repository.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/your-org/playbook-assistant/internal/config"
	"github.com/your-org/playbook-assistant/internal/generator"
	"github.com/your-org/playbook-assistant/internal/gitrepo"
	"github.com/your-org/playbook-assistant/internal/health"
	"github.com/your-org/playbook-assistant/internal/history"
	"github.com/your-org/playbook-assistant/internal/logging"
	"github.com/your-org/playbook-assistant/internal/metrics"
	"github.com/your-org/playbook-assistant/internal/pipeline"
	"github.com/your-org/playbook-assistant/internal/templates"
)

// Version is reported by /health
const Version = "1.0.0"

// ShutdownTimeout bounds graceful shutdown
const ShutdownTimeout = 15 * time.Second

// dependencies holds initialized service dependencies
type dependencies struct {
	history   *history.Store
	generator *generator.OpenAIGenerator
	committer *gitrepo.Committer
	registry  *prometheus.Registry
	metrics   *metrics.Metrics
	templates *templates.Registry
}

func (d *dependencies) close(logger *zap.Logger) {
	if d.history != nil {
		if err := d.history.Close(); err != nil {
			logger.Warn("Failed to close history store", zap.Error(err))
		}
	}
}

func main() {
	cfg, err := config.Load("")
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, level, err := logging.NewWithLevel(cfg.Logging)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	masked := cfg.MaskSensitiveValues()
	logger.Info("Configuration loaded successfully",
		zap.String("service", "playbook-assistant"),
		zap.Int("port", masked.Server.Port),
		zap.String("generation_mode", masked.Generation.Mode),
		zap.Bool("history_enabled", masked.History.Enabled),
		zap.String("history_storage", masked.History.StorageType),
		zap.String("openai_api_key", masked.OpenAI.APIKey),
		zap.Bool("github_enabled", masked.GitHub.Enabled()),
		zap.String("github_token", masked.GitHub.Token),
	)

	if err := config.WatchConfig(os.Getenv("CONFIG_PATH"), logger, func(updated *config.Config) {
		level.SetLevel(logging.ParseLevel(updated.Logging.Level))
		logger.Info("Configuration reloaded", zap.String("log_level", updated.Logging.Level))
	}); err != nil {
		logger.Debug("Config hot reload disabled", zap.Error(err))
	}

	deps, err := initializeDependencies(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize dependencies", zap.Error(err))
	}
	defer deps.close(logger)

	gin.SetMode(cfg.Server.Mode)

	server, err := newServerFromConfig(cfg, deps, logger)
	if err != nil {
		logger.Fatal("Failed to create server", zap.Error(err))
	}

	httpServer := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Server.Port),
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting playbook assistant", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("Server shutdown failed", zap.Error(err))
	}
}

// initializeDependencies initializes all service dependencies
func initializeDependencies(cfg *config.Config, logger *zap.Logger) (*dependencies, error) {
	logger.Info("Initializing service dependencies")

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	deps := &dependencies{
		registry:  registry,
		metrics:   metrics.New(registry),
		templates: templates.DefaultRegistry(),
	}

	if cfg.History.Enabled {
		store, err := history.NewStore(history.Config{
			StorageType: cfg.History.StorageType,
			FilePath:    cfg.History.FilePath,
			DBPath:      cfg.History.DBPath,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize history store: %w", err)
		}
		deps.history = store
	}

	if cfg.OpenAI.APIKey != "" {
		gen, err := generator.NewOpenAIGenerator(generator.Config{
			APIKey:      cfg.OpenAI.APIKey,
			BaseURL:     cfg.OpenAI.Endpoint,
			Model:       cfg.OpenAI.Model,
			MaxTokens:   cfg.OpenAI.MaxTokens,
			Temperature: float32(cfg.OpenAI.Temperature),
		}, logger)
		if err != nil {
			deps.close(logger)
			return nil, fmt.Errorf("failed to initialize generator: %w", err)
		}
		deps.generator = gen
	}

	if cfg.GitHub.Enabled() {
		committer, err := gitrepo.NewCommitter(gitrepo.Config{
			Token:     cfg.GitHub.Token,
			Owner:     cfg.GitHub.Owner,
			Repo:      cfg.GitHub.Repo,
			Branch:    cfg.GitHub.Branch,
			Directory: cfg.GitHub.Directory,
			BaseURL:   cfg.GitHub.BaseURL,
		}, logger)
		if err != nil {
			deps.close(logger)
			return nil, fmt.Errorf("failed to initialize repository committer: %w", err)
		}
		deps.committer = committer
	}

	return deps, nil
}

// newServerFromConfig wires the pipeline, health checks and API server
func newServerFromConfig(cfg *config.Config, deps *dependencies, logger *zap.Logger) (*Server, error) {
	var gen generator.Generator
	if deps.generator != nil {
		gen = deps.generator
	}
	var store pipeline.HistoryStore
	if deps.history != nil {
		store = deps.history
	}

	p := pipeline.New(pipeline.Options{
		Mode:               cfg.Generation.Mode,
		LLMFallback:        cfg.Generation.LLMFallback,
		MaxFixPasses:       cfg.Generation.MaxFixPasses,
		DefaultEnvironment: cfg.Generation.DefaultEnvironment,
	}, deps.templates, gen, store, deps.metrics, logger)

	healthManager := health.NewManager("playbook-assistant", Version, logger)
	setupHealthChecks(healthManager, deps)

	opts := ServerOptions{
		Pipeline: p,
		Health:   healthManager,
		Metrics:  deps.metrics,
		Gatherer: deps.registry,
		Timeout:  time.Duration(cfg.Server.RequestTimeout) * time.Second,
		Logger:   logger,
	}
	if deps.history != nil {
		opts.History = deps.history
	}
	if deps.committer != nil {
		opts.Committer = deps.committer
	}
	if cfg.Cache.Enabled {
		opts.CacheSize = cfg.Cache.Size
	}

	return NewServer(opts)
}

// setupHealthChecks registers a checker per configured dependency
func setupHealthChecks(manager *health.Manager, deps *dependencies) {
	registry := deps.templates
	manager.AddChecker("templates", health.CountChecker("templates", func() int {
		return len(registry.List())
	}))

	if deps.history != nil {
		manager.AddChecker("history", health.StoreChecker("history", deps.history.Ping))
	}
	if deps.generator != nil {
		manager.AddChecker("openai", health.BreakerChecker("openai", deps.generator.BreakerState))
	}
	if deps.committer != nil {
		manager.AddChecker("github", health.BreakerChecker("github", deps.committer.BreakerState))
	}
}
