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

package main

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/your-org/playbook-assistant/internal/gitrepo"
	"github.com/your-org/playbook-assistant/internal/health"
	"github.com/your-org/playbook-assistant/internal/history"
	"github.com/your-org/playbook-assistant/internal/metrics"
	"github.com/your-org/playbook-assistant/internal/pipeline"
	"github.com/your-org/playbook-assistant/internal/playbook"
	"github.com/your-org/playbook-assistant/internal/resilience"
	"github.com/your-org/playbook-assistant/internal/templates"
)

const (
	// MaxPromptLength bounds prompt size accepted by the API
	MaxPromptLength = 4000
	// MaxPlaybookBytes bounds playbook size accepted by the API
	MaxPlaybookBytes = 256 * 1024
	// DefaultRequestTimeout applies when the config sets none
	DefaultRequestTimeout = 30 * time.Second
	// DefaultCommitMessage is used when a commit request names none
	DefaultCommitMessage = "Add generated playbook"
)

// PromptRequest represents the JSON payload for prompt endpoints
type PromptRequest struct {
	Prompt string `json:"prompt"`
}

// PlaybookRequest represents the JSON payload for playbook endpoints
type PlaybookRequest struct {
	Playbook string `json:"playbook"`
	All      bool   `json:"all,omitempty"`
}

// GenerateRequest represents the JSON payload for playbook generation
type GenerateRequest struct {
	Prompt      string `json:"prompt"`
	Environment string `json:"environment,omitempty"`
	Tier        string `json:"tier,omitempty"`
}

// CommitRequest represents the JSON payload for repository commits
type CommitRequest struct {
	Name     string `json:"name"`
	Playbook string `json:"playbook"`
	Message  string `json:"message,omitempty"`
}

// CommitResponse is returned after a successful commit
type CommitResponse struct {
	Commit string `json:"commit"`
	Ref    string `json:"ref"`
	Path   string `json:"path"`
}

// ValidationErrorResponse is an ErrorResponse carrying the diagnostics that
// blocked the request
type ValidationErrorResponse struct {
	resilience.ErrorResponse
	Diagnostics []playbook.Diagnostic `json:"diagnostics"`
}

// FixResponse is returned by the fix endpoint
type FixResponse struct {
	Playbook   string          `json:"playbook"`
	Validation playbook.Result `json:"validation"`
	Applied    []string        `json:"applied"`
	Passes     int             `json:"passes"`
}

// HistoryStore is the part of the history store the API serves
type HistoryStore interface {
	List(ctx context.Context, limit int) ([]history.Record, error)
	Remove(ctx context.Context, id string) error
	Stats(ctx context.Context) (map[string]int, error)
}

// Committer pushes playbooks to the remote repository
type Committer interface {
	Commit(ctx context.Context, files []gitrepo.File, message string) (string, error)
	Ref() string
}

// Server holds the API dependencies
type Server struct {
	pipeline  *pipeline.Pipeline
	history   HistoryStore
	committer Committer
	health    *health.Manager
	metrics   *metrics.Metrics
	gatherer  prometheus.Gatherer
	cache     *lru.Cache[string, interface{}]
	timeout   time.Duration
	logger    *zap.Logger
}

// ServerOptions configures NewServer. Nil collaborators disable their routes.
type ServerOptions struct {
	Pipeline  *pipeline.Pipeline
	History   HistoryStore
	Committer Committer
	Health    *health.Manager
	Metrics   *metrics.Metrics
	Gatherer  prometheus.Gatherer
	CacheSize int
	Timeout   time.Duration
	Logger    *zap.Logger
}

// NewServer creates the API server
func NewServer(opts ServerOptions) (*Server, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		pipeline:  opts.Pipeline,
		history:   opts.History,
		committer: opts.Committer,
		health:    opts.Health,
		metrics:   opts.Metrics,
		gatherer:  opts.Gatherer,
		timeout:   opts.Timeout,
		logger:    logger,
	}
	if s.pipeline == nil {
		s.pipeline = pipeline.New(pipeline.Options{}, nil, nil, nil, opts.Metrics, logger)
	}
	if s.health == nil {
		s.health = health.NewManager("playbook-assistant", Version, logger)
	}
	if s.timeout <= 0 {
		s.timeout = DefaultRequestTimeout
	}
	if opts.CacheSize > 0 {
		cache, err := lru.New[string, interface{}](opts.CacheSize)
		if err != nil {
			return nil, err
		}
		s.cache = cache
	}
	return s, nil
}

// Router builds the gin engine
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestID(), s.metrics.Middleware(), s.accessLog())

	router.GET("/health", s.health.Handler())
	if s.gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}

	v1 := router.Group("/v1")
	v1.POST("/prompts/classify", s.handleClassifyPrompt)
	v1.POST("/prompts/validate", s.handleValidatePrompt)
	v1.POST("/deployment/classify", s.handleClassifyDeployment)
	v1.POST("/playbooks/validate", s.handleValidatePlaybook)
	v1.POST("/playbooks/fix", s.handleFixPlaybook)
	v1.POST("/playbooks/generate", s.handleGenerate)
	v1.POST("/playbooks/commit", s.handleCommit)
	v1.GET("/history", s.handleListHistory)
	v1.GET("/history/stats", s.handleHistoryStats)
	v1.DELETE("/history/:id", s.handleDeleteHistory)

	return router
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(resilience.RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
			c.Request.Header.Set(resilience.RequestIDHeader, id)
		}
		c.Header(resilience.RequestIDHeader, id)
		c.Next()
	}
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("Request handled",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.String("request_id", c.GetHeader(resilience.RequestIDHeader)),
			zap.Duration("latency", time.Since(start)))
	}
}

func (s *Server) bindPrompt(c *gin.Context) (string, bool) {
	var req PromptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		resilience.WriteError(c, s.logger, resilience.NewBadRequestError("Invalid request format", err))
		return "", false
	}
	if len(req.Prompt) > MaxPromptLength {
		resilience.WriteError(c, s.logger, resilience.NewBadRequestError(
			"Prompt is too long (maximum "+strconv.Itoa(MaxPromptLength)+" characters)", nil))
		return "", false
	}
	return req.Prompt, true
}

func (s *Server) bindPlaybook(c *gin.Context) (PlaybookRequest, bool) {
	var req PlaybookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		resilience.WriteError(c, s.logger, resilience.NewBadRequestError("Invalid request format", err))
		return req, false
	}
	if strings.TrimSpace(req.Playbook) == "" {
		resilience.WriteError(c, s.logger, resilience.NewBadRequestError("Playbook is required", nil))
		return req, false
	}
	if len(req.Playbook) > MaxPlaybookBytes {
		resilience.WriteError(c, s.logger, resilience.NewBadRequestError("Playbook is too large", nil))
		return req, false
	}
	return req, true
}

// cached serves the pure endpoints from the LRU cache
func (s *Server) cached(route, input string, compute func() interface{}) interface{} {
	if s.cache == nil {
		return compute()
	}
	key := route + "\x00" + input
	if v, ok := s.cache.Get(key); ok {
		s.metrics.ObserveCache(true)
		return v
	}
	s.metrics.ObserveCache(false)
	v := compute()
	s.cache.Add(key, v)
	return v
}

func (s *Server) handleClassifyPrompt(c *gin.Context) {
	prompt, ok := s.bindPrompt(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s.cached("classify", prompt, func() interface{} {
		return pipeline.ClassifyPrompt(prompt)
	}))
}

func (s *Server) handleValidatePrompt(c *gin.Context) {
	prompt, ok := s.bindPrompt(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s.cached("validate", prompt, func() interface{} {
		return pipeline.ValidatePrompt(prompt)
	}))
}

func (s *Server) handleClassifyDeployment(c *gin.Context) {
	prompt, ok := s.bindPrompt(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s.cached("deployment", prompt, func() interface{} {
		return pipeline.ClassifyDeployment(prompt)
	}))
}

func (s *Server) handleValidatePlaybook(c *gin.Context) {
	req, ok := s.bindPlaybook(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s.cached("lint", req.Playbook, func() interface{} {
		result, _ := s.pipeline.Lint(req.Playbook)
		return result
	}))
}

func (s *Server) handleFixPlaybook(c *gin.Context) {
	req, ok := s.bindPlaybook(c)
	if !ok {
		return
	}
	out, err := s.pipeline.Fix(req.Playbook, req.All)
	if err != nil {
		resilience.WriteError(c, s.logger, resilience.NewBadRequestError("Playbook is required", err))
		return
	}
	c.JSON(http.StatusOK, FixResponse{
		Playbook:   out.Text,
		Validation: out.Validation,
		Applied:    out.Applied,
		Passes:     out.Passes,
	})
}

func (s *Server) handleGenerate(c *gin.Context) {
	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		resilience.WriteError(c, s.logger, resilience.NewBadRequestError("Invalid request format", err))
		return
	}
	if len(req.Prompt) > MaxPromptLength {
		resilience.WriteError(c, s.logger, resilience.NewBadRequestError("Prompt is too long", nil))
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.timeout)
	defer cancel()

	result, err := s.pipeline.Generate(ctx, pipeline.Request{
		Prompt:      req.Prompt,
		Environment: req.Environment,
		Tier:        req.Tier,
	})
	if err != nil {
		resilience.WriteError(c, s.logger, generationError(err))
		return
	}

	status := http.StatusOK
	if result.Rejected {
		status = http.StatusUnprocessableEntity
	}
	c.JSON(status, result)
}

func generationError(err error) error {
	var serviceErr *resilience.ServiceError
	if errors.As(err, &serviceErr) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || errors.Is(err, resilience.ErrCircuitBreakerOpen) {
		return err
	}
	if errors.Is(err, templates.ErrNoTemplate) {
		return resilience.NewUnprocessableError("No playbook template matches this request", err)
	}
	return resilience.NewDependencyFailureError("Playbook generation failed", err)
}

func (s *Server) handleCommit(c *gin.Context) {
	if s.committer == nil {
		resilience.WriteError(c, s.logger, resilience.NewServiceUnavailableError("Repository is not configured", gitrepo.ErrNotConfigured))
		return
	}

	var req CommitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		resilience.WriteError(c, s.logger, resilience.NewBadRequestError("Invalid request format", err))
		return
	}
	name := commitFileName(req.Name)
	if name == "" || strings.TrimSpace(req.Playbook) == "" {
		resilience.WriteError(c, s.logger, resilience.NewBadRequestError("Name and playbook are required", gitrepo.ErrNoFiles))
		return
	}

	result, _ := s.pipeline.Lint(req.Playbook)
	if !result.Valid {
		serviceErr := resilience.NewUnprocessableError("Playbook has validation errors", nil)
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, ValidationErrorResponse{
			ErrorResponse: serviceErr.ToErrorResponse(c.GetHeader(resilience.RequestIDHeader)),
			Diagnostics:   result.Diagnostics,
		})
		return
	}

	message := req.Message
	if message == "" {
		message = DefaultCommitMessage + " " + name
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.timeout)
	defer cancel()

	sha, err := s.committer.Commit(ctx, []gitrepo.File{{Path: name, Content: req.Playbook}}, message)
	s.metrics.ObserveCommit(err)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			resilience.WriteError(c, s.logger, err)
			return
		}
		resilience.WriteError(c, s.logger, resilience.NewDependencyFailureError("Failed to commit playbook", err))
		return
	}

	c.JSON(http.StatusCreated, CommitResponse{Commit: sha, Ref: s.committer.Ref(), Path: name})
}

// commitFileName keeps the base name and ensures a YAML extension
func commitFileName(name string) string {
	name = strings.TrimSpace(name)
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	if name == "" || name == "." || name == ".." {
		return ""
	}
	if !strings.HasSuffix(name, ".yml") && !strings.HasSuffix(name, ".yaml") {
		name += ".yml"
	}
	return name
}

func (s *Server) handleListHistory(c *gin.Context) {
	if s.history == nil {
		resilience.WriteError(c, s.logger, resilience.NewServiceUnavailableError("History is disabled", nil))
		return
	}

	limit := history.DefaultListLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			resilience.WriteError(c, s.logger, resilience.NewBadRequestError("limit must be a positive integer", err))
			return
		}
		limit = n
	}

	records, err := s.history.List(c.Request.Context(), limit)
	if err != nil {
		resilience.WriteError(c, s.logger, resilience.NewInternalError("Failed to read history", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records, "count": len(records)})
}

func (s *Server) handleHistoryStats(c *gin.Context) {
	if s.history == nil {
		resilience.WriteError(c, s.logger, resilience.NewServiceUnavailableError("History is disabled", nil))
		return
	}

	stats, err := s.history.Stats(c.Request.Context())
	if err != nil {
		resilience.WriteError(c, s.logger, resilience.NewInternalError("Failed to read history stats", err))
		return
	}
	total := 0
	for _, n := range stats {
		total += n
	}
	c.JSON(http.StatusOK, gin.H{"contexts": stats, "total": total})
}

func (s *Server) handleDeleteHistory(c *gin.Context) {
	if s.history == nil {
		resilience.WriteError(c, s.logger, resilience.NewServiceUnavailableError("History is disabled", nil))
		return
	}

	id := c.Param("id")
	if err := s.history.Remove(c.Request.Context(), id); err != nil {
		if errors.Is(err, history.ErrNotFound) {
			resilience.WriteError(c, s.logger, resilience.NewNotFoundError("History record not found", err))
			return
		}
		resilience.WriteError(c, s.logger, resilience.NewInternalError("Failed to delete history record", err))
		return
	}
	c.Status(http.StatusNoContent)
}
