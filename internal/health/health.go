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

// Package health aggregates dependency checks for the playbook assistant
package health

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/your-org/playbook-assistant/internal/resilience"
)

const (
	// StatusHealthy represents healthy status
	StatusHealthy = "healthy"
	// StatusUnhealthy represents unhealthy status
	StatusUnhealthy = "unhealthy"
	// StatusDegraded represents degraded status
	StatusDegraded = "degraded"
	// DefaultTimeout is the default timeout for health checks
	DefaultTimeout = 5 * time.Second
)

// CheckResult represents the result of a health check
type CheckResult struct {
	Status    string                 `json:"status"`
	Latency   time.Duration          `json:"latency"`
	Error     string                 `json:"error,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Response represents the complete health check response
type Response struct {
	Status       string                 `json:"status"`
	Service      string                 `json:"service"`
	Version      string                 `json:"version"`
	Uptime       string                 `json:"uptime"`
	Dependencies map[string]CheckResult `json:"dependencies"`
	Metadata     map[string]interface{} `json:"metadata"`
	Timestamp    time.Time              `json:"timestamp"`
}

// Checker interface for health checks
type Checker interface {
	Check(ctx context.Context) CheckResult
}

// CheckerFunc is a function adapter for the Checker interface
type CheckerFunc func(ctx context.Context) CheckResult

// Check implements the Checker interface
func (f CheckerFunc) Check(ctx context.Context) CheckResult {
	return f(ctx)
}

// Manager runs the registered checkers
type Manager struct {
	serviceName string
	version     string
	startTime   time.Time
	timeout     time.Duration
	logger      *zap.Logger

	mu       sync.RWMutex
	checkers map[string]Checker
}

// NewManager creates a new health check manager
func NewManager(serviceName, version string, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		serviceName: serviceName,
		version:     version,
		startTime:   time.Now(),
		checkers:    make(map[string]Checker),
		timeout:     DefaultTimeout,
		logger:      logger,
	}
}

// SetTimeout sets the timeout for health checks
func (m *Manager) SetTimeout(timeout time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timeout = timeout
}

// AddChecker adds a health checker
func (m *Manager) AddChecker(name string, checker Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers[name] = checker
}

// AddCheckerFunc adds a health checker function
func (m *Manager) AddCheckerFunc(name string, checkFunc func(ctx context.Context) CheckResult) {
	m.AddChecker(name, CheckerFunc(checkFunc))
}

// Names returns the registered checker names, sorted
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.checkers))
	for name := range m.checkers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Check runs all checkers concurrently and folds their statuses. Any
// unhealthy dependency makes the service unhealthy; otherwise any degraded
// dependency makes it degraded.
func (m *Manager) Check(ctx context.Context) Response {
	m.mu.RLock()
	timeout := m.timeout
	checkers := make(map[string]Checker, len(m.checkers))
	for name, c := range m.checkers {
		checkers[name] = c
	}
	m.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var (
		wg           sync.WaitGroup
		resultsMu    sync.Mutex
		dependencies = make(map[string]CheckResult, len(checkers))
	)
	for name, checker := range checkers {
		wg.Add(1)
		go func(name string, checker Checker) {
			defer wg.Done()
			start := time.Now()
			result := checker.Check(ctx)
			result.Latency = time.Since(start)
			result.Timestamp = time.Now()

			resultsMu.Lock()
			dependencies[name] = result
			resultsMu.Unlock()
		}(name, checker)
	}
	wg.Wait()

	overallStatus := StatusHealthy
	for name, result := range dependencies {
		switch result.Status {
		case StatusUnhealthy:
			overallStatus = StatusUnhealthy
			m.logger.Warn("Dependency unhealthy", zap.String("dependency", name), zap.String("error", result.Error))
		case StatusDegraded:
			if overallStatus != StatusUnhealthy {
				overallStatus = StatusDegraded
			}
		}
	}

	return Response{
		Status:       overallStatus,
		Service:      m.serviceName,
		Version:      m.version,
		Uptime:       time.Since(m.startTime).Round(time.Second).String(),
		Dependencies: dependencies,
		Metadata:     systemMetadata(),
		Timestamp:    time.Now(),
	}
}

// Handler serves the aggregated health response. Degraded still answers 200.
func (m *Manager) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		result := m.Check(c.Request.Context())

		statusCode := http.StatusOK
		if result.Status == StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}
		c.JSON(statusCode, result)
	}
}

func systemMetadata() map[string]interface{} {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	return map[string]interface{}{
		"go_version":   runtime.Version(),
		"goroutines":   runtime.NumGoroutine(),
		"memory_alloc": memStats.Alloc,
		"hostname":     hostname(),
		"process_id":   os.Getpid(),
	}
}

func hostname() string {
	name, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return name
}

// StoreChecker reports a storage backend through its ping function
func StoreChecker(backend string, ping func(ctx context.Context) error) Checker {
	return CheckerFunc(func(ctx context.Context) CheckResult {
		if err := ping(ctx); err != nil {
			return CheckResult{
				Status: StatusUnhealthy,
				Error:  fmt.Sprintf("storage ping failed: %v", err),
			}
		}
		return CheckResult{
			Status:   StatusHealthy,
			Metadata: map[string]interface{}{"backend": backend},
		}
	})
}

// BreakerChecker reports a remote dependency by its circuit breaker. An open
// circuit is degraded: template generation keeps working without it.
func BreakerChecker(name string, state func() resilience.CircuitState) Checker {
	return CheckerFunc(func(ctx context.Context) CheckResult {
		s := state()
		status := StatusHealthy
		if s != resilience.CircuitClosed {
			status = StatusDegraded
		}
		return CheckResult{
			Status:   status,
			Metadata: map[string]interface{}{"dependency": name, "circuit": s.String()},
		}
	})
}

// CountChecker is unhealthy when count reports zero items
func CountChecker(what string, count func() int) Checker {
	return CheckerFunc(func(ctx context.Context) CheckResult {
		n := count()
		if n == 0 {
			return CheckResult{Status: StatusUnhealthy, Error: fmt.Sprintf("no %s loaded", what)}
		}
		return CheckResult{Status: StatusHealthy, Metadata: map[string]interface{}{what: n}}
	})
}

// ExternalServiceChecker wraps a remote probe. Timeouts and refused
// connections are reported as degraded.
func ExternalServiceChecker(name string, probe func(ctx context.Context) error) Checker {
	return CheckerFunc(func(ctx context.Context) CheckResult {
		if err := probe(ctx); err != nil {
			status := StatusUnhealthy
			if isTemporaryError(err) {
				status = StatusDegraded
			}
			return CheckResult{
				Status: status,
				Error:  fmt.Sprintf("external service check failed: %v", err),
			}
		}
		return CheckResult{
			Status:   StatusHealthy,
			Metadata: map[string]interface{}{"service": name},
		}
	})
}

func isTemporaryError(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())
	temporaryPatterns := []string{
		"timeout",
		"connection refused",
		"temporary failure",
		"network is unreachable",
		"context deadline exceeded",
	}

	for _, pattern := range temporaryPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}
