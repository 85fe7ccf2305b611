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

package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// CircuitState represents the state of a circuit breaker
type CircuitState int

const (
	// CircuitClosed means calls pass through
	CircuitClosed CircuitState = iota
	// CircuitOpen means calls fail fast
	CircuitOpen
	// CircuitHalfOpen means a limited number of trial calls pass through
	CircuitHalfOpen
)

// String returns the string representation of the circuit state
func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig holds configuration for circuit breaker behavior
type CircuitBreakerConfig struct {
	Name                string
	MaxFailures         int
	ResetTimeout        time.Duration
	HalfOpenMaxRequests int
	IsFailureFunc       func(error) bool
}

// DefaultCircuitBreakerConfig returns default configuration for circuit breaker
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:                name,
		MaxFailures:         5,
		ResetTimeout:        60 * time.Second,
		HalfOpenMaxRequests: 1,
		IsFailureFunc:       DefaultIsFailureFunc,
	}
}

// DefaultIsFailureFunc counts every error except caller cancellation
func DefaultIsFailureFunc(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled)
}

// ErrCircuitBreakerOpen is returned when the circuit breaker is open
var ErrCircuitBreakerOpen = errors.New("circuit breaker is open")

// CircuitBreaker fails fast after MaxFailures consecutive failures until
// ResetTimeout has elapsed
type CircuitBreaker struct {
	config       CircuitBreakerConfig
	mu           sync.Mutex
	state        CircuitState
	failures     int
	halfOpenReqs int
	stateChanged time.Time
	now          func() time.Time
	logger       *zap.Logger
}

// NewCircuitBreaker creates a new circuit breaker with the given configuration
func NewCircuitBreaker(config CircuitBreakerConfig, logger *zap.Logger) *CircuitBreaker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.IsFailureFunc == nil {
		config.IsFailureFunc = DefaultIsFailureFunc
	}
	if config.HalfOpenMaxRequests <= 0 {
		config.HalfOpenMaxRequests = 1
	}
	return &CircuitBreaker{
		config:       config,
		state:        CircuitClosed,
		stateChanged: time.Now(),
		now:          time.Now,
		logger:       logger,
	}
}

// Execute runs fn unless the circuit is open
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if !cb.allow() {
		return ErrCircuitBreakerOpen
	}
	err := fn(ctx)
	cb.record(err)
	return err
}

// State returns the current state of the circuit breaker
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset closes the circuit
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.setState(CircuitClosed)
	cb.failures = 0
}

func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitOpen:
		if cb.now().Sub(cb.stateChanged) < cb.config.ResetTimeout {
			return false
		}
		cb.setState(CircuitHalfOpen)
		fallthrough
	case CircuitHalfOpen:
		if cb.halfOpenReqs >= cb.config.HalfOpenMaxRequests {
			return false
		}
		cb.halfOpenReqs++
		return true
	default:
		return true
	}
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if !cb.config.IsFailureFunc(err) {
		if cb.state == CircuitHalfOpen {
			cb.setState(CircuitClosed)
		}
		cb.failures = 0
		return
	}

	cb.failures++
	cb.logger.Debug("Circuit breaker recorded failure",
		zap.String("name", cb.config.Name),
		zap.Error(err),
		zap.Int("failures", cb.failures),
		zap.String("state", cb.state.String()))

	if cb.state == CircuitHalfOpen || cb.failures >= cb.config.MaxFailures {
		cb.setState(CircuitOpen)
	}
}

func (cb *CircuitBreaker) setState(state CircuitState) {
	if cb.state == state {
		return
	}
	cb.logger.Info("Circuit breaker state changed",
		zap.String("name", cb.config.Name),
		zap.String("from", cb.state.String()),
		zap.String("to", state.String()),
		zap.Int("failures", cb.failures))

	cb.state = state
	cb.stateChanged = cb.now()
	cb.halfOpenReqs = 0
	if state == CircuitClosed {
		cb.failures = 0
	}
}
