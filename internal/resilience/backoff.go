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

// Package resilience holds the retry, circuit breaking and API error helpers
// shared by the playbook assistant's outbound clients and HTTP handlers.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
)

// BackoffConfig holds configuration for exponential backoff retry logic
type BackoffConfig struct {
	BaseDelay   time.Duration
	MaxRetries  int
	MaxDelay    time.Duration
	Multiplier  float64
	Jitter      bool
	RetryOnFunc func(error) bool
}

const (
	// DefaultMaxRetries is the default number of retries after the first attempt
	DefaultMaxRetries = 3
	// DefaultMaxDelaySeconds caps a single wait
	DefaultMaxDelaySeconds = 30
	// DefaultMultiplier is the growth factor between waits
	DefaultMultiplier = 2.0
	// JitterModulus is used for random jitter calculation
	JitterModulus = 1000
)

// DefaultBackoffConfig returns base delay 1s, 3 retries, doubling per retry
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		BaseDelay:   1 * time.Second,
		MaxRetries:  DefaultMaxRetries,
		MaxDelay:    DefaultMaxDelaySeconds * time.Second,
		Multiplier:  DefaultMultiplier,
		Jitter:      true,
		RetryOnFunc: DefaultRetryOnFunc,
	}
}

// DefaultRetryOnFunc retries everything except cancellation and permanent errors
func DefaultRetryOnFunc(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var permanent *PermanentError
	return !errors.As(err, &permanent)
}

// PermanentError marks an error that must not be retried
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

// Unwrap returns the wrapped error
func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent wraps err so the default retry predicate gives up on it
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// RetryFunc is a function that can be retried with exponential backoff
type RetryFunc func(ctx context.Context) error

// Delay returns the wait before retry number attempt (0-based), without jitter
func (c BackoffConfig) Delay(attempt int) time.Duration {
	delay := time.Duration(float64(c.BaseDelay) * math.Pow(c.Multiplier, float64(attempt)))
	if c.MaxDelay > 0 && delay > c.MaxDelay {
		delay = c.MaxDelay
	}
	return delay
}

// WithExponentialBackoff executes fn until it succeeds, returns a
// non-retryable error, or runs out of retries
func WithExponentialBackoff(ctx context.Context, logger *zap.Logger, config BackoffConfig, fn RetryFunc) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.RetryOnFunc == nil {
		config.RetryOnFunc = DefaultRetryOnFunc
	}
	if config.Multiplier <= 0 {
		config.Multiplier = DefaultMultiplier
	}

	var lastErr error

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		err := fn(ctx)
		if err == nil {
			if attempt > 0 {
				logger.Info("Operation succeeded after retry",
					zap.Int("attempt", attempt+1),
					zap.Int("total_attempts", config.MaxRetries+1))
			}
			return nil
		}

		lastErr = err

		if !config.RetryOnFunc(err) {
			logger.Debug("Error is not retryable, stopping attempts",
				zap.Error(err),
				zap.Int("attempt", attempt+1))
			return err
		}

		if attempt == config.MaxRetries {
			break
		}

		delay := config.Delay(attempt)
		if config.Jitter {
			jitter := time.Duration(float64(delay) * 0.1 * (2*float64(time.Now().UnixNano()%JitterModulus)/JitterModulus - 1))
			delay += jitter
		}

		logger.Debug("Retrying after delay",
			zap.Error(err),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Int("max_retries", config.MaxRetries))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	logger.Error("All retry attempts exhausted",
		zap.Error(lastErr),
		zap.Int("total_attempts", config.MaxRetries+1))

	return fmt.Errorf("operation failed after %d attempts: %w", config.MaxRetries+1, lastErr)
}
