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
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestDefaultBackoffConfig(t *testing.T) {
	config := DefaultBackoffConfig()

	if config.BaseDelay != 1*time.Second {
		t.Errorf("Expected BaseDelay to be 1 second, got %v", config.BaseDelay)
	}
	if config.MaxRetries != 3 {
		t.Errorf("Expected MaxRetries to be 3, got %d", config.MaxRetries)
	}
	if config.Multiplier != 2.0 {
		t.Errorf("Expected Multiplier to be 2.0, got %f", config.Multiplier)
	}
	if config.MaxDelay != 30*time.Second {
		t.Errorf("Expected MaxDelay to be 30 seconds, got %v", config.MaxDelay)
	}
}

func TestWithExponentialBackoff_Success(t *testing.T) {
	attempts := 0
	err := WithExponentialBackoff(context.Background(), zap.NewNop(), DefaultBackoffConfig(), func(_ context.Context) error {
		attempts++
		return nil
	})

	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt, got %d", attempts)
	}
}

func TestWithExponentialBackoff_SuccessAfterRetry(t *testing.T) {
	config := DefaultBackoffConfig()
	config.BaseDelay = 5 * time.Millisecond
	config.Jitter = false

	attempts := 0
	start := time.Now()
	err := WithExponentialBackoff(context.Background(), zap.NewNop(), config, func(_ context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("temporary error")
		}
		return nil
	})

	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
	if elapsed := time.Since(start); elapsed < 15*time.Millisecond {
		t.Errorf("Expected at least 15ms of backoff, got %v", elapsed)
	}
}

func TestWithExponentialBackoff_ExhaustRetries(t *testing.T) {
	config := DefaultBackoffConfig()
	config.BaseDelay = time.Millisecond
	config.MaxRetries = 2

	attempts := 0
	testError := errors.New("persistent error")
	err := WithExponentialBackoff(context.Background(), nil, config, func(_ context.Context) error {
		attempts++
		return testError
	})

	if err == nil {
		t.Fatal("Expected error after exhausting retries")
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
	if !errors.Is(err, testError) {
		t.Errorf("Expected wrapped error to contain original error")
	}
}

func TestWithExponentialBackoff_PermanentError(t *testing.T) {
	attempts := 0
	cause := errors.New("bad credentials")
	err := WithExponentialBackoff(context.Background(), zap.NewNop(), DefaultBackoffConfig(), func(_ context.Context) error {
		attempts++
		return Permanent(cause)
	})

	if attempts != 1 {
		t.Errorf("Expected 1 attempt for permanent error, got %d", attempts)
	}
	if !errors.Is(err, cause) {
		t.Errorf("Expected permanent error to unwrap to cause, got %v", err)
	}
}

func TestWithExponentialBackoff_ContextCancellation(t *testing.T) {
	config := DefaultBackoffConfig()
	config.BaseDelay = 200 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	attempts := 0
	err := WithExponentialBackoff(ctx, zap.NewNop(), config, func(_ context.Context) error {
		attempts++
		return errors.New("first error")
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt before cancellation, got %d", attempts)
	}
}

func TestDefaultRetryOnFunc(t *testing.T) {
	testCases := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil", nil, false},
		{"canceled", context.Canceled, false},
		{"wrapped deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), false},
		{"permanent", Permanent(errors.New("no")), false},
		{"wrapped permanent", fmt.Errorf("commit: %w", Permanent(errors.New("no"))), false},
		{"transient", errors.New("connection reset"), true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := DefaultRetryOnFunc(tc.err); got != tc.expected {
				t.Errorf("DefaultRetryOnFunc(%v) = %v, expected %v", tc.err, got, tc.expected)
			}
		})
	}
}

func TestBackoffDelay(t *testing.T) {
	config := BackoffConfig{BaseDelay: 10 * time.Millisecond, Multiplier: 2, MaxDelay: 50 * time.Millisecond}

	expected := []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 40 * time.Millisecond, 50 * time.Millisecond}
	for attempt, want := range expected {
		if got := config.Delay(attempt); got != want {
			t.Errorf("Delay(%d) = %v, expected %v", attempt, got, want)
		}
	}
}

func TestPermanentNil(t *testing.T) {
	if Permanent(nil) != nil {
		t.Error("Expected Permanent(nil) to be nil")
	}
}
