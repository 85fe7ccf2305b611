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
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

var errBoom = errors.New("boom")

func failing(_ context.Context) error { return errBoom }

func succeeding(_ context.Context) error { return nil }

func newTestBreaker(t *testing.T, maxFailures int) (*CircuitBreaker, *time.Time) {
	config := DefaultCircuitBreakerConfig("test")
	config.MaxFailures = maxFailures
	config.ResetTimeout = time.Minute

	cb := NewCircuitBreaker(config, zaptest.NewLogger(t))
	now := time.Now()
	cb.now = func() time.Time { return now }
	return cb, &now
}

func TestCircuitBreakerOpensAfterMaxFailures(t *testing.T) {
	cb, _ := newTestBreaker(t, 3)

	for i := 0; i < 3; i++ {
		if err := cb.Execute(context.Background(), failing); !errors.Is(err, errBoom) {
			t.Fatalf("attempt %d: expected errBoom, got %v", i, err)
		}
	}
	if cb.State() != CircuitOpen {
		t.Fatalf("Expected open circuit, got %s", cb.State())
	}

	called := false
	err := cb.Execute(context.Background(), func(context.Context) error {
		called = true
		return nil
	})
	if !errors.Is(err, ErrCircuitBreakerOpen) {
		t.Errorf("Expected ErrCircuitBreakerOpen, got %v", err)
	}
	if called {
		t.Error("Expected open circuit to skip the call")
	}
}

func TestCircuitBreakerSuccessResetsFailures(t *testing.T) {
	cb, _ := newTestBreaker(t, 2)

	_ = cb.Execute(context.Background(), failing)
	_ = cb.Execute(context.Background(), succeeding)
	_ = cb.Execute(context.Background(), failing)

	if cb.State() != CircuitClosed {
		t.Errorf("Expected closed circuit, got %s", cb.State())
	}
}

func TestCircuitBreakerHalfOpen(t *testing.T) {
	cb, now := newTestBreaker(t, 1)

	_ = cb.Execute(context.Background(), failing)
	if cb.State() != CircuitOpen {
		t.Fatalf("Expected open circuit, got %s", cb.State())
	}

	*now = now.Add(2 * time.Minute)
	if err := cb.Execute(context.Background(), succeeding); err != nil {
		t.Fatalf("Expected trial call to pass, got %v", err)
	}
	if cb.State() != CircuitClosed {
		t.Errorf("Expected successful trial to close the circuit, got %s", cb.State())
	}
}

func TestCircuitBreakerHalfOpenFailure(t *testing.T) {
	cb, now := newTestBreaker(t, 1)

	_ = cb.Execute(context.Background(), failing)
	*now = now.Add(2 * time.Minute)
	_ = cb.Execute(context.Background(), failing)

	if cb.State() != CircuitOpen {
		t.Errorf("Expected failed trial to reopen the circuit, got %s", cb.State())
	}
}

func TestCircuitBreakerIgnoresCancellation(t *testing.T) {
	cb, _ := newTestBreaker(t, 1)

	_ = cb.Execute(context.Background(), func(context.Context) error { return context.Canceled })

	if cb.State() != CircuitClosed {
		t.Errorf("Expected cancellation not to count as failure, got %s", cb.State())
	}
}

func TestCircuitBreakerReset(t *testing.T) {
	cb, _ := newTestBreaker(t, 1)

	_ = cb.Execute(context.Background(), failing)
	cb.Reset()

	if cb.State() != CircuitClosed {
		t.Errorf("Expected closed circuit after reset, got %s", cb.State())
	}
}

func TestCircuitStateString(t *testing.T) {
	states := map[CircuitState]string{
		CircuitClosed:    "closed",
		CircuitOpen:      "open",
		CircuitHalfOpen:  "half-open",
		CircuitState(42): "unknown",
	}
	for state, want := range states {
		if got := state.String(); got != want {
			t.Errorf("String() = %q, expected %q", got, want)
		}
	}
}
