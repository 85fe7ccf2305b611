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

package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap/zaptest"

	"github.com/your-org/playbook-assistant/internal/resilience"
)

func TestManager_Check(t *testing.T) {
	manager := NewManager("playbook-assistant", "1.0.0", zaptest.NewLogger(t))

	manager.AddCheckerFunc("healthy", func(ctx context.Context) CheckResult {
		return CheckResult{Status: StatusHealthy}
	})
	manager.AddCheckerFunc("unhealthy", func(ctx context.Context) CheckResult {
		return CheckResult{Status: StatusUnhealthy, Error: "history store is down"}
	})

	result := manager.Check(context.Background())

	if result.Status != StatusUnhealthy {
		t.Errorf("Expected status to be unhealthy, got %s", result.Status)
	}
	if result.Service != "playbook-assistant" {
		t.Errorf("Expected service to be playbook-assistant, got %s", result.Service)
	}
	if result.Version != "1.0.0" {
		t.Errorf("Expected version to be 1.0.0, got %s", result.Version)
	}
	if len(result.Dependencies) != 2 {
		t.Errorf("Expected 2 dependencies, got %d", len(result.Dependencies))
	}
	if got := result.Dependencies["unhealthy"].Error; got != "history store is down" {
		t.Errorf("Expected unhealthy error to be preserved, got %q", got)
	}
	if result.Dependencies["healthy"].Timestamp.IsZero() {
		t.Error("Expected timestamp to be set on check results")
	}
	if result.Metadata["go_version"] == nil {
		t.Error("Expected go_version metadata")
	}
}

func TestManager_DegradedStatus(t *testing.T) {
	manager := NewManager("playbook-assistant", "1.0.0", nil)
	manager.AddCheckerFunc("healthy", func(ctx context.Context) CheckResult {
		return CheckResult{Status: StatusHealthy}
	})
	manager.AddCheckerFunc("degraded", func(ctx context.Context) CheckResult {
		return CheckResult{Status: StatusDegraded}
	})

	if result := manager.Check(context.Background()); result.Status != StatusDegraded {
		t.Errorf("Expected status to be degraded, got %s", result.Status)
	}
}

func TestManager_NoCheckers(t *testing.T) {
	manager := NewManager("playbook-assistant", "1.0.0", nil)
	if result := manager.Check(context.Background()); result.Status != StatusHealthy {
		t.Errorf("Expected status to be healthy, got %s", result.Status)
	}
}

func TestManager_Timeout(t *testing.T) {
	manager := NewManager("playbook-assistant", "1.0.0", nil)
	manager.SetTimeout(20 * time.Millisecond)
	manager.AddCheckerFunc("slow", func(ctx context.Context) CheckResult {
		<-ctx.Done()
		return CheckResult{Status: StatusUnhealthy, Error: ctx.Err().Error()}
	})

	start := time.Now()
	result := manager.Check(context.Background())
	if time.Since(start) > time.Second {
		t.Error("Expected check to be bounded by the manager timeout")
	}
	if result.Status != StatusUnhealthy {
		t.Errorf("Expected status to be unhealthy, got %s", result.Status)
	}
}

func TestManager_Names(t *testing.T) {
	manager := NewManager("playbook-assistant", "1.0.0", nil)
	manager.AddChecker("templates", CountChecker("templates", func() int { return 1 }))
	manager.AddChecker("history", StoreChecker("file", func(context.Context) error { return nil }))

	names := manager.Names()
	if len(names) != 2 || names[0] != "history" || names[1] != "templates" {
		t.Errorf("Expected sorted names [history templates], got %v", names)
	}
}

func TestHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name       string
		status     string
		wantStatus int
	}{
		{"healthy", StatusHealthy, http.StatusOK},
		{"degraded", StatusDegraded, http.StatusOK},
		{"unhealthy", StatusUnhealthy, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			manager := NewManager("playbook-assistant", "1.0.0", nil)
			manager.AddCheckerFunc("dep", func(ctx context.Context) CheckResult {
				return CheckResult{Status: tt.status}
			})

			router := gin.New()
			router.GET("/health", manager.Handler())

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

			if w.Code != tt.wantStatus {
				t.Errorf("Expected HTTP %d, got %d", tt.wantStatus, w.Code)
			}

			var body Response
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("Failed to decode response: %v", err)
			}
			if body.Status != tt.status {
				t.Errorf("Expected body status %s, got %s", tt.status, body.Status)
			}
		})
	}
}

func TestStoreChecker(t *testing.T) {
	ok := StoreChecker("sqlite", func(context.Context) error { return nil }).Check(context.Background())
	if ok.Status != StatusHealthy || ok.Metadata["backend"] != "sqlite" {
		t.Errorf("Unexpected healthy result: %+v", ok)
	}

	failed := StoreChecker("sqlite", func(context.Context) error { return errors.New("database is locked") }).Check(context.Background())
	if failed.Status != StatusUnhealthy {
		t.Errorf("Expected unhealthy, got %s", failed.Status)
	}
}

func TestBreakerChecker(t *testing.T) {
	tests := []struct {
		state resilience.CircuitState
		want  string
	}{
		{resilience.CircuitClosed, StatusHealthy},
		{resilience.CircuitHalfOpen, StatusDegraded},
		{resilience.CircuitOpen, StatusDegraded},
	}
	for _, tt := range tests {
		state := tt.state
		result := BreakerChecker("openai", func() resilience.CircuitState { return state }).Check(context.Background())
		if result.Status != tt.want {
			t.Errorf("state %s: expected %s, got %s", state, tt.want, result.Status)
		}
		if result.Metadata["circuit"] != state.String() {
			t.Errorf("state %s: unexpected metadata %v", state, result.Metadata)
		}
	}
}

func TestCountChecker(t *testing.T) {
	if r := CountChecker("templates", func() int { return 0 }).Check(context.Background()); r.Status != StatusUnhealthy {
		t.Errorf("Expected unhealthy for zero count, got %s", r.Status)
	}
	if r := CountChecker("templates", func() int { return 18 }).Check(context.Background()); r.Status != StatusHealthy {
		t.Errorf("Expected healthy, got %s", r.Status)
	}
}

func TestExternalServiceChecker(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"available", nil, StatusHealthy},
		{"timeout", errors.New("request timeout"), StatusDegraded},
		{"refused", errors.New("dial tcp: connection refused"), StatusDegraded},
		{"unauthorized", errors.New("401 bad credentials"), StatusUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.err
			result := ExternalServiceChecker("github", func(context.Context) error { return err }).Check(context.Background())
			if result.Status != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, result.Status)
			}
		})
	}
}

func TestIsTemporaryError(t *testing.T) {
	if isTemporaryError(nil) {
		t.Error("nil error should not be temporary")
	}
	if !isTemporaryError(errors.New("context deadline exceeded")) {
		t.Error("deadline should be temporary")
	}
	if isTemporaryError(errors.New("not found")) {
		t.Error("not found should not be temporary")
	}
}
