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

// Package metrics exposes Prometheus instrumentation for the playbook pipeline
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "playbook_assistant"

// Metrics holds the collectors. A nil *Metrics records nothing.
type Metrics struct {
	RequestsTotal      *prometheus.CounterVec
	RequestDuration    *prometheus.HistogramVec
	PromptsClassified  *prometheus.CounterVec
	PromptsRejected    prometheus.Counter
	PlaybooksGenerated *prometheus.CounterVec
	GenerationDuration *prometheus.HistogramVec
	Diagnostics        *prometheus.CounterVec
	FixesApplied       *prometheus.CounterVec
	Commits            *prometheus.CounterVec
	CacheLookups       *prometheus.CounterVec
}

// New registers the collectors on reg
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"route", "method", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
			},
			[]string{"route"},
		),
		PromptsClassified: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "prompts_classified_total",
				Help:      "Prompts classified by guard-rail category",
			},
			[]string{"category"},
		),
		PromptsRejected: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "prompts_rejected_total",
				Help:      "Prompts rejected by the guard rail",
			},
		),
		PlaybooksGenerated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "playbooks_generated_total",
				Help:      "Playbooks generated by deployment context, tier and source",
			},
			[]string{"context", "tier", "source", "valid"},
		),
		GenerationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "generation_duration_seconds",
				Help:      "End-to-end playbook generation duration in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 16), // 1ms to ~1min
			},
			[]string{"source"},
		),
		Diagnostics: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "diagnostics_total",
				Help:      "Validation diagnostics by rule",
			},
			[]string{"rule"},
		),
		FixesApplied: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "autofix_applied_total",
				Help:      "Auto-fix transforms that changed a playbook",
			},
			[]string{"fix"},
		),
		Commits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "repository_commits_total",
				Help:      "Playbook commits to the remote repository",
			},
			[]string{"status"},
		),
		CacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_lookups_total",
				Help:      "Response cache lookups",
			},
			[]string{"result"},
		),
	}
}

// ObservePrompt records a guard-rail verdict
func (m *Metrics) ObservePrompt(category string, rejected bool) {
	if m == nil {
		return
	}
	m.PromptsClassified.WithLabelValues(category).Inc()
	if rejected {
		m.PromptsRejected.Inc()
	}
}

// ObserveGeneration records one generated playbook
func (m *Metrics) ObserveGeneration(context, tier, source string, valid bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.PlaybooksGenerated.WithLabelValues(context, tier, source, strconv.FormatBool(valid)).Inc()
	m.GenerationDuration.WithLabelValues(source).Observe(elapsed.Seconds())
}

// ObserveDiagnostics counts diagnostics per rule
func (m *Metrics) ObserveDiagnostics(rules []string) {
	if m == nil {
		return
	}
	for _, rule := range rules {
		m.Diagnostics.WithLabelValues(rule).Inc()
	}
}

// ObserveFixes counts applied fixes
func (m *Metrics) ObserveFixes(fixIDs []string) {
	if m == nil {
		return
	}
	for _, id := range fixIDs {
		m.FixesApplied.WithLabelValues(id).Inc()
	}
}

// ObserveCommit records a repository commit attempt
func (m *Metrics) ObserveCommit(err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.Commits.WithLabelValues(status).Inc()
}

// ObserveCache records a cache hit or miss
func (m *Metrics) ObserveCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

// Middleware records request counts and latency per matched route
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.RequestsTotal.WithLabelValues(route, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		m.RequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}
