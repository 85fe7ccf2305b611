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

// Package gitrepo commits generated playbooks to a GitHub repository.
package gitrepo

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/google/go-github/v56/github"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/your-org/playbook-assistant/internal/resilience"
)

// DefaultBranch is used when the configuration names none
const DefaultBranch = "main"

var (
	// ErrNoFiles is returned when a commit would contain no files
	ErrNoFiles = errors.New("no files to commit")
	// ErrNotConfigured is returned when owner or repository is missing
	ErrNotConfigured = errors.New("repository owner and name are required")
)

// File is one file of a commit
type File struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// Config holds the target repository settings
type Config struct {
	Token     string
	Owner     string
	Repo      string
	Branch    string
	Directory string
	BaseURL   string
}

// Committer writes files to a branch as a single commit
type Committer struct {
	client  *github.Client
	config  Config
	backoff resilience.BackoffConfig
	breaker *resilience.CircuitBreaker
	logger  *zap.Logger
}

// NewCommitter creates a committer for the configured repository
func NewCommitter(config Config, logger *zap.Logger) (*Committer, error) {
	if config.Owner == "" || config.Repo == "" {
		return nil, ErrNotConfigured
	}
	if config.Branch == "" {
		config.Branch = DefaultBranch
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var httpClient *http.Client
	if config.Token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: config.Token})
		httpClient = oauth2.NewClient(context.Background(), ts)
	}
	client := github.NewClient(httpClient)

	if config.BaseURL != "" {
		base := config.BaseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		u, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("parse GitHub base URL: %w", err)
		}
		client.BaseURL = u
	}

	return &Committer{
		client:  client,
		config:  config,
		backoff: resilience.DefaultBackoffConfig(),
		breaker: resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig("github"), logger),
		logger:  logger,
	}, nil
}

// BreakerState reports the state of the committer's circuit breaker
func (c *Committer) BreakerState() resilience.CircuitState {
	return c.breaker.State()
}

// Ref returns the fully qualified branch reference
func (c *Committer) Ref() string {
	return "refs/heads/" + c.config.Branch
}

// Commit writes files on top of the branch head and returns the new commit SHA
func (c *Committer) Commit(ctx context.Context, files []File, message string) (string, error) {
	if len(files) == 0 {
		return "", ErrNoFiles
	}

	var sha string
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		return resilience.WithExponentialBackoff(ctx, c.logger, c.backoff, func(ctx context.Context) error {
			var err error
			sha, err = c.commitOnce(ctx, files, message)
			return classify(err)
		})
	})
	if err != nil {
		return "", fmt.Errorf("commit to %s/%s: %w", c.config.Owner, c.config.Repo, err)
	}

	c.logger.Info("Playbook committed",
		zap.String("repository", c.config.Owner+"/"+c.config.Repo),
		zap.String("branch", c.config.Branch),
		zap.String("sha", sha),
		zap.Int("files", len(files)))

	return sha, nil
}

func (c *Committer) commitOnce(ctx context.Context, files []File, message string) (string, error) {
	owner, repo := c.config.Owner, c.config.Repo

	ref, _, err := c.client.Git.GetRef(ctx, owner, repo, c.Ref())
	if err != nil {
		return "", fmt.Errorf("get ref: %w", err)
	}
	parentSHA := ref.GetObject().GetSHA()

	parent, _, err := c.client.Git.GetCommit(ctx, owner, repo, parentSHA)
	if err != nil {
		return "", fmt.Errorf("get commit: %w", err)
	}

	entries := make([]*github.TreeEntry, 0, len(files))
	for _, f := range files {
		entries = append(entries, &github.TreeEntry{
			Path:    github.String(c.filePath(f.Path)),
			Mode:    github.String("100644"),
			Type:    github.String("blob"),
			Content: github.String(f.Content),
		})
	}

	tree, _, err := c.client.Git.CreateTree(ctx, owner, repo, parent.GetTree().GetSHA(), entries)
	if err != nil {
		return "", fmt.Errorf("create tree: %w", err)
	}

	commit, _, err := c.client.Git.CreateCommit(ctx, owner, repo, &github.Commit{
		Message: github.String(message),
		Tree:    tree,
		Parents: []*github.Commit{{SHA: github.String(parentSHA)}},
	}, nil)
	if err != nil {
		return "", fmt.Errorf("create commit: %w", err)
	}

	_, _, err = c.client.Git.UpdateRef(ctx, owner, repo, &github.Reference{
		Ref:    github.String(c.Ref()),
		Object: &github.GitObject{SHA: commit.SHA},
	}, false)
	if err != nil {
		return "", fmt.Errorf("update ref: %w", err)
	}

	return commit.GetSHA(), nil
}

func (c *Committer) filePath(name string) string {
	name = strings.TrimPrefix(path.Clean("/"+name), "/")
	if c.config.Directory == "" {
		return name
	}
	return path.Join(c.config.Directory, name)
}

// classify marks client errors as permanent; conflicts, rate limits and
// server errors stay retryable
func classify(err error) error {
	if err == nil {
		return nil
	}
	var ghErr *github.ErrorResponse
	if !errors.As(err, &ghErr) || ghErr.Response == nil {
		return err
	}
	switch status := ghErr.Response.StatusCode; {
	case status == http.StatusConflict, status == http.StatusUnprocessableEntity, status == http.StatusTooManyRequests:
		return err
	case status >= 400 && status < 500:
		return resilience.Permanent(err)
	default:
		return err
	}
}
