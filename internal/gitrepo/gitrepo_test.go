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

package gitrepo

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/your-org/playbook-assistant/internal/resilience"
)

type fakeGitHub struct {
	refFailures int32
	refStatus   int
	refCalls    int32
	treeBody    map[string]any
	commitBody  map[string]any
	updated     string
}

func (f *fakeGitHub) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/octo/playbooks/git/ref/heads/main", func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&f.refCalls, 1)
		if n <= f.refFailures {
			w.WriteHeader(f.refStatus)
			_, _ = w.Write([]byte(`{"message": "failure"}`))
			return
		}
		_, _ = w.Write([]byte(`{"ref": "refs/heads/main", "object": {"sha": "parent", "type": "commit"}}`))
	})
	mux.HandleFunc("/repos/octo/playbooks/git/commits/parent", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"sha": "parent", "tree": {"sha": "basetree"}}`))
	})
	mux.HandleFunc("/repos/octo/playbooks/git/trees", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&f.treeBody))
		_, _ = w.Write([]byte(`{"sha": "newtree"}`))
	})
	mux.HandleFunc("/repos/octo/playbooks/git/commits", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&f.commitBody))
		_, _ = w.Write([]byte(`{"sha": "newcommit"}`))
	})
	mux.HandleFunc("/repos/octo/playbooks/git/refs/heads/main", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		f.updated, _ = body["sha"].(string)
		_, _ = w.Write([]byte(`{"ref": "refs/heads/main", "object": {"sha": "newcommit"}}`))
	})
	return mux
}

func newTestCommitter(t *testing.T, fake *fakeGitHub) *Committer {
	server := httptest.NewServer(fake.handler(t))
	t.Cleanup(server.Close)

	c, err := NewCommitter(Config{
		Token:     "ghp_test", // pragma: allowlist secret
		Owner:     "octo",
		Repo:      "playbooks",
		Directory: "generated",
		BaseURL:   server.URL,
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	c.backoff.BaseDelay = time.Millisecond
	c.backoff.Jitter = false
	return c
}

func TestNewCommitter(t *testing.T) {
	_, err := NewCommitter(Config{Owner: "octo"}, nil)
	assert.ErrorIs(t, err, ErrNotConfigured)

	c, err := NewCommitter(Config{Owner: "octo", Repo: "playbooks"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "refs/heads/main", c.Ref())
	assert.Equal(t, resilience.CircuitClosed, c.BreakerState())
}

func TestCommit(t *testing.T) {
	fake := &fakeGitHub{}
	c := newTestCommitter(t, fake)

	sha, err := c.Commit(context.Background(), []File{
		{Path: "nginx.yml", Content: "---\n- hosts: all\n"},
		{Path: "../escape.yml", Content: "---\n"},
	}, "Add nginx playbook")
	require.NoError(t, err)
	assert.Equal(t, "newcommit", sha)

	assert.Equal(t, "basetree", fake.treeBody["base_tree"])
	entries, ok := fake.treeBody["tree"].([]any)
	require.True(t, ok)
	require.Len(t, entries, 2)
	assert.Equal(t, "generated/nginx.yml", entries[0].(map[string]any)["path"])
	assert.Equal(t, "generated/escape.yml", entries[1].(map[string]any)["path"])

	assert.Equal(t, "Add nginx playbook", fake.commitBody["message"])
	assert.Equal(t, "newtree", fake.commitBody["tree"])
	assert.Equal(t, []any{"parent"}, fake.commitBody["parents"])

	assert.Equal(t, "newcommit", fake.updated)
}

func TestCommit_NoFiles(t *testing.T) {
	c := newTestCommitter(t, &fakeGitHub{})
	_, err := c.Commit(context.Background(), nil, "empty")
	assert.True(t, errors.Is(err, ErrNoFiles))
}

func TestCommit_RetriesServerErrors(t *testing.T) {
	fake := &fakeGitHub{refFailures: 2, refStatus: http.StatusBadGateway}
	c := newTestCommitter(t, fake)

	sha, err := c.Commit(context.Background(), []File{{Path: "a.yml", Content: "---\n"}}, "retry")
	require.NoError(t, err)
	assert.Equal(t, "newcommit", sha)
	assert.Equal(t, int32(3), atomic.LoadInt32(&fake.refCalls))
}

func TestCommit_DoesNotRetryNotFound(t *testing.T) {
	fake := &fakeGitHub{refFailures: 10, refStatus: http.StatusNotFound}
	c := newTestCommitter(t, fake)

	_, err := c.Commit(context.Background(), []File{{Path: "a.yml", Content: "---\n"}}, "missing")
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&fake.refCalls))
}
