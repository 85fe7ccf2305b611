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
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/playbook-assistant/internal/classifier"
	"github.com/your-org/playbook-assistant/internal/pipeline"
)

const brokenPlaybook = "- name: Install nginx\n  tasks:\n    - name: Install package\n      apt:\n        name: nginx\n"

func run(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd(strings.NewReader(stdin), &stdout, &stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

// isolateEnv keeps the caller's environment out of config loading
func isolateEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"CONFIG_PATH", "OPENAI_API_KEY", "GITHUB_TOKEN", "LOG_LEVEL"} {
		t.Setenv(key, "")
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestClassifyCommand(t *testing.T) {
	out, _, err := run(t, "", "classify", "Installer", "nginx", "avec", "SSL", "sur", "Ubuntu")
	require.NoError(t, err)
	assert.Contains(t, out, "intent:")
	assert.Contains(t, out, "service:")
	assert.Contains(t, out, "nginx")
	assert.Contains(t, out, "context:     classic-linux")

	jsonOut, _, err := run(t, "", "classify", "-o", "json", "deploy redis on k8s with helm")
	require.NoError(t, err)
	var body struct {
		Entities   []map[string]string               `json:"entities"`
		Deployment pipeline.DeploymentClassification `json:"deployment"`
	}
	require.NoError(t, json.Unmarshal([]byte(jsonOut), &body))
	assert.Equal(t, "kubernetes", string(body.Deployment.Context.Context))
	assert.NotEmpty(t, body.Entities)
}

func TestClassifyCommand_RequiresPrompt(t *testing.T) {
	_, _, err := run(t, "", "classify")
	assert.Error(t, err)
}

func TestCheckCommand(t *testing.T) {
	out, _, err := run(t, "", "check", "install nginx on ubuntu")
	require.NoError(t, err)
	assert.Contains(t, out, "technical")

	out, _, err = run(t, "", "check", "chocolate", "cake", "recipe")
	assert.ErrorIs(t, err, ErrPromptRejected)
	assert.Contains(t, out, "invalid")

	jsonOut, _, err := run(t, "", "check", "--output", "json")
	assert.ErrorIs(t, err, ErrPromptRejected)
	var verdict classifier.Verdict
	require.NoError(t, json.Unmarshal([]byte(jsonOut), &verdict))
	assert.Equal(t, classifier.CategoryEmpty, verdict.Category)
}

func TestUnknownOutputFormat(t *testing.T) {
	_, _, err := run(t, "", "check", "-o", "yaml", "install nginx")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown output format")
}

func TestLintCommand(t *testing.T) {
	path := writeFile(t, "site.yml", brokenPlaybook)

	out, _, err := run(t, "", "lint", path)
	assert.ErrorIs(t, err, ErrInvalidPlaybook)
	assert.Contains(t, out, "[document-start]")
	assert.Contains(t, out, "[hosts-required]")
	assert.Contains(t, out, "(fix: add-missing-hosts)")

	out, _, err = run(t, "---\n"+strings.Replace(brokenPlaybook, "  tasks:", "  hosts: all\n  tasks:", 1), "lint", "-")
	require.NoError(t, err)
	assert.Contains(t, out, "-: ok")
}

func TestLintCommand_MissingFile(t *testing.T) {
	_, _, err := run(t, "", "lint", filepath.Join(t.TempDir(), "missing.yml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read playbook")
}

func TestFixCommand(t *testing.T) {
	path := writeFile(t, "site.yml", brokenPlaybook)

	out, errOut, err := run(t, "", "fix", path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "---\n"))
	assert.Contains(t, out, "hosts: all")
	assert.Contains(t, errOut, "applied: add-document-start, add-missing-hosts")

	original, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, brokenPlaybook, string(original))
}

func TestFixCommand_Write(t *testing.T) {
	path := writeFile(t, "site.yml", brokenPlaybook)

	out, _, err := run(t, "", "fix", "--all", "--write", path)
	require.NoError(t, err)
	assert.Empty(t, out)

	fixed, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, pipeline.ValidateDocument(string(fixed)).Valid)

	_, _, err = run(t, brokenPlaybook, "fix", "--write", "-")
	assert.Error(t, err)
}

func TestGenerateCommand(t *testing.T) {
	isolateEnv(t)
	cfgPath := writeFile(t, "config.yaml", "generation:\n  mode: template\n  default_environment: staging\n")
	outPath := filepath.Join(t.TempDir(), "nginx.yml")

	_, errOut, err := run(t, "", "generate", "-c", cfgPath, "--out", outPath, "--tier", "pro", "Installer nginx avec SSL sur Ubuntu")
	require.NoError(t, err)
	assert.Contains(t, errOut, "template: nginx-webserver")
	assert.Contains(t, errOut, "tier: pro")

	written, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Contains(t, string(written), "app_env: staging")
	assert.True(t, pipeline.ValidateDocument(string(written)).Valid)
}

func TestGenerateCommand_Rejected(t *testing.T) {
	isolateEnv(t)
	cfgPath := writeFile(t, "config.yaml", "generation:\n  mode: template\n")

	out, errOut, err := run(t, "", "generate", "-c", cfgPath, "chocolate cake recipe")
	assert.ErrorIs(t, err, ErrPromptRejected)
	assert.Empty(t, out)
	assert.NotEmpty(t, errOut)
}

func TestGenerateCommand_InvalidConfig(t *testing.T) {
	isolateEnv(t)
	cfgPath := writeFile(t, "config.yaml", "generation:\n  mode: llm\n")

	_, _, err := run(t, "", "generate", "-c", cfgPath, "install nginx")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "openai.apikey")
}
