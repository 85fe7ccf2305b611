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

// Package pipeline wires the prompt classifiers, the template router, the
// document validator and the auto-fix engine into playbook generation.
package pipeline

import (
	"github.com/your-org/playbook-assistant/internal/autofix"
	"github.com/your-org/playbook-assistant/internal/classifier"
	"github.com/your-org/playbook-assistant/internal/deployment"
	"github.com/your-org/playbook-assistant/internal/entities"
	"github.com/your-org/playbook-assistant/internal/intent"
	"github.com/your-org/playbook-assistant/internal/playbook"
)

// PromptClassification is the intent and entity view of a prompt
type PromptClassification struct {
	Intent   intent.Intent     `json:"intent"`
	Entities []entities.Entity `json:"entities"`
}

// DeploymentClassification is the deployment context and complexity of a prompt
type DeploymentClassification struct {
	Context    deployment.ContextVerdict    `json:"context"`
	Complexity deployment.ComplexityVerdict `json:"complexity"`
}

var (
	intentClassifier = intent.NewClassifier()
	promptValidator  = classifier.NewPromptValidator()
)

// ClassifyPrompt extracts the intent and entities of text
func ClassifyPrompt(text string) PromptClassification {
	return PromptClassification{
		Intent:   intentClassifier.Classify(text),
		Entities: entities.Extract(text),
	}
}

// ValidatePrompt runs the guard rail over text
func ValidatePrompt(text string) classifier.Verdict {
	return promptValidator.Validate(text)
}

// RejectionMessage returns the user-facing explanation for a rejected verdict
func RejectionMessage(v classifier.Verdict) string {
	return promptValidator.RejectionMessage(v)
}

// ClassifyDeployment classifies the deployment context and complexity of
// text, counting services from the extracted entities
func ClassifyDeployment(text string) DeploymentClassification {
	return classifyDeployment(text, entities.Extract(text))
}

func classifyDeployment(text string, ents []entities.Entity) DeploymentClassification {
	return DeploymentClassification{
		Context:    deployment.ClassifyContext(text),
		Complexity: deployment.ClassifyComplexity(text, entities.ServiceCount(ents)),
	}
}

// ValidateDocument validates playbook text
func ValidateDocument(text string) playbook.Result {
	return playbook.Validate(text)
}

// AutoFix applies the fixes addressing diags once and returns the new text
func AutoFix(text string, diags []playbook.Diagnostic) string {
	return autofix.AutoFix(text, diags)
}
