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

package deployment

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyContext(t *testing.T) {
	testCases := []struct {
		name                  string
		prompt                string
		expectedContext       Context
		expectedConfidence    float64
		expectedOrchestration string
	}{
		{"conventional host from OS name", "Installer nginx avec SSL sur Ubuntu", ContextClassicLinux, ExplicitHostConfidence, OrchestrationNone},
		{"default without target", "install nginx", ContextClassicLinux, DefaultConfidence, OrchestrationNone},
		{"serverless", "Deploy a lambda function behind API Gateway", ContextServerless, ServerlessConfidence, OrchestrationNone},
		{"serverless wins over containers", "serverless functions packaged in docker", ContextServerless, ServerlessConfidence, OrchestrationNone},
		{"simple container with compose", "Run wordpress with docker compose", ContextDocker, DockerConfidence, "docker-compose"},
		{"simple container", "deploy redis in a docker container", ContextDocker, DockerConfidence, OrchestrationNone},
		{"containers on a cluster", "docker containers on kubernetes", ContextKubernetes, KubernetesConfidence, "kubernetes"},
		{"cluster", "Deploy redis on k8s with helm", ContextKubernetes, KubernetesConfidence, "kubernetes"},
		{"openshift cluster", "deploy the app to openshift", ContextKubernetes, KubernetesConfidence, "openshift"},
		{"cluster with provisioning", "Provision a VPC with terraform and deploy apps on kubernetes", ContextHybrid, ClusterHybridConfidence, "kubernetes"},
		{"cluster sequenced with hosts", "Configure the servers then deploy to kubernetes", ContextHybrid, ClusterHybridConfidence, "kubernetes"},
		{"cluster and hosts without connector", "configure servers and kubernetes", ContextKubernetes, KubernetesConfidence, "kubernetes"},
		{"provisioning only", "Create an S3 bucket with terraform", ContextTerraform, TerraformConfidence, OrchestrationNone},
		{"provisioning and hosts", "Use terraform to create EC2 instances then install nginx on the servers", ContextHybrid, ProvisionHybridConfidence, OrchestrationNone},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			verdict := ClassifyContext(tc.prompt)
			assert.Equal(t, tc.expectedContext, verdict.Context)
			assert.InDelta(t, tc.expectedConfidence, verdict.Confidence, 1e-9)
			assert.Equal(t, tc.expectedOrchestration, verdict.Orchestration)
			assert.NotEmpty(t, verdict.Reason)
		})
	}
}

func TestClassifyContext_TargetsAndTools(t *testing.T) {
	verdict := ClassifyContext("Provision Red Hat VMs on AWS with terraform, then run docker compose")
	assert.Equal(t, []string{"rhel", "aws"}, verdict.Targets)
	assert.Equal(t, []string{"terraform", "docker-compose", "docker"}, verdict.Tools)

	empty := ClassifyContext("")
	assert.Equal(t, ContextClassicLinux, empty.Context)
	assert.Empty(t, empty.Targets)
	assert.Empty(t, empty.Tools)
}

func TestClassifyContext_WholeTokens(t *testing.T) {
	// "pod" inside "podcast" and "host" inside "hostname" are not signals
	verdict := ClassifyContext("publish a podcast feed with a custom hostname")
	assert.Equal(t, ContextClassicLinux, verdict.Context)
	assert.InDelta(t, DefaultConfidence, verdict.Confidence, 1e-9)
}
