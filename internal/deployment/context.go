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

// Package deployment decides where a request should be deployed and how
// much machinery the generated playbook needs.
package deployment

import (
	"github.com/your-org/playbook-assistant/internal/textnorm"
)

// Context is a deployment target family
type Context string

// Deployment contexts
const (
	ContextClassicLinux Context = "classic-linux"
	ContextKubernetes   Context = "kubernetes"
	ContextTerraform    Context = "terraform"
	ContextHybrid       Context = "hybrid"
	ContextDocker       Context = "docker"
	ContextServerless   Context = "serverless"
)

// OrchestrationNone is reported when no orchestrator is involved
const OrchestrationNone = "none"

// Context confidences
const (
	ServerlessConfidence      = 0.9
	DockerConfidence          = 0.85
	KubernetesConfidence      = 0.9
	ClusterHybridConfidence   = 0.8
	TerraformConfidence       = 0.85
	ProvisionHybridConfidence = 0.75
	ExplicitHostConfidence    = 0.8
	DefaultConfidence         = 0.5
)

// ContextVerdict is the outcome of deployment context classification
type ContextVerdict struct {
	Context       Context  `json:"context"`
	Confidence    float64  `json:"confidence"`
	Targets       []string `json:"targets"`
	Tools         []string `json:"tools"`
	Orchestration string   `json:"orchestration"`
	Reason        string   `json:"reason"`
}

// alias maps a surface term to the canonical name reported in a verdict
type alias struct {
	term      string
	canonical string
}

var (
	serverlessTerms = []string{
		"serverless", "sans serveur", "lambda", "aws lambda", "cloud functions", "cloud function",
		"azure functions", "azure function", "faas", "function as a service", "api gateway",
	}

	containerTerms = []string{
		"docker", "docker compose", "compose", "dockerfile", "container", "containers",
		"conteneur", "conteneurs", "podman", "conteneuriser", "containerize",
	}

	clusterTerms = []string{
		"kubernetes", "k8s", "k3s", "kubectl", "helm", "openshift", "pod", "pods",
		"ingress", "namespace", "statefulset", "daemonset", "eks", "aks", "gke", "nomad",
	}

	provisioningTerms = []string{
		"terraform", "opentofu", "pulumi", "cloudformation", "provision", "provisioning",
		"provisionner", "provisionnement", "infrastructure as code", "iac", "vpc", "subnet",
		"s3 bucket", "ec2 instance", "ec2 instances", "rds", "security group",
	}

	hostTerms = []string{
		"server", "servers", "serveur", "serveurs", "vm", "vms", "virtual machine",
		"machine virtuelle", "bare metal", "vps", "host", "hosts", "linux", "ubuntu", "debian",
		"centos", "rhel", "red hat", "fedora", "rocky linux", "almalinux", "systemd", "apt",
		"yum", "dnf",
	}

	connectorTerms = []string{
		"then", "and then", "after", "afterwards", "followed by", "puis", "ensuite", "apres",
	}

	targetAliases = []alias{
		{"ubuntu", "ubuntu"},
		{"debian", "debian"},
		{"centos", "centos"},
		{"rhel", "rhel"},
		{"red hat", "rhel"},
		{"fedora", "fedora"},
		{"rocky linux", "rocky"},
		{"almalinux", "almalinux"},
		{"alpine", "alpine"},
		{"windows", "windows"},
		{"aws", "aws"},
		{"amazon web services", "aws"},
		{"azure", "azure"},
		{"gcp", "gcp"},
		{"google cloud", "gcp"},
		{"openstack", "openstack"},
		{"digitalocean", "digitalocean"},
		{"ovh", "ovh"},
		{"scaleway", "scaleway"},
	}

	toolAliases = []alias{
		{"ansible", "ansible"},
		{"terraform", "terraform"},
		{"opentofu", "terraform"},
		{"pulumi", "pulumi"},
		{"cloudformation", "cloudformation"},
		{"docker compose", "docker-compose"},
		{"docker", "docker"},
		{"podman", "podman"},
		{"kubernetes", "kubernetes"},
		{"k8s", "kubernetes"},
		{"k3s", "k3s"},
		{"openshift", "openshift"},
		{"helm", "helm"},
		{"kubectl", "kubectl"},
		{"nomad", "nomad"},
		{"lambda", "lambda"},
	}

	orchestratorAliases = []alias{
		{"openshift", "openshift"},
		{"k3s", "k3s"},
		{"nomad", "nomad"},
		{"kubernetes", "kubernetes"},
		{"k8s", "kubernetes"},
		{"helm", "kubernetes"},
		{"kubectl", "kubernetes"},
		{"eks", "kubernetes"},
		{"aks", "kubernetes"},
		{"gke", "kubernetes"},
	}
)

// ClassifyContext picks exactly one deployment context for text. Branches are
// tested in priority order and the first match wins.
func ClassifyContext(text string) ContextVerdict {
	padded := textnorm.NormalizeStrict(text).Padded()

	serverless := hasAny(padded, serverlessTerms)
	container := hasAny(padded, containerTerms)
	cluster := hasAny(padded, clusterTerms)
	provisioning := hasAny(padded, provisioningTerms)
	host := hasAny(padded, hostTerms)
	connector := hasAny(padded, connectorTerms)

	verdict := ContextVerdict{
		Targets:       canonicalMatches(padded, targetAliases),
		Tools:         canonicalMatches(padded, toolAliases),
		Orchestration: OrchestrationNone,
	}

	switch {
	case serverless:
		verdict.Context = ContextServerless
		verdict.Confidence = ServerlessConfidence
		verdict.Reason = "function-as-a-service vocabulary detected"
	case container && !cluster:
		verdict.Context = ContextDocker
		verdict.Confidence = DockerConfidence
		if textnorm.ContainsTerm(padded, "compose") {
			verdict.Orchestration = "docker-compose"
		}
		verdict.Reason = "container vocabulary without cluster orchestration"
	case cluster && (provisioning || (host && connector)):
		verdict.Context = ContextHybrid
		verdict.Confidence = ClusterHybridConfidence
		verdict.Orchestration = orchestrator(padded)
		if provisioning {
			verdict.Reason = "cluster orchestration combined with infrastructure provisioning"
		} else {
			verdict.Reason = "cluster orchestration sequenced with conventional hosts"
		}
	case cluster:
		verdict.Context = ContextKubernetes
		verdict.Confidence = KubernetesConfidence
		verdict.Orchestration = orchestrator(padded)
		verdict.Reason = "cluster orchestration vocabulary detected"
	case provisioning && host:
		verdict.Context = ContextHybrid
		verdict.Confidence = ProvisionHybridConfidence
		verdict.Reason = "infrastructure provisioning followed by host configuration"
	case provisioning:
		verdict.Context = ContextTerraform
		verdict.Confidence = TerraformConfidence
		verdict.Reason = "cloud provisioning vocabulary detected"
	case host:
		verdict.Context = ContextClassicLinux
		verdict.Confidence = ExplicitHostConfidence
		verdict.Reason = "conventional host vocabulary detected"
	default:
		verdict.Context = ContextClassicLinux
		verdict.Confidence = DefaultConfidence
		verdict.Reason = "no explicit target, defaulting to conventional hosts"
	}

	return verdict
}

func hasAny(padded string, terms []string) bool {
	for _, term := range terms {
		if textnorm.ContainsTerm(padded, term) {
			return true
		}
	}
	return false
}

func canonicalMatches(padded string, aliases []alias) []string {
	seen := make(map[string]bool)
	out := []string{}
	for _, a := range aliases {
		if seen[a.canonical] || !textnorm.ContainsTerm(padded, a.term) {
			continue
		}
		seen[a.canonical] = true
		out = append(out, a.canonical)
	}
	return out
}

func orchestrator(padded string) string {
	for _, a := range orchestratorAliases {
		if textnorm.ContainsTerm(padded, a.term) {
			return a.canonical
		}
	}
	return "kubernetes"
}
