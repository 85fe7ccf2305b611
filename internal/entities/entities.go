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

// Package entities extracts typed infrastructure concepts (services,
// platforms, environments, actions, security tools) from prompts.
package entities

import (
	"strings"

	"github.com/your-org/playbook-assistant/internal/textnorm"
)

// Type is the kind of an extracted entity.
type Type string

// Entity types
const (
	TypeService        Type = "service"
	TypePlatform       Type = "platform"
	TypeEnvironment    Type = "environment"
	TypeAction         Type = "action"
	TypeSecurity       Type = "security"
	TypeInfrastructure Type = "infrastructure"
)

// Entity is a canonicalized concept detected in a prompt.
type Entity struct {
	Type        Type   `json:"type"`
	Value       string `json:"value"`
	MatchedText string `json:"matched_text"`
}

// definition is one canonical entity and the surface forms that select it.
// Variants are matched as substrings of the space-padded normalized prompt, so
// a variant may carry surrounding spaces to require a word boundary. Each
// variant is also tried as a whole-token phrase of the strict-normalized
// prompt, so punctuation next to a word still counts as a boundary.
type definition struct {
	Type     Type
	Value    string
	Variants []string
}

// vocabulary is declaration-ordered; Extract output follows this order.
var vocabulary = []definition{
	// services
	{TypeService, "nginx", []string{"nginx"}},
	{TypeService, "apache", []string{"apache2", "apache httpd", "httpd", " apache "}},
	{TypeService, "mysql", []string{"mysql"}},
	{TypeService, "mariadb", []string{"mariadb"}},
	{TypeService, "postgresql", []string{"postgresql", "postgres", " psql "}},
	{TypeService, "mongodb", []string{"mongodb", " mongo "}},
	{TypeService, "redis", []string{"redis"}},
	{TypeService, "elasticsearch", []string{"elasticsearch", "elastic search", "opensearch"}},
	{TypeService, "rabbitmq", []string{"rabbitmq", "rabbit mq"}},
	{TypeService, "kafka", []string{"kafka"}},
	{TypeService, "haproxy", []string{"haproxy"}},
	{TypeService, "tomcat", []string{"tomcat"}},
	{TypeService, "nodejs", []string{"node.js", "nodejs", " node "}},
	{TypeService, "php", []string{"php-fpm", " php "}},
	{TypeService, "jenkins", []string{"jenkins"}},
	{TypeService, "gitlab", []string{"gitlab"}},
	{TypeService, "prometheus", []string{"prometheus"}},
	{TypeService, "grafana", []string{"grafana"}},
	{TypeService, "docker", []string{"docker"}},
	{TypeService, "wordpress", []string{"wordpress"}},
	{TypeService, "memcached", []string{"memcached"}},
	{TypeService, "postfix", []string{"postfix", "mail server", "serveur mail", "serveur de messagerie"}},

	// platforms
	{TypePlatform, "ubuntu", []string{"ubuntu"}},
	{TypePlatform, "debian", []string{"debian"}},
	{TypePlatform, "centos", []string{"centos"}},
	{TypePlatform, "rhel", []string{"rhel", "red hat", "redhat"}},
	{TypePlatform, "rocky", []string{"rocky linux", "rockylinux", "almalinux"}},
	{TypePlatform, "windows", []string{"windows server", "windows"}},
	{TypePlatform, "aws", []string{" aws ", "amazon web services", " ec2 "}},
	{TypePlatform, "azure", []string{"azure"}},
	{TypePlatform, "gcp", []string{" gcp ", "google cloud"}},
	{TypePlatform, "kubernetes", []string{"kubernetes", " k8s ", " k3s ", "openshift"}},

	// environments
	{TypeEnvironment, "production", []string{"production", " prod "}},
	{TypeEnvironment, "staging", []string{"staging", "preprod", "pre-production", "recette"}},
	{TypeEnvironment, "development", []string{"development", "developpement", " dev "}},
	{TypeEnvironment, "test", []string{"test environment", "environnement de test", " qa "}},

	// actions
	{TypeAction, "install", []string{"install", "setup", "set up", "mettre en place", "mise en place"}},
	{TypeAction, "configure", []string{"configur", "parametr"}},
	{TypeAction, "deploy", []string{"deploy", "deployer", "deploiement"}},
	{TypeAction, "update", []string{"update", "upgrade", "mise a jour", "mettre a jour"}},
	{TypeAction, "backup", []string{"backup", "sauvegard"}},
	{TypeAction, "monitor", []string{"monitor", "surveill", "supervis"}},
	{TypeAction, "harden", []string{"harden", "durcir", "durcissement", "securiser", "secure "}},

	// security tools
	{TypeSecurity, "ssl", []string{" ssl", " tls ", "https", "certbot", "let's encrypt", "letsencrypt", "certificat"}},
	{TypeSecurity, "firewall", []string{"firewall", " ufw ", "iptables", "firewalld", "pare-feu", "pare feu"}},
	{TypeSecurity, "fail2ban", []string{"fail2ban"}},
	{TypeSecurity, "selinux", []string{"selinux", "apparmor"}},
	{TypeSecurity, "vault", []string{"hashicorp vault", " vault "}},
	{TypeSecurity, "ssh", []string{" ssh "}},

	// infrastructure
	{TypeInfrastructure, "load-balancer", []string{"load balancer", "load-balancer", "loadbalancer", "repartiteur de charge", "equilibreur de charge"}},
	{TypeInfrastructure, "cluster", []string{"cluster"}},
	{TypeInfrastructure, "vpc", []string{" vpc ", "virtual private cloud"}},
	{TypeInfrastructure, "cdn", []string{" cdn "}},
	{TypeInfrastructure, "dns", []string{" dns "}},
}

// Extract returns the entities found in text, at most one per canonical name,
// in vocabulary order.
func Extract(text string) []Entity {
	padded := textnorm.Normalize(text).Padded()
	strict := textnorm.NormalizeStrict(text).Padded()
	seen := make(map[string]bool)
	found := []Entity{}

	for _, def := range vocabulary {
		key := string(def.Type) + "/" + def.Value
		if seen[key] {
			continue
		}
		for _, variant := range def.Variants {
			if strings.Contains(padded, variant) || textnorm.ContainsTerm(strict, variant) {
				seen[key] = true
				found = append(found, Entity{
					Type:        def.Type,
					Value:       def.Value,
					MatchedText: strings.TrimSpace(variant),
				})
				break
			}
		}
	}

	return found
}

// OfType filters entities by type, preserving order.
func OfType(list []Entity, t Type) []Entity {
	var out []Entity
	for _, e := range list {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// Values returns the canonical values of the entities of type t.
func Values(list []Entity, t Type) []string {
	var out []string
	for _, e := range list {
		if e.Type == t {
			out = append(out, e.Value)
		}
	}
	return out
}

// Has reports whether list contains the entity (t, value).
func Has(list []Entity, t Type, value string) bool {
	for _, e := range list {
		if e.Type == t && e.Value == value {
			return true
		}
	}
	return false
}

// ServiceCount is the number of distinct services, the input of the
// complexity classifier.
func ServiceCount(list []Entity) int {
	return len(OfType(list, TypeService))
}
