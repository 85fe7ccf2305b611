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
	"fmt"

	"github.com/your-org/playbook-assistant/internal/textnorm"
)

// Tier is a complexity tier
type Tier string

// Complexity tiers
const (
	TierBasic      Tier = "basic"
	TierPro        Tier = "pro"
	TierEnterprise Tier = "enterprise"
)

// Feature is an optional playbook capability gated by tier
type Feature string

// Optional features
const (
	FeatureMonitoring         Feature = "monitoring"
	FeatureContinuousDelivery Feature = "continuous-delivery"
	FeatureReporting          Feature = "reporting"
	FeatureValidation         Feature = "validation"
	FeatureMultiHost          Feature = "multi-host"
)

// Indicator points and tier boundaries
const (
	FewServicesPoints        = 3
	ManyServicesPoints       = 6
	MultiHostPoints          = 2
	ObservabilityPoints      = 2
	ContinuousDeliveryPoints = 2
	CustomLogicPoints        = 1
	AdvancedSecurityPoints   = 1

	BasicMaxScore = 3
	ProMaxScore   = 8
)

// Indicators are the signals that feed the complexity score
type Indicators struct {
	ServiceCount       int  `json:"service_count"`
	MultiHost          bool `json:"multi_host"`
	Observability      bool `json:"observability"`
	ContinuousDelivery bool `json:"continuous_delivery"`
	CustomLogic        bool `json:"custom_logic"`
	AdvancedSecurity   bool `json:"advanced_security"`
}

// ComplexityVerdict is the outcome of complexity classification
type ComplexityVerdict struct {
	Tier           Tier       `json:"tier"`
	Score          int        `json:"score"`
	Confidence     float64    `json:"confidence"`
	Indicators     Indicators `json:"indicators"`
	Reasons        []string   `json:"reasons"`
	Recommendation string     `json:"recommendation"`
}

var (
	multiHostTerms = []string{
		"multi host", "multihost", "multi node", "multi server", "multiple servers",
		"several servers", "plusieurs serveurs", "servers", "serveurs", "nodes", "noeuds",
		"cluster", "load balancer", "load balancing", "repartition de charge", "high availability",
		"haute disponibilite", "ha", "replication", "replica", "replicas", "failover",
	}

	observabilityTerms = []string{
		"monitoring", "monitor", "supervision", "superviser", "surveillance", "prometheus",
		"grafana", "metrics", "metriques", "alerting", "alert", "alerts", "alertes",
		"observability", "observabilite", "logging", "logs", "elk", "kibana", "loki",
		"zabbix", "nagios", "tracing", "dashboard", "dashboards",
	}

	continuousDeliveryTerms = []string{
		"ci", "cd", "ci cd", "cicd", "pipeline", "pipelines", "jenkins", "gitlab ci",
		"github actions", "continuous delivery", "continuous deployment", "continuous integration",
		"deploiement continu", "integration continue", "livraison continue", "rolling update",
		"blue green", "canary", "argocd", "argo cd", "zero downtime",
	}

	customLogicTerms = []string{
		"if", "unless", "only if", "when", "depending", "depending on", "si", "selon",
		"en fonction", "sauf", "conditional", "conditionnel", "conditionnelle", "custom",
		"personnalise", "personnalisee", "for each", "pour chaque", "loop", "boucle",
	}

	advancedSecurityTerms = []string{
		"vault", "selinux", "apparmor", "fail2ban", "hardening", "harden", "durcissement",
		"cis", "cis benchmark", "compliance", "conformite", "audit", "auditd", "ids", "waf",
		"mfa", "2fa", "encryption", "chiffrement", "pci", "hipaa", "zero trust",
	}
)

var tierConfidence = map[Tier]float64{
	TierBasic:      0.9,
	TierPro:        0.85,
	TierEnterprise: 0.95,
}

var tierRecommendation = map[Tier]string{
	TierBasic:      "Single play with straightforward tasks and handlers",
	TierPro:        "Role-structured playbook with monitoring hooks and multi-host inventory groups",
	TierEnterprise: "Full role layout with monitoring, continuous delivery, reporting and validation stages",
}

var featureMatrix = map[Tier]map[Feature]bool{
	TierBasic: {
		FeatureValidation: true,
	},
	TierPro: {
		FeatureMonitoring: true,
		FeatureValidation: true,
		FeatureMultiHost:  true,
	},
	TierEnterprise: {
		FeatureMonitoring:         true,
		FeatureContinuousDelivery: true,
		FeatureReporting:          true,
		FeatureValidation:         true,
		FeatureMultiHost:          true,
	},
}

// DetectIndicators extracts complexity indicators from text. serviceCount is
// supplied by the caller, usually from entity extraction.
func DetectIndicators(text string, serviceCount int) Indicators {
	padded := textnorm.NormalizeStrict(text).Padded()
	if serviceCount < 0 {
		serviceCount = 0
	}
	return Indicators{
		ServiceCount:       serviceCount,
		MultiHost:          hasAny(padded, multiHostTerms),
		Observability:      hasAny(padded, observabilityTerms),
		ContinuousDelivery: hasAny(padded, continuousDeliveryTerms),
		CustomLogic:        hasAny(padded, customLogicTerms),
		AdvancedSecurity:   hasAny(padded, advancedSecurityTerms),
	}
}

// ScoreIndicators returns the additive score and one reason per contribution
func ScoreIndicators(ind Indicators) (int, []string) {
	score := 0
	reasons := []string{}

	add := func(points int, reason string) {
		score += points
		reasons = append(reasons, fmt.Sprintf("%s (+%d)", reason, points))
	}

	switch {
	case ind.ServiceCount >= 4:
		add(ManyServicesPoints, fmt.Sprintf("%d services to deploy", ind.ServiceCount))
	case ind.ServiceCount >= 2:
		add(FewServicesPoints, fmt.Sprintf("%d services to deploy", ind.ServiceCount))
	}
	if ind.MultiHost {
		add(MultiHostPoints, "multiple hosts")
	}
	if ind.Observability {
		add(ObservabilityPoints, "observability requested")
	}
	if ind.ContinuousDelivery {
		add(ContinuousDeliveryPoints, "continuous delivery requested")
	}
	if ind.CustomLogic {
		add(CustomLogicPoints, "conditional or custom logic")
	}
	if ind.AdvancedSecurity {
		add(AdvancedSecurityPoints, "advanced security tooling")
	}

	return score, reasons
}

// TierForScore maps a score onto the tier partition
func TierForScore(score int) Tier {
	switch {
	case score <= BasicMaxScore:
		return TierBasic
	case score <= ProMaxScore:
		return TierPro
	default:
		return TierEnterprise
	}
}

// ClassifyComplexity scores text and returns its tier
func ClassifyComplexity(text string, serviceCount int) ComplexityVerdict {
	ind := DetectIndicators(text, serviceCount)
	return ComplexityFromIndicators(ind)
}

// ComplexityFromIndicators builds a verdict from precomputed indicators
func ComplexityFromIndicators(ind Indicators) ComplexityVerdict {
	score, reasons := ScoreIndicators(ind)
	tier := TierForScore(score)
	return ComplexityVerdict{
		Tier:           tier,
		Score:          score,
		Confidence:     tierConfidence[tier],
		Indicators:     ind,
		Reasons:        reasons,
		Recommendation: tierRecommendation[tier],
	}
}

// ShouldIncludeFeature reports whether feature belongs in a playbook of tier.
// Unknown tiers or features return false.
func ShouldIncludeFeature(tier Tier, feature Feature) bool {
	return featureMatrix[tier][feature]
}

// ParseTier converts s to a Tier, defaulting to basic
func ParseTier(s string) Tier {
	switch Tier(s) {
	case TierPro:
		return TierPro
	case TierEnterprise:
		return TierEnterprise
	default:
		return TierBasic
	}
}
