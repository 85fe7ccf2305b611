// Package classifier provides the guard rail that decides whether a prompt is
// a technical infrastructure request worth generating a playbook for.
package classifier

import (
	"strings"

	"github.com/your-org/playbook-assistant/internal/textnorm"
)

// Category is the guard-rail verdict category
type Category string

// Verdict categories
const (
	CategoryTechnical Category = "technical"
	CategoryAmbiguous Category = "ambiguous"
	CategoryInvalid   Category = "invalid"
	CategoryEmpty     Category = "empty"
)

// Term weights and decision thresholds
const (
	TechnicalServiceWeight = 10
	CloudPlatformWeight    = 10
	SysadminWeight         = 9
	OperatingSystemWeight  = 8
	GenericInfraWeight     = 5
	AmbiguousTermWeight    = 3
	UnrelatedTermWeight    = 5

	TechnicalThreshold         = 10
	WeakTechnicalThreshold     = 5
	MaxConfidence              = 100
	ConfidencePerPoint         = 5
	AmbiguousValidConfidence   = 60
	AmbiguousInvalidConfidence = 30
)

// Verdict is the result of prompt validation
type Verdict struct {
	IsValid        bool     `json:"is_valid"`
	Category       Category `json:"category"`
	Confidence     int      `json:"confidence"`
	DetectedTerms  []string `json:"detected_terms"`
	Message        string   `json:"message,omitempty"`
	Suggestions    []string `json:"suggestions,omitempty"`
	TechnicalScore int      `json:"technical_score"`
	AmbiguousScore int      `json:"ambiguous_score"`
	InvalidScore   int      `json:"invalid_score"`
}

// termGroup is one scored vocabulary
type termGroup struct {
	name   string
	weight int
	terms  []string
}

// PromptValidator scores prompts against technical and negative vocabularies
type PromptValidator struct {
	technical []termGroup
	ambiguous termGroup
	unrelated termGroup
}

var (
	improvementSuggestions = []string{
		"Name the services to install or configure (for example nginx, PostgreSQL, Redis)",
		"Specify the target operating system or platform (for example Ubuntu 22.04, Debian, AWS)",
		"Describe the environment and constraints (production, staging, SSL, firewall)",
	}

	examplePrompts = []string{
		"Install nginx with SSL on Ubuntu",
		"Deploy a PostgreSQL database with daily backups on Debian",
		"Configure a UFW firewall and fail2ban on all web servers",
	}
)

// NewPromptValidator creates a new instance of PromptValidator
func NewPromptValidator() *PromptValidator {
	return &PromptValidator{
		technical: []termGroup{
			{
				name:   "technical-service",
				weight: TechnicalServiceWeight,
				terms: []string{
					"nginx", "apache", "httpd", "mysql", "mariadb", "postgresql", "postgres",
					"mongodb", "redis", "elasticsearch", "opensearch", "rabbitmq", "kafka",
					"haproxy", "tomcat", "jenkins", "gitlab", "prometheus", "grafana", "docker",
					"podman", "wordpress", "memcached", "postfix", "php fpm", "nodejs", "node js",
					"bind9", "openvpn", "wireguard", "samba", "nfs", "openldap", "zabbix",
					"kibana", "traefik", "squid", "varnish", "certbot", "fail2ban", "kubernetes",
					"k8s", "k3s", "helm", "ansible", "terraform", "vault", "consul",
				},
			},
			{
				name:   "cloud-platform",
				weight: CloudPlatformWeight,
				terms: []string{
					"aws", "amazon web services", "azure", "gcp", "google cloud", "ec2", "s3",
					"lambda", "openstack", "digitalocean", "ovh", "scaleway", "rds", "eks",
					"aks", "gke", "serverless", "cloud functions", "cloudformation",
				},
			},
			{
				name:   "sysadmin",
				weight: SysadminWeight,
				terms: []string{
					"firewall", "pare feu", "ufw", "iptables", "ssh", "ssl", "tls", "https",
					"cron", "crontab", "systemd", "backup", "sauvegarde", "sudo", "logrotate",
					"selinux", "monitoring", "supervision", "reverse proxy", "load balancer",
					"dns", "certificat", "certificate", "vhost", "virtual host", "ntp",
				},
			},
			{
				name:   "operating-system",
				weight: OperatingSystemWeight,
				terms: []string{
					"linux", "ubuntu", "debian", "centos", "rhel", "red hat", "redhat",
					"fedora", "rocky linux", "almalinux", "windows server", "alpine", "suse",
				},
			},
			{
				name:   "generic-infrastructure",
				weight: GenericInfraWeight,
				terms: []string{
					"server", "serveur", "servers", "serveurs", "database", "base de donnees",
					"cluster", "container", "conteneur", "vm", "virtual machine",
					"machine virtuelle", "host", "hosts", "network", "reseau", "storage",
					"stockage", "infrastructure", "port", "package", "paquet", "paquets",
					"deployment", "deploiement",
				},
			},
		},
		ambiguous: termGroup{
			name:   "ambiguous-domain",
			weight: AmbiguousTermWeight,
			terms: []string{
				"site", "website", "site web", "blog", "shop", "boutique", "plateforme",
				"platform", "system", "systeme", "project", "projet", "solution", "outil",
				"tool", "portail", "portal", "email", "mail", "messagerie", "api", "app",
				"application", "logiciel", "software",
			},
		},
		unrelated: termGroup{
			name:   "unrelated",
			weight: UnrelatedTermWeight,
			terms: []string{
				"recipe", "cuisine", "cake", "gateau", "weather", "meteo", "football",
				"sport", "movie", "film", "music", "musique", "poem", "poeme", "joke",
				"blague", "love", "amour", "politics", "politique", "horoscope", "vacation",
				"vacances", "restaurant", "travel", "voyage", "homework", "devoirs",
				"celebrity", "dating",
			},
		},
	}
}

// Validate decides whether prompt is eligible for playbook generation
func (pv *PromptValidator) Validate(prompt string) Verdict {
	text := textnorm.NormalizeStrict(prompt)
	if text.IsEmpty() {
		return Verdict{
			IsValid:       false,
			Category:      CategoryEmpty,
			Confidence:    0,
			DetectedTerms: []string{},
			Message:       "Empty prompt provided",
			Suggestions:   append([]string(nil), examplePrompts...),
		}
	}

	padded := text.Padded()
	technicalScore, detected := pv.calculateTechnicalScore(padded)
	ambiguousScore, _ := scoreGroup(padded, pv.ambiguous)
	invalidScore, _ := scoreGroup(padded, pv.unrelated)

	verdict := Verdict{
		DetectedTerms:  detected,
		TechnicalScore: technicalScore,
		AmbiguousScore: ambiguousScore,
		InvalidScore:   invalidScore,
	}

	// The order of these rules is the contract: a strong technical signal wins
	// over any negative signal.
	switch {
	case technicalScore >= TechnicalThreshold:
		verdict.IsValid = true
		verdict.Category = CategoryTechnical
		verdict.Confidence = min(MaxConfidence, technicalScore*ConfidencePerPoint)
	case technicalScore >= WeakTechnicalThreshold && ambiguousScore > 0:
		verdict.IsValid = true
		verdict.Category = CategoryAmbiguous
		verdict.Confidence = AmbiguousValidConfidence
		verdict.Message = "Prompt is partially technical; results improve with more detail"
		verdict.Suggestions = append([]string(nil), improvementSuggestions...)
	case ambiguousScore > 0 && technicalScore < WeakTechnicalThreshold:
		verdict.IsValid = false
		verdict.Category = CategoryAmbiguous
		verdict.Confidence = AmbiguousInvalidConfidence
		verdict.Message = "Prompt is too vague to generate a playbook"
		verdict.Suggestions = append([]string(nil), examplePrompts...)
	case invalidScore > 0:
		verdict.IsValid = false
		verdict.Category = CategoryInvalid
		verdict.Confidence = 0
		verdict.Message = "Prompt is not related to infrastructure automation"
	default:
		verdict.IsValid = false
		verdict.Category = CategoryInvalid
		verdict.Confidence = 0
		verdict.Message = "No technical service detected in prompt"
		verdict.Suggestions = append([]string(nil), examplePrompts...)
	}

	return verdict
}

// calculateTechnicalScore sums the weights of every technical term found
func (pv *PromptValidator) calculateTechnicalScore(padded string) (int, []string) {
	total := 0
	detected := []string{}
	for _, group := range pv.technical {
		score, terms := scoreGroup(padded, group)
		total += score
		detected = append(detected, terms...)
	}
	return total, detected
}

func scoreGroup(padded string, group termGroup) (int, []string) {
	score := 0
	var matched []string
	for _, term := range group.terms {
		if textnorm.ContainsTerm(padded, term) {
			score += group.weight
			matched = append(matched, term)
		}
	}
	return score, matched
}

// RejectionMessage returns a user-friendly message for a rejected verdict
func (pv *PromptValidator) RejectionMessage(v Verdict) string {
	switch v.Category {
	case CategoryEmpty:
		return "Please describe the infrastructure task you want to automate."
	case CategoryAmbiguous:
		return "Your request is too vague. Try something like: " + strings.Join(examplePrompts, "; ")
	default:
		return "I generate infrastructure playbooks. " +
			"Please describe servers, services, operating systems or cloud resources to automate."
	}
}
