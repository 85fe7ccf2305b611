package intent

// Intent names
const (
	IntentInstall        = "install"
	IntentConfigure      = "configure"
	IntentDeploy         = "deploy"
	IntentSecure         = "secure"
	IntentMonitor        = "monitor"
	IntentBackup         = "backup"
	IntentUpdate         = "update"
	IntentUserManagement = "user-management"
	IntentDatabase       = "database"
	IntentContainer      = "container"
	IntentOrchestrate    = "orchestrate"
	IntentProvision      = "provision"
	IntentCICD           = "cicd"
)

func defaultDefinitions() []Definition {
	return []Definition{
		{
			Name:     IntentInstall,
			Keywords: []string{"install", "installer", "setup", "set up", "mettre en place", "mise en place"},
			Weight:   3,
			Related:  []string{IntentConfigure},
		},
		{
			Name:     IntentConfigure,
			Keywords: []string{"configure", "configurer", "configuration", "parametrer", "settings", "virtual host"},
			Weight:   3,
			Related:  []string{IntentInstall},
		},
		{
			Name:     IntentDeploy,
			Keywords: []string{"deploy", "deployer", "deploiement", "release", "rollout", "mise en production"},
			Weight:   3,
			Related:  []string{IntentCICD, IntentMonitor},
		},
		{
			Name:     IntentSecure,
			Keywords: []string{"secure", "securiser", "harden", "durcir", "ssl", "tls", "firewall", "pare feu", "fail2ban", "certificate"},
			Weight:   2.5,
			Related:  []string{IntentConfigure},
		},
		{
			Name:     IntentMonitor,
			Keywords: []string{"monitor", "monitoring", "supervision", "surveiller", "alerting", "metrics", "prometheus", "grafana"},
			Weight:   2.5,
			Related:  []string{IntentConfigure},
		},
		{
			Name:     IntentBackup,
			Keywords: []string{"backup", "sauvegarde", "sauvegarder", "restore", "snapshot", "disaster recovery"},
			Weight:   3,
			Related:  []string{IntentMonitor},
		},
		{
			Name:     IntentUpdate,
			Keywords: []string{"update", "upgrade", "mise a jour", "mettre a jour", "patch"},
			Weight:   3,
			Related:  []string{IntentBackup},
		},
		{
			Name:     IntentUserManagement,
			Keywords: []string{"create user", "add user", "utilisateur", "ssh key", "sudo", "user account"},
			Weight:   2,
			Related:  []string{IntentSecure},
		},
		{
			Name:     IntentDatabase,
			Keywords: []string{"database", "base de donnees", "mysql", "postgresql", "mongodb", "replication"},
			Weight:   2,
			Related:  []string{IntentBackup},
		},
		{
			Name:     IntentContainer,
			Keywords: []string{"docker", "container", "conteneur", "compose", "podman"},
			Weight:   2.5,
			Related:  []string{IntentDeploy},
		},
		{
			Name:     IntentOrchestrate,
			Keywords: []string{"kubernetes", "k8s", "helm", "cluster", "pod"},
			Weight:   2.5,
			Related:  []string{IntentDeploy, IntentMonitor},
		},
		{
			Name:     IntentProvision,
			Keywords: []string{"terraform", "provision", "provisionner", "infrastructure as code", "vpc", "instance"},
			Weight:   2.5,
			Related:  []string{IntentDeploy},
		},
		{
			Name:     IntentCICD,
			Keywords: []string{"pipeline", "ci cd", "continuous delivery", "continuous deployment", "jenkins", "gitlab ci"},
			Weight:   2,
			Related:  []string{IntentDeploy},
		},
	}
}
