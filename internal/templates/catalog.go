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

package templates

import (
	"fmt"
	"strings"

	"github.com/your-org/playbook-assistant/internal/deployment"
)

// service describes how a canonical service is installed and run
type service struct {
	pkg          string
	pkgRedHat    string
	daemon       string
	daemonRedHat string
	port         int
	group        string
	config       string
	image        string
}

var serviceCatalog = map[string]service{
	"nginx":         {"nginx", "nginx", "nginx", "nginx", 80, "webservers", "/etc/nginx/conf.d/app.conf", "nginx:stable"},
	"apache":        {"apache2", "httpd", "apache2", "httpd", 80, "webservers", "/etc/apache2/sites-available/app.conf", "httpd:2.4"},
	"mysql":         {"mysql-server", "mysql-server", "mysql", "mysqld", 3306, "dbservers", "", "mysql:8"},
	"mariadb":       {"mariadb-server", "mariadb-server", "mariadb", "mariadb", 3306, "dbservers", "", "mariadb:11"},
	"postgresql":    {"postgresql", "postgresql-server", "postgresql", "postgresql", 5432, "dbservers", "", "postgres:16"},
	"mongodb":       {"mongodb-org", "mongodb-org", "mongod", "mongod", 27017, "dbservers", "", "mongo:7"},
	"redis":         {"redis-server", "redis", "redis-server", "redis", 6379, "cache", "", "redis:7"},
	"elasticsearch": {"elasticsearch", "elasticsearch", "elasticsearch", "elasticsearch", 9200, "search", "", "elasticsearch:8.13.4"},
	"rabbitmq":      {"rabbitmq-server", "rabbitmq-server", "rabbitmq-server", "rabbitmq-server", 5672, "brokers", "", "rabbitmq:3-management"},
	"kafka":         {"kafka", "kafka", "kafka", "kafka", 9092, "brokers", "", "bitnami/kafka:3.7"},
	"haproxy":       {"haproxy", "haproxy", "haproxy", "haproxy", 80, "loadbalancers", "/etc/haproxy/haproxy.cfg", "haproxy:2.9"},
	"tomcat":        {"tomcat9", "tomcat", "tomcat9", "tomcat", 8080, "appservers", "", "tomcat:10"},
	"nodejs":        {"nodejs", "nodejs", "", "", 0, "appservers", "", "node:20"},
	"php":           {"php-fpm", "php-fpm", "php8.2-fpm", "php-fpm", 0, "webservers", "", "php:8.2-fpm"},
	"jenkins":       {"jenkins", "jenkins", "jenkins", "jenkins", 8080, "ci", "", "jenkins/jenkins:lts"},
	"gitlab":        {"gitlab-ce", "gitlab-ce", "gitlab-runsvdir", "gitlab-runsvdir", 80, "ci", "", "gitlab/gitlab-ce:latest"},
	"prometheus":    {"prometheus", "prometheus", "prometheus", "prometheus", 9090, "monitoring", "", "prom/prometheus:latest"},
	"grafana":       {"grafana", "grafana", "grafana-server", "grafana-server", 3000, "monitoring", "", "grafana/grafana:latest"},
	"docker":        {"docker.io", "docker-ce", "docker", "docker", 0, "docker_hosts", "", ""},
	"wordpress":     {"wordpress", "wordpress", "", "", 0, "webservers", "", "wordpress:latest"},
	"memcached":     {"memcached", "memcached", "memcached", "memcached", 11211, "cache", "", "memcached:1.6"},
	"postfix":       {"postfix", "postfix", "postfix", "postfix", 25, "mailservers", "", ""},
}

var redHatTargets = map[string]bool{"centos": true, "rhel": true, "rocky": true, "almalinux": true, "fedora": true}

func lookupService(name string) service {
	if s, ok := serviceCatalog[name]; ok {
		return s
	}
	return service{pkg: name, pkgRedHat: name, daemon: name, daemonRedHat: name, group: "servers", image: name + ":latest"}
}

func (p Params) redHat() bool {
	for _, t := range p.Context.Targets {
		if redHatTargets[t] {
			return true
		}
	}
	return false
}

func (p Params) hostsFor(group string) string {
	if p.Include(deployment.FeatureMultiHost) && group != "" {
		return group
	}
	return "all"
}

func (p Params) hasTool(tool string) bool {
	for _, t := range p.Context.Tools {
		if t == tool {
			return true
		}
	}
	return false
}

func (s service) packageFor(p Params) string {
	if p.redHat() {
		return s.pkgRedHat
	}
	return s.pkg
}

func (s service) daemonFor(p Params) string {
	if p.redHat() {
		return s.daemonRedHat
	}
	return s.daemon
}

// orderedServices returns primary first, then every other requested service
func orderedServices(p Params, primary string) []string {
	out := []string{}
	if primary != "" {
		out = append(out, primary)
	}
	for _, s := range p.Services() {
		if s != primary {
			out = append(out, s)
		}
	}
	return out
}

func installTask(p Params, services []string) task {
	pkgs := make([]string, 0, len(services))
	for _, s := range services {
		pkgs = append(pkgs, lookupService(s).packageFor(p))
	}
	return task{
		name:   "Install packages",
		module: "ansible.builtin.package",
		args:   fields{{"name", pkgs}, {"state", "present"}},
	}
}

func serviceTask(daemon string) task {
	return task{
		name:   fmt.Sprintf("Ensure %s is running", daemon),
		module: "ansible.builtin.service",
		args:   fields{{"name", daemon}, {"state", "started"}, {"enabled", true}},
	}
}

func restartHandler(daemon string) task {
	return task{
		name:   "restart " + daemon,
		module: "ansible.builtin.service",
		args:   fields{{"name", daemon}, {"state", "restarted"}},
	}
}

func firewallTask(p Params, port int) task {
	if p.redHat() {
		return task{
			name:   fmt.Sprintf("Open port %d", port),
			module: "ansible.posix.firewalld",
			args: fields{
				{"port", fmt.Sprintf("%d/tcp", port)},
				{"permanent", true},
				{"immediate", true},
				{"state", "enabled"},
			},
		}
	}
	return task{
		name:   fmt.Sprintf("Allow port %d through ufw", port),
		module: "community.general.ufw",
		args:   fields{{"rule", "allow"}, {"port", fmt.Sprint(port)}, {"proto", "tcp"}},
	}
}

func monitoringTasks(p Params) []task {
	exporter := "prometheus-node-exporter"
	if p.redHat() {
		exporter = "node_exporter"
	}
	return []task{
		{
			name:   "Install node exporter",
			module: "ansible.builtin.package",
			args:   fields{{"name", exporter}, {"state", "present"}},
		},
		serviceTask(exporter),
	}
}

func validationTask(label string, port int, daemon string) task {
	if port > 0 {
		return task{
			name:   fmt.Sprintf("Verify %s is listening on port %d", label, port),
			module: "ansible.builtin.wait_for",
			args:   fields{{"port", port}, {"timeout", 30}},
		}
	}
	return task{
		name:    fmt.Sprintf("Verify %s is active", label),
		module:  "ansible.builtin.command",
		args:    "systemctl is-active " + daemon,
		control: fields{{"changed_when", false}},
	}
}

func reportTask(label string) task {
	return task{
		name:   "Write deployment report",
		module: "ansible.builtin.copy",
		args: fields{
			{"dest", "/var/log/playbook-assistant-report.log"},
			{"content", fmt.Sprintf("%s deployed on {{ inventory_hostname }} ({{ app_env }}) at {{ ansible_date_time.iso8601 }}\n", label)},
			{"mode", "0644"},
		},
	}
}

// withFeatures adds the tier-gated parts to a host play
func withFeatures(pl play, p Params, label string, port int, daemon string) play {
	if p.Include(deployment.FeatureContinuousDelivery) {
		pl.extra = append(pl.extra, field{"serial", "25%"}, field{"max_fail_percentage", 0})
	}
	if p.Include(deployment.FeatureMonitoring) {
		pl.tasks = append(pl.tasks, monitoringTasks(p)...)
	}
	if p.Include(deployment.FeatureValidation) && (port > 0 || daemon != "") {
		pl.postTasks = append(pl.postTasks, validationTask(label, port, daemon))
	}
	if p.Include(deployment.FeatureReporting) {
		pl.postTasks = append(pl.postTasks, reportTask(label))
	}
	return pl
}

// hostServicePlay installs services on conventional hosts
func hostServicePlay(p Params, primary, hosts string) play {
	services := orderedServices(p, primary)
	svc := lookupService(primary)
	if hosts == "" {
		hosts = p.hostsFor(svc.group)
	}

	title := "Configure hosts"
	if primary != "" {
		title = "Deploy " + primary
	}
	pl := play{
		name:   fmt.Sprintf("%s (%s)", title, p.Env()),
		hosts:  hosts,
		become: true,
		vars:   fields{{"app_env", p.Env()}},
	}

	if len(services) == 0 {
		pl.tasks = append(pl.tasks, task{name: "Check connectivity", module: "ansible.builtin.ping"})
		return withFeatures(pl, p, "hosts", 0, "")
	}

	pl.tasks = append(pl.tasks, installTask(p, services))

	for _, name := range services {
		s := lookupService(name)
		daemon := s.daemonFor(p)
		if s.config != "" && daemon != "" {
			pl.tasks = append(pl.tasks, task{
				name:    fmt.Sprintf("Deploy %s configuration", name),
				module:  "ansible.builtin.template",
				args:    fields{{"src", fmt.Sprintf("templates/%s.conf.j2", name)}, {"dest", s.config}, {"mode", "0644"}},
				control: fields{{"notify", "restart " + daemon}},
			})
			pl.handlers = append(pl.handlers, restartHandler(daemon))
		}
		if daemon != "" {
			pl.tasks = append(pl.tasks, serviceTask(daemon))
		}
	}

	if p.Has("ssl") && (svc.port == 80 || primary == "") {
		pl.vars = append(pl.vars, field{"server_name", "example.com"}, field{"admin_email", "admin@example.com"})
		plugin := "python3-certbot-nginx"
		if primary == "apache" {
			plugin = "python3-certbot-apache"
		}
		pl.tasks = append(pl.tasks,
			task{
				name:   "Install certbot",
				module: "ansible.builtin.package",
				args:   fields{{"name", []string{"certbot", plugin}}, {"state", "present"}},
			},
			task{
				name:   "Obtain TLS certificate",
				module: "ansible.builtin.command",
				args: fmt.Sprintf("certbot --%s -d {{ server_name }} --non-interactive --agree-tos -m {{ admin_email }}",
					strings.TrimPrefix(plugin, "python3-certbot-")),
				control: fields{{"args", fields{{"creates", "/etc/letsencrypt/live/{{ server_name }}/fullchain.pem"}}}},
			},
		)
	}

	if p.Has("firewall") {
		for _, name := range services {
			if port := lookupService(name).port; port > 0 {
				pl.tasks = append(pl.tasks, firewallTask(p, port))
			}
		}
		if p.Has("ssl") {
			pl.tasks = append(pl.tasks, firewallTask(p, 443))
		}
	}

	return withFeatures(pl, p, primary, svc.port, svc.daemonFor(p))
}

func serviceTemplate(name, primary, description string, keywords ...string) Template {
	return Template{
		Name:             name,
		Description:      description,
		Context:          deployment.ContextClassicLinux,
		RequiredEntities: []string{primary},
		Keywords:         keywords,
		Weight:           3,
		Render: func(p Params) string {
			return render(hostServicePlay(p, primary, ""))
		},
	}
}

func builtinTemplates() []Template {
	return []Template{
		serviceTemplate("nginx-webserver", "nginx", "nginx web server or reverse proxy",
			"nginx", "web server", "serveur web", "reverse proxy", "virtual host"),
		serviceTemplate("apache-webserver", "apache", "Apache HTTP server",
			"apache", "httpd", "web server", "serveur web", "virtual host"),
		serviceTemplate("postgresql-database", "postgresql", "PostgreSQL database server",
			"postgresql", "postgres", "database", "base de donnees"),
		serviceTemplate("mysql-database", "mysql", "MySQL database server",
			"mysql", "database", "base de donnees"),
		serviceTemplate("mariadb-database", "mariadb", "MariaDB database server",
			"mariadb", "database", "base de donnees"),
		serviceTemplate("redis-cache", "redis", "Redis cache",
			"redis", "cache"),
		serviceTemplate("haproxy-loadbalancer", "haproxy", "HAProxy load balancer",
			"haproxy", "load balancer", "repartiteur de charge"),
		{
			Name:        "security-hardening",
			Description: "Firewall, SSH hardening and intrusion prevention",
			Context:     deployment.ContextClassicLinux,
			Keywords:    []string{"harden", "hardening", "durcissement", "securiser", "secure", "firewall", "pare feu", "fail2ban", "ssh"},
			Weight:      3,
			Render:      renderSecurity,
		},
		{
			Name:        "monitoring-stack",
			Description: "Prometheus, node exporter and optional Grafana",
			Context:     deployment.ContextClassicLinux,
			Keywords:    []string{"monitoring", "monitor", "supervision", "prometheus", "grafana", "metrics", "metriques"},
			Weight:      3,
			Render:      renderMonitoring,
		},
		{
			Name:        "backup-schedule",
			Description: "Scheduled backups with retention",
			Context:     deployment.ContextClassicLinux,
			Keywords:    []string{"backup", "backups", "sauvegarde", "sauvegarder", "snapshot", "cron"},
			Weight:      3,
			Render:      renderBackup,
		},
		{
			Name:        "user-management",
			Description: "User accounts, SSH keys and sudo rules",
			Context:     deployment.ContextClassicLinux,
			Keywords:    []string{"user", "users", "utilisateur", "utilisateurs", "account", "compte", "sudo", "ssh key"},
			Weight:      3,
			Render:      renderUsers,
		},
		{
			Name:        "system-update",
			Description: "Package upgrades with conditional reboot",
			Context:     deployment.ContextClassicLinux,
			Keywords:    []string{"update", "upgrade", "patch", "patching", "mise a jour", "mettre a jour"},
			Weight:      3,
			Render:      renderUpdate,
		},
		{
			Name:        "linux-packages",
			Description: "Install and start the requested services",
			Context:     deployment.ContextClassicLinux,
			Keywords:    []string{"install", "installer", "setup", "configure", "deploy"},
			Weight:      1,
			Fallback:    true,
			Render: func(p Params) string {
				primary := ""
				if services := p.Services(); len(services) > 0 {
					primary = services[0]
				}
				return render(hostServicePlay(p, primary, ""))
			},
		},
		{
			Name:        "docker-compose-app",
			Description: "Docker engine with a compose project",
			Context:     deployment.ContextDocker,
			Keywords:    []string{"docker", "compose", "container", "conteneur"},
			Weight:      3,
			Fallback:    true,
			Render:      renderCompose,
		},
		{
			Name:        "kubernetes-app",
			Description: "Namespace and workloads on a Kubernetes cluster",
			Context:     deployment.ContextKubernetes,
			Keywords:    []string{"kubernetes", "k8s", "helm", "cluster", "pod"},
			Weight:      3,
			Fallback:    true,
			Render: func(p Params) string {
				return render(kubernetesPlay(p))
			},
		},
		{
			Name:        "terraform-provision",
			Description: "Cloud provisioning through Terraform",
			Context:     deployment.ContextTerraform,
			Keywords:    []string{"terraform", "provision", "infrastructure as code", "vpc", "instance"},
			Weight:      3,
			Fallback:    true,
			Render: func(p Params) string {
				return render(provisionPlay(p, false))
			},
		},
		{
			Name:        "hybrid-provision-configure",
			Description: "Provision infrastructure then configure it",
			Context:     deployment.ContextHybrid,
			Keywords:    []string{"terraform", "kubernetes", "provision", "then", "puis"},
			Weight:      3,
			Fallback:    true,
			Render:      renderHybrid,
		},
		{
			Name:        "serverless-function",
			Description: "AWS Lambda function deployment",
			Context:     deployment.ContextServerless,
			Keywords:    []string{"lambda", "serverless", "function", "fonction"},
			Weight:      3,
			Fallback:    true,
			Render:      renderServerless,
		},
	}
}

func renderSecurity(p Params) string {
	sshDaemon := "ssh"
	pkgs := []string{"ufw", "fail2ban"}
	if p.redHat() {
		sshDaemon = "sshd"
		pkgs = []string{"firewalld", "fail2ban"}
	}

	pl := play{
		name:   fmt.Sprintf("Harden hosts (%s)", p.Env()),
		hosts:  p.hostsFor("all"),
		become: true,
		vars:   fields{{"app_env", p.Env()}, {"ssh_port", 22}},
		tasks: []task{
			{name: "Install security packages", module: "ansible.builtin.package", args: fields{{"name", pkgs}, {"state", "present"}}},
			{
				name:    "Disable root login over SSH",
				module:  "ansible.builtin.lineinfile",
				args:    fields{{"path", "/etc/ssh/sshd_config"}, {"regexp", "^#?PermitRootLogin"}, {"line", "PermitRootLogin no"}, {"validate", "/usr/sbin/sshd -t -f %s"}},
				control: fields{{"notify", "restart " + sshDaemon}},
			},
			{
				name:    "Disable SSH password authentication",
				module:  "ansible.builtin.lineinfile",
				args:    fields{{"path", "/etc/ssh/sshd_config"}, {"regexp", "^#?PasswordAuthentication"}, {"line", "PasswordAuthentication no"}, {"validate", "/usr/sbin/sshd -t -f %s"}},
				control: fields{{"notify", "restart " + sshDaemon}},
			},
		},
		handlers: []task{restartHandler(sshDaemon)},
	}

	if p.redHat() {
		pl.tasks = append(pl.tasks,
			serviceTask("firewalld"),
			task{
				name:   "Allow SSH through firewalld",
				module: "ansible.posix.firewalld",
				args:   fields{{"service", "ssh"}, {"permanent", true}, {"immediate", true}, {"state", "enabled"}},
			},
		)
	} else {
		pl.tasks = append(pl.tasks,
			task{name: "Allow SSH through ufw", module: "community.general.ufw", args: fields{{"rule", "limit"}, {"port", "{{ ssh_port }}"}, {"proto", "tcp"}}},
			task{name: "Enable ufw with deny policy", module: "community.general.ufw", args: fields{{"state", "enabled"}, {"policy", "deny"}}},
		)
	}
	pl.tasks = append(pl.tasks, serviceTask("fail2ban"))

	for _, name := range p.Services() {
		if port := lookupService(name).port; port > 0 {
			pl.tasks = append(pl.tasks, firewallTask(p, port))
		}
	}
	if p.Has("selinux") && p.redHat() {
		pl.tasks = append(pl.tasks, task{
			name:   "Enforce SELinux",
			module: "ansible.posix.selinux",
			args:   fields{{"policy", "targeted"}, {"state", "enforcing"}},
		})
	}

	return render(withFeatures(pl, p, "sshd", 22, sshDaemon))
}

func renderMonitoring(p Params) string {
	prometheus := lookupService("prometheus")
	pl := play{
		name:   fmt.Sprintf("Deploy monitoring (%s)", p.Env()),
		hosts:  p.hostsFor(prometheus.group),
		become: true,
		vars:   fields{{"app_env", p.Env()}, {"scrape_interval", "15s"}},
	}

	services := []string{"prometheus"}
	if p.Has("grafana") {
		services = append(services, "grafana")
	}
	pl.tasks = append(pl.tasks, installTask(p, services))
	pl.tasks = append(pl.tasks, monitoringTasks(p)...)
	pl.tasks = append(pl.tasks, task{
		name:    "Configure Prometheus scrape targets",
		module:  "ansible.builtin.template",
		args:    fields{{"src", "templates/prometheus.yml.j2"}, {"dest", "/etc/prometheus/prometheus.yml"}, {"mode", "0644"}},
		control: fields{{"notify", "restart prometheus"}},
	})
	for _, name := range services {
		pl.tasks = append(pl.tasks, serviceTask(lookupService(name).daemonFor(p)))
	}
	pl.handlers = append(pl.handlers, restartHandler("prometheus"))

	// the feature gate would add node exporter twice
	if p.Include(deployment.FeatureValidation) {
		pl.postTasks = append(pl.postTasks, validationTask("prometheus", prometheus.port, ""))
	}
	if p.Include(deployment.FeatureReporting) {
		pl.postTasks = append(pl.postTasks, reportTask("monitoring"))
	}
	return render(pl)
}

func renderBackup(p Params) string {
	pl := play{
		name:   fmt.Sprintf("Schedule backups (%s)", p.Env()),
		hosts:  p.hostsFor("all"),
		become: true,
		vars:   fields{{"app_env", p.Env()}, {"backup_dir", "/var/backups/playbook-assistant"}, {"retention_days", 7}},
		tasks: []task{
			{
				name:   "Create backup directory",
				module: "ansible.builtin.file",
				args:   fields{{"path", "{{ backup_dir }}"}, {"state", "directory"}, {"mode", "0750"}},
			},
			{
				name:   "Schedule configuration backup",
				module: "ansible.builtin.cron",
				args:   fields{{"name", "etc backup"}, {"minute", "0"}, {"hour", "2"}, {"job", `tar czf {{ backup_dir }}/etc-$(date +\%F).tar.gz /etc`}},
			},
		},
	}

	if p.Has("postgresql") {
		pl.tasks = append(pl.tasks, task{
			name:   "Schedule PostgreSQL dump",
			module: "ansible.builtin.cron",
			args:   fields{{"name", "postgresql dump"}, {"minute", "30"}, {"hour", "2"}, {"user", "postgres"}, {"job", `pg_dumpall | gzip > {{ backup_dir }}/pg-$(date +\%F).sql.gz`}},
		})
	}
	if p.Has("mysql") || p.Has("mariadb") {
		pl.tasks = append(pl.tasks, task{
			name:   "Schedule MySQL dump",
			module: "ansible.builtin.cron",
			args:   fields{{"name", "mysql dump"}, {"minute", "45"}, {"hour", "2"}, {"job", `mysqldump --all-databases | gzip > {{ backup_dir }}/mysql-$(date +\%F).sql.gz`}},
		})
	}

	pl.tasks = append(pl.tasks, task{
		name:   "Prune old backups",
		module: "ansible.builtin.cron",
		args:   fields{{"name", "backup retention"}, {"minute", "0"}, {"hour", "4"}, {"job", "find {{ backup_dir }} -type f -mtime +{{ retention_days }} -delete"}},
	})

	return render(withFeatures(pl, p, "backups", 0, "cron"))
}

func renderUsers(p Params) string {
	pl := play{
		name:   fmt.Sprintf("Manage users (%s)", p.Env()),
		hosts:  p.hostsFor("all"),
		become: true,
		vars: fields{
			{"app_env", p.Env()},
			{"managed_users", []fields{{{"name", "deploy"}, {"groups", "sudo"}}}},
		},
		tasks: []task{
			{
				name:    "Create user accounts",
				module:  "ansible.builtin.user",
				args:    fields{{"name", "{{ item.name }}"}, {"groups", "{{ item.groups }}"}, {"append", true}, {"shell", "/bin/bash"}},
				control: fields{{"loop", "{{ managed_users }}"}},
			},
			{
				name:    "Install SSH public keys",
				module:  "ansible.posix.authorized_key",
				args:    fields{{"user", "{{ item.name }}"}, {"key", "{{ lookup('file', 'files/' + item.name + '.pub') }}"}},
				control: fields{{"loop", "{{ managed_users }}"}},
			},
			{
				name:   "Grant passwordless sudo to deploy",
				module: "ansible.builtin.copy",
				args:   fields{{"dest", "/etc/sudoers.d/deploy"}, {"content", "deploy ALL=(ALL) NOPASSWD: ALL\n"}, {"mode", "0440"}, {"validate", "visudo -cf %s"}},
			},
		},
	}
	return render(withFeatures(pl, p, "users", 0, ""))
}

func renderUpdate(p Params) string {
	pl := play{
		name:   fmt.Sprintf("Update packages (%s)", p.Env()),
		hosts:  p.hostsFor("all"),
		become: true,
		vars:   fields{{"app_env", p.Env()}},
	}
	if p.redHat() {
		pl.tasks = []task{
			{name: "Upgrade all packages", module: "ansible.builtin.dnf", args: fields{{"name", "*"}, {"state", "latest"}}},
			{
				name:    "Check whether a reboot is needed",
				module:  "ansible.builtin.command",
				args:    "needs-restarting -r",
				control: fields{{"register", "reboot_check"}, {"changed_when", false}, {"failed_when", "reboot_check.rc not in [0, 1]"}},
			},
			{name: "Reboot when required", module: "ansible.builtin.reboot", args: fields{{"reboot_timeout", 600}}, control: fields{{"when", "reboot_check.rc == 1"}}},
		}
	} else {
		pl.tasks = []task{
			{name: "Upgrade all packages", module: "ansible.builtin.apt", args: fields{{"upgrade", "dist"}, {"update_cache", true}}},
			{name: "Check whether a reboot is needed", module: "ansible.builtin.stat", args: fields{{"path", "/var/run/reboot-required"}}, control: fields{{"register", "reboot_required"}}},
			{name: "Reboot when required", module: "ansible.builtin.reboot", args: fields{{"reboot_timeout", 600}}, control: fields{{"when", "reboot_required.stat.exists"}}},
		}
	}
	return render(withFeatures(pl, p, "updates", 0, ""))
}

func composeFile(p Params) string {
	var b strings.Builder
	b.WriteString("services:\n")
	services := p.Services()
	written := 0
	for _, name := range services {
		s := lookupService(name)
		if s.image == "" {
			continue
		}
		written++
		fmt.Fprintf(&b, "  %s:\n    image: %s\n    restart: unless-stopped\n", name, s.image)
		if s.port > 0 {
			fmt.Fprintf(&b, "    ports:\n      - \"%d:%d\"\n", s.port, s.port)
		}
	}
	if written == 0 {
		b.WriteString("  app:\n    image: nginx:stable\n    restart: unless-stopped\n    ports:\n      - \"80:80\"\n")
	}
	return b.String()
}

func renderCompose(p Params) string {
	engine := lookupService("docker")
	pl := play{
		name:   fmt.Sprintf("Run containers with docker compose (%s)", p.Env()),
		hosts:  p.hostsFor(engine.group),
		become: true,
		vars:   fields{{"app_env", p.Env()}, {"project_dir", "/opt/app"}},
		tasks: []task{
			{name: "Install docker engine", module: "ansible.builtin.package", args: fields{{"name", []string{engine.packageFor(p), "docker-compose-plugin"}}, {"state", "present"}}},
			serviceTask("docker"),
			{name: "Create project directory", module: "ansible.builtin.file", args: fields{{"path", "{{ project_dir }}"}, {"state", "directory"}, {"mode", "0755"}}},
			{name: "Write compose file", module: "ansible.builtin.copy", args: fields{{"dest", "{{ project_dir }}/compose.yaml"}, {"content", composeFile(p)}, {"mode", "0644"}}},
			{name: "Start compose project", module: "community.docker.docker_compose_v2", args: fields{{"project_src", "{{ project_dir }}"}, {"state", "present"}}},
		},
	}
	return render(withFeatures(pl, p, "docker", 0, "docker"))
}

func kubernetesPlay(p Params) play {
	pl := play{
		name:        fmt.Sprintf("Deploy workloads to Kubernetes (%s)", p.Env()),
		hosts:       "localhost",
		connection:  "local",
		gatherFacts: boolPtr(false),
		vars:        fields{{"app_env", p.Env()}, {"namespace", "app-" + p.Env()}},
		tasks: []task{{
			name:   "Create namespace",
			module: "kubernetes.core.k8s",
			args:   fields{{"api_version", "v1"}, {"kind", "Namespace"}, {"name", "{{ namespace }}"}, {"state", "present"}},
		}},
	}

	services := p.Services()
	if len(services) == 0 {
		services = []string{"app"}
	}
	replicas := 1
	if p.Include(deployment.FeatureMultiHost) {
		replicas = 3
	}

	if p.hasTool("helm") {
		pl.tasks = append(pl.tasks, task{
			name:   "Add bitnami chart repository",
			module: "kubernetes.core.helm_repository",
			args:   fields{{"name", "bitnami"}, {"repo_url", "https://charts.bitnami.com/bitnami"}},
		})
		for _, name := range services {
			pl.tasks = append(pl.tasks, task{
				name:   "Install " + name + " chart",
				module: "kubernetes.core.helm",
				args: fields{
					{"name", name},
					{"chart_ref", "bitnami/" + name},
					{"release_namespace", "{{ namespace }}"},
					{"values", fields{{"replicaCount", replicas}}},
				},
			})
		}
	} else {
		for _, name := range services {
			s := lookupService(name)
			image := s.image
			if image == "" {
				image = "nginx:stable"
			}
			container := fields{{"name", name}, {"image", image}}
			if s.port > 0 {
				container = append(container, field{"ports", []fields{{{"containerPort", s.port}}}})
			}
			labels := fields{{"app", name}}
			pl.tasks = append(pl.tasks, task{
				name:   "Deploy " + name,
				module: "kubernetes.core.k8s",
				args: fields{
					{"state", "present"},
					{"definition", fields{
						{"apiVersion", "apps/v1"},
						{"kind", "Deployment"},
						{"metadata", fields{{"name", name}, {"namespace", "{{ namespace }}"}}},
						{"spec", fields{
							{"replicas", replicas},
							{"selector", fields{{"matchLabels", labels}}},
							{"template", fields{
								{"metadata", fields{{"labels", labels}}},
								{"spec", fields{{"containers", []fields{container}}}},
							}},
						}},
					}},
				},
			})
		}
	}

	if p.Include(deployment.FeatureValidation) {
		pl.postTasks = append(pl.postTasks, task{
			name:    "Wait for deployments to be available",
			module:  "kubernetes.core.k8s_info",
			args:    fields{{"kind", "Deployment"}, {"namespace", "{{ namespace }}"}, {"wait", true}, {"wait_condition", fields{{"type", "Available"}, {"status", "True"}}}},
			control: fields{{"register", "deployments"}},
		})
	}
	if p.Include(deployment.FeatureReporting) {
		pl.postTasks = append(pl.postTasks, task{
			name:   "Report workloads",
			module: "ansible.builtin.debug",
			args:   fields{{"msg", "Deployed " + strings.Join(services, ", ") + " to {{ namespace }}"}},
		})
	}
	return pl
}

func cloudProvider(p Params) string {
	for _, t := range p.Context.Targets {
		switch t {
		case "aws", "azure", "gcp":
			return t
		}
	}
	return "aws"
}

func terraformConfig(provider, env string) string {
	switch provider {
	case "azure":
		return fmt.Sprintf(`provider "azurerm" {
  features {}
}

resource "azurerm_resource_group" "main" {
  name     = "app-%s"
  location = "westeurope"
}
`, env)
	case "gcp":
		return fmt.Sprintf(`provider "google" {
  project = var.project_id
  region  = "europe-west1"
}

variable "project_id" {
  type = string
}

resource "google_compute_network" "main" {
  name = "app-%s"
}
`, env)
	default:
		return fmt.Sprintf(`provider "aws" {
  region = "eu-west-1"
}

resource "aws_vpc" "main" {
  cidr_block = "10.0.0.0/16"
  tags = {
    Name        = "app-%s"
    Environment = "%s"
  }
}

output "instance_ips" {
  value = []
}
`, env, env)
	}
}

func provisionPlay(p Params, registerHosts bool) play {
	provider := cloudProvider(p)
	pl := play{
		name:        fmt.Sprintf("Provision %s infrastructure (%s)", provider, p.Env()),
		hosts:       "localhost",
		connection:  "local",
		gatherFacts: boolPtr(false),
		vars:        fields{{"app_env", p.Env()}, {"terraform_dir", "{{ playbook_dir }}/terraform"}},
		tasks: []task{
			{name: "Create Terraform directory", module: "ansible.builtin.file", args: fields{{"path", "{{ terraform_dir }}"}, {"state", "directory"}, {"mode", "0755"}}},
			{name: "Write Terraform configuration", module: "ansible.builtin.copy", args: fields{{"dest", "{{ terraform_dir }}/main.tf"}, {"content", terraformConfig(provider, p.Env())}, {"mode", "0644"}}},
			{
				name:    "Apply Terraform configuration",
				module:  "community.general.terraform",
				args:    fields{{"project_path", "{{ terraform_dir }}"}, {"state", "present"}, {"force_init", true}},
				control: fields{{"register", "terraform_result"}},
			},
		},
	}
	if registerHosts {
		pl.tasks = append(pl.tasks, task{
			name:    "Register provisioned hosts",
			module:  "ansible.builtin.add_host",
			args:    fields{{"name", "{{ item }}"}, {"groups", "provisioned"}},
			control: fields{{"loop", "{{ terraform_result.outputs.instance_ips.value | default([]) }}"}},
		})
	}
	if p.Include(deployment.FeatureReporting) || !registerHosts {
		pl.postTasks = append(pl.postTasks, task{
			name:   "Show Terraform outputs",
			module: "ansible.builtin.debug",
			args:   fields{{"var", "terraform_result.outputs"}},
		})
	}
	return pl
}

func renderHybrid(p Params) string {
	plays := []play{provisionPlay(p, true)}
	if p.Context.Orchestration != "" && p.Context.Orchestration != deployment.OrchestrationNone {
		plays = append(plays, kubernetesPlay(p))
	} else {
		primary := ""
		if services := p.Services(); len(services) > 0 {
			primary = services[0]
		}
		plays = append(plays, hostServicePlay(p, primary, "provisioned"))
	}
	return render(plays...)
}

func renderServerless(p Params) string {
	pl := play{
		name:        fmt.Sprintf("Deploy serverless function (%s)", p.Env()),
		hosts:       "localhost",
		connection:  "local",
		gatherFacts: boolPtr(false),
		vars: fields{
			{"app_env", p.Env()},
			{"function_name", "app-" + p.Env()},
			{"function_runtime", "python3.12"},
			{"function_handler", "app.handler"},
			{"lambda_role_arn", "arn:aws:iam::000000000000:role/lambda-execution"},
		},
		tasks: []task{
			{name: "Package function source", module: "community.general.archive", args: fields{{"path", "{{ playbook_dir }}/src/"}, {"dest", "{{ playbook_dir }}/build/function.zip"}, {"format", "zip"}}},
			{
				name:   "Deploy Lambda function",
				module: "amazon.aws.lambda",
				args: fields{
					{"name", "{{ function_name }}"},
					{"state", "present"},
					{"runtime", "{{ function_runtime }}"},
					{"handler", "{{ function_handler }}"},
					{"role", "{{ lambda_role_arn }}"},
					{"zip_file", "{{ playbook_dir }}/build/function.zip"},
					{"environment_variables", fields{{"APP_ENV", "{{ app_env }}"}}},
				},
				control: fields{{"register", "lambda_result"}},
			},
		},
	}
	if p.Include(deployment.FeatureValidation) {
		pl.postTasks = append(pl.postTasks, task{
			name:   "Invoke function once",
			module: "amazon.aws.lambda_execute",
			args:   fields{{"name", "{{ function_name }}"}, {"payload", fields{{"ping", true}}}},
		})
	}
	return render(pl)
}
