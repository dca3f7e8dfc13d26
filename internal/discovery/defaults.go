package discovery

const mib = 1024 * 1024

// Profile is the built-in search policy for one source type.
type Profile struct {
	Roots         []string
	Patterns      []string
	MaxFiles      int
	MaxTotalBytes int64
	Reason        string
}

var (
	NginxGlobs = []string{
		"/var/log/nginx/access.log*",
		"/var/log/nginx/*access*.log*",
		"/var/log/nginx/*access*",
		"/var/log/*nginx*access*.log*",
	}

	ApacheGlobs = []string{
		"/var/log/apache2/access.log*",
		"/var/log/apache2/*access*.log*",
		"/var/log/httpd/access_log*",
		"/var/log/httpd/*access*.log*",
	}

	DNSGlobs = []string{
		// BIND/named
		"/var/log/named/*.log*",
		"/var/log/named/named.log*",
		"/var/log/named/query.log*",
		"/var/log/bind/*.log*",
		"/var/log/bind9/*.log*",
		// unbound
		"/var/log/unbound/unbound.log*",
		// dnsmasq
		"/var/log/dnsmasq*.log*",
		"/var/log/dnsmasq/*.log*",
		// pi-hole
		"/var/log/pihole/pihole.log*",
	}

	SyslogGlobs = []string{
		"/var/log/syslog*",
		"/var/log/daemon.log*",
		"/var/log/auth.log*",
		"/var/log/kern.log*",
		"/var/log/messages*",
		"/var/log/secure*",
		// remote fan-out templates (rsyslog, syslog-ng)
		"/var/log/remote/**/*",
		"/var/log/hosts/**/*",
		"/var/log/clients/**/*",
		"/var/log/rsyslog/**/*",
		"/var/log/syslog-ng/**/*",
	}

	AppGlobs = []string{
		// vCenter appliance
		"/var/log/vmware/**/*.log*",
		"/var/log/vmware/**/vpxd*",
		"/var/log/vmware/**/sso*",
		"/var/log/vmware/**/vsphere-ui*",
		"/var/log/vmware/**/applmgmt*",
		// GitLab omnibus
		"/var/log/gitlab/**/*.log*",
		"/var/log/gitlab/**/current*",
		// Atlassian
		"/var/atlassian/**/logs/*.log*",
		"/var/atlassian/**/logs/catalina.out*",
		"/opt/atlassian/**/logs/*.log*",
		"/opt/atlassian/**/logs/catalina.out*",
		"/opt/zimbra/log/*.log*",
		"/var/log/grafana/*.log*",
		"/var/log/elasticsearch/*.log*",
		"/var/log/opensearch/*.log*",
		"/var/log/kibana/*.log*",
		"/var/log/opensearch-dashboards/*.log*",
		"/var/log/suricata/eve.json*",
	}

	// Load balancer and firewall exports are usually copied somewhere by
	// hand, so these are searched relative to the given roots.
	ALBGlobs = []string{
		"./AWSLogs/**/elasticloadbalancing/**/*",
		"./**/*elb*access*log*",
		"./**/*alb*access*log*",
		"./**/*loadbalancer*access*log*",
		"./**/*elasticloadbalancing*",
	}

	FirewallGlobs = []string{
		"**/*firewall*.log*",
		"**/*pan*.log*",
		"**/*paloalto*.log*",
		"**/*forti*.log*",
		"**/*checkpoint*.log*",
		"**/*netflow*.log*",
		"**/*flow*.log*",
		"**/*traffic*.log*",
		"**/*fw*.csv*",
		"**/*firewall*.csv*",
	}
)

// Profiles returns the default search policy per source type.
func Profiles() map[string]Profile {
	return map[string]Profile{
		"web": {
			Roots:         []string{"/"},
			Patterns:      append(append([]string{}, NginxGlobs...), ApacheGlobs...),
			MaxFiles:      25,
			MaxTotalBytes: 500 * mib,
			Reason:        "matched default glob",
		},
		"dns": {
			Roots:         []string{"/"},
			Patterns:      DNSGlobs,
			MaxFiles:      25,
			MaxTotalBytes: 600 * mib,
			Reason:        "matched dns glob",
		},
		"syslog": {
			Roots:         []string{"/"},
			Patterns:      SyslogGlobs,
			MaxFiles:      25,
			MaxTotalBytes: 800 * mib,
			Reason:        "matched syslog glob",
		},
		"app": {
			Roots:         []string{"/"},
			Patterns:      AppGlobs,
			MaxFiles:      50,
			MaxTotalBytes: 800 * mib,
			Reason:        "matched app log glob",
		},
		"alb": {
			Roots:         []string{"."},
			Patterns:      ALBGlobs,
			MaxFiles:      25,
			MaxTotalBytes: 500 * mib,
			Reason:        "matched alb glob",
		},
		"firewall": {
			Roots:         []string{"."},
			Patterns:      FirewallGlobs,
			MaxFiles:      25,
			MaxTotalBytes: 500 * mib,
			Reason:        "matched firewall glob",
		},
	}
}
