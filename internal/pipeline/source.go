package pipeline

import (
	"fmt"
	"strings"
)

// Source is a log source type.
type Source string

const (
	Web      Source = "web"
	ALB      Source = "alb"
	Firewall Source = "firewall"
	DNS      Source = "dns"
	Syslog   Source = "syslog"
	App      Source = "app"
)

// BundleOrder is the fixed order in which source outputs are merged.
var BundleOrder = []Source{Web, ALB, Firewall, DNS, Syslog, App}

// Valid reports whether s is a known source.
func (s Source) Valid() bool {
	for _, b := range BundleOrder {
		if s == b {
			return true
		}
	}
	return false
}

// ParseSource accepts a source name, including the nginx and apache aliases
// for web.
func ParseSource(name string) (Source, error) {
	switch s := Source(strings.ToLower(strings.TrimSpace(name))); s {
	case "nginx", "apache":
		return Web, nil
	case "elb":
		return ALB, nil
	default:
		if s.Valid() {
			return s, nil
		}
		return "", fmt.Errorf("unknown source %q", name)
	}
}
