package config

import (
	"github.com/cyra/edge-events/internal/discovery"
	"github.com/cyra/edge-events/internal/parser"
)

// Config is the root configuration structure loaded from YAML. Anything
// left out of the file keeps its built-in default.
type Config struct {
	AssetID   string          `yaml:"asset_id"`
	Logging   LoggingConfig   `yaml:"logging"`
	Parser    ParserConfig    `yaml:"parser"`
	Keywords  parser.Keywords `yaml:"keywords"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Journal   JournalConfig   `yaml:"journal"`
	Filter    string          `yaml:"filter"` // expr boolean over event fields
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// LoggingConfig controls log verbosity, format and destination.
type LoggingConfig struct {
	Level      string `yaml:"level"` // e.g. "info", "debug"
	JSON       bool   `yaml:"json"`
	Path       string `yaml:"path"` // empty logs to stderr
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// ParserConfig holds settings shared by all parsers.
type ParserConfig struct {
	Host     string `yaml:"host"`      // host tag for web access events
	TrustXFF bool   `yaml:"trust_xff"` // resolve client from X-Forwarded-For
	MaxLines int    `yaml:"max_lines"` // per-file line cap, 0 = parser default
}

// Profile is the discovery policy for one source.
type Profile struct {
	Roots         []string `yaml:"roots"`
	Patterns      []string `yaml:"patterns"`
	MaxFiles      int      `yaml:"max_files"`       // 0 = unlimited
	MaxTotalBytes int64    `yaml:"max_total_bytes"` // 0 = unlimited
	Reason        string   `yaml:"reason"`
}

// DiscoveryConfig holds one profile per source.
type DiscoveryConfig struct {
	Web      Profile `yaml:"web"`
	ALB      Profile `yaml:"alb"`
	Firewall Profile `yaml:"firewall"`
	DNS      Profile `yaml:"dns"`
	Syslog   Profile `yaml:"syslog"`
	App      Profile `yaml:"app"`
}

// JournalConfig controls the journald fallback for web sources.
type JournalConfig struct {
	Enabled bool     `yaml:"enabled"`
	Units   []string `yaml:"units"`
	Since   string   `yaml:"since"` // journalctl --since value
}

// MetricsConfig selects where run metrics go. Both empty disables export.
type MetricsConfig struct {
	Textfile    string `yaml:"textfile"`
	Pushgateway string `yaml:"pushgateway"`
}

// Profile returns the discovery profile for source and whether it exists.
func (d *DiscoveryConfig) Profile(source string) (Profile, bool) {
	switch source {
	case "web":
		return d.Web, true
	case "alb":
		return d.ALB, true
	case "firewall":
		return d.Firewall, true
	case "dns":
		return d.DNS, true
	case "syslog":
		return d.Syslog, true
	case "app":
		return d.App, true
	}
	return Profile{}, false
}

func (d *DiscoveryConfig) profiles() map[string]*Profile {
	return map[string]*Profile{
		"web":      &d.Web,
		"alb":      &d.ALB,
		"firewall": &d.Firewall,
		"dns":      &d.DNS,
		"syslog":   &d.Syslog,
		"app":      &d.App,
	}
}

// Engine builds a discovery engine from p.
func (p Profile) Engine() *discovery.Engine {
	return &discovery.Engine{
		Roots:         p.Roots,
		Patterns:      p.Patterns,
		MaxFiles:      p.MaxFiles,
		MaxTotalBytes: p.MaxTotalBytes,
		Reason:        p.Reason,
	}
}
