package config

import (
	"fmt"
	"os"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cyra/edge-events/internal/discovery"
	"github.com/cyra/edge-events/internal/logging"
	"github.com/cyra/edge-events/internal/logtail"
	"github.com/cyra/edge-events/internal/parser"
	"github.com/cyra/edge-events/internal/rules"
)

// DefaultJournalUnits are tried in order when no web log file is found.
var DefaultJournalUnits = []string{"nginx", "apache2", "httpd"}

// Default returns the built-in configuration.
func Default() *Config {
	c := &Config{
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Keywords: parser.DefaultKeywords(),
		Journal: JournalConfig{
			Enabled: true,
			Units:   append([]string{}, DefaultJournalUnits...),
			Since:   logtail.DefaultSince,
		},
	}
	defs := discovery.Profiles()
	for name, p := range c.Discovery.profiles() {
		d := defs[name]
		*p = Profile{
			Roots:         append([]string{}, d.Roots...),
			Patterns:      append([]string{}, d.Patterns...),
			MaxFiles:      d.MaxFiles,
			MaxTotalBytes: d.MaxTotalBytes,
			Reason:        d.Reason,
		}
	}
	return c
}

// Load reads, parses, and validates configuration from the provided path,
// layered over Default. An empty path returns the defaults.
// Warns if the config file has insecure permissions (world-readable).
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, validate(cfg)
	}

	// Check file permissions (Unix only).
	if runtime.GOOS != "windows" {
		if info, err := os.Stat(path); err == nil {
			mode := info.Mode().Perm()
			// Pushgateway URLs may carry credentials.
			if mode&0o004 != 0 {
				fmt.Fprintf(os.Stderr, "WARNING: config file %s is world-readable (mode %o). Consider: chmod 600 %s\n", path, mode, path)
			}
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

func validate(c *Config) error {
	// Default logging level if not provided.
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}

	if c.Parser.MaxLines < 0 {
		return fmt.Errorf("parser.max_lines must be >= 0")
	}

	for name, p := range c.Discovery.profiles() {
		if len(p.Roots) == 0 {
			return fmt.Errorf("discovery.%s.roots is required", name)
		}
		if len(p.Patterns) == 0 {
			return fmt.Errorf("discovery.%s.patterns is required", name)
		}
		if p.MaxFiles < 0 {
			return fmt.Errorf("discovery.%s.max_files must be >= 0", name)
		}
		if p.MaxTotalBytes < 0 {
			return fmt.Errorf("discovery.%s.max_total_bytes must be >= 0", name)
		}
	}

	if c.Journal.Enabled && len(c.Journal.Units) == 0 {
		return fmt.Errorf("journal.units is required when journal.enabled is set")
	}
	if c.Journal.Since == "" {
		c.Journal.Since = logtail.DefaultSince
	}

	if _, err := rules.Compile(c.Filter); err != nil {
		return fmt.Errorf("filter: %w", err)
	}

	return nil
}

// LoggingOptions converts the logging section for logging.New.
func (c *Config) LoggingOptions() logging.Options {
	return logging.Options{
		Level:      c.Logging.Level,
		JSON:       c.Logging.JSON,
		Path:       c.Logging.Path,
		MaxSizeMB:  c.Logging.MaxSizeMB,
		MaxBackups: c.Logging.MaxBackups,
		MaxAgeDays: c.Logging.MaxAgeDays,
		Compress:   c.Logging.Compress,
	}
}

// ParserOptions builds parser options for a run.
func (c *Config) ParserOptions() parser.Options {
	return parser.Options{
		AssetID:  c.AssetID,
		Host:     c.Parser.Host,
		MaxLines: c.Parser.MaxLines,
		TrustXFF: c.Parser.TrustXFF,
		Keywords: c.Keywords,
	}
}
