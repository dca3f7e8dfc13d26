package parser

import (
	"fmt"
	"regexp"
	"strings"
)

// Keywords are the phrase lists used by the heuristic parsers to classify
// free-text lines. Matching is case-insensitive on word boundaries.
type Keywords struct {
	SyslogAuthSuccess []string `yaml:"syslog_auth_success"`
	SyslogAuthFail    []string `yaml:"syslog_auth_fail"`
	DNSQuery          []string `yaml:"dns_query"`
	AppAuthSuccess    []string `yaml:"app_auth_success"`
	AppAuthFail       []string `yaml:"app_auth_fail"`
	AppConfigChange   []string `yaml:"app_config_change"`
}

// DefaultKeywords returns the built-in phrase lists.
func DefaultKeywords() Keywords {
	return Keywords{
		SyslogAuthSuccess: []string{"accepted password", "accepted publickey", "authentication succeeded", "logged in", "login succeeded"},
		SyslogAuthFail:    []string{"failed password", "invalid user", "authentication failure", "login failed"},
		DNSQuery:          []string{"query", "question"},
		AppAuthSuccess:    []string{"login", "logged in", "authentication succeeded", "auth succeeded", "successfully authenticated"},
		AppAuthFail:       []string{"failed login", "authentication failed", "invalid password", "unauthorized", "forbidden"},
		AppConfigChange:   []string{"created", "deleted", "updated", "changed", "configured", "set", "added", "removed", "plugin", "extension", "token", "api key"},
	}
}

// orDefault fills empty lists from the defaults.
func (k Keywords) orDefault() Keywords {
	def := DefaultKeywords()
	pick := func(v, d []string) []string {
		if len(v) == 0 {
			return d
		}
		return v
	}
	return Keywords{
		SyslogAuthSuccess: pick(k.SyslogAuthSuccess, def.SyslogAuthSuccess),
		SyslogAuthFail:    pick(k.SyslogAuthFail, def.SyslogAuthFail),
		DNSQuery:          pick(k.DNSQuery, def.DNSQuery),
		AppAuthSuccess:    pick(k.AppAuthSuccess, def.AppAuthSuccess),
		AppAuthFail:       pick(k.AppAuthFail, def.AppAuthFail),
		AppConfigChange:   pick(k.AppConfigChange, def.AppConfigChange),
	}
}

// compilePhrases builds one case-insensitive alternation with word
// boundaries around every phrase. Inner spaces match any run of whitespace.
func compilePhrases(phrases []string) (*regexp.Regexp, error) {
	parts := make([]string, 0, len(phrases))
	for _, p := range phrases {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		words := strings.Fields(p)
		for i, w := range words {
			words[i] = regexp.QuoteMeta(w)
		}
		parts = append(parts, strings.Join(words, `\s+`))
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("empty keyword list")
	}
	return regexp.Compile(`(?i)\b(?:` + strings.Join(parts, "|") + `)\b`)
}
