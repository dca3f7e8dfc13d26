package parser

import (
	"fmt"
	"regexp"

	"github.com/cyra/edge-events/internal/event"
	"github.com/cyra/edge-events/internal/normalize"
)

const (
	syslogDefaultMaxLines = 200000
	excerptRunes          = 200
)

var (
	// Failed password for invalid user admin from 1.2.3.4 port 22 ssh2
	sshUserRe = regexp.MustCompile(`(?i)\bfor (?:invalid user )?([A-Za-z0-9._@-]+) from\b`)
	kvUserRe  = regexp.MustCompile(`\buser[= ]([A-Za-z0-9._@-]+)`)
)

// syslogParser infers an event type per line from generic syslog text. The
// RFC3164 header is removed first; the rest is tried as a key=value flow,
// then as a DNS query, then as an authentication message.
type syslogParser struct {
	opts     Options
	authOK   *regexp.Regexp
	authFail *regexp.Regexp
	dnsQuery *regexp.Regexp
}

func newSyslogParser(opts Options) (*syslogParser, error) {
	kw := opts.Keywords.orDefault()
	p := &syslogParser{opts: opts}
	var err error
	if p.authOK, err = compilePhrases(kw.SyslogAuthSuccess); err != nil {
		return nil, fmt.Errorf("syslog auth success keywords: %w", err)
	}
	if p.authFail, err = compilePhrases(kw.SyslogAuthFail); err != nil {
		return nil, fmt.Errorf("syslog auth fail keywords: %w", err)
	}
	if p.dnsQuery, err = compilePhrases(kw.DNSQuery); err != nil {
		return nil, fmt.Errorf("syslog dns keywords: %w", err)
	}
	return p, nil
}

func (p *syslogParser) Name() string { return "syslog" }

func (p *syslogParser) maxLines() int { return capOr(p.opts.MaxLines, syslogDefaultMaxLines) }

func (p *syslogParser) Parse(l Line) (event.Event, error) {
	if isBlank(l.Text) {
		return event.Event{}, ErrEmptyLine
	}
	ts, _, msg, ok := p.opts.Clock.SplitRFC3164(l.Text)
	if !ok {
		ts = p.opts.Clock.Now()
	}
	return parseWith(p.grammars(ts), Line{Text: msg, Path: l.Path, Number: l.Number})
}

func (p *syslogParser) grammars(ts string) []grammar {
	return []grammar{
		{name: "kv", match: func(l Line) (event.Event, bool, error) { return p.matchFlow(ts, l) }},
		{name: "dns", match: func(l Line) (event.Event, bool, error) { return p.matchDNS(ts, l) }},
		{name: "auth", match: func(l Line) (event.Event, bool, error) { return p.matchAuth(ts, l) }},
	}
}

func (p *syslogParser) matchFlow(ts string, l Line) (event.Event, bool, error) {
	kv := normalize.KeyValues(l.Text)
	src, dst := kv.First(normalize.SrcAliases...), kv.First(normalize.DstAliases...)
	if src == "" || dst == "" {
		return event.Event{}, false, nil
	}
	return event.Event{
		Timestamp: ts,
		AssetID:   p.opts.AssetID,
		Type:      event.NetworkFlow,
		SrcIP:     src,
		DstIP:     dst,
		DstPort:   optInt(kv.First(normalize.DstPortAliases...)),
		Action:    normalize.NormalizeAction(kv.First(normalize.ActionAliases...)),
	}, true, nil
}

func (p *syslogParser) matchDNS(ts string, l Line) (event.Event, bool, error) {
	if !p.dnsQuery.MatchString(l.Text) {
		return event.Event{}, false, nil
	}
	q := normalize.FindQName(l.Text)
	if q == "" {
		// keyword without a name; let the auth grammar look at it
		return event.Event{}, false, nil
	}
	return event.Event{
		Timestamp: ts,
		AssetID:   p.opts.AssetID,
		Type:      event.DNS,
		SrcIP:     normalize.FirstIPv4(l.Text),
		Object:    q,
	}, true, nil
}

func (p *syslogParser) matchAuth(ts string, l Line) (event.Event, bool, error) {
	result := ""
	switch {
	case p.authOK.MatchString(l.Text):
		result = event.ResultSuccess
	case p.authFail.MatchString(l.Text):
		result = event.ResultFail
	default:
		return event.Event{}, false, nil
	}
	return event.Event{
		Timestamp: ts,
		AssetID:   p.opts.AssetID,
		Type:      event.Auth,
		SrcIP:     normalize.FirstIPv4(l.Text),
		User:      authUser(l.Text),
		Result:    result,
		Object:    normalize.Truncate(l.Text, excerptRunes),
	}, true, nil
}

func authUser(msg string) string {
	if m := sshUserRe.FindStringSubmatch(msg); m != nil {
		return m[1]
	}
	if m := kvUserRe.FindStringSubmatch(msg); m != nil {
		return m[1]
	}
	return ""
}
