package parser

import (
	"regexp"
	"strings"

	"github.com/cyra/edge-events/internal/event"
	"github.com/cyra/edge-events/internal/normalize"
)

const dnsDefaultMaxLines = 200000

var (
	// client 1.2.3.4#1234 (example.com): query: example.com IN A +E(0)
	bindRe = regexp.MustCompile(`(?i)client\s+(\d+\.\d+\.\d+\.\d+)(?:#\d+)?\s+\(([^)]+)\):\s+query:\s+(\S+)\s+IN\s+([A-Z0-9]+)`)
	// query[A] example.com from 1.2.3.4 (dnsmasq, pi-hole)
	dnsmasqRe = regexp.MustCompile(`(?i)\bquery\[([A-Z0-9]+)\]\s+(\S+)\s+from\s+(\d+\.\d+\.\d+\.\d+)`)
	// info: 1.2.3.4 example.com. A IN
	unboundRe = regexp.MustCompile(`(?i)\binfo:\s+(\d+\.\d+\.\d+\.\d+)\s+(\S+)\s+([A-Z0-9]+)\s+IN\b`)
)

// dnsParser recognises resolver query logs from BIND, dnsmasq and unbound.
// Lines matching none of them are dropped.
type dnsParser struct {
	opts     Options
	grammars []grammar
}

func newDNSParser(opts Options) *dnsParser {
	p := &dnsParser{opts: opts}
	p.grammars = []grammar{
		{name: "bind", match: p.regexGrammar(bindRe, func(m []string) (ip, qname, qtype string) {
			q := m[3]
			if q == "" {
				q = m[2]
			}
			return m[1], q, m[4]
		})},
		{name: "dnsmasq", match: p.regexGrammar(dnsmasqRe, func(m []string) (string, string, string) {
			return m[3], m[2], m[1]
		})},
		{name: "unbound", match: p.regexGrammar(unboundRe, func(m []string) (string, string, string) {
			return m[1], m[2], m[3]
		})},
	}
	return p
}

func (p *dnsParser) Name() string { return "dns" }

func (p *dnsParser) maxLines() int { return capOr(p.opts.MaxLines, dnsDefaultMaxLines) }

func (p *dnsParser) Parse(l Line) (event.Event, error) {
	return parseWith(p.grammars, l)
}

func (p *dnsParser) regexGrammar(re *regexp.Regexp, pick func([]string) (ip, qname, qtype string)) func(Line) (event.Event, bool, error) {
	return func(l Line) (event.Event, bool, error) {
		m := re.FindStringSubmatch(l.Text)
		if m == nil {
			return event.Event{}, false, nil
		}
		ip, raw, qtype := pick(m)
		qname, ok := normalize.QName(raw)
		if !ok {
			return event.Event{}, true, ErrInvalidQName
		}
		return event.Event{
			Timestamp: lineTimestamp(p.opts.Clock, l.Text),
			AssetID:   p.opts.AssetID,
			Type:      event.DNS,
			SrcIP:     ip,
			Object:    qname,
			QType:     strings.ToUpper(qtype),
		}, true, nil
	}
}

// lineTimestamp takes an ISO token anywhere in the line, then a leading
// syslog header, then the current time.
func lineTimestamp(clock *normalize.Normalizer, line string) string {
	if ts, ok := clock.FindISO(line); ok {
		return ts
	}
	if ts, ok := clock.LeadingRFC3164(line); ok {
		return ts
	}
	return clock.Now()
}
