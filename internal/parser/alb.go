package parser

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/google/shlex"

	"github.com/cyra/edge-events/internal/event"
	"github.com/cyra/edge-events/internal/normalize"
)

// Column positions for the two load balancer access log layouts.
//
// ALB:         http 2015-05-13T23:39:43.945958Z app/my-lb/50dc 192.0.2.10:2817 10.0.0.1:80 0.000 0.026 0.000 200 200 0 57 "GET http://www.example.com:80/ HTTP/1.1" "curl/7.38.0" ...
// Classic ELB: 2015-05-13T23:39:43.945958Z my-lb 192.0.2.10:2817 10.0.0.1:80 0.000 0.026 0.000 200 200 0 57 "GET http://www.example.com:80/ HTTP/1.1" "curl/7.38.0" ...
type albLayout struct {
	minFields int
	ts        int
	client    int
	status    int
	sentBytes int
	request   int
	ua        int
}

var (
	albColumns     = albLayout{minFields: 12, ts: 1, client: 3, status: 8, sentBytes: 11, request: 12, ua: 13}
	classicColumns = albLayout{minFields: 11, ts: 0, client: 2, status: 7, sentBytes: 10, request: 11, ua: 12}
)

type albParser struct {
	opts     Options
	grammars []grammar
}

func newALBParser(opts Options) *albParser {
	p := &albParser{opts: opts}
	p.grammars = []grammar{
		{name: "json", match: p.matchJSON},
		{name: "fields", match: p.matchFields},
	}
	return p
}

func (p *albParser) Name() string { return "alb" }

func (p *albParser) maxLines() int { return p.opts.MaxLines }

func (p *albParser) Parse(l Line) (event.Event, error) {
	return parseWith(p.grammars, l)
}

func (p *albParser) matchFields(l Line) (event.Event, bool, error) {
	parts, err := shlex.Split(l.Text)
	if err != nil || len(parts) < classicColumns.minFields {
		return event.Event{}, false, nil
	}

	cols := albColumns
	if _, ok := p.opts.Clock.ISO(parts[0]); ok {
		cols = classicColumns
	}
	if len(parts) < cols.minFields {
		return event.Event{}, false, nil
	}

	ts, ok := p.opts.Clock.ISO(parts[cols.ts])
	if !ok {
		ts = p.opts.Clock.Now()
	}

	ev := event.Event{
		Timestamp: ts,
		AssetID:   p.opts.AssetID,
		Type:      event.HTTPAccess,
		SrcIP:     clientHost(parts[cols.client]),
		Status:    optInt(parts[cols.status]),
		Bytes:     optInt(parts[cols.sentBytes]),
	}
	if cols.request < len(parts) {
		ev.Method, ev.Object, ev.Host = parseALBRequest(parts[cols.request])
	}
	if cols.ua < len(parts) {
		ev.UA = dash(parts[cols.ua])
	}
	if ev.SrcIP == "" && ev.Method == "" && ev.Status == nil {
		return event.Event{}, true, fmt.Errorf("%w: client, request and status", ErrMissingField)
	}
	return ev, true, nil
}

func (p *albParser) matchJSON(l Line) (event.Event, bool, error) {
	if !looksLikeJSON(l.Text) {
		return event.Event{}, false, nil
	}
	obj, err := parseJSONObject(l.Text)
	if err != nil {
		return event.Event{}, true, err
	}
	ts := obj.str("ts", "time", "@timestamp", "timestamp")
	iso, ok := p.opts.Clock.ISO(ts)
	if !ok {
		iso = p.opts.Clock.Now()
	}
	ev := event.Event{
		Timestamp: iso,
		AssetID:   p.opts.AssetID,
		Type:      event.HTTPAccess,
		SrcIP:     obj.str("src_ip", "client_ip"),
		Method:    obj.str("method"),
		Object:    obj.str("object", "path"),
		Status:    obj.num("status", "elb_status_code"),
		Bytes:     obj.num("bytes", "sent_bytes"),
		UA:        obj.str("ua", "user_agent"),
		Host:      obj.str("host"),
	}
	return ev, true, nil
}

// clientHost strips the port from an ip:port token; [v6]:port is handled too.
func clientHost(tok string) string {
	if tok == "" || tok == "-" {
		return ""
	}
	host, _, err := net.SplitHostPort(tok)
	if err != nil {
		if normalize.IsIPv4(tok) {
			return tok
		}
		return ""
	}
	return host
}

// parseALBRequest reads "GET http://host:80/path?q HTTP/1.1". Absolute URLs
// are split into host and path; anything else is kept as the path.
func parseALBRequest(req string) (method, path, host string) {
	if req == "" || req == "-" {
		return "", "", ""
	}
	parts := strings.Fields(req)
	if len(parts) < 2 {
		return "", "", ""
	}
	method, target := parts[0], parts[1]
	if method == "-" {
		method = ""
	}
	if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
		if u, err := url.Parse(target); err == nil && u.Host != "" {
			return method, u.RequestURI(), u.Host
		}
	}
	return method, target, ""
}
