package parser

import (
	"regexp"
	"strings"

	"github.com/cyra/edge-events/internal/event"
	"github.com/cyra/edge-events/internal/normalize"
)

var (
	// Example combined log format, optionally followed by a quoted X-Forwarded-For:
	// 127.0.0.1 - frank [10/Oct/2000:13:55:36 -0700] "GET /index.html HTTP/1.1" 200 2326 "-" "UserAgent" "1.2.3.4"
	combinedRe = regexp.MustCompile(`^(\S+)\s+\S+\s+(\S+)\s+\[([^\]]+)\]\s+"([^"]*)"\s+(\d{3}|-)\s+(\d+|-)\s+"([^"]*)"\s+"([^"]*)"(?:\s+"([^"]*)")?.*$`)

	// Apache common log format:
	// 127.0.0.1 - frank [10/Oct/2000:13:55:36 -0700] "GET /apache_pb.gif HTTP/1.0" 200 2326
	commonRe = regexp.MustCompile(`^(\S+)\s+\S+\s+(\S+)\s+\[([^\]]+)\]\s+"([^"]*)"\s+(\d{3}|-)\s+(\d+|-)\s*$`)
)

// JSON key aliases. Besides flat nginx/apache JSON formats these cover Caddy v2
// ({"request":{"remote_ip":..,"method":..,"uri":..},"status":200,"ts":1591207032.12})
// and Traefik ({"ClientHost":..,"RequestMethod":..,"RequestPath":..,"DownstreamStatus":200,"StartUTC":..}).
var (
	webTimeKeys     = []string{"time", "ts", "@timestamp", "timestamp", "time_local", "time_iso8601", "StartUTC"}
	webSrcKeys      = []string{"remote_addr", "src_ip", "client_ip", "request.remote_ip", "request.client_ip", "ClientHost"}
	webXFFKeys      = []string{"http_x_forwarded_for", "x_forwarded_for", "xff", "request.headers.X-Forwarded-For", "request_X-Forwarded-For"}
	webMethodKeys   = []string{"method", "request_method", "request.method", "RequestMethod"}
	webPathKeys     = []string{"uri", "path", "request_uri", "request.uri", "RequestPath"}
	webStatusKeys   = []string{"status", "DownstreamStatus"}
	webBytesKeys    = []string{"bytes", "body_bytes_sent", "bytes_sent", "size", "DownstreamContentSize"}
	webUAKeys       = []string{"http_user_agent", "ua", "user_agent", "request.headers.User-Agent", "request_User-Agent"}
	webReferrerKeys = []string{"http_referer", "referrer", "referer", "request.headers.Referer", "request_Referer"}
	webUserKeys     = []string{"remote_user", "user", "user_id"}
	webHostKeys     = []string{"host", "server_name", "request.host", "RequestHost"}
)

// webParser reads nginx and apache access logs in the combined format or as
// one JSON object per line.
type webParser struct {
	opts     Options
	grammars []grammar
}

func newWebParser(opts Options) *webParser {
	p := &webParser{opts: opts}
	p.grammars = []grammar{
		{name: "json", match: p.matchJSON},
		{name: "combined", match: p.matchCombined},
		{name: "common", match: p.matchCommon},
	}
	return p
}

func (p *webParser) Name() string { return "web" }

func (p *webParser) maxLines() int { return p.opts.MaxLines }

func (p *webParser) Parse(l Line) (event.Event, error) {
	return parseWith(p.grammars, l)
}

func (p *webParser) matchCombined(l Line) (event.Event, bool, error) {
	m := combinedRe.FindStringSubmatch(l.Text)
	if m == nil {
		return event.Event{}, false, nil
	}

	ts, ok := p.opts.Clock.TimeLocal(m[3])
	if !ok {
		ts = p.opts.Clock.Now()
	}
	method, path := splitRequest(m[4])

	ev := event.Event{
		Timestamp: ts,
		AssetID:   p.opts.AssetID,
		Type:      event.HTTPAccess,
		SrcIP:     p.clientIP(m[1], m[9]),
		Method:    method,
		Object:    path,
		Status:    optInt(m[5]),
		Bytes:     optInt(m[6]),
		Referrer:  dash(m[7]),
		UA:        dash(m[8]),
		User:      dash(m[2]),
		Host:      p.opts.Host,
	}
	return ev, true, nil
}

func (p *webParser) matchCommon(l Line) (event.Event, bool, error) {
	m := commonRe.FindStringSubmatch(l.Text)
	if m == nil {
		return event.Event{}, false, nil
	}
	ts, ok := p.opts.Clock.TimeLocal(m[3])
	if !ok {
		ts = p.opts.Clock.Now()
	}
	method, path := splitRequest(m[4])
	return event.Event{
		Timestamp: ts,
		AssetID:   p.opts.AssetID,
		Type:      event.HTTPAccess,
		SrcIP:     dash(m[1]),
		Method:    method,
		Object:    path,
		Status:    optInt(m[5]),
		Bytes:     optInt(m[6]),
		User:      dash(m[2]),
		Host:      p.opts.Host,
	}, true, nil
}

func (p *webParser) matchJSON(l Line) (event.Event, bool, error) {
	if !looksLikeJSON(l.Text) {
		return event.Event{}, false, nil
	}
	obj, err := parseJSONObject(l.Text)
	if err != nil {
		return event.Event{}, true, err
	}

	method := obj.str(webMethodKeys...)
	path := obj.str(webPathKeys...)
	if req := obj.str("request", "req"); req != "" && (method == "" || path == "") {
		m, pth := splitRequest(req)
		if method == "" {
			method = m
		}
		if path == "" {
			path = pth
		}
	}

	host := p.opts.Host
	if host == "" {
		host = obj.str(webHostKeys...)
	}

	src := obj.str(webSrcKeys...)
	if src == "" {
		src = clientHost(obj.str("ClientAddr"))
	}

	ev := event.Event{
		Timestamp: obj.timestamp(p.opts.Clock, webTimeKeys...),
		AssetID:   p.opts.AssetID,
		Type:      event.HTTPAccess,
		SrcIP:     p.clientIP(src, obj.str(webXFFKeys...)),
		Method:    method,
		Object:    path,
		Status:    obj.num(webStatusKeys...),
		Bytes:     obj.num(webBytesKeys...),
		UA:        obj.str(webUAKeys...),
		Referrer:  obj.str(webReferrerKeys...),
		User:      obj.str(webUserKeys...),
		Host:      host,
	}
	return ev, true, nil
}

func (p *webParser) clientIP(src, xff string) string {
	src = dash(src)
	xff = dash(xff)
	if !p.opts.TrustXFF || xff == "" {
		return src
	}
	return normalize.PickClientIP(src, xff)
}

// splitRequest reads "GET /path HTTP/1.1" into method and target.
func splitRequest(req string) (method, target string) {
	parts := strings.Fields(req)
	if len(parts) < 2 {
		return "", ""
	}
	return parts[0], parts[1]
}

func dash(s string) string {
	if s == "-" {
		return ""
	}
	return s
}

func optInt(s string) *int {
	if n, ok := normalize.ParseInt(s); ok {
		return &n
	}
	return nil
}
