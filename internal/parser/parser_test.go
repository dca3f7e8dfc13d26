package parser

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyra/edge-events/internal/event"
	"github.com/cyra/edge-events/internal/normalize"
)

var fixedNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func testOptions() Options {
	return Options{
		AssetID:  "host-1",
		TrustXFF: true,
		Clock:    normalize.NewNormalizer(normalize.WithClock(func() time.Time { return fixedNow })),
	}
}

func mustParser(t *testing.T, name string, opts Options) Parser {
	t.Helper()
	p, err := New(name, opts)
	require.NoError(t, err)
	return p
}

func parseLine(t *testing.T, p Parser, text string) event.Event {
	t.Helper()
	ev, err := p.Parse(Line{Text: text, Path: "/var/log/test.log", Number: 1})
	require.NoError(t, err)
	require.NoError(t, ev.Validate())
	return ev
}

func TestNewUnknownParser(t *testing.T) {
	_, err := New("iis", testOptions())
	assert.ErrorIs(t, err, ErrUnknownParser)
}

func TestSkipReason(t *testing.T) {
	p := mustParser(t, "dns", testOptions())
	_, err := p.Parse(Line{Text: "   "})
	assert.Equal(t, "empty_line", SkipReason(err))

	_, err = p.Parse(Line{Text: "nothing to see here"})
	assert.Equal(t, "no_match", SkipReason(err))

	assert.Equal(t, "other", SkipReason(assert.AnError))
}

func TestWebCombined(t *testing.T) {
	p := mustParser(t, "nginx", testOptions())
	ev := parseLine(t, p, `10.0.0.5 - - [04/Feb/2026:17:50:01 +0100] "GET /index.html HTTP/1.1" 200 1024 "-" "curl/7.38.0"`)

	assert.Equal(t, "2026-02-04T16:50:01Z", ev.Timestamp)
	assert.Equal(t, event.HTTPAccess, ev.Type)
	assert.Equal(t, "host-1", ev.AssetID)
	assert.Equal(t, "10.0.0.5", ev.SrcIP)
	assert.Equal(t, "GET", ev.Method)
	assert.Equal(t, "/index.html", ev.Object)
	assert.Equal(t, 200, *ev.Status)
	assert.Equal(t, 1024, *ev.Bytes)
	assert.Equal(t, "curl/7.38.0", ev.UA)
	assert.Empty(t, ev.Referrer)
	assert.Empty(t, ev.User)
	assert.NotContains(t, ev.Fields(), "referrer")
}

func TestWebCombinedWithForwardedFor(t *testing.T) {
	line := `10.0.0.5 - alice [04/Feb/2026:17:50:01 +0100] "POST /login HTTP/1.1" 302 - "https://example.com/" "Mozilla/5.0" "10.1.1.1, 203.0.113.9"`

	ev := parseLine(t, mustParser(t, "web", testOptions()), line)
	assert.Equal(t, "203.0.113.9", ev.SrcIP)
	assert.Equal(t, "alice", ev.User)
	assert.Nil(t, ev.Bytes)
	assert.Equal(t, "https://example.com/", ev.Referrer)

	opts := testOptions()
	opts.TrustXFF = false
	ev = parseLine(t, mustParser(t, "web", opts), line)
	assert.Equal(t, "10.0.0.5", ev.SrcIP)
}

func TestWebCommonFormat(t *testing.T) {
	ev := parseLine(t, mustParser(t, "apache", testOptions()),
		`127.0.0.1 - frank [10/Oct/2000:13:55:36 -0700] "GET /apache_pb.gif HTTP/1.0" 200 2326`)
	assert.Equal(t, "2000-10-10T20:55:36Z", ev.Timestamp)
	assert.Equal(t, "frank", ev.User)
	assert.Equal(t, 2326, *ev.Bytes)
	assert.Empty(t, ev.UA)
}

func TestWebJSON(t *testing.T) {
	opts := testOptions()
	opts.Host = "edge-1"
	p := mustParser(t, "web", opts)

	ev := parseLine(t, p, `{"time":"2026-02-04T16:50:01.5Z","remote_addr":"10.0.0.9","request":"DELETE /api/x HTTP/2.0","status":"204","body_bytes_sent":0,"http_user_agent":"k6"}`)
	assert.Equal(t, "2026-02-04T16:50:01.5Z", ev.Timestamp)
	assert.Equal(t, "DELETE", ev.Method)
	assert.Equal(t, "/api/x", ev.Object)
	assert.Equal(t, 204, *ev.Status)
	assert.Equal(t, 0, *ev.Bytes)
	assert.Equal(t, "edge-1", ev.Host)

	// a non-ISO timestamp string is normalized rather than passed through
	ev = parseLine(t, p, `{"time_local":"04/Feb/2026:17:50:01 +0100","remote_addr":"10.0.0.9"}`)
	assert.Equal(t, "2026-02-04T16:50:01Z", ev.Timestamp)

	ev = parseLine(t, p, `{"time":"yesterday","remote_addr":"10.0.0.9"}`)
	assert.Equal(t, "2026-03-10T12:00:00Z", ev.Timestamp)
}

func TestWebJSONCaddyAndTraefik(t *testing.T) {
	p := mustParser(t, "web", testOptions())

	ev := parseLine(t, p, `{"request":{"remote_ip":"198.51.100.7","method":"GET","uri":"/","host":"shop.example","headers":{"User-Agent":["curl/8.0"]}},"status":200,"ts":1770223801.25}`)
	assert.Equal(t, "198.51.100.7", ev.SrcIP)
	assert.Equal(t, "GET", ev.Method)
	assert.Equal(t, "shop.example", ev.Host)
	assert.Equal(t, "curl/8.0", ev.UA)
	assert.Equal(t, "2026-02-04T16:50:01.25Z", ev.Timestamp)

	ev = parseLine(t, p, `{"ClientAddr":"[2001:db8::1]:54321","DownstreamStatus":404,"RequestMethod":"GET","RequestPath":"/missing","StartUTC":"2026-02-04T16:50:01Z"}`)
	assert.Equal(t, "2001:db8::1", ev.SrcIP)
	assert.Equal(t, 404, *ev.Status)
	assert.Equal(t, "/missing", ev.Object)
}

func TestWebSkips(t *testing.T) {
	p := mustParser(t, "web", testOptions())
	_, err := p.Parse(Line{Text: "   "})
	assert.ErrorIs(t, err, ErrEmptyLine)
	_, err = p.Parse(Line{Text: `{"truncated": `})
	assert.ErrorIs(t, err, ErrInvalidJSON)
	_, err = p.Parse(Line{Text: "garbage line"})
	assert.ErrorIs(t, err, ErrNoMatch)
}

func TestALB(t *testing.T) {
	p := mustParser(t, "alb", testOptions())
	ev := parseLine(t, p, `http 2015-05-13T23:39:43.945958Z app/my-lb/50dc6c495c0c9188 192.0.2.10:2817 10.0.0.1:80 0.000 0.026 0.000 200 200 34 57 "GET http://www.example.com:80/shop?id=1 HTTP/1.1" "curl/7.38.0" - - - - - - - -`)

	assert.Equal(t, "2015-05-13T23:39:43.945958Z", ev.Timestamp)
	assert.Equal(t, "192.0.2.10", ev.SrcIP)
	assert.Equal(t, "GET", ev.Method)
	assert.Equal(t, "/shop?id=1", ev.Object)
	assert.Equal(t, "www.example.com:80", ev.Host)
	assert.Equal(t, 200, *ev.Status)
	assert.Equal(t, 57, *ev.Bytes)
	assert.Equal(t, "curl/7.38.0", ev.UA)
}

func TestClassicELB(t *testing.T) {
	p := mustParser(t, "alb", testOptions())
	ev := parseLine(t, p, `2015-05-13T23:39:43.945958Z my-loadbalancer 192.168.131.39:2817 10.0.0.1:80 0.000073 0.001048 0.000057 200 200 0 29 "GET http://www.example.com:80/ HTTP/1.1" "curl/7.38.0" - -`)

	assert.Equal(t, "192.168.131.39", ev.SrcIP)
	assert.Equal(t, "/", ev.Object)
	assert.Equal(t, 29, *ev.Bytes)
}

func TestALBJSONAndShortLines(t *testing.T) {
	p := mustParser(t, "alb", testOptions())
	ev := parseLine(t, p, `{"ts":"2026-02-04T16:50:01Z","src_ip":"1.2.3.4","method":"GET","object":"/","status":200,"host":"a.example"}`)
	assert.Equal(t, "a.example", ev.Host)

	_, err := p.Parse(Line{Text: "http only a few fields"})
	assert.ErrorIs(t, err, ErrNoMatch)
}

func TestFirewallKeyValue(t *testing.T) {
	p := mustParser(t, "firewall", testOptions())
	ev := parseLine(t, p, "src=10.1.1.1 dst=8.8.8.8 dpt=443 action=ACCEPT")

	assert.Equal(t, event.NetworkFlow, ev.Type)
	assert.Equal(t, "10.1.1.1", ev.SrcIP)
	assert.Equal(t, "8.8.8.8", ev.DstIP)
	assert.Equal(t, 443, *ev.DstPort)
	assert.Equal(t, "allow", ev.Action)
	assert.Equal(t, "2026-03-10T12:00:00Z", ev.Timestamp)
}

func TestFirewallVariants(t *testing.T) {
	p := mustParser(t, "firewall", testOptions())

	ev := parseLine(t, p, `CEF:0|Vendor|FW|1.0|100|conn|5|src=10.0.0.1 dst=10.0.0.2 dpt=22 act=blocked`)
	assert.Equal(t, "deny", ev.Action)
	assert.Equal(t, 22, *ev.DstPort)

	ev = parseLine(t, p, `{"src_ip":"10.0.0.1","dst_ip":"1.1.1.1","port":"53","decision":"permit","ts":1770223801}`)
	assert.Equal(t, "allow", ev.Action)
	assert.Equal(t, 53, *ev.DstPort)
	assert.Equal(t, "2026-02-04T16:50:01Z", ev.Timestamp)

	_, err := p.Parse(Line{Text: "src=10.0.0.1 action=drop"})
	assert.ErrorIs(t, err, ErrMissingField)

	_, err = p.Parse(Line{Text: `{"src_ip":"10.0.0.1"}`})
	assert.ErrorIs(t, err, ErrMissingField)

	_, err = p.Parse(Line{Text: "kernel: nothing useful"})
	assert.ErrorIs(t, err, ErrNoMatch)
}

func TestDNSGrammars(t *testing.T) {
	p := mustParser(t, "dns", testOptions())

	ev := parseLine(t, p, "query[A] example.com from 10.1.1.1")
	assert.Equal(t, event.DNS, ev.Type)
	assert.Equal(t, "10.1.1.1", ev.SrcIP)
	assert.Equal(t, "example.com", ev.Object)
	assert.Equal(t, "A", ev.QType)

	ev = parseLine(t, p, "04-Feb-2026 16:50:01.123 client 192.0.2.1#53211 (www.example.org): query: www.example.org IN AAAA +E(0)K (192.0.2.53)")
	assert.Equal(t, "192.0.2.1", ev.SrcIP)
	assert.Equal(t, "www.example.org", ev.Object)
	assert.Equal(t, "AAAA", ev.QType)

	ev = parseLine(t, p, "Feb  4 16:50:01 ns unbound: [123:0] info: 10.0.0.3 mail.example.net. MX IN")
	assert.Equal(t, "mail.example.net", ev.Object)
	assert.Equal(t, "MX", ev.QType)
	assert.Equal(t, "2026-02-04T16:50:01Z", ev.Timestamp)

	ev = parseLine(t, p, "2026-02-04T16:50:01.5Z dnsmasq[1]: query[TXT] txt.example.com from 10.0.0.4")
	assert.Equal(t, "2026-02-04T16:50:01.5Z", ev.Timestamp)

	_, err := p.Parse(Line{Text: "query[A] 10.0.0.1 from 10.1.1.1"})
	assert.ErrorIs(t, err, ErrInvalidQName)

	_, err = p.Parse(Line{Text: "dnsmasq started, version 2.89"})
	assert.ErrorIs(t, err, ErrNoMatch)
}

func TestSyslog(t *testing.T) {
	p := mustParser(t, "syslog", testOptions())

	ev := parseLine(t, p, "Feb  4 16:50:01 gw kernel: IN=eth0 SRC=203.0.113.5 DST=10.0.0.2 DPT=22 ACTION=DROP")
	assert.Equal(t, event.NetworkFlow, ev.Type)
	assert.Equal(t, "deny", ev.Action)
	assert.Equal(t, 22, *ev.DstPort)
	assert.Equal(t, "2026-02-04T16:50:01Z", ev.Timestamp)

	ev = parseLine(t, p, "Feb  4 16:50:02 ns dnsmasq[99]: query[A] updates.example.com from 10.0.0.8")
	assert.Equal(t, event.DNS, ev.Type)
	assert.Equal(t, "updates.example.com", ev.Object)
	assert.Equal(t, "10.0.0.8", ev.SrcIP)

	ev = parseLine(t, p, "Feb  4 16:50:03 gw sshd[12]: Failed password for invalid user admin from 198.51.100.4 port 22 ssh2")
	assert.Equal(t, event.Auth, ev.Type)
	assert.Equal(t, event.ResultFail, ev.Result)
	assert.Equal(t, "admin", ev.User)
	assert.Equal(t, "198.51.100.4", ev.SrcIP)

	ev = parseLine(t, p, "Feb  4 16:50:04 gw sshd[12]: Accepted publickey for deploy from 198.51.100.5 port 22 ssh2")
	assert.Equal(t, event.ResultSuccess, ev.Result)
	assert.Equal(t, "deploy", ev.User)

	_, err := p.Parse(Line{Text: "Feb  4 16:50:05 gw cron[1]: job finished"})
	assert.ErrorIs(t, err, ErrNoMatch)
}

func TestSyslogCustomKeywords(t *testing.T) {
	opts := testOptions()
	opts.Keywords = Keywords{SyslogAuthFail: []string{"access   denied"}}
	p := mustParser(t, "syslog", opts)

	ev := parseLine(t, p, "vpn: ACCESS DENIED user=bob from 192.0.2.1")
	assert.Equal(t, event.ResultFail, ev.Result)
	assert.Equal(t, "bob", ev.User)
}

func TestApp(t *testing.T) {
	p := mustParser(t, "app", testOptions())

	ev := parseLine(t, p, "2026-02-04T16:50:01Z INFO user alice logged in from 10.2.3.4")
	assert.Equal(t, event.Auth, ev.Type)
	assert.Equal(t, event.ResultSuccess, ev.Result)
	assert.Equal(t, "10.2.3.4", ev.SrcIP)
	assert.Equal(t, "test.log: 2026-02-04T16:50:01Z INFO user alice logged in from 10.2.3.4", ev.Object)

	ev = parseLine(t, p, "WARN authentication failed for bob")
	assert.Equal(t, event.ResultFail, ev.Result)
	assert.Equal(t, "2026-03-10T12:00:00Z", ev.Timestamp)

	ev = parseLine(t, p, "admin updated plugin settings")
	assert.Equal(t, event.ConfigChange, ev.Type)
	assert.Empty(t, ev.Result)

	_, err := p.Parse(Line{Text: "heartbeat ok"})
	assert.ErrorIs(t, err, ErrNoMatch)
}

func TestAppObjectIsTruncated(t *testing.T) {
	p := mustParser(t, "app", testOptions())
	ev := parseLine(t, p, "token rotated "+strings.Repeat("x", 400))
	assert.Equal(t, len("test.log: ")+200, len([]rune(ev.Object)))
}
