package normalize

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru"
)

const (
	timeLocalLayout = "02/Jan/2006:15:04:05 -0700"
	timeCacheSize   = 4096
)

var (
	// 04/Feb/2026:17:50:01 +0100
	timeLocalRe = regexp.MustCompile(`(\d{2}/\w{3}/\d{4}:\d{2}:\d{2}:\d{2})\s+([+-]\d{4})`)
	isoInLineRe = regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(?:\.\d+)?Z\b`)
	// Mmm dd hh:mm:ss host rest
	rfc3164Re   = regexp.MustCompile(`^([A-Z][a-z]{2})\s+(\d{1,2})\s+(\d{2}:\d{2}:\d{2})\s+(\S+)\s+(.*)$`)
	rfc3164TsRe = regexp.MustCompile(`^([A-Z][a-z]{2})\s+(\d{1,2})\s+(\d{2}:\d{2}:\d{2})\b`)
	epochRe     = regexp.MustCompile(`^\d{10}(?:\d{3}|\.\d{1,9})?$`)

	isoLayouts = []string{
		time.RFC3339Nano,
		"2006-01-02 15:04:05.999999999Z07:00",
		"2006-01-02T15:04:05.999999999",
	}

	months = map[string]time.Month{
		"Jan": time.January, "Feb": time.February, "Mar": time.March, "Apr": time.April,
		"May": time.May, "Jun": time.June, "Jul": time.July, "Aug": time.August,
		"Sep": time.September, "Oct": time.October, "Nov": time.November, "Dec": time.December,
	}
)

// Normalizer turns the timestamp conventions found in host logs into
// UTC ISO-8601 strings with a Z suffix. None of its methods fail: anything
// that cannot be read falls back to the current instant.
type Normalizer struct {
	now   func() time.Time
	cache *lru.Cache
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(n *Normalizer) { n.now = now }
}

// NewNormalizer creates a Normalizer.
func NewNormalizer(opts ...Option) *Normalizer {
	n := &Normalizer{now: time.Now}
	for _, opt := range opts {
		opt(n)
	}
	// lru.New only fails for a non-positive size.
	n.cache, _ = lru.New(timeCacheSize)
	return n
}

// Now returns the current instant.
func (n *Normalizer) Now() string {
	return format(n.now())
}

// ISO validates an ISO-8601 string. A valid UTC value is returned unchanged
// so source precision survives; offsets are converted to UTC. Values without
// a zone are taken as UTC.
func (n *Normalizer) ISO(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if len(s) < len("2006-01-02T15:04:05") {
		return "", false
	}
	for _, layout := range isoLayouts {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		if strings.HasSuffix(s, "Z") && s[10] == 'T' {
			return s, true
		}
		return format(t), true
	}
	return "", false
}

// FindISO returns the first ISO-8601 UTC token inside a free-text line.
func (n *Normalizer) FindISO(line string) (string, bool) {
	m := isoInLineRe.FindString(line)
	if m == "" {
		return "", false
	}
	return n.ISO(m)
}

// TimeLocal converts a web server time_local value (DD/Mon/YYYY:HH:MM:SS ±HHMM)
// found anywhere in s.
func (n *Normalizer) TimeLocal(s string) (string, bool) {
	m := timeLocalRe.FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	key := m[1] + " " + m[2]
	if v, ok := n.cache.Get(key); ok {
		return v.(string), true
	}
	t, err := time.Parse(timeLocalLayout, key)
	if err != nil {
		return "", false
	}
	out := format(t)
	n.cache.Add(key, out)
	return out, true
}

// RFC3164 builds a timestamp from a syslog header. The header carries no
// year, so the current UTC year is assumed; entries written before a year
// boundary and read after it are dated one year late.
func (n *Normalizer) RFC3164(mon, day, hms string) string {
	month, ok := months[mon]
	if !ok {
		return n.Now()
	}
	d, err := strconv.Atoi(day)
	if err != nil {
		return n.Now()
	}
	clock, err := time.Parse("15:04:05", hms)
	if err != nil {
		return n.Now()
	}
	t := time.Date(n.now().UTC().Year(), month, d, clock.Hour(), clock.Minute(), clock.Second(), 0, time.UTC)
	if t.Day() != d || t.Month() != month {
		return n.Now()
	}
	return format(t)
}

// SplitRFC3164 strips an RFC3164 header from line and returns its timestamp,
// the host token and the remaining message.
func (n *Normalizer) SplitRFC3164(line string) (ts, host, rest string, ok bool) {
	m := rfc3164Re.FindStringSubmatch(line)
	if m == nil {
		return "", "", line, false
	}
	return n.RFC3164(m[1], m[2], m[3]), m[4], m[5], true
}

// LeadingRFC3164 reads an RFC3164 timestamp at the start of line.
func (n *Normalizer) LeadingRFC3164(line string) (string, bool) {
	m := rfc3164TsRe.FindStringSubmatch(line)
	if m == nil {
		return "", false
	}
	return n.RFC3164(m[1], m[2], m[3]), true
}

// Epoch converts 10-digit second or 13-digit millisecond epoch values.
// Seconds may carry a fraction, as Caddy writes them.
func (n *Normalizer) Epoch(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if !epochRe.MatchString(s) {
		return "", false
	}
	if sec, frac, ok := strings.Cut(s, "."); ok {
		whole, err := strconv.ParseInt(sec, 10, 64)
		if err != nil {
			return "", false
		}
		nanos, err := strconv.ParseInt((frac + "000000000")[:9], 10, 64)
		if err != nil {
			return "", false
		}
		return format(time.Unix(whole, nanos)), true
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return "", false
	}
	if len(s) == 13 {
		return format(time.UnixMilli(v)), true
	}
	return format(time.Unix(v, 0)), true
}

// Normalize tries every known convention in turn and falls back to now.
func (n *Normalizer) Normalize(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return n.Now()
	}
	if v, ok := n.ISO(s); ok {
		return v
	}
	if v, ok := n.TimeLocal(s); ok {
		return v
	}
	if v, ok := n.LeadingRFC3164(s); ok {
		return v
	}
	if v, ok := n.Epoch(s); ok {
		return v
	}
	return n.Now()
}

func format(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
