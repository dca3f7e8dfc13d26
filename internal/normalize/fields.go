package normalize

import (
	"net/netip"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

var (
	ipv4Re     = regexp.MustCompile(`\b(?:(?:25[0-5]|2[0-4]\d|[01]?\d\d?)\.){3}(?:25[0-5]|2[0-4]\d|[01]?\d\d?)\b`)
	ipv4FullRe = regexp.MustCompile(`^(?:(?:25[0-5]|2[0-4]\d|[01]?\d\d?)\.){3}(?:25[0-5]|2[0-4]\d|[01]?\d\d?)$`)
	kvRe       = regexp.MustCompile(`([A-Za-z0-9_.-]+)=("[^"]*"|'[^']*'|\S+)`)
	qnameRe    = regexp.MustCompile(`^[A-Za-z0-9_.-]+\.?$`)
	qnameTokRe = regexp.MustCompile(`[a-zA-Z0-9_-]{1,63}(?:\.[a-zA-Z0-9_-]{1,63}){1,10}`)
)

// Ordered synonym lists for key=value logs. Lookups are first-match-wins.
var (
	SrcAliases     = []string{"src", "src_ip", "source", "sourceip"}
	DstAliases     = []string{"dst", "dst_ip", "destination", "dstip", "destinationip"}
	DstPortAliases = []string{"dpt", "dstport", "dst_port", "destinationport", "dport"}
	ActionAliases  = []string{"action", "act", "decision", "rule_action"}
	TimeAliases    = []string{"time", "timestamp", "ts"}
)

// Special-purpose ranges that are never a client's public address, beyond
// what netip.Addr.IsPrivate covers (RFC 1918 and ULA).
var reservedPrefixes = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("192.0.0.0/29"),
	netip.MustParsePrefix("192.0.0.170/31"),
	netip.MustParsePrefix("192.0.2.0/24"),
	netip.MustParsePrefix("198.18.0.0/15"),
	netip.MustParsePrefix("198.51.100.0/24"),
	netip.MustParsePrefix("203.0.113.0/24"),
	netip.MustParsePrefix("240.0.0.0/4"),
	netip.MustParsePrefix("100::/64"),
	netip.MustParsePrefix("2001::/23"),
	netip.MustParsePrefix("2001:db8::/32"),
}

func isNonPublic(ip netip.Addr) bool {
	if ip.IsPrivate() || ip.IsLoopback() || ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return true
	}
	for _, p := range reservedPrefixes {
		if p.Contains(ip) {
			return true
		}
	}
	return false
}

// FirstIPv4 returns the first dotted-quad IPv4 literal in s, or "".
func FirstIPv4(s string) string {
	return ipv4Re.FindString(s)
}

// IsIPv4 reports whether s is exactly a dotted-quad IPv4 literal.
func IsIPv4(s string) bool {
	return ipv4FullRe.MatchString(s)
}

// KV holds key=value pairs recovered from free text. Keys are lower-cased.
type KV map[string]string

// KeyValues extracts token=value pairs from s. Quoted values lose their
// quotes; when a key repeats, its first value is kept.
func KeyValues(s string) KV {
	matches := kvRe.FindAllStringSubmatch(s, -1)
	if len(matches) == 0 {
		return nil
	}
	kv := make(KV, len(matches))
	for _, m := range matches {
		k := strings.ToLower(m[1])
		if _, seen := kv[k]; seen {
			continue
		}
		kv[k] = unquote(m[2])
	}
	return kv
}

// First returns the value of the first alias present with a non-empty value.
func (kv KV) First(aliases ...string) string {
	for _, a := range aliases {
		if v := kv[a]; v != "" {
			return v
		}
	}
	return ""
}

func unquote(v string) string {
	if len(v) >= 2 && (v[0] == '"' || v[0] == '\'') && v[len(v)-1] == v[0] {
		return v[1 : len(v)-1]
	}
	return strings.Trim(v, `"`)
}

var actionTable = map[string]string{
	"allow":     "allow",
	"accept":    "allow",
	"permitted": "allow",
	"permit":    "allow",
	"deny":      "deny",
	"drop":      "deny",
	"blocked":   "deny",
	"block":     "deny",
	"reject":    "deny",
}

// NormalizeAction maps a vendor action token to allow or deny. Unknown
// tokens are returned unchanged.
func NormalizeAction(s string) string {
	if s == "" {
		return ""
	}
	lower := strings.ToLower(strings.TrimSpace(s))
	if v, ok := actionTable[lower]; ok {
		return v
	}
	switch {
	case strings.Contains(lower, "allow"), strings.Contains(lower, "accept"):
		return "allow"
	case strings.Contains(lower, "deny"), strings.Contains(lower, "drop"), strings.Contains(lower, "block"):
		return "deny"
	}
	return s
}

// QName cleans a DNS query name token. It rejects IP literals, names
// without an internal dot and names longer than 255 characters.
func QName(tok string) (string, bool) {
	q := strings.TrimRight(strings.TrimSpace(tok), ":")
	q = strings.Trim(q, `()[]{}<>"'`)
	if q == "" || len(q) > 255 {
		return "", false
	}
	q = strings.TrimSuffix(q, ".")
	if !qnameRe.MatchString(q) {
		return "", false
	}
	if !strings.Contains(q, ".") || IsIPv4(q) {
		return "", false
	}
	return q, true
}

// FindQName returns the first plausible query name in free text.
func FindQName(text string) string {
	for _, cand := range qnameTokRe.FindAllString(text, -1) {
		if strings.EqualFold(cand, "localhost") {
			continue
		}
		if q, ok := QName(cand); ok {
			return q
		}
	}
	return ""
}

// PickClientIP returns the best guess at the real client address. The first
// forwarded-for entry outside the private, loopback, link-local and reserved
// ranges wins. If every entry is non-public the first one is used; without
// forwarded-for the direct source address is returned.
func PickClientIP(src, xff string) string {
	var ips []netip.Addr
	for _, part := range strings.Split(xff, ",") {
		addr, err := netip.ParseAddr(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		ips = append(ips, addr.Unmap())
	}
	for _, ip := range ips {
		if isNonPublic(ip) {
			continue
		}
		return ip.String()
	}
	if len(ips) > 0 {
		return ips[0].String()
	}
	return src
}

// ParseInt reads a lenient integer; "-" and blanks are absent values.
func ParseInt(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" || s == "-" {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
