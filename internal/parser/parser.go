package parser

import (
	"errors"
	"fmt"
	"iter"

	"github.com/cyra/edge-events/internal/event"
	"github.com/cyra/edge-events/internal/logfile"
	"github.com/cyra/edge-events/internal/normalize"
)

// Skip reasons. A parser returns one of these (possibly wrapped) when a line
// yields no event.
var (
	ErrEmptyLine     = errors.New("empty line")
	ErrNoMatch       = errors.New("no grammar matched")
	ErrMissingField  = errors.New("required field missing")
	ErrInvalidJSON   = errors.New("invalid json object")
	ErrInvalidQName  = errors.New("invalid query name")
	ErrUnknownParser = errors.New("unknown parser")
)

// SkipReason maps a skip error to a short label for counting.
func SkipReason(err error) string {
	switch {
	case errors.Is(err, ErrEmptyLine):
		return "empty_line"
	case errors.Is(err, ErrNoMatch):
		return "no_match"
	case errors.Is(err, ErrMissingField):
		return "missing_field"
	case errors.Is(err, ErrInvalidJSON):
		return "invalid_json"
	case errors.Is(err, ErrInvalidQName):
		return "invalid_qname"
	case errors.Is(err, logfile.ErrLineTooLong):
		return "line_too_long"
	}
	return "other"
}

// Line is one raw line together with where it came from.
type Line struct {
	Text   string
	Path   string
	Number int
}

// Parser turns one raw line into one canonical event. A non-nil error means
// the line was skipped; the error says why.
type Parser interface {
	Name() string
	Parse(Line) (event.Event, error)
}

// RecordParser is implemented by parsers that read some files as whole
// records rather than independent lines. Records reports false when path is
// not such a file, in which case it is read line by line.
type RecordParser interface {
	Parser
	Records(path string, skip func(error)) (iter.Seq[event.Event], bool)
}

// Options carries the per-run settings shared by all parsers.
type Options struct {
	AssetID  string
	Host     string // optional host tag for web access events
	MaxLines int    // per-file line cap; 0 picks the parser default
	TrustXFF bool
	Keywords Keywords
	Clock    *normalize.Normalizer
}

// New returns the parser for a source name.
func New(name string, opts Options) (Parser, error) {
	if opts.Clock == nil {
		opts.Clock = normalize.NewNormalizer()
	}
	switch name {
	case "web", "nginx", "apache", "nginx_combined", "apache_combined":
		return newWebParser(opts), nil
	case "alb", "elb":
		return newALBParser(opts), nil
	case "firewall", "flow":
		return newFirewallParser(opts), nil
	case "dns":
		return newDNSParser(opts), nil
	case "syslog":
		p, err := newSyslogParser(opts)
		if err != nil {
			return nil, err
		}
		return p, nil
	case "app":
		p, err := newAppParser(opts)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownParser, name)
	}
}

// grammar is one candidate line format. matched reports a structural match;
// once a grammar matches, its event or its error decides the line.
type grammar struct {
	name  string
	match func(Line) (ev event.Event, matched bool, err error)
}

func parseWith(grammars []grammar, l Line) (event.Event, error) {
	if isBlank(l.Text) {
		return event.Event{}, ErrEmptyLine
	}
	for _, g := range grammars {
		ev, matched, err := g.match(l)
		if !matched {
			continue
		}
		if err != nil {
			return event.Event{}, fmt.Errorf("%s: %w", g.name, err)
		}
		return ev, nil
	}
	return event.Event{}, ErrNoMatch
}

func isBlank(s string) bool {
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case ' ', '\t', '\r', '\n':
		default:
			return false
		}
	}
	return true
}

type lineCapper interface {
	maxLines() int
}

func capOr(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}
