package parser

import (
	"fmt"
	"path/filepath"
	"regexp"

	"github.com/cyra/edge-events/internal/event"
	"github.com/cyra/edge-events/internal/normalize"
)

const appDefaultMaxLines = 20000

// appParser classifies generic application log lines by keyword. The first
// class that matches wins: auth success, auth failure, config change.
type appParser struct {
	opts     Options
	grammars []grammar
}

type appClass struct {
	name   string
	re     *regexp.Regexp
	typ    event.Type
	result string
}

func newAppParser(opts Options) (*appParser, error) {
	kw := opts.Keywords.orDefault()
	p := &appParser{opts: opts}
	for _, c := range []struct {
		name    string
		phrases []string
		typ     event.Type
		result  string
	}{
		{"auth_success", kw.AppAuthSuccess, event.Auth, event.ResultSuccess},
		{"auth_fail", kw.AppAuthFail, event.Auth, event.ResultFail},
		{"config_change", kw.AppConfigChange, event.ConfigChange, ""},
	} {
		re, err := compilePhrases(c.phrases)
		if err != nil {
			return nil, fmt.Errorf("app %s keywords: %w", c.name, err)
		}
		class := appClass{name: c.name, re: re, typ: c.typ, result: c.result}
		p.grammars = append(p.grammars, grammar{name: c.name, match: p.classify(class)})
	}
	return p, nil
}

func (p *appParser) Name() string { return "app" }

func (p *appParser) maxLines() int { return capOr(p.opts.MaxLines, appDefaultMaxLines) }

func (p *appParser) Parse(l Line) (event.Event, error) {
	return parseWith(p.grammars, l)
}

func (p *appParser) classify(c appClass) func(Line) (event.Event, bool, error) {
	return func(l Line) (event.Event, bool, error) {
		if !c.re.MatchString(l.Text) {
			return event.Event{}, false, nil
		}
		ts, ok := p.opts.Clock.FindISO(l.Text)
		if !ok {
			ts = p.opts.Clock.Now()
		}
		object := normalize.Truncate(l.Text, excerptRunes)
		if l.Path != "" {
			object = filepath.Base(l.Path) + ": " + object
		}
		return event.Event{
			Timestamp: ts,
			AssetID:   p.opts.AssetID,
			Type:      c.typ,
			SrcIP:     normalize.FirstIPv4(l.Text),
			Result:    c.result,
			Object:    object,
		}, true, nil
	}
}
