package parser

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"

	"github.com/cyra/edge-events/internal/event"
	"github.com/cyra/edge-events/internal/logfile"
	"github.com/cyra/edge-events/internal/normalize"
)

// Column and key synonyms for JSON and CSV flow exports.
var (
	jsonSrcKeys    = []string{"src_ip", "src", "source", "client_ip"}
	jsonDstKeys    = []string{"dst_ip", "dst", "destination", "server_ip"}
	jsonPortKeys   = []string{"dst_port", "dpt", "destination_port", "port"}
	jsonActionKeys = []string{"action", "act", "result", "decision"}
	jsonTimeKeys   = []string{"ts", "time", "timestamp", "@timestamp", "date"}

	csvSrcCols    = []string{"src", "src_ip", "source", "source_ip"}
	csvDstCols    = []string{"dst", "dst_ip", "destination", "destination_ip"}
	csvPortCols   = []string{"dpt", "dst_port", "destination_port", "port"}
	csvActionCols = []string{"action", "result", "decision"}
	csvTimeCols   = []string{"ts", "time", "timestamp", "date"}
)

// firewallParser reads flow and firewall logs: key=value (bare or behind a
// CEF header), one JSON object per line, or CSV exports with a header row.
type firewallParser struct {
	opts     Options
	grammars []grammar
}

func newFirewallParser(opts Options) *firewallParser {
	p := &firewallParser{opts: opts}
	p.grammars = []grammar{
		{name: "json", match: p.matchJSON},
		{name: "cef", match: p.matchCEF},
		{name: "kv", match: p.matchKV},
	}
	return p
}

func (p *firewallParser) Name() string { return "firewall" }

func (p *firewallParser) maxLines() int { return p.opts.MaxLines }

func (p *firewallParser) Parse(l Line) (event.Event, error) {
	return parseWith(p.grammars, l)
}

func (p *firewallParser) flow(ts, src, dst, port, action string) (event.Event, error) {
	if src == "" || dst == "" {
		return event.Event{}, fmt.Errorf("%w: src and dst", ErrMissingField)
	}
	return event.Event{
		Timestamp: p.timestamp(ts),
		AssetID:   p.opts.AssetID,
		Type:      event.NetworkFlow,
		SrcIP:     src,
		DstIP:     dst,
		DstPort:   optInt(port),
		Action:    normalize.NormalizeAction(action),
	}, nil
}

func (p *firewallParser) timestamp(ts string) string {
	if ts == "" {
		return p.opts.Clock.Now()
	}
	return p.opts.Clock.Normalize(ts)
}

func (p *firewallParser) matchJSON(l Line) (event.Event, bool, error) {
	if !looksLikeJSON(l.Text) {
		return event.Event{}, false, nil
	}
	obj, err := parseJSONObject(l.Text)
	if err != nil {
		return event.Event{}, true, err
	}
	ev, err := p.flow(obj.timestamp(p.opts.Clock, jsonTimeKeys...),
		obj.str(jsonSrcKeys...),
		obj.str(jsonDstKeys...),
		obj.str(jsonPortKeys...),
		obj.str(jsonActionKeys...))
	return ev, true, err
}

func (p *firewallParser) matchCEF(l Line) (event.Event, bool, error) {
	if !strings.HasPrefix(strings.TrimSpace(l.Text), "CEF:") {
		return event.Event{}, false, nil
	}
	ev, err := p.fromKV(normalize.KeyValues(l.Text))
	return ev, true, err
}

func (p *firewallParser) matchKV(l Line) (event.Event, bool, error) {
	kv := normalize.KeyValues(l.Text)
	if kv == nil {
		return event.Event{}, false, nil
	}
	ev, err := p.fromKV(kv)
	return ev, true, err
}

func (p *firewallParser) fromKV(kv normalize.KV) (event.Event, error) {
	return p.flow(kv.First(normalize.TimeAliases...),
		kv.First(normalize.SrcAliases...),
		kv.First(normalize.DstAliases...),
		kv.First(normalize.DstPortAliases...),
		kv.First(normalize.ActionAliases...))
}

// Records reads .csv files (optionally compressed) as header-keyed rows.
func (p *firewallParser) Records(path string, skip func(error)) (iter.Seq[event.Event], bool) {
	if logfile.BaseExt(path) != ".csv" {
		return nil, false
	}
	return func(yield func(event.Event) bool) {
		rc, err := logfile.Open(path)
		if err != nil {
			skip(err)
			return
		}
		defer rc.Close()

		r := csv.NewReader(rc)
		r.FieldsPerRecord = -1
		r.LazyQuotes = true
		r.ReuseRecord = true

		header, err := r.Read()
		if err != nil {
			skip(err)
			return
		}
		cols := make(map[string]int, len(header))
		for i, h := range header {
			name := strings.ToLower(strings.TrimSpace(h))
			if _, seen := cols[name]; !seen {
				cols[name] = i
			}
		}
		get := func(row []string, names []string) string {
			for _, n := range names {
				if i, ok := cols[n]; ok && i < len(row) {
					if v := strings.TrimSpace(row[i]); v != "" {
						return v
					}
				}
			}
			return ""
		}

		rows := 0
		for {
			row, err := r.Read()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				var perr *csv.ParseError
				skip(err)
				if errors.As(err, &perr) {
					continue
				}
				return
			}
			rows++
			if limit := p.opts.MaxLines; limit > 0 && rows > limit {
				return
			}
			ev, err := p.flow(get(row, csvTimeCols), get(row, csvSrcCols), get(row, csvDstCols),
				get(row, csvPortCols), get(row, csvActionCols))
			if err != nil {
				skip(err)
				continue
			}
			if !yield(ev) {
				return
			}
		}
	}, true
}
