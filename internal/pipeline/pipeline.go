// Package pipeline selects the inputs for a source, parses them and writes
// the canonical event stream.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/cyra/edge-events/internal/config"
	"github.com/cyra/edge-events/internal/discovery"
	"github.com/cyra/edge-events/internal/event"
	"github.com/cyra/edge-events/internal/hostcmd"
	"github.com/cyra/edge-events/internal/logging"
	"github.com/cyra/edge-events/internal/logtail"
	"github.com/cyra/edge-events/internal/metrics"
	"github.com/cyra/edge-events/internal/normalize"
	"github.com/cyra/edge-events/internal/parser"
	"github.com/cyra/edge-events/internal/report"
	"github.com/cyra/edge-events/internal/rules"
	"github.com/cyra/edge-events/internal/sink"
)

// ErrNoInput means no strategy produced anything to parse.
var ErrNoInput = errors.New("no input found: pass --input or relax discovery limits (--root, --max-files, --max-bytes)")

// Selection modes recorded in the report.
const (
	ModeExplicit     = "explicit"
	ModeDefaultGlobs = "default_globs"
	ModeAuto         = "auto"
)

// ConfigMode is the mode for files taken from a web server's configuration.
func ConfigMode(inspector string) string { return inspector + "_config" }

// Request describes one source run.
type Request struct {
	Source Source
	Inputs []string // files or globs; empty means discover

	// Overrides for the configured discovery profile. Zero keeps the
	// profile value.
	Roots         []string
	MaxFiles      int
	MaxTotalBytes int64

	Out        string // NDJSON destination, "-" for stdout
	ReportPath string // optional report destination
}

// Summary is the outcome of one source run.
type Summary struct {
	Source Source
	Mode   string
	Files  []string
	Events int
	Report *report.Document
}

// Runner executes source runs. It is not safe for concurrent use.
type Runner struct {
	cfg        *config.Config
	logger     *logging.Logger
	inspectors []discovery.WebConfigInspector
	journal    *logtail.Journal
	fsys       func(root string) fs.FS
	filter     *rules.Filter
	metrics    *metrics.Run
	clock      *normalize.Normalizer
}

// Option configures a Runner.
type Option func(*Runner)

// WithInspectors replaces the web server config inspectors.
func WithInspectors(in ...discovery.WebConfigInspector) Option {
	return func(r *Runner) { r.inspectors = in }
}

// WithFS sets how discovery opens its roots.
func WithFS(fn func(root string) fs.FS) Option {
	return func(r *Runner) { r.fsys = fn }
}

// WithMetrics records counters into m.
func WithMetrics(m *metrics.Run) Option {
	return func(r *Runner) { r.metrics = m }
}

// WithClock sets the timestamp normalizer shared by the parsers.
func WithClock(n *normalize.Normalizer) Option {
	return func(r *Runner) { r.clock = n }
}

// NewRunner builds a Runner. External tools run through cmds.
func NewRunner(cfg *config.Config, logger *logging.Logger, cmds hostcmd.Runner, opts ...Option) (*Runner, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	filter, err := rules.Compile(cfg.Filter)
	if err != nil {
		return nil, err
	}
	r := &Runner{
		cfg:    cfg,
		logger: logger,
		inspectors: []discovery.WebConfigInspector{
			&discovery.NginxInspector{Runner: cmds, Logger: logger},
			&discovery.ApacheInspector{Runner: cmds, Logger: logger},
		},
		journal: logtail.NewJournal(cmds, cfg.Journal.Since, logger),
		filter:  filter,
		clock:   normalize.NewNormalizer(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.metrics == nil {
		r.metrics = metrics.NewRun()
	}
	return r, nil
}

// Metrics returns the counters collected so far.
func (r *Runner) Metrics() *metrics.Run { return r.metrics }

// Run selects inputs for req.Source, parses them and writes req.Out. The
// selection strategies are tried in order and the first one that yields
// anything wins: explicit inputs, web server config, default globs, and for
// web sources the journal.
func (r *Runner) Run(ctx context.Context, req Request) (Summary, error) {
	if r.cfg.AssetID == "" {
		return Summary{}, errors.New("asset id is required")
	}
	if !req.Source.Valid() {
		return Summary{}, fmt.Errorf("%w: %q", parser.ErrUnknownParser, req.Source)
	}
	log := r.logger.With("source", string(req.Source))

	opts := r.cfg.ParserOptions()
	opts.Clock = r.clock
	p, err := parser.New(string(req.Source), opts)
	if err != nil {
		return Summary{}, fmt.Errorf("build parser: %w", err)
	}

	doc := report.New(string(req.Source), r.cfg.AssetID)
	doc.Output = req.Out
	hooks := []parser.EventsOption{
		parser.WithLogger(log),
		parser.WithSkipFunc(func(source string, err error) {
			reason := parser.SkipReason(err)
			doc.Skip(reason)
			r.metrics.Skip(source, reason)
		}),
		parser.WithFileFunc(func(path string, events int) {
			log.Debugf("%s: %d events", path, events)
		}),
	}

	files, mode, err := r.selectFiles(ctx, req, doc, log)
	if err != nil {
		return Summary{}, err
	}

	var events iter.Seq[event.Event]
	if len(files) > 0 {
		doc.Mode = mode
		doc.SelectedFiles = files
		doc.Counts.Files = len(files)
		for range files {
			r.metrics.File(string(req.Source), mode)
		}
		events = parser.Events(p, files, hooks...)
	} else {
		unit, seq, stop, ok := r.journalEvents(ctx, req.Source, p, hooks)
		if !ok {
			return Summary{}, ErrNoInput
		}
		defer stop()
		doc.Mode = ModeAuto
		doc.JournalFallback = &report.JournalFallback{Unit: unit}
		events = seq
	}
	log.Infof("mode %s, %d files", doc.Mode, len(files))

	n, err := sink.WriteNDJSON(req.Out, events,
		sink.WithFilter(r.filter),
		sink.WithLogger(log),
		sink.WithCounter(func(ev event.Event) { r.metrics.Event(string(req.Source), ev) }),
	)
	if err != nil {
		return Summary{}, err
	}
	doc.Counts.Events = n
	if doc.JournalFallback != nil {
		doc.JournalFallback.Events = n
	}
	log.Infof("wrote %d events to %s", n, req.Out)

	if req.ReportPath != "" {
		if err := doc.Write(req.ReportPath); err != nil {
			return Summary{}, err
		}
	}
	return Summary{Source: req.Source, Mode: doc.Mode, Files: files, Events: n, Report: doc}, nil
}

// selectFiles runs the file-based strategies. An empty result with a nil
// error means every strategy came up empty.
func (r *Runner) selectFiles(ctx context.Context, req Request, doc *report.Document, log *logging.Logger) ([]string, string, error) {
	if len(req.Inputs) > 0 {
		files, err := expandInputs(req.Inputs)
		if err != nil {
			return nil, "", err
		}
		if len(files) == 0 {
			return nil, "", ErrNoInput
		}
		return files, ModeExplicit, nil
	}

	if req.Source == Web {
		for _, in := range r.inspectors {
			if files := in.AccessLogs(ctx); len(files) > 0 {
				return files, ConfigMode(in.Name()), nil
			}
			log.Debugf("%s config: no access logs", in.Name())
		}
	}

	profile, _ := r.cfg.Discovery.Profile(string(req.Source))
	engine := profile.Engine()
	if len(req.Roots) > 0 {
		engine.Roots = req.Roots
	}
	if req.MaxFiles > 0 {
		engine.MaxFiles = req.MaxFiles
	}
	if req.MaxTotalBytes > 0 {
		engine.MaxTotalBytes = req.MaxTotalBytes
	}
	engine.FS = r.fsys
	engine.Logger = log
	files, glob := engine.Discover()
	doc.GlobReport = &glob
	if len(files) > 0 {
		return files, ModeDefaultGlobs, nil
	}
	return nil, "", nil
}

// journalEvents tries each configured unit and returns the first whose
// journal yields at least one event. The caller must call stop once done
// with the sequence, whether or not it was ranged over.
func (r *Runner) journalEvents(ctx context.Context, src Source, p parser.Parser, hooks []parser.EventsOption) (string, iter.Seq[event.Event], func(), bool) {
	if src != Web || !r.cfg.Journal.Enabled {
		return "", nil, nil, false
	}
	for _, unit := range r.cfg.Journal.Units {
		seq := parser.Lines(p, r.journal.Lines(ctx, unit), hooks...)
		if rest, stop, ok := peek(seq); ok {
			return unit, rest, stop, true
		}
		r.logger.Debugf("journal unit %s: no events", unit)
	}
	return "", nil, nil, false
}

// peek pulls the first element of seq. When there is one, the returned
// sequence replays it followed by the rest of seq. stop releases seq early
// and is safe to call more than once.
func peek[T any](seq iter.Seq[T]) (iter.Seq[T], func(), bool) {
	next, stop := iter.Pull(seq)
	first, ok := next()
	if !ok {
		stop()
		return nil, nil, false
	}
	return func(yield func(T) bool) {
		defer stop()
		if !yield(first) {
			return
		}
		for {
			v, ok := next()
			if !ok || !yield(v) {
				return
			}
		}
	}, stop, true
}

// expandInputs resolves explicit inputs to absolute paths. Globs are
// expanded; plain paths are kept even if missing, so the parser can report
// them as unreadable.
func expandInputs(inputs []string) ([]string, error) {
	var out []string
	seen := make(map[string]bool)
	add := func(p string) error {
		abs, err := filepath.Abs(p)
		if err != nil {
			return fmt.Errorf("resolve input %q: %w", p, err)
		}
		if !seen[abs] {
			seen[abs] = true
			out = append(out, abs)
		}
		return nil
	}
	for _, in := range inputs {
		in = strings.TrimSpace(in)
		if in == "" {
			continue
		}
		if !strings.ContainsAny(in, "*?[{") {
			if err := add(in); err != nil {
				return nil, err
			}
			continue
		}
		matches, err := doublestar.FilepathGlob(in)
		if err != nil {
			return nil, fmt.Errorf("expand input %q: %w", in, err)
		}
		for _, m := range matches {
			if info, err := os.Stat(m); err != nil || !info.Mode().IsRegular() {
				continue
			}
			if err := add(m); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}
