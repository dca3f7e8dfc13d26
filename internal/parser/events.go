package parser

import (
	"iter"

	"github.com/cyra/edge-events/internal/event"
	"github.com/cyra/edge-events/internal/logfile"
	"github.com/cyra/edge-events/internal/logging"
)

// EventsOption configures the Events and Lines drivers.
type EventsOption func(*driver)

type driver struct {
	log    *logging.Logger
	onSkip func(source string, err error)
	onFile func(path string, events int)
}

// WithLogger sets the logger used for file-level problems.
func WithLogger(l *logging.Logger) EventsOption {
	return func(d *driver) { d.log = l }
}

// WithSkipFunc registers a hook called for every skipped line.
func WithSkipFunc(fn func(source string, err error)) EventsOption {
	return func(d *driver) { d.onSkip = fn }
}

// WithFileFunc registers a hook called after each file with its event count.
func WithFileFunc(fn func(path string, events int)) EventsOption {
	return func(d *driver) { d.onFile = fn }
}

func newDriver(opts []EventsOption) *driver {
	d := &driver{log: logging.Nop()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *driver) skip(source string, err error) {
	if d.onSkip != nil {
		d.onSkip(source, err)
	}
}

// Events lazily parses paths in order. Each file is opened, drained and
// closed before the next one. Files that cannot be read contribute no
// events and no error.
func Events(p Parser, paths []string, opts ...EventsOption) iter.Seq[event.Event] {
	d := newDriver(opts)
	return func(yield func(event.Event) bool) {
		for _, path := range paths {
			if !d.file(p, path, yield) {
				return
			}
		}
	}
}

func (d *driver) file(p Parser, path string, yield func(event.Event) bool) bool {
	n := 0
	defer func() {
		if d.onFile != nil {
			d.onFile(path, n)
		}
	}()

	if rp, ok := p.(RecordParser); ok {
		if seq, ok := rp.Records(path, func(err error) { d.skip(p.Name(), err) }); ok {
			for ev := range seq {
				n++
				if !yield(ev) {
					return false
				}
			}
			return true
		}
	}

	rc, err := logfile.Open(path)
	if err != nil {
		d.log.Warnf("%s: skipping unreadable file %s: %v", p.Name(), path, err)
		return true
	}
	defer rc.Close()

	limit := 0
	if c, ok := p.(lineCapper); ok {
		limit = c.maxLines()
	}

	cont := true
	err = logfile.Scan(rc, limit, func(num int, text string) bool {
		ev, err := p.Parse(Line{Text: text, Path: path, Number: num})
		if err != nil {
			d.skip(p.Name(), err)
			return true
		}
		n++
		if !yield(ev) {
			cont = false
			return false
		}
		return true
	}, logfile.OnLongLine(func(num int) {
		d.log.Debugf("%s: %s:%d: %v", p.Name(), path, num, logfile.ErrLineTooLong)
		d.skip(p.Name(), logfile.ErrLineTooLong)
	}))
	if err != nil {
		d.log.Warnf("%s: read error in %s: %v", p.Name(), path, err)
	}
	return cont
}

// Lines parses a stream of raw lines that does not come from a file.
func Lines(p Parser, lines iter.Seq[string], opts ...EventsOption) iter.Seq[event.Event] {
	d := newDriver(opts)
	return func(yield func(event.Event) bool) {
		num := 0
		for text := range lines {
			num++
			ev, err := p.Parse(Line{Text: text, Number: num})
			if err != nil {
				d.skip(p.Name(), err)
				continue
			}
			if !yield(ev) {
				return
			}
		}
	}
}
