// Package sink writes canonical events as newline-delimited JSON and merges
// such files.
package sink

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"os"
	"path/filepath"

	"github.com/cyra/edge-events/internal/event"
	"github.com/cyra/edge-events/internal/logging"
	"github.com/cyra/edge-events/internal/rules"
)

// Stdout is the output path that writes to standard output.
const Stdout = "-"

const bufSize = 64 * 1024

// Option configures WriteNDJSON.
type Option func(*writer)

// WithFilter drops events the filter rejects. A filter error drops the
// event too.
func WithFilter(f *rules.Filter) Option {
	return func(w *writer) { w.filter = f }
}

// WithCounter calls fn for every event written.
func WithCounter(fn func(event.Event)) Option {
	return func(w *writer) { w.counter = fn }
}

// WithLogger sets the logger used for dropped events.
func WithLogger(l *logging.Logger) Option {
	return func(w *writer) { w.logger = l }
}

type writer struct {
	filter  *rules.Filter
	counter func(event.Event)
	logger  *logging.Logger
}

// WriteNDJSON drains events into path, one JSON object per line, and
// returns how many were written. Parent directories are created; an
// existing file is replaced. Path "-" writes to stdout.
func WriteNDJSON(path string, events iter.Seq[event.Event], opts ...Option) (int, error) {
	w := &writer{logger: logging.Nop()}
	for _, opt := range opts {
		opt(w)
	}

	if path == Stdout {
		return w.write(os.Stdout, events)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, fmt.Errorf("create output dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create output: %w", err)
	}
	n, err := w.write(f, events)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("close output: %w", cerr)
	}
	return n, err
}

func (w *writer) write(out io.Writer, events iter.Seq[event.Event]) (int, error) {
	bw := bufio.NewWriterSize(out, bufSize)
	enc := json.NewEncoder(bw)
	enc.SetEscapeHTML(false)

	n := 0
	for ev := range events {
		keep, err := w.filter.Match(ev)
		if err != nil {
			w.logger.Debugf("filter %q: %v", w.filter, err)
		}
		if !keep {
			continue
		}
		// Encode appends the newline.
		if err := enc.Encode(ev); err != nil {
			return n, fmt.Errorf("write event: %w", err)
		}
		n++
		if w.counter != nil {
			w.counter(ev)
		}
	}
	if err := bw.Flush(); err != nil {
		return n, fmt.Errorf("flush output: %w", err)
	}
	return n, nil
}
