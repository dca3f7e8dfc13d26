package logtail

import (
	"context"
	"iter"
	"strings"

	"github.com/cyra/edge-events/internal/hostcmd"
	"github.com/cyra/edge-events/internal/logging"
)

// DefaultSince is the journal lookback window.
const DefaultSince = "24 hours ago"

// Journal reads recent lines for a systemd unit through journalctl.
type Journal struct {
	runner hostcmd.Runner
	since  string
	logger *logging.Logger
}

// NewJournal creates a Journal. An empty since uses DefaultSince.
func NewJournal(runner hostcmd.Runner, since string, logger *logging.Logger) *Journal {
	if since == "" {
		since = DefaultSince
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Journal{runner: runner, since: since, logger: logger}
}

// Lines yields the message text of each journal entry for unit within the
// lookback window. Blank lines are dropped. The sequence ends when
// journalctl exits; if it cannot run, the sequence is empty.
func (j *Journal) Lines(ctx context.Context, unit string) iter.Seq[string] {
	return func(yield func(string) bool) {
		j.logger.Debugf("reading journal for unit %s since %q", unit, j.since)
		lines := j.runner.Stream(ctx, "journalctl", "-u", unit, "--since", j.since, "--no-pager", "-o", "cat")
		for line := range lines {
			line = strings.TrimRight(line, "\r\n")
			if strings.TrimSpace(line) == "" {
				continue
			}
			if !yield(line) {
				return
			}
		}
	}
}
