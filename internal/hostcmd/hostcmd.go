// Package hostcmd runs host utilities (web server config dumps, journalctl)
// behind an interface so callers can be tested without spawning processes.
package hostcmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"iter"
	"os/exec"
	"strings"
	"time"

	"github.com/cyra/edge-events/internal/logging"
)

// DefaultGrace is how long Stream waits for a process to exit after its
// output ends before killing it.
const DefaultGrace = 5 * time.Second

// ErrUnavailable is returned when a tool is missing or produced nothing.
var ErrUnavailable = errors.New("command unavailable")

// Runner executes external commands.
type Runner interface {
	// Output runs a command to completion and returns its combined output.
	Output(ctx context.Context, name string, args ...string) (string, error)
	// Stream yields stdout lines as the command produces them.
	Stream(ctx context.Context, name string, args ...string) iter.Seq[string]
}

// Exec is the os/exec backed Runner.
type Exec struct {
	Grace  time.Duration
	Logger *logging.Logger
}

// NewExec returns an Exec with the default grace period.
func NewExec(logger *logging.Logger) *Exec {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Exec{Grace: DefaultGrace, Logger: logger}
}

// Output runs name with args. A missing binary, or a non-zero exit with no
// output, is reported as ErrUnavailable. Tools such as "nginx -T" exit
// non-zero on warnings but still print the configuration, so output is
// returned whenever there is some.
func (e *Exec) Output(ctx context.Context, name string, args ...string) (string, error) {
	if _, err := exec.LookPath(name); err != nil {
		return "", fmt.Errorf("%s: %w", name, ErrUnavailable)
	}
	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.CombinedOutput()
	if err != nil && strings.TrimSpace(string(output)) == "" {
		return "", fmt.Errorf("%s: %w (%v)", name, ErrUnavailable, err)
	}
	if err != nil {
		e.Logger.Debugf("%s exited with %v; using its output anyway", name, err)
	}
	return string(output), nil
}

// Stream starts name and yields its stdout line by line. After the output
// ends, or the consumer stops early, the process gets Grace to exit before
// it is killed. Start failures yield nothing.
func (e *Exec) Stream(ctx context.Context, name string, args ...string) iter.Seq[string] {
	return func(yield func(string) bool) {
		cmd := exec.CommandContext(ctx, name, args...)
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			e.Logger.Debugf("%s: stdout pipe: %v", name, err)
			return
		}
		if err := cmd.Start(); err != nil {
			e.Logger.Debugf("%s: start: %v", name, err)
			return
		}
		defer e.reap(cmd, name)

		sc := bufio.NewScanner(stdout)
		sc.Buffer(make([]byte, 64*1024), 1<<20)
		for sc.Scan() {
			if !yield(sc.Text()) {
				return
			}
		}
		if err := sc.Err(); err != nil {
			e.Logger.Debugf("%s: read: %v", name, err)
		}
	}
}

func (e *Exec) reap(cmd *exec.Cmd, name string) {
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	grace := e.Grace
	if grace <= 0 {
		grace = DefaultGrace
	}
	select {
	case err := <-done:
		if err != nil {
			e.Logger.Debugf("%s exited: %v", name, err)
		}
	case <-time.After(grace):
		e.Logger.Warnf("%s did not exit within %s; killing it", name, grace)
		_ = cmd.Process.Kill()
		<-done
	}
}
