package hostcmd

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"strings"
	"sync"
)

// Fake is an in-memory Runner keyed by the full command line
// ("nginx -T"). Commands without an entry are unavailable.
type Fake struct {
	Outputs map[string]string
	Streams map[string][]string

	mu    sync.Mutex
	calls []string
}

func key(name string, args []string) string {
	return strings.TrimSpace(name + " " + strings.Join(args, " "))
}

func (f *Fake) record(k string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, k)
}

// Calls returns the command lines run so far, in order.
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

func (f *Fake) Output(_ context.Context, name string, args ...string) (string, error) {
	k := key(name, args)
	f.record(k)
	out, ok := f.Outputs[k]
	if !ok {
		return "", fmt.Errorf("%s: %w", name, ErrUnavailable)
	}
	return out, nil
}

func (f *Fake) Stream(_ context.Context, name string, args ...string) iter.Seq[string] {
	k := key(name, args)
	return func(yield func(string) bool) {
		f.record(k)
		for _, line := range f.Streams[k] {
			if !yield(line) {
				return
			}
		}
	}
}
