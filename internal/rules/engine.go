// Package rules evaluates filter expressions against events before they
// reach the sink.
package rules

import (
	"errors"
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/cyra/edge-events/internal/event"
)

// ErrNotBool is returned when a filter expression does not evaluate to a bool.
var ErrNotBool = errors.New("filter expression must evaluate to bool")

// Filter is a compiled boolean expression over an event's sparse fields,
// e.g. `event_type == "auth" && result == "fail"`. Fields absent from an
// event evaluate to nil.
type Filter struct {
	src     string
	program *vm.Program
}

// Compile parses src. An empty or blank src yields a nil Filter, which
// keeps every event.
func Compile(src string) (*Filter, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return nil, nil
	}
	program, err := expr.Compile(src,
		expr.Env(map[string]any{}),
		expr.AllowUndefinedVariables(),
		expr.AsBool(),
	)
	if err != nil {
		return nil, fmt.Errorf("compile filter %q: %w", src, err)
	}
	return &Filter{src: src, program: program}, nil
}

// String returns the source expression.
func (f *Filter) String() string {
	if f == nil {
		return ""
	}
	return f.src
}

// Match reports whether ev passes the filter. A nil Filter matches
// everything.
func (f *Filter) Match(ev event.Event) (bool, error) {
	if f == nil {
		return true, nil
	}
	out, err := expr.Run(f.program, ev.Fields())
	if err != nil {
		return false, fmt.Errorf("run filter: %w", err)
	}
	ok, isBool := out.(bool)
	if !isBool {
		return false, ErrNotBool
	}
	return ok, nil
}
