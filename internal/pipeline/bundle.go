package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"

	"github.com/cyra/edge-events/internal/sink"
)

// DefaultMergedName is the merged output file inside a bundle directory.
const DefaultMergedName = "events.jsonl"

// BundleRequest runs several sources into one directory.
type BundleRequest struct {
	Sources []Source // empty means all, in BundleOrder
	OutDir  string
	Merged  string // merged output; defaults to OutDir/events.jsonl
	Roots   []string
	Reports bool // write <source>.report.json next to each output
}

// BundleSummary is the outcome of a bundle run.
type BundleSummary struct {
	Runs    []Summary
	Missing []Source // sources that found no input
	Merged  string
	Events  int
}

// Bundle runs each requested source into OutDir/<source>.jsonl, in
// BundleOrder, then merges the outputs. Sources without input are logged
// and left out. It fails with ErrNoInput only if no source had input.
func (r *Runner) Bundle(ctx context.Context, req BundleRequest) (BundleSummary, error) {
	sources := BundleOrder
	if len(req.Sources) > 0 {
		sources = nil
		for _, s := range BundleOrder {
			if slices.Contains(req.Sources, s) {
				sources = append(sources, s)
			}
		}
	}
	merged := req.Merged
	if merged == "" {
		merged = filepath.Join(req.OutDir, DefaultMergedName)
	}

	var sum BundleSummary
	var outputs []string
	for _, src := range sources {
		run := Request{
			Source: src,
			Roots:  req.Roots,
			Out:    filepath.Join(req.OutDir, string(src)+".jsonl"),
		}
		if req.Reports {
			run.ReportPath = filepath.Join(req.OutDir, string(src)+".report.json")
		}
		s, err := r.Run(ctx, run)
		if errors.Is(err, ErrNoInput) {
			r.logger.Warnf("%s: no input, skipped", src)
			sum.Missing = append(sum.Missing, src)
			continue
		}
		if err != nil {
			return sum, fmt.Errorf("%s: %w", src, err)
		}
		sum.Runs = append(sum.Runs, s)
		outputs = append(outputs, run.Out)
	}
	if len(outputs) == 0 {
		return sum, ErrNoInput
	}

	n, err := sink.Merge(merged, outputs)
	if err != nil {
		return sum, err
	}
	sum.Merged = merged
	sum.Events = n
	r.logger.Infof("merged %d events from %d sources into %s", n, len(outputs), merged)
	return sum, nil
}
