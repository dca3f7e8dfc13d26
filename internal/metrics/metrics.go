// Package metrics counts what a run produced and exports the counters to a
// node_exporter textfile or a Pushgateway.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/cyra/edge-events/internal/event"
	"github.com/cyra/edge-events/internal/logging"
)

const (
	namespace = "edge_events"
	job       = "edge_events"
)

// Run holds the counters for one invocation. Each Run has its own registry
// so that runs in the same process do not share state.
type Run struct {
	reg *prometheus.Registry

	Events *prometheus.CounterVec
	Skips  *prometheus.CounterVec
	Files  *prometheus.CounterVec
	Last   prometheus.Gauge
}

// NewRun creates and registers the run counters.
func NewRun() *Run {
	r := &Run{
		reg: prometheus.NewRegistry(),
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Events written, by source and event type.",
		}, []string{"source", "event_type"}),
		Skips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "skipped_lines_total",
			Help:      "Input lines that produced no event, by source and reason.",
		}, []string{"source", "reason"}),
		Files: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_total",
			Help:      "Input files read, by source and selection mode.",
		}, []string{"source", "mode"}),
		Last: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the run finished.",
		}),
	}
	r.reg.MustRegister(r.Events, r.Skips, r.Files, r.Last)
	return r
}

// Registry returns the run's registry.
func (r *Run) Registry() *prometheus.Registry { return r.reg }

// Event counts one written event.
func (r *Run) Event(source string, ev event.Event) {
	r.Events.WithLabelValues(source, string(ev.Type)).Inc()
}

// Skip counts one skipped line.
func (r *Run) Skip(source, reason string) {
	r.Skips.WithLabelValues(source, reason).Inc()
}

// File counts one input file.
func (r *Run) File(source, mode string) {
	r.Files.WithLabelValues(source, mode).Inc()
}

// Finish stamps the completion time.
func (r *Run) Finish() {
	r.Last.SetToCurrentTime()
}

// WriteTextfile writes the registry in the text exposition format for the
// node_exporter textfile collector. The file is replaced atomically.
func (r *Run) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.reg); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

// Push sends the registry to a Pushgateway, grouped by asset id.
func (r *Run) Push(url, assetID string, logger *logging.Logger) error {
	if url == "" {
		return nil
	}
	logger.Infof("pushing metrics to %s", url)
	p := push.New(url, job).Gatherer(r.reg)
	if assetID != "" {
		p = p.Grouping("asset_id", assetID)
	}
	if err := p.Push(); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
