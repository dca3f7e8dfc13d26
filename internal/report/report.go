// Package report builds the per-run discovery report.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/cyra/edge-events/internal/discovery"
)

// JournalFallback records the unit that supplied events when no log file
// could be found.
type JournalFallback struct {
	Unit   string `json:"unit"`
	Events int    `json:"events"`
}

// Counts summarises what a run produced.
type Counts struct {
	Files  int            `json:"files"`
	Events int            `json:"events"`
	Skips  map[string]int `json:"skips"`
}

// Document is the JSON report written next to a run's output.
type Document struct {
	RunID           string            `json:"run_id"`
	GeneratedAt     string            `json:"generated_at"`
	AssetID         string            `json:"asset_id"`
	Source          string            `json:"source"`
	Mode            string            `json:"mode"`
	Output          string            `json:"output,omitempty"`
	SelectedFiles   []string          `json:"selected_files"`
	JournalFallback *JournalFallback  `json:"journal_fallback,omitempty"`
	GlobReport      *discovery.Report `json:"glob_report,omitempty"`
	Counts          Counts            `json:"counts"`
}

// New starts a report for one source run with a fresh run id.
func New(source, assetID string) *Document {
	return &Document{
		RunID:         uuid.New().String(),
		GeneratedAt:   time.Now().UTC().Format(time.RFC3339),
		AssetID:       assetID,
		Source:        source,
		SelectedFiles: []string{},
		Counts:        Counts{Skips: map[string]int{}},
	}
}

// Skip counts one skipped line under reason.
func (d *Document) Skip(reason string) {
	d.Counts.Skips[reason]++
}

// Write stores the report as indented JSON at path, creating parent
// directories. The file is replaced atomically.
func (d *Document) Write(path string) error {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// Read loads a report written by Write.
func Read(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read report: %w", err)
	}
	var d Document
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("parse report: %w", err)
	}
	return &d, nil
}
