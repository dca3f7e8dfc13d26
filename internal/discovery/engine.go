// Package discovery locates candidate log files under count and byte budgets.
package discovery

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/cyra/edge-events/internal/logging"
)

// Item is one discovery decision.
type Item struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// Report lists what a discovery pass selected, passed over, and failed on.
type Report struct {
	Found   []Item `json:"found"`
	Skipped []Item `json:"skipped"`
	Errors  []Item `json:"errors"`
}

func newReport() Report {
	return Report{Found: []Item{}, Skipped: []Item{}, Errors: []Item{}}
}

// Engine expands glob patterns under a set of roots and selects the most
// recently modified regular files that fit its budgets. Budgets <= 0 are
// unlimited.
type Engine struct {
	Roots         []string
	Patterns      []string
	MaxFiles      int
	MaxTotalBytes int64
	Reason        string

	// FS opens a root; os.DirFS when nil.
	FS     func(root string) fs.FS
	Logger *logging.Logger
}

type candidate struct {
	path  string
	size  int64
	mtime time.Time
}

// Discover runs one pass. For a fixed filesystem snapshot the result is
// always the same: candidates are ordered by modification time, newest
// first, with ties broken by path.
func (e *Engine) Discover() ([]string, Report) {
	log := e.Logger
	if log == nil {
		log = logging.Nop()
	}
	report := newReport()

	var cands []candidate
	seen := make(map[string]bool)
	for _, root := range e.Roots {
		absRoot, err := filepath.Abs(root)
		if err != nil {
			log.Warnf("discovery: bad root %q: %v", root, err)
			continue
		}
		fsys := e.open(absRoot)

		for _, pattern := range e.Patterns {
			pat := strings.TrimLeft(strings.TrimPrefix(pattern, "./"), "/")
			if !doublestar.ValidatePattern(pat) {
				log.Warnf("discovery: invalid pattern %q", pattern)
				continue
			}
			matches, err := doublestar.Glob(fsys, pat)
			if err != nil {
				log.Debugf("discovery: glob %q under %s: %v", pat, absRoot, err)
				continue
			}
			sort.Strings(matches)
			for _, m := range matches {
				full := filepath.Join(absRoot, filepath.FromSlash(m))
				if seen[full] {
					continue
				}
				seen[full] = true

				info, err := fs.Stat(fsys, m)
				if err != nil {
					report.Errors = append(report.Errors, Item{Path: full, Reason: fmt.Sprintf("stat failed: %v", err)})
					continue
				}
				if !info.Mode().IsRegular() {
					continue
				}
				cands = append(cands, candidate{path: full, size: info.Size(), mtime: info.ModTime()})
			}
		}
	}

	sort.Slice(cands, func(i, j int) bool {
		if !cands[i].mtime.Equal(cands[j].mtime) {
			return cands[i].mtime.After(cands[j].mtime)
		}
		return cands[i].path < cands[j].path
	})
	sort.Slice(report.Errors, func(i, j int) bool { return report.Errors[i].Path < report.Errors[j].Path })

	reason := e.Reason
	if reason == "" {
		reason = "matched default glob"
	}
	var selected []string
	var total int64
	for _, c := range cands {
		if e.MaxFiles > 0 && len(selected) >= e.MaxFiles {
			report.Skipped = append(report.Skipped, Item{Path: c.path, Reason: fmt.Sprintf("max_files=%d reached", e.MaxFiles)})
			continue
		}
		if e.MaxTotalBytes > 0 && total+c.size > e.MaxTotalBytes {
			report.Skipped = append(report.Skipped, Item{Path: c.path, Reason: fmt.Sprintf("max_total_bytes=%d reached", e.MaxTotalBytes)})
			continue
		}
		selected = append(selected, c.path)
		total += c.size
		report.Found = append(report.Found, Item{Path: c.path, Reason: reason})
	}
	log.Debugf("discovery: %d found, %d skipped, %d errors", len(report.Found), len(report.Skipped), len(report.Errors))
	return selected, report
}

func (e *Engine) open(root string) fs.FS {
	if e.FS != nil {
		return e.FS(root)
	}
	return os.DirFS(root)
}
