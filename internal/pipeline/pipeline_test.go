package pipeline

import (
	"context"
	"iter"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyra/edge-events/internal/config"
	"github.com/cyra/edge-events/internal/hostcmd"
	"github.com/cyra/edge-events/internal/report"
)

const (
	combinedLine = `10.0.0.5 - - [04/Feb/2026:17:50:01 +0100] "GET /index.html HTTP/1.1" 200 1024 "-" "curl/7.38.0"`
	dnsmasqLine  = `query[A] example.com from 10.1.1.1`
	journalUnit  = "journalctl -u %s --since 24 hours ago --no-pager -o cat"
)

type staticInspector struct {
	name  string
	files []string
}

func (s staticInspector) Name() string { return s.name }

func (s staticInspector) AccessLogs(context.Context) []string { return s.files }

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.AssetID = "edge-1"
	return cfg
}

func newRunner(t *testing.T, cfg *config.Config, cmds hostcmd.Runner, opts ...Option) *Runner {
	t.Helper()
	if cmds == nil {
		cmds = &hostcmd.Fake{}
	}
	r, err := NewRunner(cfg, nil, cmds, append([]Option{WithInspectors()}, opts...)...)
	require.NoError(t, err)
	return r
}

func writeFile(t *testing.T, path string, lines ...string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
	return path
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	s := strings.TrimSuffix(string(data), "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

func unit(name string) string {
	return strings.Replace(journalUnit, "%s", name, 1)
}

func TestRunExplicit(t *testing.T) {
	dir := t.TempDir()
	in := writeFile(t, filepath.Join(dir, "access.log"), combinedLine, `garbage "GET`)
	out := filepath.Join(dir, "out", "web.jsonl")
	rep := filepath.Join(dir, "out", "web.report.json")

	r := newRunner(t, testConfig(), nil)
	sum, err := r.Run(context.Background(), Request{Source: Web, Inputs: []string{in}, Out: out, ReportPath: rep})
	require.NoError(t, err)

	assert.Equal(t, ModeExplicit, sum.Mode)
	assert.Equal(t, []string{in}, sum.Files)
	assert.Equal(t, 1, sum.Events)

	lines := readLines(t, out)
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], `"timestamp":"2026-02-04T16:50:01Z"`)
	assert.Contains(t, lines[0], `"asset_id":"edge-1"`)

	doc, err := report.Read(rep)
	require.NoError(t, err)
	assert.Equal(t, ModeExplicit, doc.Mode)
	assert.Equal(t, []string{in}, doc.SelectedFiles)
	assert.Equal(t, 1, doc.Counts.Events)
	assert.Equal(t, 1, doc.Counts.Skips["no_match"])
	assert.Nil(t, doc.GlobReport)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.Metrics().Events.WithLabelValues("web", "http_access")))
}

func TestRunExplicitGlob(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, filepath.Join(dir, "logs", "a.log"), combinedLine)
	b := writeFile(t, filepath.Join(dir, "logs", "b.log"), combinedLine, combinedLine)

	r := newRunner(t, testConfig(), nil)
	sum, err := r.Run(context.Background(), Request{
		Source: Web,
		Inputs: []string{filepath.Join(dir, "logs", "*.log"), a},
		Out:    filepath.Join(dir, "web.jsonl"),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{a, b}, sum.Files)
	assert.Equal(t, 3, sum.Events)
}

func TestRunExplicitGlobMatchingNothing(t *testing.T) {
	dir := t.TempDir()
	r := newRunner(t, testConfig(), nil)
	_, err := r.Run(context.Background(), Request{
		Source: Web,
		Inputs: []string{filepath.Join(dir, "*.log")},
		Out:    filepath.Join(dir, "web.jsonl"),
	})
	assert.ErrorIs(t, err, ErrNoInput)
	assert.NoFileExists(t, filepath.Join(dir, "web.jsonl"))
}

func TestRunWebConfigInspectors(t *testing.T) {
	dir := t.TempDir()
	logPath := writeFile(t, filepath.Join(dir, "apache", "access_log"), combinedLine)

	r := newRunner(t, testConfig(), nil, WithInspectors(
		staticInspector{name: "nginx"},
		staticInspector{name: "apache", files: []string{logPath}},
	))
	sum, err := r.Run(context.Background(), Request{Source: Web, Out: filepath.Join(dir, "web.jsonl")})
	require.NoError(t, err)
	assert.Equal(t, "apache_config", sum.Mode)
	assert.Equal(t, []string{logPath}, sum.Files)
	assert.Equal(t, 1, sum.Events)
}

func TestRunDefaultGlobs(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "var", "log", "nginx", "access.log"), combinedLine)
	out := filepath.Join(t.TempDir(), "web.jsonl")

	r := newRunner(t, testConfig(), nil)
	sum, err := r.Run(context.Background(), Request{Source: Web, Roots: []string{root}, Out: out})
	require.NoError(t, err)

	assert.Equal(t, ModeDefaultGlobs, sum.Mode)
	assert.Equal(t, []string{filepath.Join(root, "var", "log", "nginx", "access.log")}, sum.Files)
	require.NotNil(t, sum.Report.GlobReport)
	require.Len(t, sum.Report.GlobReport.Found, 1)
	assert.Equal(t, "matched default glob", sum.Report.GlobReport.Found[0].Reason)
}

func TestRunDefaultGlobsBudgetOverride(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"dnsmasq.log", "dnsmasq-1.log", "dnsmasq-2.log"} {
		writeFile(t, filepath.Join(root, "var", "log", name), dnsmasqLine)
	}

	r := newRunner(t, testConfig(), nil)
	sum, err := r.Run(context.Background(), Request{
		Source:   DNS,
		Roots:    []string{root},
		MaxFiles: 2,
		Out:      filepath.Join(t.TempDir(), "dns.jsonl"),
	})
	require.NoError(t, err)
	assert.Len(t, sum.Files, 2)
	assert.Equal(t, 2, sum.Events)
	require.Len(t, sum.Report.GlobReport.Skipped, 1)
	assert.Equal(t, "max_files=2 reached", sum.Report.GlobReport.Skipped[0].Reason)
}

func TestRunJournalFallback(t *testing.T) {
	cmds := &hostcmd.Fake{Streams: map[string][]string{
		unit("apache2"): {combinedLine, "", combinedLine},
		unit("httpd"):   {combinedLine},
	}}
	out := filepath.Join(t.TempDir(), "web.jsonl")

	r := newRunner(t, testConfig(), cmds)
	sum, err := r.Run(context.Background(), Request{Source: Web, Roots: []string{t.TempDir()}, Out: out})
	require.NoError(t, err)

	assert.Equal(t, ModeAuto, sum.Mode)
	assert.Empty(t, sum.Files)
	assert.Equal(t, 2, sum.Events)
	assert.Equal(t, &report.JournalFallback{Unit: "apache2", Events: 2}, sum.Report.JournalFallback)
	assert.Equal(t, []string{unit("nginx"), unit("apache2")}, cmds.Calls())
	assert.Len(t, readLines(t, out), 2)
}

func TestRunJournalDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Journal.Enabled = false
	cmds := &hostcmd.Fake{Streams: map[string][]string{unit("nginx"): {combinedLine}}}

	r := newRunner(t, cfg, cmds)
	_, err := r.Run(context.Background(), Request{Source: Web, Roots: []string{t.TempDir()}, Out: filepath.Join(t.TempDir(), "w.jsonl")})
	assert.ErrorIs(t, err, ErrNoInput)
	assert.Empty(t, cmds.Calls())
}

func TestRunNoInputForNonWebSource(t *testing.T) {
	cmds := &hostcmd.Fake{}
	r := newRunner(t, testConfig(), cmds)
	_, err := r.Run(context.Background(), Request{Source: Syslog, Roots: []string{t.TempDir()}, Out: filepath.Join(t.TempDir(), "s.jsonl")})
	assert.ErrorIs(t, err, ErrNoInput)
	assert.Empty(t, cmds.Calls())
}

func TestRunRequiresAssetID(t *testing.T) {
	cfg := testConfig()
	cfg.AssetID = ""
	r := newRunner(t, cfg, nil)
	_, err := r.Run(context.Background(), Request{Source: Web, Inputs: []string{"x"}, Out: "-"})
	assert.ErrorContains(t, err, "asset id")
}

func TestRunFilter(t *testing.T) {
	dir := t.TempDir()
	in := writeFile(t, filepath.Join(dir, "dns.log"), dnsmasqLine, `query[AAAA] example.org from 10.1.1.2`)
	cfg := testConfig()
	cfg.Filter = `qtype == "AAAA"`

	r := newRunner(t, cfg, nil)
	sum, err := r.Run(context.Background(), Request{Source: DNS, Inputs: []string{in}, Out: filepath.Join(dir, "dns.jsonl")})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Events)
}

func TestNewRunnerBadFilter(t *testing.T) {
	cfg := testConfig()
	cfg.Filter = "qtype =="
	_, err := NewRunner(cfg, nil, &hostcmd.Fake{})
	assert.Error(t, err)
}

func TestBundle(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "var", "log", "nginx", "access.log"), combinedLine)
	writeFile(t, filepath.Join(root, "var", "log", "dnsmasq.log"), dnsmasqLine)
	outDir := filepath.Join(t.TempDir(), "bundle")

	r := newRunner(t, testConfig(), nil)
	sum, err := r.Bundle(context.Background(), BundleRequest{OutDir: outDir, Roots: []string{root}, Reports: true})
	require.NoError(t, err)

	assert.Equal(t, []Source{ALB, Firewall, Syslog, App}, sum.Missing)
	require.Len(t, sum.Runs, 2)
	assert.Equal(t, Web, sum.Runs[0].Source)
	assert.Equal(t, DNS, sum.Runs[1].Source)
	assert.Equal(t, filepath.Join(outDir, DefaultMergedName), sum.Merged)
	assert.Equal(t, 2, sum.Events)

	merged := readLines(t, sum.Merged)
	require.Len(t, merged, 2)
	assert.Contains(t, merged[0], `"event_type":"http_access"`)
	assert.Contains(t, merged[1], `"event_type":"dns"`)
	assert.FileExists(t, filepath.Join(outDir, "dns.report.json"))
}

func TestBundleSelectedSourcesKeepOrder(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "var", "log", "nginx", "access.log"), combinedLine)
	writeFile(t, filepath.Join(root, "var", "log", "dnsmasq.log"), dnsmasqLine)
	outDir := t.TempDir()

	r := newRunner(t, testConfig(), nil)
	sum, err := r.Bundle(context.Background(), BundleRequest{
		Sources: []Source{DNS, Web},
		OutDir:  outDir,
		Merged:  filepath.Join(outDir, "all.jsonl"),
		Roots:   []string{root},
	})
	require.NoError(t, err)
	assert.Empty(t, sum.Missing)
	assert.Equal(t, Web, sum.Runs[0].Source)
	assert.NoFileExists(t, filepath.Join(outDir, "web.report.json"))
}

func TestBundleNothingAnywhere(t *testing.T) {
	r := newRunner(t, testConfig(), nil)
	sum, err := r.Bundle(context.Background(), BundleRequest{OutDir: t.TempDir(), Roots: []string{t.TempDir()}})
	assert.ErrorIs(t, err, ErrNoInput)
	assert.Len(t, sum.Missing, len(BundleOrder))
}

func TestParseSource(t *testing.T) {
	for in, want := range map[string]Source{"web": Web, "NGINX": Web, "apache": Web, "elb": ALB, "app": App} {
		got, err := ParseSource(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseSource("iis")
	assert.Error(t, err)
}

func TestPeek(t *testing.T) {
	seq, stop, ok := peek(slices.Values([]int{}))
	assert.False(t, ok)
	assert.Nil(t, seq)
	assert.Nil(t, stop)

	seq, _, ok = peek(slices.Values([]int{1, 2, 3}))
	require.True(t, ok)
	assert.Equal(t, []int{1, 2, 3}, slices.Collect(seq))

	seq, _, ok = peek(slices.Values([]int{1, 2, 3}))
	require.True(t, ok)
	for v := range seq {
		assert.Equal(t, 1, v)
		break
	}
}

func TestPeekStopReleasesUnrangedSequence(t *testing.T) {
	released := false
	src := func(yield func(int) bool) {
		defer func() { released = true }()
		for i := range 3 {
			if !yield(i) {
				return
			}
		}
	}

	_, stop, ok := peek(src)
	require.True(t, ok)
	assert.False(t, released)
	stop()
	assert.True(t, released)
	stop()
}

// trackedStreams streams the same lines for every command and records
// whether each stream was run to its end or released.
type trackedStreams struct {
	lines []string
	open  int
}

func (s *trackedStreams) Output(context.Context, string, ...string) (string, error) {
	return "", hostcmd.ErrUnavailable
}

func (s *trackedStreams) Stream(context.Context, string, ...string) iter.Seq[string] {
	return func(yield func(string) bool) {
		s.open++
		defer func() { s.open-- }()
		for _, line := range s.lines {
			if !yield(line) {
				return
			}
		}
	}
}

func TestRunJournalFallbackReleasesStreamOnWriteError(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	cmds := &trackedStreams{lines: []string{combinedLine, combinedLine}}
	r := newRunner(t, testConfig(), cmds)
	_, err := r.Run(context.Background(), Request{
		Source: Web,
		Roots:  []string{t.TempDir()},
		Out:    filepath.Join(blocker, "web.jsonl"),
	})
	require.Error(t, err)
	assert.Zero(t, cmds.open)
}
