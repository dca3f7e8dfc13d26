package discovery

import (
	"bufio"
	"context"
	"io/fs"
	"os"
	"path"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/cyra/edge-events/internal/hostcmd"
	"github.com/cyra/edge-events/internal/logging"
)

var (
	accessLogRe  = regexp.MustCompile(`\baccess_log\s+([^;\s]+)`)
	customLogRe  = regexp.MustCompile(`\bCustomLog\s+([^\s]+)`)
	httpdRootRe  = regexp.MustCompile(`-D\s+HTTPD_ROOT="([^"]+)"`)
	apacheConfig = []string{
		"/etc/apache2/apache2.conf",
		"/etc/apache2/sites-enabled/000-default.conf",
		"/etc/httpd/conf/httpd.conf",
		"/etc/httpd/conf.d/ssl.conf",
	}
)

// WebConfigInspector reports the access log files a running web server is
// configured to write. An unavailable server or tool yields nothing.
type WebConfigInspector interface {
	Name() string
	AccessLogs(ctx context.Context) []string
}

// hostFS is the host filesystem seen from "/". Paths handed to it are
// absolute and converted to fs.FS form internally.
type hostFS struct {
	fsys fs.FS
}

func newHostFS(fsys fs.FS) hostFS {
	if fsys == nil {
		fsys = os.DirFS("/")
	}
	return hostFS{fsys: fsys}
}

func rel(p string) string {
	return strings.TrimPrefix(path.Clean("/"+p), "/")
}

func (h hostFS) read(p string) (string, bool) {
	data, err := fs.ReadFile(h.fsys, rel(p))
	if err != nil {
		return "", false
	}
	return string(data), true
}

func (h hostFS) isFile(p string) bool {
	info, err := fs.Stat(h.fsys, rel(p))
	return err == nil && info.Mode().IsRegular()
}

func (h hostFS) isDir(p string) bool {
	info, err := fs.Stat(h.fsys, rel(p))
	return err == nil && info.IsDir()
}

// existing expands glob paths and keeps regular files, deduplicated in order.
func (h hostFS) existing(paths []string) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(p string) {
		if !seen[p] && h.isFile(p) {
			seen[p] = true
			out = append(out, p)
		}
	}
	for _, p := range paths {
		if !strings.ContainsAny(p, "*?[") {
			add(p)
			continue
		}
		matches, err := doublestar.Glob(h.fsys, rel(p))
		if err != nil {
			continue
		}
		for _, m := range matches {
			add("/" + m)
		}
	}
	return out
}

// NginxInspector reads access_log directives from "nginx -T", falling back
// to /etc/nginx/nginx.conf. Includes are not followed in the fallback.
type NginxInspector struct {
	Runner hostcmd.Runner
	FS     fs.FS
	Logger *logging.Logger
}

func (n *NginxInspector) Name() string { return "nginx" }

func (n *NginxInspector) AccessLogs(ctx context.Context) []string {
	host := newHostFS(n.FS)
	text, err := n.Runner.Output(ctx, "nginx", "-T")
	if err != nil {
		if n.Logger != nil {
			n.Logger.Debugf("nginx -T: %v; reading nginx.conf", err)
		}
		var ok bool
		if text, ok = host.read("/etc/nginx/nginx.conf"); !ok {
			return nil
		}
	}
	return host.existing(nginxAccessLogs(text))
}

func nginxAccessLogs(conf string) []string {
	var paths []string
	sc := bufio.NewScanner(strings.NewReader(conf))
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") || !strings.Contains(line, "access_log") {
			continue
		}
		m := accessLogRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		p := strings.Trim(strings.TrimSpace(m[1]), `"'`)
		switch {
		case p == "" || p == "off":
			continue
		case strings.HasPrefix(p, "syslog:"), strings.Contains(p, "$"):
			continue
		case strings.HasPrefix(p, "/"):
			paths = append(paths, p)
		default:
			paths = append(paths, path.Join("/var/log/nginx", p))
		}
	}
	return paths
}

// ApacheInspector reads CustomLog directives from the usual Debian and RHEL
// config files, plus the one under HTTPD_ROOT reported by "apachectl -V".
type ApacheInspector struct {
	Runner hostcmd.Runner
	FS     fs.FS
	Logger *logging.Logger
}

func (a *ApacheInspector) Name() string { return "apache" }

func (a *ApacheInspector) AccessLogs(ctx context.Context) []string {
	host := newHostFS(a.FS)

	root := ""
	if out, err := a.Runner.Output(ctx, "apachectl", "-V"); err == nil {
		if m := httpdRootRe.FindStringSubmatch(out); m != nil {
			root = m[1]
		}
	} else if a.Logger != nil {
		a.Logger.Debugf("apachectl -V: %v", err)
	}

	configs := append([]string{}, apacheConfig...)
	if root != "" {
		configs = append(configs, path.Join(root, "conf/httpd.conf"))
	}

	logDir := "/var/log/httpd"
	if host.isDir("/var/log/apache2") {
		logDir = "/var/log/apache2"
	}

	var paths []string
	for _, c := range configs {
		text, ok := host.read(c)
		if !ok {
			continue
		}
		for _, p := range apacheCustomLogs(text) {
			if strings.HasPrefix(p, "/") {
				paths = append(paths, p)
				continue
			}
			if root != "" {
				paths = append(paths, path.Join(root, p))
			}
			paths = append(paths, path.Join(logDir, p))
		}
	}
	return host.existing(paths)
}

func apacheCustomLogs(conf string) []string {
	var paths []string
	sc := bufio.NewScanner(strings.NewReader(conf))
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") || !strings.Contains(line, "CustomLog") {
			continue
		}
		m := customLogRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		p := strings.Trim(strings.TrimSpace(m[1]), `"'`)
		if p == "" || strings.Contains(p, "$") || strings.HasPrefix(p, "|") {
			continue
		}
		paths = append(paths, p)
	}
	return paths
}
