package discovery

import (
	"context"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"

	"github.com/cyra/edge-events/internal/hostcmd"
)

const nginxDump = `# configuration file /etc/nginx/nginx.conf:
http {
    access_log /var/log/nginx/access.log combined;
    # access_log /var/log/nginx/old.log;
    access_log off;
    access_log syslog:server=10.0.0.1:514 combined;
    access_log /var/log/nginx/$host.access.log;
    server {
        access_log site.access.log;
        access_log "/var/log/nginx/access.log";
        access_log /var/log/nginx/missing.log;
        access_log /srv/vhosts/*/access.log;
    }
}
`

func TestNginxAccessLogsFromDump(t *testing.T) {
	fsys := fstest.MapFS{
		"var/log/nginx/access.log":      file(1, 0),
		"var/log/nginx/site.access.log": file(1, 0),
		"srv/vhosts/a/access.log":       file(1, 0),
		"srv/vhosts/b/access.log":       file(1, 0),
	}
	n := &NginxInspector{
		Runner: &hostcmd.Fake{Outputs: map[string]string{"nginx -T": nginxDump}},
		FS:     fsys,
	}

	assert.Equal(t, "nginx", n.Name())
	assert.Equal(t, []string{
		"/var/log/nginx/access.log",
		"/var/log/nginx/site.access.log",
		"/srv/vhosts/a/access.log",
		"/srv/vhosts/b/access.log",
	}, n.AccessLogs(context.Background()))
}

func TestNginxFallsBackToConfigFile(t *testing.T) {
	fsys := fstest.MapFS{
		"etc/nginx/nginx.conf":     {Data: []byte("access_log /var/log/nginx/access.log;\n")},
		"var/log/nginx/access.log": file(1, 0),
	}
	runner := &hostcmd.Fake{}
	n := &NginxInspector{Runner: runner, FS: fsys}

	assert.Equal(t, []string{"/var/log/nginx/access.log"}, n.AccessLogs(context.Background()))
	assert.Equal(t, []string{"nginx -T"}, runner.Calls())
}

func TestNginxUnavailableFindsNothing(t *testing.T) {
	n := &NginxInspector{Runner: &hostcmd.Fake{}, FS: fstest.MapFS{}}
	assert.Empty(t, n.AccessLogs(context.Background()))
}

func TestApacheAccessLogs(t *testing.T) {
	fsys := fstest.MapFS{
		"etc/apache2/apache2.conf": {Data: []byte(`
# CustomLog /var/log/apache2/commented.log combined
CustomLog ${APACHE_LOG_DIR}/access.log combined
CustomLog "|/usr/bin/rotatelogs /var/log/apache2/rot.log 86400" common
CustomLog other_vhosts_access.log vhost_combined
`)},
		"etc/apache2/sites-enabled/000-default.conf": {Data: []byte("  CustomLog \"/var/log/apache2/site.log\" combined\n")},
		"var/log/apache2/other_vhosts_access.log":    file(1, 0),
		"var/log/apache2/site.log":                   file(1, 0),
	}
	a := &ApacheInspector{Runner: &hostcmd.Fake{}, FS: fsys}

	assert.Equal(t, "apache", a.Name())
	assert.Equal(t, []string{
		"/var/log/apache2/other_vhosts_access.log",
		"/var/log/apache2/site.log",
	}, a.AccessLogs(context.Background()))
}

func TestApacheHTTPDRoot(t *testing.T) {
	fsys := fstest.MapFS{
		"opt/httpd/conf/httpd.conf": {Data: []byte("CustomLog logs/access_log common\n")},
		"opt/httpd/logs/access_log": file(1, 0),
	}
	runner := &hostcmd.Fake{Outputs: map[string]string{
		"apachectl -V": "Server version: Apache/2.4.58\n -D HTTPD_ROOT=\"/opt/httpd\"\n -D SERVER_CONFIG_FILE=\"conf/httpd.conf\"\n",
	}}
	a := &ApacheInspector{Runner: runner, FS: fsys}

	assert.Equal(t, []string{"/opt/httpd/logs/access_log"}, a.AccessLogs(context.Background()))
}

func TestApacheRelativeFallsBackToHTTPDLogDir(t *testing.T) {
	fsys := fstest.MapFS{
		"etc/httpd/conf/httpd.conf": {Data: []byte("CustomLog access_log combined\n")},
		"var/log/httpd/access_log":  file(1, 0),
	}
	a := &ApacheInspector{Runner: &hostcmd.Fake{}, FS: fsys}

	assert.Equal(t, []string{"/var/log/httpd/access_log"}, a.AccessLogs(context.Background()))
}
