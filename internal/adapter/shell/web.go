package shell

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"go_hostpanel/internal/adapter"
	"go_hostpanel/internal/execx"
)

const vhostTemplate = `# managed by go_hostpanel; owner {{.Username}}
server {
    listen 80;
    server_name {{.ServerNames}};
    root {{.DocumentRoot}};
    index index.php index.html;

    access_log /var/log/nginx/{{.Domain}}.access.log;
    error_log /var/log/nginx/{{.Domain}}.error.log;

    location / {
        try_files $uri $uri/ /index.php?$args;
    }
{{- if .PHPSocket}}

    location ~ \.php$ {
        include fastcgi_params;
        fastcgi_param SCRIPT_FILENAME $document_root$fastcgi_script_name;
        fastcgi_pass unix:{{.PHPSocket}};
    }
{{- end}}

    location ~ /\. {
        deny all;
    }
}
`

const suspendedTemplate = `# managed by go_hostpanel; suspended {{.SuspendedAt}}
server {
    listen 80;
    server_name {{.ServerNames}};
    return 503;
}
`

// VhostData holds data for the vhost template
type VhostData struct {
	Domain       string
	ServerNames  string
	DocumentRoot string
	PHPSocket    string
	Username     string
	SuspendedAt  string
}

// WebServerAdapter manages nginx server blocks, one file per domain
type WebServerAdapter struct {
	base
	templates *template.Template
}

// NewWebServerAdapter parses the vhost templates
func NewWebServerAdapter(b base) *WebServerAdapter {
	tmpl := template.Must(template.New("vhost").Parse(vhostTemplate))
	template.Must(tmpl.New("suspended").Parse(suspendedTemplate))
	return &WebServerAdapter{base: b, templates: tmpl}
}

func (a *WebServerAdapter) vhostPath(domain string) string {
	return filepath.Join(a.cfg.Paths.NginxSitesDir, domain+".conf")
}

func (a *WebServerAdapter) disabledPath(domain string) string {
	return a.vhostPath(domain) + ".disabled"
}

// Render renders a named template for spec
func (a *WebServerAdapter) Render(name string, spec adapter.VhostSpec) ([]byte, error) {
	names := append([]string{spec.Domain, "www." + spec.Domain}, spec.Aliases...)
	data := VhostData{
		Domain:       spec.Domain,
		ServerNames:  strings.Join(names, " "),
		DocumentRoot: spec.DocumentRoot,
		PHPSocket:    spec.PHPSocket,
		Username:     spec.Username,
		SuspendedAt:  time.Now().UTC().Format(time.RFC3339),
	}
	var buf bytes.Buffer
	if err := a.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return nil, fmt.Errorf("failed to execute %s template: %w", name, err)
	}
	return buf.Bytes(), nil
}

// test runs nginx -t against the live configuration
func (a *WebServerAdapter) test(ctx context.Context) error {
	_, err := a.exec.Run(ctx, execx.Command{Name: a.cfg.Tools.Nginx, Args: []string{"-t"}})
	if err != nil {
		return fmt.Errorf("nginx test failed: %w", err)
	}
	return nil
}

// apply writes content, validates and reloads; the previous file is
// restored when validation fails.
func (a *WebServerAdapter) apply(ctx context.Context, path string, content []byte) (bool, error) {
	changed, previous, existed, err := writeIfChanged(path, content, 0o644)
	if err != nil || !changed {
		return false, err
	}
	if err := a.test(ctx); err != nil {
		_ = restore(path, previous, existed, 0o644)
		return false, err
	}
	if err := a.reload(ctx, a.cfg.Paths.NginxReloadCmd, ""); err != nil {
		return true, fmt.Errorf("nginx reload failed: %w", err)
	}
	return true, nil
}

// EnsureVhostPresent writes the server block for spec.Domain
func (a *WebServerAdapter) EnsureVhostPresent(ctx context.Context, rc *adapter.Context, spec adapter.VhostSpec) (adapter.Result, error) {
	path := a.vhostPath(spec.Domain)
	entry := adapter.LogEntry{
		Adapter:    adapter.NameWeb,
		Operation:  adapter.OpCreate,
		TargetKind: "vhost",
		TargetKey:  spec.Domain,
		Details:    map[string]any{"path": path},
	}

	content, err := a.Render("vhost", spec)
	if err != nil {
		return adapter.Result{}, a.record(ctx, rc, entry, err)
	}
	_, statErr := os.Stat(path)
	existed := statErr == nil
	if rc.Would(ctx, entry) {
		return adapter.Result{}, nil
	}

	changed, err := a.apply(ctx, path, content)
	if err != nil {
		return adapter.Result{}, a.record(ctx, rc, entry, err)
	}
	entry.Details["changed"] = changed

	result := adapter.Result{Details: entry.Details}
	if !existed {
		domain := spec.Domain
		result.Rollback = &adapter.Rollback{
			Kind:       "vhost.delete",
			Adapter:    adapter.NameWeb,
			TargetKind: "vhost",
			TargetKey:  domain,
			Undo: func(ctx context.Context, rc *adapter.Context) error {
				_, err := a.EnsureVhostAbsent(ctx, rc, domain)
				return err
			},
		}
	}
	return result, a.record(ctx, rc, entry, nil)
}

// EnsureVhostAbsent removes the server block and any parked copy
func (a *WebServerAdapter) EnsureVhostAbsent(ctx context.Context, rc *adapter.Context, domain string) (adapter.Result, error) {
	entry := adapter.LogEntry{Adapter: adapter.NameWeb, Operation: adapter.OpDelete, TargetKind: "vhost", TargetKey: domain, Details: map[string]any{}}
	if rc.Would(ctx, entry) {
		return adapter.Result{}, nil
	}

	removed := false
	for _, path := range []string{a.vhostPath(domain), a.disabledPath(domain)} {
		err := os.Remove(path)
		switch {
		case err == nil:
			removed = true
		case os.IsNotExist(err):
		default:
			return adapter.Result{}, a.record(ctx, rc, entry, err)
		}
	}
	entry.Details["removed"] = removed
	if removed {
		if err := a.reload(ctx, a.cfg.Paths.NginxReloadCmd, ""); err != nil {
			return adapter.Result{}, a.record(ctx, rc, entry, err)
		}
	}
	return adapter.Result{Details: entry.Details}, a.record(ctx, rc, entry, nil)
}

// EnsureVhostSuspended parks the live block and serves 503 instead
func (a *WebServerAdapter) EnsureVhostSuspended(ctx context.Context, rc *adapter.Context, domain string) (adapter.Result, error) {
	entry := adapter.LogEntry{Adapter: adapter.NameWeb, Operation: adapter.OpSuspend, TargetKind: "vhost", TargetKey: domain, Details: map[string]any{}}
	if _, err := os.Stat(a.disabledPath(domain)); err == nil {
		entry.Details["action"] = "already_suspended"
		return adapter.Result{Details: entry.Details}, a.record(ctx, rc, entry, nil)
	}
	if rc.Would(ctx, entry) {
		return adapter.Result{}, nil
	}

	content, err := a.Render("suspended", adapter.VhostSpec{Domain: domain})
	if err != nil {
		return adapter.Result{}, a.record(ctx, rc, entry, err)
	}
	live, parked := a.vhostPath(domain), a.disabledPath(domain)
	if err := os.Rename(live, parked); err != nil {
		return adapter.Result{}, a.record(ctx, rc, entry, err)
	}
	if _, err := a.apply(ctx, live, content); err != nil {
		_ = os.Rename(parked, live)
		return adapter.Result{}, a.record(ctx, rc, entry, err)
	}
	return adapter.Result{Details: entry.Details}, a.record(ctx, rc, entry, nil)
}

// EnsureVhostResumed restores the parked block
func (a *WebServerAdapter) EnsureVhostResumed(ctx context.Context, rc *adapter.Context, domain string) (adapter.Result, error) {
	entry := adapter.LogEntry{Adapter: adapter.NameWeb, Operation: adapter.OpResume, TargetKind: "vhost", TargetKey: domain, Details: map[string]any{}}
	parked := a.disabledPath(domain)
	content, err := os.ReadFile(parked)
	if os.IsNotExist(err) {
		entry.Details["action"] = "not_suspended"
		return adapter.Result{Details: entry.Details}, a.record(ctx, rc, entry, nil)
	}
	if err != nil {
		return adapter.Result{}, a.record(ctx, rc, entry, err)
	}
	if rc.Would(ctx, entry) {
		return adapter.Result{}, nil
	}

	if _, err := a.apply(ctx, a.vhostPath(domain), content); err != nil {
		return adapter.Result{}, a.record(ctx, rc, entry, err)
	}
	if err := os.Remove(parked); err != nil {
		return adapter.Result{}, a.record(ctx, rc, entry, err)
	}
	return adapter.Result{Details: entry.Details}, a.record(ctx, rc, entry, nil)
}
