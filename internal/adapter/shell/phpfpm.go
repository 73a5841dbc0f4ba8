package shell

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"go_hostpanel/internal/adapter"
)

const poolTemplate = `; managed by go_hostpanel
[{{.Name}}]
user = {{.Username}}
group = {{.Username}}
listen = {{.Socket}}
listen.owner = www-data
listen.group = www-data
pm = ondemand
pm.max_children = 5
pm.process_idle_timeout = 10s
php_admin_value[open_basedir] = {{.HomeDir}}:/tmp
`

// PHPFPMAdapter manages one pool file per service
type PHPFPMAdapter struct {
	base
	tmpl *template.Template
}

// NewPHPFPMAdapter parses the pool template
func NewPHPFPMAdapter(b base) *PHPFPMAdapter {
	return &PHPFPMAdapter{base: b, tmpl: template.Must(template.New("pool").Parse(poolTemplate))}
}

func (a *PHPFPMAdapter) poolPath(name, version string) string {
	dir := a.cfg.Paths.PHPFPMPoolDir
	if strings.Contains(dir, "%s") {
		dir = fmt.Sprintf(dir, version)
	}
	return filepath.Join(dir, name+".conf")
}

// EnsurePoolPresent writes the pool file and reloads php-fpm
func (a *PHPFPMAdapter) EnsurePoolPresent(ctx context.Context, rc *adapter.Context, spec adapter.PoolSpec) (adapter.Result, error) {
	path := a.poolPath(spec.Name, spec.PHPVersion)
	entry := adapter.LogEntry{
		Adapter:    adapter.NamePHPFPM,
		Operation:  adapter.OpCreate,
		TargetKind: "php_fpm_pool",
		TargetKey:  spec.Name,
		Details:    map[string]any{"path": path, "phpVersion": spec.PHPVersion},
	}

	var buf bytes.Buffer
	if err := a.tmpl.Execute(&buf, spec); err != nil {
		return adapter.Result{}, a.record(ctx, rc, entry, err)
	}
	if rc.Would(ctx, entry) {
		return adapter.Result{}, nil
	}

	changed, previous, existed, err := writeIfChanged(path, buf.Bytes(), 0o644)
	if err != nil {
		return adapter.Result{}, a.record(ctx, rc, entry, err)
	}
	entry.Details["changed"] = changed
	if changed {
		if err := a.reload(ctx, a.cfg.Paths.PHPFPMReloadCmd, spec.PHPVersion); err != nil {
			_ = restore(path, previous, existed, 0o644)
			return adapter.Result{}, a.record(ctx, rc, entry, err)
		}
	}

	result := adapter.Result{Details: entry.Details}
	if !existed {
		name, version := spec.Name, spec.PHPVersion
		result.Rollback = &adapter.Rollback{
			Kind:       "php_fpm_pool.delete",
			Adapter:    adapter.NamePHPFPM,
			TargetKind: "php_fpm_pool",
			TargetKey:  name,
			Undo: func(ctx context.Context, rc *adapter.Context) error {
				_, err := a.EnsurePoolAbsent(ctx, rc, name, version)
				return err
			},
		}
	}
	return result, a.record(ctx, rc, entry, nil)
}

// EnsurePoolAbsent removes the pool file and reloads php-fpm
func (a *PHPFPMAdapter) EnsurePoolAbsent(ctx context.Context, rc *adapter.Context, name, phpVersion string) (adapter.Result, error) {
	path := a.poolPath(name, phpVersion)
	entry := adapter.LogEntry{Adapter: adapter.NamePHPFPM, Operation: adapter.OpDelete, TargetKind: "php_fpm_pool", TargetKey: name, Details: map[string]any{"path": path}}
	if rc.Would(ctx, entry) {
		return adapter.Result{}, nil
	}

	err := os.Remove(path)
	if os.IsNotExist(err) {
		entry.Details["action"] = "absent"
		return adapter.Result{Details: entry.Details}, a.record(ctx, rc, entry, nil)
	}
	if err != nil {
		return adapter.Result{}, a.record(ctx, rc, entry, err)
	}
	err = a.reload(ctx, a.cfg.Paths.PHPFPMReloadCmd, phpVersion)
	return adapter.Result{Details: entry.Details}, a.record(ctx, rc, entry, err)
}
