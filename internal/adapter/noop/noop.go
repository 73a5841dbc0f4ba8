// Package noop provides adapters that only record what they would do.
// They keep a small in-process registry so idempotency and list calls
// behave like the real thing in development and tests.
package noop

import (
	"context"
	"strings"
	"sync"

	"go_hostpanel/internal/adapter"
)

type registry struct {
	mu    sync.Mutex
	items map[string]map[string]bool
}

func newRegistry() *registry {
	return &registry{items: make(map[string]map[string]bool)}
}

// put reports whether the key was newly added
func (r *registry) put(kind, key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.items[kind] == nil {
		r.items[kind] = make(map[string]bool)
	}
	if r.items[kind][key] {
		return false
	}
	r.items[kind][key] = true
	return true
}

func (r *registry) drop(kind, key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.items[kind][key] {
		return false
	}
	delete(r.items[kind], key)
	return true
}

func (r *registry) list(kind string, match func(string) bool) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for key := range r.items[kind] {
		if match(key) {
			out = append(out, key)
		}
	}
	return out
}

// Adapters implements every subsystem interface
type Adapters struct {
	reg *registry
}

// New returns a Set backed entirely by noop adapters
func New() adapter.Set {
	a := &Adapters{reg: newRegistry()}
	return adapter.Set{
		Users:  a,
		Web:    a,
		PHP:    a,
		MySQL:  a,
		DNS:    a,
		Mail:   a,
		FTP:    a,
		Backup: a,
		Tools:  a,
	}
}

func (a *Adapters) ensure(ctx context.Context, rc *adapter.Context, name, targetKind, key string, details map[string]any) adapter.Result {
	created := a.reg.put(targetKind, key)
	if details == nil {
		details = map[string]any{}
	}
	details["action"] = "noop"
	details["created"] = created
	rc.Log(ctx, adapter.LogEntry{
		Adapter:    name,
		Operation:  adapter.OpCreate,
		TargetKind: targetKind,
		TargetKey:  key,
		Success:    true,
		Details:    details,
	})

	result := adapter.Result{Details: details}
	if created {
		result.Rollback = &adapter.Rollback{
			Kind:       targetKind + ".delete",
			Adapter:    name,
			TargetKind: targetKind,
			TargetKey:  key,
			Undo: func(ctx context.Context, rc *adapter.Context) error {
				a.reg.drop(targetKind, key)
				return nil
			},
		}
	}
	return result
}

func (a *Adapters) remove(ctx context.Context, rc *adapter.Context, name, targetKind, key string) adapter.Result {
	removed := a.reg.drop(targetKind, key)
	details := map[string]any{"action": "noop", "removed": removed}
	rc.Log(ctx, adapter.LogEntry{
		Adapter:    name,
		Operation:  adapter.OpDelete,
		TargetKind: targetKind,
		TargetKey:  key,
		Success:    true,
		Details:    details,
	})
	return adapter.Result{Details: details}
}

func (a *Adapters) touch(ctx context.Context, rc *adapter.Context, name, op, targetKind, key string) adapter.Result {
	details := map[string]any{"action": "noop"}
	rc.Log(ctx, adapter.LogEntry{
		Adapter:    name,
		Operation:  op,
		TargetKind: targetKind,
		TargetKey:  key,
		Success:    true,
		Details:    details,
	})
	return adapter.Result{Details: details}
}

func (a *Adapters) EnsureUserPresent(ctx context.Context, rc *adapter.Context, spec adapter.UserSpec) (adapter.Result, error) {
	return a.ensure(ctx, rc, adapter.NameUser, "user", spec.Username, map[string]any{"homeDir": spec.HomeDir}), nil
}

func (a *Adapters) EnsureUserAbsent(ctx context.Context, rc *adapter.Context, username string) (adapter.Result, error) {
	return a.remove(ctx, rc, adapter.NameUser, "user", username), nil
}

func (a *Adapters) EnsureUserSuspended(ctx context.Context, rc *adapter.Context, username string) (adapter.Result, error) {
	return a.touch(ctx, rc, adapter.NameUser, adapter.OpSuspend, "user", username), nil
}

func (a *Adapters) EnsureUserResumed(ctx context.Context, rc *adapter.Context, username string) (adapter.Result, error) {
	return a.touch(ctx, rc, adapter.NameUser, adapter.OpResume, "user", username), nil
}

func (a *Adapters) EnsureDocumentRoot(ctx context.Context, rc *adapter.Context, spec adapter.DocRootSpec) (adapter.Result, error) {
	return a.ensure(ctx, rc, adapter.NameDocRoot, "document_root", spec.Path, map[string]any{"owner": spec.Owner}), nil
}

func (a *Adapters) EnsureVhostPresent(ctx context.Context, rc *adapter.Context, spec adapter.VhostSpec) (adapter.Result, error) {
	return a.ensure(ctx, rc, adapter.NameWeb, "vhost", spec.Domain, map[string]any{"documentRoot": spec.DocumentRoot}), nil
}

func (a *Adapters) EnsureVhostAbsent(ctx context.Context, rc *adapter.Context, domain string) (adapter.Result, error) {
	return a.remove(ctx, rc, adapter.NameWeb, "vhost", domain), nil
}

func (a *Adapters) EnsureVhostSuspended(ctx context.Context, rc *adapter.Context, domain string) (adapter.Result, error) {
	return a.touch(ctx, rc, adapter.NameWeb, adapter.OpSuspend, "vhost", domain), nil
}

func (a *Adapters) EnsureVhostResumed(ctx context.Context, rc *adapter.Context, domain string) (adapter.Result, error) {
	return a.touch(ctx, rc, adapter.NameWeb, adapter.OpResume, "vhost", domain), nil
}

func (a *Adapters) EnsurePoolPresent(ctx context.Context, rc *adapter.Context, spec adapter.PoolSpec) (adapter.Result, error) {
	return a.ensure(ctx, rc, adapter.NamePHPFPM, "php_fpm_pool", spec.Name, map[string]any{"phpVersion": spec.PHPVersion}), nil
}

func (a *Adapters) EnsurePoolAbsent(ctx context.Context, rc *adapter.Context, name, phpVersion string) (adapter.Result, error) {
	return a.remove(ctx, rc, adapter.NamePHPFPM, "php_fpm_pool", name), nil
}

func (a *Adapters) EnsureAccountPresent(ctx context.Context, rc *adapter.Context, spec adapter.MySQLAccountSpec) (adapter.Result, error) {
	return a.ensure(ctx, rc, adapter.NameMySQL, "mysql_account", spec.Username, nil), nil
}

func (a *Adapters) EnsureAccountAbsent(ctx context.Context, rc *adapter.Context, username string) (adapter.Result, error) {
	for _, db := range a.reg.list("mysql_database", func(key string) bool { return strings.HasPrefix(key, username+"_") }) {
		a.reg.drop("mysql_database", db)
	}
	return a.remove(ctx, rc, adapter.NameMySQL, "mysql_account", username), nil
}

func (a *Adapters) RotatePassword(ctx context.Context, rc *adapter.Context, username, password string) (adapter.Result, error) {
	return a.touch(ctx, rc, adapter.NameMySQL, adapter.OpUpdate, "mysql_account", username), nil
}

func (a *Adapters) ListDatabases(ctx context.Context, rc *adapter.Context, owner string) ([]string, error) {
	return a.reg.list("mysql_database", func(key string) bool { return strings.HasPrefix(key, owner+"_") }), nil
}

func (a *Adapters) EnsureDatabasePresent(ctx context.Context, rc *adapter.Context, spec adapter.DatabaseSpec) (adapter.Result, error) {
	return a.ensure(ctx, rc, adapter.NameMySQL, "mysql_database", spec.Name, map[string]any{"owner": spec.Owner}), nil
}

func (a *Adapters) ImportDump(ctx context.Context, rc *adapter.Context, spec adapter.DumpSpec) (adapter.Result, error) {
	return a.touch(ctx, rc, adapter.NameMySQL, adapter.OpUpdate, "mysql_database", spec.Database), nil
}

func (a *Adapters) EnsureZonePresent(ctx context.Context, rc *adapter.Context, spec adapter.ZoneSpec) (adapter.Result, error) {
	return a.ensure(ctx, rc, adapter.NameDNS, "dns_zone", spec.Zone, map[string]any{"records": len(spec.Records)}), nil
}

func (a *Adapters) EnsureZoneAbsent(ctx context.Context, rc *adapter.Context, zone string) (adapter.Result, error) {
	return a.remove(ctx, rc, adapter.NameDNS, "dns_zone", zone), nil
}

func (a *Adapters) ListRecords(ctx context.Context, rc *adapter.Context, zone string) ([]adapter.ZoneRecord, error) {
	return nil, nil
}

func (a *Adapters) EnsureMailboxPresent(ctx context.Context, rc *adapter.Context, spec adapter.MailboxSpec) (adapter.Result, error) {
	return a.ensure(ctx, rc, adapter.NameMail, "mailbox", spec.Address, map[string]any{"quotaMb": spec.QuotaMB}), nil
}

func (a *Adapters) EnsureMailboxAbsent(ctx context.Context, rc *adapter.Context, address string) (adapter.Result, error) {
	return a.remove(ctx, rc, adapter.NameMail, "mailbox", address), nil
}

func (a *Adapters) ListMailboxes(ctx context.Context, rc *adapter.Context, domain string) ([]string, error) {
	return a.reg.list("mailbox", func(key string) bool { return strings.HasSuffix(key, "@"+domain) }), nil
}

func (a *Adapters) RotateMailboxPassword(ctx context.Context, rc *adapter.Context, address, password string) (adapter.Result, error) {
	return a.touch(ctx, rc, adapter.NameMail, adapter.OpUpdate, "mailbox", address), nil
}

func (a *Adapters) EnsureFTPAccountPresent(ctx context.Context, rc *adapter.Context, spec adapter.FTPAccountSpec) (adapter.Result, error) {
	return a.ensure(ctx, rc, adapter.NameFTP, "ftp_account", spec.Username, map[string]any{"homeDir": spec.HomeDir}), nil
}

func (a *Adapters) EnsureFTPAccountAbsent(ctx context.Context, rc *adapter.Context, username string) (adapter.Result, error) {
	return a.remove(ctx, rc, adapter.NameFTP, "ftp_account", username), nil
}

func (a *Adapters) RotateFTPPassword(ctx context.Context, rc *adapter.Context, username, password string) (adapter.Result, error) {
	return a.touch(ctx, rc, adapter.NameFTP, adapter.OpUpdate, "ftp_account", username), nil
}

func (a *Adapters) Snapshot(ctx context.Context, rc *adapter.Context, spec adapter.SnapshotSpec) (adapter.Result, error) {
	return a.touch(ctx, rc, adapter.NameBackup, adapter.OpCreate, "snapshot", spec.Username), nil
}

// LookPath always succeeds; noop mode has no host requirements
func (a *Adapters) LookPath(name string) (string, error) {
	return name, nil
}

func (a *Adapters) QuotaSupported(ctx context.Context) bool {
	return false
}
