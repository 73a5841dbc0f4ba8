// Package adaptertest provides a recording adapter set for tests. It
// delegates to the noop adapters, records every call in order, and fails
// any call named in Fail.
package adaptertest

import (
	"context"
	"sync"

	"go_hostpanel/internal/adapter"
	"go_hostpanel/internal/adapter/noop"
	"go_hostpanel/internal/errs"
)

// Recorder implements every adapter interface
type Recorder struct {
	mu     sync.Mutex
	inner  adapter.Set
	Calls  []string
	Undone []string
	Fail   map[string]error

	// Missing tools make LookPath fail with ToolNotFound
	Missing map[string]bool
	Quota   bool
}

// New creates a Recorder
func New() *Recorder {
	return &Recorder{inner: noop.New(), Fail: map[string]error{}, Missing: map[string]bool{}}
}

// Set exposes the recorder as an adapter set
func (r *Recorder) Set() adapter.Set {
	return adapter.Set{Users: r, Web: r, PHP: r, MySQL: r, DNS: r, Mail: r, FTP: r, Backup: r, Tools: r}
}

// Called reports whether a method was invoked
func (r *Recorder) Called(method string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.Calls {
		if c == method {
			return true
		}
	}
	return false
}

func (r *Recorder) call(method string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Calls = append(r.Calls, method)
	return r.Fail[method]
}

func (r *Recorder) wrap(method string, res adapter.Result, err error) (adapter.Result, error) {
	if res.Rollback != nil {
		undo := res.Rollback.Undo
		res.Rollback.Undo = func(ctx context.Context, rc *adapter.Context) error {
			r.mu.Lock()
			r.Undone = append(r.Undone, method)
			r.mu.Unlock()
			return undo(ctx, rc)
		}
	}
	return res, err
}

func (r *Recorder) EnsureUserPresent(ctx context.Context, rc *adapter.Context, spec adapter.UserSpec) (adapter.Result, error) {
	if err := r.call("EnsureUserPresent"); err != nil {
		return adapter.Result{}, err
	}
	res, err := r.inner.Users.EnsureUserPresent(ctx, rc, spec)
	return r.wrap("EnsureUserPresent", res, err)
}

func (r *Recorder) EnsureUserAbsent(ctx context.Context, rc *adapter.Context, username string) (adapter.Result, error) {
	if err := r.call("EnsureUserAbsent"); err != nil {
		return adapter.Result{}, err
	}
	return r.inner.Users.EnsureUserAbsent(ctx, rc, username)
}

func (r *Recorder) EnsureUserSuspended(ctx context.Context, rc *adapter.Context, username string) (adapter.Result, error) {
	if err := r.call("EnsureUserSuspended"); err != nil {
		return adapter.Result{}, err
	}
	return r.inner.Users.EnsureUserSuspended(ctx, rc, username)
}

func (r *Recorder) EnsureUserResumed(ctx context.Context, rc *adapter.Context, username string) (adapter.Result, error) {
	if err := r.call("EnsureUserResumed"); err != nil {
		return adapter.Result{}, err
	}
	return r.inner.Users.EnsureUserResumed(ctx, rc, username)
}

func (r *Recorder) EnsureDocumentRoot(ctx context.Context, rc *adapter.Context, spec adapter.DocRootSpec) (adapter.Result, error) {
	if err := r.call("EnsureDocumentRoot"); err != nil {
		return adapter.Result{}, err
	}
	res, err := r.inner.Users.EnsureDocumentRoot(ctx, rc, spec)
	return r.wrap("EnsureDocumentRoot", res, err)
}

func (r *Recorder) EnsureVhostPresent(ctx context.Context, rc *adapter.Context, spec adapter.VhostSpec) (adapter.Result, error) {
	if err := r.call("EnsureVhostPresent"); err != nil {
		return adapter.Result{}, err
	}
	res, err := r.inner.Web.EnsureVhostPresent(ctx, rc, spec)
	return r.wrap("EnsureVhostPresent", res, err)
}

func (r *Recorder) EnsureVhostAbsent(ctx context.Context, rc *adapter.Context, domain string) (adapter.Result, error) {
	if err := r.call("EnsureVhostAbsent"); err != nil {
		return adapter.Result{}, err
	}
	return r.inner.Web.EnsureVhostAbsent(ctx, rc, domain)
}

func (r *Recorder) EnsureVhostSuspended(ctx context.Context, rc *adapter.Context, domain string) (adapter.Result, error) {
	if err := r.call("EnsureVhostSuspended"); err != nil {
		return adapter.Result{}, err
	}
	return r.inner.Web.EnsureVhostSuspended(ctx, rc, domain)
}

func (r *Recorder) EnsureVhostResumed(ctx context.Context, rc *adapter.Context, domain string) (adapter.Result, error) {
	if err := r.call("EnsureVhostResumed"); err != nil {
		return adapter.Result{}, err
	}
	return r.inner.Web.EnsureVhostResumed(ctx, rc, domain)
}

func (r *Recorder) EnsurePoolPresent(ctx context.Context, rc *adapter.Context, spec adapter.PoolSpec) (adapter.Result, error) {
	if err := r.call("EnsurePoolPresent"); err != nil {
		return adapter.Result{}, err
	}
	res, err := r.inner.PHP.EnsurePoolPresent(ctx, rc, spec)
	return r.wrap("EnsurePoolPresent", res, err)
}

func (r *Recorder) EnsurePoolAbsent(ctx context.Context, rc *adapter.Context, name, phpVersion string) (adapter.Result, error) {
	if err := r.call("EnsurePoolAbsent"); err != nil {
		return adapter.Result{}, err
	}
	return r.inner.PHP.EnsurePoolAbsent(ctx, rc, name, phpVersion)
}

func (r *Recorder) EnsureAccountPresent(ctx context.Context, rc *adapter.Context, spec adapter.MySQLAccountSpec) (adapter.Result, error) {
	if err := r.call("EnsureAccountPresent"); err != nil {
		return adapter.Result{}, err
	}
	res, err := r.inner.MySQL.EnsureAccountPresent(ctx, rc, spec)
	return r.wrap("EnsureAccountPresent", res, err)
}

func (r *Recorder) EnsureAccountAbsent(ctx context.Context, rc *adapter.Context, username string) (adapter.Result, error) {
	if err := r.call("EnsureAccountAbsent"); err != nil {
		return adapter.Result{}, err
	}
	return r.inner.MySQL.EnsureAccountAbsent(ctx, rc, username)
}

func (r *Recorder) RotatePassword(ctx context.Context, rc *adapter.Context, username, password string) (adapter.Result, error) {
	if err := r.call("RotatePassword"); err != nil {
		return adapter.Result{}, err
	}
	return r.inner.MySQL.RotatePassword(ctx, rc, username, password)
}

func (r *Recorder) ListDatabases(ctx context.Context, rc *adapter.Context, owner string) ([]string, error) {
	if err := r.call("ListDatabases"); err != nil {
		return nil, err
	}
	return r.inner.MySQL.ListDatabases(ctx, rc, owner)
}

func (r *Recorder) EnsureDatabasePresent(ctx context.Context, rc *adapter.Context, spec adapter.DatabaseSpec) (adapter.Result, error) {
	if err := r.call("EnsureDatabasePresent"); err != nil {
		return adapter.Result{}, err
	}
	res, err := r.inner.MySQL.EnsureDatabasePresent(ctx, rc, spec)
	return r.wrap("EnsureDatabasePresent", res, err)
}

func (r *Recorder) ImportDump(ctx context.Context, rc *adapter.Context, spec adapter.DumpSpec) (adapter.Result, error) {
	if err := r.call("ImportDump"); err != nil {
		return adapter.Result{}, err
	}
	return r.inner.MySQL.ImportDump(ctx, rc, spec)
}

func (r *Recorder) EnsureZonePresent(ctx context.Context, rc *adapter.Context, spec adapter.ZoneSpec) (adapter.Result, error) {
	if err := r.call("EnsureZonePresent"); err != nil {
		return adapter.Result{}, err
	}
	res, err := r.inner.DNS.EnsureZonePresent(ctx, rc, spec)
	return r.wrap("EnsureZonePresent", res, err)
}

func (r *Recorder) EnsureZoneAbsent(ctx context.Context, rc *adapter.Context, zone string) (adapter.Result, error) {
	if err := r.call("EnsureZoneAbsent"); err != nil {
		return adapter.Result{}, err
	}
	return r.inner.DNS.EnsureZoneAbsent(ctx, rc, zone)
}

func (r *Recorder) ListRecords(ctx context.Context, rc *adapter.Context, zone string) ([]adapter.ZoneRecord, error) {
	if err := r.call("ListRecords"); err != nil {
		return nil, err
	}
	return r.inner.DNS.ListRecords(ctx, rc, zone)
}

func (r *Recorder) EnsureMailboxPresent(ctx context.Context, rc *adapter.Context, spec adapter.MailboxSpec) (adapter.Result, error) {
	if err := r.call("EnsureMailboxPresent"); err != nil {
		return adapter.Result{}, err
	}
	res, err := r.inner.Mail.EnsureMailboxPresent(ctx, rc, spec)
	return r.wrap("EnsureMailboxPresent", res, err)
}

func (r *Recorder) EnsureMailboxAbsent(ctx context.Context, rc *adapter.Context, address string) (adapter.Result, error) {
	if err := r.call("EnsureMailboxAbsent"); err != nil {
		return adapter.Result{}, err
	}
	return r.inner.Mail.EnsureMailboxAbsent(ctx, rc, address)
}

func (r *Recorder) ListMailboxes(ctx context.Context, rc *adapter.Context, domain string) ([]string, error) {
	if err := r.call("ListMailboxes"); err != nil {
		return nil, err
	}
	return r.inner.Mail.ListMailboxes(ctx, rc, domain)
}

func (r *Recorder) RotateMailboxPassword(ctx context.Context, rc *adapter.Context, address, password string) (adapter.Result, error) {
	if err := r.call("RotateMailboxPassword"); err != nil {
		return adapter.Result{}, err
	}
	return r.inner.Mail.RotateMailboxPassword(ctx, rc, address, password)
}

func (r *Recorder) EnsureFTPAccountPresent(ctx context.Context, rc *adapter.Context, spec adapter.FTPAccountSpec) (adapter.Result, error) {
	if err := r.call("EnsureFTPAccountPresent"); err != nil {
		return adapter.Result{}, err
	}
	res, err := r.inner.FTP.EnsureFTPAccountPresent(ctx, rc, spec)
	return r.wrap("EnsureFTPAccountPresent", res, err)
}

func (r *Recorder) EnsureFTPAccountAbsent(ctx context.Context, rc *adapter.Context, username string) (adapter.Result, error) {
	if err := r.call("EnsureFTPAccountAbsent"); err != nil {
		return adapter.Result{}, err
	}
	return r.inner.FTP.EnsureFTPAccountAbsent(ctx, rc, username)
}

func (r *Recorder) RotateFTPPassword(ctx context.Context, rc *adapter.Context, username, password string) (adapter.Result, error) {
	if err := r.call("RotateFTPPassword"); err != nil {
		return adapter.Result{}, err
	}
	return r.inner.FTP.RotateFTPPassword(ctx, rc, username, password)
}

func (r *Recorder) Snapshot(ctx context.Context, rc *adapter.Context, spec adapter.SnapshotSpec) (adapter.Result, error) {
	if err := r.call("Snapshot"); err != nil {
		return adapter.Result{}, err
	}
	return r.inner.Backup.Snapshot(ctx, rc, spec)
}

func (r *Recorder) LookPath(name string) (string, error) {
	if r.Missing[name] {
		return "", errs.New(errs.KindToolNotFound, name).WithDetail("tool", name)
	}
	return name, nil
}

func (r *Recorder) QuotaSupported(ctx context.Context) bool {
	return r.Quota
}
