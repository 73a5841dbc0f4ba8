package shell

import (
	"context"

	"go_hostpanel/internal/adapter"
)

// FTPAdapter drives an external FTP account tool configured as FTP_CMD.
// account-show exits non-zero for unknown accounts.
type FTPAdapter struct {
	base
}

func (a *FTPAdapter) exists(ctx context.Context, username string) (bool, error) {
	out, err := a.run(ctx, a.cfg.FTPCmd, "", "account-show", username)
	if err == nil {
		return true, nil
	}
	if out.ExitCode > 0 {
		return false, nil
	}
	return false, err
}

// EnsureFTPAccountPresent creates the account chrooted to its home
func (a *FTPAdapter) EnsureFTPAccountPresent(ctx context.Context, rc *adapter.Context, spec adapter.FTPAccountSpec) (adapter.Result, error) {
	entry := adapter.LogEntry{Adapter: adapter.NameFTP, Operation: adapter.OpCreate, TargetKind: "ftp_account", TargetKey: spec.Username, Details: map[string]any{"homeDir": spec.HomeDir}}

	exists, err := a.exists(ctx, spec.Username)
	if err != nil {
		return adapter.Result{}, a.record(ctx, rc, entry, err)
	}
	if exists {
		entry.Details["action"] = "exists"
		return adapter.Result{Details: entry.Details}, a.record(ctx, rc, entry, nil)
	}
	if rc.Would(ctx, entry) {
		return adapter.Result{}, nil
	}

	if _, err := a.run(ctx, a.cfg.FTPCmd, spec.Password, "account-add", spec.Username, spec.HomeDir, spec.SystemUser); err != nil {
		return adapter.Result{}, a.record(ctx, rc, entry, err)
	}

	username := spec.Username
	entry.Details["action"] = "created"
	return adapter.Result{
		Details: entry.Details,
		Rollback: &adapter.Rollback{
			Kind:       "ftp_account.delete",
			Adapter:    adapter.NameFTP,
			TargetKind: "ftp_account",
			TargetKey:  username,
			Undo: func(ctx context.Context, rc *adapter.Context) error {
				_, err := a.run(ctx, a.cfg.FTPCmd, "", "account-del", username)
				return err
			},
		},
	}, a.record(ctx, rc, entry, nil)
}

// EnsureFTPAccountAbsent deletes the account when present
func (a *FTPAdapter) EnsureFTPAccountAbsent(ctx context.Context, rc *adapter.Context, username string) (adapter.Result, error) {
	entry := adapter.LogEntry{Adapter: adapter.NameFTP, Operation: adapter.OpDelete, TargetKind: "ftp_account", TargetKey: username, Details: map[string]any{}}
	exists, err := a.exists(ctx, username)
	if err != nil {
		return adapter.Result{}, a.record(ctx, rc, entry, err)
	}
	if !exists {
		entry.Details["action"] = "absent"
		return adapter.Result{Details: entry.Details}, a.record(ctx, rc, entry, nil)
	}
	if rc.Would(ctx, entry) {
		return adapter.Result{}, nil
	}
	_, err = a.run(ctx, a.cfg.FTPCmd, "", "account-del", username)
	return adapter.Result{Details: entry.Details}, a.record(ctx, rc, entry, err)
}

// RotateFTPPassword sets a new FTP password
func (a *FTPAdapter) RotateFTPPassword(ctx context.Context, rc *adapter.Context, username, password string) (adapter.Result, error) {
	entry := adapter.LogEntry{Adapter: adapter.NameFTP, Operation: adapter.OpUpdate, TargetKind: "ftp_account", TargetKey: username, Details: map[string]any{"action": "rotate_password"}}
	if rc.Would(ctx, entry) {
		return adapter.Result{}, nil
	}
	_, err := a.run(ctx, a.cfg.FTPCmd, password, "account-passwd", username)
	return adapter.Result{Details: entry.Details}, a.record(ctx, rc, entry, err)
}
