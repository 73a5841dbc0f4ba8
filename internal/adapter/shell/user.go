package shell

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"go_hostpanel/internal/adapter"
	"go_hostpanel/internal/execx"
)

// UserAdapter manages OS accounts with useradd/usermod/userdel
type UserAdapter struct {
	base
}

func (a *UserAdapter) exists(ctx context.Context, username string) (bool, error) {
	out, err := a.exec.Run(ctx, execx.Command{Name: "id", Args: []string{"-u", username}})
	if err == nil {
		return true, nil
	}
	if out.ExitCode > 0 {
		return false, nil
	}
	return false, err
}

// EnsureUserPresent creates the account with a home directory
func (a *UserAdapter) EnsureUserPresent(ctx context.Context, rc *adapter.Context, spec adapter.UserSpec) (adapter.Result, error) {
	entry := adapter.LogEntry{
		Adapter:    adapter.NameUser,
		Operation:  adapter.OpCreate,
		TargetKind: "user",
		TargetKey:  spec.Username,
		Details:    map[string]any{"homeDir": spec.HomeDir},
	}

	exists, err := a.exists(ctx, spec.Username)
	if err != nil {
		return adapter.Result{}, a.record(ctx, rc, entry, err)
	}
	if exists {
		entry.Details["action"] = "exists"
		return adapter.Result{Details: entry.Details}, a.record(ctx, rc, entry, nil)
	}
	if rc.Would(ctx, entry) {
		return adapter.Result{Details: entry.Details}, nil
	}

	args := []string{"-m", "-d", spec.HomeDir}
	if spec.Shell != "" {
		args = append(args, "-s", spec.Shell)
	}
	args = append(args, spec.Username)
	if _, err := a.exec.Run(ctx, execx.Command{Name: a.cfg.Tools.UserAdd, Args: args}); err != nil {
		return adapter.Result{}, a.record(ctx, rc, entry, err)
	}

	if spec.DiskQuotaMB > 0 && a.cfg.QuotaCmd != "" {
		if _, err := a.run(ctx, a.cfg.QuotaCmd, "", spec.Username, strconv.Itoa(spec.DiskQuotaMB)); err != nil {
			// quota is best effort
			rc.Entry().WithError(err).Warn("disk quota not applied")
			entry.Details["quota"] = "not_applied"
		} else {
			entry.Details["quota"] = spec.DiskQuotaMB
		}
	}

	entry.Details["action"] = "created"
	username := spec.Username
	return adapter.Result{
		Details: entry.Details,
		Rollback: &adapter.Rollback{
			Kind:       "user.delete",
			Adapter:    adapter.NameUser,
			TargetKind: "user",
			TargetKey:  username,
			Undo: func(ctx context.Context, rc *adapter.Context) error {
				_, err := a.exec.Run(ctx, execx.Command{Name: a.cfg.Tools.UserDel, Args: []string{"-r", username}})
				return err
			},
		},
	}, a.record(ctx, rc, entry, nil)
}

// EnsureUserAbsent removes the account and its home directory
func (a *UserAdapter) EnsureUserAbsent(ctx context.Context, rc *adapter.Context, username string) (adapter.Result, error) {
	entry := adapter.LogEntry{Adapter: adapter.NameUser, Operation: adapter.OpDelete, TargetKind: "user", TargetKey: username, Details: map[string]any{}}

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
	_, err = a.exec.Run(ctx, execx.Command{Name: a.cfg.Tools.UserDel, Args: []string{"-r", username}})
	entry.Details["action"] = "deleted"
	return adapter.Result{Details: entry.Details}, a.record(ctx, rc, entry, err)
}

// EnsureUserSuspended locks the account password and login
func (a *UserAdapter) EnsureUserSuspended(ctx context.Context, rc *adapter.Context, username string) (adapter.Result, error) {
	return a.usermod(ctx, rc, adapter.OpSuspend, username, "-L", "-e", "1")
}

// EnsureUserResumed unlocks the account
func (a *UserAdapter) EnsureUserResumed(ctx context.Context, rc *adapter.Context, username string) (adapter.Result, error) {
	return a.usermod(ctx, rc, adapter.OpResume, username, "-U", "-e", "")
}

func (a *UserAdapter) usermod(ctx context.Context, rc *adapter.Context, op, username string, flags ...string) (adapter.Result, error) {
	entry := adapter.LogEntry{Adapter: adapter.NameUser, Operation: op, TargetKind: "user", TargetKey: username}
	if rc.Would(ctx, entry) {
		return adapter.Result{}, nil
	}
	args := append(append([]string{}, flags...), username)
	_, err := a.exec.Run(ctx, execx.Command{Name: a.cfg.Tools.UserMod, Args: args})
	return adapter.Result{}, a.record(ctx, rc, entry, err)
}

// EnsureDocumentRoot creates the web root owned by the account
func (a *UserAdapter) EnsureDocumentRoot(ctx context.Context, rc *adapter.Context, spec adapter.DocRootSpec) (adapter.Result, error) {
	entry := adapter.LogEntry{
		Adapter:    adapter.NameDocRoot,
		Operation:  adapter.OpCreate,
		TargetKind: "document_root",
		TargetKey:  spec.Path,
		Details:    map[string]any{"owner": spec.Owner},
	}

	if info, err := os.Stat(spec.Path); err == nil {
		if !info.IsDir() {
			return adapter.Result{}, a.record(ctx, rc, entry, fmt.Errorf("%s exists and is not a directory", spec.Path))
		}
		entry.Details["action"] = "exists"
		return adapter.Result{Details: entry.Details}, a.record(ctx, rc, entry, nil)
	}
	if rc.Would(ctx, entry) {
		return adapter.Result{}, nil
	}

	if err := os.MkdirAll(spec.Path, 0o755); err != nil {
		return adapter.Result{}, a.record(ctx, rc, entry, err)
	}
	owner := spec.Owner + ":" + spec.Owner
	if _, err := a.exec.Run(ctx, execx.Command{Name: "chown", Args: []string{"-R", owner, spec.Path}}); err != nil {
		_ = os.RemoveAll(spec.Path)
		return adapter.Result{}, a.record(ctx, rc, entry, err)
	}

	entry.Details["action"] = "created"
	path := spec.Path
	return adapter.Result{
		Details: entry.Details,
		Rollback: &adapter.Rollback{
			Kind:       "document_root.delete",
			Adapter:    adapter.NameDocRoot,
			TargetKind: "document_root",
			TargetKey:  path,
			Undo: func(ctx context.Context, rc *adapter.Context) error {
				return os.RemoveAll(path)
			},
		},
	}, a.record(ctx, rc, entry, nil)
}
