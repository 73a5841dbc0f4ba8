package shell

import (
	"context"
	"strings"

	"go_hostpanel/internal/adapter"
	"go_hostpanel/internal/errs"
)

// BackupTool snapshots an account through BACKUP_CMD. The command prints
// the snapshot location on its last stdout line.
type BackupTool struct {
	base
}

// Snapshot runs "BACKUP_CMD snapshot <serviceId> <user> <home> [db...]"
func (b *BackupTool) Snapshot(ctx context.Context, rc *adapter.Context, spec adapter.SnapshotSpec) (adapter.Result, error) {
	entry := adapter.LogEntry{Adapter: adapter.NameBackup, Operation: adapter.OpCreate, TargetKind: "snapshot", TargetKey: spec.Username, Details: map[string]any{"databases": spec.Databases}}
	if b.cfg.BackupCmd == "" {
		return adapter.Result{}, b.record(ctx, rc, entry, errs.New(errs.KindBackupSnapshotFailed, "BACKUP_CMD is not configured"))
	}
	if rc.Would(ctx, entry) {
		return adapter.Result{Details: entry.Details}, nil
	}

	args := append([]string{"snapshot", spec.ServiceID, spec.Username, spec.HomeDir}, spec.Databases...)
	out, err := b.run(ctx, b.cfg.BackupCmd, "", args...)
	if err != nil {
		entry.Details["stderr"] = out.Stderr
		return adapter.Result{}, b.record(ctx, rc, entry, err)
	}

	lines := strings.Split(strings.TrimSpace(out.Stdout), "\n")
	entry.Details["location"] = strings.TrimSpace(lines[len(lines)-1])
	return adapter.Result{Details: entry.Details}, b.record(ctx, rc, entry, nil)
}
