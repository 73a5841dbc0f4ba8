// Package shell implements the adapter contract against a real host:
// system tools run through execx, configuration files are written in
// place and validated before the owning daemon is reloaded.
package shell

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"go_hostpanel/internal/adapter"
	"go_hostpanel/internal/config"
	"go_hostpanel/internal/execx"
)

// base carries what every shell adapter needs
type base struct {
	cfg    config.ProvisioningConfig
	exec   execx.Executor
	logger *logrus.Entry
}

// New builds the shell adapter set
func New(cfg config.ProvisioningConfig, executor execx.Executor, logger *logrus.Entry) adapter.Set {
	b := base{cfg: cfg, exec: executor, logger: logger}
	mysql := NewMySQLAdapter(b)
	return adapter.Set{
		Users:  &UserAdapter{base: b},
		Web:    NewWebServerAdapter(b),
		PHP:    NewPHPFPMAdapter(b),
		MySQL:  mysql,
		DNS:    NewDNSAdapter(b),
		Mail:   &MailAdapter{base: b},
		FTP:    &FTPAdapter{base: b},
		Backup: &BackupTool{base: b},
		Tools:  &ToolResolver{base: b},
	}
}

// record logs the outcome of one operation and passes err through
func (b base) record(ctx context.Context, rc *adapter.Context, entry adapter.LogEntry, err error) error {
	entry.Success = err == nil
	if err != nil {
		entry.ErrorMessage = err.Error()
		rc.Entry().WithFields(logrus.Fields{
			"adapter": entry.Adapter,
			"target":  entry.TargetKey,
		}).WithError(err).Warn("adapter operation failed")
	}
	rc.Log(ctx, entry)
	return err
}

// run executes a configured command line such as "mailctl --config x"
// followed by extra arguments.
func (b base) run(ctx context.Context, cmdline string, stdin string, args ...string) (execx.Output, error) {
	fields := strings.Fields(cmdline)
	if len(fields) == 0 {
		return execx.Output{}, fmt.Errorf("empty command")
	}
	cmd := execx.Command{Name: fields[0], Args: append(fields[1:], args...)}
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}
	return b.exec.Run(ctx, cmd)
}

// reload runs a reload command line; %s is replaced by arg when present
func (b base) reload(ctx context.Context, cmdline, arg string) error {
	if cmdline == "" {
		return nil
	}
	if strings.Contains(cmdline, "%s") {
		cmdline = fmt.Sprintf(cmdline, arg)
	}
	_, err := b.exec.Run(ctx, execx.Shell(cmdline))
	return err
}

// writeIfChanged writes content to path and reports whether the file
// changed, along with the previous content for restoring.
func writeIfChanged(path string, content []byte, perm os.FileMode) (changed bool, previous []byte, existed bool, err error) {
	previous, err = os.ReadFile(path)
	switch {
	case err == nil:
		existed = true
		if string(previous) == string(content) {
			return false, previous, true, nil
		}
	case os.IsNotExist(err):
	default:
		return false, nil, false, err
	}
	if err := os.WriteFile(path, content, perm); err != nil {
		return false, previous, existed, err
	}
	return true, previous, existed, nil
}

// restore puts a file back the way writeIfChanged found it
func restore(path string, previous []byte, existed bool, perm os.FileMode) error {
	if !existed {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	}
	return os.WriteFile(path, previous, perm)
}

// ToolResolver answers readiness probes against PATH
type ToolResolver struct {
	base
}

// LookPath resolves a tool name or configured command line
func (t *ToolResolver) LookPath(name string) (string, error) {
	fields := strings.Fields(name)
	if len(fields) > 0 {
		name = fields[0]
	}
	return execx.LookPath(name)
}

// QuotaSupported reports whether a quota command is configured and resolvable
func (t *ToolResolver) QuotaSupported(ctx context.Context) bool {
	if t.cfg.QuotaCmd == "" {
		return false
	}
	_, err := t.LookPath(t.cfg.QuotaCmd)
	return err == nil
}
