package migration

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"go_hostpanel/internal/config"
	"go_hostpanel/internal/execx"
)

// RsyncSpec describes one home directory copy
type RsyncSpec struct {
	Source    SourceConfig
	SourceDir string
	TargetDir string
	Owner     string
	KeyFile   string
	DryRun    bool
}

// sshCommand is the remote shell rsync runs through
func sshCommand(spec RsyncSpec) string {
	parts := []string{"ssh", "-p", strconv.Itoa(spec.Source.SSHPort())}
	if spec.Source.KnownHostsPath != "" {
		parts = append(parts,
			"-o", "StrictHostKeyChecking=yes",
			"-o", rshQuote("UserKnownHostsFile="+sshConfigQuote(spec.Source.KnownHostsPath)))
	} else {
		parts = append(parts,
			"-o", "StrictHostKeyChecking=no",
			"-o", "UserKnownHostsFile=/dev/null")
	}
	if spec.KeyFile != "" {
		parts = append(parts, "-i", rshQuote(spec.KeyFile), "-o", "IdentitiesOnly=yes")
	} else {
		parts = append(parts, "-o", "PubkeyAuthentication=no")
	}
	return strings.Join(parts, " ")
}

// rshQuote protects an argument of the -e string, which rsync splits on
// spaces while honouring single and double quotes.
func rshQuote(arg string) string {
	if !strings.ContainsAny(arg, " \t'\"") {
		return arg
	}
	if strings.Contains(arg, "'") {
		return `"` + arg + `"`
	}
	return "'" + arg + "'"
}

// sshConfigQuote protects a path given as an ssh -o value, which ssh
// itself splits on whitespace.
func sshConfigQuote(p string) string {
	if !strings.ContainsAny(p, " \t") {
		return p
	}
	return `"` + p + `"`
}

func withSlash(dir string) string {
	if strings.HasSuffix(dir, "/") {
		return dir
	}
	return dir + "/"
}

// BuildRsyncCommand constructs the rsync invocation. Password auth wraps
// rsync in sshpass, which reads the password from SSHPASS.
func BuildRsyncCommand(cfg config.MigrationConfig, spec RsyncSpec) execx.Command {
	rsync := cfg.RsyncBin
	if rsync == "" {
		rsync = "rsync"
	}

	args := []string{"-a", "--numeric-ids", "--partial", "-e", sshCommand(spec)}
	if spec.Owner != "" {
		args = append(args, "--chown="+spec.Owner+":"+spec.Owner)
	}
	if spec.DryRun {
		args = append(args, "--dry-run")
	}
	args = append(args,
		fmt.Sprintf("%s@%s:%s", spec.Source.Username, spec.Source.Host, withSlash(spec.SourceDir)),
		withSlash(spec.TargetDir),
	)

	if spec.KeyFile == "" && spec.Source.Auth() == AuthPassword {
		sshpass := cfg.SSHPassBin
		if sshpass == "" {
			sshpass = "sshpass"
		}
		return execx.Command{
			Name: sshpass,
			Args: append([]string{"-e", rsync}, args...),
			Env:  []string{"SSHPASS=" + spec.Source.Password},
		}
	}
	return execx.Command{Name: rsync, Args: args}
}

// writeTempKey writes a private key to a 0600 file. The returned cleanup
// removes it and must always be called.
func writeTempKey(key string) (string, func(), error) {
	f, err := os.CreateTemp("", "hostpanel-migrate-*.key")
	if err != nil {
		return "", func() {}, fmt.Errorf("failed to create key file: %w", err)
	}
	cleanup := func() { os.Remove(f.Name()) }

	if err := f.Chmod(0o600); err != nil {
		f.Close()
		cleanup()
		return "", func() {}, fmt.Errorf("failed to restrict key file: %w", err)
	}
	if !strings.HasSuffix(key, "\n") {
		key += "\n"
	}
	if _, err := f.WriteString(key); err != nil {
		f.Close()
		cleanup()
		return "", func() {}, fmt.Errorf("failed to write key file: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", func() {}, fmt.Errorf("failed to close key file: %w", err)
	}
	return f.Name(), cleanup, nil
}
