package migration

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"go_hostpanel/internal/config"
	"go_hostpanel/internal/errs"
)

// RemoteShell runs one command on the source host
type RemoteShell interface {
	Run(ctx context.Context, src SourceConfig, command string) (RemoteOutput, error)
}

// RemoteOutput is the captured result of a remote command
type RemoteOutput struct {
	Stdout        string
	Stderr        string
	ExitCode      int
	ServerVersion string
}

// SSHShell implements RemoteShell with golang.org/x/crypto/ssh
type SSHShell struct {
	timeout time.Duration
	logger  *logrus.Entry
}

// NewSSHShell creates an SSHShell
func NewSSHShell(cfg config.MigrationConfig, logger *logrus.Entry) *SSHShell {
	timeout := time.Duration(cfg.SSHTimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &SSHShell{timeout: timeout, logger: logger}
}

// ClientConfig builds the ssh client configuration for a source. Without
// a known-hosts path the host key is not verified.
func (s *SSHShell) ClientConfig(src SourceConfig) (*ssh.ClientConfig, error) {
	var auths []ssh.AuthMethod
	switch src.Auth() {
	case AuthKey:
		signer, err := ssh.ParsePrivateKey([]byte(src.PrivateKey))
		if err != nil {
			return nil, errs.Wrap(errs.KindInvalidArgument, "invalid source private key", err)
		}
		auths = append(auths, ssh.PublicKeys(signer))
	case AuthPassword:
		auths = append(auths, ssh.Password(src.Password))
	default:
		return nil, errs.Newf(errs.KindInvalidArgument, "unsupported authMethod %q", src.AuthMethod)
	}

	var hostKey ssh.HostKeyCallback
	if src.KnownHostsPath != "" {
		cb, err := knownhosts.New(src.KnownHostsPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load known hosts %s: %w", src.KnownHostsPath, err)
		}
		hostKey = cb
	} else {
		s.logger.WithField("host", src.Host).Warn("no known_hosts path configured, host key will not be verified")
		hostKey = ssh.InsecureIgnoreHostKey()
	}

	return &ssh.ClientConfig{
		User:            src.Username,
		Auth:            auths,
		HostKeyCallback: hostKey,
		Timeout:         s.timeout,
	}, nil
}

// Run dials the source, runs command and closes the connection. The
// context bounds both the dial and the command.
func (s *SSHShell) Run(ctx context.Context, src SourceConfig, command string) (RemoteOutput, error) {
	var out RemoteOutput
	cfg, err := s.ClientConfig(src)
	if err != nil {
		return out, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	addr := net.JoinHostPort(src.Host, strconv.Itoa(src.SSHPort()))
	dialer := net.Dialer{Timeout: s.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return out, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		conn.Close()
		return out, fmt.Errorf("ssh handshake with %s failed: %w", addr, err)
	}
	client := ssh.NewClient(sshConn, chans, reqs)
	defer client.Close()
	out.ServerVersion = string(sshConn.ServerVersion())

	session, err := client.NewSession()
	if err != nil {
		return out, fmt.Errorf("failed to open ssh session: %w", err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() { done <- session.Run(command) }()

	select {
	case <-ctx.Done():
		client.Close()
		return out, errs.Newf(errs.KindTimedOut, "remote command on %s timed out", src.Host)
	case err = <-done:
	}
	out.Stdout, out.Stderr = stdout.String(), stderr.String()
	if err != nil {
		if exitErr, ok := err.(*ssh.ExitError); ok {
			out.ExitCode = exitErr.ExitStatus()
		}
		return out, fmt.Errorf("remote command failed: %w", err)
	}
	return out, nil
}

// shellQuote wraps s in single quotes for a POSIX shell
func shellQuote(s string) string {
	var b bytes.Buffer
	b.WriteByte('\'')
	for _, r := range s {
		if r == '\'' {
			b.WriteString(`'\''`)
			continue
		}
		b.WriteRune(r)
	}
	b.WriteByte('\'')
	return b.String()
}
