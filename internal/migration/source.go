package migration

import (
	"encoding/json"
	"path"
	"strings"

	"go_hostpanel/internal/errs"
	"go_hostpanel/internal/model"
)

// Source authentication methods
const (
	AuthPassword = "password"
	AuthKey      = "key"
)

// SourceConfig is the connection to the source host. It is stored on the
// job and never returned by the API.
type SourceConfig struct {
	Host           string        `json:"host"`
	Port           int           `json:"sshPort,omitempty"`
	Username       string        `json:"sshUser"`
	AuthMethod     string        `json:"authMethod,omitempty"`
	Password       string        `json:"sshPassword,omitempty"`
	PrivateKey     string        `json:"sshKey,omitempty"`
	HomeBase       string        `json:"cpanelHome,omitempty"`
	KnownHostsPath string        `json:"knownHostsPath,omitempty"`
	Limits         *SourceLimits `json:"limits,omitempty"`
}

// SourceLimits are the source plan's quotas, used to derive a target plan
type SourceLimits struct {
	DiskQuotaMB    int    `json:"diskQuotaMb"`
	MaxDatabases   int    `json:"maxDatabases"`
	MaxMailboxes   int    `json:"maxMailboxes"`
	MailboxQuotaMB int    `json:"mailboxQuotaMb"`
	MaxFTPAccounts int    `json:"maxFtpAccounts"`
	PHPVersion     string `json:"phpVersion"`
}

// SourceDatabase is one dump to import. DumpPath is relative to the
// target home directory unless absolute.
type SourceDatabase struct {
	Name     string `json:"name"`
	DumpPath string `json:"dumpPath"`
}

// AccountMetadata is per-account information about the source
type AccountMetadata struct {
	HomeDir   string           `json:"homeDir,omitempty"`
	Databases []SourceDatabase `json:"databases,omitempty"`
	Limits    *SourceLimits    `json:"limits,omitempty"`
}

// Validate checks that a source can be connected to
func (s SourceConfig) Validate() error {
	if s.Host == "" {
		return errs.New(errs.KindInvalidArgument, "source host is required")
	}
	if s.Username == "" {
		return errs.New(errs.KindInvalidArgument, "source sshUser is required")
	}
	switch s.Auth() {
	case AuthPassword:
		if s.Password == "" {
			return errs.New(errs.KindInvalidArgument, "authMethod password needs sshPassword")
		}
	case AuthKey:
		if s.PrivateKey == "" {
			return errs.New(errs.KindInvalidArgument, "authMethod key needs sshKey")
		}
	default:
		return errs.Newf(errs.KindInvalidArgument, "unsupported authMethod %q", s.AuthMethod)
	}
	if s.Port < 0 || s.Port > 65535 {
		return errs.Newf(errs.KindInvalidArgument, "invalid source port %d", s.Port)
	}
	// the path ends up inside the rsync -e string
	if strings.ContainsAny(s.KnownHostsPath, "'\"\n") {
		return errs.New(errs.KindInvalidArgument, "knownHostsPath must not contain quotes or newlines")
	}
	return nil
}

// Auth is the effective authentication method. Without an explicit
// authMethod a configured key wins over a password.
func (s SourceConfig) Auth() string {
	if s.AuthMethod != "" {
		return s.AuthMethod
	}
	if s.PrivateKey != "" {
		return AuthKey
	}
	return AuthPassword
}

// SSHPort defaults to 22
func (s SourceConfig) SSHPort() int {
	if s.Port == 0 {
		return 22
	}
	return s.Port
}

func decodeSource(job *model.MigrationJob) (SourceConfig, error) {
	var src SourceConfig
	if err := json.Unmarshal(job.SourceConfig, &src); err != nil {
		return src, errs.Wrap(errs.KindInvalidArgument, "invalid source config", err)
	}
	return src, nil
}

func decodeMetadata(acc *model.MigrationAccount) (AccountMetadata, error) {
	var meta AccountMetadata
	if len(acc.Metadata) == 0 {
		return meta, nil
	}
	if err := json.Unmarshal(acc.Metadata, &meta); err != nil {
		return meta, errs.Wrap(errs.KindInvalidArgument, "invalid account metadata", err)
	}
	return meta, nil
}

// sourceHome is the remote home directory of an account
func (r *Runner) sourceHome(src SourceConfig, acc *model.MigrationAccount, meta AccountMetadata) string {
	if meta.HomeDir != "" {
		return meta.HomeDir
	}
	base := src.HomeBase
	if base == "" {
		base = r.cfg.DefaultHomeDir
	}
	if base == "" {
		base = "/home"
	}
	return path.Join(base, acc.SourceUsername)
}
