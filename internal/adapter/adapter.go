// Package adapter defines the contract between the orchestration core and
// the resource subsystems it drives. Every EnsurePresent is idempotent:
// calling it twice with the same spec yields one resource and no error.
// When rc.DryRun is set, implementations log what they would do and
// perform no mutation.
package adapter

import "context"

// UserSpec describes a system user
type UserSpec struct {
	Username    string
	HomeDir     string
	Shell       string
	DiskQuotaMB int
}

// DocRootSpec describes a document root owned by a system user
type DocRootSpec struct {
	Path  string
	Owner string
}

// UserAdapter manages OS users and their document roots
type UserAdapter interface {
	EnsureUserPresent(ctx context.Context, rc *Context, spec UserSpec) (Result, error)
	EnsureUserAbsent(ctx context.Context, rc *Context, username string) (Result, error)
	EnsureUserSuspended(ctx context.Context, rc *Context, username string) (Result, error)
	EnsureUserResumed(ctx context.Context, rc *Context, username string) (Result, error)
	EnsureDocumentRoot(ctx context.Context, rc *Context, spec DocRootSpec) (Result, error)
}

// VhostSpec describes a web server virtual host
type VhostSpec struct {
	Domain       string
	Aliases      []string
	DocumentRoot string
	PHPSocket    string
	Username     string
}

// WebServerAdapter manages virtual hosts
type WebServerAdapter interface {
	EnsureVhostPresent(ctx context.Context, rc *Context, spec VhostSpec) (Result, error)
	EnsureVhostAbsent(ctx context.Context, rc *Context, domain string) (Result, error)
	EnsureVhostSuspended(ctx context.Context, rc *Context, domain string) (Result, error)
	EnsureVhostResumed(ctx context.Context, rc *Context, domain string) (Result, error)
}

// PoolSpec describes a PHP-FPM pool
type PoolSpec struct {
	Name       string
	Username   string
	PHPVersion string
	Socket     string
	HomeDir    string
}

// PHPFPMAdapter manages PHP-FPM pools
type PHPFPMAdapter interface {
	EnsurePoolPresent(ctx context.Context, rc *Context, spec PoolSpec) (Result, error)
	EnsurePoolAbsent(ctx context.Context, rc *Context, name, phpVersion string) (Result, error)
}

// MySQLAccountSpec describes a MySQL login
type MySQLAccountSpec struct {
	Username string
	Password string
	Host     string
}

// DatabaseSpec describes one database owned by a MySQL login
type DatabaseSpec struct {
	Name  string
	Owner string
	Host  string
}

// DumpSpec describes a SQL dump to import into a database
type DumpSpec struct {
	Database string
	Path     string
}

// MySQLAdapter manages MySQL accounts and databases
type MySQLAdapter interface {
	EnsureAccountPresent(ctx context.Context, rc *Context, spec MySQLAccountSpec) (Result, error)
	EnsureAccountAbsent(ctx context.Context, rc *Context, username string) (Result, error)
	RotatePassword(ctx context.Context, rc *Context, username, password string) (Result, error)
	ListDatabases(ctx context.Context, rc *Context, owner string) ([]string, error)
	EnsureDatabasePresent(ctx context.Context, rc *Context, spec DatabaseSpec) (Result, error)
	ImportDump(ctx context.Context, rc *Context, spec DumpSpec) (Result, error)
}

// ZoneRecord is one resource record inside a zone
type ZoneRecord struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Value    string `json:"value"`
	TTL      int    `json:"ttl"`
	Priority int    `json:"priority,omitempty"`
}

// ZoneSpec describes a DNS zone
type ZoneSpec struct {
	Zone    string
	Records []ZoneRecord
}

// DNSAdapter manages DNS zones. Record semantics beyond zone presence are
// left to the DNS server.
type DNSAdapter interface {
	EnsureZonePresent(ctx context.Context, rc *Context, spec ZoneSpec) (Result, error)
	EnsureZoneAbsent(ctx context.Context, rc *Context, zone string) (Result, error)
	ListRecords(ctx context.Context, rc *Context, zone string) ([]ZoneRecord, error)
}

// MailboxSpec describes a mailbox
type MailboxSpec struct {
	Address  string
	Password string
	QuotaMB  int
}

// MailAdapter manages mailboxes
type MailAdapter interface {
	EnsureMailboxPresent(ctx context.Context, rc *Context, spec MailboxSpec) (Result, error)
	EnsureMailboxAbsent(ctx context.Context, rc *Context, address string) (Result, error)
	ListMailboxes(ctx context.Context, rc *Context, domain string) ([]string, error)
	RotateMailboxPassword(ctx context.Context, rc *Context, address, password string) (Result, error)
}

// FTPAccountSpec describes an FTP login chrooted to a home directory
type FTPAccountSpec struct {
	Username   string
	Password   string
	HomeDir    string
	SystemUser string
}

// FTPAdapter manages FTP accounts
type FTPAdapter interface {
	EnsureFTPAccountPresent(ctx context.Context, rc *Context, spec FTPAccountSpec) (Result, error)
	EnsureFTPAccountAbsent(ctx context.Context, rc *Context, username string) (Result, error)
	RotateFTPPassword(ctx context.Context, rc *Context, username, password string) (Result, error)
}

// SnapshotSpec describes what a pre-termination backup must capture
type SnapshotSpec struct {
	ServiceID string
	Username  string
	HomeDir   string
	Databases []string
}

// BackupTool takes snapshots before destructive operations
type BackupTool interface {
	Snapshot(ctx context.Context, rc *Context, spec SnapshotSpec) (Result, error)
}

// ToolResolver answers readiness questions about the host
type ToolResolver interface {
	LookPath(name string) (string, error)
	QuotaSupported(ctx context.Context) bool
}

// Set bundles one implementation per subsystem. It is resolved once at
// process start; the core never learns which implementation it holds.
type Set struct {
	Users  UserAdapter
	Web    WebServerAdapter
	PHP    PHPFPMAdapter
	MySQL  MySQLAdapter
	DNS    DNSAdapter
	Mail   MailAdapter
	FTP    FTPAdapter
	Backup BackupTool
	Tools  ToolResolver
}
