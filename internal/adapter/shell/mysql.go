package shell

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"os"
	"regexp"
	"strings"
	"sync"

	"github.com/go-sql-driver/mysql"

	"go_hostpanel/internal/adapter"
	"go_hostpanel/internal/execx"
)

var identifierRe = regexp.MustCompile(`^[A-Za-z0-9_]{1,64}$`)

// ValidIdentifier reports whether name is safe to splice into DDL
func ValidIdentifier(name string) bool {
	return identifierRe.MatchString(name)
}

func quoteString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return "'" + strings.ReplaceAll(s, "'", `\'`) + "'"
}

func quoteIdent(s string) string {
	return "`" + strings.ReplaceAll(s, "`", "``") + "`"
}

// likePrefix builds a LIKE pattern matching "<owner>_..."
func likePrefix(owner string) string {
	return strings.ReplaceAll(owner, "_", `\_`) + `\_%`
}

// MySQLAdapter manages accounts over an admin connection. Account names
// and database names are validated identifiers; passwords are quoted.
type MySQLAdapter struct {
	base
	once  sync.Once
	db    *sql.DB
	dbErr error
}

// NewMySQLAdapter creates the adapter; the connection is opened on first use
func NewMySQLAdapter(b base) *MySQLAdapter {
	return &MySQLAdapter{base: b}
}

func (a *MySQLAdapter) conn() (*sql.DB, error) {
	a.once.Do(func() {
		if a.cfg.MySQLAdminDSN == "" {
			a.dbErr = fmt.Errorf("MYSQL_ADMIN_DSN is not configured")
			return
		}
		a.db, a.dbErr = sql.Open("mysql", a.cfg.MySQLAdminDSN)
	})
	return a.db, a.dbErr
}

func (a *MySQLAdapter) host(host string) string {
	if host == "" {
		return "localhost"
	}
	return host
}

func (a *MySQLAdapter) accountExists(ctx context.Context, db *sql.DB, username, host string) (bool, error) {
	var n int
	err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM mysql.user WHERE User = ? AND Host = ?", username, host).Scan(&n)
	return n > 0, err
}

// EnsureAccountPresent creates the login and grants it every database
// prefixed with its name. An existing login gets the new password.
func (a *MySQLAdapter) EnsureAccountPresent(ctx context.Context, rc *adapter.Context, spec adapter.MySQLAccountSpec) (adapter.Result, error) {
	host := a.host(spec.Host)
	entry := adapter.LogEntry{Adapter: adapter.NameMySQL, Operation: adapter.OpCreate, TargetKind: "mysql_account", TargetKey: spec.Username, Details: map[string]any{"host": host}}
	if !ValidIdentifier(spec.Username) {
		return adapter.Result{}, a.record(ctx, rc, entry, fmt.Errorf("invalid mysql username %q", spec.Username))
	}
	if rc.Would(ctx, entry) {
		return adapter.Result{}, nil
	}

	db, err := a.conn()
	if err != nil {
		return adapter.Result{}, a.record(ctx, rc, entry, err)
	}
	existed, err := a.accountExists(ctx, db, spec.Username, host)
	if err != nil {
		return adapter.Result{}, a.record(ctx, rc, entry, err)
	}

	account := quoteString(spec.Username) + "@" + quoteString(host)
	stmts := []string{
		fmt.Sprintf("CREATE USER IF NOT EXISTS %s IDENTIFIED BY %s", account, quoteString(spec.Password)),
		fmt.Sprintf("ALTER USER %s IDENTIFIED BY %s", account, quoteString(spec.Password)),
		fmt.Sprintf("GRANT ALL PRIVILEGES ON %s.* TO %s", quoteIdent(spec.Username+`\_%`), account),
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return adapter.Result{}, a.record(ctx, rc, entry, err)
		}
	}

	entry.Details["existed"] = existed
	result := adapter.Result{Details: entry.Details}
	if !existed {
		username := spec.Username
		result.Rollback = &adapter.Rollback{
			Kind:       "mysql_account.delete",
			Adapter:    adapter.NameMySQL,
			TargetKind: "mysql_account",
			TargetKey:  username,
			Undo: func(ctx context.Context, rc *adapter.Context) error {
				_, err := db.ExecContext(ctx, fmt.Sprintf("DROP USER IF EXISTS %s", account))
				return err
			},
		}
	}
	return result, a.record(ctx, rc, entry, nil)
}

// EnsureAccountAbsent drops the login and every database it owns
func (a *MySQLAdapter) EnsureAccountAbsent(ctx context.Context, rc *adapter.Context, username string) (adapter.Result, error) {
	entry := adapter.LogEntry{Adapter: adapter.NameMySQL, Operation: adapter.OpDelete, TargetKind: "mysql_account", TargetKey: username, Details: map[string]any{}}
	if !ValidIdentifier(username) {
		return adapter.Result{}, a.record(ctx, rc, entry, fmt.Errorf("invalid mysql username %q", username))
	}
	if rc.Would(ctx, entry) {
		return adapter.Result{}, nil
	}

	db, err := a.conn()
	if err != nil {
		return adapter.Result{}, a.record(ctx, rc, entry, err)
	}
	dbs, err := a.listDatabases(ctx, db, username)
	if err != nil {
		return adapter.Result{}, a.record(ctx, rc, entry, err)
	}
	for _, name := range dbs {
		if _, err := db.ExecContext(ctx, "DROP DATABASE IF EXISTS "+quoteIdent(name)); err != nil {
			return adapter.Result{}, a.record(ctx, rc, entry, err)
		}
	}
	_, err = db.ExecContext(ctx, fmt.Sprintf("DROP USER IF EXISTS %s@%s", quoteString(username), quoteString(a.host(""))))
	entry.Details["droppedDatabases"] = dbs
	return adapter.Result{Details: entry.Details}, a.record(ctx, rc, entry, err)
}

// RotatePassword sets a new password for the login
func (a *MySQLAdapter) RotatePassword(ctx context.Context, rc *adapter.Context, username, password string) (adapter.Result, error) {
	entry := adapter.LogEntry{Adapter: adapter.NameMySQL, Operation: adapter.OpUpdate, TargetKind: "mysql_account", TargetKey: username, Details: map[string]any{"action": "rotate_password"}}
	if !ValidIdentifier(username) {
		return adapter.Result{}, a.record(ctx, rc, entry, fmt.Errorf("invalid mysql username %q", username))
	}
	if rc.Would(ctx, entry) {
		return adapter.Result{}, nil
	}
	db, err := a.conn()
	if err != nil {
		return adapter.Result{}, a.record(ctx, rc, entry, err)
	}
	stmt := fmt.Sprintf("ALTER USER %s@%s IDENTIFIED BY %s", quoteString(username), quoteString(a.host("")), quoteString(password))
	_, err = db.ExecContext(ctx, stmt)
	return adapter.Result{Details: entry.Details}, a.record(ctx, rc, entry, err)
}

func (a *MySQLAdapter) listDatabases(ctx context.Context, db *sql.DB, owner string) ([]string, error) {
	rows, err := db.QueryContext(ctx, "SELECT SCHEMA_NAME FROM information_schema.SCHEMATA WHERE SCHEMA_NAME LIKE ? ORDER BY SCHEMA_NAME", likePrefix(owner))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// ListDatabases returns the databases owned by a login
func (a *MySQLAdapter) ListDatabases(ctx context.Context, rc *adapter.Context, owner string) ([]string, error) {
	db, err := a.conn()
	if err != nil {
		return nil, err
	}
	return a.listDatabases(ctx, db, owner)
}

// EnsureDatabasePresent creates the database if missing
func (a *MySQLAdapter) EnsureDatabasePresent(ctx context.Context, rc *adapter.Context, spec adapter.DatabaseSpec) (adapter.Result, error) {
	entry := adapter.LogEntry{Adapter: adapter.NameMySQL, Operation: adapter.OpCreate, TargetKind: "mysql_database", TargetKey: spec.Name, Details: map[string]any{"owner": spec.Owner}}
	if !ValidIdentifier(spec.Name) {
		return adapter.Result{}, a.record(ctx, rc, entry, fmt.Errorf("invalid database name %q", spec.Name))
	}
	if rc.Would(ctx, entry) {
		return adapter.Result{}, nil
	}

	db, err := a.conn()
	if err != nil {
		return adapter.Result{}, a.record(ctx, rc, entry, err)
	}
	var n int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM information_schema.SCHEMATA WHERE SCHEMA_NAME = ?", spec.Name).Scan(&n); err != nil {
		return adapter.Result{}, a.record(ctx, rc, entry, err)
	}
	if n > 0 {
		entry.Details["action"] = "exists"
		return adapter.Result{Details: entry.Details}, a.record(ctx, rc, entry, nil)
	}
	if _, err := db.ExecContext(ctx, "CREATE DATABASE IF NOT EXISTS "+quoteIdent(spec.Name)+" CHARACTER SET utf8mb4"); err != nil {
		return adapter.Result{}, a.record(ctx, rc, entry, err)
	}

	name := spec.Name
	entry.Details["action"] = "created"
	return adapter.Result{
		Details: entry.Details,
		Rollback: &adapter.Rollback{
			Kind:       "mysql_database.delete",
			Adapter:    adapter.NameMySQL,
			TargetKind: "mysql_database",
			TargetKey:  name,
			Undo: func(ctx context.Context, rc *adapter.Context) error {
				_, err := db.ExecContext(ctx, "DROP DATABASE IF EXISTS "+quoteIdent(name))
				return err
			},
		},
	}, a.record(ctx, rc, entry, nil)
}

// ImportCommand builds the mysql CLI invocation for a dump. The admin
// password travels in MYSQL_PWD, never on the command line.
func ImportCommand(mysqlBin, adminDSN, database string) (execx.Command, error) {
	dsn, err := mysql.ParseDSN(adminDSN)
	if err != nil {
		return execx.Command{}, fmt.Errorf("parse admin dsn: %w", err)
	}
	args := []string{"-u", dsn.User}
	switch dsn.Net {
	case "unix":
		args = append(args, "--socket", dsn.Addr)
	default:
		host, port, err := net.SplitHostPort(dsn.Addr)
		if err != nil {
			host, port = dsn.Addr, "3306"
		}
		args = append(args, "-h", host, "-P", port)
	}
	args = append(args, database)

	cmd := execx.Command{Name: mysqlBin, Args: args}
	if dsn.Passwd != "" {
		cmd.Env = []string{"MYSQL_PWD=" + dsn.Passwd}
	}
	return cmd, nil
}

// ImportDump streams a SQL dump into a database through the mysql CLI
func (a *MySQLAdapter) ImportDump(ctx context.Context, rc *adapter.Context, spec adapter.DumpSpec) (adapter.Result, error) {
	entry := adapter.LogEntry{Adapter: adapter.NameMySQL, Operation: adapter.OpUpdate, TargetKind: "mysql_database", TargetKey: spec.Database, Details: map[string]any{"action": "import", "dumpPath": spec.Path}}
	if !ValidIdentifier(spec.Database) {
		return adapter.Result{}, a.record(ctx, rc, entry, fmt.Errorf("invalid database name %q", spec.Database))
	}
	if rc.Would(ctx, entry) {
		return adapter.Result{}, nil
	}

	cmd, err := ImportCommand(a.cfg.Tools.MySQL, a.cfg.MySQLAdminDSN, spec.Database)
	if err != nil {
		return adapter.Result{}, a.record(ctx, rc, entry, err)
	}
	f, err := os.Open(spec.Path)
	if err != nil {
		return adapter.Result{}, a.record(ctx, rc, entry, err)
	}
	defer f.Close()
	cmd.Stdin = f

	out, err := a.exec.Run(ctx, cmd)
	if err != nil {
		entry.Details["stderr"] = out.Stderr
	}
	return adapter.Result{Details: entry.Details}, a.record(ctx, rc, entry, err)
}
