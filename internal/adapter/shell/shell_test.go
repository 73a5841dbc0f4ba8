package shell

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/miekg/dns"

	"go_hostpanel/internal/adapter"
	"go_hostpanel/internal/config"
	"go_hostpanel/internal/errs"
	"go_hostpanel/internal/execx"
	"go_hostpanel/internal/logging"
)

type fakeExec struct {
	calls   []execx.Command
	handler func(cmd execx.Command) (execx.Output, error)
}

func (f *fakeExec) Run(ctx context.Context, cmd execx.Command) (execx.Output, error) {
	f.calls = append(f.calls, cmd)
	if f.handler != nil {
		return f.handler(cmd)
	}
	return execx.Output{}, nil
}

func (f *fakeExec) ran(name string) bool {
	for _, c := range f.calls {
		if c.Name == name {
			return true
		}
	}
	return false
}

func testBase(t *testing.T, ex execx.Executor) base {
	dir := t.TempDir()
	cfg := config.ProvisioningConfig{
		NameServers: []string{"ns1.example.net.", "ns2.example.net."},
		Tools: config.ToolsConfig{
			UserAdd: "useradd",
			UserMod: "usermod",
			UserDel: "userdel",
			Nginx:   "nginx",
			MySQL:   "mysql",
		},
		Paths: config.PathsConfig{
			NginxSitesDir:  dir,
			PHPFPMPoolDir:  dir,
			ZoneDir:        dir,
			NginxReloadCmd: "nginx -s reload",
		},
	}
	return base{cfg: cfg, exec: ex, logger: logging.Discard()}
}

func exitErr(code int) (execx.Output, error) {
	return execx.Output{ExitCode: code}, errors.New("exit status")
}

func TestBuildZone_DefaultRecords(t *testing.T) {
	records := []adapter.ZoneRecord{
		{Name: "@", Type: "A", Value: "203.0.113.10"},
		{Name: "mail", Type: "A", Value: "203.0.113.10"},
		{Name: "@", Type: "MX", Value: "mail", Priority: 10},
		{Name: "@", Type: "TXT", Value: "v=spf1 a mx ~all"},
	}
	rrs, err := BuildZone("example.com", []string{"ns1.example.net."}, records, 2026101500)
	if err != nil {
		t.Fatalf("BuildZone failed: %v", err)
	}
	// SOA + NS + 4
	if len(rrs) != 6 {
		t.Fatalf("Expected 6 records, got %d", len(rrs))
	}

	parsed, err := ParseZone("example.com", RenderZone("example.com", rrs))
	if err != nil {
		t.Fatalf("rendered zone did not parse: %v", err)
	}
	if len(parsed) != len(rrs) {
		t.Errorf("Expected %d parsed records, got %d", len(rrs), len(parsed))
	}

	var sawMX, sawSPF bool
	for _, rr := range parsed {
		switch v := rr.(type) {
		case *dns.MX:
			sawMX = v.Mx == "mail.example.com." && v.Preference == 10
		case *dns.TXT:
			sawSPF = strings.Join(v.Txt, "") == "v=spf1 a mx ~all"
		}
	}
	if !sawMX {
		t.Error("Expected MX 10 mail.example.com.")
	}
	if !sawSPF {
		t.Error("Expected SPF TXT record")
	}
}

func TestBuildZone_RequiresNameServer(t *testing.T) {
	if _, err := BuildZone("example.com", nil, nil, 1); err == nil {
		t.Error("Expected error without name servers")
	}
}

func TestDNSAdapter_EnsureZonePresentIdempotent(t *testing.T) {
	ex := &fakeExec{}
	a := NewDNSAdapter(testBase(t, ex))
	ctx := context.Background()
	rc := &adapter.Context{}
	spec := adapter.ZoneSpec{Zone: "example.com", Records: []adapter.ZoneRecord{{Name: "@", Type: "A", Value: "203.0.113.10"}}}

	first, err := a.EnsureZonePresent(ctx, rc, spec)
	if err != nil {
		t.Fatalf("first EnsureZonePresent: %v", err)
	}
	if first.Rollback == nil {
		t.Error("Expected rollback for a new zone")
	}

	second, err := a.EnsureZonePresent(ctx, rc, spec)
	if err != nil {
		t.Fatalf("second EnsureZonePresent: %v", err)
	}
	if second.Rollback != nil {
		t.Error("Expected no rollback for an unchanged zone")
	}
	if second.Details["action"] != "unchanged" {
		t.Errorf("Expected unchanged, got %v", second.Details["action"])
	}

	records, err := a.ListRecords(ctx, rc, "example.com")
	if err != nil {
		t.Fatalf("ListRecords: %v", err)
	}
	if len(records) != 4 {
		t.Errorf("Expected SOA, 2 NS and A, got %+v", records)
	}

	if err := first.Rollback.Undo(ctx, rc); err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if _, err := os.Stat(a.zonePath("example.com")); !os.IsNotExist(err) {
		t.Error("Expected zone file removed by rollback")
	}
}

func TestWebServerAdapter_RendersVhost(t *testing.T) {
	a := NewWebServerAdapter(testBase(t, &fakeExec{}))
	content, err := a.Render("vhost", adapter.VhostSpec{
		Domain:       "example.com",
		DocumentRoot: "/home/examplec/public_html",
		PHPSocket:    "/run/php/examplec.sock",
		Username:     "examplec",
	})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	out := string(content)
	for _, want := range []string{
		"server_name example.com www.example.com;",
		"root /home/examplec/public_html;",
		"fastcgi_pass unix:/run/php/examplec.sock;",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected rendered vhost to contain %q", want)
		}
	}
}

func TestWebServerAdapter_FailedTestRestores(t *testing.T) {
	ex := &fakeExec{handler: func(cmd execx.Command) (execx.Output, error) {
		if cmd.Name == "nginx" {
			return execx.Output{ExitCode: 1, Stderr: "emerg"}, errors.New("exit status 1")
		}
		return execx.Output{}, nil
	}}
	a := NewWebServerAdapter(testBase(t, ex))
	ctx := context.Background()
	var entries []adapter.LogEntry
	rc := &adapter.Context{Sink: adapter.SinkFunc(func(_ context.Context, e adapter.LogEntry) { entries = append(entries, e) })}

	_, err := a.EnsureVhostPresent(ctx, rc, adapter.VhostSpec{Domain: "example.com", DocumentRoot: "/srv"})
	if err == nil {
		t.Fatal("Expected error when nginx -t fails")
	}
	if _, statErr := os.Stat(a.vhostPath("example.com")); !os.IsNotExist(statErr) {
		t.Error("Expected new vhost file removed after failed test")
	}
	if len(entries) != 1 || entries[0].Success {
		t.Errorf("Expected one failed log entry, got %+v", entries)
	}
}

func TestWebServerAdapter_SuspendResume(t *testing.T) {
	ex := &fakeExec{}
	a := NewWebServerAdapter(testBase(t, ex))
	ctx := context.Background()
	rc := &adapter.Context{}

	if _, err := a.EnsureVhostPresent(ctx, rc, adapter.VhostSpec{Domain: "example.com", DocumentRoot: "/srv"}); err != nil {
		t.Fatalf("EnsureVhostPresent: %v", err)
	}
	original, _ := os.ReadFile(a.vhostPath("example.com"))

	if _, err := a.EnsureVhostSuspended(ctx, rc, "example.com"); err != nil {
		t.Fatalf("EnsureVhostSuspended: %v", err)
	}
	live, _ := os.ReadFile(a.vhostPath("example.com"))
	if !strings.Contains(string(live), "return 503;") {
		t.Error("Expected suspended block to return 503")
	}

	if _, err := a.EnsureVhostResumed(ctx, rc, "example.com"); err != nil {
		t.Fatalf("EnsureVhostResumed: %v", err)
	}
	resumed, _ := os.ReadFile(a.vhostPath("example.com"))
	if string(resumed) != string(original) {
		t.Error("Expected original vhost restored on resume")
	}
}

func TestUserAdapter_CreatesWithRollback(t *testing.T) {
	ex := &fakeExec{handler: func(cmd execx.Command) (execx.Output, error) {
		if cmd.Name == "id" {
			return exitErr(1)
		}
		return execx.Output{}, nil
	}}
	a := &UserAdapter{base: testBase(t, ex)}
	ctx := context.Background()
	rc := &adapter.Context{}

	res, err := a.EnsureUserPresent(ctx, rc, adapter.UserSpec{Username: "examplec", HomeDir: "/home/examplec", Shell: "/usr/sbin/nologin"})
	if err != nil {
		t.Fatalf("EnsureUserPresent: %v", err)
	}
	want := "useradd -m -d /home/examplec -s /usr/sbin/nologin examplec"
	if got := ex.calls[1].String(); got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
	if res.Rollback == nil {
		t.Fatal("Expected rollback")
	}
	if err := res.Rollback.Undo(ctx, rc); err != nil {
		t.Fatalf("Undo: %v", err)
	}
	if !ex.ran("userdel") {
		t.Error("Expected userdel on rollback")
	}
}

func TestUserAdapter_DryRunDoesNotMutate(t *testing.T) {
	ex := &fakeExec{handler: func(cmd execx.Command) (execx.Output, error) {
		if cmd.Name == "id" {
			return exitErr(1)
		}
		return execx.Output{}, nil
	}}
	a := &UserAdapter{base: testBase(t, ex)}
	rc := &adapter.Context{DryRun: true}

	if _, err := a.EnsureUserPresent(context.Background(), rc, adapter.UserSpec{Username: "examplec", HomeDir: "/home/examplec"}); err != nil {
		t.Fatalf("EnsureUserPresent: %v", err)
	}
	if ex.ran("useradd") {
		t.Error("Expected no useradd in dry run")
	}
}

func TestUserAdapter_DocumentRoot(t *testing.T) {
	ex := &fakeExec{}
	a := &UserAdapter{base: testBase(t, ex)}
	path := filepath.Join(t.TempDir(), "examplec", "public_html")

	res, err := a.EnsureDocumentRoot(context.Background(), &adapter.Context{}, adapter.DocRootSpec{Path: path, Owner: "examplec"})
	if err != nil {
		t.Fatalf("EnsureDocumentRoot: %v", err)
	}
	if info, err := os.Stat(path); err != nil || !info.IsDir() {
		t.Fatal("Expected document root directory")
	}
	if !ex.ran("chown") {
		t.Error("Expected chown of document root")
	}
	if err := res.Rollback.Undo(context.Background(), &adapter.Context{}); err != nil {
		t.Fatalf("Undo: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("Expected document root removed by rollback")
	}
}

func TestImportCommand(t *testing.T) {
	cmd, err := ImportCommand("mysql", "root:s3cret@tcp(db.internal:3307)/", "examplec_shop")
	if err != nil {
		t.Fatalf("ImportCommand: %v", err)
	}
	want := "mysql -u root -h db.internal -P 3307 examplec_shop"
	if cmd.String() != want {
		t.Errorf("Expected %q, got %q", want, cmd.String())
	}
	if len(cmd.Env) != 1 || cmd.Env[0] != "MYSQL_PWD=s3cret" {
		t.Errorf("Expected password in MYSQL_PWD, got %v", cmd.Env)
	}
	if strings.Contains(cmd.String(), "s3cret") {
		t.Error("Password leaked into argv")
	}
}

func TestValidIdentifier(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"examplec", true},
		{"examplec_shop", true},
		{"bad-name", false},
		{"x`; DROP", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := ValidIdentifier(tt.name); got != tt.want {
			t.Errorf("ValidIdentifier(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestBackupTool_NotConfigured(t *testing.T) {
	b := &BackupTool{base: testBase(t, &fakeExec{})}
	_, err := b.Snapshot(context.Background(), &adapter.Context{}, adapter.SnapshotSpec{Username: "examplec"})
	if !errs.IsKind(err, errs.KindBackupSnapshotFailed) {
		t.Errorf("Expected %s, got %v", errs.KindBackupSnapshotFailed, err)
	}
}

func TestMailAdapter_ExistingMailboxIsNoop(t *testing.T) {
	ex := &fakeExec{handler: func(cmd execx.Command) (execx.Output, error) {
		if len(cmd.Args) > 0 && cmd.Args[0] == "mailbox-list" {
			return execx.Output{Stdout: "postmaster@example.com\n"}, nil
		}
		return execx.Output{}, nil
	}}
	b := testBase(t, ex)
	b.cfg.MailCmd = "mailctl"
	a := &MailAdapter{base: b}

	res, err := a.EnsureMailboxPresent(context.Background(), &adapter.Context{}, adapter.MailboxSpec{Address: "postmaster@example.com", Password: "x"})
	if err != nil {
		t.Fatalf("EnsureMailboxPresent: %v", err)
	}
	if res.Rollback != nil {
		t.Error("Expected no rollback for an existing mailbox")
	}
	if len(ex.calls) != 1 {
		t.Errorf("Expected only the list call, got %d calls", len(ex.calls))
	}
}
