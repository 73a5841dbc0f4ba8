package provisioning

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"go_hostpanel/internal/adapter/adaptertest"
	"go_hostpanel/internal/config"
	"go_hostpanel/internal/errs"
	"go_hostpanel/internal/logging"
	"go_hostpanel/internal/model"
	"go_hostpanel/internal/store/memory"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func testConfig() config.ProvisioningConfig {
	return config.ProvisioningConfig{
		RetentionHours:    168,
		TerminationTTLSec: 600,
		DefaultIPv4:       "203.0.113.10",
		MailCmd:           "mailctl",
		Tools: config.ToolsConfig{
			UserAdd: "useradd",
			UserMod: "usermod",
			UserDel: "userdel",
			Nginx:   "nginx",
			PHPFPM:  "php-fpm",
			MySQL:   "mysql",
		},
	}
}

type fixture struct {
	store *memory.Store
	rec   *adaptertest.Recorder
	clock *fakeClock
	orch  *Orchestrator
}

func newFixture(t *testing.T, cfg config.ProvisioningConfig) *fixture {
	t.Helper()
	f := &fixture{
		store: memory.New(),
		rec:   adaptertest.New(),
		clock: &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
	}
	ctx := context.Background()
	plans := []model.HostingPlan{
		{Name: "basic", DiskQuotaMB: 1024, MaxDatabases: 1, MaxMailboxes: 0, PHPVersion: "8.2"},
		{Name: "pro", DiskQuotaMB: 4096, MaxDatabases: 5, MaxMailboxes: 10, MailboxQuotaMB: 512, PHPVersion: "8.3"},
	}
	for i := range plans {
		if err := f.store.SavePlan(ctx, &plans[i]); err != nil {
			t.Fatalf("SavePlan() failed: %v", err)
		}
	}
	f.orch = New(f.store, f.rec.Set(), cfg, logging.Discard(), WithClock(f.clock.now))
	return f
}

func (f *fixture) createService(t *testing.T, domain, plan string) *model.HostingService {
	t.Helper()
	svc, err := f.orch.CreateService(context.Background(), CreateRequest{CustomerID: 7, PrimaryDomain: domain, PlanName: plan})
	if err != nil {
		t.Fatalf("CreateService() failed: %v", err)
	}
	return svc
}

func (f *fixture) activeService(t *testing.T, domain, plan string) *model.HostingService {
	t.Helper()
	svc := f.createService(t, domain, plan)
	res, err := f.orch.Provision(context.Background(), svc.ID, ProvisionOptions{})
	if err != nil {
		t.Fatalf("Provision() failed: %v", err)
	}
	return res.Service
}

func TestCreateService_Validation(t *testing.T) {
	f := newFixture(t, testConfig())
	ctx := context.Background()

	tests := []struct {
		name string
		req  CreateRequest
		kind errs.Kind
	}{
		{"bad domain", CreateRequest{CustomerID: 1, PrimaryDomain: "not a domain", PlanName: "basic"}, errs.KindInvalidArgument},
		{"single label", CreateRequest{CustomerID: 1, PrimaryDomain: "localhost", PlanName: "basic"}, errs.KindInvalidArgument},
		{"missing customer", CreateRequest{PrimaryDomain: "example.com", PlanName: "basic"}, errs.KindInvalidArgument},
		{"unknown plan", CreateRequest{CustomerID: 1, PrimaryDomain: "example.com", PlanName: "gold"}, errs.KindNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.orch.CreateService(ctx, tt.req)
			if !errs.IsKind(err, tt.kind) {
				t.Errorf("Expected kind %s, got %v", tt.kind, err)
			}
		})
	}
}

func TestProvision_Success(t *testing.T) {
	f := newFixture(t, testConfig())
	svc := f.createService(t, "Example.COM", "pro")

	res, err := f.orch.Provision(context.Background(), svc.ID, ProvisionOptions{})
	if err != nil {
		t.Fatalf("Provision() failed: %v", err)
	}
	if res.Service.Status != model.ServiceStatusActive {
		t.Errorf("Expected status active, got %s", res.Service.Status)
	}
	if !res.Service.MailEnabled {
		t.Error("Expected mail to be enabled for the pro plan")
	}
	if res.Service.FTPUser != "" {
		t.Errorf("Expected no FTP user without FTP_CMD, got %s", res.Service.FTPUser)
	}

	names := DeriveNames("example.com", testConfig())
	if res.Service.SystemUser != names.SystemUser {
		t.Errorf("Expected system user %s, got %s", names.SystemUser, res.Service.SystemUser)
	}
	if _, ok := res.Credentials["mysql:"+names.MySQLUser]; !ok {
		t.Errorf("Expected mysql credentials, got %v", res.Credentials)
	}
	if _, ok := res.Credentials["mailbox:postmaster@example.com"]; !ok {
		t.Errorf("Expected postmaster credentials, got %v", res.Credentials)
	}

	want := []string{StepUser, StepDocumentRoot, StepPHPFPMPool, StepVhost, StepMySQLAccount, StepDNSZone, StepMailbox, StepFTPAccount}
	if len(res.Steps) != len(want) {
		t.Fatalf("Expected %d steps, got %d", len(want), len(res.Steps))
	}
	for i, name := range want {
		if res.Steps[i].Name != name {
			t.Errorf("Step %d: expected %s, got %s", i, name, res.Steps[i].Name)
		}
	}
	if res.Steps[7].Status != OutcomeSkipped {
		t.Errorf("Expected ftp step skipped, got %s", res.Steps[7].Status)
	}
}

func TestProvision_RollbackInReverseOrder(t *testing.T) {
	f := newFixture(t, testConfig())
	svc := f.createService(t, "rollback.test", "pro")
	f.rec.Fail["EnsureAccountPresent"] = errors.New("mysql unavailable")

	_, err := f.orch.Provision(context.Background(), svc.ID, ProvisionOptions{})
	if !errs.IsKind(err, errs.KindAdapterApplyFailed) {
		t.Fatalf("Expected adapter_apply_failed, got %v", err)
	}
	details := errs.DetailsOf(err)
	if details["step"] != StepMySQLAccount {
		t.Errorf("Expected failing step %s, got %v", StepMySQLAccount, details["step"])
	}
	if details["rolledBack"] != 4 {
		t.Errorf("Expected 4 rollbacks, got %v", details["rolledBack"])
	}

	want := []string{"EnsureVhostPresent", "EnsurePoolPresent", "EnsureDocumentRoot", "EnsureUserPresent"}
	if strings.Join(f.rec.Undone, ",") != strings.Join(want, ",") {
		t.Errorf("Expected rollback order %v, got %v", want, f.rec.Undone)
	}
	if f.rec.Called("EnsureZonePresent") {
		t.Error("Expected DNS step not to run after failure")
	}

	got, _ := f.store.GetService(context.Background(), svc.ID)
	if got.Status != model.ServiceStatusError {
		t.Errorf("Expected status error, got %s", got.Status)
	}
	if !strings.Contains(got.LastError, "mysql unavailable") {
		t.Errorf("Expected last error to mention cause, got %q", got.LastError)
	}
}

func TestProvision_RetryFromError(t *testing.T) {
	f := newFixture(t, testConfig())
	svc := f.createService(t, "retry.test", "basic")
	f.rec.Fail["EnsureZonePresent"] = errors.New("zone write failed")

	if _, err := f.orch.Provision(context.Background(), svc.ID, ProvisionOptions{}); err == nil {
		t.Fatal("Expected first provision to fail")
	}
	delete(f.rec.Fail, "EnsureZonePresent")

	res, err := f.orch.Provision(context.Background(), svc.ID, ProvisionOptions{})
	if err != nil {
		t.Fatalf("Expected retry to succeed, got %v", err)
	}
	if res.Service.Status != model.ServiceStatusActive || res.Service.LastError != "" {
		t.Errorf("Expected clean active service, got %s %q", res.Service.Status, res.Service.LastError)
	}
}

func TestProvision_MailboxSkippedWithReason(t *testing.T) {
	f := newFixture(t, testConfig())
	svc := f.createService(t, "basic.test", "basic")

	if _, err := f.orch.Provision(context.Background(), svc.ID, ProvisionOptions{}); err != nil {
		t.Fatalf("Provision() failed: %v", err)
	}
	if f.rec.Called("EnsureMailboxPresent") {
		t.Error("Expected no mailbox to be created on a plan without mailboxes")
	}

	logs, err := f.store.ListHostingLogs(context.Background(), svc.ID, 0)
	if err != nil {
		t.Fatalf("ListHostingLogs() failed: %v", err)
	}
	found := false
	for _, l := range logs {
		if l.TargetKind != "mailbox" {
			continue
		}
		var details map[string]any
		if err := json.Unmarshal(l.Details, &details); err != nil {
			t.Fatalf("bad details: %v", err)
		}
		if details["action"] == "skipped" && details["reason"] == ReasonMailNotConfigured {
			found = true
		}
	}
	if !found {
		t.Error("Expected a skipped mailbox log entry")
	}
}

func TestProvision_MissingToolMutatesNothing(t *testing.T) {
	f := newFixture(t, testConfig())
	svc := f.createService(t, "notools.test", "basic")
	f.rec.Missing["nginx"] = true

	_, err := f.orch.Provision(context.Background(), svc.ID, ProvisionOptions{})
	if !errs.IsKind(err, errs.KindToolNotFound) {
		t.Fatalf("Expected tool_not_found, got %v", err)
	}
	for _, c := range f.rec.Calls {
		if strings.HasPrefix(c, "Ensure") {
			t.Errorf("Expected no adapter mutation, got call %s", c)
		}
	}
	got, _ := f.store.GetService(context.Background(), svc.ID)
	if got.Status != model.ServiceStatusError {
		t.Errorf("Expected status error, got %s", got.Status)
	}
}

func TestProvision_DryRunMissingToolKeepsStatus(t *testing.T) {
	f := newFixture(t, testConfig())
	svc := f.createService(t, "drytools.test", "basic")
	f.rec.Missing["nginx"] = true

	_, err := f.orch.Provision(context.Background(), svc.ID, ProvisionOptions{DryRun: true})
	if !errs.IsKind(err, errs.KindToolNotFound) {
		t.Fatalf("Expected tool_not_found, got %v", err)
	}
	got, _ := f.store.GetService(context.Background(), svc.ID)
	if got.Status != model.ServiceStatusProvisioning {
		t.Errorf("Expected status provisioning after dry run, got %s", got.Status)
	}
	if got.LastError != "" {
		t.Errorf("Expected no lastError after dry run, got %q", got.LastError)
	}
}

func TestProvision_ActiveIsNoop(t *testing.T) {
	f := newFixture(t, testConfig())
	svc := f.activeService(t, "done.test", "basic")
	calls := len(f.rec.Calls)

	res, err := f.orch.Provision(context.Background(), svc.ID, ProvisionOptions{})
	if err != nil {
		t.Fatalf("Provision() failed: %v", err)
	}
	if !res.AlreadyDone {
		t.Error("Expected AlreadyDone for an active service")
	}
	if len(f.rec.Calls) != calls {
		t.Errorf("Expected no adapter calls, got %v", f.rec.Calls[calls:])
	}
}

func TestProvision_DryRunKeepsStatus(t *testing.T) {
	f := newFixture(t, testConfig())
	svc := f.createService(t, "dry.test", "basic")

	res, err := f.orch.Provision(context.Background(), svc.ID, ProvisionOptions{DryRun: true})
	if err != nil {
		t.Fatalf("Provision() failed: %v", err)
	}
	if !res.DryRun {
		t.Error("Expected dry-run result")
	}
	got, _ := f.store.GetService(context.Background(), svc.ID)
	if got.Status != model.ServiceStatusProvisioning {
		t.Errorf("Expected status provisioning after dry run, got %s", got.Status)
	}
	logs, _ := f.store.ListHostingLogs(context.Background(), svc.ID, 0)
	for _, l := range logs {
		if !l.DryRun {
			t.Errorf("Expected every log entry marked dry run, got %+v", l)
			break
		}
	}
}

func TestSuspendResume(t *testing.T) {
	f := newFixture(t, testConfig())
	svc := f.activeService(t, "pause.test", "basic")
	ctx := context.Background()

	got, err := f.orch.Suspend(ctx, svc.ID)
	if err != nil {
		t.Fatalf("Suspend() failed: %v", err)
	}
	if got.Status != model.ServiceStatusSuspended {
		t.Errorf("Expected suspended, got %s", got.Status)
	}
	if _, err := f.orch.Suspend(ctx, svc.ID); err != nil {
		t.Errorf("Expected second suspend to be a no-op, got %v", err)
	}

	got, err = f.orch.Resume(ctx, svc.ID)
	if err != nil {
		t.Fatalf("Resume() failed: %v", err)
	}
	if got.Status != model.ServiceStatusActive {
		t.Errorf("Expected active, got %s", got.Status)
	}
}

func TestTermination_FullFlow(t *testing.T) {
	f := newFixture(t, testConfig())
	svc := f.activeService(t, "bye.test", "pro")
	ctx := context.Background()

	deleted, err := f.orch.SoftDelete(ctx, svc.ID)
	if err != nil {
		t.Fatalf("SoftDelete() failed: %v", err)
	}
	if !f.rec.Called("RotatePassword") || !f.rec.Called("RotateMailboxPassword") {
		t.Error("Expected soft delete to rotate credentials")
	}
	wantEligible := f.clock.t.Add(168 * time.Hour)
	if deleted.HardDeleteEligibleAt == nil || !deleted.HardDeleteEligibleAt.Equal(wantEligible) {
		t.Errorf("Expected eligible at %s, got %v", wantEligible, deleted.HardDeleteEligibleAt)
	}

	if _, err := f.orch.TerminatePrepare(ctx, svc.ID); !errs.IsKind(err, errs.KindInvalidState) {
		t.Fatalf("Expected invalid_state inside retention window, got %v", err)
	}

	f.clock.t = f.clock.t.Add(169 * time.Hour)
	ticket, err := f.orch.TerminatePrepare(ctx, svc.ID)
	if err != nil {
		t.Fatalf("TerminatePrepare() failed: %v", err)
	}
	if len(ticket.Token) != 64 {
		t.Errorf("Expected 64 hex chars, got %d", len(ticket.Token))
	}

	if _, err := f.orch.TerminateConfirm(ctx, svc.ID, "wrong", false); !errs.IsKind(err, errs.KindInvalidToken) {
		t.Errorf("Expected invalid_token, got %v", err)
	}

	res, err := f.orch.TerminateConfirm(ctx, svc.ID, ticket.Token, false)
	if err != nil {
		t.Fatalf("TerminateConfirm() failed: %v", err)
	}
	if res.Service.Status != model.ServiceStatusTerminated {
		t.Errorf("Expected terminated, got %s", res.Service.Status)
	}
	if res.Purged {
		t.Error("Expected row to be kept without purge")
	}
	wantOrder := []string{StepMailbox, StepDNSZone, StepMySQLAccount, StepVhost, StepPHPFPMPool, StepUser}
	for i, name := range wantOrder {
		if res.Steps[i].Name != name {
			t.Errorf("Teardown step %d: expected %s, got %s", i, name, res.Steps[i].Name)
		}
	}

	if _, err := f.orch.TerminateConfirm(ctx, svc.ID, ticket.Token, false); !errs.IsKind(err, errs.KindInvalidState) {
		t.Errorf("Expected reused token to be refused, got %v", err)
	}
}

func TestTerminateConfirm_Expired(t *testing.T) {
	f := newFixture(t, testConfig())
	svc := f.activeService(t, "late.test", "basic")
	ctx := context.Background()

	if _, err := f.orch.SoftDelete(ctx, svc.ID); err != nil {
		t.Fatalf("SoftDelete() failed: %v", err)
	}
	f.clock.t = f.clock.t.Add(200 * time.Hour)
	ticket, err := f.orch.TerminatePrepare(ctx, svc.ID)
	if err != nil {
		t.Fatalf("TerminatePrepare() failed: %v", err)
	}

	f.clock.t = f.clock.t.Add(11 * time.Minute)
	if _, err := f.orch.TerminateConfirm(ctx, svc.ID, ticket.Token, false); !errs.IsKind(err, errs.KindTokenExpired) {
		t.Fatalf("Expected token_expired, got %v", err)
	}
	got, _ := f.store.GetService(ctx, svc.ID)
	if got.Status != model.ServiceStatusSoftDeleted {
		t.Errorf("Expected status soft_deleted after expiry, got %s", got.Status)
	}
	if got.TerminationTokenHash != "" {
		t.Error("Expected token hash to be cleared")
	}
}

func TestTerminateConfirm_BackupFailureKeepsData(t *testing.T) {
	f := newFixture(t, testConfig())
	svc := f.activeService(t, "backup.test", "basic")
	ctx := context.Background()

	if _, err := f.orch.SoftDelete(ctx, svc.ID); err != nil {
		t.Fatalf("SoftDelete() failed: %v", err)
	}
	f.clock.t = f.clock.t.Add(200 * time.Hour)
	ticket, err := f.orch.TerminatePrepare(ctx, svc.ID)
	if err != nil {
		t.Fatalf("TerminatePrepare() failed: %v", err)
	}
	f.rec.Fail["Snapshot"] = errors.New("disk full")

	_, err = f.orch.TerminateConfirm(ctx, svc.ID, ticket.Token, true)
	if !errs.IsKind(err, errs.KindBackupSnapshotFailed) {
		t.Fatalf("Expected backup_snapshot_failed, got %v", err)
	}
	if f.rec.Called("EnsureUserAbsent") || f.rec.Called("EnsureZoneAbsent") {
		t.Error("Expected no teardown after a failed snapshot")
	}
	got, err := f.store.GetService(ctx, svc.ID)
	if err != nil {
		t.Fatalf("Expected service row to survive, got %v", err)
	}
	if got.Status != model.ServiceStatusSoftDeleted {
		t.Errorf("Expected soft_deleted, got %s", got.Status)
	}
}

func TestTerminateConfirm_PurgeDeletesRow(t *testing.T) {
	f := newFixture(t, testConfig())
	svc := f.activeService(t, "purge.test", "pro")
	ctx := context.Background()

	if _, err := f.orch.SoftDelete(ctx, svc.ID); err != nil {
		t.Fatalf("SoftDelete() failed: %v", err)
	}
	f.clock.t = f.clock.t.Add(200 * time.Hour)
	ticket, err := f.orch.TerminatePrepare(ctx, svc.ID)
	if err != nil {
		t.Fatalf("TerminatePrepare() failed: %v", err)
	}
	res, err := f.orch.TerminateConfirm(ctx, svc.ID, ticket.Token, true)
	if err != nil {
		t.Fatalf("TerminateConfirm() failed: %v", err)
	}
	if !res.Purged {
		t.Error("Expected purge")
	}
	if !f.rec.Called("ListMailboxes") {
		t.Error("Expected purge to enumerate every mailbox")
	}
	if _, err := f.store.GetService(ctx, svc.ID); !errs.IsKind(err, errs.KindNotFound) {
		t.Errorf("Expected row to be gone, got %v", err)
	}
}

func TestTerminateConfirm_TeardownFailureEndsInError(t *testing.T) {
	f := newFixture(t, testConfig())
	svc := f.activeService(t, "stuck.test", "basic")
	ctx := context.Background()

	if _, err := f.orch.SoftDelete(ctx, svc.ID); err != nil {
		t.Fatalf("SoftDelete() failed: %v", err)
	}
	f.clock.t = f.clock.t.Add(200 * time.Hour)
	ticket, _ := f.orch.TerminatePrepare(ctx, svc.ID)
	f.rec.Fail["EnsureVhostAbsent"] = errors.New("nginx -t failed")

	res, err := f.orch.TerminateConfirm(ctx, svc.ID, ticket.Token, false)
	if !errs.IsKind(err, errs.KindAdapterApplyFailed) {
		t.Fatalf("Expected adapter_apply_failed, got %v", err)
	}
	if !f.rec.Called("EnsureUserAbsent") {
		t.Error("Expected teardown to continue past the failed vhost step")
	}
	if res.Service.Status != model.ServiceStatusError {
		t.Errorf("Expected status error, got %s", res.Service.Status)
	}
}

func TestResetDatabasePassword_RequiresActive(t *testing.T) {
	f := newFixture(t, testConfig())
	svc := f.createService(t, "pending.test", "basic")

	if _, err := f.orch.ResetDatabasePassword(context.Background(), svc.ID); !errs.IsKind(err, errs.KindInvalidState) {
		t.Errorf("Expected invalid_state, got %v", err)
	}
}

func TestDeriveNames(t *testing.T) {
	cfg := config.ProvisioningConfig{HomeBase: "/srv/www", WebRootName: "htdocs"}

	a := DeriveNames("my-shop.example.com", cfg)
	b := DeriveNames("MY-SHOP.example.com.", cfg)
	if a != b {
		t.Errorf("Expected names to be case and dot insensitive: %+v vs %+v", a, b)
	}
	if !strings.HasPrefix(a.SystemUser, "myshopexam") || len(a.SystemUser) != 16 {
		t.Errorf("Unexpected system user %q", a.SystemUser)
	}
	if a.DocumentRoot != "/srv/www/"+a.SystemUser+"/htdocs" {
		t.Errorf("Unexpected document root %q", a.DocumentRoot)
	}

	digits := DeriveNames("123.example", cfg)
	if digits.SystemUser[0] != 'u' {
		t.Errorf("Expected user to start with a letter, got %q", digits.SystemUser)
	}
	if DeriveNames("a.example", cfg).SystemUser == DeriveNames("a.example.net", cfg).SystemUser {
		t.Error("Expected different domains to derive different users")
	}
}
