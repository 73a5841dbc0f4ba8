// Package provisioning drives a hosting service through its lifecycle by
// calling resource adapters in a fixed order. A failed pipeline step
// unwinds every earlier step in reverse and leaves the service in error.
package provisioning

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/miekg/dns"
	"github.com/sirupsen/logrus"

	"go_hostpanel/internal/adapter"
	"go_hostpanel/internal/auth"
	"go_hostpanel/internal/config"
	"go_hostpanel/internal/errs"
	"go_hostpanel/internal/model"
)

// Pipeline step names, in execution order
const (
	StepUser         = "user"
	StepDocumentRoot = "document_root"
	StepPHPFPMPool   = "php_fpm_pool"
	StepVhost        = "vhost"
	StepMySQLAccount = "mysql_account"
	StepDNSZone      = "dns_zone"
	StepMailbox      = "mailbox"
	StepFTPAccount   = "ftp_account"
)

// Skip reasons recorded in log entries
const (
	ReasonMailNotConfigured = "mail_cmd_not_configured"
	ReasonFTPNotConfigured  = "ftp_cmd_not_configured"
)

// Step outcome values
const (
	OutcomeCompleted = "completed"
	OutcomeSkipped   = "skipped"
	OutcomeFailed    = "failed"
)

const defaultPHPVersion = "8.2"

// Store is the persistence the orchestrator needs
type Store interface {
	LogStore
	GetService(ctx context.Context, id int) (*model.HostingService, error)
	FindServiceByDomain(ctx context.Context, domain string) (*model.HostingService, error)
	CreateService(ctx context.Context, svc *model.HostingService) error
	TransitionService(ctx context.Context, id int, from []string, to string, mutate func(*model.HostingService)) (*model.HostingService, error)
	DeleteService(ctx context.Context, id int) error
	GetPlan(ctx context.Context, name string) (*model.HostingPlan, error)
}

// Notifier receives service status changes
type Notifier interface {
	Publish(topic string, payload any)
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithNotifier publishes status changes
func WithNotifier(n Notifier) Option {
	return func(o *Orchestrator) { o.notifier = n }
}

// Orchestrator runs provisioning pipelines
type Orchestrator struct {
	store    Store
	adapters adapter.Set
	cfg      config.ProvisioningConfig
	logger   *logrus.Entry
	now      func() time.Time
	notifier Notifier
}

// New creates an Orchestrator
func New(store Store, adapters adapter.Set, cfg config.ProvisioningConfig, logger *logrus.Entry, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:    store,
		adapters: adapters,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// StepOutcome reports one pipeline or teardown step
type StepOutcome struct {
	Name    string         `json:"name"`
	Status  string         `json:"status"`
	Details map[string]any `json:"details,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// ProvisionOptions tune one Provision call
type ProvisionOptions struct {
	DryRun  bool
	TraceID string
}

// ProvisionResult is returned by Provision. Credentials holds the
// generated secrets; they are not stored anywhere else.
type ProvisionResult struct {
	Service     *model.HostingService `json:"service"`
	Steps       []StepOutcome         `json:"steps"`
	Credentials map[string]string     `json:"credentials,omitempty"`
	DryRun      bool                  `json:"dryRun"`
	AlreadyDone bool                  `json:"alreadyActive,omitempty"`
}

// CreateRequest describes a new hosting service
type CreateRequest struct {
	CustomerID    int
	PrimaryDomain string
	PlanName      string
}

// CreateService validates and stores a service in status provisioning
func (o *Orchestrator) CreateService(ctx context.Context, req CreateRequest) (*model.HostingService, error) {
	domain := strings.ToLower(strings.TrimSuffix(strings.TrimSpace(req.PrimaryDomain), "."))
	if _, ok := dns.IsDomainName(domain); !ok || !strings.Contains(domain, ".") {
		return nil, errs.Newf(errs.KindInvalidArgument, "invalid primary domain %q", req.PrimaryDomain)
	}
	if req.CustomerID <= 0 {
		return nil, errs.New(errs.KindInvalidArgument, "customerId is required")
	}
	if _, err := o.store.GetPlan(ctx, req.PlanName); err != nil {
		return nil, err
	}

	svc := &model.HostingService{
		CustomerID:    req.CustomerID,
		PrimaryDomain: domain,
		PlanName:      req.PlanName,
		Status:        model.ServiceStatusProvisioning,
	}
	if err := o.store.CreateService(ctx, svc); err != nil {
		return nil, err
	}
	o.notify(svc)
	return svc, nil
}

func (o *Orchestrator) notify(svc *model.HostingService) {
	if o.notifier == nil || svc == nil {
		return
	}
	o.notifier.Publish("service.status", map[string]any{
		"serviceId": svc.ID,
		"domain":    svc.PrimaryDomain,
		"status":    svc.Status,
	})
}

func (o *Orchestrator) newContext(svc *model.HostingService, dryRun bool, traceID string) *adapter.Context {
	if traceID == "" {
		traceID = uuid.NewString()
	}
	logger := o.logger.WithFields(logrus.Fields{"serviceId": svc.ID, "domain": svc.PrimaryDomain})
	return &adapter.Context{
		DryRun:    dryRun || o.cfg.DryRun,
		ServiceID: strconv.Itoa(svc.ID),
		TraceID:   traceID,
		Sink:      NewServiceLogger(o.store, svc.ID, traceID, logger),
		Logger:    logger,
	}
}

func newPassword() (string, error) {
	return auth.NewSecret(16)
}

func postmaster(domain string) string {
	return "postmaster@" + domain
}

func (o *Orchestrator) phpVersion(plan *model.HostingPlan) string {
	if plan.PHPVersion != "" {
		return plan.PHPVersion
	}
	return defaultPHPVersion
}

func (o *Orchestrator) phpSocket(pool string) string {
	dir := o.cfg.Paths.PHPFPMSocketDir
	if dir == "" {
		dir = "/run/php"
	}
	return dir + "/" + pool + ".sock"
}

func (o *Orchestrator) mailEnabled(plan *model.HostingPlan) bool {
	return plan.MaxMailboxes > 0 && o.cfg.MailCmd != ""
}

func (o *Orchestrator) ftpEnabled(plan *model.HostingPlan) bool {
	return plan.MaxFTPAccounts > 0 && o.cfg.FTPCmd != ""
}

// DefaultRecords are the records every new zone starts with
func (o *Orchestrator) DefaultRecords() []adapter.ZoneRecord {
	ip := o.cfg.DefaultIPv4
	return []adapter.ZoneRecord{
		{Name: "@", Type: "A", Value: ip},
		{Name: "www", Type: "A", Value: ip},
		{Name: "mail", Type: "A", Value: ip},
		{Name: "@", Type: "MX", Value: "mail", Priority: 10},
		{Name: "@", Type: "TXT", Value: "v=spf1 a mx ~all"},
	}
}
