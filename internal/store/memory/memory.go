// Package memory is an in-process implementation of store.Store used by
// STORE_DRIVER=memory and by tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"go_hostpanel/internal/errs"
	"go_hostpanel/internal/model"
	"go_hostpanel/internal/store"
)

// Store keeps every table in maps guarded by one mutex. Values are copied
// on the way in and out so callers never share state with the store.
type Store struct {
	mu sync.Mutex

	nextServiceID int
	nextLogID     int64
	nextAuditID   int64

	services map[int]model.HostingService
	plans    map[string]model.HostingPlan
	logs     []model.HostingLog
	intents  map[string]model.ActionIntent
	audit    []model.AuditLogEntry
	jobs     map[string]model.MigrationJob
	accounts map[string]model.MigrationAccount
	steps    map[string]model.MigrationStep
}

var _ store.Store = (*Store)(nil)

// New creates an empty store
func New() *Store {
	return &Store{
		services: make(map[int]model.HostingService),
		plans:    make(map[string]model.HostingPlan),
		intents:  make(map[string]model.ActionIntent),
		jobs:     make(map[string]model.MigrationJob),
		accounts: make(map[string]model.MigrationAccount),
		steps:    make(map[string]model.MigrationStep),
	}
}

func notFound(what string, key any) error {
	return errs.Newf(errs.KindNotFound, "%s %v not found", what, key)
}

func (s *Store) GetService(ctx context.Context, id int) (*model.HostingService, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	svc, ok := s.services[id]
	if !ok {
		return nil, notFound("service", id)
	}
	return &svc, nil
}

func (s *Store) FindServiceByDomain(ctx context.Context, domain string) (*model.HostingService, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, svc := range s.services {
		if svc.PrimaryDomain == domain {
			out := svc
			return &out, nil
		}
	}
	return nil, notFound("service", domain)
}

func (s *Store) ListServices(ctx context.Context, customerID int) ([]model.HostingService, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.HostingService
	for _, svc := range s.services {
		if customerID == 0 || svc.CustomerID == customerID {
			out = append(out, svc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) CreateService(ctx context.Context, svc *model.HostingService) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.services {
		if existing.PrimaryDomain == svc.PrimaryDomain {
			return errs.Newf(errs.KindAlreadyExists, "domain %s already has a service", svc.PrimaryDomain)
		}
	}
	s.nextServiceID++
	now := time.Now()
	svc.ID = s.nextServiceID
	svc.CreatedAt, svc.UpdatedAt = now, now
	if svc.Status == "" {
		svc.Status = model.ServiceStatusProvisioning
	}
	s.services[svc.ID] = *svc
	return nil
}

func (s *Store) TransitionService(ctx context.Context, id int, from []string, to string, mutate func(*model.HostingService)) (*model.HostingService, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	svc, ok := s.services[id]
	if !ok {
		return nil, notFound("service", id)
	}
	if len(from) > 0 && !store.Contains(from, svc.Status) {
		return nil, store.StaleStatus("service", id, svc.Status, from)
	}
	if mutate != nil {
		mutate(&svc)
	}
	if to != "" {
		svc.Status = to
	}
	svc.UpdatedAt = time.Now()
	s.services[id] = svc
	return &svc, nil
}

func (s *Store) DeleteService(ctx context.Context, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.services, id)
	return nil
}

func (s *Store) GetPlan(ctx context.Context, name string) (*model.HostingPlan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	plan, ok := s.plans[name]
	if !ok {
		return nil, notFound("plan", name)
	}
	return &plan, nil
}

func (s *Store) SavePlan(ctx context.Context, plan *model.HostingPlan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if plan.CreatedAt.IsZero() {
		plan.CreatedAt = now
	}
	plan.UpdatedAt = now
	s.plans[plan.Name] = *plan
	return nil
}

func (s *Store) AppendHostingLog(ctx context.Context, entry *model.HostingLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextLogID++
	entry.ID = s.nextLogID
	entry.CreatedAt = time.Now()
	s.logs = append(s.logs, *entry)
	return nil
}

func (s *Store) ListHostingLogs(ctx context.Context, serviceID int, limit int) ([]model.HostingLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.HostingLog
	for _, entry := range s.logs {
		if entry.ServiceID != serviceID {
			continue
		}
		out = append(out, entry)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Store) CreateIntent(ctx context.Context, intent *model.ActionIntent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	intent.CreatedAt, intent.UpdatedAt = now, now
	s.intents[intent.ID] = *intent
	return nil
}

func (s *Store) GetIntent(ctx context.Context, id string) (*model.ActionIntent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	intent, ok := s.intents[id]
	if !ok {
		return nil, notFound("intent", id)
	}
	return &intent, nil
}

func (s *Store) TransitionIntent(ctx context.Context, id string, from, to string, mutate func(*model.ActionIntent)) (*model.ActionIntent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	intent, ok := s.intents[id]
	if !ok {
		return nil, notFound("intent", id)
	}
	if intent.Status != from {
		return nil, store.StaleStatus("intent", id, intent.Status, []string{from})
	}
	if mutate != nil {
		mutate(&intent)
	}
	intent.Status = to
	intent.UpdatedAt = time.Now()
	s.intents[id] = intent
	return &intent, nil
}

func (s *Store) AppendAudit(ctx context.Context, entry *model.AuditLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextAuditID++
	entry.ID = s.nextAuditID
	entry.CreatedAt = time.Now()
	s.audit = append(s.audit, *entry)
	return nil
}

func (s *Store) ListAudit(ctx context.Context, intentID string) ([]model.AuditLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.AuditLogEntry
	for _, entry := range s.audit {
		if entry.IntentID == intentID {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (s *Store) CreateJob(ctx context.Context, job *model.MigrationJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	job.CreatedAt, job.UpdatedAt = now, now
	if job.Status == "" {
		job.Status = model.MigrationJobPending
	}
	for i := range job.Accounts {
		job.Accounts[i].JobID = job.ID
		job.Accounts[i].CreatedAt, job.Accounts[i].UpdatedAt = now, now
		s.accounts[job.Accounts[i].ID] = job.Accounts[i]
	}
	stored := *job
	stored.Accounts, stored.Steps = nil, nil
	s.jobs[job.ID] = stored
	return nil
}

func (s *Store) GetJob(ctx context.Context, id string) (*model.MigrationJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, notFound("migration job", id)
	}
	for _, acc := range s.accounts {
		if acc.JobID == id {
			job.Accounts = append(job.Accounts, acc)
		}
	}
	sort.Slice(job.Accounts, func(i, j int) bool { return job.Accounts[i].Seq < job.Accounts[j].Seq })
	return &job, nil
}

func (s *Store) ListJobsByStatus(ctx context.Context, statuses []string, limit int) ([]model.MigrationJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.MigrationJob
	for _, job := range s.jobs {
		if store.Contains(statuses, job.Status) {
			out = append(out, job)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) UpdateJobStatus(ctx context.Context, id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return notFound("migration job", id)
	}
	job.Status = status
	job.UpdatedAt = time.Now()
	s.jobs[id] = job
	return nil
}

func (s *Store) SaveAccount(ctx context.Context, account *model.MigrationAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	account.UpdatedAt = time.Now()
	s.accounts[account.ID] = *account
	return nil
}

func (s *Store) CreateSteps(ctx context.Context, steps []model.MigrationStep) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for _, step := range steps {
		step.CreatedAt, step.UpdatedAt = now, now
		s.steps[step.ID] = step
	}
	return nil
}

func (s *Store) ListSteps(ctx context.Context, jobID string) ([]model.MigrationStep, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.MigrationStep
	for _, step := range s.steps {
		if step.JobID == jobID {
			out = append(out, step)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func (s *Store) GetStep(ctx context.Context, jobID, stepID string) (*model.MigrationStep, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	step, ok := s.steps[stepID]
	if !ok || step.JobID != jobID {
		return nil, notFound("migration step", stepID)
	}
	return &step, nil
}

func (s *Store) TransitionStep(ctx context.Context, id string, from []string, to string, mutate func(*model.MigrationStep)) (*model.MigrationStep, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	step, ok := s.steps[id]
	if !ok {
		return nil, notFound("migration step", id)
	}
	if !store.Contains(from, step.Status) {
		return nil, store.StaleStatus("migration step", id, step.Status, from)
	}
	if mutate != nil {
		mutate(&step)
	}
	step.Status = to
	step.UpdatedAt = time.Now()
	s.steps[id] = step
	return &step, nil
}
