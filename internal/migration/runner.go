// Package migration imports accounts from a remote host. A job is planned
// once into a fixed list of steps which are then executed one at a time;
// step failures are recorded on the step and never abort the job.
package migration

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"go_hostpanel/internal/adapter"
	"go_hostpanel/internal/config"
	"go_hostpanel/internal/errs"
	"go_hostpanel/internal/execx"
	"go_hostpanel/internal/model"
	"go_hostpanel/internal/provisioning"
)

// Store is the persistence the runner needs
type Store interface {
	provisioning.LogStore
	GetService(ctx context.Context, id int) (*model.HostingService, error)
	GetPlan(ctx context.Context, name string) (*model.HostingPlan, error)
	SavePlan(ctx context.Context, plan *model.HostingPlan) error
	FindServiceByDomain(ctx context.Context, domain string) (*model.HostingService, error)

	CreateJob(ctx context.Context, job *model.MigrationJob) error
	GetJob(ctx context.Context, id string) (*model.MigrationJob, error)
	ListJobsByStatus(ctx context.Context, statuses []string, limit int) ([]model.MigrationJob, error)
	UpdateJobStatus(ctx context.Context, id, status string) error
	SaveAccount(ctx context.Context, account *model.MigrationAccount) error
	CreateSteps(ctx context.Context, steps []model.MigrationStep) error
	ListSteps(ctx context.Context, jobID string) ([]model.MigrationStep, error)
	GetStep(ctx context.Context, jobID, stepID string) (*model.MigrationStep, error)
	TransitionStep(ctx context.Context, id string, from []string, to string, mutate func(*model.MigrationStep)) (*model.MigrationStep, error)
}

// Provisioner creates and provisions target services
type Provisioner interface {
	CreateService(ctx context.Context, req provisioning.CreateRequest) (*model.HostingService, error)
	Provision(ctx context.Context, serviceID int, opts provisioning.ProvisionOptions) (*provisioning.ProvisionResult, error)
}

// Notifier receives job progress
type Notifier interface {
	Publish(topic string, payload any)
}

// Option configures a Runner
type Option func(*Runner)

// WithRemote replaces the SSH client used by validate_source_host
func WithRemote(r RemoteShell) Option {
	return func(rn *Runner) { rn.remote = r }
}

// WithNotifier publishes job progress
func WithNotifier(n Notifier) Option {
	return func(rn *Runner) { rn.notifier = n }
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(rn *Runner) { rn.now = now }
}

// Runner plans and executes migration jobs
type Runner struct {
	store       Store
	provisioner Provisioner
	adapters    adapter.Set
	exec        execx.Executor
	remote      RemoteShell
	cfg         config.MigrationConfig
	provCfg     config.ProvisioningConfig
	logger      *logrus.Entry
	notifier    Notifier
	now         func() time.Time
}

// New creates a Runner
func New(store Store, provisioner Provisioner, adapters adapter.Set, executor execx.Executor,
	cfg config.MigrationConfig, provCfg config.ProvisioningConfig, logger *logrus.Entry, opts ...Option) *Runner {
	r := &Runner{
		store:       store,
		provisioner: provisioner,
		adapters:    adapters,
		exec:        executor,
		cfg:         cfg,
		provCfg:     provCfg,
		logger:      logger,
		now:         time.Now,
	}
	r.remote = NewSSHShell(cfg, logger)
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// AccountInput describes one account to import
type AccountInput struct {
	SourceUsername      string          `json:"sourceUsername"`
	SourcePrimaryDomain string          `json:"sourcePrimaryDomain"`
	TargetCustomerID    int             `json:"targetCustomerId"`
	TargetPlanName      string          `json:"targetPlanName"`
	Metadata            AccountMetadata `json:"metadata"`
}

// CreateJobRequest describes a new migration job
type CreateJobRequest struct {
	CustomerID     int            `json:"customerId"`
	SourceType     string         `json:"sourceType"`
	Source         SourceConfig   `json:"sourceConfig"`
	TargetPlanName string         `json:"targetPlanName"`
	DryRun         bool           `json:"dryRun"`
	Accounts       []AccountInput `json:"accounts"`
}

// CreateJob validates and stores a pending job with its accounts
func (r *Runner) CreateJob(ctx context.Context, req CreateJobRequest) (*model.MigrationJob, error) {
	if req.SourceType == "" {
		req.SourceType = model.MigrationSourceLiveSSH
	}
	if req.SourceType != model.MigrationSourceLiveSSH {
		return nil, errs.Newf(errs.KindInvalidArgument, "unsupported source type %q", req.SourceType)
	}
	if req.CustomerID <= 0 {
		return nil, errs.New(errs.KindInvalidArgument, "customerId is required")
	}
	if err := req.Source.Validate(); err != nil {
		return nil, err
	}
	if len(req.Accounts) == 0 {
		return nil, errs.New(errs.KindInvalidArgument, "at least one account is required")
	}

	sourceJSON, err := json.Marshal(req.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal source config: %w", err)
	}
	job := &model.MigrationJob{
		ID:             uuid.NewString(),
		CustomerID:     req.CustomerID,
		SourceType:     req.SourceType,
		Status:         model.MigrationJobPending,
		SourceConfig:   sourceJSON,
		TargetPlanName: req.TargetPlanName,
		DryRun:         req.DryRun,
	}
	for i, in := range req.Accounts {
		if in.SourceUsername == "" || in.SourcePrimaryDomain == "" {
			return nil, errs.Newf(errs.KindInvalidArgument, "account %d needs sourceUsername and sourcePrimaryDomain", i)
		}
		meta, err := json.Marshal(in.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal account metadata: %w", err)
		}
		customer := in.TargetCustomerID
		if customer == 0 {
			customer = req.CustomerID
		}
		job.Accounts = append(job.Accounts, model.MigrationAccount{
			ID:                  uuid.NewString(),
			JobID:               job.ID,
			Seq:                 i,
			SourceUsername:      in.SourceUsername,
			SourcePrimaryDomain: in.SourcePrimaryDomain,
			TargetCustomerID:    customer,
			TargetPlanName:      in.TargetPlanName,
			Metadata:            meta,
		})
	}
	if err := r.store.CreateJob(ctx, job); err != nil {
		return nil, err
	}
	r.logger.WithFields(logrus.Fields{"jobId": job.ID, "accounts": len(job.Accounts)}).Info("migration job created")
	return job, nil
}

// PlanJob creates the job's steps. Planning twice returns the existing steps.
func (r *Runner) PlanJob(ctx context.Context, jobID string) ([]model.MigrationStep, error) {
	job, err := r.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	existing, err := r.store.ListSteps(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return existing, nil
	}
	if job.SourceType != model.MigrationSourceLiveSSH {
		return nil, errs.Newf(errs.KindInvalidArgument, "unsupported source type %q", job.SourceType)
	}

	seq := 0
	newStep := func(name, accountID string, payload map[string]any) model.MigrationStep {
		seq++
		data, _ := json.Marshal(payload)
		return model.MigrationStep{
			ID:        uuid.NewString(),
			JobID:     job.ID,
			AccountID: accountID,
			Seq:       seq,
			Name:      name,
			Status:    model.MigrationStepPending,
			Payload:   data,
		}
	}

	src, err := decodeSource(job)
	if err != nil {
		return nil, err
	}
	steps := []model.MigrationStep{newStep(model.StepValidateSourceHost, "", map[string]any{})}
	for i := range job.Accounts {
		acc := &job.Accounts[i]
		meta, err := decodeMetadata(acc)
		if err != nil {
			return nil, err
		}
		payload := map[string]any{"sourceUsername": acc.SourceUsername, "sourcePrimaryDomain": acc.SourcePrimaryDomain}
		// planned paths; the step result records the ones actually used
		paths := map[string]any{
			"sourcePath": r.sourceHome(src, acc, meta),
			"targetPath": provisioning.DeriveNames(acc.SourcePrimaryDomain, r.provCfg).HomeDir,
		}
		steps = append(steps,
			newStep(model.StepProvisionTargetEnv, acc.ID, payload),
			newStep(model.StepRsyncHomeDirectory, acc.ID, paths),
			newStep(model.StepImportDatabases, acc.ID, payload),
		)
	}
	if err := r.store.CreateSteps(ctx, steps); err != nil {
		return nil, err
	}
	r.logger.WithFields(logrus.Fields{"jobId": job.ID, "steps": len(steps)}).Info("migration job planned")
	return steps, nil
}

// StepReport is the outcome of one RunNextStep or RetryStep call. Waiting
// means nothing was run because another step of the job is still running;
// Step is then that running step.
type StepReport struct {
	Step      *model.MigrationStep `json:"step,omitempty"`
	JobStatus string               `json:"jobStatus"`
	Done      bool                 `json:"done"`
	Waiting   bool                 `json:"waiting,omitempty"`
}

// Terminal reports whether a job status is final
func Terminal(status string) bool {
	switch status {
	case model.MigrationJobCompleted, model.MigrationJobFailed, model.MigrationJobPartial:
		return true
	}
	return false
}

// Aggregate derives a job status from its steps
func Aggregate(steps []model.MigrationStep) string {
	var active, failed, completed bool
	for _, s := range steps {
		switch s.Status {
		case model.MigrationStepPending, model.MigrationStepRunning:
			active = true
		case model.MigrationStepFailed:
			failed = true
		case model.MigrationStepCompleted:
			completed = true
		}
	}
	switch {
	case active:
		return model.MigrationJobRunning
	case failed && completed:
		return model.MigrationJobPartial
	case failed:
		return model.MigrationJobFailed
	default:
		return model.MigrationJobCompleted
	}
}

// RunNextStep executes the oldest pending step of a job. A step whose
// prerequisite failed is marked skipped instead of run. Steps of one job run
// one at a time: while any step is running nothing is started and the
// report is Waiting.
func (r *Runner) RunNextStep(ctx context.Context, jobID string) (*StepReport, error) {
	job, err := r.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	steps, err := r.store.ListSteps(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if len(steps) == 0 {
		return nil, errs.Newf(errs.KindInvalidState, "migration job %s has not been planned", jobID)
	}

	if running := runningStep(steps); running != nil {
		status, err := r.refreshStatus(ctx, job, steps)
		if err != nil {
			return nil, err
		}
		return &StepReport{Step: running, JobStatus: status, Waiting: true}, nil
	}

	var next *model.MigrationStep
	for i := range steps {
		if steps[i].Status == model.MigrationStepPending {
			next = &steps[i]
			break
		}
	}
	if next == nil {
		status, err := r.refreshStatus(ctx, job, steps)
		if err != nil {
			return nil, err
		}
		return &StepReport{JobStatus: status, Done: Terminal(status)}, nil
	}

	var step *model.MigrationStep
	if blocker := blockingStep(steps, next); blocker != nil {
		step, err = r.skip(ctx, next, blocker)
	} else {
		step, err = r.execute(ctx, job, next, []string{model.MigrationStepPending})
	}
	if err != nil {
		return nil, err
	}
	return r.report(ctx, job, step)
}

// RetryStep re-runs one failed or skipped step
func (r *Runner) RetryStep(ctx context.Context, jobID, stepID string) (*StepReport, error) {
	job, err := r.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	target, err := r.store.GetStep(ctx, jobID, stepID)
	if err != nil {
		return nil, err
	}
	retryable := []string{model.MigrationStepFailed, model.MigrationStepSkipped}
	if !containsStatus(retryable, target.Status) {
		return nil, errs.Newf(errs.KindInvalidState, "step %s is %s and cannot be retried", target.ID, target.Status).
			WithDetail("status", target.Status)
	}
	steps, err := r.store.ListSteps(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if running := runningStep(steps); running != nil {
		return nil, errs.Newf(errs.KindInvalidState, "step %s is still running", running.Name).
			WithDetail("runningStepId", running.ID)
	}
	if blocker := blockingStep(steps, target); blocker != nil {
		return nil, errs.Newf(errs.KindInvalidState, "step %s depends on %s which has not completed", target.Name, blocker.Name).
			WithDetail("blockingStepId", blocker.ID)
	}

	step, err := r.execute(ctx, job, target, retryable)
	if err != nil {
		return nil, err
	}
	return r.report(ctx, job, step)
}

// RunToCompletion runs steps until the job is terminal. Each iteration
// settles exactly one step or returns, so the loop ends after at most
// len(steps) iterations. A step left running by another driver (or by a
// crashed process) stops the loop with InvalidState.
func (r *Runner) RunToCompletion(ctx context.Context, jobID string) (string, error) {
	if _, err := r.PlanJob(ctx, jobID); err != nil {
		return "", err
	}
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		report, err := r.RunNextStep(ctx, jobID)
		if err != nil {
			return "", err
		}
		if report.Done {
			return report.JobStatus, nil
		}
		if report.Waiting {
			return report.JobStatus, errs.Newf(errs.KindInvalidState, "migration job %s is waiting on running step %s", jobID, report.Step.Name).
				WithDetail("runningStepId", report.Step.ID)
		}
	}
}

// Describe returns a job with its steps
func (r *Runner) Describe(ctx context.Context, jobID string) (*model.MigrationJob, error) {
	job, err := r.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	steps, err := r.store.ListSteps(ctx, jobID)
	if err != nil {
		return nil, err
	}
	job.Steps = steps
	return job, nil
}

func (r *Runner) report(ctx context.Context, job *model.MigrationJob, step *model.MigrationStep) (*StepReport, error) {
	steps, err := r.store.ListSteps(ctx, job.ID)
	if err != nil {
		return nil, err
	}
	status, err := r.refreshStatus(ctx, job, steps)
	if err != nil {
		return nil, err
	}
	return &StepReport{Step: step, JobStatus: status, Done: Terminal(status)}, nil
}

func (r *Runner) refreshStatus(ctx context.Context, job *model.MigrationJob, steps []model.MigrationStep) (string, error) {
	status := Aggregate(steps)
	if status == job.Status {
		return status, nil
	}
	if err := r.store.UpdateJobStatus(ctx, job.ID, status); err != nil {
		return "", err
	}
	job.Status = status
	if r.notifier != nil {
		r.notifier.Publish("migration.status", map[string]any{"jobId": job.ID, "status": status})
	}
	return status, nil
}

// blockingStep returns the earlier step that prevents s from running:
// a validate_source_host that did not complete, or an earlier step of
// the same account that failed or was skipped.
func blockingStep(steps []model.MigrationStep, s *model.MigrationStep) *model.MigrationStep {
	for i := range steps {
		prev := &steps[i]
		if prev.Seq >= s.Seq {
			break
		}
		if prev.Status != model.MigrationStepFailed && prev.Status != model.MigrationStepSkipped {
			continue
		}
		if prev.Name == model.StepValidateSourceHost || (prev.AccountID != "" && prev.AccountID == s.AccountID) {
			return prev
		}
	}
	return nil
}

func runningStep(steps []model.MigrationStep) *model.MigrationStep {
	for i := range steps {
		if steps[i].Status == model.MigrationStepRunning {
			return &steps[i]
		}
	}
	return nil
}

func (r *Runner) skip(ctx context.Context, s *model.MigrationStep, blocker *model.MigrationStep) (*model.MigrationStep, error) {
	lastErr, _ := json.Marshal(map[string]any{
		"message": "prerequisite step did not complete",
		"details": map[string]any{"blockingStep": blocker.Name, "blockingStepId": blocker.ID},
	})
	now := r.now()
	return r.store.TransitionStep(ctx, s.ID, []string{model.MigrationStepPending}, model.MigrationStepSkipped, func(m *model.MigrationStep) {
		m.LastError = lastErr
		m.FinishedAt = &now
	})
}

// execute moves a step through running to completed or failed
func (r *Runner) execute(ctx context.Context, job *model.MigrationJob, s *model.MigrationStep, from []string) (*model.MigrationStep, error) {
	started := r.now()
	running, err := r.store.TransitionStep(ctx, s.ID, from, model.MigrationStepRunning, func(m *model.MigrationStep) {
		m.LastError = nil
		m.Attempts++
		m.StartedAt = &started
		m.FinishedAt = nil
	})
	if err != nil {
		return nil, err
	}
	if job.Status == model.MigrationJobPending {
		if err := r.store.UpdateJobStatus(ctx, job.ID, model.MigrationJobRunning); err != nil {
			return nil, err
		}
		job.Status = model.MigrationJobRunning
	}

	logger := r.logger.WithFields(logrus.Fields{"jobId": job.ID, "stepId": running.ID, "step": running.Name})
	logger.Info("migration step started")

	result, runErr := r.runHandler(ctx, job, running)

	finished := r.now()
	if runErr != nil {
		lastErr := failurePayload(runErr)
		logger.WithError(runErr).Warn("migration step failed")
		return r.store.TransitionStep(context.WithoutCancel(ctx), running.ID, []string{model.MigrationStepRunning}, model.MigrationStepFailed, func(m *model.MigrationStep) {
			m.LastError = lastErr
			m.FinishedAt = &finished
		})
	}

	logger.Info("migration step completed")
	return r.store.TransitionStep(context.WithoutCancel(ctx), running.ID, []string{model.MigrationStepRunning}, model.MigrationStepCompleted, func(m *model.MigrationStep) {
		m.FinishedAt = &finished
		if len(result) > 0 {
			m.Payload = mergePayload(m.Payload, result)
		}
	})
}

func failurePayload(err error) []byte {
	body := map[string]any{"message": err.Error()}
	if kind := errs.KindOf(err); kind != "" {
		body["kind"] = kind
	}
	if details := errs.DetailsOf(err); details != nil {
		body["details"] = details
	}
	data, mErr := json.Marshal(body)
	if mErr != nil {
		data, _ = json.Marshal(map[string]any{"message": err.Error()})
	}
	return data
}

func mergePayload(payload []byte, result map[string]any) []byte {
	merged := map[string]any{}
	_ = json.Unmarshal(payload, &merged)
	merged["result"] = result
	data, err := json.Marshal(merged)
	if err != nil {
		return payload
	}
	return data
}

func containsStatus(list []string, status string) bool {
	for _, s := range list {
		if s == status {
			return true
		}
	}
	return false
}
