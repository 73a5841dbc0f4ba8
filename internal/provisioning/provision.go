package provisioning

import (
	"context"
	"fmt"

	"go_hostpanel/internal/adapter"
	"go_hostpanel/internal/errs"
	"go_hostpanel/internal/model"
)

type pipelineStep struct {
	name       string
	adapter    string
	targetKind string
	targetKey  string
	skipReason string
	run        func(ctx context.Context, rc *adapter.Context) (adapter.Result, error)
}

// checkReadiness resolves every executable the pipeline will call
func (o *Orchestrator) checkReadiness(ctx context.Context, plan *model.HostingPlan) error {
	tools := []string{
		o.cfg.Tools.UserAdd,
		o.cfg.Tools.UserMod,
		o.cfg.Tools.UserDel,
		o.cfg.Tools.Nginx,
		o.cfg.Tools.PHPFPM,
		o.cfg.Tools.MySQL,
	}
	if o.mailEnabled(plan) {
		tools = append(tools, o.cfg.MailCmd)
	}
	if o.ftpEnabled(plan) {
		tools = append(tools, o.cfg.FTPCmd)
	}
	for _, tool := range tools {
		if tool == "" {
			continue
		}
		if _, err := o.adapters.Tools.LookPath(tool); err != nil {
			if errs.IsKind(err, errs.KindToolNotFound) {
				return err
			}
			return errs.Wrap(errs.KindToolNotFound, tool, err).WithDetail("tool", tool)
		}
	}
	return nil
}

// Provision runs the pipeline for a service in provisioning or error.
// An active service is returned unchanged.
func (o *Orchestrator) Provision(ctx context.Context, serviceID int, opts ProvisionOptions) (*ProvisionResult, error) {
	svc, err := o.store.GetService(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	if svc.Status == model.ServiceStatusActive {
		return &ProvisionResult{Service: svc, AlreadyDone: true}, nil
	}
	allowed := []string{model.ServiceStatusProvisioning, model.ServiceStatusError}
	if !containsStatus(allowed, svc.Status) {
		return nil, errs.Newf(errs.KindInvalidState, "service %d is %s and cannot be provisioned", svc.ID, svc.Status).
			WithDetail("status", svc.Status)
	}

	plan, err := o.store.GetPlan(ctx, svc.PlanName)
	if err != nil {
		return nil, err
	}

	if err := o.checkReadiness(ctx, plan); err != nil {
		if !opts.DryRun && !o.cfg.DryRun {
			o.markError(ctx, svc.ID, err)
		}
		return nil, err
	}

	quotaMB := plan.DiskQuotaMB
	if quotaMB > 0 && !o.adapters.Tools.QuotaSupported(ctx) {
		o.logger.WithField("serviceId", svc.ID).Warn("disk quota not supported on this host, continuing without it")
		quotaMB = 0
	}

	names := DeriveNames(svc.PrimaryDomain, o.cfg)
	rc := o.newContext(svc, opts.DryRun, opts.TraceID)
	if !rc.DryRun {
		svc, err = o.store.TransitionService(ctx, svc.ID, allowed, model.ServiceStatusProvisioning, func(h *model.HostingService) {
			h.SystemUser = names.SystemUser
			h.HomeDir = names.HomeDir
			h.DocumentRoot = names.DocumentRoot
			h.MySQLUser = names.MySQLUser
			h.PHPPool = names.PHPPool
			h.PHPVersion = o.phpVersion(plan)
			h.LastError = ""
		})
		if err != nil {
			return nil, err
		}
	}

	credentials := map[string]string{}
	steps, err := o.buildPipeline(svc, plan, names, quotaMB, credentials)
	if err != nil {
		return nil, err
	}

	result := &ProvisionResult{Service: svc, DryRun: rc.DryRun}
	var stack adapter.RollbackStack
	for _, step := range steps {
		if step.skipReason != "" {
			details := map[string]any{"action": "skipped", "reason": step.skipReason}
			rc.Log(ctx, adapter.LogEntry{
				Adapter:    step.adapter,
				Operation:  adapter.OpCreate,
				TargetKind: step.targetKind,
				TargetKey:  step.targetKey,
				Success:    true,
				Details:    details,
			})
			result.Steps = append(result.Steps, StepOutcome{Name: step.name, Status: OutcomeSkipped, Details: details})
			continue
		}

		o.logStep(ctx, rc, step, "begin", nil)
		res, stepErr := o.runStep(ctx, rc, step)
		if stepErr != nil {
			o.logStep(ctx, rc, step, "end", stepErr)
			result.Steps = append(result.Steps, StepOutcome{Name: step.name, Status: OutcomeFailed, Error: stepErr.Error()})
			return result, o.fail(ctx, rc, svc, &stack, step.name, stepErr)
		}
		stack.Push(res.Rollback)
		o.logStep(ctx, rc, step, "end", nil)
		result.Steps = append(result.Steps, StepOutcome{Name: step.name, Status: OutcomeCompleted, Details: res.Details})
	}

	if rc.DryRun {
		return result, nil
	}

	mail, ftp := o.mailEnabled(plan), o.ftpEnabled(plan)
	svc, err = o.store.TransitionService(ctx, svc.ID, []string{model.ServiceStatusProvisioning}, model.ServiceStatusActive, func(h *model.HostingService) {
		h.MailEnabled = mail
		if ftp {
			h.FTPUser = names.FTPUser
		}
	})
	if err != nil {
		return result, err
	}
	o.notify(svc)
	result.Service = svc
	result.Credentials = credentials
	return result, nil
}

func (o *Orchestrator) runStep(ctx context.Context, rc *adapter.Context, step pipelineStep) (adapter.Result, error) {
	if err := ctx.Err(); err != nil {
		return adapter.Result{}, err
	}
	return step.run(ctx, rc)
}

func (o *Orchestrator) logStep(ctx context.Context, rc *adapter.Context, step pipelineStep, phase string, err error) {
	entry := adapter.LogEntry{
		Adapter:    step.adapter,
		Operation:  adapter.OpCreate,
		TargetKind: step.targetKind,
		TargetKey:  step.targetKey,
		Success:    err == nil,
		Details:    map[string]any{"step": step.name, "phase": phase},
	}
	if err != nil {
		entry.ErrorMessage = err.Error()
	}
	rc.Log(ctx, entry)
}

// fail unwinds the rollback stack and moves the service to error. The
// step error is returned; rollback failures only show up in the log.
func (o *Orchestrator) fail(ctx context.Context, rc *adapter.Context, svc *model.HostingService, stack *adapter.RollbackStack, step string, stepErr error) error {
	unwindCtx := context.WithoutCancel(ctx)
	outcomes := stack.Unwind(unwindCtx, rc)

	var rollbackFailures []string
	for _, out := range outcomes {
		if out.Err != nil {
			rollbackFailures = append(rollbackFailures, fmt.Sprintf("%s: %v", out.Rollback.Kind, out.Err))
		}
	}

	err := errs.Wrap(errs.KindAdapterApplyFailed, fmt.Sprintf("provisioning step %s failed", step), stepErr).
		WithDetail("step", step).
		WithDetail("rolledBack", len(outcomes))
	if len(rollbackFailures) > 0 {
		err.WithDetail("rollbackFailures", rollbackFailures)
	}

	if !rc.DryRun {
		o.markError(unwindCtx, svc.ID, err)
	}
	return err
}

func (o *Orchestrator) markError(ctx context.Context, serviceID int, cause error) {
	svc, err := o.store.TransitionService(ctx, serviceID, nil, model.ServiceStatusError, func(h *model.HostingService) {
		h.LastError = cause.Error()
	})
	if err != nil {
		o.logger.WithError(err).WithField("serviceId", serviceID).Error("failed to record provisioning error")
		return
	}
	o.notify(svc)
}

func (o *Orchestrator) buildPipeline(svc *model.HostingService, plan *model.HostingPlan, names Names, quotaMB int, credentials map[string]string) ([]pipelineStep, error) {
	a := o.adapters
	domain := svc.PrimaryDomain
	phpVersion := o.phpVersion(plan)
	socket := o.phpSocket(names.PHPPool)

	mysqlPassword, err := newPassword()
	if err != nil {
		return nil, err
	}

	steps := []pipelineStep{
		{
			name: StepUser, adapter: adapter.NameUser, targetKind: "user", targetKey: names.SystemUser,
			run: func(ctx context.Context, rc *adapter.Context) (adapter.Result, error) {
				return a.Users.EnsureUserPresent(ctx, rc, adapter.UserSpec{
					Username:    names.SystemUser,
					HomeDir:     names.HomeDir,
					Shell:       o.cfg.LoginShell,
					DiskQuotaMB: quotaMB,
				})
			},
		},
		{
			name: StepDocumentRoot, adapter: adapter.NameDocRoot, targetKind: "document_root", targetKey: names.DocumentRoot,
			run: func(ctx context.Context, rc *adapter.Context) (adapter.Result, error) {
				return a.Users.EnsureDocumentRoot(ctx, rc, adapter.DocRootSpec{Path: names.DocumentRoot, Owner: names.SystemUser})
			},
		},
		{
			name: StepPHPFPMPool, adapter: adapter.NamePHPFPM, targetKind: "php_fpm_pool", targetKey: names.PHPPool,
			run: func(ctx context.Context, rc *adapter.Context) (adapter.Result, error) {
				return a.PHP.EnsurePoolPresent(ctx, rc, adapter.PoolSpec{
					Name:       names.PHPPool,
					Username:   names.SystemUser,
					PHPVersion: phpVersion,
					Socket:     socket,
					HomeDir:    names.HomeDir,
				})
			},
		},
		{
			name: StepVhost, adapter: adapter.NameWeb, targetKind: "vhost", targetKey: domain,
			run: func(ctx context.Context, rc *adapter.Context) (adapter.Result, error) {
				return a.Web.EnsureVhostPresent(ctx, rc, adapter.VhostSpec{
					Domain:       domain,
					DocumentRoot: names.DocumentRoot,
					PHPSocket:    socket,
					Username:     names.SystemUser,
				})
			},
		},
		{
			name: StepMySQLAccount, adapter: adapter.NameMySQL, targetKind: "mysql_account", targetKey: names.MySQLUser,
			run: func(ctx context.Context, rc *adapter.Context) (adapter.Result, error) {
				res, err := a.MySQL.EnsureAccountPresent(ctx, rc, adapter.MySQLAccountSpec{Username: names.MySQLUser, Password: mysqlPassword})
				if err == nil {
					credentials["mysql:"+names.MySQLUser] = mysqlPassword
				}
				return res, err
			},
		},
		{
			name: StepDNSZone, adapter: adapter.NameDNS, targetKind: "dns_zone", targetKey: domain,
			run: func(ctx context.Context, rc *adapter.Context) (adapter.Result, error) {
				return a.DNS.EnsureZonePresent(ctx, rc, adapter.ZoneSpec{Zone: domain, Records: o.DefaultRecords()})
			},
		},
	}

	mailStep := pipelineStep{name: StepMailbox, adapter: adapter.NameMail, targetKind: "mailbox", targetKey: postmaster(domain)}
	if o.mailEnabled(plan) {
		mailPassword, err := newPassword()
		if err != nil {
			return nil, err
		}
		mailStep.run = func(ctx context.Context, rc *adapter.Context) (adapter.Result, error) {
			res, err := a.Mail.EnsureMailboxPresent(ctx, rc, adapter.MailboxSpec{
				Address:  postmaster(domain),
				Password: mailPassword,
				QuotaMB:  plan.MailboxQuotaMB,
			})
			if err == nil {
				credentials["mailbox:"+postmaster(domain)] = mailPassword
			}
			return res, err
		}
	} else {
		mailStep.skipReason = ReasonMailNotConfigured
	}
	steps = append(steps, mailStep)

	ftpStep := pipelineStep{name: StepFTPAccount, adapter: adapter.NameFTP, targetKind: "ftp_account", targetKey: names.FTPUser}
	if o.ftpEnabled(plan) {
		ftpPassword, err := newPassword()
		if err != nil {
			return nil, err
		}
		ftpStep.run = func(ctx context.Context, rc *adapter.Context) (adapter.Result, error) {
			res, err := a.FTP.EnsureFTPAccountPresent(ctx, rc, adapter.FTPAccountSpec{
				Username:   names.FTPUser,
				Password:   ftpPassword,
				HomeDir:    names.HomeDir,
				SystemUser: names.SystemUser,
			})
			if err == nil {
				credentials["ftp:"+names.FTPUser] = ftpPassword
			}
			return res, err
		}
	} else {
		ftpStep.skipReason = ReasonFTPNotConfigured
	}
	steps = append(steps, ftpStep)

	return steps, nil
}

func containsStatus(allowed []string, status string) bool {
	for _, s := range allowed {
		if s == status {
			return true
		}
	}
	return false
}
