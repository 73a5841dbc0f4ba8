// Package actions registers the governed actions the confirm endpoint can
// run. Every action targets one entity whose id is repeated in the payload
// and must match the intent's target key.
package actions

import (
	"context"
	"encoding/json"
	"strconv"

	"go_hostpanel/internal/errs"
	"go_hostpanel/internal/governance"
	"go_hostpanel/internal/migration"
	"go_hostpanel/internal/model"
	"go_hostpanel/internal/provisioning"
)

const (
	TargetService      = "hosting_service"
	TargetMigrationJob = "migration_job"
)

// Provisioner is the orchestrator surface governed actions call
type Provisioner interface {
	Provision(ctx context.Context, serviceID int, opts provisioning.ProvisionOptions) (*provisioning.ProvisionResult, error)
	Suspend(ctx context.Context, serviceID int) (*model.HostingService, error)
	Resume(ctx context.Context, serviceID int) (*model.HostingService, error)
	SoftDelete(ctx context.Context, serviceID int) (*model.HostingService, error)
	ResetMailboxPassword(ctx context.Context, serviceID int, address string) (string, error)
	ResetDatabasePassword(ctx context.Context, serviceID int) (string, error)
	ResetFTPPassword(ctx context.Context, serviceID int) (string, error)
}

// Migrations is the runner surface governed actions call
type Migrations interface {
	RunToCompletion(ctx context.Context, jobID string) (string, error)
	Describe(ctx context.Context, jobID string) (*model.MigrationJob, error)
}

// ServicePayload is the payload of every hosting_service action
type ServicePayload struct {
	ServiceID int    `json:"serviceId"`
	DryRun    bool   `json:"dryRun,omitempty"`
	Address   string `json:"address,omitempty"`
}

// JobPayload is the payload of migration_job actions
type JobPayload struct {
	JobID string `json:"jobId"`
}

// Register adds the hosting, credential and migration actions. migrations
// may be nil.
func Register(reg *governance.Registry, prov Provisioner, migrations Migrations) {
	for _, a := range serviceActions(prov) {
		reg.Register(a)
	}
	if migrations != nil {
		reg.Register(migrationRun(migrations))
	}
}

func decodeService(raw json.RawMessage) (ServicePayload, error) {
	var p ServicePayload
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &p); err != nil {
			return p, errs.Wrap(errs.KindInvalidArgument, "invalid payload", err)
		}
	}
	if p.ServiceID <= 0 {
		return p, errs.New(errs.KindInvalidArgument, "payload.serviceId is required")
	}
	return p, nil
}

func checkTarget(targetKey, id string) error {
	if targetKey != id {
		return errs.Newf(errs.KindInvalidArgument, "targetKey %q does not match payload id %s", targetKey, id).
			WithDetail("targetKey", targetKey)
	}
	return nil
}

func validateService(req governance.PrepareRequest) error {
	p, err := decodeService(req.Payload)
	if err != nil {
		return err
	}
	return checkTarget(req.TargetKey, strconv.Itoa(p.ServiceID))
}

// servicePayloadOf re-checks the stored payload against the intent
func servicePayloadOf(intent *model.ActionIntent) (ServicePayload, error) {
	p, err := decodeService(json.RawMessage(intent.Payload))
	if err != nil {
		return p, err
	}
	return p, checkTarget(intent.TargetKey, strconv.Itoa(p.ServiceID))
}

type serviceRun func(ctx context.Context, p ServicePayload) (*governance.Outcome, error)

func serviceAction(module, action, risk, reversibility string, subsystems []string, run serviceRun) governance.GovernedAction {
	return governance.GovernedAction{
		Module:             module,
		Action:             action,
		TargetKind:         TargetService,
		Risk:               risk,
		Reversibility:      reversibility,
		ImpactedSubsystems: subsystems,
		Validate:           validateService,
		Run: func(ctx context.Context, intent *model.ActionIntent) (*governance.Outcome, error) {
			p, err := servicePayloadOf(intent)
			if err != nil {
				return nil, err
			}
			return run(ctx, p)
		},
	}
}

// transition wraps a single status change into a one-step outcome
func transition(name string, fn func(ctx context.Context, id int) (*model.HostingService, error)) serviceRun {
	return func(ctx context.Context, p ServicePayload) (*governance.Outcome, error) {
		svc, err := fn(ctx, p.ServiceID)
		if err != nil {
			return nil, err
		}
		return &governance.Outcome{
			Steps:  []governance.Step{{Name: name, Status: governance.StatusSuccess}},
			Result: map[string]any{"serviceId": svc.ID, "status": svc.Status},
		}, nil
	}
}

// credential wraps a password reset. The new secret is only ever
// returned in the envelope.
func credential(name string, fn func(ctx context.Context, p ServicePayload) (string, error)) serviceRun {
	return func(ctx context.Context, p ServicePayload) (*governance.Outcome, error) {
		password, err := fn(ctx, p)
		if err != nil {
			return nil, err
		}
		return &governance.Outcome{
			Steps:  []governance.Step{{Name: name, Status: governance.StatusSuccess}},
			Result: map[string]any{"serviceId": p.ServiceID, "password": password},
		}, nil
	}
}

func serviceActions(prov Provisioner) []governance.GovernedAction {
	all := []string{"user", "webserver", "php_fpm", "mysql", "dns", "mail", "ftp"}
	return []governance.GovernedAction{
		serviceAction("hosting", "provision", model.RiskMedium, model.ReversibilityReversible, all,
			func(ctx context.Context, p ServicePayload) (*governance.Outcome, error) {
				res, err := prov.Provision(ctx, p.ServiceID, provisioning.ProvisionOptions{DryRun: p.DryRun})
				if res == nil {
					return nil, err
				}
				// a failed run still reports the steps up to the failing one
				steps := make([]governance.Step, 0, len(res.Steps))
				for _, s := range res.Steps {
					steps = append(steps, governance.Step{Name: s.Name, Status: s.Status, Details: s.Details, ErrorMessage: s.Error})
				}
				out := &governance.Outcome{Steps: steps}
				if err == nil {
					out.Result = res
				}
				return out, err
			}),
		serviceAction("hosting", "suspend", model.RiskMedium, model.ReversibilityReversible,
			[]string{"user", "webserver"}, transition("suspend", prov.Suspend)),
		serviceAction("hosting", "resume", model.RiskLow, model.ReversibilityReversible,
			[]string{"user", "webserver"}, transition("resume", prov.Resume)),
		serviceAction("hosting", "soft_delete", model.RiskHigh, model.ReversibilityRequiresRestore,
			[]string{"user", "webserver", "mysql", "mail", "ftp"}, transition("soft_delete", prov.SoftDelete)),
		serviceAction("mail", "reset_password", model.RiskMedium, model.ReversibilityIrreversible,
			[]string{"mail"}, credential("rotate_mailbox_password", func(ctx context.Context, p ServicePayload) (string, error) {
				if p.Address == "" {
					return "", errs.New(errs.KindInvalidArgument, "payload.address is required")
				}
				return prov.ResetMailboxPassword(ctx, p.ServiceID, p.Address)
			})),
		serviceAction("mysql", "reset_password", model.RiskMedium, model.ReversibilityIrreversible,
			[]string{"mysql"}, credential("rotate_mysql_password", func(ctx context.Context, p ServicePayload) (string, error) {
				return prov.ResetDatabasePassword(ctx, p.ServiceID)
			})),
		serviceAction("ftp", "reset_password", model.RiskMedium, model.ReversibilityIrreversible,
			[]string{"ftp"}, credential("rotate_ftp_password", func(ctx context.Context, p ServicePayload) (string, error) {
				return prov.ResetFTPPassword(ctx, p.ServiceID)
			})),
	}
}

func validateJob(req governance.PrepareRequest) error {
	var p JobPayload
	if len(req.Payload) > 0 {
		if err := json.Unmarshal(req.Payload, &p); err != nil {
			return errs.Wrap(errs.KindInvalidArgument, "invalid payload", err)
		}
	}
	if p.JobID == "" {
		return errs.New(errs.KindInvalidArgument, "payload.jobId is required")
	}
	return checkTarget(req.TargetKey, p.JobID)
}

// migrationRun drives a job to a terminal status. partial and failed jobs
// map onto the envelope status instead of an error.
func migrationRun(m Migrations) governance.GovernedAction {
	return governance.GovernedAction{
		Module:             "migration",
		Action:             "run",
		TargetKind:         TargetMigrationJob,
		Risk:               model.RiskHigh,
		Reversibility:      model.ReversibilityRequiresRestore,
		ImpactedSubsystems: []string{"user", "webserver", "php_fpm", "mysql", "dns", "filesystem"},
		Validate:           validateJob,
		Run: func(ctx context.Context, intent *model.ActionIntent) (*governance.Outcome, error) {
			var p JobPayload
			if err := governance.DecodePayload(intent, &p); err != nil {
				return nil, err
			}
			if err := checkTarget(intent.TargetKey, p.JobID); err != nil {
				return nil, err
			}
			status, err := m.RunToCompletion(ctx, p.JobID)
			if err != nil {
				return nil, err
			}
			job, err := m.Describe(ctx, p.JobID)
			if err != nil {
				return nil, err
			}

			out := &governance.Outcome{Result: job}
			switch status {
			case model.MigrationJobCompleted:
				out.Status = governance.StatusSuccess
			case model.MigrationJobPartial:
				out.Status = governance.StatusPartialSuccess
			default:
				out.Status = governance.StatusFailed
			}
			for _, s := range job.Steps {
				step := governance.Step{Name: s.Name, Status: s.Status}
				if len(s.LastError) > 0 {
					step.ErrorMessage = string(s.LastError)
				}
				out.Steps = append(out.Steps, step)
			}
			return out, nil
		},
	}
}

var _ Migrations = (*migration.Runner)(nil)
var _ Provisioner = (*provisioning.Orchestrator)(nil)
