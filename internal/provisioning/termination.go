package provisioning

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go_hostpanel/internal/adapter"
	"go_hostpanel/internal/auth"
	"go_hostpanel/internal/errs"
	"go_hostpanel/internal/model"
)

const terminationTokenBytes = 32

// TerminationTicket carries the plaintext token exactly once
type TerminationTicket struct {
	ServiceID int       `json:"serviceId"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// TerminationResult reports a confirmed termination
type TerminationResult struct {
	Service  *model.HostingService `json:"service"`
	Steps    []StepOutcome         `json:"steps"`
	Snapshot map[string]any        `json:"snapshot,omitempty"`
	Purged   bool                  `json:"purged"`
}

func (o *Orchestrator) terminationTTL() time.Duration {
	if o.cfg.TerminationTTLSec > 0 {
		return time.Duration(o.cfg.TerminationTTLSec) * time.Second
	}
	return 10 * time.Minute
}

// TerminatePrepare issues a single-use termination token once the
// retention window has passed. Calling it again replaces the token.
func (o *Orchestrator) TerminatePrepare(ctx context.Context, serviceID int) (*TerminationTicket, error) {
	svc, err := o.store.GetService(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	allowed := []string{model.ServiceStatusSoftDeleted, model.ServiceStatusTerminationPending}
	if err := o.requireStatus(svc, "terminate", allowed...); err != nil {
		return nil, err
	}
	now := o.now()
	if svc.HardDeleteEligibleAt == nil || now.Before(*svc.HardDeleteEligibleAt) {
		e := errs.Newf(errs.KindInvalidState, "service %d is still inside its retention window", svc.ID)
		if svc.HardDeleteEligibleAt != nil {
			e.WithDetail("hardDeleteEligibleAt", svc.HardDeleteEligibleAt.UTC().Format(time.RFC3339))
		}
		return nil, e
	}

	token, err := auth.NewSecret(terminationTokenBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}
	hash, err := auth.HashSecret(token)
	if err != nil {
		return nil, fmt.Errorf("failed to hash token: %w", err)
	}
	expires := now.Add(o.terminationTTL())

	svc, err = o.store.TransitionService(ctx, serviceID, allowed, model.ServiceStatusTerminationPending, func(h *model.HostingService) {
		h.TerminationTokenHash = hash
		h.TerminationTokenExpiresAt = &expires
	})
	if err != nil {
		return nil, err
	}
	o.notify(svc)
	return &TerminationTicket{ServiceID: svc.ID, Token: token, ExpiresAt: expires}, nil
}

func clearToken(h *model.HostingService) {
	h.TerminationTokenHash = ""
	h.TerminationTokenExpiresAt = nil
}

// TerminateConfirm consumes the token, snapshots the account and tears it
// down in reverse provisioning order. Teardown continues past failures;
// any failure leaves the service in error.
func (o *Orchestrator) TerminateConfirm(ctx context.Context, serviceID int, token string, purge bool) (*TerminationResult, error) {
	svc, err := o.store.GetService(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	if err := o.requireStatus(svc, "confirm termination of", model.ServiceStatusTerminationPending); err != nil {
		return nil, err
	}

	pending := []string{model.ServiceStatusTerminationPending}
	if svc.TerminationTokenExpiresAt == nil || o.now().After(*svc.TerminationTokenExpiresAt) {
		if _, err := o.store.TransitionService(ctx, serviceID, pending, model.ServiceStatusSoftDeleted, clearToken); err != nil {
			return nil, err
		}
		return nil, errs.New(errs.KindTokenExpired, "termination token expired")
	}
	if !auth.CompareSecret(svc.TerminationTokenHash, token) {
		return nil, errs.New(errs.KindInvalidToken, "termination token does not match")
	}

	// consume before doing anything irreversible; a concurrent confirm
	// now finds no hash
	expected := svc.TerminationTokenHash
	consumed := false
	svc, err = o.store.TransitionService(ctx, serviceID, pending, "", func(h *model.HostingService) {
		if h.TerminationTokenHash == expected {
			clearToken(h)
			consumed = true
		}
	})
	if err != nil {
		return nil, err
	}
	if !consumed {
		return nil, errs.New(errs.KindInvalidToken, "termination token already used")
	}

	rc := o.newContext(svc, false, "")
	snapshot, err := o.snapshot(ctx, rc, svc)
	if err != nil {
		if _, terr := o.store.TransitionService(ctx, serviceID, pending, model.ServiceStatusSoftDeleted, nil); terr != nil {
			o.logger.WithError(terr).WithField("serviceId", serviceID).Error("failed to restore soft_deleted after backup failure")
		}
		return nil, errs.Wrap(errs.KindBackupSnapshotFailed, "pre-termination snapshot failed", err).
			WithDetail("serviceId", serviceID)
	}

	steps := o.teardown(ctx, rc, svc, purge)
	var failed []string
	for _, step := range steps {
		if step.Status == OutcomeFailed {
			failed = append(failed, step.Name)
		}
	}

	result := &TerminationResult{Steps: steps, Snapshot: snapshot}
	if len(failed) > 0 {
		cause := fmt.Errorf("teardown failed for %v", failed)
		svc, err = o.store.TransitionService(ctx, serviceID, pending, model.ServiceStatusError, func(h *model.HostingService) {
			h.LastError = cause.Error()
		})
		if err == nil {
			o.notify(svc)
		}
		result.Service = svc
		return result, errs.Wrap(errs.KindAdapterApplyFailed, "termination incomplete", cause).WithDetail("failedSteps", failed)
	}

	now := o.now()
	svc, err = o.store.TransitionService(ctx, serviceID, pending, model.ServiceStatusTerminated, func(h *model.HostingService) {
		h.TerminatedAt = &now
	})
	if err != nil {
		return result, err
	}
	o.notify(svc)
	result.Service = svc

	if purge {
		if err := o.store.DeleteService(ctx, serviceID); err != nil {
			return result, err
		}
		result.Purged = true
	}
	return result, nil
}

func (o *Orchestrator) snapshot(ctx context.Context, rc *adapter.Context, svc *model.HostingService) (map[string]any, error) {
	var databases []string
	if svc.MySQLUser != "" {
		dbs, err := o.adapters.MySQL.ListDatabases(ctx, rc, svc.MySQLUser)
		if err != nil {
			return nil, fmt.Errorf("list databases: %w", err)
		}
		databases = dbs
	}
	res, err := o.adapters.Backup.Snapshot(ctx, rc, adapter.SnapshotSpec{
		ServiceID: strconv.Itoa(svc.ID),
		Username:  svc.SystemUser,
		HomeDir:   svc.HomeDir,
		Databases: databases,
	})
	if err != nil {
		return nil, err
	}
	return res.Details, nil
}

type teardownStep struct {
	name string
	run  func(ctx context.Context) error
}

// teardown runs every step and records each outcome
func (o *Orchestrator) teardown(ctx context.Context, rc *adapter.Context, svc *model.HostingService, purge bool) []StepOutcome {
	a := o.adapters
	var steps []teardownStep

	if svc.FTPUser != "" {
		steps = append(steps, teardownStep{StepFTPAccount, func(ctx context.Context) error {
			_, err := a.FTP.EnsureFTPAccountAbsent(ctx, rc, svc.FTPUser)
			return err
		}})
	}
	if svc.MailEnabled {
		steps = append(steps, teardownStep{StepMailbox, func(ctx context.Context) error {
			boxes := []string{postmaster(svc.PrimaryDomain)}
			if purge {
				all, err := a.Mail.ListMailboxes(ctx, rc, svc.PrimaryDomain)
				if err != nil {
					return err
				}
				boxes = all
			}
			for _, box := range boxes {
				if _, err := a.Mail.EnsureMailboxAbsent(ctx, rc, box); err != nil {
					return err
				}
			}
			return nil
		}})
	}
	steps = append(steps,
		teardownStep{StepDNSZone, func(ctx context.Context) error {
			_, err := a.DNS.EnsureZoneAbsent(ctx, rc, svc.PrimaryDomain)
			return err
		}},
		teardownStep{StepMySQLAccount, func(ctx context.Context) error {
			_, err := a.MySQL.EnsureAccountAbsent(ctx, rc, svc.MySQLUser)
			return err
		}},
		teardownStep{StepVhost, func(ctx context.Context) error {
			_, err := a.Web.EnsureVhostAbsent(ctx, rc, svc.PrimaryDomain)
			return err
		}},
		teardownStep{StepPHPFPMPool, func(ctx context.Context) error {
			_, err := a.PHP.EnsurePoolAbsent(ctx, rc, svc.PHPPool, svc.PHPVersion)
			return err
		}},
		teardownStep{StepUser, func(ctx context.Context) error {
			_, err := a.Users.EnsureUserAbsent(ctx, rc, svc.SystemUser)
			return err
		}},
	)

	outcomes := make([]StepOutcome, 0, len(steps))
	for _, step := range steps {
		if err := step.run(ctx); err != nil {
			outcomes = append(outcomes, StepOutcome{Name: step.name, Status: OutcomeFailed, Error: err.Error()})
			continue
		}
		outcomes = append(outcomes, StepOutcome{Name: step.name, Status: OutcomeCompleted})
	}
	return outcomes
}
