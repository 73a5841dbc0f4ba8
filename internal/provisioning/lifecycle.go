package provisioning

import (
	"context"
	"fmt"

	"go_hostpanel/internal/adapter"
	"go_hostpanel/internal/errs"
	"go_hostpanel/internal/model"
)

func (o *Orchestrator) requireStatus(svc *model.HostingService, op string, allowed ...string) error {
	if containsStatus(allowed, svc.Status) {
		return nil
	}
	return errs.Newf(errs.KindInvalidState, "cannot %s service %d in status %s", op, svc.ID, svc.Status).
		WithDetail("status", svc.Status).
		WithDetail("allowed", allowed)
}

func applyFailed(op string, err error) error {
	return errs.Wrap(errs.KindAdapterApplyFailed, op+" failed", err).WithDetail("operation", op)
}

func (o *Orchestrator) suspendResources(ctx context.Context, rc *adapter.Context, svc *model.HostingService) error {
	if _, err := o.adapters.Users.EnsureUserSuspended(ctx, rc, svc.SystemUser); err != nil {
		return err
	}
	_, err := o.adapters.Web.EnsureVhostSuspended(ctx, rc, svc.PrimaryDomain)
	return err
}

// Suspend locks the system user and parks the vhost
func (o *Orchestrator) Suspend(ctx context.Context, serviceID int) (*model.HostingService, error) {
	svc, err := o.store.GetService(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	if svc.Status == model.ServiceStatusSuspended {
		return svc, nil
	}
	if err := o.requireStatus(svc, "suspend", model.ServiceStatusActive); err != nil {
		return nil, err
	}

	rc := o.newContext(svc, false, "")
	if err := o.suspendResources(ctx, rc, svc); err != nil {
		return nil, applyFailed("suspend", err)
	}
	svc, err = o.store.TransitionService(ctx, serviceID, []string{model.ServiceStatusActive}, model.ServiceStatusSuspended, nil)
	if err != nil {
		return nil, err
	}
	o.notify(svc)
	return svc, nil
}

// Resume reverses Suspend
func (o *Orchestrator) Resume(ctx context.Context, serviceID int) (*model.HostingService, error) {
	svc, err := o.store.GetService(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	if svc.Status == model.ServiceStatusActive {
		return svc, nil
	}
	if err := o.requireStatus(svc, "resume", model.ServiceStatusSuspended); err != nil {
		return nil, err
	}

	rc := o.newContext(svc, false, "")
	if _, err := o.adapters.Users.EnsureUserResumed(ctx, rc, svc.SystemUser); err != nil {
		return nil, applyFailed("resume", err)
	}
	if _, err := o.adapters.Web.EnsureVhostResumed(ctx, rc, svc.PrimaryDomain); err != nil {
		return nil, applyFailed("resume", err)
	}
	svc, err = o.store.TransitionService(ctx, serviceID, []string{model.ServiceStatusSuspended}, model.ServiceStatusActive, nil)
	if err != nil {
		return nil, err
	}
	o.notify(svc)
	return svc, nil
}

// SoftDelete suspends the service, rotates every credential it exposes
// and starts the retention window after which it may be terminated.
func (o *Orchestrator) SoftDelete(ctx context.Context, serviceID int) (*model.HostingService, error) {
	svc, err := o.store.GetService(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	if err := o.requireStatus(svc, "soft delete", model.ServiceStatusActive, model.ServiceStatusSuspended); err != nil {
		return nil, err
	}

	rc := o.newContext(svc, false, "")
	if svc.Status == model.ServiceStatusActive {
		if err := o.suspendResources(ctx, rc, svc); err != nil {
			return nil, applyFailed("soft_delete", err)
		}
	}
	if err := o.rotateAll(ctx, rc, svc); err != nil {
		return nil, applyFailed("soft_delete", err)
	}

	now := o.now()
	eligible := now.Add(o.cfg.RetentionWindow())
	svc, err = o.store.TransitionService(ctx, serviceID,
		[]string{model.ServiceStatusActive, model.ServiceStatusSuspended},
		model.ServiceStatusSoftDeleted,
		func(h *model.HostingService) {
			h.SoftDeletedAt = &now
			h.HardDeleteEligibleAt = &eligible
		})
	if err != nil {
		return nil, err
	}
	o.notify(svc)
	return svc, nil
}

// rotateAll replaces database, mailbox and FTP passwords with values
// nobody knows
func (o *Orchestrator) rotateAll(ctx context.Context, rc *adapter.Context, svc *model.HostingService) error {
	if svc.MySQLUser != "" {
		password, err := newPassword()
		if err != nil {
			return err
		}
		if _, err := o.adapters.MySQL.RotatePassword(ctx, rc, svc.MySQLUser, password); err != nil {
			return fmt.Errorf("rotate mysql password: %w", err)
		}
	}

	if svc.MailEnabled {
		boxes, err := o.adapters.Mail.ListMailboxes(ctx, rc, svc.PrimaryDomain)
		if err != nil {
			return fmt.Errorf("list mailboxes: %w", err)
		}
		for _, box := range boxes {
			password, err := newPassword()
			if err != nil {
				return err
			}
			if _, err := o.adapters.Mail.RotateMailboxPassword(ctx, rc, box, password); err != nil {
				return fmt.Errorf("rotate mailbox %s: %w", box, err)
			}
		}
	}

	if svc.FTPUser != "" {
		password, err := newPassword()
		if err != nil {
			return err
		}
		if _, err := o.adapters.FTP.RotateFTPPassword(ctx, rc, svc.FTPUser, password); err != nil {
			return fmt.Errorf("rotate ftp password: %w", err)
		}
	}
	return nil
}
