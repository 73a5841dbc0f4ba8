package provisioning

import (
	"context"
	"strings"

	"go_hostpanel/internal/errs"
	"go_hostpanel/internal/model"
)

// ResetMailboxPassword sets and returns a new password for a mailbox of
// the service's domain
func (o *Orchestrator) ResetMailboxPassword(ctx context.Context, serviceID int, address string) (string, error) {
	svc, err := o.activeService(ctx, serviceID, "reset mailbox password of")
	if err != nil {
		return "", err
	}
	if !svc.MailEnabled {
		return "", errs.Newf(errs.KindInvalidState, "mail is not enabled for service %d", svc.ID)
	}
	address = strings.ToLower(strings.TrimSpace(address))
	if !strings.HasSuffix(address, "@"+svc.PrimaryDomain) {
		return "", errs.Newf(errs.KindInvalidArgument, "mailbox %s does not belong to %s", address, svc.PrimaryDomain)
	}

	password, err := newPassword()
	if err != nil {
		return "", err
	}
	rc := o.newContext(svc, false, "")
	if _, err := o.adapters.Mail.RotateMailboxPassword(ctx, rc, address, password); err != nil {
		return "", applyFailed("mail.reset_password", err)
	}
	return password, nil
}

// ResetDatabasePassword sets and returns a new MySQL password
func (o *Orchestrator) ResetDatabasePassword(ctx context.Context, serviceID int) (string, error) {
	svc, err := o.activeService(ctx, serviceID, "reset database password of")
	if err != nil {
		return "", err
	}
	password, err := newPassword()
	if err != nil {
		return "", err
	}
	rc := o.newContext(svc, false, "")
	if _, err := o.adapters.MySQL.RotatePassword(ctx, rc, svc.MySQLUser, password); err != nil {
		return "", applyFailed("mysql.reset_password", err)
	}
	return password, nil
}

// ResetFTPPassword sets and returns a new FTP password
func (o *Orchestrator) ResetFTPPassword(ctx context.Context, serviceID int) (string, error) {
	svc, err := o.activeService(ctx, serviceID, "reset ftp password of")
	if err != nil {
		return "", err
	}
	if svc.FTPUser == "" {
		return "", errs.Newf(errs.KindInvalidState, "ftp is not enabled for service %d", svc.ID)
	}
	password, err := newPassword()
	if err != nil {
		return "", err
	}
	rc := o.newContext(svc, false, "")
	if _, err := o.adapters.FTP.RotateFTPPassword(ctx, rc, svc.FTPUser, password); err != nil {
		return "", applyFailed("ftp.reset_password", err)
	}
	return password, nil
}

func (o *Orchestrator) activeService(ctx context.Context, serviceID int, op string) (*model.HostingService, error) {
	svc, err := o.store.GetService(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	if err := o.requireStatus(svc, op, model.ServiceStatusActive); err != nil {
		return nil, err
	}
	return svc, nil
}
