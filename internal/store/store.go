// Package store persists control-plane state with gorm. Status changes go
// through Transition* methods, which re-check the expected status in the
// UPDATE itself so a concurrent writer makes the second update a no-op.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"go_hostpanel/internal/errs"
	"go_hostpanel/internal/model"
)

// Store is the full persistence surface. Core packages depend on narrower
// interfaces declared next to their use.
type Store interface {
	GetService(ctx context.Context, id int) (*model.HostingService, error)
	FindServiceByDomain(ctx context.Context, domain string) (*model.HostingService, error)
	ListServices(ctx context.Context, customerID int) ([]model.HostingService, error)
	CreateService(ctx context.Context, svc *model.HostingService) error
	TransitionService(ctx context.Context, id int, from []string, to string, mutate func(*model.HostingService)) (*model.HostingService, error)
	DeleteService(ctx context.Context, id int) error

	GetPlan(ctx context.Context, name string) (*model.HostingPlan, error)
	SavePlan(ctx context.Context, plan *model.HostingPlan) error

	AppendHostingLog(ctx context.Context, entry *model.HostingLog) error
	ListHostingLogs(ctx context.Context, serviceID int, limit int) ([]model.HostingLog, error)

	CreateIntent(ctx context.Context, intent *model.ActionIntent) error
	GetIntent(ctx context.Context, id string) (*model.ActionIntent, error)
	TransitionIntent(ctx context.Context, id string, from, to string, mutate func(*model.ActionIntent)) (*model.ActionIntent, error)
	AppendAudit(ctx context.Context, entry *model.AuditLogEntry) error
	ListAudit(ctx context.Context, intentID string) ([]model.AuditLogEntry, error)

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

// Gorm implements Store on a gorm connection
type Gorm struct {
	db *gorm.DB
}

// NewGorm creates a gorm-backed store
func NewGorm(db *gorm.DB) *Gorm {
	return &Gorm{db: db}
}

func notFound(what string, key any) error {
	return errs.Newf(errs.KindNotFound, "%s %v not found", what, key)
}

// StaleStatus reports a status precondition that no longer holds
func StaleStatus(what string, key any, current string, expected []string) error {
	return errs.Newf(errs.KindInvalidState, "%s %v is %s, expected one of [%s]", what, key, current, strings.Join(expected, ",")).
		WithDetail("current", current).
		WithDetail("expected", expected)
}

// Contains reports whether status is one of allowed
func Contains(allowed []string, status string) bool {
	for _, s := range allowed {
		if s == status {
			return true
		}
	}
	return false
}

func wrapFind(err error, what string, key any) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return notFound(what, key)
	}
	return fmt.Errorf("failed to load %s %v: %w", what, key, err)
}

func isDuplicate(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "Duplicate entry")
}
