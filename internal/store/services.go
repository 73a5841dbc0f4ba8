package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"go_hostpanel/internal/errs"
	"go_hostpanel/internal/model"
)

// GetService loads a service by id
func (s *Gorm) GetService(ctx context.Context, id int) (*model.HostingService, error) {
	var svc model.HostingService
	if err := s.db.WithContext(ctx).First(&svc, id).Error; err != nil {
		return nil, wrapFind(err, "service", id)
	}
	return &svc, nil
}

// FindServiceByDomain loads a service by primary domain
func (s *Gorm) FindServiceByDomain(ctx context.Context, domain string) (*model.HostingService, error) {
	var svc model.HostingService
	if err := s.db.WithContext(ctx).Where("primary_domain = ?", domain).First(&svc).Error; err != nil {
		return nil, wrapFind(err, "service", domain)
	}
	return &svc, nil
}

// ListServices lists a customer's services; customerID 0 lists all
func (s *Gorm) ListServices(ctx context.Context, customerID int) ([]model.HostingService, error) {
	var out []model.HostingService
	q := s.db.WithContext(ctx).Order("id ASC")
	if customerID > 0 {
		q = q.Where("customer_id = ?", customerID)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to list services: %w", err)
	}
	return out, nil
}

// CreateService inserts a service; the primary domain must be unused
func (s *Gorm) CreateService(ctx context.Context, svc *model.HostingService) error {
	if err := s.db.WithContext(ctx).Create(svc).Error; err != nil {
		if isDuplicate(err) {
			return errs.Newf(errs.KindAlreadyExists, "domain %s already has a service", svc.PrimaryDomain)
		}
		return fmt.Errorf("failed to create service: %w", err)
	}
	return nil
}

// TransitionService moves a service from one of the allowed statuses to
// `to` (empty keeps the current status) and applies mutate in the same
// update.
func (s *Gorm) TransitionService(ctx context.Context, id int, from []string, to string, mutate func(*model.HostingService)) (*model.HostingService, error) {
	var out model.HostingService
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&out, id).Error; err != nil {
			return wrapFind(err, "service", id)
		}
		current := out.Status
		if len(from) > 0 && !Contains(from, current) {
			return StaleStatus("service", id, current, from)
		}
		if mutate != nil {
			mutate(&out)
		}
		if to != "" {
			out.Status = to
		}
		res := tx.Model(&out).Where("status = ?", current).Select("*").Omit("created_at").Updates(&out)
		if res.Error != nil {
			return fmt.Errorf("failed to update service %d: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			return StaleStatus("service", id, "changed", from)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteService removes the row
func (s *Gorm) DeleteService(ctx context.Context, id int) error {
	if err := s.db.WithContext(ctx).Delete(&model.HostingService{}, id).Error; err != nil {
		return fmt.Errorf("failed to delete service %d: %w", id, err)
	}
	return nil
}

// GetPlan loads a plan by name
func (s *Gorm) GetPlan(ctx context.Context, name string) (*model.HostingPlan, error) {
	var plan model.HostingPlan
	if err := s.db.WithContext(ctx).Where("name = ?", name).First(&plan).Error; err != nil {
		return nil, wrapFind(err, "plan", name)
	}
	return &plan, nil
}

// SavePlan inserts or replaces a plan
func (s *Gorm) SavePlan(ctx context.Context, plan *model.HostingPlan) error {
	if err := s.db.WithContext(ctx).Save(plan).Error; err != nil {
		return fmt.Errorf("failed to save plan %s: %w", plan.Name, err)
	}
	return nil
}

// AppendHostingLog inserts an adapter log row
func (s *Gorm) AppendHostingLog(ctx context.Context, entry *model.HostingLog) error {
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to append hosting log: %w", err)
	}
	return nil
}

// ListHostingLogs returns a service's log rows oldest first
func (s *Gorm) ListHostingLogs(ctx context.Context, serviceID int, limit int) ([]model.HostingLog, error) {
	var out []model.HostingLog
	q := s.db.WithContext(ctx).Where("service_id = ?", serviceID).Order("id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to list hosting logs: %w", err)
	}
	return out, nil
}
