package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"go_hostpanel/internal/model"
)

// CreateJob inserts a job together with its accounts
func (s *Gorm) CreateJob(ctx context.Context, job *model.MigrationJob) error {
	if err := s.db.WithContext(ctx).Create(job).Error; err != nil {
		return fmt.Errorf("failed to create migration job: %w", err)
	}
	return nil
}

// GetJob loads a job with its accounts
func (s *Gorm) GetJob(ctx context.Context, id string) (*model.MigrationJob, error) {
	var job model.MigrationJob
	err := s.db.WithContext(ctx).
		Preload("Accounts", func(db *gorm.DB) *gorm.DB { return db.Order("seq ASC") }).
		Where("id = ?", id).
		First(&job).Error
	if err != nil {
		return nil, wrapFind(err, "migration job", id)
	}
	return &job, nil
}

// ListJobsByStatus returns the oldest jobs in the given statuses
func (s *Gorm) ListJobsByStatus(ctx context.Context, statuses []string, limit int) ([]model.MigrationJob, error) {
	var out []model.MigrationJob
	q := s.db.WithContext(ctx).Where("status IN ?", statuses).Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to list migration jobs: %w", err)
	}
	return out, nil
}

// UpdateJobStatus sets the aggregated job status
func (s *Gorm) UpdateJobStatus(ctx context.Context, id, status string) error {
	res := s.db.WithContext(ctx).Model(&model.MigrationJob{}).Where("id = ?", id).Update("status", status)
	if res.Error != nil {
		return fmt.Errorf("failed to update migration job %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		var n int64
		s.db.WithContext(ctx).Model(&model.MigrationJob{}).Where("id = ?", id).Count(&n)
		if n == 0 {
			return notFound("migration job", id)
		}
	}
	return nil
}

// SaveAccount updates an account row
func (s *Gorm) SaveAccount(ctx context.Context, account *model.MigrationAccount) error {
	if err := s.db.WithContext(ctx).Save(account).Error; err != nil {
		return fmt.Errorf("failed to save migration account %s: %w", account.ID, err)
	}
	return nil
}

// CreateSteps inserts planned steps
func (s *Gorm) CreateSteps(ctx context.Context, steps []model.MigrationStep) error {
	if len(steps) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).Create(&steps).Error; err != nil {
		return fmt.Errorf("failed to create migration steps: %w", err)
	}
	return nil
}

// ListSteps returns a job's steps ordered by seq
func (s *Gorm) ListSteps(ctx context.Context, jobID string) ([]model.MigrationStep, error) {
	var out []model.MigrationStep
	if err := s.db.WithContext(ctx).Where("job_id = ?", jobID).Order("seq ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to list migration steps: %w", err)
	}
	return out, nil
}

// GetStep loads one step of a job
func (s *Gorm) GetStep(ctx context.Context, jobID, stepID string) (*model.MigrationStep, error) {
	var step model.MigrationStep
	if err := s.db.WithContext(ctx).Where("id = ? AND job_id = ?", stepID, jobID).First(&step).Error; err != nil {
		return nil, wrapFind(err, "migration step", stepID)
	}
	return &step, nil
}

// TransitionStep moves a step between statuses with a status-guarded update
func (s *Gorm) TransitionStep(ctx context.Context, id string, from []string, to string, mutate func(*model.MigrationStep)) (*model.MigrationStep, error) {
	var out model.MigrationStep
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", id).First(&out).Error; err != nil {
			return wrapFind(err, "migration step", id)
		}
		current := out.Status
		if !Contains(from, current) {
			return StaleStatus("migration step", id, current, from)
		}
		if mutate != nil {
			mutate(&out)
		}
		out.Status = to
		res := tx.Model(&out).Where("status = ?", current).Select("*").Omit("created_at").Updates(&out)
		if res.Error != nil {
			return fmt.Errorf("failed to update migration step %s: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			return StaleStatus("migration step", id, "changed", from)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}
