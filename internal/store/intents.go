package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"go_hostpanel/internal/model"
)

// CreateIntent inserts a prepared intent
func (s *Gorm) CreateIntent(ctx context.Context, intent *model.ActionIntent) error {
	if err := s.db.WithContext(ctx).Create(intent).Error; err != nil {
		return fmt.Errorf("failed to create intent: %w", err)
	}
	return nil
}

// GetIntent loads an intent by id
func (s *Gorm) GetIntent(ctx context.Context, id string) (*model.ActionIntent, error) {
	var intent model.ActionIntent
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&intent).Error; err != nil {
		return nil, wrapFind(err, "intent", id)
	}
	return &intent, nil
}

// TransitionIntent moves an intent from `from` to `to`. Exactly one
// caller can win a given transition.
func (s *Gorm) TransitionIntent(ctx context.Context, id string, from, to string, mutate func(*model.ActionIntent)) (*model.ActionIntent, error) {
	var out model.ActionIntent
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", id).First(&out).Error; err != nil {
			return wrapFind(err, "intent", id)
		}
		if out.Status != from {
			return StaleStatus("intent", id, out.Status, []string{from})
		}
		if mutate != nil {
			mutate(&out)
		}
		out.Status = to
		res := tx.Model(&out).Where("status = ?", from).Select("*").Omit("created_at").Updates(&out)
		if res.Error != nil {
			return fmt.Errorf("failed to update intent %s: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			return StaleStatus("intent", id, "changed", []string{from})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// AppendAudit inserts an audit row and sets its id
func (s *Gorm) AppendAudit(ctx context.Context, entry *model.AuditLogEntry) error {
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to append audit log: %w", err)
	}
	return nil
}

// ListAudit returns an intent's audit rows in order
func (s *Gorm) ListAudit(ctx context.Context, intentID string) ([]model.AuditLogEntry, error) {
	var out []model.AuditLogEntry
	if err := s.db.WithContext(ctx).Where("intent_id = ?", intentID).Order("id ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to list audit logs: %w", err)
	}
	return out, nil
}
