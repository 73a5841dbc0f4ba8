package model

import (
	"time"

	"gorm.io/datatypes"
)

// Audit phases
const (
	AuditPhaseConfirmation = "confirmation"
	AuditPhaseResult       = "result"
)

// Audit outcomes
const (
	AuditOutcomeSuccess = "success"
	AuditOutcomePartial = "partial"
	AuditOutcomeFailed  = "failed"
)

// AuditLogEntry is an append-only governance audit row
type AuditLogEntry struct {
	ID           int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	IntentID     string         `gorm:"type:varchar(36);index" json:"intentId"`
	Module       string         `gorm:"type:varchar(64);not null" json:"module"`
	Action       string         `gorm:"type:varchar(64);not null" json:"action"`
	Phase        string         `gorm:"type:varchar(16);not null" json:"phase"`
	TargetKind   string         `gorm:"type:varchar(64);not null" json:"targetKind"`
	TargetKey    string         `gorm:"type:varchar(255);not null;index" json:"targetKey"`
	Outcome      string         `gorm:"type:varchar(16);not null" json:"outcome"`
	ActorID      string         `gorm:"type:varchar(64)" json:"actorId,omitempty"`
	ActorRole    string         `gorm:"type:varchar(32)" json:"actorRole,omitempty"`
	ActorType    string         `gorm:"type:varchar(32)" json:"actorType,omitempty"`
	ActorReason  string         `gorm:"type:varchar(512)" json:"actorReason,omitempty"`
	Details      datatypes.JSON `gorm:"type:json" json:"details,omitempty"`
	ErrorMessage string         `gorm:"type:text" json:"errorMessage,omitempty"`
	CreatedAt    time.Time      `gorm:"autoCreateTime" json:"created_at"`
}

// TableName specifies the table name for AuditLogEntry
func (AuditLogEntry) TableName() string {
	return "audit_logs"
}
