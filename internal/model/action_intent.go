package model

import (
	"time"

	"gorm.io/datatypes"
)

// Intent risk levels
const (
	RiskLow    = "low"
	RiskMedium = "medium"
	RiskHigh   = "high"
)

// Intent reversibility values
const (
	ReversibilityReversible      = "reversible"
	ReversibilityRequiresRestore = "requires_restore"
	ReversibilityIrreversible    = "irreversible"
)

// Intent status values
const (
	IntentStatusPrepared  = "prepared"
	IntentStatusConfirmed = "confirmed"
	IntentStatusCancelled = "cancelled"
	IntentStatusExpired   = "expired"
)

// ActionIntent is a token-gated description of a not-yet-executed action.
// Rows are never deleted. Only a hash of the token is stored.
type ActionIntent struct {
	ID                 string         `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Module             string         `gorm:"type:varchar(64);not null;index:idx_intent_module_action" json:"module"`
	Action             string         `gorm:"type:varchar(64);not null;index:idx_intent_module_action" json:"action"`
	TargetKind         string         `gorm:"type:varchar(64);not null" json:"targetKind"`
	TargetKey          string         `gorm:"type:varchar(255);not null;index" json:"targetKey"`
	Payload            datatypes.JSON `gorm:"type:json" json:"payload"`
	Risk               string         `gorm:"type:varchar(16);not null" json:"risk"`
	Reversibility      string         `gorm:"type:varchar(32);not null" json:"reversibility"`
	ImpactedSubsystems datatypes.JSON `gorm:"type:json" json:"impactedSubsystems"`
	Status             string         `gorm:"type:varchar(16);not null;default:'prepared';index" json:"status"`
	TokenHash          string         `gorm:"type:varchar(255);not null" json:"-"`
	TokenExpiresAt     time.Time      `gorm:"not null" json:"tokenExpiresAt"`
	ActorID            string         `gorm:"type:varchar(64)" json:"actorId,omitempty"`
	ActorRole          string         `gorm:"type:varchar(32)" json:"actorRole,omitempty"`
	ActorType          string         `gorm:"type:varchar(32)" json:"actorType,omitempty"`
	ActorReason        string         `gorm:"type:varchar(512)" json:"actorReason,omitempty"`
	ConfirmedAt        *time.Time     `json:"confirmedAt,omitempty"`
	CreatedAt          time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name for ActionIntent
func (ActionIntent) TableName() string {
	return "action_intents"
}
