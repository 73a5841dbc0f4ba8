package model

import (
	"time"

	"gorm.io/datatypes"
)

// Adapter operations recorded in HostingLog
const (
	OperationCreate  = "create"
	OperationUpdate  = "update"
	OperationSuspend = "suspend"
	OperationResume  = "resume"
	OperationDelete  = "delete"
)

// HostingLog is one adapter log entry. Append-only; operators read these
// to audit what provisioning did (or would have done, in dry-run).
type HostingLog struct {
	ID           int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	ServiceID    int            `gorm:"not null;index" json:"serviceId"`
	TraceID      string         `gorm:"type:varchar(64);index" json:"traceId"`
	Adapter      string         `gorm:"type:varchar(32);not null" json:"adapter"`
	Operation    string         `gorm:"type:varchar(16);not null" json:"operation"`
	TargetKind   string         `gorm:"type:varchar(32);not null" json:"targetKind"`
	TargetKey    string         `gorm:"type:varchar(255);not null" json:"targetKey"`
	Success      bool           `gorm:"not null" json:"success"`
	DryRun       bool           `gorm:"not null;default:false" json:"dryRun"`
	Details      datatypes.JSON `gorm:"type:json" json:"details,omitempty"`
	ErrorMessage string         `gorm:"type:text" json:"errorMessage,omitempty"`
	CreatedAt    time.Time      `gorm:"autoCreateTime" json:"created_at"`
}

// TableName specifies the table name for HostingLog
func (HostingLog) TableName() string {
	return "hosting_logs"
}
