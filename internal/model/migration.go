package model

import (
	"time"

	"gorm.io/datatypes"
)

// Migration source types
const (
	MigrationSourceLiveSSH = "live_ssh"
)

// MigrationJob status values
const (
	MigrationJobPending   = "pending"
	MigrationJobRunning   = "running"
	MigrationJobCompleted = "completed"
	MigrationJobFailed    = "failed"
	MigrationJobPartial   = "partial"
)

// MigrationStep status values
const (
	MigrationStepPending   = "pending"
	MigrationStepRunning   = "running"
	MigrationStepCompleted = "completed"
	MigrationStepFailed    = "failed"
	MigrationStepSkipped   = "skipped"
)

// MigrationStep names
const (
	StepValidateSourceHost = "validate_source_host"
	StepProvisionTargetEnv = "provision_target_env"
	StepRsyncHomeDirectory = "rsync_home_directory"
	StepImportDatabases    = "import_databases"
)

// MigrationJob imports one or more accounts from a remote host
type MigrationJob struct {
	ID             string             `gorm:"primaryKey;type:varchar(36)" json:"id"`
	CustomerID     int                `gorm:"not null;index" json:"customerId"`
	SourceType     string             `gorm:"type:varchar(32);not null" json:"sourceType"`
	Status         string             `gorm:"type:varchar(16);not null;default:'pending';index" json:"status"`
	SourceConfig   datatypes.JSON     `gorm:"type:json" json:"-"`
	TargetPlanName string             `gorm:"type:varchar(64)" json:"targetPlanName,omitempty"`
	DryRun         bool               `gorm:"not null;default:false" json:"dryRun"`
	Accounts       []MigrationAccount `gorm:"foreignKey:JobID" json:"accounts,omitempty"`
	Steps          []MigrationStep    `gorm:"foreignKey:JobID" json:"steps,omitempty"`
	CreatedAt      time.Time          `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time          `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name for MigrationJob
func (MigrationJob) TableName() string {
	return "migration_jobs"
}

// MigrationAccount is one source account inside a job
type MigrationAccount struct {
	ID                  string         `gorm:"primaryKey;type:varchar(36)" json:"id"`
	JobID               string         `gorm:"type:varchar(36);not null;index" json:"jobId"`
	Seq                 int            `gorm:"not null;default:0" json:"seq"`
	SourceUsername      string         `gorm:"type:varchar(64);not null" json:"sourceUsername"`
	SourcePrimaryDomain string         `gorm:"type:varchar(255);not null" json:"sourcePrimaryDomain"`
	TargetCustomerID    int            `gorm:"not null" json:"targetCustomerId"`
	TargetServiceID     *int           `json:"targetServiceId,omitempty"`
	TargetPlanName      string         `gorm:"type:varchar(64)" json:"targetPlanName,omitempty"`
	Metadata            datatypes.JSON `gorm:"type:json" json:"metadata,omitempty"`
	CreatedAt           time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name for MigrationAccount
func (MigrationAccount) TableName() string {
	return "migration_accounts"
}

// MigrationStep is one unit of work. Steps are created once by planning
// and only ever re-run by explicitly retrying a failed step.
type MigrationStep struct {
	ID         string         `gorm:"primaryKey;type:varchar(36)" json:"id"`
	JobID      string         `gorm:"type:varchar(36);not null;index:idx_step_job_seq,priority:1" json:"jobId"`
	AccountID  string         `gorm:"type:varchar(36);index" json:"accountId,omitempty"`
	Seq        int            `gorm:"not null;index:idx_step_job_seq,priority:2" json:"seq"`
	Name       string         `gorm:"type:varchar(32);not null" json:"name"`
	Status     string         `gorm:"type:varchar(16);not null;default:'pending';index" json:"status"`
	Payload    datatypes.JSON `gorm:"type:json" json:"payload,omitempty"`
	LastError  datatypes.JSON `gorm:"type:json" json:"lastError,omitempty"`
	Attempts   int            `gorm:"not null;default:0" json:"attempts"`
	StartedAt  *time.Time     `json:"startedAt,omitempty"`
	FinishedAt *time.Time     `json:"finishedAt,omitempty"`
	CreatedAt  time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name for MigrationStep
func (MigrationStep) TableName() string {
	return "migration_steps"
}
