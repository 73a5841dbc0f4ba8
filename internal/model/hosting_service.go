package model

import "time"

// HostingService status values
const (
	ServiceStatusProvisioning       = "provisioning"
	ServiceStatusActive             = "active"
	ServiceStatusSuspended          = "suspended"
	ServiceStatusSoftDeleted        = "soft_deleted"
	ServiceStatusTerminationPending = "termination_pending"
	ServiceStatusTerminated         = "terminated"
	ServiceStatusError              = "error"
)

// HostingService is one shared-hosting account. PrimaryDomain is the stable
// lookup key; the system user, MySQL user and document root are derived
// from it and stored once provisioning starts.
type HostingService struct {
	BaseModel
	CustomerID    int    `gorm:"not null;index" json:"customerId"`
	PrimaryDomain string `gorm:"type:varchar(255);not null;uniqueIndex:uk_hosting_services_domain" json:"primaryDomain"`
	PlanName      string `gorm:"type:varchar(64);not null;index" json:"planName"`
	Status        string `gorm:"type:varchar(32);not null;default:'provisioning';index" json:"status"`

	SystemUser   string `gorm:"type:varchar(32)" json:"systemUser"`
	HomeDir      string `gorm:"type:varchar(512)" json:"homeDir"`
	DocumentRoot string `gorm:"type:varchar(512)" json:"documentRoot"`
	MySQLUser    string `gorm:"column:mysql_user;type:varchar(32)" json:"mysqlUser"`
	PHPPool      string `gorm:"column:php_pool;type:varchar(64)" json:"phpPool"`
	PHPVersion   string `gorm:"column:php_version;type:varchar(16)" json:"phpVersion"`
	FTPUser      string `gorm:"column:ftp_user;type:varchar(64)" json:"ftpUser,omitempty"`
	MailEnabled  bool   `gorm:"not null;default:false" json:"mailEnabled"`

	TerminationTokenHash      string     `gorm:"type:varchar(255)" json:"-"`
	TerminationTokenExpiresAt *time.Time `json:"terminationTokenExpiresAt,omitempty"`
	SoftDeletedAt             *time.Time `json:"softDeletedAt,omitempty"`
	HardDeleteEligibleAt      *time.Time `json:"hardDeleteEligibleAt,omitempty"`
	TerminatedAt              *time.Time `json:"terminatedAt,omitempty"`

	LastError string `gorm:"type:text" json:"lastError,omitempty"`
}

// TableName specifies the table name for HostingService
func (HostingService) TableName() string {
	return "hosting_services"
}
