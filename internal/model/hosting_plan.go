package model

import "time"

// HostingPlan holds resource quotas referenced by name from HostingService
type HostingPlan struct {
	Name           string    `gorm:"primaryKey;type:varchar(64)" json:"name"`
	DiskQuotaMB    int       `gorm:"not null;default:0" json:"diskQuotaMb"`
	MaxDatabases   int       `gorm:"not null;default:0" json:"maxDatabases"`
	MaxMailboxes   int       `gorm:"not null;default:0" json:"maxMailboxes"`
	MailboxQuotaMB int       `gorm:"not null;default:0" json:"mailboxQuotaMb"`
	MaxFTPAccounts int       `gorm:"column:max_ftp_accounts;not null;default:0" json:"maxFtpAccounts"`
	PHPVersion     string    `gorm:"column:php_version;type:varchar(16);not null" json:"phpVersion"`
	Derived        bool      `gorm:"not null;default:false" json:"derived"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name for HostingPlan
func (HostingPlan) TableName() string {
	return "hosting_plans"
}
