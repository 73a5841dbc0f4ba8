package db

import (
	"fmt"
	"log"

	"go_hostpanel/internal/model"

	"gorm.io/gorm"
)

// Models lists every table owned by the control plane
func Models() []interface{} {
	return []interface{}{
		&model.HostingPlan{},
		&model.HostingService{},
		&model.HostingLog{},
		&model.ActionIntent{},
		&model.AuditLogEntry{},
		&model.MigrationJob{},
		&model.MigrationAccount{},
		&model.MigrationStep{},
	}
}

// Migrate runs database migrations for all models
func Migrate(db *gorm.DB) error {
	log.Println("Starting database migration...")

	models := Models()
	if err := db.AutoMigrate(models...); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	log.Printf("✓ Database migration completed successfully (%d tables)", len(models))
	return nil
}
