package migrations

import (
	"fmt"
	"log/slog"
	"thesis_tracker/tracker/schema"

	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

func Versions() []*gormigrate.Migration {
	return []*gormigrate.Migration{
		{
			// Tables as they were before deadlines were keyed on (phase, subphase).
			ID:      "1",
			Migrate: func(*gorm.DB) error { return nil },
		},
		{
			ID:       "2",
			Migrate:  migration_2_unique_deadlines,
			Rollback: rollback_2_unique_deadlines,
		},
	}
}

func Migrate(db *gorm.DB) error {
	migration := gormigrate.New(db, gormigrate.DefaultOptions, Versions())

	migration.InitSchema(func(txn *gorm.DB) error {
		slog.Info("clean database detected, running full schema initialization")
		return txn.AutoMigrate(schema.AllModels()...)
	})

	if err := migration.Migrate(); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}

// Older databases could hold several rows for the same phase and subphase.
// The one with the latest date is kept before the unique index is created.
func migration_2_unique_deadlines(txn *gorm.DB) error {
	var dates []schema.SubmissionDate
	if err := txn.Order("date DESC").Find(&dates).Error; err != nil {
		return err
	}

	type slot struct{ phase, subphase int }
	seen := make(map[slot]bool)
	stale := make([]interface{}, 0)
	for _, d := range dates {
		key := slot{phase: d.Phase, subphase: d.Subphase}
		if seen[key] {
			stale = append(stale, d.Id)
			continue
		}
		seen[key] = true
	}

	if len(stale) > 0 {
		slog.Info("removing duplicate submission deadlines", "count", len(stale))
		if err := txn.Where("id IN ?", stale).Delete(&schema.SubmissionDate{}).Error; err != nil {
			return err
		}
	}

	return txn.AutoMigrate(schema.AllModels()...)
}

func rollback_2_unique_deadlines(txn *gorm.DB) error {
	if !txn.Migrator().HasIndex(&schema.SubmissionDate{}, "idx_phase_subphase") {
		return nil
	}
	return txn.Migrator().DropIndex(&schema.SubmissionDate{}, "idx_phase_subphase")
}
