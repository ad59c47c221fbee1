package migrations_test

import (
	"testing"
	"thesis_tracker/tracker/migrations"
	"thesis_tracker/tracker/schema"
	"time"

	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func openDb(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	return db
}

func TestMigrateCleanDatabase(t *testing.T) {
	db := openDb(t)

	require.NoError(t, migrations.Migrate(db))

	for _, model := range schema.AllModels() {
		assert.True(t, db.Migrator().HasTable(model))
	}
	assert.True(t, db.Migrator().HasIndex(&schema.SubmissionDate{}, "idx_phase_subphase"))

	// Running again is a no-op.
	require.NoError(t, migrations.Migrate(db))
}

type legacySubmissionDate struct {
	Id       uuid.UUID `gorm:"type:uuid;primaryKey"`
	Phase    int
	Subphase int
	Date     time.Time
}

func (legacySubmissionDate) TableName() string {
	return "submission_dates"
}

func TestMigrateRemovesDuplicateDeadlines(t *testing.T) {
	db := openDb(t)

	require.NoError(t, gormigrate.New(db, gormigrate.DefaultOptions, migrations.Versions()[:1]).Migrate())
	require.NoError(t, db.AutoMigrate(&legacySubmissionDate{}))

	early := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	late := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	rows := []legacySubmissionDate{
		{Id: uuid.New(), Phase: 1, Subphase: 0, Date: early},
		{Id: uuid.New(), Phase: 1, Subphase: 0, Date: late},
		{Id: uuid.New(), Phase: 2, Subphase: 0, Date: early},
	}
	require.NoError(t, db.Create(&rows).Error)

	require.NoError(t, migrations.Migrate(db))

	var dates []schema.SubmissionDate
	require.NoError(t, db.Order("phase ASC").Find(&dates).Error)
	require.Len(t, dates, 2)
	assert.Equal(t, 1, dates[0].Phase)
	assert.True(t, late.Equal(dates[0].Date))
	assert.Equal(t, 2, dates[1].Phase)

	assert.True(t, db.Migrator().HasIndex(&schema.SubmissionDate{}, "idx_phase_subphase"))
	assert.True(t, db.Migrator().HasTable(&schema.Thesis{}))
}
