package migrate

import (
	"errors"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"orgops/internal/models"
)

func openSQLite(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return gdb
}

func TestUpIsIdempotent(t *testing.T) {
	gdb := openSQLite(t)
	require.NoError(t, Up(gdb))
	require.NoError(t, Up(gdb))

	var n int64
	require.NoError(t, gdb.Model(&SchemaMigration{}).Count(&n).Error)
	assert.Equal(t, int64(len(All())), n)

	for _, table := range []string{"organizations", "role_permissions", "activities", "canvases", "block_references", "pending_actions"} {
		assert.True(t, gdb.Migrator().HasTable(table), table)
	}
	assert.True(t, gdb.Migrator().HasColumn(&models.Goal{}, "Progress"))
	assert.True(t, gdb.Migrator().HasIndex("canvases", "ux_canvases_org_name"))
	assert.False(t, gdb.Migrator().HasTable("canvas"))
}

func TestStatusReportsPending(t *testing.T) {
	gdb := openSQLite(t)
	require.NoError(t, apply(gdb, All()[:2]))

	entries, err := Status(gdb)
	require.NoError(t, err)
	require.Len(t, entries, len(All()))
	assert.True(t, entries[0].Applied)
	assert.True(t, entries[1].Applied)
	assert.False(t, entries[2].Applied)
}

func TestGuardedStepsTolerateExistingSchema(t *testing.T) {
	gdb := openSQLite(t)
	// tables created out of band, e.g. by an older deploy that crashed
	// before recording its migration
	require.NoError(t, gdb.AutoMigrate(&models.Organization{}, &models.Partner{}))
	require.NoError(t, Up(gdb))
}

func TestFailedStepIsNotRecorded(t *testing.T) {
	gdb := openSQLite(t)
	boom := errors.New("boom")
	err := apply(gdb, []Migration{{ID: "9999_broken", Up: func(*gorm.DB) error { return boom }}})
	assert.ErrorIs(t, err, boom)

	var n int64
	require.NoError(t, gdb.Model(&SchemaMigration{}).Where("id = ?", "9999_broken").Count(&n).Error)
	assert.Zero(t, n)
}

func TestLiveUniqueIndexIgnoresSoftDeleted(t *testing.T) {
	gdb := openSQLite(t)
	require.NoError(t, Up(gdb))
	org := models.Organization{Name: "Acme", Slug: "acme"}
	require.NoError(t, gdb.Create(&org).Error)

	p := models.Partner{Tenanted: models.Tenanted{OrgID: org.ID}, Name: "Supplier"}
	require.NoError(t, gdb.Create(&p).Error)
	dup := models.Partner{Tenanted: models.Tenanted{OrgID: org.ID}, Name: "Supplier"}
	assert.Error(t, gdb.Create(&dup).Error)

	require.NoError(t, gdb.Delete(&p).Error)
	again := models.Partner{Tenanted: models.Tenanted{OrgID: org.ID}, Name: "Supplier"}
	assert.NoError(t, gdb.Create(&again).Error)
}
