// Package migrate applies the ordered schema migrations and records them
// in schema_migrations. Every step is guarded so that re-running it
// against a partially migrated schema is harmless.
package migrate

import (
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"
)

type Migration struct {
	ID string
	Up func(tx *gorm.DB) error
}

type SchemaMigration struct {
	ID        string `gorm:"primaryKey;size:100"`
	AppliedAt time.Time
}

func (SchemaMigration) TableName() string { return "schema_migrations" }

// Entry is one line of Status output.
type Entry struct {
	ID        string
	Applied   bool
	AppliedAt time.Time
}

// Up applies all pending migrations in order.
func Up(db *gorm.DB) error { return apply(db, All()) }

func apply(db *gorm.DB, steps []Migration) error {
	if err := db.AutoMigrate(&SchemaMigration{}); err != nil {
		return fmt.Errorf("migrate: schema_migrations: %w", err)
	}
	applied, err := appliedSet(db)
	if err != nil {
		return err
	}
	for _, m := range steps {
		if _, ok := applied[m.ID]; ok {
			continue
		}
		err := db.Transaction(func(tx *gorm.DB) error {
			if err := m.Up(tx); err != nil {
				return err
			}
			return tx.Create(&SchemaMigration{ID: m.ID, AppliedAt: time.Now().UTC()}).Error
		})
		if err != nil {
			return fmt.Errorf("migrate: %s: %w", m.ID, err)
		}
		slog.Info("migration applied", "id", m.ID)
	}
	return nil
}

// Status reports every known migration and whether it has run.
func Status(db *gorm.DB) ([]Entry, error) {
	if err := db.AutoMigrate(&SchemaMigration{}); err != nil {
		return nil, fmt.Errorf("migrate: schema_migrations: %w", err)
	}
	applied, err := appliedSet(db)
	if err != nil {
		return nil, err
	}
	steps := All()
	out := make([]Entry, len(steps))
	for i, m := range steps {
		at, ok := applied[m.ID]
		out[i] = Entry{ID: m.ID, Applied: ok, AppliedAt: at}
	}
	return out, nil
}

func appliedSet(db *gorm.DB) (map[string]time.Time, error) {
	var rows []SchemaMigration
	if err := db.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("migrate: read applied: %w", err)
	}
	out := make(map[string]time.Time, len(rows))
	for _, r := range rows {
		out[r.ID] = r.AppliedAt
	}
	return out, nil
}

// createTables creates each model's table, with its join tables and
// foreign keys, unless it already exists.
func createTables(tx *gorm.DB, models ...any) error {
	for _, model := range models {
		if tx.Migrator().HasTable(model) {
			continue
		}
		if err := tx.AutoMigrate(model); err != nil {
			return err
		}
	}
	return nil
}

// addColumn adds field to model's table unless the column exists.
func addColumn(tx *gorm.DB, model any, field string) error {
	m := tx.Migrator()
	if m.HasColumn(model, field) {
		return nil
	}
	return m.AddColumn(model, field)
}

type uniqueIndex struct {
	table   string
	name    string
	columns string
}

// createLiveUniqueIndex creates a unique index that ignores soft-deleted
// rows. MySQL has no partial indexes; there uniqueness among live rows is
// enforced by the service layer only.
func createLiveUniqueIndex(tx *gorm.DB, idx uniqueIndex) error {
	switch tx.Dialector.Name() {
	case "postgres", "sqlite":
		return tx.Exec(fmt.Sprintf(
			"CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s (%s) WHERE deleted_at IS NULL",
			idx.name, idx.table, idx.columns)).Error
	default:
		return nil
	}
}
