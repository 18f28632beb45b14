package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

var (
	ErrInvalid     = errors.New("invalid record")
	ErrInvalidEnum = errors.New("invalid enum value")
)

// Tenanted holds the columns shared by every organization-scoped record:
// primary key, tenant key, audit columns and the soft-delete marker.
type Tenanted struct {
	ID        int64          `gorm:"primaryKey" json:"id"`
	OrgID     int64          `gorm:"index;not null" json:"org_id"`
	CreatedBy *int64         `json:"created_by,omitempty"`
	UpdatedBy *int64         `json:"updated_by,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (t *Tenanted) Base() *Tenanted { return t }

func (t *Tenanted) RecordStatus() string { return "" }

func (t *Tenanted) RecordTimes() (time.Time, time.Time) { return t.CreatedAt, t.UpdatedAt }

// Ref points at another tenant-scoped row that a record depends on.
type Ref struct {
	Field string
	Model any
	ID    *int64
}

func required(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return invalidf("%s is required", field)
	}
	return nil
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...)
}
