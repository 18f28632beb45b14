package models

import (
	"time"

	"gorm.io/gorm"
)

// Organization is the tenant boundary. Every other record except users'
// credentials and the permission catalog carries its ID.
type Organization struct {
	ID        int64          `gorm:"primaryKey" json:"id"`
	Name      string         `gorm:"size:200;not null" json:"name"`
	Slug      string         `gorm:"size:200;uniqueIndex;not null" json:"slug"`
	Mission   string         `gorm:"type:text" json:"mission,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Users []User `gorm:"foreignKey:OrgID" json:"-"`
	Roles []Role `gorm:"foreignKey:OrgID" json:"-"`
}
