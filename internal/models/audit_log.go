package models

import (
	"time"

	"gorm.io/datatypes"
)

// AuditLog is append-only; rows are never updated or soft-deleted.
type AuditLog struct {
	ID            int64          `gorm:"primaryKey" json:"id"`
	OrgID         int64          `gorm:"index;not null" json:"org_id"`
	UserID        int64          `gorm:"index" json:"user_id"`             // zero for system actions
	Action        string         `gorm:"size:200;not null" json:"action"`  // e.g. "goal.create", "pending_action.approve"
	ResourceType  string         `gorm:"size:100" json:"resource_type"`    // e.g. "goal", "canvas"
	ResourceID    int64          `gorm:"index" json:"resource_id"`
	Metadata      datatypes.JSON `gorm:"type:json" json:"metadata,omitempty"`
	IP            string         `gorm:"size:64" json:"ip"`
	InitiatorName string         `gorm:"size:255" json:"initiator_name"`
	UserAgent     string         `gorm:"size:255" json:"user_agent"`
	CreatedAt     time.Time      `json:"created_at"`
}
