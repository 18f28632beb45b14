// Package audit writes and pages through the append-only audit trail.
package audit

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"orgops/internal/models"
)

// Actor is who performed an action and from where. A zero UserID means
// the system (job workers, seeding).
type Actor struct {
	UserID    int64
	OrgID     int64
	Name      string
	IP        string
	UserAgent string
}

// Record appends one entry. Use the transaction that made the change so
// that the entry commits or rolls back with it.
func Record(tx *gorm.DB, a Actor, action, resourceType string, resourceID int64, meta any) error {
	entry := models.AuditLog{
		OrgID:         a.OrgID,
		UserID:        a.UserID,
		Action:        action,
		ResourceType:  resourceType,
		ResourceID:    resourceID,
		IP:            a.IP,
		UserAgent:     truncate(a.UserAgent, 255),
		InitiatorName: a.Name,
		CreatedAt:     time.Now(),
	}
	if meta != nil {
		raw, err := json.Marshal(meta)
		if err != nil {
			return err
		}
		entry.Metadata = datatypes.JSON(raw)
	}
	return tx.Create(&entry).Error
}

// Page is one page of the audit trail, newest first.
type Page struct {
	Logs       []models.AuditLog `json:"logs"`
	NextCursor *int64            `json:"next_cursor"`
}

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// List returns entries of orgID with ID below afterID (0 = from the
// newest), optionally matching search against initiator, action,
// resource type or IP.
func List(ctx context.Context, db *gorm.DB, orgID, afterID int64, limit int, search string) (Page, error) {
	if limit <= 0 || limit > MaxLimit {
		limit = DefaultLimit
	}
	query := db.WithContext(ctx).Model(&models.AuditLog{}).Where("org_id = ?", orgID).Order("id DESC")
	if afterID > 0 {
		query = query.Where("id < ?", afterID)
	}
	if search = strings.TrimSpace(search); search != "" {
		like := "%" + search + "%"
		query = query.Where("(initiator_name LIKE ? OR action LIKE ? OR resource_type LIKE ? OR ip LIKE ?)",
			like, like, like, like)
	}

	var logs []models.AuditLog
	if err := query.Limit(limit + 1).Find(&logs).Error; err != nil {
		return Page{}, err
	}
	page := Page{Logs: logs}
	if len(logs) > limit {
		next := logs[limit-1].ID
		page.Logs = logs[:limit]
		page.NextCursor = &next
	}
	if page.Logs == nil {
		page.Logs = []models.AuditLog{}
	}
	return page, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
