package rbac

import (
	"context"
	"strings"

	"gorm.io/gorm"
)

type Checker struct{ DB *gorm.DB }

// Can reports whether the user holds permKey through any live role
// assignment in orgID. Scoped assignments grant their permissions too;
// scope narrows responsibility, not access.
func (c Checker) Can(ctx context.Context, userID, orgID int64, permKey string) (bool, error) {
	var count int64
	err := c.DB.WithContext(ctx).
		Table("role_assignments ra").
		Joins("JOIN roles r ON r.id = ra.role_id AND r.org_id = ? AND r.deleted_at IS NULL", orgID).
		Joins("JOIN role_permissions rp ON rp.role_id = r.id").
		Joins("JOIN permissions p ON p.id = rp.permission_id").
		Where("ra.user_id = ? AND ra.org_id = ? AND ra.deleted_at IS NULL AND p.perm_key = ?", userID, orgID, permKey).
		Count(&count).Error
	return count > 0, err
}

// Keys lists every permission key the user holds in orgID.
func (c Checker) Keys(ctx context.Context, userID, orgID int64) ([]string, error) {
	var keys []string
	err := c.DB.WithContext(ctx).
		Table("role_assignments ra").
		Distinct("p.perm_key").
		Joins("JOIN roles r ON r.id = ra.role_id AND r.org_id = ? AND r.deleted_at IS NULL", orgID).
		Joins("JOIN role_permissions rp ON rp.role_id = r.id").
		Joins("JOIN permissions p ON p.id = rp.permission_id").
		Where("ra.user_id = ? AND ra.org_id = ? AND ra.deleted_at IS NULL", userID, orgID).
		Order("p.perm_key").
		Pluck("p.perm_key", &keys).Error
	return keys, err
}

// Helper to compose like "goals:read" from resource+action
func Key(resource, action string) string { return strings.ToLower(resource + ":" + action) }
