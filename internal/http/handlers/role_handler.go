package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"orgops/internal/audit"
	"orgops/internal/models"
	"orgops/internal/store"
)

// ListPermissions returns the permission catalog.
func ListPermissions(env *Env) gin.HandlerFunc {
	return func(c *gin.Context) {
		perms := []models.Permission{}
		if err := env.DB.WithContext(c).Order("perm_key").Find(&perms).Error; err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"permissions": perms})
	}
}

// SetRolePermissions replaces a role's permission set with the given keys.
func SetRolePermissions(env *Env) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		var in struct {
			Keys []string `json:"keys"`
		}
		if !bind(c, &in) {
			return
		}
		a := actor(c)
		var role *models.Role
		err := env.DB.WithContext(c).Transaction(func(tx *gorm.DB) error {
			var err error
			if role, err = store.Get[models.Role](c, tx, a.OrgID, id); err != nil {
				return err
			}
			perms := []models.Permission{}
			if len(in.Keys) > 0 {
				if err := tx.Where("perm_key IN ?", in.Keys).Find(&perms).Error; err != nil {
					return err
				}
			}
			if len(perms) != len(dedupe(in.Keys)) {
				known := map[string]bool{}
				for _, p := range perms {
					known[p.Key] = true
				}
				var unknown []string
				for _, k := range in.Keys {
					if !known[k] {
						unknown = append(unknown, k)
					}
				}
				return fmt.Errorf("%w: unknown permission keys %v", models.ErrInvalid, unknown)
			}
			if err := tx.Model(role).Association("Permissions").Replace(perms); err != nil {
				return err
			}
			role.Permissions = perms
			return audit.Record(tx, a, "role.permissions", "role", role.ID, map[string][]string{"keys": in.Keys})
		})
		if err != nil {
			fail(c, err)
			return
		}
		env.invalidate(c, "roles")
		c.JSON(http.StatusOK, gin.H{"role": role})
	}
}

func dedupe(keys []string) []string {
	seen := make(map[string]bool, len(keys))
	out := keys[:0:0]
	for _, k := range keys {
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	return out
}

// ListAudit pages through the organization's audit trail, newest first.
func ListAudit(env *Env) gin.HandlerFunc {
	return func(c *gin.Context) {
		var q struct {
			Limit   int    `form:"limit"`
			AfterID int64  `form:"after_id"`
			Search  string `form:"q"`
		}
		if err := c.ShouldBindQuery(&q); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		page, err := audit.List(c, env.DB, orgID(c), q.AfterID, q.Limit, q.Search)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, page)
	}
}
