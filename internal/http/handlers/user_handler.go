package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"orgops/internal/audit"
	"orgops/internal/auth"
	"orgops/internal/cache"
	"orgops/internal/models"
	"orgops/internal/store"
)

// ListUsers returns the people of the caller's organization.
func ListUsers(env *Env) gin.HandlerFunc {
	return func(c *gin.Context) {
		org := orgID(c)
		users, err := cache.Load(c, env.Cache, org, "users", func() ([]models.User, error) {
			users := []models.User{}
			err := env.DB.WithContext(c).Where("org_id = ?", org).Order("id").Find(&users).Error
			return users, err
		})
		if err != nil {
			fail(c, err)
			return
		}
		if q := strings.ToLower(strings.TrimSpace(c.Query("q"))); q != "" {
			kept := users[:0]
			for _, u := range users {
				if strings.Contains(strings.ToLower(u.Name), q) || strings.Contains(u.Email, q) {
					kept = append(kept, u)
				}
			}
			users = kept
		}
		c.JSON(http.StatusOK, gin.H{"users": users, "total": len(users)})
	}
}

// CreateUser adds a person to the caller's organization, optionally with a
// role.
func CreateUser(env *Env) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in struct {
			Email      string `json:"email" binding:"required,email"`
			Name       string `json:"name" binding:"required"`
			Password   string `json:"password" binding:"required"`
			JobTitle   string `json:"job_title"`
			FunctionID *int64 `json:"function_id"`
			RoleID     *int64 `json:"role_id"`
		}
		if !bind(c, &in) {
			return
		}
		in.Email = strings.TrimSpace(strings.ToLower(in.Email))
		in.Name = strings.TrimSpace(in.Name)
		if len(in.Password) < auth.MinPasswordLength {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("password must be at least %d characters", auth.MinPasswordLength)})
			return
		}
		hash, err := auth.HashPassword(in.Password)
		if err != nil {
			fail(c, err)
			return
		}

		a := actor(c)
		user := models.User{
			OrgID:        a.OrgID,
			Email:        in.Email,
			Name:         in.Name,
			JobTitle:     in.JobTitle,
			FunctionID:   in.FunctionID,
			Status:       models.UserActive,
			AuthProvider: "local",
			PasswordHash: hash,
		}
		err = env.DB.WithContext(c).Transaction(func(tx *gorm.DB) error {
			var n int64
			if err := tx.Model(&models.User{}).Where("email = ?", in.Email).Count(&n).Error; err != nil {
				return err
			}
			if n > 0 {
				return fmt.Errorf("%w: email already exists", store.ErrConflict)
			}
			refs := []models.Ref{
				{Field: "function_id", Model: &models.Function{}, ID: in.FunctionID},
				{Field: "role_id", Model: &models.Role{}, ID: in.RoleID},
			}
			if err := store.CheckRefs(tx, a.OrgID, refs); err != nil {
				return err
			}
			if err := tx.Create(&user).Error; err != nil {
				return err
			}
			if in.RoleID != nil {
				ra := models.RoleAssignment{UserID: user.ID, RoleID: *in.RoleID}
				if err := store.Create(tx, a.OrgID, a.UserID, &ra); err != nil {
					return err
				}
			}
			return audit.Record(tx, a, "user.create", "user", user.ID, map[string]string{"email": user.Email})
		})
		if err != nil {
			fail(c, err)
			return
		}
		env.invalidate(c, "users", "role_assignments")
		c.JSON(http.StatusCreated, gin.H{"user": user})
	}
}

func ActivateUser(env *Env) gin.HandlerFunc {
	return setUserStatus(env, models.UserActive)
}

func DeactivateUser(env *Env) gin.HandlerFunc {
	return setUserStatus(env, models.UserSuspended)
}

func setUserStatus(env *Env, status models.UserStatus) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		a := actor(c)
		if id == a.UserID && status != models.UserActive {
			c.JSON(http.StatusConflict, gin.H{"error": "you cannot deactivate yourself"})
			return
		}
		err := env.DB.WithContext(c).Transaction(func(tx *gorm.DB) error {
			res := tx.Model(&models.User{}).Where("id = ? AND org_id = ?", id, a.OrgID).Update("status", status)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return fmt.Errorf("user %d: %w", id, store.ErrNotFound)
			}
			return audit.Record(tx, a, "user."+string(status), "user", id, nil)
		})
		if err != nil {
			fail(c, err)
			return
		}
		env.invalidate(c, "users")
		c.JSON(http.StatusOK, gin.H{"id": id, "status": status})
	}
}

// ChangePassword sets a user's password. Users may change their own; the
// route guard decides who may change others'.
func ChangePassword(env *Env) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		var in struct {
			Password string `json:"password" binding:"required"`
		}
		if !bind(c, &in) {
			return
		}
		if len(in.Password) < auth.MinPasswordLength {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("password must be at least %d characters", auth.MinPasswordLength)})
			return
		}
		hash, err := auth.HashPassword(in.Password)
		if err != nil {
			fail(c, err)
			return
		}
		a := actor(c)
		err = env.DB.WithContext(c).Transaction(func(tx *gorm.DB) error {
			res := tx.Model(&models.User{}).Where("id = ? AND org_id = ?", id, a.OrgID).Update("password_hash", hash)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return fmt.Errorf("user %d: %w", id, store.ErrNotFound)
			}
			return audit.Record(tx, a, "user.password", "user", id, nil)
		})
		if err != nil {
			fail(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}
