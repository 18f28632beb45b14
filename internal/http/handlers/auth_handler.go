package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"orgops/internal/audit"
	"orgops/internal/auth"
	"orgops/internal/models"
	"orgops/internal/seed"
	"orgops/internal/store"
)

// LoginHandler authenticates the user and returns a JWT, also set as the
// "token" cookie for browser clients.
func LoginHandler(env *Env) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			Email    string `json:"email" binding:"required,email"`
			Password string `json:"password" binding:"required"`
		}
		if !bind(c, &input) {
			return
		}

		var user models.User
		email := strings.ToLower(strings.TrimSpace(input.Email))
		if err := env.DB.WithContext(c).Where("email = ?", email).First(&user).Error; err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid email or password"})
			return
		}
		if !auth.CheckPassword(user.PasswordHash, input.Password) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid email or password"})
			return
		}
		if !user.Active() {
			c.JSON(http.StatusForbidden, gin.H{"error": "account suspended"})
			return
		}

		respondToken(c, env, &user, http.StatusOK)
	}
}

func respondToken(c *gin.Context, env *Env, user *models.User, status int) {
	ttl := env.Config.TokenTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	token, err := auth.Issue(user, env.Config.JWTSecret, ttl, time.Now())
	if err != nil {
		fail(c, fmt.Errorf("issue token: %w", err))
		return
	}
	c.SetCookie("token", token, int(ttl.Seconds()), "/", "", c.Request.TLS != nil, true)
	c.JSON(status, gin.H{
		"token": token,
		"user": gin.H{
			"id":     user.ID,
			"email":  user.Email,
			"name":   user.Name,
			"org_id": user.OrgID,
		},
	})
}

// RegisterHandler creates an organization with its system roles and its
// first user, who becomes the administrator.
func RegisterHandler(env *Env) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			Organization string `json:"organization" binding:"required"`
			Slug         string `json:"slug"`
			Name         string `json:"name" binding:"required"`
			Email        string `json:"email" binding:"required,email"`
			Password     string `json:"password" binding:"required"`
		}
		if !bind(c, &input) {
			return
		}
		if len(input.Password) < auth.MinPasswordLength {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("password must be at least %d characters", auth.MinPasswordLength)})
			return
		}
		slug := input.Slug
		if slug == "" {
			slug = models.Slugify(input.Organization)
		}
		if slug == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "organization slug is empty"})
			return
		}
		hash, err := auth.HashPassword(input.Password)
		if err != nil {
			fail(c, err)
			return
		}

		user := models.User{
			Email:        strings.ToLower(strings.TrimSpace(input.Email)),
			Name:         strings.TrimSpace(input.Name),
			Status:       models.UserActive,
			AuthProvider: "local",
			PasswordHash: hash,
		}
		err = env.DB.WithContext(c).Transaction(func(tx *gorm.DB) error {
			var n int64
			if err := tx.Model(&models.Organization{}).Unscoped().Where("slug = ?", slug).Count(&n).Error; err != nil {
				return err
			}
			if n > 0 {
				return fmt.Errorf("%w: organization %q already exists", store.ErrConflict, slug)
			}
			if err := tx.Model(&models.User{}).Where("email = ?", user.Email).Count(&n).Error; err != nil {
				return err
			}
			if n > 0 {
				return fmt.Errorf("%w: email already registered", store.ErrConflict)
			}

			org := models.Organization{Name: strings.TrimSpace(input.Organization), Slug: slug}
			if err := tx.Create(&org).Error; err != nil {
				return err
			}
			roles, err := seed.OrganizationRoles(tx, org.ID, env.Fixture)
			if err != nil {
				return err
			}
			user.OrgID = org.ID
			if err := tx.Create(&user).Error; err != nil {
				return err
			}
			admin := models.RoleAssignment{UserID: user.ID, RoleID: roles[seed.AdminRole]}
			if err := store.Create(tx, org.ID, user.ID, &admin); err != nil {
				return err
			}
			a := actor(c)
			a.UserID, a.OrgID, a.Name = user.ID, org.ID, user.Email
			return audit.Record(tx, a, "organization.register", "organization", org.ID, map[string]string{"slug": slug})
		})
		if err != nil {
			fail(c, err)
			return
		}
		respondToken(c, env, &user, http.StatusCreated)
	}
}

// LogoutHandler clears the auth cookie.
func LogoutHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.SetCookie("token", "", -1, "/", "", c.Request.TLS != nil, true)
		c.Status(http.StatusNoContent)
	}
}

// MeHandler returns the caller with their organization and permission
// keys.
func MeHandler(env *Env) gin.HandlerFunc {
	return func(c *gin.Context) {
		cl := auth.ClaimsFrom(c)
		var user models.User
		err := env.DB.WithContext(c).Preload("Assignments.Role").First(&user, cl.UserID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		if err != nil {
			fail(c, err)
			return
		}
		var org models.Organization
		if err := env.DB.WithContext(c).First(&org, user.OrgID).Error; err != nil {
			fail(c, err)
			return
		}
		keys, err := env.Checker.Keys(c, user.ID, user.OrgID)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"user": user, "organization": org, "permissions": keys})
	}
}
