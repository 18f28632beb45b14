package seed

import (
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"

	"orgops/internal/models"
)

//go:embed fixture.yaml
var defaultFixture []byte

type Fixture struct {
	Permissions []struct {
		Key         string `yaml:"key"`
		Description string `yaml:"description"`
	} `yaml:"permissions"`
	Roles []RoleFixture `yaml:"roles"`

	Organization struct {
		Name string `yaml:"name"`
		Slug string `yaml:"slug"`
	} `yaml:"organization"`

	Admin struct {
		Email    string `yaml:"email"`
		Name     string `yaml:"name"`
		Password string `yaml:"password"`
	} `yaml:"admin"`
}

// RoleFixture lists permission keys; "*" grants the whole catalog.
type RoleFixture struct {
	Slug        string   `yaml:"slug"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

// AdminRole is the slug of the role given to an organization's first user.
const AdminRole = "admin"

// Load parses the fixture at path, or the embedded default when path is
// empty.
func Load(path string) (*Fixture, error) {
	raw := defaultFixture
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("seed: read %s: %w", path, err)
		}
		raw = b
	}
	var f Fixture
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("seed: parse fixture: %w", err)
	}
	if err := f.validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

func (f *Fixture) validate() error {
	known := map[string]bool{"*": true}
	for _, p := range f.Permissions {
		if _, _, ok := strings.Cut(p.Key, ":"); !ok {
			return fmt.Errorf("seed: permission key %q is not resource:action", p.Key)
		}
		known[p.Key] = true
	}
	hasAdmin := false
	for _, r := range f.Roles {
		if r.Slug == AdminRole {
			hasAdmin = true
		}
		for _, k := range r.Permissions {
			if !known[k] {
				return fmt.Errorf("seed: role %s grants unknown permission %q", r.Slug, k)
			}
		}
	}
	if !hasAdmin {
		return errors.New("seed: fixture has no admin role")
	}
	return nil
}

// Permissions makes sure the catalog exists and returns key -> ID.
func Permissions(tx *gorm.DB, f *Fixture) (map[string]int64, error) {
	ids := make(map[string]int64, len(f.Permissions))
	for _, p := range f.Permissions {
		resource, action, _ := strings.Cut(p.Key, ":")
		perm := models.Permission{Key: p.Key, Description: p.Description, Resource: resource, Action: action}
		if err := tx.Where("perm_key = ?", p.Key).FirstOrCreate(&perm).Error; err != nil {
			return nil, err
		}
		ids[p.Key] = perm.ID
	}
	return ids, nil
}

// OrganizationRoles creates the fixture's system roles for orgID and
// returns slug -> role ID. Existing roles keep their permissions.
func OrganizationRoles(tx *gorm.DB, orgID int64, f *Fixture) (map[string]int64, error) {
	permIDs, err := Permissions(tx, f)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(f.Roles))
	for _, rf := range f.Roles {
		role := models.Role{Tenanted: models.Tenanted{OrgID: orgID}, Name: rf.Name, Slug: rf.Slug, IsSystem: true}
		res := tx.Where("org_id = ? AND slug = ?", orgID, rf.Slug).FirstOrCreate(&role)
		if res.Error != nil {
			return nil, res.Error
		}
		out[rf.Slug] = role.ID
		if res.RowsAffected == 0 {
			continue
		}
		var perms []models.Permission
		for _, key := range rf.Permissions {
			if key == "*" {
				perms = perms[:0]
				for k, id := range permIDs {
					perms = append(perms, models.Permission{ID: id, Key: k})
				}
				break
			}
			perms = append(perms, models.Permission{ID: permIDs[key], Key: key})
		}
		if len(perms) > 0 {
			if err := tx.Model(&role).Association("Permissions").Append(perms); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

// Run seeds the default organization, its roles and the admin user. It is
// safe to run on every start.
func Run(db *gorm.DB, f *Fixture) error {
	return db.Transaction(func(tx *gorm.DB) error {
		org := models.Organization{Name: f.Organization.Name, Slug: f.Organization.Slug}
		if err := tx.Where("slug = ?", org.Slug).FirstOrCreate(&org).Error; err != nil {
			return err
		}
		roles, err := OrganizationRoles(tx, org.ID, f)
		if err != nil {
			return err
		}

		email := strings.ToLower(strings.TrimSpace(f.Admin.Email))
		var existing models.User
		err = tx.Where("email = ?", email).First(&existing).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(f.Admin.Password), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		admin := models.User{
			OrgID:        org.ID,
			Email:        email,
			Name:         f.Admin.Name,
			Status:       models.UserActive,
			AuthProvider: "local",
			PasswordHash: string(hash),
		}
		if err := tx.Create(&admin).Error; err != nil {
			return err
		}
		assignment := models.RoleAssignment{
			Tenanted:   models.Tenanted{OrgID: org.ID},
			UserID:     admin.ID,
			RoleID:     roles[AdminRole],
			ScopeType:  models.ScopeOrganization,
			Allocation: 100,
		}
		if err := tx.Create(&assignment).Error; err != nil {
			return err
		}
		slog.Info("seeded admin user", "email", email, "org", org.Slug, "roles", len(roles))
		return nil
	})
}
