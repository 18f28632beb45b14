package rbac

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"orgops/internal/db/dbtest"
	"orgops/internal/models"
	"orgops/internal/seed"
)

func setup(t *testing.T) (*gorm.DB, *seed.Fixture, models.User) {
	t.Helper()
	gdb := dbtest.Open(t)
	f, err := seed.Load("")
	require.NoError(t, err)
	require.NoError(t, seed.Run(gdb, f))
	var admin models.User
	require.NoError(t, gdb.Where("email = ?", f.Admin.Email).First(&admin).Error)
	return gdb, f, admin
}

func assign(t *testing.T, gdb *gorm.DB, orgID, userID int64, slug string) *models.RoleAssignment {
	t.Helper()
	var role models.Role
	require.NoError(t, gdb.Where("org_id = ? AND slug = ?", orgID, slug).First(&role).Error)
	ra := &models.RoleAssignment{Tenanted: models.Tenanted{OrgID: orgID}, UserID: userID, RoleID: role.ID, ScopeType: models.ScopeOrganization}
	require.NoError(t, gdb.Create(ra).Error)
	return ra
}

func TestCan(t *testing.T) {
	gdb, _, admin := setup(t)
	chk := Checker{DB: gdb}
	ctx := context.Background()

	ok, err := chk.Can(ctx, admin.ID, admin.OrgID, "audit:read")
	require.NoError(t, err)
	assert.True(t, ok)

	mia := models.User{OrgID: admin.OrgID, Email: "mia@example.com", Status: models.UserActive}
	require.NoError(t, gdb.Create(&mia).Error)
	ok, err = chk.Can(ctx, mia.ID, mia.OrgID, "operations:read")
	require.NoError(t, err)
	assert.False(t, ok, "no assignment, no access")

	ra := assign(t, gdb, mia.OrgID, mia.ID, "member")
	ok, _ = chk.Can(ctx, mia.ID, mia.OrgID, "operations:read")
	assert.True(t, ok)
	ok, _ = chk.Can(ctx, mia.ID, mia.OrgID, "operations:write")
	assert.False(t, ok)

	require.NoError(t, gdb.Delete(ra).Error)
	ok, _ = chk.Can(ctx, mia.ID, mia.OrgID, "operations:read")
	assert.False(t, ok, "soft-deleted assignments grant nothing")
}

func TestCanIgnoresOtherOrganizations(t *testing.T) {
	gdb, f, admin := setup(t)
	chk := Checker{DB: gdb}
	ctx := context.Background()

	other := models.Organization{Name: "Globex", Slug: "globex"}
	require.NoError(t, gdb.Create(&other).Error)
	_, err := seed.OrganizationRoles(gdb, other.ID, f)
	require.NoError(t, err)

	ok, err := chk.Can(ctx, admin.ID, other.ID, "users:read")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestKeys(t *testing.T) {
	gdb, f, admin := setup(t)
	keys, err := Checker{DB: gdb}.Keys(context.Background(), admin.ID, admin.OrgID)
	require.NoError(t, err)
	assert.Len(t, keys, len(f.Permissions))
	assert.IsIncreasing(t, keys)
	assert.Equal(t, "goals:write", Key("Goals", "WRITE"))
}
