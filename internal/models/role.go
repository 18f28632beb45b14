package models

import (
	"regexp"
	"strings"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:[-_][a-z0-9]+)*$`)

// Role is both an organizational role (what a person is responsible for)
// and the unit permissions are granted to.
type Role struct {
	Tenanted
	Name             string       `gorm:"size:200;not null" json:"name"`
	Slug             string       `gorm:"size:200;not null" json:"slug"`
	Description      string       `gorm:"type:text" json:"description,omitempty"`
	Responsibilities string       `gorm:"type:text" json:"responsibilities,omitempty"`
	FunctionID       *int64       `gorm:"index" json:"function_id,omitempty"`
	IsSystem         bool         `gorm:"default:false" json:"is_system"`
	Permissions      []Permission `gorm:"many2many:role_permissions;" json:"permissions,omitempty"`
}

func (r *Role) RecordName() string { return r.Name }

func (r *Role) UniqueKey() map[string]any { return map[string]any{"slug": r.Slug} }

func (r *Role) Refs() []Ref {
	return []Ref{{Field: "function_id", Model: &Function{}, ID: r.FunctionID}}
}

func (r *Role) Validate() error {
	if err := required("name", r.Name); err != nil {
		return err
	}
	if r.Slug == "" {
		r.Slug = Slugify(r.Name)
	}
	if !slugPattern.MatchString(r.Slug) {
		return invalidf("slug %q must be lowercase words joined by - or _", r.Slug)
	}
	return nil
}

// Slugify lowercases s and joins its alphanumeric runs with "-".
func Slugify(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case b.Len() > 0 && !dash:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// RoleAssignment gives a user a role, optionally narrowed to one
// function or process.
type RoleAssignment struct {
	Tenanted
	UserID     int64     `gorm:"index;not null" json:"user_id"`
	RoleID     int64     `gorm:"index;not null" json:"role_id"`
	ScopeType  ScopeType `gorm:"size:20;not null;default:organization" json:"scope_type"`
	ScopeID    *int64    `gorm:"index" json:"scope_id,omitempty"`
	Allocation int       `gorm:"default:100" json:"allocation"`

	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Role *Role `gorm:"foreignKey:RoleID" json:"role,omitempty"`
}

func (a *RoleAssignment) RecordName() string { return string(a.ScopeType) }

func (a *RoleAssignment) UniqueKey() map[string]any {
	k := map[string]any{"user_id": a.UserID, "role_id": a.RoleID, "scope_type": a.ScopeType}
	if a.ScopeID != nil {
		k["scope_id"] = *a.ScopeID
	}
	return k
}

func (a *RoleAssignment) Refs() []Ref {
	refs := []Ref{
		{Field: "user_id", Model: &User{}, ID: &a.UserID},
		{Field: "role_id", Model: &Role{}, ID: &a.RoleID},
	}
	switch a.ScopeType {
	case ScopeFunction:
		refs = append(refs, Ref{Field: "scope_id", Model: &Function{}, ID: a.ScopeID})
	case ScopeProcess:
		refs = append(refs, Ref{Field: "scope_id", Model: &Process{}, ID: a.ScopeID})
	}
	return refs
}

func (a *RoleAssignment) Validate() error {
	if a.UserID == 0 || a.RoleID == 0 {
		return invalidf("user_id and role_id are required")
	}
	if a.ScopeType == "" {
		a.ScopeType = ScopeOrganization
	}
	if a.ScopeType == ScopeOrganization {
		a.ScopeID = nil
	} else if a.ScopeID == nil {
		return invalidf("scope_id is required for %s scope", a.ScopeType)
	}
	if a.Allocation == 0 {
		a.Allocation = 100
	}
	if a.Allocation < 0 || a.Allocation > 100 {
		return invalidf("allocation must be between 0 and 100")
	}
	return nil
}
