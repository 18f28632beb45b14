package models

import "gorm.io/datatypes"

type Resource struct {
	Tenanted
	Name        string         `gorm:"size:200;not null" json:"name"`
	Description string         `gorm:"type:text" json:"description,omitempty"`
	Type        ResourceType   `gorm:"size:30;not null" json:"type"`
	SubtypeID   *int64         `gorm:"index" json:"subtype_id,omitempty"`
	Status      ResourceStatus `gorm:"size:30;not null;default:available" json:"status"`
	Cost        float64        `json:"cost"`
	OwnerUserID *int64         `gorm:"index" json:"owner_user_id,omitempty"`
	Metadata    datatypes.JSON `gorm:"type:json" json:"metadata,omitempty"`
}

func (r *Resource) RecordName() string   { return r.Name }
func (r *Resource) RecordStatus() string { return string(r.Status) }

func (r *Resource) UniqueKey() map[string]any { return map[string]any{"name": r.Name} }

func (r *Resource) Refs() []Ref {
	return []Ref{
		{Field: "subtype_id", Model: &ResourceSubtype{}, ID: r.SubtypeID},
		{Field: "owner_user_id", Model: &User{}, ID: r.OwnerUserID},
	}
}

func (r *Resource) Validate() error {
	if err := required("name", r.Name); err != nil {
		return err
	}
	if r.Type == "" {
		return invalidf("type is required")
	}
	if r.Status == "" {
		r.Status = ResourceAvailable
	}
	if r.Cost < 0 {
		return invalidf("cost must not be negative")
	}
	return nil
}

// ResourceSubtype refines a resource type per tenant, e.g. "laptop" under
// physical.
type ResourceSubtype struct {
	Tenanted
	ResourceType ResourceType `gorm:"size:30;not null" json:"resource_type"`
	Name         string       `gorm:"size:200;not null" json:"name"`
	Description  string       `gorm:"type:text" json:"description,omitempty"`
}

func (s *ResourceSubtype) RecordName() string { return s.Name }

func (s *ResourceSubtype) UniqueKey() map[string]any {
	return map[string]any{"resource_type": s.ResourceType, "name": s.Name}
}

func (s *ResourceSubtype) Validate() error {
	if err := required("name", s.Name); err != nil {
		return err
	}
	if s.ResourceType == "" {
		return invalidf("resource_type is required")
	}
	return nil
}
