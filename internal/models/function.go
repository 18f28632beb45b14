package models

// Function is a business function (Sales, Finance, ...). Functions nest
// through ParentID.
type Function struct {
	Tenanted
	Name         string               `gorm:"size:200;not null" json:"name"`
	Description  string               `gorm:"type:text" json:"description,omitempty"`
	ParentID     *int64               `gorm:"index" json:"parent_id,omitempty"`
	OwnerUserID  *int64               `gorm:"index" json:"owner_user_id,omitempty"`
	Capabilities []FunctionCapability `gorm:"foreignKey:FunctionID" json:"capabilities,omitempty"`
}

func (f *Function) RecordName() string { return f.Name }

func (f *Function) UniqueKey() map[string]any { return map[string]any{"name": f.Name} }

func (f *Function) Refs() []Ref {
	return []Ref{
		{Field: "parent_id", Model: &Function{}, ID: f.ParentID},
		{Field: "owner_user_id", Model: &User{}, ID: f.OwnerUserID},
	}
}

func (f *Function) Validate() error {
	if err := required("name", f.Name); err != nil {
		return err
	}
	if f.ParentID != nil && *f.ParentID == f.ID && f.ID != 0 {
		return invalidf("a function cannot be its own parent")
	}
	return nil
}

// FunctionCapability is something a function is able to do, with a 1-5
// maturity level.
type FunctionCapability struct {
	Tenanted
	FunctionID  int64  `gorm:"index;not null" json:"function_id"`
	Name        string `gorm:"size:200;not null" json:"name"`
	Description string `gorm:"type:text" json:"description,omitempty"`
	Level       int    `gorm:"default:1" json:"level"`
}

func (c *FunctionCapability) RecordName() string { return c.Name }

func (c *FunctionCapability) UniqueKey() map[string]any {
	return map[string]any{"function_id": c.FunctionID, "name": c.Name}
}

func (c *FunctionCapability) Refs() []Ref {
	return []Ref{{Field: "function_id", Model: &Function{}, ID: &c.FunctionID}}
}

func (c *FunctionCapability) Validate() error {
	if err := required("name", c.Name); err != nil {
		return err
	}
	if c.FunctionID == 0 {
		return invalidf("function_id is required")
	}
	if c.Level == 0 {
		c.Level = 1
	}
	if c.Level < 1 || c.Level > 5 {
		return invalidf("level must be between 1 and 5")
	}
	return nil
}
