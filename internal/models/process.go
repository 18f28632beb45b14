package models

type Process struct {
	Tenanted
	Name        string        `gorm:"size:200;not null" json:"name"`
	Description string        `gorm:"type:text" json:"description,omitempty"`
	FunctionID  *int64        `gorm:"index" json:"function_id,omitempty"`
	OwnerUserID *int64        `gorm:"index" json:"owner_user_id,omitempty"`
	Status      ProcessStatus `gorm:"size:20;not null;default:draft" json:"status"`
}

func (p *Process) RecordName() string   { return p.Name }
func (p *Process) RecordStatus() string { return string(p.Status) }

func (p *Process) UniqueKey() map[string]any { return map[string]any{"name": p.Name} }

func (p *Process) Refs() []Ref {
	return []Ref{
		{Field: "function_id", Model: &Function{}, ID: p.FunctionID},
		{Field: "owner_user_id", Model: &User{}, ID: p.OwnerUserID},
	}
}

func (p *Process) Validate() error {
	if err := required("name", p.Name); err != nil {
		return err
	}
	if p.Status == "" {
		p.Status = ProcessDraft
	}
	return nil
}

// Activity is a step of a process. PositionX/Y place it on the process
// canvas.
type Activity struct {
	Tenanted
	ProcessID       int64          `gorm:"index;not null" json:"process_id"`
	Name            string         `gorm:"size:200;not null" json:"name"`
	Description     string         `gorm:"type:text" json:"description,omitempty"`
	Status          ActivityStatus `gorm:"size:20;not null;default:todo" json:"status"`
	AssigneeRoleID  *int64         `gorm:"index" json:"assignee_role_id,omitempty"`
	DurationMinutes int            `json:"duration_minutes"`
	SortOrder       int            `json:"sort_order"`
	PositionX       float64        `json:"position_x"`
	PositionY       float64        `json:"position_y"`
}

func (a *Activity) RecordName() string   { return a.Name }
func (a *Activity) RecordStatus() string { return string(a.Status) }

func (a *Activity) Refs() []Ref {
	return []Ref{
		{Field: "process_id", Model: &Process{}, ID: &a.ProcessID},
		{Field: "assignee_role_id", Model: &Role{}, ID: a.AssigneeRoleID},
	}
}

func (a *Activity) Validate() error {
	if err := required("name", a.Name); err != nil {
		return err
	}
	if a.ProcessID == 0 {
		return invalidf("process_id is required")
	}
	if a.Status == "" {
		a.Status = ActivityTodo
	}
	if a.DurationMinutes < 0 {
		return invalidf("duration_minutes must not be negative")
	}
	return nil
}

// ActivityEdge is a directed link between two activities of one process.
type ActivityEdge struct {
	Tenanted
	ProcessID int64  `gorm:"index;not null" json:"process_id"`
	SourceID  int64  `gorm:"index;not null" json:"source_id"`
	TargetID  int64  `gorm:"index;not null" json:"target_id"`
	Label     string `gorm:"size:200" json:"label,omitempty"`
}
