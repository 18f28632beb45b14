package models

import (
	"math"
	"time"
)

// Goal is an objective or one of its key results.
type Goal struct {
	Tenanted
	Title        string     `gorm:"size:255;not null" json:"title"`
	Description  string     `gorm:"type:text" json:"description,omitempty"`
	Kind         GoalKind   `gorm:"size:20;not null;default:objective" json:"kind"`
	Status       GoalStatus `gorm:"size:20;not null;default:not_started" json:"status"`
	ParentID     *int64     `gorm:"index" json:"parent_id,omitempty"`
	FunctionID   *int64     `gorm:"index" json:"function_id,omitempty"`
	OwnerUserID  *int64     `gorm:"index" json:"owner_user_id,omitempty"`
	TargetValue  float64    `json:"target_value"`
	CurrentValue float64    `json:"current_value"`
	Unit         string     `gorm:"size:50" json:"unit,omitempty"`
	Progress     float64    `json:"progress"`
	DueDate      *time.Time `json:"due_date,omitempty"`

	KeyResults []Goal `gorm:"-" json:"key_results,omitempty"`
}

func (g *Goal) RecordName() string   { return g.Title }
func (g *Goal) RecordStatus() string { return string(g.Status) }

func (g *Goal) Refs() []Ref {
	return []Ref{
		{Field: "parent_id", Model: &Goal{}, ID: g.ParentID},
		{Field: "function_id", Model: &Function{}, ID: g.FunctionID},
		{Field: "owner_user_id", Model: &User{}, ID: g.OwnerUserID},
	}
}

func (g *Goal) Validate() error {
	if err := required("title", g.Title); err != nil {
		return err
	}
	if g.Kind == "" {
		g.Kind = GoalObjective
	}
	if g.Status == "" {
		g.Status = GoalNotStarted
	}
	switch g.Kind {
	case GoalKeyResult:
		if g.ParentID == nil {
			return invalidf("a key result needs a parent objective")
		}
	case GoalObjective:
		if g.ParentID != nil {
			return invalidf("an objective cannot have a parent")
		}
	}
	if g.TargetValue < 0 {
		return invalidf("target_value must not be negative")
	}
	if g.Kind == GoalKeyResult {
		g.Progress = KeyResultProgress(g.CurrentValue, g.TargetValue)
	}
	return nil
}

// KeyResultProgress is current/target as a 0-100 percentage, clamped.
func KeyResultProgress(current, target float64) float64 {
	if target <= 0 {
		if current > 0 {
			return 100
		}
		return 0
	}
	p := current / target * 100
	return math.Round(math.Max(0, math.Min(100, p))*100) / 100
}

// ObjectiveProgress is the mean progress of the given key results.
func ObjectiveProgress(keyResults []Goal) float64 {
	if len(keyResults) == 0 {
		return 0
	}
	var sum float64
	for _, kr := range keyResults {
		sum += kr.Progress
	}
	return math.Round(sum/float64(len(keyResults))*100) / 100
}
