package models

import "time"

type User struct {
	ID           int64      `gorm:"primaryKey" json:"id"`
	OrgID        int64      `gorm:"index" json:"org_id"`
	Email        string     `gorm:"uniqueIndex;size:255;not null" json:"email"`
	Name         string     `gorm:"size:200" json:"name"`
	JobTitle     string     `gorm:"size:200" json:"job_title,omitempty"`
	FunctionID   *int64     `gorm:"index" json:"function_id,omitempty"`
	AuthProvider string     `gorm:"size:20;default:local" json:"auth_provider"`
	PasswordHash string     `gorm:"size:255" json:"-"`
	Status       UserStatus `gorm:"size:16;default:active" json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`

	Assignments []RoleAssignment `gorm:"foreignKey:UserID" json:"assignments,omitempty"`
}

func (u *User) Active() bool { return u.Status == UserActive }
