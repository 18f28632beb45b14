// Package operations implements the organizational-modeling operations
// that go beyond plain CRUD: process graphs, goal roll-ups and the
// operations dashboard.
package operations

import (
	"gorm.io/gorm"

	"orgops/internal/jobs"
)

type Service struct {
	DB   *gorm.DB
	Jobs jobs.Queue
}

func New(db *gorm.DB, q jobs.Queue) *Service {
	return &Service{DB: db, Jobs: q}
}
