package operations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"orgops/internal/audit"
	"orgops/internal/jobs"
	"orgops/internal/models"
	"orgops/internal/store"
)

// GoalTree returns the objectives of orgID with their key results nested.
// Key results whose parent is gone are returned as roots.
func (s *Service) GoalTree(ctx context.Context, orgID int64) ([]models.Goal, error) {
	goals, err := store.List[models.Goal](ctx, s.DB, orgID)
	if err != nil {
		return nil, err
	}
	children := map[int64][]models.Goal{}
	ids := map[int64]bool{}
	for _, g := range goals {
		ids[g.ID] = true
	}
	roots := []models.Goal{}
	for _, g := range goals {
		if g.ParentID != nil && ids[*g.ParentID] {
			children[*g.ParentID] = append(children[*g.ParentID], g)
		}
	}
	for _, g := range goals {
		if g.ParentID != nil && ids[*g.ParentID] {
			continue
		}
		g.KeyResults = children[g.ID]
		roots = append(roots, g)
	}
	return roots, nil
}

// CheckGoalParent rejects a key result whose parent is not an objective.
func CheckGoalParent(tx *gorm.DB, orgID int64, g *models.Goal) error {
	if g.ParentID == nil {
		return nil
	}
	var parent models.Goal
	if err := store.Scoped(tx, orgID).First(&parent, *g.ParentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("parent goal %d: %w", *g.ParentID, store.ErrNotFound)
		}
		return err
	}
	if parent.Kind != models.GoalObjective {
		return fmt.Errorf("%w: parent goal %d is not an objective", models.ErrInvalid, parent.ID)
	}
	return nil
}

// ProgressUpdate is the body of a key-result check-in.
type ProgressUpdate struct {
	CurrentValue float64            `json:"current_value"`
	Status       *models.GoalStatus `json:"status,omitempty"`
}

// UpdateProgress records a key result's current value and schedules the
// parent objective's roll-up.
func (s *Service) UpdateProgress(ctx context.Context, actor audit.Actor, goalID int64, in ProgressUpdate) (*models.Goal, error) {
	var goal models.Goal
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := store.Scoped(tx, actor.OrgID).First(&goal, goalID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("goal %d: %w", goalID, store.ErrNotFound)
			}
			return err
		}
		if goal.Kind != models.GoalKeyResult {
			return fmt.Errorf("%w: objective progress is derived from its key results", models.ErrInvalid)
		}
		before := goal.CurrentValue
		goal.CurrentValue = in.CurrentValue
		if in.Status != nil && *in.Status != "" {
			goal.Status = *in.Status
		}
		if err := store.Save(tx, actor.OrgID, actor.UserID, &goal); err != nil {
			return err
		}
		return audit.Record(tx, actor, "goal.progress", "goal", goal.ID,
			map[string]float64{"from": before, "to": goal.CurrentValue, "progress": goal.Progress})
	})
	if err != nil {
		return nil, err
	}
	s.ScheduleRollup(ctx, actor.OrgID, goal.ParentID)
	return &goal, nil
}

// ScheduleRollup enqueues a roll-up of objectiveID. Enqueue failures are
// logged; the next check-in retries.
func (s *Service) ScheduleRollup(ctx context.Context, orgID int64, objectiveID *int64) {
	if objectiveID == nil || s.Jobs == nil {
		return
	}
	task, err := jobs.NewTask(jobs.TypeGoalRollup, jobs.GoalRollupPayload{OrgID: orgID, ObjectiveID: *objectiveID})
	if err == nil {
		_, err = s.Jobs.Enqueue(ctx, task)
	}
	if err != nil {
		slog.Warn("goal rollup not scheduled", "org_id", orgID, "objective_id", *objectiveID, "err", err)
	}
}

// Rollup sets an objective's progress to the mean of its live key
// results. A missing objective is not an error: it may have been deleted
// after the task was queued.
func (s *Service) Rollup(ctx context.Context, orgID, objectiveID int64) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var obj models.Goal
		if err := store.Scoped(tx, orgID).First(&obj, objectiveID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		var krs []models.Goal
		if err := store.Scoped(tx, orgID).Where("parent_id = ?", objectiveID).Find(&krs).Error; err != nil {
			return err
		}
		progress := models.ObjectiveProgress(krs)
		if progress == obj.Progress {
			return nil
		}
		return tx.Model(&obj).Update("progress", progress).Error
	})
}
