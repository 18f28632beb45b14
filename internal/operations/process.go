package operations

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"orgops/internal/audit"
	"orgops/internal/models"
	"orgops/internal/store"
)

// Graph is a process with its activities and the edges between them.
type Graph struct {
	Process    models.Process        `json:"process"`
	Activities []models.Activity     `json:"activities"`
	Edges      []models.ActivityEdge `json:"edges"`
}

func (s *Service) ProcessGraph(ctx context.Context, orgID, processID int64) (*Graph, error) {
	proc, err := store.Get[models.Process](ctx, s.DB, orgID, processID)
	if err != nil {
		return nil, err
	}
	g := &Graph{Process: *proc, Activities: []models.Activity{}, Edges: []models.ActivityEdge{}}
	db := store.Scoped(s.DB.WithContext(ctx), orgID)
	if err := db.Where("process_id = ?", processID).Order("sort_order, id").Find(&g.Activities).Error; err != nil {
		return nil, err
	}
	if err := store.Scoped(s.DB.WithContext(ctx), orgID).Where("process_id = ?", processID).Order("id").Find(&g.Edges).Error; err != nil {
		return nil, err
	}
	return g, nil
}

// AddEdge links two live activities of the same process. Self loops and
// duplicate edges are rejected.
func (s *Service) AddEdge(ctx context.Context, actor audit.Actor, processID int64, in models.ActivityEdge) (*models.ActivityEdge, error) {
	if in.SourceID == 0 || in.TargetID == 0 {
		return nil, fmt.Errorf("%w: source_id and target_id are required", models.ErrInvalid)
	}
	if in.SourceID == in.TargetID {
		return nil, fmt.Errorf("%w: an activity cannot link to itself", models.ErrInvalid)
	}
	edge := &models.ActivityEdge{ProcessID: processID, SourceID: in.SourceID, TargetID: in.TargetID, Label: in.Label}
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if ok, err := store.Exists(tx, &models.Process{}, actor.OrgID, processID); err != nil {
			return err
		} else if !ok {
			return fmt.Errorf("process %d: %w", processID, store.ErrNotFound)
		}
		var n int64
		err := store.Scoped(tx.Model(&models.Activity{}), actor.OrgID).
			Where("process_id = ? AND id IN ?", processID, []int64{in.SourceID, in.TargetID}).
			Count(&n).Error
		if err != nil {
			return err
		}
		if n != 2 {
			return fmt.Errorf("edge endpoints must be activities of process %d: %w", processID, store.ErrNotFound)
		}
		if err := store.CheckUnique(tx, edge, actor.OrgID, 0, map[string]any{"source_id": in.SourceID, "target_id": in.TargetID}); err != nil {
			return err
		}
		if err := store.Create(tx, actor.OrgID, actor.UserID, edge); err != nil {
			return err
		}
		return audit.Record(tx, actor, "activity_edge.create", "activity_edge", edge.ID,
			map[string]int64{"process_id": processID, "source_id": in.SourceID, "target_id": in.TargetID})
	})
	if err != nil {
		return nil, err
	}
	return edge, nil
}

func (s *Service) DeleteEdge(ctx context.Context, actor audit.Actor, processID, edgeID int64) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := store.Scoped(tx, actor.OrgID).Where("process_id = ?", processID).Delete(&models.ActivityEdge{}, edgeID)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("edge %d: %w", edgeID, store.ErrNotFound)
		}
		return audit.Record(tx, actor, "activity_edge.delete", "activity_edge", edgeID, nil)
	})
}

// Position is one entry of a layout batch.
type Position struct {
	ActivityID int64   `json:"activity_id"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	SortOrder  *int    `json:"sort_order,omitempty"`
}

// SaveLayout stores a batch of activity positions atomically. Any ID that
// is not a live activity of the process fails the whole batch.
func (s *Service) SaveLayout(ctx context.Context, actor audit.Actor, processID int64, positions []Position) error {
	if len(positions) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(positions))
	seen := map[int64]bool{}
	for _, p := range positions {
		if seen[p.ActivityID] {
			return fmt.Errorf("%w: activity %d appears twice in the batch", models.ErrInvalid, p.ActivityID)
		}
		seen[p.ActivityID] = true
		ids = append(ids, p.ActivityID)
	}
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		err := store.Scoped(tx.Model(&models.Activity{}), actor.OrgID).
			Where("process_id = ? AND id IN ?", processID, ids).Count(&n).Error
		if err != nil {
			return err
		}
		if int(n) != len(ids) {
			return fmt.Errorf("layout references activities outside process %d: %w", processID, store.ErrNotFound)
		}
		for _, p := range positions {
			updates := map[string]any{"position_x": p.X, "position_y": p.Y}
			if actor.UserID != 0 {
				updates["updated_by"] = actor.UserID
			}
			if p.SortOrder != nil {
				updates["sort_order"] = *p.SortOrder
			}
			if err := store.Scoped(tx.Model(&models.Activity{}), actor.OrgID).Where("id = ?", p.ActivityID).Updates(updates).Error; err != nil {
				return err
			}
		}
		return audit.Record(tx, actor, "process.layout", "process", processID, map[string]int{"activities": len(positions)})
	})
}

// DeleteProcessChildren soft-deletes the activities and edges of a
// deleted process.
func DeleteProcessChildren(tx *gorm.DB, orgID, processID int64) error {
	if err := store.Scoped(tx, orgID).Where("process_id = ?", processID).Delete(&models.ActivityEdge{}).Error; err != nil {
		return err
	}
	return store.Scoped(tx, orgID).Where("process_id = ?", processID).Delete(&models.Activity{}).Error
}

// DeleteActivityEdges soft-deletes every edge touching a deleted activity.
func DeleteActivityEdges(tx *gorm.DB, orgID, activityID int64) error {
	return store.Scoped(tx, orgID).
		Where("(source_id = ? OR target_id = ?)", activityID, activityID).
		Delete(&models.ActivityEdge{}).Error
}

// CheckActivityMove refuses to move an activity to another process while
// edges still connect it to its current one.
func CheckActivityMove(tx *gorm.DB, orgID int64, a, prev *models.Activity) error {
	if prev == nil || a.ProcessID == prev.ProcessID {
		return nil
	}
	var n int64
	err := store.Scoped(tx, orgID).Model(&models.ActivityEdge{}).
		Where("(source_id = ? OR target_id = ?)", a.ID, a.ID).
		Count(&n).Error
	if err != nil {
		return err
	}
	if n > 0 {
		return fmt.Errorf("%w: activity %d has %d edges in process %d", store.ErrConflict, a.ID, n, prev.ProcessID)
	}
	return nil
}
