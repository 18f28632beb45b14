package operations

import (
	"context"

	"orgops/internal/models"
	"orgops/internal/store"
	"orgops/internal/views"
)

type Dashboard struct {
	Resources  views.Stats `json:"resources"`
	Functions  views.Stats `json:"functions"`
	Processes  views.Stats `json:"processes"`
	Activities views.Stats `json:"activities"`
	Goals      views.Stats `json:"goals"`
	// AverageObjectiveProgress is the mean progress of all objectives.
	AverageObjectiveProgress float64 `json:"average_objective_progress"`
}

func (s *Service) Dashboard(ctx context.Context, orgID int64) (*Dashboard, error) {
	d := &Dashboard{}

	resources, err := store.List[models.Resource](ctx, s.DB, orgID)
	if err != nil {
		return nil, err
	}
	d.Resources = views.Summarize(ptrs(resources), models.StatusOrder(models.ResourceStatuses))

	functions, err := store.List[models.Function](ctx, s.DB, orgID)
	if err != nil {
		return nil, err
	}
	d.Functions = views.Summarize(ptrs(functions), nil)

	processes, err := store.List[models.Process](ctx, s.DB, orgID)
	if err != nil {
		return nil, err
	}
	d.Processes = views.Summarize(ptrs(processes), models.StatusOrder(models.ProcessStatuses))

	activities, err := store.List[models.Activity](ctx, s.DB, orgID)
	if err != nil {
		return nil, err
	}
	d.Activities = views.Summarize(ptrs(activities), models.StatusOrder(models.ActivityStatuses))

	goals, err := store.List[models.Goal](ctx, s.DB, orgID)
	if err != nil {
		return nil, err
	}
	d.Goals = views.Summarize(ptrs(goals), models.StatusOrder(models.GoalStatuses))
	var objectives []models.Goal
	for _, g := range goals {
		if g.Kind == models.GoalObjective {
			objectives = append(objectives, g)
		}
	}
	d.AverageObjectiveProgress = models.ObjectiveProgress(objectives)
	return d, nil
}

// ptrs turns a loaded slice into pointers, which is what carries the
// view methods.
func ptrs[T any](items []T) []*T {
	out := make([]*T, len(items))
	for i := range items {
		out[i] = &items[i]
	}
	return out
}
