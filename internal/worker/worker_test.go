package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orgops/internal/cache"
	"orgops/internal/conversations"
	"orgops/internal/db/dbtest"
	"orgops/internal/jobs"
	"orgops/internal/models"
	"orgops/internal/operations"
	"orgops/internal/store"
)

func TestRegisteredHandlersRun(t *testing.T) {
	ctx := context.Background()
	gdb := dbtest.Open(t)
	org := models.Organization{Name: "Acme", Slug: "acme"}
	require.NoError(t, gdb.Create(&org).Error)

	q := jobs.NewInline()
	ops := operations.New(gdb, q)
	conv := conversations.New(gdb, q, nil, ops, time.Minute)
	mem := cache.NewMemory()
	Register(q, ops, conv, &cache.Collections{Cache: mem, TTL: time.Minute})

	obj := &models.Goal{Title: "Grow"}
	require.NoError(t, store.Create(gdb, org.ID, 0, obj))
	kr := &models.Goal{Title: "Sign deals", Kind: models.GoalKeyResult, ParentID: &obj.ID, TargetValue: 4, CurrentValue: 1}
	require.NoError(t, store.Create(gdb, org.ID, 0, kr))

	goalsKey := cache.CollectionKey(org.ID, "goals")
	require.NoError(t, mem.Set(ctx, goalsKey, "[]", time.Minute))

	task, err := jobs.NewTask(jobs.TypeGoalRollup, jobs.GoalRollupPayload{OrgID: org.ID, ObjectiveID: obj.ID})
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, task)
	require.NoError(t, err)

	got, err := store.Get[models.Goal](ctx, gdb, org.ID, obj.ID)
	require.NoError(t, err)
	assert.InDelta(t, 25.0, got.Progress, 0.001)
	_, err = mem.Get(ctx, goalsKey)
	assert.ErrorIs(t, err, cache.ErrMiss, "rollup drops the cached goals")

	task, err = jobs.NewTask(jobs.TypeExpirePendingAction, jobs.PendingActionPayload{OrgID: org.ID, ActionID: 12345})
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, task)
	assert.NoError(t, err, "a missing action is not an error")
}
