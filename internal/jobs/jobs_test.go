package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInlineRunsRegisteredHandler(t *testing.T) {
	q := NewInline()
	var got GoalRollupPayload
	q.Register(TypeGoalRollup, func(ctx context.Context, task Task) error {
		return task.Decode(&got)
	})

	task, err := NewTask(TypeGoalRollup, GoalRollupPayload{OrgID: 3, ObjectiveID: 9})
	require.NoError(t, err)
	_, err = q.Enqueue(context.Background(), task)
	require.NoError(t, err)
	assert.Equal(t, GoalRollupPayload{OrgID: 3, ObjectiveID: 9}, got)
}

func TestInlineUnknownType(t *testing.T) {
	q := NewInline()
	_, err := q.Enqueue(context.Background(), Task{Type: "nope"})
	assert.ErrorIs(t, err, ErrNoHandler)
}

func TestInlineHoldDefersScheduledTasks(t *testing.T) {
	q := NewInline()
	q.Hold = true
	runs := 0
	q.Register(TypeExpirePendingAction, func(context.Context, Task) error {
		runs++
		return nil
	})

	task := Task{Type: TypeExpirePendingAction}
	_, err := q.Enqueue(context.Background(), task, Option{ProcessIn: time.Hour})
	require.NoError(t, err)
	assert.Equal(t, 0, runs)

	// immediate tasks still run
	_, err = q.Enqueue(context.Background(), task)
	require.NoError(t, err)
	assert.Equal(t, 1, runs)

	require.NoError(t, q.Flush(context.Background()))
	assert.Equal(t, 2, runs)
}

func TestParseQueueWeights(t *testing.T) {
	assert.Equal(t, map[string]int{"critical": 6, "default": 3},
		ParseQueueWeights("critical=6, default=3, bad, low=x, =2"))
	assert.Empty(t, ParseQueueWeights(""))
}
