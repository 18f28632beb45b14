// Package worker binds background task types to the domain services that
// handle them. The same registration serves the asynq server and the
// inline queue.
package worker

import (
	"context"
	"log/slog"

	"orgops/internal/cache"
	"orgops/internal/conversations"
	"orgops/internal/jobs"
	"orgops/internal/operations"
)

// Register binds every task type. collections is the cache the API
// serves lists from; it may be nil.
func Register(r jobs.Registrar, ops *operations.Service, conv *conversations.Service, collections *cache.Collections) {
	r.Register(jobs.TypeGoalRollup, func(ctx context.Context, t jobs.Task) error {
		var p jobs.GoalRollupPayload
		if err := t.Decode(&p); err != nil {
			return err
		}
		if err := ops.Rollup(ctx, p.OrgID, p.ObjectiveID); err != nil {
			return err
		}
		if err := collections.Invalidate(ctx, p.OrgID, "goals"); err != nil {
			slog.Warn("invalidate goals after rollup", "org_id", p.OrgID, "err", err)
		}
		return nil
	})
	r.Register(jobs.TypeExpirePendingAction, func(ctx context.Context, t jobs.Task) error {
		var p jobs.PendingActionPayload
		if err := t.Decode(&p); err != nil {
			return err
		}
		if err := conv.Expire(ctx, p.OrgID, p.ActionID); err != nil {
			slog.Error("expire pending action", "org_id", p.OrgID, "action_id", p.ActionID, "err", err)
			return err
		}
		return nil
	})
}
