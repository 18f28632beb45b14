package conversations

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"orgops/internal/audit"
	"orgops/internal/jobs"
	"orgops/internal/models"
	"orgops/internal/operations"
	"orgops/internal/store"
)

// transitions lists the moves allowed out of each action status. Terminal
// statuses have no entry.
var transitions = map[models.ActionStatus][]models.ActionStatus{
	models.ActionPending:  {models.ActionApproved, models.ActionRejected, models.ActionExpired},
	models.ActionApproved: {models.ActionExecuted, models.ActionFailed},
}

// CanTransition reports whether an action may move from one status to
// another.
func CanTransition(from, to models.ActionStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// move switches an action's status with a compare-and-set on the current
// status, so concurrent deciders cannot both win.
func move(tx *gorm.DB, a *models.PendingAction, to models.ActionStatus, fields map[string]any) error {
	if !CanTransition(a.Status, to) {
		return fmt.Errorf("%w: action %d is %s, cannot become %s", store.ErrInvalidTransition, a.ID, a.Status, to)
	}
	updates := map[string]any{"status": to}
	for k, v := range fields {
		updates[k] = v
	}
	res := tx.Model(&models.PendingAction{}).
		Where("id = ? AND org_id = ? AND status = ?", a.ID, a.OrgID, a.Status).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: action %d changed concurrently", store.ErrInvalidTransition, a.ID)
	}
	a.Status = to
	return nil
}

func loadAction(tx *gorm.DB, orgID, id int64) (*models.PendingAction, error) {
	var a models.PendingAction
	if err := store.Scoped(tx, orgID).Limit(1).Find(&a, id).Error; err != nil {
		return nil, err
	}
	if a.ID == 0 {
		return nil, fmt.Errorf("pending action %d: %w", id, store.ErrNotFound)
	}
	return &a, nil
}

// Actions lists a tenant's actions, newest first, optionally filtered by
// conversation and status.
func (s *Service) Actions(ctx context.Context, orgID, conversationID int64, status models.ActionStatus) ([]models.PendingAction, error) {
	q := store.Scoped(s.DB.WithContext(ctx), orgID)
	if conversationID != 0 {
		q = q.Where("conversation_id = ?", conversationID)
	}
	if status != "" {
		q = q.Where("status = ?", status)
	}
	out := []models.PendingAction{}
	err := q.Order("id DESC").Find(&out).Error
	return out, err
}

func (s *Service) Action(ctx context.Context, orgID, id int64) (*models.PendingAction, error) {
	return loadAction(s.DB.WithContext(ctx), orgID, id)
}

// Approve records the decision and runs the action in its own
// transaction. The action ends executed with a result, or failed with the
// error; the returned error is only for decisions that could not be made.
func (s *Service) Approve(ctx context.Context, actor audit.Actor, id int64) (*models.PendingAction, error) {
	db := s.DB.WithContext(ctx)
	a, err := loadAction(db, actor.OrgID, id)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	if a.Status == models.ActionPending && !now.Before(a.ExpiresAt) {
		if err := s.expire(db, a); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: action %d expired at %s", store.ErrInvalidTransition, a.ID, a.ExpiresAt.Format(time.RFC3339))
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		if err := move(tx, a, models.ActionApproved, map[string]any{"decided_by": actor.UserID, "decided_at": now}); err != nil {
			return err
		}
		return audit.Record(tx, actor, "pending_action.approve", "pending_action", a.ID, map[string]any{"type": a.Type})
	})
	if err != nil {
		return nil, err
	}
	a.DecidedBy, a.DecidedAt = &actor.UserID, &now

	var rollup *int64
	execErr := db.Transaction(func(tx *gorm.DB) error {
		result, parent, err := s.execute(tx, actor, a)
		if err != nil {
			return err
		}
		raw, err := json.Marshal(result)
		if err != nil {
			return err
		}
		if err := move(tx, a, models.ActionExecuted, map[string]any{"result": datatypes.JSON(raw)}); err != nil {
			return err
		}
		a.Result = raw
		rollup = parent
		return audit.Record(tx, actor, "pending_action.execute", "pending_action", a.ID, result)
	})
	if execErr != nil {
		if errors.Is(execErr, store.ErrInvalidTransition) {
			return nil, execErr
		}
		slog.Warn("pending action failed", "org_id", a.OrgID, "action_id", a.ID, "type", a.Type, "err", execErr)
		a.Status = models.ActionApproved
		a.Result = nil
		if err := move(db, a, models.ActionFailed, map[string]any{"error": execErr.Error()}); err != nil {
			return nil, err
		}
		a.Error = execErr.Error()
	} else if s.Ops != nil {
		s.Ops.ScheduleRollup(ctx, a.OrgID, rollup)
	}
	s.publish(a.ConversationID, "action", a)
	return a, nil
}

// Reject records a human refusal of a pending action.
func (s *Service) Reject(ctx context.Context, actor audit.Actor, id int64, reason string) (*models.PendingAction, error) {
	var a *models.PendingAction
	now := s.now().UTC()
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if a, err = loadAction(tx, actor.OrgID, id); err != nil {
			return err
		}
		fields := map[string]any{"decided_by": actor.UserID, "decided_at": now}
		if reason != "" {
			fields["error"] = reason
		}
		if err := move(tx, a, models.ActionRejected, fields); err != nil {
			return err
		}
		a.DecidedBy, a.DecidedAt, a.Error = &actor.UserID, &now, reason
		return audit.Record(tx, actor, "pending_action.reject", "pending_action", a.ID, map[string]any{"type": a.Type, "reason": reason})
	})
	if err != nil {
		return nil, err
	}
	s.publish(a.ConversationID, "action", a)
	return a, nil
}

// Expire moves a pending action past its deadline to expired. Early or
// repeated deliveries and already decided actions are no-ops.
func (s *Service) Expire(ctx context.Context, orgID, id int64) error {
	db := s.DB.WithContext(ctx)
	a, err := loadAction(db, orgID, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}
	if a.Status != models.ActionPending || s.now().Before(a.ExpiresAt) {
		return nil
	}
	err = s.expire(db, a)
	if errors.Is(err, store.ErrInvalidTransition) {
		return nil
	}
	return err
}

// ExpireDue expires every pending action of orgID whose deadline has
// passed and returns how many it moved.
func (s *Service) ExpireDue(ctx context.Context, orgID int64) (int64, error) {
	res := store.Scoped(s.DB.WithContext(ctx).Model(&models.PendingAction{}), orgID).
		Where("status = ? AND expires_at <= ?", models.ActionPending, s.now().UTC()).
		Update("status", models.ActionExpired)
	return res.RowsAffected, res.Error
}

func (s *Service) expire(db *gorm.DB, a *models.PendingAction) error {
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := move(tx, a, models.ActionExpired, nil); err != nil {
			return err
		}
		return audit.Record(tx, audit.Actor{OrgID: a.OrgID, Name: "system"}, "pending_action.expire", "pending_action", a.ID, nil)
	})
	if err == nil {
		s.publish(a.ConversationID, "action", a)
	}
	return err
}

func (s *Service) scheduleExpiry(ctx context.Context, a *models.PendingAction) {
	if s.Jobs == nil {
		return
	}
	task, err := jobs.NewTask(jobs.TypeExpirePendingAction, jobs.PendingActionPayload{OrgID: a.OrgID, ActionID: a.ID})
	if err == nil {
		_, err = s.Jobs.Enqueue(ctx, task, jobs.Option{ProcessAt: a.ExpiresAt})
	}
	if err != nil {
		slog.Warn("pending action expiry not scheduled", "org_id", a.OrgID, "action_id", a.ID, "err", err)
	}
}

// Action payloads.

type CreateGoalPayload struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Kind        models.GoalKind `json:"kind"`
	ParentID    *int64          `json:"parent_id"`
	FunctionID  *int64          `json:"function_id"`
	OwnerUserID *int64          `json:"owner_user_id"`
	TargetValue float64         `json:"target_value"`
	Unit        string          `json:"unit"`
	DueDate     *time.Time      `json:"due_date"`
}

type UpdateGoalStatusPayload struct {
	GoalID int64             `json:"goal_id"`
	Status models.GoalStatus `json:"status"`
}

type CreateActivityPayload struct {
	ProcessID       int64  `json:"process_id"`
	Name            string `json:"name"`
	Description     string `json:"description"`
	AssigneeRoleID  *int64 `json:"assignee_role_id"`
	DurationMinutes int    `json:"duration_minutes"`
}

func decodePayload(raw []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: action payload: %v", models.ErrInvalid, err)
	}
	return nil
}

// checkPayload validates a proposal's shape before it is stored. Whether
// the referenced rows still exist is checked at execution.
func checkPayload(t models.ActionType, raw []byte) error {
	switch t {
	case models.ActionCreateGoal:
		var p CreateGoalPayload
		if err := decodePayload(raw, &p); err != nil {
			return err
		}
		g := p.goal()
		return g.Validate()
	case models.ActionUpdateGoalStatus:
		var p UpdateGoalStatusPayload
		if err := decodePayload(raw, &p); err != nil {
			return err
		}
		if p.GoalID == 0 || p.Status == "" {
			return fmt.Errorf("%w: goal_id and status are required", models.ErrInvalid)
		}
		return nil
	case models.ActionCreateActivity:
		var p CreateActivityPayload
		if err := decodePayload(raw, &p); err != nil {
			return err
		}
		a := p.activity()
		return a.Validate()
	default:
		return fmt.Errorf("%w: unknown action type %q", models.ErrInvalid, t)
	}
}

func (p CreateGoalPayload) goal() models.Goal {
	return models.Goal{
		Title: p.Title, Description: p.Description, Kind: p.Kind, ParentID: p.ParentID,
		FunctionID: p.FunctionID, OwnerUserID: p.OwnerUserID, TargetValue: p.TargetValue,
		Unit: p.Unit, DueDate: p.DueDate,
	}
}

func (p CreateActivityPayload) activity() models.Activity {
	return models.Activity{
		ProcessID: p.ProcessID, Name: p.Name, Description: p.Description,
		AssigneeRoleID: p.AssigneeRoleID, DurationMinutes: p.DurationMinutes,
	}
}

// execute applies an approved action inside tx. It returns a result for
// the record and, when a key result changed, the objective to roll up.
func (s *Service) execute(tx *gorm.DB, actor audit.Actor, a *models.PendingAction) (map[string]any, *int64, error) {
	switch a.Type {
	case models.ActionCreateGoal:
		var p CreateGoalPayload
		if err := decodePayload(a.Payload, &p); err != nil {
			return nil, nil, err
		}
		g := p.goal()
		if err := operations.CheckGoalParent(tx, a.OrgID, &g); err != nil {
			return nil, nil, err
		}
		if err := store.Create(tx, a.OrgID, actor.UserID, &g); err != nil {
			return nil, nil, err
		}
		if err := audit.Record(tx, actor, "goal.create", "goal", g.ID, map[string]int64{"pending_action_id": a.ID}); err != nil {
			return nil, nil, err
		}
		return map[string]any{"goal_id": g.ID}, g.ParentID, nil

	case models.ActionUpdateGoalStatus:
		var p UpdateGoalStatusPayload
		if err := decodePayload(a.Payload, &p); err != nil {
			return nil, nil, err
		}
		g, err := store.Get[models.Goal](tx.Statement.Context, tx, a.OrgID, p.GoalID)
		if err != nil {
			return nil, nil, err
		}
		before := g.Status
		g.Status = p.Status
		if err := store.Save(tx, a.OrgID, actor.UserID, g); err != nil {
			return nil, nil, err
		}
		if err := audit.Record(tx, actor, "goal.update", "goal", g.ID,
			map[string]any{"from": before, "to": g.Status, "pending_action_id": a.ID}); err != nil {
			return nil, nil, err
		}
		return map[string]any{"goal_id": g.ID, "status": g.Status}, nil, nil

	case models.ActionCreateActivity:
		var p CreateActivityPayload
		if err := decodePayload(a.Payload, &p); err != nil {
			return nil, nil, err
		}
		act := p.activity()
		if err := store.Create(tx, a.OrgID, actor.UserID, &act); err != nil {
			return nil, nil, err
		}
		if err := audit.Record(tx, actor, "activity.create", "activity", act.ID, map[string]int64{"pending_action_id": a.ID}); err != nil {
			return nil, nil, err
		}
		return map[string]any{"activity_id": act.ID, "process_id": act.ProcessID}, nil, nil
	}
	return nil, nil, fmt.Errorf("%w: unknown action type %q", models.ErrInvalid, a.Type)
}
