package conversations

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"orgops/internal/audit"
	"orgops/internal/db/dbtest"
	"orgops/internal/jobs"
	"orgops/internal/models"
	"orgops/internal/operations"
	"orgops/internal/store"
)

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) Publish(_ int64, event string, _ any) int {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
	return 1
}

type fixture struct {
	db    *gorm.DB
	svc   *Service
	queue *jobs.Inline
	hub   *recorder
	actor audit.Actor
	ctx   context.Context
	conv  *models.Conversation
	agent *models.AiAgent
	now   time.Time
}

func setup(t *testing.T) *fixture {
	t.Helper()
	gdb := dbtest.Open(t)
	org := models.Organization{Name: "Acme", Slug: "acme"}
	require.NoError(t, gdb.Create(&org).Error)
	user := models.User{OrgID: org.ID, Email: "ana@acme.test", Name: "Ana", Status: models.UserActive}
	require.NoError(t, gdb.Create(&user).Error)

	q := jobs.NewInline()
	q.Hold = true
	hub := &recorder{}
	ops := operations.New(gdb, q)
	f := &fixture{
		db: gdb, queue: q, hub: hub, ctx: context.Background(),
		actor: audit.Actor{OrgID: org.ID, UserID: user.ID, Name: "Ana"},
		now:   time.Now().UTC(),
	}
	f.svc = New(gdb, q, hub, ops, time.Hour)
	f.svc.Now = func() time.Time { return f.now }
	q.Register(jobs.TypeExpirePendingAction, func(ctx context.Context, task jobs.Task) error {
		var p jobs.PendingActionPayload
		if err := task.Decode(&p); err != nil {
			return err
		}
		return f.svc.Expire(ctx, p.OrgID, p.ActionID)
	})
	q.Register(jobs.TypeGoalRollup, func(ctx context.Context, task jobs.Task) error {
		var p jobs.GoalRollupPayload
		if err := task.Decode(&p); err != nil {
			return err
		}
		return ops.Rollup(ctx, p.OrgID, p.ObjectiveID)
	})

	f.agent = &models.AiAgent{Name: "Planner"}
	f.create(t, f.agent)
	f.conv = &models.Conversation{Title: "Q3 planning"}
	f.create(t, f.conv)
	require.NoError(t, AddCreator(gdb, org.ID, f.conv.ID, user.ID))
	_, err := f.svc.AddParticipant(f.ctx, f.actor, f.conv.ID, models.ConversationParticipant{AgentID: &f.agent.ID})
	require.NoError(t, err)
	return f
}

func (f *fixture) create(t *testing.T, rec store.Record) {
	t.Helper()
	require.NoError(t, store.Create(f.db, f.actor.OrgID, f.actor.UserID, rec))
}

func (f *fixture) propose(t *testing.T, typ models.ActionType, payload any) *models.PendingAction {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	out, err := f.svc.PostMessage(f.ctx, f.actor, f.conv.ID, NewMessage{
		Role: models.RoleAssistant, Content: "I suggest a change", AgentID: &f.agent.ID,
		Action: &Proposal{Type: typ, Summary: "suggested", Payload: raw},
	})
	require.NoError(t, err)
	require.NotNil(t, out.Action)
	return out.Action
}

func TestParticipants(t *testing.T) {
	f := setup(t)
	ps, err := f.svc.Participants(f.ctx, f.actor.OrgID, f.conv.ID)
	require.NoError(t, err)
	require.Len(t, ps, 2)
	assert.Equal(t, f.actor.UserID, *ps[0].UserID)
	assert.Equal(t, f.agent.ID, *ps[1].AgentID)

	_, err = f.svc.AddParticipant(f.ctx, f.actor, f.conv.ID, models.ConversationParticipant{AgentID: &f.agent.ID})
	assert.ErrorIs(t, err, store.ErrConflict)

	_, err = f.svc.AddParticipant(f.ctx, f.actor, f.conv.ID, models.ConversationParticipant{UserID: &f.actor.UserID, AgentID: &f.agent.ID})
	assert.ErrorIs(t, err, models.ErrInvalid)

	missing := int64(9999)
	_, err = f.svc.AddParticipant(f.ctx, f.actor, f.conv.ID, models.ConversationParticipant{UserID: &missing})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestPostMessageRules(t *testing.T) {
	f := setup(t)

	out, err := f.svc.PostMessage(f.ctx, f.actor, f.conv.ID, NewMessage{Content: "hello there"})
	require.NoError(t, err)
	assert.Equal(t, models.RoleUser, out.Message.Role)
	assert.Equal(t, f.actor.UserID, *out.Message.SenderUserID)
	assert.Equal(t, 2, out.Message.TokenCount)

	_, err = f.svc.PostMessage(f.ctx, f.actor, f.conv.ID, NewMessage{Content: "  "})
	assert.ErrorIs(t, err, models.ErrInvalid)

	outsider := f.actor
	outsider.UserID = 4242
	_, err = f.svc.PostMessage(f.ctx, outsider, f.conv.ID, NewMessage{Content: "hi"})
	assert.ErrorIs(t, err, ErrNotParticipant)

	_, err = f.svc.PostMessage(f.ctx, f.actor, f.conv.ID, NewMessage{Role: models.RoleAssistant, Content: "hi"})
	assert.ErrorIs(t, err, models.ErrInvalid, "assistant needs an agent")

	other := &models.AiAgent{Name: "Other"}
	f.create(t, other)
	_, err = f.svc.PostMessage(f.ctx, f.actor, f.conv.ID, NewMessage{Role: models.RoleAssistant, Content: "hi", AgentID: &other.ID})
	assert.ErrorIs(t, err, ErrNotParticipant)

	_, err = f.svc.PostMessage(f.ctx, f.actor, f.conv.ID, NewMessage{Content: "do it", Action: &Proposal{Type: models.ActionCreateGoal}})
	assert.ErrorIs(t, err, models.ErrInvalid, "users cannot propose actions")

	require.NoError(t, f.db.Model(f.conv).Update("status", models.ConversationArchived).Error)
	_, err = f.svc.PostMessage(f.ctx, f.actor, f.conv.ID, NewMessage{Content: "late"})
	assert.ErrorIs(t, err, store.ErrConflict)

	msgs, err := f.svc.Messages(f.ctx, f.actor.OrgID, f.conv.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Contains(t, f.hub.events, "message")
}

func TestProposalPayloadIsValidated(t *testing.T) {
	f := setup(t)
	_, err := f.svc.PostMessage(f.ctx, f.actor, f.conv.ID, NewMessage{
		Role: models.RoleAssistant, Content: "x", AgentID: &f.agent.ID,
		Action: &Proposal{Type: models.ActionCreateGoal, Payload: json.RawMessage(`{"title":"Grow","bogus":1}`)},
	})
	assert.ErrorIs(t, err, models.ErrInvalid)

	_, err = f.svc.PostMessage(f.ctx, f.actor, f.conv.ID, NewMessage{
		Role: models.RoleAssistant, Content: "x", AgentID: &f.agent.ID,
		Action: &Proposal{Type: models.ActionUpdateGoalStatus, Payload: json.RawMessage(`{"goal_id":1,"status":"done"}`)},
	})
	assert.ErrorIs(t, err, models.ErrInvalid, "unknown goal status")
}

func TestApproveExecutesCreateGoal(t *testing.T) {
	f := setup(t)
	obj := &models.Goal{Title: "Grow revenue"}
	f.create(t, obj)

	a := f.propose(t, models.ActionCreateGoal, CreateGoalPayload{
		Title: "Sign 10 partners", Kind: models.GoalKeyResult, ParentID: &obj.ID, TargetValue: 10,
	})
	assert.Equal(t, models.ActionPending, a.Status)
	assert.WithinDuration(t, f.now.Add(time.Hour), a.ExpiresAt, time.Second)

	done, err := f.svc.Approve(f.ctx, f.actor, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ActionExecuted, done.Status)
	assert.Equal(t, f.actor.UserID, *done.DecidedBy)

	var result map[string]int64
	require.NoError(t, json.Unmarshal(done.Result, &result))
	kr, err := store.Get[models.Goal](f.ctx, f.db, f.actor.OrgID, result["goal_id"])
	require.NoError(t, err)
	assert.Equal(t, obj.ID, *kr.ParentID)

	_, err = f.svc.Approve(f.ctx, f.actor, a.ID)
	assert.ErrorIs(t, err, store.ErrInvalidTransition, "executed is terminal")
	_, err = f.svc.Reject(f.ctx, f.actor, a.ID, "")
	assert.ErrorIs(t, err, store.ErrInvalidTransition)
}

func TestApproveRecordsFailure(t *testing.T) {
	f := setup(t)
	a := f.propose(t, models.ActionUpdateGoalStatus, UpdateGoalStatusPayload{GoalID: 9999, Status: models.GoalAtRisk})

	out, err := f.svc.Approve(f.ctx, f.actor, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ActionFailed, out.Status)
	assert.Contains(t, out.Error, "not found")

	stored, err := f.svc.Action(f.ctx, f.actor.OrgID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ActionFailed, stored.Status)
	assert.Empty(t, stored.Result)
}

func TestCreateActivityAction(t *testing.T) {
	f := setup(t)
	proc := &models.Process{Name: "Onboarding"}
	f.create(t, proc)
	a := f.propose(t, models.ActionCreateActivity, CreateActivityPayload{ProcessID: proc.ID, Name: "Send welcome kit"})

	out, err := f.svc.Approve(f.ctx, f.actor, a.ID)
	require.NoError(t, err)
	require.Equal(t, models.ActionExecuted, out.Status, out.Error)

	var n int64
	f.db.Model(&models.Activity{}).Where("process_id = ? AND name = ?", proc.ID, "Send welcome kit").Count(&n)
	assert.Equal(t, int64(1), n)
}

func TestRejectAndExpiry(t *testing.T) {
	f := setup(t)
	g := &models.Goal{Title: "Ship v2"}
	f.create(t, g)
	payload := UpdateGoalStatusPayload{GoalID: g.ID, Status: models.GoalOnTrack}

	rejected := f.propose(t, models.ActionUpdateGoalStatus, payload)
	out, err := f.svc.Reject(f.ctx, f.actor, rejected.ID, "not now")
	require.NoError(t, err)
	assert.Equal(t, models.ActionRejected, out.Status)
	_, err = f.svc.Approve(f.ctx, f.actor, rejected.ID)
	assert.ErrorIs(t, err, store.ErrInvalidTransition)

	late := f.propose(t, models.ActionUpdateGoalStatus, payload)

	// Early delivery of the expiry task leaves the action pending.
	require.NoError(t, f.svc.Expire(f.ctx, f.actor.OrgID, late.ID))
	stored, err := f.svc.Action(f.ctx, f.actor.OrgID, late.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ActionPending, stored.Status)

	f.now = f.now.Add(2 * time.Hour)
	require.NoError(t, f.queue.Flush(f.ctx))
	stored, err = f.svc.Action(f.ctx, f.actor.OrgID, late.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ActionExpired, stored.Status)

	_, err = f.svc.Approve(f.ctx, f.actor, late.ID)
	assert.ErrorIs(t, err, store.ErrInvalidTransition)

	still, err := store.Get[models.Goal](f.ctx, f.db, f.actor.OrgID, g.ID)
	require.NoError(t, err)
	assert.Equal(t, models.GoalNotStarted, still.Status)
}

func TestApproveAfterDeadlineExpires(t *testing.T) {
	f := setup(t)
	g := &models.Goal{Title: "Hire"}
	f.create(t, g)
	a := f.propose(t, models.ActionUpdateGoalStatus, UpdateGoalStatusPayload{GoalID: g.ID, Status: models.GoalCompleted})

	f.now = f.now.Add(time.Hour)
	_, err := f.svc.Approve(f.ctx, f.actor, a.ID)
	assert.ErrorIs(t, err, store.ErrInvalidTransition)

	stored, err := f.svc.Action(f.ctx, f.actor.OrgID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ActionExpired, stored.Status)
}

func TestExpireDue(t *testing.T) {
	f := setup(t)
	g := &models.Goal{Title: "Hire"}
	f.create(t, g)
	f.propose(t, models.ActionUpdateGoalStatus, UpdateGoalStatusPayload{GoalID: g.ID, Status: models.GoalCompleted})
	f.propose(t, models.ActionUpdateGoalStatus, UpdateGoalStatusPayload{GoalID: g.ID, Status: models.GoalAtRisk})

	n, err := f.svc.ExpireDue(f.ctx, f.actor.OrgID)
	require.NoError(t, err)
	assert.Zero(t, n)

	f.now = f.now.Add(3 * time.Hour)
	n, err = f.svc.ExpireDue(f.ctx, f.actor.OrgID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(models.ActionPending, models.ActionApproved))
	assert.True(t, CanTransition(models.ActionApproved, models.ActionFailed))
	assert.False(t, CanTransition(models.ActionPending, models.ActionExecuted))
	assert.False(t, CanTransition(models.ActionRejected, models.ActionApproved))
	assert.False(t, CanTransition(models.ActionExpired, models.ActionPending))
}

func TestUsage(t *testing.T) {
	f := setup(t)
	for _, m := range []NewMessage{
		{Content: "one"},
		{Content: "two"},
		{Role: models.RoleAssistant, Content: "three", AgentID: &f.agent.ID},
	} {
		_, err := f.svc.PostMessage(f.ctx, f.actor, f.conv.ID, m)
		require.NoError(t, err)
	}
	f.svc.Now = time.Now

	u, err := f.svc.Usage(f.ctx, f.actor.OrgID, 7)
	require.NoError(t, err)
	require.Len(t, u.MessagesPerDay, 7)
	assert.Equal(t, int64(3), u.Messages)
	assert.Equal(t, int64(3), u.MessagesPerDay[6].Count)
	assert.Equal(t, u.To, u.MessagesPerDay[6].Date)
	require.Len(t, u.MessagesByAgent, 1)
	assert.Equal(t, AgentCount{AgentID: f.agent.ID, Name: "Planner", Count: 1}, u.MessagesByAgent[0])
	assert.Equal(t, int64(1), u.Conversations)
	assert.Len(t, u.Actions, len(models.ActionStatuses))

	_, err = f.svc.Usage(f.ctx, f.actor.OrgID, 0)
	assert.ErrorIs(t, err, models.ErrInvalid)
}

func TestParseDays(t *testing.T) {
	n, err := ParseDays("")
	require.NoError(t, err)
	assert.Equal(t, DefaultUsageDays, n)

	n, err = ParseDays("1000")
	require.NoError(t, err)
	assert.Equal(t, MaxUsageDays, n)

	_, err = ParseDays("-3")
	assert.ErrorIs(t, err, models.ErrInvalid)
	_, err = ParseDays("week")
	assert.ErrorIs(t, err, models.ErrInvalid)
}
