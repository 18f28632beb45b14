package httpserver

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"orgops/internal/cache"
	"orgops/internal/config"
	"orgops/internal/db/dbtest"
	"orgops/internal/http/handlers"
	"orgops/internal/jobs"
	"orgops/internal/models"
	"orgops/internal/realtime"
	"orgops/internal/seed"
	"orgops/internal/worker"
)

type server struct {
	t      *testing.T
	db     *gorm.DB
	router *gin.Engine
	token  string
	orgID  int64
}

func newServer(t *testing.T) *server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	gdb := dbtest.Open(t)
	fx, err := seed.Load("")
	require.NoError(t, err)
	require.NoError(t, seed.Run(gdb, fx))

	cfg := config.Config{JWTSecret: "test-secret", TokenTTL: time.Hour, PendingActionTTL: time.Hour}
	q := jobs.NewInline()
	hub := realtime.NewHub()
	t.Cleanup(hub.Close)
	env := handlers.NewEnv(gdb, cfg, &cache.Collections{Cache: cache.NewMemory(), TTL: time.Minute}, q, hub, fx)
	worker.Register(q, env.Operations, env.Conversations, env.Cache)

	s := &server{t: t, db: gdb, router: NewRouter(env, slog.New(slog.NewTextHandler(io.Discard, nil)))}
	s.token, s.orgID = s.login("admin@example.com", "admin12345")
	return s
}

func (s *server) do(method, path, token string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(s.t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *server) org(path string) string {
	return fmt.Sprintf("/api/v1/organizations/%d%s", s.orgID, path)
}

func (s *server) login(email, password string) (string, int64) {
	s.t.Helper()
	w := s.do(http.MethodPost, "/api/v1/auth/login", "", gin.H{"email": email, "password": password})
	require.Equal(s.t, http.StatusOK, w.Code, w.Body.String())
	var out struct {
		Token string `json:"token"`
		User  struct {
			OrgID int64 `json:"org_id"`
		} `json:"user"`
	}
	decode(s.t, w, &out)
	require.NotEmpty(s.t, out.Token)
	return out.Token, out.User.OrgID
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func TestLoginAndMe(t *testing.T) {
	s := newServer(t)

	w := s.do(http.MethodPost, "/api/v1/auth/login", "", gin.H{"email": "admin@example.com", "password": "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(http.MethodGet, "/api/v1/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(http.MethodGet, "/api/v1/me", s.token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var me struct {
		Organization models.Organization `json:"organization"`
		Permissions  []string            `json:"permissions"`
	}
	decode(t, w, &me)
	assert.Equal(t, "default", me.Organization.Slug)
	assert.Contains(t, me.Permissions, "audit:read")
	assert.Contains(t, me.Permissions, "conversations:write")

	w = s.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRegisterIsolatesTenants(t *testing.T) {
	s := newServer(t)

	body := gin.H{"organization": "Globex", "name": "Hank", "email": "hank@globex.test", "password": "supersecret"}
	w := s.do(http.MethodPost, "/api/v1/auth/register", "", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var reg struct {
		Token string `json:"token"`
		User  struct {
			OrgID int64 `json:"org_id"`
		} `json:"user"`
	}
	decode(t, w, &reg)
	assert.NotEqual(t, s.orgID, reg.User.OrgID)

	w = s.do(http.MethodPost, "/api/v1/auth/register", "", body)
	assert.Equal(t, http.StatusConflict, w.Code)

	// the new admin can work in their own organization only
	own := fmt.Sprintf("/api/v1/organizations/%d/operations/resources", reg.User.OrgID)
	w = s.do(http.MethodGet, own, reg.Token, nil)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(http.MethodGet, s.org("/operations/resources"), reg.Token, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(http.MethodPost, s.org("/operations/resources"), s.token, gin.H{"name": "Laptop", "type": "physical"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created struct {
		Resource models.Resource `json:"resource"`
	}
	decode(t, w, &created)

	// a foreign record looks missing
	w = s.do(http.MethodGet, fmt.Sprintf("%s/%d", own, created.Resource.ID), reg.Token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPermissionGuard(t *testing.T) {
	s := newServer(t)

	var member models.Role
	require.NoError(t, s.db.Where("org_id = ? AND slug = ?", s.orgID, "member").First(&member).Error)
	w := s.do(http.MethodPost, s.org("/users"), s.token, gin.H{
		"email": "mia@example.com", "name": "Mia", "password": "password123", "role_id": member.ID,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	token, _ := s.login("mia@example.com", "password123")

	w = s.do(http.MethodGet, s.org("/operations/resources"), token, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(http.MethodPost, s.org("/operations/resources"), token, gin.H{"name": "Desk", "type": "physical"})
	require.Equal(t, http.StatusForbidden, w.Code)
	assert.JSONEq(t, `{"error":"forbidden","missing":"operations:write"}`, w.Body.String())

	w = s.do(http.MethodGet, s.org("/audit"), token, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(http.MethodPost, s.org("/users"), s.token, gin.H{
		"email": "mia@example.com", "name": "Mia again", "password": "password123",
	})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestResourceCollection(t *testing.T) {
	s := newServer(t)
	base := s.org("/operations/resources")

	w := s.do(http.MethodPost, base, s.token, gin.H{"name": "Laptop", "type": "physical", "cost": 1200})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created struct {
		Resource models.Resource `json:"resource"`
	}
	decode(t, w, &created)
	assert.Equal(t, models.ResourceAvailable, created.Resource.Status)
	assert.Equal(t, s.orgID, created.Resource.OrgID)

	w = s.do(http.MethodPost, base, s.token, gin.H{"name": "Laptop", "type": "digital"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(http.MethodPost, base, s.token, gin.H{"name": "Rocket", "type": "spaceship"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPost, base, s.token, `{"name":"Rocket","type":"physical","status":1}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPost, base, s.token, gin.H{"name": "Server", "type": "digital", "status": "allocated"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	item := fmt.Sprintf("%s/%d", base, created.Resource.ID)
	w = s.do(http.MethodPut, item, s.token, gin.H{"status": "retired", "org_id": 999, "id": 777})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var updated struct {
		Resource models.Resource `json:"resource"`
	}
	decode(t, w, &updated)
	assert.Equal(t, "Laptop", updated.Resource.Name)
	assert.Equal(t, models.ResourceRetired, updated.Resource.Status)
	assert.Equal(t, created.Resource.ID, updated.Resource.ID)
	assert.Equal(t, s.orgID, updated.Resource.OrgID)
	assert.Equal(t, 1200.0, updated.Resource.Cost)

	w = s.do(http.MethodGet, base+"?sort=-name", s.token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Resources []models.Resource `json:"resources"`
		Total     int               `json:"total"`
	}
	decode(t, w, &list)
	require.Equal(t, 2, list.Total)
	assert.Equal(t, "Server", list.Resources[0].Name)

	w = s.do(http.MethodGet, base+"?view=kanban", s.token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var board struct {
		Columns []struct {
			Status string `json:"status"`
			Count  int    `json:"count"`
		} `json:"columns"`
	}
	decode(t, w, &board)
	require.Len(t, board.Columns, 3)
	assert.Equal(t, "available", board.Columns[0].Status)
	assert.Equal(t, 0, board.Columns[0].Count)
	assert.Equal(t, 1, board.Columns[1].Count)
	assert.Equal(t, 1, board.Columns[2].Count)

	w = s.do(http.MethodGet, base+"?view=stats&q=lap", s.token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"stats":{"total":1,"by_status":{"available":0,"allocated":0,"retired":1}}}`, w.Body.String())

	w = s.do(http.MethodGet, base+"?view=gallery", s.token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodDelete, item, s.token, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = s.do(http.MethodGet, item, s.token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(http.MethodGet, base+"/abc", s.token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodGet, s.org("/audit?q=resource.create"), s.token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "resource.create")
}

func TestPendingActionFlow(t *testing.T) {
	s := newServer(t)

	w := s.do(http.MethodPost, s.org("/agents"), s.token, gin.H{"name": "Planner"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var agent struct {
		Agent models.AiAgent `json:"agent"`
	}
	decode(t, w, &agent)

	w = s.do(http.MethodPost, s.org("/conversations"), s.token, gin.H{"title": "Q3 planning", "agent_id": agent.Agent.ID})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var conv struct {
		Conversation models.Conversation `json:"conversation"`
	}
	decode(t, w, &conv)
	convPath := fmt.Sprintf("/conversations/%d", conv.Conversation.ID)

	w = s.do(http.MethodGet, s.org(convPath+"/participants"), s.token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var ps struct {
		Participants []models.ConversationParticipant `json:"participants"`
	}
	decode(t, w, &ps)
	assert.Len(t, ps.Participants, 2)

	w = s.do(http.MethodPost, s.org(convPath+"/messages"), s.token, gin.H{"content": "What should we focus on?"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = s.do(http.MethodPost, s.org(convPath+"/messages"), s.token, gin.H{
		"role": "assistant", "content": "I suggest a revenue objective.", "agent_id": agent.Agent.ID,
		"action": gin.H{"type": "create_goal", "summary": "Add objective", "payload": gin.H{"title": "Grow revenue"}},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var posted struct {
		Action models.PendingAction `json:"action"`
	}
	decode(t, w, &posted)
	require.Equal(t, models.ActionPending, posted.Action.Status)

	w = s.do(http.MethodGet, s.org(fmt.Sprintf("/pending-actions?conversation_id=%d&status=pending", conv.Conversation.ID)), s.token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Add objective")

	w = s.do(http.MethodGet, s.org("/pending-actions?status=bogus"), s.token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodGet, s.org("/operations/goals"), s.token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "Grow revenue")

	actionPath := s.org(fmt.Sprintf("/pending-actions/%d", posted.Action.ID))
	w = s.do(http.MethodPost, actionPath+"/approve", s.token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var approved struct {
		Action models.PendingAction `json:"action"`
	}
	decode(t, w, &approved)
	assert.Equal(t, models.ActionExecuted, approved.Action.Status)

	w = s.do(http.MethodPost, actionPath+"/approve", s.token, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	w = s.do(http.MethodPost, actionPath+"/reject", s.token, gin.H{"reason": "too late"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(http.MethodGet, s.org("/operations/goals"), s.token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Grow revenue")

	w = s.do(http.MethodGet, s.org(convPath+"/messages?limit=1"), s.token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var msgs struct {
		Messages []models.Message `json:"messages"`
	}
	decode(t, w, &msgs)
	require.Len(t, msgs.Messages, 1)
	assert.Equal(t, models.RoleUser, msgs.Messages[0].Role)

	w = s.do(http.MethodGet, s.org("/analytics/usage?days=7"), s.token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var usage struct {
		Days     int            `json:"days"`
		Messages int64          `json:"messages"`
		Actions  map[string]int `json:"actions"`
	}
	decode(t, w, &usage)
	assert.Equal(t, 7, usage.Days)
	assert.EqualValues(t, 2, usage.Messages)
	assert.Equal(t, 1, usage.Actions["executed"])

	w = s.do(http.MethodGet, s.org("/analytics/usage?days=abc"), s.token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func (s *server) create(path, key string, body gin.H) int64 {
	s.t.Helper()
	w := s.do(http.MethodPost, s.org(path), s.token, body)
	require.Equal(s.t, http.StatusCreated, w.Code, w.Body.String())
	var out map[string]struct {
		ID int64 `json:"id"`
	}
	decode(s.t, w, &out)
	require.NotZero(s.t, out[key].ID)
	return out[key].ID
}

func (s *server) goalProgress() map[int64]float64 {
	s.t.Helper()
	w := s.do(http.MethodGet, s.org("/operations/goals"), s.token, nil)
	require.Equal(s.t, http.StatusOK, w.Code, w.Body.String())
	var list struct {
		Goals []models.Goal `json:"goals"`
	}
	decode(s.t, w, &list)
	out := map[int64]float64{}
	for _, g := range list.Goals {
		out[g.ID] = g.Progress
	}
	return out
}

func TestKeyResultReparentRollsUpBothObjectives(t *testing.T) {
	s := newServer(t)
	o1 := s.create("/operations/goals", "goal", gin.H{"title": "Grow revenue"})
	o2 := s.create("/operations/goals", "goal", gin.H{"title": "Retain customers"})
	kr := s.create("/operations/goals", "goal", gin.H{
		"title": "Close deals", "kind": "key_result", "parent_id": o1, "target_value": 10, "current_value": 10,
	})

	progress := s.goalProgress()
	assert.Equal(t, 100.0, progress[o1])
	assert.Equal(t, 0.0, progress[o2])

	w := s.do(http.MethodPut, s.org(fmt.Sprintf("/operations/goals/%d", kr)), s.token, gin.H{"parent_id": o2})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	progress = s.goalProgress()
	assert.Equal(t, 0.0, progress[o1], "old objective lost its only key result")
	assert.Equal(t, 100.0, progress[o2])

	w = s.do(http.MethodPut, s.org(fmt.Sprintf("/operations/goals/%d/progress", kr)), s.token, gin.H{"current_value": 5})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	progress = s.goalProgress()
	assert.Equal(t, 50.0, progress[kr])
	assert.Equal(t, 50.0, progress[o2], "cached list reflects the roll-up")
}

func TestActivityMoveBetweenProcesses(t *testing.T) {
	s := newServer(t)
	p1 := s.create("/operations/processes", "process", gin.H{"name": "Order to cash"})
	p2 := s.create("/operations/processes", "process", gin.H{"name": "Procure to pay"})
	a := s.create("/operations/activities", "activity", gin.H{"process_id": p1, "name": "Receive order"})
	b := s.create("/operations/activities", "activity", gin.H{"process_id": p1, "name": "Ship"})
	c := s.create("/operations/activities", "activity", gin.H{"process_id": p1, "name": "Archive"})
	s.create(fmt.Sprintf("/operations/processes/%d/edges", p1), "edge", gin.H{"source_id": a, "target_id": b})

	w := s.do(http.MethodPut, s.org(fmt.Sprintf("/operations/activities/%d", b)), s.token, gin.H{"process_id": p2})
	assert.Equal(t, http.StatusConflict, w.Code, w.Body.String())

	w = s.do(http.MethodPut, s.org(fmt.Sprintf("/operations/activities/%d", c)), s.token, gin.H{"process_id": p2})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(http.MethodGet, s.org(fmt.Sprintf("/operations/processes/%d/graph", p1)), s.token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var g struct {
		Activities []models.Activity     `json:"activities"`
		Edges      []models.ActivityEdge `json:"edges"`
	}
	decode(t, w, &g)
	assert.Len(t, g.Activities, 2)
	assert.Len(t, g.Edges, 1)
}

func TestFunctionParentLoopRejected(t *testing.T) {
	s := newServer(t)
	sales := s.create("/operations/functions", "function", gin.H{"name": "Sales"})
	inside := s.create("/operations/functions", "function", gin.H{"name": "Inside sales", "parent_id": sales})

	w := s.do(http.MethodPut, s.org(fmt.Sprintf("/operations/functions/%d", sales)), s.token, gin.H{"parent_id": inside})
	assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())

	w = s.do(http.MethodPut, s.org(fmt.Sprintf("/operations/functions/%d", inside)), s.token, gin.H{"description": "SMB deals"})
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestRoleUpdateKeepsGrants(t *testing.T) {
	s := newServer(t)
	var member models.Role
	require.NoError(t, s.db.Where("org_id = ? AND slug = ?", s.orgID, "member").Preload("Permissions").First(&member).Error)
	require.NotEmpty(t, member.Permissions)

	item := s.org(fmt.Sprintf("/operations/roles/%d", member.ID))
	w := s.do(http.MethodPut, item, s.token, gin.H{
		"description": "Everyone else", "permissions": []gin.H{{"key": "audit:read"}},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var out struct {
		Role models.Role `json:"role"`
	}
	decode(t, w, &out)
	assert.Equal(t, "Everyone else", out.Role.Description)
	assert.Len(t, out.Role.Permissions, len(member.Permissions))
	assert.NotContains(t, w.Body.String(), "audit:read")

	w = s.do(http.MethodGet, item, s.token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "audit:read")
}
