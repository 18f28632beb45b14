package handlers

import (
	"fmt"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"orgops/internal/audit"
	"orgops/internal/canvas"
	"orgops/internal/conversations"
	"orgops/internal/models"
	"orgops/internal/operations"
	"orgops/internal/store"
)

// Guard returns the permission middleware for a key.
type Guard func(permKey string) gin.HandlerFunc

// RegisterCollections mounts the generic CRUD collections under an
// organization group.
func RegisterCollections(org *gin.RouterGroup, env *Env, guard Guard) {
	opsRead, opsWrite := guard("operations:read"), guard("operations:write")
	ops := org.Group("/operations")

	(&Collection[models.Resource, *models.Resource]{
		Name: "resources", Resource: "resource",
		Statuses: models.StatusOrder(models.ResourceStatuses),
	}).Register(ops.Group("/resources"), env, opsRead, opsWrite)

	(&Collection[models.ResourceSubtype, *models.ResourceSubtype]{
		Name: "resource_subtypes", Resource: "resource_subtype",
		Filter: func(c *gin.Context) (func(*models.ResourceSubtype) bool, error) {
			t := models.ResourceType(c.Query("resource_type"))
			if t == "" {
				return nil, nil
			}
			if !t.Valid() {
				return nil, fmt.Errorf("%w: unknown resource type %q", models.ErrInvalidEnum, t)
			}
			return func(s *models.ResourceSubtype) bool { return s.ResourceType == t }, nil
		},
	}).Register(ops.Group("/resource-subtypes"), env, opsRead, opsWrite)

	(&Collection[models.Function, *models.Function]{
		Name: "functions", Resource: "function",
		BeforeSave: func(tx *gorm.DB, orgID int64, f, _ *models.Function) error {
			return operations.CheckFunctionParent(tx, orgID, f)
		},
		AfterDelete: func(tx *gorm.DB, orgID, id int64) error {
			return store.Scoped(tx, orgID).Where("function_id = ?", id).Delete(&models.FunctionCapability{}).Error
		},
		AfterCommit: func(c *gin.Context, f, _ *models.Function) {
			env.invalidate(c, "capabilities:"+strconv.FormatInt(f.ID, 10))
		},
	}).Register(ops.Group("/functions"), env, opsRead, opsWrite)

	(&Collection[models.FunctionCapability, *models.FunctionCapability]{
		Name: "capabilities", Resource: "capability",
		IDParam: "capabilityId",
		Parent: &Parent[models.FunctionCapability]{
			Param: "id", Column: "function_id", Model: &models.Function{},
			Get: func(fc *models.FunctionCapability) int64 { return fc.FunctionID },
			Set: func(fc *models.FunctionCapability, id int64) { fc.FunctionID = id },
		},
	}).Register(ops.Group("/functions/:id/capabilities"), env, opsRead, opsWrite)

	(&Collection[models.Process, *models.Process]{
		Name: "processes", Resource: "process",
		Statuses:   models.StatusOrder(models.ProcessStatuses),
		Invalidate: []string{"activities"},
		AfterDelete: func(tx *gorm.DB, orgID, id int64) error {
			return operations.DeleteProcessChildren(tx, orgID, id)
		},
	}).Register(ops.Group("/processes"), env, opsRead, opsWrite)

	(&Collection[models.Activity, *models.Activity]{
		Name: "activities", Resource: "activity",
		Statuses: models.StatusOrder(models.ActivityStatuses),
		Filter: func(c *gin.Context) (func(*models.Activity) bool, error) {
			raw := c.Query("process_id")
			if raw == "" {
				return nil, nil
			}
			pid, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: process_id must be an integer", models.ErrInvalid)
			}
			return func(a *models.Activity) bool { return a.ProcessID == pid }, nil
		},
		BeforeSave:  operations.CheckActivityMove,
		AfterDelete: operations.DeleteActivityEdges,
	}).Register(ops.Group("/activities"), env, opsRead, opsWrite)

	rolesRead, rolesWrite := guard("roles:read"), guard("roles:write")
	(&Collection[models.Role, *models.Role]{
		Name: "roles", Resource: "role",
		Preload:    []string{"Permissions"},
		Invalidate: []string{"role_assignments"},
		BeforeSave: func(_ *gorm.DB, _ int64, r, prev *models.Role) error {
			// grants change only through the permissions endpoint
			r.Permissions = nil
			if prev != nil {
				r.Permissions = prev.Permissions
			}
			r.IsSystem = prev != nil && prev.IsSystem
			if r.IsSystem && r.Slug != prev.Slug {
				return fmt.Errorf("%w: system role slugs are fixed", store.ErrConflict)
			}
			return nil
		},
		BeforeDelete: func(_ *gorm.DB, r *models.Role) error {
			if r.IsSystem {
				return fmt.Errorf("%w: system role %q cannot be deleted", store.ErrConflict, r.Slug)
			}
			return nil
		},
		AfterDelete: func(tx *gorm.DB, orgID, id int64) error {
			return store.Scoped(tx, orgID).Where("role_id = ?", id).Delete(&models.RoleAssignment{}).Error
		},
	}).Register(ops.Group("/roles"), env, rolesRead, rolesWrite)

	(&Collection[models.RoleAssignment, *models.RoleAssignment]{
		Name: "role_assignments", Resource: "role_assignment",
		Preload: []string{"Role"},
		Filter: func(c *gin.Context) (func(*models.RoleAssignment) bool, error) {
			raw := c.Query("user_id")
			if raw == "" {
				return nil, nil
			}
			uid, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: user_id must be an integer", models.ErrInvalid)
			}
			return func(a *models.RoleAssignment) bool { return a.UserID == uid }, nil
		},
	}).Register(ops.Group("/role-assignments"), env, rolesRead, rolesWrite)

	(&Collection[models.Goal, *models.Goal]{
		Name: "goals", Resource: "goal",
		Statuses: models.StatusOrder(models.GoalStatuses),
		BeforeSave: func(tx *gorm.DB, orgID int64, g, prev *models.Goal) error {
			if prev != nil && g.ParentID != nil && *g.ParentID == g.ID {
				return fmt.Errorf("%w: a goal cannot be its own parent", models.ErrInvalid)
			}
			// objective progress only changes through roll-up
			if g.Kind != models.GoalKeyResult {
				g.Progress = 0
				if prev != nil {
					g.Progress = prev.Progress
				}
			}
			return operations.CheckGoalParent(tx, orgID, g)
		},
		AfterCommit: func(c *gin.Context, g, prev *models.Goal) {
			env.Operations.ScheduleRollup(c, orgID(c), g.ParentID)
			if prev != nil && prev.ParentID != nil && (g.ParentID == nil || *g.ParentID != *prev.ParentID) {
				env.Operations.ScheduleRollup(c, orgID(c), prev.ParentID)
			}
		},
	}).Register(ops.Group("/goals"), env, guard("goals:read"), guard("goals:write"))

	cvRead, cvWrite := guard("canvas:read"), guard("canvas:write")
	bmc := org.Group("/canvas")
	(&Collection[models.Partner, *models.Partner]{Name: "partners", Resource: "partner"}).
		Register(bmc.Group("/partners"), env, cvRead, cvWrite)
	(&Collection[models.Channel, *models.Channel]{Name: "channels", Resource: "channel"}).
		Register(bmc.Group("/channels"), env, cvRead, cvWrite)
	(&Collection[models.ValueProposition, *models.ValueProposition]{Name: "value_propositions", Resource: "value_proposition"}).
		Register(bmc.Group("/value-propositions"), env, cvRead, cvWrite)
	(&Collection[models.CustomerRelationship, *models.CustomerRelationship]{Name: "customer_relationships", Resource: "customer_relationship"}).
		Register(bmc.Group("/customer-relationships"), env, cvRead, cvWrite)
	(&Collection[models.RevenueStream, *models.RevenueStream]{Name: "revenue_streams", Resource: "revenue_stream"}).
		Register(bmc.Group("/revenue-streams"), env, cvRead, cvWrite)

	(&Collection[models.Canvas, *models.Canvas]{
		Name: "canvases", Resource: "canvas",
		AfterDelete: canvas.DeleteCanvasChildren,
	}).Register(org.Group("/canvases"), env, cvRead, cvWrite)

	(&Collection[models.AiAgent, *models.AiAgent]{Name: "agents", Resource: "agent"}).
		Register(org.Group("/agents"), env, guard("agents:read"), guard("agents:write"))

	(&Collection[models.Conversation, *models.Conversation]{
		Name: "conversations", Resource: "conversation",
		Statuses: models.StatusOrder(models.ConversationStatuses),
		AfterCreate: func(tx *gorm.DB, a audit.Actor, conv *models.Conversation) error {
			if err := conversations.AddCreator(tx, a.OrgID, conv.ID, a.UserID); err != nil {
				return err
			}
			if conv.AgentID == nil {
				return nil
			}
			p := &models.ConversationParticipant{ConversationID: conv.ID, AgentID: conv.AgentID, JoinedAt: conv.CreatedAt}
			return store.Create(tx, a.OrgID, a.UserID, p)
		},
		AfterDelete: conversations.DeleteConversationChildren,
	}).Register(org.Group("/conversations"), env, guard("conversations:read"), guard("conversations:write"))
}
