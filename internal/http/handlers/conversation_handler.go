package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"orgops/internal/conversations"
	"orgops/internal/models"
)

func ListParticipants(env *Env) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		ps, err := env.Conversations.Participants(c, orgID(c), id)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"participants": ps})
	}
}

func AddParticipant(env *Env) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		var in models.ConversationParticipant
		if !bind(c, &in) {
			return
		}
		p, err := env.Conversations.AddParticipant(c, actor(c), id, in)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"participant": p})
	}
}

func ListMessages(env *Env) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		var q struct {
			AfterID int64 `form:"after_id"`
			Limit   int   `form:"limit"`
		}
		if err := c.ShouldBindQuery(&q); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		msgs, err := env.Conversations.Messages(c, orgID(c), id, q.AfterID, q.Limit)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"messages": msgs})
	}
}

func PostMessage(env *Env) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		var in conversations.NewMessage
		if !bind(c, &in) {
			return
		}
		out, err := env.Conversations.PostMessage(c, actor(c), id, in)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusCreated, out)
	}
}

// Stream upgrades to a WebSocket that receives the conversation's new
// messages and action updates. Only participants may listen.
func Stream(env *Env) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		a := actor(c)
		member, err := env.Conversations.IsParticipant(c, a.OrgID, id, a.UserID)
		if err != nil {
			fail(c, err)
			return
		}
		if !member {
			fail(c, fmt.Errorf("%w: user %d", conversations.ErrNotParticipant, a.UserID))
			return
		}
		if err := env.Hub.Serve(c.Writer, c.Request, id, a.UserID); err != nil {
			slog.Warn("websocket upgrade failed", "conversation_id", id, "err", err)
		}
	}
}

func ListActions(env *Env) gin.HandlerFunc {
	return func(c *gin.Context) {
		var convID int64
		if raw := c.Query("conversation_id"); raw != "" {
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "conversation_id must be an integer"})
				return
			}
			convID = id
		}
		status := models.ActionStatus(c.Query("status"))
		if status != "" && !status.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown action status %q", status)})
			return
		}
		actions, err := env.Conversations.Actions(c, orgID(c), convID, status)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"actions": actions})
	}
}

func GetAction(env *Env) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		a, err := env.Conversations.Action(c, orgID(c), id)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"action": a})
	}
}

// ApproveAction runs a pending action. A failed execution is still a 200:
// the action is returned with status failed and the error.
func ApproveAction(env *Env) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		a, err := env.Conversations.Approve(c, actor(c), id)
		if err != nil {
			fail(c, err)
			return
		}
		if a.Status == models.ActionExecuted {
			switch a.Type {
			case models.ActionCreateGoal, models.ActionUpdateGoalStatus:
				env.invalidate(c, "goals")
			case models.ActionCreateActivity:
				env.invalidate(c, "activities")
			}
		}
		c.JSON(http.StatusOK, gin.H{"action": a})
	}
}

func RejectAction(env *Env) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		var in struct {
			Reason string `json:"reason"`
		}
		if c.Request.ContentLength > 0 && !bind(c, &in) {
			return
		}
		a, err := env.Conversations.Reject(c, actor(c), id, in.Reason)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"action": a})
	}
}

// Usage serves the usage analytics dashboard.
func Usage(env *Env) gin.HandlerFunc {
	return func(c *gin.Context) {
		days, err := conversations.ParseDays(c.Query("days"))
		if err != nil {
			fail(c, err)
			return
		}
		u, err := env.Conversations.Usage(c, orgID(c), days)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, u)
	}
}
