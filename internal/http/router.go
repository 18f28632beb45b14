package httpserver

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"orgops/internal/auth"
	"orgops/internal/http/handlers"
	"orgops/internal/logging"
	"orgops/internal/rbac"
)

func NewRouter(env *handlers.Env, log *slog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(logging.Middleware(log), gin.Recovery())

	r.GET("/favicon.ico", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	r.GET("/healthz", health(env))

	// Public routes
	public := r.Group("/api/v1/auth")
	public.POST("/login", handlers.LoginHandler(env))
	public.POST("/register", handlers.RegisterHandler(env))
	public.POST("/logout", handlers.LogoutHandler())

	chk := env.Checker
	guard := func(key string) gin.HandlerFunc { return requirePerm(chk, key) }

	api := r.Group("/api/v1", auth.JWT(env.DB, env.Config.JWTSecret))
	{
		// Current user info & permissions
		api.GET("/me", handlers.MeHandler(env))
		api.GET("/permissions", handlers.ListPermissions(env))
	}

	org := api.Group("/organizations/:orgId", auth.Tenant())
	{
		// Users
		org.GET("/users", guard("users:read"), handlers.ListUsers(env))
		org.POST("/users", guard("users:write"), handlers.CreateUser(env))
		org.POST("/users/:id/activate", guard("users:write"), handlers.ActivateUser(env))
		org.POST("/users/:id/deactivate", guard("users:write"), handlers.DeactivateUser(env))
		org.POST("/users/:id/password", guard("users:write"), handlers.ChangePassword(env))

		// Operations
		ops := org.Group("/operations")
		ops.POST("/roles/:id/permissions", guard("roles:write"), handlers.SetRolePermissions(env))
		ops.GET("/processes/:id/graph", guard("operations:read"), handlers.ProcessGraph(env))
		ops.POST("/processes/:id/edges", guard("operations:write"), handlers.AddEdge(env))
		ops.DELETE("/processes/:id/edges/:edgeId", guard("operations:write"), handlers.DeleteEdge(env))
		ops.PUT("/processes/:id/layout", guard("operations:write"), handlers.SaveLayout(env))
		ops.GET("/goals/tree", guard("goals:read"), handlers.GoalTree(env))
		ops.PUT("/goals/:id/progress", guard("goals:write"), handlers.UpdateGoalProgress(env))
		ops.GET("/dashboard", guard("operations:read"), handlers.Dashboard(env))

		// Business model canvas
		org.GET("/canvas/kinds", guard("canvas:read"), handlers.BlockKinds())
		org.GET("/canvases/:id/board", guard("canvas:read"), handlers.Board(env))
		org.POST("/canvases/:id/blocks", guard("canvas:write"), handlers.AddBlock(env))
		org.PUT("/canvases/:id/blocks/:blockId", guard("canvas:write"), handlers.UpdateBlock(env))
		org.DELETE("/canvases/:id/blocks/:blockId", guard("canvas:write"), handlers.DeleteBlock(env))
		org.POST("/canvases/:id/blocks/:blockId/references", guard("canvas:write"), handlers.AddReference(env))
		org.DELETE("/canvases/:id/blocks/:blockId/references/:refId", guard("canvas:write"), handlers.DeleteReference(env))

		// Conversations
		org.GET("/conversations/:id/participants", guard("conversations:read"), handlers.ListParticipants(env))
		org.POST("/conversations/:id/participants", guard("conversations:write"), handlers.AddParticipant(env))
		org.GET("/conversations/:id/messages", guard("conversations:read"), handlers.ListMessages(env))
		org.POST("/conversations/:id/messages", guard("conversations:write"), handlers.PostMessage(env))
		org.GET("/conversations/:id/stream", guard("conversations:read"), handlers.Stream(env))
		org.GET("/pending-actions", guard("conversations:read"), handlers.ListActions(env))
		org.GET("/pending-actions/:id", guard("conversations:read"), handlers.GetAction(env))
		org.POST("/pending-actions/:id/approve", guard("conversations:write"), handlers.ApproveAction(env))
		org.POST("/pending-actions/:id/reject", guard("conversations:write"), handlers.RejectAction(env))

		org.GET("/analytics/usage", guard("analytics:read"), handlers.Usage(env))

		// Audit Trail
		org.GET("/audit", guard("audit:read"), handlers.ListAudit(env))

		handlers.RegisterCollections(org, env, guard)
	}

	return r
}

func health(env *handlers.Env) gin.HandlerFunc {
	return func(c *gin.Context) {
		sqlDB, err := env.DB.DB()
		if err == nil {
			err = sqlDB.PingContext(c)
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

func requirePerm(chk rbac.Checker, permKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		cl := auth.ClaimsFrom(c)
		if cl == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
			return
		}
		ok, err := chk.Can(c, cl.UserID, cl.OrgID, permKey)
		if err != nil {
			slog.Error("permission check failed", "perm", permKey, "err", err)
		}
		if err != nil || !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden", "missing": permKey})
			return
		}
		c.Next()
	}
}
