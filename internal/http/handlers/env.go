package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"orgops/internal/audit"
	"orgops/internal/auth"
	"orgops/internal/cache"
	"orgops/internal/canvas"
	"orgops/internal/config"
	"orgops/internal/conversations"
	"orgops/internal/jobs"
	"orgops/internal/models"
	"orgops/internal/operations"
	"orgops/internal/rbac"
	"orgops/internal/realtime"
	"orgops/internal/seed"
	"orgops/internal/store"
	"orgops/internal/views"
)

// Env is what every handler closes over.
type Env struct {
	DB            *gorm.DB
	Config        config.Config
	Cache         *cache.Collections
	Jobs          jobs.Queue
	Hub           *realtime.Hub
	Checker       rbac.Checker
	Fixture       *seed.Fixture
	Operations    *operations.Service
	Canvas        *canvas.Service
	Conversations *conversations.Service
}

// NewEnv wires the domain services onto shared infrastructure.
func NewEnv(db *gorm.DB, cfg config.Config, c *cache.Collections, q jobs.Queue, hub *realtime.Hub, fixture *seed.Fixture) *Env {
	ops := operations.New(db, q)
	return &Env{
		DB:            db,
		Config:        cfg,
		Cache:         c,
		Jobs:          q,
		Hub:           hub,
		Checker:       rbac.Checker{DB: db},
		Fixture:       fixture,
		Operations:    ops,
		Canvas:        canvas.New(db),
		Conversations: conversations.New(db, q, hub, ops, cfg.PendingActionTTL),
	}
}

// actor describes the caller for audit entries.
func actor(c *gin.Context) audit.Actor {
	a := audit.Actor{IP: c.ClientIP(), UserAgent: c.Request.UserAgent()}
	if cl := auth.ClaimsFrom(c); cl != nil {
		a.UserID, a.OrgID, a.Name = cl.UserID, cl.OrgID, cl.Email
	}
	return a
}

func orgID(c *gin.Context) int64 {
	if cl := auth.ClaimsFrom(c); cl != nil {
		return cl.OrgID
	}
	return 0
}

var errBadID = errors.New("invalid id")

// errAnswered aborts a transaction whose response was already written.
var errAnswered = errors.New("response already written")

// idParam parses a positive integer path parameter, answering 400 when it
// is not one.
func idParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": errBadID.Error(), "param": name})
		return 0, false
	}
	return id, true
}

// bind decodes the JSON body into v, answering 400 on failure.
func bind(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	return true
}

// fail maps domain errors onto HTTP statuses. Unknown errors are logged
// and answered with a generic 500.
func fail(c *gin.Context, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "method", c.Request.Method, "path", c.FullPath(), "err", err)
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func statusOf(err error) int {
	var syntax *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.Is(err, models.ErrInvalid),
		errors.Is(err, models.ErrInvalidEnum),
		errors.Is(err, views.ErrBadQuery),
		errors.Is(err, errBadID),
		errors.As(err, &syntax),
		errors.As(err, &typeErr):
		return http.StatusBadRequest
	case errors.Is(err, conversations.ErrNotParticipant):
		return http.StatusForbidden
	case errors.Is(err, store.ErrNotFound), errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrConflict),
		errors.Is(err, store.ErrInvalidTransition),
		errors.Is(err, gorm.ErrDuplicatedKey):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// invalidate drops cached collections after a mutation. Failures only
// cost freshness until the TTL runs out.
func (e *Env) invalidate(c *gin.Context, collections ...string) {
	if err := e.Cache.Invalidate(c, orgID(c), collections...); err != nil {
		slog.Warn("cache invalidation failed", "collections", collections, "err", err)
	}
}
