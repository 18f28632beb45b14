package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"orgops/internal/audit"
	"orgops/internal/cache"
	"orgops/internal/models"
	"orgops/internal/store"
	"orgops/internal/views"
)

// Model is what a generic collection stores: a tenant record the view
// layer can filter, sort and group.
type Model[T any] interface {
	*T
	store.Record
	views.Record
}

// Parent ties a nested collection to the path parameter of its owner,
// e.g. capabilities under /functions/:id.
type Parent[T any] struct {
	Param  string
	Column string
	Model  any
	Get    func(*T) int64
	Set    func(*T, int64)
}

// Collection serves list/get/create/update/delete for one tenant-scoped
// model. Hooks run inside the write transaction.
type Collection[T any, PT Model[T]] struct {
	Name       string // cache collection and response key
	Resource   string // audit resource type
	Statuses   []string
	Preload    []string
	Parent     *Parent[T]
	IDParam    string // defaults to "id"
	Invalidate []string

	// Filter narrows list results from query parameters.
	Filter func(c *gin.Context) (func(*T) bool, error)

	// BeforeSave runs after decoding and before validation. prev is nil on
	// create.
	BeforeSave func(tx *gorm.DB, orgID int64, rec, prev PT) error

	AfterCreate  func(tx *gorm.DB, a audit.Actor, rec PT) error
	BeforeDelete func(tx *gorm.DB, rec PT) error
	AfterDelete  func(tx *gorm.DB, orgID, id int64) error

	// AfterCommit runs once the write is durable, e.g. to enqueue jobs.
	// prev is the stored record before an update and nil otherwise.
	AfterCommit func(c *gin.Context, rec, prev PT)
}

func (col *Collection[T, PT]) Register(g *gin.RouterGroup, env *Env, read, write gin.HandlerFunc) {
	g.GET("", read, col.List(env))
	g.POST("", write, col.Create(env))
	item := "/:" + col.idParam()
	g.GET(item, read, col.Get(env))
	g.PUT(item, write, col.Update(env))
	g.DELETE(item, write, col.Delete(env))
}

func (col *Collection[T, PT]) idParam() string {
	if col.IDParam == "" {
		return "id"
	}
	return col.IDParam
}

func (col *Collection[T, PT]) cacheKey(c *gin.Context) string {
	if col.Parent == nil {
		return col.Name
	}
	return col.Name + ":" + c.Param(col.Parent.Param)
}

// parentID resolves and checks the owner of a nested collection. It
// answers the request itself when the owner is missing.
func (col *Collection[T, PT]) parentID(c *gin.Context, env *Env) (int64, bool) {
	if col.Parent == nil {
		return 0, true
	}
	id, ok := idParam(c, col.Parent.Param)
	if !ok {
		return 0, false
	}
	exists, err := store.Exists(env.DB.WithContext(c), col.Parent.Model, orgID(c), id)
	if err != nil {
		fail(c, err)
		return 0, false
	}
	if !exists {
		fail(c, fmt.Errorf("%s parent %d: %w", col.Resource, id, store.ErrNotFound))
		return 0, false
	}
	return id, true
}

func (col *Collection[T, PT]) List(env *Env) gin.HandlerFunc {
	return func(c *gin.Context) {
		q, err := views.ParseQuery(c.Query("q"), c.Query("status"), c.Query("sort"), c.Query("view"))
		if err != nil {
			fail(c, err)
			return
		}
		parent, ok := col.parentID(c, env)
		if !ok {
			return
		}
		var keep func(*T) bool
		if col.Filter != nil {
			if keep, err = col.Filter(c); err != nil {
				fail(c, err)
				return
			}
		}

		org := orgID(c)
		items, err := cache.Load(c, env.Cache, org, col.cacheKey(c), func() ([]T, error) {
			db := env.DB
			if col.Parent != nil {
				db = db.Where(col.Parent.Column+" = ?", parent)
			}
			return store.List[T](c, db, org, col.Preload...)
		})
		if err != nil {
			fail(c, err)
			return
		}

		recs := make([]PT, 0, len(items))
		for i := range items {
			if keep == nil || keep(&items[i]) {
				recs = append(recs, PT(&items[i]))
			}
		}
		recs = views.Filter(recs, q.Search, q.Status)
		views.Sort(recs, q.Sort)

		switch q.Mode {
		case views.ModeKanban:
			c.JSON(http.StatusOK, gin.H{"columns": views.Kanban(recs, col.Statuses)})
		case views.ModeStats:
			c.JSON(http.StatusOK, gin.H{"stats": views.Summarize(recs, col.Statuses)})
		default:
			c.JSON(http.StatusOK, gin.H{col.Name: recs, "total": len(recs)})
		}
	}
}

// load fetches one record, honoring the parent path parameter.
func (col *Collection[T, PT]) load(c *gin.Context, db *gorm.DB, parent int64) (PT, bool) {
	id, ok := idParam(c, col.idParam())
	if !ok {
		return nil, false
	}
	rec, err := store.Get[T](c, db, orgID(c), id, col.Preload...)
	if err == nil && col.Parent != nil && col.Parent.Get(rec) != parent {
		err = fmt.Errorf("%s %d: %w", col.Resource, id, store.ErrNotFound)
	}
	if err != nil {
		fail(c, err)
		return nil, false
	}
	return PT(rec), true
}

func (col *Collection[T, PT]) Get(env *Env) gin.HandlerFunc {
	return func(c *gin.Context) {
		parent, ok := col.parentID(c, env)
		if !ok {
			return
		}
		rec, ok := col.load(c, env.DB, parent)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, gin.H{col.Resource: rec})
	}
}

func (col *Collection[T, PT]) Create(env *Env) gin.HandlerFunc {
	return func(c *gin.Context) {
		parent, ok := col.parentID(c, env)
		if !ok {
			return
		}
		rec := PT(new(T))
		if !bind(c, rec) {
			return
		}
		*rec.Base() = models.Tenanted{}
		if col.Parent != nil {
			col.Parent.Set(rec, parent)
		}
		a := actor(c)
		err := env.DB.WithContext(c).Transaction(func(tx *gorm.DB) error {
			if col.BeforeSave != nil {
				if err := col.BeforeSave(tx, a.OrgID, rec, nil); err != nil {
					return err
				}
			}
			if err := store.Create(tx, a.OrgID, a.UserID, rec); err != nil {
				return err
			}
			if col.AfterCreate != nil {
				if err := col.AfterCreate(tx, a, rec); err != nil {
					return err
				}
			}
			return audit.Record(tx, a, col.Resource+".create", col.Resource, rec.Base().ID, map[string]string{"name": rec.RecordName()})
		})
		if err != nil {
			fail(c, err)
			return
		}
		col.committed(c, env, rec, nil)
		c.JSON(http.StatusCreated, gin.H{col.Resource: rec})
	}
}

// Update merges the request body onto the stored record: fields absent
// from the body keep their values. Tenant, ID and audit columns are
// never taken from the body.
func (col *Collection[T, PT]) Update(env *Env) gin.HandlerFunc {
	return func(c *gin.Context) {
		parent, ok := col.parentID(c, env)
		if !ok {
			return
		}
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			fail(c, fmt.Errorf("%w: %v", models.ErrInvalid, err))
			return
		}
		a := actor(c)
		var rec, prev PT
		err = env.DB.WithContext(c).Transaction(func(tx *gorm.DB) error {
			var ok bool
			if rec, ok = col.load(c, tx, parent); !ok {
				return errAnswered
			}
			// decoding writes through pointer fields, so prev is its own copy
			if prev, ok = col.load(c, tx, parent); !ok {
				return errAnswered
			}
			base := *rec.Base()
			if err := json.Unmarshal(body, rec); err != nil {
				return fmt.Errorf("%w: %v", models.ErrInvalid, err)
			}
			*rec.Base() = base
			if col.Parent != nil {
				col.Parent.Set(rec, parent)
			}
			if col.BeforeSave != nil {
				if err := col.BeforeSave(tx, a.OrgID, rec, prev); err != nil {
					return err
				}
			}
			if err := store.Save(tx, a.OrgID, a.UserID, rec); err != nil {
				return err
			}
			return audit.Record(tx, a, col.Resource+".update", col.Resource, rec.Base().ID, json.RawMessage(body))
		})
		if err == errAnswered {
			return
		}
		if err != nil {
			fail(c, err)
			return
		}
		col.committed(c, env, rec, prev)
		c.JSON(http.StatusOK, gin.H{col.Resource: rec})
	}
}

func (col *Collection[T, PT]) Delete(env *Env) gin.HandlerFunc {
	return func(c *gin.Context) {
		parent, ok := col.parentID(c, env)
		if !ok {
			return
		}
		a := actor(c)
		var rec PT
		err := env.DB.WithContext(c).Transaction(func(tx *gorm.DB) error {
			var ok bool
			if rec, ok = col.load(c, tx, parent); !ok {
				return errAnswered
			}
			if col.BeforeDelete != nil {
				if err := col.BeforeDelete(tx, rec); err != nil {
					return err
				}
			}
			id := rec.Base().ID
			if err := store.Scoped(tx, a.OrgID).Delete(rec, id).Error; err != nil {
				return err
			}
			if col.AfterDelete != nil {
				if err := col.AfterDelete(tx, a.OrgID, id); err != nil {
					return err
				}
			}
			return audit.Record(tx, a, col.Resource+".delete", col.Resource, id, map[string]string{"name": rec.RecordName()})
		})
		if err == errAnswered {
			return
		}
		if err != nil {
			fail(c, err)
			return
		}
		col.committed(c, env, rec, nil)
		c.Status(http.StatusNoContent)
	}
}

func (col *Collection[T, PT]) committed(c *gin.Context, env *Env, rec, prev PT) {
	env.invalidate(c, append([]string{col.cacheKey(c)}, col.Invalidate...)...)
	if col.AfterCommit != nil {
		col.AfterCommit(c, rec, prev)
	}
}
