// Package store holds the tenant-scoped query helpers shared by the
// handlers and the domain packages.
package store

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"orgops/internal/models"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrInvalidTransition = errors.New("invalid state transition")
)

// Record is any organization-scoped model.
type Record interface {
	Base() *models.Tenanted
}

// Uniquer names the columns that must be unique among a tenant's live
// rows.
type Uniquer interface {
	UniqueKey() map[string]any
}

// Referencer lists the tenant rows a record points at.
type Referencer interface {
	Refs() []models.Ref
}

// Validator fills defaults and rejects invalid records.
type Validator interface {
	Validate() error
}

// Scoped restricts db to orgID's rows.
func Scoped(db *gorm.DB, orgID int64) *gorm.DB {
	return db.Where("org_id = ?", orgID)
}

// Get loads the live row id of orgID into a new T.
func Get[T any](ctx context.Context, db *gorm.DB, orgID, id int64, preload ...string) (*T, error) {
	var rec T
	q := Scoped(db.WithContext(ctx), orgID)
	for _, p := range preload {
		q = q.Preload(p)
	}
	if err := q.First(&rec, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%T %d: %w", rec, id, ErrNotFound)
		}
		return nil, err
	}
	return &rec, nil
}

// List loads all live rows of orgID in ID order.
func List[T any](ctx context.Context, db *gorm.DB, orgID int64, preload ...string) ([]T, error) {
	items := []T{}
	q := Scoped(db.WithContext(ctx), orgID).Order("id")
	for _, p := range preload {
		q = q.Preload(p)
	}
	if err := q.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// Exists reports whether model has a live row id in orgID.
func Exists(tx *gorm.DB, model any, orgID, id int64) (bool, error) {
	var n int64
	err := tx.Model(model).Where("org_id = ? AND id = ?", orgID, id).Count(&n).Error
	return n > 0, err
}

// CheckRefs makes sure every non-nil reference points at a live row of
// the same tenant.
func CheckRefs(tx *gorm.DB, orgID int64, refs []models.Ref) error {
	for _, r := range refs {
		if r.ID == nil || *r.ID == 0 {
			continue
		}
		ok, err := Exists(tx, r.Model, orgID, *r.ID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%s %d: %w", r.Field, *r.ID, ErrNotFound)
		}
	}
	return nil
}

// CheckUnique fails with ErrConflict when another live row of orgID has
// the same key. id is the row being updated (0 on create).
func CheckUnique(tx *gorm.DB, model any, orgID, id int64, key map[string]any) error {
	if len(key) == 0 {
		return nil
	}
	// a zero value of the model's type so no primary key condition leaks in
	fresh := reflect.New(reflect.TypeOf(model).Elem()).Interface()
	q := tx.Model(fresh).Where("org_id = ?", orgID).Where(key)
	if id != 0 {
		q = q.Where("id <> ?", id)
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return err
	}
	if n > 0 {
		return fmt.Errorf("%w: %v already exists", ErrConflict, key)
	}
	return nil
}

// Prepare validates rec and checks its references and uniqueness before a
// write.
func Prepare(tx *gorm.DB, orgID int64, rec Record) error {
	if v, ok := rec.(Validator); ok {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	if r, ok := rec.(Referencer); ok {
		if err := CheckRefs(tx, orgID, r.Refs()); err != nil {
			return err
		}
	}
	if u, ok := rec.(Uniquer); ok {
		if err := CheckUnique(tx, rec, orgID, rec.Base().ID, u.UniqueKey()); err != nil {
			return err
		}
	}
	return nil
}

// Create stamps tenant and audit columns and inserts rec without
// touching associations.
func Create(tx *gorm.DB, orgID, userID int64, rec Record) error {
	b := rec.Base()
	b.ID = 0
	b.OrgID = orgID
	b.CreatedBy = userPtr(userID)
	b.UpdatedBy = userPtr(userID)
	if err := Prepare(tx, orgID, rec); err != nil {
		return err
	}
	return tx.Omit(clause.Associations).Create(rec).Error
}

// Save writes every column of an existing rec.
func Save(tx *gorm.DB, orgID, userID int64, rec Record) error {
	b := rec.Base()
	b.OrgID = orgID
	b.UpdatedBy = userPtr(userID)
	if err := Prepare(tx, orgID, rec); err != nil {
		return err
	}
	return tx.Omit(clause.Associations).Save(rec).Error
}

func userPtr(id int64) *int64 {
	if id == 0 {
		return nil
	}
	return &id
}
