package operations

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"orgops/internal/models"
	"orgops/internal/store"
)

// CheckFunctionParent walks the parent chain of f and rejects a parent
// that would close a loop back to f.
func CheckFunctionParent(tx *gorm.DB, orgID int64, f *models.Function) error {
	if f.ID == 0 || f.ParentID == nil {
		return nil
	}
	seen := map[int64]bool{f.ID: true}
	for next := f.ParentID; next != nil; {
		if seen[*next] {
			return fmt.Errorf("%w: function %d would become its own ancestor", models.ErrInvalid, f.ID)
		}
		seen[*next] = true
		var parent models.Function
		err := store.Scoped(tx, orgID).Select("id", "parent_id").First(&parent, *next).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// dangling parents are reported by the reference check
			return nil
		}
		if err != nil {
			return err
		}
		next = parent.ParentID
	}
	return nil
}
