// Package canvas manages Business Model Canvas blocks, the references
// from blocks to operational and canvas records, and the resolved board.
package canvas

import (
	"context"
	"fmt"
	"sort"

	"gorm.io/gorm"

	"orgops/internal/audit"
	"orgops/internal/models"
	"orgops/internal/store"
)

type Service struct {
	DB *gorm.DB
}

func New(db *gorm.DB) *Service {
	return &Service{DB: db}
}

// AddBlock creates a block on a canvas. A canvas holds at most one block
// of each type.
func (s *Service) AddBlock(ctx context.Context, actor audit.Actor, canvasID int64, in models.CanvasBlock) (*models.CanvasBlock, error) {
	if !in.Type.Valid() {
		return nil, fmt.Errorf("%w: block type is required", models.ErrInvalid)
	}
	block := &models.CanvasBlock{CanvasID: canvasID, Type: in.Type, Notes: in.Notes}
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requireCanvas(tx, actor.OrgID, canvasID); err != nil {
			return err
		}
		if err := store.CheckUnique(tx, block, actor.OrgID, 0, map[string]any{"canvas_id": canvasID, "type": in.Type}); err != nil {
			return err
		}
		if err := store.Create(tx, actor.OrgID, actor.UserID, block); err != nil {
			return err
		}
		return audit.Record(tx, actor, "canvas_block.create", "canvas_block", block.ID,
			map[string]any{"canvas_id": canvasID, "type": in.Type})
	})
	if err != nil {
		return nil, err
	}
	return block, nil
}

// UpdateNotes replaces the free-text notes of a block.
func (s *Service) UpdateNotes(ctx context.Context, actor audit.Actor, canvasID, blockID int64, notes string) (*models.CanvasBlock, error) {
	var block *models.CanvasBlock
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		b, err := findBlock(tx, actor.OrgID, canvasID, blockID)
		if err != nil {
			return err
		}
		b.Notes = notes
		if err := store.Save(tx, actor.OrgID, actor.UserID, b); err != nil {
			return err
		}
		block = b
		return audit.Record(tx, actor, "canvas_block.update", "canvas_block", b.ID, nil)
	})
	return block, err
}

// DeleteBlock soft-deletes a block and its references.
func (s *Service) DeleteBlock(ctx context.Context, actor audit.Actor, canvasID, blockID int64) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := findBlock(tx, actor.OrgID, canvasID, blockID); err != nil {
			return err
		}
		if err := store.Scoped(tx, actor.OrgID).Where("block_id = ?", blockID).Delete(&models.BlockReference{}).Error; err != nil {
			return err
		}
		if err := store.Scoped(tx, actor.OrgID).Delete(&models.CanvasBlock{}, blockID).Error; err != nil {
			return err
		}
		return audit.Record(tx, actor, "canvas_block.delete", "canvas_block", blockID, nil)
	})
}

// DeleteCanvasChildren soft-deletes every block of a canvas along with
// the blocks' references. Runs inside the caller's transaction.
func DeleteCanvasChildren(tx *gorm.DB, orgID, canvasID int64) error {
	blocks := store.Scoped(tx.Model(&models.CanvasBlock{}), orgID).Select("id").Where("canvas_id = ?", canvasID)
	if err := store.Scoped(tx, orgID).Where("block_id IN (?)", blocks).Delete(&models.BlockReference{}).Error; err != nil {
		return err
	}
	return store.Scoped(tx, orgID).Where("canvas_id = ?", canvasID).Delete(&models.CanvasBlock{}).Error
}

// AddReference links a block to a live record of the tenant. The kind must
// be one the block type accepts and the same record may be linked once.
func (s *Service) AddReference(ctx context.Context, actor audit.Actor, canvasID, blockID int64, in models.BlockReference) (*models.BlockReference, error) {
	src, ok := sources[in.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: kind is required", models.ErrInvalid)
	}
	if in.EntityID == 0 {
		return nil, fmt.Errorf("%w: entity_id is required", models.ErrInvalid)
	}
	ref := &models.BlockReference{BlockID: blockID, Kind: in.Kind, EntityID: in.EntityID, Note: in.Note}
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		block, err := findBlock(tx, actor.OrgID, canvasID, blockID)
		if err != nil {
			return err
		}
		if !block.Type.Accepts(in.Kind) {
			return fmt.Errorf("%w: %s cannot hold %s records", models.ErrInvalid, block.Type, in.Kind)
		}
		if ok, err := store.Exists(tx, src.model(), actor.OrgID, in.EntityID); err != nil {
			return err
		} else if !ok {
			return fmt.Errorf("%s %d: %w", in.Kind, in.EntityID, store.ErrNotFound)
		}
		key := map[string]any{"block_id": blockID, "kind": in.Kind, "entity_id": in.EntityID}
		if err := store.CheckUnique(tx, ref, actor.OrgID, 0, key); err != nil {
			return err
		}
		if err := store.Create(tx, actor.OrgID, actor.UserID, ref); err != nil {
			return err
		}
		return audit.Record(tx, actor, "block_reference.create", "block_reference", ref.ID,
			map[string]any{"block_id": blockID, "kind": in.Kind, "entity_id": in.EntityID})
	})
	if err != nil {
		return nil, err
	}
	return ref, nil
}

func (s *Service) DeleteReference(ctx context.Context, actor audit.Actor, canvasID, blockID, refID int64) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := findBlock(tx, actor.OrgID, canvasID, blockID); err != nil {
			return err
		}
		res := store.Scoped(tx, actor.OrgID).Where("block_id = ?", blockID).Delete(&models.BlockReference{}, refID)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("reference %d: %w", refID, store.ErrNotFound)
		}
		return audit.Record(tx, actor, "block_reference.delete", "block_reference", refID, nil)
	})
}

// BoardItem is one resolved reference. Item is nil when the referenced
// record no longer exists, in which case Dangling is set.
type BoardItem struct {
	ReferenceID int64             `json:"reference_id"`
	Kind        models.EntityKind `json:"kind"`
	EntityID    int64             `json:"entity_id"`
	Note        string            `json:"note,omitempty"`
	Dangling    bool              `json:"dangling"`
	Item        Item              `json:"item"`
}

// BoardBlock is one of the nine canvas slots. BlockID is zero for slots
// that have no block yet.
type BoardBlock struct {
	BlockID int64            `json:"block_id,omitempty"`
	Type    models.BlockType `json:"type"`
	Notes   string           `json:"notes,omitempty"`
	Items   []BoardItem      `json:"items"`
}

type Board struct {
	Canvas   models.Canvas `json:"canvas"`
	Blocks   []BoardBlock  `json:"blocks"`
	Dangling int           `json:"dangling"`
}

// Board resolves every reference of a canvas into its typed item, one
// query per referenced kind. Slots are returned in canonical block order.
func (s *Service) Board(ctx context.Context, orgID, canvasID int64) (*Board, error) {
	cv, err := store.Get[models.Canvas](ctx, s.DB, orgID, canvasID)
	if err != nil {
		return nil, err
	}
	db := s.DB.WithContext(ctx)

	var blocks []models.CanvasBlock
	if err := store.Scoped(db, orgID).Where("canvas_id = ?", canvasID).Find(&blocks).Error; err != nil {
		return nil, err
	}
	ids := make([]int64, len(blocks))
	for i, b := range blocks {
		ids[i] = b.ID
	}
	var refs []models.BlockReference
	if len(ids) > 0 {
		if err := store.Scoped(db, orgID).Where("block_id IN ?", ids).Order("id").Find(&refs).Error; err != nil {
			return nil, err
		}
	}

	wanted := map[models.EntityKind][]int64{}
	for _, r := range refs {
		wanted[r.Kind] = append(wanted[r.Kind], r.EntityID)
	}
	resolved := map[models.EntityKind]map[int64]Item{}
	for kind, entityIDs := range wanted {
		src, ok := sources[kind]
		if !ok {
			continue
		}
		items, err := src.load(db, orgID, entityIDs)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", kind, err)
		}
		resolved[kind] = items
	}

	byBlock := map[int64][]BoardItem{}
	board := &Board{Canvas: *cv}
	for _, r := range refs {
		bi := BoardItem{ReferenceID: r.ID, Kind: r.Kind, EntityID: r.EntityID, Note: r.Note}
		if item, ok := resolved[r.Kind][r.EntityID]; ok {
			bi.Item = item
		} else {
			bi.Dangling = true
			board.Dangling++
		}
		byBlock[r.BlockID] = append(byBlock[r.BlockID], bi)
	}

	byType := make(map[models.BlockType]models.CanvasBlock, len(blocks))
	for _, b := range blocks {
		byType[b.Type] = b
	}
	for _, t := range models.BlockTypes {
		slot := BoardBlock{Type: t, Items: []BoardItem{}}
		if b, ok := byType[t]; ok {
			slot.BlockID = b.ID
			slot.Notes = b.Notes
			if items := byBlock[b.ID]; items != nil {
				slot.Items = items
			}
		}
		board.Blocks = append(board.Blocks, slot)
	}
	return board, nil
}

// Kinds lists, for each block type, the record kinds it accepts. Used by
// clients to build the reference picker.
func Kinds() map[models.BlockType][]models.EntityKind {
	out := make(map[models.BlockType][]models.EntityKind, len(models.BlockTypes))
	for _, t := range models.BlockTypes {
		var ks []models.EntityKind
		for k := range sources {
			if t.Accepts(k) {
				ks = append(ks, k)
			}
		}
		sort.Slice(ks, func(i, j int) bool { return ks[i] < ks[j] })
		out[t] = ks
	}
	return out
}

func requireCanvas(tx *gorm.DB, orgID, canvasID int64) error {
	ok, err := store.Exists(tx, &models.Canvas{}, orgID, canvasID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("canvas %d: %w", canvasID, store.ErrNotFound)
	}
	return nil
}

func findBlock(tx *gorm.DB, orgID, canvasID, blockID int64) (*models.CanvasBlock, error) {
	var b models.CanvasBlock
	err := store.Scoped(tx, orgID).Where("canvas_id = ?", canvasID).Limit(1).Find(&b, blockID).Error
	if err != nil {
		return nil, err
	}
	if b.ID == 0 {
		return nil, fmt.Errorf("block %d: %w", blockID, store.ErrNotFound)
	}
	return &b, nil
}
