package models

// Canvas is a Business Model Canvas.
type Canvas struct {
	Tenanted
	Name        string        `gorm:"size:200;not null" json:"name"`
	Description string        `gorm:"type:text" json:"description,omitempty"`
	Blocks      []CanvasBlock `gorm:"foreignKey:CanvasID" json:"blocks,omitempty"`
}

// TableName pins the plural; gorm's inflector leaves "canvas" unchanged.
func (Canvas) TableName() string { return "canvases" }

func (c *Canvas) RecordName() string { return c.Name }

func (c *Canvas) UniqueKey() map[string]any { return map[string]any{"name": c.Name} }

func (c *Canvas) Validate() error { return required("name", c.Name) }

type CanvasBlock struct {
	Tenanted
	CanvasID   int64            `gorm:"index;not null" json:"canvas_id"`
	Type       BlockType        `gorm:"size:40;not null" json:"type"`
	Notes      string           `gorm:"type:text" json:"notes,omitempty"`
	References []BlockReference `gorm:"foreignKey:BlockID" json:"references,omitempty"`
}

// BlockReference links a canvas block to a record of the given kind.
type BlockReference struct {
	Tenanted
	BlockID  int64      `gorm:"index;not null" json:"block_id"`
	Kind     EntityKind `gorm:"size:40;not null" json:"kind"`
	EntityID int64      `gorm:"index;not null" json:"entity_id"`
	Note     string     `gorm:"size:500" json:"note,omitempty"`
}

var blockKinds = map[BlockType][]EntityKind{
	BlockKeyPartners:           {KindPartner},
	BlockKeyActivities:         {KindActivity, KindProcess},
	BlockKeyResources:          {KindResource},
	BlockValuePropositions:     {KindValueProposition},
	BlockCustomerRelationships: {KindCustomerRelationship},
	BlockChannels:              {KindChannel},
	BlockCustomerSegments:      {KindValueProposition, KindCustomerRelationship},
	BlockCostStructure:         {KindResource, KindActivity, KindProcess},
	BlockRevenueStreams:        {KindRevenueStream},
}

// Accepts reports whether a block of type t may reference records of kind k.
func (t BlockType) Accepts(k EntityKind) bool {
	return oneOf(k, blockKinds[t])
}
