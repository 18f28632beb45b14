package canvas

import (
	"gorm.io/gorm"

	"orgops/internal/models"
	"orgops/internal/store"
)

// Item is the typed payload of one record shown on the board. Each kind
// has its own struct; Kind is the discriminator.
type Item interface {
	Kind() models.EntityKind
}

type PartnerItem struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	PartnerType  string `json:"partner_type,omitempty"`
	ContactEmail string `json:"contact_email,omitempty"`
}

func (PartnerItem) Kind() models.EntityKind { return models.KindPartner }

type ActivityItem struct {
	ID        int64                 `json:"id"`
	Name      string                `json:"name"`
	ProcessID int64                 `json:"process_id"`
	Status    models.ActivityStatus `json:"status"`
}

func (ActivityItem) Kind() models.EntityKind { return models.KindActivity }

type ProcessItem struct {
	ID     int64                `json:"id"`
	Name   string               `json:"name"`
	Status models.ProcessStatus `json:"status"`
}

func (ProcessItem) Kind() models.EntityKind { return models.KindProcess }

type ResourceItem struct {
	ID     int64                 `json:"id"`
	Name   string                `json:"name"`
	Type   models.ResourceType   `json:"type"`
	Status models.ResourceStatus `json:"status"`
	Cost   float64               `json:"cost"`
}

func (ResourceItem) Kind() models.EntityKind { return models.KindResource }

type ValuePropositionItem struct {
	ID              int64  `json:"id"`
	Name            string `json:"name"`
	Description     string `json:"description,omitempty"`
	CustomerSegment string `json:"customer_segment,omitempty"`
}

func (ValuePropositionItem) Kind() models.EntityKind { return models.KindValueProposition }

type CustomerRelationshipItem struct {
	ID               int64  `json:"id"`
	Name             string `json:"name"`
	Segment          string `json:"segment,omitempty"`
	RelationshipType string `json:"relationship_type,omitempty"`
}

func (CustomerRelationshipItem) Kind() models.EntityKind { return models.KindCustomerRelationship }

type ChannelItem struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Phase string `json:"phase,omitempty"`
	Owned bool   `json:"owned"`
}

func (ChannelItem) Kind() models.EntityKind { return models.KindChannel }

type RevenueStreamItem struct {
	ID           int64   `json:"id"`
	Name         string  `json:"name"`
	PricingModel string  `json:"pricing_model,omitempty"`
	AnnualAmount float64 `json:"annual_amount"`
	Currency     string  `json:"currency,omitempty"`
}

func (RevenueStreamItem) Kind() models.EntityKind { return models.KindRevenueStream }

type source struct {
	model func() any
	load  func(db *gorm.DB, orgID int64, ids []int64) (map[int64]Item, error)
}

var sources = map[models.EntityKind]source{
	models.KindPartner: {
		model: func() any { return &models.Partner{} },
		load: loader(func(p *models.Partner) Item {
			return PartnerItem{ID: p.ID, Name: p.Name, Description: p.Description, PartnerType: p.PartnerType, ContactEmail: p.ContactEmail}
		}),
	},
	models.KindActivity: {
		model: func() any { return &models.Activity{} },
		load: loader(func(a *models.Activity) Item {
			return ActivityItem{ID: a.ID, Name: a.Name, ProcessID: a.ProcessID, Status: a.Status}
		}),
	},
	models.KindProcess: {
		model: func() any { return &models.Process{} },
		load: loader(func(p *models.Process) Item {
			return ProcessItem{ID: p.ID, Name: p.Name, Status: p.Status}
		}),
	},
	models.KindResource: {
		model: func() any { return &models.Resource{} },
		load: loader(func(r *models.Resource) Item {
			return ResourceItem{ID: r.ID, Name: r.Name, Type: r.Type, Status: r.Status, Cost: r.Cost}
		}),
	},
	models.KindValueProposition: {
		model: func() any { return &models.ValueProposition{} },
		load: loader(func(v *models.ValueProposition) Item {
			return ValuePropositionItem{ID: v.ID, Name: v.Name, Description: v.Description, CustomerSegment: v.CustomerSegment}
		}),
	},
	models.KindCustomerRelationship: {
		model: func() any { return &models.CustomerRelationship{} },
		load: loader(func(r *models.CustomerRelationship) Item {
			return CustomerRelationshipItem{ID: r.ID, Name: r.Name, Segment: r.Segment, RelationshipType: r.RelationshipType}
		}),
	},
	models.KindChannel: {
		model: func() any { return &models.Channel{} },
		load: loader(func(c *models.Channel) Item {
			return ChannelItem{ID: c.ID, Name: c.Name, Phase: c.Phase, Owned: c.Owned}
		}),
	},
	models.KindRevenueStream: {
		model: func() any { return &models.RevenueStream{} },
		load: loader(func(r *models.RevenueStream) Item {
			return RevenueStreamItem{ID: r.ID, Name: r.Name, PricingModel: r.PricingModel, AnnualAmount: r.AnnualAmount, Currency: r.Currency}
		}),
	},
}

type recordPtr[T any] interface {
	*T
	store.Record
}

// loader builds a batch loader for one kind: a single IN query, results
// keyed by ID.
func loader[T any, PT recordPtr[T]](wrap func(PT) Item) func(*gorm.DB, int64, []int64) (map[int64]Item, error) {
	return func(db *gorm.DB, orgID int64, ids []int64) (map[int64]Item, error) {
		var rows []T
		if err := store.Scoped(db, orgID).Where("id IN ?", ids).Find(&rows).Error; err != nil {
			return nil, err
		}
		out := make(map[int64]Item, len(rows))
		for i := range rows {
			p := PT(&rows[i])
			out[p.Base().ID] = wrap(p)
		}
		return out, nil
	}
}
