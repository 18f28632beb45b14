package models

// Records that populate the canvas blocks.

type Partner struct {
	Tenanted
	Name         string `gorm:"size:200;not null" json:"name"`
	Description  string `gorm:"type:text" json:"description,omitempty"`
	PartnerType  string `gorm:"size:100" json:"partner_type,omitempty"` // supplier, alliance, joint venture...
	ContactEmail string `gorm:"size:255" json:"contact_email,omitempty"`
	Website      string `gorm:"size:255" json:"website,omitempty"`
}

func (p *Partner) RecordName() string        { return p.Name }
func (p *Partner) UniqueKey() map[string]any { return map[string]any{"name": p.Name} }
func (p *Partner) Validate() error           { return required("name", p.Name) }

type Channel struct {
	Tenanted
	Name        string `gorm:"size:200;not null" json:"name"`
	Description string `gorm:"type:text" json:"description,omitempty"`
	Phase       string `gorm:"size:50" json:"phase,omitempty"` // awareness, evaluation, purchase, delivery, after_sales
	Owned       bool   `json:"owned"`
}

func (c *Channel) RecordName() string        { return c.Name }
func (c *Channel) UniqueKey() map[string]any { return map[string]any{"name": c.Name} }
func (c *Channel) Validate() error           { return required("name", c.Name) }

type ValueProposition struct {
	Tenanted
	Name            string `gorm:"size:200;not null" json:"name"`
	Description     string `gorm:"type:text" json:"description,omitempty"`
	CustomerSegment string `gorm:"size:200" json:"customer_segment,omitempty"`
	PainRelievers   string `gorm:"type:text" json:"pain_relievers,omitempty"`
	GainCreators    string `gorm:"type:text" json:"gain_creators,omitempty"`
}

func (v *ValueProposition) RecordName() string        { return v.Name }
func (v *ValueProposition) UniqueKey() map[string]any { return map[string]any{"name": v.Name} }
func (v *ValueProposition) Validate() error           { return required("name", v.Name) }

type CustomerRelationship struct {
	Tenanted
	Name             string `gorm:"size:200;not null" json:"name"`
	Description      string `gorm:"type:text" json:"description,omitempty"`
	Segment          string `gorm:"size:200" json:"segment,omitempty"`
	RelationshipType string `gorm:"size:100" json:"relationship_type,omitempty"` // self-service, dedicated, community...
}

func (r *CustomerRelationship) RecordName() string        { return r.Name }
func (r *CustomerRelationship) UniqueKey() map[string]any { return map[string]any{"name": r.Name} }
func (r *CustomerRelationship) Validate() error           { return required("name", r.Name) }

type RevenueStream struct {
	Tenanted
	Name         string  `gorm:"size:200;not null" json:"name"`
	Description  string  `gorm:"type:text" json:"description,omitempty"`
	PricingModel string  `gorm:"size:100" json:"pricing_model,omitempty"`
	AnnualAmount float64 `json:"annual_amount"`
	Currency     string  `gorm:"size:3" json:"currency,omitempty"`
}

func (r *RevenueStream) RecordName() string        { return r.Name }
func (r *RevenueStream) UniqueKey() map[string]any { return map[string]any{"name": r.Name} }

func (r *RevenueStream) Validate() error {
	if err := required("name", r.Name); err != nil {
		return err
	}
	if r.AnnualAmount < 0 {
		return invalidf("annual_amount must not be negative")
	}
	if r.Currency != "" && len(r.Currency) != 3 {
		return invalidf("currency must be a 3-letter code")
	}
	return nil
}
