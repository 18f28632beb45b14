package models

import (
	"time"

	"gorm.io/datatypes"
)

// AiAgent is an assistant configuration that can take part in
// conversations and propose actions.
type AiAgent struct {
	Tenanted
	Name         string `gorm:"size:200;not null" json:"name"`
	Description  string `gorm:"type:text" json:"description,omitempty"`
	Model        string `gorm:"size:100" json:"model,omitempty"`
	SystemPrompt string `gorm:"type:text" json:"system_prompt,omitempty"`
	Enabled      *bool  `gorm:"not null" json:"enabled"`
}

func (a *AiAgent) RecordName() string        { return a.Name }
func (a *AiAgent) UniqueKey() map[string]any { return map[string]any{"name": a.Name} }

// IsEnabled reports whether the agent may speak. Agents are enabled unless
// switched off.
func (a *AiAgent) IsEnabled() bool { return a.Enabled == nil || *a.Enabled }

func (a *AiAgent) Validate() error {
	if a.Enabled == nil {
		on := true
		a.Enabled = &on
	}
	return required("name", a.Name)
}

type Conversation struct {
	Tenanted
	Title   string             `gorm:"size:200;not null" json:"title"`
	Status  ConversationStatus `gorm:"size:20;not null;default:active" json:"status"`
	AgentID *int64             `gorm:"index" json:"agent_id,omitempty"`

	Participants []ConversationParticipant `gorm:"foreignKey:ConversationID" json:"participants,omitempty"`
}

func (c *Conversation) RecordName() string   { return c.Title }
func (c *Conversation) RecordStatus() string { return string(c.Status) }

func (c *Conversation) Refs() []Ref {
	return []Ref{{Field: "agent_id", Model: &AiAgent{}, ID: c.AgentID}}
}

func (c *Conversation) Validate() error {
	if c.Title == "" {
		c.Title = "New conversation"
	}
	if c.Status == "" {
		c.Status = ConversationActive
	}
	return nil
}

// ConversationParticipant is exactly one of a user or an agent.
type ConversationParticipant struct {
	Tenanted
	ConversationID int64     `gorm:"index;not null" json:"conversation_id"`
	UserID         *int64    `gorm:"index" json:"user_id,omitempty"`
	AgentID        *int64    `gorm:"index" json:"agent_id,omitempty"`
	JoinedAt       time.Time `json:"joined_at"`
}

func (p *ConversationParticipant) Validate() error {
	if (p.UserID == nil) == (p.AgentID == nil) {
		return invalidf("a participant is exactly one of user_id or agent_id")
	}
	return nil
}

type Message struct {
	Tenanted
	ConversationID int64       `gorm:"index;not null" json:"conversation_id"`
	Role           MessageRole `gorm:"size:20;not null" json:"role"`
	SenderUserID   *int64      `gorm:"index" json:"sender_user_id,omitempty"`
	SenderAgentID  *int64      `gorm:"index" json:"sender_agent_id,omitempty"`
	Content        string      `gorm:"type:text;not null" json:"content"`
	TokenCount     int         `json:"token_count"`
}

// PendingAction is a change proposed by an agent that waits for a human
// decision before it is applied.
type PendingAction struct {
	Tenanted
	ConversationID int64          `gorm:"index;not null" json:"conversation_id"`
	MessageID      *int64         `gorm:"index" json:"message_id,omitempty"`
	AgentID        *int64         `gorm:"index" json:"agent_id,omitempty"`
	Type           ActionType     `gorm:"size:40;not null" json:"type"`
	Summary        string         `gorm:"size:500" json:"summary,omitempty"`
	Payload        datatypes.JSON `gorm:"type:json" json:"payload"`
	Status         ActionStatus   `gorm:"size:20;not null;default:pending;index" json:"status"`
	ExpiresAt      time.Time      `gorm:"index" json:"expires_at"`
	DecidedBy      *int64         `json:"decided_by,omitempty"`
	DecidedAt      *time.Time     `json:"decided_at,omitempty"`
	Result         datatypes.JSON `gorm:"type:json" json:"result,omitempty"`
	Error          string         `gorm:"type:text" json:"error,omitempty"`
}
