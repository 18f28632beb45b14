// Package conversations implements the AI-assisted layer: participants,
// messages, agent-proposed actions awaiting approval and usage
// analytics.
package conversations

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"orgops/internal/audit"
	"orgops/internal/jobs"
	"orgops/internal/models"
	"orgops/internal/operations"
	"orgops/internal/store"
)

// Publisher pushes conversation events to live subscribers.
type Publisher interface {
	Publish(conversationID int64, event string, data any) int
}

const DefaultActionTTL = 24 * time.Hour

var ErrNotParticipant = errors.New("not a participant")

type Service struct {
	DB        *gorm.DB
	Jobs      jobs.Queue
	Hub       Publisher
	Ops       *operations.Service
	ActionTTL time.Duration
	Now       func() time.Time
}

func New(db *gorm.DB, q jobs.Queue, hub Publisher, ops *operations.Service, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultActionTTL
	}
	return &Service{DB: db, Jobs: q, Hub: hub, Ops: ops, ActionTTL: ttl, Now: time.Now}
}

func (s *Service) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

func (s *Service) publish(conversationID int64, event string, data any) {
	if s.Hub != nil {
		s.Hub.Publish(conversationID, event, data)
	}
}

// AddCreator makes userID a participant of a conversation it just created.
// Runs inside the caller's transaction.
func AddCreator(tx *gorm.DB, orgID, conversationID, userID int64) error {
	if userID == 0 {
		return nil
	}
	p := &models.ConversationParticipant{ConversationID: conversationID, UserID: &userID, JoinedAt: time.Now()}
	return store.Create(tx, orgID, userID, p)
}

// DeleteConversationChildren soft-deletes participants and messages and
// expires pending actions of a conversation.
func DeleteConversationChildren(tx *gorm.DB, orgID, conversationID int64) error {
	if err := store.Scoped(tx, orgID).Where("conversation_id = ?", conversationID).Delete(&models.ConversationParticipant{}).Error; err != nil {
		return err
	}
	if err := store.Scoped(tx, orgID).Where("conversation_id = ?", conversationID).Delete(&models.Message{}).Error; err != nil {
		return err
	}
	return store.Scoped(tx.Model(&models.PendingAction{}), orgID).
		Where("conversation_id = ? AND status = ?", conversationID, models.ActionPending).
		Update("status", models.ActionExpired).Error
}

// AddParticipant adds a user or an agent of the tenant to a conversation.
func (s *Service) AddParticipant(ctx context.Context, actor audit.Actor, conversationID int64, in models.ConversationParticipant) (*models.ConversationParticipant, error) {
	p := &models.ConversationParticipant{ConversationID: conversationID, UserID: in.UserID, AgentID: in.AgentID, JoinedAt: s.now()}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := loadConversation(tx, actor.OrgID, conversationID); err != nil {
			return err
		}
		key := map[string]any{"conversation_id": conversationID}
		refs := []models.Ref{{Field: "user_id", Model: &models.User{}, ID: p.UserID}}
		if p.AgentID != nil {
			key["agent_id"] = *p.AgentID
			refs = []models.Ref{{Field: "agent_id", Model: &models.AiAgent{}, ID: p.AgentID}}
		} else {
			key["user_id"] = *p.UserID
		}
		if err := store.CheckRefs(tx, actor.OrgID, refs); err != nil {
			return err
		}
		if err := store.CheckUnique(tx, p, actor.OrgID, 0, key); err != nil {
			return err
		}
		if err := store.Create(tx, actor.OrgID, actor.UserID, p); err != nil {
			return err
		}
		return audit.Record(tx, actor, "conversation.participant_add", "conversation", conversationID, key)
	})
	if err != nil {
		return nil, err
	}
	s.publish(conversationID, "participant", p)
	return p, nil
}

func (s *Service) Participants(ctx context.Context, orgID, conversationID int64) ([]models.ConversationParticipant, error) {
	if _, err := loadConversation(s.DB.WithContext(ctx), orgID, conversationID); err != nil {
		return nil, err
	}
	out := []models.ConversationParticipant{}
	err := store.Scoped(s.DB.WithContext(ctx), orgID).Where("conversation_id = ?", conversationID).Order("id").Find(&out).Error
	return out, err
}

// IsParticipant reports whether userID takes part in the conversation.
func (s *Service) IsParticipant(ctx context.Context, orgID, conversationID, userID int64) (bool, error) {
	return isParticipant(s.DB.WithContext(ctx), orgID, conversationID, "user_id", userID)
}

func isParticipant(tx *gorm.DB, orgID, conversationID int64, column string, id int64) (bool, error) {
	var n int64
	err := store.Scoped(tx.Model(&models.ConversationParticipant{}), orgID).
		Where("conversation_id = ?", conversationID).
		Where(column+" = ?", id).
		Count(&n).Error
	return n > 0, err
}

func loadConversation(tx *gorm.DB, orgID, id int64) (*models.Conversation, error) {
	var c models.Conversation
	if err := store.Scoped(tx, orgID).Limit(1).Find(&c, id).Error; err != nil {
		return nil, err
	}
	if c.ID == 0 {
		return nil, fmt.Errorf("conversation %d: %w", id, store.ErrNotFound)
	}
	return &c, nil
}
