package conversations

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"orgops/internal/audit"
	"orgops/internal/models"
	"orgops/internal/store"
)

// Proposal is an action an assistant message asks a human to approve.
type Proposal struct {
	Type    models.ActionType `json:"type"`
	Summary string            `json:"summary"`
	Payload json.RawMessage   `json:"payload"`
}

// NewMessage is the body of a posted message. Assistant messages name
// the agent that speaks and may carry a proposal.
type NewMessage struct {
	Role    models.MessageRole `json:"role"`
	Content string             `json:"content"`
	AgentID *int64             `json:"agent_id,omitempty"`
	Action  *Proposal          `json:"action,omitempty"`
}

// Posted is a stored message and the action it proposed, if any.
type Posted struct {
	Message models.Message        `json:"message"`
	Action  *models.PendingAction `json:"action,omitempty"`
}

// PostMessage stores a message. User and system messages are sent by the
// actor, who must be a participant. Assistant messages are sent by an
// enabled agent participant.
func (s *Service) PostMessage(ctx context.Context, actor audit.Actor, conversationID int64, in NewMessage) (*Posted, error) {
	if strings.TrimSpace(in.Content) == "" {
		return nil, fmt.Errorf("%w: content is required", models.ErrInvalid)
	}
	if in.Role == "" {
		in.Role = models.RoleUser
	}
	if in.Action != nil && in.Role != models.RoleAssistant {
		return nil, fmt.Errorf("%w: only assistant messages may propose actions", models.ErrInvalid)
	}
	if in.Action != nil {
		if err := checkPayload(in.Action.Type, in.Action.Payload); err != nil {
			return nil, err
		}
	}

	out := &Posted{}
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		conv, err := loadConversation(tx, actor.OrgID, conversationID)
		if err != nil {
			return err
		}
		if conv.Status == models.ConversationArchived {
			return fmt.Errorf("%w: conversation %d is archived", store.ErrConflict, conversationID)
		}
		msg := models.Message{
			ConversationID: conversationID,
			Role:           in.Role,
			Content:        in.Content,
			TokenCount:     len(strings.Fields(in.Content)),
		}
		if in.Role == models.RoleAssistant {
			if in.AgentID == nil {
				return fmt.Errorf("%w: agent_id is required for assistant messages", models.ErrInvalid)
			}
			if err := checkAgentSpeaker(tx, actor.OrgID, conversationID, *in.AgentID); err != nil {
				return err
			}
			msg.SenderAgentID = in.AgentID
		} else {
			ok, err := isParticipant(tx, actor.OrgID, conversationID, "user_id", actor.UserID)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: user %d is not a participant", ErrNotParticipant, actor.UserID)
			}
			msg.SenderUserID = &actor.UserID
		}
		if err := store.Create(tx, actor.OrgID, actor.UserID, &msg); err != nil {
			return err
		}
		out.Message = msg
		if in.Action != nil {
			action := &models.PendingAction{
				ConversationID: conversationID,
				MessageID:      &msg.ID,
				AgentID:        in.AgentID,
				Type:           in.Action.Type,
				Summary:        in.Action.Summary,
				Payload:        datatypes.JSON(in.Action.Payload),
				Status:         models.ActionPending,
				ExpiresAt:      s.now().Add(s.ActionTTL).UTC(),
			}
			if err := store.Create(tx, actor.OrgID, actor.UserID, action); err != nil {
				return err
			}
			out.Action = action
			if err := audit.Record(tx, actor, "pending_action.create", "pending_action", action.ID,
				map[string]any{"type": action.Type, "conversation_id": conversationID}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publish(conversationID, "message", out.Message)
	if out.Action != nil {
		s.publish(conversationID, "action", out.Action)
		s.scheduleExpiry(ctx, out.Action)
	}
	return out, nil
}

func checkAgentSpeaker(tx *gorm.DB, orgID, conversationID, agentID int64) error {
	var agent models.AiAgent
	if err := store.Scoped(tx, orgID).Limit(1).Find(&agent, agentID).Error; err != nil {
		return err
	}
	if agent.ID == 0 {
		return fmt.Errorf("agent %d: %w", agentID, store.ErrNotFound)
	}
	if !agent.IsEnabled() {
		return fmt.Errorf("%w: agent %q is disabled", models.ErrInvalid, agent.Name)
	}
	ok, err := isParticipant(tx, orgID, conversationID, "agent_id", agentID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: agent %d is not a participant", ErrNotParticipant, agentID)
	}
	return nil
}

// Messages pages through a conversation oldest first, starting after
// afterID.
func (s *Service) Messages(ctx context.Context, orgID, conversationID, afterID int64, limit int) ([]models.Message, error) {
	db := s.DB.WithContext(ctx)
	if _, err := loadConversation(db, orgID, conversationID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 200 {
		limit = 200
	}
	q := store.Scoped(db, orgID).Where("conversation_id = ?", conversationID)
	if afterID > 0 {
		q = q.Where("id > ?", afterID)
	}
	out := []models.Message{}
	err := q.Order("id").Limit(limit).Find(&out).Error
	return out, err
}
