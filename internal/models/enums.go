package models

import (
	"encoding/json"
	"fmt"
)

// Enums travel on the wire as their canonical string only. Numeric codes
// and unknown names are rejected when decoding.

type enum interface {
	~string
	Valid() bool
}

func decodeEnum[E enum](data []byte, out *E, name string) error {
	if string(data) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: %s must be a string, got %s", ErrInvalidEnum, name, data)
	}
	v := E(s)
	if s != "" && !v.Valid() {
		return fmt.Errorf("%w: unknown %s %q", ErrInvalidEnum, name, s)
	}
	*out = v
	return nil
}

func oneOf[E comparable](v E, all []E) bool {
	for _, a := range all {
		if v == a {
			return true
		}
	}
	return false
}

type UserStatus string

const (
	UserActive    UserStatus = "active"
	UserSuspended UserStatus = "suspended"
)

func (s UserStatus) Valid() bool { return oneOf(s, []UserStatus{UserActive, UserSuspended}) }

func (s *UserStatus) UnmarshalJSON(b []byte) error { return decodeEnum(b, s, "user status") }

// ScopeType says what a role assignment applies to.
type ScopeType string

const (
	ScopeOrganization ScopeType = "organization"
	ScopeFunction     ScopeType = "function"
	ScopeProcess      ScopeType = "process"
)

func (s ScopeType) Valid() bool {
	return oneOf(s, []ScopeType{ScopeOrganization, ScopeFunction, ScopeProcess})
}

func (s *ScopeType) UnmarshalJSON(b []byte) error { return decodeEnum(b, s, "scope type") }

type ResourceType string

const (
	ResourceHuman        ResourceType = "human"
	ResourcePhysical     ResourceType = "physical"
	ResourceIntellectual ResourceType = "intellectual"
	ResourceFinancial    ResourceType = "financial"
	ResourceDigital      ResourceType = "digital"
)

func (t ResourceType) Valid() bool {
	return oneOf(t, []ResourceType{ResourceHuman, ResourcePhysical, ResourceIntellectual, ResourceFinancial, ResourceDigital})
}

func (t *ResourceType) UnmarshalJSON(b []byte) error { return decodeEnum(b, t, "resource type") }

type ResourceStatus string

const (
	ResourceAvailable ResourceStatus = "available"
	ResourceAllocated ResourceStatus = "allocated"
	ResourceRetired   ResourceStatus = "retired"
)

var ResourceStatuses = []ResourceStatus{ResourceAvailable, ResourceAllocated, ResourceRetired}

func (s ResourceStatus) Valid() bool { return oneOf(s, ResourceStatuses) }

func (s *ResourceStatus) UnmarshalJSON(b []byte) error { return decodeEnum(b, s, "resource status") }

type ProcessStatus string

const (
	ProcessDraft      ProcessStatus = "draft"
	ProcessActive     ProcessStatus = "active"
	ProcessDeprecated ProcessStatus = "deprecated"
)

var ProcessStatuses = []ProcessStatus{ProcessDraft, ProcessActive, ProcessDeprecated}

func (s ProcessStatus) Valid() bool { return oneOf(s, ProcessStatuses) }

func (s *ProcessStatus) UnmarshalJSON(b []byte) error { return decodeEnum(b, s, "process status") }

type ActivityStatus string

const (
	ActivityTodo       ActivityStatus = "todo"
	ActivityInProgress ActivityStatus = "in_progress"
	ActivityBlocked    ActivityStatus = "blocked"
	ActivityDone       ActivityStatus = "done"
)

var ActivityStatuses = []ActivityStatus{ActivityTodo, ActivityInProgress, ActivityBlocked, ActivityDone}

func (s ActivityStatus) Valid() bool { return oneOf(s, ActivityStatuses) }

func (s *ActivityStatus) UnmarshalJSON(b []byte) error { return decodeEnum(b, s, "activity status") }

type GoalKind string

const (
	GoalObjective GoalKind = "objective"
	GoalKeyResult GoalKind = "key_result"
)

func (k GoalKind) Valid() bool { return oneOf(k, []GoalKind{GoalObjective, GoalKeyResult}) }

func (k *GoalKind) UnmarshalJSON(b []byte) error { return decodeEnum(b, k, "goal kind") }

type GoalStatus string

const (
	GoalNotStarted GoalStatus = "not_started"
	GoalOnTrack    GoalStatus = "on_track"
	GoalAtRisk     GoalStatus = "at_risk"
	GoalOffTrack   GoalStatus = "off_track"
	GoalCompleted  GoalStatus = "completed"
)

var GoalStatuses = []GoalStatus{GoalNotStarted, GoalOnTrack, GoalAtRisk, GoalOffTrack, GoalCompleted}

func (s GoalStatus) Valid() bool { return oneOf(s, GoalStatuses) }

func (s *GoalStatus) UnmarshalJSON(b []byte) error { return decodeEnum(b, s, "goal status") }

// BlockType is one of the nine Business Model Canvas blocks.
type BlockType string

const (
	BlockKeyPartners           BlockType = "key_partners"
	BlockKeyActivities         BlockType = "key_activities"
	BlockKeyResources          BlockType = "key_resources"
	BlockValuePropositions     BlockType = "value_propositions"
	BlockCustomerRelationships BlockType = "customer_relationships"
	BlockChannels              BlockType = "channels"
	BlockCustomerSegments      BlockType = "customer_segments"
	BlockCostStructure         BlockType = "cost_structure"
	BlockRevenueStreams        BlockType = "revenue_streams"
)

var BlockTypes = []BlockType{
	BlockKeyPartners, BlockKeyActivities, BlockKeyResources,
	BlockValuePropositions, BlockCustomerRelationships, BlockChannels,
	BlockCustomerSegments, BlockCostStructure, BlockRevenueStreams,
}

func (t BlockType) Valid() bool { return oneOf(t, BlockTypes) }

func (t *BlockType) UnmarshalJSON(b []byte) error { return decodeEnum(b, t, "block type") }

// EntityKind names the record type a block reference points at.
type EntityKind string

const (
	KindPartner              EntityKind = "partner"
	KindActivity             EntityKind = "activity"
	KindProcess              EntityKind = "process"
	KindResource             EntityKind = "resource"
	KindValueProposition     EntityKind = "value_proposition"
	KindCustomerRelationship EntityKind = "customer_relationship"
	KindChannel              EntityKind = "channel"
	KindRevenueStream        EntityKind = "revenue_stream"
)

func (k EntityKind) Valid() bool {
	return oneOf(k, []EntityKind{
		KindPartner, KindActivity, KindProcess, KindResource, KindValueProposition,
		KindCustomerRelationship, KindChannel, KindRevenueStream,
	})
}

func (k *EntityKind) UnmarshalJSON(b []byte) error { return decodeEnum(b, k, "entity kind") }

type ConversationStatus string

const (
	ConversationActive   ConversationStatus = "active"
	ConversationArchived ConversationStatus = "archived"
)

var ConversationStatuses = []ConversationStatus{ConversationActive, ConversationArchived}

func (s ConversationStatus) Valid() bool { return oneOf(s, ConversationStatuses) }

func (s *ConversationStatus) UnmarshalJSON(b []byte) error {
	return decodeEnum(b, s, "conversation status")
}

type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

func (r MessageRole) Valid() bool { return oneOf(r, []MessageRole{RoleUser, RoleAssistant, RoleSystem}) }

func (r *MessageRole) UnmarshalJSON(b []byte) error { return decodeEnum(b, r, "message role") }

type ActionType string

const (
	ActionCreateGoal       ActionType = "create_goal"
	ActionUpdateGoalStatus ActionType = "update_goal_status"
	ActionCreateActivity   ActionType = "create_activity"
)

func (t ActionType) Valid() bool {
	return oneOf(t, []ActionType{ActionCreateGoal, ActionUpdateGoalStatus, ActionCreateActivity})
}

func (t *ActionType) UnmarshalJSON(b []byte) error { return decodeEnum(b, t, "action type") }

type ActionStatus string

const (
	ActionPending  ActionStatus = "pending"
	ActionApproved ActionStatus = "approved"
	ActionRejected ActionStatus = "rejected"
	ActionExpired  ActionStatus = "expired"
	ActionExecuted ActionStatus = "executed"
	ActionFailed   ActionStatus = "failed"
)

var ActionStatuses = []ActionStatus{ActionPending, ActionApproved, ActionRejected, ActionExpired, ActionExecuted, ActionFailed}

func (s ActionStatus) Valid() bool { return oneOf(s, ActionStatuses) }

func (s *ActionStatus) UnmarshalJSON(b []byte) error { return decodeEnum(b, s, "action status") }

// StatusOrder lists the canonical status values for a collection, used to
// order kanban columns.
func StatusOrder[S ~string](all []S) []string {
	out := make([]string, len(all))
	for i, s := range all {
		out[i] = string(s)
	}
	return out
}
