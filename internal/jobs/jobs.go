// Package jobs defines the background task contract and its adapters:
// asynq backed by redis, and an inline queue that runs handlers in the
// caller's goroutine.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const (
	TypeExpirePendingAction = "pending_action:expire"
	TypeGoalRollup          = "goal:rollup"
)

var ErrNoHandler = errors.New("jobs: no handler registered")

type Task struct {
	Type    string
	Payload []byte
}

// NewTask encodes payload as JSON.
func NewTask(typ string, payload any) (Task, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Task{}, fmt.Errorf("jobs: encode %s payload: %w", typ, err)
	}
	return Task{Type: typ, Payload: b}, nil
}

// Decode unmarshals the task payload into v.
func (t Task) Decode(v any) error {
	if err := json.Unmarshal(t.Payload, v); err != nil {
		return fmt.Errorf("jobs: decode %s payload: %w", t.Type, err)
	}
	return nil
}

// Option tunes a single enqueue. Zero fields are ignored.
type Option struct {
	ProcessAt time.Time
	ProcessIn time.Duration
	Queue     string
	MaxRetry  int
	UniqueTTL time.Duration
}

type Handler func(ctx context.Context, t Task) error

// Queue accepts tasks for execution.
type Queue interface {
	Enqueue(ctx context.Context, t Task, opts ...Option) (string, error)
	Close() error
}

// Registrar binds task types to handlers.
type Registrar interface {
	Register(taskType string, h Handler)
}

// Payloads.

type PendingActionPayload struct {
	OrgID    int64 `json:"org_id"`
	ActionID int64 `json:"action_id"`
}

type GoalRollupPayload struct {
	OrgID       int64 `json:"org_id"`
	ObjectiveID int64 `json:"objective_id"`
}
