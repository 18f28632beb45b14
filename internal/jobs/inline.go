package jobs

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// Inline runs tasks synchronously on Enqueue. Scheduling options are
// ignored, so delayed tasks run immediately; handlers must tolerate
// early delivery.
type Inline struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	seq      atomic.Int64
	// Deferred tasks (ProcessAt/ProcessIn set) are held instead of run
	// when Hold is true. Tests use it to drive expiry explicitly.
	Hold   bool
	held   []Task
	heldMu sync.Mutex
}

var (
	_ Queue     = (*Inline)(nil)
	_ Registrar = (*Inline)(nil)
)

func NewInline() *Inline {
	return &Inline{handlers: map[string]Handler{}}
}

func (q *Inline) Register(taskType string, h Handler) {
	q.mu.Lock()
	q.handlers[taskType] = h
	q.mu.Unlock()
}

func (q *Inline) Enqueue(ctx context.Context, t Task, opts ...Option) (string, error) {
	id := fmt.Sprintf("inline-%d", q.seq.Add(1))
	if q.Hold && deferred(opts) {
		q.heldMu.Lock()
		q.held = append(q.held, t)
		q.heldMu.Unlock()
		return id, nil
	}
	return id, q.run(ctx, t)
}

// Flush runs every held task in enqueue order.
func (q *Inline) Flush(ctx context.Context) error {
	q.heldMu.Lock()
	held := q.held
	q.held = nil
	q.heldMu.Unlock()
	for _, t := range held {
		if err := q.run(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

func (q *Inline) run(ctx context.Context, t Task) error {
	q.mu.RLock()
	h, ok := q.handlers[t.Type]
	q.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoHandler, t.Type)
	}
	return h(ctx, t)
}

func (q *Inline) Close() error { return nil }

func deferred(opts []Option) bool {
	for _, o := range opts {
		if !o.ProcessAt.IsZero() || o.ProcessIn > 0 {
			return true
		}
	}
	return false
}
