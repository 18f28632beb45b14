package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/hibiken/asynq"
)

// AsynqQueue implements Queue with github.com/hibiken/asynq.
type AsynqQueue struct {
	client *asynq.Client
}

var _ Queue = (*AsynqQueue)(nil)

func NewAsynqQueue(redisURL string) (*AsynqQueue, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("asynq: parse redis url: %w", err)
	}
	return &AsynqQueue{client: asynq.NewClient(opt)}, nil
}

func (a *AsynqQueue) Enqueue(ctx context.Context, t Task, opts ...Option) (string, error) {
	if t.Type == "" {
		return "", fmt.Errorf("asynq: task type is required")
	}
	info, err := a.client.EnqueueContext(ctx, asynq.NewTask(t.Type, t.Payload), asynqOptions(opts)...)
	if err != nil {
		return "", err
	}
	return info.ID, nil
}

func (a *AsynqQueue) Close() error { return a.client.Close() }

func asynqOptions(opts []Option) []asynq.Option {
	var out []asynq.Option
	for _, op := range opts {
		if !op.ProcessAt.IsZero() {
			out = append(out, asynq.ProcessAt(op.ProcessAt))
		} else if op.ProcessIn > 0 {
			out = append(out, asynq.ProcessIn(op.ProcessIn))
		}
		if op.Queue != "" {
			out = append(out, asynq.Queue(op.Queue))
		}
		if op.MaxRetry > 0 {
			out = append(out, asynq.MaxRetry(op.MaxRetry))
		}
		if op.UniqueTTL > 0 {
			out = append(out, asynq.Unique(op.UniqueTTL))
		}
	}
	return out
}

// AsynqServer consumes tasks enqueued by AsynqQueue.
type AsynqServer struct {
	server *asynq.Server
	mux    *asynq.ServeMux
}

var _ Registrar = (*AsynqServer)(nil)

// NewAsynqServer builds a worker. queues is a CSV of name=weight pairs,
// e.g. "critical=6,default=3"; empty means default=1.
func NewAsynqServer(redisURL string, concurrency int, queues string, log *slog.Logger) (*AsynqServer, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("asynq: parse redis url: %w", err)
	}
	if concurrency <= 0 {
		concurrency = 10
	}
	weights := ParseQueueWeights(queues)
	if len(weights) == 0 {
		weights = map[string]int{"default": 1}
	}
	srv := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues:      weights,
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			log.Error("task failed", "type", task.Type(), "err", err)
		}),
	})
	return &AsynqServer{server: srv, mux: asynq.NewServeMux()}, nil
}

func (s *AsynqServer) Register(taskType string, h Handler) {
	s.mux.HandleFunc(taskType, func(ctx context.Context, t *asynq.Task) error {
		return h(ctx, Task{Type: t.Type(), Payload: t.Payload()})
	})
}

// Run blocks until the process receives a termination signal.
func (s *AsynqServer) Run() error { return s.server.Run(s.mux) }

// ParseQueueWeights parses "a=3,b=1". Malformed pairs are skipped.
func ParseQueueWeights(s string) map[string]int {
	out := map[string]int{}
	for _, part := range strings.Split(s, ",") {
		name, w, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok || strings.TrimSpace(name) == "" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(w))
		if err != nil || n <= 0 {
			continue
		}
		out[strings.TrimSpace(name)] = n
	}
	return out
}
