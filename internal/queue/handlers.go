package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/nikhilbhutani/voicegateway/internal/cache"
)

type HandlersRegistry struct {
	mux *asynq.ServeMux
}

func NewHandlersRegistry() *HandlersRegistry {
	return &HandlersRegistry{
		mux: asynq.NewServeMux(),
	}
}

func (r *HandlersRegistry) Register(taskType string, handler asynq.Handler) {
	r.mux.Handle(taskType, handler)
}

func (r *HandlersRegistry) Mux() *asynq.ServeMux {
	return r.mux
}

type Dispatcher interface {
	Dispatch(ctx context.Context, message string) (cache.Entry, bool, error)
}

// WarmupWorker dispatches queued warm-up messages.
type WarmupWorker struct {
	dispatcher Dispatcher
}

func NewWarmupWorker(d Dispatcher) *WarmupWorker {
	return &WarmupWorker{dispatcher: d}
}

// ProcessTask fails only on infrastructure errors so asynq retries them.
// Messages that match no model or produce no audio are dropped.
func (w *WarmupWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload WarmupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w: %w", err, asynq.SkipRetry)
	}

	entry, ok, err := w.dispatcher.Dispatch(ctx, payload.Message)
	if err != nil {
		return fmt.Errorf("dispatch warm-up message: %w", err)
	}
	if !ok {
		slog.Warn("warm-up message produced no audio", "message", payload.Message)
		return nil
	}

	slog.Info("warm-up message served", "file", entry.Name, "cached", entry.Cached)
	return nil
}
