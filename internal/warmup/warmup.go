// Package warmup pre-populates the result cache with a fixed battery of
// phrases for every speaker, so first requests for them are cache hits.
package warmup

import (
	"context"
	"log/slog"

	"github.com/nikhilbhutani/voicegateway/internal/cache"
	"github.com/nikhilbhutani/voicegateway/internal/voice"
)

type Dispatcher interface {
	Dispatch(ctx context.Context, message string) (cache.Entry, bool, error)
}

type Enqueuer interface {
	EnqueueWarmup(message string) error
}

// Summary counts warm-up outcomes.
type Summary struct {
	Cached      int
	Synthesized int
	NoResult    int
	Failed      int
}

// Battery builds one request message per (model, speaker id, phrase), using
// each model's own grammar markers.
func Battery(models []*voice.Model) []string {
	var out []string
	for _, m := range models {
		cfg := m.Config()
		for _, sp := range m.Table().Speakers() {
			for _, phrase := range cfg.Warmup {
				out = append(out, m.Table().Imperative()+sp.Name+m.Table().Connective()+phrase)
			}
		}
	}
	return out
}

// Run dispatches every message in order. Failures are logged and counted;
// they never abort the run unless ctx ends.
func Run(ctx context.Context, d Dispatcher, messages []string) Summary {
	var s Summary
	for _, msg := range messages {
		if ctx.Err() != nil {
			break
		}
		entry, ok, err := d.Dispatch(ctx, msg)
		switch {
		case err != nil:
			s.Failed++
			slog.Warn("warm-up dispatch failed", "message", msg, "error", err)
		case !ok:
			s.NoResult++
			slog.Warn("warm-up phrase produced no audio", "message", msg)
		case entry.Cached:
			s.Cached++
		default:
			s.Synthesized++
		}
	}
	slog.Info("warm-up finished",
		"cached", s.Cached,
		"synthesized", s.Synthesized,
		"no_result", s.NoResult,
		"failed", s.Failed,
	)
	return s
}

// Enqueue hands every message to the background worker queue. It returns the
// number enqueued; duplicates already queued count as enqueued.
func Enqueue(e Enqueuer, messages []string) int {
	n := 0
	for _, msg := range messages {
		if err := e.EnqueueWarmup(msg); err != nil {
			slog.Warn("failed to enqueue warm-up phrase", "message", msg, "error", err)
			continue
		}
		n++
	}
	slog.Info("warm-up enqueued", "count", n, "total", len(messages))
	return n
}
