// Package dispatch routes a request message to the first voice model whose
// grammar recognises it and serves the result through the cache.
package dispatch

import (
	"context"
	"log/slog"
	"runtime"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/nikhilbhutani/voicegateway/internal/cache"
	"github.com/nikhilbhutani/voicegateway/internal/observe"
	"github.com/nikhilbhutani/voicegateway/internal/synthlog"
	"github.com/nikhilbhutani/voicegateway/internal/voice"
)

// Resolver is the part of a voice model the dispatcher needs.
type Resolver interface {
	Name() string
	ResolveSpeaker(message string) (voice.Resolution, bool)
	Synthesize(ctx context.Context, text string, speakerID int) (voice.Result, error)
}

// defaultRecordTimeout bounds a synthesis-log write. The write survives the
// caller going away but not the caller's deadline.
const defaultRecordTimeout = 2 * time.Second

type Dispatcher struct {
	models        []Resolver
	cache         *cache.ResultCache
	workers       *semaphore.Weighted
	recorder      synthlog.Recorder
	recordTimeout time.Duration
	metrics       *observe.Metrics
}

type Option func(*Dispatcher)

// WithWorkers bounds how many syntheses run at once. Default: runtime.NumCPU().
func WithWorkers(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.workers = semaphore.NewWeighted(int64(n))
		}
	}
}

func WithRecorder(r synthlog.Recorder) Option {
	return func(d *Dispatcher) { d.recorder = r }
}

// WithRecordTimeout bounds each synthesis-log write. Non-positive values keep
// the default.
func WithRecordTimeout(d time.Duration) Option {
	return func(disp *Dispatcher) {
		if d > 0 {
			disp.recordTimeout = d
		}
	}
}

func WithMetrics(m *observe.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// New builds a dispatcher over models in priority order.
func New(models []Resolver, rc *cache.ResultCache, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		models:        models,
		cache:         rc,
		workers:       semaphore.NewWeighted(int64(runtime.NumCPU())),
		recorder:      synthlog.NopRecorder{},
		recordTimeout: defaultRecordTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// FromRegistry adapts a loaded registry.
func FromRegistry(reg *voice.Registry, rc *cache.ResultCache, opts ...Option) *Dispatcher {
	models := reg.Models()
	resolvers := make([]Resolver, len(models))
	for i, m := range models {
		resolvers[i] = m
	}
	return New(resolvers, rc, opts...)
}

// Resolve returns the first model, in priority order, that recognises message.
func (d *Dispatcher) Resolve(message string) (Resolver, voice.Resolution, bool) {
	for _, m := range d.models {
		if res, ok := m.ResolveSpeaker(message); ok {
			return m, res, true
		}
	}
	return nil, voice.Resolution{}, false
}

// Dispatch resolves message and returns the cached or freshly synthesized
// entry. The boolean is false when no model recognises the message or the
// backend produced no audio.
func (d *Dispatcher) Dispatch(ctx context.Context, message string) (cache.Entry, bool, error) {
	m, res, ok := d.Resolve(message)
	d.metrics.RecordDispatch(ctx, ok)
	if !ok {
		return cache.Entry{}, false, nil
	}

	key := cache.Key{Model: res.Model, SpeakerID: res.SpeakerID, Text: res.Text}
	start := time.Now()

	entry, ok, err := d.cache.GetOrCompute(ctx, key, func(ctx context.Context) (voice.Result, error) {
		return d.synthesize(ctx, m, res)
	})
	if err != nil || !ok {
		return cache.Entry{}, false, err
	}

	slog.Info("dispatched",
		"file", entry.Name,
		"model", res.Model,
		"speaker", res.Speaker,
		"speaker_id", res.SpeakerID,
		"cached", entry.Cached,
	)

	ev := synthlog.Event{
		Model:     res.Model,
		SpeakerID: res.SpeakerID,
		Text:      res.Text,
		FileName:  entry.Name,
		Cached:    entry.Cached,
		Duration:  time.Since(start),
	}
	d.record(ctx, ev)

	return entry, true, nil
}

// record writes ev to the synthesis log. Failures are logged and never fail
// the dispatch.
func (d *Dispatcher) record(ctx context.Context, ev synthlog.Event) {
	deadline := time.Now().Add(d.recordTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	rctx, cancel := context.WithDeadline(context.WithoutCancel(ctx), deadline)
	defer cancel()
	if err := d.recorder.Record(rctx, ev); err != nil {
		slog.Warn("failed to record synthesis", "file", ev.FileName, "error", err)
	}
}

func (d *Dispatcher) synthesize(ctx context.Context, m Resolver, res voice.Resolution) (voice.Result, error) {
	if err := d.workers.Acquire(ctx, 1); err != nil {
		return voice.Result{}, err
	}
	defer d.workers.Release(1)

	start := time.Now()
	result, err := m.Synthesize(ctx, res.Text, res.SpeakerID)
	elapsed := time.Since(start)

	switch {
	case err != nil:
		d.metrics.RecordSynthesis(ctx, res.Model, observe.StatusError, elapsed)
	case !result.Produced:
		d.metrics.RecordSynthesis(ctx, res.Model, observe.StatusNoAudio, elapsed)
		slog.Debug("no audio produced",
			"model", res.Model,
			"speaker_id", res.SpeakerID,
			"reason", result.Reason,
		)
	default:
		d.metrics.RecordSynthesis(ctx, res.Model, observe.StatusOK, elapsed)
	}
	return result, err
}
