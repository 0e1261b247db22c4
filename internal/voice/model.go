// Package voice wraps loaded synthesis backends behind a per-model façade
// that resolves addressed speakers and produces waveforms.
package voice

import (
	"context"
	"errors"
	"fmt"

	"github.com/nikhilbhutani/voicegateway/internal/speaker"
)

// Config identifies one voice model. Immutable after load.
type Config struct {
	Name        string
	Checkpoint  string
	ConfigPath  string
	HParams     *HParams
	NoiseScale  float64
	NoiseScaleW float64
	LengthScale float64
	Warmup      []string
}

// Waveform is decoded mono audio.
type Waveform struct {
	Samples    []float32
	SampleRate int
}

// Result is the outcome of one synthesis. Produced is false when the
// backend yielded nothing usable; Reason then says why.
type Result struct {
	Waveform Waveform
	Produced bool
	Reason   error
}

func Produced(wf Waveform) Result { return Result{Waveform: wf, Produced: true} }

func NoAudio(reason error) Result { return Result{Reason: reason} }

// Resolution is a request message resolved against one model's speaker table.
type Resolution struct {
	Model     string
	Speaker   string
	SpeakerID int
	Text      string
}

// Model is read-only after construction and safe for concurrent use.
type Model struct {
	cfg        Config
	table      *speaker.Table
	normalizer Normalizer
	backend    Backend
}

func NewModel(cfg Config, table *speaker.Table, normalizer Normalizer, backend Backend) *Model {
	return &Model{cfg: cfg, table: table, normalizer: normalizer, backend: backend}
}

func (m *Model) Name() string { return m.cfg.Name }
func (m *Model) Config() Config { return m.cfg }
func (m *Model) Table() *speaker.Table { return m.table }
func (m *Model) Warmup() []string { return m.cfg.Warmup }
func (m *Model) BackendName() string { return m.backend.Name() }

func (m *Model) ResolveSpeaker(message string) (Resolution, bool) {
	match, ok := m.table.Match(message)
	if !ok {
		return Resolution{}, false
	}
	return Resolution{
		Model:     m.cfg.Name,
		Speaker:   match.Speaker,
		SpeakerID: match.ID,
		Text:      match.Text,
	}, true
}

// Synthesize normalizes text and runs the backend with the model's fixed
// decoding parameters. Backend and normalizer failures are reported as a
// Result without audio. Only context expiry is returned as an error.
func (m *Model) Synthesize(ctx context.Context, text string, speakerID int) (Result, error) {
	tokens, err := m.normalizer.Normalize(text)
	if err != nil {
		return NoAudio(err), nil
	}

	samples, err := m.backend.Infer(ctx, InferRequest{
		Tokens:      tokens,
		SpeakerID:   speakerID,
		NoiseScale:  m.cfg.NoiseScale,
		NoiseScaleW: m.cfg.NoiseScaleW,
		LengthScale: m.cfg.LengthScale,
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return Result{}, err
		}
		return NoAudio(fmt.Errorf("%s: %w", m.backend.Name(), err)), nil
	}
	if len(samples) == 0 {
		return NoAudio(ErrEmptyWaveform), nil
	}

	return Produced(Waveform{Samples: samples, SampleRate: m.cfg.HParams.Data.SamplingRate}), nil
}
