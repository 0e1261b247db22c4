package voice

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/voicegateway/internal/speaker"
)

const testHParams = `{
  "train": {"segment_size": 8192},
  "data": {
    "sampling_rate": 22050,
    "filter_length": 1024,
    "hop_length": 256,
    "n_speakers": 7,
    "add_blank": true,
    "text_cleaners": ["japanese_cleaners"]
  },
  "symbols": ["_", "a", "b", "c", "你", "好"]
}`

func encodePCM(samples ...float32) []byte {
	raw := make([]byte, 4*len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint32(raw[i*4:], math.Float32bits(s))
	}
	return raw
}

func TestParseHParams(t *testing.T) {
	t.Parallel()

	h, err := ParseHParams([]byte(testHParams))
	require.NoError(t, err)
	assert.Equal(t, 22050, h.Data.SamplingRate)
	assert.Equal(t, 6, h.SymbolCount())
	assert.Equal(t, 513, h.SpecChannels())
	assert.Equal(t, 32, h.SegmentFrames())
	assert.Equal(t, 7, h.SpeakerCount())
	assert.True(t, h.Data.AddBlank)
}

func TestParseHParamsRejects(t *testing.T) {
	t.Parallel()

	for name, doc := range map[string]string{
		"not json":    `{`,
		"no rate":     `{"data": {"n_speakers": 1}, "symbols": ["a"]}`,
		"no speakers": `{"data": {"sampling_rate": 1}, "symbols": ["a"]}`,
		"no symbols":  `{"data": {"sampling_rate": 1, "n_speakers": 1}}`,
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseHParams([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestSymbolNormalizer(t *testing.T) {
	t.Parallel()
	symbols := []string{"_", "a", "b", "你", "好"}

	ids, err := NewSymbolNormalizer(symbols, false).Normalize("[ZH]你好[ZH] ab?")
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 4, 1, 2}, ids)

	ids, err = NewSymbolNormalizer(symbols, true).Normalize("ab")
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 1, 0, 2, 0}, ids)

	// Full-width letters fold to ASCII under NFKC.
	ids, err = NewSymbolNormalizer(symbols, false).Normalize("ａｂ")
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, ids)

	_, err = NewSymbolNormalizer(symbols, true).Normalize("[JA]xyz[JA]")
	assert.ErrorIs(t, err, ErrNoTokens)
}

func TestDecodePCM(t *testing.T) {
	t.Parallel()

	samples, err := decodePCM(encodePCM(0.5, -1, 0))
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, -1, 0}, samples)

	_, err = decodePCM(nil)
	assert.ErrorIs(t, err, ErrEmptyWaveform)

	_, err = decodePCM([]byte{1, 2, 3})
	assert.Error(t, err)
}

type fakeBackend struct {
	samples []float32
	err     error
	got     InferRequest
	calls   int
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) Infer(_ context.Context, req InferRequest) ([]float32, error) {
	f.calls++
	f.got = req
	return f.samples, f.err
}

func newTestModel(t *testing.T, backend Backend) *Model {
	t.Helper()
	h, err := ParseHParams([]byte(testHParams))
	require.NoError(t, err)
	table, err := speaker.NewTable("让", "说", []speaker.Alias{{Name: "宁宁", ID: 0}, {Name: "七海", ID: 6}}, h.SpeakerCount())
	require.NoError(t, err)
	cfg := Config{
		Name:        "yuzusoft",
		HParams:     h,
		NoiseScale:  0.667,
		NoiseScaleW: 0.8,
		LengthScale: 1,
	}
	return NewModel(cfg, table, NewSymbolNormalizer(h.Symbols, h.Data.AddBlank), backend)
}

func TestModelResolveSpeaker(t *testing.T) {
	t.Parallel()
	m := newTestModel(t, &fakeBackend{})

	res, ok := m.ResolveSpeaker("让七海说你好")
	require.True(t, ok)
	assert.Equal(t, Resolution{Model: "yuzusoft", Speaker: "七海", SpeakerID: 6, Text: "你好"}, res)

	_, ok = m.ResolveSpeaker("让妃爱说你好")
	assert.False(t, ok)
}

func TestModelSynthesize(t *testing.T) {
	t.Parallel()

	t.Run("produced", func(t *testing.T) {
		t.Parallel()
		fb := &fakeBackend{samples: []float32{0.1, 0.2}}
		m := newTestModel(t, fb)

		res, err := m.Synthesize(context.Background(), "你好", 6)
		require.NoError(t, err)
		assert.True(t, res.Produced)
		assert.Equal(t, 22050, res.Waveform.SampleRate)
		assert.Equal(t, []float32{0.1, 0.2}, res.Waveform.Samples)
		assert.Equal(t, InferRequest{
			Tokens:      []int64{0, 4, 0, 5, 0},
			SpeakerID:   6,
			NoiseScale:  0.667,
			NoiseScaleW: 0.8,
			LengthScale: 1,
		}, fb.got)
	})

	t.Run("no symbols skips the backend", func(t *testing.T) {
		t.Parallel()
		fb := &fakeBackend{samples: []float32{0.1}}
		res, err := newTestModel(t, fb).Synthesize(context.Background(), "!!!", 0)
		require.NoError(t, err)
		assert.False(t, res.Produced)
		assert.ErrorIs(t, res.Reason, ErrNoTokens)
		assert.Zero(t, fb.calls)
	})

	t.Run("backend failure is no audio", func(t *testing.T) {
		t.Parallel()
		fb := &fakeBackend{err: errors.New("index out of range")}
		res, err := newTestModel(t, fb).Synthesize(context.Background(), "你好", 0)
		require.NoError(t, err)
		assert.False(t, res.Produced)
		assert.ErrorContains(t, res.Reason, "index out of range")
	})

	t.Run("empty waveform is no audio", func(t *testing.T) {
		t.Parallel()
		res, err := newTestModel(t, &fakeBackend{}).Synthesize(context.Background(), "你好", 0)
		require.NoError(t, err)
		assert.False(t, res.Produced)
		assert.ErrorIs(t, res.Reason, ErrEmptyWaveform)
	})

	t.Run("context expiry is an error", func(t *testing.T) {
		t.Parallel()
		fb := &fakeBackend{err: context.DeadlineExceeded}
		_, err := newTestModel(t, fb).Synthesize(context.Background(), "你好", 0)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestHTTPBackend(t *testing.T) {
	t.Parallel()

	var got httpInferRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/infer" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if got.SpeakerID == 99 {
			http.Error(w, "speaker out of range", http.StatusUnprocessableEntity)
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write(encodePCM(0.25, -0.25))
	}))
	t.Cleanup(srv.Close)

	b := NewHTTPBackend(HTTPBackendConfig{BaseURL: srv.URL + "/", Checkpoint: "/models/a.pth"})

	samples, err := b.Infer(context.Background(), InferRequest{Tokens: []int64{1, 2}, SpeakerID: 3})
	require.NoError(t, err)
	assert.Equal(t, []float32{0.25, -0.25}, samples)
	assert.Equal(t, "/models/a.pth", got.Checkpoint)
	assert.Equal(t, []int64{1, 2}, got.Tokens)

	_, err = b.Infer(context.Background(), InferRequest{SpeakerID: 99})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "422")
}

func TestHTTPBackendContext(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := NewHTTPBackend(HTTPBackendConfig{BaseURL: srv.URL}).Infer(ctx, InferRequest{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestExecBackend(t *testing.T) {
	t.Parallel()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	// 00 00 80 3f is float32(1.0) little-endian.
	ok := NewExecBackend(ExecBackendConfig{
		Command:    "sh",
		Args:       []string{"-c", `cat >/dev/null; printf '\000\000\200\077'`},
		Checkpoint: "a.pth",
		Config:     "a.json",
	})
	samples, err := ok.Infer(context.Background(), InferRequest{Tokens: []int64{1}})
	require.NoError(t, err)
	assert.Equal(t, []float32{1}, samples)

	failing := NewExecBackend(ExecBackendConfig{
		Command: "sh",
		Args:    []string{"-c", `echo boom >&2; exit 3`},
	})
	_, err = failing.Infer(context.Background(), InferRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestLoadRegistry(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "y.json"), []byte(testHParams), 0o644))
	registry := `
models:
  - name: yuzusoft
    checkpoint: y.pth
    config: y.json
    backend: {command: moegoe-infer}
    speakers:
      - { name: 宁宁, id: 0 }
      - { name: 芳乃, id: 2 }
  - name: remote
    config: y.json
    backend: {type: http, url: "http://127.0.0.1:1"}
    speakers:
      - { name: 小茸, id: 2 }
`
	path := filepath.Join(dir, "models.yaml")
	require.NoError(t, os.WriteFile(path, []byte(registry), 0o644))

	reg, err := LoadRegistry(path)
	require.NoError(t, err)
	require.Equal(t, 2, reg.Len())

	m, ok := reg.Lookup("yuzusoft")
	require.True(t, ok)
	assert.Equal(t, filepath.Join(dir, "y.pth"), m.Config().Checkpoint)
	assert.Equal(t, "exec:moegoe-infer", m.BackendName())
	assert.Equal(t, []string{"こんにちは"}, m.Warmup())

	models := reg.Models()
	assert.Equal(t, "yuzusoft", models[0].Name())
	assert.Equal(t, "remote", models[1].Name())
	assert.Equal(t, "http:http://127.0.0.1:1", models[1].BackendName())
}

func TestLoadRegistrySpeakerOutOfRange(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "y.json"), []byte(testHParams), 0o644))
	path := filepath.Join(dir, "models.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
models:
  - name: yuzusoft
    config: y.json
    backend: {command: x}
    speakers: [{ name: 宁宁, id: 7 }]
`), 0o644))

	_, err := LoadRegistry(path)
	assert.ErrorIs(t, err, speaker.ErrSpeakerOutOfRange)
}
