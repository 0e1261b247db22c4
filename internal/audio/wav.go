// Package audio serializes waveforms into the WAV container served to clients.
package audio

import (
	"errors"
	"fmt"
	"io"
	"math"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/nikhilbhutani/voicegateway/internal/voice"
)

const (
	Extension   = ".wav"
	ContentType = "audio/wav"

	bitDepth     = 16
	pcmFormat    = 1
	monoChannels = 1
)

var ErrInvalidSampleRate = errors.New("sample rate must be positive")

// EncodeWAV writes wf as mono 16-bit PCM. Samples outside [-1, 1] are clipped.
func EncodeWAV(w io.WriteSeeker, wf voice.Waveform) error {
	if wf.SampleRate <= 0 {
		return ErrInvalidSampleRate
	}

	data := make([]int, len(wf.Samples))
	for i, s := range wf.Samples {
		data[i] = quantize(s)
	}

	enc := wav.NewEncoder(w, wf.SampleRate, bitDepth, monoChannels, pcmFormat)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: monoChannels, SampleRate: wf.SampleRate},
		Data:           data,
		SourceBitDepth: bitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("write wav samples: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("finalize wav: %w", err)
	}
	return nil
}

func quantize(s float32) int {
	f := float64(s)
	if math.IsNaN(f) {
		return 0
	}
	f = math.Max(-1, math.Min(1, f))
	return int(math.Round(f * math.MaxInt16))
}
