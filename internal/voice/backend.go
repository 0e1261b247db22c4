package voice

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrEmptyWaveform is returned when a backend answers with no samples.
var ErrEmptyWaveform = errors.New("backend returned no samples")

// InferRequest is the backend input. Field names match the JSON protocol
// spoken by both the exec and http backends.
type InferRequest struct {
	Tokens      []int64 `json:"tokens"`
	SpeakerID   int     `json:"speaker_id"`
	NoiseScale  float64 `json:"noise_scale"`
	NoiseScaleW float64 `json:"noise_scale_w"`
	LengthScale float64 `json:"length_scale"`
}

// Backend runs the neural synthesis network.
type Backend interface {
	Infer(ctx context.Context, req InferRequest) ([]float32, error)
	Name() string
}

// decodePCM reads little-endian IEEE float32 samples.
func decodePCM(raw []byte) ([]float32, error) {
	if len(raw) == 0 {
		return nil, ErrEmptyWaveform
	}
	if len(raw)%4 != 0 {
		return nil, fmt.Errorf("pcm stream length %d is not a multiple of 4", len(raw))
	}
	samples := make([]float32, len(raw)/4)
	for i := range samples {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return samples, nil
}
