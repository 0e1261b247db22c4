package voice

import (
	"encoding/json"
	"fmt"
	"os"
)

// HParams is the subset of a checkpoint's hyperparameter file needed to
// drive the backend.
type HParams struct {
	Data struct {
		SamplingRate int      `json:"sampling_rate"`
		FilterLength int      `json:"filter_length"`
		HopLength    int      `json:"hop_length"`
		NSpeakers    int      `json:"n_speakers"`
		AddBlank     bool     `json:"add_blank"`
		TextCleaners []string `json:"text_cleaners"`
	} `json:"data"`
	Train struct {
		SegmentSize int `json:"segment_size"`
	} `json:"train"`
	Symbols []string `json:"symbols"`
}

func (h *HParams) SymbolCount() int { return len(h.Symbols) }

// SpecChannels is the linear spectrogram channel count.
func (h *HParams) SpecChannels() int { return h.Data.FilterLength/2 + 1 }

// SegmentFrames is the training segment size in frames.
func (h *HParams) SegmentFrames() int {
	if h.Data.HopLength == 0 {
		return 0
	}
	return h.Train.SegmentSize / h.Data.HopLength
}

func (h *HParams) SpeakerCount() int { return h.Data.NSpeakers }

func LoadHParams(path string) (*HParams, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read hparams %q: %w", path, err)
	}
	return ParseHParams(data)
}

func ParseHParams(data []byte) (*HParams, error) {
	var h HParams
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("unmarshal hparams: %w", err)
	}
	switch {
	case h.Data.SamplingRate <= 0:
		return nil, fmt.Errorf("hparams: sampling_rate must be positive, got %d", h.Data.SamplingRate)
	case h.Data.NSpeakers <= 0:
		return nil, fmt.Errorf("hparams: n_speakers must be positive, got %d", h.Data.NSpeakers)
	case len(h.Symbols) == 0:
		return nil, fmt.Errorf("hparams: symbols are empty")
	}
	return &h, nil
}
