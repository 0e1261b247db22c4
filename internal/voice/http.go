package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPBackendConfig holds configuration for a remote inference server.
type HTTPBackendConfig struct {
	BaseURL    string
	Checkpoint string
	Timeout    time.Duration // default: 2m
}

// HTTPBackend posts inference requests to a model server that answers with
// raw float32 PCM.
type HTTPBackend struct {
	cfg        HTTPBackendConfig
	httpClient *http.Client
}

func NewHTTPBackend(cfg HTTPBackendConfig) *HTTPBackend {
	if cfg.Timeout == 0 {
		cfg.Timeout = 2 * time.Minute
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &HTTPBackend{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

func (h *HTTPBackend) Name() string { return "http:" + h.cfg.BaseURL }

type httpInferRequest struct {
	InferRequest
	Checkpoint string `json:"checkpoint,omitempty"`
}

func (h *HTTPBackend) Infer(ctx context.Context, req InferRequest) ([]float32, error) {
	data, err := json.Marshal(httpInferRequest{InferRequest: req, Checkpoint: h.cfg.Checkpoint})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.cfg.BaseURL+"/infer", bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/octet-stream")

	resp, err := h.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("infer request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("infer failed (status %d): %s", resp.StatusCode, string(body))
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read pcm: %w", err)
	}

	return decodePCM(raw)
}
