package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"slices"
)

// ExecBackendConfig holds configuration for a subprocess inference backend.
type ExecBackendConfig struct {
	Command    string
	Args       []string
	Checkpoint string
	Config     string
}

// ExecBackend runs one inference process per request. The request is piped
// to stdin as JSON and raw float32 PCM is read back from stdout.
type ExecBackend struct {
	cfg ExecBackendConfig
}

func NewExecBackend(cfg ExecBackendConfig) *ExecBackend {
	return &ExecBackend{cfg: cfg}
}

func (e *ExecBackend) Name() string { return "exec:" + e.cfg.Command }

func (e *ExecBackend) Infer(ctx context.Context, req InferRequest) ([]float32, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	args := slices.Concat(e.cfg.Args, []string{"--checkpoint", e.cfg.Checkpoint, "--config", e.cfg.Config})
	cmd := exec.CommandContext(ctx, e.cfg.Command, args...)
	cmd.Stdin = bytes.NewReader(payload)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%s failed: %w (stderr: %s)", e.cfg.Command, err, stderr.String())
	}

	return decodePCM(stdout.Bytes())
}
