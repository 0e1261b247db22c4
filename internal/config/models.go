package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// ErrNoModels is returned when the registry file declares no voice models.
var ErrNoModels = errors.New("no voice models configured")

// Default decoding parameters, fixed per model and never request-tunable.
const (
	DefaultNoiseScale  = 0.667
	DefaultNoiseScaleW = 0.8
	DefaultLengthScale = 1.0

	DefaultImperative = "让"
	DefaultConnective = "说"
	DefaultWarmup     = "こんにちは"
)

const (
	BackendExec = "exec"
	BackendHTTP = "http"
)

var modelNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)

// Registry is the decoded voice model registry. Order of Models is the
// dispatch priority.
type Registry struct {
	Models []ModelSpec `yaml:"models"`
}

type ModelSpec struct {
	Name        string        `yaml:"name"`
	Checkpoint  string        `yaml:"checkpoint"`
	Config      string        `yaml:"config"`
	Imperative  string        `yaml:"imperative"`
	Connective  string        `yaml:"connective"`
	NoiseScale  float64       `yaml:"noise_scale"`
	NoiseScaleW float64       `yaml:"noise_scale_w"`
	LengthScale float64       `yaml:"length_scale"`
	Backend     BackendSpec   `yaml:"backend"`
	Speakers    []SpeakerSpec `yaml:"speakers"`
	Warmup      []string      `yaml:"warmup"`
}

type BackendSpec struct {
	Type    string   `yaml:"type"`
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
	URL     string   `yaml:"url"`
}

type SpeakerSpec struct {
	Name string `yaml:"name"`
	ID   int    `yaml:"id"`
}

// LoadModels reads the YAML registry at path, applies defaults and validates it.
func LoadModels(path string) (*Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open models file %q: %w", path, err)
	}
	defer f.Close()

	reg, err := ParseModels(f)
	if err != nil {
		return nil, fmt.Errorf("parse models file %q: %w", path, err)
	}
	return reg, nil
}

// ParseModels decodes a registry from r. Unknown fields are rejected.
func ParseModels(r io.Reader) (*Registry, error) {
	reg := &Registry{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(reg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}

	for i := range reg.Models {
		reg.Models[i].applyDefaults()
	}

	if err := reg.Validate(); err != nil {
		return nil, err
	}
	return reg, nil
}

func (m *ModelSpec) applyDefaults() {
	if m.Imperative == "" {
		m.Imperative = DefaultImperative
	}
	if m.Connective == "" {
		m.Connective = DefaultConnective
	}
	if m.NoiseScale == 0 {
		m.NoiseScale = DefaultNoiseScale
	}
	if m.NoiseScaleW == 0 {
		m.NoiseScaleW = DefaultNoiseScaleW
	}
	if m.LengthScale == 0 {
		m.LengthScale = DefaultLengthScale
	}
	if m.Backend.Type == "" {
		m.Backend.Type = BackendExec
	}
	if len(m.Warmup) == 0 {
		m.Warmup = []string{DefaultWarmup}
	}
}

// Validate checks the registry for problems that can be detected without
// reading checkpoint hyperparameters. All failures are joined.
func (r *Registry) Validate() error {
	if len(r.Models) == 0 {
		return ErrNoModels
	}

	var errs []error
	seen := make(map[string]bool, len(r.Models))
	for i, m := range r.Models {
		if !modelNamePattern.MatchString(m.Name) {
			errs = append(errs, fmt.Errorf("models[%d]: invalid name %q", i, m.Name))
		}
		if seen[m.Name] {
			errs = append(errs, fmt.Errorf("models[%d]: duplicate name %q", i, m.Name))
		}
		seen[m.Name] = true

		if m.Config == "" {
			errs = append(errs, fmt.Errorf("model %q: config path is required", m.Name))
		}
		if len(m.Speakers) == 0 {
			errs = append(errs, fmt.Errorf("model %q: no speakers declared", m.Name))
		}

		switch m.Backend.Type {
		case BackendExec:
			if m.Backend.Command == "" {
				errs = append(errs, fmt.Errorf("model %q: exec backend requires a command", m.Name))
			}
		case BackendHTTP:
			if m.Backend.URL == "" {
				errs = append(errs, fmt.Errorf("model %q: http backend requires a url", m.Name))
			}
		default:
			errs = append(errs, fmt.Errorf("model %q: unknown backend type %q", m.Name, m.Backend.Type))
		}
	}
	return errors.Join(errs...)
}
