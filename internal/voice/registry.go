package voice

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/nikhilbhutani/voicegateway/internal/config"
	"github.com/nikhilbhutani/voicegateway/internal/speaker"
)

// Registry holds every loaded model in dispatch priority order. It is built
// once at startup and never modified.
type Registry struct {
	models []*Model
	byName map[string]*Model
}

func NewRegistry(models ...*Model) *Registry {
	r := &Registry{byName: make(map[string]*Model, len(models))}
	for _, m := range models {
		r.models = append(r.models, m)
		r.byName[m.Name()] = m
	}
	return r
}

// LoadRegistry reads the registry file and loads every model it lists.
// Relative checkpoint and config paths resolve against the file's directory.
func LoadRegistry(path string) (*Registry, error) {
	specs, err := config.LoadModels(path)
	if err != nil {
		return nil, err
	}

	base := filepath.Dir(path)
	models := make([]*Model, 0, len(specs.Models))
	for _, spec := range specs.Models {
		m, err := FromSpec(spec, base)
		if err != nil {
			return nil, fmt.Errorf("load model %q: %w", spec.Name, err)
		}
		slog.Info("voice model loaded",
			"model", m.Name(),
			"speakers", m.cfg.HParams.SpeakerCount(),
			"symbols", m.cfg.HParams.SymbolCount(),
			"sample_rate", m.cfg.HParams.Data.SamplingRate,
			"backend", m.BackendName(),
		)
		models = append(models, m)
	}
	return NewRegistry(models...), nil
}

// FromSpec builds a Model from its registry entry.
func FromSpec(spec config.ModelSpec, base string) (*Model, error) {
	cfgPath := resolve(base, spec.Config)
	checkpoint := resolve(base, spec.Checkpoint)

	hps, err := LoadHParams(cfgPath)
	if err != nil {
		return nil, err
	}

	aliases := make([]speaker.Alias, len(spec.Speakers))
	for i, s := range spec.Speakers {
		aliases[i] = speaker.Alias{Name: s.Name, ID: s.ID}
	}
	table, err := speaker.NewTable(spec.Imperative, spec.Connective, aliases, hps.SpeakerCount())
	if err != nil {
		return nil, err
	}

	var backend Backend
	switch spec.Backend.Type {
	case config.BackendHTTP:
		backend = NewHTTPBackend(HTTPBackendConfig{BaseURL: spec.Backend.URL, Checkpoint: checkpoint})
	default:
		backend = NewExecBackend(ExecBackendConfig{
			Command:    spec.Backend.Command,
			Args:       spec.Backend.Args,
			Checkpoint: checkpoint,
			Config:     cfgPath,
		})
	}

	cfg := Config{
		Name:        spec.Name,
		Checkpoint:  checkpoint,
		ConfigPath:  cfgPath,
		HParams:     hps,
		NoiseScale:  spec.NoiseScale,
		NoiseScaleW: spec.NoiseScaleW,
		LengthScale: spec.LengthScale,
		Warmup:      spec.Warmup,
	}
	return NewModel(cfg, table, NewSymbolNormalizer(hps.Symbols, hps.Data.AddBlank), backend), nil
}

func (r *Registry) Models() []*Model {
	return append([]*Model(nil), r.models...)
}

func (r *Registry) Lookup(name string) (*Model, bool) {
	m, ok := r.byName[name]
	return m, ok
}

func (r *Registry) Len() int { return len(r.models) }

func resolve(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}
