package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/agentoven/aigateway/pkg/models"
	"gopkg.in/yaml.v3"
)

// PresetsFile is the on-disk shape of AI_GATEWAY_PRESETS_FILE:
//
//	default: quality
//	presets:
//	  creative:
//	    label: Creative
//	    options: {temperature: 0.9, top_k: 80}
type PresetsFile struct {
	Default string                   `yaml:"default"`
	Presets map[string]models.Preset `yaml:"presets"`
}

// AgentsFile is the on-disk shape of AI_GATEWAY_AGENTS_FILE.
type AgentsFile struct {
	Agents []models.AgentSpec `yaml:"agents"`
}

// LoadPresets reads a presets file. An empty path yields an empty file.
func LoadPresets(path string) (*PresetsFile, error) {
	pf := &PresetsFile{}
	if path == "" {
		return pf, nil
	}
	if err := decodeYAML(path, pf); err != nil {
		return nil, err
	}
	for id := range pf.Presets {
		if strings.TrimSpace(id) == "" {
			return nil, fmt.Errorf("presets file %s: empty preset id", path)
		}
	}
	return pf, nil
}

// LoadAgents reads and validates an agents file. An empty path yields no
// agents.
func LoadAgents(path string) ([]models.AgentSpec, error) {
	if path == "" {
		return nil, nil
	}
	var af AgentsFile
	if err := decodeYAML(path, &af); err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(af.Agents))
	for i, a := range af.Agents {
		if a.ID == "" {
			return nil, fmt.Errorf("agents file %s: agent #%d has no id", path, i+1)
		}
		if seen[a.ID] {
			return nil, fmt.Errorf("agents file %s: duplicate agent id %q", path, a.ID)
		}
		seen[a.ID] = true
		if a.Provider != "" && !a.Provider.Valid() {
			return nil, fmt.Errorf("agents file %s: agent %q: unknown provider %q", path, a.ID, a.Provider)
		}
		switch a.OutputMode {
		case "", models.OutputText, models.OutputStructured:
		default:
			return nil, fmt.Errorf("agents file %s: agent %q: unknown output mode %q", path, a.ID, a.OutputMode)
		}
	}
	return af.Agents, nil
}

func decodeYAML(path string, v any) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}
