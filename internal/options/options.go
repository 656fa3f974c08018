// Package options resolves the sampling options sent to a provider.
//
// A Resolver is an immutable snapshot of the preset table, the global preset
// id and the operator's advanced overrides. It is built once at startup and
// shared read-only across runs.
package options

import (
	"math"
	"strconv"
	"strings"

	"github.com/agentoven/aigateway/pkg/models"
	"github.com/rs/zerolog/log"
)

// DefaultPresetID is used when neither the agent nor the operator names a
// known preset.
const DefaultPresetID = "balanced"

// BuiltinPresets returns the presets shipped with the gateway.
func BuiltinPresets() map[string]models.Preset {
	return map[string]models.Preset{
		"speed": {
			Label: "Speed",
			Options: models.SamplingOptions{
				models.OptTemperature: 0.2,
				models.OptTopP:        0.8,
				models.OptTopK:        20,
				models.OptNumPredict:  512,
			},
		},
		"balanced": {
			Label: "Balanced",
			Options: models.SamplingOptions{
				models.OptTemperature: 0.4,
				models.OptTopP:        0.9,
				models.OptTopK:        40,
				models.OptNumPredict:  1024,
			},
		},
		"quality": {
			Label: "Quality",
			Options: models.SamplingOptions{
				models.OptTemperature: 0.7,
				models.OptTopP:        0.95,
				models.OptTopK:        50,
				models.OptNumPredict:  2048,
			},
		},
	}
}

// MergePresets overlays stored presets on the built-in set. Stored entries win
// by id.
func MergePresets(stored map[string]models.Preset) map[string]models.Preset {
	out := BuiltinPresets()
	for id, p := range stored {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		out[id] = p
	}
	return out
}

// Resolver merges a base preset with advanced overrides.
type Resolver struct {
	presets   map[string]models.Preset
	globalID  string
	overrides models.SamplingOptions
}

// NewResolver snapshots presets, the global preset id and raw override strings
// keyed by knob name. Override values that are empty or fail to parse are
// skipped.
func NewResolver(presets map[string]models.Preset, globalID string, overrides map[string]string) *Resolver {
	r := &Resolver{
		presets:   make(map[string]models.Preset, len(presets)),
		globalID:  globalID,
		overrides: make(models.SamplingOptions),
	}
	for id, p := range presets {
		r.presets[id] = models.Preset{Label: p.Label, Options: normalize(p.Options)}
	}
	for _, key := range models.SamplingKnobs {
		raw := strings.TrimSpace(overrides[key])
		if raw == "" {
			continue
		}
		v, ok := parseKnob(key, raw)
		if !ok {
			log.Warn().Str("knob", key).Str("value", raw).Msg("Ignoring unparseable sampling override")
			continue
		}
		r.overrides[key] = v
	}
	return r
}

// PresetID returns the id of the preset Resolve would start from.
func (r *Resolver) PresetID(agentPresetID string) string {
	if _, ok := r.presets[agentPresetID]; ok && agentPresetID != "" {
		return agentPresetID
	}
	if _, ok := r.presets[r.globalID]; ok {
		return r.globalID
	}
	return DefaultPresetID
}

// Resolve returns a fresh option map for the given agent preset override.
// It never fails; the result only contains known knobs.
func (r *Resolver) Resolve(agentPresetID string) models.SamplingOptions {
	out := make(models.SamplingOptions)
	if p, ok := r.presets[r.PresetID(agentPresetID)]; ok {
		for k, v := range p.Options {
			out[k] = v
		}
	}
	for k, v := range r.overrides {
		out[k] = v
	}
	return out
}

// Presets returns a copy of the preset table.
func (r *Resolver) Presets() map[string]models.Preset {
	out := make(map[string]models.Preset, len(r.presets))
	for id, p := range r.presets {
		out[id] = models.Preset{Label: p.Label, Options: p.Options.Clone()}
	}
	return out
}

// normalize drops unknown knobs and coerces values to float64 or int.
func normalize(in models.SamplingOptions) models.SamplingOptions {
	out := make(models.SamplingOptions)
	for k, v := range in {
		if !models.IsKnownKnob(k) {
			continue
		}
		switch n := v.(type) {
		case float64:
			if !finite(n) {
				continue
			}
			if models.IsFloatKnob(k) {
				out[k] = n
			} else {
				out[k] = int(n)
			}
		case int:
			if models.IsFloatKnob(k) {
				out[k] = float64(n)
			} else {
				out[k] = n
			}
		case string:
			if parsed, ok := parseKnob(k, strings.TrimSpace(n)); ok {
				out[k] = parsed
			}
		}
	}
	return out
}

func parseKnob(key, raw string) (any, bool) {
	if raw == "" {
		return nil, false
	}
	if models.IsFloatKnob(key) {
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil || !finite(f) {
			return nil, false
		}
		return f, true
	}
	i, err := strconv.Atoi(raw)
	if err != nil {
		f, ferr := strconv.ParseFloat(raw, 64)
		if ferr != nil || !finite(f) {
			return nil, false
		}
		return int(f), true
	}
	return i, true
}

// finite reports whether f can be encoded as a JSON number.
func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
