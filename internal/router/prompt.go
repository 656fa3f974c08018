package router

import (
	"bytes"
	"encoding/json"
	"strings"
)

// BuildPrompt renders the single user turn sent to every provider: the system
// prompt if any, the labeled instruction, then the non-empty inputs as
// indented JSON.
func BuildPrompt(systemPrompt, instruction string, inputs map[string]string) string {
	var parts []string
	if s := strings.TrimSpace(systemPrompt); s != "" {
		parts = append(parts, systemPrompt)
	}
	parts = append(parts, "Instruction: "+instruction)

	nonEmpty := make(map[string]string, len(inputs))
	for k, v := range inputs {
		if v != "" {
			nonEmpty[k] = v
		}
	}
	if len(nonEmpty) > 0 {
		parts = append(parts, "Inputs: "+PrettyJSON(nonEmpty))
	}
	return strings.Join(parts, "\n\n")
}

// PrettyJSON encodes v with four-space indentation and without HTML escaping.
// Map keys come out sorted.
func PrettyJSON(v any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(v); err != nil {
		return ""
	}
	return strings.TrimRight(buf.String(), "\n")
}
