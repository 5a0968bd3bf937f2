// Package agent implements the four pipeline agents: triage,
// investigation, planning and execution. Every agent takes structured
// input and returns structured output; LLM parse failures fall back to
// conservative defaults instead of failing the stage.
package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sentinel-ops/sentinel/internal/llm"
	"github.com/sentinel-ops/sentinel/internal/tools"
)

type base struct {
	name     string
	client   llm.Client
	registry *tools.Registry
}

// decodeJSON tolerates markdown fences around the JSON body, which
// real models emit despite instructions.
func decodeJSON(content string, out any) error {
	trimmed := strings.TrimSpace(content)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
			trimmed = trimmed[:idx]
		}
		trimmed = strings.TrimSpace(trimmed)
	}
	return json.Unmarshal([]byte(trimmed), out)
}

func marshalIndent(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

// normalizeRisk maps the uppercase risk names models tend to emit
// onto the canonical lowercase levels.
func normalizeRisk(s string) string {
	upper := strings.ToUpper(strings.TrimSpace(s))
	switch {
	case strings.Contains(upper, "RISKY"):
		return "risky_write"
	case strings.Contains(upper, "SAFE"), strings.Contains(upper, "WRITE"):
		return "safe_write"
	}
	return "read_only"
}
