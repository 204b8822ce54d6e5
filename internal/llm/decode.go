package llm

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// DecodeStrict decodes model output into target, rejecting unknown fields and
// trailing data. Code fences around the payload are tolerated.
func DecodeStrict(content string, target any) error {
	payload := strings.TrimSpace(stripCodeFence(content))
	if payload == "" {
		return errors.New("empty payload")
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(payload)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		return fmt.Errorf("decode payload: %w (snippet: %s)", err, snippet(payload))
	}
	if dec.More() {
		return fmt.Errorf("decode payload: trailing data (snippet: %s)", snippet(payload))
	}
	return nil
}

func stripCodeFence(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if nl := strings.Index(trimmed, "\n"); nl >= 0 {
		trimmed = trimmed[nl+1:]
	}
	return strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
}

func snippet(s string) string {
	const maxSnippet = 160
	if len(s) <= maxSnippet {
		return s
	}
	return s[:maxSnippet] + "..."
}
