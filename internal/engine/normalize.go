package engine

import (
	"encoding/json"
	"fmt"
)

// NormalizeOutput flattens the runtime's raw result payload into one
// string per input path, preserving order. Runtimes have shipped three
// shapes over time — a bare string, a list of strings, and a list of
// result objects with a text field — so the variants are resolved here,
// once, and the rest of the system only ever sees []string.
func NormalizeOutput(raw json.RawMessage, want int) ([]string, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty runtime result")
	}

	// Bare string result.
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return padResults([]string{single}, want)
	}

	// List result: elements may themselves be strings or objects.
	var elements []json.RawMessage
	if err := json.Unmarshal(raw, &elements); err == nil {
		texts := make([]string, 0, len(elements))
		for i, el := range elements {
			text, err := normalizeElement(el)
			if err != nil {
				return nil, fmt.Errorf("result element %d: %w", i, err)
			}
			texts = append(texts, text)
		}
		return padResults(texts, want)
	}

	// Single object with a text field.
	if text, err := normalizeElement(raw); err == nil {
		return padResults([]string{text}, want)
	}

	return nil, fmt.Errorf("unrecognized runtime result shape")
}

func normalizeElement(el json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(el, &s); err == nil {
		return s, nil
	}
	var obj struct {
		Text *string `json:"text"`
	}
	if err := json.Unmarshal(el, &obj); err == nil && obj.Text != nil {
		return *obj.Text, nil
	}
	return "", fmt.Errorf("element is neither a string nor an object with a text field")
}

// padResults enforces the one-result-per-input contract. A short result
// list is an error except for the degenerate zero case; a longer list is
// truncated to the inputs it was asked about.
func padResults(texts []string, want int) ([]string, error) {
	if want <= 0 {
		return texts, nil
	}
	if len(texts) < want {
		return nil, fmt.Errorf("runtime returned %d results for %d inputs", len(texts), want)
	}
	return texts[:want], nil
}
