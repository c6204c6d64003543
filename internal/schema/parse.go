package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// StripCodeFence removes a surrounding ``` or ```json fence.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```JSON")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}

// Decode parses exactly one JSON value, keeping numbers as json.Number so
// integer checks in the validator see the literal.
func Decode(s string) (any, error) {
	if strings.TrimSpace(s) == "" {
		return nil, fmt.Errorf("empty output")
	}
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("output is not valid JSON: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("output has trailing content after JSON value")
	}
	return doc, nil
}

// Into decodes already validated JSON into a typed value.
func Into(clean string, v any) error {
	if err := json.NewDecoder(bytes.NewReader([]byte(clean))).Decode(v); err != nil {
		return fmt.Errorf("decode validated output: %w", err)
	}
	return nil
}
