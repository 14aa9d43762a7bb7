// Package llm holds helpers for salvaging structured data out of
// model completions, which may arrive fenced, prose-wrapped, or broken.
package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	contractx "github.com/rxgenie/rxgenie/agent/contract"
)

// StripFences removes a wrapping markdown code fence, with or without a
// language tag, and returns the inner text trimmed.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.Contains(s, "```") {
		return s
	}

	start := strings.Index(s, "```")
	rest := s[start+3:]
	// drop a language tag like "json" up to the first newline
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		firstLine := strings.TrimSpace(rest[:nl])
		if firstLine != "" && !strings.ContainsAny(firstLine, "{}[]") {
			rest = rest[nl+1:]
		}
	}
	if end := strings.Index(rest, "```"); end >= 0 {
		rest = rest[:end]
	}
	return strings.TrimSpace(rest)
}

// ExtractObject returns the first brace-balanced {...} substring,
// skipping braces inside string literals.
func ExtractObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

// UnmarshalLenient decodes raw into v: fences are stripped first, and a
// direct parse failure falls back to the first balanced object.
func UnmarshalLenient(raw string, v any) error {
	cleaned := StripFences(raw)
	if err := json.Unmarshal([]byte(cleaned), v); err == nil {
		return nil
	}

	obj, ok := ExtractObject(cleaned)
	if !ok {
		return fmt.Errorf("%w: no JSON object in completion", contractx.ErrSchemaViolation)
	}
	if err := json.Unmarshal([]byte(obj), v); err != nil {
		return fmt.Errorf("%w: %v", contractx.ErrSchemaViolation, err)
	}
	return nil
}
