package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrNoJSON is returned when a model reply contains no JSON value
var ErrNoJSON = errors.New("no json found in model response")

var (
	reBlockComment  = regexp.MustCompile(`(?s)/\*.*?\*/`)
	reLineComment   = regexp.MustCompile(`(?m)^\s*//.*$`)
	reInlineComment = regexp.MustCompile(`(?m)//.*$`)
	reTrailingComma = regexp.MustCompile(`,(\s*[}\]])`)
)

// DecodeModelJSON sanitizes a model reply and unmarshals it into v
func DecodeModelJSON(raw string, v any) error {
	raw = SanitizeModelJSON(raw)
	if raw == "" {
		return ErrNoJSON
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("failed to parse model response: %w", err)
	}
	return nil
}

// SanitizeModelJSON removes code fences, comments, and trailing commas from
// a model reply and keeps only the outermost JSON object or array
func SanitizeModelJSON(raw string) string {
	raw = strings.TrimSpace(raw)

	// Strip triple-backtick fences if present
	if strings.HasPrefix(raw, "```") {
		if i := strings.Index(raw, "\n"); i >= 0 {
			raw = raw[i+1:]
		}
		if j := strings.LastIndex(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	}
	raw = strings.TrimSpace(raw)
	raw = strings.Trim(raw, "`")

	raw = reBlockComment.ReplaceAllString(raw, "")
	raw = reLineComment.ReplaceAllString(raw, "")
	raw = reInlineComment.ReplaceAllString(raw, "")
	raw = reTrailingComma.ReplaceAllString(raw, "$1")

	open, close := "{", "}"
	obj := strings.Index(raw, "{")
	arr := strings.Index(raw, "[")
	if arr >= 0 && (obj < 0 || arr < obj) {
		open, close = "[", "]"
	}

	start := strings.Index(raw, open)
	end := strings.LastIndex(raw, close)
	if start < 0 || end <= start {
		return ""
	}
	return strings.TrimSpace(raw[start : end+1])
}
