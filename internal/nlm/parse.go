package nlm

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// ErrMalformedOutput reports that no JSON payload could be recovered from
// the command output.
var ErrMalformedOutput = errors.New("malformed command output")

var (
	uuidRe       = regexp.MustCompile(`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`)
	artifactIDRe = regexp.MustCompile(`(?i)artifact\s+id:\s*([0-9a-fA-F-]{36})`)
	notebookIDRe = regexp.MustCompile(`(?i)\bid:\s*([0-9a-fA-F-]{36})`)
)

// ParsePayload recovers a JSON value from noisy CLI output. It tries the
// whole output first, then the longest decodable span starting at any
// brace or bracket, then the last line that parses on its own.
func ParsePayload(output string) (any, error) {
	trimmed := strings.TrimSpace(output)
	if trimmed == "" {
		return nil, fmt.Errorf("empty output: %w", ErrMalformedOutput)
	}

	var whole any
	if err := json.Unmarshal([]byte(trimmed), &whole); err == nil {
		return whole, nil
	}

	if v, ok := bestEmbeddedValue(trimmed); ok {
		return v, nil
	}

	lines := strings.Split(trimmed, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" || (line[0] != '{' && line[0] != '[') {
			continue
		}
		var v any
		if err := json.Unmarshal([]byte(line), &v); err == nil {
			return v, nil
		}
	}

	return nil, fmt.Errorf("no JSON found in output: %w", ErrMalformedOutput)
}

// bestEmbeddedValue scans every brace and bracket position and keeps the
// decodable value with the widest span. Log prefixes and trailing chatter
// around a JSON body are the common case.
func bestEmbeddedValue(s string) (any, bool) {
	var best any
	bestSpan := int64(0)
	found := false
	for i := 0; i < len(s); i++ {
		if s[i] != '{' && s[i] != '[' {
			continue
		}
		dec := json.NewDecoder(strings.NewReader(s[i:]))
		var v any
		if err := dec.Decode(&v); err != nil {
			continue
		}
		if span := dec.InputOffset(); !found || span > bestSpan {
			best = v
			bestSpan = span
			found = true
		}
	}
	return best, found
}

// ParseObject is ParsePayload constrained to a JSON object.
func ParseObject(output string) (map[string]any, error) {
	v, err := ParsePayload(output)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected JSON object, got %T: %w", v, ErrMalformedOutput)
	}
	return obj, nil
}

// ItemsFromAny extracts a list of item objects from a payload that is
// either a bare array or an object wrapping the array under one of the
// given keys, checked in order. As a last resort any value holding a list
// of objects is taken.
func ItemsFromAny(v any, keys ...string) []map[string]any {
	switch t := v.(type) {
	case []any:
		return objectsOf(t)
	case map[string]any:
		for _, key := range keys {
			if nested, ok := t[key].([]any); ok {
				return objectsOf(nested)
			}
		}
		fallbackKeys := make([]string, 0, len(t))
		for k := range t {
			fallbackKeys = append(fallbackKeys, k)
		}
		sort.Strings(fallbackKeys)
		for _, k := range fallbackKeys {
			if nested, ok := t[k].([]any); ok {
				if items := objectsOf(nested); len(items) > 0 {
					return items
				}
			}
		}
	}
	return nil
}

func objectsOf(items []any) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		if obj, ok := item.(map[string]any); ok {
			out = append(out, obj)
		}
	}
	return out
}

// SourceItems pulls source rows out of a source list payload.
func SourceItems(v any) []map[string]any {
	return ItemsFromAny(v, "sources", "items", "results", "data")
}

// ArtifactItems pulls artifact rows out of a studio status payload.
func ArtifactItems(v any) []map[string]any {
	return ItemsFromAny(v, "artifacts", "items", "results", "data")
}

// ExtractArtifactID recovers the artifact id from create output. Falls
// through JSON fields, a labeled line, then any bare UUID.
func ExtractArtifactID(output string) string {
	if v, err := ParsePayload(output); err == nil {
		if id := idFromValue(v, "artifact_id", "id"); id != "" {
			return id
		}
	}
	if m := artifactIDRe.FindStringSubmatch(output); m != nil {
		return m[1]
	}
	return uuidRe.FindString(output)
}

// ExtractSourceID recovers a source id from source-add output.
func ExtractSourceID(output string) string {
	if v, err := ParsePayload(output); err == nil {
		if id := idFromValue(v, "source_id", "id"); id != "" {
			return id
		}
	}
	return uuidRe.FindString(output)
}

// ExtractNotebookID recovers a notebook id from create output.
func ExtractNotebookID(output string) string {
	if v, err := ParsePayload(output); err == nil {
		if id := idFromValue(v, "notebook_id", "id"); id != "" {
			return id
		}
	}
	if m := notebookIDRe.FindStringSubmatch(output); m != nil {
		return m[1]
	}
	return uuidRe.FindString(output)
}

func idFromValue(v any, keys ...string) string {
	obj, ok := v.(map[string]any)
	if !ok {
		return ""
	}
	for _, key := range keys {
		if s, ok := obj[key].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	for _, wrapper := range []string{"artifact", "notebook", "result", "data"} {
		if nested, ok := obj[wrapper].(map[string]any); ok {
			for _, key := range keys {
				if s, ok := nested[key].(string); ok && strings.TrimSpace(s) != "" {
					return strings.TrimSpace(s)
				}
			}
		}
	}
	return ""
}

var numericStatuses = map[int]string{
	1: "in_progress",
	3: "completed",
	4: "failed",
}

// NormalizeStatus maps the CLI's mixed status vocabulary (numeric enums,
// spaced words, synonyms) onto a small canonical set.
func NormalizeStatus(raw any) string {
	switch t := raw.(type) {
	case nil:
		return ""
	case float64:
		if s, ok := numericStatuses[int(t)]; ok {
			return s
		}
		return fmt.Sprintf("%d", int(t))
	case int:
		if s, ok := numericStatuses[t]; ok {
			return s
		}
		return fmt.Sprintf("%d", t)
	case string:
		s := strings.ToLower(strings.TrimSpace(t))
		switch s {
		case "complete", "success", "succeeded":
			return "completed"
		case "in progress", "running":
			return "in_progress"
		}
		return s
	default:
		return strings.ToLower(strings.TrimSpace(fmt.Sprintf("%v", t)))
	}
}

var successStates = map[string]bool{
	"completed": true,
	"done":      true,
	"ready":     true,
	"succeeded": true,
}

var failStates = map[string]bool{
	"failed": true,
	"error":  true,
}

func IsSuccessStatus(status string) bool {
	return successStates[status]
}

func IsFailStatus(status string) bool {
	return failStates[status]
}
