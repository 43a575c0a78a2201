// Package parser turns generative-model text into structured results. Every
// entry point degrades instead of failing: strict JSON, then key:value lines,
// then the raw text as body.
package parser

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Format records which tier produced a parse result.
type Format string

const (
	FormatJSON     Format = "json"
	FormatKeyValue Format = "key_value"
	FormatRaw      Format = "raw_text"
	FormatError    Format = "error"
)

// ErrNoObject is returned by DecodeObject when the text holds no JSON object.
var ErrNoObject = errors.New("no JSON object in response")

// StripFences removes a Markdown code fence wrapping the whole text, with or
// without a language tag, and trims whitespace. Fences inside the text are
// left alone.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	inner := s[3:]
	if nl := strings.IndexByte(inner, '\n'); nl != -1 {
		tag := strings.TrimSpace(inner[:nl])
		if tag == "" || isFenceTag(tag) {
			inner = inner[nl+1:]
		}
	} else {
		inner = strings.TrimPrefix(inner, "json")
	}
	inner = strings.TrimSuffix(strings.TrimSpace(inner), "```")
	return strings.TrimSpace(inner)
}

func isFenceTag(s string) bool {
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z') {
			return false
		}
	}
	return true
}

// extractObject returns the text from the first '{' to the last '}'.
func extractObject(s string) (string, bool) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}

// DecodeObject strips fences, locates the JSON object in raw and unmarshals
// it into v.
func DecodeObject(raw string, v any) error {
	obj, ok := extractObject(StripFences(raw))
	if !ok {
		return ErrNoObject
	}
	if err := json.Unmarshal([]byte(obj), v); err != nil {
		return fmt.Errorf("unmarshal object: %w", err)
	}
	return nil
}

// fields is a loosely typed view of a parsed response.
type fields map[string]any

func (f fields) str(key, def string) string {
	v, ok := f[key]
	if !ok || v == nil {
		return def
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return def
		}
		return string(b)
	}
}

func (f fields) num(key string, def float64) float64 {
	v, ok := f[key]
	if !ok || v == nil {
		return def
	}
	switch t := v.(type) {
	case float64:
		return t
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(strings.Trim(t, `"`)), 64)
		if err != nil {
			return def
		}
		return n
	default:
		return def
	}
}

func (f fields) list(key string) []string {
	v, ok := f[key]
	if !ok || v == nil {
		return []string{}
	}
	switch t := v.(type) {
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok {
				if s = strings.TrimSpace(s); s != "" {
					out = append(out, s)
				}
				continue
			}
			out = append(out, fields{"v": item}.str("v", ""))
		}
		return out
	case string:
		return splitList(t)
	default:
		return []string{}
	}
}

// splitList parses a bracketed, comma-separated list such as
// `["a", "b"]` or `a, b`.
func splitList(s string) []string {
	s = strings.Trim(strings.TrimSpace(s), `[]"`)
	out := []string{}
	for _, p := range strings.Split(s, ",") {
		p = strings.Trim(strings.TrimSpace(p), `"`)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

var keyLine = regexp.MustCompile(`^"?([A-Za-z_][A-Za-z0-9_]*)"?\s*:(.*)$`)

// parseKeyValue reads `key: value` lines. Lines that do not start a key are
// appended to the current value. List keys keep their raw text for later
// splitting. Values lose surrounding quotes and trailing commas.
func parseKeyValue(s string, known map[string]bool) fields {
	out := fields{}
	var key string
	var parts []string

	flush := func() {
		if key == "" || len(parts) == 0 {
			return
		}
		sep := " "
		if key == bodyKey {
			sep = "\n"
		}
		val := strings.TrimSpace(strings.Join(parts, sep))
		val = strings.TrimSuffix(val, ",")
		out[key] = strings.Trim(strings.TrimSpace(val), `"`)
	}

	for _, line := range strings.Split(s, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "{" || trimmed == "}" {
			continue
		}
		if m := keyLine.FindStringSubmatch(trimmed); m != nil && known[strings.ToLower(m[1])] {
			flush()
			key = strings.ToLower(m[1])
			parts = nil
			if v := strings.TrimSpace(m[2]); v != "" {
				parts = append(parts, v)
			}
			continue
		}
		if key != "" {
			parts = append(parts, trimmed)
		}
	}
	flush()
	return out
}

// hasKeyMarker reports whether s contains a line starting with one of the
// marker keys.
func hasKeyMarker(s string, markers ...string) bool {
	for _, line := range strings.Split(s, "\n") {
		m := keyLine.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		k := strings.ToLower(m[1])
		for _, marker := range markers {
			if k == marker {
				return true
			}
		}
	}
	return false
}

// parseTiered runs the JSON, key:value and raw tiers over raw. The raw tier
// stores the whole text under bodyKey.
func parseTiered(raw string, known map[string]bool, markers []string) (fields, Format) {
	s := StripFences(raw)

	if obj, ok := extractObject(s); ok {
		var m map[string]any
		if err := json.Unmarshal([]byte(obj), &m); err == nil {
			return fields(m), FormatJSON
		}
	}

	if hasKeyMarker(s, markers...) {
		return parseKeyValue(s, known), FormatKeyValue
	}

	return fields{bodyKey: s}, FormatRaw
}

// Unescape converts literal \n, \" and \t sequences left by double-escaped
// model output and trims the result.
func Unescape(s string) string {
	r := strings.NewReplacer(`\n`, "\n", `\"`, `"`, `\t`, "\t")
	return strings.TrimSpace(r.Replace(s))
}
