// Package json extracts JSON objects from model-written text.
//
// Models write JSON arguments inline, sometimes inside markdown fences or
// surrounded by commentary. This package finds the object and decodes it
// into a field map that can be merged onto an API record.
package json

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Object extracts the first JSON object in text.
// It handles a bare object, an object inside ``` fences, and an object
// surrounded by prose (first '{' to last '}').
func Object(text string) (string, error) {
	text = stripFences(text)

	if isObject(text) {
		return text, nil
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start != -1 && end > start {
		if candidate := text[start : end+1]; isObject(candidate) {
			return candidate, nil
		}
	}

	preview := text
	if len(preview) > 100 {
		preview = preview[:100] + "..."
	}
	return "", fmt.Errorf("no JSON object in %q", preview)
}

func isObject(s string) bool {
	var m map[string]json.RawMessage
	return json.Unmarshal([]byte(s), &m) == nil
}

// stripFences removes markdown code block markers such as ```json ... ```.
func stripFences(text string) string {
	trimmed := strings.TrimSpace(text)

	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimPrefix(trimmed, "json")
		trimmed = strings.TrimSpace(trimmed)
	}
	if strings.HasSuffix(trimmed, "```") {
		trimmed = strings.TrimSuffix(trimmed, "```")
		trimmed = strings.TrimSpace(trimmed)
	}

	return trimmed
}

// Fields decodes the object in text into a field map. Numbers are kept as
// json.Number so integer IDs round-trip exactly.
func Fields(text string) (map[string]any, error) {
	obj, err := Object(text)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(obj)))
	dec.UseNumber()

	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, fmt.Errorf("failed to decode fields: %w", err)
	}
	return fields, nil
}

// Decode extracts the object in text into a value of type T.
func Decode[T any](text string) (T, error) {
	var result T
	obj, err := Object(text)
	if err != nil {
		return result, err
	}
	if err := json.Unmarshal([]byte(obj), &result); err != nil {
		return result, fmt.Errorf("failed to unmarshal JSON: %w", err)
	}
	return result, nil
}

// Merge overwrites top-level keys of dst with those of src and returns dst.
// A nil dst is allocated.
func Merge(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = make(map[string]any, len(src))
	}
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// Int reads an integer field. It accepts json.Number, float64 (the default
// decoding), int, and numeric strings.
func Int(fields map[string]any, key string) (int64, error) {
	v, ok := fields[key]
	if !ok {
		return 0, fmt.Errorf("field %q is missing", key)
	}

	switch n := v.(type) {
	case json.Number:
		return n.Int64()
	case float64:
		if n != float64(int64(n)) {
			return 0, fmt.Errorf("field %q is not an integer: %v", key, n)
		}
		return int64(n), nil
	case int:
		return int64(n), nil
	case int64:
		return n, nil
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("field %q is not an integer: %q", key, n)
		}
		return i, nil
	default:
		return 0, fmt.Errorf("field %q has unsupported type %T", key, v)
	}
}
