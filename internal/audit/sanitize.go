package audit

import (
	"encoding/json"
	"regexp"

	"github.com/tos-network/agentwallet/internal/apperr"
	"github.com/tos-network/agentwallet/internal/logx"
)

// Sanitize recursively walks details and returns a new tree with every
// field whose name matches the key-adjacent set (logx.IsSensitiveField,
// shared with the logger's redaction belt) dropped — from object fields
// and from objects nested inside arrays. The input tree is never mutated
// (spec §4.6).
func Sanitize(details map[string]interface{}) map[string]interface{} {
	if details == nil {
		return nil
	}
	return sanitizeMap(details).(map[string]interface{})
}

func sanitizeValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		return sanitizeMap(t)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, elem := range t {
			out[i] = sanitizeValue(elem)
		}
		return out
	default:
		return v
	}
}

func sanitizeMap(m map[string]interface{}) interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		if logx.IsSensitiveField(k) {
			continue
		}
		out[k] = sanitizeValue(v)
	}
	return out
}

func marshalDetails(details map[string]interface{}) ([]byte, error) {
	if details == nil {
		details = map[string]interface{}{}
	}
	return json.Marshal(details)
}

func unmarshalDetails(raw string) (map[string]interface{}, error) {
	var m map[string]interface{}
	if raw == "" {
		return map[string]interface{}{}, nil
	}
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, err
	}
	return m, nil
}

// keyMaterialSubstring matches the same key-adjacent field names as a
// substring anywhere in a serialized details blob (case-insensitive, with
// or without separating underscores) — the belt-and-suspenders check run
// after serialization (spec §4.6).
var keyMaterialSubstring = regexp.MustCompile(`(?i)secret[_]?key|private[_]?key|key[_]?pair|seed|mnemonic|key[_]?material`)

// AssertNoKeyMaterial verifies a serialized details blob contains none of
// the key-adjacent substrings. It is exported for use by tests that stress
// the sanitizer directly against hand-built payloads (spec §4.6).
func AssertNoKeyMaterial(raw []byte) error {
	if keyMaterialSubstring.Match(raw) {
		return apperr.New(apperr.CodeSchemaMismatch, "sanitized audit details still contain a key-adjacent field name")
	}
	return nil
}
