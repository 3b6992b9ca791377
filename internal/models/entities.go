package models

import (
	"encoding/json"
	"log/slog"
	"strconv"
)

// Entities is the dictionary-shaped payload the NLU layer attaches to a turn.
// Values are strings, string lists, or numbers. It is serialized as an opaque
// JSON blob for storage and decoded defensively: a corrupt blob decodes to an
// empty map, never an error.
type Entities map[string]any

// String returns the value for key as a string. Numbers are formatted;
// lists return their first element. Missing or unconvertible values
// return "".
func (e Entities) String(key string) string {
	v, ok := e[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case []string:
		if len(t) > 0 {
			return t[0]
		}
	case []any:
		if len(t) > 0 {
			if s, ok := t[0].(string); ok {
				return s
			}
		}
	}
	return ""
}

// Has reports whether key is present with a non-empty string form.
func (e Entities) Has(key string) bool {
	return e.String(key) != ""
}

// Clone returns a shallow copy, never nil.
func (e Entities) Clone() Entities {
	out := make(Entities, len(e))
	for k, v := range e {
		out[k] = v
	}
	return out
}

// EncodeEntities serializes entities for storage. Nil or empty maps encode
// to the empty string so the column stays NULL-ish.
func EncodeEntities(e Entities) string {
	if len(e) == 0 {
		return ""
	}
	b, err := json.Marshal(e)
	if err != nil {
		slog.Warn("encode entities failed", "error", err)
		return ""
	}
	return string(b)
}

// DecodeEntities deserializes a stored entities blob. Malformed data is
// treated as no entities: log at warning level and continue.
func DecodeEntities(raw string) Entities {
	if raw == "" {
		return nil
	}
	var e Entities
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		slog.Warn("decode entities failed, treating as empty", "error", err)
		return nil
	}
	return e
}
