package safety

import (
	"encoding/json"
	"fmt"
)

// DefaultMaxPayloadBytes caps serialized task payloads.
const DefaultMaxPayloadBytes = 65536

// dangerousKeys are dropped at any depth during sanitization. They are the
// prototype-pollution vectors of JSON consumers downstream of the webhook.
var dangerousKeys = map[string]bool{
	"__proto__":   true,
	"constructor": true,
	"prototype":   true,
}

// SanitizePayload serializes in, enforces the byte cap and strips dangerous
// keys at every depth. nil yields an empty mapping.
func SanitizePayload(in map[string]any, maxBytes int) (map[string]any, error) {
	if in == nil {
		return map[string]any{}, nil
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxPayloadBytes
	}

	raw, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPayloadInvalid, err)
	}
	if len(raw) > maxBytes {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrPayloadTooLarge, len(raw), maxBytes)
	}

	// Round-trip through a fresh tree so the result shares nothing with the
	// caller's maps, then strip on the way out.
	var tree map[string]any
	if err := json.Unmarshal(raw, &tree); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPayloadInvalid, err)
	}
	return stripDangerous(tree).(map[string]any), nil
}

func stripDangerous(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if dangerousKeys[k] {
				continue
			}
			out[k] = stripDangerous(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = stripDangerous(val)
		}
		return out
	default:
		return v
	}
}
