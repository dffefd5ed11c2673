package wire

import (
	"bytes"
	"encoding/json"
	"strings"
)

// object decodes data as a JSON object, unwrapping a {"data": {...}} envelope
// when that is the only meaningful member. It returns the members and the
// bytes they were read from.
func object(endpoint string, data []byte) (map[string]json.RawMessage, json.RawMessage, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil, parseErr(endpoint, "empty body", nil)
	}
	if trimmed[0] != '{' {
		return nil, nil, parseErr(endpoint, "body is not an object", nil)
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return nil, nil, parseErr(endpoint, "invalid json", err)
	}

	if inner, ok := obj["data"]; ok && envelopeOnly(obj) {
		inner = bytes.TrimSpace(inner)
		if len(inner) > 0 && inner[0] == '{' {
			var innerObj map[string]json.RawMessage
			if err := json.Unmarshal(inner, &innerObj); err != nil {
				return nil, nil, parseErr(endpoint, "invalid json", err)
			}
			return innerObj, inner, nil
		}
	}
	return obj, trimmed, nil
}

func envelopeOnly(obj map[string]json.RawMessage) bool {
	for k := range obj {
		switch k {
		case "data", "success", "message", "status":
		default:
			return false
		}
	}
	return true
}

type rawError struct {
	Message string          `json:"message"`
	Error   json.RawMessage `json:"error"`
}

// DecodeError extracts a human-readable message from an error body. It never
// fails; an unreadable body yields the empty string.
func DecodeError(data []byte) string {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return ""
	}
	var raw rawError
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return ""
	}
	if msg := strings.TrimSpace(raw.Message); msg != "" {
		return msg
	}
	if len(raw.Error) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw.Error, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var nested rawError
	if err := json.Unmarshal(raw.Error, &nested); err == nil {
		return strings.TrimSpace(nested.Message)
	}
	return ""
}

// DecodeMessage returns the "message" member of a success body, looking
// inside a data envelope when the outer object has none.
func DecodeMessage(data []byte) string {
	var outer struct {
		Message string `json:"message"`
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		if err := json.Unmarshal(trimmed, &outer); err == nil && strings.TrimSpace(outer.Message) != "" {
			return strings.TrimSpace(outer.Message)
		}
	}
	obj, _, err := object("message", data)
	if err != nil {
		return ""
	}
	raw, ok := obj["message"]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}
