package logging

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Redacted replaces values that must never be logged, even partially.
const Redacted = "[REDACTED]"

// MaskToken keeps a token's prefix (up to and including the first underscore)
// and its last 4 characters: "pt_0123...cdef" becomes "pt_****cdef".
func MaskToken(tok string) string {
	if tok == "" {
		return ""
	}
	prefix := ""
	if i := strings.IndexByte(tok, '_'); i >= 0 && i < len(tok)-1 {
		prefix = tok[:i+1]
	}
	rest := tok[len(prefix):]
	if len(rest) <= 8 {
		return prefix + "****"
	}
	return prefix + "****" + rest[len(rest)-4:]
}

// MaskHeader redacts sensitive header values by header name.
//
// Authorization keeps its scheme and the last 4 characters of the credential.
// Cookie and anything naming a password or secret is fully redacted.
func MaskHeader(name, value string) string {
	lowerName := strings.ToLower(name)

	if strings.Contains(lowerName, "password") ||
		strings.Contains(lowerName, "secret") ||
		lowerName == "cookie" ||
		lowerName == "set-cookie" {
		return Redacted
	}

	if lowerName == "authorization" || lowerName == "x-api-key" {
		scheme, cred, found := strings.Cut(value, " ")
		if !found {
			return lastFour(value)
		}
		return scheme + " " + lastFour(cred)
	}

	return value
}

func lastFour(v string) string {
	if len(v) < 8 {
		return "****"
	}
	return "****" + v[len(v)-4:]
}

// SensitiveFields are the JSON keys masked by MaskJSONBody when no list is given.
var SensitiveFields = []string{"preview_deploy_token", "token", "admin_token"}

// MaskJSONBody masks the values of the named keys anywhere in a JSON document.
// String values go through MaskToken; other values are redacted outright.
// Bodies that are not valid JSON are returned unchanged.
func MaskJSONBody(body []byte, fields []string) []byte {
	if len(body) == 0 {
		return body
	}
	if fields == nil {
		fields = SensitiveFields
	}

	var data any
	if err := json.Unmarshal(body, &data); err != nil {
		return body
	}

	sensitive := make(map[string]bool, len(fields))
	for _, f := range fields {
		sensitive[f] = true
	}

	result, err := json.Marshal(maskJSONValue(data, sensitive))
	if err != nil {
		return body
	}
	return result
}

func maskJSONValue(value any, sensitive map[string]bool) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, val := range v {
			if !sensitive[key] {
				out[key] = maskJSONValue(val, sensitive)
				continue
			}
			switch s := val.(type) {
			case string:
				out[key] = MaskToken(s)
			case nil:
				out[key] = nil
			default:
				out[key] = Redacted
			}
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = maskJSONValue(item, sensitive)
		}
		return out
	default:
		return value
	}
}

// FormatBinaryData describes a binary payload without logging it.
func FormatBinaryData(data []byte) string {
	return fmt.Sprintf("[BINARY: %d bytes]", len(data))
}
