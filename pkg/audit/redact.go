package audit

import "regexp"

// Secret-bearing shapes scrubbed from audit text before persistence. Scanning
// happens on write, never on read, so a secret that slips into a summary or
// metadata value is gone before it touches disk.
var redactPatterns = []*regexp.Regexp{
	regexp.MustCompile(`sk-[A-Za-z0-9_\-]{8,}`),
	regexp.MustCompile(`ghp_[A-Za-z0-9]{20,}`),
	regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9._\-]{16,}`),
	regexp.MustCompile(`(?s)-----BEGIN [A-Z ]*PRIVATE KEY-----.*?-----END [A-Z ]*PRIVATE KEY-----`),
	regexp.MustCompile(`\b[A-Za-z0-9+/=_\-]{40,}\b`),
}

const redactedPlaceholder = "[REDACTED]"

// RedactString scrubs secret-shaped substrings from s.
func RedactString(s string) string {
	for _, re := range redactPatterns {
		s = re.ReplaceAllString(s, redactedPlaceholder)
	}
	return s
}

// RedactValue walks an already-unmarshaled JSON value and scrubs every string
// leaf. Maps and slices are rebuilt, not mutated in place.
func RedactValue(v any) any {
	switch val := v.(type) {
	case string:
		return RedactString(val)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			out[k] = RedactValue(inner)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = RedactValue(inner)
		}
		return out
	default:
		return v
	}
}
