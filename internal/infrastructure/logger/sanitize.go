package logger

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// maxLoggedValueLength bounds user-supplied values such as source URLs.
const maxLoggedValueLength = 512

// SanitizeForLog escapes control characters in user-supplied strings so they
// cannot forge log lines or move a terminal cursor. Unicode is preserved.
// Values longer than maxLoggedValueLength are cut and marked with "...".
func SanitizeForLog(s string) string {
	var result strings.Builder
	result.Grow(len(s))

	n := 0
	for _, r := range s {
		if n >= maxLoggedValueLength {
			result.WriteString("...")
			break
		}
		n++
		switch r {
		case '\n':
			result.WriteString("\\n")
		case '\r':
			result.WriteString("\\r")
		case '\t':
			result.WriteString("\\t")
		default:
			if r < 32 || r == 127 {
				result.WriteString(fmt.Sprintf("\\x%02x", r))
			} else {
				result.WriteRune(r)
			}
		}
	}
	return result.String()
}

// UserString is a zap field whose value is sanitized first.
func UserString(key, value string) zap.Field {
	return zap.String(key, SanitizeForLog(value))
}
