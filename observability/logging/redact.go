package logging

import (
	"log/slog"
	"net/http"
	"strings"
)

// RedactedValue is the canonical placeholder used for sensitive fields in logs.
const RedactedValue = "[REDACTED]"

var sensitiveHeaders = map[string]struct{}{
	"authorization":   {},
	"cookie":          {},
	"x-api-key":       {},
	"idempotency-key": {},
}

// IsSensitiveHeader reports whether a request header must never be logged verbatim.
func IsSensitiveHeader(name string) bool {
	_, ok := sensitiveHeaders[strings.ToLower(strings.TrimSpace(name))]
	return ok
}

// MaskValue returns the canonical redacted placeholder for non-empty values. Empty values
// are returned unchanged to avoid introducing noise in logs.
func MaskValue(value string) string {
	if strings.TrimSpace(value) == "" {
		return value
	}
	return RedactedValue
}

// HeaderAttrs renders request headers as a log group, masking credentials.
func HeaderAttrs(h http.Header) slog.Attr {
	attrs := make([]any, 0, len(h))
	for name, values := range h {
		value := strings.Join(values, ",")
		if IsSensitiveHeader(name) {
			value = MaskValue(value)
		}
		attrs = append(attrs, slog.String(strings.ToLower(name), value))
	}
	return slog.Group("headers", attrs...)
}
