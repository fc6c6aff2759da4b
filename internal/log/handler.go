// Package log builds the application's slog logger. Every handler it returns
// masks credentials before they reach the output.
package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"
)

// Mask replaces redacted values.
const Mask = "***REDACTED***"

// secretKeys are attribute keys whose values are always masked.
var secretKeys = map[string]bool{
	"authorization":     true,
	"x-api-key":         true,
	"api_key":           true,
	"apikey":            true,
	"twitterapi_io_key": true,
	"database_url":      true,
	"dsn":               true,
}

// secretKeywords mask any key containing them. A bare "key" is left out: it
// would also hit fields like "primary_key".
var secretKeywords = []string{"password", "passwd", "secret", "token", "credential"}

// secretValues mask values that look like credentials whatever the key.
var secretValues = []*regexp.Regexp{
	// Bearer and basic auth headers
	regexp.MustCompile(`(?i)^(bearer|basic)\s+\S+`),
	// Long opaque keys such as provider API keys
	regexp.MustCompile(`^[A-Za-z0-9_-]{32,}$`),
	// Connection strings carrying a password
	regexp.MustCompile(`^[a-z][a-z0-9+.-]*://[^/:@\s]+:[^@\s]+@`),
}

// SecureHandler wraps an slog.Handler and masks secret attributes, including
// those nested in groups and those added through WithAttrs.
type SecureHandler struct {
	handler slog.Handler
}

// NewSecureHandler wraps handler. A nil handler wraps slog.Default's.
func NewSecureHandler(handler slog.Handler) *SecureHandler {
	if handler == nil {
		handler = slog.Default().Handler()
	}
	return &SecureHandler{handler: handler}
}

func (h *SecureHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

func (h *SecureHandler) Handle(ctx context.Context, r slog.Record) error {
	out := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	r.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(redact(a))
		return true
	})
	return h.handler.Handle(ctx, out)
}

func (h *SecureHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	redacted := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		redacted[i] = redact(a)
	}
	return &SecureHandler{handler: h.handler.WithAttrs(redacted)}
}

func (h *SecureHandler) WithGroup(name string) slog.Handler {
	return &SecureHandler{handler: h.handler.WithGroup(name)}
}

func redact(a slog.Attr) slog.Attr {
	a.Value = a.Value.Resolve()
	if a.Value.Kind() == slog.KindGroup {
		attrs := a.Value.Group()
		redacted := make([]slog.Attr, len(attrs))
		for i, ga := range attrs {
			redacted[i] = redact(ga)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(redacted...)}
	}

	if isSecretKey(a.Key) {
		return slog.String(a.Key, Mask)
	}
	if a.Value.Kind() == slog.KindString && isSecretValue(a.Value.String()) {
		return slog.String(a.Key, Mask)
	}
	return a
}

func isSecretKey(key string) bool {
	key = strings.ToLower(key)
	if secretKeys[key] {
		return true
	}
	for _, kw := range secretKeywords {
		if strings.Contains(key, kw) {
			return true
		}
	}
	return false
}

func isSecretValue(v string) bool {
	for _, re := range secretValues {
		if re.MatchString(v) {
			return true
		}
	}
	return false
}

// ParseLevel maps a config level name to an slog level.
func ParseLevel(name string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", name, err)
	}
	return level, nil
}

// New returns a redacting logger writing to w. format is "json" or "text".
func New(w io.Writer, level, format string) (*slog.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: lvl}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "", "json":
		handler = slog.NewJSONHandler(w, opts)
	case "text":
		handler = slog.NewTextHandler(w, opts)
	default:
		return nil, fmt.Errorf("invalid log format %q: want json or text", format)
	}
	return slog.New(NewSecureHandler(handler)), nil
}
