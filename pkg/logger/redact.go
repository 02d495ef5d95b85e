package logger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

const redacted = "[redacted]"

var secretKeys = map[string]bool{
	"token":         true,
	"secret_key":    true,
	"secret":        true,
	"authorization": true,
	"x-api-key":     true,
	"api_key":       true,
}

// redactHandler masks credential attributes and shortens base64 payloads before
// they reach the wrapped handler.
type redactHandler struct {
	next slog.Handler
	keys map[string]bool
}

// newRedactor wraps next, masking the built-in secret keys plus extra.
func newRedactor(next slog.Handler, extra []string) slog.Handler {
	keys := make(map[string]bool, len(secretKeys)+len(extra))
	for key := range secretKeys {
		keys[key] = true
	}
	for _, key := range extra {
		if key = strings.ToLower(strings.TrimSpace(key)); key != "" {
			keys[key] = true
		}
	}

	return &redactHandler{next: next, keys: keys}
}

func (h *redactHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *redactHandler) Handle(ctx context.Context, record slog.Record) error {
	clean := slog.NewRecord(record.Time, record.Level, record.Message, record.PC)
	record.Attrs(func(attr slog.Attr) bool {
		clean.AddAttrs(h.scrub(attr))
		return true
	})

	return h.next.Handle(ctx, clean)
}

func (h *redactHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	scrubbed := make([]slog.Attr, 0, len(attrs))
	for _, attr := range attrs {
		scrubbed = append(scrubbed, h.scrub(attr))
	}

	return &redactHandler{next: h.next.WithAttrs(scrubbed), keys: h.keys}
}

func (h *redactHandler) WithGroup(name string) slog.Handler {
	return &redactHandler{next: h.next.WithGroup(name), keys: h.keys}
}

func (h *redactHandler) scrub(attr slog.Attr) slog.Attr {
	attr.Value = attr.Value.Resolve()
	key := strings.ToLower(attr.Key)

	if attr.Value.Kind() == slog.KindGroup {
		group := attr.Value.Group()
		scrubbed := make([]slog.Attr, 0, len(group))
		for _, item := range group {
			scrubbed = append(scrubbed, h.scrub(item))
		}
		return slog.Attr{Key: attr.Key, Value: slog.GroupValue(scrubbed...)}
	}

	switch {
	case h.keys[key]:
		if attr.Value.Kind() == slog.KindString && attr.Value.String() == "" {
			return attr
		}
		return slog.String(attr.Key, redacted)
	case strings.HasPrefix(key, "qrcode") || strings.Contains(key, "base64"):
		if attr.Value.Kind() == slog.KindString {
			return slog.String(attr.Key, fmt.Sprintf("<%d bytes>", len(attr.Value.String())))
		}
	}

	return attr
}
