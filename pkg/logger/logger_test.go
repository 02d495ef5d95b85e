package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"wagate/pkg/config"
)

func decodeLine(t *testing.T, out *bytes.Buffer) map[string]any {
	t.Helper()

	line := strings.TrimSpace(out.String())
	if line == "" {
		t.Fatal("expected log output")
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("unmarshal log entry %q: %v", line, err)
	}
	return entry
}

func TestLoggerJSONEntryShape(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	log, err := New(config.LoggingConfig{Format: "json", Level: "info"}, Options{
		Writer:  &out,
		Backend: "wwebjs",
		Session: "main",
	})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	log.With("component", "session.controller").Info("Session status", "state", "CONNECTED", "ok", true)

	entry := decodeLine(t, &out)
	want := map[string]any{
		"level":     "info",
		"message":   "Session status",
		"component": "session.controller",
		"backend":   "wwebjs",
		"session":   "main",
		"state":     "CONNECTED",
		"ok":        true,
	}
	for key, value := range want {
		if entry[key] != value {
			t.Fatalf("%s = %v, want %v (entry %v)", key, entry[key], value, entry)
		}
	}
	if entry["timestamp"] == nil || entry["time"] != nil || entry["msg"] != nil {
		t.Fatalf("unexpected built-in keys: %v", entry)
	}
}

func TestLoggerJSONCaller(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	log, err := New(config.LoggingConfig{Format: "json", AddSource: true}, Options{Writer: &out})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	log.Info("With caller")

	entry := decodeLine(t, &out)
	caller, _ := entry["caller"].(string)
	if !strings.HasPrefix(caller, "logger_test.go:") {
		t.Fatalf("caller = %q", caller)
	}
}

func TestLoggerLevelFiltering(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	log, err := New(config.LoggingConfig{Format: "json", Level: "error"}, Options{Writer: &out})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	log.Info("Ignored")
	if got := strings.TrimSpace(out.String()); got != "" {
		t.Fatalf("expected no output for info, got %q", got)
	}

	log.Error("Kept")
	if got := strings.TrimSpace(out.String()); got == "" {
		t.Fatal("expected output for error")
	}
}

func TestLoggerRejectsUnknownSettings(t *testing.T) {
	t.Parallel()

	if _, err := New(config.LoggingConfig{Format: "xml"}, Options{}); err == nil {
		t.Fatal("expected error for unknown format")
	}
	if _, err := New(config.LoggingConfig{Level: "loud"}, Options{}); err == nil {
		t.Fatal("expected error for unknown level")
	}
	if _, err := New(config.LoggingConfig{Level: "WARNING"}, Options{Writer: &bytes.Buffer{}}); err != nil {
		t.Fatalf("warning alias: %v", err)
	}
}

func TestLoggerTextFormats(t *testing.T) {
	t.Parallel()

	for _, format := range []string{"", "text", "logfmt"} {
		var out bytes.Buffer
		log, err := New(config.LoggingConfig{Format: format}, Options{Writer: &out})
		if err != nil {
			t.Fatalf("New(%q) error: %v", format, err)
		}

		log.Info("Plain output", "state", "CONNECTED")
		line := strings.TrimSpace(out.String())
		if line == "" || strings.HasPrefix(line, "{") {
			t.Fatalf("format %q produced %q", format, line)
		}
		if !strings.Contains(line, "CONNECTED") {
			t.Fatalf("format %q dropped attributes: %q", format, line)
		}
	}
}

func TestLoggerRedactsSecrets(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	log, err := New(config.LoggingConfig{Format: "json", Redact: []string{" Webhook_URL "}}, Options{Writer: &out})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	log.With("token", "bearer-secret").Info("Token refreshed",
		"secret_key", "THISISMYSECURETOKEN",
		"qrcode_base64", "iVBORw0KGgoAAAANSUhEUg==",
		"webhook_url", "https://hooks.example/private",
		"session", "main",
		slog.Group("headers", "Authorization", "Bearer abc"),
	)

	line := out.String()
	for _, secret := range []string{"bearer-secret", "THISISMYSECURETOKEN", "iVBORw0KGgo", "Bearer abc", "hooks.example"} {
		if strings.Contains(line, secret) {
			t.Fatalf("log line leaks %q: %s", secret, line)
		}
	}

	entry := decodeLine(t, &out)
	if entry["session"] != "main" {
		t.Fatalf("session = %v, want main", entry["session"])
	}
	if entry["qrcode_base64"] != "<24 bytes>" {
		t.Fatalf("qrcode_base64 = %v", entry["qrcode_base64"])
	}
	if entry["webhook_url"] != redacted || entry["token"] != redacted {
		t.Fatalf("entry = %v", entry)
	}
}

func TestRedactorKeepsEmptySecrets(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	log, err := New(config.LoggingConfig{Format: "json"}, Options{Writer: &out})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	log.Info("No token yet", "token", "")
	if entry := decodeLine(t, &out); entry["token"] != "" {
		t.Fatalf("token = %v, want empty", entry["token"])
	}
}
