package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"wagate/pkg/client"
	"wagate/pkg/config"
	"wagate/pkg/whatsapp"
)

type fakeGateway struct {
	client.GatewayClient

	images []client.FileMessage
	files  []client.FileMessage
	fail   string
}

func (f *fakeGateway) SendImage(_ context.Context, file client.FileMessage) whatsapp.Result {
	f.images = append(f.images, file)
	return f.result(file)
}

func (f *fakeGateway) SendFile(_ context.Context, file client.FileMessage) whatsapp.Result {
	f.files = append(f.files, file)
	return f.result(file)
}

func (f *fakeGateway) result(file client.FileMessage) whatsapp.Result {
	if file.Filename == f.fail {
		return whatsapp.Failure(whatsapp.ErrorBackend, "rejected")
	}
	return whatsapp.Result{OK: true, StatusCode: 201, Body: []byte(`{"status":"success"}`)}
}

func TestRecipient(t *testing.T) {
	t.Parallel()

	tests := []struct {
		phone   string
		isGroup bool
		want    string
	}{
		{phone: "+55 (11) 99999-0000", want: "5511999990000"},
		{phone: "5511999990000@c.us", want: "5511999990000"},
		{phone: " 1203630-42@g.us ", isGroup: true, want: "1203630-42@g.us"},
	}

	for _, tt := range tests {
		if got := recipient(tt.phone, tt.isGroup); got != tt.want {
			t.Fatalf("recipient(%q, %v) = %q, want %q", tt.phone, tt.isGroup, got, tt.want)
		}
	}
}

func TestParseCoordinates(t *testing.T) {
	t.Parallel()

	lat, lng, err := parseCoordinates("-23.5505", " -46.6333 ")
	if err != nil {
		t.Fatalf("parseCoordinates error: %v", err)
	}
	if lat != -23.5505 || lng != -46.6333 {
		t.Fatalf("parseCoordinates = %v, %v", lat, lng)
	}

	for _, pair := range [][2]string{{"north", "1"}, {"91", "0"}, {"0", "-181"}} {
		if _, _, err := parseCoordinates(pair[0], pair[1]); err == nil {
			t.Fatalf("parseCoordinates(%q, %q) expected error", pair[0], pair[1])
		}
	}
}

func TestParseChoices(t *testing.T) {
	t.Parallel()

	choices, err := parseChoices([]string{" yes ", "", "no"})
	if err != nil {
		t.Fatalf("parseChoices error: %v", err)
	}
	if strings.Join(choices, ",") != "yes,no" {
		t.Fatalf("choices = %v", choices)
	}

	if _, err := parseChoices([]string{"yes", "yes"}); err == nil {
		t.Fatal("expected duplicate choice error")
	}
	if _, err := parseChoices([]string{"only", " "}); err == nil {
		t.Fatal("expected error for a single choice")
	}
}

func TestSendRecentRoutesByFileType(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	for _, name := range []string{"photo.png", "report.pdf", "old.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o600); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	old := time.Now().Add(-time.Hour)
	if err := os.Chtimes(filepath.Join(dir, "old.txt"), old, old); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	gateway := &fakeGateway{fail: "report.pdf"}
	a := &app{
		cfg:     &config.Config{Media: config.MediaConfig{RecentWindowSeconds: 60}},
		log:     slog.Default(),
		gateway: gateway,
	}

	var reported []string
	err := sendRecent(context.Background(), a, "5511999", false, dir, func(name string, _ whatsapp.Result) error {
		reported = append(reported, name)
		return nil
	})
	if err == nil || !strings.Contains(err.Error(), "1 of 2") {
		t.Fatalf("sendRecent error = %v", err)
	}
	if strings.Join(reported, ",") != "photo.png,report.pdf" {
		t.Fatalf("reported = %v", reported)
	}
	if len(gateway.images) != 1 || gateway.images[0].FileURL != filepath.Join(dir, "photo.png") {
		t.Fatalf("images = %+v", gateway.images)
	}
	if len(gateway.files) != 1 || gateway.files[0].Phone != "5511999" {
		t.Fatalf("files = %+v", gateway.files)
	}
}

func TestPrintResultReturnsCategorizedError(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	err := printResult(&out, whatsapp.Failure(whatsapp.ErrorAuthRequired, "token expired"))
	if err == nil || whatsapp.CategoryFromError(err) != whatsapp.ErrorAuthRequired {
		t.Fatalf("printResult error = %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(out.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out.String())
	}
	if decoded["ok"] != false || decoded["error"] != "token expired" {
		t.Fatalf("decoded = %v", decoded)
	}
}

func TestPresentOutcomeReplacesQRPayloadWithPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "qr.png")
	a := &app{cfg: &config.Config{QR: config.QRConfig{Path: path}}, log: slog.Default()}

	connected := whatsapp.Outcome{State: whatsapp.StateConnected, Message: "ok"}
	view, err := presentOutcome(&bytes.Buffer{}, a, connected)
	if err != nil || view.QRPath != "" || view.Message != "ok" {
		t.Fatalf("presentOutcome connected = %+v, %v", view, err)
	}

	var terminal bytes.Buffer
	view, err = presentOutcome(&terminal, a, whatsapp.Outcome{
		State:      whatsapp.StateAwaitingQR,
		QRCodeText: "2@pairing-ref",
	})
	if err != nil {
		t.Fatalf("presentOutcome error: %v", err)
	}
	if view.QRPath != path || view.QRCodeBase64 != "" {
		t.Fatalf("view = %+v", view)
	}
	if terminal.Len() == 0 {
		t.Fatal("expected the pairing text to be rendered")
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("QR image not written: %v", err)
	}
}

func TestLoadConfigAppliesFlagOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("WAGATE_ENV_FILE", filepath.Join(dir, ".env"))
	t.Setenv("WAGATE_CONFIG", "")
	os.Unsetenv("WAGATE_CONFIG")
	t.Setenv("WPP_API_URL", "http://env")
	t.Setenv("WPP_SESSION", "env")

	flagBackend, flagAPIURL, flagSession = "wwebjs", "http://flag/", "flag"
	t.Cleanup(func() { flagBackend, flagAPIURL, flagSession = "", "", "" })

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig error: %v", err)
	}
	if cfg.Gateway.BackendKind() != whatsapp.BackendWWebJS || cfg.Gateway.APIURL != "http://flag" || cfg.Gateway.Session != "flag" {
		t.Fatalf("gateway = %+v", cfg.Gateway)
	}

	flagBackend = "evolution"
	if _, err := loadConfig(); err == nil {
		t.Fatal("expected invalid backend flag to fail validation")
	}
}

func TestCommandTree(t *testing.T) {
	t.Parallel()

	for _, path := range [][]string{
		{"session", "status"},
		{"session", "connect"},
		{"session", "wait"},
		{"session", "logout"},
		{"token"},
		{"webhook"},
		{"chat"},
		{"send", "text"},
		{"send", "image"},
		{"send", "recent"},
	} {
		found, _, err := rootCmd.Find(path)
		if err != nil || found.Name() != path[len(path)-1] {
			t.Fatalf("command %v not registered: %v", path, err)
		}
	}
}
