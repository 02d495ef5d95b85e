package qr

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"wagate/pkg/whatsapp"
)

func TestDecode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		value string
	}{
		{name: "plain", value: "aGVsbG8="},
		{name: "missing padding", value: "aGVsbG8"},
		{name: "data url", value: "data:image/png;base64,aGVsbG8="},
		{name: "wrapped", value: "  aGVs\nbG8=\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := Decode(tt.value)
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if string(got) != "hello" {
				t.Fatalf("Decode() = %q, want hello", got)
			}
		})
	}

	if _, err := Decode("data:image/png;base64,"); err == nil {
		t.Fatal("expected error for empty payload")
	}
	if _, err := Decode("%%%"); err == nil {
		t.Fatal("expected error for invalid base64")
	}
}

func TestSaveWritesDecodedImage(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "qr.png")
	abs, err := Save(path, "data:image/png;base64,aGVsbG8=")
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if !filepath.IsAbs(abs) {
		t.Fatalf("path %q is not absolute", abs)
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "hello" {
		t.Fatalf("content = %q", data)
	}
}

func TestSaveTextEncodesPNG(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "pair.png")
	if _, err := SaveText(path, "2@pairing-ref,key,adv"); err != nil {
		t.Fatalf("SaveText() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("\x89PNG")) {
		t.Fatalf("file is not a PNG: % x", data[:8])
	}
}

func TestRenderWritesBlocks(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	Render(&out, "2@pairing")
	if out.Len() == 0 {
		t.Fatal("Render() wrote nothing")
	}
}

func TestPresenter(t *testing.T) {
	t.Parallel()

	var opened []string
	var out bytes.Buffer
	presenter := Presenter{
		Out:    &out,
		Path:   filepath.Join(t.TempDir(), "qr.png"),
		Open:   true,
		opener: func(path string) error { opened = append(opened, path); return errors.New("no display") },
	}

	path, err := presenter.Present(whatsapp.Outcome{
		State:        whatsapp.StateAwaitingQR,
		QRCodeBase64: "aGVsbG8=",
		QRCodeText:   "2@pairing",
	})
	if err != nil {
		t.Fatalf("Present() error = %v", err)
	}
	if len(opened) != 1 || opened[0] != path {
		t.Fatalf("opened = %v, want [%s]", opened, path)
	}
	if out.Len() == 0 {
		t.Fatal("pairing text was not rendered")
	}

	if _, err := presenter.Present(whatsapp.Outcome{State: whatsapp.StateConnected}); !errors.Is(err, ErrNoQRCode) {
		t.Fatalf("error = %v, want ErrNoQRCode", err)
	}
}
