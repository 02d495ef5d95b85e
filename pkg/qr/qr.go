package qr

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/mdp/qrterminal/v3"
	"rsc.io/qr"

	"wagate/pkg/media"
	"wagate/pkg/whatsapp"
)

// DefaultPath is where the QR image is written when no path is configured.
const DefaultPath = "qrcode.png"

var ErrNoQRCode = errors.New("outcome carries no QR code")

// Decode returns the image bytes of a base64 QR, tolerating a data-URL prefix,
// embedded whitespace and missing padding.
func Decode(value string) ([]byte, error) {
	_, payload := media.SplitDataURL(strings.TrimSpace(value))
	payload = strings.Join(strings.Fields(payload), "")
	if payload == "" {
		return nil, errors.New("decode qr code: empty payload")
	}
	if missing := len(payload) % 4; missing != 0 {
		payload += strings.Repeat("=", 4-missing)
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("decode qr code: %w", err)
	}

	return data, nil
}

// Save decodes a base64 QR image and writes it to path, returning the absolute path.
func Save(path string, value string) (string, error) {
	data, err := Decode(value)
	if err != nil {
		return "", err
	}

	return write(path, data)
}

// SaveText encodes pairing text as a PNG QR code.
func SaveText(path string, text string) (string, error) {
	code, err := qr.Encode(text, qr.L)
	if err != nil {
		return "", fmt.Errorf("encode qr code: %w", err)
	}

	return write(path, code.PNG())
}

// Render draws pairing text as a QR code with half-block characters.
func Render(w io.Writer, text string) {
	qrterminal.GenerateHalfBlock(text, qrterminal.L, w)
}

func write(path string, data []byte) (string, error) {
	if strings.TrimSpace(path) == "" {
		path = DefaultPath
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve qr path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", fmt.Errorf("create qr directory: %w", err)
	}
	if err := os.WriteFile(abs, data, 0o644); err != nil {
		return "", fmt.Errorf("write qr code: %w", err)
	}

	return abs, nil
}

// Presenter shows the QR of an AWAITING_QR outcome: terminal rendering when the
// pairing text is known, an image file, and optionally the OS viewer.
type Presenter struct {
	Out  io.Writer
	Path string
	Open bool
	Log  *slog.Logger

	opener func(string) error
}

// Present returns the path of the written image.
func (p Presenter) Present(outcome whatsapp.Outcome) (string, error) {
	if outcome.QRCodeBase64 == "" && outcome.QRCodeText == "" {
		return "", ErrNoQRCode
	}

	log := p.Log
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "qr.presenter")

	if outcome.QRCodeText != "" && p.Out != nil {
		Render(p.Out, outcome.QRCodeText)
	}

	var (
		path string
		err  error
	)
	if outcome.QRCodeBase64 != "" {
		path, err = Save(p.Path, outcome.QRCodeBase64)
	} else {
		path, err = SaveText(p.Path, outcome.QRCodeText)
	}
	if err != nil {
		return "", err
	}
	log.Info("QR code saved", "path", path)

	if p.Open {
		opener := p.opener
		if opener == nil {
			opener = Open
		}
		if err := opener(path); err != nil {
			log.Warn("Failed to open QR code", "path", path, "error", err)
		}
	}

	return path, nil
}
