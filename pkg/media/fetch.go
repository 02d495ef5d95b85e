package media

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"wagate/pkg/transport"
)

const DefaultDownloadTimeout = 15 * time.Second

// Fetcher loads media from HTTP URLs, file:// URIs or local paths.
type Fetcher struct {
	transport transport.Transport
	timeout   time.Duration
	log       *slog.Logger
}

func NewFetcher(tr transport.Transport, timeout time.Duration, log *slog.Logger) *Fetcher {
	if timeout <= 0 {
		timeout = DefaultDownloadTimeout
	}
	if log == nil {
		log = slog.Default()
	}

	return &Fetcher{transport: tr, timeout: timeout, log: log.With("component", "media.fetcher")}
}

// Load returns the content at location and its sniffed MIME type.
func (f *Fetcher) Load(ctx context.Context, location string) ([]byte, string, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return nil, "", fmt.Errorf("media location is empty")
	}

	var (
		data []byte
		err  error
	)
	if isRemote(location) {
		data, err = f.download(ctx, location)
	} else {
		data, err = os.ReadFile(localPath(location))
		if err != nil {
			err = fmt.Errorf("read media file: %w", err)
		}
	}
	if err != nil {
		f.log.Error("Failed to fetch media", "location", location, "error", err)
		return nil, "", err
	}

	return data, BaseMIME(mimetype.Detect(data).String()), nil
}

// Base64 encodes the content at location, optionally as a data URL.
func (f *Fetcher) Base64(ctx context.Context, location string, withPrefix bool) (string, error) {
	data, mimeType, err := f.Load(ctx, location)
	if err != nil {
		return "", err
	}

	encoded := base64.StdEncoding.EncodeToString(data)
	if withPrefix {
		return DataURL(mimeType, encoded), nil
	}

	return encoded, nil
}

func (f *Fetcher) download(ctx context.Context, location string) ([]byte, error) {
	if f.transport == nil {
		return nil, fmt.Errorf("download %s: no transport configured", location)
	}

	resp, err := f.transport.Do(ctx, transport.Request{
		Method:  http.MethodGet,
		URL:     location,
		Timeout: f.timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", location, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("download %s: %d %s", location, resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	return resp.Body, nil
}

// DataURL builds a data:<mime>;base64,<payload> string.
func DataURL(mimeType string, encoded string) string {
	return "data:" + mimeType + ";base64," + encoded
}

// SplitDataURL removes a data-URL prefix, returning the declared MIME type and payload.
// Values without a prefix are returned unchanged with an empty MIME type.
func SplitDataURL(value string) (string, string) {
	idx := strings.Index(value, "base64,")
	if idx < 0 {
		return "", value
	}

	header := strings.TrimPrefix(value[:idx], "data:")
	header = strings.TrimSuffix(header, ";")

	return BaseMIME(header), value[idx+len("base64,"):]
}

// FileName returns the last path element of a URL or local path.
func FileName(location string) string {
	if isRemote(location) {
		if parsed, err := url.Parse(location); err == nil {
			return path.Base(parsed.Path)
		}
	}

	return filepath.Base(localPath(location))
}

func isRemote(location string) bool {
	lower := strings.ToLower(location)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

func localPath(location string) string {
	if strings.HasPrefix(strings.ToLower(location), "file://") {
		if parsed, err := url.Parse(location); err == nil && parsed.Path != "" {
			return filepath.FromSlash(parsed.Path)
		}
		return location[len("file://"):]
	}

	return location
}
