package media

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"time"

	"wagate/pkg/transport"
)

// Detector resolves the file type of a path, a URL or a declared MIME type.
type Detector struct {
	transport transport.Transport
	timeout   time.Duration
	log       *slog.Logger
}

func NewDetector(tr transport.Transport, timeout time.Duration, log *slog.Logger) *Detector {
	if timeout <= 0 {
		timeout = transport.DefaultTimeout
	}
	if log == nil {
		log = slog.Default()
	}

	return &Detector{transport: tr, timeout: timeout, log: log.With("component", "media.detector")}
}

// DetectPath classifies a local file by its extension.
func (d *Detector) DetectPath(name string) FileType {
	return Classify(TypeByExtension(path.Ext(localPath(name))), name)
}

// DetectURL classifies a remote file by the Content-Type of a HEAD request,
// falling back to the URL path extension.
func (d *Detector) DetectURL(ctx context.Context, location string) FileType {
	if !isRemote(location) {
		return d.DetectPath(location)
	}

	name := location
	if parsed, err := url.Parse(location); err == nil {
		name = parsed.Path
	}

	contentType := ""
	if d.transport != nil {
		resp, err := d.transport.Do(ctx, transport.Request{Method: http.MethodHead, URL: location, Timeout: d.timeout})
		if err != nil {
			d.log.Error("HEAD request failed", "url", location, "error", err)
		} else {
			contentType = resp.Header.Get("Content-Type")
		}
	}

	return Classify(contentType, name)
}

// DetectFetched classifies content already loaded from location: the path
// extension wins and the sniffed MIME type fills in when it is unknown.
func (d *Detector) DetectFetched(location string, sniffed string) FileType {
	name := location
	if isRemote(location) {
		if parsed, err := url.Parse(location); err == nil {
			name = parsed.Path
		}
	}

	detected := d.DetectPath(name)
	if detected.MIME == UnknownMIME && sniffed != "" {
		return Classify(sniffed, name)
	}

	return detected
}

// DetectMIME classifies an explicitly declared MIME type.
func (d *Detector) DetectMIME(mimeType string) FileType {
	return Classify(mimeType, "")
}
