package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"wagate/pkg/whatsapp"
)

const DefaultTimeout = 10 * time.Second

// Request describes one gateway call. At most one of JSON, Body or Files is used.
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Query   map[string]string
	JSON    any
	Body    []byte
	Files   []File
	Timeout time.Duration
}

// File is one multipart form part.
type File struct {
	Field string
	Name  string
	Data  []byte
}

type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Transport issues a single request. Non-2xx responses are returned, not errors;
// errors are *whatsapp.Error of category transport_timeout or transport_error.
type Transport interface {
	Do(ctx context.Context, req Request) (Response, error)
}

// HTTP is the resty-backed Transport.
type HTTP struct {
	client  *resty.Client
	timeout time.Duration
}

func NewHTTP(timeout time.Duration, log *slog.Logger) *HTTP {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = slog.Default()
	}

	client := resty.New()
	client.SetRedirectPolicy(resty.FlexibleRedirectPolicy(15))
	client.SetLogger(restyLogger{log: log.With("component", "transport.http")})
	client.SetHeader("User-Agent", "wagate")

	return &HTTP{client: client, timeout: timeout}
}

func (t *HTTP) Do(ctx context.Context, req Request) (Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = t.timeout
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	r := t.client.R().SetContext(reqCtx)
	if len(req.Headers) > 0 {
		r.SetHeaders(req.Headers)
	}
	if len(req.Query) > 0 {
		r.SetQueryParams(req.Query)
	}

	switch {
	case len(req.Files) > 0:
		for _, file := range req.Files {
			r.SetFileReader(file.Field, file.Name, bytes.NewReader(file.Data))
		}
	case req.JSON != nil:
		r.SetHeader("Content-Type", "application/json")
		r.SetBody(req.JSON)
	case req.Body != nil:
		r.SetBody(req.Body)
	}

	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		method = http.MethodGet
	}

	resp, err := r.Execute(method, req.URL)
	if err != nil {
		return Response{}, classify(err, timeout)
	}

	return Response{
		StatusCode: resp.StatusCode(),
		Header:     resp.Header(),
		Body:       resp.Body(),
	}, nil
}

func classify(err error, timeout time.Duration) error {
	if errors.Is(err, context.DeadlineExceeded) || whatsapp.CategoryFromError(err) == whatsapp.ErrorTransportTimeout {
		return whatsapp.NewError(whatsapp.ErrorTransportTimeout, TimeoutMessage(timeout))
	}

	return whatsapp.NewError(whatsapp.ErrorTransport, err.Error())
}

// TimeoutMessage formats the failure text reported for an expired request.
func TimeoutMessage(timeout time.Duration) string {
	return fmt.Sprintf("Timeout after %s seconds", strconv.FormatFloat(timeout.Seconds(), 'f', -1, 64))
}

type restyLogger struct {
	log *slog.Logger
}

func (l restyLogger) Errorf(format string, v ...any) {
	l.log.Error(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l restyLogger) Warnf(format string, v ...any) {
	l.log.Warn(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l restyLogger) Debugf(format string, v ...any) {
	l.log.Debug(strings.TrimSpace(fmt.Sprintf(format, v...)))
}
