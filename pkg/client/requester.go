package client

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"wagate/pkg/backend"
	"wagate/pkg/transport"
	"wagate/pkg/whatsapp"
)

// call is one REST request relative to the profile's endpoint scheme.
type call struct {
	method   string
	endpoint string
	// url bypasses the profile path builder.
	url     string
	json    any
	files   []transport.File
	query   map[string]string
	timeout time.Duration
}

type requester struct {
	creds     *whatsapp.Credentials
	profile   backend.Profile
	transport transport.Transport
	timeout   time.Duration
	log       *slog.Logger
}

func (r *requester) Backend() whatsapp.Backend {
	return r.profile.Backend()
}

func (r *requester) Profile() backend.Profile {
	return r.profile
}

func (r *requester) Credentials() *whatsapp.Credentials {
	return r.creds
}

func (r *requester) get(ctx context.Context, endpoint string) whatsapp.Result {
	return r.do(ctx, call{method: http.MethodGet, endpoint: endpoint})
}

func (r *requester) post(ctx context.Context, endpoint string, payload any) whatsapp.Result {
	if fields, isMap := payload.(map[string]any); payload == nil || (isMap && fields == nil) {
		payload = map[string]any{}
	}

	return r.do(ctx, call{method: http.MethodPost, endpoint: endpoint, json: payload})
}

func (r *requester) do(ctx context.Context, c call) whatsapp.Result {
	target := c.url
	if target == "" {
		target = r.profile.URL(r.creds, c.endpoint)
	}

	timeout := c.timeout
	if timeout <= 0 {
		timeout = r.timeout
	}

	resp, err := r.transport.Do(ctx, transport.Request{
		Method:  c.method,
		URL:     target,
		Headers: r.profile.AuthHeaders(r.creds),
		Query:   c.query,
		JSON:    c.json,
		Files:   c.files,
		Timeout: timeout,
	})
	if err != nil {
		category := whatsapp.CategoryFromError(err)
		r.log.Error("Gateway request failed", "method", c.method, "endpoint", endpointLabel(c), "category", category, "error", err)
		return whatsapp.Failure(category, whatsapp.DetailFromError(err))
	}

	result := r.interpret(resp)
	if !result.OK {
		r.log.Warn("Gateway request rejected", "method", c.method, "endpoint", endpointLabel(c), "status", resp.StatusCode, "category", result.Category)
	}

	return result
}

// interpret classifies a completed HTTP exchange.
func (r *requester) interpret(resp transport.Response) whatsapp.Result {
	body := bytes.TrimSpace(resp.Body)
	isJSON := len(body) > 0 && gjson.ValidBytes(body)
	if isJSON {
		body = r.fold(body)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		category := whatsapp.ErrorBackend
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			category = whatsapp.ErrorAuthRequired
		}

		result := whatsapp.Result{
			OK:         false,
			StatusCode: resp.StatusCode,
			Category:   category,
			Error:      fmt.Sprintf("%d %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
		}
		switch {
		case isJSON:
			result.Body = body
			if detail := bodyMessage(body); detail != "" {
				result.Error += ": " + detail
			}
		case len(body) > 0:
			result.Raw = resp.Body
		}
		return result
	}

	switch {
	case len(body) == 0:
		return whatsapp.Result{OK: true, StatusCode: resp.StatusCode, NoContent: true}
	case !isJSON:
		return whatsapp.Result{OK: true, StatusCode: resp.StatusCode, Raw: resp.Body}
	}

	result := whatsapp.Result{OK: true, StatusCode: resp.StatusCode, Body: body}
	if flag := gjson.GetBytes(body, "ok"); flag.Type == gjson.False {
		result.OK = false
		result.Category = whatsapp.ErrorBackend
		result.Error = bodyMessage(body)
		if result.Error == "" {
			result.Error = "request failed"
		}
	}

	return result
}

// fold copies a "success" flag to "ok" for backends that report success that way.
func (r *requester) fold(body []byte) []byte {
	if !r.profile.FoldsSuccess() {
		return body
	}

	success := gjson.GetBytes(body, "success")
	if !success.Exists() || !gjson.ParseBytes(body).IsObject() {
		return body
	}

	folded, err := sjson.SetBytes(body, "ok", truthy(success))
	if err != nil {
		return body
	}

	return folded
}

func bodyMessage(body []byte) string {
	for _, path := range []string{"error", "message"} {
		if value := gjson.GetBytes(body, path); value.Type == gjson.String && strings.TrimSpace(value.Str) != "" {
			return value.Str
		}
	}

	return ""
}

// truthy mirrors loose JSON truthiness: false, null, "" and 0 are false.
func truthy(value gjson.Result) bool {
	switch value.Type {
	case gjson.True, gjson.JSON:
		return true
	case gjson.String:
		return value.Str != ""
	case gjson.Number:
		return value.Num != 0
	default:
		return false
	}
}

// withBody merges values into an object body, creating one when the result has none.
func withBody(result whatsapp.Result, values map[string]any) whatsapp.Result {
	body := result.Body
	if len(body) == 0 || !gjson.ParseBytes(body).IsObject() {
		if len(body) > 0 {
			return result
		}
		body = []byte(`{}`)
	}

	for key, value := range values {
		updated, err := sjson.SetBytes(body, key, value)
		if err != nil {
			return result
		}
		body = updated
	}

	result.Body = body
	result.NoContent = false
	return result
}

func endpointLabel(c call) string {
	if c.endpoint != "" {
		return c.endpoint
	}

	return "absolute"
}

func encodeFailure(err error) whatsapp.Result {
	category := whatsapp.CategoryFromError(err)
	return whatsapp.Failure(category, "Failed to encode file")
}
