package whatsapp

import (
	"encoding/base64"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Result is the uniform value every gateway operation returns. Callers branch on OK
// and Category instead of on returned errors.
type Result struct {
	OK         bool
	StatusCode int
	Category   string
	Error      string

	// Body holds the decoded JSON response, Raw a non-JSON one.
	Body      []byte
	Raw       []byte
	NoContent bool
}

// Failure builds a failed result of the given category.
func Failure(category string, detail string) Result {
	return Result{OK: false, Category: category, Error: detail}
}

// Unsupported reports an operation that has no equivalent on backend.
func Unsupported(operation string, backend Backend) Result {
	return Failure(ErrorUnsupported, fmt.Sprintf("%s not supported on %s", operation, backend))
}

// Get reads a gjson path from the JSON body.
func (r Result) Get(path string) gjson.Result {
	if len(r.Body) == 0 {
		return gjson.Result{}
	}

	return gjson.GetBytes(r.Body, path)
}

// Status returns the body's "status" field as text.
func (r Result) Status() string {
	return r.Get("status").String()
}

// Err converts a failed result into a categorized error.
func (r Result) Err() error {
	if r.OK {
		return nil
	}

	category := r.Category
	if category == "" {
		category = ErrorBackend
	}

	return NewError(category, r.Error)
}

// MarshalJSON renders the result with ok/error merged into the backend body.
func (r Result) MarshalJSON() ([]byte, error) {
	out := []byte(`{}`)
	if len(r.Body) > 0 {
		if gjson.ParseBytes(r.Body).IsObject() {
			out = append([]byte(nil), r.Body...)
		} else {
			var err error
			if out, err = sjson.SetRawBytes(out, "response", r.Body); err != nil {
				return nil, err
			}
		}
	}

	var err error
	if out, err = sjson.SetBytes(out, "ok", r.OK); err != nil {
		return nil, err
	}
	if r.Error != "" && !gjson.GetBytes(out, "error").Exists() {
		if out, err = sjson.SetBytes(out, "error", r.Error); err != nil {
			return nil, err
		}
	}
	if !r.OK && r.Category != "" {
		if out, err = sjson.SetBytes(out, "category", r.Category); err != nil {
			return nil, err
		}
	}
	if len(r.Raw) > 0 {
		if out, err = sjson.SetBytes(out, "raw", base64.StdEncoding.EncodeToString(r.Raw)); err != nil {
			return nil, err
		}
	}
	if r.NoContent {
		if out, err = sjson.SetBytes(out, "no_content", true); err != nil {
			return nil, err
		}
	}

	return out, nil
}
