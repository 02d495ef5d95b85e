package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"net"
)

const (
	ErrorTransportTimeout = "transport_timeout"
	ErrorTransport        = "transport_error"
	ErrorBackend          = "backend_error"
	ErrorAuthRequired     = "auth_required"
	ErrorUnsupported      = "unsupported"
	ErrorMalformedPayload = "malformed_payload"
)

// Error represents a stable, categorized gateway failure.
type Error struct {
	Category string
	Detail   string
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Detail == "" {
		return e.Category
	}

	return fmt.Sprintf("%s: %s", e.Category, e.Detail)
}

// NewError creates a categorized gateway error.
func NewError(category string, detail string) error {
	return &Error{Category: category, Detail: detail}
}

// CategoryFromError returns the stable category for an error when available.
func CategoryFromError(err error) string {
	if err == nil {
		return ""
	}

	var categorized *Error
	if errors.As(err, &categorized) {
		return categorized.Category
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorTransportTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrorTransportTimeout
	}

	return ErrorTransport
}

// IsTimeout reports whether err is the one failure class callers may retry.
func IsTimeout(err error) bool {
	return CategoryFromError(err) == ErrorTransportTimeout
}

// DetailFromError returns the detail of a categorized error, or its text otherwise.
func DetailFromError(err error) string {
	if err == nil {
		return ""
	}

	var categorized *Error
	if errors.As(err, &categorized) {
		return categorized.Detail
	}

	return err.Error()
}
