package whatsapp

import (
	"encoding/json"
	"strings"
)

// Backend names one of the two REST conventions the adapter speaks.
type Backend string

const (
	BackendWPPConnect Backend = "wppconnect"
	BackendWWebJS     Backend = "wwebjs"
)

// ParseBackend accepts the backend name case-insensitively; blank means WPPConnect.
func ParseBackend(value string) (Backend, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "wpp", "wppconnect":
		return BackendWPPConnect, true
	case "wwebjs", "whatsapp-web.js", "wweb":
		return BackendWWebJS, true
	default:
		return "", false
	}
}

// SessionState is the canonical session lifecycle shared by both backends.
type SessionState string

const (
	StateUnknown      SessionState = "UNKNOWN"
	StateDisconnected SessionState = "DISCONNECTED"
	StateAwaitingQR   SessionState = "AWAITING_QR"
	StateConnected    SessionState = "CONNECTED"
	StateError        SessionState = "ERROR"
)

func (s SessionState) String() string {
	if s == "" {
		return string(StateUnknown)
	}

	return string(s)
}

// IsConnected reports whether the session is paired and usable.
func (s SessionState) IsConnected() bool {
	return s == StateConnected
}

// CanRegister reports whether auto-registration may start the session and fetch a QR.
func (s SessionState) CanRegister() bool {
	switch s {
	case StateAwaitingQR, StateDisconnected, StateUnknown:
		return true
	default:
		return false
	}
}

// Device describes the phone bound to a connected session.
type Device struct {
	Phone string          `json:"phone,omitempty"`
	Info  json.RawMessage `json:"info,omitempty"`
}

// Outcome is the result of establishing a session.
//
// QRCodeBase64 is set only for StateAwaitingQR and Device only for StateConnected.
type Outcome struct {
	State        SessionState    `json:"state"`
	Message      string          `json:"message"`
	Session      string          `json:"session,omitempty"`
	QRCodeBase64 string          `json:"qr_code_base64,omitempty"`
	QRCodeText   string          `json:"qr_code_text,omitempty"`
	Device       *Device         `json:"device,omitempty"`
	Token        string          `json:"token,omitempty"`
	ErrorDetail  json.RawMessage `json:"error_detail,omitempty"`
}
