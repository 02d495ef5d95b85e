package backend

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"wagate/pkg/whatsapp"
)

// Status is a raw status response reduced to the canonical vocabulary.
type Status struct {
	State   whatsapp.SessionState
	Raw     string
	Message string

	// Recreate marks a session the backend no longer knows or has closed.
	Recreate bool
	// AuthFailure marks a response that asks for new credentials.
	AuthFailure bool
}

// Profile describes the REST conventions of one backend flavor.
type Profile interface {
	Backend() whatsapp.Backend
	// URL returns the absolute URL of a session endpoint.
	URL(creds *whatsapp.Credentials, endpoint string) string
	AuthHeaders(creds *whatsapp.Credentials) map[string]string
	// FoldsSuccess reports whether a body "success" flag must be copied to "ok".
	FoldsSuccess() bool
	// RefreshesWebhook reports whether start-session accepts a webhook target.
	RefreshesWebhook() bool
	NormalizeStatus(result whatsapp.Result) Status
	FormatChatID(id string, isGroup bool) string
	DeviceIdentity(body []byte) string
}

// For returns the profile for backend.
func For(backend whatsapp.Backend) (Profile, error) {
	switch backend {
	case whatsapp.BackendWPPConnect:
		return WPPConnect(), nil
	case whatsapp.BackendWWebJS:
		return WWebJS(), nil
	default:
		return nil, fmt.Errorf("unsupported backend %q", backend)
	}
}

// MapState maps a raw status word from either vocabulary to a canonical state.
// A blank value means the session has not been started and maps to DISCONNECTED.
func MapState(raw string) whatsapp.SessionState {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "CONNECTED", "INCHAT", "ISLOGGED":
		return whatsapp.StateConnected
	case "QRCODE", "PAIRING", "OPENING":
		return whatsapp.StateAwaitingQR
	case "", "DISCONNECTED", "CLOSED", "UNPAIRED", "UNPAIRED_IDLE", "NOTLOGGED", "BROWSERCLOSE":
		return whatsapp.StateDisconnected
	case "ERROR", "CONFLICT", "TOS_BLOCK", "SMB_TOS_BLOCK", "PROXYBLOCK", "DEPRECATED_VERSION":
		return whatsapp.StateError
	default:
		return whatsapp.StateUnknown
	}
}

// DeviceIdentity extracts the bound phone from a device-info body. Candidates are
// tried in order and the first non-empty one wins.
func DeviceIdentity(body []byte) string {
	if len(body) == 0 || !gjson.ValidBytes(body) {
		return ""
	}

	doc := gjson.ParseBytes(body)
	if wid := doc.Get("wid"); wid.IsObject() {
		if user := strings.TrimSpace(wid.Get("user").String()); user != "" {
			return user
		}
	} else if wid.Type == gjson.String {
		if value := strings.TrimSpace(wid.String()); value != "" {
			return value
		}
	}

	if phone := doc.Get("phone"); phone.Type == gjson.String || phone.Type == gjson.Number {
		if value := strings.TrimSpace(phone.String()); value != "" {
			return value
		}
	}

	if user := strings.TrimSpace(doc.Get("me.user").String()); user != "" {
		return user
	}

	return strings.TrimSpace(whatsapp.StripContactSuffix(doc.Get("response.phoneNumber").String()))
}

func isTransportFailure(result whatsapp.Result) bool {
	if result.OK {
		return false
	}

	return result.Category == whatsapp.ErrorTransportTimeout || result.Category == whatsapp.ErrorTransport
}

func mentionsUnauthorized(values ...string) bool {
	for _, value := range values {
		if strings.Contains(value, "Unauthorized") {
			return true
		}
	}

	return false
}

func isAuthStatusCode(code int) bool {
	return code == http.StatusUnauthorized || code == http.StatusForbidden
}

func failureStatus(result whatsapp.Result) Status {
	return Status{State: whatsapp.StateError, Message: result.Error}
}
