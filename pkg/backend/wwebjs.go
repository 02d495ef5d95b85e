package backend

import (
	"strings"

	"github.com/tidwall/gjson"

	"wagate/pkg/whatsapp"
)

type wwebJS struct{}

// WWebJS addresses flat paths ({api}/{verb}/{session}) authenticated with x-api-key.
func WWebJS() Profile {
	return wwebJS{}
}

func (wwebJS) Backend() whatsapp.Backend {
	return whatsapp.BackendWWebJS
}

func (wwebJS) URL(creds *whatsapp.Credentials, endpoint string) string {
	return creds.APIURL + "/" + strings.TrimLeft(endpoint, "/")
}

// AuthHeaders sends the secret key as the API key, falling back to the token.
func (wwebJS) AuthHeaders(creds *whatsapp.Credentials) map[string]string {
	key := creds.SecretKey
	if key == "" {
		key = creds.Token()
	}

	return map[string]string{"x-api-key": key}
}

func (wwebJS) FoldsSuccess() bool {
	return true
}

func (wwebJS) RefreshesWebhook() bool {
	return false
}

func (wwebJS) NormalizeStatus(result whatsapp.Result) Status {
	message := strings.TrimSpace(result.Get("message").String())
	state := strings.ToUpper(strings.TrimSpace(result.Get("state").String()))

	switch strings.ToLower(message) {
	case "session_not_found":
		return Status{State: whatsapp.StateDisconnected, Message: message, Recreate: true}
	case "session closed", "browser tab closed":
		return Status{State: whatsapp.StateDisconnected, Message: message, Recreate: true}
	case "session_not_connected":
		if state == "" {
			return Status{State: whatsapp.StateDisconnected, Raw: "DISCONNECTED", Message: message}
		}
		return Status{State: MapState(state), Raw: state, Message: message}
	case "session_connected":
		return Status{State: whatsapp.StateConnected, Raw: "CONNECTED", Message: message}
	}

	if isTransportFailure(result) {
		return failureStatus(result)
	}
	if isAuthStatusCode(result.StatusCode) || mentionsUnauthorized(result.Error, result.Get("error").String()) || result.Get("error").Exists() {
		return Status{State: whatsapp.StateError, Message: firstNonEmpty(result.Get("error").String(), result.Error), AuthFailure: true}
	}
	if state != "" {
		return Status{State: MapState(state), Raw: state, Message: message}
	}

	return Status{State: whatsapp.StateUnknown, Message: message}
}

func (wwebJS) FormatChatID(id string, isGroup bool) string {
	return whatsapp.FormatChatID(id, isGroup)
}

// DeviceIdentity reads the session info wrapper returned by client/getClassInfo.
func (wwebJS) DeviceIdentity(body []byte) string {
	if info := gjson.GetBytes(body, "sessionInfo"); info.IsObject() {
		if phone := DeviceIdentity([]byte(info.Raw)); phone != "" {
			return phone
		}
	}

	return DeviceIdentity(body)
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}

	return ""
}
