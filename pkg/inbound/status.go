package inbound

import (
	"strings"

	"github.com/tidwall/gjson"

	"wagate/pkg/backend"
	"wagate/pkg/whatsapp"
)

// SessionUpdate is a connection-state change pushed through the webhook.
type SessionUpdate struct {
	State whatsapp.SessionState `json:"state"`
	Raw   string                `json:"raw"`
}

// wwebjs lifecycle dataType values that imply a state without a payload.
var wwebjsLifecycle = map[string]whatsapp.SessionState{
	"qr":            whatsapp.StateAwaitingQR,
	"authenticated": whatsapp.StateConnected,
	"ready":         whatsapp.StateConnected,
	"disconnected":  whatsapp.StateDisconnected,
	"auth_failure":  whatsapp.StateError,
}

// DecodeSessionUpdate recognizes status webhooks: wppconnect "status-find"
// events and wwebjs lifecycle envelopes.
func DecodeSessionUpdate(raw []byte, kind whatsapp.Backend) (SessionUpdate, bool) {
	if len(raw) == 0 || !gjson.ValidBytes(raw) {
		return SessionUpdate{}, false
	}
	doc := gjson.ParseBytes(raw)

	switch kind {
	case whatsapp.BackendWWebJS:
		dataType := doc.Get("dataType").String()
		if state, ok := wwebjsLifecycle[dataType]; ok {
			return SessionUpdate{State: state, Raw: strings.ToUpper(dataType)}, true
		}
		if dataType == "change_state" || dataType == "status" {
			raw := strings.ToUpper(strings.TrimSpace(first(doc.Get("data.state"), doc.Get("data.status")).String()))
			return SessionUpdate{State: backend.MapState(raw), Raw: raw}, true
		}
	default:
		if doc.Get("event").String() == "status-find" {
			raw := strings.ToUpper(strings.TrimSpace(doc.Get("status").String()))
			return SessionUpdate{State: backend.MapState(raw), Raw: raw}, true
		}
	}

	return SessionUpdate{}, false
}
