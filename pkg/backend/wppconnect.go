package backend

import (
	"strings"

	"wagate/pkg/whatsapp"
)

type wppConnect struct{}

// WPPConnect addresses session-scoped paths ({api}/{session}/{endpoint}) with bearer auth.
func WPPConnect() Profile {
	return wppConnect{}
}

func (wppConnect) Backend() whatsapp.Backend {
	return whatsapp.BackendWPPConnect
}

func (wppConnect) URL(creds *whatsapp.Credentials, endpoint string) string {
	return creds.APIURL + "/" + creds.SessionID + "/" + strings.TrimLeft(endpoint, "/")
}

func (wppConnect) AuthHeaders(creds *whatsapp.Credentials) map[string]string {
	return map[string]string{"Authorization": "Bearer " + creds.Token()}
}

func (wppConnect) FoldsSuccess() bool {
	return false
}

func (wppConnect) RefreshesWebhook() bool {
	return true
}

func (wppConnect) NormalizeStatus(result whatsapp.Result) Status {
	if isAuthStatusCode(result.StatusCode) || mentionsUnauthorized(result.Error, result.Get("error").String(), result.Get("message").String()) {
		return Status{State: whatsapp.StateError, Message: "Unauthorized", AuthFailure: true}
	}
	if isTransportFailure(result) || (!result.OK && len(result.Body) == 0) {
		return failureStatus(result)
	}

	raw := strings.ToUpper(strings.TrimSpace(result.Get("status").String()))
	return Status{
		State:   MapState(raw),
		Raw:     raw,
		Message: result.Get("message").String(),
	}
}

func (wppConnect) FormatChatID(id string, isGroup bool) string {
	return whatsapp.FormatChatID(id, isGroup)
}

func (wppConnect) DeviceIdentity(body []byte) string {
	return DeviceIdentity(body)
}
