package client

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/url"
	"strconv"

	"wagate/pkg/media"
	"wagate/pkg/transport"
	"wagate/pkg/whatsapp"
)

// WPPConnect talks to a WPPConnect server: session-scoped paths and bearer tokens.
type WPPConnect struct {
	*requester
	fetcher *media.Fetcher
}

var _ GatewayClient = (*WPPConnect)(nil)

func (c *WPPConnect) Status(ctx context.Context) whatsapp.Result {
	return c.get(ctx, "status-session")
}

// ListSessions uses the secret-key scoped listing outside the session path.
func (c *WPPConnect) ListSessions(ctx context.Context) whatsapp.Result {
	if c.creds.SecretKey == "" {
		return whatsapp.Failure(whatsapp.ErrorAuthRequired, "secret_key required")
	}

	return c.do(ctx, call{
		method: http.MethodGet,
		url:    c.creds.APIURL + "/" + url.PathEscape(c.creds.SecretKey) + "/show-all-sessions",
	})
}

func (c *WPPConnect) CheckConnection(ctx context.Context) whatsapp.Result {
	return c.get(ctx, "check-connection-session")
}

// StartSession retries once when the first response carries no status.
func (c *WPPConnect) StartSession(ctx context.Context, webhook string, waitQRCode bool) whatsapp.Result {
	payload := map[string]any{"webhook": webhook, "waitQrCode": waitQRCode}

	result := c.post(ctx, "start-session", payload)
	if truthy(result.Get("status")) {
		return result
	}

	c.log.Debug("Start session returned no status, retrying")
	return c.post(ctx, "start-session", payload)
}

func (c *WPPConnect) CloseSession(ctx context.Context) whatsapp.Result {
	return c.post(ctx, "close-session", nil)
}

func (c *WPPConnect) LogoutSession(ctx context.Context) whatsapp.Result {
	return c.post(ctx, "logout-session", nil)
}

// QRCode fetches the QR image; a binary response is returned base64 encoded.
func (c *WPPConnect) QRCode(ctx context.Context) whatsapp.Result {
	return qrFromResult(c.get(ctx, "qrcode-session"))
}

func (c *WPPConnect) HostDevice(ctx context.Context) whatsapp.Result {
	return c.get(ctx, "host-device")
}

func (c *WPPConnect) ProfileExists(ctx context.Context) whatsapp.Result {
	return c.get(ctx, "profile-exists")
}

// CreateSession generates a session token with the server secret key.
func (c *WPPConnect) CreateSession(ctx context.Context) whatsapp.Result {
	if c.creds.SecretKey == "" {
		return whatsapp.Failure(whatsapp.ErrorAuthRequired, "secret_key required")
	}

	return c.do(ctx, call{
		method:  http.MethodPost,
		url:     c.creds.APIURL + "/" + url.PathEscape(c.creds.SessionID) + "/" + url.PathEscape(c.creds.SecretKey) + "/generate-token",
		timeout: TokenTimeout,
	})
}

func (c *WPPConnect) SendMessage(ctx context.Context, msg TextMessage) whatsapp.Result {
	payload := map[string]any{
		"phone":        msg.Phone,
		"isGroup":      msg.IsGroup,
		"isNewsletter": msg.IsNewsletter,
		"message":      msg.Message,
	}
	if len(msg.Options) > 0 {
		payload["options"] = msg.Options
	}
	if msg.MessageID != "" {
		payload["messageId"] = msg.MessageID
		return c.post(ctx, "send-reply", payload)
	}

	return c.post(ctx, "send-message", payload)
}

func (c *WPPConnect) SendReply(ctx context.Context, phone string, message string, messageID string, isGroup bool) whatsapp.Result {
	return c.post(ctx, "reply-message", map[string]any{
		"phone":     phone,
		"message":   message,
		"isGroup":   isGroup,
		"messageId": messageID,
	})
}

func (c *WPPConnect) SendLocation(ctx context.Context, loc LocationMessage) whatsapp.Result {
	return c.post(ctx, "send-location", map[string]any{
		"phone":     loc.Phone,
		"latitude":  loc.Latitude,
		"longitude": loc.Longitude,
		"title":     loc.Title,
		"isGroup":   loc.IsGroup,
	})
}

func (c *WPPConnect) SendContact(ctx context.Context, phone string, contactID string, isGroup bool) whatsapp.Result {
	return c.post(ctx, "send-contact", map[string]any{"phone": phone, "contactid": contactID, "isGroup": isGroup})
}

func (c *WPPConnect) SendImage(ctx context.Context, file FileMessage) whatsapp.Result {
	return c.sendFetched(ctx, "send-image", file)
}

func (c *WPPConnect) SendFile(ctx context.Context, file FileMessage) whatsapp.Result {
	return c.sendFetched(ctx, "send-file", file)
}

func (c *WPPConnect) sendFetched(ctx context.Context, endpoint string, file FileMessage) whatsapp.Result {
	encoded, err := c.fetcher.Base64(ctx, file.FileURL, true)
	if err != nil {
		return encodeFailure(err)
	}

	return c.post(ctx, endpoint, map[string]any{
		"phone":        file.Phone,
		"isGroup":      file.IsGroup,
		"isNewsletter": file.IsNewsletter,
		"isLid":        file.IsLid,
		"filename":     file.Filename,
		"caption":      file.Caption,
		"base64":       encoded,
	})
}

func (c *WPPConnect) SendFileBase64(ctx context.Context, file Base64File) whatsapp.Result {
	return c.post(ctx, "send-file-base64", map[string]any{
		"phone":        file.Phone,
		"base64":       file.Data,
		"filename":     file.Filename,
		"caption":      file.Caption,
		"isGroup":      file.IsGroup,
		"isNewsletter": file.IsNewsletter,
		"isLid":        file.IsLid,
	})
}

// SendVoice passes the audio location through; the server fetches it.
func (c *WPPConnect) SendVoice(ctx context.Context, phone string, fileURL string, isGroup bool, quotedMessageID string) whatsapp.Result {
	return c.post(ctx, "send-voice", map[string]any{
		"phone":           phone,
		"isGroup":         isGroup,
		"path":            fileURL,
		"quotedMessageId": quotedMessageID,
	})
}

func (c *WPPConnect) SendVoiceBase64(ctx context.Context, phone string, data string, isGroup bool) whatsapp.Result {
	return c.post(ctx, "send-voice-base64", map[string]any{"phone": phone, "isGroup": isGroup, "base64Ptt": data})
}

func (c *WPPConnect) SendPoll(ctx context.Context, poll PollMessage) whatsapp.Result {
	payload := map[string]any{
		"phone":   poll.Phone,
		"isGroup": poll.IsGroup,
		"name":    poll.Name,
		"choices": poll.Choices,
	}
	if poll.SelectableCount > 0 {
		payload["options"] = map[string]any{"selectableCount": poll.SelectableCount}
	}

	return c.post(ctx, "send-poll-message", payload)
}

func (c *WPPConnect) SendStatus(ctx context.Context, phone string, message string, isGroup bool, messageID string) whatsapp.Result {
	payload := map[string]any{"phone": phone, "isGroup": isGroup, "message": message}
	if messageID != "" {
		payload["messageId"] = messageID
	}

	return c.post(ctx, "send-status", payload)
}

func (c *WPPConnect) SendLinkPreview(ctx context.Context, phone string, link string, caption string, isGroup bool) whatsapp.Result {
	return c.post(ctx, "send-link-preview", map[string]any{"phone": phone, "isGroup": isGroup, "url": link, "caption": caption})
}

func (c *WPPConnect) SendMentioned(ctx context.Context, phone string, message string, mentioned []string, isGroup bool) whatsapp.Result {
	return c.post(ctx, "send-mentioned", map[string]any{
		"phone":     phone,
		"isGroup":   isGroup,
		"message":   message,
		"mentioned": mentioned,
	})
}

// SendButtons uses an endpoint WPPConnect marks as deprecated.
func (c *WPPConnect) SendButtons(ctx context.Context, phone string, text string, buttons []map[string]any, isGroup bool) whatsapp.Result {
	return c.post(ctx, "send-buttons", map[string]any{"phone": phone, "isGroup": isGroup, "text": text, "buttons": buttons})
}

func (c *WPPConnect) SendList(ctx context.Context, list ListMessage) whatsapp.Result {
	return c.post(ctx, "send-list-message", map[string]any{
		"phone":       list.Phone,
		"isGroup":     list.IsGroup,
		"description": list.Description,
		"buttonText":  list.ButtonText,
		"sections":    list.Sections,
	})
}

func (c *WPPConnect) SendOrder(ctx context.Context, phone string, items []map[string]any, isGroup bool, options map[string]any) whatsapp.Result {
	payload := map[string]any{"phone": phone, "isGroup": isGroup, "items": items}
	if len(options) > 0 {
		payload["options"] = options
	}

	return c.post(ctx, "send-order-message", payload)
}

func (c *WPPConnect) CreateGroup(ctx context.Context, name string, participants []string) whatsapp.Result {
	return c.post(ctx, "create-group", map[string]any{"name": name, "participants": participants})
}

// GroupMembers returns an empty result without a request when groupID is blank.
func (c *WPPConnect) GroupMembers(ctx context.Context, groupID string) whatsapp.Result {
	if groupID == "" {
		return emptyResult()
	}

	return c.get(ctx, "group-members/"+url.PathEscape(groupID))
}

func (c *WPPConnect) LeaveGroup(ctx context.Context, groupID string) whatsapp.Result {
	return c.post(ctx, "leave-group", map[string]any{"groupId": groupID})
}

func (c *WPPConnect) AddParticipant(ctx context.Context, groupID string, phone string) whatsapp.Result {
	return c.post(ctx, "add-participant-group", map[string]any{"groupId": groupID, "phone": phone})
}

func (c *WPPConnect) RemoveParticipant(ctx context.Context, groupID string, phone string) whatsapp.Result {
	return c.post(ctx, "remove-participant-group", map[string]any{"groupId": groupID, "phone": phone})
}

func (c *WPPConnect) PromoteParticipant(ctx context.Context, groupID string, phone string) whatsapp.Result {
	return c.post(ctx, "promote-participant-group", map[string]any{"groupId": groupID, "phone": phone})
}

func (c *WPPConnect) DemoteParticipant(ctx context.Context, groupID string, phone string) whatsapp.Result {
	return c.post(ctx, "demote-participant-group", map[string]any{"groupId": groupID, "phone": phone})
}

func (c *WPPConnect) SetGroupSubject(ctx context.Context, groupID string, title string) whatsapp.Result {
	return c.post(ctx, "group-subject", map[string]any{"groupId": groupID, "title": title})
}

func (c *WPPConnect) SetGroupDescription(ctx context.Context, groupID string, description string) whatsapp.Result {
	return c.post(ctx, "group-description", map[string]any{"groupId": groupID, "description": description})
}

func (c *WPPConnect) Contacts(ctx context.Context) whatsapp.Result {
	return c.get(ctx, "all-contacts")
}

func (c *WPPConnect) Contact(ctx context.Context, phone string) whatsapp.Result {
	return c.get(ctx, "contact/"+url.PathEscape(phone))
}

func (c *WPPConnect) BlockContact(ctx context.Context, phone string, isGroup bool) whatsapp.Result {
	return c.post(ctx, "block-contact", map[string]any{"phone": phone, "isGroup": isGroup})
}

func (c *WPPConnect) UnblockContact(ctx context.Context, phone string, isGroup bool) whatsapp.Result {
	return c.post(ctx, "unblock-contact", map[string]any{"phone": phone, "isGroup": isGroup})
}

func (c *WPPConnect) Blocklist(ctx context.Context) whatsapp.Result {
	return c.get(ctx, "blocklist")
}

// ListChats accepts filters such as count, onlyGroups or onlyWithUnreadMessage.
func (c *WPPConnect) ListChats(ctx context.Context, options map[string]any) whatsapp.Result {
	return c.post(ctx, "list-chats", options)
}

func (c *WPPConnect) ChatByID(ctx context.Context, phone string) whatsapp.Result {
	return c.get(ctx, "chat-by-id/"+url.PathEscape(phone))
}

func (c *WPPConnect) ClearChat(ctx context.Context, phone string, isGroup bool) whatsapp.Result {
	return c.post(ctx, "clear-chat", map[string]any{"phone": phone, "isGroup": isGroup})
}

func (c *WPPConnect) ArchiveChat(ctx context.Context, phone string, isGroup bool) whatsapp.Result {
	return c.post(ctx, "archive-chat", map[string]any{"phone": phone, "isGroup": isGroup, "value": true})
}

func (c *WPPConnect) UnarchiveChat(ctx context.Context, phone string, isGroup bool) whatsapp.Result {
	return c.post(ctx, "archive-chat", map[string]any{"phone": phone, "isGroup": isGroup, "value": false})
}

func (c *WPPConnect) SetTyping(ctx context.Context, phone string, isGroup bool, value bool) whatsapp.Result {
	return c.post(ctx, "typing", map[string]any{"phone": phone, "isGroup": isGroup, "value": value})
}

func (c *WPPConnect) SetRecording(ctx context.Context, phone string, isGroup bool, duration int, value bool) whatsapp.Result {
	return c.post(ctx, "recording", map[string]any{
		"phone":    phone,
		"isGroup":  isGroup,
		"duration": duration,
		"value":    value,
	})
}

func (c *WPPConnect) BatteryLevel(ctx context.Context) whatsapp.Result {
	return c.get(ctx, "battery-level")
}

func (c *WPPConnect) MarkUnread(ctx context.Context, chatID string) whatsapp.Result {
	return c.post(ctx, "mark-unread", map[string]any{"chatId": chatID})
}

func (c *WPPConnect) MarkSeen(ctx context.Context, chatID string) whatsapp.Result {
	return c.post(ctx, "send-seen", map[string]any{"chatId": chatID})
}

func (c *WPPConnect) ProfilePicture(ctx context.Context, phone string) whatsapp.Result {
	return c.do(ctx, call{method: http.MethodGet, endpoint: "profile-pic", query: map[string]string{"phone": phone}})
}

func (c *WPPConnect) MessageByID(ctx context.Context, messageID string) whatsapp.Result {
	return c.do(ctx, call{method: http.MethodGet, endpoint: "message-by-id", query: map[string]string{"messageId": messageID}})
}

func (c *WPPConnect) ForwardMessages(ctx context.Context, phone string, messageIDs []string, isGroup bool) whatsapp.Result {
	return c.post(ctx, "forward-messages", map[string]any{"phone": phone, "messageIds": messageIDs, "isGroup": isGroup})
}

func (c *WPPConnect) DeleteMessage(ctx context.Context, req DeleteRequest) whatsapp.Result {
	return c.post(ctx, "delete-message", map[string]any{
		"phone":               req.Phone,
		"messageId":           req.MessageID,
		"isGroup":             req.IsGroup,
		"onlyLocal":           req.OnlyLocal,
		"deleteMediaInDevice": req.DeleteMediaInDevice,
	})
}

func (c *WPPConnect) ChangeUsername(ctx context.Context, name string) whatsapp.Result {
	return c.post(ctx, "change-username", map[string]any{"name": name})
}

func (c *WPPConnect) SetProfileStatus(ctx context.Context, status string) whatsapp.Result {
	return c.post(ctx, "profile-status", map[string]any{"status": status})
}

// SetProfilePicture uploads the image as the multipart "file" part.
func (c *WPPConnect) SetProfilePicture(ctx context.Context, data []byte) whatsapp.Result {
	return c.do(ctx, call{
		method:   http.MethodPost,
		endpoint: "set-profile-pic",
		files:    []transport.File{{Field: "file", Name: "file", Data: data}},
	})
}

func (c *WPPConnect) AddProduct(ctx context.Context, product map[string]any) whatsapp.Result {
	return c.post(ctx, "add-product", product)
}

func (c *WPPConnect) EditProduct(ctx context.Context, productID string, options map[string]any) whatsapp.Result {
	return c.post(ctx, "edit-product", map[string]any{"id": productID, "options": options})
}

func (c *WPPConnect) DeleteProduct(ctx context.Context, productID string) whatsapp.Result {
	return c.post(ctx, "del-products", map[string]any{"id": productID})
}

func (c *WPPConnect) ChangeProductImage(ctx context.Context, productID string, base64Image string) whatsapp.Result {
	return c.post(ctx, "change-product-image", map[string]any{"id": productID, "base64": base64Image})
}

// Products filters by phone and quantity only when either is set.
func (c *WPPConnect) Products(ctx context.Context, phone string, qnt int) whatsapp.Result {
	var query map[string]string
	if phone != "" || qnt > 0 {
		query = map[string]string{}
		if phone != "" {
			query["phone"] = phone
		}
		if qnt > 0 {
			query["qnt"] = strconv.Itoa(qnt)
		}
	}

	return c.do(ctx, call{method: http.MethodGet, endpoint: "get-products", query: query})
}

func (c *WPPConnect) Health(ctx context.Context) whatsapp.Result {
	return c.get(ctx, "healthz")
}

func (c *WPPConnect) Metrics(ctx context.Context) whatsapp.Result {
	return c.get(ctx, "metrics")
}

// qrFromResult turns a binary QR response into {"ok","qrcode_base64","qrcode"}.
func qrFromResult(result whatsapp.Result) whatsapp.Result {
	if !result.OK || len(result.Raw) == 0 {
		return result
	}

	encoded := base64.StdEncoding.EncodeToString(result.Raw)
	result.Raw = nil
	return withBody(result, map[string]any{
		"ok":            true,
		"qrcode_base64": encoded,
		"qrcode":        encoded,
	})
}

func emptyResult() whatsapp.Result {
	return whatsapp.Result{OK: true, Body: []byte(`{}`)}
}
