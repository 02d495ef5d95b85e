package client

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/url"

	"wagate/pkg/media"
	"wagate/pkg/whatsapp"
)

const (
	voiceMIME = "audio/ogg; codecs=opus"

	stateWindowNote = "wwebjs holds chat state for a fixed 25 seconds; duration is ignored"
)

// WWebJS talks to a whatsapp-web.js REST wrapper: flat paths suffixed with the
// session id and an x-api-key header.
type WWebJS struct {
	*requester
	fetcher  *media.Fetcher
	detector *media.Detector
}

var _ GatewayClient = (*WWebJS)(nil)

func (c *WWebJS) scoped(verb string) string {
	return verb + "/" + url.PathEscape(c.creds.SessionID)
}

func (c *WWebJS) unsupported(operation string) whatsapp.Result {
	return whatsapp.Unsupported(operation, c.Backend())
}

func (c *WWebJS) chatID(phone string, isGroup bool) string {
	return c.profile.FormatChatID(phone, isGroup)
}

func (c *WWebJS) sendMessage(ctx context.Context, payload map[string]any) whatsapp.Result {
	return c.post(ctx, c.scoped("client/sendMessage"), payload)
}

func (c *WWebJS) Status(ctx context.Context) whatsapp.Result {
	return c.get(ctx, c.scoped("session/status"))
}

func (c *WWebJS) ListSessions(ctx context.Context) whatsapp.Result {
	return c.get(ctx, "session/getSessions")
}

func (c *WWebJS) CheckConnection(ctx context.Context) whatsapp.Result {
	return c.get(ctx, c.scoped("client/getState"))
}

// StartSession ignores webhook and waitQRCode; the wrapper takes neither on start.
func (c *WWebJS) StartSession(ctx context.Context, _ string, _ bool) whatsapp.Result {
	return c.get(ctx, c.scoped("session/start"))
}

func (c *WWebJS) CloseSession(ctx context.Context) whatsapp.Result {
	return c.get(ctx, c.scoped("session/stop"))
}

func (c *WWebJS) LogoutSession(ctx context.Context) whatsapp.Result {
	return c.get(ctx, c.scoped("session/terminate"))
}

func (c *WWebJS) QRCode(ctx context.Context) whatsapp.Result {
	return qrFromResult(c.get(ctx, "session/qr/"+url.PathEscape(c.creds.SessionID)+"/image"))
}

func (c *WWebJS) HostDevice(ctx context.Context) whatsapp.Result {
	return c.get(ctx, c.scoped("client/getClassInfo"))
}

func (c *WWebJS) ProfileExists(context.Context) whatsapp.Result {
	return c.unsupported("profile_exists")
}

// CreateSession starts the session; the configured key is echoed back as the token.
func (c *WWebJS) CreateSession(ctx context.Context) whatsapp.Result {
	if c.creds.SecretKey == "" {
		return whatsapp.Failure(whatsapp.ErrorAuthRequired, "secret_key required")
	}

	result := c.get(ctx, c.scoped("session/start"))
	if !result.OK {
		return result
	}

	return withBody(result, map[string]any{
		"token":   c.creds.Token(),
		"session": c.creds.SessionID,
	})
}

func (c *WWebJS) SendMessage(ctx context.Context, msg TextMessage) whatsapp.Result {
	payload := map[string]any{
		"chatId":      c.chatID(msg.Phone, msg.IsGroup),
		"contentType": "string",
		"content":     msg.Message,
	}
	switch {
	case msg.MessageID != "":
		payload["options"] = map[string]any{"quotedMessageId": msg.MessageID}
	case len(msg.Options) > 0:
		payload["options"] = msg.Options
	}

	return c.sendMessage(ctx, payload)
}

func (c *WWebJS) SendReply(ctx context.Context, phone string, message string, messageID string, isGroup bool) whatsapp.Result {
	return c.SendMessage(ctx, TextMessage{Phone: phone, Message: message, IsGroup: isGroup, MessageID: messageID})
}

func (c *WWebJS) SendLocation(ctx context.Context, loc LocationMessage) whatsapp.Result {
	return c.sendMessage(ctx, map[string]any{
		"chatId":      c.chatID(loc.Phone, loc.IsGroup),
		"contentType": "Location",
		"content": map[string]any{
			"latitude":    loc.Latitude,
			"longitude":   loc.Longitude,
			"description": loc.Title,
		},
	})
}

func (c *WWebJS) SendContact(ctx context.Context, phone string, contactID string, isGroup bool) whatsapp.Result {
	return c.sendMessage(ctx, map[string]any{
		"chatId":      c.chatID(phone, isGroup),
		"contentType": "Contact",
		"content":     map[string]any{"contactId": c.chatID(contactID, false)},
	})
}

func (c *WWebJS) SendImage(ctx context.Context, file FileMessage) whatsapp.Result {
	return c.sendFetched(ctx, file, "image.jpg")
}

func (c *WWebJS) SendFile(ctx context.Context, file FileMessage) whatsapp.Result {
	return c.sendFetched(ctx, file, "file")
}

func (c *WWebJS) sendFetched(ctx context.Context, file FileMessage, defaultName string) whatsapp.Result {
	data, sniffed, err := c.fetcher.Load(ctx, file.FileURL)
	if err != nil {
		return encodeFailure(err)
	}

	mimeType := c.detector.DetectFetched(file.FileURL, sniffed).MIME

	return c.sendMedia(ctx, file.Phone, file.IsGroup, mimeType, base64.StdEncoding.EncodeToString(data), orDefault(file.Filename, defaultName), file.Caption)
}

// SendFileBase64 strips a data-URL prefix and derives the MIME type from the filename.
func (c *WWebJS) SendFileBase64(ctx context.Context, file Base64File) whatsapp.Result {
	_, payload := media.SplitDataURL(file.Data)
	mimeType := c.detector.DetectPath(file.Filename).MIME

	return c.sendMedia(ctx, file.Phone, file.IsGroup, mimeType, payload, orDefault(file.Filename, "file"), file.Caption)
}

func (c *WWebJS) sendMedia(ctx context.Context, phone string, isGroup bool, mimeType string, data string, filename string, caption string) whatsapp.Result {
	payload := map[string]any{
		"chatId":      c.chatID(phone, isGroup),
		"contentType": "MessageMedia",
		"content": map[string]any{
			"mimetype": mimeType,
			"data":     data,
			"filename": filename,
		},
	}
	if caption != "" {
		payload["options"] = map[string]any{"caption": caption}
	}

	return c.sendMessage(ctx, payload)
}

func (c *WWebJS) SendVoice(ctx context.Context, phone string, fileURL string, isGroup bool, quotedMessageID string) whatsapp.Result {
	options := map[string]any{"sendAudioAsVoice": true}
	if quotedMessageID != "" {
		options["quotedMessageId"] = quotedMessageID
	}

	return c.sendMessage(ctx, map[string]any{
		"chatId":      c.chatID(phone, isGroup),
		"contentType": "MessageMediaFromURL",
		"content":     fileURL,
		"options":     options,
	})
}

func (c *WWebJS) SendVoiceBase64(ctx context.Context, phone string, data string, isGroup bool) whatsapp.Result {
	_, payload := media.SplitDataURL(data)

	return c.sendMessage(ctx, map[string]any{
		"chatId":      c.chatID(phone, isGroup),
		"contentType": "MessageMedia",
		"content": map[string]any{
			"mimetype": voiceMIME,
			"data":     payload,
			"filename": "voice.ogg",
		},
		"options": map[string]any{"sendAudioAsVoice": true},
	})
}

func (c *WWebJS) SendPoll(ctx context.Context, poll PollMessage) whatsapp.Result {
	options := map[string]any{}
	if poll.SelectableCount > 0 {
		options["allowMultipleAnswers"] = poll.SelectableCount > 1
	}
	choices := poll.Choices
	if choices == nil {
		choices = []string{}
	}

	return c.sendMessage(ctx, map[string]any{
		"chatId":      c.chatID(poll.Phone, poll.IsGroup),
		"contentType": "Poll",
		"content": map[string]any{
			"pollName":    poll.Name,
			"pollOptions": choices,
			"options":     options,
		},
	})
}

func (c *WWebJS) SendStatus(context.Context, string, string, bool, string) whatsapp.Result {
	return c.unsupported("send_status")
}

// SendLinkPreview sends caption and URL as text; the wrapper renders the preview itself.
func (c *WWebJS) SendLinkPreview(ctx context.Context, phone string, link string, caption string, isGroup bool) whatsapp.Result {
	return c.SendMessage(ctx, TextMessage{Phone: phone, Message: caption + "\n" + link, IsGroup: isGroup})
}

func (c *WWebJS) SendMentioned(context.Context, string, string, []string, bool) whatsapp.Result {
	return c.unsupported("send_mentioned")
}

func (c *WWebJS) SendButtons(context.Context, string, string, []map[string]any, bool) whatsapp.Result {
	return c.unsupported("send_buttons")
}

func (c *WWebJS) SendList(context.Context, ListMessage) whatsapp.Result {
	return c.unsupported("send_list")
}

func (c *WWebJS) SendOrder(context.Context, string, []map[string]any, bool, map[string]any) whatsapp.Result {
	return c.unsupported("send_order")
}

func (c *WWebJS) CreateGroup(ctx context.Context, name string, participants []string) whatsapp.Result {
	formatted := make([]string, 0, len(participants))
	for _, participant := range participants {
		formatted = append(formatted, c.chatID(participant, false))
	}

	return c.post(ctx, c.scoped("client/createGroup"), map[string]any{"title": name, "participants": formatted})
}

func (c *WWebJS) GroupMembers(ctx context.Context, groupID string) whatsapp.Result {
	if groupID == "" {
		return emptyResult()
	}

	return c.groupCall(ctx, "group/getParticipants", groupID, nil)
}

func (c *WWebJS) LeaveGroup(ctx context.Context, groupID string) whatsapp.Result {
	return c.groupCall(ctx, "group/leaveGroup", groupID, nil)
}

func (c *WWebJS) AddParticipant(ctx context.Context, groupID string, phone string) whatsapp.Result {
	return c.participantCall(ctx, "group/addParticipant", groupID, phone)
}

func (c *WWebJS) RemoveParticipant(ctx context.Context, groupID string, phone string) whatsapp.Result {
	return c.participantCall(ctx, "group/removeParticipant", groupID, phone)
}

func (c *WWebJS) PromoteParticipant(ctx context.Context, groupID string, phone string) whatsapp.Result {
	return c.participantCall(ctx, "group/promoteParticipant", groupID, phone)
}

func (c *WWebJS) DemoteParticipant(ctx context.Context, groupID string, phone string) whatsapp.Result {
	return c.participantCall(ctx, "group/demoteParticipant", groupID, phone)
}

func (c *WWebJS) SetGroupSubject(ctx context.Context, groupID string, title string) whatsapp.Result {
	return c.groupCall(ctx, "group/setSubject", groupID, map[string]any{"title": title})
}

func (c *WWebJS) SetGroupDescription(ctx context.Context, groupID string, description string) whatsapp.Result {
	return c.groupCall(ctx, "group/setDescription", groupID, map[string]any{"description": description})
}

func (c *WWebJS) groupCall(ctx context.Context, verb string, groupID string, extra map[string]any) whatsapp.Result {
	payload := map[string]any{"groupId": c.chatID(groupID, true)}
	for key, value := range extra {
		payload[key] = value
	}

	return c.post(ctx, c.scoped(verb), payload)
}

func (c *WWebJS) participantCall(ctx context.Context, verb string, groupID string, phone string) whatsapp.Result {
	return c.groupCall(ctx, verb, groupID, map[string]any{"participantId": c.chatID(phone, false)})
}

func (c *WWebJS) Contacts(ctx context.Context) whatsapp.Result {
	return c.get(ctx, c.scoped("client/getContacts"))
}

func (c *WWebJS) Contact(ctx context.Context, phone string) whatsapp.Result {
	return c.post(ctx, c.scoped("client/getContactById"), map[string]any{"contactId": c.chatID(phone, false)})
}

func (c *WWebJS) BlockContact(ctx context.Context, phone string, isGroup bool) whatsapp.Result {
	return c.post(ctx, c.scoped("contact/block"), map[string]any{"contactId": c.chatID(phone, isGroup)})
}

func (c *WWebJS) UnblockContact(ctx context.Context, phone string, isGroup bool) whatsapp.Result {
	return c.post(ctx, c.scoped("contact/unblock"), map[string]any{"contactId": c.chatID(phone, isGroup)})
}

func (c *WWebJS) Blocklist(ctx context.Context) whatsapp.Result {
	return c.post(ctx, c.scoped("client/getBlockedContacts"), nil)
}

func (c *WWebJS) ListChats(ctx context.Context, options map[string]any) whatsapp.Result {
	payload := map[string]any{}
	if len(options) > 0 {
		payload["searchOptions"] = options
	}

	return c.post(ctx, c.scoped("client/getChats"), payload)
}

func (c *WWebJS) ChatByID(ctx context.Context, phone string) whatsapp.Result {
	return c.post(ctx, c.scoped("client/getChatById"), map[string]any{"chatId": c.chatID(phone, false)})
}

func (c *WWebJS) ClearChat(ctx context.Context, phone string, isGroup bool) whatsapp.Result {
	return c.post(ctx, c.scoped("chat/clearMessages"), map[string]any{"chatId": c.chatID(phone, isGroup)})
}

// ArchiveChat toggles; the wrapper has no explicit archive value.
func (c *WWebJS) ArchiveChat(ctx context.Context, phone string, isGroup bool) whatsapp.Result {
	return c.post(ctx, c.scoped("client/archiveChat"), map[string]any{"chatId": c.chatID(phone, isGroup)})
}

func (c *WWebJS) UnarchiveChat(ctx context.Context, phone string, isGroup bool) whatsapp.Result {
	return c.ArchiveChat(ctx, phone, isGroup)
}

func (c *WWebJS) SetTyping(ctx context.Context, phone string, isGroup bool, value bool) whatsapp.Result {
	if !value {
		return c.clearState(ctx, phone, isGroup)
	}

	result := c.post(ctx, c.scoped("chat/sendStateTyping"), map[string]any{"chatId": c.chatID(phone, isGroup)})
	return withStateNote(result)
}

func (c *WWebJS) SetRecording(ctx context.Context, phone string, isGroup bool, _ int, value bool) whatsapp.Result {
	if !value {
		return c.clearState(ctx, phone, isGroup)
	}

	result := c.post(ctx, c.scoped("chat/sendStateRecording"), map[string]any{"chatId": c.chatID(phone, isGroup)})
	return withStateNote(result)
}

// clearState stops a typing or recording indicator before its window ends.
func (c *WWebJS) clearState(ctx context.Context, phone string, isGroup bool) whatsapp.Result {
	return c.post(ctx, c.scoped("chat/clearState"), map[string]any{"chatId": c.chatID(phone, isGroup)})
}

func (c *WWebJS) BatteryLevel(ctx context.Context) whatsapp.Result {
	return c.get(ctx, c.scoped("device/getBatteryLevel"))
}

func (c *WWebJS) MarkUnread(ctx context.Context, chatID string) whatsapp.Result {
	return c.post(ctx, c.scoped("client/markChatUnread"), map[string]any{"chatId": chatID})
}

func (c *WWebJS) MarkSeen(ctx context.Context, chatID string) whatsapp.Result {
	return c.post(ctx, c.scoped("chat/sendSeen"), map[string]any{"chatId": chatID})
}

func (c *WWebJS) ProfilePicture(ctx context.Context, phone string) whatsapp.Result {
	return c.post(ctx, c.scoped("client/getProfilePicUrl"), map[string]any{"contactId": c.chatID(phone, false)})
}

func (c *WWebJS) MessageByID(ctx context.Context, messageID string) whatsapp.Result {
	return c.post(ctx, c.scoped("message/getMessageById"), map[string]any{"messageId": messageID})
}

func (c *WWebJS) ForwardMessages(ctx context.Context, phone string, messageIDs []string, isGroup bool) whatsapp.Result {
	return c.post(ctx, c.scoped("message/forward"), map[string]any{
		"chatId":     c.chatID(phone, isGroup),
		"messageIds": messageIDs,
	})
}

// DeleteMessage drops DeleteMediaInDevice, which the wrapper does not accept.
func (c *WWebJS) DeleteMessage(ctx context.Context, req DeleteRequest) whatsapp.Result {
	return c.post(ctx, c.scoped("message/delete"), map[string]any{
		"chatId":    c.chatID(req.Phone, req.IsGroup),
		"messageId": req.MessageID,
		"onlyLocal": req.OnlyLocal,
	})
}

func (c *WWebJS) ChangeUsername(ctx context.Context, name string) whatsapp.Result {
	return c.post(ctx, c.scoped("client/setDisplayName"), map[string]any{"displayName": name})
}

func (c *WWebJS) SetProfileStatus(ctx context.Context, status string) whatsapp.Result {
	return c.post(ctx, c.scoped("client/setStatus"), map[string]any{"status": status})
}

func (c *WWebJS) SetProfilePicture(ctx context.Context, data []byte) whatsapp.Result {
	return c.post(ctx, c.scoped("client/setProfilePicture"), map[string]any{"base64": base64.StdEncoding.EncodeToString(data)})
}

func (c *WWebJS) AddProduct(context.Context, map[string]any) whatsapp.Result {
	return c.unsupported("add_product")
}

func (c *WWebJS) EditProduct(context.Context, string, map[string]any) whatsapp.Result {
	return c.unsupported("edit_product")
}

func (c *WWebJS) DeleteProduct(context.Context, string) whatsapp.Result {
	return c.unsupported("delete_product")
}

func (c *WWebJS) ChangeProductImage(context.Context, string, string) whatsapp.Result {
	return c.unsupported("change_product_image")
}

func (c *WWebJS) Products(context.Context, string, int) whatsapp.Result {
	return c.unsupported("get_products")
}

func (c *WWebJS) Health(ctx context.Context) whatsapp.Result {
	return c.do(ctx, call{method: http.MethodGet, endpoint: "ping"})
}

func (c *WWebJS) Metrics(context.Context) whatsapp.Result {
	return c.unsupported("get_metrics")
}

func withStateNote(result whatsapp.Result) whatsapp.Result {
	if !result.OK {
		return result
	}

	return withBody(result, map[string]any{"capability_note": stateWindowNote})
}

func orDefault(value string, fallback string) string {
	if value == "" {
		return fallback
	}

	return value
}
