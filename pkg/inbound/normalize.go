package inbound

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"wagate/pkg/whatsapp"
)

// Normalize is Decode without the reason: any failure yields false.
func Normalize(raw []byte, backend whatsapp.Backend) (Message, bool) {
	msg, err := Decode(raw, backend)
	if err != nil {
		return Message{}, false
	}

	return msg, true
}

// Decode maps one webhook payload to a Message. WWebJS envelopes are reduced to
// the canonical payload first. All failures are malformed_payload errors.
func Decode(raw []byte, backend whatsapp.Backend) (msg Message, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			msg, err = Message{}, malformed("decode panic: %v", recovered)
		}
	}()

	if len(raw) == 0 || !gjson.ValidBytes(raw) {
		return Message{}, malformed("payload is not valid JSON")
	}
	if !gjson.ParseBytes(raw).IsObject() {
		return Message{}, malformed("payload is not an object")
	}

	if backend == whatsapp.BackendWWebJS && IsEnvelope(raw) {
		reduced, reduceErr := ReduceEnvelope(raw)
		if reduceErr != nil {
			return Message{}, reduceErr
		}
		raw = reduced
	}

	return decodeCanonical(gjson.ParseBytes(raw))
}

func decodeCanonical(doc gjson.Result) (Message, error) {
	event := doc.Get("event").String()
	switch event {
	case EventMessage, EventPollResponse, EventAck:
	default:
		return Message{}, malformed("unrecognized event %q", event)
	}

	msg := Message{
		EventType: event,
		Type:      "unknown",
	}
	if dataType := doc.Get("dataType"); dataType.Type == gjson.String && dataType.Str != "" {
		msg.EventType = dataType.Str
	}
	if kind := doc.Get("type"); kind.Type == gjson.String && kind.Str != "" {
		msg.Type = kind.Str
	}

	var err error
	if msg.Author, err = contactField(doc, "author"); err != nil {
		return Message{}, err
	}
	if msg.Sender, err = contactField(doc, "from"); err != nil {
		return Message{}, err
	}
	if msg.Receiver, err = contactField(doc, "to"); err != nil {
		return Message{}, err
	}
	if msg.SenderName, err = stringField(doc, "notifyName"); err != nil {
		return Message{}, err
	}

	msg.FromMe = doc.Get("fromMe").Bool()
	if nested := doc.Get("fromMe"); nested.IsObject() {
		msg.FromMe = nested.Get("fromMe").Bool()
	}
	msg.IsGroup = doc.Get("isGroupMsg").Bool()
	msg.IsForwarded = doc.Get("isForwarded").Bool()

	id := doc.Get("id")
	switch {
	case id.IsObject():
		msg.FromMe = id.Get("fromMe").Bool()
		msg.MessageID = id.Get("id").String()
		if msg.MessageID == "" {
			msg.MessageID = id.Get("_serialized").String()
		}
	case id.Type == gjson.String || id.Type == gjson.Number:
		msg.MessageID = id.String()
	case id.Exists() && id.Type != gjson.Null:
		return Message{}, malformed("id has unexpected type %s", id.Type)
	}

	if quoted := doc.Get("quotedMsg"); quoted.Exists() {
		msg.QuotedMessage = json.RawMessage(quoted.Raw)
		msg.QuotedMessageID = serializedID(quoted.Get("id"))
	}
	if quotedID := serializedID(doc.Get("quotedMsgId")); quotedID != "" {
		msg.QuotedMessageID = quotedID
	}

	if ack := doc.Get("ack"); ack.Type == gjson.Number {
		value := int(ack.Int())
		msg.Ack = &value
	}
	for _, key := range []string{"t", "timestamp"} {
		if ts := doc.Get(key); ts.Type == gjson.Number {
			msg.Timestamp = ts.Int()
			break
		}
	}

	if msg.Author != "" && msg.Sender != "" && msg.Author != msg.Sender {
		msg.IsGroup = true
	}

	if err := dispatch(doc, &msg); err != nil {
		return Message{}, err
	}

	return msg, nil
}

// dispatch fills the content variant from the declared type.
func dispatch(doc gjson.Result, msg *Message) error {
	switch msg.Type {
	case "chat":
		body, err := stringField(doc, "body")
		if err != nil {
			return err
		}
		if body == "" {
			if body, err = stringField(doc, "content"); err != nil {
				return err
			}
		}
		msg.Kind = KindChat
		msg.Chat = &Chat{Body: body}

	case "image", "video", "document":
		media, err := mediaFields(doc, MediaKind(msg.Type))
		if err != nil {
			return err
		}
		if media.Caption, err = stringField(doc, "caption"); err != nil {
			return err
		}
		msg.Kind = KindMedia
		msg.Media = media

	case "audio", "ptt", "sticker":
		media, err := mediaFields(doc, MediaAudio)
		if err != nil {
			return err
		}
		msg.Kind = KindMedia
		msg.Media = media

	case "location":
		lat, lng := doc.Get("lat"), doc.Get("lng")
		if !lat.Exists() && !lng.Exists() {
			lat, lng = doc.Get("location.latitude"), doc.Get("location.longitude")
		}
		latitude, err := coordinate(lat, "lat")
		if err != nil {
			return err
		}
		longitude, err := coordinate(lng, "lng")
		if err != nil {
			return err
		}
		msg.Kind = KindLocation
		msg.Location = &Location{Latitude: latitude, Longitude: longitude}

	case "contacts", "vcard":
		payload := json.RawMessage(`{}`)
		if body := doc.Get("body"); body.Exists() {
			payload = json.RawMessage(body.Raw)
		}
		msg.Kind = KindContact
		msg.Contact = &Contact{Payload: payload}

	default:
		if msg.EventType != EventPollResponse {
			msg.Kind = KindOther
			return nil
		}

		sender, err := contactField(doc, "chatId")
		if err != nil {
			return err
		}
		msg.Kind = KindPoll
		msg.Type = string(KindPoll)
		msg.Sender = sender
		msg.Poll = &Poll{
			PollID:          serializedID(doc.Get("msgId")),
			SelectedOptions: selectedOptions(doc.Get("selectedOptions")),
		}
	}

	return nil
}

func mediaFields(doc gjson.Result, kind MediaKind) (*Media, error) {
	media := &Media{Kind: kind}

	var err error
	if media.Data, err = stringField(doc, "body"); err != nil {
		return nil, err
	}
	if media.Filename, err = stringField(doc, "filename"); err != nil {
		return nil, err
	}
	if media.MIMEType, err = stringField(doc, "mimetype"); err != nil {
		return nil, err
	}

	return media, nil
}

// stringField reads an optional string; any other JSON type is malformed.
func stringField(doc gjson.Result, key string) (string, error) {
	value := doc.Get(key)
	switch value.Type {
	case gjson.Null:
		return "", nil
	case gjson.String:
		return value.Str, nil
	default:
		return "", malformed("%s has unexpected type %s", key, value.Type)
	}
}

func contactField(doc gjson.Result, key string) (string, error) {
	value, err := stringField(doc, key)
	if err != nil {
		return "", err
	}

	return whatsapp.StripContactSuffix(value), nil
}

func coordinate(value gjson.Result, key string) (float64, error) {
	switch value.Type {
	case gjson.Null:
		return 0, nil
	case gjson.Number:
		return value.Num, nil
	case gjson.String:
		if strings.TrimSpace(value.Str) == "" {
			return 0, nil
		}
		parsed, err := strconv.ParseFloat(strings.TrimSpace(value.Str), 64)
		if err != nil {
			return 0, malformed("%s is not numeric", key)
		}
		return parsed, nil
	default:
		return 0, malformed("%s has unexpected type %s", key, value.Type)
	}
}

// serializedID accepts either a plain id or a {_serialized} wrapper.
func serializedID(value gjson.Result) string {
	switch {
	case value.IsObject():
		return value.Get("_serialized").String()
	case value.Type == gjson.String:
		return value.Str
	default:
		return ""
	}
}

func selectedOptions(value gjson.Result) []string {
	options := []string{}
	if value.Type == gjson.String && value.Str != "" {
		return append(options, value.Str)
	}

	value.ForEach(func(_, option gjson.Result) bool {
		switch {
		case option.Type == gjson.String:
			options = append(options, option.Str)
		case option.IsObject():
			if name := option.Get("name").String(); name != "" {
				options = append(options, name)
			}
		}
		return true
	})

	return options
}

func malformed(format string, args ...any) error {
	return whatsapp.NewError(whatsapp.ErrorMalformedPayload, fmt.Sprintf(format, args...))
}
