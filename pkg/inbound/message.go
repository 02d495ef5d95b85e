package inbound

import "encoding/json"

// Webhook event tags the normalizer accepts.
const (
	EventMessage      = "onmessage"
	EventPollResponse = "onpollresponse"
	EventAck          = "onack"
)

// Kind tags which content variant of a Message is set.
type Kind string

const (
	KindChat     Kind = "chat"
	KindMedia    Kind = "media"
	KindLocation Kind = "location"
	KindPoll     Kind = "poll"
	KindContact  Kind = "contact"
	// KindOther carries only the common fields, e.g. acks for unsupported types.
	KindOther Kind = "other"
)

// MediaKind narrows a media message.
type MediaKind string

const (
	MediaImage    MediaKind = "image"
	MediaVideo    MediaKind = "video"
	MediaDocument MediaKind = "document"
	MediaAudio    MediaKind = "audio"
)

// Message is one inbound webhook event in canonical form. Exactly one of Chat,
// Media, Location, Poll and Contact is set, matching Kind, unless Kind is KindOther.
type Message struct {
	Kind      Kind   `json:"kind"`
	Type      string `json:"type"`
	EventType string `json:"event_type"`

	MessageID       string          `json:"message_id"`
	Sender          string          `json:"sender"`
	Receiver        string          `json:"receiver,omitempty"`
	Author          string          `json:"author,omitempty"`
	FromMe          bool            `json:"from_me"`
	IsGroup         bool            `json:"is_group"`
	IsForwarded     bool            `json:"is_forwarded"`
	SenderName      string          `json:"sender_name"`
	QuotedMessageID string          `json:"quoted_message_id,omitempty"`
	QuotedMessage   json.RawMessage `json:"quoted_message,omitempty"`
	Ack             *int            `json:"ack,omitempty"`
	Timestamp       int64           `json:"timestamp,omitempty"`

	Chat     *Chat     `json:"chat,omitempty"`
	Media    *Media    `json:"media,omitempty"`
	Location *Location `json:"location,omitempty"`
	Poll     *Poll     `json:"poll,omitempty"`
	Contact  *Contact  `json:"contact,omitempty"`
}

type Chat struct {
	Body string `json:"body"`
}

// Media holds the payload as delivered by the gateway, usually base64 or a URL.
type Media struct {
	Kind     MediaKind `json:"kind"`
	MIMEType string    `json:"mime_type"`
	Filename string    `json:"filename"`
	Caption  string    `json:"caption,omitempty"`
	Data     string    `json:"data,omitempty"`
}

type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type Poll struct {
	PollID          string   `json:"poll_id"`
	SelectedOptions []string `json:"selected_options"`
}

// Contact is kept opaque; gateways send either a vcard string or an object.
type Contact struct {
	Payload json.RawMessage `json:"payload"`
}

// Text returns a one-line rendering for logs and terminal views.
func (m Message) Text() string {
	switch m.Kind {
	case KindChat:
		return m.Chat.Body
	case KindMedia:
		if m.Media.Caption != "" {
			return "[" + string(m.Media.Kind) + "] " + m.Media.Caption
		}
		if m.Media.Filename != "" {
			return "[" + string(m.Media.Kind) + "] " + m.Media.Filename
		}
		return "[" + string(m.Media.Kind) + "]"
	case KindLocation:
		return "[location]"
	case KindPoll:
		return "[poll vote]"
	case KindContact:
		return "[contact]"
	default:
		return "[" + m.Type + "]"
	}
}
