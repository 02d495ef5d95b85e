package bus

import (
	"time"

	"wagate/pkg/inbound"
	"wagate/pkg/whatsapp"
)

// Delivery is one normalized webhook message handed from the listener to consumers.
type Delivery struct {
	ID         string           `json:"id"`
	Backend    whatsapp.Backend `json:"backend"`
	Session    string           `json:"session,omitempty"`
	ReceivedAt time.Time        `json:"received_at"`
	Message    inbound.Message  `json:"message"`
}

// OutboundKind selects how an outbound message is sent.
type OutboundKind string

const (
	OutboundText  OutboundKind = "text"
	OutboundFile  OutboundKind = "file"
	OutboundImage OutboundKind = "image"
)

// OutboundMessage is a send request queued by an interactive surface.
type OutboundMessage struct {
	Kind    OutboundKind `json:"kind"`
	Phone   string       `json:"phone"`
	IsGroup bool         `json:"is_group,omitempty"`
	Text    string       `json:"text,omitempty"`
	// Location is a URL, file:// URI or local path for file and image sends.
	Location string `json:"location,omitempty"`
}
