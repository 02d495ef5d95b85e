package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"wagate/pkg/bus"
	"wagate/pkg/client"
	"wagate/pkg/whatsapp"
)

const messagePreviewLimit = 240

// Sender drains the outbound queue of a bus and delivers each request through
// the gateway, reporting the outcome as bus events.
type Sender struct {
	gateway client.GatewayClient
	bus     *bus.MessageBus
	log     *slog.Logger
}

func NewSender(gateway client.GatewayClient, messages *bus.MessageBus, log *slog.Logger) (*Sender, error) {
	if gateway == nil {
		return nil, errors.New("gateway client is required")
	}
	if messages == nil {
		return nil, errors.New("message bus is required")
	}
	if log == nil {
		log = slog.Default()
	}

	return &Sender{
		gateway: gateway,
		bus:     messages,
		log:     log.With("component", "channel.sender"),
	}, nil
}

// Run sends queued messages until ctx is cancelled or the bus closes.
func (s *Sender) Run(ctx context.Context) error {
	s.log.Info("Outbound sender started")

	for {
		out, ok := s.bus.SubscribeOutbound(ctx)
		if !ok {
			return nil
		}

		result := s.Dispatch(ctx, out)
		event := bus.Event{
			Type:   bus.EventOutboundSent,
			ChatID: whatsapp.ChatKey(out.Phone, out.IsGroup),
		}
		if !result.OK {
			event.Type = bus.EventOutboundFailed
			event.Error = failureText(result)
			s.log.Error("Failed to send message", "chat_id", event.ChatID, "kind", out.Kind, "category", result.Category, "error", event.Error)
		} else {
			s.log.Info("Sent message", "chat_id", event.ChatID, "kind", out.Kind, "content", previewText(describe(out)))
		}

		s.bus.PublishEvent(ctx, event)
	}
}

// Dispatch performs one outbound request. Text sends are wrapped in a typing
// indicator when the backend offers one.
func (s *Sender) Dispatch(ctx context.Context, out bus.OutboundMessage) whatsapp.Result {
	if strings.TrimSpace(out.Phone) == "" {
		return whatsapp.Failure(whatsapp.ErrorMalformedPayload, "phone is required")
	}

	switch out.Kind {
	case bus.OutboundFile, bus.OutboundImage:
		if strings.TrimSpace(out.Location) == "" {
			return whatsapp.Failure(whatsapp.ErrorMalformedPayload, "file location is required")
		}
		file := client.FileMessage{
			Phone:   out.Phone,
			FileURL: out.Location,
			Caption: out.Text,
			IsGroup: out.IsGroup,
		}
		if out.Kind == bus.OutboundImage {
			return s.gateway.SendImage(ctx, file)
		}
		return s.gateway.SendFile(ctx, file)
	case bus.OutboundText, "":
		if strings.TrimSpace(out.Text) == "" {
			return whatsapp.Failure(whatsapp.ErrorMalformedPayload, "message text is required")
		}
		stopTyping := s.startTyping(ctx, out)
		defer stopTyping()

		return s.gateway.SendMessage(ctx, client.TextMessage{
			Phone:   out.Phone,
			Message: out.Text,
			IsGroup: out.IsGroup,
		})
	default:
		return whatsapp.Failure(whatsapp.ErrorMalformedPayload, fmt.Sprintf("unknown outbound kind %q", out.Kind))
	}
}

func (s *Sender) startTyping(ctx context.Context, out bus.OutboundMessage) func() {
	if result := s.gateway.SetTyping(ctx, out.Phone, out.IsGroup, true); !result.OK {
		s.log.Debug("Typing indicator unavailable", "category", result.Category)
		return func() {}
	}

	return func() {
		s.gateway.SetTyping(context.WithoutCancel(ctx), out.Phone, out.IsGroup, false)
	}
}

func failureText(result whatsapp.Result) string {
	if result.Error != "" {
		return result.Error
	}
	if message := result.Get("message").String(); message != "" {
		return message
	}
	if result.StatusCode != 0 {
		return fmt.Sprintf("gateway returned HTTP %d", result.StatusCode)
	}

	return "send failed"
}

func describe(out bus.OutboundMessage) string {
	if out.Location != "" {
		return strings.TrimSpace(out.Location + " " + out.Text)
	}

	return out.Text
}

// previewText returns a bounded log-safe preview of message text.
func previewText(text string) string {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) <= messagePreviewLimit {
		return trimmed
	}

	return trimmed[:messagePreviewLimit] + "..."
}
