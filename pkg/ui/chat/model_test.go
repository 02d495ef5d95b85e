package chat

import (
	"context"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"wagate/pkg/bus"
	"wagate/pkg/inbound"
)

func TestParseInput(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		kind     bus.OutboundKind
		location string
		text     string
	}{
		{name: "text", input: "hello there", kind: bus.OutboundText, text: "hello there"},
		{name: "file", input: "/file ./report.pdf", kind: bus.OutboundFile, location: "./report.pdf"},
		{name: "image with caption", input: "/image https://x.test/cat.png look at this", kind: bus.OutboundImage, location: "https://x.test/cat.png", text: "look at this"},
		{name: "unknown slash command is text", input: "/shrug", kind: bus.OutboundText, text: "/shrug"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			out, err := parseInput(tt.input, "5511999", false)
			if err != nil {
				t.Fatalf("parseInput error: %v", err)
			}
			if out.Kind != tt.kind || out.Location != tt.location || out.Text != tt.text {
				t.Fatalf("parseInput = %+v", out)
			}
			if out.Phone != "5511999" {
				t.Fatalf("phone = %q", out.Phone)
			}
		})
	}
}

func TestParseInputRequiresFileLocation(t *testing.T) {
	t.Parallel()

	if _, err := parseInput("/file", "5511999", false); err == nil || !strings.Contains(err.Error(), "usage") {
		t.Fatalf("parseInput error = %v", err)
	}
}

func TestIsExitCommand(t *testing.T) {
	t.Parallel()

	for _, input := range []string{"/quit", "quit", " EXIT ", ":q"} {
		if !isExitCommand(input) {
			t.Fatalf("isExitCommand(%q) = false", input)
		}
	}
	if isExitCommand("quitting time") {
		t.Fatal("plain text should not quit")
	}
}

func TestMatchesPeer(t *testing.T) {
	t.Parallel()

	fromPeer := bus.Delivery{Message: inbound.Message{Sender: "5511999"}}
	fromOther := bus.Delivery{Message: inbound.Message{Sender: "5511000"}}
	echo := bus.Delivery{Message: inbound.Message{FromMe: true, Sender: "me", Receiver: "5511999"}}
	group := bus.Delivery{Message: inbound.Message{Sender: "1203-99@g.us", Author: "5511000", IsGroup: true}}

	if !matchesPeer(fromPeer, "5511999") || matchesPeer(fromOther, "5511999") {
		t.Fatal("contact filtering mismatch")
	}
	if !matchesPeer(echo, "5511999") {
		t.Fatal("own message to peer should be shown")
	}
	if !matchesPeer(group, "1203-99@g.us") {
		t.Fatal("group message should match group peer")
	}
	if !matchesPeer(fromOther, "") {
		t.Fatal("empty peer matches everything")
	}
}

func TestUpdateEnterQueuesOutbound(t *testing.T) {
	t.Parallel()

	messages := bus.NewMessageBus(4)
	defer messages.Close()

	m := newModel(context.Background(), Options{Peer: "5511999", Bus: messages}, nil)
	m.input.SetValue("/image ./cat.png")

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil {
		t.Fatal("expected a command after enter")
	}
	if m.pending != 1 || len(m.lines) != 1 || m.lines[0].role != roleYou {
		t.Fatalf("model after enter: pending=%d lines=%+v", m.pending, m.lines)
	}

	result := m.queue(bus.OutboundMessage{Kind: bus.OutboundText, Phone: "5511999", Text: "direct"})()
	if queued, ok := result.(queuedMsg); !ok || queued.err != nil {
		t.Fatalf("queue result = %#v", result)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	out, ok := messages.SubscribeOutbound(ctx)
	if !ok || out.Text != "direct" {
		t.Fatalf("outbound = %+v ok=%v", out, ok)
	}
}

func TestUpdateRendersPeerDeliveriesAndEvents(t *testing.T) {
	t.Parallel()

	m := newModel(context.Background(), Options{Peer: "5511999"}, nil)

	m.Update(deliveryMsg{ok: true, delivery: bus.Delivery{Message: inbound.Message{
		Kind:   inbound.KindChat,
		Sender: "5511999",
		Chat:   &inbound.Chat{Body: "oi"},
	}}})
	m.Update(deliveryMsg{ok: true, delivery: bus.Delivery{Message: inbound.Message{
		Kind:   inbound.KindChat,
		Sender: "5511000",
		Chat:   &inbound.Chat{Body: "not for this view"},
	}}})
	if m.received != 1 || len(m.lines) != 1 || m.lines[0].content != "oi" {
		t.Fatalf("lines = %+v", m.lines)
	}

	m.pending = 1
	m.Update(eventMsg{ok: true, event: bus.Event{Type: bus.EventOutboundSent, ChatID: "5511999"}})
	if m.pending != 0 || m.sent != 1 {
		t.Fatalf("pending=%d sent=%d", m.pending, m.sent)
	}

	m.Update(eventMsg{ok: true, event: bus.Event{Type: bus.EventSessionState, Payload: map[string]string{"state": "DISCONNECTED"}}})
	if m.state != "DISCONNECTED" {
		t.Fatalf("state = %q", m.state)
	}

	m.Update(eventMsg{ok: true, event: bus.Event{Type: bus.EventOutboundFailed, ChatID: "5511999", Error: "boom"}})
	if m.lastErr != "boom" {
		t.Fatalf("lastErr = %q", m.lastErr)
	}
	if !strings.Contains(m.View(), "last send failed") {
		t.Fatal("view should surface the failed send")
	}
}

func TestRenderDeliveryShowsGroupAuthor(t *testing.T) {
	t.Parallel()

	got := renderDelivery(bus.Delivery{Message: inbound.Message{
		Kind:       inbound.KindChat,
		IsGroup:    true,
		Author:     "5511000",
		SenderName: "Ana",
		Chat:       &inbound.Chat{Body: "bom dia"},
	}})
	if got != "Ana: bom dia" {
		t.Fatalf("renderDelivery = %q", got)
	}
}
