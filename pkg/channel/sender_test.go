package channel

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"wagate/pkg/bus"
	"wagate/pkg/client"
	"wagate/pkg/whatsapp"
)

type fakeGateway struct {
	client.GatewayClient

	mu      sync.Mutex
	calls   []string
	texts   []client.TextMessage
	files   []client.FileMessage
	typing  whatsapp.Result
	sendErr bool
}

func (f *fakeGateway) Backend() whatsapp.Backend { return whatsapp.BackendWPPConnect }

func (f *fakeGateway) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeGateway) SetTyping(_ context.Context, _ string, _ bool, value bool) whatsapp.Result {
	if value {
		f.record("typing:on")
	} else {
		f.record("typing:off")
	}
	return f.typing
}

func (f *fakeGateway) SendMessage(_ context.Context, msg client.TextMessage) whatsapp.Result {
	f.record("text")
	f.mu.Lock()
	f.texts = append(f.texts, msg)
	f.mu.Unlock()
	if f.sendErr {
		return whatsapp.Result{OK: false, StatusCode: 500, Category: whatsapp.ErrorBackend, Body: []byte(`{"message":"session closed"}`)}
	}
	return whatsapp.Result{OK: true, StatusCode: 201}
}

func (f *fakeGateway) SendFile(_ context.Context, file client.FileMessage) whatsapp.Result {
	f.record("file")
	f.mu.Lock()
	f.files = append(f.files, file)
	f.mu.Unlock()
	return whatsapp.Result{OK: true}
}

func (f *fakeGateway) SendImage(_ context.Context, file client.FileMessage) whatsapp.Result {
	f.record("image")
	f.mu.Lock()
	f.files = append(f.files, file)
	f.mu.Unlock()
	return whatsapp.Result{OK: true}
}

func newSender(t *testing.T, gateway *fakeGateway) (*Sender, *bus.MessageBus) {
	t.Helper()

	messages := bus.NewMessageBus(4)
	t.Cleanup(messages.Close)

	sender, err := NewSender(gateway, messages, nil)
	if err != nil {
		t.Fatalf("NewSender error: %v", err)
	}
	return sender, messages
}

func TestDispatchTextWrapsTyping(t *testing.T) {
	t.Parallel()

	gateway := &fakeGateway{typing: whatsapp.Result{OK: true}}
	sender, _ := newSender(t, gateway)

	result := sender.Dispatch(context.Background(), bus.OutboundMessage{Kind: bus.OutboundText, Phone: "5511999", Text: "hi"})
	if !result.OK {
		t.Fatalf("Dispatch result = %+v", result)
	}

	want := "typing:on,text,typing:off"
	if got := strings.Join(gateway.calls, ","); got != want {
		t.Fatalf("calls = %s, want %s", got, want)
	}
	if gateway.texts[0].Phone != "5511999" || gateway.texts[0].Message != "hi" {
		t.Fatalf("text = %+v", gateway.texts[0])
	}
}

func TestDispatchSkipsTypingWhenUnsupported(t *testing.T) {
	t.Parallel()

	gateway := &fakeGateway{typing: whatsapp.Unsupported("set_typing", whatsapp.BackendWWebJS)}
	sender, _ := newSender(t, gateway)

	sender.Dispatch(context.Background(), bus.OutboundMessage{Phone: "5511999", Text: "hi"})
	if got := strings.Join(gateway.calls, ","); got != "typing:on,text" {
		t.Fatalf("calls = %s", got)
	}
}

func TestDispatchWWebJSClearsTypingAfterSend(t *testing.T) {
	t.Parallel()

	var (
		mu    sync.Mutex
		paths []string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.URL.Path)
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	t.Cleanup(server.Close)

	gateway, err := client.New(client.Options{
		Backend: whatsapp.BackendWWebJS,
		APIURL:  server.URL,
		Session: "s",
		Token:   "tok",
		Timeout: time.Second,
	}, nil)
	if err != nil {
		t.Fatalf("client.New error: %v", err)
	}

	messages := bus.NewMessageBus(4)
	t.Cleanup(messages.Close)
	sender, err := NewSender(gateway, messages, nil)
	if err != nil {
		t.Fatalf("NewSender error: %v", err)
	}

	result := sender.Dispatch(context.Background(), bus.OutboundMessage{Kind: bus.OutboundText, Phone: "5511999", Text: "hi"})
	if !result.OK {
		t.Fatalf("Dispatch result = %+v", result)
	}

	mu.Lock()
	defer mu.Unlock()
	want := "/chat/sendStateTyping/s,/client/sendMessage/s,/chat/clearState/s"
	if got := strings.Join(paths, ","); got != want {
		t.Fatalf("paths = %s, want %s", got, want)
	}
}

func TestDispatchFilesAndImages(t *testing.T) {
	t.Parallel()

	gateway := &fakeGateway{}
	sender, _ := newSender(t, gateway)

	sender.Dispatch(context.Background(), bus.OutboundMessage{Kind: bus.OutboundFile, Phone: "g1", IsGroup: true, Location: "./a.pdf"})
	sender.Dispatch(context.Background(), bus.OutboundMessage{Kind: bus.OutboundImage, Phone: "g1", IsGroup: true, Location: "./b.png", Text: "cap"})

	if got := strings.Join(gateway.calls, ","); got != "file,image" {
		t.Fatalf("calls = %s", got)
	}
	if !gateway.files[0].IsGroup || gateway.files[1].Caption != "cap" || gateway.files[1].FileURL != "./b.png" {
		t.Fatalf("files = %+v", gateway.files)
	}
}

func TestDispatchRejectsIncompleteRequests(t *testing.T) {
	t.Parallel()

	sender, _ := newSender(t, &fakeGateway{})
	tests := []bus.OutboundMessage{
		{Kind: bus.OutboundText, Text: "no phone"},
		{Kind: bus.OutboundText, Phone: "1"},
		{Kind: bus.OutboundFile, Phone: "1"},
		{Kind: "sticker", Phone: "1"},
	}

	for _, out := range tests {
		result := sender.Dispatch(context.Background(), out)
		if result.OK || result.Category != whatsapp.ErrorMalformedPayload {
			t.Fatalf("Dispatch(%+v) = %+v", out, result)
		}
	}
}

func TestRunPublishesOutcomeEvents(t *testing.T) {
	t.Parallel()

	gateway := &fakeGateway{sendErr: true}
	sender, messages := newSender(t, gateway)

	events, unsubscribe := messages.SubscribeEvents(context.Background(), 4)
	defer unsubscribe()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sender.Run(ctx) }()

	if !messages.PublishOutbound(ctx, bus.OutboundMessage{Kind: bus.OutboundText, Phone: "5511999@c.us", Text: "hi"}) {
		t.Fatal("PublishOutbound failed")
	}

	select {
	case event := <-events:
		if event.Type != bus.EventOutboundFailed || event.ChatID != "5511999" || event.Error != "session closed" {
			t.Fatalf("event = %+v", event)
		}
	case <-time.After(time.Second):
		t.Fatal("no outbound event")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestPreviewText(t *testing.T) {
	t.Parallel()

	if got := previewText(" hello "); got != "hello" {
		t.Fatalf("previewText short = %q", got)
	}

	got := previewText(strings.Repeat("a", messagePreviewLimit+20))
	if len(got) != messagePreviewLimit+3 || !strings.HasSuffix(got, "...") {
		t.Fatalf("previewText long = %q", got)
	}
}
